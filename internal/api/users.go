package api

import (
	"log/slog"
	"net/http"

	"github.com/IlyasAtabaev731/tcg-trade/internal/domain/models"
	"github.com/IlyasAtabaev731/tcg-trade/internal/storage"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
)

type userEnvelope struct {
	Msg  string       `json:"msg"`
	User *models.User `json:"User"`
}

type ownedCardView struct {
	Card     models.Card `json:"card"`
	Quantity int         `json:"quantity"`
}

// normalizeUser makes empty collections serialize as [] rather than null.
func normalizeUser(u *models.User) *models.User {
	if u.Cards == nil {
		u.Cards = models.Collection{}
	}
	if u.Mailbox == nil {
		u.Mailbox = []models.TradeRequest{}
	}
	return u
}

// pathUser loads the user named by the {id} path variable.
func (s *APIServer) pathUser(r *http.Request) (*models.User, error) {
	id, ok := parseID(mux.Vars(r)["id"])
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return s.storage.User(r.Context(), id)
}

func (s *APIServer) listUsersHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if email := r.URL.Query().Get("email"); email != "" {
			user, err := s.storage.UserByEmail(r.Context(), email)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, normalizeUser(user))
			return
		}

		users, err := s.storage.Users(r.Context(), "")
		if err != nil {
			s.fail(w, r, err)
			return
		}
		for i := range users {
			normalizeUser(&users[i])
		}
		writeJSON(w, http.StatusOK, users)
	}
}

func (s *APIServer) searchUsersHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := s.storage.Users(r.Context(), r.URL.Query().Get("name"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		for i := range users {
			normalizeUser(&users[i])
		}
		writeJSON(w, http.StatusOK, users)
	}
}

func (s *APIServer) getUserHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.pathUser(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, userEnvelope{Msg: "User found", User: normalizeUser(user)})
	}
}

func (s *APIServer) updateUserHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateUserRequest
		if err := s.decode(r, &req); err != nil {
			s.fail(w, r, err)
			return
		}

		user, err := s.pathUser(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		me, err := s.caller(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if me.ID != user.ID {
			s.fail(w, r, errForbidden)
			return
		}

		if req.Name != nil {
			user.Name = *req.Name
		}
		if req.Email != nil {
			user.Email = *req.Email
		}
		if req.Password != nil {
			hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			user.PasswordHash = string(hash)
		}

		if err := s.storage.UpdateUser(r.Context(), *user); err != nil {
			s.fail(w, r, err)
			return
		}

		s.logger.Info("User updated", slog.String("user", user.ID))
		writeJSON(w, http.StatusOK, userEnvelope{Msg: "User updated", User: normalizeUser(user)})
	}
}

func (s *APIServer) deleteUserHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.pathUser(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		me, err := s.caller(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if me.ID != user.ID {
			s.fail(w, r, errForbidden)
			return
		}

		if err := s.storage.DeleteUser(r.Context(), user.ID); err != nil {
			s.fail(w, r, err)
			return
		}

		s.logger.Info("User deleted", slog.String("user", user.ID))
		writeJSON(w, http.StatusOK, userEnvelope{Msg: "User deleted", User: normalizeUser(user)})
	}
}

func (s *APIServer) userCardsHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.pathUser(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		ids := make([]string, 0, len(user.Cards))
		for _, oc := range user.Cards {
			ids = append(ids, oc.CardID)
		}
		cards, err := s.storage.Cards(r.Context(), models.CardFilter{IDs: ids})
		if err != nil {
			s.fail(w, r, err)
			return
		}

		byID := make(map[string]models.Card, len(cards))
		for _, c := range cards {
			byID[c.ID] = c
		}
		owned := make([]ownedCardView, 0, len(user.Cards))
		for _, oc := range user.Cards {
			if c, ok := byID[oc.CardID]; ok {
				owned = append(owned, ownedCardView{Card: c, Quantity: oc.Quantity})
			}
		}

		writeJSON(w, http.StatusOK, struct {
			Msg   string          `json:"msg"`
			Cards []ownedCardView `json:"cards"`
		}{"User cards found", owned})
	}
}

func (s *APIServer) userTransactionsHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(mux.Vars(r)["id"])
		if !ok {
			s.fail(w, r, storage.ErrUserNotFound)
			return
		}

		txs, err := s.storage.Transactions(r.Context(), id)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if txs == nil {
			txs = []models.Transaction{}
		}
		writeJSON(w, http.StatusOK, txs)
	}
}
