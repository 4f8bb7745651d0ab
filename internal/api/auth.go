package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/IlyasAtabaev731/tcg-trade/internal/domain/models"
	"github.com/IlyasAtabaev731/tcg-trade/internal/lib/jwt"
	"github.com/IlyasAtabaev731/tcg-trade/internal/storage"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

func (s *APIServer) signupHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var req signupRequest
		if err := s.decode(r, &req); err != nil {
			s.fail(w, r, err)
			return
		}

		if _, err := s.storage.UserByName(r.Context(), req.Name); err == nil {
			writeJSON(w, http.StatusBadRequest, message{Msg: "User is already registered"})
			return
		} else if !errors.Is(err, storage.ErrNotFound) {
			s.fail(w, r, err)
			return
		}

		if _, err := s.storage.UserByEmail(r.Context(), req.Email); err == nil {
			writeJSON(w, http.StatusBadRequest, message{Msg: "Email is already registered"})
			return
		} else if !errors.Is(err, storage.ErrNotFound) {
			s.fail(w, r, err)
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		user := models.User{
			ID:           uuid.NewString(),
			Name:         req.Name,
			Email:        req.Email,
			PasswordHash: string(hash),
			Cards:        models.Collection{},
			Mailbox:      []models.TradeRequest{},
			CreatedAt:    time.Now().UTC(),
		}
		// A concurrent signup can still lose the race to the unique constraint.
		if err := s.storage.SaveUser(r.Context(), user); err != nil {
			switch {
			case errors.Is(err, storage.ErrUserExists):
				writeJSON(w, http.StatusBadRequest, message{Msg: "User is already registered"})
			case errors.Is(err, storage.ErrEmailExists):
				writeJSON(w, http.StatusBadRequest, message{Msg: "Email is already registered"})
			default:
				s.fail(w, r, err)
			}
			return
		}

		s.logger.Info("User created", slog.String("user", user.ID))

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("User created"))
	}
}

func (s *APIServer) signinHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var req signinRequest
		if err := s.decode(r, &req); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) {
				writeJSON(w, http.StatusBadRequest, message{Msg: "Email and password are required"})
				return
			}
			s.fail(w, r, err)
			return
		}

		user, err := s.storage.UserByEmail(r.Context(), req.Email)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				err = errInvalidCredentials
			}
			s.fail(w, r, err)
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
			s.fail(w, r, errInvalidCredentials)
			return
		}

		token, err := jwt.NewToken(user, string(s.jwtSecret), s.config.TokenTTL)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"token": token})
	}
}
