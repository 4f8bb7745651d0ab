package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/IlyasAtabaev731/tcg-trade/internal/domain/models"
	"github.com/IlyasAtabaev731/tcg-trade/internal/storage"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// persistCard stores the attacks of the payload first and then the card
// that references them.
func (s *APIServer) persistCard(ctx context.Context, id string, req cardRequest) (*models.Card, error) {
	attackIDs := make([]string, 0, len(req.Attacks))
	for _, a := range req.Attacks {
		attack := models.Attack{
			ID:       uuid.NewString(),
			Name:     a.Name,
			Energies: a.Energies,
			Damage:   *a.Damage,
			Effect:   a.Effect,
		}
		if err := s.storage.SaveAttack(ctx, attack); err != nil {
			return nil, err
		}
		attackIDs = append(attackIDs, attack.ID)
	}

	retreat := req.RetreatCost
	if retreat == nil {
		retreat = []string{}
	}

	card := models.Card{
		ID:            id,
		Name:          req.Name,
		NPokeDex:      req.NPokeDex,
		Type:          req.Type,
		Weakness:      req.Weakness,
		HP:            req.HP,
		Attacks:       attackIDs,
		RetreatCost:   retreat,
		Phase:         req.Phase,
		Description:   req.Description,
		IsHolographic: *req.IsHolographic,
		Value:         *req.Value,
		Rarity:        req.Rarity,
	}

	return &card, nil
}

func (s *APIServer) createCard(ctx context.Context, req cardRequest) (*models.Card, error) {
	card, err := s.persistCard(ctx, uuid.NewString(), req)
	if err != nil {
		return nil, err
	}
	if err := s.storage.SaveCard(ctx, *card); err != nil {
		return nil, err
	}
	return card, nil
}

// parseID reports whether the path value is a well formed id. Malformed ids
// can never match a document, so callers answer them with not found.
func parseID(raw string) (string, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", false
	}
	return id.String(), true
}

func cardFilter(r *http.Request) (models.CardFilter, error) {
	q := r.URL.Query()
	filter := models.CardFilter{
		Name:   q.Get("name"),
		Type:   q.Get("type"),
		Rarity: q.Get("rarity"),
	}
	if raw := q.Get("value"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return filter, fmt.Errorf("%w: value must be an integer", errMalformed)
		}
		filter.Value = &v
	}
	return filter, nil
}

func (s *APIServer) createCardHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cardRequest
		if err := s.decode(r, &req); err != nil {
			s.fail(w, r, err)
			return
		}

		card, err := s.createCard(r.Context(), req)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		s.logger.Info("Card created", slog.String("card", card.ID), slog.String("name", card.Name))
		writeJSON(w, http.StatusCreated, card)
	}
}

func (s *APIServer) createUserCardHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cardRequest
		if err := s.decode(r, &req); err != nil {
			s.fail(w, r, err)
			return
		}

		user, err := s.storage.UserByName(r.Context(), mux.Vars(r)["name"])
		if err != nil {
			s.fail(w, r, err)
			return
		}

		card, err := s.createCard(r.Context(), req)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		if err := s.storage.GrantCard(r.Context(), user.ID, card.ID); err != nil {
			s.fail(w, r, err)
			return
		}

		s.logger.Info("Card added to user", slog.String("card", card.ID), slog.String("user", user.ID))
		writeJSON(w, http.StatusCreated, card)
	}
}

func (s *APIServer) listCardsHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := cardFilter(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		cards, err := s.storage.Cards(r.Context(), filter)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, cards)
	}
}

// getCardHandler looks a card up by id, or by exact name when the key is
// not an id.
func (s *APIServer) getCardHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		key := mux.Vars(r)["key"]

		var (
			card *models.Card
			err  error
		)
		if id, ok := parseID(key); ok {
			card, err = s.storage.Card(r.Context(), id)
		} else {
			card, err = s.storage.CardByName(r.Context(), key)
		}
		if err != nil {
			s.fail(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, card)
	}
}

func (s *APIServer) getAttackHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(mux.Vars(r)["id"])
		if !ok {
			s.fail(w, r, storage.ErrAttackNotFound)
			return
		}

		attack, err := s.storage.Attack(r.Context(), id)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, struct {
			Msg    string         `json:"msg"`
			Attack *models.Attack `json:"attack"`
		}{"Attack found", attack})
	}
}

func (s *APIServer) updateCardHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(mux.Vars(r)["id"])
		if !ok {
			s.fail(w, r, storage.ErrCardNotFound)
			return
		}

		var req cardRequest
		if err := s.decode(r, &req); err != nil {
			s.fail(w, r, err)
			return
		}

		if _, err := s.storage.Card(r.Context(), id); err != nil {
			s.fail(w, r, err)
			return
		}

		card, err := s.persistCard(r.Context(), id, req)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if err := s.storage.UpdateCard(r.Context(), *card); err != nil {
			s.fail(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, struct {
			Msg  string       `json:"msg"`
			Card *models.Card `json:"Card"`
		}{"Card updated", card})
	}
}

func (s *APIServer) deleteCardHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(mux.Vars(r)["id"])
		if !ok {
			s.fail(w, r, storage.ErrCardNotFound)
			return
		}

		if err := s.storage.DeleteCard(r.Context(), id); err != nil {
			s.fail(w, r, err)
			return
		}

		s.logger.Info("Card deleted", slog.String("card", id))
		writeJSON(w, http.StatusOK, message{Msg: "Card deleted"})
	}
}

func (s *APIServer) deleteCardsHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.storage.DeleteCards(r.Context()); err != nil {
			s.fail(w, r, err)
			return
		}

		s.logger.Info("All cards deleted")
		writeJSON(w, http.StatusOK, message{Msg: "All cards deleted"})
	}
}
