package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/IlyasAtabaev731/tcg-trade/internal/domain/models"
	"github.com/IlyasAtabaev731/tcg-trade/internal/storage"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type catalogEnvelope struct {
	Msg     string          `json:"msg"`
	Catalog *models.Catalog `json:"Catalog"`
}

// createCards persists every card payload and returns the new ids in order.
func (s *APIServer) createCards(ctx context.Context, reqs []cardRequest) ([]string, error) {
	ids := make([]string, 0, len(reqs))
	for _, req := range reqs {
		card, err := s.createCard(ctx, req)
		if err != nil {
			return nil, err
		}
		ids = append(ids, card.ID)
	}
	return ids, nil
}

func (s *APIServer) createCatalog(ctx context.Context, req catalogRequest) (*models.Catalog, error) {
	if _, err := s.storage.Catalog(ctx, req.Name); err == nil {
		return nil, storage.ErrCatalogExists
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	ids, err := s.createCards(ctx, req.Cards)
	if err != nil {
		return nil, err
	}

	catalog := models.Catalog{ID: uuid.NewString(), Name: req.Name, Cards: ids}
	if err := s.storage.SaveCatalog(ctx, catalog); err != nil {
		return nil, err
	}
	return &catalog, nil
}

// catalogCards returns the cards of the catalog that pass the filter, in
// catalog order.
func (s *APIServer) catalogCards(ctx context.Context, name string, filter models.CardFilter) ([]models.Card, error) {
	catalog, err := s.storage.Catalog(ctx, name)
	if err != nil {
		return nil, err
	}

	filter.IDs = catalog.Cards
	if filter.IDs == nil {
		filter.IDs = []string{}
	}
	cards, err := s.storage.Cards(ctx, filter)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.Card, len(cards))
	for _, c := range cards {
		byID[c.ID] = c
	}
	res := make([]models.Card, 0, len(cards))
	for _, id := range catalog.Cards {
		if c, ok := byID[id]; ok {
			res = append(res, c)
		}
	}
	return res, nil
}

// SeedCatalog loads a catalog definition from a JSON file and stores it,
// replacing any catalog with the same name.
func (s *APIServer) SeedCatalog(ctx context.Context, path string) error {
	const op = "api.SeedCatalog"

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var req catalogRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	// The previous seed's cards go with it so restarts do not pile up copies.
	previous, err := s.storage.Catalog(ctx, req.Name)
	switch {
	case err == nil:
		for _, id := range previous.Cards {
			if err := s.storage.DeleteCard(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("%s: %w", op, err)
			}
		}
		if err := s.storage.DeleteCatalog(ctx, req.Name); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	case !errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%s: %w", op, err)
	}

	catalog, err := s.createCatalog(ctx, req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.logger.Info("Catalog seeded", slog.String("catalog", catalog.Name), slog.Int("cards", len(catalog.Cards)))
	return nil
}

func (s *APIServer) listCatalogsHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		catalogs, err := s.storage.Catalogs(r.Context())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, catalogs)
	}
}

func (s *APIServer) createCatalogHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var req catalogRequest
		if err := s.decode(r, &req); err != nil {
			s.fail(w, r, err)
			return
		}

		catalog, err := s.createCatalog(r.Context(), req)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		s.logger.Info("Catalog created", slog.String("catalog", catalog.Name))
		writeJSON(w, http.StatusCreated, catalogEnvelope{Msg: "Catalog created", Catalog: catalog})
	}
}

func (s *APIServer) replaceCatalogCardsHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var req catalogRequest
		if err := s.decode(r, &req); err != nil {
			s.fail(w, r, err)
			return
		}

		catalog, err := s.storage.Catalog(r.Context(), req.Name)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		ids, err := s.createCards(r.Context(), req.Cards)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if err := s.storage.SetCatalogCards(r.Context(), catalog.Name, ids); err != nil {
			s.fail(w, r, err)
			return
		}
		catalog.Cards = ids

		writeJSON(w, http.StatusOK, catalogEnvelope{Msg: "Catalog updated", Catalog: catalog})
	}
}

func (s *APIServer) getCatalogHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		catalog, err := s.storage.Catalog(r.Context(), mux.Vars(r)["name"])
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if catalog.Cards == nil {
			catalog.Cards = []string{}
		}
		writeJSON(w, http.StatusOK, catalog)
	}
}

func (s *APIServer) deleteCatalogHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		if err := s.storage.DeleteCatalog(r.Context(), name); err != nil {
			s.fail(w, r, err)
			return
		}

		s.logger.Info("Catalog deleted", slog.String("catalog", name))
		writeJSON(w, http.StatusOK, message{Msg: "Catalog deleted"})
	}
}

func (s *APIServer) catalogCardsHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		cards, err := s.catalogCards(r.Context(), mux.Vars(r)["name"], models.CardFilter{})
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, cards)
	}
}

func (s *APIServer) searchCatalogHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := cardFilter(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		cards, err := s.catalogCards(r.Context(), mux.Vars(r)["name"], filter)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if len(cards) == 0 {
			s.fail(w, r, errNoMatches)
			return
		}

		writeJSON(w, http.StatusOK, cards)
	}
}

func (s *APIServer) searchCardsHandler() func(http.ResponseWriter, *http.Request) {
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
		if len(cards) == 0 {
			s.fail(w, r, errNoMatches)
			return
		}

		writeJSON(w, http.StatusOK, cards)
	}
}
