package api

import (
	"log/slog"
	"net/http"

	"github.com/IlyasAtabaev731/tcg-trade/internal/domain/models"
	"github.com/IlyasAtabaev731/tcg-trade/internal/storage"
)

// transactionHandler swaps two cards between two users right away, with no
// mailbox round trip.
func (s *APIServer) transactionHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var req transactionRequest
		if err := s.decode(r, &req); err != nil {
			s.fail(w, r, err)
			return
		}

		tx, err := s.storage.SwapCards(r.Context(), storage.Swap{
			UserA: req.UserID1,
			CardA: req.CardID1,
			UserB: req.UserID2,
			CardB: req.CardID2,
		})
		if err != nil {
			s.fail(w, r, err)
			return
		}

		s.logger.Info("Cards swapped",
			slog.String("transaction", tx.ID),
			slog.String("user1", req.UserID1),
			slog.String("user2", req.UserID2),
		)
		writeJSON(w, http.StatusOK, struct {
			Msg         string              `json:"msg"`
			Transaction *models.Transaction `json:"transaction"`
		}{"Transaction completed", tx})
	}
}
