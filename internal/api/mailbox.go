package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/IlyasAtabaev731/tcg-trade/internal/domain/models"
	"github.com/IlyasAtabaev731/tcg-trade/internal/storage"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// pathRequest loads the mailbox owner and the trade request named by the
// {id} and {requestId} path variables.
func (s *APIServer) pathRequest(r *http.Request) (*models.User, *models.TradeRequest, error) {
	user, err := s.pathUser(r)
	if err != nil {
		return nil, nil, err
	}
	idx := user.MailboxIndex(mux.Vars(r)["requestId"])
	if idx == -1 {
		return nil, nil, storage.ErrRequestNotFound
	}
	return user, &user.Mailbox[idx], nil
}

// authorizeTarget allows only the mailbox owner through.
func (s *APIServer) authorizeTarget(r *http.Request, target *models.User) error {
	me, err := s.caller(r)
	if err != nil {
		return err
	}
	if me.ID != target.ID {
		return errForbidden
	}
	return nil
}

// authorizeRequester allows only the user who made the offer through.
func (s *APIServer) authorizeRequester(r *http.Request, req *models.TradeRequest) error {
	me, err := s.caller(r)
	if err != nil {
		return err
	}
	if me.ID != req.RequesterUserID {
		return errForbidden
	}
	return nil
}

// authorizeParty allows either side of the request through.
func (s *APIServer) authorizeParty(r *http.Request, req *models.TradeRequest) error {
	me, err := s.caller(r)
	if err != nil {
		return err
	}
	if me.ID != req.TargetUserID && me.ID != req.RequesterUserID {
		return errForbidden
	}
	return nil
}

func (s *APIServer) proposeTradeHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var body tradeRequestBody
		if err := s.decode(r, &body); err != nil {
			s.fail(w, r, err)
			return
		}

		targetID, ok := parseID(mux.Vars(r)["id"])
		if !ok {
			s.fail(w, r, storage.ErrUserNotFound)
			return
		}
		if body.TargetUserID != "" && body.TargetUserID != targetID {
			s.fail(w, r, fmt.Errorf("%w: targetUserId does not match the mailbox owner", errMalformed))
			return
		}

		me, err := s.caller(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if me.ID != body.RequesterUserID {
			s.fail(w, r, errForbidden)
			return
		}
		if body.RequesterUserID == targetID {
			s.fail(w, r, errSelfTrade)
			return
		}

		req := models.TradeRequest{
			ID:              uuid.NewString(),
			RequesterUserID: body.RequesterUserID,
			RequesterCardID: body.RequesterCardID,
			TargetUserID:    targetID,
			TargetCardID:    body.TargetCardID,
			Message:         body.Message,
			CreatedAt:       time.Now().UTC(),
		}
		if req.Message == "" {
			req.Message = req.DefaultMessage()
		}

		if err := s.storage.AddTradeRequest(r.Context(), req); err != nil {
			s.fail(w, r, err)
			return
		}

		mailbox, err := s.storage.Mailbox(r.Context(), targetID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if mailbox == nil {
			mailbox = []models.TradeRequest{}
		}

		s.logger.Info("Trade request sent",
			slog.String("request", req.ID),
			slog.String("requester", req.RequesterUserID),
			slog.String("target", req.TargetUserID),
		)
		writeJSON(w, http.StatusCreated, struct {
			Msg     string                `json:"msg"`
			Mailbox []models.TradeRequest `json:"mailbox"`
		}{"Trade request sent", mailbox})
	}
}

func (s *APIServer) mailboxHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.pathUser(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, struct {
			Mailbox []models.TradeRequest `json:"mailbox"`
		}{normalizeUser(user).Mailbox})
	}
}

func (s *APIServer) updateTradeHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var body tradeUpdateBody
		if err := s.decode(r, &body); err != nil {
			s.fail(w, r, err)
			return
		}

		_, req, err := s.pathRequest(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		// Only the requester may change what is offered.
		if err := s.authorizeRequester(r, req); err != nil {
			s.fail(w, r, err)
			return
		}

		req.RequesterCardID = body.RequesterCardID
		req.TargetCardID = body.TargetCardID
		req.Message = body.Message
		if req.Message == "" {
			req.Message = req.DefaultMessage()
		}

		if err := s.storage.UpdateTradeRequest(r.Context(), *req); err != nil {
			s.fail(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, struct {
			Msg     string               `json:"msg"`
			Request *models.TradeRequest `json:"request"`
		}{"Trade request updated", req})
	}
}

func (s *APIServer) deleteTradeHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		user, req, err := s.pathRequest(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if err := s.authorizeParty(r, req); err != nil {
			s.fail(w, r, err)
			return
		}

		if err := s.storage.DeleteTradeRequest(r.Context(), user.ID, req.ID); err != nil {
			s.fail(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, message{Msg: "Trade request deleted"})
	}
}

func (s *APIServer) acceptTradeHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.pathUser(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if err := s.authorizeTarget(r, user); err != nil {
			s.fail(w, r, err)
			return
		}

		requestID, ok := parseID(mux.Vars(r)["requestId"])
		if !ok {
			s.fail(w, r, storage.ErrRequestNotFound)
			return
		}

		tx, err := s.storage.AcceptTradeRequest(r.Context(), user.ID, requestID)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		s.logger.Info("Trade accepted",
			slog.String("transaction", tx.ID),
			slog.String("from", tx.FromUserID),
			slog.String("to", tx.ToUserID),
		)
		writeJSON(w, http.StatusOK, struct {
			Msg         string              `json:"msg"`
			Transaction *models.Transaction `json:"transaction"`
		}{"Trade accepted", tx})
	}
}

func (s *APIServer) rejectTradeHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.pathUser(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if err := s.authorizeTarget(r, user); err != nil {
			s.fail(w, r, err)
			return
		}

		requestID, ok := parseID(mux.Vars(r)["requestId"])
		if !ok {
			s.fail(w, r, storage.ErrRequestNotFound)
			return
		}

		if err := s.storage.DeleteTradeRequest(r.Context(), user.ID, requestID); err != nil {
			s.fail(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, message{Msg: "Trade rejected"})
	}
}
