package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/IlyasAtabaev731/tcg-trade/internal/storage"
	"github.com/go-playground/validator/v10"
)

var (
	errInvalidCredentials = errors.New("Invalid credentials")
	errForbidden          = errors.New("Forbidden")
	errSelfTrade          = errors.New("a user cannot trade with themselves")
	errNoMatches          = errors.New("no cards match the given filters")
)

// publicErrors are safe to show to clients verbatim.
var publicErrors = []error{
	storage.ErrUserNotFound,
	storage.ErrRequesterNotFound,
	storage.ErrUserExists,
	storage.ErrEmailExists,
	storage.ErrCardNotFound,
	storage.ErrAttackNotFound,
	storage.ErrCatalogNotFound,
	storage.ErrCatalogExists,
	storage.ErrRequestNotFound,
	storage.ErrCardNotOwned,
	errInvalidCredentials,
	errForbidden,
	errSelfTrade,
	errNoMatches,
}

type message struct {
	Msg string `json:"msg"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// fail translates err into a status code and a JSON message.
func (s *APIServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classify(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			"error", err,
		)
	}
	writeJSON(w, status, message{Msg: msg})
}

func classify(err error) (int, string) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return http.StatusBadRequest, describeValidation(verrs)
	case errors.Is(err, errMalformed):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, errForbidden):
		return http.StatusForbidden, errForbidden.Error()
	case errors.Is(err, errInvalidCredentials), errors.Is(err, errSelfTrade):
		return http.StatusBadRequest, publicMessage(err)
	case errors.Is(err, storage.ErrExists):
		return http.StatusBadRequest, publicMessage(err)
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, errNoMatches):
		return http.StatusNotFound, publicMessage(err)
	}
	return http.StatusInternalServerError, "Internal server error"
}

func publicMessage(err error) string {
	for _, known := range publicErrors {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return err.Error()
}
