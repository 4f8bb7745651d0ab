package storage

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
)

var (
	ErrUserNotFound      = fmt.Errorf("user %w", ErrNotFound)
	ErrRequesterNotFound = fmt.Errorf("requesting user %w", ErrNotFound)
	ErrUserExists        = fmt.Errorf("user %w", ErrExists)
	ErrEmailExists       = fmt.Errorf("email %w", ErrExists)
	ErrCardNotFound      = fmt.Errorf("card %w", ErrNotFound)
	ErrAttackNotFound    = fmt.Errorf("attack %w", ErrNotFound)
	ErrCatalogNotFound   = fmt.Errorf("catalog %w", ErrNotFound)
	ErrCatalogExists     = fmt.Errorf("catalog %w", ErrExists)
	ErrRequestNotFound   = fmt.Errorf("trade request %w", ErrNotFound)
	ErrCardNotOwned      = fmt.Errorf("one or both cards were %w", ErrNotFound)
)

// Swap describes a one-for-one card exchange between two users.
type Swap struct {
	UserA string
	CardA string
	UserB string
	CardB string
}
