// Package store persists members, users, and the credential pool.
package store

import (
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrMemberNotFound is returned when no member row matches the query.
	ErrMemberNotFound = errors.New("member not found")
	// ErrUserNotFound is returned when no user row matches the query.
	ErrUserNotFound = errors.New("user not found")
	// ErrNoFreeCredential is returned when every pool credential is in use.
	ErrNoFreeCredential = errors.New("no free credential in pool")
	// ErrDuplicateMember is returned when the external id is already registered.
	ErrDuplicateMember = errors.New("member already registered")
	// ErrNotOwned is returned when an autoproxy target does not belong to the user.
	ErrNotOwned = errors.New("member is not owned by this user")
)

// Service is the Identity Record Store: pgx-backed rows for members, users,
// and the credential pool.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates a store service.
func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "store")),
	}
}
