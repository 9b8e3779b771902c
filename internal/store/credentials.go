package store

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
)

// FreeCredential returns one unused pool credential, or ErrNoFreeCredential.
func (s *Service) FreeCredential(ctx context.Context) (Credential, error) {
	var c Credential
	err := s.pool.QueryRow(ctx,
		`SELECT token, used FROM credentials WHERE NOT used LIMIT 1`).Scan(&c.Token, &c.Used)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Credential{}, ErrNoFreeCredential
		}
		return Credential{}, err
	}
	return c, nil
}

// AddCredential inserts a new credential into the pool. Re-adding an existing
// token is a no-op.
func (s *Service) AddCredential(ctx context.Context, token string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO credentials (token) VALUES ($1) ON CONFLICT (token) DO NOTHING`,
		strings.TrimSpace(token))
	return err
}

// ReleaseCredential marks a credential unused again. This is the manual
// recycling path only; disabling a member never releases its credential.
func (s *Service) ReleaseCredential(ctx context.Context, token string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE credentials SET used = FALSE WHERE token = $1`, strings.TrimSpace(token))
	return err
}

// Credentials lists the pool.
func (s *Service) Credentials(ctx context.Context) ([]Credential, error) {
	rows, err := s.pool.Query(ctx, `SELECT token, used FROM credentials ORDER BY token`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []Credential
	for rows.Next() {
		var c Credential
		if err := rows.Scan(&c.Token, &c.Used); err != nil {
			return nil, err
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

// FreeCredentialCount reports how many registration slots remain.
func (s *Service) FreeCredentialCount(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM credentials WHERE NOT used`).Scan(&n)
	return n, err
}
