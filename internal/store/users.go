package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/chorusbot/chorus/internal/db"
)

// User returns the user row, or ErrUserNotFound.
func (s *Service) User(ctx context.Context, id string) (User, error) {
	var (
		u      User
		mode   pgtype.Text
		target pgtype.Text
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, autoproxy_mode, autoproxy_member FROM users WHERE id = $1`,
		strings.TrimSpace(id)).Scan(&u.ID, &mode, &target)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	u.AutoproxyMode = parseAutoproxyMode(db.TextToString(mode))
	u.AutoproxyMember = db.TextToString(target)
	return u, nil
}

// UpsertUser ensures a user row exists.
func (s *Service) UpsertUser(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`,
		strings.TrimSpace(id))
	return err
}

// SetAutoproxy sets the user's autoproxy mode and, for latch/member modes,
// the target member, which must be owned by the user.
func (s *Service) SetAutoproxy(ctx context.Context, userID string, mode AutoproxyMode, target string) error {
	switch mode {
	case AutoproxyNone, AutoproxyLatch, AutoproxyMember:
	default:
		return fmt.Errorf("unknown autoproxy mode %q", mode)
	}
	if mode == AutoproxyNone {
		target = ""
	}
	if target != "" {
		if err := s.checkOwnership(ctx, userID, target); err != nil {
			return err
		}
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET autoproxy_mode = $2, autoproxy_member = $3 WHERE id = $1`,
		strings.TrimSpace(userID), string(mode), db.TextFromString(target))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetAutoproxyTarget remembers the last explicit member choice for latch mode.
func (s *Service) SetAutoproxyTarget(ctx context.Context, userID, target string) error {
	if target != "" {
		if err := s.checkOwnership(ctx, userID, target); err != nil {
			return err
		}
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET autoproxy_member = $2 WHERE id = $1`,
		strings.TrimSpace(userID), db.TextFromString(target))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *Service) checkOwnership(ctx context.Context, userID, externalID string) error {
	var ownerID string
	err := s.pool.QueryRow(ctx,
		`SELECT owner_id FROM members WHERE external_id = $1`, externalID).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrMemberNotFound
		}
		return err
	}
	if ownerID != strings.TrimSpace(userID) {
		return ErrNotOwned
	}
	return nil
}

func parseAutoproxyMode(raw string) AutoproxyMode {
	switch AutoproxyMode(raw) {
	case AutoproxyLatch:
		return AutoproxyLatch
	case AutoproxyMember:
		return AutoproxyMember
	default:
		return AutoproxyNone
	}
}
