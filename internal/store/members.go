package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/chorusbot/chorus/internal/db"
)

const memberColumns = `external_id, credential, user_id, owner_id, name,
	display_name, avatar_url, nickname, proxy_tags, keep_proxy, enabled,
	created_at, updated_at`

// Member returns the member with the given external id.
func (s *Service) Member(ctx context.Context, externalID string) (Member, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+memberColumns+` FROM members WHERE external_id = $1`,
		strings.TrimSpace(externalID))
	return scanMember(row)
}

// MemberByAccountID returns the member whose bot account id matches.
func (s *Service) MemberByAccountID(ctx context.Context, accountID string) (Member, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+memberColumns+` FROM members WHERE user_id = $1`,
		strings.TrimSpace(accountID))
	return scanMember(row)
}

// Members returns all members, enabled or not.
func (s *Service) Members(ctx context.Context) ([]Member, error) {
	return s.queryMembers(ctx, `SELECT `+memberColumns+` FROM members ORDER BY created_at`)
}

// EnabledMembers returns every enabled member.
func (s *Service) EnabledMembers(ctx context.Context) ([]Member, error) {
	return s.queryMembers(ctx,
		`SELECT `+memberColumns+` FROM members WHERE enabled ORDER BY created_at`)
}

// MembersByOwner returns the members owned by the given user. When enabledOnly
// is set, suspended members are excluded.
func (s *Service) MembersByOwner(ctx context.Context, ownerID string, enabledOnly bool) ([]Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE owner_id = $1`
	if enabledOnly {
		query += ` AND enabled`
	}
	query += ` ORDER BY created_at`
	return s.queryMembers(ctx, query, strings.TrimSpace(ownerID))
}

// RegisterMember inserts a new member, marks its credential used, and ensures
// the owning user row exists, all in one transaction. No partial write
// survives a failure.
func (s *Service) RegisterMember(ctx context.Context, m Member) error {
	tags, err := json.Marshal(m.ProxyTags)
	if err != nil {
		return fmt.Errorf("encode proxy tags: %w", err)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin register tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`,
		m.OwnerID); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE credentials SET used = TRUE WHERE token = $1 AND NOT used`,
		m.Credential)
	if err != nil {
		return fmt.Errorf("mark credential used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoFreeCredential
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO members (external_id, credential, user_id, owner_id, name,
			display_name, avatar_url, nickname, proxy_tags, keep_proxy, enabled)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		m.ExternalID, m.Credential, m.UserID, m.OwnerID, m.Name,
		db.TextFromString(m.DisplayName), db.TextFromString(m.AvatarURL),
		db.TextFromString(m.Nickname), tags, m.KeepProxy, m.Enabled)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateMember
		}
		return fmt.Errorf("insert member: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit register tx: %w", err)
	}
	s.logger.Info("member registered",
		slog.String("external_id", m.ExternalID), slog.String("owner_id", m.OwnerID))
	return nil
}

// SetMemberAccountID records the platform-assigned bot account id once the
// member's session first becomes ready.
func (s *Service) SetMemberAccountID(ctx context.Context, externalID, accountID string) error {
	return s.execMember(ctx,
		`UPDATE members SET user_id = $2, updated_at = now() WHERE external_id = $1`,
		externalID, accountID)
}

// SetMemberEnabled flips the enablement flag. The credential's used flag is
// deliberately left alone.
func (s *Service) SetMemberEnabled(ctx context.Context, externalID string, enabled bool) error {
	return s.execMember(ctx,
		`UPDATE members SET enabled = $2, updated_at = now() WHERE external_id = $1`,
		externalID, enabled)
}

// UpdateMemberTags replaces the member's ordered proxy tag list.
func (s *Service) UpdateMemberTags(ctx context.Context, externalID string, tags []Tag) error {
	encoded, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("encode proxy tags: %w", err)
	}
	return s.execMember(ctx,
		`UPDATE members SET proxy_tags = $2, updated_at = now() WHERE external_id = $1`,
		externalID, encoded)
}

// UpdateMemberName stores the canonical name.
func (s *Service) UpdateMemberName(ctx context.Context, externalID, name string) error {
	return s.execMember(ctx,
		`UPDATE members SET name = $2, updated_at = now() WHERE external_id = $1`,
		externalID, name)
}

// UpdateMemberDisplayName stores the display name.
func (s *Service) UpdateMemberDisplayName(ctx context.Context, externalID, displayName string) error {
	return s.execMember(ctx,
		`UPDATE members SET display_name = $2, updated_at = now() WHERE external_id = $1`,
		externalID, db.TextFromString(displayName))
}

// UpdateMemberAvatar stores the avatar reference.
func (s *Service) UpdateMemberAvatar(ctx context.Context, externalID, avatarURL string) error {
	return s.execMember(ctx,
		`UPDATE members SET avatar_url = $2, updated_at = now() WHERE external_id = $1`,
		externalID, db.TextFromString(avatarURL))
}

// UpdateMemberNickname stores the owner-set nickname override (≤32 characters).
func (s *Service) UpdateMemberNickname(ctx context.Context, externalID, nickname string) error {
	if len([]rune(nickname)) > 32 {
		return fmt.Errorf("nickname must be 32 characters or fewer")
	}
	return s.execMember(ctx,
		`UPDATE members SET nickname = $2, updated_at = now() WHERE external_id = $1`,
		externalID, db.TextFromString(nickname))
}

// DeleteMember hard-deletes the member. Its credential stays marked used so
// message history attributed to the old account never becomes ambiguous.
func (s *Service) DeleteMember(ctx context.Context, externalID string) error {
	return s.execMember(ctx,
		`DELETE FROM members WHERE external_id = $1`, strings.TrimSpace(externalID))
}

func (s *Service) queryMembers(ctx context.Context, query string, args ...any) ([]Member, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *Service) execMember(ctx context.Context, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMemberNotFound
	}
	return nil
}

func scanMember(row pgx.Row) (Member, error) {
	var (
		m           Member
		displayName pgtype.Text
		avatarURL   pgtype.Text
		nickname    pgtype.Text
		tags        []byte
		createdAt   pgtype.Timestamptz
		updatedAt   pgtype.Timestamptz
	)
	err := row.Scan(&m.ExternalID, &m.Credential, &m.UserID, &m.OwnerID, &m.Name,
		&displayName, &avatarURL, &nickname, &tags, &m.KeepProxy, &m.Enabled,
		&createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Member{}, ErrMemberNotFound
		}
		return Member{}, err
	}
	m.DisplayName = db.TextToString(displayName)
	m.AvatarURL = db.TextToString(avatarURL)
	m.Nickname = db.TextToString(nickname)
	m.CreatedAt = db.TimeFromPg(createdAt)
	m.UpdatedAt = db.TimeFromPg(updatedAt)
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &m.ProxyTags); err != nil {
			return Member{}, fmt.Errorf("decode proxy tags: %w", err)
		}
	}
	return m, nil
}
