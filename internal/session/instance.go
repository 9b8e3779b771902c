// Package session owns one live platform connection per enabled member and
// the registry of running instances.
package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/chorusbot/chorus/internal/gateway"
	"github.com/chorusbot/chorus/internal/store"
)

// State is the runtime lifecycle state of an instance. Invalid states are
// terminal until an explicit re-enable creates a fresh session.
type State string

// Instance lifecycle states.
const (
	StateStarting          State = "starting"
	StateReady             State = "ready"
	StateSyncing           State = "syncing"
	StateInvalidOwnerLeft  State = "invalid-owner-left"
	StateInvalidNotInGuild State = "invalid-not-in-guild"
	StateClosed            State = "closed"
)

// Conn is the subset of a platform connection an instance drives.
type Conn interface {
	gateway.Presence
	gateway.Membership
	gateway.Profile

	Open(ctx context.Context) error
	Close(ctx context.Context) error
	AccountID() string
}

// DialFunc creates a connection from the member's credential.
type DialFunc func(credential string) (Conn, error)

// Records is the slice of the identity record store instances write to.
// Profile writes land here synchronously with the remote attempt so a later
// retry uses the latest intended value.
type Records interface {
	SetMemberAccountID(ctx context.Context, externalID, accountID string) error
	SetMemberEnabled(ctx context.Context, externalID string, enabled bool) error
	UpdateMemberName(ctx context.Context, externalID, name string) error
	UpdateMemberDisplayName(ctx context.Context, externalID, displayName string) error
	UpdateMemberAvatar(ctx context.Context, externalID, avatarURL string) error
	UpdateMemberNickname(ctx context.Context, externalID, nickname string) error
	UpdateMemberTags(ctx context.Context, externalID string, tags []store.Tag) error
}

// ProfileUpdate carries the sub-updates to push; nil fields are untouched.
type ProfileUpdate struct {
	Username    *string
	AvatarURL   *string
	Nickname    *string
	DisplayName *string
	Tags        []store.Tag
	RoleIDs     []string
}

// Username and avatar changes share a strict platform rate limit.
var profileLimit = rate.Every(30 * time.Second)

// Instance is one member's live session.
type Instance struct {
	dial    DialFunc
	records Records
	primary gateway.Membership
	guildID string
	logger  *slog.Logger
	limiter *rate.Limiter

	mu     sync.RWMutex
	member store.Member
	state  State
	conn   Conn
}

// NewInstance creates an instance for the member. Start must be called to
// bring the session up.
func NewInstance(log *slog.Logger, dial DialFunc, records Records, primary gateway.Membership, guildID string, member store.Member) *Instance {
	if log == nil {
		log = slog.Default()
	}
	return &Instance{
		dial:    dial,
		records: records,
		primary: primary,
		guildID: guildID,
		member:  member,
		state:   StateStarting,
		limiter: rate.NewLimiter(profileLimit, 1),
		logger: log.With(
			slog.String("service", "session"),
			slog.String("member", member.ExternalID)),
	}
}

// Member returns a snapshot of the member record this instance represents.
func (i *Instance) Member() store.Member {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.member
}

// State returns the current lifecycle state.
func (i *Instance) State() State {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.state
}

// AccountID returns the platform account id once ready.
func (i *Instance) AccountID() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.conn == nil {
		return i.member.UserID
	}
	return i.conn.AccountID()
}

// Start connects the member's session, records the platform-assigned account
// id, and runs the validity checks. Failures land in a terminal invalid state
// rather than returning an error to the caller; the error return covers only
// transport-level connect problems.
func (i *Instance) Start(ctx context.Context) error {
	conn, err := i.dial(i.member.Credential)
	if err != nil {
		return fmt.Errorf("dial member session: %w", err)
	}
	if err := conn.Open(ctx); err != nil {
		return fmt.Errorf("open member session: %w", err)
	}

	i.mu.Lock()
	i.conn = conn
	i.mu.Unlock()

	accountID := conn.AccountID()
	if accountID != "" && accountID != i.member.UserID {
		if err := i.records.SetMemberAccountID(ctx, i.member.ExternalID, accountID); err != nil {
			i.logger.Error("record account id", slog.Any("error", err))
		}
		i.mu.Lock()
		i.member.UserID = accountID
		i.mu.Unlock()
	}

	if state := i.ValidityCheck(ctx); state != StateReady {
		return nil
	}

	if err := conn.SetPresence(ctx, gateway.PresenceOnline, i.listeningTo()); err != nil {
		i.logger.Warn("set presence", slog.Any("error", err))
	}
	i.setState(StateReady)
	i.logger.Info("instance ready", slog.String("account_id", accountID))
	return nil
}

// ValidityCheck runs the two independent checks: the owning human must still
// be a guild member (failure disables the member and tears the session down),
// and the instance itself must be present in the same guild as the primary
// session (failure is surfaced but not auto-disabled).
func (i *Instance) ValidityCheck(ctx context.Context) State {
	if _, err := i.primary.GuildMember(ctx, i.guildID, i.member.OwnerID); err != nil {
		i.logger.Warn("owner no longer in guild", slog.String("owner_id", i.member.OwnerID))
		if err := i.records.SetMemberEnabled(ctx, i.member.ExternalID, false); err != nil {
			i.logger.Error("disable member", slog.Any("error", err))
		}
		i.setState(StateInvalidOwnerLeft)
		i.teardown(ctx)
		return StateInvalidOwnerLeft
	}

	i.mu.RLock()
	conn := i.conn
	i.mu.RUnlock()
	if conn != nil {
		if _, err := conn.GuildMember(ctx, i.guildID, conn.AccountID()); err != nil {
			i.logger.Warn("instance not in guild", slog.String("account_id", conn.AccountID()))
			i.setState(StateInvalidNotInGuild)
			return StateInvalidNotInGuild
		}
	}
	return StateReady
}

// UpdateProfile pushes the sub-updates best-effort. Each sub-update can fail
// independently (rate limits, size limits); failures are collected and the
// rest still run. Record-store writes happen with the attempt regardless of
// the remote outcome.
func (i *Instance) UpdateProfile(ctx context.Context, up ProfileUpdate) []error {
	i.setState(StateSyncing)
	defer i.setState(StateReady)

	i.mu.RLock()
	conn := i.conn
	externalID := i.member.ExternalID
	i.mu.RUnlock()

	var errs []error
	fail := func(field string, err error) {
		errs = append(errs, fmt.Errorf("%s: %w", field, err))
	}

	if up.Tags != nil {
		if err := i.records.UpdateMemberTags(ctx, externalID, up.Tags); err != nil {
			fail("proxy tags", err)
		} else {
			i.mu.Lock()
			i.member.ProxyTags = up.Tags
			i.mu.Unlock()
		}
	}

	if up.Username != nil {
		if err := i.records.UpdateMemberName(ctx, externalID, *up.Username); err != nil {
			fail("username", err)
		}
		i.mu.Lock()
		i.member.Name = *up.Username
		i.mu.Unlock()
		if conn != nil {
			if err := i.limiter.Wait(ctx); err != nil {
				fail("username", err)
			} else if err := conn.SetUsername(ctx, *up.Username); err != nil {
				fail("username", err)
			}
		}
	}

	if up.AvatarURL != nil {
		if err := i.records.UpdateMemberAvatar(ctx, externalID, *up.AvatarURL); err != nil {
			fail("avatar", err)
		}
		i.mu.Lock()
		i.member.AvatarURL = *up.AvatarURL
		i.mu.Unlock()
		if conn != nil {
			if dataURI, err := fetchImageDataURI(ctx, *up.AvatarURL); err != nil {
				fail("avatar", err)
			} else if err := i.limiter.Wait(ctx); err != nil {
				fail("avatar", err)
			} else if err := conn.SetAvatar(ctx, dataURI); err != nil {
				fail("avatar", err)
			}
		}
	}

	if up.DisplayName != nil {
		if err := i.records.UpdateMemberDisplayName(ctx, externalID, *up.DisplayName); err != nil {
			fail("display name", err)
		}
		i.mu.Lock()
		i.member.DisplayName = *up.DisplayName
		i.mu.Unlock()
	}

	if up.Nickname != nil {
		nick := *up.Nickname
		if len([]rune(nick)) > 32 {
			fail("nickname", fmt.Errorf("must be 32 characters or fewer"))
		} else {
			if err := i.records.UpdateMemberNickname(ctx, externalID, nick); err != nil {
				fail("nickname", err)
			}
			i.mu.Lock()
			i.member.Nickname = nick
			i.mu.Unlock()
			if conn != nil {
				if err := conn.SetNickname(ctx, i.guildID, nick); err != nil {
					fail("nickname", err)
				}
			}
		}
	}

	if conn != nil {
		for _, roleID := range up.RoleIDs {
			if err := conn.AddRole(ctx, i.guildID, conn.AccountID(), roleID); err != nil {
				fail("role "+roleID, err)
			}
		}
	}
	return errs
}

// Close gracefully tears the session down, going offline first.
func (i *Instance) Close(ctx context.Context) {
	i.teardown(ctx)
	i.setState(StateClosed)
}

func (i *Instance) teardown(ctx context.Context) {
	i.mu.Lock()
	conn := i.conn
	i.conn = nil
	i.mu.Unlock()
	if conn == nil {
		return
	}
	if err := conn.SetPresence(ctx, gateway.PresenceOffline, ""); err != nil {
		i.logger.Debug("offline presence", slog.Any("error", err))
	}
	if err := conn.Close(ctx); err != nil {
		i.logger.Warn("close session", slog.Any("error", err))
	}
}

func (i *Instance) setState(state State) {
	i.mu.Lock()
	defer i.mu.Unlock()
	// Invalid states are terminal; only Close or a fresh Start escapes them.
	if (i.state == StateInvalidOwnerLeft || i.state == StateInvalidNotInGuild) && state != StateClosed {
		return
	}
	i.state = state
}

func (i *Instance) listeningTo() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.member.OwnerID
}

func fetchImageDataURI(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("avatar fetch status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(raw), nil
}
