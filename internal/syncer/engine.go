// Package syncer reconciles member presentation data against the external
// identity source in bounded concurrent batches.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chorusbot/chorus/internal/pluralkit"
	"github.com/chorusbot/chorus/internal/session"
	"github.com/chorusbot/chorus/internal/store"
)

// ErrNoSession is reported for a member whose session is not running.
var ErrNoSession = errors.New("no running session for member")

// Source fetches canonical member data.
type Source interface {
	Member(ctx context.Context, id string) (pluralkit.Member, error)
}

// Records lists the members eligible for sync.
type Records interface {
	EnabledMembers(ctx context.Context) ([]store.Member, error)
	MembersByOwner(ctx context.Context, ownerID string, enabledOnly bool) ([]store.Member, error)
	Member(ctx context.Context, externalID string) (store.Member, error)
}

// Updater pushes a profile update through a running session.
type Updater interface {
	UpdateProfile(ctx context.Context, up session.ProfileUpdate) []error
}

// Sessions resolves running instances.
type Sessions interface {
	Get(externalID string) (Updater, bool)
}

// UnitResult is the outcome of syncing one member. Err is a unit-fatal
// failure (fetch timeout, not found, no session); FieldErrors are partial
// sub-update failures for an otherwise synced member.
type UnitResult struct {
	MemberID    string
	Err         error
	FieldErrors []error
}

// OK reports whether the unit fully succeeded.
func (r UnitResult) OK() bool {
	return r.Err == nil && len(r.FieldErrors) == 0
}

// MarshalJSON renders the errors as strings for API responses.
func (r UnitResult) MarshalJSON() ([]byte, error) {
	out := struct {
		MemberID    string   `json:"member_id"`
		Error       string   `json:"error,omitempty"`
		FieldErrors []string `json:"field_errors,omitempty"`
	}{MemberID: r.MemberID}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	for _, err := range r.FieldErrors {
		out.FieldErrors = append(out.FieldErrors, err.Error())
	}
	return json.Marshal(out)
}

// Report aggregates a sync run.
type Report struct {
	Results []UnitResult
}

// Failures returns the units that did not fully succeed.
func (r Report) Failures() []UnitResult {
	var failed []UnitResult
	for _, res := range r.Results {
		if !res.OK() {
			failed = append(failed, res)
		}
	}
	return failed
}

// Engine runs sync batches. Units within a batch are concurrent; batch N+1
// does not start until batch N completes, bounding peak external-call
// concurrency.
type Engine struct {
	source         Source
	records        Records
	sessions       Sessions
	batchSize      int
	unitTimeout    time.Duration
	defaultRoleIDs []string
	logger         *slog.Logger
}

// NewEngine creates a sync engine.
func NewEngine(log *slog.Logger, source Source, records Records, sessions Sessions, batchSize int, unitTimeout time.Duration, defaultRoleIDs []string) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if batchSize <= 0 {
		batchSize = 5
	}
	if unitTimeout <= 0 {
		unitTimeout = 10 * time.Second
	}
	return &Engine{
		source:         source,
		records:        records,
		sessions:       sessions,
		batchSize:      batchSize,
		unitTimeout:    unitTimeout,
		defaultRoleIDs: defaultRoleIDs,
		logger:         log.With(slog.String("service", "syncer")),
	}
}

// SyncAll reconciles every enabled member.
func (e *Engine) SyncAll(ctx context.Context) (Report, error) {
	members, err := e.records.EnabledMembers(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list members: %w", err)
	}
	return e.Sync(ctx, members), nil
}

// SyncOwner reconciles one owner's enabled members.
func (e *Engine) SyncOwner(ctx context.Context, ownerID string) (Report, error) {
	members, err := e.records.MembersByOwner(ctx, ownerID, true)
	if err != nil {
		return Report{}, fmt.Errorf("list members: %w", err)
	}
	return e.Sync(ctx, members), nil
}

// SyncMember reconciles a single member.
func (e *Engine) SyncMember(ctx context.Context, externalID string) (Report, error) {
	member, err := e.records.Member(ctx, externalID)
	if err != nil {
		return Report{}, err
	}
	return e.Sync(ctx, []store.Member{member}), nil
}

// Sync runs the given members through the batch pipeline.
func (e *Engine) Sync(ctx context.Context, members []store.Member) Report {
	report := Report{Results: make([]UnitResult, len(members))}

	for start := 0; start < len(members); start += e.batchSize {
		end := min(start+e.batchSize, len(members))
		g, batchCtx := errgroup.WithContext(ctx)
		for idx := start; idx < end; idx++ {
			idx := idx
			g.Go(func() error {
				report.Results[idx] = e.syncUnit(batchCtx, members[idx])
				return nil
			})
		}
		// Unit failures are reported per-unit; the group never errors.
		_ = g.Wait()
		if ctx.Err() != nil {
			break
		}
	}

	failed := len(report.Failures())
	e.logger.Info("sync complete",
		slog.Int("members", len(members)), slog.Int("failed", failed))
	return report
}

// syncUnit fetches canonical data for one member and pushes only the fields
// that differ. A timeout or not-found aborts this unit only.
func (e *Engine) syncUnit(ctx context.Context, member store.Member) UnitResult {
	result := UnitResult{MemberID: member.ExternalID}

	ctx, cancel := context.WithTimeout(ctx, e.unitTimeout)
	defer cancel()

	canonical, err := e.source.Member(ctx, member.ExternalID)
	if err != nil {
		result.Err = fmt.Errorf("fetch canonical member: %w", err)
		return result
	}

	inst, ok := e.sessions.Get(member.ExternalID)
	if !ok {
		result.Err = ErrNoSession
		return result
	}

	update := diff(member, canonical)
	update.RoleIDs = e.defaultRoleIDs
	result.FieldErrors = inst.UpdateProfile(ctx, update)
	return result
}

// diff computes the minimal profile update bringing member in line with the
// canonical record. Tags are always refreshed; the nickname falls back to the
// canonical display name, then name, when the owner has not set an override.
func diff(member store.Member, canonical pluralkit.Member) session.ProfileUpdate {
	var update session.ProfileUpdate

	tags := make([]store.Tag, 0, len(canonical.ProxyTags))
	for _, t := range canonical.ProxyTags {
		tags = append(tags, store.Tag{Prefix: t.Prefix, Suffix: t.Suffix})
	}
	update.Tags = tags

	if canonical.Name != "" && canonical.Name != member.Name {
		update.Username = &canonical.Name
	}
	if canonical.AvatarURL != "" && canonical.AvatarURL != member.AvatarURL {
		update.AvatarURL = &canonical.AvatarURL
	}
	if canonical.DisplayName != "" && canonical.DisplayName != member.DisplayName {
		update.DisplayName = &canonical.DisplayName
	}

	if member.Nickname != "" {
		update.Nickname = &member.Nickname
	} else {
		nick := canonical.DisplayName
		if nick == "" {
			nick = canonical.Name
		}
		if nick != "" {
			update.Nickname = &nick
		}
	}
	return update
}
