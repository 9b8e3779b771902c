// Package admin is the operational surface: registering identities, managing
// the credential pool, and triggering syncs.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/chorusbot/chorus/internal/pluralkit"
	"github.com/chorusbot/chorus/internal/store"
	"github.com/chorusbot/chorus/internal/syncer"
)

var (
	// ErrIncompleteSource is returned when the identity source record lacks
	// the fields a registration needs.
	ErrIncompleteSource = errors.New("identity source record is missing a name")

	// ErrInviteNotFound is returned for unknown or already-redeemed invites.
	ErrInviteNotFound = errors.New("invite not found")
)

// Source looks up canonical identity data.
type Source interface {
	Member(ctx context.Context, id string) (pluralkit.Member, error)
	System(ctx context.Context, id string) (pluralkit.System, error)
	SystemMembers(ctx context.Context, systemID string) ([]pluralkit.Member, error)
}

// Records is the store surface the registrar drives.
type Records interface {
	Member(ctx context.Context, externalID string) (store.Member, error)
	RegisterMember(ctx context.Context, m store.Member) error
	SetMemberEnabled(ctx context.Context, externalID string, enabled bool) error
	DeleteMember(ctx context.Context, externalID string) error
	FreeCredential(ctx context.Context) (store.Credential, error)
	AddCredential(ctx context.Context, token string) error
	ReleaseCredential(ctx context.Context, token string) error
	Credentials(ctx context.Context) ([]store.Credential, error)
	FreeCredentialCount(ctx context.Context) (int, error)
}

// Sessions brings member sessions up and down.
type Sessions interface {
	StartMember(ctx context.Context, member store.Member) error
	StopMember(ctx context.Context, externalID string)
}

// Syncer runs reconciliation passes.
type Syncer interface {
	SyncAll(ctx context.Context) (syncer.Report, error)
	SyncMember(ctx context.Context, externalID string) (syncer.Report, error)
}

// Registrar implements the admin operations.
type Registrar struct {
	source   Source
	records  Records
	sessions Sessions
	syncer   Syncer
	logger   *slog.Logger

	inviteMu sync.Mutex
	invites  map[string]string
}

// NewRegistrar creates the admin registrar.
func NewRegistrar(log *slog.Logger, source Source, records Records, sessions Sessions, sync Syncer) *Registrar {
	if log == nil {
		log = slog.Default()
	}
	return &Registrar{
		source:   source,
		records:  records,
		sessions: sessions,
		syncer:   sync,
		invites:  make(map[string]string),
		logger:   log.With(slog.String("service", "admin")),
	}
}

// Register brings a new identity under management. The canonical record must
// exist and carry a name, and a free credential must be available, before any
// write happens. The initial profile sync runs best-effort; its errors are
// returned in the report, not as a registration failure.
func (r *Registrar) Register(ctx context.Context, externalID, ownerID string) (store.Member, syncer.Report, error) {
	canonical, err := r.source.Member(ctx, externalID)
	if err != nil {
		return store.Member{}, syncer.Report{}, fmt.Errorf("look up identity %q: %w", externalID, err)
	}
	if canonical.Name == "" {
		return store.Member{}, syncer.Report{}, ErrIncompleteSource
	}

	free, err := r.records.FreeCredentialCount(ctx)
	if err != nil {
		return store.Member{}, syncer.Report{}, fmt.Errorf("count free credentials: %w", err)
	}
	if free == 0 {
		return store.Member{}, syncer.Report{}, store.ErrNoFreeCredential
	}

	cred, err := r.records.FreeCredential(ctx)
	if err != nil {
		return store.Member{}, syncer.Report{}, fmt.Errorf("pick free credential: %w", err)
	}

	tags := make([]store.Tag, 0, len(canonical.ProxyTags))
	for _, t := range canonical.ProxyTags {
		tags = append(tags, store.Tag{Prefix: t.Prefix, Suffix: t.Suffix})
	}
	member := store.Member{
		ExternalID:  externalID,
		Credential:  cred.Token,
		OwnerID:     ownerID,
		Name:        canonical.Name,
		DisplayName: canonical.DisplayName,
		AvatarURL:   canonical.AvatarURL,
		ProxyTags:   tags,
		KeepProxy:   canonical.KeepProxy,
		Enabled:     true,
	}
	if err := r.records.RegisterMember(ctx, member); err != nil {
		return store.Member{}, syncer.Report{}, err
	}
	r.logger.Info("member registered",
		slog.String("member", externalID), slog.String("owner", ownerID))

	if err := r.sessions.StartMember(ctx, member); err != nil {
		r.logger.Error("start registered member session",
			slog.String("member", externalID), slog.Any("error", err))
		return member, syncer.Report{}, nil
	}

	report, err := r.syncer.SyncMember(ctx, externalID)
	if err != nil {
		r.logger.Warn("initial sync",
			slog.String("member", externalID), slog.Any("error", err))
	}
	return member, report, nil
}

// SystemRegistration is the outcome of one member during a whole-system
// registration.
type SystemRegistration struct {
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// Registration statuses.
const (
	StatusRegistered = "registered"
	StatusSkipped    = "skipped"
	StatusFailed     = "failed"
)

// RegisterSystem brings every member of an upstream system under management.
// Already-registered members are skipped; an exhausted credential pool stops
// the run, leaving the remaining members unregistered.
func (r *Registrar) RegisterSystem(ctx context.Context, systemID, ownerID string) ([]SystemRegistration, error) {
	system, err := r.source.System(ctx, systemID)
	if err != nil {
		return nil, fmt.Errorf("look up system %q: %w", systemID, err)
	}
	members, err := r.source.SystemMembers(ctx, systemID)
	if err != nil {
		return nil, fmt.Errorf("list system members: %w", err)
	}

	results := make([]SystemRegistration, 0, len(members))
	for _, m := range members {
		if _, err := r.records.Member(ctx, m.ID); err == nil {
			results = append(results, SystemRegistration{ExternalID: m.ID, Status: StatusSkipped})
			continue
		}
		if _, _, err := r.Register(ctx, m.ID, ownerID); err != nil {
			results = append(results, SystemRegistration{
				ExternalID: m.ID, Status: StatusFailed, Error: err.Error()})
			if errors.Is(err, store.ErrNoFreeCredential) {
				break
			}
			continue
		}
		results = append(results, SystemRegistration{ExternalID: m.ID, Status: StatusRegistered})
	}
	r.logger.Info("system registered",
		slog.String("system", system.ID), slog.String("name", system.Name),
		slog.Int("members", len(results)))
	return results, nil
}

// Suspend disables a member and closes its session. The credential stays
// marked used.
func (r *Registrar) Suspend(ctx context.Context, externalID string) error {
	if err := r.records.SetMemberEnabled(ctx, externalID, false); err != nil {
		return err
	}
	r.sessions.StopMember(ctx, externalID)
	r.logger.Info("member suspended", slog.String("member", externalID))
	return nil
}

// Reenable re-enables a suspended member and starts a fresh session.
func (r *Registrar) Reenable(ctx context.Context, externalID string) error {
	if err := r.records.SetMemberEnabled(ctx, externalID, true); err != nil {
		return err
	}
	member, err := r.records.Member(ctx, externalID)
	if err != nil {
		return err
	}
	if err := r.sessions.StartMember(ctx, member); err != nil {
		return fmt.Errorf("start member session: %w", err)
	}
	r.logger.Info("member re-enabled", slog.String("member", externalID))
	return nil
}

// Disable permanently removes a member. The row is hard-deleted and the
// credential stays retired; recycling a credential is a manual operation.
func (r *Registrar) Disable(ctx context.Context, externalID string) error {
	r.sessions.StopMember(ctx, externalID)
	if err := r.records.DeleteMember(ctx, externalID); err != nil {
		return err
	}
	r.logger.Info("member disabled", slog.String("member", externalID))
	return nil
}

// AddCredential adds a token to the credential pool.
func (r *Registrar) AddCredential(ctx context.Context, token string) error {
	if err := r.records.AddCredential(ctx, token); err != nil {
		return err
	}
	r.logger.Info("credential added")
	return nil
}

// ReleaseCredential marks a retired token free again. Manual recycling only;
// member lifecycle never calls this.
func (r *Registrar) ReleaseCredential(ctx context.Context, token string) error {
	if err := r.records.ReleaseCredential(ctx, token); err != nil {
		return err
	}
	r.logger.Info("credential released")
	return nil
}

// Credentials lists the pool.
func (r *Registrar) Credentials(ctx context.Context) ([]store.Credential, error) {
	return r.records.Credentials(ctx)
}

// TriggerSync runs a full reconciliation pass.
func (r *Registrar) TriggerSync(ctx context.Context) (syncer.Report, error) {
	return r.syncer.SyncAll(ctx)
}

// CreateInvite issues a single-use invite code bound to a member. Redeeming
// the code identifies which member's account is being brought into the guild.
func (r *Registrar) CreateInvite(ctx context.Context, externalID string) (string, error) {
	if _, err := r.records.Member(ctx, externalID); err != nil {
		return "", err
	}
	code := uuid.NewString()
	r.inviteMu.Lock()
	r.invites[code] = externalID
	r.inviteMu.Unlock()
	return code, nil
}

// RedeemInvite consumes an invite code, returning the member it was issued
// for. A code redeems at most once.
func (r *Registrar) RedeemInvite(code string) (string, error) {
	r.inviteMu.Lock()
	defer r.inviteMu.Unlock()
	externalID, ok := r.invites[code]
	if !ok {
		return "", ErrInviteNotFound
	}
	delete(r.invites, code)
	return externalID, nil
}
