// Package orchestrator owns the runtime topology: the primary service
// connection, the shared helper pipeline, and one session per enabled member.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chorusbot/chorus/internal/gateway"
	"github.com/chorusbot/chorus/internal/helper"
	"github.com/chorusbot/chorus/internal/proxy"
	"github.com/chorusbot/chorus/internal/session"
	"github.com/chorusbot/chorus/internal/store"
)

// Records is the store surface the orchestrator needs at boot.
type Records interface {
	session.Records
	EnabledMembers(ctx context.Context) ([]store.Member, error)
}

// Orchestrator wires the primary connection to the inbound pipeline and
// manages member session lifecycles.
type Orchestrator struct {
	dialer   gateway.Dialer
	records  Records
	registry *session.Registry
	helper   *helper.Helper
	handler  *proxy.Handler
	ref      *PrimaryRef
	cred     string
	guildID  string
	logChan  string
	logger   *slog.Logger

	primary gateway.Conn
}

// New creates the orchestrator. Start connects everything and binds ref to
// the live primary connection. loggingChannelID, when set, receives
// operational notices (boot summary, session failures) in-platform.
func New(log *slog.Logger, dialer gateway.Dialer, records Records, registry *session.Registry, h *helper.Helper, handler *proxy.Handler, ref *PrimaryRef, serviceCredential, guildID, loggingChannelID string) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		dialer:   dialer,
		records:  records,
		registry: registry,
		helper:   h,
		handler:  handler,
		ref:      ref,
		cred:     serviceCredential,
		guildID:  guildID,
		logChan:  loggingChannelID,
		logger:   log.With(slog.String("service", "orchestrator")),
	}
}

// Start opens the primary connection, attaches the inbound pipeline, starts
// the helper, and brings up a session for every enabled member. A member
// session that fails to start is logged and skipped; the rest come up.
func (o *Orchestrator) Start(ctx context.Context) error {
	conn, err := o.dialer.Dial(o.cred)
	if err != nil {
		return fmt.Errorf("dial primary connection: %w", err)
	}
	if err := conn.Open(ctx); err != nil {
		return fmt.Errorf("open primary connection: %w", err)
	}
	o.primary = conn
	o.ref.Set(conn)

	conn.OnMessage(func(msg gateway.Message) {
		o.handler.HandleMessage(context.Background(), msg)
	})
	conn.OnReaction(func(re gateway.Reaction) {
		o.handler.HandleReaction(context.Background(), re)
	})

	if err := o.helper.Start(ctx); err != nil {
		return fmt.Errorf("start helper: %w", err)
	}

	members, err := o.records.EnabledMembers(ctx)
	if err != nil {
		return fmt.Errorf("list enabled members: %w", err)
	}
	var failed int
	for _, member := range members {
		if err := o.StartMember(ctx, member); err != nil {
			failed++
			o.logger.Error("start member session",
				slog.String("member", member.ExternalID), slog.Any("error", err))
			o.announce(ctx, fmt.Sprintf("failed to start session for member %s: %v", member.ExternalID, err))
		}
	}
	o.logger.Info("orchestrator started",
		slog.Int("sessions", o.registry.Len()),
		slog.String("account_id", conn.AccountID()))
	o.announce(ctx, fmt.Sprintf("started with %d member sessions (%d failed)", o.registry.Len(), failed))
	return nil
}

// announce posts an operational notice to the configured logging channel.
// Best effort; a delivery failure only logs.
func (o *Orchestrator) announce(ctx context.Context, content string) {
	if o.logChan == "" || o.primary == nil {
		return
	}
	if _, err := o.primary.Send(ctx, o.logChan, gateway.SendOptions{Content: content}); err != nil {
		o.logger.Warn("post logging-channel notice", slog.Any("error", err))
	}
}

// StartMember brings up a session for one member and registers it. An
// existing session for the member is closed first.
func (o *Orchestrator) StartMember(ctx context.Context, member store.Member) error {
	o.StopMember(ctx, member.ExternalID)

	inst := session.NewInstance(o.logger, o.dialSession, o.records, o.ref, o.guildID, member)
	if err := inst.Start(ctx); err != nil {
		return err
	}
	o.registry.Add(inst)
	return nil
}

// StopMember closes and deregisters a member's session if one is running.
func (o *Orchestrator) StopMember(ctx context.Context, externalID string) {
	if inst, ok := o.registry.Remove(externalID); ok {
		inst.Close(ctx)
	}
}

// Stop tears everything down: member sessions, the helper, then the primary
// connection.
func (o *Orchestrator) Stop(ctx context.Context) {
	o.registry.Each(func(inst *session.Instance) {
		o.StopMember(ctx, inst.Member().ExternalID)
	})
	if err := o.helper.Stop(ctx); err != nil {
		o.logger.Warn("stop helper", slog.Any("error", err))
	}
	if o.primary != nil {
		if err := o.primary.Close(ctx); err != nil {
			o.logger.Warn("close primary connection", slog.Any("error", err))
		}
	}
	o.logger.Info("orchestrator stopped")
}

func (o *Orchestrator) dialSession(credential string) (session.Conn, error) {
	return o.dialer.Dial(credential)
}
