// Package helper implements the shared proxy pipeline: one extra platform
// connection that briefly re-authenticates as a member's credential to send
// or edit a message, then reverts. A single process-wide lock serializes
// credential swaps; the underlying connection has exactly one active
// credential at a time.
package helper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/chorusbot/chorus/internal/gateway"
)

// Conn is the subset of the platform connection the pipeline uses.
type Conn interface {
	gateway.Messenger
	gateway.TokenSwapper
	gateway.Emotes
	gateway.Presence

	Open(ctx context.Context) error
	Close(ctx context.Context) error
}

// DialFunc creates a fresh pipeline connection from a credential.
type DialFunc func(credential string) (Conn, error)

// SendRequest is one proxied send.
type SendRequest struct {
	ChannelID     string
	GuildID       string
	Content       string
	Credential    string
	Files         []gateway.File
	Reference     *gateway.MessageRef
	MentionAuthor bool
}

// EditRequest is one proxied edit of an existing message.
type EditRequest struct {
	ChannelID  string
	MessageID  string
	Content    string
	Credential string
}

// Helper is the shared proxy pipeline.
type Helper struct {
	dial       DialFunc
	credential string
	logger     *slog.Logger

	emoteTimeout time.Duration
	rehost       *rehoster

	// mu serializes credential swaps across the whole process. This is a
	// correctness requirement, not a throughput choice.
	mu   sync.Mutex
	conn Conn
}

// New creates the pipeline. Start must be called before SendAs/EditAs.
func New(log *slog.Logger, dial DialFunc, serviceCredential string, emoteTimeout time.Duration) *Helper {
	if log == nil {
		log = slog.Default()
	}
	if emoteTimeout <= 0 {
		emoteTimeout = 3 * time.Second
	}
	h := &Helper{
		dial:         dial,
		credential:   serviceCredential,
		logger:       log.With(slog.String("service", "helper")),
		emoteTimeout: emoteTimeout,
	}
	h.rehost = &rehoster{logger: h.logger}
	return h
}

// Start connects the pipeline with its own service credential and goes
// invisible; the pipeline never has a visible presence of its own.
func (h *Helper) Start(ctx context.Context) error {
	conn, err := h.dial(h.credential)
	if err != nil {
		return err
	}
	if err := conn.Open(ctx); err != nil {
		return err
	}
	if err := conn.SetPresence(ctx, gateway.PresenceInvisible, ""); err != nil {
		h.logger.Warn("helper presence", slog.Any("error", err))
	}

	h.mu.Lock()
	h.conn = conn
	h.mu.Unlock()
	h.logger.Info("helper pipeline ready")
	return nil
}

// Stop tears the pipeline connection down.
func (h *Helper) Stop(ctx context.Context) error {
	h.mu.Lock()
	conn := h.conn
	h.conn = nil
	h.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close(ctx)
}

// Reset logs the pipeline out, clears its connection state, and reconnects
// with the service credential. Called by the supervisor between retries.
func (h *Helper) Reset(ctx context.Context) error {
	h.logger.Warn("resetting helper pipeline")
	if err := h.Stop(ctx); err != nil {
		h.logger.Debug("helper close during reset", slog.Any("error", err))
	}
	return h.Start(ctx)
}

// SendAs sends content into the channel under the member's credential.
// Returns false on any failure; the caller owns the retry decision.
func (h *Helper) SendAs(ctx context.Context, req SendRequest) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	conn := h.conn
	if conn == nil {
		h.logger.Error("helper send with no connection")
		return false
	}

	// Emote rehosting is best-effort and time-bounded; a failure degrades to
	// sending the original unresolved references.
	content, cleanup := h.rehost.rewrite(ctx, conn, req.GuildID, req.Content, h.emoteTimeout)
	defer cleanup(conn)

	lease := h.acquire(conn, req.Credential)
	defer lease.Release()

	_, err := conn.Send(ctx, req.ChannelID, gateway.SendOptions{
		Content:       content,
		Files:         req.Files,
		Reference:     req.Reference,
		MentionAuthor: req.MentionAuthor,
	})
	if err != nil {
		h.logger.Warn("helper send failed",
			slog.String("channel_id", req.ChannelID), slog.Any("error", err))
		return false
	}
	return true
}

// EditAs edits an existing message under the member's credential.
func (h *Helper) EditAs(ctx context.Context, req EditRequest) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	conn := h.conn
	if conn == nil {
		h.logger.Error("helper edit with no connection")
		return false
	}

	lease := h.acquire(conn, req.Credential)
	defer lease.Release()

	if err := conn.Edit(ctx, req.ChannelID, req.MessageID, req.Content); err != nil {
		h.logger.Warn("helper edit failed",
			slog.String("message_id", req.MessageID), slog.Any("error", err))
		return false
	}
	return true
}

// lease guards a credential swap. Release restores the pipeline's own
// credential and must run on every exit path.
type lease struct {
	restore func()
	once    sync.Once
}

// Release reverts the connection to the pipeline's own credential.
func (l *lease) Release() {
	l.once.Do(l.restore)
}

// acquire swaps the member credential in. Callers must hold h.mu.
func (h *Helper) acquire(conn Conn, credential string) *lease {
	return &lease{restore: conn.UseToken(credential)}
}
