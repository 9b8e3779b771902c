package orchestrator

import (
	"context"
	"errors"
	"sync"

	"github.com/chorusbot/chorus/internal/gateway"
)

// ErrNotConnected is returned when the primary connection is not up yet.
var ErrNotConnected = errors.New("primary connection not open")

// PrimaryRef is a late-bound handle to the primary service connection. It is
// constructed before the connection exists and bound once Start dials it, so
// components built at wire-up time can hold a stable reference.
type PrimaryRef struct {
	mu   sync.RWMutex
	conn gateway.Conn
}

// NewPrimaryRef creates an unbound handle.
func NewPrimaryRef() *PrimaryRef {
	return &PrimaryRef{}
}

// Set binds the live connection.
func (p *PrimaryRef) Set(conn gateway.Conn) {
	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()
}

func (p *PrimaryRef) get() (gateway.Conn, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.conn == nil {
		return nil, ErrNotConnected
	}
	return p.conn, nil
}

// AccountID returns the primary account id, or empty before binding.
func (p *PrimaryRef) AccountID() string {
	conn, err := p.get()
	if err != nil {
		return ""
	}
	return conn.AccountID()
}

// Send delegates to the bound connection.
func (p *PrimaryRef) Send(ctx context.Context, channelID string, opts gateway.SendOptions) (string, error) {
	conn, err := p.get()
	if err != nil {
		return "", err
	}
	return conn.Send(ctx, channelID, opts)
}

// SendNotice delegates to the bound connection.
func (p *PrimaryRef) SendNotice(ctx context.Context, channelID, content string, notice gateway.Notice) (string, error) {
	conn, err := p.get()
	if err != nil {
		return "", err
	}
	return conn.SendNotice(ctx, channelID, content, notice)
}

// Edit delegates to the bound connection.
func (p *PrimaryRef) Edit(ctx context.Context, channelID, messageID, content string) error {
	conn, err := p.get()
	if err != nil {
		return err
	}
	return conn.Edit(ctx, channelID, messageID, content)
}

// Delete delegates to the bound connection.
func (p *PrimaryRef) Delete(ctx context.Context, channelID, messageID string) error {
	conn, err := p.get()
	if err != nil {
		return err
	}
	return conn.Delete(ctx, channelID, messageID)
}

// FetchMessage delegates to the bound connection.
func (p *PrimaryRef) FetchMessage(ctx context.Context, channelID, messageID string) (gateway.Message, error) {
	conn, err := p.get()
	if err != nil {
		return gateway.Message{}, err
	}
	return conn.FetchMessage(ctx, channelID, messageID)
}

// GuildMember delegates to the bound connection.
func (p *PrimaryRef) GuildMember(ctx context.Context, guildID, accountID string) (gateway.GuildMember, error) {
	conn, err := p.get()
	if err != nil {
		return gateway.GuildMember{}, err
	}
	return conn.GuildMember(ctx, guildID, accountID)
}
