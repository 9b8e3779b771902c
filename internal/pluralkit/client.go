// Package pluralkit is a client for the external identity source of record.
package pluralkit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chorusbot/chorus/internal/config"
)

// ErrNotFound is returned when the identity source has no such system or member.
var ErrNotFound = errors.New("pluralkit: not found")

// ProxyTag is a prefix/suffix pair as stored upstream.
type ProxyTag struct {
	Prefix string `json:"prefix"`
	Suffix string `json:"suffix"`
}

// Member is the canonical presentation data for one system member.
type Member struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	DisplayName string     `json:"display_name"`
	AvatarURL   string     `json:"avatar_url"`
	ProxyTags   []ProxyTag `json:"proxy_tags"`
	KeepProxy   bool       `json:"keep_proxy"`
}

// System is a collection of members sharing one upstream account.
type System struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Tag  string `json:"tag"`
}

// Client talks to the identity source REST API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a client with the configured base URL and timeout.
func NewClient(log *slog.Logger, cfg config.PluralKitConfig) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout()},
		logger:  log.With(slog.String("service", "pluralkit")),
	}
}

// Member fetches one member by its upstream id.
func (c *Client) Member(ctx context.Context, id string) (Member, error) {
	var member Member
	if err := c.get(ctx, "/members/"+url.PathEscape(strings.TrimSpace(id)), &member); err != nil {
		return Member{}, err
	}
	return member, nil
}

// System fetches a system by id.
func (c *Client) System(ctx context.Context, id string) (System, error) {
	var system System
	if err := c.get(ctx, "/systems/"+url.PathEscape(strings.TrimSpace(id)), &system); err != nil {
		return System{}, err
	}
	return system, nil
}

// SystemMembers fetches all members of a system.
func (c *Client) SystemMembers(ctx context.Context, systemID string) ([]Member, error) {
	var members []Member
	path := "/systems/" + url.PathEscape(strings.TrimSpace(systemID)) + "/members"
	if err := c.get(ctx, path, &members); err != nil {
		return nil, err
	}
	return members, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("pluralkit request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("pluralkit fetch %s: %w", path, err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()
	c.logger.Debug("pluralkit fetch",
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("latency", time.Since(start)))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 400:
		return fmt.Errorf("pluralkit fetch %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("pluralkit decode %s: %w", path, err)
	}
	return nil
}
