package proxy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/chorusbot/chorus/internal/gateway"
	"github.com/chorusbot/chorus/internal/helper"
	"github.com/chorusbot/chorus/internal/store"
)

// Records is the slice of the identity record store the pipeline reads.
type Records interface {
	MembersByOwner(ctx context.Context, ownerID string, enabledOnly bool) ([]store.Member, error)
	EnabledMembers(ctx context.Context) ([]store.Member, error)
	MemberByAccountID(ctx context.Context, accountID string) (store.Member, error)
	User(ctx context.Context, id string) (store.User, error)
	SetAutoproxyTarget(ctx context.Context, userID, target string) error
}

// Deliverer performs proxied sends and edits with bounded retry.
type Deliverer interface {
	Deliver(ctx context.Context, req helper.SendRequest) bool
	Amend(ctx context.Context, req helper.EditRequest) bool
}

// Primary is the subset of the primary service connection the pipeline uses.
type Primary interface {
	gateway.Messenger
	AccountID() string
}

// Options configures the inbound pipeline.
type Options struct {
	CommandPrefix      string
	GuildID            string
	DeleteLogChannelID string
	DeleteLogUserID    string
}

// Handler is the single inbound message pipeline: resolve the member, deliver
// through the shared pipeline, delete the original, remember the correlation,
// forward stray pings, and clean the moderation delete log.
type Handler struct {
	records   Records
	deliverer Deliverer
	primary   Primary
	cache     *Cache
	opts      Options
	edits     *editSessions
	fetchFile func(ctx context.Context, att gateway.Attachment) (gateway.File, error)
	logger    *slog.Logger
}

// NewHandler creates the pipeline handler.
func NewHandler(log *slog.Logger, records Records, deliverer Deliverer, primary Primary, cache *Cache, opts Options) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		records:   records,
		deliverer: deliverer,
		primary:   primary,
		cache:     cache,
		opts:      opts,
		edits:     newEditSessions(),
		fetchFile: downloadAttachment,
		logger:    log.With(slog.String("service", "proxy")),
	}
}

// HandleMessage runs one inbound message through the pipeline.
func (h *Handler) HandleMessage(ctx context.Context, msg gateway.Message) {
	if msg.AuthorID == "" || msg.AuthorID == h.primary.AccountID() {
		return
	}
	// Leave command invocations to the command layer.
	if strings.HasPrefix(msg.Content, h.opts.CommandPrefix) {
		return
	}
	if h.edits.active(msg.AuthorID) {
		h.completeEdit(ctx, msg)
		return
	}

	proxied := h.proxyPass(ctx, msg)
	if !proxied {
		h.forwardPings(ctx, msg)
	}
	h.cleanDeleteLog(ctx, msg)
}

// proxyPass resolves and delivers the message under a member identity.
// Returns true only when the original message was replaced.
func (h *Handler) proxyPass(ctx context.Context, msg gateway.Message) bool {
	members, err := h.records.MembersByOwner(ctx, msg.AuthorID, true)
	if err != nil {
		h.logger.Error("load members", slog.Any("error", err))
		return false
	}
	if len(members) == 0 {
		return false
	}
	user, err := h.records.User(ctx, msg.AuthorID)
	if err != nil && err != store.ErrUserNotFound {
		h.logger.Error("load user", slog.Any("error", err))
	}

	match, ok := Resolve(msg.Content, members, user)
	if !ok {
		return false
	}
	log := h.logger.With(
		slog.String("member", match.Member.ExternalID),
		slog.String("channel_id", msg.ChannelID))

	if match.LatchUpdate {
		if err := h.records.SetAutoproxyTarget(ctx, msg.AuthorID, match.Member.ExternalID); err != nil {
			log.Warn("latch update", slog.Any("error", err))
		}
	}

	req := helper.SendRequest{
		ChannelID:     msg.ChannelID,
		GuildID:       msg.GuildID,
		Content:       match.Body,
		Credential:    match.Member.Credential,
		Reference:     msg.Reference,
		MentionAuthor: len(msg.Mentions) > 0,
	}
	for _, att := range msg.Attachments {
		file, err := h.fetchFile(ctx, att)
		if err != nil {
			log.Warn("attachment fetch", slog.String("file", att.Filename), slog.Any("error", err))
			continue
		}
		req.Files = append(req.Files, file)
	}

	if !h.deliverer.Deliver(ctx, req) {
		// The original message stays so the author keeps their text.
		log.Error("proxy delivery abandoned", slog.String("message_id", msg.ID))
		return false
	}

	if err := h.primary.Delete(ctx, msg.ChannelID, msg.ID); err != nil {
		log.Warn("delete original", slog.Any("error", err))
	}
	h.cache.Add(msg.ID)
	log.Debug("message proxied", slog.String("message_id", msg.ID))
	return true
}

// forwardPings notifies a member's owner when someone else mentions the
// member account directly. Suppressed for proxied messages to avoid a double
// ping from the original and the repost.
func (h *Handler) forwardPings(ctx context.Context, msg gateway.Message) {
	if len(msg.Mentions) == 0 {
		return
	}
	all, err := h.records.EnabledMembers(ctx)
	if err != nil {
		h.logger.Error("load enabled members", slog.Any("error", err))
		return
	}
	for _, member := range all {
		if member.UserID == "" || !msg.MentionsAccount(member.UserID) {
			continue
		}
		if msg.AuthorID == member.OwnerID || msg.AuthorID == member.UserID {
			continue
		}
		if msg.AuthorBot {
			// A mention sent by another member instance only forwards when the
			// target is outside the author's own system.
			author, err := h.records.MemberByAccountID(ctx, msg.AuthorID)
			if err != nil || author.OwnerID == member.OwnerID {
				continue
			}
		}
		notice := gateway.Notice{
			Description: fmt.Sprintf("Originally to <@%s>\n[Highlight Message](%s)", member.UserID, msg.JumpURL()),
			AuthorName:  "From " + msg.AuthorName,
			AuthorIcon:  msg.AuthorIcon,
		}
		content := fmt.Sprintf("<@%s>", member.OwnerID)
		if _, err := h.primary.SendNotice(ctx, msg.ChannelID, content, notice); err != nil {
			h.logger.Warn("ping forward", slog.Any("error", err))
		}
		h.logger.Debug("ping forwarded",
			slog.String("member", member.ExternalID), slog.String("owner_id", member.OwnerID))
		break
	}
}

// cleanDeleteLog suppresses moderation-log noise caused by deleting the
// original message: a log entry referencing a recently proxied message id is
// itself deleted, unless it also references an enabled member account (then
// it is a legitimate entry about the member).
func (h *Handler) cleanDeleteLog(ctx context.Context, msg gateway.Message) {
	if h.opts.DeleteLogChannelID == "" && h.opts.DeleteLogUserID == "" {
		return
	}
	if msg.ChannelID != h.opts.DeleteLogChannelID && msg.AuthorID != h.opts.DeleteLogUserID {
		return
	}
	if len(msg.Embeds) == 0 {
		return
	}
	text := msg.Embeds[0]

	var memberIDs []string
	if members, err := h.records.EnabledMembers(ctx); err == nil {
		for _, m := range members {
			if m.UserID != "" {
				memberIDs = append(memberIDs, m.UserID)
			}
		}
	}

	for _, cached := range h.cache.Entries() {
		if !strings.Contains(text, cached) {
			continue
		}
		aboutMember := false
		for _, id := range memberIDs {
			if strings.Contains(text, id) {
				aboutMember = true
				break
			}
		}
		if aboutMember {
			continue
		}
		if err := h.primary.Delete(ctx, msg.ChannelID, msg.ID); err != nil {
			h.logger.Warn("delete log cleanup", slog.Any("error", err))
		} else {
			h.logger.Debug("delete log entry removed",
				slog.String("log_id", msg.ID), slog.String("was_about", cached))
		}
		return
	}
}

// HandleReaction implements the owner reaction flows on proxied messages:
// ❌ deletes the message, 📝 starts an edit session whose next message from
// the owner replaces the proxied content.
func (h *Handler) HandleReaction(ctx context.Context, r gateway.Reaction) {
	if r.Emoji != "❌" && r.Emoji != "📝" {
		return
	}
	msg, err := h.primary.FetchMessage(ctx, r.ChannelID, r.MessageID)
	if err != nil {
		return
	}
	member, err := h.records.MemberByAccountID(ctx, msg.AuthorID)
	if err != nil || !member.Enabled || member.OwnerID != r.UserID {
		return
	}

	switch r.Emoji {
	case "❌":
		if err := h.primary.Delete(ctx, r.ChannelID, r.MessageID); err != nil {
			h.logger.Warn("reaction delete", slog.Any("error", err))
		}
	case "📝":
		notice := gateway.Notice{
			Description: fmt.Sprintf("You are now editing a [message](%s)\nYour next message will replace its contents.", msg.JumpURL()),
			Title:       `Type "cancel" to cancel the edit`,
		}
		content := fmt.Sprintf("<@%s>", r.UserID)
		instructionsID, err := h.primary.SendNotice(ctx, r.ChannelID, content, notice)
		if err != nil {
			h.logger.Warn("edit instructions", slog.Any("error", err))
		}
		h.edits.begin(r.UserID, &editState{
			ChannelID:      r.ChannelID,
			MessageID:      r.MessageID,
			Credential:     member.Credential,
			InstructionsID: instructionsID,
		}, func(state *editState) {
			cleanupCtx, cancel := context.WithTimeout(context.Background(), editSessionTTL)
			defer cancel()
			if state.InstructionsID != "" {
				_ = h.primary.Delete(cleanupCtx, state.ChannelID, state.InstructionsID)
			}
		})
	}
}

// completeEdit consumes the owner's next message during an edit session.
func (h *Handler) completeEdit(ctx context.Context, msg gateway.Message) {
	state, ok := h.edits.take(msg.AuthorID)
	if !ok {
		return
	}
	if !strings.EqualFold(strings.TrimSpace(msg.Content), "cancel") {
		if !h.deliverer.Amend(ctx, helper.EditRequest{
			ChannelID:  state.ChannelID,
			MessageID:  state.MessageID,
			Content:    msg.Content,
			Credential: state.Credential,
		}) {
			h.logger.Error("proxied edit abandoned", slog.String("message_id", state.MessageID))
		}
	}
	if state.InstructionsID != "" {
		_ = h.primary.Delete(ctx, state.ChannelID, state.InstructionsID)
	}
	if err := h.primary.Delete(ctx, msg.ChannelID, msg.ID); err != nil {
		h.logger.Warn("delete edit message", slog.Any("error", err))
	}
}

func downloadAttachment(ctx context.Context, att gateway.Attachment) (gateway.File, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.URL, nil)
	if err != nil {
		return gateway.File{}, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return gateway.File{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return gateway.File{}, fmt.Errorf("attachment status %d", resp.StatusCode)
	}
	// Buffered in full so the delivery can be retried; a half-read stream
	// cannot be replayed.
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return gateway.File{}, fmt.Errorf("read attachment: %w", err)
	}
	return gateway.File{
		Name:        att.Filename,
		ContentType: att.ContentType,
		Data:        data,
	}, nil
}
