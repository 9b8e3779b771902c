package gateway

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// DiscordDialer creates discordgo-backed connections.
type DiscordDialer struct {
	logger *slog.Logger
}

// NewDiscordDialer creates a dialer for the Discord gateway.
func NewDiscordDialer(log *slog.Logger) *DiscordDialer {
	if log == nil {
		log = slog.Default()
	}
	return &DiscordDialer{logger: log.With(slog.String("component", "gateway"))}
}

// Dial prepares a connection authenticated with the given bot credential.
// The websocket is not opened until Open is called.
func (d *DiscordDialer) Dial(credential string) (Conn, error) {
	session, err := discordgo.New("Bot " + credential)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsAll
	session.StateEnabled = true
	return &discordConn{
		session: session,
		token:   session.Token,
		logger:  d.logger,
	}, nil
}

type discordConn struct {
	session *discordgo.Session
	token   string
	logger  *slog.Logger

	mu        sync.RWMutex
	accountID string
}

func (c *discordConn) Open(ctx context.Context) error {
	ready := make(chan struct{})
	var once sync.Once
	remove := c.session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		c.mu.Lock()
		c.accountID = r.User.ID
		c.mu.Unlock()
		once.Do(func() { close(ready) })
	})
	defer remove()

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		_ = c.session.Close()
		return ctx.Err()
	}
}

func (c *discordConn) Close(_ context.Context) error {
	return c.session.Close()
}

func (c *discordConn) AccountID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accountID
}

func (c *discordConn) Send(ctx context.Context, channelID string, opts SendOptions) (string, error) {
	data := &discordgo.MessageSend{Content: opts.Content}
	for _, f := range opts.Files {
		data.Files = append(data.Files, &discordgo.File{
			Name:        f.Name,
			ContentType: f.ContentType,
			Reader:      bytes.NewReader(f.Data),
		})
	}
	if opts.Reference != nil {
		data.Reference = &discordgo.MessageReference{
			MessageID: opts.Reference.MessageID,
			ChannelID: opts.Reference.ChannelID,
			GuildID:   opts.Reference.GuildID,
		}
		data.AllowedMentions = &discordgo.MessageAllowedMentions{
			Parse:       []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeUsers, discordgo.AllowedMentionTypeRoles, discordgo.AllowedMentionTypeEveryone},
			RepliedUser: opts.MentionAuthor,
		}
	}
	msg, err := c.session.ChannelMessageSendComplex(channelID, data, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (c *discordConn) SendNotice(ctx context.Context, channelID, content string, notice Notice) (string, error) {
	embed := &discordgo.MessageEmbed{
		Title:       notice.Title,
		Description: notice.Description,
	}
	if notice.AuthorName != "" {
		embed.Author = &discordgo.MessageEmbedAuthor{
			Name:    notice.AuthorName,
			IconURL: notice.AuthorIcon,
		}
	}
	msg, err := c.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: content,
		Embeds:  []*discordgo.MessageEmbed{embed},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (c *discordConn) Edit(ctx context.Context, channelID, messageID, content string) error {
	_, err := c.session.ChannelMessageEdit(channelID, messageID, content, discordgo.WithContext(ctx))
	return err
}

func (c *discordConn) Delete(ctx context.Context, channelID, messageID string) error {
	return c.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx))
}

func (c *discordConn) FetchMessage(ctx context.Context, channelID, messageID string) (Message, error) {
	msg, err := c.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return Message{}, err
	}
	return fromDiscordMessage(msg), nil
}

func (c *discordConn) SetPresence(_ context.Context, status PresenceStatus, listeningTo string) error {
	data := discordgo.UpdateStatusData{Status: string(status)}
	if listeningTo != "" {
		data.Activities = []*discordgo.Activity{{
			Name: listeningTo,
			Type: discordgo.ActivityTypeListening,
		}}
	}
	return c.session.UpdateStatusComplex(data)
}

func (c *discordConn) GuildMember(ctx context.Context, guildID, userID string) (GuildMember, error) {
	member, err := c.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return GuildMember{}, err
	}
	gm := GuildMember{Nickname: member.Nick, RoleIDs: member.Roles}
	if member.User != nil {
		gm.UserID = member.User.ID
	}
	return gm, nil
}

func (c *discordConn) SetUsername(ctx context.Context, username string) error {
	_, err := c.session.UserUpdate(username, "", "", discordgo.WithContext(ctx))
	return err
}

func (c *discordConn) SetAvatar(ctx context.Context, avatarDataURI string) error {
	_, err := c.session.UserUpdate("", avatarDataURI, "", discordgo.WithContext(ctx))
	return err
}

func (c *discordConn) SetNickname(ctx context.Context, guildID, nickname string) error {
	return c.session.GuildMemberNickname(guildID, "@me", nickname, discordgo.WithContext(ctx))
}

func (c *discordConn) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	return c.session.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx))
}

func (c *discordConn) ListEmotes(ctx context.Context, guildID string) ([]Emote, error) {
	emojis, err := c.session.GuildEmojis(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	out := make([]Emote, 0, len(emojis))
	for _, e := range emojis {
		out = append(out, Emote{ID: e.ID, Name: e.Name, Animated: e.Animated})
	}
	return out, nil
}

func (c *discordConn) CreateEmote(ctx context.Context, guildID, name, imageDataURI string) (Emote, error) {
	emoji, err := c.session.GuildEmojiCreate(guildID, &discordgo.EmojiParams{
		Name:  name,
		Image: imageDataURI,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return Emote{}, err
	}
	return Emote{ID: emoji.ID, Name: emoji.Name, Animated: emoji.Animated}, nil
}

func (c *discordConn) DeleteEmote(ctx context.Context, guildID, emoteID string) error {
	return c.session.GuildEmojiDelete(guildID, emoteID, discordgo.WithContext(ctx))
}

// UseToken swaps the REST credential and returns a restore function. The
// websocket identity is untouched; only subsequent REST calls are affected.
func (c *discordConn) UseToken(credential string) (restore func()) {
	c.session.Token = "Bot " + credential
	return func() {
		c.session.Token = c.token
	}
}

func (c *discordConn) OnMessage(fn func(Message)) {
	c.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Message == nil {
			return
		}
		fn(fromDiscordMessage(m.Message))
	})
}

func (c *discordConn) OnReaction(fn func(Reaction)) {
	c.session.AddHandler(func(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
		fn(Reaction{
			MessageID: r.MessageID,
			ChannelID: r.ChannelID,
			GuildID:   r.GuildID,
			UserID:    r.UserID,
			Emoji:     r.Emoji.Name,
		})
	})
}

func fromDiscordMessage(msg *discordgo.Message) Message {
	out := Message{
		ID:        msg.ID,
		ChannelID: msg.ChannelID,
		GuildID:   msg.GuildID,
		Content:   msg.Content,
	}
	if msg.Author != nil {
		out.AuthorID = msg.Author.ID
		out.AuthorName = msg.Author.Username
		out.AuthorIcon = msg.Author.AvatarURL("")
		out.AuthorBot = msg.Author.Bot
	}
	for _, u := range msg.Mentions {
		out.Mentions = append(out.Mentions, u.ID)
	}
	for _, e := range msg.Embeds {
		out.Embeds = append(out.Embeds, e.Description)
	}
	for _, a := range msg.Attachments {
		out.Attachments = append(out.Attachments, Attachment{
			Filename:    a.Filename,
			URL:         a.URL,
			ContentType: a.ContentType,
		})
	}
	if msg.MessageReference != nil {
		out.Reference = &MessageRef{
			MessageID: msg.MessageReference.MessageID,
			ChannelID: msg.MessageReference.ChannelID,
			GuildID:   msg.MessageReference.GuildID,
		}
	}
	return out
}
