// Package gateway abstracts the chat-platform client so proxy, session, and
// sync logic can be exercised against fakes. Exactly one credential is active
// per physical connection.
package gateway

import "context"

// Messenger sends, edits, deletes, and fetches channel messages.
type Messenger interface {
	Send(ctx context.Context, channelID string, opts SendOptions) (messageID string, err error)
	SendNotice(ctx context.Context, channelID, content string, notice Notice) (messageID string, err error)
	Edit(ctx context.Context, channelID, messageID, content string) error
	Delete(ctx context.Context, channelID, messageID string) error
	FetchMessage(ctx context.Context, channelID, messageID string) (Message, error)
}

// Presence changes the connection's presence state.
type Presence interface {
	SetPresence(ctx context.Context, status PresenceStatus, listeningTo string) error
}

// Membership answers guild membership queries.
type Membership interface {
	GuildMember(ctx context.Context, guildID, userID string) (GuildMember, error)
}

// Profile mutates the connected account's own presentation.
type Profile interface {
	SetUsername(ctx context.Context, username string) error
	SetAvatar(ctx context.Context, avatarDataURI string) error
	SetNickname(ctx context.Context, guildID, nickname string) error
	AddRole(ctx context.Context, guildID, userID, roleID string) error
}

// Emotes manages guild custom emotes (rehosting).
type Emotes interface {
	ListEmotes(ctx context.Context, guildID string) ([]Emote, error)
	CreateEmote(ctx context.Context, guildID, name, imageDataURI string) (Emote, error)
	DeleteEmote(ctx context.Context, guildID, emoteID string) error
}

// TokenSwapper temporarily re-authenticates the connection's REST credential.
// The returned restore function must be called on every exit path; callers
// serialize swaps themselves (the helper's process-wide lock).
type TokenSwapper interface {
	UseToken(credential string) (restore func())
}

// Conn is one live authenticated connection to the platform.
type Conn interface {
	Messenger
	Presence
	Membership
	Profile
	Emotes
	TokenSwapper

	Open(ctx context.Context) error
	Close(ctx context.Context) error
	// AccountID returns the platform-assigned account id; empty before Open.
	AccountID() string
	// OnMessage registers an inbound message handler. Only meaningful on the
	// primary connection.
	OnMessage(fn func(Message))
	// OnReaction registers an inbound reaction handler (emoji name keyed).
	OnReaction(fn func(Reaction))
}

// Reaction is an emoji reaction to a message.
type Reaction struct {
	MessageID string
	ChannelID string
	GuildID   string
	UserID    string
	Emoji     string
}

// Dialer creates connections from pool credentials.
type Dialer interface {
	Dial(credential string) (Conn, error)
}
