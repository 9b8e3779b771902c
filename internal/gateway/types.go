package gateway

// Message is a platform message normalized for the proxy pipeline.
type Message struct {
	ID          string
	ChannelID   string
	GuildID     string
	AuthorID    string
	AuthorName  string
	AuthorIcon  string
	AuthorBot   bool
	Content     string
	Mentions    []string
	Embeds      []string
	Attachments []Attachment
	Reference   *MessageRef
}

// MentionsAccount reports whether accountID appears in the message mentions.
func (m Message) MentionsAccount(accountID string) bool {
	for _, id := range m.Mentions {
		if id == accountID {
			return true
		}
	}
	return false
}

// JumpURL returns the in-client permalink for the message.
func (m Message) JumpURL() string {
	return "https://discord.com/channels/" + m.GuildID + "/" + m.ChannelID + "/" + m.ID
}

// Attachment is a file attached to an inbound message.
type Attachment struct {
	Filename    string
	URL         string
	ContentType string
}

// MessageRef points at an existing message (reply references).
type MessageRef struct {
	MessageID string
	ChannelID string
	GuildID   string
}

// File is outbound file content. The payload is held in memory so a send can
// be replayed on retry; a consumed stream would deliver empty files the
// second time around.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// SendOptions describes an outbound message.
type SendOptions struct {
	Content       string
	Files         []File
	Reference     *MessageRef
	MentionAuthor bool
}

// Notice is a formatted notification (ping forwarding, sync reports).
type Notice struct {
	Title       string
	Description string
	AuthorName  string
	AuthorIcon  string
}

// PresenceStatus is the coarse presence state of a connection.
type PresenceStatus string

// Presence states understood by the platform.
const (
	PresenceOnline    PresenceStatus = "online"
	PresenceInvisible PresenceStatus = "invisible"
	PresenceOffline   PresenceStatus = "offline"
)

// GuildMember is a membership query result.
type GuildMember struct {
	UserID   string
	Nickname string
	RoleIDs  []string
}

// Emote is a guild custom emote.
type Emote struct {
	ID       string
	Name     string
	Animated bool
}
