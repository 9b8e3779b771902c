package store

import "time"

// Tag is a prefix/suffix pair marking a message as intended for a member.
// Either side may be empty; the empty pair matches every message.
type Tag struct {
	Prefix string `json:"prefix"`
	Suffix string `json:"suffix"`
}

// Wrap re-applies the tag around body.
func (t Tag) Wrap(body string) string {
	return t.Prefix + body + t.Suffix
}

// Member is one system member: a bot identity with its own credential and
// presentation, owned by a human account.
type Member struct {
	ExternalID  string    `json:"external_id"`
	Credential  string    `json:"-"`
	UserID      string    `json:"user_id"`
	OwnerID     string    `json:"owner_id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Nickname    string    `json:"nickname,omitempty"`
	ProxyTags   []Tag     `json:"proxy_tags"`
	KeepProxy   bool      `json:"keep_proxy"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AutoproxyMode selects how untagged messages are attributed.
type AutoproxyMode string

const (
	// AutoproxyNone disables autoproxy; untagged messages are left alone.
	AutoproxyNone AutoproxyMode = "none"
	// AutoproxyLatch proxies untagged messages as the last tag-matched member.
	AutoproxyLatch AutoproxyMode = "latch"
	// AutoproxyMember proxies untagged messages as a fixed member.
	AutoproxyMember AutoproxyMode = "member"
)

// User is a human account owning zero or more members.
type User struct {
	ID              string        `json:"id"`
	AutoproxyMode   AutoproxyMode `json:"autoproxy_mode"`
	AutoproxyMember string        `json:"autoproxy_member,omitempty"`
}

// Credential is one entry of the platform login pool. A used credential stays
// used after its member is deleted; recycling is a manual operator action.
type Credential struct {
	Token string `json:"token"`
	Used  bool   `json:"used"`
}
