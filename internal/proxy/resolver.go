// Package proxy implements tag resolution, the recently-proxied cache, and
// the inbound message pipeline (resolve, deliver, clean up).
package proxy

import (
	"strings"

	"github.com/chorusbot/chorus/internal/store"
)

// Match is the outcome of tag resolution: which member posts the message,
// and the tag-stripped body.
type Match struct {
	Member store.Member
	Tag    store.Tag
	// Tagged is set when an explicit tag matched (as opposed to autoproxy).
	Tagged bool
	Body   string
	// LatchUpdate asks the caller to persist Member as the new latch target.
	// Resolution itself performs no writes.
	LatchUpdate bool
}

// Resolve picks the member that should post the message, if any. Tags are
// tested in member-then-tag order and the first match wins; a message matches
// a tag iff it starts with the prefix and ends with the suffix, either of
// which may be empty. When no tag matches, latch and fixed-member autoproxy
// select the stored target with no stripping.
func Resolve(content string, members []store.Member, user store.User) (Match, bool) {
	for _, m := range members {
		for _, t := range m.ProxyTags {
			if !strings.HasPrefix(content, t.Prefix) || !strings.HasSuffix(content, t.Suffix) {
				continue
			}
			match := Match{
				Member: m,
				Tag:    t,
				Tagged: true,
				Body:   stripTag(content, t),
			}
			if m.KeepProxy {
				match.Body = content
			}
			if user.AutoproxyMode == store.AutoproxyLatch {
				match.LatchUpdate = user.AutoproxyMember != m.ExternalID
			}
			return match, true
		}
	}

	mode := user.AutoproxyMode
	if (mode == store.AutoproxyLatch || mode == store.AutoproxyMember) && user.AutoproxyMember != "" {
		for _, m := range members {
			if m.ExternalID == user.AutoproxyMember {
				return Match{Member: m, Body: content}, true
			}
		}
	}
	return Match{}, false
}

// stripTag slices the body out from between the prefix and suffix, clamped so
// overlapping or empty affixes never slice past the content.
func stripTag(content string, t store.Tag) string {
	start := len(t.Prefix)
	if start > len(content) {
		start = len(content)
	}
	end := len(content) - len(t.Suffix)
	if end < start {
		end = start
	}
	return content[start:end]
}
