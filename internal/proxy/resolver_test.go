package proxy

import (
	"testing"

	"github.com/chorusbot/chorus/internal/store"
)

func member(id string, tags ...store.Tag) store.Member {
	return store.Member{ExternalID: id, ProxyTags: tags, Enabled: true}
}

func TestResolvePrefixSuffix(t *testing.T) {
	members := []store.Member{
		member("alpha", store.Tag{Prefix: "a:"}),
		member("beta", store.Tag{Suffix: "-b"}),
		member("gamma", store.Tag{Prefix: "{", Suffix: "}"}),
	}

	cases := []struct {
		name    string
		content string
		want    string
		body    string
	}{
		{"prefix", "a: hello", "alpha", " hello"},
		{"suffix", "hello -b", "beta", "hello "},
		{"both", "{hello}", "gamma", "hello"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			match, ok := Resolve(tc.content, members, store.User{})
			if !ok {
				t.Fatalf("expected a match for %q", tc.content)
			}
			if match.Member.ExternalID != tc.want {
				t.Fatalf("expected member %s, got %s", tc.want, match.Member.ExternalID)
			}
			if match.Body != tc.body {
				t.Fatalf("expected body %q, got %q", tc.body, match.Body)
			}
			if !match.Tagged {
				t.Fatal("expected an explicit tag match")
			}
		})
	}
}

func TestResolveFirstMatchWins(t *testing.T) {
	members := []store.Member{
		member("first", store.Tag{Prefix: "x:"}),
		member("second", store.Tag{Prefix: "x:"}),
	}
	match, ok := Resolve("x: hi", members, store.User{})
	if !ok || match.Member.ExternalID != "first" {
		t.Fatalf("expected first member to win, got %+v ok=%v", match, ok)
	}
}

func TestResolveNoMatch(t *testing.T) {
	members := []store.Member{member("alpha", store.Tag{Prefix: "a:"})}
	if _, ok := Resolve("plain message", members, store.User{}); ok {
		t.Fatal("expected no match")
	}
}

func TestResolveKeepProxy(t *testing.T) {
	m := member("alpha", store.Tag{Prefix: "a:"})
	m.KeepProxy = true
	match, ok := Resolve("a: hello", []store.Member{m}, store.User{})
	if !ok {
		t.Fatal("expected a match")
	}
	if match.Body != "a: hello" {
		t.Fatalf("keep_proxy must preserve the tag, got %q", match.Body)
	}
}

func TestResolveOverlappingAffixes(t *testing.T) {
	// Prefix and suffix together longer than the content must not panic and
	// must yield an empty body.
	m := member("alpha", store.Tag{Prefix: "<<<", Suffix: ">>>"})
	match, ok := Resolve("<<<>>>", []store.Member{m}, store.User{})
	if !ok {
		t.Fatal("expected a match")
	}
	if match.Body != "" {
		t.Fatalf("expected empty body, got %q", match.Body)
	}
}

func TestResolveLatchFallback(t *testing.T) {
	members := []store.Member{
		member("alpha", store.Tag{Prefix: "a:"}),
		member("beta", store.Tag{Prefix: "b:"}),
	}
	user := store.User{AutoproxyMode: store.AutoproxyLatch, AutoproxyMember: "beta"}

	match, ok := Resolve("untagged words", members, user)
	if !ok {
		t.Fatal("expected latch fallback match")
	}
	if match.Member.ExternalID != "beta" {
		t.Fatalf("expected latched member beta, got %s", match.Member.ExternalID)
	}
	if match.Tagged {
		t.Fatal("fallback match must not be marked tagged")
	}
	if match.Body != "untagged words" {
		t.Fatalf("fallback must not strip, got %q", match.Body)
	}
}

func TestResolveLatchUpdateOnTagMatch(t *testing.T) {
	members := []store.Member{
		member("alpha", store.Tag{Prefix: "a:"}),
		member("beta", store.Tag{Prefix: "b:"}),
	}
	user := store.User{AutoproxyMode: store.AutoproxyLatch, AutoproxyMember: "beta"}

	match, ok := Resolve("a: switch", members, user)
	if !ok {
		t.Fatal("expected a match")
	}
	if !match.LatchUpdate {
		t.Fatal("tag match for a different member must request a latch update")
	}

	match, ok = Resolve("b: same", members, user)
	if !ok {
		t.Fatal("expected a match")
	}
	if match.LatchUpdate {
		t.Fatal("tag match for the latched member must not request an update")
	}
}

func TestResolveFixedMemberAutoproxy(t *testing.T) {
	members := []store.Member{member("alpha", store.Tag{Prefix: "a:"})}
	user := store.User{AutoproxyMode: store.AutoproxyMember, AutoproxyMember: "alpha"}

	match, ok := Resolve("anything", members, user)
	if !ok || match.Member.ExternalID != "alpha" {
		t.Fatalf("expected fixed-member fallback, got %+v ok=%v", match, ok)
	}
}

func TestResolveAutoproxyTargetMissing(t *testing.T) {
	// The stored target may have been suspended; fallback must not fire.
	members := []store.Member{member("alpha", store.Tag{Prefix: "a:"})}
	user := store.User{AutoproxyMode: store.AutoproxyMember, AutoproxyMember: "gone"}

	if _, ok := Resolve("anything", members, user); ok {
		t.Fatal("expected no match when the autoproxy target is not available")
	}
}
