package store

import "testing"

func TestTagWrap(t *testing.T) {
	cases := []struct {
		tag  Tag
		body string
		want string
	}{
		{Tag{Prefix: "a:"}, "hello", "a:hello"},
		{Tag{Suffix: "-b"}, "hello", "hello-b"},
		{Tag{Prefix: "{", Suffix: "}"}, "hello", "{hello}"},
		{Tag{}, "hello", "hello"},
	}
	for _, tc := range cases {
		if got := tc.tag.Wrap(tc.body); got != tc.want {
			t.Errorf("Wrap(%q) with %+v = %q, want %q", tc.body, tc.tag, got, tc.want)
		}
	}
}

func TestParseAutoproxyMode(t *testing.T) {
	cases := map[string]AutoproxyMode{
		"latch":   AutoproxyLatch,
		"member":  AutoproxyMember,
		"none":    AutoproxyNone,
		"":        AutoproxyNone,
		"garbage": AutoproxyNone,
	}
	for raw, want := range cases {
		if got := parseAutoproxyMode(raw); got != want {
			t.Errorf("parseAutoproxyMode(%q) = %q, want %q", raw, got, want)
		}
	}
}
