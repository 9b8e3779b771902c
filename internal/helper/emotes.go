package helper

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// emotePattern matches custom emote references: <:name:id> or <a:name:id>.
var emotePattern = regexp.MustCompile(`<(a?):(\w+):(\d+)>`)

const emoteCDN = "https://cdn.discordapp.com/emojis/"

// rehoster temporarily re-uploads foreign custom emotes into the target guild
// so proxied messages render them. Everything here is best-effort; the send
// proceeds with unresolved references when the budget runs out.
type rehoster struct {
	logger *slog.Logger
}

// rewrite substitutes foreign emote references with freshly uploaded guild
// copies. The returned cleanup deletes the temporary uploads and must be
// called after the send completes.
func (r *rehoster) rewrite(ctx context.Context, conn Conn, guildID, content string, budget time.Duration) (string, func(Conn)) {
	noop := func(Conn) {}
	refs := emotePattern.FindAllStringSubmatch(content, -1)
	if len(refs) == 0 || guildID == "" {
		return content, noop
	}

	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	local := map[string]bool{}
	if emotes, err := conn.ListEmotes(ctx, guildID); err == nil {
		for _, e := range emotes {
			local[e.ID] = true
		}
	} else {
		r.logger.Debug("emote list failed", slog.Any("error", err))
		return content, noop
	}

	var created []string
	seen := map[string]string{}
	for _, ref := range refs {
		animated, name, id := ref[1] == "a", ref[2], ref[3]
		if local[id] {
			continue
		}
		if replacement, ok := seen[id]; ok {
			content = strings.ReplaceAll(content, ref[0], replacement)
			continue
		}
		if ctx.Err() != nil {
			break
		}

		dataURI, err := fetchEmoteImage(ctx, id, animated)
		if err != nil {
			r.logger.Debug("emote fetch failed", slog.String("emote_id", id), slog.Any("error", err))
			continue
		}
		emote, err := conn.CreateEmote(ctx, guildID, name, dataURI)
		if err != nil {
			r.logger.Debug("emote upload failed", slog.String("emote_id", id), slog.Any("error", err))
			continue
		}
		created = append(created, emote.ID)

		replacement := "<:" + emote.Name + ":" + emote.ID + ">"
		if animated {
			replacement = "<a:" + emote.Name + ":" + emote.ID + ">"
		}
		seen[id] = replacement
		content = strings.ReplaceAll(content, ref[0], replacement)
	}

	if len(created) == 0 {
		return content, noop
	}
	cleanup := func(c Conn) {
		ctx, cancel := context.WithTimeout(context.Background(), budget)
		defer cancel()
		for _, id := range created {
			if err := c.DeleteEmote(ctx, guildID, id); err != nil {
				r.logger.Debug("emote cleanup failed", slog.String("emote_id", id), slog.Any("error", err))
			}
		}
	}
	return content, cleanup
}

func fetchEmoteImage(ctx context.Context, emoteID string, animated bool) (string, error) {
	ext, mime := ".png", "image/png"
	if animated {
		ext, mime = ".gif", "image/gif"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, emoteCDN+emoteID+ext, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("emote cdn status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(raw), nil
}
