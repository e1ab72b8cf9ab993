package discord

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/linecord/internal/relay"
)

const (
	webhookBase      = "https://discord.com/api/webhooks/"
	maxContentRunes  = 2000
	maxUsernameRunes = 80
	fallbackPersona  = "LINE user"

	// recentScan is how many channel messages Delivered inspects.
	recentScan = 10
	// clockSkew tolerates drift between the local clock and Discord's.
	clockSkew = 30 * time.Second
)

// ErrWebhookURL is returned for a stored webhook URL that cannot be parsed.
var ErrWebhookURL = errors.New("discord: malformed webhook url")

// Discord rejects webhook usernames containing these words.
var reservedNames = regexp.MustCompile(`(?i)discord|clyde`)

func webhookURL(id, token string) string {
	return webhookBase + id + "/" + token
}

// parseWebhookURL extracts the id and token from an execute URL. Versioned
// API paths and the legacy discordapp.com host are accepted.
func parseWebhookURL(raw string) (id, token string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrWebhookURL, err)
	}
	host := strings.ToLower(u.Hostname())
	if host != "discord.com" && host != "discordapp.com" && !strings.HasSuffix(host, ".discord.com") {
		return "", "", fmt.Errorf("%w: unexpected host %q", ErrWebhookURL, host)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" && parts[i+1] != "" && parts[i+2] != "" {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", fmt.Errorf("%w: %q", ErrWebhookURL, u.Path)
}

// webhookParams builds the execute payload. The returned func closes the
// attached file, if any.
func webhookParams(p relay.WebhookPost) (*discordgo.WebhookParams, func(), error) {
	params := &discordgo.WebhookParams{
		Content:         clip(p.Content, maxContentRunes),
		Username:        personaName(p.Username),
		AvatarURL:       p.AvatarURL,
		AllowedMentions: &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}},
	}
	if p.File == nil {
		return params, func() {}, nil
	}

	f, err := os.Open(p.File.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("discord: open attachment: %w", err)
	}
	params.Files = []*discordgo.File{{
		Name:        p.File.Name,
		ContentType: p.File.MIME,
		Reader:      f,
	}}
	return params, func() { f.Close() }, nil
}

// matchesPost reports whether m is the message webhookID produced for p.
func matchesPost(m *discordgo.Message, webhookID string, p relay.WebhookPost, since time.Time) bool {
	if m == nil || m.WebhookID != webhookID {
		return false
	}
	if m.Timestamp.Before(since.Add(-clockSkew)) {
		return false
	}
	if strings.TrimSpace(m.Content) != strings.TrimSpace(clip(p.Content, maxContentRunes)) {
		return false
	}
	want := 0
	if p.File != nil {
		want = 1
	}
	return len(m.Attachments) == want
}

// personaName makes a display name acceptable as a webhook username.
func personaName(name string) string {
	if name == "" {
		return ""
	}
	name = reservedNames.ReplaceAllStringFunc(name, func(s string) string {
		// Break the word with a zero-width space.
		r := []rune(s)
		return string(r[:1]) + "\u200b" + string(r[1:])
	})
	name = clip(strings.TrimSpace(name), maxUsernameRunes)
	if name == "" {
		return fallbackPersona
	}
	return name
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
