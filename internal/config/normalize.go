package config

import (
	"regexp"
	"strings"
)

const defaultWebhookPath = "/callback"

var (
	repeatedSlash = regexp.MustCompile(`/{2,}`)
	invalidPath   = regexp.MustCompile(`[^A-Za-z0-9/_.~-]+`)
)

// NormalizeWebhookPath converts a user-provided path into a mux pattern:
//   - Leading slash added, trailing slash stripped
//   - Repeated slashes collapsed
//   - Characters outside [A-Za-z0-9/_.~-] replaced with "-"
//   - Empty result defaults to "/callback"
func NormalizeWebhookPath(p string) string {
	p = strings.TrimSpace(p)
	p = invalidPath.ReplaceAllString(p, "-")
	p = repeatedSlash.ReplaceAllString("/"+p, "/")
	p = strings.TrimRight(p, "/")
	if p == "" {
		return defaultWebhookPath
	}
	return p
}

// Normalize trims and canonicalises user-edited fields in place.
func (c *Config) Normalize() {
	c.Line.ChannelAccessToken = strings.TrimSpace(c.Line.ChannelAccessToken)
	c.Line.ChannelSecret = strings.TrimSpace(c.Line.ChannelSecret)
	c.Discord.BotToken = strings.TrimSpace(c.Discord.BotToken)

	c.Server.WebhookPath = NormalizeWebhookPath(c.Server.WebhookPath)
	c.Server.PublicURL = strings.TrimRight(strings.TrimSpace(c.Server.PublicURL), "/")

	c.Media.S3.Prefix = strings.Trim(c.Media.S3.Prefix, "/")
	c.Media.S3.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.Media.S3.PublicBaseURL), "/")

	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.Telemetry.Protocol = strings.ToLower(strings.TrimSpace(c.Telemetry.Protocol))
}
