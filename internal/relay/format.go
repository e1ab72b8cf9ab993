package relay

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/nextlevelbuilder/linecord/internal/media"
)

var (
	userMentionRe    = regexp.MustCompile(`<@!?(\d+)>`)
	roleMentionRe    = regexp.MustCompile(`<@&(\d+)>`)
	channelMentionRe = regexp.MustCompile(`<#(\d+)>`)
	customEmojiRe    = regexp.MustCompile(`<a?:(\w+):\d+>`)
)

// RewriteMentions replaces Discord mention markup with readable names.
// Mentions without a known display name are left untouched.
func RewriteMentions(content string, m Mentions) string {
	content = replaceIDs(content, userMentionRe, m.Users, "@")
	content = replaceIDs(content, roleMentionRe, m.Roles, "@")
	content = replaceIDs(content, channelMentionRe, m.Channels, "#")
	return customEmojiRe.ReplaceAllString(content, ":$1:")
}

func replaceIDs(content string, re *regexp.Regexp, names []Mention, prefix string) string {
	if len(names) == 0 {
		return content
	}
	lookup := make(map[string]string, len(names))
	for _, n := range names {
		lookup[n.ID] = n.Display
	}
	return re.ReplaceAllStringFunc(content, func(match string) string {
		id := re.FindStringSubmatch(match)[1]
		if name, ok := lookup[id]; ok {
			return prefix + name
		}
		return match
	})
}

// FormatLocation renders a shared LINE location as Discord markdown.
func FormatLocation(sender string, loc Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📍 %s shared a location\n", sender)
	if loc.Title != "" {
		fmt.Fprintf(&b, "\nPlace: **%s**", loc.Title)
	}
	if loc.Address != "" {
		fmt.Fprintf(&b, "\nAddress: [%s](https://www.google.com/maps/place/%s)",
			loc.Address, url.PathEscape(loc.Address))
	} else {
		fmt.Fprintf(&b, "\nhttps://www.google.com/maps?q=%s,%s",
			strconv.FormatFloat(loc.Latitude, 'f', -1, 64),
			strconv.FormatFloat(loc.Longitude, 'f', -1, 64))
	}
	return b.String()
}

// discordHeader is the attribution line of a message relayed to LINE.
func discordHeader(author, channel string) string {
	return fmt.Sprintf("%s in #%s:", author, channel)
}

// mediaCaption describes an attachment that arrived without message text.
func mediaCaption(author, channel string, kind media.Kind, filename string) string {
	article := "a"
	if kind == media.KindImage || kind == media.KindAudio {
		article = "an"
	}
	return fmt.Sprintf("%s in #%s sent %s %s %s", author, channel, article, kind, filename)
}

// estimateAudioMs guesses an audio duration from its size at 128 kbit/s.
// LINE requires a duration but Discord attachments do not carry one.
func estimateAudioMs(size int) int {
	ms := size / 16
	if ms < 1000 {
		ms = 1000
	}
	return ms
}

// videoPreviewURL asks the Discord media proxy for a JPEG frame of a video.
func videoPreviewURL(a Attachment) string {
	base := a.ProxyURL
	if base == "" {
		base = a.URL
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "format=jpeg"
}
