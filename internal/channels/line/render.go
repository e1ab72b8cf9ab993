package line

import (
	"strings"
	"unicode/utf8"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/nextlevelbuilder/linecord/internal/relay"
)

// Messaging API field limits.
const (
	maxTextRunes        = 5000
	maxAltTextRunes     = 400
	maxConfirmTextRunes = 240
	maxButtonsText      = 160
	maxButtonsTextTitle = 60
	maxButtonsTitle     = 40
	maxLabelRunes       = 20
	maxButtons          = 4
)

func renderOut(m relay.OutMessage) messaging_api.MessageInterface {
	switch m.Kind {
	case relay.OutImage:
		preview := m.PreviewURL
		if preview == "" {
			preview = m.URL
		}
		return &messaging_api.ImageMessage{OriginalContentUrl: m.URL, PreviewImageUrl: preview}
	case relay.OutVideo:
		return &messaging_api.VideoMessage{OriginalContentUrl: m.URL, PreviewImageUrl: m.PreviewURL}
	case relay.OutAudio:
		return &messaging_api.AudioMessage{OriginalContentUrl: m.URL, Duration: int64(m.DurationMs)}
	default:
		if strings.TrimSpace(m.Text) == "" {
			return nil
		}
		return &messaging_api.TextMessage{Text: truncate(m.Text, maxTextRunes)}
	}
}

// renderReply picks the richest template the reply fits: a confirm template
// for two message actions, a buttons template for up to four actions, plain
// text otherwise.
func renderReply(r relay.Reply) messaging_api.MessageInterface {
	text := r.Text()
	if len(r.Actions) == 0 || len(r.Actions) > maxButtons {
		return &messaging_api.TextMessage{Text: truncate(text, maxTextRunes)}
	}

	actions := make([]messaging_api.ActionInterface, 0, len(r.Actions))
	allMessages := true
	for _, a := range r.Actions {
		label := truncate(a.Label, maxLabelRunes)
		if a.URL != "" {
			allMessages = false
			actions = append(actions, &messaging_api.UriAction{Label: label, Uri: a.URL})
			continue
		}
		actions = append(actions, &messaging_api.MessageAction{Label: label, Text: a.ID})
	}

	body := bodyText(r)
	alt := truncate(text, maxAltTextRunes)
	if len(actions) == 2 && allMessages {
		return &messaging_api.TemplateMessage{
			AltText:  alt,
			Template: &messaging_api.ConfirmTemplate{Text: truncate(body, maxConfirmTextRunes), Actions: actions},
		}
	}

	tmpl := &messaging_api.ButtonsTemplate{Actions: actions}
	if r.Title != "" {
		tmpl.Title = truncate(r.Title, maxButtonsTitle)
		tmpl.Text = truncate(nonEmpty(detailText(r), r.Title), maxButtonsTextTitle)
	} else {
		tmpl.Text = truncate(nonEmpty(body, "-"), maxButtonsText)
	}
	return &messaging_api.TemplateMessage{AltText: alt, Template: tmpl}
}

// bodyText is the reply with its title but without URL action lines.
func bodyText(r relay.Reply) string {
	parts := make([]string, 0, 2)
	if r.Title != "" {
		parts = append(parts, r.Title)
	}
	if d := detailText(r); d != "" {
		parts = append(parts, d)
	}
	return nonEmpty(strings.Join(parts, "\n"), "-")
}

func detailText(r relay.Reply) string {
	lines := make([]string, 0, 1+len(r.Fields))
	if r.Body != "" {
		lines = append(lines, r.Body)
	}
	for _, f := range r.Fields {
		lines = append(lines, f.Name+": "+f.Value)
	}
	return strings.Join(lines, "\n")
}

func nonEmpty(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
