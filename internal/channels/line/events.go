package line

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/nextlevelbuilder/linecord/internal/relay"
)

// ErrInvalidSignature is returned when the X-Line-Signature header does not
// match the request body.
var ErrInvalidSignature = errors.New("line: invalid webhook signature")

// ParseRequest verifies and decodes a webhook delivery. Events that the relay
// does not handle are skipped.
func ParseRequest(secret string, r *http.Request) ([]relay.LineEvent, error) {
	cb, err := webhook.ParseRequest(secret, r)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			return nil, ErrInvalidSignature
		}
		return nil, fmt.Errorf("line: parse webhook: %w", err)
	}

	events := make([]relay.LineEvent, 0, len(cb.Events))
	for _, e := range cb.Events {
		ev, ok := convertEvent(e)
		if !ok {
			slog.Debug("line: skipping event", "type", fmt.Sprintf("%T", e))
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func convertEvent(e webhook.EventInterface) (relay.LineEvent, bool) {
	me, ok := e.(webhook.MessageEvent)
	if !ok {
		return relay.LineEvent{}, false
	}

	ev := relay.LineEvent{
		ID:         me.WebhookEventId,
		ReplyToken: me.ReplyToken,
	}
	if me.DeliveryContext != nil {
		ev.Redelivery = me.DeliveryContext.IsRedelivery
	}
	if src, ok := me.Source.(webhook.GroupSource); ok {
		ev.GroupID = src.GroupId
		ev.UserID = src.UserId
	}

	switch m := me.Message.(type) {
	case webhook.TextMessageContent:
		ev.Kind, ev.MessageID, ev.Text = relay.LineText, m.Id, m.Text
	case webhook.ImageMessageContent:
		ev.Kind, ev.MessageID, ev.ContentURL = relay.LineImage, m.Id, externalURL(m.ContentProvider)
	case webhook.VideoMessageContent:
		ev.Kind, ev.MessageID, ev.ContentURL = relay.LineVideo, m.Id, externalURL(m.ContentProvider)
	case webhook.AudioMessageContent:
		ev.Kind, ev.MessageID, ev.ContentURL = relay.LineAudio, m.Id, externalURL(m.ContentProvider)
	case webhook.FileMessageContent:
		ev.Kind, ev.MessageID, ev.FileName = relay.LineFile, m.Id, m.FileName
	case webhook.StickerMessageContent:
		ev.Kind, ev.MessageID = relay.LineSticker, m.Id
		ev.PackageID, ev.StickerID = m.PackageId, m.StickerId
		ev.Animated = animatedSticker(string(m.StickerResourceType))
	case webhook.LocationMessageContent:
		ev.Kind, ev.MessageID = relay.LineLocation, m.Id
		ev.Location = &relay.Location{
			Title:     m.Title,
			Address:   m.Address,
			Latitude:  m.Latitude,
			Longitude: m.Longitude,
		}
	default:
		return relay.LineEvent{}, false
	}
	return ev, true
}

func externalURL(cp *webhook.ContentProvider) string {
	if cp == nil || !strings.EqualFold(string(cp.Type), "external") {
		return ""
	}
	return cp.OriginalContentUrl
}

// animatedSticker reports whether the sticker resource type carries an
// animation (ANIMATION, ANIMATION_SOUND, POPUP, POPUP_SOUND).
func animatedSticker(resourceType string) bool {
	return strings.HasPrefix(resourceType, "ANIMATION") || strings.HasPrefix(resourceType, "POPUP")
}

