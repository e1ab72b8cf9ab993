package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nextlevelbuilder/linecord/internal/media"
	"github.com/nextlevelbuilder/linecord/internal/store"
)

const unknownSender = "LINE user"

func (p *Pipeline) processLine(ctx context.Context, ev LineEvent) {
	if ev.Kind == LineText && p.handleLineCommand(ctx, ev) {
		return
	}

	sc, ok := p.registry.LookupByGroup(ev.GroupID)
	if !ok {
		return
	}

	ctx, span := p.startSpan(ctx, "relay.line_to_discord",
		attribute.String("line.group_id", ev.GroupID),
		attribute.String("line.kind", string(ev.Kind)),
		attribute.Int("binding.sub_num", sc.SubNum),
	)
	err := p.relayLine(ctx, sc, ev)
	endSpan(span, err)

	if err != nil {
		slog.Warn("relay: line message dropped",
			"group_id", ev.GroupID,
			"channel_id", sc.DiscordChannelID,
			"kind", ev.Kind,
			"error", err,
		)
		return
	}
	slog.Debug("relay: line message forwarded", "group_id", ev.GroupID, "kind", ev.Kind)
}

func (p *Pipeline) relayLine(ctx context.Context, sc store.SyncChannel, ev LineEvent) error {
	profile := p.senderProfile(ctx, ev)

	var (
		content string
		file    *media.File
	)
	switch ev.Kind {
	case LineText:
		content = ev.Text

	case LineImage, LineVideo, LineAudio, LineFile:
		ref := p.line.ContentRef(ev.MessageID)
		if ev.ContentURL != "" {
			ref = media.Ref{URL: ev.ContentURL}
		}
		f, err := p.fetcher.Fetch(ctx, ref, sc.FolderName, lineMediaKind(ev.Kind), ev.FileName)
		if err != nil {
			return err
		}
		defer f.Release()
		file = f

	case LineSticker:
		f, err := p.stageSticker(ctx, sc, ev)
		if err != nil {
			return err
		}
		defer f.Release()
		file = f

	case LineLocation:
		if ev.Location == nil {
			return nil
		}
		content = FormatLocation(profile.DisplayName, *ev.Location)

	default:
		slog.Debug("relay: unsupported line message kind", "kind", ev.Kind)
		return nil
	}

	post := p.persona(profile, content)
	post.File = file
	since := p.now()
	send := func() error {
		return p.discord.Execute(ctx, sc.DiscordChannelWebhook, post)
	}
	landed := func() bool {
		ok, err := p.discord.Delivered(ctx, sc.DiscordChannelID, sc.DiscordChannelWebhook, post, since)
		if err != nil {
			slog.Warn("relay: could not check for an earlier delivery", "channel_id", sc.DiscordChannelID, "error", err)
			return false
		}
		return ok
	}
	return sendErr(p.retrySend(ctx, send, landed))
}

// stageSticker copies the cached sticker image into a scratch file.
func (p *Pipeline) stageSticker(ctx context.Context, sc store.SyncChannel, ev LineEvent) (*media.File, error) {
	if p.stickers == nil {
		return nil, errors.New("sticker store not configured")
	}
	path, err := p.stickers.Fetch(ctx, ev.PackageID, ev.StickerID, ev.Animated)
	if err != nil {
		return nil, fmt.Errorf("sticker %s/%s: %w", ev.PackageID, ev.StickerID, err)
	}
	return p.fetcher.Stage(path, sc.FolderName, media.KindImage)
}

func (p *Pipeline) senderProfile(ctx context.Context, ev LineEvent) Profile {
	if ev.UserID == "" {
		return Profile{DisplayName: unknownSender}
	}
	profile, err := p.line.Profile(ctx, ev.GroupID, ev.UserID)
	if err != nil || profile.DisplayName == "" {
		slog.Debug("relay: profile lookup failed", "group_id", ev.GroupID, "error", err)
		return Profile{DisplayName: unknownSender}
	}
	return profile
}

// persona builds the webhook identity of a LINE sender. Without persona
// overrides the name is prefixed to the content instead.
func (p *Pipeline) persona(profile Profile, content string) WebhookPost {
	if p.cfg.PersonaOverride {
		return WebhookPost{
			Username:  profile.DisplayName + p.cfg.PersonaSuffix,
			AvatarURL: profile.PictureURL,
			Content:   content,
		}
	}
	prefix := "**" + profile.DisplayName + "**"
	if content == "" {
		return WebhookPost{Content: prefix}
	}
	return WebhookPost{Content: prefix + ": " + content}
}

func lineMediaKind(k LineKind) media.Kind {
	switch k {
	case LineImage:
		return media.KindImage
	case LineVideo:
		return media.KindVideo
	case LineAudio:
		return media.KindAudio
	default:
		return media.KindFile
	}
}
