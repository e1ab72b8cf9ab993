package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nextlevelbuilder/linecord/internal/media"
	"github.com/nextlevelbuilder/linecord/internal/store"
)

func (p *Pipeline) processDiscord(ctx context.Context, m DiscordMessage) {
	sc, ok := p.registry.LookupByChannel(m.BindingChannelID())
	if !ok {
		return
	}

	ctx, span := p.startSpan(ctx, "relay.discord_to_line",
		attribute.Int64("discord.channel_id", m.BindingChannelID()),
		attribute.Int("discord.attachments", len(m.Attachments)),
		attribute.Int("binding.sub_num", sc.SubNum),
	)
	defer span.End()

	header := discordHeader(m.AuthorName, m.ChannelName)
	if text := strings.TrimSpace(RewriteMentions(m.Content, m.Mentions)); text != "" {
		err := p.push(ctx, sc, OutMessage{Kind: OutText, Text: header + "\n" + text})
		p.logDiscordResult(sc, "text", err)
	}

	for _, a := range m.Attachments {
		kind := media.Classify(a.Filename)
		actx, aspan := p.startSpan(ctx, "relay.discord_attachment",
			attribute.String("media.kind", kind.String()))
		err := p.relayAttachment(actx, sc, m, a, kind)
		endSpan(aspan, err)
		p.logDiscordResult(sc, kind.String(), err)
	}

	for _, s := range m.Stickers {
		msgs := []OutMessage{{Kind: OutImage, URL: s.URL, PreviewURL: s.URL}}
		if strings.TrimSpace(m.Content) == "" {
			msgs = append([]OutMessage{{Kind: OutText, Text: fmt.Sprintf("%s in #%s sent a sticker %s", m.AuthorName, m.ChannelName, s.Name)}}, msgs...)
		}
		p.logDiscordResult(sc, "sticker", p.push(ctx, sc, msgs...))
	}
}

func (p *Pipeline) logDiscordResult(sc store.SyncChannel, kind string, err error) {
	if err != nil {
		slog.Warn("relay: discord message dropped",
			"channel_id", sc.DiscordChannelID,
			"group_id", sc.LineGroupID,
			"kind", kind,
			"error", err,
		)
		return
	}
	slog.Debug("relay: discord message forwarded", "channel_id", sc.DiscordChannelID, "kind", kind)
}

// relayAttachment forwards one attachment. Generic files become a text
// message with the link. Images, videos and audio are re-hosted when a media
// host is configured, otherwise the Discord CDN URL is sent as is.
func (p *Pipeline) relayAttachment(ctx context.Context, sc store.SyncChannel, m DiscordMessage, a Attachment, kind media.Kind) error {
	if kind == media.KindFile {
		text := fmt.Sprintf("%s in #%s sent a file %s\n(URL: %s)", m.AuthorName, m.ChannelName, a.Filename, a.URL)
		return p.push(ctx, sc, OutMessage{Kind: OutText, Text: text})
	}

	var msgs []OutMessage
	if strings.TrimSpace(m.Content) == "" {
		msgs = append(msgs, OutMessage{Kind: OutText, Text: mediaCaption(m.AuthorName, m.ChannelName, kind, a.Filename)})
	}

	if p.host == nil {
		return p.push(ctx, sc, append(msgs, directMessage(a, kind))...)
	}

	f, err := p.fetcher.Fetch(ctx, media.Ref{URL: a.URL}, sc.FolderName, kind, a.Filename)
	if err != nil {
		return err
	}
	defer f.Release()

	out, release, err := p.hostedMessage(ctx, sc, a, f)
	defer release()
	if err != nil {
		return err
	}
	return p.push(ctx, sc, append(msgs, out)...)
}

// hostedMessage publishes the scratch file and builds the LINE message for it.
// release removes any derived files and is always safe to call.
func (p *Pipeline) hostedMessage(ctx context.Context, sc store.SyncChannel, a Attachment, f *media.File) (OutMessage, func(), error) {
	noop := func() {}
	switch f.Kind {
	case media.KindImage:
		prepared, err := media.PrepareImage(f)
		if err != nil {
			return OutMessage{}, noop, err
		}
		release := prepared.Release
		originalURL, err := p.host.Publish(ctx, prepared.Original, sc.FolderName)
		if err != nil {
			return OutMessage{}, release, err
		}
		previewURL, err := p.host.Publish(ctx, prepared.Preview, sc.FolderName)
		if err != nil {
			return OutMessage{}, release, err
		}
		return OutMessage{Kind: OutImage, URL: originalURL, PreviewURL: previewURL}, release, nil

	case media.KindVideo:
		u, err := p.host.Publish(ctx, f, sc.FolderName)
		if err != nil {
			return OutMessage{}, noop, err
		}
		return OutMessage{Kind: OutVideo, URL: u, PreviewURL: videoPreviewURL(a)}, noop, nil

	default:
		u, err := p.host.Publish(ctx, f, sc.FolderName)
		if err != nil {
			return OutMessage{}, noop, err
		}
		return OutMessage{Kind: OutAudio, URL: u, DurationMs: estimateAudioMs(int(f.Size))}, noop, nil
	}
}

func directMessage(a Attachment, kind media.Kind) OutMessage {
	switch kind {
	case media.KindImage:
		return OutMessage{Kind: OutImage, URL: a.URL, PreviewURL: a.URL}
	case media.KindVideo:
		return OutMessage{Kind: OutVideo, URL: a.URL, PreviewURL: videoPreviewURL(a)}
	default:
		return OutMessage{Kind: OutAudio, URL: a.URL, DurationMs: estimateAudioMs(a.Size)}
	}
}

func (p *Pipeline) push(ctx context.Context, sc store.SyncChannel, msgs ...OutMessage) error {
	return sendErr(p.withRetry(ctx, func() error {
		return p.line.Push(ctx, sc.LineGroupID, msgs...)
	}))
}
