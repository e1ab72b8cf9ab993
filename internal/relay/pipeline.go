// Package relay forwards messages between bound LINE groups and Discord
// channels and runs the binding command flows on both platforms.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/linecord/internal/pairing"
	"github.com/nextlevelbuilder/linecord/internal/registry"
)

const (
	defaultPersonaSuffix = " (LINE)"
	defaultWebhookName   = "LINE relay"
	unlinkConfirmWindow  = 20 * time.Second
	sendRetryBase        = 500 * time.Millisecond
	sendRetryMax         = 5 * time.Second
)

// Config holds the presentation settings of the pipeline.
type Config struct {
	PersonaSuffix    string // appended to LINE display names on Discord
	PersonaOverride  bool   // use webhook username/avatar overrides
	WebhookName      string // name of webhooks created by /link
	HostedBy         string
	Version          string
	LineInviteURL    string
	DiscordInviteURL string
	SourceURL        string
	IssuesURL        string
	QueueCap         int
	DedupeTTL        time.Duration
	DedupeSize       int
}

// Deps are the collaborators of the pipeline. Host and Stickers may be nil.
type Deps struct {
	Registry *registry.Registry
	Broker   *pairing.Service
	Line     LineClient
	Discord  DiscordClient
	Fetcher  Fetcher
	Stickers StickerSource
	Host     MediaHost
}

// Pipeline routes inbound events from either platform to the bound peer.
type Pipeline struct {
	cfg      Config
	registry *registry.Registry
	broker   *pairing.Service
	line     LineClient
	discord  DiscordClient
	fetcher  Fetcher
	stickers StickerSource
	host     MediaHost

	dedupe   *DedupeCache
	dispatch *Dispatcher
	tracer   trace.Tracer
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error

	unlinkMu      sync.Mutex
	pendingUnlink map[int64]time.Time // channel id → confirmation deadline
}

// New creates a pipeline.
func New(cfg Config, deps Deps) *Pipeline {
	if cfg.PersonaSuffix == "" {
		cfg.PersonaSuffix = defaultPersonaSuffix
	}
	if cfg.WebhookName == "" {
		cfg.WebhookName = defaultWebhookName
	}
	return &Pipeline{
		cfg:           cfg,
		registry:      deps.Registry,
		broker:        deps.Broker,
		line:          deps.Line,
		discord:       deps.Discord,
		fetcher:       deps.Fetcher,
		stickers:      deps.Stickers,
		host:          deps.Host,
		dedupe:        NewDedupeCache(cfg.DedupeTTL, cfg.DedupeSize),
		dispatch:      NewDispatcher(cfg.QueueCap),
		tracer:        otel.Tracer("github.com/nextlevelbuilder/linecord/internal/relay"),
		now:           time.Now,
		sleep:         sleepCtx,
		pendingUnlink: make(map[int64]time.Time),
	}
}

// Ready reports whether the registry has been loaded.
func (p *Pipeline) Ready() bool { return p.registry.Ready() }

// HandleLineEvent queues a LINE event for relay or command handling.
// Events are processed in arrival order per group.
func (p *Pipeline) HandleLineEvent(ev LineEvent) {
	if ev.GroupID == "" {
		slog.Debug("relay: ignoring non-group line event", "kind", ev.Kind)
		return
	}
	if !p.Ready() {
		slog.Warn("relay: registry not loaded, dropping line event", "group_id", ev.GroupID)
		return
	}
	if p.dedupe.IsDuplicate("line:" + ev.ID) {
		slog.Info("relay: duplicate line event dropped",
			"event_id", ev.ID, "group_id", ev.GroupID, "redelivery", ev.Redelivery)
		return
	}
	p.submit("line:"+ev.GroupID, func(ctx context.Context) { p.processLine(ctx, ev) })
}

// HandleDiscordMessage queues a Discord message for relay.
// Messages are processed in arrival order per channel.
func (p *Pipeline) HandleDiscordMessage(m DiscordMessage) {
	if m.AuthorBot || m.WebhookID != "" {
		return
	}
	if !p.Ready() {
		slog.Warn("relay: registry not loaded, dropping discord message", "channel_id", m.ChannelID)
		return
	}
	if p.dedupe.IsDuplicate("discord:" + m.ID) {
		slog.Info("relay: duplicate discord message dropped", "message_id", m.ID)
		return
	}
	key := "discord:" + strconv.FormatInt(m.BindingChannelID(), 10)
	p.submit(key, func(ctx context.Context) { p.processDiscord(ctx, m) })
}

func (p *Pipeline) submit(key string, job Job) {
	if err := p.dispatch.Submit(key, job); err != nil && !errors.Is(err, ErrQueueDropped) {
		slog.Warn("relay: event rejected", "key", key, "error", err)
	}
}

// Close drains queued events until ctx expires.
func (p *Pipeline) Close(ctx context.Context) error {
	return p.dispatch.Close(ctx)
}

func (p *Pipeline) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// withRetry runs send once more after a retryable failure.
func (p *Pipeline) withRetry(ctx context.Context, send func() error) error {
	return p.retrySend(ctx, send, nil)
}

// retrySend is withRetry for sends whose response can be lost after the peer
// accepted them. When landed reports the first attempt went through, the
// resend is skipped.
func (p *Pipeline) retrySend(ctx context.Context, send func() error, landed func() bool) error {
	err := send()
	if err == nil || !errors.Is(err, ErrRetryable) {
		return err
	}
	delay := backoffWithJitter(sendRetryBase, sendRetryMax, 0)
	slog.Debug("relay: retrying send", "delay", delay, "error", err)
	if serr := p.sleep(ctx, delay); serr != nil {
		return err
	}
	if landed != nil && landed() {
		slog.Info("relay: send failed after delivery, not resending", "error", err)
		return nil
	}
	return send()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func sendErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrSend, err)
}
