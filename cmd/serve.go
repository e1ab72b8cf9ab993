package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/linecord/internal/channels/discord"
	"github.com/nextlevelbuilder/linecord/internal/channels/line"
	"github.com/nextlevelbuilder/linecord/internal/config"
	"github.com/nextlevelbuilder/linecord/internal/heartbeat"
	httpapi "github.com/nextlevelbuilder/linecord/internal/http"
	"github.com/nextlevelbuilder/linecord/internal/logging"
	"github.com/nextlevelbuilder/linecord/internal/media"
	"github.com/nextlevelbuilder/linecord/internal/pairing"
	"github.com/nextlevelbuilder/linecord/internal/registry"
	"github.com/nextlevelbuilder/linecord/internal/relay"
	"github.com/nextlevelbuilder/linecord/internal/sticker"
	"github.com/nextlevelbuilder/linecord/internal/store/file"
)

const (
	drainTimeout   = 15 * time.Second
	codePruneEvery = 5 * time.Minute
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the relay (webhook server, Discord gateway, keep-alive)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return err
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)
	slog.Info("linecord starting", "version", Version, "config", resolveConfigPath())

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing := initOTelExporter(ctx, cfg)
	defer shutdownTracing()

	stores := file.NewFileStores(cfg.Data.Dir)
	reg := registry.New(stores.Channels)
	broker := pairing.NewService(stores.Codes)

	lineCh, err := line.New(line.Config{
		ChannelSecret:      cfg.Line.ChannelSecret,
		ChannelAccessToken: cfg.Line.ChannelAccessToken,
		APIEndpoint:        cfg.Line.APIEndpoint,
		PushRPS:            cfg.Line.PushRPS,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrConfig, err)
	}
	discordCh, err := discord.New(discord.Config{Token: cfg.Discord.BotToken, GuildID: cfg.Discord.GuildID})
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrConfig, err)
	}

	host, err := newMediaHost(ctx, cfg.Media.S3)
	if err != nil {
		return err
	}

	pipeline := relay.New(relay.Config{
		PersonaSuffix:    cfg.Relay.PersonaSuffix,
		PersonaOverride:  cfg.Relay.PersonaOverride,
		WebhookName:      cfg.Relay.WebhookName,
		HostedBy:         cfg.About.HostedBy,
		Version:          Version,
		LineInviteURL:    cfg.About.LineInviteURL,
		DiscordInviteURL: cfg.About.DiscordInviteURL,
		SourceURL:        cfg.About.SourceURL,
		IssuesURL:        cfg.About.IssuesURL,
		QueueCap:         cfg.Relay.QueueCap,
		DedupeTTL:        cfg.Relay.DedupeTTL,
		DedupeSize:       cfg.Relay.DedupeSize,
	}, relay.Deps{
		Registry: reg,
		Broker:   broker,
		Line:     lineCh,
		Discord:  discordCh,
		Fetcher:  media.NewFetcher(cfg.Data.DownloadsDir, media.WithMaxBytes(int64(cfg.Relay.MaxMediaMB)<<20)),
		Stickers: sticker.NewStore(cfg.Data.StickerDir()),
		Host:     host,
	})
	discordCh.SetPipeline(pipeline)

	srv := httpapi.NewServer(httpapi.Config{
		Addr:           cfg.Server.Addr(),
		WebhookPath:    cfg.Server.WebhookPath,
		StatusToken:    cfg.Server.StatusToken,
		TrustProxy:     cfg.Server.TrustProxy,
		RateLimitRPM:   cfg.Server.RateLimitRPM,
		RateLimitBurst: cfg.Server.RateLimitBurst,
	}, func(r *http.Request) ([]relay.LineEvent, error) {
		return line.ParseRequest(lineCh.Secret(), r)
	}, pipeline, reg, Version)

	g, gctx := errgroup.WithContext(ctx)

	// The webhook answers 503 until the registry is loaded.
	g.Go(func() error { return srv.Run(gctx) })

	if err := reg.LoadAll(); err != nil {
		stop()
		g.Wait()
		return err
	}
	slog.Info("bindings loaded", "count", reg.Len(), "path", stores.Channels.Path())
	if cb := cfg.Server.CallbackURL(); cb != "" {
		slog.Info("LINE webhook URL", "url", cb)
	}

	watcher, err := file.NewWatcher(stores.Channels.Path())
	if err != nil {
		slog.Warn("store watcher unavailable, external edits need a restart", "error", err)
	} else {
		watcher.OnChange(func() {
			if err := reg.Reload(); err != nil {
				slog.Error("bindings reload failed, keeping current index", "error", err)
				return
			}
			slog.Info("bindings reloaded", "count", reg.Len())
		})
		if err := watcher.Start(); err != nil {
			slog.Warn("store watcher start failed", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	if err := discordCh.Start(gctx); err != nil {
		stop()
		if werr := g.Wait(); werr != nil {
			return werr
		}
		return err
	}

	if cfg.KeepAlive.Enabled {
		ka := heartbeat.NewService(heartbeat.Config{
			URL:        cfg.Server.PublicURL,
			Interval:   cfg.KeepAlive.Interval,
			RetryDelay: cfg.KeepAlive.RetryDelay,
		})
		ka.Start()
		defer ka.Stop()
	}

	g.Go(func() error {
		pruneCodes(gctx, broker, codePruneEvery)
		return nil
	})

	<-gctx.Done()
	slog.Info("shutting down")

	if err := discordCh.Stop(); err != nil {
		slog.Warn("discord close failed", "error", err)
	}
	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := pipeline.Close(drainCtx); err != nil {
		slog.Warn("relay queues not drained", "error", err)
	}
	return g.Wait()
}

// newMediaHost returns nil when no bucket is configured; attachments then
// reach LINE by their Discord CDN URL.
func newMediaHost(ctx context.Context, c config.S3Config) (relay.MediaHost, error) {
	if !c.Enabled {
		return nil, nil
	}
	host, err := media.NewS3Host(ctx, media.S3Config{
		Bucket:          c.Bucket,
		Region:          c.Region,
		Endpoint:        c.Endpoint,
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		Prefix:          c.Prefix,
		PublicBaseURL:   c.PublicBaseURL,
		PathStyle:       c.PathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("media host: %w", err)
	}
	slog.Info("media host enabled", "bucket", c.Bucket, "base_url", c.PublicBaseURL)
	return host, nil
}

func pruneCodes(ctx context.Context, broker *pairing.Service, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := broker.PruneExpired()
			if err != nil {
				slog.Warn("binding code prune failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("expired binding codes pruned", "count", n)
			}
		}
	}
}
