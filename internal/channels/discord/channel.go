// Package discord adapts a discordgo session to the relay pipeline.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/linecord/internal/relay"
)

// Config configures the Discord channel.
type Config struct {
	Token string
	// GuildID registers slash commands on one guild instead of globally.
	GuildID string
}

// Handler receives relayed messages and slash commands. *relay.Pipeline
// implements it.
type Handler interface {
	HandleDiscordMessage(m relay.DiscordMessage)
	About(ch relay.ChannelRef) relay.Reply
	Help() relay.Reply
	Link(ctx context.Context, ch relay.ChannelRef, code string) relay.Reply
	RequestUnlink(ch relay.ChannelRef) relay.Reply
	ConfirmUnlink(ctx context.Context, ch relay.ChannelRef, user string) relay.Reply
	CancelUnlink(ch relay.ChannelRef) relay.Reply
}

// Channel owns the gateway session and implements relay.DiscordClient.
type Channel struct {
	cfg     Config
	session *discordgo.Session
	handler Handler

	mu     sync.RWMutex
	selfID string
}

// New creates a Discord channel. Call SetPipeline before Start.
func New(cfg Config) (*Channel, error) {
	if cfg.Token == "" {
		return nil, errors.New("discord: bot token is required")
	}
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentMessageContent
	return &Channel{cfg: cfg, session: s}, nil
}

// SetPipeline attaches the relay pipeline that receives messages and commands.
func (c *Channel) SetPipeline(h Handler) { c.handler = h }

// Start opens the gateway connection and registers slash commands.
func (c *Channel) Start(ctx context.Context) error {
	if c.handler == nil {
		return errors.New("discord: pipeline not set")
	}
	c.session.AddHandler(c.onReady)
	c.session.AddHandler(c.onMessageCreate)
	c.session.AddHandler(c.onInteractionCreate)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	if err := ctx.Err(); err != nil {
		c.session.Close()
		return err
	}

	appID := c.session.State.User.ID
	if _, err := c.session.ApplicationCommandBulkOverwrite(appID, c.cfg.GuildID, slashCommands()); err != nil {
		c.session.Close()
		return fmt.Errorf("discord: register commands: %w", err)
	}
	slog.Info("discord channel started", "user", c.session.State.User.Username, "guild_scope", c.cfg.GuildID)
	return nil
}

// Stop closes the gateway connection.
func (c *Channel) Stop() error {
	return c.session.Close()
}

func (c *Channel) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	c.mu.Lock()
	c.selfID = r.User.ID
	c.mu.Unlock()
	slog.Info("discord gateway ready", "user_id", r.User.ID, "guilds", len(r.Guilds))
}

func (c *Channel) self() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selfID
}

// Verify checks the bot token over REST and returns the bot's username.
func (c *Channel) Verify(ctx context.Context) (string, error) {
	u, err := c.session.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return "", classify("verify token", err)
	}
	return u.Username, nil
}

// CreateWebhook creates a channel webhook and returns its execute URL.
func (c *Channel) CreateWebhook(ctx context.Context, channelID int64, name string) (string, error) {
	wh, err := c.session.WebhookCreate(strconv.FormatInt(channelID, 10), name, "", discordgo.WithContext(ctx))
	if err != nil {
		return "", classify("create webhook", err)
	}
	return webhookURL(wh.ID, wh.Token), nil
}

// DeleteWebhook deletes the webhook behind an execute URL. A webhook that is
// already gone is not an error.
func (c *Channel) DeleteWebhook(ctx context.Context, rawURL string) error {
	id, token, err := parseWebhookURL(rawURL)
	if err != nil {
		return err
	}
	_, err = c.session.WebhookDeleteWithToken(id, token, discordgo.WithContext(ctx))
	if restStatus(err) == http.StatusNotFound {
		return nil
	}
	if err != nil {
		return classify("delete webhook", err)
	}
	return nil
}

// Execute posts through a channel webhook.
func (c *Channel) Execute(ctx context.Context, rawURL string, p relay.WebhookPost) error {
	id, token, err := parseWebhookURL(rawURL)
	if err != nil {
		return err
	}
	params, closeFn, err := webhookParams(p)
	if err != nil {
		return err
	}
	defer closeFn()

	// wait=true makes Discord answer only after the message is stored.
	if _, err := c.session.WebhookExecute(id, token, true, params, discordgo.WithContext(ctx)); err != nil {
		return classify("execute webhook", err)
	}
	return nil
}

// Delivered reports whether the webhook already posted p to the channel at or
// after since. The pipeline asks before resending a post whose response was lost.
func (c *Channel) Delivered(ctx context.Context, channelID int64, rawURL string, p relay.WebhookPost, since time.Time) (bool, error) {
	id, _, err := parseWebhookURL(rawURL)
	if err != nil {
		return false, err
	}
	msgs, err := c.session.ChannelMessages(strconv.FormatInt(channelID, 10), recentScan, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return false, classify("list channel messages", err)
	}
	for _, m := range msgs {
		if matchesPost(m, id, p, since) {
			return true, nil
		}
	}
	return false, nil
}

// classify wraps Discord errors, marking rate limits, server errors and
// transport failures as retryable.
func classify(op string, err error) error {
	var rle *discordgo.RateLimitError
	if errors.As(err, &rle) {
		return fmt.Errorf("discord: %s: %w: %w", op, relay.ErrRetryable, err)
	}
	status := restStatus(err)
	if status == 0 || status == http.StatusTooManyRequests || status >= 500 {
		return fmt.Errorf("discord: %s: %w: %w", op, relay.ErrRetryable, err)
	}
	return fmt.Errorf("discord: %s (status %d): %w", op, status, err)
}

func restStatus(err error) int {
	var re *discordgo.RESTError
	if errors.As(err, &re) && re.Response != nil {
		return re.Response.StatusCode
	}
	return 0
}
