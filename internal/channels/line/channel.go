// Package line adapts the LINE Messaging API to the relay pipeline.
package line

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/linecord/internal/media"
	"github.com/nextlevelbuilder/linecord/internal/relay"
)

const (
	// DefaultDataEndpoint serves message content downloads.
	DefaultDataEndpoint = "https://api-data.line.me"

	maxMessagesPerRequest = 5
	profileCacheSize      = 1024
	profileCacheTTL       = 10 * time.Minute
	defaultPushRPS        = 20
)

// Config configures the LINE channel.
type Config struct {
	ChannelSecret      string
	ChannelAccessToken string
	APIEndpoint        string // empty for the SDK default
	DataEndpoint       string // empty for DefaultDataEndpoint
	PushRPS            int
	HTTPClient         *http.Client
}

// Channel wraps the Messaging API client.
type Channel struct {
	cfg      Config
	api      *messaging_api.MessagingApiAPI
	profiles *expirable.LRU[string, relay.Profile]
	groups   *expirable.LRU[string, string]
	limiter  *rate.Limiter

	botOnce sync.Once
	botName string
	botErr  error
}

// New creates a LINE channel.
func New(cfg Config) (*Channel, error) {
	if cfg.ChannelSecret == "" || cfg.ChannelAccessToken == "" {
		return nil, errors.New("line: channel secret and access token are required")
	}
	if cfg.DataEndpoint == "" {
		cfg.DataEndpoint = DefaultDataEndpoint
	}
	if cfg.PushRPS <= 0 {
		cfg.PushRPS = defaultPushRPS
	}

	var opts []messaging_api.MessagingApiAPIOption
	if cfg.APIEndpoint != "" {
		opts = append(opts, messaging_api.WithEndpoint(cfg.APIEndpoint))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, messaging_api.WithHTTPClient(cfg.HTTPClient))
	}
	api, err := messaging_api.NewMessagingApiAPI(cfg.ChannelAccessToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("line: create api client: %w", err)
	}

	return &Channel{
		cfg:      cfg,
		api:      api,
		profiles: expirable.NewLRU[string, relay.Profile](profileCacheSize, nil, profileCacheTTL),
		groups:   expirable.NewLRU[string, string](profileCacheSize, nil, profileCacheTTL),
		limiter:  rate.NewLimiter(rate.Limit(cfg.PushRPS), cfg.PushRPS),
	}, nil
}

// Secret returns the channel secret used to verify webhook signatures.
func (c *Channel) Secret() string { return c.cfg.ChannelSecret }

// Profile returns the display name and picture of a group member.
func (c *Channel) Profile(ctx context.Context, groupID, userID string) (relay.Profile, error) {
	key := groupID + "/" + userID
	if p, ok := c.profiles.Get(key); ok {
		return p, nil
	}
	if err := ctx.Err(); err != nil {
		return relay.Profile{}, err
	}
	resp, err := c.api.GetGroupMemberProfile(groupID, userID)
	if err != nil {
		return relay.Profile{}, fmt.Errorf("line: group member profile: %w", err)
	}
	p := relay.Profile{DisplayName: resp.DisplayName, PictureURL: resp.PictureUrl}
	c.profiles.Add(key, p)
	return p, nil
}

// GroupName returns the name of a group.
func (c *Channel) GroupName(ctx context.Context, groupID string) (string, error) {
	if name, ok := c.groups.Get(groupID); ok {
		return name, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	resp, err := c.api.GetGroupSummary(groupID)
	if err != nil {
		return "", fmt.Errorf("line: group summary: %w", err)
	}
	c.groups.Add(groupID, resp.GroupName)
	return resp.GroupName, nil
}

// BotName returns the bot's display name. It is fetched once.
func (c *Channel) BotName(ctx context.Context) (string, error) {
	c.botOnce.Do(func() {
		resp, err := c.api.GetBotInfo()
		if err != nil {
			c.botErr = fmt.Errorf("line: bot info: %w", err)
			return
		}
		c.botName = resp.DisplayName
		slog.Info("line bot identity", "name", resp.DisplayName, "user_id", resp.UserId)
	})
	return c.botName, c.botErr
}

// ContentRef points at the content of an inbound message.
func (c *Channel) ContentRef(messageID string) media.Ref {
	return media.Ref{
		URL:   fmt.Sprintf("%s/v2/bot/message/%s/content", c.cfg.DataEndpoint, messageID),
		Token: c.cfg.ChannelAccessToken,
	}
}

// Push sends messages to a group in batches of five. Each batch carries an
// X-Line-Retry-Key and is retried once with the same key on server errors,
// which LINE accepts at most once.
func (c *Channel) Push(ctx context.Context, groupID string, msgs ...relay.OutMessage) error {
	out := make([]messaging_api.MessageInterface, 0, len(msgs))
	for _, m := range msgs {
		if rendered := renderOut(m); rendered != nil {
			out = append(out, rendered)
		}
	}

	for start := 0; start < len(out); start += maxMessagesPerRequest {
		end := min(start+maxMessagesPerRequest, len(out))
		if err := c.pushBatch(ctx, groupID, out[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (c *Channel) pushBatch(ctx context.Context, groupID string, batch []messaging_api.MessageInterface) error {
	req := &messaging_api.PushMessageRequest{To: groupID, Messages: batch}
	retryKey := uuid.NewString()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		resp, _, err := c.api.PushMessageWithHttpInfo(req, retryKey)
		status := 0
		if resp != nil {
			status = resp.StatusCode
			resp.Body.Close()
		}
		switch {
		case err == nil:
			return nil
		case status == http.StatusConflict:
			// Same retry key already accepted.
			return nil
		case status == http.StatusTooManyRequests:
			return fmt.Errorf("line: push rate limited: %w: %w", relay.ErrRetryable, err)
		case status == 0 || status >= 500:
			lastErr = err
			slog.Debug("line: push failed, retrying with same key", "group_id", groupID, "status", status, "error", err)
			continue
		default:
			return fmt.Errorf("line: push (status %d): %w", status, err)
		}
	}
	return fmt.Errorf("line: push: %w", lastErr)
}

// Reply answers a command with a structured reply.
func (c *Channel) Reply(ctx context.Context, replyToken string, r relay.Reply) error {
	if replyToken == "" {
		return errors.New("line: empty reply token")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.api.ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   []messaging_api.MessageInterface{renderReply(r)},
	})
	if err != nil {
		return fmt.Errorf("line: reply: %w", err)
	}
	return nil
}
