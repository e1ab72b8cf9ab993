package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/linecord/internal/channels/discord"
	"github.com/nextlevelbuilder/linecord/internal/channels/line"
	"github.com/nextlevelbuilder/linecord/internal/config"
	"github.com/nextlevelbuilder/linecord/internal/relay"
)

const verifyTimeout = 10 * time.Second

// verifyError holds the result of a credential probe.
type verifyError struct {
	fatal   bool   // bad credentials
	message string // human-readable description
}

func (e *verifyError) Error() string { return e.message }

// verifyLine calls the bot info endpoint with the configured access token.
// Returns the bot display name.
func verifyLine(ctx context.Context, cfg *config.Config) (string, *verifyError) {
	ch, err := line.New(line.Config{
		ChannelSecret:      cfg.Line.ChannelSecret,
		ChannelAccessToken: cfg.Line.ChannelAccessToken,
		APIEndpoint:        cfg.Line.APIEndpoint,
	})
	if err != nil {
		return "", &verifyError{fatal: true, message: err.Error()}
	}
	ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()
	name, err := ch.BotName(ctx)
	if err != nil {
		return "", &verifyError{fatal: true, message: fmt.Sprintf("LINE rejected the access token: %v", err)}
	}
	return name, nil
}

// verifyDiscord fetches the bot user with the configured token.
// Returns the bot username.
func verifyDiscord(ctx context.Context, cfg *config.Config) (string, *verifyError) {
	ch, err := discord.New(discord.Config{Token: cfg.Discord.BotToken})
	if err != nil {
		return "", &verifyError{fatal: true, message: err.Error()}
	}
	ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()
	name, err := ch.Verify(ctx)
	if err == nil {
		return name, nil
	}
	// Transient failures (network, 5xx, rate limit) do not prove the token is bad.
	if errors.Is(err, relay.ErrRetryable) {
		return "", &verifyError{message: fmt.Sprintf("Discord check failed (transient): %v", err)}
	}
	return "", &verifyError{fatal: true, message: fmt.Sprintf("Discord rejected the bot token: %v", err)}
}
