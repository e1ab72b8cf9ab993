package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/linecord/internal/config"
)

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Interactive setup wizard: credentials, server, optional features",
		Run: func(cmd *cobra.Command, args []string) {
			runOnboard(cmd)
		},
	}
}

const (
	featureKeepAlive = "keepalive"
	featureS3        = "s3"
	featureTelemetry = "telemetry"
)

func runOnboard(cmd *cobra.Command) {
	fmt.Println("╔══════════════════════════════════════════════╗")
	fmt.Println("║          linecord: Setup Wizard              ║")
	fmt.Println("╚══════════════════════════════════════════════╝")
	fmt.Println()

	cfgPath := resolveConfigPath()

	cfg := config.Default()
	if _, err := os.Stat(cfgPath); err == nil {
		fmt.Printf("Found existing config at %s\n", cfgPath)
		useExisting, err := promptConfirm("Use existing config as base?", true)
		if err != nil {
			fmt.Println("Cancelled.")
			return
		}
		if useExisting {
			loaded, err := config.Read(cfgPath)
			if err != nil {
				fmt.Printf("Warning: could not load existing config: %v\n", err)
			} else {
				cfg = loaded
			}
		}
	}

	// --- Credentials ---
	fmt.Println()
	fmt.Println("── LINE Messaging API ──")
	fmt.Println()
	if err := promptSecret(&cfg.Line.ChannelAccessToken, "Channel access token", "LINE Developers console > Messaging API > Channel access token (long-lived)"); err != nil {
		fmt.Println("Cancelled.")
		return
	}
	if err := promptSecret(&cfg.Line.ChannelSecret, "Channel secret", "LINE Developers console > Basic settings > Channel secret"); err != nil {
		fmt.Println("Cancelled.")
		return
	}

	fmt.Println()
	fmt.Println("── Discord ──")
	fmt.Println()
	if err := promptSecret(&cfg.Discord.BotToken, "Bot token", "Developer portal > Bot > Token (enable the Message Content intent)"); err != nil {
		fmt.Println("Cancelled.")
		return
	}
	guild, err := promptString("Guild ID (optional)", "Register slash commands on one server only. Leave empty for global commands.", cfg.Discord.GuildID)
	if err != nil {
		fmt.Println("Cancelled.")
		return
	}
	cfg.Discord.GuildID = guild

	// --- Server ---
	fmt.Println()
	fmt.Println("── Server ──")
	fmt.Println()
	portStr, err := promptString("Listen port", "", strconv.Itoa(cfg.Server.Port), validatePort)
	if err != nil {
		fmt.Println("Cancelled.")
		return
	}
	cfg.Server.Port, _ = strconv.Atoi(portStr)
	publicURL, err := promptString("Public URL", "Externally reachable base URL, e.g. https://relay.example.com", cfg.Server.PublicURL)
	if err != nil {
		fmt.Println("Cancelled.")
		return
	}
	cfg.Server.PublicURL = strings.TrimRight(publicURL, "/")

	format, err := promptSelect("Log format", []SelectOption[string]{
		{Label: "text (colored on a terminal)", Value: "text"},
		{Label: "json", Value: "json"},
	}, slices.Index([]string{"text", "json"}, cfg.Log.Format))
	if err != nil {
		fmt.Println("Cancelled.")
		return
	}
	cfg.Log.Format = format

	// --- Optional features ---
	var preselected []string
	if cfg.KeepAlive.Enabled {
		preselected = append(preselected, featureKeepAlive)
	}
	if cfg.Media.S3.Enabled {
		preselected = append(preselected, featureS3)
	}
	if cfg.Telemetry.Enabled {
		preselected = append(preselected, featureTelemetry)
	}
	features, err := promptMultiSelect("Optional features", "Space to toggle, Enter to confirm", []SelectOption[string]{
		{Label: "Keep-alive pings to the public URL", Value: featureKeepAlive},
		{Label: "Host Discord media on S3 for LINE", Value: featureS3},
		{Label: "OpenTelemetry tracing (otel builds)", Value: featureTelemetry},
	}, preselected)
	if err != nil {
		fmt.Println("Cancelled.")
		return
	}

	cfg.KeepAlive.Enabled = slices.Contains(features, featureKeepAlive)
	cfg.Media.S3.Enabled = slices.Contains(features, featureS3)
	if cfg.Media.S3.Enabled {
		if err := promptS3(cfg); err != nil {
			fmt.Println("Cancelled.")
			return
		}
	}
	cfg.Telemetry.Enabled = slices.Contains(features, featureTelemetry)
	if cfg.Telemetry.Enabled {
		endpoint, err := promptString("OTLP endpoint", "host:port of the collector", cfg.Telemetry.Endpoint)
		if err != nil {
			fmt.Println("Cancelled.")
			return
		}
		cfg.Telemetry.Endpoint = endpoint
	}

	// --- Verify ---
	fmt.Println()
	fmt.Println("── Verifying credentials ──")
	fmt.Println()
	if name, verr := verifyLine(cmd.Context(), cfg); verr != nil {
		fmt.Printf("  LINE:    %s\n", verr.message)
	} else {
		fmt.Printf("  LINE:    OK (%s)\n", name)
	}
	if name, verr := verifyDiscord(cmd.Context(), cfg); verr != nil {
		fmt.Printf("  Discord: %s\n", verr.message)
	} else {
		fmt.Printf("  Discord: OK (%s)\n", name)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Printf("\nWarning: the configuration is incomplete:\n  %v\n", err)
	}

	// --- Save ---
	fmt.Println()
	fmt.Println("── Saving Config ──")
	fmt.Println()

	secrets := cfg.Line
	botToken := cfg.Discord.BotToken
	s3Key, s3Secret := cfg.Media.S3.AccessKeyID, cfg.Media.S3.SecretAccessKey
	cfg.Line.ChannelAccessToken, cfg.Line.ChannelSecret = "", ""
	cfg.Discord.BotToken = ""
	// Static S3 keys move to the environment where the AWS default chain reads them.
	if s3Secret != "" {
		cfg.Media.S3.AccessKeyID, cfg.Media.S3.SecretAccessKey = "", ""
	}

	saveErr := config.Save(cfgPath, cfg)

	cfg.Line = secrets
	cfg.Discord.BotToken = botToken
	cfg.Media.S3.AccessKeyID, cfg.Media.S3.SecretAccessKey = s3Key, s3Secret

	if saveErr != nil {
		fmt.Printf("Error saving config: %v\n", saveErr)
		os.Exit(1)
	}
	fmt.Printf("Config saved to %s (no secrets)\n", cfgPath)

	envPath := filepath.Join(filepath.Dir(cfgPath), ".env.local")
	if err := onboardWriteEnvFile(envPath, cfg); err != nil {
		fmt.Printf("Error writing %s: %v\n", envPath, err)
		os.Exit(1)
	}
	fmt.Printf("Secrets saved to %s\n", envPath)

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════╗")
	fmt.Println("║           Setup Complete!                    ║")
	fmt.Println("╚══════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Listen:     %s\n", cfg.Server.Addr())
	if url := cfg.Server.CallbackURL(); url != "" {
		fmt.Printf("  Webhook:    %s  (set this in the LINE console)\n", url)
	}
	fmt.Println()
	fmt.Println("To start the relay:")
	fmt.Println()
	fmt.Printf("  set -a; . %s; set +a; ./linecord\n", envPath)
	fmt.Println()
}

func validatePort(s string) error {
	p, err := strconv.Atoi(s)
	if err != nil || p <= 0 || p > 65535 {
		return fmt.Errorf("%q is not a port number", s)
	}
	return nil
}

func promptS3(cfg *config.Config) error {
	s3 := &cfg.Media.S3
	fields := []struct {
		dst         *string
		title, desc string
	}{
		{&s3.Bucket, "S3 bucket", ""},
		{&s3.Region, "S3 region", "e.g. ap-northeast-1"},
		{&s3.Endpoint, "S3 endpoint (optional)", "Custom endpoint for S3-compatible storage"},
		{&s3.PublicBaseURL, "Public base URL", "URL that serves objects of the bucket over HTTPS"},
		{&s3.AccessKeyID, "Access key ID (optional)", "Leave empty to use the default AWS credential chain"},
	}
	for _, f := range fields {
		v, err := promptString(f.title, f.desc, *f.dst)
		if err != nil {
			return err
		}
		*f.dst = v
	}
	if s3.AccessKeyID != "" {
		return promptSecret(&s3.SecretAccessKey, "Secret access key", "")
	}
	return nil
}

// onboardWriteEnvFile writes the credentials as environment assignments.
func onboardWriteEnvFile(path string, cfg *config.Config) error {
	var b strings.Builder
	b.WriteString("# linecord secrets. Load with: set -a; . " + filepath.Base(path) + "; set +a\n")
	writeEnv := func(key, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s=%s\n", key, strconv.Quote(value))
		}
	}
	writeEnv(config.EnvLineAccessToken, cfg.Line.ChannelAccessToken)
	writeEnv(config.EnvLineSecret, cfg.Line.ChannelSecret)
	writeEnv(config.EnvDiscordToken, cfg.Discord.BotToken)
	if cfg.Media.S3.SecretAccessKey != "" {
		writeEnv("AWS_ACCESS_KEY_ID", cfg.Media.S3.AccessKeyID)
		writeEnv("AWS_SECRET_ACCESS_KEY", cfg.Media.S3.SecretAccessKey)
	}
	return os.WriteFile(path, []byte(b.String()), 0o600)
}
