// Package config loads the YAML configuration file and applies environment
// overrides. The configuration is read once at startup.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrConfig marks a configuration that cannot start the relay.
var ErrConfig = errors.New("config error")

// DefaultPath is used when neither --config nor LINECORD_CONFIG is set.
const DefaultPath = "config.yml"

// EnvConfigPath names the environment variable holding the config path.
const EnvConfigPath = "LINECORD_CONFIG"

// Environment overrides.
const (
	EnvLineAccessToken = "LINECORD_LINE_CHANNEL_ACCESS_TOKEN"
	EnvLineSecret      = "LINECORD_LINE_CHANNEL_SECRET"
	EnvDiscordToken    = "LINECORD_DISCORD_BOT_TOKEN"
	EnvWebhookURL      = "LINECORD_WEBHOOK_URL"
	EnvPort            = "PORT"
)

// Config is the root configuration document.
type Config struct {
	Line      LineConfig      `yaml:"line"`
	Discord   DiscordConfig   `yaml:"discord"`
	Server    ServerConfig    `yaml:"server"`
	Data      DataConfig      `yaml:"data"`
	Relay     RelayConfig     `yaml:"relay"`
	Media     MediaConfig     `yaml:"media"`
	KeepAlive KeepAliveConfig `yaml:"keepalive"`
	About     AboutConfig     `yaml:"about"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// LineConfig holds the Messaging API channel credentials.
type LineConfig struct {
	ChannelAccessToken string `yaml:"channel_access_token"`
	ChannelSecret      string `yaml:"channel_secret"`
	APIEndpoint        string `yaml:"api_endpoint,omitempty"`
	PushRPS            int    `yaml:"push_rps,omitempty"`
}

// DiscordConfig holds the bot credentials.
type DiscordConfig struct {
	BotToken string `yaml:"bot_token"`
	GuildID  string `yaml:"guild_id,omitempty"` // register slash commands on one guild only
}

// ServerConfig configures the webhook receiver.
type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	WebhookPath    string `yaml:"webhook_path"`
	PublicURL      string `yaml:"public_url"`
	StatusToken    string `yaml:"status_token,omitempty"`
	TrustProxy     bool   `yaml:"trust_proxy"`
	RateLimitRPM   int    `yaml:"rate_limit_rpm"`
	RateLimitBurst int    `yaml:"rate_limit_burst"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}

// CallbackURL is the webhook URL to register in the LINE console.
func (s ServerConfig) CallbackURL() string {
	if s.PublicURL == "" {
		return ""
	}
	return s.PublicURL + s.WebhookPath
}

// DataConfig locates persisted state and media scratch space.
type DataConfig struct {
	Dir          string `yaml:"dir"`
	DownloadsDir string `yaml:"downloads_dir"`
}

// StickerDir is the sticker asset cache.
func (d DataConfig) StickerDir() string {
	return filepath.Join(d.DownloadsDir, "stickers")
}

// RelayConfig tunes the relay pipeline.
type RelayConfig struct {
	PersonaSuffix   string        `yaml:"persona_suffix"`
	PersonaOverride bool          `yaml:"persona_override"`
	WebhookName     string        `yaml:"webhook_name"`
	QueueCap        int           `yaml:"queue_cap"`
	DedupeTTL       time.Duration `yaml:"dedupe_ttl"`
	DedupeSize      int           `yaml:"dedupe_size"`
	MaxMediaMB      int           `yaml:"max_media_mb"`
}

// MediaConfig configures the optional public host for media sent to LINE.
type MediaConfig struct {
	S3 S3Config `yaml:"s3"`
}

// S3Config configures an S3-compatible bucket serving public HTTPS URLs.
type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
	Prefix          string `yaml:"prefix,omitempty"`
	PublicBaseURL   string `yaml:"public_base_url"`
	PathStyle       bool   `yaml:"path_style,omitempty"`
}

// KeepAliveConfig configures the self-ping.
type KeepAliveConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Interval   time.Duration `yaml:"interval"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// AboutConfig is shown by /about and the LINE invite prompt.
type AboutConfig struct {
	HostedBy         string `yaml:"hosted_by"`
	LineInviteURL    string `yaml:"line_invite_url"`
	DiscordInviteURL string `yaml:"discord_invite_url"`
	SourceURL        string `yaml:"source_url"`
	IssuesURL        string `yaml:"issues_url"`
}

// LogConfig configures slog output.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// TelemetryConfig configures OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool              `yaml:"enabled"`
	Endpoint    string            `yaml:"endpoint"`
	Protocol    string            `yaml:"protocol"` // grpc, http
	Insecure    bool              `yaml:"insecure"`
	ServiceName string            `yaml:"service_name"`
	SampleRatio float64           `yaml:"sample_ratio"` // 0..1 of root traces kept
	Headers     map[string]string `yaml:"headers,omitempty"`
}

// Default returns a configuration with every optional field populated.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			WebhookPath:    "/callback",
			RateLimitRPM:   600,
			RateLimitBurst: 60,
		},
		Data: DataConfig{
			Dir:          "data",
			DownloadsDir: "downloads",
		},
		Relay: RelayConfig{
			PersonaSuffix:   " (LINE)",
			PersonaOverride: true,
			WebhookName:     "LINE relay",
			QueueCap:        64,
			DedupeTTL:       20 * time.Minute,
			DedupeSize:      5000,
			MaxMediaMB:      200,
		},
		KeepAlive: KeepAliveConfig{
			Interval:   14 * time.Minute,
			RetryDelay: 60 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "linecord",
			SampleRatio: 1,
		},
	}
}

// ResolvePath picks the config path: flag, then LINECORD_CONFIG, then DefaultPath.
func ResolvePath(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env
	}
	return DefaultPath
}

// Load reads the file at path over the defaults, applies environment
// overrides and validates the result. A missing file is allowed so that
// hosted deployments can configure everything through the environment.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read is Load without validation, for commands that only need paths.
func Read(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %w", ErrConfig, path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("%w: read %s: %w", ErrConfig, path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return cfg, nil
}

// Save writes cfg as YAML with the template header.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	return os.WriteFile(path, append([]byte(savedHeader), data...), 0o600)
}

func (c *Config) applyEnv() error {
	setString(&c.Line.ChannelAccessToken, EnvLineAccessToken)
	setString(&c.Line.ChannelSecret, EnvLineSecret)
	setString(&c.Discord.BotToken, EnvDiscordToken)
	setString(&c.Server.PublicURL, EnvWebhookURL)

	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a port number", ErrConfig, EnvPort, v)
		}
		c.Server.Port = port
	}
	return nil
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

// Validate checks the fields the relay cannot start without.
func (c *Config) Validate() error {
	var errs []error
	require := func(ok bool, field string) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s is required", ErrConfig, field))
		}
	}

	require(c.Line.ChannelAccessToken != "", "line.channel_access_token")
	require(c.Line.ChannelSecret != "", "line.channel_secret")
	require(c.Discord.BotToken != "", "discord.bot_token")
	require(c.Server.Port > 0 && c.Server.Port <= 65535, "server.port")
	require(c.Data.Dir != "", "data.dir")
	require(c.Data.DownloadsDir != "", "data.downloads_dir")

	if c.Media.S3.Enabled {
		require(c.Media.S3.Bucket != "", "media.s3.bucket")
		require(c.Media.S3.PublicBaseURL != "", "media.s3.public_base_url")
	}
	if c.KeepAlive.Enabled {
		require(c.Server.PublicURL != "", "server.public_url (keepalive.enabled)")
	}
	if c.Telemetry.Enabled {
		require(c.Telemetry.Endpoint != "", "telemetry.endpoint")
		if c.Telemetry.Protocol != "grpc" && c.Telemetry.Protocol != "http" {
			errs = append(errs, fmt.Errorf("%w: telemetry.protocol must be grpc or http, got %q", ErrConfig, c.Telemetry.Protocol))
		}
		if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
			errs = append(errs, fmt.Errorf("%w: telemetry.sample_ratio must be within 0..1, got %v", ErrConfig, c.Telemetry.SampleRatio))
		}
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("%w: log.format must be text or json, got %q", ErrConfig, c.Log.Format))
	}

	return errors.Join(errs...)
}
