package config

const savedHeader = "# linecord configuration. Secrets may instead be supplied through\n" +
	"# LINECORD_LINE_CHANNEL_ACCESS_TOKEN, LINECORD_LINE_CHANNEL_SECRET and\n" +
	"# LINECORD_DISCORD_BOT_TOKEN.\n"

// Template is the commented starting configuration written by `config init`.
const Template = `# linecord configuration.
# Secrets may instead be supplied through the environment:
#   LINECORD_LINE_CHANNEL_ACCESS_TOKEN, LINECORD_LINE_CHANNEL_SECRET,
#   LINECORD_DISCORD_BOT_TOKEN, LINECORD_WEBHOOK_URL, PORT

line:
  # Messaging API channel > "Channel access token (long-lived)".
  channel_access_token: ""
  # Basic settings > "Channel secret".
  channel_secret: ""

discord:
  # Developer portal > Bot > Token. Enable the Message Content intent.
  bot_token: ""
  # Register slash commands on one guild only (instant update). Empty = global.
  guild_id: ""

server:
  host: 0.0.0.0
  port: 8080
  # Webhook URL for the LINE console: <public_url><webhook_path>
  webhook_path: /callback
  public_url: ""
  # Bearer token for GET /status. Empty disables the endpoint.
  status_token: ""
  # Honour X-Forwarded-For when rate limiting (behind a reverse proxy).
  trust_proxy: false
  rate_limit_rpm: 600
  rate_limit_burst: 60

data:
  # sync_channels.json and binding_codes.json
  dir: data
  # Per-binding media scratch folders and the sticker cache.
  downloads_dir: downloads

relay:
  persona_suffix: " (LINE)"
  # Post LINE messages under the sender's name and picture. When false the
  # webhook keeps its own persona and messages are prefixed with the name.
  persona_override: true
  webhook_name: LINE relay
  queue_cap: 64
  dedupe_ttl: 20m
  dedupe_size: 5000
  max_media_mb: 200

media:
  # LINE only accepts media from public HTTPS URLs. Without a bucket, Discord
  # attachments are sent to LINE by their CDN URL.
  s3:
    enabled: false
    bucket: ""
    region: ""
    endpoint: ""
    prefix: linecord
    public_base_url: ""
    path_style: false

keepalive:
  # Ping server.public_url so free hosting tiers do not idle the service.
  enabled: false
  interval: 14m
  retry_delay: 60s

about:
  hosted_by: ""
  line_invite_url: ""
  discord_invite_url: ""
  source_url: ""
  issues_url: ""

log:
  level: info   # debug, info, warn, error
  format: text  # text, json

telemetry:
  enabled: false
  endpoint: ""
  protocol: grpc  # grpc, http
  insecure: false
  service_name: linecord
  sample_ratio: 1  # share of relayed messages traced
`
