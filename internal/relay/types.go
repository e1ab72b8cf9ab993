package relay

import (
	"context"
	"time"

	"github.com/nextlevelbuilder/linecord/internal/media"
)

// LineKind is the kind of an inbound LINE message event.
type LineKind string

const (
	LineText     LineKind = "text"
	LineImage    LineKind = "image"
	LineVideo    LineKind = "video"
	LineAudio    LineKind = "audio"
	LineFile     LineKind = "file"
	LineSticker  LineKind = "sticker"
	LineLocation LineKind = "location"
)

// Location is a shared LINE location.
type Location struct {
	Title     string
	Address   string
	Latitude  float64
	Longitude float64
}

// LineEvent is a LINE message event already parsed and verified by the adapter.
// Only group sources carry a GroupID; events without one are ignored.
type LineEvent struct {
	ID         string // webhookEventId, used for redelivery dedupe
	Redelivery bool
	GroupID    string
	UserID     string
	ReplyToken string
	Kind       LineKind
	MessageID  string
	ContentURL string // set when the content is hosted outside LINE
	Text       string
	FileName   string
	PackageID  string
	StickerID  string
	Animated   bool
	Location   *Location
}

// Attachment is a Discord message attachment.
type Attachment struct {
	ID       string
	Filename string
	URL      string
	ProxyURL string
	Size     int
}

// Sticker is a Discord sticker already resolved to an image URL.
type Sticker struct {
	ID   string
	Name string
	URL  string
}

// Mention maps a raw Discord mention id to its display form.
type Mention struct {
	ID      string
	Display string
}

// Mentions holds display names for the mentions in one message.
type Mentions struct {
	Users    []Mention
	Roles    []Mention
	Channels []Mention
}

// DiscordMessage is a Discord message-create event.
type DiscordMessage struct {
	ID          string
	ChannelID   int64
	ParentID    int64 // parent channel for thread messages, 0 otherwise
	ChannelName string
	AuthorID    string
	AuthorName  string
	AuthorBot   bool
	WebhookID   string
	Content     string
	Mentions    Mentions
	Attachments []Attachment
	Stickers    []Sticker
}

// BindingChannelID is the channel whose binding applies to the message.
func (m DiscordMessage) BindingChannelID() int64 {
	if m.ParentID != 0 {
		return m.ParentID
	}
	return m.ChannelID
}

// ChannelRef identifies the Discord channel a command was issued in.
// Thread commands are resolved to their parent by the adapter.
type ChannelRef struct {
	ID   int64
	Name string
}

// Profile is a LINE group member profile.
type Profile struct {
	DisplayName string
	PictureURL  string
}

// OutKind is the kind of an outbound LINE message.
type OutKind string

const (
	OutText  OutKind = "text"
	OutImage OutKind = "image"
	OutVideo OutKind = "video"
	OutAudio OutKind = "audio"
)

// OutMessage is a message pushed to a LINE group.
type OutMessage struct {
	Kind       OutKind
	Text       string
	URL        string
	PreviewURL string
	DurationMs int
}

// WebhookPost is a message executed through a Discord channel webhook.
// Username and AvatarURL override the webhook persona when set.
type WebhookPost struct {
	Username  string
	AvatarURL string
	Content   string
	File      *media.File
}

// LineClient is the LINE Messaging API surface the pipeline needs.
type LineClient interface {
	Profile(ctx context.Context, groupID, userID string) (Profile, error)
	GroupName(ctx context.Context, groupID string) (string, error)
	BotName(ctx context.Context) (string, error)
	Push(ctx context.Context, groupID string, msgs ...OutMessage) error
	Reply(ctx context.Context, replyToken string, r Reply) error
	ContentRef(messageID string) media.Ref
}

// DiscordClient is the Discord surface the pipeline needs.
type DiscordClient interface {
	Execute(ctx context.Context, webhookURL string, p WebhookPost) error
	// Delivered reports whether p already appeared in the channel at or
	// after since, posted by the webhook behind webhookURL.
	Delivered(ctx context.Context, channelID int64, webhookURL string, p WebhookPost, since time.Time) (bool, error)
	CreateWebhook(ctx context.Context, channelID int64, name string) (string, error)
	DeleteWebhook(ctx context.Context, webhookURL string) error
}

// Fetcher downloads media into per-binding scratch folders.
type Fetcher interface {
	Fetch(ctx context.Context, ref media.Ref, folder string, kind media.Kind, filename string) (*media.File, error)
	Stage(srcPath, folder string, kind media.Kind) (*media.File, error)
}

// StickerSource resolves LINE stickers to cached image files.
type StickerSource interface {
	Fetch(ctx context.Context, packageID, stickerID string, animated bool) (string, error)
}

// MediaHost publishes scratch files at public HTTPS URLs.
type MediaHost interface {
	Publish(ctx context.Context, f *media.File, folder string) (string, error)
}
