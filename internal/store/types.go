package store

import (
	"errors"
	"time"
)

// ErrIO marks a persisted file that could not be read, parsed or written.
// Fatal when it happens during the startup load.
var ErrIO = errors.New("store i/o error")

// SyncChannel is a confirmed binding between one LINE group and one Discord channel.
type SyncChannel struct {
	SubNum                int    `json:"sub_num"`
	FolderName            string `json:"folder_name"`
	LineGroupID           string `json:"line_group_id"`
	LineGroupName         string `json:"line_group_name"`
	DiscordChannelID      int64  `json:"discord_channel_id"`
	DiscordChannelName    string `json:"discord_channel_name"`
	DiscordChannelWebhook string `json:"discord_channel_webhook"`
}

// FolderNameFor derives the media folder key of a binding.
func FolderNameFor(groupName, channelName string) string {
	return groupName + "_" + channelName
}

// BindingCode is a pending single-use code that links a LINE group to a Discord channel.
type BindingCode struct {
	Code          string    `json:"-"`
	LineGroupID   string    `json:"line_group_id"`
	LineGroupName string    `json:"line_group_name"`
	Expiration    time.Time `json:"expiration"`
}

// Expired reports whether the code is past its expiration at now.
func (c BindingCode) Expired(now time.Time) bool {
	return !now.Before(c.Expiration)
}

// ChannelStore persists the full set of sync channels as one document.
type ChannelStore interface {
	LoadChannels() ([]SyncChannel, error)
	SaveChannels(channels []SyncChannel) error
}

// CodeStore persists pending binding codes keyed by code.
type CodeStore interface {
	LoadCodes() (map[string]BindingCode, error)
	SaveCodes(codes map[string]BindingCode) error
}
