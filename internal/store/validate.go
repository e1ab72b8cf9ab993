package store

import (
	"errors"
	"fmt"
	"strings"
)

// MaxNameLength bounds stored group and channel names. LINE group names are
// at most 100 characters and Discord channel names at most 100.
const MaxNameLength = 100

// ErrInvalidBinding marks a sync channel record that cannot be served.
var ErrInvalidBinding = errors.New("invalid binding")

// Validate checks the fields every relay lookup depends on.
func (c SyncChannel) Validate() error {
	var problems []string
	if c.SubNum <= 0 {
		problems = append(problems, fmt.Sprintf("sub_num %d is not positive", c.SubNum))
	}
	if c.LineGroupID == "" {
		problems = append(problems, "line_group_id is empty")
	}
	if c.DiscordChannelID <= 0 {
		problems = append(problems, fmt.Sprintf("discord_channel_id %d is not a snowflake", c.DiscordChannelID))
	}
	if c.DiscordChannelWebhook == "" {
		problems = append(problems, "discord_channel_webhook is empty")
	}
	if n := len([]rune(c.LineGroupName)); n > MaxNameLength {
		problems = append(problems, fmt.Sprintf("line_group_name too long: %d chars (max %d)", n, MaxNameLength))
	}
	if n := len([]rune(c.DiscordChannelName)); n > MaxNameLength {
		problems = append(problems, fmt.Sprintf("discord_channel_name too long: %d chars (max %d)", n, MaxNameLength))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w #%d: %s", ErrInvalidBinding, c.SubNum, strings.Join(problems, "; "))
	}
	return nil
}
