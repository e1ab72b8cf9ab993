package discord

import (
	"log/slog"
	"regexp"
	"strconv"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/linecord/internal/relay"
)

const stickerCDN = "https://media.discordapp.net/stickers/"

var channelMention = regexp.MustCompile(`<#(\d+)>`)

// lookups resolves ids the gateway event does not carry names for.
type lookups struct {
	channel func(id string) *discordgo.Channel
	role    func(guildID, roleID string) string
}

func (c *Channel) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.GuildID == "" || m.Author.ID == c.self() {
		return
	}
	msg, ok := convertMessage(m.Message, c.lookups(s))
	if !ok {
		return
	}
	c.handler.HandleDiscordMessage(msg)
}

func (c *Channel) lookups(s *discordgo.Session) lookups {
	return lookups{
		channel: func(id string) *discordgo.Channel {
			if ch, err := s.State.Channel(id); err == nil {
				return ch
			}
			ch, err := s.Channel(id)
			if err != nil {
				slog.Debug("discord: channel lookup failed", "channel_id", id, "error", err)
				return nil
			}
			return ch
		},
		role: func(guildID, roleID string) string {
			if r, err := s.State.Role(guildID, roleID); err == nil {
				return r.Name
			}
			return ""
		},
	}
}

// convertMessage maps a gateway message to the relay's form. Thread messages
// carry their parent channel, whose binding applies.
func convertMessage(m *discordgo.Message, look lookups) (relay.DiscordMessage, bool) {
	channelID, err := strconv.ParseInt(m.ChannelID, 10, 64)
	if err != nil {
		return relay.DiscordMessage{}, false
	}

	msg := relay.DiscordMessage{
		ID:         m.ID,
		ChannelID:  channelID,
		AuthorID:   m.Author.ID,
		AuthorName: authorName(m),
		AuthorBot:  m.Author.Bot,
		WebhookID:  m.WebhookID,
		Content:    m.Content,
	}

	if ch := look.channel(m.ChannelID); ch != nil {
		msg.ChannelName = ch.Name
		if ch.IsThread() && ch.ParentID != "" {
			if pid, err := strconv.ParseInt(ch.ParentID, 10, 64); err == nil {
				msg.ParentID = pid
			}
			if parent := look.channel(ch.ParentID); parent != nil {
				msg.ChannelName = parent.Name
			}
		}
	}

	msg.Mentions = mentions(m, look)

	for _, a := range m.Attachments {
		msg.Attachments = append(msg.Attachments, relay.Attachment{
			ID:       a.ID,
			Filename: a.Filename,
			URL:      a.URL,
			ProxyURL: a.ProxyURL,
			Size:     a.Size,
		})
	}
	for _, st := range m.StickerItems {
		if u := stickerURL(st); u != "" {
			msg.Stickers = append(msg.Stickers, relay.Sticker{ID: st.ID, Name: st.Name, URL: u})
		}
	}
	return msg, true
}

func authorName(m *discordgo.Message) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}

func mentions(m *discordgo.Message, look lookups) relay.Mentions {
	var out relay.Mentions
	for _, u := range m.Mentions {
		name := u.GlobalName
		if name == "" {
			name = u.Username
		}
		out.Users = append(out.Users, relay.Mention{ID: u.ID, Display: name})
	}
	for _, id := range m.MentionRoles {
		if name := look.role(m.GuildID, id); name != "" {
			out.Roles = append(out.Roles, relay.Mention{ID: id, Display: name})
		}
	}
	for _, match := range channelMention.FindAllStringSubmatch(m.Content, -1) {
		if ch := look.channel(match[1]); ch != nil {
			out.Channels = append(out.Channels, relay.Mention{ID: match[1], Display: ch.Name})
		}
	}
	return out
}

// stickerURL returns the CDN image of a sticker. Lottie stickers have no
// raster form and are skipped.
func stickerURL(st *discordgo.StickerItem) string {
	switch st.FormatType {
	case discordgo.StickerFormatTypePNG, discordgo.StickerFormatTypeAPNG:
		return stickerCDN + st.ID + ".png"
	case discordgo.StickerFormatTypeGIF:
		return stickerCDN + st.ID + ".gif"
	default:
		return ""
	}
}
