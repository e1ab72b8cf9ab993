package discord

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/linecord/internal/pairing"
	"github.com/nextlevelbuilder/linecord/internal/relay"
)

const (
	interactionTimeout = 10 * time.Second
	buttonsPerRow      = 5
)

// Embed colours per reply tone.
var toneColors = map[relay.Tone]int{
	relay.ToneInfo:    0x5865F2,
	relay.ToneSuccess: 0x57F287,
	relay.ToneWarning: 0xFEE75C,
	relay.ToneError:   0xED4245,
}

func slashCommands() []*discordgo.ApplicationCommand {
	minCode := float64(pairing.CodeMin)
	return []*discordgo.ApplicationCommand{
		{Name: "about", Description: "Show this channel's binding and bot information"},
		{Name: "help", Description: "Show how to link a LINE group"},
		{
			Name:        "link",
			Description: "Link this channel to a LINE group with a binding code",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "code",
				Description: "6-digit binding code from the LINE group",
				Required:    true,
				MinValue:    &minCode,
				MaxValue:    float64(pairing.CodeMax),
			}},
		},
		{Name: "unlink", Description: "Unlink this channel from its LINE group"},
	}
}

// Commands that touch Discord or LINE over REST. Discord drops interactions
// not acknowledged within 3 seconds, so these are deferred first and answered
// by editing the deferred response.
var deferredCommands = map[string]bool{"link": true}

func (c *Channel) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
	defer cancel()

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		slog.Info("discord command", "command", data.Name, "channel_id", i.ChannelID, "user", interactionUser(i))
		if deferredCommands[data.Name] {
			if !c.ack(ctx, s, i, discordgo.InteractionResponseDeferredChannelMessageWithSource) {
				return
			}
			reply := c.dispatchCommand(ctx, c.channelRef(s, i.ChannelID), data)
			c.answerDeferred(ctx, s, i, reply)
			return
		}
		c.respond(ctx, s, i, discordgo.InteractionResponseChannelMessageWithSource, c.dispatchCommand(ctx, c.channelRef(s, i.ChannelID), data))

	case discordgo.InteractionMessageComponent:
		customID := i.MessageComponentData().CustomID
		if customID == relay.ActionUnlinkConfirm {
			if !c.ack(ctx, s, i, discordgo.InteractionResponseDeferredMessageUpdate) {
				return
			}
			reply, _ := c.dispatchComponent(ctx, c.channelRef(s, i.ChannelID), customID, interactionUser(i))
			c.answerDeferred(ctx, s, i, reply)
			return
		}
		reply, ok := c.dispatchComponent(ctx, c.channelRef(s, i.ChannelID), customID, interactionUser(i))
		if !ok {
			return
		}
		c.respond(ctx, s, i, discordgo.InteractionResponseUpdateMessage, reply)
	}
}

func (c *Channel) respond(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, typ discordgo.InteractionResponseType, reply relay.Reply) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: typ,
		Data: renderReply(reply),
	}, discordgo.WithContext(ctx))
	if err != nil {
		slog.Warn("discord: interaction respond failed", "channel_id", i.ChannelID, "error", err)
	}
}

// ack acknowledges an interaction without content.
func (c *Channel) ack(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, typ discordgo.InteractionResponseType) bool {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{Type: typ}, discordgo.WithContext(ctx))
	if err != nil {
		slog.Warn("discord: interaction ack failed", "channel_id", i.ChannelID, "error", err)
		return false
	}
	return true
}

// answerDeferred fills in a deferred response. An ephemeral reply cannot
// replace the public placeholder, so the placeholder is deleted and the reply
// is sent as an ephemeral followup.
func (c *Channel) answerDeferred(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, reply relay.Reply) {
	data := renderReply(reply)
	if reply.Ephemeral && i.Type == discordgo.InteractionApplicationCommand {
		if err := s.InteractionResponseDelete(i.Interaction, discordgo.WithContext(ctx)); err != nil {
			slog.Warn("discord: delete deferred response failed", "channel_id", i.ChannelID, "error", err)
		}
		if _, err := s.FollowupMessageCreate(i.Interaction, true, followupParams(data), discordgo.WithContext(ctx)); err != nil {
			slog.Warn("discord: interaction followup failed", "channel_id", i.ChannelID, "error", err)
		}
		return
	}
	if _, err := s.InteractionResponseEdit(i.Interaction, responseEdit(data), discordgo.WithContext(ctx)); err != nil {
		slog.Warn("discord: interaction edit failed", "channel_id", i.ChannelID, "error", err)
	}
}

func responseEdit(data *discordgo.InteractionResponseData) *discordgo.WebhookEdit {
	return &discordgo.WebhookEdit{
		Embeds:     &data.Embeds,
		Components: &data.Components,
	}
}

func followupParams(data *discordgo.InteractionResponseData) *discordgo.WebhookParams {
	return &discordgo.WebhookParams{
		Embeds:     data.Embeds,
		Components: data.Components,
		Flags:      data.Flags,
	}
}

func (c *Channel) dispatchCommand(ctx context.Context, ref relay.ChannelRef, data discordgo.ApplicationCommandInteractionData) relay.Reply {
	switch data.Name {
	case "about":
		return c.handler.About(ref)
	case "help":
		return c.handler.Help()
	case "link":
		var code string
		for _, opt := range data.Options {
			if opt.Name == "code" {
				code = strconv.FormatInt(opt.IntValue(), 10)
			}
		}
		return c.handler.Link(ctx, ref, code)
	case "unlink":
		return c.handler.RequestUnlink(ref)
	default:
		return relay.Reply{Body: "Unknown command.", Tone: relay.ToneError, Ephemeral: true}
	}
}

func (c *Channel) dispatchComponent(ctx context.Context, ref relay.ChannelRef, customID, user string) (relay.Reply, bool) {
	switch customID {
	case relay.ActionUnlinkConfirm:
		return c.handler.ConfirmUnlink(ctx, ref, user), true
	case relay.ActionUnlinkCancel:
		return c.handler.CancelUnlink(ref), true
	default:
		return relay.Reply{}, false
	}
}

// channelRef resolves the binding channel of an interaction. Threads map to
// their parent.
func (c *Channel) channelRef(s *discordgo.Session, channelID string) relay.ChannelRef {
	look := c.lookups(s)
	id, _ := strconv.ParseInt(channelID, 10, 64)
	ref := relay.ChannelRef{ID: id}
	ch := look.channel(channelID)
	if ch == nil {
		return ref
	}
	ref.Name = ch.Name
	if ch.IsThread() && ch.ParentID != "" {
		if pid, err := strconv.ParseInt(ch.ParentID, 10, 64); err == nil {
			ref.ID = pid
		}
		if parent := look.channel(ch.ParentID); parent != nil {
			ref.Name = parent.Name
		}
	}
	return ref
}

func interactionUser(i *discordgo.InteractionCreate) string {
	var u *discordgo.User
	switch {
	case i.Member != nil && i.Member.Nick != "":
		return i.Member.Nick
	case i.Member != nil:
		u = i.Member.User
	default:
		u = i.User
	}
	if u == nil {
		return ""
	}
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// renderReply renders a reply as one embed plus button rows.
func renderReply(r relay.Reply) *discordgo.InteractionResponseData {
	embed := &discordgo.MessageEmbed{
		Title:       r.Title,
		Description: r.Body,
		Color:       toneColors[r.Tone],
	}
	for _, f := range r.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Inline,
		})
	}

	data := &discordgo.InteractionResponseData{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: []discordgo.MessageComponent{},
	}
	if r.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}

	var row discordgo.ActionsRow
	for _, a := range r.Actions {
		row.Components = append(row.Components, button(a))
		if len(row.Components) == buttonsPerRow {
			data.Components = append(data.Components, row)
			row = discordgo.ActionsRow{}
		}
	}
	if len(row.Components) > 0 {
		data.Components = append(data.Components, row)
	}
	return data
}

func button(a relay.Action) discordgo.Button {
	if a.URL != "" {
		return discordgo.Button{Label: a.Label, Style: discordgo.LinkButton, URL: a.URL}
	}
	style := discordgo.SecondaryButton
	switch a.Style {
	case relay.ActionPrimary:
		style = discordgo.PrimaryButton
	case relay.ActionDanger:
		style = discordgo.DangerButton
	}
	return discordgo.Button{Label: a.Label, Style: style, CustomID: a.ID}
}
