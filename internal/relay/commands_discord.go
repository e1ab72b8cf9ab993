package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/linecord/internal/registry"
	"github.com/nextlevelbuilder/linecord/internal/store"
)

const botTitle = "LINE ⇄ Discord relay"

const supportedKinds = "Relayed: text, images, videos, audio, stickers, locations and other attachments."

// About describes the bot and the binding of the channel.
func (p *Pipeline) About(ch ChannelRef) Reply {
	var status string
	if sc, ok := p.registry.LookupByChannel(ch.ID); ok {
		status = bindingSummary(sc)
	} else {
		status = "This channel is not bound to a LINE group yet."
	}

	r := Reply{
		Title: botTitle,
		Body:  "Relays messages between a LINE group and a Discord channel.\n\n" + status + "\n\nUse /help to see the commands.",
		Tone:  ToneSuccess,
		Fields: []Field{
			{Name: "Hosted by", Value: orDash(p.cfg.HostedBy), Inline: true},
			{Name: "Version", Value: orDash(p.cfg.Version), Inline: true},
		},
	}
	for _, a := range []Action{
		{Label: "LINE bot invite", URL: p.cfg.LineInviteURL},
		{Label: "Discord bot invite", URL: p.cfg.DiscordInviteURL},
		{Label: "Source code", URL: p.cfg.SourceURL},
		{Label: "Report an issue", URL: p.cfg.IssuesURL},
	} {
		if a.URL != "" {
			r.Actions = append(r.Actions, a)
		}
	}
	return r
}

// Help lists the slash commands.
func (p *Pipeline) Help() Reply {
	return Reply{
		Title: botTitle,
		Tone:  ToneSuccess,
		Body: "`1.` /about | About the bot\n" +
			"> Bot details and the binding of this channel\n\n" +
			"`2.` /link | Bind a LINE group and start relaying\n" +
			"> Invite the LINE bot to the group and mention it (@) to get a binding code\n\n" +
			"`3.` /unlink | Unbind the LINE group and stop relaying\n" +
			"> Removes the binding of this channel",
	}
}

// Link consumes a binding code and binds the LINE group to ch.
func (p *Pipeline) Link(ctx context.Context, ch ChannelRef, code string) Reply {
	code = strings.TrimSpace(code)
	bc, err := p.broker.Peek(code)
	if err != nil {
		slog.Error("relay: load binding codes failed", "error", err)
		return Reply{Body: "Binding failed: the code store is unavailable. Please try again later.", Tone: ToneError, Ephemeral: true}
	}
	if bc == nil {
		slog.Warn("relay: link with invalid code", "channel_id", ch.ID)
		return Reply{Body: "Binding failed: the code is invalid. Please try again.", Tone: ToneError, Ephemeral: true}
	}
	if p.broker.Expired(bc) {
		p.consume(code)
		slog.Warn("relay: link with expired code", "channel_id", ch.ID, "group_id", bc.LineGroupID)
		return Reply{Body: "Binding failed: the code expired after 5 minutes without use. Please request a new one.", Tone: ToneError, Ephemeral: true}
	}
	if sc, ok := p.registry.LookupByChannel(ch.ID); ok {
		return Reply{Body: fmt.Sprintf("This channel is already bound to LINE group %s. Run /unlink first.", sc.LineGroupName), Tone: ToneWarning, Ephemeral: true}
	}
	if _, ok := p.registry.LookupByGroup(bc.LineGroupID); ok {
		p.consume(code)
		return Reply{Body: "Binding failed: that LINE group is already bound to another channel.", Tone: ToneError, Ephemeral: true}
	}

	webhookURL, err := p.discord.CreateWebhook(ctx, ch.ID, p.cfg.WebhookName)
	if err != nil {
		slog.Error("relay: create webhook failed", "channel_id", ch.ID, "error", err)
		return Reply{Body: "Binding failed: could not create a webhook. Make sure the bot can manage webhooks in this channel.", Tone: ToneError, Ephemeral: true}
	}

	sc, err := p.registry.Add(registry.Binding{
		LineGroupID:           bc.LineGroupID,
		LineGroupName:         bc.LineGroupName,
		DiscordChannelID:      ch.ID,
		DiscordChannelName:    ch.Name,
		DiscordChannelWebhook: webhookURL,
	})
	if err != nil {
		slog.Error("relay: add binding failed", "channel_id", ch.ID, "group_id", bc.LineGroupID, "error", err)
		if derr := p.discord.DeleteWebhook(ctx, webhookURL); derr != nil {
			slog.Warn("relay: delete orphaned webhook failed", "channel_id", ch.ID, "error", derr)
		}
		if errors.Is(err, registry.ErrAlreadyBound) {
			return Reply{Body: "Binding failed: the group or this channel is already bound.", Tone: ToneError, Ephemeral: true}
		}
		return Reply{Body: "Binding failed: could not save the binding. Please try again later.", Tone: ToneError, Ephemeral: true}
	}
	p.consume(code)

	p.noticeLine(sc.LineGroupID, "Binding complete!\n\n"+bindingSummary(sc)+"\n===================\n"+supportedKinds)

	return Reply{
		Title: botTitle + " - bound!",
		Body:  bindingSummary(sc) + "\n" + supportedKinds,
		Tone:  ToneSuccess,
	}
}

// noticeLine queues a text push to a LINE group behind the group's pending
// relay jobs. Command replies do not wait for it.
func (p *Pipeline) noticeLine(groupID, text string) {
	p.submit("line:"+groupID, func(ctx context.Context) {
		if err := p.line.Push(ctx, groupID, OutMessage{Kind: OutText, Text: text}); err != nil {
			slog.Warn("relay: notice to line failed", "group_id", groupID, "error", err)
		}
	})
}

func (p *Pipeline) consume(code string) {
	if err := p.broker.Consume(code); err != nil {
		slog.Error("relay: consume binding code failed", "error", err)
	}
}

// RequestUnlink asks for confirmation before unbinding ch. The confirmation
// is valid for 20 seconds.
func (p *Pipeline) RequestUnlink(ch ChannelRef) Reply {
	sc, ok := p.registry.LookupByChannel(ch.ID)
	if !ok {
		return Reply{Body: "This channel is not bound to any LINE group.", Tone: ToneWarning, Ephemeral: true}
	}

	p.unlinkMu.Lock()
	p.pendingUnlink[ch.ID] = p.now().Add(unlinkConfirmWindow)
	p.unlinkMu.Unlock()

	return Reply{
		Title: botTitle + " - unbind",
		Body:  bindingSummary(sc) + "\n\nStop relaying between them?",
		Tone:  ToneWarning,
		Actions: []Action{
			{ID: ActionUnlinkConfirm, Label: "Confirm unbind", Style: ActionDanger},
			{ID: ActionUnlinkCancel, Label: "Cancel", Style: ActionPrimary},
		},
		Ephemeral: true,
	}
}

// takeUnlink removes the pending confirmation of ch and reports whether it was still valid.
func (p *Pipeline) takeUnlink(channelID int64) bool {
	p.unlinkMu.Lock()
	defer p.unlinkMu.Unlock()

	deadline, ok := p.pendingUnlink[channelID]
	delete(p.pendingUnlink, channelID)
	now := p.now()
	for id, d := range p.pendingUnlink {
		if now.After(d) {
			delete(p.pendingUnlink, id)
		}
	}
	return ok && !now.After(deadline)
}

// ConfirmUnlink removes the binding of ch if the confirmation is still valid.
func (p *Pipeline) ConfirmUnlink(ctx context.Context, ch ChannelRef, user string) Reply {
	if !p.takeUnlink(ch.ID) {
		return Reply{Body: "This confirmation has expired. Run /unlink again.", Tone: ToneWarning, Ephemeral: true}
	}

	sc, found, err := p.registry.RemoveByChannel(ch.ID)
	if !found {
		return Reply{Body: "This channel is not bound to any LINE group.", Tone: ToneWarning, Ephemeral: true}
	}
	if err != nil {
		slog.Error("relay: persist unbind failed", "channel_id", ch.ID, "error", err)
	}

	if derr := p.discord.DeleteWebhook(ctx, sc.DiscordChannelWebhook); derr != nil {
		slog.Warn("relay: delete relay webhook failed", "channel_id", ch.ID, "error", derr)
	}

	p.noticeLine(sc.LineGroupID, "Unbound!\n\n"+bindingSummary(sc)+"\n===================\nBy: "+user)

	body := bindingSummary(sc) + "\nBy: " + user
	if err != nil {
		body += "\n\nThe change could not be saved and may come back after a restart."
	}
	return Reply{Title: botTitle + " - unbound", Body: body, Tone: ToneSuccess}
}

// CancelUnlink drops a pending confirmation.
func (p *Pipeline) CancelUnlink(ch ChannelRef) Reply {
	p.takeUnlink(ch.ID)
	return Reply{Body: "Cancelled.", Ephemeral: true}
}

func bindingSummary(sc store.SyncChannel) string {
	return fmt.Sprintf("Discord channel: #%s\nLINE group: %s", sc.DiscordChannelName, sc.LineGroupName)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
