package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/linecord/internal/pairing"
)

// LINE group commands. Matching is exact after trimming surrounding space.
const (
	CommandGroupID     = "!ID"
	CommandInviteLink  = "Get Discord bot invite link"
	CommandStartBind   = "Confirm and start binding"
	bindPromptAltText  = "Has the Discord relay bot been invited?"
	bindPromptQuestion = "Has the Discord relay bot been invited to your server?"
)

// handleLineCommand replies to a group command and reports whether the text
// was one. Commands are never relayed.
func (p *Pipeline) handleLineCommand(ctx context.Context, ev LineEvent) bool {
	text := strings.TrimSpace(ev.Text)

	var reply Reply
	switch {
	case text == CommandGroupID:
		reply = Reply{Body: "Group ID: " + ev.GroupID}
	case text == CommandInviteLink:
		reply = p.inviteLinkReply()
	case text == CommandStartBind:
		reply = p.startBinding(ctx, ev.GroupID)
	case p.isBotMention(ctx, text):
		reply = p.bindPrompt(ev.GroupID)
	default:
		return false
	}

	if err := p.line.Reply(ctx, ev.ReplyToken, reply); err != nil {
		slog.Warn("relay: line command reply failed", "group_id", ev.GroupID, "error", err)
	}
	return true
}

func (p *Pipeline) isBotMention(ctx context.Context, text string) bool {
	if !strings.HasPrefix(text, "@") {
		return false
	}
	name, err := p.line.BotName(ctx)
	if err != nil || name == "" {
		return false
	}
	return text == "@"+name
}

func (p *Pipeline) bindPrompt(groupID string) Reply {
	if sc, ok := p.registry.LookupByGroup(groupID); ok {
		return Reply{Body: fmt.Sprintf("This group is already bound to Discord channel #%s.", sc.DiscordChannelName)}
	}
	return Reply{
		Title: bindPromptAltText,
		Body:  bindPromptQuestion,
		Actions: []Action{
			{ID: CommandInviteLink, Label: "Not yet"},
			{ID: CommandStartBind, Label: "Invited", Style: ActionPrimary},
		},
	}
}

func (p *Pipeline) inviteLinkReply() Reply {
	if p.cfg.DiscordInviteURL == "" {
		return Reply{Body: "The host has not published a Discord bot invite link."}
	}
	return Reply{Body: p.cfg.DiscordInviteURL}
}

func (p *Pipeline) startBinding(ctx context.Context, groupID string) Reply {
	if sc, ok := p.registry.LookupByGroup(groupID); ok {
		return Reply{Body: fmt.Sprintf("This group is already bound to Discord channel #%s.", sc.DiscordChannelName)}
	}

	name, err := p.line.GroupName(ctx, groupID)
	if err != nil {
		slog.Warn("relay: group summary failed", "group_id", groupID, "error", err)
		name = groupID
	}

	code, err := p.broker.Issue(groupID, name)
	if err != nil {
		slog.Error("relay: issue binding code failed", "group_id", groupID, "error", err)
		if errors.Is(err, pairing.ErrCodeSpace) {
			return Reply{Body: "Too many pending binding codes right now. Please try again in a few minutes.", Tone: ToneError}
		}
		return Reply{Body: "Could not create a binding code. Please try again later.", Tone: ToneError}
	}

	return Reply{Body: "In the Discord channel you want to sync, run:\n" +
		"\n----------------------\n" +
		"/link " + code + "\n" +
		"----------------------\n" +
		"\nThis code can be used once and expires in 5 minutes."}
}
