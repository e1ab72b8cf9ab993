package relay

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/linecord/internal/pairing"
)

var c1 = ChannelRef{ID: 1001, Name: "general"}

func issueCode(t *testing.T, h *harness, group string) string {
	t.Helper()
	h.p.processLine(context.Background(), LineEvent{GroupID: group, UserID: "U1", ReplyToken: "r", Kind: LineText, Text: CommandStartBind})
	body := h.line.lastReply(t).Body
	i := strings.Index(body, "/link ")
	require.GreaterOrEqual(t, i, 0, body)
	return body[i+6 : i+12]
}

func TestLineCommands_GroupID(t *testing.T) {
	h := newHarness(t, false)
	h.p.processLine(context.Background(), LineEvent{GroupID: "G1", Kind: LineText, Text: "!ID"})
	assert.Equal(t, "Group ID: G1", h.line.lastReply(t).Body)
}

func TestLineCommands_NeverRelayed(t *testing.T) {
	h := newHarness(t, false)
	h.bind(t, "G1", 1001)

	h.p.processLine(context.Background(), LineEvent{GroupID: "G1", UserID: "U1", Kind: LineText, Text: "!ID"})
	h.p.processLine(context.Background(), LineEvent{GroupID: "G1", UserID: "U1", Kind: LineText, Text: "@Relay Bot "})
	assert.Zero(t, h.discord.attempts)
}

func TestLineCommands_BotMentionPrompt(t *testing.T) {
	h := newHarness(t, false)

	h.p.processLine(context.Background(), LineEvent{GroupID: "G1", Kind: LineText, Text: "@Relay Bot "})
	r := h.line.lastReply(t)
	require.Len(t, r.Actions, 2)
	assert.Equal(t, CommandInviteLink, r.Actions[0].ID)
	assert.Equal(t, CommandStartBind, r.Actions[1].ID)

	h.bind(t, "G1", 1001)
	h.p.processLine(context.Background(), LineEvent{GroupID: "G1", Kind: LineText, Text: "@Relay Bot"})
	assert.Contains(t, h.line.lastReply(t).Body, "already bound")
}

func TestLineCommands_InviteLink(t *testing.T) {
	h := newHarness(t, false)
	h.p.processLine(context.Background(), LineEvent{GroupID: "G1", Kind: LineText, Text: CommandInviteLink})
	assert.Equal(t, "https://discord.com/invite/bot", h.line.lastReply(t).Body)

	h.p.cfg.DiscordInviteURL = ""
	h.p.processLine(context.Background(), LineEvent{GroupID: "G1", Kind: LineText, Text: CommandInviteLink})
	assert.Contains(t, h.line.lastReply(t).Body, "has not published")
}

func TestLineCommands_StartBindingRefusedWhenBound(t *testing.T) {
	h := newHarness(t, false)
	h.bind(t, "G1", 1001)

	h.p.processLine(context.Background(), LineEvent{GroupID: "G1", Kind: LineText, Text: CommandStartBind})
	assert.Contains(t, h.line.lastReply(t).Body, "already bound")

	pending, err := h.broker.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestLinkScenario_SingleUseCode(t *testing.T) {
	h := newHarness(t, false)
	h.broker = pairing.NewService(codeStoreOf(t), pairing.WithClock(h.now),
		pairing.WithCodeSource(func() (string, error) { return "482913", nil }))
	h.p.broker = h.broker

	code := issueCode(t, h, "G1")
	require.Equal(t, "482913", code)

	h.clock = h.clock.Add(100 * time.Second)
	r := h.p.Link(context.Background(), c1, code)
	assert.False(t, r.Ephemeral, r.Body)
	assert.Equal(t, ToneSuccess, r.Tone)

	byGroup, ok := h.reg.LookupByGroup("G1")
	require.True(t, ok)
	byChannel, ok := h.reg.LookupByChannel(1001)
	require.True(t, ok)
	assert.Equal(t, byGroup, byChannel)
	assert.Equal(t, "Family_general", byGroup.FolderName)
	assert.Equal(t, []int64{1001}, h.discord.created)

	h.clock = h.clock.Add(100 * time.Second)
	r = h.p.Link(context.Background(), ChannelRef{ID: 2002, Name: "other"}, code)
	assert.True(t, r.Ephemeral)
	assert.Contains(t, r.Body, "invalid")

	h.drain(t)
	require.Len(t, h.line.pushes, 1)
	assert.Equal(t, "G1", h.line.pushes[0].groupID)
	assert.Contains(t, h.line.pushes[0].msgs[0].Text, "Binding complete")
}

func TestLink_ReplyDoesNotWaitForLineNotice(t *testing.T) {
	h := newHarness(t, false)
	code := issueCode(t, h, "G1")
	h.line.block = make(chan struct{})

	done := make(chan Reply, 1)
	go func() { done <- h.p.Link(context.Background(), c1, code) }()

	select {
	case r := <-done:
		assert.Equal(t, ToneSuccess, r.Tone, r.Body)
	case <-time.After(5 * time.Second):
		t.Fatal("link reply waited for the LINE push")
	}
	assert.Empty(t, h.line.pushes)

	close(h.line.block)
	h.drain(t)
	require.Len(t, h.line.pushes, 1)
	assert.Contains(t, h.line.pushes[0].msgs[0].Text, "Binding complete")
}

func TestLink_ExpiredCodeConsumed(t *testing.T) {
	h := newHarness(t, false)
	code := issueCode(t, h, "G1")

	h.clock = h.clock.Add(301 * time.Second)
	r := h.p.Link(context.Background(), c1, code)
	assert.Contains(t, r.Body, "expired")
	assert.True(t, r.Ephemeral)

	bc, err := h.broker.Peek(code)
	require.NoError(t, err)
	assert.Nil(t, bc)
	_, ok := h.reg.LookupByChannel(1001)
	assert.False(t, ok)
}

func TestLink_ChannelAlreadyBoundKeepsCode(t *testing.T) {
	h := newHarness(t, false)
	h.bind(t, "G2", 1001)
	code := issueCode(t, h, "G1")

	r := h.p.Link(context.Background(), c1, code)
	assert.Contains(t, r.Body, "already bound")

	bc, err := h.broker.Peek(code)
	require.NoError(t, err)
	assert.NotNil(t, bc)
}

func TestLink_GroupBoundElsewhereConsumesCode(t *testing.T) {
	h := newHarness(t, false)
	code := issueCode(t, h, "G1")
	h.bind(t, "G1", 2002)

	r := h.p.Link(context.Background(), c1, code)
	assert.Equal(t, ToneError, r.Tone)
	assert.True(t, r.Ephemeral)
	assert.Contains(t, r.Body, "already bound to another channel")

	bc, err := h.broker.Peek(code)
	require.NoError(t, err)
	assert.Nil(t, bc)
	assert.Empty(t, h.discord.created)
	_, ok := h.reg.LookupByChannel(1001)
	assert.False(t, ok)

	h.drain(t)
	assert.Empty(t, h.line.pushes)
}

func TestLink_WebhookFailure(t *testing.T) {
	h := newHarness(t, false)
	code := issueCode(t, h, "G1")
	h.discord.createErr = assert.AnError

	r := h.p.Link(context.Background(), c1, code)
	assert.Equal(t, ToneError, r.Tone)
	assert.Equal(t, 0, h.reg.Len())
}

func TestUnlink_ConfirmWithinWindow(t *testing.T) {
	h := newHarness(t, false)
	h.bind(t, "G1", 1001)

	r := h.p.RequestUnlink(c1)
	require.Len(t, r.Actions, 2)
	assert.Equal(t, ActionUnlinkConfirm, r.Actions[0].ID)
	assert.Equal(t, ActionDanger, r.Actions[0].Style)

	h.clock = h.clock.Add(10 * time.Second)
	r = h.p.ConfirmUnlink(context.Background(), c1, "bob")
	assert.Equal(t, ToneSuccess, r.Tone)
	assert.Contains(t, r.Body, "By: bob")

	_, ok := h.reg.LookupByGroup("G1")
	assert.False(t, ok)
	assert.Equal(t, []string{"https://discord.com/api/webhooks/1001/token"}, h.discord.deleted)
	h.drain(t)
	require.Len(t, h.line.pushes, 1)
	assert.Contains(t, h.line.pushes[0].msgs[0].Text, "Unbound")
}

func TestUnlink_ConfirmAfterWindowExpired(t *testing.T) {
	h := newHarness(t, false)
	h.bind(t, "G1", 1001)

	h.p.RequestUnlink(c1)
	h.clock = h.clock.Add(21 * time.Second)
	r := h.p.ConfirmUnlink(context.Background(), c1, "bob")
	assert.Contains(t, r.Body, "expired")

	_, ok := h.reg.LookupByGroup("G1")
	assert.True(t, ok)
}

func TestUnlink_Cancel(t *testing.T) {
	h := newHarness(t, false)
	h.bind(t, "G1", 1001)

	h.p.RequestUnlink(c1)
	assert.Equal(t, "Cancelled.", h.p.CancelUnlink(c1).Body)
	r := h.p.ConfirmUnlink(context.Background(), c1, "bob")
	assert.Contains(t, r.Body, "expired")
	_, ok := h.reg.LookupByGroup("G1")
	assert.True(t, ok)
}

func TestUnlink_NotBound(t *testing.T) {
	h := newHarness(t, false)
	r := h.p.RequestUnlink(c1)
	assert.True(t, r.Ephemeral)
	assert.Contains(t, r.Body, "not bound")
}

func TestAbout(t *testing.T) {
	h := newHarness(t, false)
	h.p.cfg.SourceURL = "https://github.com/example/linecord"

	r := h.p.About(c1)
	assert.Contains(t, r.Body, "not bound")
	require.Len(t, r.Actions, 2)
	assert.Equal(t, "https://discord.com/invite/bot", r.Actions[0].URL)

	h.bind(t, "G1", 1001)
	r = h.p.About(c1)
	assert.Contains(t, r.Body, "LINE group: Family")
}
