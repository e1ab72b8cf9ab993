package discord

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/linecord/internal/relay"
)

// restLog stands in for the Discord REST API and records every call in order.
type restLog struct {
	mu      sync.Mutex
	calls   []string
	respond func(req *http.Request) string
}

func (r *restLog) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *restLog) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *restLog) RoundTrip(req *http.Request) (*http.Response, error) {
	call := req.Method + " " + req.URL.Path
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		if len(b) > 0 {
			call += " " + string(b)
		}
	}
	r.add(call)

	body := `{"id":"9","channel_id":"1001"}`
	if r.respond != nil {
		body = r.respond(req)
	} else if req.Method == http.MethodGet {
		body = `{"id":"1001","name":"general","type":0}`
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}, nil
}

type fakeHandler struct {
	log  *restLog
	link relay.Reply
}

func (h *fakeHandler) HandleDiscordMessage(relay.DiscordMessage) {}
func (h *fakeHandler) About(relay.ChannelRef) relay.Reply { return relay.Reply{Body: "about"} }
func (h *fakeHandler) Help() relay.Reply { return relay.Reply{Body: "help"} }
func (h *fakeHandler) RequestUnlink(relay.ChannelRef) relay.Reply {
	return relay.Reply{Body: "sure?"}
}
func (h *fakeHandler) CancelUnlink(relay.ChannelRef) relay.Reply { return relay.Reply{Body: "Cancelled."} }

func (h *fakeHandler) Link(_ context.Context, ch relay.ChannelRef, code string) relay.Reply {
	h.log.add("link " + code)
	return h.link
}

func (h *fakeHandler) ConfirmUnlink(context.Context, relay.ChannelRef, string) relay.Reply {
	h.log.add("confirm unlink")
	return relay.Reply{Body: "unbound"}
}

func newTestChannel(t *testing.T, h Handler, log *restLog) *Channel {
	t.Helper()
	c, err := New(Config{Token: "bot-token"})
	require.NoError(t, err)
	c.SetPipeline(h)
	c.session.Client = &http.Client{Transport: log}
	return c
}

func linkInteraction() *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:        "i1",
		AppID:     "app",
		Token:     "tok",
		Type:      discordgo.InteractionApplicationCommand,
		ChannelID: "1001",
		Data: discordgo.ApplicationCommandInteractionData{
			Name: "link",
			Options: []*discordgo.ApplicationCommandInteractionDataOption{{
				Name:  "code",
				Type:  discordgo.ApplicationCommandOptionInteger,
				Value: float64(482913),
			}},
		},
	}}
}

func indexOf(calls []string, prefix string) int {
	for i, c := range calls {
		if strings.HasPrefix(c, prefix) {
			return i
		}
	}
	return -1
}

func TestLinkAcknowledgedBeforeBinding(t *testing.T) {
	log := &restLog{}
	h := &fakeHandler{log: log, link: relay.Reply{Title: "bound!", Tone: relay.ToneSuccess}}
	c := newTestChannel(t, h, log)

	c.onInteractionCreate(c.session, linkInteraction())

	calls := log.snapshot()
	require.NotEmpty(t, calls)
	assert.Contains(t, calls[0], "/interactions/i1/tok/callback")
	assert.Contains(t, calls[0], `"type":5`)

	link := indexOf(calls, "link 482913")
	edit := indexOf(calls, "PATCH /api/v9/webhooks/app/tok/messages/@original")
	require.Positive(t, link, calls)
	require.Greater(t, edit, link, calls)
	assert.Contains(t, calls[edit], "bound!")
	assert.Equal(t, -1, indexOf(calls, "DELETE"))
}

func TestLinkEphemeralReplySentAsFollowup(t *testing.T) {
	log := &restLog{}
	h := &fakeHandler{log: log, link: relay.Reply{Body: "Binding failed", Tone: relay.ToneError, Ephemeral: true}}
	c := newTestChannel(t, h, log)

	c.onInteractionCreate(c.session, linkInteraction())

	calls := log.snapshot()
	del := indexOf(calls, "DELETE /api/v9/webhooks/app/tok/messages/@original")
	followup := indexOf(calls, "POST /api/v9/webhooks/app/tok")
	require.Greater(t, del, indexOf(calls, "link 482913"), calls)
	require.Greater(t, followup, del, calls)
	assert.Contains(t, calls[followup], `"flags":64`)
	assert.Contains(t, calls[followup], "Binding failed")
	assert.Equal(t, -1, indexOf(calls, "PATCH"))
}

func TestHelpAnsweredImmediately(t *testing.T) {
	log := &restLog{}
	c := newTestChannel(t, &fakeHandler{log: log}, log)

	i := linkInteraction()
	i.Data = discordgo.ApplicationCommandInteractionData{Name: "help"}
	c.onInteractionCreate(c.session, i)

	calls := log.snapshot()
	cb := indexOf(calls, "POST /api/v9/interactions/i1/tok/callback")
	require.GreaterOrEqual(t, cb, 0, calls)
	assert.Contains(t, calls[cb], `"type":4`)
	assert.Contains(t, calls[cb], "help")
	assert.Equal(t, -1, indexOf(calls, "PATCH"))
}

func TestConfirmUnlinkDeferredUpdate(t *testing.T) {
	log := &restLog{}
	c := newTestChannel(t, &fakeHandler{log: log}, log)

	c.onInteractionCreate(c.session, &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:        "i2",
		AppID:     "app",
		Token:     "tok",
		Type:      discordgo.InteractionMessageComponent,
		ChannelID: "1001",
		Data:      discordgo.MessageComponentInteractionData{CustomID: relay.ActionUnlinkConfirm},
		User:      &discordgo.User{Username: "bob"},
	}})

	calls := log.snapshot()
	require.NotEmpty(t, calls)
	assert.Contains(t, calls[0], `"type":6`)
	confirm := indexOf(calls, "confirm unlink")
	require.Positive(t, confirm, calls)
	assert.Greater(t, indexOf(calls, "PATCH /api/v9/webhooks/app/tok/messages/@original"), confirm)
}

func TestDeliveredFindsEarlierPost(t *testing.T) {
	since := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	log := &restLog{respond: func(*http.Request) string {
		return `[
			{"id":"3","webhook_id":"777","content":"Hello","timestamp":"2026-01-01T12:00:01Z"},
			{"id":"2","webhook_id":"888","content":"Other","timestamp":"2026-01-01T12:00:00Z"}
		]`
	}}
	c := newTestChannel(t, &fakeHandler{log: log}, log)
	hook := "https://discord.com/api/webhooks/777/tok"

	ok, err := c.Delivered(context.Background(), 1001, hook, relay.WebhookPost{Content: "Hello"}, since)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Delivered(context.Background(), 1001, hook, relay.WebhookPost{Content: "Other"}, since)
	require.NoError(t, err)
	assert.False(t, ok, "posted by another webhook")

	calls := log.snapshot()
	require.NotEmpty(t, calls)
	assert.True(t, strings.HasPrefix(calls[0], "GET /api/v9/channels/1001/messages"), calls[0])
}
