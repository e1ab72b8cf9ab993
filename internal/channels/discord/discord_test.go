package discord

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/linecord/internal/media"
	"github.com/nextlevelbuilder/linecord/internal/relay"
)

func TestParseWebhookURL(t *testing.T) {
	cases := []struct{ raw, id, token string }{
		{"https://discord.com/api/webhooks/123/tok-en", "123", "tok-en"},
		{"https://discordapp.com/api/webhooks/123/abc", "123", "abc"},
		{"https://canary.discord.com/api/v10/webhooks/9/xyz/", "9", "xyz"},
		{webhookURL("55", "t"), "55", "t"},
	}
	for _, tc := range cases {
		id, token, err := parseWebhookURL(tc.raw)
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.id, id, tc.raw)
		assert.Equal(t, tc.token, token, tc.raw)
	}

	for _, bad := range []string{
		"https://example.com/api/webhooks/1/t",
		"https://discord.com/api/channels/1",
		"https://discord.com/api/webhooks/1",
		"::not a url",
	} {
		_, _, err := parseWebhookURL(bad)
		assert.ErrorIs(t, err, ErrWebhookURL, bad)
	}
}

func TestPersonaName(t *testing.T) {
	assert.Equal(t, "", personaName(""))
	assert.Equal(t, "Alice (LINE)", personaName("Alice (LINE)"))
	assert.Equal(t, "D\u200biscord fan", personaName("Discord fan"))
	assert.Equal(t, fallbackPersona, personaName("   "))
	long := personaName(string(make([]rune, 100)))
	assert.LessOrEqual(t, len([]rune(long)), maxUsernameRunes)
}

func TestWebhookParamsAttachesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpeg"), 0o644))

	params, closeFn, err := webhookParams(relay.WebhookPost{
		Username: "Alice",
		Content:  "hi",
		File:     &media.File{Path: path, Name: "a.jpg", MIME: "image/jpeg"},
	})
	require.NoError(t, err)
	defer closeFn()

	require.Len(t, params.Files, 1)
	assert.Equal(t, "a.jpg", params.Files[0].Name)
	assert.Equal(t, "image/jpeg", params.Files[0].ContentType)
	body, err := io.ReadAll(params.Files[0].Reader)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(body))
	require.NotNil(t, params.AllowedMentions)
	assert.Empty(t, params.AllowedMentions.Parse)
}

func TestWebhookParamsMissingFile(t *testing.T) {
	_, _, err := webhookParams(relay.WebhookPost{File: &media.File{Path: "/nonexistent/x.jpg"}})
	assert.Error(t, err)
}

func testLookups() lookups {
	channels := map[string]*discordgo.Channel{
		"1001": {ID: "1001", Name: "general", Type: discordgo.ChannelTypeGuildText},
		"2002": {ID: "2002", Name: "thread", Type: discordgo.ChannelTypeGuildPublicThread, ParentID: "1001"},
		"3003": {ID: "3003", Name: "random", Type: discordgo.ChannelTypeGuildText},
	}
	return lookups{
		channel: func(id string) *discordgo.Channel { return channels[id] },
		role: func(_, id string) string {
			if id == "77" {
				return "mods"
			}
			return ""
		},
	}
}

func TestConvertMessage(t *testing.T) {
	m := &discordgo.Message{
		ID:           "m1",
		ChannelID:    "1001",
		GuildID:      "g",
		Content:      "hi <@5> <@&77> <#3003>",
		Author:       &discordgo.User{ID: "9", Username: "bob", GlobalName: "Bob"},
		Member:       &discordgo.Member{Nick: "Bobby"},
		Mentions:     []*discordgo.User{{ID: "5", Username: "carol"}},
		MentionRoles: []string{"77", "78"},
		Attachments: []*discordgo.MessageAttachment{
			{ID: "a1", Filename: "cat.png", URL: "https://cdn/cat.png", ProxyURL: "https://media/cat.png", Size: 10},
		},
		StickerItems: []*discordgo.StickerItem{
			{ID: "s1", Name: "wave", FormatType: discordgo.StickerFormatTypePNG},
			{ID: "s2", Name: "lottie", FormatType: discordgo.StickerFormatTypeLottie},
			{ID: "s3", Name: "party", FormatType: discordgo.StickerFormatTypeGIF},
		},
	}

	msg, ok := convertMessage(m, testLookups())
	require.True(t, ok)
	assert.Equal(t, int64(1001), msg.ChannelID)
	assert.Equal(t, int64(0), msg.ParentID)
	assert.Equal(t, "general", msg.ChannelName)
	assert.Equal(t, "Bobby", msg.AuthorName)
	assert.Equal(t, []relay.Mention{{ID: "5", Display: "carol"}}, msg.Mentions.Users)
	assert.Equal(t, []relay.Mention{{ID: "77", Display: "mods"}}, msg.Mentions.Roles)
	assert.Equal(t, []relay.Mention{{ID: "3003", Display: "random"}}, msg.Mentions.Channels)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "cat.png", msg.Attachments[0].Filename)
	require.Len(t, msg.Stickers, 2)
	assert.Equal(t, stickerCDN+"s1.png", msg.Stickers[0].URL)
	assert.Equal(t, stickerCDN+"s3.gif", msg.Stickers[1].URL)

	assert.Equal(t, "hi @carol @mods #random", relay.RewriteMentions(msg.Content, msg.Mentions))
}

func TestConvertThreadMessage(t *testing.T) {
	m := &discordgo.Message{
		ID:        "m2",
		ChannelID: "2002",
		GuildID:   "g",
		Author:    &discordgo.User{ID: "9", Username: "bob"},
		Content:   "in thread",
	}
	msg, ok := convertMessage(m, testLookups())
	require.True(t, ok)
	assert.Equal(t, int64(2002), msg.ChannelID)
	assert.Equal(t, int64(1001), msg.ParentID)
	assert.Equal(t, int64(1001), msg.BindingChannelID())
	assert.Equal(t, "general", msg.ChannelName)
	assert.Equal(t, "bob", msg.AuthorName)
}

func TestConvertMessageBadChannelID(t *testing.T) {
	_, ok := convertMessage(&discordgo.Message{ChannelID: "x", Author: &discordgo.User{}}, testLookups())
	assert.False(t, ok)
}

func TestRenderReply(t *testing.T) {
	data := renderReply(relay.Reply{
		Title:  "Unlink?",
		Body:   "This removes the binding.",
		Fields: []relay.Field{{Name: "LINE group", Value: "Family", Inline: true}},
		Actions: []relay.Action{
			{ID: relay.ActionUnlinkConfirm, Label: "Unlink", Style: relay.ActionDanger},
			{ID: relay.ActionUnlinkCancel, Label: "Cancel"},
			{Label: "Docs", URL: "https://example.org"},
		},
		Tone:      relay.ToneWarning,
		Ephemeral: true,
	})

	assert.Equal(t, discordgo.MessageFlagsEphemeral, data.Flags)
	require.Len(t, data.Embeds, 1)
	assert.Equal(t, toneColors[relay.ToneWarning], data.Embeds[0].Color)
	require.Len(t, data.Embeds[0].Fields, 1)
	assert.True(t, data.Embeds[0].Fields[0].Inline)

	require.Len(t, data.Components, 1)
	row, ok := data.Components[0].(discordgo.ActionsRow)
	require.True(t, ok)
	require.Len(t, row.Components, 3)
	assert.Equal(t, discordgo.Button{Label: "Unlink", Style: discordgo.DangerButton, CustomID: relay.ActionUnlinkConfirm}, row.Components[0])
	assert.Equal(t, discordgo.Button{Label: "Cancel", Style: discordgo.SecondaryButton, CustomID: relay.ActionUnlinkCancel}, row.Components[1])
	assert.Equal(t, discordgo.Button{Label: "Docs", Style: discordgo.LinkButton, URL: "https://example.org"}, row.Components[2])
}

func TestRenderReplyWrapsButtonRows(t *testing.T) {
	actions := make([]relay.Action, 7)
	for i := range actions {
		actions[i] = relay.Action{ID: "a", Label: "a"}
	}
	data := renderReply(relay.Reply{Body: "x", Actions: actions})
	require.Len(t, data.Components, 2)
	assert.Len(t, data.Components[0].(discordgo.ActionsRow).Components, 5)
	assert.Len(t, data.Components[1].(discordgo.ActionsRow).Components, 2)
	assert.Zero(t, data.Flags)
}

func restErr(status int) error {
	return &discordgo.RESTError{Response: &http.Response{StatusCode: status}}
}

func TestClassify(t *testing.T) {
	assert.ErrorIs(t, classify("op", restErr(http.StatusInternalServerError)), relay.ErrRetryable)
	assert.ErrorIs(t, classify("op", restErr(http.StatusTooManyRequests)), relay.ErrRetryable)
	assert.ErrorIs(t, classify("op", errors.New("connection reset")), relay.ErrRetryable)

	err := classify("op", restErr(http.StatusForbidden))
	assert.NotErrorIs(t, err, relay.ErrRetryable)
	assert.Equal(t, http.StatusForbidden, restStatus(err))
}

func TestMatchesPost(t *testing.T) {
	since := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	posted := &discordgo.Message{
		WebhookID: "111",
		Content:   "Hello",
		Timestamp: since.Add(2 * time.Second),
	}
	post := relay.WebhookPost{Content: "Hello", Username: "Alice (LINE)"}

	assert.True(t, matchesPost(posted, "111", post, since))
	assert.False(t, matchesPost(posted, "222", post, since), "other webhook")
	assert.False(t, matchesPost(posted, "111", relay.WebhookPost{Content: "Bye"}, since), "other content")
	assert.False(t, matchesPost(posted, "111", post, since.Add(time.Hour)), "older than the send")
	assert.False(t, matchesPost(nil, "111", post, since))

	withFile := post
	withFile.File = &media.File{Name: "a.png"}
	assert.False(t, matchesPost(posted, "111", withFile, since), "attachment missing")
	posted.Attachments = []*discordgo.MessageAttachment{{Filename: "a.png"}}
	assert.True(t, matchesPost(posted, "111", withFile, since))
}

func TestSlashCommands(t *testing.T) {
	cmds := slashCommands()
	names := make([]string, 0, len(cmds))
	for _, c := range cmds {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"about", "help", "link", "unlink"}, names)
	require.Len(t, cmds[2].Options, 1)
	assert.True(t, cmds[2].Options[0].Required)
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
