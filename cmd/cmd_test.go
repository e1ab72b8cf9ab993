package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/nextlevelbuilder/linecord/internal/config"
	"github.com/nextlevelbuilder/linecord/internal/store"
)

func TestPrintBindings(t *testing.T) {
	list := []store.SyncChannel{{
		SubNum:             1,
		LineGroupID:        "Cabc",
		LineGroupName:      "Family",
		DiscordChannelID:   42,
		DiscordChannelName: "general",
	}}

	var buf bytes.Buffer
	require.NoError(t, printBindings(&buf, list, false))
	out := buf.String()
	assert.Contains(t, out, "LINE GROUP")
	assert.Contains(t, out, "Family")
	assert.Contains(t, out, "#general")
	assert.Contains(t, out, "42")

	buf.Reset()
	require.NoError(t, printBindings(&buf, list, true))
	var decoded []store.SyncChannel
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, list, decoded)
}

func TestPrintBindingsEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printBindings(&buf, nil, false))
	assert.Equal(t, "No bindings.\n", buf.String())

	buf.Reset()
	require.NoError(t, printBindings(&buf, nil, true))
	assert.Equal(t, "[]\n", buf.String())
}

func TestPrintCodes(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	pending := []store.BindingCode{
		{Code: "111111", LineGroupID: "C1", LineGroupName: "Old", Expiration: now.Add(-time.Second)},
		{Code: "222222", LineGroupID: "C2", LineGroupName: "New", Expiration: now.Add(90 * time.Second)},
	}

	var buf bytes.Buffer
	require.NoError(t, printCodes(&buf, pending, now))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "111111")
	assert.Contains(t, lines[1], "expired")
	assert.Contains(t, lines[2], "in 1m30s")

	buf.Reset()
	require.NoError(t, printCodes(&buf, nil, now))
	assert.Equal(t, "No pending binding codes.\n", buf.String())
}

func TestRedactConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Line.ChannelAccessToken = "abcd-long-token-wxyz"
	cfg.Line.ChannelSecret = "short"
	cfg.Discord.BotToken = "discord-token-1234"
	cfg.Media.S3.Bucket = "media"

	out, err := redactConfig(cfg)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, yaml.Unmarshal(out, &raw))
	lineSec := raw["line"].(map[string]any)
	assert.Equal(t, "abcd****wxyz", lineSec["channel_access_token"])
	assert.Equal(t, "****", lineSec["channel_secret"])
	assert.Equal(t, "disc****1234", raw["discord"].(map[string]any)["bot_token"])

	s3 := raw["media"].(map[string]any)["s3"].(map[string]any)
	assert.Equal(t, "media", s3["bucket"])
	assert.NotContains(t, string(out), "long-token")
}

func TestWriteTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")

	require.NoError(t, writeTemplate(path, false))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.Template, string(data))

	err = writeTemplate(path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	require.NoError(t, writeTemplate(path, true))
	data, _ = os.ReadFile(path)
	assert.Equal(t, config.Template, string(data))
}

func TestStartupHint(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"config", fmt.Errorf("load: %w", config.ErrConfig), "linecord onboard"},
		{"store", fmt.Errorf("channels.json: %w", store.ErrIO), "data.dir"},
		{"port", errors.New("listen tcp :8080: bind: address already in use"), "server.port"},
		{"discord auth", errors.New("websocket: close 4004: Authentication failed."), "bot token was rejected"},
		{"intent", errors.New("websocket: close 4014: Disallowed intent(s)."), "Message Content intent"},
		{"other", errors.New("boom"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hint := startupHint(tt.err)
			if tt.want == "" {
				assert.Empty(t, hint)
				return
			}
			assert.Contains(t, hint, tt.want)
		})
	}
}

func TestValidatePort(t *testing.T) {
	assert.NoError(t, validatePort("8080"))
	assert.Error(t, validatePort("0"))
	assert.Error(t, validatePort("70000"))
	assert.Error(t, validatePort("http"))
}

func TestOnboardWriteEnvFile(t *testing.T) {
	cfg := config.Default()
	cfg.Line.ChannelAccessToken = "tok"
	cfg.Line.ChannelSecret = "sec"
	cfg.Media.S3.AccessKeyID = "AKIA"

	path := filepath.Join(t.TempDir(), ".env.local")
	require.NoError(t, onboardWriteEnvFile(path, cfg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, config.EnvLineAccessToken+`="tok"`)
	assert.Contains(t, out, config.EnvLineSecret+`="sec"`)
	assert.NotContains(t, out, config.EnvDiscordToken)
	// Access key without a secret stays in the config file.
	assert.NotContains(t, out, "AWS_ACCESS_KEY_ID")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
