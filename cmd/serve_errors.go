package cmd

import (
	"errors"
	"strings"

	"github.com/nextlevelbuilder/linecord/internal/config"
	"github.com/nextlevelbuilder/linecord/internal/store"
)

// startupHint maps a fatal startup error to a next step for the operator.
// Raw API payloads are never repeated.
func startupHint(err error) string {
	lower := strings.ToLower(err.Error())

	switch {
	case errors.Is(err, config.ErrConfig):
		return "Hint: run `linecord onboard`, or `linecord config init` and edit the file. Secrets can also come from LINECORD_* environment variables."
	case errors.Is(err, store.ErrIO):
		return "Hint: a file under data.dir could not be read or written. Fix or remove the damaged JSON file; bindings are rebuilt from it on every start."
	case containsAny(lower, "address already in use", "bind: permission denied"):
		return "Hint: another process holds server.port, or the port needs privileges. Set server.port or PORT."
	case containsAny(lower, "disallowed intent", "4014"):
		return "Hint: enable the Message Content intent for the bot in the Discord developer portal."
	case containsAny(lower, "401", "unauthorized", "authentication failed", "4004"):
		return "Hint: the Discord bot token was rejected. Reset it in the developer portal and update discord.bot_token."
	default:
		return ""
	}
}

// containsAny returns true if s contains any of the given substrings.
func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
