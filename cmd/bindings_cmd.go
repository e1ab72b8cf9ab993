package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/linecord/internal/channels/discord"
	"github.com/nextlevelbuilder/linecord/internal/registry"
	"github.com/nextlevelbuilder/linecord/internal/store"
)

func bindingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bindings",
		Short: "List and remove LINE group ↔ Discord channel bindings",
	}
	cmd.AddCommand(bindingsListCmd())
	cmd.AddCommand(bindingsRemoveCmd())
	return cmd
}

func bindingsListCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List confirmed bindings",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, stores, err := openStores()
			if err != nil {
				return err
			}
			reg := registry.New(stores.Channels)
			if err := reg.LoadAll(); err != nil {
				return err
			}
			return printBindings(os.Stdout, reg.All(), jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func printBindings(w io.Writer, list []store.SyncChannel, jsonOutput bool) error {
	if jsonOutput {
		if list == nil {
			list = []store.SyncChannel{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}
	if len(list) == 0 {
		fmt.Fprintln(w, "No bindings.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "#\tLINE GROUP\tGROUP ID\tDISCORD CHANNEL\tCHANNEL ID\n")
	for _, sc := range list {
		fmt.Fprintf(tw, "%d\t%s\t%s\t#%s\t%d\n", sc.SubNum, sc.LineGroupName, sc.LineGroupID, sc.DiscordChannelName, sc.DiscordChannelID)
	}
	return tw.Flush()
}

func bindingsRemoveCmd() *cobra.Command {
	var (
		groupID   string
		channelID string
	)
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a binding by LINE group id or Discord channel id",
		Long: "Remove a binding from the store. A running relay picks up the change\n" +
			"through its file watcher. The Discord webhook is deleted when a bot token is configured.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (groupID == "") == (channelID == "") {
				return errors.New("exactly one of --group or --channel is required")
			}
			cfg, stores, err := openStores()
			if err != nil {
				return err
			}
			reg := registry.New(stores.Channels)
			if err := reg.LoadAll(); err != nil {
				return err
			}

			removed, ok, err := removeBinding(reg, groupID, channelID)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("No matching binding.")
				return nil
			}
			fmt.Printf("Removed binding #%d: %s ↔ #%s\n", removed.SubNum, removed.LineGroupName, removed.DiscordChannelName)

			if cfg.Discord.BotToken == "" || removed.DiscordChannelWebhook == "" {
				return nil
			}
			dc, err := discord.New(discord.Config{Token: cfg.Discord.BotToken})
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			if err := dc.DeleteWebhook(ctx, removed.DiscordChannelWebhook); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: could not delete the Discord webhook: %v\n", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&groupID, "group", "", "LINE group id")
	cmd.Flags().StringVar(&channelID, "channel", "", "Discord channel id")
	return cmd
}

func removeBinding(reg *registry.Registry, groupID, channelID string) (store.SyncChannel, bool, error) {
	if groupID != "" {
		return reg.RemoveByGroup(groupID)
	}
	id, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return store.SyncChannel{}, false, fmt.Errorf("invalid channel id %q", channelID)
	}
	return reg.RemoveByChannel(id)
}
