package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/linecord/internal/config"
)

func doctorCmd() *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, credentials and data directories",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor(cmd.Context(), offline)
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "skip the LINE and Discord credential probes")
	return cmd
}

func runDoctor(ctx context.Context, offline bool) {
	fmt.Println("linecord doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults and environment)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Read(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("  Config invalid:\n    %s\n", err)
	}

	fmt.Println()
	fmt.Println("  Credentials:")
	checkSecret("LINE token", cfg.Line.ChannelAccessToken)
	checkSecret("LINE secret", cfg.Line.ChannelSecret)
	checkSecret("Discord", cfg.Discord.BotToken)

	if !offline {
		fmt.Println()
		fmt.Println("  Connectivity:")
		if cfg.Line.ChannelAccessToken != "" && cfg.Line.ChannelSecret != "" {
			name, verr := verifyLine(ctx, cfg)
			printProbe("LINE", name, verr)
		}
		if cfg.Discord.BotToken != "" {
			name, verr := verifyDiscord(ctx, cfg)
			printProbe("Discord", name, verr)
		}
	}

	fmt.Println()
	fmt.Println("  Server:")
	fmt.Printf("    %-14s %s\n", "Listen:", cfg.Server.Addr())
	if url := cfg.Server.CallbackURL(); url != "" {
		fmt.Printf("    %-14s %s\n", "Webhook URL:", url)
	} else {
		fmt.Printf("    %-14s (public_url not set; configure the LINE webhook manually)\n", "Webhook URL:")
	}
	checkToggle("Keep-alive", cfg.KeepAlive.Enabled)
	checkToggle("Telemetry", cfg.Telemetry.Enabled)

	fmt.Println()
	fmt.Println("  Media:")
	if cfg.Media.S3.Enabled {
		fmt.Printf("    %-14s s3://%s (%s)\n", "Host:", cfg.Media.S3.Bucket, cfg.Media.S3.PublicBaseURL)
	} else {
		fmt.Printf("    %-14s disabled (Discord images reach LINE by their CDN URL)\n", "Host:")
	}

	fmt.Println()
	fmt.Println("  Data:")
	checkDir("Data dir", cfg.Data.Dir)
	checkDir("Downloads", cfg.Data.DownloadsDir)
	checkDir("Stickers", cfg.Data.StickerDir())

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkSecret(name, value string) {
	switch {
	case value == "":
		fmt.Printf("    %-14s (not configured)\n", name+":")
	case len(value) > 8:
		fmt.Printf("    %-14s %s****%s\n", name+":", value[:4], value[len(value)-4:])
	default:
		fmt.Printf("    %-14s ****\n", name+":")
	}
}

func printProbe(name, identity string, verr *verifyError) {
	switch {
	case verr == nil:
		fmt.Printf("    %-14s OK (%s)\n", name+":", identity)
	case verr.fatal:
		fmt.Printf("    %-14s FAILED: %s\n", name+":", verr.message)
	default:
		fmt.Printf("    %-14s WARNING: %s\n", name+":", verr.message)
	}
}

func checkToggle(name string, enabled bool) {
	status := "disabled"
	if enabled {
		status = "enabled"
	}
	fmt.Printf("    %-14s %s\n", name+":", status)
}

func checkDir(name, path string) {
	info, err := os.Stat(path)
	switch {
	case err != nil:
		fmt.Printf("    %-14s %s (NOT FOUND, created on start)\n", name+":", path)
	case !info.IsDir():
		fmt.Printf("    %-14s %s (NOT A DIRECTORY)\n", name+":", path)
	default:
		fmt.Printf("    %-14s %s (OK)\n", name+":", path)
	}
}
