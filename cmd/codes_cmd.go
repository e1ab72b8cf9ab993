package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/linecord/internal/pairing"
	"github.com/nextlevelbuilder/linecord/internal/store"
)

func codesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codes",
		Short: "Inspect and prune pending binding codes",
	}
	cmd.AddCommand(codesListCmd())
	cmd.AddCommand(codesPruneCmd())
	cmd.AddCommand(codesRevokeCmd())
	return cmd
}

func openBroker() (*pairing.Service, error) {
	_, stores, err := openStores()
	if err != nil {
		return nil, err
	}
	return pairing.NewService(stores.Codes), nil
}

func codesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending binding codes",
		RunE: func(cmd *cobra.Command, args []string) error {
			broker, err := openBroker()
			if err != nil {
				return err
			}
			pending, err := broker.Pending()
			if err != nil {
				return err
			}
			return printCodes(os.Stdout, pending, time.Now())
		},
	}
}

func printCodes(w io.Writer, pending []store.BindingCode, now time.Time) error {
	if len(pending) == 0 {
		fmt.Fprintln(w, "No pending binding codes.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "CODE\tLINE GROUP\tGROUP ID\tEXPIRES\n")
	for _, bc := range pending {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", bc.Code, bc.LineGroupName, bc.LineGroupID, expiresIn(bc, now))
	}
	return tw.Flush()
}

func expiresIn(bc store.BindingCode, now time.Time) string {
	if bc.Expired(now) {
		return "expired"
	}
	return "in " + bc.Expiration.Sub(now).Truncate(time.Second).String()
}

func codesPruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Drop expired binding codes",
		RunE: func(cmd *cobra.Command, args []string) error {
			broker, err := openBroker()
			if err != nil {
				return err
			}
			n, err := broker.PruneExpired()
			if err != nil {
				return err
			}
			fmt.Printf("Pruned %d expired code(s).\n", n)
			return nil
		},
	}
}

func codesRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke [code]",
		Short: "Revoke a pending binding code (interactive if no code given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			broker, err := openBroker()
			if err != nil {
				return err
			}

			var code string
			if len(args) == 1 {
				code = args[0]
			} else {
				code, err = codesInteractiveSelect(broker)
				if err != nil || code == "" {
					return err
				}
			}

			bc, err := broker.Peek(code)
			if err != nil {
				return err
			}
			if bc == nil {
				return fmt.Errorf("no pending code %s", code)
			}
			if err := broker.Consume(code); err != nil {
				return err
			}
			fmt.Printf("Revoked code %s\n", code)
			return nil
		},
	}
}

// codesInteractiveSelect lists pending codes and lets the operator pick one.
func codesInteractiveSelect(broker *pairing.Service) (string, error) {
	pending, err := broker.Pending()
	if err != nil {
		return "", err
	}
	if len(pending) == 0 {
		fmt.Println("No pending binding codes.")
		return "", nil
	}

	now := time.Now()
	options := make([]SelectOption[string], 0, len(pending))
	for _, bc := range pending {
		label := fmt.Sprintf("[%s]  %s  (%s)", bc.Code, bc.LineGroupName, expiresIn(bc, now))
		options = append(options, SelectOption[string]{Label: label, Value: bc.Code})
	}

	selected, err := promptSelect("Select a binding code to revoke", options, 0)
	if err != nil {
		fmt.Println("Cancelled.")
		return "", nil
	}
	return selected, nil
}
