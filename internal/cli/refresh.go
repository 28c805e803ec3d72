package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var refreshFlags struct {
	Force bool
}

var refreshCmd = &cobra.Command{
	Use:   "refresh [account]",
	Short: "Refresh access tokens",
	Long: `Refresh the access token for one account, or for every account
when no account name is given. Accounts whose tokens are still valid
are skipped unless --force is set.

Examples:
  # Refresh everything that is expired or about to expire
  tokenkeeper refresh

  # Force-refresh a single account
  tokenkeeper refresh work --force`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRefresh,
}

func init() {
	refreshCmd.Flags().BoolVar(&refreshFlags.Force, "force", false, "Refresh even when tokens are still valid")
	RootCmd.AddCommand(refreshCmd)
}

func runRefresh(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	_, orch := buildStack(cfg, logger)

	ctx := cmd.Context()

	var failed []string
	var updated, skipped int
	if len(args) == 1 {
		r, err := orch.RefreshOne(ctx, args[0], refreshFlags.Force)
		if err != nil {
			return err
		}
		failed, updated, skipped = r.Failed, len(r.Updated), len(r.Skipped)
	} else {
		r, err := orch.RefreshAll(ctx, refreshFlags.Force)
		if err != nil {
			return err
		}
		failed, updated, skipped = r.Failed, len(r.Updated), len(r.Skipped)
	}

	if globalFlags.JSON {
		out, _ := json.MarshalIndent(map[string]any{
			"updated": updated,
			"skipped": skipped,
			"failed":  failed,
		}, "", "  ")
		fmt.Println(string(out))
	} else {
		fmt.Printf("Refreshed %d account(s), skipped %d\n", updated, skipped)
		for _, name := range failed {
			fmt.Fprintf(os.Stderr, "failed: %s\n", name)
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("%d account(s) failed to refresh", len(failed))
	}
	return nil
}
