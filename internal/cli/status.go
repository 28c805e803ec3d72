package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tokenkeeper/tokenkeeper/internal/models"
	"github.com/tokenkeeper/tokenkeeper/internal/status"
)

var statusFlags struct {
	Watch bool
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the daemon status",
	Long: `Read the daemon's status snapshot file and print a summary. With
--watch the command keeps running and reprints on every update.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVarP(&statusFlags.Watch, "watch", "w", false, "Keep watching for status updates")
	RootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	reporter := status.New(cfg.Paths.StatusFile, cfg.Scheduler.StaleAfter)

	printOnce := func(st *models.DaemonStatus) {
		if globalFlags.JSON {
			data, _ := json.MarshalIndent(st, "", "  ")
			fmt.Println(string(data))
			return
		}
		if summary, err := reporter.Summary(); err == nil {
			fmt.Println(summary)
		}
	}

	st, err := reporter.GetStatus()
	if err != nil {
		return fmt.Errorf("no daemon status available: %w", err)
	}
	printOnce(st)

	if !statusFlags.Watch {
		return nil
	}

	return reporter.Watch(cmd.Context(), func(st *models.DaemonStatus) {
		fmt.Println("---")
		printOnce(st)
	})
}
