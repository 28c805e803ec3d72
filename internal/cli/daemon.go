package cli

import (
	"github.com/spf13/cobra"

	"github.com/tokenkeeper/tokenkeeper/internal/daemon"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the refresh scheduler daemon",
	Long: `Run tokenkeeper as a long-lived process: token refresh, quota
checks and health ticks on their configured schedules, a status
snapshot file for outside observers, and (when enabled) the read-only
HTTP status API. Stops gracefully on SIGINT/SIGTERM.`,
	RunE: runDaemon,
}

func init() {
	RootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	store, orch := buildStack(cfg, logger)

	d, err := daemon.New(cfg, orch, store, logger)
	if err != nil {
		return err
	}

	return d.Run(cmd.Context())
}
