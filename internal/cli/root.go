// Package cli wires the cobra command tree.
package cli

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/tokenkeeper/tokenkeeper/internal/config"
	"github.com/tokenkeeper/tokenkeeper/internal/credstore"
	"github.com/tokenkeeper/tokenkeeper/internal/logging"
	"github.com/tokenkeeper/tokenkeeper/internal/notify"
	"github.com/tokenkeeper/tokenkeeper/internal/oauth"
	"github.com/tokenkeeper/tokenkeeper/internal/refresher"
)

// GlobalFlags contains global flags available for all commands.
type GlobalFlags struct {
	Config  string
	Verbose bool
	JSON    bool
}

var globalFlags GlobalFlags

// RootCmd represents the base command when called without subcommands.
var RootCmd = &cobra.Command{
	Use:   "tokenkeeper",
	Short: "tokenkeeper - credential lifecycle and refresh orchestration",
	Long: `tokenkeeper keeps a set of provider credentials valid over time:
it decodes token expiry, refreshes expired tokens with bounded retries,
tracks quota usage, and runs the whole cycle on a schedule as a daemon.

Use "tokenkeeper [command] --help" for more information about a command.`,
	SilenceUsage: true,
}

// Execute runs the root command and maps errors to the process exit
// code: 0 on success, 1 on any failure.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err.Error())
		os.Exit(1)
	}
}

func init() {
	configPath := os.Getenv("TOKENKEEPER_CONFIG_PATH")

	RootCmd.PersistentFlags().StringVar(&globalFlags.Config, "config", configPath, "Path to configuration file")
	RootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "Enable verbose output")
	RootCmd.PersistentFlags().BoolVar(&globalFlags.JSON, "json", false, "Output in JSON format")

	RootCmd.AddCommand(versionCmd)
}

// loadConfig loads the effective configuration for the current flags.
func loadConfig() (*config.Config, error) {
	return config.LoadOrDefault(globalFlags.Config)
}

// newLogger builds a logger honoring --verbose and the configured level.
func newLogger(cfg *config.Config) *logging.Logger {
	level := cfg.Log.Level
	if globalFlags.Verbose {
		level = "debug"
	}
	return logging.NewLogger(
		logging.WithOutput(os.Stderr),
		logging.WithLevel(logging.ParseLevel(level)),
		logging.WithService("tokenkeeper"),
	)
}

// buildStack assembles the store and orchestrator shared by most
// commands.
func buildStack(cfg *config.Config, logger *logging.Logger) (*credstore.Store, *refresher.Orchestrator) {
	store := credstore.New(cfg.Paths.CredentialsFile, cfg.Paths.BackupFile, logger)
	client := oauth.NewClient(cfg.OAuth, logger)
	orch := refresher.New(store, client, logger)
	if n := notify.NewTelegram(cfg.Telegram); n != nil {
		orch.SetNotifier(n)
	}
	return store, orch
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the tokenkeeper version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tokenkeeper %s\n", version)
		fmt.Printf("go: %s, %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

const version = "0.1.0"
