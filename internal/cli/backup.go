package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up the credentials file",
	Long: `Copy the credentials file to its backup location. A single backup
generation is kept; running backup again overwrites the previous one.`,
	RunE: runBackup,
}

func init() {
	RootCmd.AddCommand(backupCmd)
}

func runBackup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	store, _ := buildStack(cfg, logger)

	if err := store.Backup(); err != nil {
		return err
	}

	fmt.Printf("Backed up %s to %s\n", store.Path(), store.BackupPath())
	return nil
}
