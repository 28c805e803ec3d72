package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var exportFlags struct {
	Output string
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export credentials in the external client format",
	Long: `Export all complete accounts as a JSON array of
{jwt, licenseId, authorization} entries, the format consumed by
external client tooling. Accounts missing any of the three fields are
skipped with a warning.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFlags.Output, "output", "o", "", "Output file (default: jetbrainsai.json next to the credentials file)")
	RootCmd.AddCommand(exportCmd)
}

type exportEntry struct {
	JWT           string `json:"jwt"`
	LicenseID     string `json:"licenseId"`
	Authorization string `json:"authorization"`
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	store, _ := buildStack(cfg, logger)

	doc, err := store.Load()
	if err != nil {
		return err
	}

	var entries []exportEntry
	for _, name := range doc.Names() {
		acc := doc.Get(name)
		if acc.AccessToken == "" || acc.IDToken == "" || acc.LicenseID == "" {
			logger.Warn("account incomplete, skipping export", "account", name)
			continue
		}
		entries = append(entries, exportEntry{
			JWT:           acc.AccessToken,
			LicenseID:     acc.LicenseID,
			Authorization: acc.IDToken,
		})
	}

	if len(entries) == 0 {
		return fmt.Errorf("no complete accounts to export")
	}

	output := exportFlags.Output
	if output == "" {
		output = filepath.Join(filepath.Dir(cfg.Paths.CredentialsFile), "jetbrainsai.json")
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(output, data, 0o600); err != nil {
		return err
	}

	fmt.Printf("Exported %d account(s) to %s\n", len(entries), output)
	return nil
}
