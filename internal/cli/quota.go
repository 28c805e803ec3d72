package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var quotaCmd = &cobra.Command{
	Use:     "quota",
	Aliases: []string{"quotas"},
	Short:   "Check quota usage for all accounts",
	Long: `Poll the provider's quota endpoint for every account that holds an
access token, store the result, and print a per-account summary.`,
	RunE: runQuota,
}

func init() {
	RootCmd.AddCommand(quotaCmd)
}

func runQuota(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	store, orch := buildStack(cfg, logger)

	result, err := orch.CheckQuota(cmd.Context())
	if err != nil {
		return err
	}

	doc, err := store.Load()
	if err != nil {
		return err
	}

	if globalFlags.JSON {
		out := make(map[string]any, len(doc.Accounts))
		for _, name := range doc.Names() {
			out[name] = doc.Get(name).QuotaInfo
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
	} else {
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ACCOUNT\tREMAINING\tUSAGE\tSTATUS")
		for _, name := range doc.Names() {
			info := doc.Get(name).QuotaInfo
			if info == nil {
				fmt.Fprintf(w, "%s\t-\t-\t-\n", name)
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%.1f%%\t%s\n", name, info.RemainingAmount, info.UsagePercentage, info.Status)
		}
		w.Flush()
	}

	if !result.AllSuccessful {
		return fmt.Errorf("quota check failed for %d account(s)", len(result.Failed))
	}
	return nil
}
