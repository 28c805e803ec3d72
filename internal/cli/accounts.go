package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tokenkeeper/tokenkeeper/internal/token"
)

var accountsCmd = &cobra.Command{
	Use:     "accounts",
	Aliases: []string{"list"},
	Short:   "List configured accounts and token validity",
	RunE:    runAccounts,
}

func init() {
	RootCmd.AddCommand(accountsCmd)
}

func runAccounts(cmd *cobra.Command, args []string) error {
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

	eval := &token.Evaluator{}

	type row struct {
		Name        string `json:"name"`
		AccessValid bool   `json:"access_token_valid"`
		ExpiresAt   string `json:"access_token_expires_at,omitempty"`
		QuotaStatus string `json:"quota_status,omitempty"`
	}

	rows := make([]row, 0, len(doc.Accounts))
	for _, name := range doc.Names() {
		acc := doc.Get(name)
		r := row{
			Name:        name,
			AccessValid: acc.AccessToken != "" && !eval.IsExpired(acc.AccessToken),
		}
		if acc.AccessTokenExpiresAt > 0 {
			r.ExpiresAt = time.Unix(acc.AccessTokenExpiresAt, 0).UTC().Format(time.RFC3339)
		}
		if acc.QuotaInfo != nil {
			r.QuotaStatus = string(acc.QuotaInfo.Status)
		}
		rows = append(rows, r)
	}

	if globalFlags.JSON {
		data, _ := json.MarshalIndent(rows, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ACCOUNT\tACCESS TOKEN\tEXPIRES\tQUOTA")
	for _, r := range rows {
		state := "expired"
		if r.AccessValid {
			state = "valid"
		}
		expires := r.ExpiresAt
		if expires == "" {
			expires = "-"
		}
		quota := r.QuotaStatus
		if quota == "" {
			quota = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Name, state, expires, quota)
	}
	return w.Flush()
}
