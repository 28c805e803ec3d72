package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tokenkeeper/tokenkeeper/internal/history"
)

var historyFlags struct {
	Job   string
	Limit int
	Prune time.Duration
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show archived job executions",
	Long: `List job executions from the daemon's archive, newest first. With
--prune, records older than the given age are deleted before listing.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyFlags.Job, "job", "", "Filter by job id")
	historyCmd.Flags().IntVar(&historyFlags.Limit, "limit", 20, "Maximum records to show")
	historyCmd.Flags().DurationVar(&historyFlags.Prune, "prune", 0, "Delete records older than this age first")
	RootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Paths.HistoryDB == "" {
		return fmt.Errorf("no history database configured")
	}

	store, err := history.Open(cfg.Paths.HistoryDB)
	if err != nil {
		return err
	}
	defer store.Close()

	if historyFlags.Prune > 0 {
		deleted, err := store.Prune(historyFlags.Prune)
		if err != nil {
			return err
		}
		fmt.Printf("Pruned %d record(s)\n", deleted)
	}

	recs, err := store.Recent(historyFlags.Job, historyFlags.Limit)
	if err != nil {
		return err
	}

	if globalFlags.JSON {
		data, _ := json.MarshalIndent(recs, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "JOB\tEXECUTED\tSTATUS\tDURATION\tERROR")
	for _, rec := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2fs\t%s\n",
			rec.JobID, rec.ExecutionTime.Local().Format(time.RFC3339), rec.Status, rec.Duration, rec.Error)
	}
	return w.Flush()
}
