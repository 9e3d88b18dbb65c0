// File: cmd/history.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/gardener-cli/internal/chronicle"
	"github.com/xkilldash9x/gardener-cli/internal/observability"
)

// newHistoryCmd creates the 'history' command: prints the append-only
// journal of commit records, one line per completed cycle.
func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Print the journal of completed cycles.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			journal, err := chronicle.New(logger, cfg.Evolution.JournalPath)
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			records, err := journal.List()
			if err != nil {
				return fmt.Errorf("read journal: %w", err)
			}

			if len(records) == 0 {
				fmt.Println("no cycles recorded")
				return nil
			}
			for _, record := range records {
				commit := record.CommitID
				if commit == "" {
					commit = "-"
				}
				shortID := record.CycleID
				if len(shortID) > 8 {
					shortID = shortID[:8]
				}
				marker := ""
				if record.DryRun {
					marker = " (dry-run)"
				}
				fmt.Printf("%s  %-9s %-8s applied=%d skipped=%d commit=%s%s\n",
					record.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
					record.Outcome,
					shortID,
					len(record.Applied),
					len(record.Skipped),
					commit,
					marker,
				)
			}
			return nil
		},
	}
}
