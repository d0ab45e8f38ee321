package cmd

import (
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/clmops/cclmctl/pkg/chunk"
	"github.com/clmops/cclmctl/pkg/ledger"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the case ledger",
	Long: `Show the state of a case: overall status, current chunk, and the
status and job ids of every chunk.

Example:
  cclmctl status --case /scratch/cases/eur011-hist`,
	RunE: runStatus,
}

var statusCaseDir string

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusCaseDir, "case", "", "Case directory (required)")

	_ = statusCmd.MarkFlagRequired("case")
}

func runStatus(cmd *cobra.Command, args []string) error {
	store := ledger.NewStore(statusCaseDir)
	l, err := store.Load()
	if err != nil {
		return exitError(foundry.ExitFileNotFound, "Cannot read case ledger", err)
	}

	fmt.Printf("Case:          %s\n", l.Case.Name)
	fmt.Printf("Status:        %s\n", l.Status)
	fmt.Printf("Current chunk: %d of %d\n", l.CurrentChunk, len(l.Chunks))
	fmt.Printf("Window:        %s", chunk.FormatDate(l.Case.StartDate))
	if l.Case.EndDate != nil {
		fmt.Printf(" to %s", chunk.FormatDate(*l.Case.EndDate))
	}
	fmt.Printf(" (%s per chunk)\n", l.Case.RunLength)
	fmt.Println()

	fmt.Printf("%-5s %-13s %-13s %-11s %-10s %-10s %-10s\n",
		"CHUNK", "START", "END", "STATUS", "RUN", "TRANSFER", "ARCHIVE")
	for _, rec := range l.Chunks {
		fmt.Printf("%-5d %-13s %-13s %-11s %-10s %-10s %-10s\n",
			rec.Index,
			chunk.FormatDate(rec.Start),
			chunk.FormatDate(rec.End),
			rec.Status,
			orDash(rec.RunJobID),
			orDash(rec.TransferJobID),
			orDash(rec.ArchiveJobID))
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
