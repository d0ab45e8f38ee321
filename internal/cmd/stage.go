package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clmops/cclmctl/internal/observability"
	"github.com/clmops/cclmctl/pkg/chunk"
	"github.com/clmops/cclmctl/pkg/ledger"
	"github.com/clmops/cclmctl/pkg/stage"
)

var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Stage one chunk's boundary input",
	Long: `Stage the boundary input files of one chunk into the case's input
directory. Transfer jobs run this command; it can also be invoked manually to
re-stage a chunk.

Example:
  cclmctl stage --case /scratch/cases/eur011-hist --chunk 2`,
	RunE: runStage,
}

var (
	stageCaseDir string
	stageChunk   int
)

func init() {
	rootCmd.AddCommand(stageCmd)

	stageCmd.Flags().StringVar(&stageCaseDir, "case", "", "Case directory (required)")
	stageCmd.Flags().IntVar(&stageChunk, "chunk", 0, "Chunk index (required)")

	_ = stageCmd.MarkFlagRequired("case")
	_ = stageCmd.MarkFlagRequired("chunk")
}

func runStage(cmd *cobra.Command, args []string) error {
	logger := observability.CLILogger

	store := ledger.NewStore(stageCaseDir)
	l, err := store.Load()
	if err != nil {
		return exitError(foundry.ExitFileNotFound, "Cannot read case ledger", err)
	}
	rec := l.Chunk(stageChunk)
	if rec == nil {
		return exitError(foundry.ExitInvalidArgument, "No such chunk",
			fmt.Errorf("chunk %d out of range, case has %d chunks", stageChunk, len(l.Chunks)))
	}
	if l.Case.InputDir == "" {
		logger.Info("No input directory configured, nothing to stage",
			zap.String("case", l.Case.Name))
		return nil
	}

	logger.Info("Staging chunk input",
		zap.String("case", l.Case.Name),
		zap.Int("chunk", stageChunk),
		zap.String("source", l.Case.InputDir))

	stager := newStager(l.Case)
	if err := stager.StageChunk(rec.Chunk, l.Case.StartDate, nominalEnd(l.Case, rec.Chunk)); err != nil {
		return exitError(foundry.ExitFileNotFound, "Input staging failed", err)
	}
	return nil
}

// newStager builds the staging collaborator from the case attributes.
func newStager(attrs ledger.CaseAttrs) *stage.Stager {
	inc := attrs.BoundaryIncHours
	if inc <= 0 {
		inc = 24
	}
	return &stage.Stager{
		SourceDir:         attrs.InputDir,
		TargetDir:         filepath.Join(attrs.InstallDir, "input"),
		Mode:              attrs.InputMode,
		BoundaryIncrement: time.Duration(inc) * time.Hour,
		Logger:            observability.CLILogger,
	}
}

// nominalEnd is the chunk end without the dummy-day extension. Boundary files
// past it may be substituted; files before it must exist.
func nominalEnd(attrs ledger.CaseAttrs, c chunk.Chunk) time.Time {
	if attrs.DummyDay && c.Last {
		return c.End.AddDate(0, 0, -1)
	}
	return c.End
}
