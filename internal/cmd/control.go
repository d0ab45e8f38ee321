package cmd

import (
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clmops/cclmctl/internal/observability"
	"github.com/clmops/cclmctl/pkg/controller"
	"github.com/clmops/cclmctl/pkg/ledger"
	"github.com/clmops/cclmctl/pkg/pipeline"
	"github.com/clmops/cclmctl/pkg/scheduler"
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Process a job completion event",
	Long: `Process the completion of one pipeline job and advance the case.

Generated job scripts call this command as their last action, reporting the
stage that finished and its exit code. On success the controller submits the
follow-up jobs; on failure it marks the chunk and the case failed.

Example:
  cclmctl control --case /scratch/cases/eur011-hist --chunk 0 --stage run --exit-code 0`,
	RunE: runControl,
}

var (
	controlCaseDir  string
	controlChunk    int
	controlStage    string
	controlExitCode int
)

func init() {
	rootCmd.AddCommand(controlCmd)

	controlCmd.Flags().StringVar(&controlCaseDir, "case", "", "Case directory (required)")
	controlCmd.Flags().IntVar(&controlChunk, "chunk", 0, "Chunk index (required)")
	controlCmd.Flags().StringVar(&controlStage, "stage", "", "Finished stage: run|transfer|archive (required)")
	controlCmd.Flags().IntVar(&controlExitCode, "exit-code", 0, "Exit code of the finished stage")

	_ = controlCmd.MarkFlagRequired("case")
	_ = controlCmd.MarkFlagRequired("chunk")
	_ = controlCmd.MarkFlagRequired("stage")
}

func runControl(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := observability.CLILogger

	var kind pipeline.Kind
	switch controlStage {
	case string(pipeline.KindRun), string(pipeline.KindTransfer), string(pipeline.KindArchive):
		kind = pipeline.Kind(controlStage)
	default:
		return exitError(foundry.ExitInvalidArgument, "Invalid --stage value",
			fmt.Errorf("unsupported stage: %s", controlStage))
	}

	logger.Debug("Processing job event",
		zap.String("case", controlCaseDir),
		zap.Int("chunk", controlChunk),
		zap.String("stage", controlStage),
		zap.Int("exit_code", controlExitCode))

	store := ledger.NewStore(controlCaseDir)
	client := scheduler.NewSlurmClient(settings.Sbatch, controlCaseDir, settings.SubmitRate, logger)
	client.Timeout = settings.SubmitTimeout
	ctrl := controller.New(store, client, logger)

	ev := controller.Event{Chunk: controlChunk, Stage: kind, ExitCode: controlExitCode}
	if err := ctrl.HandleEvent(ctx, ev); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to advance case", err)
	}
	return nil
}
