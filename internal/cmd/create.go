package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clmops/cclmctl/internal/observability"
	"github.com/clmops/cclmctl/pkg/caseconf"
	"github.com/clmops/cclmctl/pkg/chunk"
	"github.com/clmops/cclmctl/pkg/ledger"
	"github.com/clmops/cclmctl/pkg/namelist"
	"github.com/clmops/cclmctl/pkg/pipeline"
	"github.com/clmops/cclmctl/pkg/scheduler"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a case from a setup file",
	Long: `Create a case from a YAML or JSON setup file.

Creation installs the case directory, copies and patches the namelists,
plans the chunks, writes the ledger, stages the first chunk's input and
submits the first run job.

Example:
  cclmctl create --setup case.yaml
  cclmctl create --setup case.yaml --no-submit`,
	RunE: runCreate,
}

var (
	createSetupPath string
	createNoSubmit  bool
)

func init() {
	rootCmd.AddCommand(createCmd)

	createCmd.Flags().StringVarP(&createSetupPath, "setup", "s", "", "Path to case setup file (required)")
	createCmd.Flags().BoolVar(&createNoSubmit, "no-submit", false, "Prepare the case but do not submit the first job")

	_ = createCmd.MarkFlagRequired("setup")
}

func runCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := observability.CLILogger

	setup, err := caseconf.Load(createSetupPath)
	if err != nil {
		logger.Error("Failed to load setup",
			zap.String("path", createSetupPath),
			zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid setup", err)
	}

	absSetup, err := filepath.Abs(createSetupPath)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid setup path", err)
	}
	baseDir := filepath.Dir(absSetup)

	attrs, err := setup.Resolve(baseDir)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid setup", err)
	}

	rl, err := chunk.ParseRunLength(setup.RunLength)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid run_length", err)
	}
	// Restart and continue cases resume partway through the window; chunks
	// before the restart date belong to an earlier case run.
	chunks, err := chunk.Plan(attrs.PlanStart(), attrs.EndDate, rl, attrs.DummyDay)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Cannot plan chunks", err)
	}

	logger.Info("Creating case",
		zap.String("name", attrs.Name),
		zap.String("install_dir", attrs.InstallDir),
		zap.Int("chunks", len(chunks)))

	for _, dir := range []string{attrs.InstallDir,
		filepath.Join(attrs.InstallDir, "output"),
		filepath.Join(attrs.InstallDir, "input")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to create case directory", err)
		}
	}

	nmlDir := setup.NamelistDir(baseDir)
	if err := copyNamelists(nmlDir, attrs.InstallDir, setup.Namelists.Coupling); err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to copy namelists", err)
	}

	docs, err := patchNamelists(attrs, setup, chunks[0])
	if err != nil {
		return err
	}
	for name, doc := range docs {
		if err := doc.Write(filepath.Join(attrs.InstallDir, name)); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write namelist", err)
		}
	}

	if !attrs.CosmoOnly {
		if err := renderCoupling(setup, nmlDir, attrs.InstallDir, chunks[0]); err != nil {
			return err
		}
	}

	nCos := setup.Executables.NCosX * setup.Executables.NCosY
	nCESM := setup.Executables.NCESM
	if attrs.CosmoOnly {
		nCESM = 0
	}
	pc := pipeline.ProcConfig(nCos, nCESM, attrs.CosmoExe, attrs.CESMExe, attrs.CosmoOnly)
	if err := os.WriteFile(filepath.Join(attrs.InstallDir, "proc_config"), []byte(pc), 0644); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write proc_config", err)
	}
	attrs.Slurm.Nodes = pipeline.NodesFor(nCos+nCESM, settings.TasksPerNode)

	records := make([]ledger.ChunkRecord, len(chunks))
	for i, c := range chunks {
		records[i] = ledger.ChunkRecord{Chunk: c}
	}
	store := ledger.NewStore(attrs.InstallDir)
	if _, err := store.Init(attrs, records); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write ledger", err)
	}

	if err := stageAtCreation(store, attrs, chunks[0]); err != nil {
		return err
	}

	fmt.Printf("Case %s created in %s (%d chunks, %s each)\n",
		attrs.Name, attrs.InstallDir, len(chunks), setup.RunLength)

	if createNoSubmit {
		logger.Info("Submission skipped (--no-submit)")
		return nil
	}
	return submitFirstChunk(ctx, store, attrs, chunks)
}

// copyNamelists copies every regular file of the namelist source directory
// into the case directory, except the coupling template, which is rendered
// separately. The sources are never modified.
func copyNamelists(srcDir, caseDir, couplingName string) error {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return fmt.Errorf("read namelist dir %s: %w", srcDir, err)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() || e.Name() == couplingName {
			continue
		}
		data, err := os.ReadFile(filepath.Join(srcDir, e.Name()))
		if err != nil {
			return fmt.Errorf("read %s: %w", e.Name(), err)
		}
		if err := os.WriteFile(filepath.Join(caseDir, e.Name()), data, 0644); err != nil {
			return fmt.Errorf("write %s: %w", e.Name(), err)
		}
	}
	return nil
}

// patchNamelists parses the case's namelist working copies, applies the user
// patch operations and injects the first chunk's run window.
func patchNamelists(attrs ledger.CaseAttrs, setup *caseconf.Setup, first chunk.Chunk) (map[string]*namelist.Document, error) {
	docs := make(map[string]*namelist.Document)
	for _, name := range []string{pipeline.FileInputOrg, pipeline.FileInputIO, pipeline.FileDrvIn} {
		doc, err := namelist.Parse(filepath.Join(attrs.InstallDir, name))
		if err != nil {
			return nil, exitError(foundry.ExitInvalidArgument, "Failed to parse namelist", err)
		}
		docs[name] = doc
	}

	byFile := make(map[string][]namelist.Op)
	order := make([]string, 0)
	for _, op := range setup.Namelists.Patches {
		if _, seen := byFile[op.File]; !seen {
			order = append(order, op.File)
		}
		byFile[op.File] = append(byFile[op.File], op)
	}
	for _, file := range order {
		doc, ok := docs[file]
		if !ok {
			var err error
			doc, err = namelist.Parse(filepath.Join(attrs.InstallDir, file))
			if err != nil {
				return nil, exitError(foundry.ExitInvalidArgument, "Failed to parse namelist", err)
			}
			docs[file] = doc
		}
		if err := namelist.Apply(doc, byFile[file]); err != nil {
			return nil, exitError(foundry.ExitInvalidArgument, "Failed to apply namelist patch", err)
		}
	}

	if err := pipeline.ApplyChunkWindow(docs, attrs.StartDate, first); err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Failed to set run window", err)
	}
	return docs, nil
}

// renderCoupling substitutes the first chunk's runtime into the OASIS
// coupling template and writes the case's namcouple.
func renderCoupling(setup *caseconf.Setup, nmlDir, caseDir string, first chunk.Chunk) error {
	tplPath := filepath.Join(nmlDir, setup.Namelists.Coupling)
	text, err := os.ReadFile(tplPath)
	if err != nil {
		return exitError(foundry.ExitFileNotFound, "Coupling template missing", err)
	}
	rendered, err := pipeline.RenderCoupling(setup.Namelists.Coupling, string(text),
		int64(first.Runtime().Seconds()))
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid coupling template", err)
	}
	if err := os.WriteFile(filepath.Join(caseDir, pipeline.FileCoupling), []byte(rendered), 0644); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write namcouple", err)
	}
	// The raw template stays in the case: the controller re-renders the
	// runtime for every later chunk.
	if err := os.WriteFile(filepath.Join(caseDir, pipeline.FileCouplingTemplate), text, 0644); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write coupling template", err)
	}
	return nil
}

// stageAtCreation stages input per the transfer policy: everything up front
// for transfer-all, only the first chunk for chunked. With no input directory
// configured there is nothing to stage and the first chunk is ready as is.
func stageAtCreation(store *ledger.Store, attrs ledger.CaseAttrs, first chunk.Chunk) error {
	if attrs.InputDir != "" {
		stager := newStager(attrs)
		if attrs.Transfer == ledger.TransferAll {
			if err := stager.StageAll(attrs.InputPatterns); err != nil {
				return exitError(foundry.ExitFileNotFound, "Input staging failed", err)
			}
			return nil
		}
		if err := stager.StageChunk(first, attrs.StartDate, nominalEnd(attrs, first)); err != nil {
			return exitError(foundry.ExitFileNotFound, "Input staging failed", err)
		}
	}
	if attrs.Transfer == ledger.TransferChunked {
		if _, err := store.Transition(first.Index, ledger.ChunkInputReady); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to update ledger", err)
		}
	}
	return nil
}

// submitFirstChunk submits the first run job and, under the chunked transfer
// policy, the second chunk's transfer so staging overlaps the first run.
func submitFirstChunk(ctx context.Context, store *ledger.Store, attrs ledger.CaseAttrs, chunks []chunk.Chunk) error {
	logger := observability.CLILogger
	client := scheduler.NewSlurmClient(settings.Sbatch, attrs.InstallDir, settings.SubmitRate, logger)
	client.Timeout = settings.SubmitTimeout
	gen := pipeline.NewGenerator(attrs)

	runScript := gen.GenerateRun(chunks[0], nil)
	runID, err := writeAndSubmit(ctx, client, runScript, nil)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to submit first run", err)
	}
	if _, err := store.Transition(0, ledger.ChunkRunning, func(l *ledger.Ledger) {
		l.Chunks[0].RunJobID = runID
		l.CurrentChunk = 0
		l.Status = ledger.CaseActive
	}); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to update ledger", err)
	}
	fmt.Printf("Submitted run job %s for chunk 0 (%s to %s)\n",
		runID, chunk.FormatDate(chunks[0].Start), chunk.FormatDate(chunks[0].End))

	if attrs.Transfer == ledger.TransferChunked && len(chunks) > 1 {
		transferScript := gen.GenerateTransfer(chunks[1], nil)
		transferID, err := writeAndSubmit(ctx, client, transferScript, nil)
		if err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "Failed to submit transfer", err)
		}
		if _, err := store.Update(func(l *ledger.Ledger) {
			l.Chunks[1].TransferJobID = transferID
		}); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to update ledger", err)
		}
		fmt.Printf("Submitted transfer job %s for chunk 1\n", transferID)
	}
	return nil
}

// writeAndSubmit writes the script into the case directory and submits it.
func writeAndSubmit(ctx context.Context, sub scheduler.Submitter, s pipeline.Script, deps []scheduler.JobID) (scheduler.JobID, error) {
	if err := os.WriteFile(s.Path, []byte(s.Text), 0755); err != nil {
		return "", fmt.Errorf("write %s script: %w", s.Kind, err)
	}
	return sub.Submit(ctx, s.Path, deps)
}
