// Package controller advances a case after each batch-job completion.
//
// Each run/transfer/archive script calls back into the controller exactly
// once, synchronously, before it exits. The controller loads the ledger,
// applies the event to the chunk state machine, writes the ledger back, and
// submits whatever jobs come next. It never waits: jobs block in the
// scheduler on their declared dependencies, not here.
package controller

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/clmops/cclmctl/pkg/ledger"
	"github.com/clmops/cclmctl/pkg/namelist"
	"github.com/clmops/cclmctl/pkg/pipeline"
	"github.com/clmops/cclmctl/pkg/scheduler"
)

// Event is one job-completion notification from a pipeline script.
type Event struct {
	Chunk    int
	Stage    pipeline.Kind
	ExitCode int
}

// Controller wires the state store, the script generator and the scheduler
// binding together.
type Controller struct {
	Store     *ledger.Store
	Submitter scheduler.Submitter
	Logger    *zap.Logger

	// ControlBin overrides the callback executable in generated scripts.
	ControlBin string
}

func New(store *ledger.Store, sub scheduler.Submitter, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{Store: store, Submitter: sub, Logger: logger}
}

// HandleEvent processes one job completion and advances the pipeline.
//
// All failures are fail-stop: a non-zero exit marks the chunk and the case
// failed and no further jobs are emitted. Recovery is manual; the ledger
// always reflects the last successfully completed stage.
func (c *Controller) HandleEvent(ctx context.Context, ev Event) error {
	l, err := c.Store.Load()
	if err != nil {
		return err
	}
	switch l.Status {
	case ledger.CaseFailed, ledger.CaseCompleted:
		c.Logger.Warn("Ignoring job event for finished case",
			zap.String("case", l.Case.Name),
			zap.String("status", string(l.Status)),
			zap.Int("chunk", ev.Chunk),
			zap.String("stage", string(ev.Stage)))
		return nil
	}

	if ev.ExitCode != 0 {
		return c.failChunk(l, ev)
	}

	switch ev.Stage {
	case pipeline.KindRun:
		return c.runSucceeded(ctx, ev.Chunk)
	case pipeline.KindTransfer:
		return c.transferSucceeded(ev.Chunk)
	case pipeline.KindArchive:
		return c.archiveSucceeded(ev.Chunk)
	}
	return fmt.Errorf("unknown pipeline stage %q", ev.Stage)
}

func (c *Controller) failChunk(l *ledger.Ledger, ev Event) error {
	c.Logger.Error("Pipeline stage failed, halting case",
		zap.String("case", l.Case.Name),
		zap.Int("chunk", ev.Chunk),
		zap.String("stage", string(ev.Stage)),
		zap.Int("exit_code", ev.ExitCode))
	if _, err := c.Store.Transition(ev.Chunk, ledger.ChunkFailed); err != nil {
		return err
	}
	_, err := c.Store.SetCaseStatus(ledger.CaseFailed)
	return err
}

// runSucceeded marks the chunk ran, keeps the pipeline moving into the next
// chunk, and only then offloads the finished chunk's output. The ordering is
// deliberate: the next run is submitted before the archive job exists, so
// archived-then-removed output can never include restart files a pending run
// still needs.
func (c *Controller) runSucceeded(ctx context.Context, idx int) error {
	l, err := c.Store.Transition(idx, ledger.ChunkRan)
	if err != nil {
		return err
	}
	gen := c.generator(l)

	if next := l.Chunk(idx + 1); next != nil {
		if err := c.submitNextRun(ctx, l, gen, next); err != nil {
			return err
		}
		l, err = c.Store.Load()
		if err != nil {
			return err
		}
	}

	done := l.Chunk(idx)
	if l.Case.Archive.Enabled {
		script := gen.GenerateArchive(done.Chunk, nil)
		id, err := c.submitScript(ctx, script, nil)
		if err != nil {
			return err
		}
		if _, err := c.Store.Transition(idx, ledger.ChunkArchiving, func(l *ledger.Ledger) {
			l.Chunks[idx].ArchiveJobID = id
		}); err != nil {
			return err
		}
		return nil
	}

	// Archiving disabled: the chunk is vacuously archived.
	l, err = c.Store.Transition(idx, ledger.ChunkArchived)
	if err != nil {
		return err
	}
	return c.maybeComplete(l, idx)
}

// submitNextRun submits the run job of the next chunk. With the chunked
// transfer policy its input staging is submitted first and the run declares
// an afterok dependency on it; the chunk then enters running only once the
// transfer completion event arrives.
func (c *Controller) submitNextRun(ctx context.Context, l *ledger.Ledger, gen *pipeline.Generator, next *ledger.ChunkRecord) error {
	idx := next.Index
	var deps []scheduler.JobID

	// The previous run has finished (its control callback is what invoked
	// us), so the shared namelists can be rewritten for the next window.
	if err := c.applyWindow(l, next); err != nil {
		return fmt.Errorf("rewrite run window for chunk %d: %w", idx, err)
	}

	if next.Status == ledger.ChunkPending {
		transferID := next.TransferJobID
		if transferID == "" {
			script := gen.GenerateTransfer(next.Chunk, nil)
			id, err := c.submitScript(ctx, script, nil)
			if err != nil {
				return err
			}
			transferID = id
			// The chunk stays pending until the transfer event arrives;
			// only the job id is recorded.
			if _, err := c.Store.Update(func(l *ledger.Ledger) {
				l.Chunks[idx].TransferJobID = id
			}); err != nil {
				return err
			}
		}
		runScript := gen.GenerateRun(next.Chunk, []string{transferID})
		runID, err := c.submitScript(ctx, runScript, []scheduler.JobID{transferID})
		if err != nil {
			return err
		}
		_, err = c.Store.Update(func(l *ledger.Ledger) {
			l.Chunks[idx].RunJobID = runID
			l.CurrentChunk = idx
			l.Status = ledger.CaseActive
		})
		return err
	}

	// input_ready (transfer-all policy, or staging finished earlier).
	runScript := gen.GenerateRun(next.Chunk, deps)
	runID, err := c.submitScript(ctx, runScript, deps)
	if err != nil {
		return err
	}
	_, err = c.Store.Transition(idx, ledger.ChunkRunning, func(l *ledger.Ledger) {
		l.Chunks[idx].RunJobID = runID
		l.CurrentChunk = idx
		l.Status = ledger.CaseActive
	})
	return err
}

// applyWindow rewrites the case's namelists and re-renders the coupling
// runtime for the chunk about to run.
func (c *Controller) applyWindow(l *ledger.Ledger, rec *ledger.ChunkRecord) error {
	docs := make(map[string]*namelist.Document, 3)
	for _, name := range []string{pipeline.FileInputOrg, pipeline.FileInputIO, pipeline.FileDrvIn} {
		doc, err := namelist.Parse(filepath.Join(l.Case.InstallDir, name))
		if err != nil {
			return err
		}
		docs[name] = doc
	}
	if err := pipeline.ApplyChunkWindow(docs, l.Case.StartDate, rec.Chunk); err != nil {
		return err
	}
	for name, doc := range docs {
		if err := doc.Write(filepath.Join(l.Case.InstallDir, name)); err != nil {
			return err
		}
	}

	text, err := os.ReadFile(filepath.Join(l.Case.InstallDir, pipeline.FileCouplingTemplate))
	if os.IsNotExist(err) {
		// Uncoupled case, no namcouple to maintain.
		return nil
	}
	if err != nil {
		return err
	}
	rendered, err := pipeline.RenderCoupling(pipeline.FileCouplingTemplate, string(text),
		int64(rec.Chunk.Runtime().Seconds()))
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(l.Case.InstallDir, pipeline.FileCoupling), []byte(rendered), 0644)
}

func (c *Controller) transferSucceeded(idx int) error {
	l, err := c.Store.Transition(idx, ledger.ChunkInputReady)
	if err != nil {
		return err
	}
	// If the chunk's run job was already submitted (afterok on this
	// transfer), the scheduler releases it now.
	if l.Chunks[idx].RunJobID != "" {
		_, err = c.Store.Transition(idx, ledger.ChunkRunning)
	}
	return err
}

func (c *Controller) archiveSucceeded(idx int) error {
	l, err := c.Store.Transition(idx, ledger.ChunkArchived)
	if err != nil {
		return err
	}
	return c.maybeComplete(l, idx)
}

// maybeComplete finishes the case when its last chunk reached its terminal
// archived state.
func (c *Controller) maybeComplete(l *ledger.Ledger, idx int) error {
	last := l.LastChunk()
	if last == nil || last.Index != idx || last.Status != ledger.ChunkArchived {
		return nil
	}
	c.Logger.Info("Case completed",
		zap.String("case", l.Case.Name),
		zap.Int("chunks", len(l.Chunks)))
	_, err := c.Store.SetCaseStatus(ledger.CaseCompleted)
	return err
}

func (c *Controller) generator(l *ledger.Ledger) *pipeline.Generator {
	gen := pipeline.NewGenerator(l.Case)
	if c.ControlBin != "" {
		gen.ControlBin = c.ControlBin
	}
	return gen
}

// submitScript writes the script into the case directory and hands it to the
// scheduler.
func (c *Controller) submitScript(ctx context.Context, s pipeline.Script, deps []scheduler.JobID) (scheduler.JobID, error) {
	if err := os.WriteFile(s.Path, []byte(s.Text), 0755); err != nil {
		return "", fmt.Errorf("write %s script: %w", s.Kind, err)
	}
	id, err := c.Submitter.Submit(ctx, s.Path, deps)
	if err != nil {
		return "", fmt.Errorf("submit %s job for chunk %d: %w", s.Kind, s.Chunk, err)
	}
	c.Logger.Info("Submitted pipeline job",
		zap.String("kind", string(s.Kind)),
		zap.Int("chunk", s.Chunk),
		zap.String("job_id", id),
		zap.Strings("depends_on", deps))
	return id, nil
}
