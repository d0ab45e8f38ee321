// Package scheduler binds to the external batch scheduler. The controller
// only submits scripts and reads back job ids; queueing, dependency
// enforcement and execution are entirely the scheduler's business.
package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// JobID is a scheduler-assigned job identifier.
type JobID = string

// Submitter is the collaborator interface the lifecycle controller consumes.
type Submitter interface {
	// Submit queues a script and returns the scheduler-assigned job id.
	// deps are job ids that must complete successfully first.
	Submit(ctx context.Context, scriptPath string, deps []JobID) (JobID, error)
}

// SlurmClient submits through sbatch.
type SlurmClient struct {
	// SbatchPath is the sbatch binary, "sbatch" when empty.
	SbatchPath string
	// WorkDir is the directory sbatch runs in (the case directory, so
	// relative log paths land there).
	WorkDir string
	// Timeout bounds one sbatch invocation. Zero means no bound beyond the
	// caller's context.
	Timeout time.Duration

	Logger  *zap.Logger
	limiter *rate.Limiter
}

// NewSlurmClient builds a client that paces submissions to at most
// submitsPerSecond, protecting the scheduler frontend when a controller
// invocation emits several jobs at once.
func NewSlurmClient(sbatchPath, workDir string, submitsPerSecond float64, logger *zap.Logger) *SlurmClient {
	if sbatchPath == "" {
		sbatchPath = "sbatch"
	}
	if submitsPerSecond <= 0 {
		submitsPerSecond = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlurmClient{
		SbatchPath: sbatchPath,
		WorkDir:    workDir,
		Logger:     logger,
		limiter:    rate.NewLimiter(rate.Limit(submitsPerSecond), 1),
	}
}

func (c *SlurmClient) Submit(ctx context.Context, scriptPath string, deps []JobID) (JobID, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	args := []string{"--parsable"}
	if len(deps) > 0 {
		args = append(args, "--dependency=afterok:"+strings.Join(deps, ":"))
	}
	args = append(args, scriptPath)

	cmd := exec.CommandContext(ctx, c.SbatchPath, args...)
	cmd.Dir = c.WorkDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("sbatch %s: %w (stderr: %s)", scriptPath, err, strings.TrimSpace(stderr.String()))
	}

	// --parsable prints "jobid[;cluster]".
	out := strings.TrimSpace(stdout.String())
	id, _, _ := strings.Cut(out, ";")
	if id == "" {
		return "", fmt.Errorf("sbatch %s: no job id in output %q", scriptPath, out)
	}

	c.Logger.Info("Submitted batch job",
		zap.String("script", scriptPath),
		zap.String("job_id", id),
		zap.Strings("depends_on", deps))
	return id, nil
}
