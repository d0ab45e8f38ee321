// Package stage materializes model input for a chunk in the case directory,
// either copying files or symlinking them.
//
// Boundary data follows the naming scheme of the atmosphere model: one
// initial-condition file laf<YYYYMMDDHH> at the chunk start and boundary
// files lbfd<YYYYMMDDHH> every boundary increment. For the dummy-day tail of
// the final chunk, missing boundary files are filled in from the matching
// hour of the first simulated day, since the model only needs them to flush
// its last scheduled output.
package stage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/clmops/cclmctl/pkg/chunk"
	"github.com/clmops/cclmctl/pkg/ledger"
)

// CopyOrLink materializes src at dst according to mode. Parent directories
// are created as needed; an existing dst is replaced.
func CopyOrLink(src, dst string, mode ledger.InputMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create input dir: %w", err)
	}
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("replace %s: %w", dst, err)
	}
	switch mode {
	case ledger.InputSymlink:
		if err := os.Symlink(src, dst); err != nil {
			return fmt.Errorf("symlink %s: %w", dst, err)
		}
		return nil
	default:
		in, err := os.Open(src)
		if err != nil {
			return fmt.Errorf("open source %s: %w", src, err)
		}
		defer func() { _ = in.Close() }()
		out, err := os.Create(dst)
		if err != nil {
			return fmt.Errorf("create %s: %w", dst, err)
		}
		if _, err := io.Copy(out, in); err != nil {
			_ = out.Close()
			return fmt.Errorf("copy to %s: %w", dst, err)
		}
		return out.Close()
	}
}

// Stager stages chunk input from a source directory into the case's input
// directory.
type Stager struct {
	SourceDir string
	TargetDir string
	Mode      ledger.InputMode
	// BoundaryIncrement is the spacing of boundary files, from the model's
	// gribin/hincbound setting.
	BoundaryIncrement time.Duration

	Logger *zap.Logger
}

// StageChunk stages the initial-condition and boundary files covering the
// chunk window. Missing files inside the nominal window are an error; inside
// the dummy-day tail they are substituted from the first day.
func (s *Stager) StageChunk(c chunk.Chunk, caseStart time.Time, nominalEnd time.Time) error {
	if s.BoundaryIncrement <= 0 {
		return fmt.Errorf("boundary increment must be positive")
	}
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// The initial analysis file seeds the case origin only; restarted cases
	// resume from restart output instead.
	if c.Start.Equal(caseStart) {
		if err := s.stageFile("laf"+c.Start.Format(chunk.DateFormatCOSMO), "", logger); err != nil {
			return err
		}
	}

	for cur := c.Start; !cur.After(nominalEnd); cur = cur.Add(s.BoundaryIncrement) {
		if err := s.stageFile("lbfd"+cur.Format(chunk.DateFormatCOSMO), "", logger); err != nil {
			return err
		}
	}
	// Dummy-day tail: substitute from the matching hour of the first day.
	for cur := nominalEnd.Add(s.BoundaryIncrement); !cur.After(c.End); cur = cur.Add(s.BoundaryIncrement) {
		name := "lbfd" + cur.Format(chunk.DateFormatCOSMO)
		substitute := "lbfd" + time.Date(
			caseStart.Year(), caseStart.Month(), caseStart.Day(),
			cur.Hour(), 0, 0, 0, time.UTC).Format(chunk.DateFormatCOSMO)
		if err := s.stageFile(name, substitute, logger); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stager) stageFile(name, substitute string, logger *zap.Logger) error {
	src := filepath.Join(s.SourceDir, name)
	if _, err := os.Stat(src); err != nil {
		if substitute == "" {
			return fmt.Errorf("input file %s is missing in %s", name, s.SourceDir)
		}
		logger.Warn("Boundary file missing, substituting first-day file for dummy day",
			zap.String("missing", name),
			zap.String("substitute", substitute))
		src = filepath.Join(s.SourceDir, substitute)
		if _, err := os.Stat(src); err != nil {
			return fmt.Errorf("dummy-day substitute %s is missing in %s", substitute, s.SourceDir)
		}
	}
	return CopyOrLink(src, filepath.Join(s.TargetDir, name), s.Mode)
}

// StageAll stages every file of the source directory matching the given
// doublestar patterns (all files when none are given). Used by the
// transfer-all policy at case creation.
func (s *Stager) StageAll(patterns []string) error {
	if len(patterns) == 0 {
		patterns = []string{"**"}
	}
	fsys := os.DirFS(s.SourceDir)
	staged := 0
	for _, pat := range patterns {
		matches, err := doublestar.Glob(fsys, pat)
		if err != nil {
			return fmt.Errorf("bad input pattern %q: %w", pat, err)
		}
		for _, m := range matches {
			info, err := os.Stat(filepath.Join(s.SourceDir, m))
			if err != nil || info.IsDir() {
				continue
			}
			if err := CopyOrLink(filepath.Join(s.SourceDir, m), filepath.Join(s.TargetDir, m), s.Mode); err != nil {
				return err
			}
			staged++
		}
	}
	if staged == 0 {
		return fmt.Errorf("no input files matched in %s", s.SourceDir)
	}
	return nil
}
