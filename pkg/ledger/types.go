// Package ledger persists case and chunk status across batch-job invocations.
//
// Each controller invocation is a fresh short-lived process; the ledger file
// in the case directory is the only state shared between them. Writes are
// atomic (temp file + rename) and every transition re-reads the file from
// disk first, so two overlapping invocations can never act on a stale
// in-memory copy.
package ledger

import (
	"time"

	"github.com/clmops/cclmctl/pkg/chunk"
)

// CaseStatus is the overall lifecycle state of a case.
//
// NOTE: These values are persisted in ledger.json and are part of the stable
// on-disk contract.
type CaseStatus string

const (
	CasePlanned   CaseStatus = "planned"
	CaseActive    CaseStatus = "active"
	CaseCompleted CaseStatus = "completed"
	CaseFailed    CaseStatus = "failed"
)

// ChunkStatus is the lifecycle state of one chunk.
type ChunkStatus string

const (
	ChunkPending    ChunkStatus = "pending"
	ChunkInputReady ChunkStatus = "input_ready"
	ChunkRunning    ChunkStatus = "running"
	ChunkRan        ChunkStatus = "ran"
	ChunkArchiving  ChunkStatus = "archiving"
	ChunkArchived   ChunkStatus = "archived"
	ChunkFailed     ChunkStatus = "failed"
)

// StartMode selects how a case begins.
type StartMode string

const (
	StartupMode  StartMode = "startup"
	ContinueMode StartMode = "continue"
	RestartMode  StartMode = "restart"
)

// TransferPolicy selects when model input is staged.
type TransferPolicy string

const (
	TransferAll     TransferPolicy = "all"
	TransferChunked TransferPolicy = "chunked"
)

// InputMode selects how staged files are materialized.
type InputMode string

const (
	InputFile    InputMode = "file"
	InputSymlink InputMode = "symlink"
)

// Compression names the archive compression algorithm.
type Compression string

const (
	CompressionNone  Compression = "none"
	CompressionGzip  Compression = "gzip"
	CompressionBzip2 Compression = "bzip2"
)

// ArchivePolicy is the resolved archiving configuration of a case.
type ArchivePolicy struct {
	Enabled         bool        `json:"enabled"`
	Dir             string      `json:"dir,omitempty"`
	RemoveOriginals bool        `json:"remove_originals,omitempty"`
	Compression     Compression `json:"compression,omitempty"`
	ArchiveCESM     bool        `json:"archive_cesm,omitempty"`
}

// SlurmResources is the resolved scheduler resource request per stage.
type SlurmResources struct {
	RunWallTime      string `json:"run_wall_time"`
	TransferWallTime string `json:"transfer_wall_time,omitempty"`
	ArchiveWallTime  string `json:"archive_wall_time,omitempty"`
	Account          string `json:"account,omitempty"`
	Partition        string `json:"partition,omitempty"`
	Constraint       string `json:"constraint,omitempty"`
	Nodes            int    `json:"nodes,omitempty"`
}

// CaseAttrs is the immutable set of case attributes the controller needs to
// regenerate jobs without re-reading the user's original setup input.
type CaseAttrs struct {
	Name        string         `json:"name"`
	InstallDir  string         `json:"install_dir"`
	StartDate   time.Time      `json:"start_date"`
	EndDate     *time.Time     `json:"end_date,omitempty"`
	RunLength   string         `json:"run_length"`
	StartMode   StartMode      `json:"start_mode"`
	// RestartDate is where simulated time resumes for continue and restart
	// cases; chunks before it were produced by an earlier case run.
	RestartDate *time.Time     `json:"restart_date,omitempty"`
	DummyDay    bool           `json:"dummy_day,omitempty"`
	Transfer    TransferPolicy `json:"transfer_policy"`
	InputMode   InputMode      `json:"input_mode"`
	InputDir    string         `json:"input_dir,omitempty"`

	// BoundaryIncHours is the spacing of lbfd boundary files in hours.
	BoundaryIncHours int `json:"boundary_increment_hours,omitempty"`
	// InputPatterns are extra staging globs beside the boundary files.
	InputPatterns []string `json:"input_patterns,omitempty"`

	Archive     ArchivePolicy  `json:"archive"`
	Slurm       SlurmResources `json:"slurm"`
	CosmoExe    string         `json:"cosmo_exe,omitempty"`
	CESMExe     string         `json:"cesm_exe,omitempty"`
	ModulesOpt  string         `json:"modules_opt,omitempty"`
	Shebang     string         `json:"shebang,omitempty"`
	GPUMode     bool           `json:"gpu_mode,omitempty"`
	CosmoOnly   bool           `json:"cosmo_only,omitempty"`
}

// PlanStart is the date chunk planning begins: the restart date when set,
// the case start otherwise.
func (a CaseAttrs) PlanStart() time.Time {
	if a.RestartDate != nil {
		return *a.RestartDate
	}
	return a.StartDate
}

// ChunkRecord is the persisted state of one chunk.
//
// The chunk interval itself is immutable after planning; only Status, the
// scheduler job ids and the timestamps change. All additions must stay
// backward compatible (additive fields only).
type ChunkRecord struct {
	chunk.Chunk
	Status ChunkStatus `json:"status"`

	RunJobID      string     `json:"run_job_id,omitempty"`
	TransferJobID string     `json:"transfer_job_id,omitempty"`
	ArchiveJobID  string     `json:"archive_job_id,omitempty"`
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
}

// Ledger is the on-disk snapshot of a case.
type Ledger struct {
	SchemaVersion int           `json:"schema_version"`
	Case          CaseAttrs     `json:"case"`
	Status        CaseStatus    `json:"status"`
	CurrentChunk  int           `json:"current_chunk"`
	Chunks        []ChunkRecord `json:"chunks"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Chunk returns the record at index, or nil when out of range.
func (l *Ledger) Chunk(index int) *ChunkRecord {
	if index < 0 || index >= len(l.Chunks) {
		return nil
	}
	return &l.Chunks[index]
}

// LastChunk returns the final chunk record.
func (l *Ledger) LastChunk() *ChunkRecord {
	if len(l.Chunks) == 0 {
		return nil
	}
	return &l.Chunks[len(l.Chunks)-1]
}
