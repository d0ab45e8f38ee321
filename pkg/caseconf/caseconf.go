// Package caseconf provides loading and validation of case setup files.
//
// A setup file is a YAML or JSON document that configures everything needed
// to create a case: where it is installed, the simulation window and chunk
// length, input staging, archiving, scheduler resources, machine specifics,
// and the namelist patch operations applied on top of the source namelists.
//
// Setups are validated against a JSON Schema before use. The schema enforces
// strict typing and disallows unknown properties.
//
// Example setup (YAML):
//
//	name: eur011-hist
//	install_dir: /scratch/cases/eur011-hist
//	start_date: 1979-01-01-00
//	end_date: 1989-01-01-00
//	run_length: 1y
//	input:
//	  dir: /store/forcing/eur011
//	  type: symlink
//	namelists:
//	  dir: ./namelists
//	  patches:
//	    - file: INPUT_ORG
//	      block: runctl
//	      param: dt
//	      type: float
//	      value: "90.0"
package caseconf

import (
	"fmt"
	"path/filepath"

	"github.com/clmops/cclmctl/pkg/chunk"
	"github.com/clmops/cclmctl/pkg/ledger"
	"github.com/clmops/cclmctl/pkg/namelist"
)

// Defaults applied to optional setup fields.
const (
	DefaultInputType        = "symlink"
	DefaultBoundaryIncHours = 24
	DefaultCompression      = "gzip"
	DefaultRunWallTime      = "24:00:00"
	DefaultTransferWallTime = "02:00:00"
	DefaultArchiveWallTime  = "03:00:00"
	DefaultModules          = "none"
	DefaultCouplingFile     = "namcouple"
	DefaultVersion          = "1.0"
)

// Setup is a validated case setup.
//
// Required fields are Name, InstallDir, StartDate, RunLength and
// Namelists.Dir. Everything else is optional with defaults applied during
// loading.
type Setup struct {
	// Schema is an optional JSON Schema reference for editor support.
	Schema string `json:"$schema,omitempty" yaml:"$schema,omitempty"`

	// Version is the setup schema version. Must be "1.0" when given.
	Version string `json:"version,omitempty" yaml:"version,omitempty"`

	// Name identifies the case. Used in job names and archive file names.
	Name string `json:"name" yaml:"name"`

	// InstallDir is the directory the case is created in.
	InstallDir string `json:"install_dir" yaml:"install_dir"`

	// StartDate is the simulation start, formatted YYYY-MM-DD-HH.
	StartDate string `json:"start_date" yaml:"start_date"`

	// EndDate is the simulation end, formatted YYYY-MM-DD-HH. Optional;
	// when absent the case consists of a single chunk of RunLength.
	EndDate string `json:"end_date,omitempty" yaml:"end_date,omitempty"`

	// RunLength is the chunk length, e.g. "1y", "6m", "1y6m", "10d".
	RunLength string `json:"run_length" yaml:"run_length"`

	// StartMode is startup, continue or restart. Default: startup.
	StartMode string `json:"start_mode,omitempty" yaml:"start_mode,omitempty"`

	// RestartDate is the date restarted from when StartMode is restart.
	RestartDate string `json:"restart_date,omitempty" yaml:"restart_date,omitempty"`

	// DummyDay extends the last chunk by one day so the model writes the
	// restart and output of the final date before stopping.
	DummyDay bool `json:"dummy_day,omitempty" yaml:"dummy_day,omitempty"`

	// Input configures boundary-data staging (optional).
	Input InputConfig `json:"input,omitempty" yaml:"input,omitempty"`

	// Archive configures chunk output archiving (optional).
	Archive ArchiveConfig `json:"archive,omitempty" yaml:"archive,omitempty"`

	// Slurm configures scheduler resources (optional).
	Slurm SlurmConfig `json:"slurm,omitempty" yaml:"slurm,omitempty"`

	// Machine configures module handling and script environment (optional).
	Machine MachineConfig `json:"machine,omitempty" yaml:"machine,omitempty"`

	// Executables configures the model binaries and task decomposition.
	Executables ExecConfig `json:"executables,omitempty" yaml:"executables,omitempty"`

	// Namelists configures the namelist sources and user patch operations.
	Namelists NamelistConfig `json:"namelists" yaml:"namelists"`
}

// InputConfig configures boundary-data staging.
type InputConfig struct {
	// Dir is the directory holding laf/lbfd boundary files.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`

	// Type is "file" (copy) or "symlink". Default: symlink.
	Type string `json:"type,omitempty" yaml:"type,omitempty"`

	// TransferAll stages the whole simulation window at case creation
	// instead of one chunk at a time. Default: false.
	TransferAll bool `json:"transfer_all,omitempty" yaml:"transfer_all,omitempty"`

	// BoundaryIncrementHours is the spacing of lbfd boundary files.
	// Range: 1-24. Default: 24.
	BoundaryIncrementHours int `json:"boundary_increment_hours,omitempty" yaml:"boundary_increment_hours,omitempty"`

	// Patterns are extra doublestar globs staged alongside the boundary
	// files, e.g. initial soil fields. Optional.
	Patterns []string `json:"patterns,omitempty" yaml:"patterns,omitempty"`
}

// ArchiveConfig configures chunk output archiving.
type ArchiveConfig struct {
	// Enabled turns archive jobs on. Default: false.
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`

	// Dir is the directory archives are written to.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`

	// Compression is none, gzip or bzip2. Default: gzip.
	Compression string `json:"compression,omitempty" yaml:"compression,omitempty"`

	// RemoveOriginals deletes archived output streams after a successful
	// tar. Restart directories are never removed.
	RemoveOriginals bool `json:"remove_originals,omitempty" yaml:"remove_originals,omitempty"`

	// CESM includes the CESM output stream in the archive.
	CESM bool `json:"cesm,omitempty" yaml:"cesm,omitempty"`
}

// SlurmConfig configures per-stage scheduler resources.
type SlurmConfig struct {
	Account    string `json:"account,omitempty" yaml:"account,omitempty"`
	Partition  string `json:"partition,omitempty" yaml:"partition,omitempty"`
	Constraint string `json:"constraint,omitempty" yaml:"constraint,omitempty"`

	// RunWallTime is the wall time of run jobs. Default: 24:00:00.
	RunWallTime string `json:"run_wall_time,omitempty" yaml:"run_wall_time,omitempty"`

	// TransferWallTime is the wall time of transfer jobs. Default: 02:00:00.
	TransferWallTime string `json:"transfer_wall_time,omitempty" yaml:"transfer_wall_time,omitempty"`

	// ArchiveWallTime is the wall time of archive jobs. Default: 03:00:00.
	ArchiveWallTime string `json:"archive_wall_time,omitempty" yaml:"archive_wall_time,omitempty"`
}

// MachineConfig configures module handling and script environment.
type MachineConfig struct {
	// Modules is "switch", "purge" or "none". Default: none.
	Modules string `json:"modules,omitempty" yaml:"modules,omitempty"`

	// Shebang overrides the script interpreter line.
	// Default: "#!/bin/bash -l".
	Shebang string `json:"shebang,omitempty" yaml:"shebang,omitempty"`

	// GPUMode adds the GPU environment block to run scripts.
	GPUMode bool `json:"gpu_mode,omitempty" yaml:"gpu_mode,omitempty"`
}

// ExecConfig configures the model binaries and task decomposition.
type ExecConfig struct {
	// Cosmo is the COSMO executable path, relative to the case directory.
	Cosmo string `json:"cosmo,omitempty" yaml:"cosmo,omitempty"`

	// CESM is the CESM executable path, relative to the case directory.
	CESM string `json:"cesm,omitempty" yaml:"cesm,omitempty"`

	// CosmoOnly runs without the coupled land model.
	CosmoOnly bool `json:"cosmo_only,omitempty" yaml:"cosmo_only,omitempty"`

	// NCosX and NCosY are the COSMO processor grid dimensions.
	NCosX int `json:"ncosx,omitempty" yaml:"ncosx,omitempty"`
	NCosY int `json:"ncosy,omitempty" yaml:"ncosy,omitempty"`

	// NCESM is the CESM task count. Ignored when CosmoOnly is set.
	NCESM int `json:"ncesm,omitempty" yaml:"ncesm,omitempty"`
}

// NamelistConfig configures the namelist sources and patch operations.
type NamelistConfig struct {
	// Dir holds the source namelists (INPUT_ORG, INPUT_IO, drv_in, ...)
	// and the coupling template. Sources are never modified.
	Dir string `json:"dir" yaml:"dir"`

	// Coupling is the OASIS coupling template file name within Dir.
	// Default: namcouple.
	Coupling string `json:"coupling,omitempty" yaml:"coupling,omitempty"`

	// Patches are applied to the case's working copies in order.
	Patches []namelist.Op `json:"patches,omitempty" yaml:"patches,omitempty"`
}

// ApplyDefaults fills in default values for optional fields.
//
// Called after loading and validating so consumers never see empty strings
// where the schema declares a default.
func (s *Setup) ApplyDefaults() {
	if s.Version == "" {
		s.Version = DefaultVersion
	}
	if s.StartMode == "" {
		s.StartMode = string(ledger.StartupMode)
	}
	if s.Input.Type == "" {
		s.Input.Type = DefaultInputType
	}
	if s.Input.BoundaryIncrementHours == 0 {
		s.Input.BoundaryIncrementHours = DefaultBoundaryIncHours
	}
	if s.Archive.Compression == "" {
		s.Archive.Compression = DefaultCompression
	}
	if s.Slurm.RunWallTime == "" {
		s.Slurm.RunWallTime = DefaultRunWallTime
	}
	if s.Slurm.TransferWallTime == "" {
		s.Slurm.TransferWallTime = DefaultTransferWallTime
	}
	if s.Slurm.ArchiveWallTime == "" {
		s.Slurm.ArchiveWallTime = DefaultArchiveWallTime
	}
	if s.Machine.Modules == "" {
		s.Machine.Modules = DefaultModules
	}
	if s.Namelists.Coupling == "" {
		s.Namelists.Coupling = DefaultCouplingFile
	}
	if s.Executables.NCosX == 0 {
		s.Executables.NCosX = 1
	}
	if s.Executables.NCosY == 0 {
		s.Executables.NCosY = 1
	}
	for i := range s.Namelists.Patches {
		if s.Namelists.Patches[i].Kind == "" {
			s.Namelists.Patches[i].Kind = namelist.OpChange
		}
	}
}

// NamelistDir returns the namelist source directory resolved against the
// setup file's directory.
func (s *Setup) NamelistDir(baseDir string) string {
	return resolveDir(baseDir, s.Namelists.Dir)
}

// Resolve converts the setup into the immutable case attributes persisted in
// the ledger. Dates are parsed, the run length is checked, and relative
// directories are resolved against the setup file's directory (baseDir).
func (s *Setup) Resolve(baseDir string) (ledger.CaseAttrs, error) {
	var attrs ledger.CaseAttrs

	start, err := chunk.ParseDate(s.StartDate)
	if err != nil {
		return attrs, fmt.Errorf("start_date: %w", err)
	}
	attrs.StartDate = start

	if s.EndDate != "" {
		end, err := chunk.ParseDate(s.EndDate)
		if err != nil {
			return attrs, fmt.Errorf("end_date: %w", err)
		}
		if !end.After(start) {
			return attrs, fmt.Errorf("end_date %s is not after start_date %s", s.EndDate, s.StartDate)
		}
		attrs.EndDate = &end
	}

	if _, err := chunk.ParseRunLength(s.RunLength); err != nil {
		return attrs, fmt.Errorf("run_length: %w", err)
	}

	attrs.Name = s.Name
	attrs.InstallDir = resolveDir(baseDir, s.InstallDir)
	attrs.RunLength = s.RunLength
	attrs.StartMode = ledger.StartMode(s.StartMode)
	if attrs.StartMode != ledger.StartupMode {
		if s.RestartDate == "" {
			return attrs, fmt.Errorf("start_mode %s requires restart_date", s.StartMode)
		}
		rd, err := chunk.ParseDate(s.RestartDate)
		if err != nil {
			return attrs, fmt.Errorf("restart_date: %w", err)
		}
		if !rd.After(start) {
			return attrs, fmt.Errorf("restart_date %s is not after start_date %s", s.RestartDate, s.StartDate)
		}
		if attrs.EndDate != nil && !rd.Before(*attrs.EndDate) {
			return attrs, fmt.Errorf("restart_date %s is not before end_date %s", s.RestartDate, s.EndDate)
		}
		attrs.RestartDate = &rd
	} else if s.RestartDate != "" {
		return attrs, fmt.Errorf("restart_date requires start_mode continue or restart")
	}
	attrs.DummyDay = s.DummyDay
	if s.Input.TransferAll {
		attrs.Transfer = ledger.TransferAll
	} else {
		attrs.Transfer = ledger.TransferChunked
	}
	attrs.InputMode = ledger.InputMode(s.Input.Type)
	attrs.InputDir = resolveDir(baseDir, s.Input.Dir)
	attrs.BoundaryIncHours = s.Input.BoundaryIncrementHours
	attrs.InputPatterns = s.Input.Patterns
	attrs.Archive = ledger.ArchivePolicy{
		Enabled:         s.Archive.Enabled,
		Dir:             resolveDir(baseDir, s.Archive.Dir),
		RemoveOriginals: s.Archive.RemoveOriginals,
		Compression:     ledger.Compression(s.Archive.Compression),
		ArchiveCESM:     s.Archive.CESM,
	}
	attrs.Slurm = ledger.SlurmResources{
		RunWallTime:      s.Slurm.RunWallTime,
		TransferWallTime: s.Slurm.TransferWallTime,
		ArchiveWallTime:  s.Slurm.ArchiveWallTime,
		Account:          s.Slurm.Account,
		Partition:        s.Slurm.Partition,
		Constraint:       s.Slurm.Constraint,
	}
	attrs.CosmoExe = s.Executables.Cosmo
	attrs.CESMExe = s.Executables.CESM
	attrs.CosmoOnly = s.Executables.CosmoOnly
	attrs.ModulesOpt = s.Machine.Modules
	attrs.Shebang = s.Machine.Shebang
	attrs.GPUMode = s.Machine.GPUMode

	return attrs, nil
}

// resolveDir makes dir absolute relative to base. Empty stays empty.
func resolveDir(base, dir string) string {
	if dir == "" || filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(base, dir)
}
