package caseconf

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clmops/cclmctl/pkg/ledger"
	"github.com/clmops/cclmctl/pkg/namelist"
)

// validSetupYAML returns a minimal valid setup in YAML format.
func validSetupYAML() string {
	return `name: test-case
install_dir: /scratch/cases/test-case
start_date: 2020-01-01-00
run_length: 1m
namelists:
  dir: ./namelists
`
}

// fullSetupYAML returns a complete setup with all optional sections.
func fullSetupYAML() string {
	return `version: "1.0"
name: eur011-hist
install_dir: /scratch/cases/eur011-hist
start_date: 1979-01-01-00
end_date: 1989-01-01-00
run_length: 1y
start_mode: startup
dummy_day: true
input:
  dir: /store/forcing/eur011
  type: file
  transfer_all: false
  boundary_increment_hours: 6
  patterns:
    - "laf*"
archive:
  enabled: true
  dir: /store/archive/eur011-hist
  compression: bzip2
  remove_originals: true
  cesm: true
slurm:
  account: s123
  partition: normal
  constraint: gpu
  run_wall_time: "12:00:00"
machine:
  modules: switch
  shebang: "#!/bin/bash"
  gpu_mode: true
executables:
  cosmo: ./cosmo
  cesm: ./cesm.exe
  ncosx: 6
  ncosy: 8
  ncesm: 48
namelists:
  dir: ./namelists
  coupling: namcouple_tpl
  patches:
    - file: INPUT_ORG
      block: runctl
      param: dt
      type: float
      value: "90.0"
    - op: delete
      file: INPUT_IO
      block: gribout
      instance: 2
      param: lanalysis
`
}

func TestLoadFromBytesMinimal(t *testing.T) {
	s, err := LoadFromBytes([]byte(validSetupYAML()), "setup.yaml")
	require.NoError(t, err)

	assert.Equal(t, "test-case", s.Name)
	// Defaults
	assert.Equal(t, "1.0", s.Version)
	assert.Equal(t, "startup", s.StartMode)
	assert.Equal(t, "symlink", s.Input.Type)
	assert.Equal(t, 24, s.Input.BoundaryIncrementHours)
	assert.Equal(t, "gzip", s.Archive.Compression)
	assert.Equal(t, "24:00:00", s.Slurm.RunWallTime)
	assert.Equal(t, "02:00:00", s.Slurm.TransferWallTime)
	assert.Equal(t, "03:00:00", s.Slurm.ArchiveWallTime)
	assert.Equal(t, "none", s.Machine.Modules)
	assert.Equal(t, "namcouple", s.Namelists.Coupling)
}

func TestLoadFromBytesFull(t *testing.T) {
	s, err := LoadFromBytes([]byte(fullSetupYAML()), "setup.yaml")
	require.NoError(t, err)

	assert.Equal(t, "eur011-hist", s.Name)
	assert.True(t, s.DummyDay)
	assert.Equal(t, 6, s.Input.BoundaryIncrementHours)
	assert.Equal(t, "bzip2", s.Archive.Compression)
	assert.True(t, s.Archive.CESM)
	assert.Equal(t, "12:00:00", s.Slurm.RunWallTime)
	assert.Equal(t, "02:00:00", s.Slurm.TransferWallTime) // default still applied
	assert.Equal(t, "switch", s.Machine.Modules)
	assert.Equal(t, 6, s.Executables.NCosX)

	require.Len(t, s.Namelists.Patches, 2)
	// The first patch omits op:, which means change.
	assert.Equal(t, namelist.OpChange, s.Namelists.Patches[0].Kind)
	assert.Equal(t, "float", string(s.Namelists.Patches[0].Type))
	assert.Equal(t, namelist.OpDelete, s.Namelists.Patches[1].Kind)
	assert.Equal(t, 2, s.Namelists.Patches[1].Instance)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "setup.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validSetupYAML()), 0644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test-case", s.Name)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	in := validSetupYAML() + "unkown_option: true\n"
	_, err := LoadFromBytes([]byte(in), "setup.yaml")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidationFailed), "got: %v", err)
}

func TestLoadRejectsMissingRequired(t *testing.T) {
	cases := map[string]string{
		"no name": `install_dir: /x
start_date: 2020-01-01-00
run_length: 1m
namelists: {dir: ./nml}
`,
		"no namelists": `name: x
install_dir: /x
start_date: 2020-01-01-00
run_length: 1m
`,
		"bad date": `name: x
install_dir: /x
start_date: 2020-01-01
run_length: 1m
namelists: {dir: ./nml}
`,
		"bad start_mode": `name: x
install_dir: /x
start_date: 2020-01-01-00
run_length: 1m
start_mode: resume
namelists: {dir: ./nml}
`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFromBytes([]byte(in), "setup.yaml")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidationFailed), "got: %v", err)
		})
	}
}

func TestLoadEmptyInput(t *testing.T) {
	_, err := LoadFromBytes(nil, "setup.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestResolve(t *testing.T) {
	s, err := LoadFromBytes([]byte(fullSetupYAML()), "setup.yaml")
	require.NoError(t, err)

	attrs, err := s.Resolve("/home/user/run")
	require.NoError(t, err)

	assert.Equal(t, "eur011-hist", attrs.Name)
	assert.Equal(t, time.Date(1979, 1, 1, 0, 0, 0, 0, time.UTC), attrs.StartDate)
	require.NotNil(t, attrs.EndDate)
	assert.Equal(t, time.Date(1989, 1, 1, 0, 0, 0, 0, time.UTC), *attrs.EndDate)
	assert.Equal(t, ledger.TransferChunked, attrs.Transfer)
	assert.Equal(t, ledger.InputFile, attrs.InputMode)
	assert.Equal(t, ledger.CompressionBzip2, attrs.Archive.Compression)
	assert.True(t, attrs.GPUMode)
	// Absolute dirs pass through untouched.
	assert.Equal(t, "/scratch/cases/eur011-hist", attrs.InstallDir)
	assert.Equal(t, "/store/forcing/eur011", attrs.InputDir)
}

func TestResolveRelativeDirs(t *testing.T) {
	in := `name: rel
install_dir: ./case
start_date: 2020-01-01-00
run_length: 1m
input:
  dir: ./forcing
namelists:
  dir: ./namelists
`
	s, err := LoadFromBytes([]byte(in), "setup.yaml")
	require.NoError(t, err)

	attrs, err := s.Resolve("/home/user/run")
	require.NoError(t, err)
	assert.Equal(t, "/home/user/run/case", attrs.InstallDir)
	assert.Equal(t, "/home/user/run/forcing", attrs.InputDir)
}

func TestResolveRejectsBadDates(t *testing.T) {
	s, err := LoadFromBytes([]byte(validSetupYAML()), "setup.yaml")
	require.NoError(t, err)

	s.EndDate = s.StartDate // end == start
	_, err = s.Resolve("/tmp")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not after")
}

func TestResolveRestartMode(t *testing.T) {
	s, err := LoadFromBytes([]byte(validSetupYAML()), "setup.yaml")
	require.NoError(t, err)
	s.EndDate = "2020-06-01-00"
	s.StartMode = "restart"
	s.RestartDate = "2020-03-01-00"

	attrs, err := s.Resolve("/tmp")
	require.NoError(t, err)
	require.NotNil(t, attrs.RestartDate)
	assert.Equal(t, time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC), *attrs.RestartDate)
	assert.Equal(t, *attrs.RestartDate, attrs.PlanStart())
	// The case origin stays at start_date for the models' clock.
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), attrs.StartDate)
}

func TestResolveRejectsBadRestartDates(t *testing.T) {
	cases := map[string]struct {
		mode, restart, want string
	}{
		"missing restart_date":    {"restart", "", "requires restart_date"},
		"before start":            {"continue", "2019-12-01-00", "not after start_date"},
		"at or past end":          {"restart", "2020-06-01-00", "not before end_date"},
		"restart_date at startup": {"startup", "2020-03-01-00", "requires start_mode"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			s, err := LoadFromBytes([]byte(validSetupYAML()), "setup.yaml")
			require.NoError(t, err)
			s.EndDate = "2020-06-01-00"
			s.StartMode = tc.mode
			s.RestartDate = tc.restart

			_, err = s.Resolve("/tmp")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
