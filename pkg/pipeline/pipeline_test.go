package pipeline

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clmops/cclmctl/pkg/chunk"
	"github.com/clmops/cclmctl/pkg/ledger"
)

func testCase() ledger.CaseAttrs {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)
	return ledger.CaseAttrs{
		Name:       "alpclm",
		InstallDir: "/scratch/alpclm",
		StartDate:  start,
		EndDate:    &end,
		RunLength:  "1m",
		Transfer:   ledger.TransferChunked,
		InputMode:  ledger.InputFile,
		Archive: ledger.ArchivePolicy{
			Enabled:         true,
			Dir:             "/project/archive/alpclm",
			RemoveOriginals: true,
			Compression:     ledger.CompressionGzip,
		},
		Slurm: ledger.SlurmResources{
			RunWallTime:      "24:00:00",
			TransferWallTime: "02:00:00",
			ArchiveWallTime:  "03:00:00",
			Account:          "s1234",
			Partition:        "normal",
			Constraint:       "gpu",
			Nodes:            6,
		},
	}
}

func chunk0() chunk.Chunk {
	return chunk.Chunk{
		Index: 0,
		Start: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestGenerateRunScript(t *testing.T) {
	g := NewGenerator(testCase())
	s := g.GenerateRun(chunk0(), nil)

	assert.Equal(t, KindRun, s.Kind)
	assert.Equal(t, "/scratch/alpclm/alpclm_run_000.job", s.Path)
	assert.True(t, strings.HasPrefix(s.Text, "#!/bin/bash -l\n"))
	assert.Contains(t, s.Text, "#SBATCH --job-name=alpclm_run_000\n")
	assert.Contains(t, s.Text, "#SBATCH --nodes=6\n")
	assert.Contains(t, s.Text, "#SBATCH --output=alpclm_20200101-20200201.out\n")
	assert.Contains(t, s.Text, "#SBATCH --account=s1234\n")
	assert.Contains(t, s.Text, "#SBATCH --time=24:00:00\n")
	assert.Contains(t, s.Text, "#SBATCH --partition=normal\n")
	assert.Contains(t, s.Text, "#SBATCH --constraint=gpu\n")
	assert.Contains(t, s.Text, "srun -u --multi-prog ./proc_config\n")
	assert.Contains(t, s.Text, "cclmctl control --case /scratch/alpclm --chunk 0 --stage run --exit-code $rc\n")

	// First run job of a case carries no dependency directive.
	assert.NotContains(t, s.Text, "--dependency")
}

func TestGenerateRunScriptWithDependencies(t *testing.T) {
	g := NewGenerator(testCase())
	s := g.GenerateRun(chunk0(), []string{"100", "101"})
	assert.Contains(t, s.Text, "#SBATCH --dependency=afterok:100:101\n")
}

func TestGenerateTransferScript(t *testing.T) {
	g := NewGenerator(testCase())
	c := chunk0()
	c.Index = 1
	s := g.GenerateTransfer(c, []string{"42"})

	assert.Contains(t, s.Text, "#SBATCH --time=02:00:00\n")
	assert.Contains(t, s.Text, "#SBATCH --dependency=afterok:42\n")
	assert.Contains(t, s.Text, "cclmctl stage --case /scratch/alpclm --chunk 1\n")
	assert.Contains(t, s.Text, "cclmctl control --case /scratch/alpclm --chunk 1 --stage transfer --exit-code $rc\n")
}

func TestGenerateArchiveScript(t *testing.T) {
	g := NewGenerator(testCase())
	s := g.GenerateArchive(chunk0(), []string{"7"})

	assert.Contains(t, s.Text, "#SBATCH --time=03:00:00\n")
	assert.Contains(t, s.Text, `for d in $days; do find output -type f -name "*${d}*" >> $list; done`+"\n")
	assert.Contains(t, s.Text, "tar -z -cf /project/archive/alpclm/alpclm_20200101-20200201.tar.gz -T $list\n")
	assert.Contains(t, s.Text, "if [ $rc -eq 0 ]; then xargs -r rm -f < $list; fi\n")
	assert.Contains(t, s.Text, "--stage archive --exit-code $rc\n")

	// Whole-directory removal would delete the next chunk's live output.
	assert.NotContains(t, s.Text, "rm -rf")
}

// The archive job runs concurrently with the next chunk's run; only files
// stamped with the source chunk's own days may be selected.
func TestGenerateArchiveSelectsOnlyChunkDays(t *testing.T) {
	g := NewGenerator(testCase())
	s := g.GenerateArchive(chunk0(), nil)

	var days string
	for _, line := range strings.Split(s.Text, "\n") {
		if strings.HasPrefix(line, "days=") {
			days = line
		}
	}
	require.NotEmpty(t, days)
	assert.Contains(t, days, "20200101 2020-01-01")
	assert.Contains(t, days, "20200131 2020-01-31")
	// The next chunk's days are out of scope, including the boundary day.
	assert.NotContains(t, days, "20200201")
	assert.NotContains(t, days, "2020-02-01")
}

func TestGenerateArchiveIncludesCESMWhenConfigured(t *testing.T) {
	attrs := testCase()
	attrs.Archive.ArchiveCESM = true
	attrs.Archive.Compression = ledger.CompressionBzip2
	attrs.Archive.RemoveOriginals = false
	g := NewGenerator(attrs)
	s := g.GenerateArchive(chunk0(), nil)

	assert.Contains(t, s.Text, ".tar.bz2 -T $list\n")
	assert.Contains(t, s.Text, "find output timing -type f")
	assert.NotContains(t, s.Text, "xargs -r rm -f")
}

func TestRenderCoupling(t *testing.T) {
	out, err := RenderCoupling("namcouple_tmpl", "$RUNTIME\n _runtime_\n$END\n", 2678400)
	require.NoError(t, err)
	assert.Equal(t, "$RUNTIME\n 2678400\n$END\n", out)

	_, err = RenderCoupling("namcouple_tmpl", "$RUNTIME\n 86400\n$END\n", 2678400)
	var te *TemplateError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "namcouple_tmpl", te.Template)
}

func TestProcConfig(t *testing.T) {
	assert.Equal(t, "0-11 ./cosmo\n12-15 ./cesm.exe\n", ProcConfig(12, 4, "cosmo", "cesm.exe", false))
	assert.Equal(t, "0-11 ./cosmo\n", ProcConfig(12, 4, "cosmo", "cesm.exe", true))
	assert.Equal(t, 2, Nodes(16))
	assert.Equal(t, 1, Nodes(12))
}
