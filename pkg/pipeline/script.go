// Package pipeline generates the batch-scheduler scripts of a case: run,
// transfer and archive jobs with their resource requests and dependency
// directives.
//
// Generation is pure text production: nothing here talks to the scheduler.
// Submission and job-id capture belong to the lifecycle controller, which
// passes upstream job ids back in as dependencies.
package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/clmops/cclmctl/pkg/chunk"
	"github.com/clmops/cclmctl/pkg/ledger"
)

// Kind discriminates the three job kinds of the pipeline.
type Kind string

const (
	KindRun      Kind = "run"
	KindTransfer Kind = "transfer"
	KindArchive  Kind = "archive"
)

// Script is one generated scheduler script, ready for submission.
type Script struct {
	Kind    Kind
	Chunk   int
	JobName string
	Path    string // file path inside the case directory
	Text    string
	// CorrelationID ties scheduler log lines back to this generation.
	CorrelationID string
}

// Generator produces scripts for one case. ControlBin is the executable the
// scripts call back into once their payload finished.
type Generator struct {
	Case       ledger.CaseAttrs
	ControlBin string
}

func NewGenerator(attrs ledger.CaseAttrs) *Generator {
	return &Generator{Case: attrs, ControlBin: "cclmctl"}
}

// GenerateRun emits the run job script for a chunk. deps are scheduler job
// ids that must complete first; the first run job of a case passes none.
func (g *Generator) GenerateRun(c chunk.Chunk, deps []string) Script {
	name := fmt.Sprintf("%s_run_%03d", g.Case.Name, c.Index)
	logFile := g.logFile(c)

	var b strings.Builder
	g.header(&b, name, logFile, g.Case.Slurm.RunWallTime, g.Case.Slurm.Nodes, deps)
	g.environment(&b)
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("cd %s\n", g.Case.InstallDir))
	b.WriteString("rm -f YU* debug* core* nout.* *.timers_*\n")
	b.WriteString("srun -u --multi-prog ./proc_config\n")
	b.WriteString("rc=$?\n")
	g.controlCallback(&b, KindRun, c.Index)
	return g.script(KindRun, c.Index, name, b.String())
}

// GenerateTransfer emits the input staging job for a chunk.
func (g *Generator) GenerateTransfer(c chunk.Chunk, deps []string) Script {
	name := fmt.Sprintf("%s_transfer_%03d", g.Case.Name, c.Index)
	logFile := fmt.Sprintf("%s.out", name)

	var b strings.Builder
	g.header(&b, name, logFile, g.Case.Slurm.TransferWallTime, 1, deps)
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s stage --case %s --chunk %d\n", g.ControlBin, g.Case.InstallDir, c.Index))
	b.WriteString("rc=$?\n")
	g.controlCallback(&b, KindTransfer, c.Index)
	return g.script(KindTransfer, c.Index, name, b.String())
}

// GenerateArchive emits the output offload job for a completed chunk.
//
// The archive job runs while the next chunk's run is already writing into
// the same output directory, so file selection is date-bounded: only files
// stamped with the source chunk's own days are archived and removed. Restart
// directories live outside output and are never touched: the next chunk's
// run consumes them.
func (g *Generator) GenerateArchive(c chunk.Chunk, deps []string) Script {
	name := fmt.Sprintf("%s_archive_%03d", g.Case.Name, c.Index)
	logFile := fmt.Sprintf("%s.out", name)

	var b strings.Builder
	g.header(&b, name, logFile, g.Case.Slurm.ArchiveWallTime, 1, deps)
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("cd %s\n", g.Case.InstallDir))

	stamp := fmt.Sprintf("%s-%s", c.Start.Format(chunk.DateFormatCESM), c.End.Format(chunk.DateFormatCESM))
	archive := filepath.Join(g.Case.Archive.Dir, fmt.Sprintf("%s_%s.tar%s", g.Case.Name, stamp, tarSuffix(g.Case.Archive.Compression)))
	b.WriteString(fmt.Sprintf("mkdir -p %s\n", g.Case.Archive.Dir))

	dirs := "output"
	if g.Case.Archive.ArchiveCESM {
		dirs += " timing"
	}
	b.WriteString(fmt.Sprintf("days=\"%s\"\n", strings.Join(archiveStamps(c), " ")))
	b.WriteString(fmt.Sprintf("list=%s.files\n", name))
	b.WriteString(": > $list\n")
	b.WriteString(fmt.Sprintf("for d in $days; do find %s -type f -name \"*${d}*\" >> $list; done\n", dirs))
	b.WriteString("sort -u -o $list $list\n")
	b.WriteString(fmt.Sprintf("tar %s -cf %s -T $list\n", tarFlag(g.Case.Archive.Compression), archive))
	b.WriteString("rc=$?\n")
	if g.Case.Archive.RemoveOriginals {
		// Only the files just archived; anything the live run writes stays.
		b.WriteString("if [ $rc -eq 0 ]; then xargs -r rm -f < $list; fi\n")
	}
	b.WriteString("rm -f $list\n")
	g.controlCallback(&b, KindArchive, c.Index)
	return g.script(KindArchive, c.Index, name, b.String())
}

// archiveStamps lists the date stamps that appear in the chunk's output file
// names, one compact and one dashed form per simulated day. COSMO grib
// output carries the compact form, CESM history the dashed one.
func archiveStamps(c chunk.Chunk) []string {
	var stamps []string
	for cur := c.Start; cur.Before(c.End); cur = cur.AddDate(0, 0, 1) {
		stamps = append(stamps, cur.Format(chunk.DateFormatCESM), cur.Format("2006-01-02"))
	}
	return stamps
}

func (g *Generator) script(kind Kind, idx int, name, text string) Script {
	return Script{
		Kind:          kind,
		Chunk:         idx,
		JobName:       name,
		Path:          filepath.Join(g.Case.InstallDir, fmt.Sprintf("%s.job", name)),
		Text:          text,
		CorrelationID: uuid.New().String(),
	}
}

func (g *Generator) header(b *strings.Builder, jobName, logFile, wallTime string, nodes int, deps []string) {
	shebang := g.Case.Shebang
	if shebang == "" {
		shebang = "#!/bin/bash -l"
	}
	b.WriteString(shebang + "\n")
	fmt.Fprintf(b, "#SBATCH --job-name=%s\n", jobName)
	if nodes > 0 {
		fmt.Fprintf(b, "#SBATCH --nodes=%d\n", nodes)
	}
	fmt.Fprintf(b, "#SBATCH --output=%s\n", logFile)
	fmt.Fprintf(b, "#SBATCH --error=%s\n", logFile)
	if g.Case.Slurm.Account != "" {
		fmt.Fprintf(b, "#SBATCH --account=%s\n", g.Case.Slurm.Account)
	}
	if wallTime != "" {
		fmt.Fprintf(b, "#SBATCH --time=%s\n", wallTime)
	}
	if g.Case.Slurm.Partition != "" {
		fmt.Fprintf(b, "#SBATCH --partition=%s\n", g.Case.Slurm.Partition)
	}
	if g.Case.Slurm.Constraint != "" {
		fmt.Fprintf(b, "#SBATCH --constraint=%s\n", g.Case.Slurm.Constraint)
	}
	if len(deps) > 0 {
		fmt.Fprintf(b, "#SBATCH --dependency=afterok:%s\n", strings.Join(deps, ":"))
	}
}

func (g *Generator) environment(b *strings.Builder) {
	b.WriteString("\n")
	switch g.Case.ModulesOpt {
	case "purge":
		b.WriteString("module purge\n")
		b.WriteString("module load PrgEnv-pgi\n")
		b.WriteString("module load cray-netcdf\n")
	case "none":
	default: // switch
		b.WriteString("module switch PrgEnv-cray PrgEnv-pgi\n")
		b.WriteString("module load cray-netcdf\n")
	}
	b.WriteString("module list\n")
	b.WriteString("\n")
	b.WriteString("export MALLOC_MMAP_MAX_=0\n")
	b.WriteString("export MALLOC_TRIM_THRESHOLD_=536870912\n")
	b.WriteString("ulimit -s unlimited\n")
	b.WriteString("export OMP_NUM_THREADS=1\n")
	if g.Case.GPUMode {
		b.WriteString("\n")
		b.WriteString("export MV2_ENABLE_AFFINITY=0\n")
		b.WriteString("export MV2_USE_CUDA=1\n")
		b.WriteString("export MPICH_RDMA_ENABLED_CUDA=1\n")
		b.WriteString("export MPICH_G2G_PIPELINE=256\n")
	}
}

// controlCallback appends the synchronous re-entry into the lifecycle
// controller, the last action of every pipeline script.
func (g *Generator) controlCallback(b *strings.Builder, kind Kind, idx int) {
	fmt.Fprintf(b, "%s control --case %s --chunk %d --stage %s --exit-code $rc\n",
		g.ControlBin, g.Case.InstallDir, idx, kind)
}

func tarFlag(c ledger.Compression) string {
	switch c {
	case ledger.CompressionGzip:
		return "-z"
	case ledger.CompressionBzip2:
		return "-j"
	default:
		return ""
	}
}

func tarSuffix(c ledger.Compression) string {
	switch c {
	case ledger.CompressionGzip:
		return ".gz"
	case ledger.CompressionBzip2:
		return ".bz2"
	default:
		return ""
	}
}

func (g *Generator) logFile(c chunk.Chunk) string {
	return fmt.Sprintf("%s_%s-%s.out", g.Case.Name,
		c.Start.Format(chunk.DateFormatCESM), c.End.Format(chunk.DateFormatCESM))
}
