package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSbatch writes a shell script that records its arguments and prints the
// given stdout, exiting with the given code.
func stubSbatch(t *testing.T, dir, stdout string, exitCode int) (bin, argsFile string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub sbatch requires a POSIX shell")
	}
	argsFile = filepath.Join(dir, "sbatch.args")
	bin = filepath.Join(dir, "sbatch")
	script := "#!/bin/sh\necho \"$@\" > " + argsFile + "\n"
	if stdout != "" {
		script += "echo '" + stdout + "'\n"
	}
	if exitCode != 0 {
		script += "echo 'sbatch: error: invalid partition' >&2\n"
	}
	script += "exit " + strconv.Itoa(exitCode) + "\n"
	require.NoError(t, os.WriteFile(bin, []byte(script), 0755))
	return bin, argsFile
}

func TestSlurmClientSubmit(t *testing.T) {
	dir := t.TempDir()
	bin, argsFile := stubSbatch(t, dir, "4242;daint", 0)

	c := NewSlurmClient(bin, dir, 100, nil)
	id, err := c.Submit(context.Background(), "job_run_0.sbatch", nil)
	require.NoError(t, err)
	assert.Equal(t, "4242", id)

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t, "--parsable job_run_0.sbatch\n", string(args))
}

func TestSlurmClientSubmitWithDependencies(t *testing.T) {
	dir := t.TempDir()
	bin, argsFile := stubSbatch(t, dir, "77", 0)

	c := NewSlurmClient(bin, dir, 100, nil)
	id, err := c.Submit(context.Background(), "job_run_1.sbatch", []JobID{"55", "56"})
	require.NoError(t, err)
	assert.Equal(t, "77", id)

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t, "--parsable --dependency=afterok:55:56 job_run_1.sbatch\n", string(args))
}

func TestSlurmClientSubmitFailureIncludesStderr(t *testing.T) {
	dir := t.TempDir()
	bin, _ := stubSbatch(t, dir, "", 1)

	c := NewSlurmClient(bin, dir, 100, nil)
	_, err := c.Submit(context.Background(), "job_run_0.sbatch", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid partition")
}

func TestSlurmClientSubmitRejectsEmptyOutput(t *testing.T) {
	dir := t.TempDir()
	bin, _ := stubSbatch(t, dir, "", 0)

	c := NewSlurmClient(bin, dir, 100, nil)
	_, err := c.Submit(context.Background(), "job_run_0.sbatch", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no job id")
}

func TestFakeRecordsSubmissions(t *testing.T) {
	f := &Fake{}
	id1, err := f.Submit(context.Background(), "a.sbatch", nil)
	require.NoError(t, err)
	id2, err := f.Submit(context.Background(), "b.sbatch", []JobID{id1})
	require.NoError(t, err)

	assert.Equal(t, "1001", id1)
	assert.Equal(t, "1002", id2)
	require.Len(t, f.Submissions, 2)
	assert.Equal(t, []JobID{id1}, f.Last().Deps)
}
