package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clmops/cclmctl/pkg/chunk"
	"github.com/clmops/cclmctl/pkg/namelist"
)

const windowInputOrg = `&runctl
    ydate_ini='2020010100',
    dt=40.0,
    hstart=0.0,
    nstop=0,
/
`

const windowInputIO = `&ioctl
    ngribout=2,
    nhour_restart=0,0,24,
    ydir_restart_out='restarts',
/
&gribin
    ydirini='input',
    hincbound=6.0,
/
&gribout
    hcomb=0.0, 744.0, 1.0,
    lwrite_const=.TRUE.,
    ydir='output/1h',
/
&gribout
    hcomb=0.0, 744.0, 8760.0,
    ydir='output/yearly',
/
`

const windowDrvIn = `&seq_infodata_inparm
    case_name='alpclm',
    start_type='startup',
/
&seq_timemgr_inparm
    start_ymd=20200101,
    stop_n=86400,
    restart_n=86400,
/
`

func windowDocs(t *testing.T) map[string]*namelist.Document {
	t.Helper()
	docs := map[string]*namelist.Document{}
	for name, src := range map[string]string{
		FileInputOrg: windowInputOrg,
		FileInputIO:  windowInputIO,
		FileDrvIn:    windowDrvIn,
	} {
		doc, err := namelist.ParseBytes([]byte(src), name)
		require.NoError(t, err)
		docs[name] = doc
	}
	return docs
}

func TestApplyChunkWindowFirstChunk(t *testing.T) {
	docs := windowDocs(t)
	caseStart := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	c := chunk.Chunk{
		Index: 0,
		Start: caseStart,
		End:   time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC),
	}

	require.NoError(t, ApplyChunkWindow(docs, caseStart, c))

	runctl, _ := docs[FileInputOrg].Block("runctl", 1)
	v, _ := runctl.Get("ydate_ini")
	assert.Equal(t, "2020010100", v.Str)
	v, _ = runctl.Get("hstart")
	assert.Equal(t, 0.0, v.Float)
	v, _ = runctl.Get("nstop")
	// 744h * 3600s / 40s - 1
	assert.Equal(t, int64(66959), v.Int)

	drv, _ := docs[FileDrvIn].Block("seq_timemgr_inparm", 1)
	v, _ = drv.Get("stop_n")
	assert.Equal(t, int64(2678400), v.Int)
	v, _ = drv.Get("start_ymd")
	assert.Equal(t, int64(20200101), v.Int)

	// The yearly stream does not fit a one-month chunk and is dropped.
	assert.Len(t, docs[FileInputIO].Blocks("gribout"), 1)
	ioctl, _ := docs[FileInputIO].Block("ioctl", 1)
	v, _ = ioctl.Get("ngribout")
	assert.Equal(t, int64(1), v.Int)
	gb, _ := docs[FileInputIO].Block("gribout", 1)
	v, _ = gb.Get("hcomb")
	require.Equal(t, namelist.KindList, v.Kind)
	assert.Equal(t, 0.0, v.List[0].Float)
	assert.Equal(t, 744.0, v.List[1].Float)

	// First chunk keeps startup mode and constant-field output.
	info, _ := docs[FileDrvIn].Block("seq_infodata_inparm", 1)
	v, _ = info.Get("start_type")
	assert.Equal(t, "startup", v.Str)
	v, _ = gb.Get("lwrite_const")
	assert.True(t, v.Bool)
}

func TestApplyChunkWindowContinuationChunk(t *testing.T) {
	docs := windowDocs(t)
	caseStart := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	c := chunk.Chunk{
		Index: 1,
		Start: time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC),
		Last:  true,
	}

	require.NoError(t, ApplyChunkWindow(docs, caseStart, c))

	runctl, _ := docs[FileInputOrg].Block("runctl", 1)
	v, _ := runctl.Get("hstart")
	assert.Equal(t, 744.0, v.Float)

	drv, _ := docs[FileDrvIn].Block("seq_timemgr_inparm", 1)
	v, _ = drv.Get("start_ymd")
	assert.Equal(t, int64(20200201), v.Int)

	info, _ := docs[FileDrvIn].Block("seq_infodata_inparm", 1)
	v, _ = info.Get("start_type")
	assert.Equal(t, "continue", v.Str)

	// Initial input now comes from the restart output directory.
	gribin, _ := docs[FileInputIO].Block("gribin", 1)
	v, _ = gribin.Get("ydirini")
	assert.Equal(t, "restarts", v.Str)

	gb, _ := docs[FileInputIO].Block("gribout", 1)
	v, _ = gb.Get("lwrite_const")
	assert.False(t, v.Bool)
}

// The source INPUT_ORG may carry a clock origin from a different experiment;
// both models follow the case start, never the source value.
func TestApplyChunkWindowOverridesForeignClockOrigin(t *testing.T) {
	docs := windowDocs(t)
	foreign, err := namelist.ParseBytes([]byte(
		"&runctl\n    ydate_ini='1999010100',\n    dt=40.0,\n/\n"), FileInputOrg)
	require.NoError(t, err)
	docs[FileInputOrg] = foreign

	caseStart := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	c := chunk.Chunk{
		Index: 0,
		Start: caseStart,
		End:   time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, ApplyChunkWindow(docs, caseStart, c))

	runctl, _ := docs[FileInputOrg].Block("runctl", 1)
	v, _ := runctl.Get("ydate_ini")
	assert.Equal(t, "2020010100", v.Str)
}

// A restart case's first chunk starts after the case origin: it keeps the
// origin as ydate_ini, gets a non-zero hstart and continues the driver.
func TestApplyChunkWindowRestartFirstChunk(t *testing.T) {
	docs := windowDocs(t)
	caseStart := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	c := chunk.Chunk{
		Index: 0,
		Start: time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	require.NoError(t, ApplyChunkWindow(docs, caseStart, c))

	runctl, _ := docs[FileInputOrg].Block("runctl", 1)
	v, _ := runctl.Get("ydate_ini")
	assert.Equal(t, "2020010100", v.Str)
	v, _ = runctl.Get("hstart")
	assert.Equal(t, 744.0, v.Float)

	drv, _ := docs[FileDrvIn].Block("seq_timemgr_inparm", 1)
	v, _ = drv.Get("start_ymd")
	assert.Equal(t, int64(20200201), v.Int)

	info, _ := docs[FileDrvIn].Block("seq_infodata_inparm", 1)
	v, _ = info.Get("start_type")
	assert.Equal(t, "continue", v.Str)
}

func TestApplyChunkWindowMissingBlocks(t *testing.T) {
	docs := windowDocs(t)
	delete(docs, FileDrvIn)
	caseStart := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	err := ApplyChunkWindow(docs, caseStart, chunk.Chunk{Index: 0, Start: caseStart, End: caseStart.AddDate(0, 1, 0)})
	require.Error(t, err)
}
