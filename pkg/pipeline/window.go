package pipeline

import (
	"fmt"
	"strconv"
	"time"

	"github.com/clmops/cclmctl/pkg/chunk"
	"github.com/clmops/cclmctl/pkg/namelist"
)

// Namelist file names the window injection touches.
const (
	FileInputOrg = "INPUT_ORG"
	FileInputIO  = "INPUT_IO"
	FileDrvIn    = "drv_in"
)

// ApplyChunkWindow rewrites the model namelists for one chunk's run window:
// the atmosphere model's clock origin and step counters, the output stream
// windows, the restart schedule, and the coupled driver's clock. For chunks
// starting after the case origin it also flips the driver to continue mode
// and points the initial input directory at the restart output of the
// previous chunk.
func ApplyChunkWindow(docs map[string]*namelist.Document, caseStart time.Time, c chunk.Chunk) error {
	inputOrg, err := block(docs, FileInputOrg, "runctl")
	if err != nil {
		return err
	}
	drvTime, err := block(docs, FileDrvIn, "seq_timemgr_inparm")
	if err != nil {
		return err
	}
	ioctl, err := block(docs, FileInputIO, "ioctl")
	if err != nil {
		return err
	}

	hstart := c.Start.Sub(caseStart).Hours()
	hstop := c.End.Sub(caseStart).Hours()
	runtimeSec := int64(c.Runtime().Seconds())

	dtv, ok := inputOrg.Get("dt")
	if !ok {
		return fmt.Errorf("%s/runctl misses the model timestep 'dt'", FileInputOrg)
	}
	dt := asFloat(dtv)
	if dt <= 0 {
		return fmt.Errorf("%s/runctl has non-positive timestep dt=%v", FileInputOrg, dtv.Render())
	}

	// ydate_ini anchors COSMO's clock; hstart counts hours from it. Both
	// models must agree on the case origin or they run different windows.
	inputOrg.Set("ydate_ini", namelist.StringValue(caseStart.Format(chunk.DateFormatCOSMO)))
	inputOrg.Set("hstart", namelist.FloatValue(hstart))
	inputOrg.Set("nstop", namelist.IntValue(int64(hstop*3600.0/dt)-1))

	drvTime.Set("stop_n", namelist.IntValue(runtimeSec))
	drvTime.Set("restart_n", namelist.IntValue(runtimeSec))
	startYMD, err := strconv.ParseInt(c.Start.Format(chunk.DateFormatCESM), 10, 64)
	if err != nil {
		return fmt.Errorf("format start_ymd: %w", err)
	}
	drvTime.Set("start_ymd", namelist.IntValue(startYMD))

	ioctl.Set("nhour_restart", namelist.ListValue(
		namelist.IntValue(int64(hstop)), namelist.IntValue(int64(hstop)), namelist.IntValue(24)))

	if err := trimOutputStreams(docs[FileInputIO], hstart, hstop, c.Runtime().Hours()); err != nil {
		return err
	}

	// Continuation semantics apply to any chunk that does not begin at the
	// case origin: later chunks, and the first chunk of restart cases.
	if c.Start.After(caseStart) {
		drvInfo, err := block(docs, FileDrvIn, "seq_infodata_inparm")
		if err != nil {
			return err
		}
		drvInfo.Set("start_type", namelist.StringValue("continue"))
		if restartDir, ok := ioctl.Get("ydir_restart_out"); ok {
			if gribin, ok := docs[FileInputIO].Block("gribin", 1); ok {
				gribin.Set("ydirini", restartDir)
			}
		}
		for _, gb := range docs[FileInputIO].Blocks("gribout") {
			gb.Set("lwrite_const", namelist.BoolValue(false))
		}
	}
	return nil
}

// trimOutputStreams updates each output stream's window to the chunk's
// [hstart, hstop] and drops streams whose output interval exceeds the chunk
// runtime, keeping the stream count consistent. Short test chunks would
// otherwise crash the model on an unsatisfiable stream.
func trimOutputStreams(io *namelist.Document, hstart, hstop, runtimeHours float64) error {
	if io == nil {
		return nil
	}
	kept := 0
	for _, gb := range io.Blocks("gribout") {
		hcomb, ok := gb.Get("hcomb")
		if !ok || hcomb.Kind != namelist.KindList || len(hcomb.List) < 3 {
			return fmt.Errorf("%s/gribout instance %d has no usable hcomb window", FileInputIO, gb.Instance)
		}
		if asFloat(hcomb.List[2]) > runtimeHours {
			continue
		}
		gb.Set("hcomb", namelist.ListValue(
			namelist.FloatValue(hstart), namelist.FloatValue(hstop), hcomb.List[2]))
		kept++
	}
	for {
		dropped := false
		for _, gb := range io.Blocks("gribout") {
			hcomb, _ := gb.Get("hcomb")
			if asFloat(hcomb.List[2]) > runtimeHours {
				io.DeleteBlock("gribout", gb.Instance)
				dropped = true
				break
			}
		}
		if !dropped {
			break
		}
	}
	if ioctl, ok := io.Block("ioctl", 1); ok {
		ioctl.Set("ngribout", namelist.IntValue(int64(kept)))
	}
	return nil
}

func block(docs map[string]*namelist.Document, file, name string) (*namelist.Block, error) {
	doc, ok := docs[file]
	if !ok {
		return nil, fmt.Errorf("namelist file %s not loaded", file)
	}
	b, ok := doc.Block(name, 1)
	if !ok {
		return nil, &namelist.TargetNotFoundError{File: file, Block: name, Instance: 1}
	}
	return b, nil
}

func asFloat(v namelist.Value) float64 {
	switch v.Kind {
	case namelist.KindFloat:
		return v.Float
	case namelist.KindInt:
		return float64(v.Int)
	}
	return 0
}
