// Package folders knows where the model components read and
// write their files, relative to the run work directory.
package folders

import (
	"strings"

	"github.com/meteocima/coupled-drivers/fsutil"
)

// RunSummary is written by a run and read back by the finalize
// step of the same cycle.
const RunSummary = fsutil.Path("drivers-summary.yaml")

// PEOutputDir holds per-process standard output of the atmosphere.
const PEOutputDir = fsutil.Path("pe_output")

// AtmosStdout returns the stdout file of atmosphere process pe.
// prefix is the value of ATMOS_STDOUT_FILE.
func AtmosStdout(prefix string, pe int) fsutil.Path {
	return PEOutputDir.JoinF("%s%d", prefix, pe)
}

// StdoutPrefix returns the file name prefix of ATMOS_STDOUT_FILE,
// which may include the PEOutputDir directory.
func StdoutPrefix(stdoutFile string) string {
	return strings.TrimPrefix(strings.TrimPrefix(stdoutFile, "./"), string(PEOutputDir)+"/")
}

// AtmosStdoutGlob matches the stdout files of every atmosphere process.
func AtmosStdoutGlob(prefix string) fsutil.Path {
	return PEOutputDir.Join(prefix + "*")
}

// LFRicLog returns the log of PE0 of the LFRic atmosphere.
func LFRicLog(prefix string) fsutil.Path {
	return fsutil.PathF("%s.Log", prefix)
}

// OceanOutput is the log written by the ocean.
func OceanOutput() fsutil.Path {
	return "ocean.output"
}

// NemoRestart returns the name of the ocean restart written
// at time step step.
func NemoRestart(exp string, step int) fsutil.Path {
	return fsutil.PathF("%s_%08d_restart.nc", exp, step)
}

// NemoRestartGlob matches the ocean restarts written at time step
// step, either whole or split by process.
func NemoRestartGlob(exp string, step int) fsutil.Path {
	return fsutil.PathF("%s_%08d_restart*.nc", exp, step)
}

// NemoInitialRestart is where the restart of a new run is linked.
const NemoInitialRestart = fsutil.Path("restart_oce.nc")

// CouplerDebugGlob matches debug files written by the coupler.
func CouplerDebugGlob() fsutil.Path {
	return "debug.*.??????"
}
