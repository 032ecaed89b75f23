package drivers

import (
	"fmt"
	"strconv"

	"github.com/meteocima/coupled-drivers/envspec"
	"github.com/meteocima/coupled-drivers/fsutil"
	"github.com/meteocima/coupled-drivers/namelist"
	"go.uber.org/zap"
)

// ciceDriver prepares the sea ice, which runs inside the ocean
// executable: it has no launch command of its own.
type ciceDriver struct{}

func (ciceDriver) Name() string { return "cice" }

func (ciceDriver) Tables() (envspec.Table, envspec.Table) {
	initial := []envspec.VariableSpec{
		envspec.Optional("CICE_NL", "ice_in", "sea ice namelist"),
		envspec.Optional("CICE_START", "", "restart of a new run, empty for a start from climatology"),
		envspec.Optional("CICE_RESTART_DIR", "RESTART", "directory of the sea ice restarts"),
	}
	final := []envspec.VariableSpec{
		envspec.Optional("CICE_RESTART_DIR", "RESTART", "directory of the sea ice restarts"),
	}
	return envspec.NewTable("cice initial", initial...), envspec.NewTable("cice final", final...)
}

// ciceRestartPointer names the file where the sea ice writes the
// path of its last restart.
const ciceRestartPointer = "ice.restart_file"

// updateSetup rewrites the run control keys of the setup_nml group.
func updateSetup(nl *namelist.File, start DateSpec, secs int64, continuing bool, restart string) (int, error) {
	setup, ok := nl.Group("setup_nml")
	if !ok {
		return 0, fmt.Errorf("group `setup_nml` not found")
	}
	var timing struct {
		Dt float64 `nml:"dt"`
	}
	if err := namelist.Decode(setup, &timing); err != nil {
		return 0, err
	}
	npt, err := timeSteps(secs, timing.Dt)
	if err != nil {
		return 0, err
	}

	setup.Set("npt", strconv.Itoa(npt))
	if continuing {
		setup.Set("runtype", namelist.Quote("continue"))
		setup.Set("restart", namelist.FormatBool(true))
		return npt, nil
	}
	setup.Set("runtype", namelist.Quote("initial"))
	setup.Set("year_init", strconv.Itoa(start.Year))
	setup.Set("istep0", "0")
	if restart != "" {
		setup.Set("ice_ic", namelist.Quote(restart))
		setup.Set("restart", namelist.FormatBool(true))
	} else {
		setup.Set("ice_ic", namelist.Quote("default"))
		setup.Set("restart", namelist.FormatBool(false))
	}
	return npt, nil
}

func (d ciceDriver) Setup(ctx *Context, common envspec.Resolved, info *RunInfo) (*Result, error) {
	initial, _ := d.Tables()
	env, err := ctx.Resolve(initial)
	if err != nil {
		return nil, err
	}
	continuing, err := parseFlag(common.Get("CONTINUE"))
	if err != nil {
		return nil, fmt.Errorf("CONTINUE: %w", err)
	}
	start, secs, err := runSeconds(common)
	if err != nil {
		return nil, fmt.Errorf("cice: %w", err)
	}

	tr := ctx.Tr
	pointer := fsutil.Path(env.Get("CICE_RESTART_DIR")).Join(ciceRestartPointer)
	if continuing && !tr.Exists(pointer) {
		if tr.Err != nil {
			return nil, tr.Err
		}
		return nil, fmt.Errorf("cice: restart pointer `%s` not found", pointer)
	}
	tr.MkDir(fsutil.Path(env.Get("CICE_RESTART_DIR")))

	nlFile := fsutil.Path(env.Get("CICE_NL"))
	nl, err := ctx.readNamelist(nlFile)
	if err != nil {
		return nil, fmt.Errorf("cice: %w", err)
	}
	npt, err := updateSetup(nl, start, secs, continuing, env.Get("CICE_START"))
	if err != nil {
		return nil, fmt.Errorf("cice: namelist `%s`: %w", nlFile, err)
	}
	if err := ctx.writeNamelist(nlFile, nl); err != nil {
		return nil, fmt.Errorf("cice: %w", err)
	}

	ctx.logger().Info("cice ready", zap.Int("npt", npt), zap.Bool("continue", continuing))
	return &Result{Env: env}, nil
}

func (d ciceDriver) Finalize(ctx *Context, common envspec.Resolved) error {
	_, final := d.Tables()
	env, err := ctx.Resolve(final)
	if err != nil {
		return err
	}
	pointer := fsutil.Path(env.Get("CICE_RESTART_DIR")).Join(ciceRestartPointer)
	if !ctx.Tr.Exists(pointer) {
		if ctx.Tr.Err != nil {
			return ctx.Tr.Err
		}
		return fmt.Errorf("cice: restart pointer `%s` not written: the sea ice did not complete", pointer)
	}
	return nil
}
