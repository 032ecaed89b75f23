package drivers

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/meteocima/coupled-drivers/envspec"
	"github.com/meteocima/coupled-drivers/folders"
	"github.com/meteocima/coupled-drivers/fsutil"
	"github.com/meteocima/coupled-drivers/namelist"
	"go.uber.org/zap"
)

var nemoLaunch = launchVars{
	Preopts:      "ROSE_LAUNCHER_PREOPTS_NEMO",
	Nodes:        "NEMO_NODES",
	Threads:      "OMPTHR_OCN",
	Hyperthreads: "OHYPERTHREADS",
}

// fields the ocean sends to the atmosphere.
var (
	oceanToAtmos = []string{
		"ocn_sst", "ocn_sstfrz", "ocn_icefrc", "ocn_icetn",
		"ocn_icekn", "ocn_snwtn", "ocn_u", "ocn_v",
	}
	oceanTracers = []string{"ocn_dms", "ocn_co2"}
)

type nemoDriver struct{}

func (nemoDriver) Name() string { return "nemo" }

func (nemoDriver) Tables() (envspec.Table, envspec.Table) {
	initial := []envspec.VariableSpec{
		envspec.Required("NEMO_NPROC", "ocean processes"),
		envspec.Optional("NEMO_EXEC", "nemo.exe", "ocean executable"),
		envspec.Optional("NEMO_NL", "namelist_cfg", "ocean namelist"),
		envspec.Optional("NEMO_START", "", "restart of a new run, empty for a start from climatology"),
		envspec.Optional("L_OCN_PASS_TRC", "false", "true when the ocean passes tracers to the atmosphere"),
	}
	initial = append(initial, nemoLaunch.declare("the NEMO ocean")...)

	final := []envspec.VariableSpec{
		envspec.Optional("NEMO_NL", "namelist_cfg", "ocean namelist"),
	}
	return envspec.NewTable("nemo initial", initial...), envspec.NewTable("nemo final", final...)
}

type nemoTiming struct {
	Exp   string  `nml:"cn_exp"`
	It000 int     `nml:"nn_it000"`
	ItEnd int     `nml:"nn_itend"`
	Rdt   float64 `nml:"rn_rdt"`
}

// timeSteps is the number of steps of length rdt in secs.
func timeSteps(secs int64, rdt float64) (int, error) {
	if rdt <= 0 {
		return 0, fmt.Errorf("time step rn_rdt must be positive, got %g", rdt)
	}
	steps := float64(secs) / rdt
	if math.Abs(steps-math.Round(steps)) > 1e-6 {
		return 0, fmt.Errorf("run length of %d seconds is not a multiple of the time step %g", secs, rdt)
	}
	return int(math.Round(steps)), nil
}

// updateRunLength rewrites the time step keys of nl for a cycle of
// secs seconds starting at start. A continuing cycle starts after
// the last step of the previous one.
func updateRunLength(nl *namelist.File, start DateSpec, secs int64, continuing bool) (nemoTiming, error) {
	var timing nemoTiming
	namrun, ok := nl.Group("namrun")
	if !ok {
		return timing, fmt.Errorf("group `namrun` not found")
	}
	if err := namelist.Decode(namrun, &timing); err != nil {
		return timing, err
	}
	if namdom, ok := nl.Group("namdom"); ok {
		if err := namelist.Decode(namdom, &timing); err != nil {
			return timing, err
		}
	}
	steps, err := timeSteps(secs, timing.Rdt)
	if err != nil {
		return timing, err
	}

	if continuing {
		timing.It000 = timing.ItEnd + 1
	} else {
		timing.It000 = 1
		namrun.Set("nn_date0", start.Compact())
	}
	timing.ItEnd = timing.It000 + steps - 1
	namrun.Set("nn_it000", strconv.Itoa(timing.It000))
	namrun.Set("nn_itend", strconv.Itoa(timing.ItEnd))
	return timing, nil
}

func (d nemoDriver) Setup(ctx *Context, common envspec.Resolved, info *RunInfo) (*Result, error) {
	initial, _ := d.Tables()
	env, err := ctx.Resolve(initial)
	if err != nil {
		return nil, err
	}
	tasks, err := atoi(env, "NEMO_NPROC")
	if err != nil {
		return nil, err
	}
	continuing, err := parseFlag(common.Get("CONTINUE"))
	if err != nil {
		return nil, fmt.Errorf("CONTINUE: %w", err)
	}
	start, secs, err := runSeconds(common)
	if err != nil {
		return nil, fmt.Errorf("nemo: %w", err)
	}

	nlFile := fsutil.Path(env.Get("NEMO_NL"))
	nl, err := ctx.readNamelist(nlFile)
	if err != nil {
		return nil, fmt.Errorf("nemo: %w", err)
	}
	timing, err := updateRunLength(nl, start, secs, continuing)
	if err != nil {
		return nil, fmt.Errorf("nemo: namelist `%s`: %w", nlFile, err)
	}
	namrun, _ := nl.Group("namrun")

	tr := ctx.Tr
	switch {
	case continuing:
		exp := timing.Exp
		last := timing.It000 - 1
		if len(tr.Glob(folders.NemoRestartGlob(exp, last))) == 0 {
			if tr.Err != nil {
				return nil, tr.Err
			}
			return nil, fmt.Errorf("nemo: no restart for step %d of `%s`", last, exp)
		}
		namrun.Set("ln_rstart", namelist.FormatBool(true))
		namrun.Set("nn_rstctl", "2")
		namrun.Set("cn_ocerst_in", namelist.Quote(fmt.Sprintf("%s_%08d_restart", exp, last)))

	case env.Get("NEMO_START") != "":
		startFile := fsutil.Path(env.Get("NEMO_START"))
		if !tr.Exists(startFile) {
			if tr.Err != nil {
				return nil, tr.Err
			}
			return nil, fmt.Errorf("nemo: NEMO_START `%s` not found", startFile)
		}
		tr.Link(startFile, folders.NemoInitialRestart)
		namrun.Set("ln_rstart", namelist.FormatBool(true))
		namrun.Set("nn_rstctl", "0")
		namrun.Set("cn_ocerst_in", namelist.Quote(strings.TrimSuffix(string(folders.NemoInitialRestart), ".nc")))

	default:
		namrun.Set("ln_rstart", namelist.FormatBool(false))
	}
	if err := ctx.writeNamelist(nlFile, nl); err != nil {
		return nil, fmt.Errorf("nemo: %w", err)
	}

	launch, err := ctx.launchCommand(env, common, nemoLaunch, tasks, env.Get("NEMO_EXEC"))
	if err != nil {
		return nil, fmt.Errorf("nemo: %w", err)
	}
	info.Values["nemo_first_step"] = strconv.Itoa(timing.It000)
	info.Values["nemo_last_step"] = strconv.Itoa(timing.ItEnd)

	res := &Result{Env: env, Tasks: tasks, Launch: launch}
	if namcoupleRuntime(common) {
		res.Fields, err = oceanFields(env, common)
		if err != nil {
			return nil, fmt.Errorf("nemo: %w", err)
		}
	}
	ctx.logger().Info("nemo ready",
		zap.Int("tasks", tasks),
		zap.Int("nn_it000", timing.It000),
		zap.Int("nn_itend", timing.ItEnd),
		zap.String("launch", launch),
	)
	return res, nil
}

func oceanFields(env, common envspec.Resolved) ([]CouplingField, error) {
	atmos := atmosphereOf(common.Get("COUPLING_COMPONENTS"))
	if atmos == "" {
		return nil, nil
	}
	tracers, err := parseFlag(env.Get("L_OCN_PASS_TRC"))
	if err != nil {
		return nil, fmt.Errorf("L_OCN_PASS_TRC: %w", err)
	}
	period, err := couplingPeriod(common)
	if err != nil {
		return nil, err
	}
	names := oceanToAtmos
	if tracers {
		names = append(append([]string{}, oceanToAtmos...), oceanTracers...)
	}
	res := make([]CouplingField, len(names))
	for i, f := range names {
		res[i] = CouplingField{Name: f, Source: couplerID("nemo"), Target: couplerID(atmos), Period: period}
	}
	return res, nil
}

// oceanErrorMarker is written by NEMO in ocean.output for each error.
const oceanErrorMarker = "E R R O R"

// countOceanErrors scrapes ocean.output with grep, which exits
// with status 1 when nothing matches.
func (ctx *Context) countOceanErrors() (int, error) {
	out, err := ctx.Tr.Output("", "grep", "-c", oceanErrorMarker, folders.OceanOutput().String())
	var procErr *fsutil.ExternalProcessError
	if errors.As(err, &procErr) && procErr.ExitCode == 1 && !procErr.TimedOut {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, fmt.Errorf("unexpected grep output `%s`", strings.TrimSpace(out))
	}
	return n, nil
}

func (d nemoDriver) Finalize(ctx *Context, common envspec.Resolved) error {
	_, final := d.Tables()
	if _, err := ctx.Resolve(final); err != nil {
		return err
	}

	if !ctx.Tr.Exists(folders.OceanOutput()) {
		if ctx.Tr.Err != nil {
			return ctx.Tr.Err
		}
		return fmt.Errorf("nemo: `%s` not found: the ocean did not run", folders.OceanOutput())
	}
	n, err := ctx.countOceanErrors()
	if err != nil {
		return fmt.Errorf("nemo: cannot scan `%s`: %w", folders.OceanOutput(), err)
	}
	if n > 0 {
		return fmt.Errorf("nemo: `%s` reports %d errors", folders.OceanOutput(), n)
	}
	return nil
}
