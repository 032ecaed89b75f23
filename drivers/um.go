package drivers

import (
	"fmt"

	"github.com/meteocima/coupled-drivers/envspec"
	"github.com/meteocima/coupled-drivers/folders"
	"go.uber.org/zap"
)

var umLaunch = launchVars{
	Preopts:      "ROSE_LAUNCHER_PREOPTS_UM",
	Nodes:        "ATMOS_NODES",
	Threads:      "OMPTHR_ATM",
	Hyperthreads: "AHYPERTHREADS",
}

// fields the atmosphere sends to the ocean and to the rivers.
var (
	atmosToOcean = []string{
		"heatflux", "solar", "train", "tsnow", "evap2d",
		"taux", "tauy", "w10", "topmeltn", "botmeltn", "sublim",
	}
	atmosToRivers = []string{"runoff"}
)

type umDriver struct{}

func (umDriver) Name() string { return "um" }

func (umDriver) Tables() (envspec.Table, envspec.Table) {
	initial := []envspec.VariableSpec{
		envspec.Required("UM_ATM_NPROCX", "atmosphere processes in the East-West direction"),
		envspec.Required("UM_ATM_NPROCY", "atmosphere processes in the North-South direction"),
		envspec.Optional("FLUME_IOS_NPROC", "0", "atmosphere IO server processes"),
		envspec.Optional("ATMOS_EXEC", "um-atmos.exe", "atmosphere executable"),
		envspec.Optional("ATMOS_STDOUT_FILE", "pe_output/atmos.fort6.pe", "prefix of the per process stdout files"),
		envspec.Optional("UM_THREAD_LEVEL", "MULTIPLE", "MPI thread level requested by the atmosphere"),
		envspec.Optional("PRINT_STATUS", "PrStatus_Normal", "verbosity of the atmosphere"),
		envspec.Optional("HISTORY", "atmos.xhist", "atmosphere history file"),
	}
	initial = append(initial, umLaunch.declare("the UM atmosphere")...)

	final := []envspec.VariableSpec{
		envspec.Optional("ATMOS_STDOUT_FILE", "pe_output/atmos.fort6.pe", "prefix of the per process stdout files"),
		envspec.Optional("ATMOS_KEEP_MPP_STDOUT", "false", "keep the stdout files of every atmosphere process"),
	}
	return envspec.NewTable("um initial", initial...), envspec.NewTable("um final", final...)
}

// stdoutPrefix returns ATMOS_STDOUT_FILE without the pe_output directory.
func stdoutPrefix(env envspec.Resolved) string {
	return folders.StdoutPrefix(env.Get("ATMOS_STDOUT_FILE"))
}

func (d umDriver) Setup(ctx *Context, common envspec.Resolved, info *RunInfo) (*Result, error) {
	initial, _ := d.Tables()
	env, err := ctx.Resolve(initial)
	if err != nil {
		return nil, err
	}

	nx, err := atoi(env, "UM_ATM_NPROCX")
	if err != nil {
		return nil, err
	}
	ny, err := atoi(env, "UM_ATM_NPROCY")
	if err != nil {
		return nil, err
	}
	ios, err := atoi(env, "FLUME_IOS_NPROC")
	if err != nil {
		return nil, err
	}
	tasks := nx*ny + ios
	env["UM_NPES"] = fmt.Sprint(nx * ny)
	env["NPROC"] = fmt.Sprint(tasks)

	// stdout files of a previous cycle would be mixed with the new ones
	tr := ctx.Tr
	tr.MkDir(folders.PEOutputDir)
	for _, stale := range tr.Glob(folders.AtmosStdoutGlob(stdoutPrefix(env))) {
		tr.RmFile(stale)
	}
	if tr.Err != nil {
		return nil, tr.Err
	}

	launch, err := ctx.launchCommand(env, common, umLaunch, tasks, env.Get("ATMOS_EXEC"))
	if err != nil {
		return nil, fmt.Errorf("um: %w", err)
	}

	res := &Result{Env: env, Tasks: tasks, Launch: launch}
	if namcoupleRuntime(common) {
		if res.Fields, err = atmosphereFields("um", common); err != nil {
			return nil, fmt.Errorf("um: %w", err)
		}
	}
	ctx.logger().Info("um ready", zap.Int("tasks", tasks), zap.String("launch", launch))
	return res, nil
}

// atmosphereFields lists the fields sent by the atmosphere model
// to the components it is coupled with.
func atmosphereFields(model string, common envspec.Resolved) ([]CouplingField, error) {
	components := common.Get("COUPLING_COMPONENTS")
	period, err := couplingPeriod(common)
	if err != nil {
		return nil, err
	}
	source := couplerID(model)

	var res []CouplingField
	if coupledWith(components, "nemo") {
		for _, f := range atmosToOcean {
			res = append(res, CouplingField{Name: f, Source: source, Target: couplerID("nemo"), Period: period})
		}
	}
	if coupledWith(components, "rivers") {
		for _, f := range atmosToRivers {
			res = append(res, CouplingField{Name: f, Source: source, Target: couplerID("rivers"), Period: period})
		}
	}
	return res, nil
}

func (d umDriver) Finalize(ctx *Context, common envspec.Resolved) error {
	_, final := d.Tables()
	env, err := ctx.Resolve(final)
	if err != nil {
		return err
	}

	keep, err := parseFlag(env.Get("ATMOS_KEEP_MPP_STDOUT"))
	if err != nil {
		return fmt.Errorf("ATMOS_KEEP_MPP_STDOUT: %w", err)
	}

	tr := ctx.Tr
	prefix := stdoutPrefix(env)
	pe0 := folders.AtmosStdout(prefix, 0)
	if !tr.Exists(pe0) {
		if tr.Err != nil {
			return tr.Err
		}
		return fmt.Errorf("um: `%s` not found: the atmosphere did not run", pe0)
	}
	if keep {
		return nil
	}

	removed := 0
	for _, file := range tr.Glob(folders.AtmosStdoutGlob(prefix)) {
		if file == pe0 {
			continue
		}
		tr.RmFile(file)
		removed++
	}
	if tr.Err != nil {
		return tr.Err
	}
	ctx.logger().Info("um stdout tidied", zap.Int("removed", removed), zap.Stringer("kept", pe0))
	return nil
}
