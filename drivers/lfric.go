package drivers

import (
	"fmt"
	"strings"

	"github.com/meteocima/coupled-drivers/envspec"
	"github.com/meteocima/coupled-drivers/folders"
	"github.com/meteocima/coupled-drivers/fsutil"
	"go.uber.org/zap"
)

var lfricLaunch = launchVars{
	Preopts:      "ROSE_LAUNCHER_PREOPTS_LFRIC",
	Nodes:        "LFRIC_NODES",
	Threads:      "OMPTHR_LFRIC",
	Hyperthreads: "LHYPERTHREADS",
}

type lfricDriver struct{}

func (lfricDriver) Name() string { return "lfric" }

func (lfricDriver) Tables() (envspec.Table, envspec.Table) {
	initial := []envspec.VariableSpec{
		envspec.Required("LFRIC_NPROC", "LFRic atmosphere processes"),
		envspec.Optional("LFRIC_EXEC", "lfric_atm.exe", "LFRic atmosphere executable"),
		envspec.Optional("LFRIC_CONFIG", "configuration.nml", "LFRic configuration namelist"),
		envspec.Optional("LFRIC_LOG_PREFIX", "PET", "prefix of the per process log files"),
	}
	initial = append(initial, lfricLaunch.declare("the LFRic atmosphere")...)

	final := []envspec.VariableSpec{
		envspec.Optional("LFRIC_LOG_PREFIX", "PET", "prefix of the per process log files"),
	}
	return envspec.NewTable("lfric initial", initial...), envspec.NewTable("lfric final", final...)
}

func (d lfricDriver) Setup(ctx *Context, common envspec.Resolved, info *RunInfo) (*Result, error) {
	initial, _ := d.Tables()
	env, err := ctx.Resolve(initial)
	if err != nil {
		return nil, err
	}
	tasks, err := atoi(env, "LFRIC_NPROC")
	if err != nil {
		return nil, err
	}

	// the configuration is read by the model, here it is only
	// checked to be a well formed namelist
	if _, err := ctx.readNamelist(fsutil.Path(env.Get("LFRIC_CONFIG"))); err != nil {
		return nil, fmt.Errorf("lfric: %w", err)
	}

	launch, err := ctx.launchCommand(env, common, lfricLaunch, tasks, env.Get("LFRIC_EXEC"))
	if err != nil {
		return nil, fmt.Errorf("lfric: %w", err)
	}

	res := &Result{Env: env, Tasks: tasks, Launch: launch}
	if namcoupleRuntime(common) {
		if res.Fields, err = atmosphereFields("lfric", common); err != nil {
			return nil, fmt.Errorf("lfric: %w", err)
		}
	}
	ctx.logger().Info("lfric ready", zap.Int("tasks", tasks), zap.String("launch", launch))
	return res, nil
}

func (d lfricDriver) Finalize(ctx *Context, common envspec.Resolved) error {
	_, final := d.Tables()
	env, err := ctx.Resolve(final)
	if err != nil {
		return err
	}

	log := folders.LFRicLog(env.Get("LFRIC_LOG_PREFIX") + "0")
	content := ctx.Tr.ReadString(log)
	if ctx.Tr.Err != nil {
		return fmt.Errorf("lfric: PE0 log not found: %w", ctx.Tr.Err)
	}
	if strings.Contains(content, "ERROR") {
		return fmt.Errorf("lfric: `%s` reports errors", log)
	}
	return nil
}
