package drivers

import (
	"fmt"

	"github.com/meteocima/coupled-drivers/envspec"
	"go.uber.org/zap"
)

var riversLaunch = launchVars{
	Preopts:      "ROSE_LAUNCHER_PREOPTS_RIVER",
	Nodes:        "RIVER_NODES",
	Threads:      "OMPTHR_RIV",
	Hyperthreads: "RHYPERTHREADS",
}

var riversToOcean = []string{"rivflow"}

type riversDriver struct{}

func (riversDriver) Name() string { return "rivers" }

func (riversDriver) Tables() (envspec.Table, envspec.Table) {
	initial := []envspec.VariableSpec{
		envspec.Required("RIVER_NPROC", "river routing processes"),
		envspec.Optional("RIVER_EXEC", "river.exe", "river routing executable"),
	}
	initial = append(initial, riversLaunch.declare("the river routing model")...)
	return envspec.NewTable("rivers initial", initial...), envspec.NewTable("rivers final")
}

func (d riversDriver) Setup(ctx *Context, common envspec.Resolved, info *RunInfo) (*Result, error) {
	initial, _ := d.Tables()
	env, err := ctx.Resolve(initial)
	if err != nil {
		return nil, err
	}
	tasks, err := atoi(env, "RIVER_NPROC")
	if err != nil {
		return nil, err
	}

	launch, err := ctx.launchCommand(env, common, riversLaunch, tasks, env.Get("RIVER_EXEC"))
	if err != nil {
		return nil, fmt.Errorf("rivers: %w", err)
	}

	res := &Result{Env: env, Tasks: tasks, Launch: launch}
	if namcoupleRuntime(common) && coupledWith(common.Get("COUPLING_COMPONENTS"), "nemo") {
		period, err := couplingPeriod(common)
		if err != nil {
			return nil, fmt.Errorf("rivers: %w", err)
		}
		for _, f := range riversToOcean {
			res.Fields = append(res.Fields, CouplingField{Name: f, Source: couplerID("rivers"), Target: couplerID("nemo"), Period: period})
		}
	}
	ctx.logger().Info("rivers ready", zap.Int("tasks", tasks), zap.String("launch", launch))
	return res, nil
}

// Finalize has nothing to tidy: rivers write their restarts in place.
func (d riversDriver) Finalize(ctx *Context, common envspec.Resolved) error {
	_, final := d.Tables()
	_, err := ctx.Resolve(final)
	return err
}
