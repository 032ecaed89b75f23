package drivers

import (
	"fmt"
	"strings"

	"github.com/meteocima/coupled-drivers/envspec"
	"github.com/meteocima/coupled-drivers/folders"
	"github.com/meteocima/coupled-drivers/fsutil"
	"go.uber.org/zap"
)

// mctDriver prepares the coupler. It runs last, so that it can
// collect the fields contributed by the other drivers.
type mctDriver struct{}

func (mctDriver) Name() string { return "mct" }

func (mctDriver) Tables() (envspec.Table, envspec.Table) {
	initial := []envspec.VariableSpec{
		envspec.Required("COUPLING_COMPONENTS", "space separated models exchanging fields through the coupler"),
		envspec.Optional("NAMCOUPLE", "namcouple", "coupler configuration file"),
		envspec.Optional("CPL_NLOGPRT", "0", "verbosity of the coupler"),
	}
	final := []envspec.VariableSpec{
		envspec.Optional("CPL_KEEP_DEBUG", "false", "keep the debug files written by the coupler"),
	}
	return envspec.NewTable("mct initial", initial...), envspec.NewTable("mct final", final...)
}

// Namcouple renders the coupler configuration exchanging fields
// for a run of runtime seconds.
func Namcouple(fields []CouplingField, runtime int64, nlogprt string) string {
	var b strings.Builder
	b.WriteString("# generated by coupled-drivers\n")
	fmt.Fprintf(&b, " $NFIELDS\n   %d\n $END\n", len(fields))
	fmt.Fprintf(&b, " $RUNTIME\n   %d\n $END\n", runtime)
	fmt.Fprintf(&b, " $NLOGPRT\n   %s\n $END\n", nlogprt)
	b.WriteString(" $STRINGS\n")
	for _, f := range fields {
		fmt.Fprintf(&b, "%s %s 1 %d 1 %s_%s.nc EXPOUT\n", f.Name, f.Name, f.Period, f.Source, f.Target)
		fmt.Fprintf(&b, "%s %s\n", f.Source, f.Target)
	}
	b.WriteString(" $END\n")
	return b.String()
}

func (d mctDriver) Setup(ctx *Context, common envspec.Resolved, info *RunInfo) (*Result, error) {
	initial, _ := d.Tables()
	env, err := ctx.Resolve(initial)
	if err != nil {
		return nil, err
	}
	ids, err := CouplerComponents(env.Get("COUPLING_COMPONENTS"))
	if err != nil {
		return nil, fmt.Errorf("mct: %w", err)
	}
	for _, model := range strings.Fields(strings.ToLower(env.Get("COUPLING_COMPONENTS"))) {
		if !info.ran(model) {
			return nil, fmt.Errorf("mct: `%s` is coupled but not among the models of the run", model)
		}
	}
	env["COUPLER_IDS"] = strings.Join(ids, ",")
	info.Values["coupler_ids"] = env["COUPLER_IDS"]

	tr := ctx.Tr
	namcouple := fsutil.Path(env.Get("NAMCOUPLE"))
	if !namcoupleRuntime(common) {
		if !tr.Exists(namcouple) {
			if tr.Err != nil {
				return nil, tr.Err
			}
			return nil, fmt.Errorf("mct: static coupler configuration `%s` not found", namcouple)
		}
		ctx.logger().Info("mct ready", zap.Strings("components", ids), zap.Stringer("namcouple", namcouple))
		return &Result{Env: env}, nil
	}

	known := map[string]bool{}
	for _, id := range ids {
		known[id] = true
	}
	for _, f := range info.Fields {
		if !known[f.Source] || !known[f.Target] {
			return nil, fmt.Errorf("mct: field `%s` from `%s` to `%s` involves a component that is not coupled", f.Name, f.Source, f.Target)
		}
	}
	if len(info.Fields) == 0 {
		return nil, fmt.Errorf("mct: no coupling fields between %s", strings.Join(ids, ", "))
	}

	_, secs, err := runSeconds(common)
	if err != nil {
		return nil, fmt.Errorf("mct: %w", err)
	}
	tr.WriteString(namcouple, Namcouple(info.Fields, secs, env.Get("CPL_NLOGPRT")))
	if tr.Err != nil {
		return nil, tr.Err
	}
	ctx.logger().Info("mct ready",
		zap.Strings("components", ids),
		zap.Int("fields", len(info.Fields)),
		zap.Stringer("namcouple", namcouple),
	)
	return &Result{Env: env}, nil
}

func (d mctDriver) Finalize(ctx *Context, common envspec.Resolved) error {
	_, final := d.Tables()
	env, err := ctx.Resolve(final)
	if err != nil {
		return err
	}
	keep, err := parseFlag(env.Get("CPL_KEEP_DEBUG"))
	if err != nil {
		return fmt.Errorf("CPL_KEEP_DEBUG: %w", err)
	}
	if keep {
		return nil
	}
	tr := ctx.Tr
	debug := tr.Glob(folders.CouplerDebugGlob())
	for _, file := range debug {
		tr.RmFile(file)
	}
	if tr.Err != nil {
		return tr.Err
	}
	ctx.logger().Debug("coupler debug files removed", zap.Int("count", len(debug)))
	return nil
}
