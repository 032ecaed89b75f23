// Package drivers prepares each model component of a coupled run:
// it resolves the environment variables the component needs, builds
// its launch command and, when the coupling configuration is
// generated at run time, lists the fields it sends to the coupler.
package drivers

import (
	"fmt"
	"sort"
	"strings"

	"github.com/meteocima/coupled-drivers/conf"
	"github.com/meteocima/coupled-drivers/envspec"
	"github.com/meteocima/coupled-drivers/fsutil"
	"go.uber.org/zap"
)

// Context carries what a driver needs from the invocation.
type Context struct {
	Tr       *fsutil.Transaction
	Env      envspec.Snapshot
	Log      *zap.Logger
	Launcher conf.LauncherConf
	// Global declares every variable of every table, so that trigger
	// dependents declared in another table can be found.
	Global envspec.Table
}

// Resolve resolves table against the context environment. When
// variables are missing, the partial result is returned together
// with a *envspec.MissingVariablesError. A trigger dependent that
// Global does not declare is an *envspec.UnknownReferenceError.
func (ctx *Context) Resolve(table envspec.Table) (envspec.Resolved, error) {
	resolved, missing, err := envspec.Resolve(table, ctx.Env, envspec.WithGlobal(ctx.Global), envspec.Strict())
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return resolved, &envspec.MissingVariablesError{Missing: missing}
	}
	return resolved, nil
}

func (ctx *Context) logger() *zap.Logger {
	if ctx.Log == nil {
		return zap.NewNop()
	}
	return ctx.Log
}

// RunInfo is shared by the drivers of one invocation; each driver
// records what the following ones, or the launcher, need.
type RunInfo struct {
	Models []string
	Tasks  map[string]int
	Launch map[string]string
	Values map[string]string
	Fields []CouplingField
}

// NewRunInfo returns an empty RunInfo.
func NewRunInfo() *RunInfo {
	return &RunInfo{
		Tasks:  map[string]int{},
		Launch: map[string]string{},
		Values: map[string]string{},
	}
}

// TotalTasks is the sum of the MPI tasks of every component.
func (info *RunInfo) TotalTasks() int {
	total := 0
	for _, n := range info.Tasks {
		total += n
	}
	return total
}

// ran reports whether the driver of model has been set up.
func (info *RunInfo) ran(model string) bool {
	for _, m := range info.Models {
		if m == model {
			return true
		}
	}
	return false
}

// Record stores the outcome of a driver Setup.
func (info *RunInfo) Record(model string, res *Result) {
	info.Models = append(info.Models, model)
	if res == nil {
		return
	}
	if res.Tasks > 0 {
		info.Tasks[model] = res.Tasks
	}
	if res.Launch != "" {
		info.Launch[model] = res.Launch
	}
	info.Fields = append(info.Fields, res.Fields...)
}

// Result of a driver Setup.
type Result struct {
	Env envspec.Resolved
	// Tasks is the number of MPI tasks the component runs on,
	// zero when it runs inside another executable.
	Tasks  int
	Launch string
	Fields []CouplingField
}

// Driver prepares one model component. Setup and Finalize are
// never called in the same invocation.
type Driver interface {
	Name() string
	// Tables returns the declarations of the initial and final phases.
	Tables() (initial, final envspec.Table)
	Setup(ctx *Context, common envspec.Resolved, info *RunInfo) (*Result, error)
	Finalize(ctx *Context, common envspec.Resolved) error
}

// canonical order in which drivers run: the coupler comes last
// since it collects the fields of the others.
var order = []string{"um", "lfric", "nemo", "cice", "rivers", "xios", "mct"}

var registry = map[string]Driver{
	"um":     umDriver{},
	"lfric":  lfricDriver{},
	"nemo":   nemoDriver{},
	"cice":   ciceDriver{},
	"rivers": riversDriver{},
	"xios":   xiosDriver{},
	"mct":    mctDriver{},
}

// Known returns the names of every driver, in run order.
func Known() []string {
	res := make([]string, len(order))
	copy(res, order)
	return res
}

// Lookup returns the driver of model name, in any case.
func Lookup(name string) (Driver, error) {
	d, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown model `%s`: expecting one of %s", name, strings.Join(order, ", "))
	}
	return d, nil
}

// requires lists the models that cannot run without another one.
var requires = map[string]string{
	"cice": "nemo",
}

// Select parses a space or comma separated list of models and
// returns their drivers in run order, without duplicates.
// Mutually exclusive or incomplete selections are an error.
func Select(models string) ([]Driver, error) {
	fields := strings.FieldsFunc(models, func(r rune) bool { return r == ' ' || r == ',' || r == '\t' })
	seen := map[string]bool{}
	var res []Driver
	for _, f := range fields {
		d, err := Lookup(f)
		if err != nil {
			return nil, err
		}
		if seen[d.Name()] {
			continue
		}
		seen[d.Name()] = true
		res = append(res, d)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("no models in `%s`", models)
	}
	if seen["um"] && seen["lfric"] {
		return nil, fmt.Errorf("um and lfric are both atmosphere models: select only one")
	}
	for model, needed := range requires {
		if seen[model] && !seen[needed] {
			return nil, fmt.Errorf("model `%s` runs inside `%s`: add it to the models", model, needed)
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		return position(res[i].Name()) < position(res[j].Name())
	})
	return res, nil
}

func position(name string) int {
	for i, n := range order {
		if n == name {
			return i
		}
	}
	return len(order)
}

// GlobalTable merges the common tables and the tables of every
// driver, both phases.
func GlobalTable() envspec.Table {
	layers := []envspec.Table{CommonFinalTable()}
	for _, name := range order {
		initial, final := registry[name].Tables()
		layers = append(layers, initial, final)
	}
	return envspec.Merge(CommonTable(), layers...)
}
