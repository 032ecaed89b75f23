package drivers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/meteocima/coupled-drivers/envspec"
)

// Unset is the value of ROSE_LAUNCHER_PREOPTS_* asking the
// driver to derive the launcher options itself.
const Unset = "unset"

// Placement of the tasks of one component on the machine.
type Placement struct {
	Tasks        int
	Nodes        int
	Threads      int
	Hyperthreads int
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// Validate checks that every count of p is positive.
func (p Placement) Validate() error {
	if p.Tasks < 1 {
		return fmt.Errorf("task count must be positive, got %d", p.Tasks)
	}
	if p.Nodes < 1 {
		return fmt.Errorf("node count must be positive, got %d", p.Nodes)
	}
	if p.Threads < 1 {
		return fmt.Errorf("thread count must be positive, got %d", p.Threads)
	}
	if p.Hyperthreads < 1 {
		return fmt.Errorf("hyperthread count must be positive, got %d", p.Hyperthreads)
	}
	return nil
}

// LauncherOptions renders the options of launcher for p, following
// the command line grammar of each launcher. extra options come first.
func LauncherOptions(launcher string, p Placement, extra []string) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	opts := append([]string{}, extra...)

	switch launcherName(launcher) {
	case "aprun":
		perNode := ceilDiv(p.Tasks, p.Nodes)
		perNuma := ceilDiv(perNode, 2)
		opts = append(opts,
			"-n", strconv.Itoa(p.Tasks),
			"-N", strconv.Itoa(perNode),
			"-S", strconv.Itoa(perNuma),
			"-d", strconv.Itoa(p.Threads),
			"-j", strconv.Itoa(p.Hyperthreads),
			"env", fmt.Sprintf("OMP_NUM_THREADS=%d", p.Threads),
			"env", fmt.Sprintf("HYPERTHREADS=%d", p.Hyperthreads),
		)
	case "mpiexec", "mpirun":
		opts = append(opts, "-n", strconv.Itoa(p.Tasks))
	case "srun":
		opts = append(opts,
			fmt.Sprintf("--ntasks=%d", p.Tasks),
			fmt.Sprintf("--nodes=%d", p.Nodes),
			fmt.Sprintf("--cpus-per-task=%d", p.Threads),
		)
	default:
		return "", fmt.Errorf("unsupported launcher `%s`: expecting one of aprun, mpiexec, mpirun, srun", launcher)
	}
	return strings.Join(opts, " "), nil
}

// launcherName returns the executable name of a launcher command,
// so that "/opt/cray/bin/aprun" is recognised as aprun.
func launcherName(launcher string) string {
	fields := strings.Fields(launcher)
	if len(fields) == 0 {
		return ""
	}
	name := fields[0]
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// launchVars names the variables holding the placement of a component.
type launchVars struct {
	Preopts      string
	Nodes        string
	Threads      string
	Hyperthreads string
}

func (v launchVars) declare(component string) []envspec.VariableSpec {
	return []envspec.VariableSpec{
		envspec.Optional(v.Preopts, Unset, "launcher options for "+component+"; unset derives them from the placement",
			envspec.When(envspec.Equals(Unset), v.Nodes, v.Threads, v.Hyperthreads),
		),
		envspec.Conditional(v.Nodes, "nodes used by "+component),
		envspec.Conditional(v.Threads, "OpenMP threads per task of "+component),
		envspec.Conditional(v.Hyperthreads, "hyperthreads per core for "+component),
	}
}

func atoi(env envspec.Resolved, name string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(env.Get(name)))
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got `%s`", name, env.Get(name))
	}
	return v, nil
}

// launchCommand builds `<launcher> <options> ./<executable>`. When the
// options variable is unset, options are derived and stored in env.
func (ctx *Context) launchCommand(env, common envspec.Resolved, v launchVars, tasks int, executable string) (string, error) {
	launcher := common.Get("ROSE_LAUNCHER")
	if launcher == "" {
		launcher = ctx.Launcher.Name
	}

	preopts := env.Get(v.Preopts)
	if preopts == Unset {
		p := Placement{Tasks: tasks}
		var err error
		if p.Nodes, err = atoi(env, v.Nodes); err != nil {
			return "", err
		}
		if p.Threads, err = atoi(env, v.Threads); err != nil {
			return "", err
		}
		if p.Hyperthreads, err = atoi(env, v.Hyperthreads); err != nil {
			return "", err
		}
		preopts, err = LauncherOptions(launcher, p, ctx.Launcher.AdditionalOptions)
		if err != nil {
			return "", err
		}
		env[v.Preopts] = preopts
	}

	parts := []string{launcher}
	if preopts != "" {
		parts = append(parts, preopts)
	}
	parts = append(parts, "./"+strings.TrimPrefix(executable, "./"))
	return strings.Join(parts, " "), nil
}
