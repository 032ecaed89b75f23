package drivers

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/meteocima/coupled-drivers/envspec"
	"github.com/meteocima/coupled-drivers/fsutil"
	"go.uber.org/zap"
)

var xiosLaunch = launchVars{
	Preopts:      "ROSE_LAUNCHER_PREOPTS_XIOS",
	Nodes:        "XIOS_NODES",
	Threads:      "OMPTHR_XIOS",
	Hyperthreads: "XHYPERTHREADS",
}

type xiosDriver struct{}

func (xiosDriver) Name() string { return "xios" }

func (xiosDriver) Tables() (envspec.Table, envspec.Table) {
	launch := xiosLaunch.declare("the XIOS servers")
	// attached mode has no launch command
	launch[0] = launch[0].OnlyWhenTriggered()

	initial := []envspec.VariableSpec{
		envspec.Optional("XIOS_NPROC", "0", "XIOS server processes, 0 for attached mode",
			envspec.When(envspec.IntAbove(0), xiosLaunch.Preopts),
		),
		envspec.Optional("XIOS_EXEC", "xios_server.exe", "XIOS server executable"),
		envspec.Optional("IODEF", "iodef.xml", "XIOS configuration"),
	}
	initial = append(initial, launch...)
	return envspec.NewTable("xios initial", initial...), envspec.NewTable("xios final")
}

// ErrMalformedIodef is returned when the using_server switch
// cannot be found in the XIOS configuration.
var ErrMalformedIodef = errors.New("using_server variable not found")

var usingServer = regexp.MustCompile(`(<variable\s+id\s*=\s*"using_server"[^>]*>)\s*(\.?true\.?|\.?false\.?)\s*(</variable>)`)

// SetUsingServer switches the XIOS server mode in the content of an
// iodef file. On a malformed file it returns an empty string and
// ErrMalformedIodef.
func SetUsingServer(iodef string, server bool) (string, error) {
	if !usingServer.MatchString(iodef) {
		return "", ErrMalformedIodef
	}
	return usingServer.ReplaceAllString(iodef, fmt.Sprintf("${1}%t${3}", server)), nil
}

func (d xiosDriver) Setup(ctx *Context, common envspec.Resolved, info *RunInfo) (*Result, error) {
	initial, _ := d.Tables()
	env, err := ctx.Resolve(initial)
	if err != nil {
		return nil, err
	}
	tasks, err := atoi(env, "XIOS_NPROC")
	if err != nil {
		return nil, err
	}
	if tasks < 0 {
		return nil, fmt.Errorf("XIOS_NPROC must not be negative, got %d", tasks)
	}
	server := tasks > 0

	tr := ctx.Tr
	iodefFile := fsutil.Path(env.Get("IODEF"))
	content := tr.ReadString(iodefFile)
	if tr.Err != nil {
		return nil, fmt.Errorf("xios: %w", tr.Err)
	}
	updated, err := SetUsingServer(content, server)
	if err != nil {
		return nil, fmt.Errorf("xios: `%s`: %w", iodefFile, err)
	}
	tr.WriteString(iodefFile, updated)
	if tr.Err != nil {
		return nil, tr.Err
	}

	res := &Result{Env: env}
	if server {
		res.Tasks = tasks
		res.Launch, err = ctx.launchCommand(env, common, xiosLaunch, tasks, env.Get("XIOS_EXEC"))
		if err != nil {
			return nil, fmt.Errorf("xios: %w", err)
		}
	}
	ctx.logger().Info("xios ready", zap.Bool("server", server), zap.Int("tasks", tasks))
	return res, nil
}

func (d xiosDriver) Finalize(ctx *Context, common envspec.Resolved) error {
	_, final := d.Tables()
	_, err := ctx.Resolve(final)
	return err
}
