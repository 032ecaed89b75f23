package drivers

import (
	"os"
	"path"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/meteocima/coupled-drivers/conf"
	"github.com/meteocima/coupled-drivers/envspec"
	"github.com/meteocima/coupled-drivers/fsutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func fixture(filePath string) string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		panic("cannot retrieve the source file path")
	} else {
		file = filepath.Dir(filepath.Dir(file))
	}

	return path.Join(file, "fixtures", filePath)
}

// newContext returns a context rooted in a temporary work directory
// holding a copy of the given fixtures.
func newContext(t *testing.T, env map[string]string, fixtures ...string) *Context {
	dir := t.TempDir()
	log := zaptest.NewLogger(t)
	tr := fsutil.New(fsutil.Path(dir), log)
	for _, f := range fixtures {
		tr.Copy(fsutil.Path(fixture("work/"+f)), fsutil.Path(f))
	}
	require.NoError(t, tr.Err)

	return &Context{
		Tr:       tr,
		Env:      envspec.Snapshot(env),
		Log:      log,
		Launcher: conf.LauncherConf{Name: "mpiexec"},
		Global:   GlobalTable(),
	}
}

func touch(t *testing.T, ctx *Context, files ...string) {
	for _, f := range files {
		full := ctx.abs(fsutil.Path(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(f+"\n"), 0644))
	}
}

// tenDays is the common environment of a ten days cycle.
func tenDays() envspec.Resolved {
	return envspec.Resolved{
		"CALENDAR":         Calendar360,
		"MODELBASIS":       "1978,9,1,0,0,0",
		"TASKSTART":        "1978,9,1,0,0,0",
		"TASKLENGTH":       "0,0,10,0,0,0",
		"RUNID":            "u-ab123",
		"ROSE_LAUNCHER":    "mpiexec",
		"CONTINUE":         "false",
		"NAMCOUPLE_STATIC": "true",
		"DRIVERS_ANALYSIS": "",
	}
}

func coupled(common envspec.Resolved, components string) envspec.Resolved {
	return common.With(envspec.Resolved{
		"NAMCOUPLE_STATIC":    "false",
		"COUPLING_COMPONENTS": components,
		"CPL_PERIOD":          "3600",
	})
}

func pathStrings(paths []fsutil.Path) []string {
	res := make([]string, len(paths))
	for i, p := range paths {
		res[i] = p.String()
	}
	return res
}
