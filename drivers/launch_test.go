package drivers

import (
	"testing"

	"github.com/meteocima/coupled-drivers/envspec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLauncherOptions(t *testing.T) {
	p := Placement{Tasks: 100, Nodes: 4, Threads: 2, Hyperthreads: 1}

	t.Run("aprun", func(t *testing.T) {
		opts, err := LauncherOptions("aprun", p, nil)
		require.NoError(t, err)
		assert.Equal(t, "-n 100 -N 25 -S 13 -d 2 -j 1 env OMP_NUM_THREADS=2 env HYPERTHREADS=1", opts)
	})

	t.Run("aprun by path with extra options", func(t *testing.T) {
		opts, err := LauncherOptions("/opt/cray/bin/aprun", p, []string{"-cc", "depth"})
		require.NoError(t, err)
		assert.Equal(t, "-cc depth -n 100 -N 25 -S 13 -d 2 -j 1 env OMP_NUM_THREADS=2 env HYPERTHREADS=1", opts)
	})

	t.Run("mpiexec", func(t *testing.T) {
		opts, err := LauncherOptions("mpiexec", p, nil)
		require.NoError(t, err)
		assert.Equal(t, "-n 100", opts)
	})

	t.Run("srun", func(t *testing.T) {
		opts, err := LauncherOptions("srun", p, nil)
		require.NoError(t, err)
		assert.Equal(t, "--ntasks=100 --nodes=4 --cpus-per-task=2", opts)
	})

	t.Run("unknown launcher", func(t *testing.T) {
		_, err := LauncherOptions("qsub", p, nil)
		assert.EqualError(t, err, "unsupported launcher `qsub`: expecting one of aprun, mpiexec, mpirun, srun")
	})

	t.Run("invalid placement", func(t *testing.T) {
		_, err := LauncherOptions("aprun", Placement{Tasks: 4, Nodes: 0, Threads: 1, Hyperthreads: 1}, nil)
		assert.EqualError(t, err, "node count must be positive, got 0")
	})
}

func TestLaunchCommand(t *testing.T) {
	ctx := newContext(t, nil)
	common := envspec.Resolved{"ROSE_LAUNCHER": "mpiexec"}

	t.Run("derived options are stored", func(t *testing.T) {
		env := envspec.Resolved{
			"ROSE_LAUNCHER_PREOPTS_NEMO": Unset,
			"NEMO_NODES":                 "2",
			"OMPTHR_OCN":                 "1",
			"OHYPERTHREADS":              "1",
		}
		cmd, err := ctx.launchCommand(env, common, nemoLaunch, 48, "nemo.exe")
		require.NoError(t, err)
		assert.Equal(t, "mpiexec -n 48 ./nemo.exe", cmd)
		assert.Equal(t, "-n 48", env.Get("ROSE_LAUNCHER_PREOPTS_NEMO"))
	})

	t.Run("explicit options are kept", func(t *testing.T) {
		env := envspec.Resolved{"ROSE_LAUNCHER_PREOPTS_NEMO": "-n 12 --bind-to core"}
		cmd, err := ctx.launchCommand(env, common, nemoLaunch, 48, "./nemo.exe")
		require.NoError(t, err)
		assert.Equal(t, "mpiexec -n 12 --bind-to core ./nemo.exe", cmd)
	})

	t.Run("counts must be integers", func(t *testing.T) {
		env := envspec.Resolved{
			"ROSE_LAUNCHER_PREOPTS_NEMO": Unset,
			"NEMO_NODES":                 "two",
			"OMPTHR_OCN":                 "1",
			"OHYPERTHREADS":              "1",
		}
		_, err := ctx.launchCommand(env, common, nemoLaunch, 48, "nemo.exe")
		assert.EqualError(t, err, "NEMO_NODES must be an integer, got `two`")
	})

	t.Run("falls back to the configured launcher", func(t *testing.T) {
		env := envspec.Resolved{"ROSE_LAUNCHER_PREOPTS_NEMO": ""}
		cmd, err := ctx.launchCommand(env, envspec.Resolved{}, nemoLaunch, 48, "nemo.exe")
		require.NoError(t, err)
		assert.Equal(t, "mpiexec ./nemo.exe", cmd)
	})
}

func TestLauncherScenario(t *testing.T) {
	// options left to the driver need the placement of the component
	initial, _ := nemoDriver{}.Tables()
	_, missing, err := envspec.Resolve(initial, envspec.Snapshot{"NEMO_NPROC": "4"}, envspec.WithGlobal(GlobalTable()))
	require.NoError(t, err)

	var names []string
	for _, m := range missing {
		names = append(names, m.Name)
		assert.Equal(t, "ROSE_LAUNCHER_PREOPTS_NEMO", m.RequiredBy)
	}
	assert.Equal(t, []string{"NEMO_NODES", "OMPTHR_OCN", "OHYPERTHREADS"}, names)
}
