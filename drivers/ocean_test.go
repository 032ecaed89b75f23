package drivers

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/meteocima/coupled-drivers/envspec"
	"github.com/meteocima/coupled-drivers/fsutil"
	"github.com/meteocima/coupled-drivers/namelist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nemoEnv() map[string]string {
	return map[string]string{
		"NEMO_NPROC":    "4",
		"NEMO_NODES":    "1",
		"OMPTHR_OCN":    "1",
		"OHYPERTHREADS": "1",
	}
}

func readGroup(t *testing.T, ctx *Context, file, group string) map[string]string {
	nl, err := namelist.ReadFile(ctx.abs(fsutil.Path(file)))
	require.NoError(t, err)
	g, ok := nl.Group(group)
	require.True(t, ok)
	return g.Map()
}

func TestTimeSteps(t *testing.T) {
	n, err := timeSteps(864000, 2700)
	require.NoError(t, err)
	assert.Equal(t, 320, n)

	_, err = timeSteps(864000, 7000)
	assert.Error(t, err)
	_, err = timeSteps(864000, 0)
	assert.Error(t, err)
}

func TestNemoSetupNewRun(t *testing.T) {
	ctx := newContext(t, nemoEnv(), "namelist_cfg")
	common := tenDays()
	common["TASKSTART"] = "1979,3,1,0,0,0"

	res, err := nemoDriver{}.Setup(ctx, common, NewRunInfo())
	require.NoError(t, err)
	assert.Equal(t, 4, res.Tasks)
	assert.Equal(t, "mpiexec -n 4 ./nemo.exe", res.Launch)

	namrun := readGroup(t, ctx, "namelist_cfg", "namrun")
	assert.Equal(t, "1", namrun["nn_it000"])
	assert.Equal(t, "320", namrun["nn_itend"])
	assert.Equal(t, "19790301", namrun["nn_date0"])
	assert.Equal(t, ".false.", namrun["ln_rstart"])
	assert.Equal(t, "'ORCA1'", namrun["cn_exp"])
}

func TestNemoSetupContinue(t *testing.T) {
	ctx := newContext(t, nemoEnv(), "namelist_cfg")
	common := tenDays()
	common["CONTINUE"] = "true"

	_, err := nemoDriver{}.Setup(ctx, common, NewRunInfo())
	assert.EqualError(t, err, "nemo: no restart for step 320 of `ORCA1`")

	touch(t, ctx, "ORCA1_00000320_restart_0000.nc", "ORCA1_00000320_restart_0001.nc")
	info := NewRunInfo()
	_, err = nemoDriver{}.Setup(ctx, common, info)
	require.NoError(t, err)

	namrun := readGroup(t, ctx, "namelist_cfg", "namrun")
	assert.Equal(t, "321", namrun["nn_it000"])
	assert.Equal(t, "640", namrun["nn_itend"])
	assert.Equal(t, ".true.", namrun["ln_rstart"])
	assert.Equal(t, "2", namrun["nn_rstctl"])
	assert.Equal(t, "'ORCA1_00000320_restart'", namrun["cn_ocerst_in"])
	assert.Equal(t, "19780901", namrun["nn_date0"])
	assert.Equal(t, "640", info.Values["nemo_last_step"])
}

func TestNemoSetupFromRestart(t *testing.T) {
	env := nemoEnv()
	env["NEMO_START"] = "start/ocean_restart.nc"
	ctx := newContext(t, env, "namelist_cfg")

	_, err := nemoDriver{}.Setup(ctx, tenDays(), NewRunInfo())
	assert.EqualError(t, err, "nemo: NEMO_START `start/ocean_restart.nc` not found")

	touch(t, ctx, "start/ocean_restart.nc")
	_, err = nemoDriver{}.Setup(ctx, tenDays(), NewRunInfo())
	require.NoError(t, err)

	target, err := os.Readlink(ctx.abs("restart_oce.nc"))
	require.NoError(t, err)
	assert.Equal(t, ctx.abs("start/ocean_restart.nc"), target)
	namrun := readGroup(t, ctx, "namelist_cfg", "namrun")
	assert.Equal(t, ".true.", namrun["ln_rstart"])
	assert.Equal(t, "'restart_oce'", namrun["cn_ocerst_in"])
}

func TestNemoSetupCoupled(t *testing.T) {
	env := nemoEnv()
	env["L_OCN_PASS_TRC"] = "true"
	ctx := newContext(t, env, "namelist_cfg")

	res, err := nemoDriver{}.Setup(ctx, coupled(tenDays(), "um nemo"), NewRunInfo())
	require.NoError(t, err)
	require.Len(t, res.Fields, len(oceanToAtmos)+len(oceanTracers))
	assert.Equal(t, CouplingField{Name: "ocn_sst", Source: "toyoce", Target: "toyatm", Period: 3600}, res.Fields[0])
	assert.Equal(t, "ocn_co2", res.Fields[len(res.Fields)-1].Name)
}

func TestNemoSetupBadNamelist(t *testing.T) {
	ctx := newContext(t, nemoEnv())
	require.NoError(t, os.WriteFile(ctx.abs("namelist_cfg"), []byte("&namrun\n nn_it000 = 1\n"), 0644))

	_, err := nemoDriver{}.Setup(ctx, tenDays(), NewRunInfo())
	var synErr *namelist.SyntaxError
	assert.True(t, errors.As(err, &synErr))
}

func TestNemoFinalize(t *testing.T) {
	t.Run("clean run", func(t *testing.T) {
		ctx := newContext(t, nil)
		require.NoError(t, os.WriteFile(ctx.abs("ocean.output"), []byte("AAAAAAAA\n stpctl: everything fine\n"), 0644))
		assert.NoError(t, nemoDriver{}.Finalize(ctx, tenDays()))
	})

	t.Run("errors reported", func(t *testing.T) {
		ctx := newContext(t, nil)
		content := strings.Join([]string{
			" ===>>> : E R R O R",
			"         ===========",
			" stp_ctl : the ssh is larger than 10m",
			" ===>>> : E R R O R",
		}, "\n")
		require.NoError(t, os.WriteFile(ctx.abs("ocean.output"), []byte(content), 0644))
		assert.EqualError(t, nemoDriver{}.Finalize(ctx, tenDays()), "nemo: `ocean.output` reports 2 errors")
	})

	t.Run("no output", func(t *testing.T) {
		ctx := newContext(t, nil)
		assert.EqualError(t, nemoDriver{}.Finalize(ctx, tenDays()), "nemo: `ocean.output` not found: the ocean did not run")
	})
}

func TestCiceSetup(t *testing.T) {
	ctx := newContext(t, nil, "ice_in")
	res, err := ciceDriver{}.Setup(ctx, tenDays(), NewRunInfo())
	require.NoError(t, err)
	assert.Zero(t, res.Tasks)
	assert.Empty(t, res.Launch)

	setup := readGroup(t, ctx, "ice_in", "setup_nml")
	assert.Equal(t, "240", setup["npt"])
	assert.Equal(t, "'initial'", setup["runtype"])
	assert.Equal(t, "1978", setup["year_init"])
	assert.Equal(t, "'default'", setup["ice_ic"])
	assert.Equal(t, ".false.", setup["restart"])
	assert.True(t, ctx.Tr.Exists("RESTART"))
}

func TestCiceContinue(t *testing.T) {
	ctx := newContext(t, nil, "ice_in")
	common := tenDays().With(envspec.Resolved{"CONTINUE": "true"})

	_, err := ciceDriver{}.Setup(ctx, common, NewRunInfo())
	assert.EqualError(t, err, "cice: restart pointer `RESTART/ice.restart_file` not found")

	touch(t, ctx, "RESTART/ice.restart_file")
	_, err = ciceDriver{}.Setup(ctx, common, NewRunInfo())
	require.NoError(t, err)
	setup := readGroup(t, ctx, "ice_in", "setup_nml")
	assert.Equal(t, "'continue'", setup["runtype"])
	assert.Equal(t, ".true.", setup["restart"])

	assert.NoError(t, ciceDriver{}.Finalize(ctx, tenDays()))
}
