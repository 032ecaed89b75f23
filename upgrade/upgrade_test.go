package upgrade

import (
	"bytes"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/ini.v1"
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

func TestVersions(t *testing.T) {
	assert.Equal(t, []string{"vn1.0", "vn1.1", "vn1.2", "vn1.3"}, Versions())
	assert.Equal(t, "vn1.3", Latest())
}

func TestApplyToLatest(t *testing.T) {
	cfg, err := Load(fixture("upgrade/rose-app.conf"))
	require.NoError(t, err)

	changes, err := Apply(cfg, Latest())
	require.NoError(t, err)
	assert.Contains(t, changes, "[env] OCEAN_NPROC renamed to NEMO_NPROC")
	assert.Contains(t, changes, "[env] NAMCOUPLE_STATIC added as true")
	assert.Contains(t, changes, "[env] PP_RUN_ATMOS moved to [namelist:atmospp] pp_run")
	assert.Contains(t, changes, "meta: coupled-drivers/vn1.3")

	version, err := Version(cfg)
	require.NoError(t, err)
	assert.Equal(t, "vn1.3", version)

	env := cfg.Section(EnvSection)
	assert.Equal(t, "48", env.Key("NEMO_NPROC").String())
	assert.Equal(t, "2", env.Key("NEMO_NODES").String())
	assert.Equal(t, "ice_in", env.Key("CICE_NL").String())
	assert.False(t, env.HasKey("OCEAN_NPROC"))
	assert.False(t, env.HasKey("ICE_NL"))
	assert.Equal(t, "true", env.Key("NAMCOUPLE_STATIC").String())
	assert.Equal(t, "0", env.Key("XIOS_NPROC").String())
	assert.False(t, env.HasKey("PP_RUN_ATMOS"))
	assert.False(t, env.HasKey("MEANS_NEMO"))

	assert.Equal(t, ".true.", cfg.Section("namelist:atmospp").Key("pp_run").String())
	assert.Equal(t, ".false.", cfg.Section("namelist:atmospp").Key("archive_switch").String())
	nemo := cfg.Section("namelist:nemopostproc")
	assert.Equal(t, ".true.", nemo.Key("create_means").String())
	assert.Equal(t, "rebuild_nemo", nemo.Key("exec_rebuild").String())

	changes, err = Apply(cfg, Latest())
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestApplyOneStep(t *testing.T) {
	cfg, err := Load([]byte("meta=coupled-drivers/vn1.1\n[env]\nPP_RUN_NEMO=true\n"))
	require.NoError(t, err)

	changes, err := Apply(cfg, "vn1.2")
	require.NoError(t, err)
	assert.Len(t, changes, 5)
	assert.True(t, cfg.Section(EnvSection).HasKey("PP_RUN_NEMO"))
	assert.False(t, cfg.HasSection("namelist:nemopostproc"))
}

func TestApplyErrors(t *testing.T) {
	cfg, err := Load([]byte("meta=coupled-drivers/vn1.2\n"))
	require.NoError(t, err)

	_, err = Apply(cfg, "vn2.0")
	assert.EqualError(t, err, "unknown version `vn2.0`: expecting one of vn1.0, vn1.1, vn1.2, vn1.3")
	_, err = Apply(cfg, "vn1.1")
	assert.EqualError(t, err, "cannot downgrade from vn1.2 to vn1.1")

	cfg, err = Load([]byte("meta=coupled-drivers/vn0.9\n"))
	require.NoError(t, err)
	_, err = Apply(cfg, Latest())
	assert.EqualError(t, err, "unknown version `vn0.9`")

	cfg, err = Load([]byte("meta=other-app/vn1.0\n"))
	require.NoError(t, err)
	_, err = Apply(cfg, Latest())
	assert.Error(t, err)

	cfg, err = Load([]byte("meta=coupled-drivers/vn1.0\n[env]\nOCEAN_NPROC=4\nNEMO_NPROC=8\n"))
	require.NoError(t, err)
	_, err = Apply(cfg, Latest())
	assert.EqualError(t, err, "upgrade vn1.0 to vn1.1: [env] both OCEAN_NPROC and NEMO_NPROC are set")

	cfg, err = Load([]byte("meta=coupled-drivers/vn1.2\n[env]\nPP_RUN_CICE=maybe\n"))
	require.NoError(t, err)
	_, err = Apply(cfg, Latest())
	assert.Error(t, err)
}

func TestUpgrade(t *testing.T) {
	content, err := os.ReadFile(fixture("upgrade/rose-app.conf"))
	require.NoError(t, err)

	upgraded, changes, err := Upgrade(content, "vn1.1")
	require.NoError(t, err)
	assert.Len(t, changes, 4)
	assert.Contains(t, string(upgraded), "meta=coupled-drivers/vn1.1\n")
	assert.Contains(t, string(upgraded), "NEMO_NPROC=48\n")
	assert.Contains(t, string(upgraded), "[namelist:nemopostproc]\n")
	assert.NotContains(t, string(upgraded), "OCEAN_NPROC")

	_, _, err = Upgrade([]byte("[env\n"), Latest())
	assert.Error(t, err)
}

func TestWriteRoseStyle(t *testing.T) {
	cfg := ini.Empty()
	env := cfg.Section(EnvSection)
	_, err := env.NewKey("A", "1")
	require.NoError(t, err)
	_, err = env.NewKey("LONGER_NAME", "2")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, cfg))
	assert.Contains(t, buf.String(), "[env]\nA=1\nLONGER_NAME=2\n")
	assert.False(t, ini.PrettyFormat)
	assert.False(t, ini.PrettyEqual)
}
