package postproc

import (
	"os"
	"path"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/meteocima/coupled-drivers/namelist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func TestDefaults(t *testing.T) {
	s := Defaults()
	assert.Empty(t, s.Models())
	assert.Equal(t, "Moose", s.Suite.ArchiveCommand)
	assert.Equal(t, []string{"pm", "pa"}, s.Atmos.StreamsToArchive)
	assert.Equal(t, 5, s.Nemo.BufferRebuildRst)
	assert.Equal(t, s.Atmos.TopLevel, s.Cice.TopLevel)
}

func TestLoadMissingFile(t *testing.T) {
	s, err := Load(fixture("postproc/missing.nl"))
	require.NoError(t, err)
	if diff := cmp.Diff(Defaults(), s); diff != "" {
		t.Errorf("unexpected settings (-want +got):\n%s", diff)
	}
}

func TestLoad(t *testing.T) {
	s, err := Load(fixture("postproc/postproc.nl"))
	require.NoError(t, err)

	assert.Equal(t, []string{"atmos", "nemo"}, s.Models())
	assert.Equal(t, "u-ab123", s.Suite.Prefix)
	assert.Equal(t, "0,3,0,0,0,0", s.Suite.CyclePeriod)
	assert.Equal(t, "360day", s.Suite.Calendar)
	assert.True(t, s.Archiving.NonDuplexed)
	assert.Equal(t, "crum", s.Archiving.DataClass)

	assert.True(t, s.Atmos.ArchiveSwitch)
	assert.Equal(t, []string{"pm", "pd"}, s.Atmos.StreamsToArchive)
	assert.True(t, s.Atmos.ConvertPP)

	assert.True(t, s.Nemo.CreateMeans)
	assert.False(t, s.Nemo.ArchiveSwitch)
	assert.Equal(t, 3, s.Nemo.BufferRebuildRst)
	assert.Equal(t, "rebuild_nemo", s.Nemo.ExecRebuild)

	assert.Equal(t, Defaults().Cice, s.Cice)
}

func TestLoadMalformed(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, Namelist)

	require.NoError(t, os.WriteFile(file, []byte("&nemopostproc\n buffer_rebuild_rst='three',\n/\n"), 0644))
	s, err := Load(file)
	assert.Error(t, err)
	assert.Equal(t, Defaults(), s)

	require.NoError(t, os.WriteFile(file, []byte("&atmospp\n pp_run=.true.\n"), 0644))
	_, err = Load(file)
	var syntax *namelist.SyntaxError
	assert.ErrorAs(t, err, &syntax)
}
