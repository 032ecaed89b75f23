package cpmip

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/meteocima/coupled-drivers/envspec"
	"github.com/meteocima/coupled-drivers/fsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestFormulas(t *testing.T) {
	sypd, err := SYPD(0.5, 3600)
	require.NoError(t, err)
	assert.InDelta(t, 12.0, sypd, 1e-9)

	_, err = SYPD(0.5, 0)
	assert.Error(t, err)

	assert.InDelta(t, 13.0, CoreHours(13, 3600), 1e-9)

	chsy, err := CHSY(13, 3600, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 26.0, chsy, 1e-9)

	_, err = CHSY(13, 3600, 0)
	assert.Error(t, err)
}

func TestLines(t *testing.T) {
	m := Metrics{
		RunID:        "u-ab123",
		InvocationID: "0b5d8a4e-0000-4000-8000-000000000000",
		Years:        0.5,
		Wallclock:    3600,
		Tasks:        map[string]int{"um": 9, "nemo": 4},
		DataKB:       -1,
		Resolution:   map[string]int{"nemo": 362 * 332 * 75, "um": -1},
	}
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, m))
	want := strings.Join([]string{
		"# CPMIP report for u-ab123 (invocation 0b5d8a4e-0000-4000-8000-000000000000)",
		"simulated_years: 0.5000",
		"wallclock_seconds: 3600",
		"total_tasks: 13",
		"tasks_nemo: 4",
		"tasks_um: 9",
		"sypd: 12.0000",
		"core_hours: 13.00",
		"chsy: 26.00",
		"data_output_cost_gb: unavailable",
		"data_intensity_gb_per_core_hour: unavailable",
		"resolution_nemo: 9014400",
		"resolution_um: unavailable",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())

	m.DataKB = 1024 * 1024
	lines := m.Lines()
	assert.Contains(t, lines, "data_output_cost_gb: 1.000")
	assert.Contains(t, lines, "data_intensity_gb_per_core_hour: 0.076923")
}

func TestMeasureData(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "datam"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "datam", "out.pp"), bytes.Repeat([]byte{'x'}, 8192), 0644))
	tr := fsutil.New(fsutil.Path(dir), zaptest.NewLogger(t))

	kb, ok := MeasureData(tr, "datam", zaptest.NewLogger(t))
	assert.True(t, ok)
	assert.GreaterOrEqual(t, kb, int64(8))

	kb, ok = MeasureData(tr, "missing", zap.NewNop())
	assert.False(t, ok)
	assert.Equal(t, int64(-1), kb)
	assert.NoError(t, tr.Err)
}

func TestMeasureDataTimeout(t *testing.T) {
	dir := t.TempDir()
	tr := fsutil.New(fsutil.Path(dir), nil)
	tr.Timeout = time.Nanosecond
	kb, ok := MeasureData(tr, ".", zap.NewNop())
	assert.False(t, ok)
	assert.Equal(t, int64(-1), kb)
}

func TestResolution(t *testing.T) {
	dir := t.TempDir()
	tr := fsutil.New(fsutil.Path(dir), nil)
	tr.WriteString("namelist_cfg", "&namcfg\n jpiglo = 362\n jpjglo = 332\n jpkglo = 75\n/\n")
	tr.WriteString("SIZES", "&nlsizes\n global_row_length = 192\n global_rows = 144\n/\n")
	require.NoError(t, tr.Err)

	points, err := Resolution(tr, "nemo")
	require.NoError(t, err)
	assert.Equal(t, 362*332*75, points)

	_, err = Resolution(tr, "um")
	assert.EqualError(t, err, "namelist `SIZES`: `model_levels` not found")

	_, err = Resolution(tr, "xios")
	assert.Error(t, err)
}

func TestCollect(t *testing.T) {
	dir := t.TempDir()
	tr := fsutil.New(fsutil.Path(dir), nil)
	tr.MkDir("datam")
	tr.WriteString("namelist_cfg", "&namcfg\n jpiglo = 10\n jpjglo = 10\n jpkglo = 10\n/\n")
	require.NoError(t, tr.Err)

	env := envspec.Resolved{
		"RUNID":           "u-ab123",
		"CALENDAR":        "360day",
		"TASKSTART":       "1978,9,1,0,0,0",
		"TASKLENGTH":      "0,6,0,0,0,0",
		"DATAM":           "datam",
		"CPMIP_WALLCLOCK": "3600",
	}
	m, err := Collect(tr, env, map[string]int{"um": 9, "nemo": 4, "xios": 2}, "id", zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, m.Years, 1e-9)
	assert.Equal(t, 3600.0, m.Wallclock)
	assert.GreaterOrEqual(t, m.DataKB, int64(0))
	assert.Equal(t, map[string]int{"nemo": 1000, "um": -1}, m.Resolution)

	env["CPMIP_WALLCLOCK"] = "an hour"
	_, err = Collect(tr, env, nil, "id", nil)
	assert.Error(t, err)
}
