// Package cpmip computes the CPMIP performance metrics of a
// completed cycle: simulated years per day, core hours per
// simulated year, data output cost and component resolution.
package cpmip

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/meteocima/coupled-drivers/drivers"
	"github.com/meteocima/coupled-drivers/envspec"
	"github.com/meteocima/coupled-drivers/fsutil"
	"github.com/meteocima/coupled-drivers/namelist"
	"go.uber.org/zap"
)

// Unavailable is reported in place of a measurement that failed.
const Unavailable = "unavailable"

const secondsPerDay = 86400

// Metrics of one cycle. DataKB and Resolution entries are negative
// when the measurement is unavailable.
type Metrics struct {
	RunID        string
	InvocationID string
	Years        float64
	Wallclock    float64
	Tasks        map[string]int
	DataKB       int64
	Resolution   map[string]int
}

// SYPD is the number of simulated years per wallclock day.
func SYPD(years, wallclock float64) (float64, error) {
	if wallclock <= 0 {
		return 0, fmt.Errorf("wallclock must be positive, got %g", wallclock)
	}
	return years / (wallclock / secondsPerDay), nil
}

// CoreHours used by cores over wallclock seconds.
func CoreHours(cores int, wallclock float64) float64 {
	return float64(cores) * wallclock / 3600
}

// CHSY is the number of core hours per simulated year.
func CHSY(cores int, wallclock, years float64) (float64, error) {
	if years <= 0 {
		return 0, fmt.Errorf("simulated years must be positive, got %g", years)
	}
	return CoreHours(cores, wallclock) / years, nil
}

// TotalTasks is the sum of the MPI tasks of every component.
func (m Metrics) TotalTasks() int {
	total := 0
	for _, n := range m.Tasks {
		total += n
	}
	return total
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Lines renders the report as `metric: value` lines, headed
// by the run and invocation identifiers.
func (m Metrics) Lines() []string {
	lines := []string{
		fmt.Sprintf("# CPMIP report for %s (invocation %s)", m.RunID, m.InvocationID),
		fmt.Sprintf("simulated_years: %.4f", m.Years),
		fmt.Sprintf("wallclock_seconds: %.0f", m.Wallclock),
		fmt.Sprintf("total_tasks: %d", m.TotalTasks()),
	}
	for _, model := range sortedKeys(m.Tasks) {
		lines = append(lines, fmt.Sprintf("tasks_%s: %d", model, m.Tasks[model]))
	}

	if sypd, err := SYPD(m.Years, m.Wallclock); err == nil {
		lines = append(lines, fmt.Sprintf("sypd: %.4f", sypd))
	} else {
		lines = append(lines, "sypd: "+Unavailable)
	}
	coreHours := CoreHours(m.TotalTasks(), m.Wallclock)
	lines = append(lines, fmt.Sprintf("core_hours: %.2f", coreHours))
	if chsy, err := CHSY(m.TotalTasks(), m.Wallclock, m.Years); err == nil {
		lines = append(lines, fmt.Sprintf("chsy: %.2f", chsy))
	} else {
		lines = append(lines, "chsy: "+Unavailable)
	}

	if m.DataKB >= 0 {
		gb := float64(m.DataKB) / (1024 * 1024)
		lines = append(lines, fmt.Sprintf("data_output_cost_gb: %.3f", gb))
		if coreHours > 0 {
			lines = append(lines, fmt.Sprintf("data_intensity_gb_per_core_hour: %.6f", gb/coreHours))
		} else {
			lines = append(lines, "data_intensity_gb_per_core_hour: "+Unavailable)
		}
	} else {
		lines = append(lines,
			"data_output_cost_gb: "+Unavailable,
			"data_intensity_gb_per_core_hour: "+Unavailable,
		)
	}

	for _, model := range sortedKeys(m.Resolution) {
		if points := m.Resolution[model]; points >= 0 {
			lines = append(lines, fmt.Sprintf("resolution_%s: %d", model, points))
		} else {
			lines = append(lines, fmt.Sprintf("resolution_%s: %s", model, Unavailable))
		}
	}
	return lines
}

// Write writes the report lines of m.
func Write(w io.Writer, m Metrics) error {
	_, err := io.WriteString(w, strings.Join(m.Lines(), "\n")+"\n")
	return err
}

// MeasureData returns the size in kilobytes of dir, as reported by
// `du -sk`. A failing or timed out command is logged and reported
// as unavailable with ok false.
func MeasureData(tr *fsutil.Transaction, dir fsutil.Path, log *zap.Logger) (kb int64, ok bool) {
	out, err := tr.Output("", "du", "-sk", tr.Root.JoinP(dir).String())
	if err != nil {
		log.Warn("data output cost unavailable", zap.Stringer("dir", dir), zap.Error(err))
		return -1, false
	}
	fields := strings.Fields(out)
	if len(fields) == 0 {
		log.Warn("data output cost unavailable", zap.Stringer("dir", dir), zap.String("output", out))
		return -1, false
	}
	kb, err = strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		log.Warn("data output cost unavailable", zap.Stringer("dir", dir), zap.Error(err))
		return -1, false
	}
	return kb, true
}

// grid describes where a component declares the size of its grid.
type grid struct {
	file  fsutil.Path
	group string
	keys  []string
}

var grids = map[string]grid{
	"um":   {"SIZES", "nlsizes", []string{"global_row_length", "global_rows", "model_levels"}},
	"nemo": {"namelist_cfg", "namcfg", []string{"jpiglo", "jpjglo", "jpkglo"}},
}

// Resolution returns the number of grid points of model, read from
// its namelist. Models without a known grid are an error.
func Resolution(tr *fsutil.Transaction, model string) (int, error) {
	g, ok := grids[model]
	if !ok {
		return 0, fmt.Errorf("no grid description for `%s`", model)
	}
	nl, err := namelist.ReadFile(tr.Root.JoinP(g.file).String())
	if err != nil {
		return 0, err
	}
	group, ok := nl.Group(g.group)
	if !ok {
		return 0, fmt.Errorf("namelist `%s`: group `%s` not found", g.file, g.group)
	}
	points := 1
	for _, key := range g.keys {
		raw, ok := group.Get(key)
		if !ok {
			return 0, fmt.Errorf("namelist `%s`: `%s` not found", g.file, key)
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return 0, fmt.Errorf("namelist `%s`: `%s`: %w", g.file, key, err)
		}
		points *= n
	}
	return points, nil
}

// Collect measures the metrics of the cycle described by env, the
// resolved final environment, for components run on tasks.
// Only missing or malformed inputs are errors: measurements that
// fail are logged and reported as unavailable.
func Collect(tr *fsutil.Transaction, env envspec.Resolved, tasks map[string]int, invocationID string, log *zap.Logger) (Metrics, error) {
	if log == nil {
		log = zap.NewNop()
	}
	m := Metrics{
		RunID:        env.Get("RUNID"),
		InvocationID: invocationID,
		Tasks:        tasks,
		Resolution:   map[string]int{},
	}

	var err error
	if m.Years, err = drivers.SimulatedYears(env); err != nil {
		return m, fmt.Errorf("cpmip: %w", err)
	}
	if m.Wallclock, err = strconv.ParseFloat(strings.TrimSpace(env.Get("CPMIP_WALLCLOCK")), 64); err != nil {
		return m, fmt.Errorf("cpmip: CPMIP_WALLCLOCK must be a number of seconds, got `%s`", env.Get("CPMIP_WALLCLOCK"))
	}

	m.DataKB, _ = MeasureData(tr, fsutil.Path(env.Get("DATAM")), log)

	for model := range tasks {
		if _, known := grids[model]; !known {
			continue
		}
		points, err := Resolution(tr, model)
		if err != nil {
			if !errors.Is(err, namelist.ErrNotFound) {
				log.Warn("resolution unavailable", zap.String("model", model), zap.Error(err))
			}
			points = -1
		}
		m.Resolution[model] = points
	}
	return m, nil
}
