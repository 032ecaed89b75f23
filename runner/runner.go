package runner

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/meteocima/coupled-drivers/conf"
	"github.com/meteocima/coupled-drivers/cpmip"
	"github.com/meteocima/coupled-drivers/drivers"
	"github.com/meteocima/coupled-drivers/envspec"
	"github.com/meteocima/coupled-drivers/folders"
	"github.com/meteocima/coupled-drivers/fsutil"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Runner drives the components of one invocation.
type Runner struct {
	Config conf.Configuration
	Log    *zap.Logger
	// InvocationID tags logs and reports of this invocation.
	InvocationID string
	// Env is the process environment.
	Env envspec.Snapshot

	site []envspec.Table
}

// Init loads the configuration in cfgFile, or the defaults when
// cfgFile is empty. workdir, when not empty, overrides the one
// of the configuration.
func Init(cfgFile string, workdir fsutil.Path, log *zap.Logger, invocationID string) (*Runner, error) {
	if log == nil {
		log = zap.NewNop()
	}
	cfg := conf.Defaults()
	if cfgFile != "" {
		var err error
		if cfg, err = conf.Load(cfgFile); err != nil {
			return nil, err
		}
	}
	if workdir != "" {
		cfg.Folders.WorkDir = workdir
	}
	site, err := cfg.LoadTables()
	if err != nil {
		return nil, err
	}
	return &Runner{
		Config:       cfg,
		Log:          log.With(zap.String("invocation", invocationID)),
		InvocationID: invocationID,
		Env:          envspec.SnapshotFromOS(),
		site:         site,
	}, nil
}

// Summary of a run_driver invocation.
type Summary struct {
	Models []string                `yaml:"models"`
	Tasks  map[string]int          `yaml:"tasks"`
	Launch string                  `yaml:"launch"`
	Fields []drivers.CouplingField `yaml:"fields,omitempty"`
	Env    envspec.Resolved        `yaml:"env"`
}

func (r *Runner) transaction() *fsutil.Transaction {
	tr := fsutil.New(r.Config.Folders.WorkDir, r.Log)
	tr.Timeout = r.Config.CommandTimeout()
	return tr
}

func (r *Runner) context(tr *fsutil.Transaction) *drivers.Context {
	return &drivers.Context{
		Tr:       tr,
		Env:      r.Config.Snapshot(r.Env),
		Log:      r.Log,
		Launcher: r.Config.Launcher,
		Global:   r.global(),
	}
}

func (r *Runner) global() envspec.Table {
	return envspec.Merge(drivers.GlobalTable(), r.site...)
}

// commonTables returns the common tables, with site declarations.
func (r *Runner) commonTables() (initial, final envspec.Table) {
	return envspec.Merge(drivers.CommonTable(), r.site...), envspec.Merge(drivers.CommonFinalTable(), r.site...)
}

// collect adds to missing the variables err reports missing. Any
// other error is returned.
func collect(missing *envspec.MissingVariablesError, err error) error {
	if err == nil {
		return nil
	}
	var m *envspec.MissingVariablesError
	if errors.As(err, &m) {
		missing.Add(m)
		return nil
	}
	return err
}

// MPMD joins the launch commands of info in run order, as a
// multiple program launch.
func MPMD(info *drivers.RunInfo) string {
	var cmds []string
	for _, model := range info.Models {
		if cmd, ok := info.Launch[model]; ok {
			cmds = append(cmds, cmd)
		}
	}
	return strings.Join(cmds, " : ")
}

// Run prepares models for a run. Missing variables of every
// component are reported together in one *envspec.MissingVariablesError.
func (r *Runner) Run(models string) (*Summary, error) {
	selected, err := drivers.Select(models)
	if err != nil {
		return nil, err
	}
	tr := r.transaction()
	if !tr.Exists(".") {
		if tr.Err != nil {
			return nil, tr.Err
		}
		return nil, fmt.Errorf("Directory not found: %s", tr.Root.String())
	}

	ctx := r.context(tr)
	commonTable, _ := r.commonTables()
	missing := &envspec.MissingVariablesError{}

	common, err := ctx.Resolve(commonTable)
	if err := collect(missing, err); err != nil {
		return nil, err
	}

	info := drivers.NewRunInfo()
	summary := &Summary{Env: common.With()}
	for _, d := range selected {
		if len(missing.Missing) > 0 {
			// keep looking for missing variables only
			initial, _ := d.Tables()
			_, err := ctx.Resolve(initial)
			if err := collect(missing, err); err != nil {
				return nil, err
			}
			continue
		}

		r.Log.Debug("setup", zap.String("model", d.Name()))
		res, err := d.Setup(ctx, common, info)
		if err := collect(missing, err); err != nil {
			return nil, fmt.Errorf("Run `%s`: %w", d.Name(), err)
		}
		if res == nil {
			continue
		}
		info.Record(d.Name(), res)
		summary.Env = summary.Env.With(res.Env)
	}
	if len(missing.Missing) > 0 {
		return nil, missing
	}

	summary.Models = info.Models
	summary.Tasks = info.Tasks
	summary.Launch = MPMD(info)
	summary.Fields = info.Fields

	content, err := yaml.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("Run: Marshal summary error: %w", err)
	}
	tr.Save(folders.RunSummary, content)
	if r.Config.Folders.EnvFile != "" {
		var buf bytes.Buffer
		if err := WriteEnv(&buf, summary.Env); err != nil {
			return nil, err
		}
		tr.Save(r.Config.Folders.EnvFile, buf.Bytes())
	}
	if tr.Err != nil {
		return nil, tr.Err
	}

	r.Log.Info("run prepared",
		zap.Strings("models", summary.Models),
		zap.Int("tasks", info.TotalTasks()),
		zap.String("launch", summary.Launch),
	)
	return summary, nil
}

// ReadSummary reads the summary written by the run of the cycle.
func (r *Runner) ReadSummary() (*Summary, error) {
	tr := r.transaction()
	content := tr.ReadString(folders.RunSummary)
	if tr.Err != nil {
		return nil, tr.Err
	}
	var summary Summary
	if err := yaml.Unmarshal([]byte(content), &summary); err != nil {
		return nil, fmt.Errorf("ReadSummary `%s`: Unmarshal error: %w", folders.RunSummary, err)
	}
	return &summary, nil
}

// Finalize runs the final phase of models. When DRIVERS_ANALYSIS
// asks for it, the CPMIP report is written afterwards.
func (r *Runner) Finalize(models string) error {
	selected, err := drivers.Select(models)
	if err != nil {
		return err
	}
	tr := r.transaction()
	ctx := r.context(tr)
	_, finalTable := r.commonTables()
	missing := &envspec.MissingVariablesError{}

	common, err := ctx.Resolve(finalTable)
	if err := collect(missing, err); err != nil {
		return err
	}
	for _, d := range selected {
		if len(missing.Missing) > 0 {
			_, final := d.Tables()
			_, err := ctx.Resolve(final)
			if err := collect(missing, err); err != nil {
				return err
			}
			continue
		}
		r.Log.Debug("finalize", zap.String("model", d.Name()))
		if err := collect(missing, d.Finalize(ctx, common)); err != nil {
			return fmt.Errorf("Finalize `%s`: %w", d.Name(), err)
		}
	}
	if len(missing.Missing) > 0 {
		return missing
	}

	if wanted, _ := envspec.Contains("cpmip").Test(common.Get("DRIVERS_ANALYSIS")); !wanted {
		return nil
	}
	_, err = r.CPMIP(common)
	return err
}

// CPMIP computes the CPMIP metrics of the cycle and writes
// them to CPMIP_OUTPUT. Task counts come from the run summary.
func (r *Runner) CPMIP(common envspec.Resolved) (cpmip.Metrics, error) {
	tr := r.transaction()
	tasks := map[string]int{}
	summary, err := r.ReadSummary()
	if err != nil {
		r.Log.Warn("task counts unavailable", zap.Error(err))
	} else {
		tasks = summary.Tasks
	}

	metrics, err := cpmip.Collect(tr, common, tasks, r.InvocationID, r.Log)
	if err != nil {
		return metrics, err
	}
	var buf bytes.Buffer
	if err := cpmip.Write(&buf, metrics); err != nil {
		return metrics, err
	}
	tr.Save(fsutil.Path(common.Get("CPMIP_OUTPUT")), buf.Bytes())
	if tr.Err != nil {
		return metrics, tr.Err
	}
	r.Log.Info("cpmip report written", zap.String("file", common.Get("CPMIP_OUTPUT")))
	return metrics, nil
}

// ResolveFinal resolves the common final table against the environment.
func (r *Runner) ResolveFinal() (envspec.Resolved, error) {
	_, finalTable := r.commonTables()
	return r.context(r.transaction()).Resolve(finalTable)
}

// Check validates the declaration tables of models and resolves
// them against the environment. It returns the failed checks.
func (r *Runner) Check(models string) []string {
	selected, err := drivers.Select(models)
	if err != nil {
		return []string{err.Error()}
	}
	global := r.global()
	initial, final := r.commonTables()
	tables := []envspec.Table{initial, final}
	for _, d := range selected {
		i, f := d.Tables()
		tables = append(tables, i, f)
	}

	var failures []string
	for _, table := range tables {
		for _, unknown := range table.Validate(global) {
			failures = append(failures, unknown.Error())
		}
	}

	// a variable missing from both phases is reported once
	reported := map[string]bool{}
	env := r.Config.Snapshot(r.Env)
	for _, table := range tables {
		_, missing, err := envspec.Resolve(table, env, envspec.WithGlobal(global))
		if err != nil {
			failures = append(failures, err.Error())
			continue
		}
		for _, m := range missing {
			if reported[m.Name] {
				continue
			}
			reported[m.Name] = true
			failures = append(failures, "missing "+m.String())
		}
	}

	for _, f := range failures {
		r.Log.Warn("check failed", zap.String("reason", f))
	}
	return failures
}

// WriteEnv writes env as shell export lines, sorted by name.
func WriteEnv(w io.Writer, env envspec.Resolved) error {
	for _, name := range env.Names() {
		value := strings.ReplaceAll(env.Get(name), "'", `'\''`)
		if _, err := fmt.Fprintf(w, "export %s='%s'\n", name, value); err != nil {
			return err
		}
	}
	return nil
}
