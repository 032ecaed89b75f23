package conf

// This module contains data structures
// used to keep configuration variables
// for the command.

import (
	"fmt"
	"path"
	"sort"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/meteocima/coupled-drivers/envspec"
	"github.com/meteocima/coupled-drivers/fsutil"
)

// FoldersConf contains path of all
// files and directories somehow needed by the command
type FoldersConf struct {
	// WorkDir is the directory the models run in.
	WorkDir fsutil.Path
	// EnvFile receives the export lines of the resolved environment.
	EnvFile fsutil.Path
}

// LauncherConf describes the job launcher.
type LauncherConf struct {
	// Name is used when ROSE_LAUNCHER is not in the environment.
	Name string
	// AdditionalOptions are prepended to every derived set of
	// launcher options.
	AdditionalOptions []string
}

// TimeoutsConf bounds external commands.
type TimeoutsConf struct {
	CommandSeconds int
}

// EnvVars are environment variables set in the configuration
// file. The process environment overrides them.
type EnvVars map[string]string

// ToSlice converts variables to a slice of string, each one
// in the format NAME=VALUE, sorted by name.
func (vars EnvVars) ToSlice() []string {
	res := make([]string, 0, len(vars))
	for name, val := range vars {
		res = append(res, fmt.Sprintf("%s=%s", name, val))
	}
	sort.Strings(res)
	return res
}

// Configuration contains all configuration
// sub structures
type Configuration struct {
	Folders  FoldersConf
	Launcher LauncherConf
	Timeouts TimeoutsConf
	Env      EnvVars
	// Tables lists YAML files of extra declaration tables.
	Tables []string
}

// CommandTimeout bounds external commands, fsutil.DefaultTimeout
// when the configuration sets none.
func (c Configuration) CommandTimeout() time.Duration {
	if c.Timeouts.CommandSeconds <= 0 {
		return fsutil.DefaultTimeout
	}
	return time.Duration(c.Timeouts.CommandSeconds) * time.Second
}

// Snapshot returns the process environment layered over Env.
func (c Configuration) Snapshot(process envspec.Snapshot) envspec.Snapshot {
	return process.Over(c.Env)
}

// Defaults returns the configuration used when no file is given.
func Defaults() Configuration {
	return Configuration{
		Folders: FoldersConf{
			WorkDir: ".",
		},
		Launcher: LauncherConf{
			Name: "mpiexec",
		},
		Timeouts: TimeoutsConf{
			CommandSeconds: int(fsutil.DefaultTimeout / time.Second),
		},
		Env: EnvVars{},
	}
}

// Load reads configuration from `confFile`. Relative paths
// are resolved against the directory of the file.
func Load(confFile string) (Configuration, error) {
	cfg := Defaults()
	if _, err := toml.DecodeFile(confFile, &cfg); err != nil {
		return cfg, fmt.Errorf("Load `%s`: Decode error: %w", confFile, err)
	}
	confDir := fsutil.Path(path.Dir(confFile))

	if !cfg.Folders.WorkDir.IsAbs() {
		cfg.Folders.WorkDir = confDir.JoinP(cfg.Folders.WorkDir)
	}

	if cfg.Folders.EnvFile != "" && !cfg.Folders.EnvFile.IsAbs() {
		cfg.Folders.EnvFile = confDir.JoinP(cfg.Folders.EnvFile)
	}

	for i, table := range cfg.Tables {
		if !path.IsAbs(table) {
			cfg.Tables[i] = confDir.Join(table).String()
		}
	}

	if cfg.Env == nil {
		cfg.Env = EnvVars{}
	}
	return cfg, nil
}

// LoadTables reads the extra declaration tables listed in Tables.
func (c Configuration) LoadTables() ([]envspec.Table, error) {
	var res []envspec.Table
	for _, file := range c.Tables {
		tables, err := envspec.LoadTablesFile(file)
		if err != nil {
			return nil, err
		}
		res = append(res, tables...)
	}
	return res, nil
}
