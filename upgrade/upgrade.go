// Package upgrade migrates the app configuration of the drivers
// between versions. Each macro moves the configuration one version
// forward; Apply chains them from the version recorded in the `meta`
// top-level key.
package upgrade

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"gopkg.in/ini.v1"
)

// MetaPrefix precedes the version in the `meta` key.
const MetaPrefix = "coupled-drivers/"

// EnvSection holds the environment of the drivers.
const EnvSection = "env"

// Macro upgrades a configuration from Before to After.
type Macro struct {
	Before string
	After  string
	Doc    string
	// Transform edits cfg and returns the changes it made.
	Transform func(cfg *ini.File) ([]string, error)
}

// Macros in version order.
var Macros = []Macro{
	{"vn1.0", "vn1.1", "Rename ocean and ice variables after their model", vn11},
	{"vn1.1", "vn1.2", "Add runtime coupling and analysis variables", vn12},
	{"vn1.2", "vn1.3", "Move post-processing switches to the post-processing namelists", vn13},
}

// Latest version a configuration can be upgraded to.
func Latest() string {
	return Macros[len(Macros)-1].After
}

// Versions lists every known version, oldest first.
func Versions() []string {
	res := []string{Macros[0].Before}
	for _, m := range Macros {
		res = append(res, m.After)
	}
	return res
}

func versionIndex(version string) int {
	for i, v := range Versions() {
		if v == version {
			return i
		}
	}
	return -1
}

// Load parses an app configuration.
func Load(source interface{}) (*ini.File, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:     true,
		PreserveSurroundedQuote: true,
	}, source)
	if err != nil {
		return nil, fmt.Errorf("Load: Parse error: %w", err)
	}
	return cfg, nil
}

// ini keeps these settings package wide: every ini file of the
// process is written with rose style `key=value` lines.
func init() {
	ini.PrettyFormat = false
	ini.PrettyEqual = false
}

// Write renders cfg with rose style `key=value` lines.
func Write(w io.Writer, cfg *ini.File) error {
	_, err := cfg.WriteTo(w)
	return err
}

// Version returns the version recorded in cfg.
func Version(cfg *ini.File) (string, error) {
	meta := cfg.Section(ini.DefaultSection).Key("meta").String()
	if !strings.HasPrefix(meta, MetaPrefix) {
		return "", fmt.Errorf("meta `%s` does not name a coupled-drivers version", meta)
	}
	return strings.TrimPrefix(meta, MetaPrefix), nil
}

// Apply upgrades cfg to version to, running every macro between the
// version of cfg and to. It returns the changes made.
func Apply(cfg *ini.File, to string) ([]string, error) {
	from, err := Version(cfg)
	if err != nil {
		return nil, err
	}
	start := versionIndex(from)
	if start < 0 {
		return nil, fmt.Errorf("unknown version `%s`", from)
	}
	end := versionIndex(to)
	if end < 0 {
		return nil, fmt.Errorf("unknown version `%s`: expecting one of %s", to, strings.Join(Versions(), ", "))
	}
	if end < start {
		return nil, fmt.Errorf("cannot downgrade from %s to %s", from, to)
	}

	var changes []string
	for _, m := range Macros[start:end] {
		done, err := m.Transform(cfg)
		if err != nil {
			return changes, fmt.Errorf("upgrade %s to %s: %w", m.Before, m.After, err)
		}
		cfg.Section(ini.DefaultSection).Key("meta").SetValue(MetaPrefix + m.After)
		changes = append(changes, done...)
		changes = append(changes, fmt.Sprintf("meta: %s%s", MetaPrefix, m.After))
	}
	return changes, nil
}

// Upgrade reads the configuration in content and returns it
// upgraded to version to.
func Upgrade(content []byte, to string) ([]byte, []string, error) {
	cfg, err := Load(content)
	if err != nil {
		return nil, nil, err
	}
	changes, err := Apply(cfg, to)
	if err != nil {
		return nil, changes, err
	}
	var buf bytes.Buffer
	if err := Write(&buf, cfg); err != nil {
		return nil, changes, err
	}
	return buf.Bytes(), changes, nil
}

func rename(cfg *ini.File, section, from, to string) ([]string, error) {
	sec := cfg.Section(section)
	if !sec.HasKey(from) {
		return nil, nil
	}
	if sec.HasKey(to) {
		return nil, fmt.Errorf("[%s] both %s and %s are set", section, from, to)
	}
	if _, err := sec.NewKey(to, sec.Key(from).Value()); err != nil {
		return nil, err
	}
	sec.DeleteKey(from)
	return []string{fmt.Sprintf("[%s] %s renamed to %s", section, from, to)}, nil
}

func add(cfg *ini.File, section, key, value string) ([]string, error) {
	sec := cfg.Section(section)
	if sec.HasKey(key) {
		return nil, nil
	}
	if _, err := sec.NewKey(key, value); err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf("[%s] %s added as %s", section, key, value)}, nil
}

type edit func(cfg *ini.File) ([]string, error)

func run(cfg *ini.File, edits ...edit) ([]string, error) {
	var changes []string
	for _, e := range edits {
		done, err := e(cfg)
		if err != nil {
			return changes, err
		}
		changes = append(changes, done...)
	}
	return changes, nil
}

func renameEnv(from, to string) edit {
	return func(cfg *ini.File) ([]string, error) { return rename(cfg, EnvSection, from, to) }
}

func addEnv(key, value string) edit {
	return func(cfg *ini.File) ([]string, error) { return add(cfg, EnvSection, key, value) }
}

func vn11(cfg *ini.File) ([]string, error) {
	return run(cfg,
		renameEnv("OCEAN_NPROC", "NEMO_NPROC"),
		renameEnv("OCEAN_NODES", "NEMO_NODES"),
		renameEnv("OCEAN_EXEC", "NEMO_EXEC"),
		renameEnv("ICE_NL", "CICE_NL"),
		renameEnv("ICE_START", "CICE_START"),
	)
}

func vn12(cfg *ini.File) ([]string, error) {
	return run(cfg,
		addEnv("NAMCOUPLE_STATIC", "true"),
		addEnv("CPL_NLOGPRT", "0"),
		addEnv("XIOS_NPROC", "0"),
		addEnv("DRIVERS_ANALYSIS", ""),
	)
}

// ppSwitches maps the post-processing switches of the environment
// to their namelist group and key.
var ppSwitches = []struct {
	env, group, key string
}{
	{"PP_RUN_ATMOS", "atmospp", "pp_run"},
	{"ARCHIVE_ATMOS", "atmospp", "archive_switch"},
	{"PP_RUN_NEMO", "nemopostproc", "pp_run"},
	{"ARCHIVE_NEMO", "nemopostproc", "archive_switch"},
	{"MEANS_NEMO", "nemopostproc", "create_means"},
	{"PP_RUN_CICE", "cicepostproc", "pp_run"},
	{"ARCHIVE_CICE", "cicepostproc", "archive_switch"},
	{"MEANS_CICE", "cicepostproc", "create_means"},
}

// fortranLogical converts a shell boolean to a namelist logical.
func fortranLogical(v string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes":
		return ".true.", nil
	case "false", "0", "no", "":
		return ".false.", nil
	}
	return "", fmt.Errorf("`%s` is not a boolean", v)
}

func vn13(cfg *ini.File) ([]string, error) {
	env := cfg.Section(EnvSection)
	var changes []string
	for _, sw := range ppSwitches {
		if !env.HasKey(sw.env) {
			continue
		}
		value, err := fortranLogical(env.Key(sw.env).Value())
		if err != nil {
			return changes, fmt.Errorf("[%s] %s: %w", EnvSection, sw.env, err)
		}
		section := "namelist:" + sw.group
		done, err := add(cfg, section, sw.key, value)
		if err != nil {
			return changes, err
		}
		if len(done) == 0 {
			return changes, fmt.Errorf("[%s] %s is already set", section, sw.key)
		}
		env.DeleteKey(sw.env)
		changes = append(changes, fmt.Sprintf("[%s] %s moved to [%s] %s", EnvSection, sw.env, section, sw.key))
	}
	return changes, nil
}
