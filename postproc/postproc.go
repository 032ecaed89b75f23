// Package postproc contains the default settings of the
// post-processing app, overlaid with the values of its namelist.
// The settings are plain data: deciding which archiving and
// meaning operations run is left to the post-processing engine.
package postproc

import (
	"errors"
	"fmt"

	"github.com/meteocima/coupled-drivers/namelist"
)

// Namelist is the default name of the post-processing namelist.
const Namelist = "postproc.nl"

// Group names of the post-processing namelist.
const (
	SuiteGroup     = "suitegen"
	ArchivingGroup = "moose_arch"
	AtmosGroup     = "atmospp"
	NemoGroup      = "nemopostproc"
	CiceGroup      = "cicepostproc"
)

// TopLevel switches are shared by the post-processing of every model.
type TopLevel struct {
	PPRun          bool   `nml:"pp_run" yaml:"pp_run"`
	ArchiveSwitch  bool   `nml:"archive_switch" yaml:"archive_switch"`
	CreateMeans    bool   `nml:"create_means" yaml:"create_means"`
	ArchiveMeans   bool   `nml:"archive_means" yaml:"archive_means"`
	DebugMode      bool   `nml:"debug" yaml:"debug"`
	ShareDirectory string `nml:"share_directory" yaml:"share_directory"`
	WorkDirectory  string `nml:"work_directory" yaml:"work_directory"`
}

// Suite describes the running suite.
type Suite struct {
	Prefix         string `nml:"prefix" yaml:"prefix"`
	UMTaskName     string `nml:"umtask_name" yaml:"umtask_name"`
	CyclePeriod    string `nml:"cycleperiod" yaml:"cycleperiod"`
	ModelBasis     string `nml:"model_basis" yaml:"model_basis"`
	ArchiveCommand string `nml:"archive_command" yaml:"archive_command"`
	Calendar       string `nml:"calendar" yaml:"calendar"`
}

// Archiving configures the archive system.
type Archiving struct {
	ArchiveSet     string `nml:"archive_set" yaml:"archive_set"`
	DataClass      string `nml:"dataclass" yaml:"dataclass"`
	EnsembleID     string `nml:"ensembleid" yaml:"ensembleid"`
	NonDuplexed    bool   `nml:"non_duplexed_set" yaml:"non_duplexed_set"`
	CommandTimeout int    `nml:"command_timeout" yaml:"command_timeout"`
}

// AtmosPP configures the post-processing of the atmosphere.
type AtmosPP struct {
	TopLevel         `yaml:",inline"`
	StreamsToArchive []string `nml:"streams_to_archive" yaml:"streams_to_archive"`
	ArchiveDumps     bool     `nml:"archive_dumps" yaml:"archive_dumps"`
	ArchiveFrequency string   `nml:"arch_dump_freq" yaml:"arch_dump_freq"`
	ConvertPP        bool     `nml:"convert_pp" yaml:"convert_pp"`
	DeleteSC         bool     `nml:"delete_sc" yaml:"delete_sc"`
}

// NemoPP configures the post-processing of the ocean.
type NemoPP struct {
	TopLevel          `yaml:",inline"`
	ExecRebuild       string `nml:"exec_rebuild" yaml:"exec_rebuild"`
	RebuildRestarts   bool   `nml:"rebuild_restarts" yaml:"rebuild_restarts"`
	ArchiveRestarts   bool   `nml:"archive_restarts" yaml:"archive_restarts"`
	ArchiveIceberg    bool   `nml:"archive_iceberg_trajectory" yaml:"archive_iceberg_trajectory"`
	BufferRebuildRst  int    `nml:"buffer_rebuild_rst" yaml:"buffer_rebuild_rst"`
	BufferRebuildMean int    `nml:"buffer_rebuild_mean" yaml:"buffer_rebuild_mean"`
}

// CicePP configures the post-processing of the sea ice.
type CicePP struct {
	TopLevel        `yaml:",inline"`
	ArchiveRestarts bool `nml:"archive_restarts" yaml:"archive_restarts"`
	CatDailyMeans   bool `nml:"cat_daily_means" yaml:"cat_daily_means"`
	BufferArchive   int  `nml:"buffer_archive" yaml:"buffer_archive"`
}

// Settings of the post-processing app.
type Settings struct {
	Suite     Suite     `yaml:"suite"`
	Archiving Archiving `yaml:"archiving"`
	Atmos     AtmosPP   `yaml:"atmos"`
	Nemo      NemoPP    `yaml:"nemo"`
	Cice      CicePP    `yaml:"cice"`
}

func topLevel() TopLevel {
	return TopLevel{
		PPRun:          false,
		ArchiveSwitch:  false,
		CreateMeans:    false,
		ArchiveMeans:   false,
		ShareDirectory: "$ROSE_DATA",
		WorkDirectory:  "$CYLC_TASK_WORK_DIR/../coupled",
	}
}

// Defaults returns the settings used when the namelist
// does not set them.
func Defaults() Settings {
	return Settings{
		Suite: Suite{
			Prefix:         "$RUNID",
			UMTaskName:     "atmos",
			CyclePeriod:    "0,1,0,0,0,0",
			ModelBasis:     "$MODELBASIS",
			ArchiveCommand: "Moose",
			Calendar:       "360day",
		},
		Archiving: Archiving{
			ArchiveSet:     "$RUNID",
			DataClass:      "crum",
			NonDuplexed:    false,
			CommandTimeout: 600,
		},
		Atmos: AtmosPP{
			TopLevel:         topLevel(),
			StreamsToArchive: []string{"pm", "pa"},
			ArchiveDumps:     true,
			ArchiveFrequency: "Yearly",
			ConvertPP:        true,
			DeleteSC:         false,
		},
		Nemo: NemoPP{
			TopLevel:          topLevel(),
			ExecRebuild:       "rebuild_nemo",
			RebuildRestarts:   true,
			ArchiveRestarts:   true,
			BufferRebuildRst:  5,
			BufferRebuildMean: 1,
		},
		Cice: CicePP{
			TopLevel:        topLevel(),
			ArchiveRestarts: true,
			CatDailyMeans:   false,
			BufferArchive:   1,
		},
	}
}

// Models lists the models whose post-processing is switched on.
func (s Settings) Models() []string {
	var res []string
	for _, m := range []struct {
		name string
		top  TopLevel
	}{
		{"atmos", s.Atmos.TopLevel},
		{"nemo", s.Nemo.TopLevel},
		{"cice", s.Cice.TopLevel},
	} {
		if m.top.PPRun {
			res = append(res, m.name)
		}
	}
	return res
}

// decode overlays group on targets, when nl contains it.
func decode(nl *namelist.File, group string, targets ...interface{}) error {
	g, ok := nl.Group(group)
	if !ok {
		return nil
	}
	for _, target := range targets {
		if err := namelist.Decode(g, target); err != nil {
			return err
		}
	}
	return nil
}

// Load reads the namelist in file over the defaults. A missing file
// yields the defaults; a malformed one is an error.
func Load(file string) (Settings, error) {
	s := Defaults()
	nl, err := namelist.ReadFile(file)
	if errors.Is(err, namelist.ErrNotFound) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("Load `%s`: %w", file, err)
	}

	err = decode(nl, SuiteGroup, &s.Suite)
	if err == nil {
		err = decode(nl, ArchivingGroup, &s.Archiving)
	}
	if err == nil {
		err = decode(nl, AtmosGroup, &s.Atmos.TopLevel, &s.Atmos)
	}
	if err == nil {
		err = decode(nl, NemoGroup, &s.Nemo.TopLevel, &s.Nemo)
	}
	if err == nil {
		err = decode(nl, CiceGroup, &s.Cice.TopLevel, &s.Cice)
	}
	if err != nil {
		return Defaults(), fmt.Errorf("Load `%s`: %w", file, err)
	}
	return s, nil
}
