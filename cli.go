package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/meteocima/coupled-drivers/conf"
	"github.com/meteocima/coupled-drivers/fsutil"
	"github.com/meteocima/coupled-drivers/postproc"
	"github.com/meteocima/coupled-drivers/runner"
	"github.com/meteocima/coupled-drivers/upgrade"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Version of the drivers.
const Version = "1.3.0"

var (
	// global flags
	verbose bool
	cfgFile string
	workdir string

	envFile   string
	upgradeTo string
	dryRun    bool

	// exitCode is returned by check: the number of failed checks.
	exitCode int

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "coupled-drivers",
	Short: "Drivers of the coupled climate model components",
	Long: `coupled-drivers prepares the environment, the namelists and the
launch command of every component of a coupled run, and checks
their outputs once the run completed.

Models are named by a space separated list, as in "um nemo cice mct".`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run <models>",
	Short: "Prepare models for a run and print the launch command",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRun,
}

var finalizeCmd = &cobra.Command{
	Use:   "finalize <models>",
	Short: "Check the outputs of models after the run",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFinalize,
}

var checkCmd = &cobra.Command{
	Use:   "check <models>",
	Short: "Validate the declaration tables of models against the environment",
	Long: `check validates the declaration tables of models and resolves them
against the environment. The exit code is the number of failed checks.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

var driveCmd = &cobra.Command{
	Use:   "drive <run_driver|finalize> <models>",
	Short: "Run the drivers of models in the given mode",
	Long: `drive is the single entry point used by the suite tasks: the first
argument selects between preparing the run and finalizing it.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runDrive,
}

var cpmipCmd = &cobra.Command{
	Use:   "cpmip",
	Short: "Write the CPMIP report of the completed cycle",
	Args:  cobra.NoArgs,
	RunE:  runCPMIP,
}

var postprocCmd = &cobra.Command{
	Use:   "postproc [namelist]",
	Short: "Print the effective post-processing settings",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPostproc,
}

var upgradeCmd = &cobra.Command{
	Use:   "upgrade <rose-app.conf>",
	Short: "Upgrade an app configuration to a newer version",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpgrade,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "coupled-drivers %s (configuration %s)\n", Version, upgrade.Latest())
		return err
	},
}

// newRunner initializes a runner from the global flags, tagged
// with a new invocation id.
func newRunner() (*runner.Runner, error) {
	log := logger
	if log == nil {
		log = zap.NewNop()
	}
	id := uuid.NewString()
	log.Debug("invocation started", zap.String("invocation", id))
	return runner.Init(cfgFile, fsutil.Path(workdir), log, id)
}

func models(args []string) string {
	return strings.Join(args, " ")
}

func runRun(cmd *cobra.Command, args []string) error {
	r, err := newRunner()
	if err != nil {
		return err
	}
	if envFile != "" {
		r.Config.Folders.EnvFile = fsutil.Path(envFile)
	}
	summary, err := r.Run(models(args))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), summary.Launch)
	return err
}

func runFinalize(cmd *cobra.Command, args []string) error {
	r, err := newRunner()
	if err != nil {
		return err
	}
	return r.Finalize(models(args))
}

func runDrive(cmd *cobra.Command, args []string) error {
	var mode conf.RunMode
	if err := mode.FromString(args[0]); err != nil {
		return err
	}
	if mode == conf.Finalize {
		return runFinalize(cmd, args[1:])
	}
	return runRun(cmd, args[1:])
}

func runCheck(cmd *cobra.Command, args []string) error {
	r, err := newRunner()
	if err != nil {
		return err
	}
	failures := r.Check(models(args))
	for _, f := range failures {
		fmt.Fprintln(cmd.OutOrStdout(), f)
	}
	exitCode = min(len(failures), 255)
	return nil
}

func runCPMIP(cmd *cobra.Command, args []string) error {
	r, err := newRunner()
	if err != nil {
		return err
	}
	common, err := r.ResolveFinal()
	if err != nil {
		return err
	}
	metrics, err := r.CPMIP(common)
	if err != nil {
		return err
	}
	for _, line := range metrics.Lines() {
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	return nil
}

func runPostproc(cmd *cobra.Command, args []string) error {
	r, err := newRunner()
	if err != nil {
		return err
	}
	file := r.Config.Folders.WorkDir.Join(postproc.Namelist).String()
	if len(args) == 1 {
		file = args[0]
	}
	settings, err := postproc.Load(file)
	if err != nil {
		return err
	}
	r.Log.Info("post-processing settings loaded",
		zap.String("file", file),
		zap.Strings("models", settings.Models()),
	)
	content, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("postproc: Marshal error: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(content)
	return err
}

func runUpgrade(cmd *cobra.Command, args []string) error {
	log := logger
	if log == nil {
		log = zap.NewNop()
	}
	file := fsutil.Path(filepath.Base(args[0]))
	tr := fsutil.New(fsutil.Path(filepath.Dir(args[0])), log)

	content := tr.ReadString(file)
	if tr.Err != nil {
		return tr.Err
	}
	upgraded, changes, err := upgrade.Upgrade([]byte(content), upgradeTo)
	if err != nil {
		return err
	}
	for _, change := range changes {
		fmt.Fprintln(cmd.OutOrStdout(), change)
	}
	if dryRun {
		_, err := cmd.OutOrStdout().Write(upgraded)
		return err
	}
	tr.Save(file, upgraded)
	if tr.Err != nil {
		return tr.Err
	}
	log.Info("configuration upgraded", zap.String("file", args[0]), zap.String("version", upgradeTo))
	return nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Driver configuration file (default: built-in defaults)")
	rootCmd.PersistentFlags().StringVarP(&workdir, "workdir", "w", "", "Work directory of the run (overrides the configuration)")

	runCmd.Flags().StringVar(&envFile, "env-file", "", "Write the resolved environment as shell exports to this file")
	upgradeCmd.Flags().StringVar(&upgradeTo, "to", upgrade.Latest(), "Version to upgrade to")
	upgradeCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the upgraded configuration instead of saving it")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(finalizeCmd)
	rootCmd.AddCommand(driveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(cpmipCmd)
	rootCmd.AddCommand(postprocCmd)
	rootCmd.AddCommand(upgradeCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}
