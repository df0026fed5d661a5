// Package cmd provides the command-line interface of the hypercube
// simulator.
package cmd

import (
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sarchlab/hypercube/config"
	"github.com/sarchlab/hypercube/simulation"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "hypercube <dimension>",
	Short: "Circulate a token over an n-dimensional hypercube.",
	Long: `hypercube starts one concurrent unit per vertex of an ` +
		`n-dimensional hypercube and passes a token between random ` +
		`neighbors until terminated. Every vertex logs the inter-arrival ` +
		`time of the token to <output-dir>/<n>/<address>.txt. ` +
		`SIGUSR1 pauses and resumes the run, SIGINT and SIGTERM end it.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceErrors: true,
	RunE:          runSimulation,
}

func init() {
	registerRunFlags(rootCmd)
	rootCmd.AddCommand(reportCmd)
}

func registerRunFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("config", "", "YAML configuration file")
	flags.String("output-dir", ".", "root directory of the vertex logs")
	flags.String("log-level", "info", "diagnostic log level")
	flags.Bool("monitor", false, "serve the monitoring page")
	flags.Int("monitor-port", 0, "port of the monitoring page, random if 0")
	flags.Bool("open-monitor", false, "open the monitoring page in a browser")
	flags.Bool("record", false, "record every token arrival into SQLite")
	flags.String("record-path", "", "path of the SQLite recording")
	flags.Int("channel-capacity", 0, "tokens buffered per channel")
	flags.Int("mailbox-capacity", 0, "commands buffered per vertex unit")
	flags.Uint64("seed", 0, "seed of the neighbor choices, from the clock if 0")
}

func loadConfig(cmd *cobra.Command, args []string) (config.Config, error) {
	err := config.LoadDotEnv()
	if err != nil {
		return config.Config{}, err
	}

	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}

	err = applyFlags(cmd, &cfg)
	if err != nil {
		return cfg, err
	}

	if len(args) == 1 {
		cfg.Dimension, err = strconv.Atoi(args[0])
		if err != nil {
			return cfg, errors.Errorf("dimension %q is not a number", args[0])
		}
	}

	if cfg.Dimension == config.UnsetDimension {
		return cfg, errors.New("missing dimension")
	}

	return cfg, cfg.Validate()
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	var err error

	if flags.Changed("output-dir") {
		cfg.OutputDir, err = flags.GetString("output-dir")
	}

	if err == nil && flags.Changed("log-level") {
		cfg.LogLevel, err = flags.GetString("log-level")
	}

	if err == nil && flags.Changed("monitor") {
		cfg.Monitor.Enabled, err = flags.GetBool("monitor")
	}

	if err == nil && flags.Changed("monitor-port") {
		cfg.Monitor.Port, err = flags.GetInt("monitor-port")
	}

	if err == nil && flags.Changed("open-monitor") {
		cfg.Monitor.OpenBrowser, err = flags.GetBool("open-monitor")
	}

	if err == nil && flags.Changed("record") {
		cfg.Record.Enabled, err = flags.GetBool("record")
	}

	if err == nil && flags.Changed("record-path") {
		cfg.Record.Path, err = flags.GetString("record-path")
	}

	if err == nil && flags.Changed("channel-capacity") {
		cfg.ChannelCapacity, err = flags.GetInt("channel-capacity")
	}

	if err == nil && flags.Changed("mailbox-capacity") {
		cfg.MailboxCapacity, err = flags.GetInt("mailbox-capacity")
	}

	if err == nil && flags.Changed("seed") {
		cfg.Seed, err = flags.GetUint64("seed")
	}

	return err
}

func newLogger(cfg config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	level, _ := cfg.Level()
	logger.SetLevel(level)

	return logger
}

func buildSimulation(
	cfg config.Config,
	logger logrus.FieldLogger,
) *simulation.Simulation {
	b := simulation.MakeBuilder().
		WithDimension(cfg.Dimension).
		WithOutputDir(cfg.OutputDir).
		WithChannelCapacity(cfg.ChannelCapacity).
		WithMailboxCapacity(cfg.MailboxCapacity).
		WithLogger(logger).
		WithSignals()

	if cfg.Seed != 0 {
		b = b.WithSeed(cfg.Seed)
	}

	if cfg.Monitor.Enabled {
		b = b.WithMonitoring().WithMonitorPort(cfg.Monitor.Port)
		if cfg.Monitor.OpenBrowser {
			b = b.WithBrowser()
		}
	}

	if cfg.Record.Enabled {
		b = b.WithRecording(cfg.Record.Path)
	}

	return b.Build()
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		cmd.PrintErrln(cmd.UsageString())
		return err
	}

	logger := newLogger(cfg)
	sim := buildSimulation(cfg, logger)

	logger.WithFields(logrus.Fields{
		"run":       sim.ID(),
		"pid":       os.Getpid(),
		"dimension": cfg.Dimension,
		"seed":      sim.Seed(),
	}).Info("starting hypercube")

	return sim.Run(cmd.Context())
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		rootCmd.PrintErrln("Error:", err)
		atexit.Exit(1)
	}
}
