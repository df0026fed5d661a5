// Package config loads the settings of a hypercube run from a YAML file, a
// .env file and HYPERCUBE_* environment variables, in that order of
// increasing precedence. Command line flags are applied on top by the CLI.
package config

import (
	"bytes"
	"io"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sarchlab/hypercube/fabric"
	"github.com/sarchlab/hypercube/topology"
	"github.com/sarchlab/hypercube/vertex"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// UnsetDimension marks a Config whose dimension must come from the command
// line.
const UnsetDimension = -1

// Monitor configures the HTTP monitor.
type Monitor struct {
	Enabled     bool `yaml:"enabled"`
	Port        int  `yaml:"port"`
	OpenBrowser bool `yaml:"open_browser"`
}

// Record configures the SQLite recording of token arrivals.
type Record struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Config holds every setting of a run. A Seed of 0 seeds the neighbor
// choices of every run from the clock.
type Config struct {
	Dimension       int     `yaml:"dimension"`
	OutputDir       string  `yaml:"output_dir"`
	LogLevel        string  `yaml:"log_level"`
	ChannelCapacity int     `yaml:"channel_capacity"`
	MailboxCapacity int     `yaml:"mailbox_capacity"`
	Seed            uint64  `yaml:"seed"`
	Monitor         Monitor `yaml:"monitor"`
	Record          Record  `yaml:"record"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Dimension:       UnsetDimension,
		OutputDir:       ".",
		LogLevel:        "info",
		ChannelCapacity: fabric.DefaultCapacity,
		MailboxCapacity: vertex.DefaultMailboxCapacity,
	}
}

// Load returns the default settings overridden by the YAML file at path, if
// path is not empty, and then by the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cfg, errors.Wrap(err, "opening config")
		}
		defer f.Close()

		err = cfg.Decode(f)
		if err != nil {
			return cfg, errors.Wrapf(err, "parsing config %s", path)
		}
	}

	err := cfg.ApplyEnv()
	if err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Decode overrides the settings with a YAML document. Unknown keys are
// rejected.
func (c *Config) Decode(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	return dec.Decode(c)
}

// LoadDotEnv adds the variables of the given .env files to the environment
// without overriding variables that are already set. Missing files are
// skipped.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	present := make([]string, 0, len(files))
	for _, f := range files {
		_, err := os.Stat(f)
		if err == nil {
			present = append(present, f)
		}
	}

	if len(present) == 0 {
		return nil
	}

	return errors.Wrap(godotenv.Load(present...), "loading .env")
}

type envBinding struct {
	name  string
	apply func(c *Config, value string) error
}

var envBindings = []envBinding{
	{"HYPERCUBE_DIMENSION", func(c *Config, v string) error {
		return setInt(&c.Dimension, v)
	}},
	{"HYPERCUBE_OUTPUT_DIR", func(c *Config, v string) error {
		c.OutputDir = v
		return nil
	}},
	{"HYPERCUBE_LOG_LEVEL", func(c *Config, v string) error {
		c.LogLevel = v
		return nil
	}},
	{"HYPERCUBE_CHANNEL_CAPACITY", func(c *Config, v string) error {
		return setInt(&c.ChannelCapacity, v)
	}},
	{"HYPERCUBE_MAILBOX_CAPACITY", func(c *Config, v string) error {
		return setInt(&c.MailboxCapacity, v)
	}},
	{"HYPERCUBE_SEED", func(c *Config, v string) error {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return err
		}

		c.Seed = seed

		return nil
	}},
	{"HYPERCUBE_MONITOR", func(c *Config, v string) error {
		return setBool(&c.Monitor.Enabled, v)
	}},
	{"HYPERCUBE_MONITOR_PORT", func(c *Config, v string) error {
		return setInt(&c.Monitor.Port, v)
	}},
	{"HYPERCUBE_OPEN_MONITOR", func(c *Config, v string) error {
		return setBool(&c.Monitor.OpenBrowser, v)
	}},
	{"HYPERCUBE_RECORD", func(c *Config, v string) error {
		return setBool(&c.Record.Enabled, v)
	}},
	{"HYPERCUBE_RECORD_PATH", func(c *Config, v string) error {
		c.Record.Path = v
		return nil
	}},
}

// ApplyEnv overrides the settings with the HYPERCUBE_* environment
// variables that are set.
func (c *Config) ApplyEnv() error {
	for _, b := range envBindings {
		value, ok := os.LookupEnv(b.name)
		if !ok {
			continue
		}

		err := b.apply(c, value)
		if err != nil {
			return errors.Wrapf(err, "environment variable %s", b.name)
		}
	}

	return nil
}

func setInt(dst *int, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return err
	}

	*dst = n

	return nil
}

func setBool(dst *bool, value string) error {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return err
	}

	*dst = b

	return nil
}

// Validate checks that the settings describe a runnable simulation.
func (c Config) Validate() error {
	err := topology.ValidateDimension(c.Dimension)
	if err != nil {
		return err
	}

	_, err = c.Level()
	if err != nil {
		return err
	}

	if c.ChannelCapacity < 0 {
		return errors.Errorf("channel capacity %d is negative",
			c.ChannelCapacity)
	}

	if c.MailboxCapacity < 1 {
		return errors.Errorf("mailbox capacity %d is below 1",
			c.MailboxCapacity)
	}

	if c.Monitor.Port < 0 || c.Monitor.Port > 65535 {
		return errors.Errorf("monitor port %d is out of range",
			c.Monitor.Port)
	}

	return nil
}

// Level returns the configured log level.
func (c Config) Level() (logrus.Level, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel, errors.Wrap(err, "log level")
	}

	return level, nil
}
