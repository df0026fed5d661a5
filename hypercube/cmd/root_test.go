package cmd

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/hypercube/config"
	"github.com/sarchlab/hypercube/sink"
	"github.com/spf13/cobra"
)

var _ = Describe("Root command", func() {
	newCmd := func(flags ...string) *cobra.Command {
		c := &cobra.Command{Use: "hypercube"}
		registerRunFlags(c)
		Expect(c.ParseFlags(flags)).To(Succeed())

		return c
	}

	setenv := func(key, value string) {
		Expect(os.Setenv(key, value)).To(Succeed())
		DeferCleanup(os.Unsetenv, key)
	}

	It("should take the dimension from the argument", func() {
		cfg, err := loadConfig(newCmd(), []string{"4"})

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Dimension).To(Equal(4))
		Expect(cfg.OutputDir).To(Equal("."))
		Expect(cfg.Monitor.Enabled).To(BeFalse())
	})

	It("should fail without a dimension", func() {
		_, err := loadConfig(newCmd(), nil)

		Expect(err).To(MatchError(ContainSubstring("missing dimension")))
	})

	It("should reject a dimension that is not a number", func() {
		_, err := loadConfig(newCmd(), []string{"three"})

		Expect(err).To(MatchError(ContainSubstring("not a number")))
	})

	It("should reject a negative dimension", func() {
		_, err := loadConfig(newCmd(), []string{"-2"})

		Expect(err).To(HaveOccurred())
	})

	It("should take the dimension from the environment", func() {
		setenv("HYPERCUBE_DIMENSION", "2")

		cfg, err := loadConfig(newCmd(), nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Dimension).To(Equal(2))
	})

	It("should let flags override the configuration file", func() {
		dir := GinkgoT().TempDir()
		file := filepath.Join(dir, "hypercube.yaml")
		Expect(os.WriteFile(file, []byte(
			"dimension: 5\noutput_dir: from-file\nlog_level: warn\n"),
			0o644)).To(Succeed())

		cfg, err := loadConfig(newCmd(
			"--config", file,
			"--output-dir", "from-flag",
			"--monitor",
			"--monitor-port", "9000",
			"--record",
			"--channel-capacity", "8",
			"--seed", "99",
		), nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Dimension).To(Equal(5))
		Expect(cfg.OutputDir).To(Equal("from-flag"))
		Expect(cfg.LogLevel).To(Equal("warn"))
		Expect(cfg.Monitor.Enabled).To(BeTrue())
		Expect(cfg.Monitor.Port).To(Equal(9000))
		Expect(cfg.Record.Enabled).To(BeTrue())
		Expect(cfg.ChannelCapacity).To(Equal(8))
		Expect(cfg.Seed).To(Equal(uint64(99)))
	})

	It("should reject a mailbox capacity of zero", func() {
		_, err := loadConfig(newCmd("--mailbox-capacity", "0"), []string{"1"})

		Expect(err).To(MatchError(ContainSubstring("mailbox")))
	})

	It("should pass a configured seed to the simulation", func() {
		cfg := config.Default()
		cfg.Dimension = 0
		cfg.Seed = 31

		Expect(buildSimulation(cfg, newLogger(cfg)).Seed()).
			To(Equal(uint64(31)))
	})

	It("should reject an unknown log level", func() {
		_, err := loadConfig(newCmd("--log-level", "loud"), []string{"1"})

		Expect(err).To(HaveOccurred())
	})

	It("should run the single vertex cube to completion", func() {
		cfg := config.Default()
		cfg.Dimension = 0
		cfg.OutputDir = GinkgoT().TempDir()
		cfg.LogLevel = "error"

		sim := buildSimulation(cfg, newLogger(cfg))

		Expect(sim.Run(context.Background())).To(Succeed())
		Expect(sink.Path(cfg.OutputDir, 0, 0)).To(BeARegularFile())
	})
})
