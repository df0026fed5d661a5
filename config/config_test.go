package config_test

import (
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/sarchlab/hypercube/config"
)

func setenv(name, value string) {
	Expect(os.Setenv(name, value)).To(Succeed())
	DeferCleanup(os.Unsetenv, name)
}

func writeFile(dir, name, content string) string {
	path := filepath.Join(dir, name)
	Expect(os.WriteFile(path, []byte(content), 0o644)).To(Succeed())

	return path
}

var _ = Describe("Config", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	It("should use the defaults without a file", func() {
		cfg, err := config.Load("")

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg).To(Equal(config.Default()))
		Expect(cfg.Dimension).To(Equal(config.UnsetDimension))
	})

	It("should load a YAML file", func() {
		path := writeFile(dir, "hypercube.yaml", `
dimension: 3
output_dir: /tmp/out
log_level: debug
monitor:
  enabled: true
  port: 8080
record:
  enabled: true
  path: run1
`)

		cfg, err := config.Load(path)

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Dimension).To(Equal(3))
		Expect(cfg.OutputDir).To(Equal("/tmp/out"))
		Expect(cfg.LogLevel).To(Equal("debug"))
		Expect(cfg.Monitor).To(Equal(config.Monitor{Enabled: true, Port: 8080}))
		Expect(cfg.Record).To(Equal(config.Record{Enabled: true, Path: "run1"}))
		Expect(cfg.ChannelCapacity).To(Equal(config.Default().ChannelCapacity))
		Expect(cfg.Validate()).To(Succeed())
	})

	It("should reject unknown keys", func() {
		path := writeFile(dir, "hypercube.yaml", "dimensions: 3\n")

		_, err := config.Load(path)

		Expect(err).To(HaveOccurred())
	})

	It("should accept an empty file", func() {
		cfg := config.Default()

		Expect(cfg.Decode(strings.NewReader("\n"))).To(Succeed())
		Expect(cfg).To(Equal(config.Default()))
	})

	It("should fail on a missing file", func() {
		_, err := config.Load(filepath.Join(dir, "missing.yaml"))

		Expect(err).To(HaveOccurred())
	})

	It("should let the environment override the file", func() {
		path := writeFile(dir, "hypercube.yaml", "dimension: 3\n")
		setenv("HYPERCUBE_DIMENSION", "5")
		setenv("HYPERCUBE_MONITOR", "true")
		setenv("HYPERCUBE_RECORD_PATH", "from-env")
		setenv("HYPERCUBE_SEED", "1234")

		cfg, err := config.Load(path)

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Seed).To(Equal(uint64(1234)))
		Expect(cfg.Dimension).To(Equal(5))
		Expect(cfg.Monitor.Enabled).To(BeTrue())
		Expect(cfg.Record.Path).To(Equal("from-env"))
	})

	It("should report malformed environment values", func() {
		setenv("HYPERCUBE_MONITOR_PORT", "eighty")

		_, err := config.Load("")

		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("HYPERCUBE_MONITOR_PORT"))
	})

	It("should load .env files without overriding the environment", func() {
		path := writeFile(dir, ".env",
			"HYPERCUBE_LOG_LEVEL=warn\nHYPERCUBE_OUTPUT_DIR=from-dotenv\n")
		DeferCleanup(os.Unsetenv, "HYPERCUBE_LOG_LEVEL")
		setenv("HYPERCUBE_OUTPUT_DIR", "from-env")

		Expect(config.LoadDotEnv(path, filepath.Join(dir, "missing"))).To(Succeed())

		cfg, err := config.Load("")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.LogLevel).To(Equal("warn"))
		Expect(cfg.OutputDir).To(Equal("from-env"))
	})

	It("should skip when no .env file exists", func() {
		Expect(config.LoadDotEnv(filepath.Join(dir, "missing"))).To(Succeed())
	})

	It("should validate", func() {
		cfg := config.Default()
		Expect(cfg.Validate()).NotTo(Succeed())

		cfg.Dimension = 2
		Expect(cfg.Validate()).To(Succeed())

		cfg.LogLevel = "loud"
		Expect(cfg.Validate()).NotTo(Succeed())

		cfg.LogLevel = "trace"
		level, err := cfg.Level()
		Expect(err).NotTo(HaveOccurred())
		Expect(level).To(Equal(logrus.TraceLevel))

		cfg.Monitor.Port = 70000
		Expect(cfg.Validate()).NotTo(Succeed())

		cfg.Monitor.Port = 0
		cfg.MailboxCapacity = -1
		Expect(cfg.Validate()).NotTo(Succeed())
	})

	It("should reject a mailbox that cannot hold a command", func() {
		cfg := config.Default()
		cfg.Dimension = 2
		Expect(cfg.Validate()).To(Succeed())

		cfg.MailboxCapacity = 0
		Expect(cfg.Validate()).To(MatchError(ContainSubstring("mailbox")))

		cfg.MailboxCapacity = 1
		Expect(cfg.Validate()).To(Succeed())
	})
})
