package codecsweep

import (
	"os"
	"time"

	"github.com/himanishpuri/CodecSweep/internal/runner"
	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/registry"
	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/storage"
)

type Config struct {
	TempDir          string
	Workers          int
	Timeout          time.Duration // Per job and per scored pair
	Tolerance        float64       // Seconds of output duration drift allowed
	MeasureBandwidth bool
	DBPath           string // Score ledger; empty keeps the ledger in the scores file
	Logger           Logger
	Runner           runner.Runner
	Registry         *registry.Registry
	ScoreDB          *storage.DBClient
}

type Option func(*Config)

func WithTempDir(dir string) Option {
	return func(c *Config) {
		c.TempDir = dir
	}
}

func WithWorkers(n int) Option {
	return func(c *Config) {
		c.Workers = n
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

func WithTolerance(seconds float64) Option {
	return func(c *Config) {
		c.Tolerance = seconds
	}
}

func WithBandwidth(on bool) Option {
	return func(c *Config) {
		c.MeasureBandwidth = on
	}
}

func WithDBPath(path string) Option {
	return func(c *Config) {
		c.DBPath = path
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

// WithRunner replaces process execution, for tests and dry runs.
func WithRunner(r runner.Runner) Option {
	return func(c *Config) {
		c.Runner = r
	}
}

// WithRegistry supplies a registry with custom codec kinds.
func WithRegistry(r *registry.Registry) Option {
	return func(c *Config) {
		c.Registry = r
	}
}

// WithScoreDB uses an already open ledger. The service does not close it.
func WithScoreDB(db *storage.DBClient) Option {
	return func(c *Config) {
		c.ScoreDB = db
	}
}

func defaultConfig() *Config {
	return &Config{
		TempDir: os.TempDir(),
		Runner:  runner.Exec{},
	}
}
