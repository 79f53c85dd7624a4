// Package config holds the command-line run configuration: defaults, the optional
// YAML run file, and validation. Flags are bound in cmd/cli on top of a loaded Config.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Metric names accepted by --metric.
const (
	MetricViSQOL  = "visqol"
	MetricCommand = "command"
)

// Config holds every setting a subcommand can take. A run file sets any subset of
// these; flags given on the command line win over the file.
type Config struct {
	// Global.
	LogFile string `yaml:"log_file"`
	TempDir string `yaml:"temp_dir"`
	DBPath  string `yaml:"db"` // Score ledger; empty keeps it in the scores CSV.
	Verbose bool   `yaml:"verbose"`

	// Sweep.
	CodecSet   string      `yaml:"codec_set"`
	Codecs     StringList  `yaml:"codecs"` // Restrict the set; empty runs every codec.
	Catalog    string      `yaml:"catalog"`
	RefRoot    string      `yaml:"refs"`
	OutputRoot string      `yaml:"out"`
	Subset     string      `yaml:"subset"`
	Bitrates   BitrateList `yaml:"bitrates"`
	Smoke      bool        `yaml:"smoke"`
	SmokeCount int         `yaml:"smoke_count"` // Default: 10.
	Bandwidth  bool        `yaml:"bandwidth"`

	// Shared by sweep and score.
	Workers   int           `yaml:"workers"`   // Default: 0, meaning one per CPU.
	Timeout   time.Duration `yaml:"timeout"`   // Default: 5m per job or pair.
	Tolerance float64       `yaml:"tolerance"` // Default: 0.25 s of output duration drift.

	// Score.
	Metadata   string   `yaml:"metadata"`
	Metric     string   `yaml:"metric"` // Default: "visqol".
	MetricBin  string   `yaml:"metric_bin"`
	MetricArgs []string `yaml:"metric_args"`
	MetricName string   `yaml:"metric_name"` // Command metric label; default: the binary's name.
	Speech     bool     `yaml:"speech"`
	Model      string   `yaml:"model"`
	Force      bool     `yaml:"force"`
}

// DefaultConfig returns the base every run starts from before the run file and flags.
func DefaultConfig() Config {
	return Config{
		TempDir:    os.TempDir(),
		OutputRoot: "out",
		Subset:     "all",
		SmokeCount: 10,
		Timeout:    5 * time.Minute,
		Tolerance:  0.25,
		Metric:     MetricViSQOL,
	}
}

// Load overlays the YAML run file at path onto cfg. Unknown keys are errors.
func Load(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening run config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parsing run config %s: %w", path, err)
	}
	return nil
}

// Validate checks the settings every subcommand shares.
func (c *Config) Validate() error {
	var errs []error
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", c.Timeout))
	}
	if c.Tolerance < 0 {
		errs = append(errs, fmt.Errorf("tolerance must not be negative, got %g", c.Tolerance))
	}
	switch c.Metric {
	case MetricViSQOL, MetricCommand:
	default:
		errs = append(errs, fmt.Errorf("invalid metric %q (use %q or %q)", c.Metric, MetricViSQOL, MetricCommand))
	}
	return errors.Join(errs...)
}

// ValidateSweep additionally requires what a sweep needs.
func (c *Config) ValidateSweep() error {
	errs := []error{c.Validate()}
	if c.CodecSet == "" {
		errs = append(errs, errors.New("a codec set is required (--codecs)"))
	}
	if c.Catalog == "" {
		errs = append(errs, errors.New("a catalog is required (--catalog)"))
	}
	if len(c.Bitrates) == 0 {
		errs = append(errs, errors.New("at least one bitrate is required (--bitrate)"))
	}
	if c.Smoke && c.SmokeCount <= 0 {
		errs = append(errs, fmt.Errorf("smoke count must be positive, got %d", c.SmokeCount))
	}
	if c.OutputRoot == "" {
		errs = append(errs, errors.New("an output root is required (--out)"))
	}
	return errors.Join(errs...)
}

// ValidateScore additionally requires what scoring needs.
func (c *Config) ValidateScore() error {
	errs := []error{c.Validate()}
	if c.Metadata == "" {
		errs = append(errs, errors.New("a metadata file is required (--metadata)"))
	}
	if c.Metric == MetricCommand && c.MetricBin == "" {
		errs = append(errs, errors.New("the command metric needs --metric-bin"))
	}
	return errors.Join(errs...)
}

// BitrateList is a list of bitrates in bits per second. As a flag or YAML scalar it
// reads a comma list; "32000", "32k" and "13.2k" are all accepted.
type BitrateList []int

// ParseBitrates reads a comma separated bitrate list.
func ParseBitrates(s string) (BitrateList, error) {
	var out BitrateList
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b, err := parseBitrate(part)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no bitrates in %q", s)
	}
	return out, nil
}

func parseBitrate(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("bitrate %d must be positive", n)
		}
		return n, nil
	}
	v, unit, err := humanize.ParseSI(strings.TrimSuffix(strings.TrimSuffix(s, "bps"), "b"))
	if err != nil || unit != "" {
		return 0, fmt.Errorf("invalid bitrate %q", s)
	}
	n := math.Round(v)
	if n <= 0 || math.Abs(v-n) > 1e-6 {
		return 0, fmt.Errorf("invalid bitrate %q", s)
	}
	return int(n), nil
}

func (b *BitrateList) String() string {
	if b == nil {
		return ""
	}
	parts := make([]string, len(*b))
	for i, v := range *b {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

// Set replaces the list, so a flag overrides what the run file gave.
func (b *BitrateList) Set(s string) error {
	list, err := ParseBitrates(s)
	if err != nil {
		return err
	}
	*b = list
	return nil
}

// UnmarshalYAML accepts either a sequence or a comma separated scalar.
func (b *BitrateList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		return b.Set(node.Value)
	case yaml.SequenceNode:
		var list BitrateList
		for _, item := range node.Content {
			v, err := parseBitrate(strings.TrimSpace(item.Value))
			if err != nil {
				return fmt.Errorf("line %d: %w", item.Line, err)
			}
			list = append(list, v)
		}
		*b = list
		return nil
	}
	return fmt.Errorf("line %d: bitrates must be a list or a comma separated string", node.Line)
}

// StringList is a comma separated string flag.
type StringList []string

func (s *StringList) String() string {
	if s == nil {
		return ""
	}
	return strings.Join(*s, ",")
}

func (s *StringList) Set(v string) error {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*s = out
	return nil
}
