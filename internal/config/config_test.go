package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestParseBitrates(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    BitrateList
		wantErr bool
	}{
		{"single", "32000", BitrateList{32000}, false},
		{"list", "16000, 32000,64000", BitrateList{16000, 32000, 64000}, false},
		{"si suffix", "32k", BitrateList{32000}, false},
		{"fractional si", "13.2k", BitrateList{13200}, false},
		{"bps suffix", "24.4kbps", BitrateList{24400}, false},
		{"empty parts ignored", "8000,,", BitrateList{8000}, false},
		{"zero", "0", nil, true},
		{"negative", "-32000", nil, true},
		{"garbage", "fast", nil, true},
		{"sub-bit", "1.5", nil, true},
		{"empty", "", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBitrates(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseBitrates(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseBitrates(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestBitrateListFlag(t *testing.T) {
	b := BitrateList{8000}
	if err := b.Set("32k,64k"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := b.String(); got != "32000,64000" {
		t.Errorf("String() = %q, want %q", got, "32000,64000")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"negative workers", func(c *Config) { c.Workers = -1 }, "workers"},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, "timeout"},
		{"negative tolerance", func(c *Config) { c.Tolerance = -0.1 }, "tolerance"},
		{"unknown metric", func(c *Config) { c.Metric = "pesq" }, "invalid metric"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateSweep(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.ValidateSweep()
	if err == nil {
		t.Fatal("expected errors for an empty sweep config")
	}
	for _, want := range []string{"codec set", "catalog", "bitrate"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}

	cfg.CodecSet = "set.yaml"
	cfg.Catalog = "catalog.csv"
	cfg.Bitrates = BitrateList{32000}
	if err := cfg.ValidateSweep(); err != nil {
		t.Fatalf("ValidateSweep() = %v", err)
	}

	cfg.Smoke = true
	cfg.SmokeCount = 0
	if err := cfg.ValidateSweep(); err == nil {
		t.Error("smoke with zero count should fail")
	}
}

func TestValidateScore(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.ValidateScore(); err == nil {
		t.Fatal("expected missing metadata error")
	}
	cfg.Metadata = "metadata_x.csv"
	if err := cfg.ValidateScore(); err != nil {
		t.Fatalf("ValidateScore() = %v", err)
	}
	cfg.Metric = MetricCommand
	if err := cfg.ValidateScore(); err == nil {
		t.Error("command metric without a binary should fail")
	}
}

func writeRunFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeRunFile(t, `codec_set: sets/lc3.yaml
catalog: catalog.csv
bitrates: [16k, 32000]
codecs: [lc3, opus]
timeout: 90s
smoke: true
`)
	cfg := DefaultConfig()
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CodecSet != "sets/lc3.yaml" || cfg.Catalog != "catalog.csv" {
		t.Errorf("paths not loaded: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.Bitrates, BitrateList{16000, 32000}) {
		t.Errorf("Bitrates = %v", cfg.Bitrates)
	}
	if !reflect.DeepEqual(cfg.Codecs, StringList{"lc3", "opus"}) {
		t.Errorf("Codecs = %v", cfg.Codecs)
	}
	if cfg.Timeout != 90*time.Second {
		t.Errorf("Timeout = %s, want 90s", cfg.Timeout)
	}
	if !cfg.Smoke || cfg.SmokeCount != 10 {
		t.Errorf("smoke settings = %v/%d, want true/10", cfg.Smoke, cfg.SmokeCount)
	}
	if cfg.Subset != "all" || cfg.Metric != MetricViSQOL {
		t.Errorf("defaults were lost: subset %q metric %q", cfg.Subset, cfg.Metric)
	}
}

func TestLoadScoreSettings(t *testing.T) {
	path := writeRunFile(t, `metadata: out/metadata_codecs=x-subset=all.csv
metric: command
metric_bin: /opt/pesq/bin/pesq-cli
metric_name: pesq-wb
metric_args: ["+16000", "{ref}", "{deg}"]
`)
	cfg := DefaultConfig()
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MetricName != "pesq-wb" {
		t.Errorf("MetricName = %q, want pesq-wb", cfg.MetricName)
	}
	if !reflect.DeepEqual(cfg.MetricArgs, []string{"+16000", "{ref}", "{deg}"}) {
		t.Errorf("MetricArgs = %v", cfg.MetricArgs)
	}
	if err := cfg.ValidateScore(); err != nil {
		t.Fatalf("ValidateScore() = %v", err)
	}
}

func TestLoadScalarBitrates(t *testing.T) {
	cfg := DefaultConfig()
	if err := Load(writeRunFile(t, "bitrates: \"13.2k,24.4k\"\n"), &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(cfg.Bitrates, BitrateList{13200, 24400}) {
		t.Errorf("Bitrates = %v", cfg.Bitrates)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	cfg := DefaultConfig()
	err := Load(writeRunFile(t, "bitrate: 32000\n"), &cfg)
	if err == nil {
		t.Fatal("expected an error for an unknown key")
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg := DefaultConfig()
	if err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &cfg); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
