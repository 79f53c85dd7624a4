package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/himanishpuri/CodecSweep/internal/config"
	"github.com/himanishpuri/CodecSweep/pkg/codecsweep"
	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/layout"
	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/score"
	"github.com/himanishpuri/CodecSweep/pkg/logger"
)

// Global flags
var (
	configPath string
	logFile    string
	tempDir    string
	dbPath     string
	verbose    bool
)

func init() {
	// Global flags that can be used with any command
	flag.StringVar(&configPath, "config", getEnvOrDefault("CODECSWEEP_CONFIG", ""), "YAML run file; flags override its values")
	flag.StringVar(&logFile, "log", "", "Also append log lines to this file")
	flag.StringVar(&tempDir, "temp", getEnvOrDefault("CODECSWEEP_TEMP_DIR", os.TempDir()), "Directory for intermediate files")
	flag.StringVar(&dbPath, "db", getEnvOrDefault("CODECSWEEP_DB_PATH", ""), "SQLite score ledger (default: keep the ledger in the scores CSV)")
	flag.BoolVar(&verbose, "verbose", false, "Log external commands and per-job detail")
}

var errUnknownCommand = errors.New("unknown command")

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// loadConfig layers defaults, environment, the run file and explicitly given global flags.
func loadConfig() (config.Config, error) {
	cfg := config.DefaultConfig()
	cfg.TempDir = tempDir
	cfg.DBPath = dbPath
	cfg.OutputRoot = getEnvOrDefault("CODECSWEEP_OUT", cfg.OutputRoot)

	if configPath != "" {
		if err := config.Load(configPath, &cfg); err != nil {
			return cfg, err
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "log":
			cfg.LogFile = logFile
		case "temp":
			cfg.TempDir = tempDir
		case "db":
			cfg.DBPath = dbPath
		case "verbose":
			cfg.Verbose = verbose
		}
	})
	return cfg, nil
}

// createService creates a codecsweep service with configured options
func createService(cfg config.Config) (codecsweep.Service, error) {
	return codecsweep.NewService(
		codecsweep.WithLogger(logger.GetLogger().With(flag.Arg(0))),
		codecsweep.WithTempDir(cfg.TempDir),
		codecsweep.WithWorkers(cfg.Workers),
		codecsweep.WithTimeout(cfg.Timeout),
		codecsweep.WithTolerance(cfg.Tolerance),
		codecsweep.WithBandwidth(cfg.Bandwidth),
		codecsweep.WithDBPath(cfg.DBPath),
	)
}

func main() {
	flag.Usage = printUsage
	flag.Parse()

	// Initialize logger
	log := logger.GetLogger()

	if flag.NArg() < 1 {
		printBanner()
		printUsage()
		os.Exit(1)
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	if cfg.Verbose {
		log.SetLevel(logger.DEBUG)
	}
	if cfg.LogFile != "" {
		if err := log.OpenFile(cfg.LogFile); err != nil {
			fmt.Printf("❌ Failed to open log file: %v\n", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	command := flag.Arg(0)
	args := flag.Args()[1:]
	log.Infof("Executing command: %s", command)

	switch command {
	case "sweep":
		err = handleSweep(ctx, &cfg, args)
	case "score":
		err = handleScore(ctx, &cfg, args)
	case "anchors":
		err = handleAnchors(ctx, &cfg, args)
	case "spectrogram":
		err = handleSpectrogram(ctx, &cfg, args)
	case "catalog":
		err = handleCatalog(ctx, &cfg, args)
	case "check":
		err = handleCheck(&cfg, args)
	case "ledger":
		err = handleLedger(&cfg, args)
	case "help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		err = errUnknownCommand
	}

	interrupted := ctx.Err() != nil
	stop()
	if code := finish(log, command, err, interrupted); code != 0 {
		os.Exit(code)
	}
}

// finish reports how command ended and returns the exit code. The log file is
// closed last so the failure line reaches it.
func finish(log *logger.Logger, command string, err error, interrupted bool) int {
	defer log.Close()

	if interrupted {
		fmt.Println("\n⚠️  Interrupted; finished jobs are recorded and a rerun resumes from them")
		log.Warnf("%s interrupted", command)
		return 1
	}
	if err != nil {
		if !errors.Is(err, errUnknownCommand) {
			fmt.Printf("\n❌ %s failed: %v\n", command, err)
			log.Errorf("%s failed: %v", command, err)
		}
		return 1
	}
	return 0
}

func printBanner() {
	banner := `
  ____          _            ____
 / ___|___   __| | ___  ___ / ___|_      _____  ___ _ __
| |   / _ \ / _' |/ _ \/ __|\___ \ \ /\ / / _ \/ _ \ '_ \
| |__| (_) | (_| |  __/ (__  ___) \ V  V /  __/  __/ |_) |
 \____\___/ \__,_|\___|\___||____/ \_/\_/ \___|\___| .__/
                                                   |_|
        Codec degradation sweeps and quality scoring
`
	fmt.Println(banner)
}

func handleSweep(ctx context.Context, cfg *config.Config, args []string) error {
	sweepCmd := flag.NewFlagSet("sweep", flag.ExitOnError)
	sweepCmd.StringVar(&cfg.CodecSet, "codecs", cfg.CodecSet, "Codec-set YAML file (required)")
	sweepCmd.Var(&cfg.Codecs, "only", "Comma separated codec names to run from the set")
	sweepCmd.StringVar(&cfg.Catalog, "catalog", cfg.Catalog, "Reference catalog CSV (required)")
	sweepCmd.StringVar(&cfg.RefRoot, "refs", cfg.RefRoot, "Root that relative catalog paths resolve against")
	sweepCmd.Var(&cfg.Bitrates, "bitrate", "Comma separated bitrates in bps, e.g. 32000,64k (required)")
	sweepCmd.StringVar(&cfg.Subset, "subset", cfg.Subset, "Reference subset: all, narrowband, wideband, superwideband, fullband or one from the codec set")
	sweepCmd.BoolVar(&cfg.Smoke, "smoke", cfg.Smoke, "Process only the first references of the catalog")
	sweepCmd.IntVar(&cfg.SmokeCount, "smoke-count", cfg.SmokeCount, "References processed in smoke mode")
	sweepCmd.StringVar(&cfg.OutputRoot, "out", cfg.OutputRoot, "Output root directory")
	sweepCmd.StringVar(&cfg.Metadata, "metadata", cfg.Metadata, "Metadata CSV (default: derived from the output layout)")
	sweepCmd.IntVar(&cfg.Workers, "workers", cfg.Workers, "Parallel jobs (0 = one per CPU)")
	sweepCmd.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Per-job time limit")
	sweepCmd.Float64Var(&cfg.Tolerance, "tolerance", cfg.Tolerance, "Allowed output duration drift in seconds")
	sweepCmd.BoolVar(&cfg.Bandwidth, "bandwidth", cfg.Bandwidth, "Estimate the bandwidth of every output")
	sweepCmd.Parse(args)

	if err := cfg.ValidateSweep(); err != nil {
		fmt.Println("Usage: codecsweep sweep --codecs <set.yaml> --catalog <catalog.csv> --bitrate <bps>[,<bps>...]")
		return err
	}

	fmt.Println("\n🔧 Initializing service...")
	svc, err := createService(*cfg)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	defer svc.Close()

	fmt.Printf("🎛️  Sweeping %s over %s at %s bps\n", cfg.CodecSet, cfg.Catalog, cfg.Bitrates.String())
	if cfg.Smoke {
		fmt.Printf("   Smoke mode: first %d references\n", cfg.SmokeCount)
	}

	report, err := svc.Sweep(ctx, codecsweep.SweepRequest{
		CodecSetPath: cfg.CodecSet,
		Codecs:       cfg.Codecs,
		CatalogPath:  cfg.Catalog,
		RefRoot:      cfg.RefRoot,
		Subset:       cfg.Subset,
		Bitrates:     cfg.Bitrates,
		Smoke:        cfg.Smoke,
		SmokeCount:   cfg.SmokeCount,
		OutputRoot:   cfg.OutputRoot,
		MetadataPath: cfg.Metadata,
	})
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(report.String())
	if report.Stats.Failed > 0 {
		fmt.Printf("⚠️  %d jobs failed; see error_kind and reason in %s\n", report.Stats.Failed, report.MetadataPath)
	} else {
		fmt.Println("✅ Sweep complete")
	}
	return nil
}

func handleScore(ctx context.Context, cfg *config.Config, args []string) error {
	scoreCmd := flag.NewFlagSet("score", flag.ExitOnError)
	scoreCmd.StringVar(&cfg.Metadata, "metadata", cfg.Metadata, "Metadata CSV written by sweep (required)")
	scoreCmd.StringVar(&cfg.Metric, "metric", cfg.Metric, "Metric: visqol or command")
	scoreCmd.StringVar(&cfg.MetricBin, "metric-bin", cfg.MetricBin, "Metric binary (default for visqol: visqol on PATH)")
	scoreCmd.Var((*config.StringList)(&cfg.MetricArgs), "metric-args", "Comma separated arguments for the command metric; {ref} and {deg} are substituted")
	scoreCmd.StringVar(&cfg.MetricName, "metric-name", cfg.MetricName, "Name recorded for the command metric (default: the binary's name)")
	scoreCmd.BoolVar(&cfg.Speech, "speech", cfg.Speech, "Run ViSQOL in speech mode")
	scoreCmd.StringVar(&cfg.Model, "model", cfg.Model, "ViSQOL similarity-to-quality model file")
	scoreCmd.BoolVar(&cfg.Force, "force", cfg.Force, "Rescore pairs that already have a score")
	scoreCmd.IntVar(&cfg.Workers, "workers", cfg.Workers, "Parallel pairs (0 = one per CPU)")
	scoreCmd.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Per-pair time limit")
	scoreCmd.Parse(args)

	if err := cfg.ValidateScore(); err != nil {
		fmt.Println("Usage: codecsweep score --metadata <metadata.csv> [--metric visqol|command] [--metric-bin <path>]")
		return err
	}

	fmt.Println("\n🔧 Initializing service...")
	svc, err := createService(*cfg)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	defer svc.Close()

	fmt.Printf("📏 Scoring outputs listed in %s with %s\n", cfg.Metadata, cfg.Metric)
	report, err := svc.Score(ctx, scoreRequest(*cfg))
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(report.String())
	if len(report.Summaries) > 0 {
		fmt.Println()
		fmt.Print(score.FormatSummary(report.Summaries))
	}
	if report.Failed > 0 {
		fmt.Printf("⚠️  %d pairs failed; see %s\n", report.Failed, report.ScoresPath)
	} else {
		fmt.Println("✅ Scoring complete")
	}
	return nil
}

func scoreRequest(cfg config.Config) codecsweep.ScoreRequest {
	return codecsweep.ScoreRequest{
		MetadataPath: cfg.Metadata,
		Metric:       cfg.Metric,
		MetricBin:    cfg.MetricBin,
		MetricArgs:   cfg.MetricArgs,
		MetricName:   cfg.MetricName,
		Speech:       cfg.Speech,
		Model:        cfg.Model,
		Force:        cfg.Force,
	}
}

func handleAnchors(ctx context.Context, cfg *config.Config, args []string) error {
	anchorsCmd := flag.NewFlagSet("anchors", flag.ExitOnError)
	anchorsCmd.StringVar(&cfg.Metadata, "metadata", cfg.Metadata, "Metadata CSV whose references get anchors (required)")
	anchorsCmd.Parse(args)

	if cfg.Metadata == "" {
		fmt.Println("Usage: codecsweep anchors --metadata <metadata.csv>")
		return errors.New("--metadata is required")
	}

	svc, err := createService(*cfg)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	defer svc.Close()

	fmt.Println("🎚️  Writing 3.5 kHz and 7 kHz low-pass anchors...")
	report, err := svc.Anchors(ctx, cfg.Metadata)
	if err != nil {
		return err
	}
	printArtifacts("anchors", report)
	return nil
}

func handleSpectrogram(ctx context.Context, cfg *config.Config, args []string) error {
	specCmd := flag.NewFlagSet("spectrogram", flag.ExitOnError)
	specCmd.StringVar(&cfg.Metadata, "metadata", cfg.Metadata, "Metadata CSV whose outputs get spectrograms (required)")
	specCmd.Parse(args)

	if cfg.Metadata == "" {
		fmt.Println("Usage: codecsweep spectrogram --metadata <metadata.csv>")
		return errors.New("--metadata is required")
	}

	svc, err := createService(*cfg)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	defer svc.Close()

	fmt.Println("🖼️  Rendering spectrograms...")
	report, err := svc.Spectrograms(ctx, cfg.Metadata)
	if err != nil {
		return err
	}
	printArtifacts("spectrograms", report)
	return nil
}

func printArtifacts(what string, r codecsweep.ArtifactReport) {
	fmt.Printf("\n✅ %d %s written, %d already present", r.Written, what, r.Skipped)
	if r.Failed > 0 {
		fmt.Printf(", ⚠️  %d failed", r.Failed)
	}
	fmt.Println()
	for _, p := range r.Paths {
		fmt.Printf("   %s\n", p)
	}
}

func handleCatalog(ctx context.Context, cfg *config.Config, args []string) error {
	catalogCmd := flag.NewFlagSet("catalog", flag.ExitOnError)
	dir := catalogCmd.String("dir", cfg.RefRoot, "Directory of wav/flac references to scan (required)")
	dataset := catalogCmd.String("dataset", "", "Dataset tag written to every row")
	output := catalogCmd.String("output", "catalog.csv", "Catalog CSV to write")
	catalogCmd.Parse(args)

	if *dir == "" {
		fmt.Println("Usage: codecsweep catalog --dir <root> [--dataset <tag>] [--output catalog.csv]")
		return errors.New("--dir is required")
	}

	svc, err := createService(*cfg)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	defer svc.Close()

	fmt.Printf("🔍 Probing audio under %s...\n", *dir)
	start := time.Now()
	refs, err := svc.Catalog(ctx, *dir, *dataset, *output)
	if err != nil {
		return err
	}
	fmt.Printf("\n✅ Cataloged %d references in %s\n", len(refs), time.Since(start).Round(time.Millisecond))
	fmt.Printf("   Written to %s\n", *output)
	return nil
}

func handleCheck(cfg *config.Config, args []string) error {
	checkCmd := flag.NewFlagSet("check", flag.ExitOnError)
	checkCmd.StringVar(&cfg.CodecSet, "codecs", cfg.CodecSet, "Codec-set YAML file to validate (required)")
	checkCmd.Parse(args)

	if cfg.CodecSet == "" {
		fmt.Println("Usage: codecsweep check --codecs <set.yaml>")
		return errors.New("--codecs is required")
	}

	svc, err := createService(*cfg)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	defer svc.Close()

	set, err := svc.Check(cfg.CodecSet)
	if err != nil {
		return err
	}

	fmt.Printf("✅ Codec set %q is ready\n\n", set.Name)
	fmt.Printf("%-16s %-10s %s\n", "CODEC", "KIND", "BITRATES")
	fmt.Println("-----------------------------------------------------------")
	for _, e := range set.Entries {
		fmt.Printf("%-16s %-10s %s\n", e.Name, e.Kind, e.Bitrates)
	}
	if len(set.Subsets) > 0 {
		fmt.Println("\nCustom subsets:")
		for name, rates := range set.Subsets {
			fmt.Printf("   %s: %v\n", name, rates)
		}
	}
	planner := layout.Planner{Root: cfg.OutputRoot, CodecSet: set.Name, Subset: cfg.Subset}
	fmt.Printf("\nA sweep of this set writes its metadata to %s\n", planner.MetadataPath())
	return nil
}

func handleLedger(cfg *config.Config, args []string) error {
	ledgerCmd := flag.NewFlagSet("ledger", flag.ExitOnError)
	ledgerCmd.StringVar(&cfg.Metadata, "metadata", cfg.Metadata, "List the scores of this metadata CSV instead of the runs")
	metric := ledgerCmd.String("metric", "", "Only list scores of this metric")
	ledgerCmd.Parse(args)

	if cfg.DBPath == "" {
		fmt.Println("Usage: codecsweep --db <ledger.sqlite3> ledger [--metadata <metadata.csv>] [--metric NAME]")
		return codecsweep.ErrNoLedger
	}

	svc, err := createService(*cfg)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	defer svc.Close()

	if cfg.Metadata != "" {
		scores, err := svc.Scores(cfg.Metadata, *metric)
		if err != nil {
			return err
		}
		fmt.Printf("📒 %d scores for %s\n\n", len(scores), cfg.Metadata)
		fmt.Printf("%-16s %8s %-10s %8s  %s\n", "CODEC", "BITRATE", "METRIC", "SCORE", "OUTPUT")
		for _, r := range scores {
			value := fmt.Sprintf("%.4f", r.Score)
			if !r.Success {
				value = string(r.ErrorKind)
			}
			fmt.Printf("%-16s %8d %-10s %8s  %s\n", r.Codec, r.Bitrate, r.Metric, value, r.DegradedPath)
		}
		return nil
	}

	for _, kind := range []string{"sweep", "score"} {
		runs, err := svc.Runs(kind)
		if err != nil {
			return err
		}
		fmt.Printf("\n📒 %d %s runs\n", len(runs), kind)
		for _, r := range runs {
			fmt.Printf("   %s  %s  %d attempted, %d failed, %s  %s\n",
				r.StartedAt.Local().Format("2006-01-02 15:04"), r.ID, r.Attempted, r.Failed,
				r.FinishedAt.Sub(r.StartedAt).Round(time.Second), r.MetadataPath)
		}
	}
	return nil
}

func printUsage() {
	usage := `
Usage: codecsweep [global flags] <command> [flags]

Commands:
  sweep        Encode and decode every reference with every codec at every bitrate
               --codecs <set.yaml> --catalog <catalog.csv> --bitrate 32000[,64000]
               [--refs DIR] [--only lc3,opus] [--subset fullband] [--smoke] [--smoke-count 10]
               [--out DIR] [--workers N] [--timeout 5m] [--tolerance 0.25] [--bandwidth]

  score        Score every successful output of a sweep against its reference
               --metadata <metadata.csv> [--metric visqol|command] [--metric-bin PATH]
               [--metric-args '{ref},{deg}'] [--metric-name NAME] [--speech] [--model FILE] [--force]

  anchors      Write 3.5 kHz and 7 kHz low-pass anchors for the references of a sweep
               --metadata <metadata.csv>

  spectrogram  Render PNG spectrograms for the outputs of a sweep
               --metadata <metadata.csv>

  catalog      Probe a directory of wav/flac files and write the catalog CSV
               --dir DIR [--dataset TAG] [--output catalog.csv]

  check        Validate a codec set and the tools it needs
               --codecs <set.yaml>

  ledger       List recorded runs, or the scores of one sweep, from the --db ledger
               [--metadata <metadata.csv>] [--metric NAME]

Global Flags:
  --config FILE  YAML run file (env: CODECSWEEP_CONFIG)
  --log FILE     Append log lines to FILE
  --temp DIR     Directory for intermediate files (env: CODECSWEEP_TEMP_DIR)
  --db FILE      SQLite score ledger (env: CODECSWEEP_DB_PATH)
  --verbose      Debug logging, including every external command

Environment:
  LOG_LEVEL        DEBUG, INFO, WARN or ERROR
  CODECSWEEP_OUT   Default output root

Examples:
  codecsweep sweep --codecs sets/lc3.yaml --catalog catalog.csv --refs /data/refs --bitrate 16k,32k --smoke
  codecsweep score --metadata out/metadata_codecs=lc3-subset=all.csv
  codecsweep --config run.yaml sweep
`
	fmt.Println(usage)
}
