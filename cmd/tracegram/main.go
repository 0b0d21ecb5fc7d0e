// Command tracegram mines grammars from GUI exploration traces and
// generates new inputs from them.
//
// Usage:
//
//	tracegram extract [options] <model-dir>
//	tracegram merge [options] <grammar-file>...
//	tracegram fuzz [options] <grammar-file>
//	tracegram targets [options] <grammar-file>
//	tracegram validate <grammar-file>...
//	tracegram format [options] <grammar-file>...
//	tracegram stats <grammar-file>...
//	tracegram version
//
// Extract Command:
//
//	Mine a grammar from the trace of a model directory.
//
//	Options:
//	  -out string        Output directory (default ".")
//	  -coverage string   Directory of per-action coverage files
//	  -translate         Shorten state and widget ids (default true)
//	  -app string        Application package (default: from the model path)
//
// Fuzz Command:
//
//	Generate inputs with every seed until coverage stops growing.
//
//	Options:
//	  -config string     YAML run configuration
//	  -out string        Output directory
//	  -seeds int         Highest seed
//	  -strategy string   Fuzzing strategy: terminal, code, coverage, random
//	  -parallel int      Seeds fuzzed concurrently
//	  -metrics string    Write Prometheus metrics to this file
//
// Every command accepts -v for debug output and -q for warnings only.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/blockberries/tracegram/internal/textutil"
	"github.com/blockberries/tracegram/pkg/config"
	"github.com/blockberries/tracegram/pkg/grammar"
	"github.com/blockberries/tracegram/pkg/mining"
	"github.com/blockberries/tracegram/pkg/orchestrator"
)

// Version information, set by ldflags at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "extract", "x":
		cmdExtract(os.Args[2:])
	case "merge", "m":
		cmdMerge(os.Args[2:])
	case "fuzz", "f":
		cmdFuzz(os.Args[2:])
	case "targets", "t":
		cmdTargets(os.Args[2:])
	case "validate", "val":
		cmdValidate(os.Args[2:])
	case "format", "fmt":
		cmdFormat(os.Args[2:])
	case "stats":
		cmdStats(os.Args[2:])
	case "version":
		cmdVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Tracegram grammar miner and fuzzer

Usage:
  tracegram <command> [options] <files>...

Commands:
  extract     Mine a grammar from an exploration trace
  merge       Merge grammars mined from different runs
  fuzz        Generate inputs from a grammar
  targets     Generate inputs chasing sampled code locations
  validate    Validate grammar files
  format      Print grammar files in canonical form
  stats       Print grammar statistics
  version     Print version information
  help        Print this help message

Run 'tracegram <command> -h' for command-specific help.`)
}

// logFlags registers -v and -q on fs and returns a function applying them.
func logFlags(fs *flag.FlagSet) func() {
	verbose := fs.Bool("v", false, "Verbose (debug) output")
	quiet := fs.Bool("q", false, "Only print warnings and errors")
	return func() {
		switch {
		case *verbose:
			logrus.SetLevel(logrus.DebugLevel)
		case *quiet:
			logrus.SetLevel(logrus.WarnLevel)
		}
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func parseArgs(fs *flag.FlagSet, args []string, minArgs int, what string) {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < minArgs {
		fmt.Fprintf(os.Stderr, "Error: no %s\n", what)
		fs.Usage()
		os.Exit(1)
	}
}

func usage(fs *flag.FlagSet, text string) {
	fs.Usage = func() {
		fmt.Println(text + "\n\nOptions:")
		fs.PrintDefaults()
	}
}

// loadConfig returns the configuration at path, or the defaults.
func loadConfig(path string) config.Config {
	if path == "" {
		return config.Default()
	}
	cfg, err := config.Load(path)
	if err != nil {
		fail(err)
	}
	return cfg
}

func loadGrammar(path string) *grammar.Grammar {
	g, err := grammar.LoadFile(path)
	if err != nil {
		fail(err)
	}
	return g
}

func cmdExtract(args []string) {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	outDir := fs.String("out", ".", "Output directory")
	coverageDir := fs.String("coverage", "", "Directory of per-action coverage files")
	translate := fs.Bool("translate", true, "Shorten state and widget ids to sNN/wNN")
	app := fs.String("app", "", "Application package (default: from the model path)")
	applyLog := logFlags(fs)
	usage(fs, `Usage: tracegram extract [options] <model-dir>

Mine a grammar from the exploration trace of a model directory.`)
	parseArgs(fs, args, 1, "model directory")
	applyLog()

	modelDir := fs.Arg(0)
	statesDir, err := mining.FindStatesDir(modelDir)
	if err != nil {
		fail(err)
	}

	opts := mining.DefaultOptions()
	opts.TranslateNames = *translate
	opts.Classifier = mining.NewDirClassifier(statesDir, *app)
	if *coverageDir != "" {
		index, err := mining.LoadCoverageDir(*coverageDir)
		if err != nil {
			fail(err)
		}
		opts.Coverage = index
	}

	extractor := mining.NewExtractor(opts)
	g, err := extractor.ExtractDir(modelDir)
	if err != nil {
		fail(err)
	}
	mapping, err := extractor.Mapping()
	if err != nil {
		fail(err)
	}
	if err := mining.WriteExtraction(*outDir, g, mapping); err != nil {
		fail(err)
	}

	fmt.Printf("Extracted: %s\n", filepath.Join(*outDir, mining.GrammarFile))
	fmt.Print(g.Stats())
}

func cmdMerge(args []string) {
	fs := flag.NewFlagSet("merge", flag.ExitOnError)
	outDir := fs.String("out", ".", "Output directory")
	applyLog := logFlags(fs)
	usage(fs, `Usage: tracegram merge [options] <grammar-file>...

Merge grammars mined from different exploration runs.`)
	parseArgs(fs, args, 1, "input files")
	applyLog()

	grammars := make([]*grammar.Grammar, 0, fs.NArg())
	for _, path := range fs.Args() {
		grammars = append(grammars, loadGrammar(path))
	}

	merged, report := mining.NewMerger(nil).Merge(grammars...)
	if err := merged.CheckValid(); err != nil {
		fail(err)
	}
	if err := mining.WriteMerged(*outDir, merged); err != nil {
		fail(err)
	}

	fmt.Print(report)
	fmt.Printf("Merged: %s\n", filepath.Join(*outDir, mining.MergedGrammarFile))
}

// runFlags are the run settings shared by fuzz and targets.
type runFlags struct {
	configPath    *string
	outDir        *string
	seeds         *int
	parallel      *int
	maxExpansions *int
	metricsFile   *string
}

func addRunFlags(fs *flag.FlagSet) runFlags {
	def := config.Default()
	return runFlags{
		configPath:    fs.String("config", "", "YAML run configuration"),
		outDir:        fs.String("out", def.OutputDir, "Output directory"),
		seeds:         fs.Int("seeds", def.Seeds, "Highest seed; seeds 0..N are run"),
		parallel:      fs.Int("parallel", def.Parallelism, "Seeds fuzzed concurrently"),
		maxExpansions: fs.Int("max-expansions", def.MaxExpansions, "Guided expansions per round"),
		metricsFile:   fs.String("metrics", def.MetricsFile, "Write Prometheus metrics to this file"),
	}
}

// resolve loads the configuration file and applies the flags set on the
// command line over it.
func (r runFlags) resolve(fs *flag.FlagSet, extra func(name string, cfg *config.Config)) config.Config {
	cfg := loadConfig(*r.configPath)
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "out":
			cfg.OutputDir = *r.outDir
		case "seeds":
			cfg.Seeds = *r.seeds
		case "parallel":
			cfg.Parallelism = *r.parallel
		case "max-expansions":
			cfg.MaxExpansions = *r.maxExpansions
		case "metrics":
			cfg.MetricsFile = *r.metricsFile
		default:
			if extra != nil {
				extra(f.Name, &cfg)
			}
		}
	})
	if err := cfg.Validate(); err != nil {
		fail(err)
	}
	return cfg
}

func runOptions(cfg config.Config) (orchestrator.Options, *orchestrator.Metrics) {
	opts := orchestrator.FromConfig(cfg)
	opts.Logger = logrus.StandardLogger()
	if cfg.MetricsFile == "" {
		return opts, nil
	}
	opts.Metrics = orchestrator.NewMetrics()
	return opts, opts.Metrics
}

func writeMetrics(cfg config.Config, metrics *orchestrator.Metrics) {
	if metrics == nil {
		return
	}
	if err := metrics.WriteFile(cfg.MetricsFile); err != nil {
		fail(err)
	}
}

func cmdFuzz(args []string) {
	fs := flag.NewFlagSet("fuzz", flag.ExitOnError)
	run := addRunFlags(fs)
	strategy := fs.String("strategy", config.Default().Strategy,
		"Fuzzing strategy: "+strings.Join(config.Strategies(), ", "))
	applyLog := logFlags(fs)
	usage(fs, `Usage: tracegram fuzz [options] <grammar-file>

Generate inputs with seeds 0..N until no new coverage is found.`)
	parseArgs(fs, args, 1, "grammar file")
	applyLog()

	cfg := run.resolve(fs, func(name string, cfg *config.Config) {
		if name == "strategy" {
			cfg.Strategy = *strategy
		}
	})
	opts, metrics := runOptions(cfg)

	results, err := orchestrator.NewRunner(loadGrammar(fs.Arg(0)), opts).Run(context.Background())
	if err != nil {
		fail(err)
	}
	for _, res := range results {
		fmt.Printf("Generated: %s (%d inputs, %.1f%% not covered)\n", res.File, len(res.Inputs), res.MissingPercent())
	}
	writeMetrics(cfg, metrics)
}

func cmdTargets(args []string) {
	fs := flag.NewFlagSet("targets", flag.ExitOnError)
	run := addRunFlags(fs)
	confidence := fs.Float64("confidence", config.Default().Confidence, "Sampling confidence: 0.85, 0.90, 0.95, 0.97 or 0.99")
	margin := fs.Float64("margin", config.Default().Margin, "Sampling margin of error")
	sampleSeed := fs.Int64("sample-seed", 0, "Seed of the target sampling")
	applyLog := logFlags(fs)
	usage(fs, `Usage: tracegram targets [options] <grammar-file>

Sample code locations of a grammar with coverage and generate inputs
chasing each of them.`)
	parseArgs(fs, args, 1, "grammar file")
	applyLog()

	cfg := run.resolve(fs, func(name string, cfg *config.Config) {
		switch name {
		case "confidence":
			cfg.Confidence = *confidence
		case "margin":
			cfg.Margin = *margin
		}
	})
	opts, metrics := runOptions(cfg)
	runner := orchestrator.NewRunner(loadGrammar(fs.Arg(0)), opts)

	targets, err := runner.SampleTargets(cfg.Confidence, cfg.Margin, *sampleSeed)
	if err != nil {
		fail(err)
	}
	if len(targets) == 0 {
		fail(errors.New("grammar has no coverage to sample targets from"))
	}
	logrus.WithField("targets", len(targets)).Info("sampled targets")

	results, err := runner.RunTargets(context.Background(), targets)
	if err != nil {
		fail(err)
	}
	fmt.Printf("Generated %d input files for %d targets\n", len(results), len(targets))
	writeMetrics(cfg, metrics)
}

func cmdValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	usage(fs, `Usage: tracegram validate <grammar-file>...

Check grammar files for undefined, unused and unreachable symbols.`)
	parseArgs(fs, args, 1, "input files")

	hasErrors := false
	for _, path := range fs.Args() {
		g, err := grammar.LoadFile(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			hasErrors = true
			continue
		}
		findings := grammar.Validate(g)
		if len(findings) == 0 {
			fmt.Printf("Valid: %s\n", path)
			continue
		}
		hasErrors = true
		for _, f := range findings {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, f)
		}
	}

	if hasErrors {
		os.Exit(1)
	}
}

func cmdFormat(args []string) {
	fs := flag.NewFlagSet("format", flag.ExitOnError)
	write := fs.Bool("w", false, "Write canonical JSON to (source) file instead of printing text")
	withCoverage := fs.Bool("coverage", false, "Include coverage sets")
	usage(fs, `Usage: tracegram format [options] <grammar-file>...

Print grammar files in canonical form.`)
	parseArgs(fs, args, 1, "input files")

	hasErrors := false
	for _, path := range fs.Args() {
		g, err := grammar.LoadFile(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			hasErrors = true
			continue
		}

		if *write {
			if err := grammar.WriteToFile(path, g, *withCoverage); err != nil {
				fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", path, err)
				hasErrors = true
				continue
			}
			fmt.Printf("Formatted: %s\n", path)
		} else {
			fmt.Print(grammar.FormatGrammar(g, *withCoverage))
		}
	}

	if hasErrors {
		os.Exit(1)
	}
}

func cmdStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	usage(fs, `Usage: tracegram stats <grammar-file>...

Print the size of grammar files.`)
	parseArgs(fs, args, 1, "input files")

	for _, path := range fs.Args() {
		g := loadGrammar(path)
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		fmt.Printf("%s\n%s\n", textutil.Title(name), g.Stats())
	}
}

func cmdVersion() {
	fmt.Printf("tracegram version %s (%s, %s)\n", Version, GitCommit, BuildDate)
}
