// Package orchestrator drives fuzzing rounds over a mined grammar: one
// fuzzer per seed, rounds repeated until coverage stops growing, and the
// generated inputs written to one file per seed.
package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/blockberries/tracegram/pkg/config"
	"github.com/blockberries/tracegram/pkg/fuzzer"
	"github.com/blockberries/tracegram/pkg/grammar"
)

// maxStrikes is the number of consecutive rounds without new coverage after
// which a seed is abandoned.
const maxStrikes = 2

// Options configures a Runner.
type Options struct {
	// Seeds is the highest seed; seeds 0..Seeds are run.
	Seeds int

	// Strategy is the registered fuzzer strategy name.
	Strategy string

	// OutputDir receives the generated input files.
	OutputDir string

	// MaxExpansions bounds the guided part of each round.
	MaxExpansions int

	// Parallelism is the number of seeds fuzzed concurrently.
	Parallelism int

	// Metrics, when set, records run progress.
	Metrics *Metrics

	// Logger receives progress output. Defaults to the standard logger.
	Logger logrus.FieldLogger
}

// DefaultOptions returns the default runner options.
func DefaultOptions() Options {
	return Options{
		Seeds:         11,
		Strategy:      fuzzer.StrategyTerminal,
		OutputDir:     ".",
		MaxExpansions: fuzzer.DefaultMaxExpansions,
		Parallelism:   1,
	}
}

// FromConfig returns the runner options of a run configuration.
func FromConfig(cfg config.Config) Options {
	return Options{
		Seeds:         cfg.Seeds,
		Strategy:      cfg.Strategy,
		OutputDir:     cfg.OutputDir,
		MaxExpansions: cfg.MaxExpansions,
		Parallelism:   cfg.Parallelism,
	}
}

// SeedResult is the outcome of fuzzing one seed.
type SeedResult struct {
	Seed int

	// File is the path the inputs were written to.
	File string

	// Inputs holds one generated input per kept round.
	Inputs [][]grammar.Symbol

	// Vocabulary is the number of coverage units of the grammar.
	Vocabulary int

	// Missing lists the units never produced.
	Missing []grammar.Symbol

	// Stopped reports whether the seed was abandoned after consecutive
	// rounds without new coverage.
	Stopped bool
}

// MissingPercent returns the share of the vocabulary left uncovered.
func (r SeedResult) MissingPercent() float64 {
	if r.Vocabulary == 0 {
		return 0
	}
	return 100 * float64(len(r.Missing)) / float64(r.Vocabulary)
}

// Runner fuzzes one grammar with many seeds. The grammar is only read.
type Runner struct {
	grammar *grammar.Grammar
	opts    Options
	log     logrus.FieldLogger
}

// NewRunner creates a runner for g.
func NewRunner(g *grammar.Grammar, opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}
	if opts.Strategy == "" {
		opts.Strategy = fuzzer.StrategyTerminal
	}
	return &Runner{grammar: g, opts: opts, log: opts.Logger}
}

func (r *Runner) fuzzerOptions(seed int) fuzzer.Options {
	opts := fuzzer.DefaultOptions()
	opts.Seed = int64(seed)
	opts.MaxExpansions = r.opts.MaxExpansions
	opts.Logger = r.log
	return opts
}

// Run fuzzes every seed with the configured strategy and writes one input
// file per seed. Seeds run concurrently up to Parallelism, each with its
// own fuzzer.
func (r *Runner) Run(ctx context.Context) ([]SeedResult, error) {
	factory, err := fuzzer.Lookup(r.opts.Strategy)
	if err != nil {
		return nil, err
	}

	results := make([]SeedResult, r.opts.Seeds+1)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Parallelism)
	for seed := 0; seed <= r.opts.Seeds; seed++ {
		seed := seed
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f, err := factory(r.grammar, r.fuzzerOptions(seed))
			if err != nil {
				return err
			}
			res, err := r.Generate(f, fmt.Sprintf("seed %d", seed))
			if err != nil {
				return fmt.Errorf("seed %d: %w", seed, err)
			}
			res.Seed = seed
			res.File = filepath.Join(r.opts.OutputDir, InputFileName(r.opts.Strategy, seed))
			if err := writeInputFile(res.File, res.Inputs); err != nil {
				return err
			}
			results[seed] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// RunTargets fuzzes every target with every seed using the target-guided
// strategy, and writes the inputs under one directory per target.
func (r *Runner) RunTargets(ctx context.Context, targets []grammar.Symbol) ([]SeedResult, error) {
	type job struct {
		index, seed int
		target      grammar.Symbol
	}

	var jobs []job
	for i, target := range targets {
		for seed := 0; seed <= r.opts.Seeds; seed++ {
			jobs = append(jobs, job{index: i, seed: seed, target: target})
		}
	}

	results := make([]SeedResult, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Parallelism)
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f, err := fuzzer.NewTargetGuided(r.grammar, j.target, r.fuzzerOptions(j.seed))
			if err != nil {
				return fmt.Errorf("target %s: %w", j.target, err)
			}

			r.log.WithFields(logrus.Fields{
				"key":  j.target,
				"seed": j.seed,
			}).Infof("generating inputs for target %d/%d", j.index+1, len(targets))
			res, err := r.Generate(f, fmt.Sprintf("target %d seed %d", j.index, j.seed))
			if err != nil {
				return fmt.Errorf("target %s seed %d: %w", j.target, j.seed, err)
			}
			res.Seed = j.seed
			res.File = filepath.Join(r.opts.OutputDir, TargetFileName(j.index, j.seed))
			if err := writeInputFile(res.File, res.Inputs); err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Generate runs rounds on f while some unit is still missing. A round
// without new coverage is a strike; the input of the first strike is kept,
// and a second consecutive strike stops the seed without keeping it. Inputs
// without any action invocation are never kept.
func (r *Runner) Generate(f *fuzzer.Fuzzer, run string) (SeedResult, error) {
	log := r.log.WithField("run", run)
	res := SeedResult{Vocabulary: len(f.Vocabulary())}

	strikes := 0
	for missing := f.NonCovered(); len(missing) > 0; missing = f.NonCovered() {
		input, err := f.Fuzz()
		if err != nil {
			return res, err
		}
		remaining := f.NonCovered()
		gain := len(missing) - len(remaining)
		r.opts.Metrics.observeRound(gain)

		log.WithFields(logrus.Fields{
			"round":   f.Rounds(),
			"covered": gain,
			"missing": len(remaining),
		}).Debug("fuzzing round")

		if len(remaining) > 0 && gain == 0 {
			strikes++
			if strikes >= maxStrikes {
				res.Stopped = true
				break
			}
		} else {
			strikes = 0
		}
		if !isReplayable(input) {
			log.WithField("round", f.Rounds()).Debug("dropping input without action invocations")
			continue
		}
		res.Inputs = append(res.Inputs, input)
	}

	res.Missing = f.NonCovered()
	if len(res.Missing) > 0 {
		log.WithFields(logrus.Fields{
			"missing": len(res.Missing),
		}).Warnf("no further progress, %.1f%% of the vocabulary is not covered", res.MissingPercent())
	}
	r.opts.Metrics.observeSeed(run, len(res.Missing), res.Stopped)
	return res, nil
}

// SampleTargets draws targets from the runner's grammar with a random
// source seeded by seed.
func (r *Runner) SampleTargets(confidence, margin float64, seed int64) ([]grammar.Symbol, error) {
	return SampleTargets(r.grammar, confidence, margin, rand.New(rand.NewSource(seed)))
}

func writeInputFile(path string, inputs [][]grammar.Symbol) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := WriteInputs(&buf, inputs); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("orchestrator: writing %s: %w", path, err)
	}
	return nil
}
