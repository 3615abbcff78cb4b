// Package cmd implements the findreplace command line. It wires the
// configuration, rule loading, file discovery, parallel processing and
// reporting together.
package cmd

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
	xerrors "gitlab.com/tozd/go/errors"

	"findreplace/internal/backup"
	"findreplace/internal/concurrent"
	"findreplace/internal/config"
	"findreplace/internal/errors"
	"findreplace/internal/filter"
	"findreplace/internal/harvest"
	"findreplace/internal/log"
	"findreplace/internal/rules"
	"findreplace/internal/variables"
)

// ErrFilesFailed is returned when at least one file could not be
// processed. The report lists the individual errors.
var ErrFilesFailed = xerrors.Base("some files failed")

func executeFindReplace(ctx context.Context, cfg *config.Config) error {
	startTime := time.Now()

	if cfg.Revert {
		return executeRevert(ctx, cfg, os.Stdout)
	}

	vars, err := variables.ParseAll(cfg.Variables)
	if err != nil {
		return errors.NewConfigError("invalid --variable", err)
	}

	rs, err := loadRules(ctx, cfg, vars)
	if err != nil {
		return err
	}

	files, err := filter.NewFileDiscovery(cfg).Discover(ctx)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		zerolog.Ctx(ctx).Warn().Strs("patterns", cfg.Files).Msg("no files to process")
	}

	logger, err := log.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	processor := concurrent.NewProcessor(cfg, rs, vars)

	results, err := processor.ProcessFiles(ctx, files)
	if err != nil {
		return err
	}

	for result := range results {
		logger.LogResult(result)
	}

	logger.SetProcessingTime(time.Since(startTime))
	if err := logger.WriteReport(); err != nil {
		return err
	}

	if n := logger.Summary().ErrorCount; n > 0 {
		return xerrors.WithDetails(ErrFilesFailed, "failed", n, "total", logger.Summary().TotalFiles)
	}
	return ctx.Err()
}

// loadRules reads the rule file, or builds the single inline rule given by
// --find and --replace.
func loadRules(ctx context.Context, cfg *config.Config, vars variables.Bindings) ([]rules.Rule, error) {
	if cfg.PatternsFile != "" {
		return rules.Load(ctx, cfg.PatternsFile, vars)
	}

	return []rules.Rule{{
		Name:           "inline",
		Enabled:        true,
		FindPattern:    cfg.Find,
		ReplacePattern: config.DecodeReplace(cfg.Replace),
		UseRegex:       cfg.UseRegex,
	}}, nil
}

func executeRevert(ctx context.Context, cfg *config.Config, out io.Writer) error {
	logPath := cfg.Resolve(cfg.LogFile)

	format := string(cfg.LogFormat)
	if format == "" && strings.EqualFold(filepath.Ext(logPath), ".csv") {
		format = string(config.LogFormatCSV)
	}

	reverted, skipped, err := backup.NewRevertManager().RevertFromLogWithFormat(logPath, format)
	zerolog.Ctx(ctx).Info().Str("log", logPath).Int("reverted", reverted).Int("skipped", skipped).Msg("revert finished")
	if err != nil {
		return err
	}

	if !cfg.Quiet {
		pterm.Success.WithWriter(out).Printfln("reverted %d files", reverted)
		if skipped > 0 {
			pterm.Warning.WithWriter(out).Printfln("%d written files had no backup and were left as they are", skipped)
		}
	}
	return nil
}

func executeHarvest(ctx context.Context, cfg *config.Config) error {
	return runHarvestRules(ctx, cfg, os.Stdout)
}

func runHarvestRules(ctx context.Context, cfg *config.Config, out io.Writer) error {
	vars, err := variables.ParseAll(cfg.Variables)
	if err != nil {
		return errors.NewConfigError("invalid --variable", err)
	}

	rs, err := harvest.Load(ctx, cfg.HarvestFile)
	if err != nil {
		return err
	}

	runner := &harvest.Runner{
		WorkingDir:   cfg.WorkingDir,
		Variables:    vars,
		Backup:       backup.NewBackupManager(cfg.Backup && !cfg.DryRun),
		DryRun:       cfg.DryRun,
		MatchTimeout: cfg.MatchTimeout,
	}

	results, runErr := runner.Run(ctx, rs)

	failed := 0
	for _, res := range results {
		if !cfg.Quiet {
			reportHarvest(out, res, cfg.DryRun)
		}
		for _, tr := range res.Targets {
			if tr.Error != nil {
				failed++
			}
		}
	}

	if runErr != nil {
		return runErr
	}
	if failed > 0 {
		return xerrors.WithDetails(ErrFilesFailed, "failed", failed)
	}
	return nil
}

func reportHarvest(out io.Writer, res harvest.Result, dryRun bool) {
	if res.Skipped {
		pterm.Info.WithWriter(out).Printfln("%s: disabled", res.Rule)
		return
	}

	pterm.Info.WithWriter(out).Printfln("%s: %d values from %d source files", res.Rule, res.Values.Len(), res.Sources)

	for _, tr := range res.Targets {
		switch {
		case tr.Error != nil:
			pterm.Error.WithWriter(out).Printfln("%s: %v", tr.Path, tr.Error)
		case !tr.Modified:
			pterm.Debug.WithWriter(out).Printfln("%s: no changes", tr.Path)
		case dryRun:
			pterm.Warning.WithWriter(out).Printfln("%s: %d matches (dry run)", tr.Path, tr.Matches)
		default:
			pterm.Success.WithWriter(out).Printfln("%s: %d matches", tr.Path, tr.Matches)
		}
	}
}
