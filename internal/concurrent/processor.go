// Package concurrent runs a rule set over many files in parallel. Each file
// is read, transformed by the replacement engine and written back
// atomically, with an optional backup taken first.
package concurrent

import (
	"context"
	"os"
	"path/filepath"
	"runtime"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"findreplace/internal/backup"
	"findreplace/internal/config"
	"findreplace/internal/errors"
	"findreplace/internal/filter"
	"findreplace/internal/replacement"
	"findreplace/internal/rules"
	"findreplace/internal/variables"
)

const maxDefaultWorkers = 8

// ProcessJob is a single file processing task.
type ProcessJob struct {
	FilePath string
	FileInfo filter.FileInfo
}

// ProcessResult is the outcome of processing one file.
type ProcessResult struct {
	Job    ProcessJob
	Result *replacement.FileResult

	// OutputPath is the file written, when it differs from the input.
	OutputPath string
	BackupPath string
	Error      error
}

// Written reports whether the result's content reached disk.
func (r ProcessResult) Written(dryRun bool) bool {
	if dryRun || r.Error != nil || r.Result == nil {
		return false
	}
	return r.Result.Modified || r.OutputPath != ""
}

// Processor applies one rule set to many files with a bounded number of
// concurrent workers.
type Processor struct {
	config        *config.Config
	rules         []rules.Rule
	vars          variables.Bindings
	engine        *replacement.Engine
	backupManager *backup.Manager
	workerCount   int
}

// NewProcessor creates a Processor. The worker count comes from the
// configuration, defaulting to the number of CPUs capped at eight.
func NewProcessor(cfg *config.Config, rs []rules.Rule, vars variables.Bindings) *Processor {
	workerCount := cfg.Workers
	if workerCount <= 0 {
		workerCount = min(runtime.NumCPU(), maxDefaultWorkers)
	}

	return &Processor{
		config: cfg,
		rules:  rs,
		vars:   vars,
		engine: replacement.NewEngine(replacement.Options{
			WorkingDir:   cfg.WorkingDir,
			MatchTimeout: cfg.MatchTimeout,
		}),
		backupManager: backup.NewBackupManager(cfg.Backup && !cfg.DryRun),
		workerCount:   workerCount,
	}
}

// ProcessFiles processes files concurrently and streams one result per
// file. The channel is closed when every started job has finished.
// Cancelling ctx stops new jobs from starting.
func (p *Processor) ProcessFiles(ctx context.Context, files []filter.FileInfo) (<-chan ProcessResult, error) {
	results := make(chan ProcessResult, len(files))

	var g errgroup.Group
	g.SetLimit(p.workerCount)

	go func() {
		defer close(results)
		for _, fileInfo := range files {
			if ctx.Err() != nil {
				break
			}
			job := ProcessJob{FilePath: fileInfo.Path, FileInfo: fileInfo}
			g.Go(func() error {
				results <- p.processFile(ctx, job)
				return nil
			})
		}
		_ = g.Wait()
	}()

	return results, nil
}

func (p *Processor) processFile(ctx context.Context, job ProcessJob) ProcessResult {
	logger := zerolog.Ctx(ctx).With().Str("file", job.FilePath).Logger()
	ctx = logger.WithContext(ctx)

	result := ProcessResult{Job: job}

	data, err := os.ReadFile(job.FilePath)
	if err != nil {
		result.Error = errors.WrapFileError(job.FilePath, err)
		return result
	}

	content, fileResult, err := p.engine.Process(ctx, filepath.Base(job.FilePath), string(data), p.rules, p.vars)
	fileResult.Path = job.FilePath
	result.Result = fileResult
	if err != nil {
		result.Error = err
		return result
	}

	target := job.FilePath
	if p.config.OutFile != "" {
		target = p.config.OutFile
		result.OutputPath = target
	} else if !fileResult.Modified {
		logger.Debug().Msg("no changes")
		return result
	}

	if p.config.DryRun {
		logger.Debug().Int("matches", fileResult.Matches()).Msg("dry run, not writing")
		return result
	}

	if _, err := os.Stat(target); err == nil {
		backupPath, err := p.backupManager.BackupFile(target)
		if err != nil {
			result.Error = err
			return result
		}
		result.BackupPath = backupPath
	}

	if err := WriteFile(target, content); err != nil {
		if result.BackupPath != "" {
			_ = p.backupManager.RestoreFile(target, result.BackupPath)
		}
		result.Error = err
		return result
	}

	logger.Debug().Str("target", target).Int("matches", fileResult.Matches()).Msg("file written")
	return result
}

// WriteFile replaces path's content through a temporary file in the same
// directory and a rename. An existing file keeps its permissions; a new
// one is created with mode 0644.
func WriteFile(path, content string) error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	file, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.NewFileNotWritableError(path, err)
	}
	tempFile := file.Name()
	defer os.Remove(tempFile)
	defer file.Close()

	if _, err := file.WriteString(content); err != nil {
		return errors.NewFileNotWritableError(path, err)
	}

	if err := file.Sync(); err != nil {
		return errors.NewFileNotWritableError(path, err)
	}

	_ = file.Close()

	if err := os.Chmod(tempFile, mode); err != nil {
		return errors.NewFileNotWritableError(path, err)
	}

	if err := os.Rename(tempFile, path); err != nil {
		return errors.NewFileNotWritableError(path, err)
	}

	return nil
}
