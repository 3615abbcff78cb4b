package harvest

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/rs/zerolog"
	xerrors "gitlab.com/tozd/go/errors"

	"findreplace/internal/backup"
	"findreplace/internal/concurrent"
	"findreplace/internal/errors"
	"findreplace/internal/filter"
	"findreplace/internal/replacement"
	"findreplace/internal/rules"
	"findreplace/internal/variables"
)

// ErrInvalidPattern is returned for a source or target pattern that does
// not compile.
var ErrInvalidPattern = xerrors.Base("invalid pattern")

// TargetResult describes one target file.
type TargetResult struct {
	Path       string
	Matches    int
	Modified   bool
	BackupPath string
	Error      error
}

// Result describes one harvest rule run.
type Result struct {
	Rule    string
	Skipped bool
	Sources int

	// Values holds what the sources yielded. Targets are only touched
	// when it is not empty.
	Values  *Values
	Targets []TargetResult
}

// Runner executes harvest rules against files under WorkingDir.
type Runner struct {
	WorkingDir   string
	Variables    variables.Bindings
	Backup       *backup.Manager
	DryRun       bool
	MatchTimeout time.Duration
}

// Run executes rules in order. A pattern that fails to compile or match
// stops the run; unreadable or unwritable targets are reported in their
// TargetResult.
func (r *Runner) Run(ctx context.Context, rs []Rule) ([]Result, error) {
	engine := replacement.NewEngine(replacement.Options{
		WorkingDir:   r.WorkingDir,
		MatchTimeout: r.MatchTimeout,
	})

	results := make([]Result, 0, len(rs))
	for _, rule := range rs {
		res, err := r.runRule(ctx, engine, rule.WithVariables(r.Variables))
		results = append(results, res)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func (r *Runner) runRule(ctx context.Context, engine *replacement.Engine, rule Rule) (Result, error) {
	logger := zerolog.Ctx(ctx).With().Str("rule", rule.Label()).Logger()
	res := Result{Rule: rule.Label(), Values: NewValues()}

	if !rule.Enabled {
		logger.Info().Msg("skipping rule")
		res.Skipped = true
		return res, nil
	}

	sources, err := filter.Glob(r.WorkingDir, rule.SourceFiles)
	if err != nil {
		return res, err
	}
	if len(sources) == 0 {
		logger.Warn().Strs("patterns", rule.SourceFiles).Msg("no source files match")
	}
	res.Sources = len(sources)

	patterns := make([]*regexp2.Regexp, 0, len(rule.SourceFindPatterns))
	for _, p := range rule.SourceFindPatterns {
		re, err := r.compile(p)
		if err != nil {
			return res, errors.NewRuleError("", rule.Label(), "invalid source pattern", err)
		}
		patterns = append(patterns, re)
	}

	for _, source := range sources {
		data, err := os.ReadFile(source)
		if err != nil {
			return res, errors.WrapFileError(source, err)
		}
		for _, re := range patterns {
			matched, err := res.Values.Collect(re, string(data))
			if err != nil {
				return res, errors.NewRuleError(source, rule.Label(), "source match failed", err)
			}
			logger.Debug().Str("file", source).Str("pattern", re.String()).Bool("matched", matched).Msg("scanned source")
		}
	}

	if res.Values.Len() == 0 {
		logger.Info().Msg("no values collected, targets left unchanged")
		return res, nil
	}

	replace, err := res.Values.Expand(rule.TargetReplacePattern)
	if err != nil {
		return res, errors.NewRuleError("", rule.Label(), "expanding target replacement", err)
	}
	logger.Info().Strs("values", res.Values.Names()).Str("replace", replace).Msg("collected values")

	if rule.UseRegex {
		if _, err := r.compile(rule.TargetFindPattern); err != nil {
			return res, errors.NewRuleError("", rule.Label(), "invalid target pattern", err)
		}
	}
	target := rules.Rule{
		Name:           rule.Label(),
		Enabled:        true,
		FindPattern:    rule.TargetFindPattern,
		ReplacePattern: replace,
		UseRegex:       rule.UseRegex,
	}

	targets, err := filter.Glob(r.WorkingDir, rule.TargetFiles)
	if err != nil {
		return res, err
	}
	if len(targets) == 0 {
		logger.Warn().Strs("patterns", rule.TargetFiles).Msg("no target files match")
	}

	for _, path := range targets {
		tr, err := r.replaceTarget(ctx, engine, target, path)
		res.Targets = append(res.Targets, tr)
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

// replaceTarget runs the target rule over one file. Only pattern failures
// are returned as errors; file failures are recorded in the result.
func (r *Runner) replaceTarget(ctx context.Context, engine *replacement.Engine, rule rules.Rule, path string) (TargetResult, error) {
	logger := zerolog.Ctx(ctx)
	tr := TargetResult{Path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		tr.Error = errors.WrapFileError(path, err)
		return tr, nil
	}
	content := string(data)

	updated, result, err := engine.Process(ctx, filepath.Base(path), content, []rules.Rule{rule}, nil)
	if err != nil {
		return tr, err
	}
	tr.Matches = result.Matches()
	tr.Modified = result.Modified
	if !tr.Modified || r.DryRun {
		return tr, nil
	}

	if r.Backup != nil {
		if tr.BackupPath, err = r.Backup.BackupFile(path); err != nil {
			tr.Error = err
			return tr, nil
		}
	}

	if err := concurrent.WriteFile(path, updated); err != nil {
		if tr.BackupPath != "" {
			_ = r.Backup.RestoreFile(path, tr.BackupPath)
		}
		tr.Error = err
		return tr, nil
	}

	logger.Info().Str("file", path).Int("matches", tr.Matches).Msg("target updated")
	return tr, nil
}

func (r *Runner) compile(pattern string) (*regexp2.Regexp, error) {
	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, xerrors.WithDetails(xerrors.Errorf("%w: %s", ErrInvalidPattern, err), "pattern", pattern)
	}
	if r.MatchTimeout > 0 {
		re.MatchTimeout = r.MatchTimeout
	}
	return re, nil
}
