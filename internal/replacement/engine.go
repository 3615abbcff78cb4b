// Package replacement applies ordered find-and-replace rules to file
// content. Processing runs through a middleware pipeline: input checks,
// variable substitution, the rules themselves and output bookkeeping.
package replacement

import (
	"context"
	"time"

	"findreplace/internal/funcs"
	"findreplace/internal/rules"
	"findreplace/internal/variables"
)

// Mode names the strategy a rule was applied with.
type Mode string

const (
	ModeLiteral    Mode = "literal"
	ModeGlobal     Mode = "global"
	ModeIndividual Mode = "individual"
)

// RuleResult describes what one rule did to one file.
type RuleResult struct {
	Rule string
	Mode Mode

	// Matches counts occurrences of the find pattern, summed over group
	// spans for group-scoped rules.
	Matches int

	// Dropped counts matches left untouched because a function in the
	// replacement could not be evaluated.
	Dropped int

	// Groups counts group spans for rules with a group find pattern.
	Groups int

	// Skipped is set for disabled rules.
	Skipped bool

	// NoOverride is set when the rule has per-file replacements and none
	// names this file.
	NoOverride bool
}

// FileResult contains the result of processing one file's content.
type FileResult struct {
	Path         string
	Rules        []RuleResult
	Modified     bool
	OriginalSize int64
	NewSize      int64
}

// Matches returns the total match count over all rules.
func (r *FileResult) Matches() int {
	n := 0
	for _, rr := range r.Rules {
		n += rr.Matches
	}
	return n
}

// Dropped returns the total number of matches left untouched after a
// function evaluation failure.
func (r *FileResult) Dropped() int {
	n := 0
	for _, rr := range r.Rules {
		n += rr.Dropped
	}
	return n
}

// Options configure an Engine.
type Options struct {
	// WorkingDir resolves relative paths passed to LoadFileContent.
	WorkingDir string

	// Functions overrides the default function registry.
	Functions *funcs.Registry

	// MatchTimeout bounds each regex match. Zero means no limit.
	MatchTimeout time.Duration
}

// Middleware defines a processing step in the replacement pipeline.
type Middleware func(ProcessContext) ProcessContext

// ProcessContext carries state through the replacement pipeline.
type ProcessContext struct {
	Context   context.Context
	Filename  string
	Original  string
	Content   string
	Rules     []rules.Rule
	Variables variables.Bindings
	Result    *FileResult
	Error     error
}

// Engine runs rule sets over file content. An Engine is safe for
// concurrent use; compiled patterns are shared between calls.
type Engine struct {
	applier    *applier
	middleware []Middleware
}

// NewEngine creates an engine with the standard pipeline.
func NewEngine(opts Options) *Engine {
	registry := opts.Functions
	if registry == nil {
		registry = funcs.NewRegistry(opts.WorkingDir)
	}

	engine := &Engine{
		applier: &applier{
			functions: registry,
			patterns:  newPatternCache(opts.MatchTimeout),
		},
	}

	engine.Use(validateInputMiddleware)
	engine.Use(substituteVariablesMiddleware)
	engine.Use(engine.runRulesMiddleware)
	engine.Use(validateOutputMiddleware)

	return engine
}

// Use adds a middleware to the end of the pipeline.
func (e *Engine) Use(middleware Middleware) {
	e.middleware = append(e.middleware, middleware)
}

// Process applies rules in order to content. filename selects per-file
// replacements and is matched without regard to case. A rule error stops
// processing; the returned content then holds the effect of the rules that
// ran before the failing one.
func (e *Engine) Process(ctx context.Context, filename, content string, rs []rules.Rule, vars variables.Bindings) (string, *FileResult, error) {
	pc := ProcessContext{
		Context:   ctx,
		Filename:  filename,
		Original:  content,
		Content:   content,
		Rules:     rs,
		Variables: vars,
		Result: &FileResult{
			Path:         filename,
			OriginalSize: int64(len(content)),
		},
	}

	for _, mw := range e.middleware {
		pc = mw(pc)
		if pc.Error != nil {
			pc.Result.Modified = false
			return pc.Content, pc.Result, pc.Error
		}
	}

	return pc.Content, pc.Result, nil
}

// ApplyRules substitutes vars into rules and applies them in order to
// content, returning the transformed content.
func ApplyRules(ctx context.Context, rs []rules.Rule, filename, content string, vars variables.Bindings, opts Options) (string, error) {
	out, _, err := NewEngine(opts).Process(ctx, filename, content, rs, vars)
	return out, err
}

func validateInputMiddleware(pc ProcessContext) ProcessContext {
	if pc.Content == "" || len(pc.Rules) == 0 {
		pc.Rules = nil
	}
	return pc
}

func substituteVariablesMiddleware(pc ProcessContext) ProcessContext {
	if len(pc.Variables) > 0 && len(pc.Rules) > 0 {
		pc.Rules = rules.WithVariables(pc.Rules, pc.Variables)
	}
	return pc
}

func (e *Engine) runRulesMiddleware(pc ProcessContext) ProcessContext {
	content, results, err := e.applier.run(pc.Context, pc.Rules, pc.Filename, pc.Content)
	pc.Result.Rules = results
	pc.Content = content
	pc.Error = err
	return pc
}

func validateOutputMiddleware(pc ProcessContext) ProcessContext {
	pc.Result.NewSize = int64(len(pc.Content))
	pc.Result.Modified = pc.Content != pc.Original
	return pc
}
