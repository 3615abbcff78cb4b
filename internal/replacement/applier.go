package replacement

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/rs/zerolog"

	"findreplace/internal/capture"
	"findreplace/internal/errors"
	"findreplace/internal/funcs"
	"findreplace/internal/patch"
	"findreplace/internal/rules"
)

type applier struct {
	functions *funcs.Registry
	patterns  *patternCache
}

// run applies rules in order, each rule reading the previous rule's
// output. It stops at the first rule error and returns the content
// produced so far.
func (a *applier) run(ctx context.Context, rs []rules.Rule, filename, content string) (string, []RuleResult, error) {
	logger := zerolog.Ctx(ctx)
	results := make([]RuleResult, 0, len(rs))

	for _, rule := range rs {
		if !rule.Enabled {
			logger.Info().Str("rule", rule.Label()).Msg("skipping rule")
			results = append(results, RuleResult{Rule: rule.Label(), Skipped: true})
			continue
		}

		out, result, err := a.apply(ctx, rule, filename, content)
		results = append(results, result)
		if err != nil {
			return content, results, err
		}
		content = out
	}

	return content, results, nil
}

// apply runs one enabled rule over content. Per-file replacements only
// apply to regex rules; literal rules always use ReplacePattern.
func (a *applier) apply(ctx context.Context, rule rules.Rule, filename, content string) (string, RuleResult, error) {
	result := RuleResult{Rule: rule.Label(), Mode: ModeLiteral}

	template := rule.ReplacePattern
	if rule.UseRegex {
		result.Mode = ModeGlobal

		var ok bool
		if template, ok = rule.Replacement(filename); !ok {
			zerolog.Ctx(ctx).Debug().
				Str("rule", rule.Label()).
				Str("file", filename).
				Msg("no per-file replacement for file")
			result.NoOverride = true
			return content, result, nil
		}
	}

	if rule.GroupFindPattern == "" {
		out, err := a.applySpan(ctx, rule, filename, template, content, &result)
		return out, result, err
	}

	group, err := a.patterns.compile(rule.GroupFindPattern)
	if err != nil {
		return content, result, errors.NewRuleError(filename, rule.Label(), "invalid group find pattern", err)
	}

	var edits []patch.Edit
	m, err := group.FindStringMatch(content)
	for ; m != nil && err == nil; m, err = group.FindNextMatch(m) {
		result.Groups++
		span := m.String()
		out, err := a.applySpan(ctx, rule, filename, template, span, &result)
		if err != nil {
			return content, result, err
		}
		if out != span {
			edits = append(edits, patch.Edit{Index: m.Index, Length: m.Length, Text: out})
		}
	}
	if err != nil {
		return content, result, errors.NewRuleError(filename, rule.Label(), "group match failed", err)
	}

	out, err := patch.Apply(content, edits)
	if err != nil {
		return content, result, errors.NewRuleError(filename, rule.Label(), "conflicting group edits", err)
	}
	return out, result, nil
}

// applySpan performs the rule's replacement strategy on one span: the
// whole content, or one group match.
func (a *applier) applySpan(ctx context.Context, rule rules.Rule, filename, template, span string, result *RuleResult) (string, error) {
	if !rule.UseRegex {
		return a.literal(ctx, rule, template, span, result), nil
	}

	re, err := a.patterns.compile(rule.FindPattern)
	if err != nil {
		return span, errors.NewRuleError(filename, rule.Label(), "invalid find pattern", err)
	}

	if a.functions.Detect(template) {
		result.Mode = ModeIndividual
		return a.individual(ctx, rule, filename, re, template, span, result)
	}
	return a.global(ctx, rule, filename, re, template, span, result)
}

func (a *applier) literal(ctx context.Context, rule rules.Rule, template, span string, result *RuleResult) string {
	if rule.FindPattern == "" {
		return span
	}
	count := strings.Count(span, rule.FindPattern)
	if count == 0 {
		return span
	}

	zerolog.Ctx(ctx).Info().
		Str("rule", rule.Label()).
		Str("pattern", rule.FindPattern).
		Int("count", count).
		Msg("replacing matches")

	result.Matches += count
	return strings.ReplaceAll(span, rule.FindPattern, template)
}

func (a *applier) global(ctx context.Context, rule rules.Rule, filename string, re *regexp2.Regexp, template, span string, result *RuleResult) (string, error) {
	count := 0
	m, err := re.FindStringMatch(span)
	for ; m != nil && err == nil; m, err = re.FindNextMatch(m) {
		count++
	}
	if err != nil {
		return span, errors.NewRuleError(filename, rule.Label(), "match failed", err)
	}
	if count == 0 {
		return span, nil
	}

	zerolog.Ctx(ctx).Info().
		Str("rule", rule.Label()).
		Str("pattern", rule.FindPattern).
		Int("count", count).
		Msg("replacing matches")

	out, err := re.Replace(span, template, -1, -1)
	if err != nil {
		return span, errors.NewRuleError(filename, rule.Label(), "replace failed", err)
	}
	result.Matches += count
	return out, nil
}

// individual resolves the template separately for every match. A match
// whose function call fails is left as it is.
func (a *applier) individual(ctx context.Context, rule rules.Rule, filename string, re *regexp2.Regexp, template, span string, result *RuleResult) (string, error) {
	logger := zerolog.Ctx(ctx)
	withRefs := capture.HasReferences(template)

	var edits []patch.Edit
	m, err := re.FindStringMatch(span)
	for ; m != nil && err == nil; m, err = re.FindNextMatch(m) {
		result.Matches++

		resolved := template
		if withRefs {
			r, err := capture.Resolve(m, template)
			if err != nil {
				return span, errors.NewRuleError(filename, rule.Label(), "capture resolution failed", err)
			}
			resolved = r
		}

		text, err := a.functions.Resolve(resolved)
		if err != nil {
			logger.Error().Err(err).
				Str("rule", rule.Label()).
				Str("match", m.String()).
				Msg("function evaluation failed")
			result.Dropped++
			continue
		}

		edits = append(edits, patch.Edit{Index: m.Index, Length: m.Length, Text: text})
	}
	if err != nil {
		return span, errors.NewRuleError(filename, rule.Label(), "match failed", err)
	}

	if len(edits) > 0 {
		logger.Info().
			Str("rule", rule.Label()).
			Int("count", len(edits)).
			Msg("individual match replacements")
	}

	out, err := patch.Apply(span, edits)
	if err != nil {
		return span, errors.NewRuleError(filename, rule.Label(), "conflicting match edits", err)
	}
	return out, nil
}

// patternCache compiles each distinct pattern once.
type patternCache struct {
	mu       sync.Mutex
	timeout  time.Duration
	compiled map[string]*regexp2.Regexp
}

func newPatternCache(timeout time.Duration) *patternCache {
	return &patternCache{
		timeout:  timeout,
		compiled: make(map[string]*regexp2.Regexp),
	}
}

func (c *patternCache) compile(pattern string) (*regexp2.Regexp, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if re, ok := c.compiled[pattern]; ok {
		return re, nil
	}

	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, err
	}
	if c.timeout > 0 {
		re.MatchTimeout = c.timeout
	}
	c.compiled[pattern] = re
	return re, nil
}
