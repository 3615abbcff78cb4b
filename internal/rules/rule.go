// Package rules defines find-and-replace rules and loads them from rule
// files. A rule set is a plain ordered slice; rules apply in slice order.
package rules

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"findreplace/internal/variables"
)

// FileReplacePattern overrides a rule's replacement text when the file
// being processed matches Filename.
type FileReplacePattern struct {
	Filename string
	Pattern  []string
}

// Matches reports whether filename selects this override. Names compare
// case-insensitively; a Filename containing glob metacharacters is matched
// as a doublestar pattern against the base name.
func (p FileReplacePattern) Matches(filename string) bool {
	if strings.EqualFold(p.Filename, filename) {
		return true
	}
	if !strings.ContainsAny(p.Filename, "*?[{") {
		return false
	}
	ok, err := doublestar.Match(strings.ToLower(p.Filename), strings.ToLower(filename))
	return err == nil && ok
}

// Text joins the pattern lines with newlines. A line ending in a space
// continues onto the next line without a break.
func (p FileReplacePattern) Text() string {
	var b strings.Builder
	for i, line := range p.Pattern {
		b.WriteString(line)
		if !strings.HasSuffix(line, " ") && i+1 < len(p.Pattern) {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// Rule is one find-and-replace directive.
type Rule struct {
	Name    string
	Remarks string
	Enabled bool

	// GroupFindPattern, when set, splits content into matches that the
	// rest of the rule is applied to independently.
	GroupFindPattern string

	FindPattern    string
	ReplacePattern string
	UseRegex       bool

	FileReplacePatterns []FileReplacePattern
}

// Label returns a name suitable for log output.
func (r Rule) Label() string {
	if r.Name != "" {
		return r.Name
	}
	return r.FindPattern
}

// Replacement returns the replacement template to use for filename. When
// per-file overrides exist and none matches, ok is false and the rule
// makes no replacement in that file.
func (r Rule) Replacement(filename string) (template string, ok bool) {
	if len(r.FileReplacePatterns) == 0 {
		return r.ReplacePattern, true
	}
	for _, p := range r.FileReplacePatterns {
		if p.Matches(filename) {
			return p.Text(), true
		}
	}
	return "", false
}

// WithVariables returns copies of rules with every %NAME% token in the
// find, group find, replace and per-file pattern text substituted.
func WithVariables(rules []Rule, vars variables.Bindings) []Rule {
	out := make([]Rule, len(rules))
	for i, r := range rules {
		r.GroupFindPattern = vars.Substitute(r.GroupFindPattern)
		r.FindPattern = vars.Substitute(r.FindPattern)
		r.ReplacePattern = vars.Substitute(r.ReplacePattern)

		if r.FileReplacePatterns != nil {
			patterns := make([]FileReplacePattern, len(r.FileReplacePatterns))
			for j, p := range r.FileReplacePatterns {
				patterns[j] = FileReplacePattern{
					Filename: p.Filename,
					Pattern:  vars.SubstituteAll(p.Pattern),
				}
			}
			r.FileReplacePatterns = patterns
		}

		out[i] = r
	}
	return out
}

// Enabled returns the number of enabled rules.
func Enabled(rules []Rule) int {
	n := 0
	for _, r := range rules {
		if r.Enabled {
			n++
		}
	}
	return n
}
