// Package capture resolves capture-group references in replacement
// templates against a single regular expression match.
//
// Three reference forms are recognized: $n, ${n} and ${name}. Index 0 is
// the whole match and n >= 1 is the n-th capture group. References that
// cannot be resolved produce empty text.
package capture

import (
	"strconv"

	"github.com/dlclark/regexp2"

	"findreplace/internal/patch"
)

// Kind identifies the syntactic form of a reference.
type Kind int

// Reference forms.
const (
	Positional Kind = iota
	BracketedPositional
	Named
)

var referencePattern = regexp2.MustCompile(
	`\$(?<index>[0-9]+)|\$\{(?<bracketedIndex>[0-9]+)\}|\$\{(?<groupName>[A-Za-z_][A-Za-z0-9_]*)\}`,
	regexp2.None)

// Reference is one group reference found in a template. Index and Length
// locate the token in rune offsets of the template.
type Reference struct {
	Kind   Kind
	Index  int
	Length int
	Token  string
	Group  int
	Name   string
}

// Value returns the text the reference selects from m.
func (r Reference) Value(m *regexp2.Match) string {
	if m == nil {
		return ""
	}

	var group *regexp2.Group
	switch r.Kind {
	case Named:
		group = m.GroupByName(r.Name)
	default:
		if r.Group < 0 {
			return ""
		}
		group = m.GroupByNumber(r.Group)
	}

	if group == nil || len(group.Captures) == 0 {
		return ""
	}
	return group.String()
}

// Parse lists the references in template in order of appearance.
func Parse(template string) ([]Reference, error) {
	var refs []Reference

	m, err := referencePattern.FindStringMatch(template)
	for ; m != nil && err == nil; m, err = referencePattern.FindNextMatch(m) {
		ref := Reference{
			Index:  m.Index,
			Length: m.Length,
			Token:  m.String(),
		}

		if g := m.GroupByName("index"); g != nil && g.Length > 0 {
			ref.Kind = Positional
			ref.Group = groupNumber(g.String())
		} else if g := m.GroupByName("bracketedIndex"); g != nil && g.Length > 0 {
			ref.Kind = BracketedPositional
			ref.Group = groupNumber(g.String())
		} else {
			ref.Kind = Named
			ref.Name = m.GroupByName("groupName").String()
		}

		refs = append(refs, ref)
	}
	if err != nil {
		return nil, err
	}

	return refs, nil
}

// HasReferences reports whether template contains at least one reference.
func HasReferences(template string) bool {
	ok, err := referencePattern.MatchString(template)
	return err == nil && ok
}

// Resolve returns template with every reference replaced by the text it
// selects from m. A template without references is returned unchanged.
func Resolve(m *regexp2.Match, template string) (string, error) {
	refs, err := Parse(template)
	if err != nil {
		return "", err
	}
	if len(refs) == 0 {
		return template, nil
	}

	edits := make([]patch.Edit, 0, len(refs))
	for _, ref := range refs {
		edits = append(edits, patch.Edit{
			Index:  ref.Index,
			Length: ref.Length,
			Text:   ref.Value(m),
		})
	}

	return patch.Apply(template, edits)
}

// groupNumber parses a group index; values that do not fit an int select
// nothing.
func groupNumber(digits string) int {
	n, err := strconv.Atoi(digits)
	if err != nil {
		return -1
	}
	return n
}
