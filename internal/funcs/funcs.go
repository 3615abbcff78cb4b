// Package funcs detects and evaluates the built-in replacement functions
// that may appear in a resolved replacement string, such as
// LoadFileContent(path) and LowerCase(text).
package funcs

import (
	"sort"
	"strings"

	"github.com/dlclark/regexp2"
	"gitlab.com/tozd/go/errors"

	"findreplace/internal/patch"
)

// ErrUnknownFunction is returned when a call names an unregistered function.
var ErrUnknownFunction = errors.Base("unknown function")

// Function is a replacement function callable as Name(parameters).
type Function interface {
	Name() string
	Call(param string) (string, error)
}

// Call is one function call found in a string. Index and Length locate
// the call text in rune offsets.
type Call struct {
	Name   string
	Param  string
	Text   string
	Index  int
	Length int
}

// Registry holds the functions recognized in replacement strings. It is
// read-only once built and safe for concurrent use.
type Registry struct {
	workingDir string
	functions  map[string]Function
	pattern    *regexp2.Regexp
}

// NewRegistry returns a registry with the built-in functions. Relative
// paths given to LoadFileContent resolve against workingDir.
func NewRegistry(workingDir string) *Registry {
	r := &Registry{
		workingDir: workingDir,
		functions:  make(map[string]Function),
	}
	r.Register(LoadFileContent{WorkingDir: workingDir})
	r.Register(LowerCase{})
	r.Register(UpperCase{})
	return r
}

// Register adds or replaces a function. It must not be called while the
// registry is in use by other goroutines.
func (r *Registry) Register(fn Function) {
	r.functions[fn.Name()] = fn
	r.pattern = buildPattern(r.functions)
}

// Names returns the registered function names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Detect reports whether text contains a call to a registered function.
func (r *Registry) Detect(text string) bool {
	if r.pattern == nil || text == "" {
		return false
	}
	ok, err := r.pattern.MatchString(text)
	return err == nil && ok
}

// Find lists the function calls in text in order of appearance.
func (r *Registry) Find(text string) ([]Call, error) {
	if r.pattern == nil {
		return nil, nil
	}

	var calls []Call
	m, err := r.pattern.FindStringMatch(text)
	for ; m != nil && err == nil; m, err = r.pattern.FindNextMatch(m) {
		calls = append(calls, Call{
			Name:   m.GroupByName("name").String(),
			Param:  m.GroupByName("parameters").String(),
			Text:   m.String(),
			Index:  m.Index,
			Length: m.Length,
		})
	}
	if err != nil {
		return nil, errors.Errorf("scanning for function calls: %w", err)
	}

	return calls, nil
}

// Evaluate runs a single call.
func (r *Registry) Evaluate(call Call) (string, error) {
	fn, ok := r.functions[call.Name]
	if !ok {
		return "", errors.WithDetails(ErrUnknownFunction, "function", call.Name)
	}
	return fn.Call(call.Param)
}

// Resolve replaces every function call in text with its result. When any
// call fails the error is returned and text should be left untouched by
// the caller; the failure is local to this text.
func (r *Registry) Resolve(text string) (string, error) {
	calls, err := r.Find(text)
	if err != nil {
		return "", err
	}
	if len(calls) == 0 {
		return text, nil
	}

	edits := make([]patch.Edit, 0, len(calls))
	for _, call := range calls {
		value, err := r.Evaluate(call)
		if err != nil {
			return "", errors.WithDetails(err, "call", call.Text)
		}
		edits = append(edits, patch.Edit{Index: call.Index, Length: call.Length, Text: value})
	}

	return patch.Apply(text, edits)
}

// buildPattern matches Name(parameters) for the registered names.
// Parameters may not contain parentheses, so only the innermost of nested
// calls is recognized.
func buildPattern(functions map[string]Function) *regexp2.Regexp {
	if len(functions) == 0 {
		return nil
	}

	names := make([]string, 0, len(functions))
	for name := range functions {
		names = append(names, regexp2.Escape(name))
	}
	// longest first so that a name never shadows a longer one sharing its prefix
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})

	expr := `(?<functiontext>\b(?<name>` + strings.Join(names, "|") + `)\((?<parameters>[^()]*)\))`
	return regexp2.MustCompile(expr, regexp2.None)
}
