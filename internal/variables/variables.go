// Package variables substitutes %NAME% tokens in rule definitions with
// values supplied for one run.
package variables

import (
	"strings"

	"gitlab.com/tozd/go/errors"
)

// ErrInvalidBinding is returned for a binding without a name.
var ErrInvalidBinding = errors.Base("invalid variable binding")

// Binding maps one case-sensitive name to its value.
type Binding struct {
	Name  string
	Value string
}

// Token returns the literal text replaced by this binding.
func (b Binding) Token() string {
	return "%" + b.Name + "%"
}

// Bindings is an ordered set of variable bindings. Bindings apply in order,
// so a value introduced by an earlier binding can contain a later token.
type Bindings []Binding

// Parse reads NAME=VALUE. NAME,VALUE is accepted for command lines written
// for the older syntax. A bare NAME binds the empty string.
func Parse(arg string) (Binding, error) {
	name, value := arg, ""
	if i := strings.IndexAny(arg, "=,"); i >= 0 {
		name, value = arg[:i], arg[i+1:]
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return Binding{}, errors.WithDetails(ErrInvalidBinding, "arg", arg)
	}
	return Binding{Name: name, Value: value}, nil
}

// ParseAll parses every argument with Parse. A later binding of the same
// name replaces the earlier value in place.
func ParseAll(args []string) (Bindings, error) {
	var bindings Bindings
	for _, arg := range args {
		b, err := Parse(arg)
		if err != nil {
			return nil, err
		}
		bindings = bindings.Set(b.Name, b.Value)
	}
	return bindings, nil
}

// Set returns bindings with name bound to value.
func (bs Bindings) Set(name, value string) Bindings {
	out := make(Bindings, len(bs), len(bs)+1)
	copy(out, bs)
	for i := range out {
		if out[i].Name == name {
			out[i].Value = value
			return out
		}
	}
	return append(out, Binding{Name: name, Value: value})
}

// Substitute replaces every %NAME% token in text. Unknown tokens are left
// as they are.
func (bs Bindings) Substitute(text string) string {
	if text == "" || !strings.Contains(text, "%") {
		return text
	}
	for _, b := range bs {
		text = strings.ReplaceAll(text, b.Token(), b.Value)
	}
	return text
}

// SubstituteAll returns a new slice with Substitute applied to each line.
func (bs Bindings) SubstituteAll(lines []string) []string {
	if lines == nil {
		return nil
	}
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = bs.Substitute(line)
	}
	return out
}
