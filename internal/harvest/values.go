package harvest

import (
	"strconv"
	"strings"

	"github.com/dlclark/regexp2"
)

var tokenPattern = regexp2.MustCompile(`\$\{(\w+)\}`, regexp2.None)

// Values is an ordered set of captured values keyed by group name without
// regard to case. Setting an existing name replaces its value and keeps
// its position and original spelling.
type Values struct {
	names []string
	index map[string]int
	vals  []string
}

// NewValues returns an empty set.
func NewValues() *Values {
	return &Values{index: make(map[string]int)}
}

// Set inserts or updates name.
func (v *Values) Set(name, value string) {
	key := strings.ToLower(name)
	if i, ok := v.index[key]; ok {
		v.vals[i] = value
		return
	}
	v.index[key] = len(v.names)
	v.names = append(v.names, name)
	v.vals = append(v.vals, value)
}

// Get looks name up without regard to case.
func (v *Values) Get(name string) (string, bool) {
	i, ok := v.index[strings.ToLower(name)]
	if !ok {
		return "", false
	}
	return v.vals[i], true
}

// Len returns the number of distinct names.
func (v *Values) Len() int {
	return len(v.names)
}

// Names returns the names in insertion order.
func (v *Values) Names() []string {
	return append([]string(nil), v.names...)
}

// Expand replaces ${name} tokens in template with collected values.
// Unknown names are left in place. Inserted values are not expanded again.
func (v *Values) Expand(template string) (string, error) {
	if v.Len() == 0 {
		return template, nil
	}
	return tokenPattern.ReplaceFunc(template, func(m regexp2.Match) string {
		if value, ok := v.Get(m.GroupByNumber(1).String()); ok {
			return value
		}
		return m.String()
	}, -1, -1)
}

// Collect adds the named groups of re's first match in content to v.
// Numbered groups and groups that took no part in the match are ignored.
// It reports whether re matched.
func (v *Values) Collect(re *regexp2.Regexp, content string) (bool, error) {
	m, err := re.FindStringMatch(content)
	if err != nil || m == nil {
		return false, err
	}

	for _, name := range re.GetGroupNames() {
		if _, err := strconv.Atoi(name); err == nil {
			continue
		}
		g := m.GroupByName(name)
		if g == nil || len(g.Captures) == 0 {
			continue
		}
		v.Set(name, g.String())
	}
	return true, nil
}
