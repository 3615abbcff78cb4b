package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"findreplace/internal/variables"
)

func TestFileReplacePatternMatches(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		filename string
		want     bool
	}{
		{"exact", "index.htm", "index.htm", true},
		{"case insensitive", "INDEX.HTM", "index.htm", true},
		{"different name", "index.htm", "about.htm", false},
		{"glob extension", "*.htm", "about.htm", true},
		{"glob case insensitive", "*.HTM", "about.htm", true},
		{"glob mismatch", "*.html", "about.htm", false},
		{"brace alternatives", "{index,about}.htm", "about.htm", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := FileReplacePattern{Filename: tt.pattern}
			assert.Equal(t, tt.want, p.Matches(tt.filename))
		})
	}
}

func TestFileReplacePatternText(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  string
	}{
		{"single line", []string{"x"}, "x"},
		{"joined with newlines", []string{"a", "b", "c"}, "a\nb\nc"},
		{"trailing space continues", []string{"a ", "b"}, "a b"},
		{"no lines", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FileReplacePattern{Pattern: tt.lines}.Text())
		})
	}
}

func TestRuleReplacement(t *testing.T) {
	r := Rule{
		FindPattern:    "X",
		ReplacePattern: "default",
		FileReplacePatterns: []FileReplacePattern{
			{Filename: "a.txt", Pattern: []string{"A"}},
			{Filename: "*.txt", Pattern: []string{"any txt"}},
		},
	}

	tmpl, ok := r.Replacement("A.TXT")
	require.True(t, ok)
	assert.Equal(t, "A", tmpl, "first matching override wins")

	tmpl, ok = r.Replacement("b.txt")
	require.True(t, ok)
	assert.Equal(t, "any txt", tmpl)

	_, ok = r.Replacement("b.md")
	assert.False(t, ok, "overrides present but none matching")

	plain := Rule{FindPattern: "X", ReplacePattern: "default"}
	tmpl, ok = plain.Replacement("b.md")
	require.True(t, ok)
	assert.Equal(t, "default", tmpl)
}

func TestRuleLabel(t *testing.T) {
	assert.Equal(t, "Links", Rule{Name: "Links", FindPattern: "href"}.Label())
	assert.Equal(t, "href", Rule{FindPattern: "href"}.Label())
}

func TestWithVariables(t *testing.T) {
	vars := variables.Bindings{{Name: "HOST", Value: "example.com"}}
	in := []Rule{
		{
			Name:             "r1",
			GroupFindPattern: "<a %HOST%>",
			FindPattern:      "http://%HOST%",
			ReplacePattern:   "https://%HOST%",
			FileReplacePatterns: []FileReplacePattern{
				{Filename: "x.htm", Pattern: []string{"ftp://%HOST%"}},
			},
		},
		{Name: "r2", Enabled: false, FindPattern: "%HOST%", ReplacePattern: "%OTHER%"},
	}

	out := WithVariables(in, vars)

	require.Len(t, out, 2)
	assert.Equal(t, "<a example.com>", out[0].GroupFindPattern)
	assert.Equal(t, "http://example.com", out[0].FindPattern)
	assert.Equal(t, "https://example.com", out[0].ReplacePattern)
	assert.Equal(t, []string{"ftp://example.com"}, out[0].FileReplacePatterns[0].Pattern)
	assert.Equal(t, "example.com", out[1].FindPattern)
	assert.Equal(t, "%OTHER%", out[1].ReplacePattern, "unknown tokens are kept")

	assert.Equal(t, "http://%HOST%", in[0].FindPattern, "input rules are not modified")
	assert.Equal(t, []string{"ftp://%HOST%"}, in[0].FileReplacePatterns[0].Pattern)
}

func TestEnabled(t *testing.T) {
	rs := []Rule{{Enabled: true}, {Enabled: false}, {Enabled: true}}
	assert.Equal(t, 2, Enabled(rs))
	assert.Equal(t, 0, Enabled(nil))
}
