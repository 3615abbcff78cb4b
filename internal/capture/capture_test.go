package capture

import (
	"testing"

	"github.com/dlclark/regexp2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func firstMatch(t *testing.T, pattern, input string) *regexp2.Match {
	t.Helper()
	re := regexp2.MustCompile(pattern, regexp2.None)
	m, err := re.FindStringMatch(input)
	require.NoError(t, err)
	require.NotNil(t, m, "pattern %q should match %q", pattern, input)
	return m
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		input    string
		template string
		expected string
	}{
		{
			name:     "all three forms",
			pattern:  `(a)b(?=(?<name>x))`,
			input:    "abx",
			template: "$0-${1}-${name}",
			expected: "ab-a-x",
		},
		{
			name:     "no references",
			pattern:  `a`,
			input:    "a",
			template: "plain text",
			expected: "plain text",
		},
		{
			name:     "empty template",
			pattern:  `a`,
			input:    "a",
			template: "",
			expected: "",
		},
		{
			name:     "group out of range",
			pattern:  `(a)`,
			input:    "a",
			template: "[$7]",
			expected: "[]",
		},
		{
			name:     "unknown name",
			pattern:  `(?<known>a)`,
			input:    "a",
			template: "[${unknown}]",
			expected: "[]",
		},
		{
			name:     "non participating group",
			pattern:  `(a)|(b)`,
			input:    "a",
			template: "<$2>",
			expected: "<>",
		},
		{
			name:     "repeated references",
			pattern:  `(\w+)@(\w+)`,
			input:    "user@host",
			template: "$2:$1:$2",
			expected: "host:user:host",
		},
		{
			name:     "multibyte template",
			pattern:  `(é+)`,
			input:    "ééé",
			template: "ü${1}ü",
			expected: "üéééü",
		},
		{
			name:     "overflowing index",
			pattern:  `(a)`,
			input:    "a",
			template: "$99999999999999999999999",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := firstMatch(t, tt.pattern, tt.input)

			result, err := Resolve(m, tt.template)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestParse(t *testing.T) {
	refs, err := Parse("a$1b${22}c${name}")
	require.NoError(t, err)
	require.Len(t, refs, 3)

	assert.Equal(t, Reference{Kind: Positional, Index: 1, Length: 2, Token: "$1", Group: 1}, refs[0])
	assert.Equal(t, Reference{Kind: BracketedPositional, Index: 4, Length: 5, Token: "${22}", Group: 22}, refs[1])
	assert.Equal(t, Reference{Kind: Named, Index: 10, Length: 7, Token: "${name}", Name: "name"}, refs[2])
}

func TestHasReferences(t *testing.T) {
	assert.True(t, HasReferences("x$0"))
	assert.True(t, HasReferences("${abc}"))
	assert.False(t, HasReferences("$ {abc}"))
	assert.False(t, HasReferences("cost: $"))
}
