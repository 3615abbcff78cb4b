package patch

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"
)

func TestApply(t *testing.T) {
	tests := []struct {
		name     string
		original string
		edits    []Edit
		expected string
	}{
		{
			name:     "no edits",
			original: "unchanged",
			edits:    nil,
			expected: "unchanged",
		},
		{
			name:     "single replacement",
			original: "hello world",
			edits:    []Edit{{Index: 6, Length: 5, Text: "there"}},
			expected: "hello there",
		},
		{
			name:     "growing and shrinking replacements",
			original: "a-bb-ccc",
			edits: []Edit{
				{Index: 0, Length: 1, Text: "AAAA"},
				{Index: 2, Length: 2, Text: ""},
				{Index: 5, Length: 3, Text: "C"},
			},
			expected: "AAAA--C",
		},
		{
			name:     "unordered edits",
			original: "one two three",
			edits: []Edit{
				{Index: 8, Length: 5, Text: "3"},
				{Index: 0, Length: 3, Text: "1"},
				{Index: 4, Length: 3, Text: "2"},
			},
			expected: "1 2 3",
		},
		{
			name:     "adjacent edits",
			original: "abcdef",
			edits: []Edit{
				{Index: 0, Length: 3, Text: "X"},
				{Index: 3, Length: 3, Text: "Y"},
			},
			expected: "XY",
		},
		{
			name:     "insertion before replacement at same offset",
			original: "abc",
			edits: []Edit{
				{Index: 1, Length: 1, Text: "B"},
				{Index: 1, Length: 0, Text: ">"},
			},
			expected: "a>Bc",
		},
		{
			name:     "insertion at end",
			original: "abc",
			edits:    []Edit{{Index: 3, Length: 0, Text: "!"}},
			expected: "abc!",
		},
		{
			name:     "rune offsets",
			original: "héllo wörld",
			edits:    []Edit{{Index: 6, Length: 5, Text: "earth"}},
			expected: "héllo earth",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Apply(tt.original, tt.edits)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestApplyLengthProperty(t *testing.T) {
	original := "The quick brown fox jumps over the lazy dog"
	edits := []Edit{
		{Index: 4, Length: 5, Text: "slow"},
		{Index: 16, Length: 3, Text: "tortoise"},
		{Index: 35, Length: 4, Text: ""},
		{Index: 0, Length: 0, Text: ">> "},
	}

	result, err := Apply(original, edits)
	require.NoError(t, err)

	want := utf8.RuneCountInString(original)
	for _, e := range edits {
		want += utf8.RuneCountInString(e.Text) - e.Length
	}
	assert.Equal(t, want, utf8.RuneCountInString(result))
	assert.Equal(t, ">> The slow brown tortoise jumps over the  dog", result)
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	edits := []Edit{
		{Index: 2, Length: 1, Text: "Z"},
		{Index: 0, Length: 1, Text: "X"},
	}

	_, err := Apply("abc", edits)
	require.NoError(t, err)
	assert.Equal(t, 2, edits[0].Index, "caller's slice order must be preserved")
}

func TestApplyErrors(t *testing.T) {
	tests := []struct {
		name     string
		original string
		edits    []Edit
		expected error
	}{
		{
			name:     "overlapping spans",
			original: "abcdef",
			edits: []Edit{
				{Index: 0, Length: 4, Text: "x"},
				{Index: 2, Length: 2, Text: "y"},
			},
			expected: ErrOverlappingEdits,
		},
		{
			name:     "same start",
			original: "abcdef",
			edits: []Edit{
				{Index: 1, Length: 1, Text: "x"},
				{Index: 1, Length: 2, Text: "y"},
			},
			expected: ErrOverlappingEdits,
		},
		{
			name:     "insertion inside replacement",
			original: "abcdef",
			edits: []Edit{
				{Index: 1, Length: 3, Text: "x"},
				{Index: 2, Length: 0, Text: "y"},
			},
			expected: ErrOverlappingEdits,
		},
		{
			name:     "past end",
			original: "abc",
			edits:    []Edit{{Index: 2, Length: 5, Text: "x"}},
			expected: ErrEditOutOfRange,
		},
		{
			name:     "negative index",
			original: "abc",
			edits:    []Edit{{Index: -1, Length: 1, Text: "x"}},
			expected: ErrEditOutOfRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Apply(tt.original, tt.edits)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.expected), "got %v", err)
		})
	}
}
