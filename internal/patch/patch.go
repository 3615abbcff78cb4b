// Package patch composes positional edits computed against one fixed string.
// Every edit is anchored to the untouched original, so the result does not
// depend on how much each replacement grows or shrinks its span.
package patch

import (
	"sort"
	"strings"

	"gitlab.com/tozd/go/errors"
)

var (
	// ErrOverlappingEdits is returned when two edits claim the same runes.
	ErrOverlappingEdits = errors.Base("overlapping edits")

	// ErrEditOutOfRange is returned when an edit reaches outside the original.
	ErrEditOutOfRange = errors.Base("edit out of range")
)

// Edit replaces Length runes of the original string, starting at rune
// Index, with Text. Rune offsets match the coordinates reported by the
// regexp2 engine.
type Edit struct {
	Index  int
	Length int
	Text   string
}

// End returns the rune offset just past the edited span.
func (e Edit) End() int {
	return e.Index + e.Length
}

// Apply returns original with every edit applied. Edits may be given in
// any order but must not overlap; zero-length edits insert text and may sit
// at the boundary of another edit. An empty edit set returns original.
func Apply(original string, edits []Edit) (string, error) {
	if len(edits) == 0 {
		return original, nil
	}

	sorted := Sorted(edits)
	src := []rune(original)

	var result strings.Builder
	result.Grow(len(original))

	cursor := 0
	for _, edit := range sorted {
		if edit.Index < 0 || edit.Length < 0 || edit.End() > len(src) {
			return "", errors.WithDetails(ErrEditOutOfRange,
				"index", edit.Index, "length", edit.Length, "size", len(src))
		}
		if edit.Index < cursor {
			return "", errors.WithDetails(ErrOverlappingEdits,
				"index", edit.Index, "previousEnd", cursor)
		}

		result.WriteString(string(src[cursor:edit.Index]))
		result.WriteString(edit.Text)
		cursor = edit.End()
	}
	result.WriteString(string(src[cursor:]))

	return result.String(), nil
}

// Sorted returns a copy of edits ordered by Index. Insertions sort ahead of
// replacements starting at the same offset; ties otherwise keep input order.
func Sorted(edits []Edit) []Edit {
	sorted := make([]Edit, len(edits))
	copy(sorted, edits)

	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Index != sorted[j].Index {
			return sorted[i].Index < sorted[j].Index
		}
		return sorted[i].Length == 0 && sorted[j].Length != 0
	})

	return sorted
}
