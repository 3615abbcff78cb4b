package variables

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"
)

func TestParse(t *testing.T) {
	tests := []struct {
		arg      string
		expected Binding
	}{
		{"HOST=example.com", Binding{Name: "HOST", Value: "example.com"}},
		{"HOST,example.com", Binding{Name: "HOST", Value: "example.com"}},
		{"QUERY=a=b", Binding{Name: "QUERY", Value: "a=b"}},
		{"EMPTY", Binding{Name: "EMPTY", Value: ""}},
		{" PADDED =x", Binding{Name: "PADDED", Value: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			b, err := Parse(tt.arg)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, b)
		})
	}

	_, err := Parse("=value")
	assert.True(t, errors.Is(err, ErrInvalidBinding))
}

func TestParseAllLaterWins(t *testing.T) {
	bindings, err := ParseAll([]string{"A=1", "B=2", "A=3"})
	require.NoError(t, err)

	assert.Equal(t, Bindings{{Name: "A", Value: "3"}, {Name: "B", Value: "2"}}, bindings)
}

func TestSubstitute(t *testing.T) {
	bindings := Bindings{
		{Name: "HOST", Value: "example.com"},
		{Name: "PORT", Value: "8080"},
	}

	assert.Equal(t, "http://example.com:8080/", bindings.Substitute("http://%HOST%:%PORT%/"))
	assert.Equal(t, "%host% stays", bindings.Substitute("%host% stays"), "names are case-sensitive")
	assert.Equal(t, "%UNKNOWN%", bindings.Substitute("%UNKNOWN%"))
	assert.Equal(t, "no tokens", bindings.Substitute("no tokens"))
}

func TestSubstituteAllReturnsNewSlice(t *testing.T) {
	bindings := Bindings{{Name: "X", Value: "1"}}
	lines := []string{"a%X%", "b"}

	out := bindings.SubstituteAll(lines)

	assert.Equal(t, []string{"a1", "b"}, out)
	assert.Equal(t, "a%X%", lines[0])
}

func TestSetDoesNotAliasReceiver(t *testing.T) {
	base := Bindings{{Name: "A", Value: "1"}}
	updated := base.Set("A", "2")

	assert.Equal(t, "1", base[0].Value)
	assert.Equal(t, Bindings{{Name: "A", Value: "2"}}, updated)
	assert.Equal(t, "2", updated.Substitute("%A%"))
}
