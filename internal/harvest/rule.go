// Package harvest carries captured values from one set of files into
// another. Named groups matched in source files become ${name} tokens in
// the replacement applied to target files.
package harvest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"findreplace/internal/errors"
	"findreplace/internal/rules"
	"findreplace/internal/variables"
)

// Rule describes one harvest: where values come from and where they go.
type Rule struct {
	Name                 string
	Remarks              string
	Enabled              bool
	SourceFiles          []string
	SourceFindPatterns   []string
	TargetFiles          []string
	TargetFindPattern    string
	TargetReplacePattern string
	UseRegex             bool
}

// Label returns the rule's name, or its target find pattern when unnamed.
func (r Rule) Label() string {
	if r.Name != "" {
		return r.Name
	}
	return r.TargetFindPattern
}

// WithVariables returns a copy of r with %NAME% tokens replaced in its
// source patterns and target patterns.
func (r Rule) WithVariables(vars variables.Bindings) Rule {
	if len(vars) == 0 {
		return r
	}
	r.SourceFindPatterns = vars.SubstituteAll(r.SourceFindPatterns)
	r.TargetFindPattern = vars.Substitute(r.TargetFindPattern)
	r.TargetReplacePattern = vars.Substitute(r.TargetReplacePattern)
	return r
}

type ruleDoc struct {
	Name                 string   `json:"name" yaml:"name" toml:"name"`
	Remarks              string   `json:"remarks" yaml:"remarks" toml:"remarks"`
	Enabled              *bool    `json:"enabled" yaml:"enabled" toml:"enabled"`
	SourceFiles          []string `json:"sourceFiles" yaml:"sourceFiles" toml:"sourceFiles"`
	SourceFindPatterns   []string `json:"sourceFindPatterns" yaml:"sourceFindPatterns" toml:"sourceFindPatterns"`
	TargetFiles          []string `json:"targetFiles" yaml:"targetFiles" toml:"targetFiles"`
	TargetFindPattern    string   `json:"targetFindPattern" yaml:"targetFindPattern" toml:"targetFindPattern"`
	TargetReplacePattern string   `json:"targetReplacePattern" yaml:"targetReplacePattern" toml:"targetReplacePattern"`
	UseRegex             bool     `json:"useRegEx" yaml:"useRegEx" toml:"useRegEx"`
}

type ruleFile struct {
	Rules []ruleDoc `json:"rules" yaml:"rules" toml:"rules"`
}

// Load reads harvest rules from a JSON, YAML or TOML file.
func Load(ctx context.Context, path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapFileError(path, err)
	}

	rs, err := Parse(path, rules.DetectFormat(path), data)
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Debug().Str("path", path).Int("rules", len(rs)).Msg("loaded harvest rules")
	return rs, nil
}

// Parse decodes harvest rules. JSON accepts a bare array or an object with
// a rules key; YAML and TOML need the rules key.
func Parse(path string, format rules.Format, data []byte) ([]Rule, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	var (
		file ruleFile
		err  error
	)
	switch format {
	case rules.FormatJSON:
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			err = json.Unmarshal(data, &file.Rules)
		} else {
			err = json.Unmarshal(data, &file)
		}
	case rules.FormatYAML:
		err = yaml.Unmarshal(data, &file)
	case rules.FormatTOML:
		err = toml.Unmarshal(data, &file)
	default:
		return nil, errors.NewParsingError(path, fmt.Sprintf("unsupported harvest rule format: %s", format), nil)
	}
	if err != nil {
		return nil, errors.NewParsingError(path, fmt.Sprintf("failed to parse %s", strings.ToUpper(string(format))), err)
	}

	if len(file.Rules) == 0 {
		return nil, errors.NewParsingError(path, "no rules found", nil)
	}

	rs := make([]Rule, 0, len(file.Rules))
	for i, d := range file.Rules {
		r := Rule{
			Name:                 d.Name,
			Remarks:              d.Remarks,
			Enabled:              d.Enabled == nil || *d.Enabled,
			SourceFiles:          d.SourceFiles,
			SourceFindPatterns:   d.SourceFindPatterns,
			TargetFiles:          d.TargetFiles,
			TargetFindPattern:    d.TargetFindPattern,
			TargetReplacePattern: d.TargetReplacePattern,
			UseRegex:             d.UseRegex,
		}
		switch {
		case r.TargetFindPattern == "":
			return nil, errors.NewParsingError(path, fmt.Sprintf("rule %d (%s): target find pattern is empty", i+1, r.Name), nil)
		case len(r.SourceFindPatterns) == 0:
			return nil, errors.NewParsingError(path, fmt.Sprintf("rule %d (%s): no source find patterns", i+1, r.Label()), nil)
		}
		rs = append(rs, r)
	}
	return rs, nil
}
