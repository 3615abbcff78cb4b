package rules

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"

	"findreplace/internal/errors"
	"findreplace/internal/variables"
)

// Format identifies a rule file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatHCL  Format = "hcl"
	FormatCSV  Format = "csv"
)

// DetectFormat picks the format from the file extension. Files with any
// other extension are read as JSON.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	case ".hcl":
		return FormatHCL
	case ".csv":
		return FormatCSV
	default:
		return FormatJSON
	}
}

type fileReplaceDoc struct {
	Filename string   `json:"filename" yaml:"filename" toml:"filename"`
	Pattern  []string `json:"pattern" yaml:"pattern" toml:"pattern"`
}

type ruleDoc struct {
	Name                string           `json:"name" yaml:"name" toml:"name"`
	Remarks             string           `json:"remarks" yaml:"remarks" toml:"remarks"`
	Enabled             *bool            `json:"enabled" yaml:"enabled" toml:"enabled"`
	GroupFindPattern    string           `json:"groupFindPattern" yaml:"groupFindPattern" toml:"groupFindPattern"`
	FindPattern         string           `json:"findPattern" yaml:"findPattern" toml:"findPattern"`
	ReplacePattern      string           `json:"replacePattern" yaml:"replacePattern" toml:"replacePattern"`
	UseRegex            bool             `json:"useRegEx" yaml:"useRegEx" toml:"useRegEx"`
	FileReplacePatterns []fileReplaceDoc `json:"fileReplacePatterns" yaml:"fileReplacePatterns" toml:"fileReplacePatterns"`
}

type ruleFile struct {
	Rules []ruleDoc `json:"rules" yaml:"rules" toml:"rules"`
}

func (d ruleDoc) rule() Rule {
	r := Rule{
		Name:             d.Name,
		Remarks:          d.Remarks,
		Enabled:          d.Enabled == nil || *d.Enabled,
		GroupFindPattern: d.GroupFindPattern,
		FindPattern:      d.FindPattern,
		ReplacePattern:   d.ReplacePattern,
		UseRegex:         d.UseRegex,
	}
	for _, p := range d.FileReplacePatterns {
		r.FileReplacePatterns = append(r.FileReplacePatterns, FileReplacePattern{
			Filename: p.Filename,
			Pattern:  p.Pattern,
		})
	}
	return r
}

// Load reads an ordered rule set from path. vars are exposed to HCL rule
// files as var.NAME; %NAME% tokens are left for the runner to substitute.
func Load(ctx context.Context, path string, vars variables.Bindings) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapFileError(path, err)
	}

	rules, err := Parse(path, DetectFormat(path), data, vars)
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Debug().
		Str("path", path).
		Int("rules", len(rules)).
		Int("enabled", Enabled(rules)).
		Msg("loaded rules")

	return rules, nil
}

// Parse decodes rule file content in the given format. path is used for
// error messages and HCL diagnostics only.
func Parse(path string, format Format, data []byte, vars variables.Bindings) ([]Rule, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	var (
		rules []Rule
		err   error
	)
	switch format {
	case FormatJSON:
		rules, err = parseJSON(path, data)
	case FormatYAML:
		rules, err = parseYAML(path, data)
	case FormatTOML:
		rules, err = parseTOML(path, data)
	case FormatHCL:
		rules, err = parseHCL(path, data, vars)
	case FormatCSV:
		rules, err = parseCSV(path, data)
	default:
		return nil, errors.NewParsingError(path, fmt.Sprintf("unsupported format: %s", format), nil)
	}
	if err != nil {
		return nil, err
	}

	if len(rules) == 0 {
		return nil, errors.NewParsingError(path, "no rules found", nil)
	}
	if err := validate(path, rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func validate(path string, rules []Rule) error {
	for i, r := range rules {
		if r.FindPattern == "" {
			return errors.NewParsingError(path, fmt.Sprintf("rule %d (%s): find pattern is empty", i+1, r.Name), nil)
		}
		for _, p := range r.FileReplacePatterns {
			if strings.TrimSpace(p.Filename) == "" {
				return errors.NewParsingError(path, fmt.Sprintf("rule %d (%s): file replace pattern without filename", i+1, r.Label()), nil)
			}
		}
	}
	return nil
}

func fromDocs(docs []ruleDoc) []Rule {
	rules := make([]Rule, 0, len(docs))
	for _, d := range docs {
		rules = append(rules, d.rule())
	}
	return rules
}

// parseJSON accepts a bare array of rules or an object with a rules key.
// Keys match case-insensitively.
func parseJSON(path string, data []byte) ([]Rule, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var docs []ruleDoc
		if err := decoder.Decode(&docs); err != nil {
			return nil, errors.NewParsingError(path, "failed to parse JSON", err)
		}
		return fromDocs(docs), nil
	}

	var file ruleFile
	if err := decoder.Decode(&file); err != nil {
		return nil, errors.NewParsingError(path, "failed to parse JSON", err)
	}
	return fromDocs(file.Rules), nil
}

func parseYAML(path string, data []byte) ([]Rule, error) {
	var file ruleFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, errors.NewParsingError(path, "failed to parse YAML", err)
	}
	return fromDocs(file.Rules), nil
}

func parseTOML(path string, data []byte) ([]Rule, error) {
	var file ruleFile
	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&file); err != nil {
		return nil, errors.NewParsingError(path, "failed to parse TOML", err)
	}
	return fromDocs(file.Rules), nil
}

type hclFileReplace struct {
	Filename string   `hcl:"filename,label"`
	Pattern  []string `hcl:"pattern"`
}

type hclRule struct {
	Name                string           `hcl:"name,label"`
	Remarks             string           `hcl:"remarks,optional"`
	Enabled             *bool            `hcl:"enabled,optional"`
	GroupFindPattern    string           `hcl:"group_find_pattern,optional"`
	FindPattern         string           `hcl:"find_pattern"`
	ReplacePattern      string           `hcl:"replace_pattern,optional"`
	UseRegex            bool             `hcl:"use_regex,optional"`
	FileReplacePatterns []hclFileReplace `hcl:"file_replace_pattern,block"`
}

type hclRuleFile struct {
	Rules []hclRule `hcl:"rule,block"`
}

// parseHCL decodes rule blocks. Template syntax is live in HCL strings, so
// capture references are written $${1} and variables can be referenced as
// ${var.NAME}.
func parseHCL(path string, data []byte, vars variables.Bindings) ([]Rule, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, path)
	if diags.HasErrors() {
		return nil, errors.NewParsingError(path, "failed to parse HCL", diags)
	}

	values := make(map[string]cty.Value, len(vars))
	for _, b := range vars {
		values[b.Name] = cty.StringVal(b.Value)
	}
	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"var": cty.ObjectVal(values),
		},
	}

	var doc hclRuleFile
	if diags := gohcl.DecodeBody(file.Body, evalCtx, &doc); diags.HasErrors() {
		return nil, errors.NewParsingError(path, "failed to decode HCL", diags)
	}

	rules := make([]Rule, 0, len(doc.Rules))
	for _, h := range doc.Rules {
		d := ruleDoc{
			Name:             h.Name,
			Remarks:          h.Remarks,
			Enabled:          h.Enabled,
			GroupFindPattern: h.GroupFindPattern,
			FindPattern:      h.FindPattern,
			ReplacePattern:   h.ReplacePattern,
			UseRegex:         h.UseRegex,
		}
		for _, p := range h.FileReplacePatterns {
			d.FileReplacePatterns = append(d.FileReplacePatterns, fileReplaceDoc(p))
		}
		rules = append(rules, d.rule())
	}
	return rules, nil
}

// parseCSV reads simple find,replace[,regex] rows. Blank lines and lines
// starting with # are ignored, and a leading header row is skipped.
func parseCSV(path string, data []byte) ([]Rule, error) {
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		lines = append(lines, strings.TrimRight(line, "\r"))
	}
	if len(lines) == 0 {
		return nil, errors.NewParsingError(path, "CSV file contains no data after filtering comments", nil)
	}

	reader := csv.NewReader(strings.NewReader(strings.Join(lines, "\n")))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.NewParsingError(path, "failed to parse CSV", err)
	}

	start := 0
	if isHeaderRow(records[0]) {
		start = 1
	}

	var rules []Rule
	for i := start; i < len(records); i++ {
		record := records[i]
		if len(record) < 2 {
			return nil, errors.NewParsingError(path, fmt.Sprintf("invalid CSV row %d: expected at least 2 columns", i+1), nil)
		}

		r := Rule{
			Enabled:        true,
			FindPattern:    record[0],
			ReplacePattern: record[1],
		}
		if len(record) > 2 && strings.TrimSpace(record[2]) != "" {
			useRegex, err := strconv.ParseBool(strings.TrimSpace(record[2]))
			if err != nil {
				return nil, errors.NewParsingError(path, fmt.Sprintf("invalid CSV row %d: regex column", i+1), err)
			}
			r.UseRegex = useRegex
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func isHeaderRow(row []string) bool {
	if len(row) < 2 {
		return false
	}
	first := strings.TrimSpace(row[0])
	return strings.EqualFold(first, "find") || strings.EqualFold(first, "findPattern") ||
		strings.EqualFold(strings.TrimSpace(row[1]), "replace") || strings.EqualFold(strings.TrimSpace(row[1]), "replacePattern")
}
