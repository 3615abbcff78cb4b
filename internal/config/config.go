// Package config holds the settings for one findreplace run and validates
// them before any file is read.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"findreplace/internal/errors"
)

// LogFormat selects how the end-of-run report is rendered.
type LogFormat string

const (
	LogFormatSummary LogFormat = "summary"
	LogFormatJSON    LogFormat = "json"
	LogFormatCSV     LogFormat = "csv"
)

// Config holds all runtime options. Command-line flags bind to it directly.
type Config struct {
	WorkingDir string

	// PatternsFile is the rule file. When empty, Find builds a single
	// inline rule.
	PatternsFile string
	Find         string
	Replace      string
	UseRegex     bool

	// HarvestFile is a harvest rule file. Runs with one carry captures
	// from source files into target files instead of applying rules.
	HarvestFile string

	Files      []string
	Exclude    []string
	Extensions []string
	InFile     string
	OutFile    string

	Variables []string

	Backup       bool
	DryRun       bool
	Revert       bool
	Workers      int
	MatchTimeout time.Duration

	Verbose   bool
	Debug     bool
	Quiet     bool
	LogFile   string
	LogFormat LogFormat
}

// Validate checks the configuration and normalizes paths and defaults.
func (c *Config) Validate() error {
	if err := c.validateWorkingDir(); err != nil {
		return err
	}

	if c.Revert {
		if c.LogFile == "" {
			return errors.NewConfigError("log file is required for revert operation", nil)
		}
		return c.validateLogFormat()
	}

	if c.HarvestFile != "" {
		c.HarvestFile = c.Resolve(c.HarvestFile)
		if c.MatchTimeout < 0 {
			return errors.NewConfigError("match timeout must not be negative", nil)
		}
		return nil
	}

	if err := c.validateRuleSource(); err != nil {
		return err
	}

	if err := c.validateFiles(); err != nil {
		return err
	}

	if c.Workers < 0 {
		return errors.NewConfigError("workers must not be negative", nil)
	}

	if c.MatchTimeout < 0 {
		return errors.NewConfigError("match timeout must not be negative", nil)
	}

	if err := c.validateLogFormat(); err != nil {
		return err
	}

	c.normalizeConfig()
	return nil
}

func (c *Config) validateWorkingDir() error {
	if c.WorkingDir == "" {
		c.WorkingDir = "."
	}

	absDir, err := filepath.Abs(c.WorkingDir)
	if err != nil {
		return errors.NewConfigErrorWithPath(c.WorkingDir, "invalid working directory", err)
	}

	info, err := os.Stat(absDir)
	if err != nil {
		return errors.NewConfigErrorWithPath(absDir, "working directory not found", err)
	}
	if !info.IsDir() {
		return errors.NewConfigErrorWithPath(absDir, "working directory is not a directory", nil)
	}

	c.WorkingDir = absDir
	return nil
}

func (c *Config) validateRuleSource() error {
	if c.PatternsFile == "" && c.Find == "" {
		return errors.NewConfigError("a pattern file or a find pattern is required (use --patterns or --find)", nil)
	}

	if c.PatternsFile != "" {
		c.PatternsFile = c.Resolve(c.PatternsFile)
	}
	return nil
}

func (c *Config) validateFiles() error {
	if c.OutFile != "" && c.InFile == "" {
		return errors.NewConfigError("--outfile requires --infile", nil)
	}

	if c.InFile != "" && len(c.Files) > 0 {
		return errors.NewConfigError("--infile and --files cannot be combined", nil)
	}

	if c.InFile == "" && len(c.Files) == 0 {
		return errors.NewConfigError("no input files (use --files or --infile)", nil)
	}

	if c.InFile != "" {
		c.InFile = c.Resolve(c.InFile)
	}
	if c.OutFile != "" {
		c.OutFile = c.Resolve(c.OutFile)
	}
	return nil
}

func (c *Config) validateLogFormat() error {
	switch c.LogFormat {
	case "", LogFormatSummary, LogFormatJSON, LogFormatCSV:
		return nil
	default:
		return errors.NewConfigError("log format must be 'summary', 'json' or 'csv'", nil)
	}
}

func (c *Config) normalizeConfig() {
	if c.LogFormat == "" {
		c.LogFormat = LogFormatSummary
		if c.LogFile != "" {
			c.LogFormat = LogFormatJSON
		}
	}
	c.Extensions = c.normalizeExtensions()
}

// Resolve returns path made absolute against the working directory.
func (c *Config) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(c.WorkingDir, path)
}

// normalizeExtensions gives every extension a leading dot and lower case.
func (c *Config) normalizeExtensions() []string {
	var normalized []string
	for _, ext := range c.Extensions {
		ext = strings.TrimSpace(ext)
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized = append(normalized, strings.ToLower(ext))
	}
	return normalized
}

// ShouldProcessExtension reports whether files with extension ext are
// processed. An empty extension list allows every file.
func (c *Config) ShouldProcessExtension(ext string) bool {
	if len(c.Extensions) == 0 {
		return true
	}

	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	for _, allowed := range c.Extensions {
		if allowed == ext {
			return true
		}
	}
	return false
}

// DecodeReplace expands the escapes accepted in an inline replacement:
// __r and __n for carriage return and newline, __q and q__ for a double
// quote.
func DecodeReplace(s string) string {
	return strings.NewReplacer(
		"__r", "\r",
		"__n", "\n",
		"__q", `"`,
		"q__", `"`,
	).Replace(s)
}

// IsVerbose reports whether verbose output is enabled. Quiet wins.
func (c *Config) IsVerbose() bool {
	return c.Verbose && !c.Quiet
}

// IsDebug reports whether debug output is enabled. Quiet wins.
func (c *Config) IsDebug() bool {
	return c.Debug && !c.Quiet
}

// ShouldLog reports whether any report output should be produced.
func (c *Config) ShouldLog() bool {
	return !c.Quiet
}
