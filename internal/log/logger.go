// Package log sets up diagnostic logging and writes the end-of-run report.
// The report comes as a console summary, a JSON document or CSV with one
// row per rule applied to each file. The JSON and CSV forms can later
// drive a revert.
package log

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/pterm/pterm"

	"findreplace/internal/concurrent"
	"findreplace/internal/config"
	"findreplace/internal/errors"
)

// RuleEntry records what one rule did to one file.
type RuleEntry struct {
	Rule    string `json:"rule"`
	Mode    string `json:"mode,omitempty"`
	Matches int    `json:"matches"`
	Dropped int    `json:"dropped,omitempty"`
	Groups  int    `json:"groups,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
}

// Entry represents the processing of a single file.
type Entry struct {
	Timestamp    string      `json:"timestamp"`
	FilePath     string      `json:"file_path"`
	OutputPath   string      `json:"output_path,omitempty"`
	OriginalSize int64       `json:"original_size"`
	NewSize      int64       `json:"new_size"`
	Modified     bool        `json:"modified"`
	Matches      int         `json:"matches"`
	Dropped      int         `json:"dropped,omitempty"`
	Rules        []RuleEntry `json:"rules,omitempty"`
	BackupPath   string      `json:"backup_path,omitempty"`
	Error        string      `json:"error,omitempty"`
}

// Summary holds the aggregate statistics of a run.
type Summary struct {
	TotalFiles     int           `json:"total_files"`
	ModifiedFiles  int           `json:"modified_files"`
	TotalMatches   int           `json:"total_matches"`
	DroppedMatches int           `json:"dropped_matches"`
	ErrorCount     int           `json:"error_count"`
	ProcessingTime time.Duration `json:"processing_time"`
	DryRun         bool          `json:"dry_run"`
}

// Logger collects per-file results and renders the report. Progress lines
// go to the console; the report goes to the log file or standard output.
type Logger struct {
	config  *config.Config
	writer  io.Writer
	console io.Writer
	entries []Entry
	summary Summary
}

// NewLogger creates a Logger writing its report to cfg.LogFile, or to
// standard output when no log file is set.
func NewLogger(cfg *config.Config) (*Logger, error) {
	var writer io.Writer = os.Stdout

	if cfg.LogFile != "" {
		path := cfg.Resolve(cfg.LogFile)
		file, err := os.Create(path)
		if err != nil {
			return nil, errors.NewFileNotWritableError(path, err)
		}
		writer = file
	}

	return NewLoggerWithWriters(cfg, writer, os.Stderr), nil
}

// NewLoggerWithWriters creates a Logger with explicit report and console
// destinations.
func NewLoggerWithWriters(cfg *config.Config, report, console io.Writer) *Logger {
	return &Logger{
		config:  cfg,
		writer:  report,
		console: console,
		entries: []Entry{},
		summary: Summary{
			DryRun: cfg.DryRun,
		},
	}
}

// LogResult records the outcome of processing one file.
func (l *Logger) LogResult(result concurrent.ProcessResult) {
	entry := Entry{
		Timestamp:  time.Now().Format(time.RFC3339),
		FilePath:   result.Job.FilePath,
		OutputPath: result.OutputPath,
		BackupPath: result.BackupPath,
	}

	if r := result.Result; r != nil {
		entry.OriginalSize = r.OriginalSize
		entry.NewSize = r.NewSize
		entry.Modified = r.Modified || result.Written(l.config.DryRun)
		entry.Matches = r.Matches()
		entry.Dropped = r.Dropped()
		for _, rr := range r.Rules {
			entry.Rules = append(entry.Rules, RuleEntry{
				Rule:    rr.Rule,
				Mode:    string(rr.Mode),
				Matches: rr.Matches,
				Dropped: rr.Dropped,
				Groups:  rr.Groups,
				Skipped: rr.Skipped,
			})
		}
	}

	if result.Error != nil {
		entry.Error = result.Error.Error()
		entry.Modified = false
		l.summary.ErrorCount++
	}

	if entry.Modified {
		l.summary.ModifiedFiles++
	}
	l.summary.TotalMatches += entry.Matches
	l.summary.DroppedMatches += entry.Dropped
	l.summary.TotalFiles++
	l.entries = append(l.entries, entry)

	if l.config.IsVerbose() {
		l.logVerbose(entry)
	}
}

// Entries returns the recorded entries.
func (l *Logger) Entries() []Entry {
	return l.entries
}

// Summary returns the aggregate statistics recorded so far.
func (l *Logger) Summary() Summary {
	return l.summary
}

// SetProcessingTime records the total run duration.
func (l *Logger) SetProcessingTime(duration time.Duration) {
	l.summary.ProcessingTime = duration
}

// WriteReport renders the report in the configured format. Quiet runs
// still write a report to an explicit log file.
func (l *Logger) WriteReport() error {
	if l.config.Quiet && l.config.LogFile == "" {
		return nil
	}

	switch l.config.LogFormat {
	case config.LogFormatJSON:
		return l.writeJSONReport()
	case config.LogFormatCSV:
		return l.writeCSVReport()
	default:
		return l.writeSummaryReport()
	}
}

func (l *Logger) logVerbose(entry Entry) {
	if entry.Error != "" {
		color.New(color.FgRed).Fprintf(l.console, "ERROR: %s - %s\n", entry.FilePath, entry.Error)
		return
	}

	if !entry.Modified {
		color.New(color.FgHiBlack).Fprintf(l.console, "SKIPPED: %s (no changes)\n", entry.FilePath)
		return
	}

	target := entry.FilePath
	if entry.OutputPath != "" {
		target = entry.FilePath + " -> " + entry.OutputPath
	}
	color.New(color.FgGreen).Fprintf(l.console, "MODIFIED: %s (%d matches)\n", target, entry.Matches)

	if l.config.IsDebug() {
		for _, rule := range entry.Rules {
			if rule.Skipped {
				fmt.Fprintf(l.console, "  %s: disabled\n", rule.Rule)
				continue
			}
			fmt.Fprintf(l.console, "  %s: %d matches (%s)", rule.Rule, rule.Matches, rule.Mode)
			if rule.Dropped > 0 {
				color.New(color.FgYellow).Fprintf(l.console, ", %d dropped", rule.Dropped)
			}
			fmt.Fprintln(l.console)
		}
	}
}

func (l *Logger) mode() string {
	if l.summary.DryRun {
		return "dry-run"
	}
	return "production"
}

func (l *Logger) writeJSONReport() error {
	report := struct {
		Summary Summary `json:"summary"`
		Entries []Entry `json:"entries"`
	}{
		Summary: l.summary,
		Entries: l.entries,
	}

	encoder := json.NewEncoder(l.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

// writeCSVReport writes one row per rule and file, or a single row for a
// file that failed before any rule ran, followed by commented statistics.
func (l *Logger) writeCSVReport() error {
	writer := csv.NewWriter(l.writer)

	header := []string{
		"file_path", "output_path", "rule", "mode", "matches", "dropped", "modified", "backup_path", "error",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, entry := range l.entries {
		rows := entry.Rules
		if len(rows) == 0 {
			rows = []RuleEntry{{}}
		}
		for _, rule := range rows {
			record := []string{
				entry.FilePath,
				entry.OutputPath,
				rule.Rule,
				rule.Mode,
				strconv.Itoa(rule.Matches),
				strconv.Itoa(rule.Dropped),
				strconv.FormatBool(entry.Modified),
				entry.BackupPath,
				entry.Error,
			}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}

	fmt.Fprintf(l.writer, "# findreplace CSV report (%s)\n", l.mode())
	fmt.Fprintf(l.writer, "# Total files processed: %d\n", l.summary.TotalFiles)
	fmt.Fprintf(l.writer, "# Files modified: %d\n", l.summary.ModifiedFiles)
	fmt.Fprintf(l.writer, "# Total matches: %d\n", l.summary.TotalMatches)
	fmt.Fprintf(l.writer, "# Dropped matches: %d\n", l.summary.DroppedMatches)
	fmt.Fprintf(l.writer, "# Errors: %d\n", l.summary.ErrorCount)
	fmt.Fprintf(l.writer, "# Processing time: %v\n", l.summary.ProcessingTime)

	return nil
}

func (l *Logger) writeSummaryReport() error {
	pterm.DefaultSection.WithWriter(l.writer).Printfln("findreplace summary (%s)", l.mode())

	data := pterm.TableData{
		{"Files processed", strconv.Itoa(l.summary.TotalFiles)},
		{"Files modified", strconv.Itoa(l.summary.ModifiedFiles)},
		{"Matches", strconv.Itoa(l.summary.TotalMatches)},
		{"Dropped matches", strconv.Itoa(l.summary.DroppedMatches)},
		{"Errors", strconv.Itoa(l.summary.ErrorCount)},
		{"Processing time", l.summary.ProcessingTime.String()},
	}
	if err := pterm.DefaultTable.WithData(data).WithWriter(l.writer).Render(); err != nil {
		return err
	}

	if totals := l.ruleTotals(); len(totals) > 0 {
		rows := pterm.TableData{{"Rule", "Matches", "Files changed"}}
		for _, t := range totals {
			if t.Disabled {
				rows = append(rows, []string{t.Rule, "disabled", "-"})
				continue
			}
			rows = append(rows, []string{t.Rule, strconv.Itoa(t.Matches), strconv.Itoa(t.Files)})
		}
		if err := pterm.DefaultTable.WithHasHeader().WithData(rows).WithWriter(l.writer).Render(); err != nil {
			return err
		}
	}

	if l.summary.DroppedMatches > 0 {
		pterm.Warning.WithWriter(l.writer).Printfln("%d matches were left unchanged because a function could not be evaluated", l.summary.DroppedMatches)
	}

	if l.summary.ErrorCount > 0 {
		printer := pterm.Error.WithWriter(l.writer)
		for _, entry := range l.entries {
			if entry.Error != "" {
				printer.Printfln("%s: %s", entry.FilePath, entry.Error)
			}
		}
	}

	return nil
}

// ruleTotal aggregates one rule over every file of the run.
type ruleTotal struct {
	Rule     string
	Matches  int
	Files    int
	Disabled bool
}

// ruleTotals sums rule entries across files, in rule order.
func (l *Logger) ruleTotals() []ruleTotal {
	var totals []ruleTotal
	index := make(map[string]int)

	for _, entry := range l.entries {
		for _, rule := range entry.Rules {
			i, ok := index[rule.Rule]
			if !ok {
				i = len(totals)
				index[rule.Rule] = i
				totals = append(totals, ruleTotal{Rule: rule.Rule, Disabled: rule.Skipped})
			}
			totals[i].Matches += rule.Matches
			if rule.Matches > 0 {
				totals[i].Files++
			}
		}
	}
	return totals
}

// Close releases the log file, if any. Standard output is never closed.
func (l *Logger) Close() error {
	if closer, ok := l.writer.(io.Closer); ok && l.writer != os.Stdout {
		return closer.Close()
	}
	return nil
}
