package log

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"findreplace/internal/backup"
	"findreplace/internal/concurrent"
	"findreplace/internal/config"
	"findreplace/internal/errors"
	"findreplace/internal/replacement"
)

func TestMain(m *testing.M) {
	pterm.DisableStyling()
	color.NoColor = true
	os.Exit(m.Run())
}

func sampleResults() []concurrent.ProcessResult {
	return []concurrent.ProcessResult{
		{
			Job: concurrent.ProcessJob{FilePath: "/site/a.htm"},
			Result: &replacement.FileResult{
				Path:         "/site/a.htm",
				Modified:     true,
				OriginalSize: 100,
				NewSize:      104,
				Rules: []replacement.RuleResult{
					{Rule: "links", Mode: replacement.ModeGlobal, Matches: 2},
					{Rule: "titles", Mode: replacement.ModeIndividual, Matches: 3, Dropped: 1},
				},
			},
			BackupPath: "/site/a-20250101-000000.htm",
		},
		{
			Job: concurrent.ProcessJob{FilePath: "/site/b.htm"},
			Result: &replacement.FileResult{
				Path:  "/site/b.htm",
				Rules: []replacement.RuleResult{{Rule: "links", Mode: replacement.ModeGlobal}},
			},
		},
		{
			Job:   concurrent.ProcessJob{FilePath: "/site/c.htm"},
			Error: errors.NewFileNotReadableError("/site/c.htm", stderrors.New("permission denied")),
		},
	}
}

func newTestLogger(cfg *config.Config) (*Logger, *bytes.Buffer, *bytes.Buffer) {
	report := &bytes.Buffer{}
	console := &bytes.Buffer{}
	return NewLoggerWithWriters(cfg, report, console), report, console
}

func TestLogResultSummary(t *testing.T) {
	logger, _, _ := newTestLogger(&config.Config{})
	for _, r := range sampleResults() {
		logger.LogResult(r)
	}

	s := logger.Summary()
	assert.Equal(t, 3, s.TotalFiles)
	assert.Equal(t, 1, s.ModifiedFiles)
	assert.Equal(t, 5, s.TotalMatches)
	assert.Equal(t, 1, s.DroppedMatches)
	assert.Equal(t, 1, s.ErrorCount)

	entries := logger.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, 5, entries[0].Matches)
	require.Len(t, entries[0].Rules, 2)
	assert.Equal(t, "individual", entries[0].Rules[1].Mode)
	assert.Contains(t, entries[2].Error, "not readable")
}

func TestLogResultOutFileCountsAsModified(t *testing.T) {
	logger, _, _ := newTestLogger(&config.Config{})
	logger.LogResult(concurrent.ProcessResult{
		Job:        concurrent.ProcessJob{FilePath: "/in.txt"},
		Result:     &replacement.FileResult{Path: "/in.txt"},
		OutputPath: "/out.txt",
	})

	assert.True(t, logger.Entries()[0].Modified)
	assert.Equal(t, 1, logger.Summary().ModifiedFiles)
}

func TestJSONReport(t *testing.T) {
	logger, report, _ := newTestLogger(&config.Config{LogFormat: config.LogFormatJSON, DryRun: true})
	for _, r := range sampleResults() {
		logger.LogResult(r)
	}
	logger.SetProcessingTime(1500 * time.Millisecond)
	require.NoError(t, logger.WriteReport())

	var decoded struct {
		Summary Summary `json:"summary"`
		Entries []Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(report.Bytes(), &decoded))
	assert.True(t, decoded.Summary.DryRun)
	assert.Equal(t, 1500*time.Millisecond, decoded.Summary.ProcessingTime)
	require.Len(t, decoded.Entries, 3)
	assert.Equal(t, "/site/a-20250101-000000.htm", decoded.Entries[0].BackupPath)
}

func TestCSVReport(t *testing.T) {
	logger, report, _ := newTestLogger(&config.Config{LogFormat: config.LogFormatCSV})
	for _, r := range sampleResults() {
		logger.LogResult(r)
	}
	require.NoError(t, logger.WriteReport())

	var rows []string
	var comments []string
	for _, line := range strings.Split(strings.TrimSpace(report.String()), "\n") {
		if strings.HasPrefix(line, "#") {
			comments = append(comments, line)
		} else {
			rows = append(rows, line)
		}
	}

	records, err := csv.NewReader(strings.NewReader(strings.Join(rows, "\n"))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 5, "header, two rules for a.htm, one for b.htm, one for c.htm")
	assert.Equal(t, []string{"file_path", "output_path", "rule", "mode", "matches", "dropped", "modified", "backup_path", "error"}, records[0])
	assert.Equal(t, []string{"/site/a.htm", "", "titles", "individual", "3", "1", "true", "/site/a-20250101-000000.htm", ""}, records[2])
	assert.Equal(t, "/site/c.htm", records[4][0])
	assert.NotEmpty(t, records[4][8])

	assert.Contains(t, comments, "# findreplace CSV report (production)")
	assert.Contains(t, comments, "# Total matches: 5")
}

func TestCSVReportCanBeReverted(t *testing.T) {
	dir := t.TempDir()
	page := filepath.Join(dir, "page.htm")
	require.NoError(t, os.WriteFile(page, []byte("before"), 0o644))

	backupPath, err := backup.NewBackupManager(true).BackupFile(page)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(page, []byte("after"), 0o644))

	logPath := filepath.Join(dir, "run.csv")
	cfg := &config.Config{WorkingDir: dir, LogFile: logPath, LogFormat: config.LogFormatCSV}
	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	logger.console = &bytes.Buffer{}

	logger.LogResult(concurrent.ProcessResult{
		Job: concurrent.ProcessJob{FilePath: page},
		Result: &replacement.FileResult{
			Path:     page,
			Modified: true,
			Rules: []replacement.RuleResult{
				{Rule: "one", Mode: replacement.ModeLiteral, Matches: 1},
				{Rule: "two", Mode: replacement.ModeLiteral, Matches: 1},
			},
		},
		BackupPath: backupPath,
	})
	require.NoError(t, logger.WriteReport())
	require.NoError(t, logger.Close())

	reverted, _, err := backup.NewRevertManager().RevertFromLogWithFormat(logPath, "csv")
	require.NoError(t, err)
	assert.Equal(t, 1, reverted)

	content, err := os.ReadFile(page)
	require.NoError(t, err)
	assert.Equal(t, "before", string(content))
}

func TestSummaryReport(t *testing.T) {
	logger, report, _ := newTestLogger(&config.Config{LogFormat: config.LogFormatSummary})
	for _, r := range sampleResults() {
		logger.LogResult(r)
	}
	require.NoError(t, logger.WriteReport())

	out := report.String()
	assert.Contains(t, out, "findreplace summary (production)")
	assert.Contains(t, out, "Files processed")
	assert.Contains(t, out, "Dropped matches")
	assert.Contains(t, out, "/site/c.htm")
	assert.Contains(t, out, "could not be evaluated")
	assert.Contains(t, out, "Files changed")
	assert.Contains(t, out, "titles")
}

func TestRuleTotals(t *testing.T) {
	logger, report, _ := newTestLogger(&config.Config{})
	for _, r := range sampleResults() {
		logger.LogResult(r)
	}
	logger.LogResult(concurrent.ProcessResult{
		Job: concurrent.ProcessJob{FilePath: "/site/d.htm"},
		Result: &replacement.FileResult{
			Path: "/site/d.htm",
			Rules: []replacement.RuleResult{
				{Rule: "links", Mode: replacement.ModeGlobal, Matches: 4},
				{Rule: "footer", Skipped: true},
			},
		},
	})

	assert.Equal(t, []ruleTotal{
		{Rule: "links", Matches: 6, Files: 2},
		{Rule: "titles", Matches: 3, Files: 1},
		{Rule: "footer", Disabled: true},
	}, logger.ruleTotals())

	require.NoError(t, logger.WriteReport())
	assert.Contains(t, report.String(), "disabled")
}

func TestQuietSkipsConsoleReport(t *testing.T) {
	logger, report, _ := newTestLogger(&config.Config{Quiet: true})
	for _, r := range sampleResults() {
		logger.LogResult(r)
	}
	require.NoError(t, logger.WriteReport())
	assert.Empty(t, report.String())
}

func TestVerboseOutput(t *testing.T) {
	logger, _, console := newTestLogger(&config.Config{Verbose: true, Debug: true})
	for _, r := range sampleResults() {
		logger.LogResult(r)
	}

	out := console.String()
	assert.Contains(t, out, "MODIFIED: /site/a.htm (5 matches)")
	assert.Contains(t, out, "titles: 3 matches (individual), 1 dropped")
	assert.Contains(t, out, "SKIPPED: /site/b.htm")
	assert.Contains(t, out, "ERROR: /site/c.htm")
}

func TestNewLoggerInvalidPath(t *testing.T) {
	_, err := NewLogger(&config.Config{LogFile: "/invalid/path/that/does/not/exist/run.json"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeFile))
}

func TestLevel(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		want zerolog.Level
	}{
		{"default", config.Config{}, zerolog.WarnLevel},
		{"verbose", config.Config{Verbose: true}, zerolog.InfoLevel},
		{"debug", config.Config{Debug: true}, zerolog.DebugLevel},
		{"quiet wins", config.Config{Quiet: true, Debug: true}, zerolog.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Level(&tt.cfg))
		})
	}
}

func TestSetupWritesJSONToNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(&config.Config{Verbose: true}, &buf)

	logger.Info().Str("rule", "links").Msg("replacing matches")
	logger.Debug().Msg("hidden")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "replacing matches", line["message"])
	assert.Equal(t, "links", line["rule"])
	assert.NotContains(t, buf.String(), "hidden")
}
