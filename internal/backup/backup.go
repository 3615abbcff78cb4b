// Package backup copies files aside before they are overwritten and puts
// them back when a write fails or a run is reverted.
package backup

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dlclark/regexp2"

	"findreplace/internal/errors"
)

const timestampLayout = "20060102-150405"

var backupName = regexp2.MustCompile(`-[0-9]{8}-[0-9]{6}(-[0-9]+)?(\.[^.]*)?$`, regexp2.None)

// Manager handles file backup and restoration operations.
type Manager struct {
	enabled bool
	now     func() time.Time
}

// NewBackupManager creates a Manager. A disabled manager makes no copies.
func NewBackupManager(enabled bool) *Manager {
	return &Manager{
		enabled: enabled,
		now:     time.Now,
	}
}

// BackupFile copies filePath to name-YYYYMMDD-HHMMSS.ext in the same
// directory and returns the copy's path. It returns "" when backups are
// disabled.
func (bm *Manager) BackupFile(filePath string) (string, error) {
	if !bm.enabled {
		return "", nil
	}

	srcFile, err := os.Open(filePath)
	if err != nil {
		return "", errors.NewBackupError(filePath, "failed to open source file", err)
	}
	defer srcFile.Close()

	dstFile, backupPath, err := createUnique(generateBackupPath(filePath, bm.now()))
	if err != nil {
		return "", errors.NewBackupError(backupPath, "failed to create backup file", err)
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		_ = os.Remove(backupPath)
		return "", errors.NewBackupError(backupPath, "failed to copy file content", err)
	}

	if srcInfo, err := os.Stat(filePath); err == nil {
		_ = os.Chmod(backupPath, srcInfo.Mode())
	}

	return backupPath, nil
}

// RestoreFile overwrites originalPath with the backup's content.
func (bm *Manager) RestoreFile(originalPath, backupPath string) error {
	if backupPath == "" {
		return nil
	}

	srcFile, err := os.Open(backupPath)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.NewBackupError(backupPath, "backup file not found", err)
		}
		return errors.NewBackupError(backupPath, "failed to open backup file", err)
	}
	defer srcFile.Close()

	dstFile, err := os.Create(originalPath)
	if err != nil {
		return errors.NewBackupError(originalPath, "failed to create original file", err)
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return errors.NewBackupError(originalPath, "failed to restore file content", err)
	}

	if backupInfo, err := os.Stat(backupPath); err == nil {
		_ = os.Chmod(originalPath, backupInfo.Mode())
	}

	return nil
}

// IsBackupName reports whether name looks like a file written by
// BackupFile.
func IsBackupName(name string) bool {
	ok, err := backupName.MatchString(filepath.Base(name))
	return err == nil && ok
}

func generateBackupPath(originalPath string, at time.Time) string {
	dir := filepath.Dir(originalPath)
	base := filepath.Base(originalPath)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)

	return filepath.Join(dir, fmt.Sprintf("%s-%s%s", name, at.Format(timestampLayout), ext))
}

// createUnique creates path, or path with a -N suffix before the
// extension when a backup from the same second already exists.
func createUnique(path string) (*os.File, string, error) {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)

	candidate := path
	for i := 1; ; i++ {
		f, err := os.OpenFile(candidate, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, candidate, nil
		}
		if !os.IsExist(err) || i > 99 {
			return nil, candidate, err
		}
		candidate = fmt.Sprintf("%s-%d%s", stem, i, ext)
	}
}

// LogEntry is the part of a run report entry needed to revert a file.
type LogEntry struct {
	FilePath   string `json:"file_path"`
	OutputPath string `json:"output_path,omitempty"`
	Modified   bool   `json:"modified"`
	BackupPath string `json:"backup_path,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Target returns the file that was written for this entry.
func (e LogEntry) Target() string {
	if e.OutputPath != "" {
		return e.OutputPath
	}
	return e.FilePath
}

// RevertManager restores the files of a previous run from the backups
// recorded in its report.
type RevertManager struct {
	backups *Manager
}

// NewRevertManager creates a RevertManager.
func NewRevertManager() *RevertManager {
	return &RevertManager{backups: NewBackupManager(true)}
}

// RevertFromLogWithFormat restores every written file listed in the
// report at logFilePath. Entries without a backup are skipped and
// counted.
func (rm *RevertManager) RevertFromLogWithFormat(logFilePath string, logFormat string) (reverted, skipped int, err error) {
	entries, err := rm.parseLogFileWithFormat(logFilePath, logFormat)
	if err != nil {
		return 0, 0, err
	}

	var revertErrors []error
	for _, entry := range entries {
		if !entry.Modified || entry.Error != "" {
			continue
		}
		if entry.BackupPath == "" {
			skipped++
			continue
		}

		if err := rm.backups.RestoreFile(entry.Target(), entry.BackupPath); err != nil {
			revertErrors = append(revertErrors, err)
			continue
		}
		reverted++
	}

	if len(revertErrors) > 0 {
		return reverted, skipped, errors.NewBackupError(logFilePath,
			fmt.Sprintf("revert completed with %d successes and %d errors", reverted, len(revertErrors)),
			revertErrors[0])
	}

	return reverted, skipped, nil
}

func (rm *RevertManager) parseLogFileWithFormat(logFilePath string, logFormat string) ([]LogEntry, error) {
	content, err := os.ReadFile(logFilePath)
	if err != nil {
		return nil, errors.WrapFileError(logFilePath, err)
	}

	switch logFormat {
	case "json", "":
		return parseJSONLog(logFilePath, content)
	case "csv":
		return parseCSVLog(logFilePath, string(content))
	default:
		return nil, errors.NewParsingError(logFilePath, fmt.Sprintf("unsupported log format: %s", logFormat), nil)
	}
}

func parseJSONLog(logFilePath string, content []byte) ([]LogEntry, error) {
	var report struct {
		Entries []LogEntry `json:"entries"`
	}

	if err := json.Unmarshal(content, &report); err != nil {
		return nil, errors.NewParsingError(logFilePath, "failed to parse JSON log", err)
	}

	return report.Entries, nil
}

// parseCSVLog reads the rule rows of a CSV report. Columns are located by
// header name; a file appears once per rule.
func parseCSVLog(logFilePath, content string) ([]LogEntry, error) {
	var csvLines []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		csvLines = append(csvLines, line)
	}

	if len(csvLines) == 0 {
		return nil, errors.NewParsingError(logFilePath, "no CSV data found in log file", nil)
	}

	reader := csv.NewReader(strings.NewReader(strings.Join(csvLines, "\n")))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.NewParsingError(logFilePath, "failed to parse CSV data", err)
	}

	columns := make(map[string]int)
	for i, name := range records[0] {
		columns[name] = i
	}
	for _, required := range []string{"file_path", "backup_path", "modified"} {
		if _, ok := columns[required]; !ok {
			return nil, errors.NewParsingError(logFilePath, fmt.Sprintf("CSV log has no %s column", required), nil)
		}
	}

	field := func(record []string, name string) string {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}

	seen := make(map[string]bool)
	var entries []LogEntry
	for _, record := range records[1:] {
		entry := LogEntry{
			FilePath:   field(record, "file_path"),
			OutputPath: field(record, "output_path"),
			Modified:   field(record, "modified") == "true",
			BackupPath: field(record, "backup_path"),
			Error:      field(record, "error"),
		}
		if entry.FilePath == "" || seen[entry.Target()] {
			continue
		}
		seen[entry.Target()] = true
		entries = append(entries, entry)
	}

	return entries, nil
}
