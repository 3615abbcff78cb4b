// Package errors provides the typed error hierarchy for findreplace runs.
// Errors carry a category so callers can tell a broken rule file from an
// unreadable input file or a rule that cannot be applied.
package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
)

// ErrorType represents the category of error for classification and handling.
type ErrorType string

// Error categories. Rule errors abort processing of the current file;
// file and backup errors are reported per file.
const (
	ErrTypeFile    ErrorType = "file"
	ErrTypeConfig  ErrorType = "config"
	ErrTypeParsing ErrorType = "parsing"
	ErrTypeRule    ErrorType = "rule"
	ErrTypeBackup  ErrorType = "backup"
)

// FindReplaceError is the base error type that provides structured error
// information. Specific error types embed it.
type FindReplaceError struct {
	Type    ErrorType
	Path    string
	Message string
	Cause   error
}

func (e *FindReplaceError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s error for %s: %s", e.Type, e.Path, msg)
	}
	return fmt.Sprintf("%s error: %s", e.Type, msg)
}

func (e *FindReplaceError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a FindReplaceError of the same type, so
// that errors.Is(err, &FindReplaceError{Type: ErrTypeRule}) matches any
// rule error in a chain.
func (e *FindReplaceError) Is(target error) bool {
	t, ok := target.(*FindReplaceError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// FileError represents file system operation errors.
type FileError struct {
	*FindReplaceError
}

// NewFileError creates a file operation error with context.
func NewFileError(path, message string, cause error) *FileError {
	return &FileError{
		FindReplaceError: &FindReplaceError{
			Type:    ErrTypeFile,
			Path:    path,
			Message: message,
			Cause:   cause,
		},
	}
}

// FileNotFoundError represents errors when files cannot be located.
type FileNotFoundError struct {
	*FileError
}

// NewFileNotFoundError creates a file not found error.
func NewFileNotFoundError(path string, cause error) *FileNotFoundError {
	return &FileNotFoundError{
		FileError: NewFileError(path, "file not found", cause),
	}
}

// FileNotWritableError represents errors when files cannot be written to.
type FileNotWritableError struct {
	*FileError
}

// NewFileNotWritableError creates a file write permission error.
func NewFileNotWritableError(path string, cause error) *FileNotWritableError {
	return &FileNotWritableError{
		FileError: NewFileError(path, "file not writable", cause),
	}
}

// FileNotReadableError represents errors when files cannot be read from.
// Bulk runs skip such files and continue with the rest.
type FileNotReadableError struct {
	*FileError
}

// NewFileNotReadableError creates a file read permission error.
func NewFileNotReadableError(path string, cause error) *FileNotReadableError {
	return &FileNotReadableError{
		FileError: NewFileError(path, "file not readable", cause),
	}
}

// ConfigError represents configuration validation errors. These stop a run
// before any file is touched.
type ConfigError struct {
	*FindReplaceError
}

// NewConfigError creates a configuration error without path context.
func NewConfigError(message string, cause error) *ConfigError {
	return &ConfigError{
		FindReplaceError: &FindReplaceError{
			Type:    ErrTypeConfig,
			Message: message,
			Cause:   cause,
		},
	}
}

// NewConfigErrorWithPath creates a configuration error with file context.
func NewConfigErrorWithPath(path, message string, cause error) *ConfigError {
	return &ConfigError{
		FindReplaceError: &FindReplaceError{
			Type:    ErrTypeConfig,
			Path:    path,
			Message: message,
			Cause:   cause,
		},
	}
}

// ParsingError represents errors while reading a rule file.
type ParsingError struct {
	*FindReplaceError
}

// NewParsingError creates a parsing error with file and context information.
func NewParsingError(path, message string, cause error) *ParsingError {
	return &ParsingError{
		FindReplaceError: &FindReplaceError{
			Type:    ErrTypeParsing,
			Path:    path,
			Message: message,
			Cause:   cause,
		},
	}
}

// RuleError represents a rule that could not be applied: a malformed
// pattern, a match timeout, or an internal edit conflict. No partial result
// of the rule is kept.
type RuleError struct {
	*FindReplaceError
	Rule string
}

// NewRuleError creates a rule application error.
func NewRuleError(path, rule, message string, cause error) *RuleError {
	return &RuleError{
		FindReplaceError: &FindReplaceError{
			Type:    ErrTypeRule,
			Path:    path,
			Message: fmt.Sprintf("rule %q: %s", rule, message),
			Cause:   cause,
		},
		Rule: rule,
	}
}

// BackupError represents errors during backup and restore operations.
type BackupError struct {
	*FindReplaceError
}

// NewBackupError creates a backup operation error.
func NewBackupError(path, message string, cause error) *BackupError {
	return &BackupError{
		FindReplaceError: &FindReplaceError{
			Type:    ErrTypeBackup,
			Path:    path,
			Message: message,
			Cause:   cause,
		},
	}
}

// WrapFileError converts standard Go errors into typed file errors.
func WrapFileError(path string, err error) error {
	if err == nil {
		return nil
	}

	absPath, absErr := filepath.Abs(path)
	if absErr != nil {
		absPath = path
	}

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return NewFileNotFoundError(absPath, err)
	case errors.Is(err, fs.ErrPermission):
		return NewFileNotReadableError(absPath, err)
	default:
		return NewFileError(absPath, "file operation failed", err)
	}
}

// IsType reports whether err has a FindReplaceError of type t in its chain.
func IsType(err error, t ErrorType) bool {
	return errors.Is(err, &FindReplaceError{Type: t})
}

func (e *FindReplaceError) details() *FindReplaceError {
	return e
}

// Details returns the first FindReplaceError found in the chain of err,
// including one embedded in a more specific error type.
func Details(err error) (*FindReplaceError, bool) {
	for err != nil {
		if d, ok := err.(interface{ details() *FindReplaceError }); ok {
			return d.details(), true
		}
		err = errors.Unwrap(err)
	}
	return nil, false
}
