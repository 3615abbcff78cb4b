package funcs

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/dlclark/regexp2"
	"gitlab.com/tozd/go/errors"
)

var (
	// ErrInvalidPath is returned when a LoadFileContent parameter is not a
	// syntactically valid path.
	ErrInvalidPath = errors.Base("invalid path")

	// ErrLoadFailed is returned when the file named by LoadFileContent
	// cannot be read.
	ErrLoadFailed = errors.Base("loading file content failed")
)

var pathPattern = regexp2.MustCompile(`^[^<>"|?*\x00-\x1f]+$`, regexp2.None)

// LoadFileContent replaces the call with the full contents of a file.
type LoadFileContent struct {
	WorkingDir string
}

func (LoadFileContent) Name() string { return "LoadFileContent" }

func (f LoadFileContent) Call(param string) (string, error) {
	path := strings.TrimSpace(param)
	if !ValidPath(path) {
		return "", errors.WithDetails(ErrInvalidPath, "path", param)
	}

	filename := AbsolutePath(path, f.WorkingDir)
	content, err := os.ReadFile(filename)
	if err != nil {
		return "", errors.WithDetails(errors.Errorf("%w: %s", ErrLoadFailed, err), "path", filename)
	}
	return string(content), nil
}

// LowerCase folds its parameter to lower case.
type LowerCase struct{}

func (LowerCase) Name() string { return "LowerCase" }

func (LowerCase) Call(param string) (string, error) {
	return strings.ToLower(param), nil
}

// UpperCase folds its parameter to upper case.
type UpperCase struct{}

func (UpperCase) Name() string { return "UpperCase" }

func (UpperCase) Call(param string) (string, error) {
	return strings.ToUpper(param), nil
}

// ValidPath reports whether path is syntactically usable as a file name.
// Existence is not checked.
func ValidPath(path string) bool {
	if path == "" {
		return false
	}
	ok, err := pathPattern.MatchString(path)
	return err == nil && ok
}

// AbsolutePath resolves a relative path against workingDir. Absolute
// paths, and any path when workingDir is empty, are returned as given.
func AbsolutePath(path, workingDir string) string {
	if path == "" || filepath.IsAbs(path) || workingDir == "" {
		return path
	}
	return filepath.Join(workingDir, path)
}
