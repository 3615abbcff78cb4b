// Package filter resolves the set of files a run operates on. Patterns are
// doublestar globs relative to the working directory; matches then pass
// through a chain of filters.
package filter

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"

	"findreplace/internal/backup"
	"findreplace/internal/config"
	"findreplace/internal/errors"
)

// FileInfo contains the metadata needed to process one file.
type FileInfo struct {
	Path    string
	Name    string
	Size    int64
	ModTime int64
}

// FileFilter decides whether a matched file is processed.
type FileFilter func(path string, info os.FileInfo) (bool, error)

// FileDiscovery resolves the configured file patterns.
type FileDiscovery struct {
	config  *config.Config
	filters []FileFilter
}

// NewFileDiscovery creates a FileDiscovery with filters built from cfg.
func NewFileDiscovery(cfg *config.Config) *FileDiscovery {
	return &FileDiscovery{
		config:  cfg,
		filters: buildFilters(cfg),
	}
}

// Discover returns the files to process, sorted by path. With an input
// file configured, that file is the only result and no filter applies.
func (fd *FileDiscovery) Discover(ctx context.Context) ([]FileInfo, error) {
	if fd.config.InFile != "" {
		info, err := os.Stat(fd.config.InFile)
		if err != nil {
			return nil, errors.WrapFileError(fd.config.InFile, err)
		}
		return []FileInfo{newFileInfo(fd.config.InFile, info)}, nil
	}

	logger := zerolog.Ctx(ctx)

	paths, err := Glob(fd.config.WorkingDir, fd.config.Files)
	if err != nil {
		return nil, err
	}

	var files []FileInfo
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsPermission(err) {
				logger.Warn().Str("file", path).Msg("skipping unreadable file")
				continue
			}
			return nil, errors.WrapFileError(path, err)
		}

		ok, err := fd.shouldProcessFile(path, info)
		if err != nil {
			return nil, err
		}
		if ok {
			files = append(files, newFileInfo(path, info))
		}
	}

	logger.Debug().Int("matched", len(paths)).Int("selected", len(files)).Msg("resolved files")
	return files, nil
}

// Glob expands patterns against workingDir and returns the distinct
// matching regular files, sorted. Absolute patterns are used as given.
func Glob(workingDir string, patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var paths []string

	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(workingDir, pattern)
		}

		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, errors.NewConfigError("invalid file pattern: "+pattern, err)
		}

		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				paths = append(paths, m)
			}
		}
	}

	sort.Strings(paths)
	return paths, nil
}

func newFileInfo(path string, info os.FileInfo) FileInfo {
	return FileInfo{
		Path:    path,
		Name:    filepath.Base(path),
		Size:    info.Size(),
		ModTime: info.ModTime().Unix(),
	}
}

func (fd *FileDiscovery) shouldProcessFile(path string, info os.FileInfo) (bool, error) {
	for _, filter := range fd.filters {
		should, err := filter(path, info)
		if err != nil {
			return false, err
		}
		if !should {
			return false, nil
		}
	}
	return true, nil
}

func buildFilters(cfg *config.Config) []FileFilter {
	var filters []FileFilter

	filters = append(filters, extensionFilter(cfg))

	if len(cfg.Exclude) > 0 {
		filters = append(filters, excludeFilter(cfg.WorkingDir, cfg.Exclude))
	}

	filters = append(filters, regularFileFilter())

	return filters
}

func extensionFilter(cfg *config.Config) FileFilter {
	return func(path string, _ os.FileInfo) (bool, error) {
		return cfg.ShouldProcessExtension(filepath.Ext(path)), nil
	}
}

// excludeFilter rejects files whose base name or working-directory
// relative path matches any pattern.
func excludeFilter(workingDir string, patterns []string) FileFilter {
	return func(path string, _ os.FileInfo) (bool, error) {
		rel, err := filepath.Rel(workingDir, path)
		if err != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)
		base := filepath.Base(path)

		for _, pattern := range patterns {
			if !doublestar.ValidatePattern(pattern) {
				return false, errors.NewConfigError("invalid exclude pattern: "+pattern, doublestar.ErrBadPattern)
			}
			if doublestar.MatchUnvalidated(pattern, base) || doublestar.MatchUnvalidated(pattern, rel) {
				return false, nil
			}
		}
		return true, nil
	}
}

// regularFileFilter keeps regular files that are not backups written by
// an earlier run.
func regularFileFilter() FileFilter {
	return func(path string, info os.FileInfo) (bool, error) {
		if !info.Mode().IsRegular() {
			return false, nil
		}
		return !backup.IsBackupName(path), nil
	}
}
