// Package walker produces lazy depth-first sequences of files under a base directory,
// filtered by ANT-style include and exclude patterns.
package walker

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sha1n/relic-artifacts/internal/filetypes"
)

var (
	// ErrBaseDirMissing is returned when the base directory does not exist.
	ErrBaseDirMissing = errors.New("base directory does not exist")

	// ErrBaseDirNotDirectory is returned when the base path is not a directory.
	ErrBaseDirNotDirectory = errors.New("base path is not a directory")

	// ErrSymlinkCycle is reported when a symbolic link leads back to a visited directory.
	ErrSymlinkCycle = errors.New("symbolic link cycle")
)

// File is a regular file found under the base directory.
type File struct {
	// RelPath is '/'-separated and relative to the base directory.
	RelPath string
	AbsPath string
	ModTime time.Time
	Size    int64
}

// Options configures a Walker.
type Options struct {
	// Report receives non-fatal problems: unreadable directories, symlink cycles and
	// entries that vanish mid-walk. The walk continues after each report.
	Report func(relPath string, err error)
	Logger *slog.Logger
}

// Walker enumerates files under a base directory.
type Walker struct {
	base     string
	includes []string
	excludes []string
	prune    []string
	report   func(string, error)
	logger   *slog.Logger
}

// New validates the base directory and returns a Walker over it.
func New(base string, includes, excludes []string, opts Options) (*Walker, error) {
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", base, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrBaseDirMissing, abs)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrBaseDirNotDirectory, abs)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Walker{
		base:     abs,
		includes: normalizeAll(includes),
		excludes: normalizeAll(excludes),
		prune:    prunePatterns(excludes),
		report:   opts.Report,
		logger:   logger,
	}, nil
}

// Base returns the absolute base directory.
func (w *Walker) Base() string {
	return w.base
}

// Files returns a depth-first sequence of the files that match at least one include
// pattern and no exclude pattern. Every call starts a fresh walk.
//
// Directories behind symbolic links are walked after the real tree, so a directory
// that is both present and linked is reported under its own path.
func (w *Walker) Files() iter.Seq[File] {
	return func(yield func(File) bool) {
		visited := make(map[string]bool)
		if real, err := filepath.EvalSymlinks(w.base); err == nil {
			visited[real] = true
		}

		stack := []string{""}
		var links []string
		for len(stack) > 0 || len(links) > 0 {
			if len(stack) == 0 {
				rel := links[0]
				links = links[1:]
				if w.enter(rel, visited) {
					stack = append(stack, rel)
				}
				continue
			}
			dir := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			entries, err := os.ReadDir(filepath.Join(w.base, filepath.FromSlash(dir)))
			if err != nil {
				w.warn(dir, fmt.Errorf("unreadable directory: %w", err))
				if len(entries) == 0 {
					continue
				}
			}

			var subdirs []string
			for _, entry := range entries {
				rel := entry.Name()
				if dir != "" {
					rel = dir + "/" + rel
				}
				abs := filepath.Join(w.base, filepath.FromSlash(rel))

				info, isDir, ok := w.resolve(rel, abs, entry)
				if !ok {
					continue
				}

				if isDir {
					if w.pruned(rel) {
						continue
					}
					if entry.Type()&fs.ModeSymlink != 0 {
						links = append(links, rel)
						continue
					}
					if w.enter(rel, visited) {
						subdirs = append(subdirs, rel)
					}
					continue
				}

				if !info.Mode().IsRegular() || !w.wanted(rel) {
					continue
				}
				file := File{
					RelPath: rel,
					AbsPath: abs,
					ModTime: info.ModTime(),
					Size:    info.Size(),
				}
				if !yield(file) {
					return
				}
			}

			// Push in reverse so subdirectories are visited in name order.
			for i := len(subdirs) - 1; i >= 0; i-- {
				stack = append(stack, subdirs[i])
			}
		}
	}
}

// enter marks the real directory behind rel as visited and reports whether it
// had not been visited before.
func (w *Walker) enter(rel string, visited map[string]bool) bool {
	real, err := filepath.EvalSymlinks(filepath.Join(w.base, filepath.FromSlash(rel)))
	if err != nil {
		w.warn(rel, err)
		return false
	}
	if visited[real] {
		w.warn(rel, fmt.Errorf("%w: %s", ErrSymlinkCycle, real))
		return false
	}
	visited[real] = true
	return true
}

// resolve follows symbolic links and reports whether the entry is a directory.
func (w *Walker) resolve(rel, abs string, entry fs.DirEntry) (fs.FileInfo, bool, bool) {
	if entry.Type()&fs.ModeSymlink != 0 {
		info, err := os.Stat(abs)
		if err != nil {
			w.warn(rel, fmt.Errorf("broken symbolic link: %w", err))
			return nil, false, false
		}
		return info, info.IsDir(), true
	}

	info, err := entry.Info()
	if err != nil {
		w.warn(rel, err)
		return nil, false, false
	}
	return info, info.IsDir(), true
}

func (w *Walker) wanted(rel string) bool {
	return filetypes.MatchesAny(w.includes, rel) && !filetypes.MatchesAny(w.excludes, rel)
}

// pruned reports whether a directory is wholly excluded.
func (w *Walker) pruned(rel string) bool {
	return filetypes.MatchesAny(w.prune, rel)
}

func (w *Walker) warn(rel string, err error) {
	w.logger.Warn("Skipping path during walk", "base", w.base, "path", rel, "error", err)
	if w.report != nil {
		w.report(rel, err)
	}
}

func normalizeAll(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = filetypes.NormalizePath(p)
		if strings.HasSuffix(p, "/") {
			p += "**"
		}
		out = append(out, p)
	}
	return out
}

// prunePatterns turns "dir/**" excludes into patterns matching the directory itself.
func prunePatterns(excludes []string) []string {
	var out []string
	for _, p := range normalizeAll(excludes) {
		if dir, ok := strings.CutSuffix(p, "/**"); ok && dir != "" && dir != "**" {
			out = append(out, dir)
		}
	}
	return out
}
