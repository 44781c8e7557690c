// Package filetypes classifies repository-relative paths against named pattern groups.
package filetypes

import (
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// Well-known file type ids.
const (
	Artifacts        = "artifacts"
	IndexableContent = "indexable-content"
	AutoRemove       = "auto-remove"
	Ignored          = "ignored"
)

// CatchAll is the pattern used when neither configuration nor defaults define a type.
const CatchAll = "**/*"

// DefaultExclusions are the support files that never count as artifacts.
var DefaultExclusions = []string{
	"**/maven-metadata*.xml",
	"**/*.sha1",
	"**/*.asc",
	"**/*.md5",
	"**/*.pgp",
	".index*/**",
}

// defaultPatterns are the built-in pattern lists per file type id.
var defaultPatterns = map[string][]string{
	Artifacts: {
		"**/*.pom", "**/*.jar", "**/*.ear", "**/*.war", "**/*.car", "**/*.sar",
		"**/*.mar", "**/*.rar", "**/*.dtd", "**/*.tld", "**/*.tar.gz", "**/*.tar.bz2", "**/*.zip",
	},
	IndexableContent: {
		"**/*.txt", "**/*.TXT", "**/*.block", "**/*.config", "**/*.pom",
		"**/*.xml", "**/*.xsd", "**/*.dtd", "**/*.tld",
	},
	AutoRemove: {
		"**/*.bak", "**/*~", "**/*-",
	},
	Ignored: {
		"**/.htaccess", "**/KEYS", "**/*.rb", "**/*.sh", "**/.svn/**", "**/.DAV/**",
	},
}

// FileType is a named, ordered pattern group.
type FileType struct {
	ID       string
	Patterns []string
}

// Source supplies configured pattern overrides. Version must change whenever the
// configured patterns change.
type Source interface {
	FileTypePatterns(id string) []string
	Version() uint64
}

// FileTypes resolves pattern lists per file type: configuration, then built-in defaults,
// then the catch-all pattern.
type FileTypes struct {
	source Source
	logger *slog.Logger
	cache  *artifactCache
}

// New creates a FileTypes backed by source. A nil source uses the built-in defaults only.
func New(source Source, logger *slog.Logger) *FileTypes {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileTypes{
		source: source,
		logger: logger,
		cache:  &artifactCache{},
	}
}

// Patterns returns the ordered pattern list for id. The result is never empty.
func (f *FileTypes) Patterns(id string) []string {
	if f.source != nil {
		if configured := f.source.FileTypePatterns(id); len(configured) > 0 {
			return slices.Clone(configured)
		}
	}
	if defaults, ok := defaultPatterns[id]; ok {
		return slices.Clone(defaults)
	}
	f.logger.Warn("No patterns for file type, using catch-all", "file_type", id)
	return []string{CatchAll}
}

// FileType returns the resolved FileType for id.
func (f *FileTypes) FileType(id string) FileType {
	return FileType{ID: id, Patterns: f.Patterns(id)}
}

// Matches reports whether path matches any pattern of the file type id.
func (f *FileTypes) Matches(id, path string) bool {
	return MatchesAny(f.Patterns(id), path)
}

// MatchesArtifactPattern reports whether path matches the artifacts file type.
// The resolved pattern list is cached until the source version changes or
// ConfigurationChanged reports a file type property.
func (f *FileTypes) MatchesArtifactPattern(path string) bool {
	patterns := f.cache.get(f.sourceVersion(), func() []string {
		return f.Patterns(Artifacts)
	})
	return MatchesAny(patterns, path)
}

// ConfigurationChanged invalidates the artifact pattern cache when the changed
// property concerns file types.
func (f *FileTypes) ConfigurationChanged(property string) {
	if strings.Contains(property, "fileType") {
		f.cache.invalidate()
	}
}

func (f *FileTypes) sourceVersion() uint64 {
	if f.source == nil {
		return 0
	}
	return f.source.Version()
}

// artifactCache holds the resolved artifact pattern list together with the source
// version it was resolved at.
type artifactCache struct {
	mu       sync.Mutex
	valid    bool
	version  uint64
	patterns []string
}

func (c *artifactCache) get(version uint64, resolve func() []string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.valid || c.version != version {
		c.patterns = resolve()
		c.version = version
		c.valid = true
	}
	return c.patterns
}

func (c *artifactCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.valid = false
	c.patterns = nil
}

// MatchesAny reports whether path matches at least one ANT-style pattern.
// Backslashes are converted to '/' before matching.
func MatchesAny(patterns []string, path string) bool {
	path = NormalizePath(path)
	for _, pattern := range patterns {
		if Match(pattern, path) {
			return true
		}
	}
	return false
}

// Match matches a single ANT-style pattern against a '/'-separated relative path.
// A trailing '/' on the pattern is shorthand for "/**". Invalid patterns never match.
func Match(pattern, path string) bool {
	pattern = NormalizePath(pattern)
	if strings.HasSuffix(pattern, "/") {
		pattern += "**"
	}
	matched, err := doublestar.Match(pattern, path)
	return err == nil && matched
}

// NormalizePath converts backslashes to '/' and strips leading "./" and "/".
func NormalizePath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	path = strings.TrimPrefix(path, "./")
	return strings.TrimLeft(path, "/")
}
