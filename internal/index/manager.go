package index

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
)

// IndexSuffix is the suffix for index directories.
const IndexSuffix = ".bleve"

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// Manager owns the index handles of every repository. Handles are opened once
// and shared by writers and searchers until Close.
type Manager struct {
	baseDir string
	logger  *slog.Logger
	mapping mapping.IndexMapping

	mu      sync.Mutex
	handles map[string]*BleveIndex
}

// NewManager creates a Manager storing indexes under <baseDir>/indexes.
func NewManager(baseDir string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m, err := CreateIndexMapping()
	if err != nil {
		return nil, err
	}
	return &Manager{
		baseDir: baseDir,
		logger:  logger,
		mapping: m,
		handles: make(map[string]*BleveIndex),
	}, nil
}

// Path returns the directory of the index for repoID and kind.
func (m *Manager) Path(repoID string, kind Kind) string {
	return filepath.Join(m.baseDir, "indexes", SanitizeID(repoID), string(kind)+IndexSuffix)
}

// SanitizeID maps a repository id to a safe directory name.
func SanitizeID(repoID string) string {
	s := unsafeChars.ReplaceAllString(repoID, "_")
	s = strings.Trim(s, ".")
	if s == "" {
		return "_"
	}
	return s
}

// Exists reports whether an index directory exists for repoID and kind.
func (m *Manager) Exists(repoID string, kind Kind) bool {
	return pathExists(m.Path(repoID, kind))
}

// Open returns the index for repoID and kind, creating it when absent.
// A directory that holds something other than a valid index yields ErrInvalidIndex.
func (m *Manager) Open(repoID string, kind Kind) (*BleveIndex, error) {
	return m.open(repoID, kind, true)
}

// OpenExisting returns the index for repoID and kind, or ErrIndexNotFound when
// no index has been created yet.
func (m *Manager) OpenExisting(repoID string, kind Kind) (*BleveIndex, error) {
	return m.open(repoID, kind, false)
}

func (m *Manager) open(repoID string, kind Kind, create bool) (*BleveIndex, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := repoID + "/" + string(kind)
	if h, ok := m.handles[key]; ok {
		return h, nil
	}

	path := m.Path(repoID, kind)
	idx, err := bleve.Open(path)
	if err != nil {
		empty, statErr := emptyDir(path)
		switch {
		case errors.Is(statErr, fs.ErrNotExist):
			if !create {
				return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, key)
			}
		case statErr != nil:
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidIndex, path, statErr)
		case !empty:
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidIndex, path, err)
		}

		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
		idx, err = bleve.New(path, m.mapping)
		if err != nil {
			return nil, fmt.Errorf("failed to create index %s: %w", key, err)
		}
		m.logger.Debug("Created index", "repository", repoID, "kind", kind, "path", path)
	}
	idx.SetName(repoID)

	h := &BleveIndex{repoID: repoID, kind: kind, path: path, index: idx}
	m.handles[key] = h
	return h, nil
}

// Repair removes index directories of repoID that cannot be opened so the next
// full scan rebuilds them. It returns the kinds that were removed.
func (m *Manager) Repair(repoID string) ([]Kind, error) {
	var repaired []Kind
	for _, kind := range Kinds() {
		_, err := m.OpenExisting(repoID, kind)
		if err == nil || errors.Is(err, ErrIndexNotFound) {
			continue
		}
		if !errors.Is(err, ErrInvalidIndex) {
			return repaired, err
		}

		path := m.Path(repoID, kind)
		m.logger.Warn("Removing invalid index", "repository", repoID, "kind", kind, "path", path, "error", err)
		if err := os.RemoveAll(path); err != nil {
			return repaired, fmt.Errorf("failed to remove invalid index %s: %w", path, err)
		}
		repaired = append(repaired, kind)
	}
	return repaired, nil
}

// Delete closes and removes every index of repoID.
func (m *Manager) Delete(repoID string) error {
	if err := m.CloseRepository(repoID); err != nil {
		return err
	}
	return os.RemoveAll(filepath.Join(m.baseDir, "indexes", SanitizeID(repoID)))
}

// Alias combines the existing indexes of kind for repoIDs. Repositories without an
// index are skipped; ErrIndexNotFound is returned when none has one.
// Closing the alias does not close the underlying indexes.
func (m *Manager) Alias(repoIDs []string, kind Kind) (bleve.IndexAlias, error) {
	indexes := make([]bleve.Index, 0, len(repoIDs))
	for _, repoID := range repoIDs {
		h, err := m.OpenExisting(repoID, kind)
		if errors.Is(err, ErrIndexNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to open index for %s: %w", repoID, err)
		}
		indexes = append(indexes, h.Searchable())
	}

	if len(indexes) == 0 {
		return nil, fmt.Errorf("%w: no %s indexes for %v", ErrIndexNotFound, kind, repoIDs)
	}
	return bleve.NewIndexAlias(indexes...), nil
}

// CloseRepository closes the open handles of repoID.
func (m *Manager) CloseRepository(repoID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, kind := range Kinds() {
		key := repoID + "/" + string(kind)
		if h, ok := m.handles[key]; ok {
			errs = append(errs, h.close())
			delete(m.handles, key)
		}
	}
	return errors.Join(errs...)
}

// Close closes every open handle.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for key, h := range m.handles {
		errs = append(errs, h.close())
		delete(m.handles, key)
	}
	return errors.Join(errs...)
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// emptyDir reports whether path is a directory with no entries.
func emptyDir(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	if !info.IsDir() {
		return false, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}

// OpenContentIndex is Open returning the ContentIndex interface.
func (m *Manager) OpenContentIndex(repoID string, kind Kind) (ContentIndex, error) {
	idx, err := m.Open(repoID, kind)
	if err != nil {
		return nil, err
	}
	return idx, nil
}
