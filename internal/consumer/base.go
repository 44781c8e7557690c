package consumer

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/sha1n/relic-artifacts/internal/domain"
	"github.com/sha1n/relic-artifacts/internal/layout"
)

// base carries identity, pattern sources and the per-scan repository state shared
// by the built-in consumers.
type base struct {
	id          string
	description string
	includes    func() []string
	excludes    func() []string
	root        *slog.Logger
	logger      *slog.Logger

	repo    *domain.Repository
	baseDir string
	layout  layout.Layout
}

func newBase(id, description string, logger *slog.Logger, includes, excludes func() []string) base {
	if logger == nil {
		logger = slog.Default()
	}
	if excludes == nil {
		excludes = func() []string { return nil }
	}
	return base{
		id:          id,
		description: description,
		includes:    includes,
		excludes:    excludes,
		root:        logger.With("consumer", id),
		logger:      logger.With("consumer", id),
	}
}

func (b *base) ID() string          { return b.id }
func (b *base) Description() string { return b.description }
func (b *base) Includes() []string  { return b.includes() }
func (b *base) Excludes() []string  { return b.excludes() }

// begin resolves the repository base directory and layout for a scan.
func (b *base) begin(repo *domain.Repository) error {
	if repo == nil {
		return fmt.Errorf("%s: repository is required", b.id)
	}
	dir, err := repo.BaseDir()
	if err != nil {
		return err
	}
	lay, err := layout.Lookup(repo.Layout)
	if err != nil {
		return err
	}
	b.repo = repo
	b.baseDir = dir
	b.layout = lay
	b.logger = b.root.With("repository", repo.ID)
	return nil
}

// abs returns the absolute path of a repository-relative path.
func (b *base) abs(path string) string {
	return filepath.Join(b.baseDir, filepath.FromSlash(path))
}

func fixed(patterns ...string) func() []string {
	return func() []string { return patterns }
}
