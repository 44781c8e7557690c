package consumer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/sha1n/relic-artifacts/internal/domain"
	"github.com/sha1n/relic-artifacts/internal/filetypes"
)

// ArtifactDeleter is notified when a consumer deletes a file from a repository.
type ArtifactDeleter interface {
	DeleteArtifact(repo *domain.Repository, path string) error
}

// AutoRemove deletes files matching the auto-remove file type.
type AutoRemove struct {
	base
	deleter ArtifactDeleter
	removed int
}

// NewAutoRemove creates the auto-remove consumer.
func NewAutoRemove(env Env) *AutoRemove {
	return &AutoRemove{
		base:    newBase(IDAutoRemove, "Automatically remove files matching the auto-remove file type.", env.Logger, env.patterns(filetypes.AutoRemove), nil),
		deleter: env.Deleter,
	}
}

func (c *AutoRemove) BeginScan(repo *domain.Repository) error {
	c.removed = 0
	return c.begin(repo)
}

func (c *AutoRemove) ProcessFile(path string) error {
	if err := os.Remove(c.abs(path)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	c.removed++
	c.logger.Info("Removed file", "path", path)

	if c.deleter != nil {
		if err := c.deleter.DeleteArtifact(c.repo, path); err != nil {
			return err
		}
	}
	return nil
}

func (c *AutoRemove) CompleteScan() error {
	if c.removed > 0 {
		c.logger.Info("Auto-remove completed", "removed", c.removed)
	}
	return nil
}
