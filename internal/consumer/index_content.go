package consumer

import (
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/sha1n/relic-artifacts/internal/domain"
	"github.com/sha1n/relic-artifacts/internal/filetypes"
	"github.com/sha1n/relic-artifacts/internal/index"
)

// DefaultMaxFileSize bounds the size of files whose content is indexed.
const DefaultMaxFileSize = 1024 * 1024

// IndexContent indexes the text of indexable-content files.
type IndexContent struct {
	base
	opener      IndexOpener
	maxFileSize int64
	pending     *pending
	indexed     int
	full        bool
}

// NewIndexContent creates the index-content consumer.
func NewIndexContent(env Env) *IndexContent {
	maxSize := env.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	return &IndexContent{
		base: newBase(IDIndexContent, "Index the text content of repository files.", env.Logger,
			env.patterns(filetypes.IndexableContent), fixed(filetypes.DefaultExclusions...)),
		opener:      env.Indexes,
		maxFileSize: maxSize,
	}
}

func (c *IndexContent) BeginScan(repo *domain.Repository) error {
	c.pending = nil
	if err := c.begin(repo); err != nil {
		return err
	}
	if c.opener == nil {
		return errors.New("no index manager configured")
	}
	c.indexed = 0
	p := newPending()
	if err := p.open(c.opener, repo.ID, index.KindFileContent); err != nil {
		return err
	}
	c.pending = p
	return nil
}

func (c *IndexContent) SetFullScan(full bool) {
	c.full = full
}

func (c *IndexContent) ProcessFile(relPath string) error {
	abs := c.abs(relPath)
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", relPath, err)
	}
	if info.Size() > c.maxFileSize {
		c.logger.Debug("Skipping large file", "path", relPath, "size", info.Size())
		return nil
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", relPath, err)
	}
	if IsBinary(content) {
		c.logger.Debug("Skipping binary file", "path", relPath)
		return nil
	}

	if err := c.pending.add(index.FileContentRecord{
		Repository:   c.repo.ID,
		Path:         relPath,
		Filename:     path.Base(relPath),
		Content:      string(content),
		LastModified: info.ModTime(),
		Size:         info.Size(),
	}); err != nil {
		return err
	}
	c.indexed++
	return nil
}

func (c *IndexContent) CompleteScan() error {
	if c.pending == nil {
		return nil
	}
	pruned, err := c.pending.complete(c.full)
	c.pending = nil
	c.logger.Info("Indexed file content", "count", c.indexed, "removed", pruned)
	return err
}
