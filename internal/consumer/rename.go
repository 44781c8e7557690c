package consumer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/sha1n/relic-artifacts/internal/domain"
)

// renames maps legacy extensions to their canonical replacement.
var renames = []struct{ from, to string }{
	{".distribution-tgz", ".tar.gz"},
	{".distribution-zip", ".zip"},
	{".plugin", ".jar"},
}

// AutoRename renames files with legacy extensions to their canonical names. When the
// canonical file already exists the legacy file is removed.
type AutoRename struct {
	base
}

// NewAutoRename creates the auto-rename consumer.
func NewAutoRename(env Env) *AutoRename {
	includes := make([]string, len(renames))
	for i, r := range renames {
		includes[i] = "**/*" + r.from
	}
	return &AutoRename{
		base: newBase(IDAutoRename, "Automatically rename common artifact mistakes.", env.Logger, fixed(includes...), nil),
	}
}

func (c *AutoRename) BeginScan(repo *domain.Repository) error {
	return c.begin(repo)
}

func (c *AutoRename) ProcessFile(path string) error {
	for _, r := range renames {
		stem, ok := strings.CutSuffix(path, r.from)
		if !ok {
			continue
		}
		from := c.abs(path)
		to := c.abs(stem + r.to)

		_, err := os.Stat(to)
		switch {
		case err == nil:
			c.logger.Info("Removing duplicate of existing artifact", "path", path, "target", stem+r.to)
			if err := os.Remove(from); err != nil {
				return fmt.Errorf("failed to remove %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
			c.logger.Info("Renaming artifact", "path", path, "target", stem+r.to)
			if err := os.Rename(from, to); err != nil {
				return fmt.Errorf("failed to rename %s: %w", path, err)
			}
		default:
			return fmt.Errorf("failed to stat %s: %w", stem+r.to, err)
		}
		return nil
	}
	return nil
}

func (c *AutoRename) CompleteScan() error { return nil }
