package index

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/sha1n/relic-artifacts/internal/domain"
	"github.com/sha1n/relic-artifacts/internal/layout"
)

// Listener keeps the indexes of a repository consistent with artifact removals.
type Listener struct {
	manager *Manager
	logger  *slog.Logger
}

// NewListener creates a Listener over manager's indexes.
func NewListener(manager *Manager, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{manager: manager, logger: logger}
}

// DeleteArtifact removes the documents describing the file at path from every index
// of repo. Coordinate-keyed kinds are addressed through the repository layout;
// path-keyed documents are removed in any case.
func (l *Listener) DeleteArtifact(repo *domain.Repository, path string) error {
	keys := map[Kind][]string{
		KindFileContent: {path},
		KindArtifact:    {path},
	}

	lay, err := layout.Lookup(repo.Layout)
	if err != nil {
		return fmt.Errorf("repository %s: %w", repo.ID, err)
	}
	if ref, err := lay.ArtifactFromPath(path); err == nil {
		key := ref.Key()
		keys[KindHashcodes] = append(keys[KindHashcodes], key)
		keys[KindBytecode] = append(keys[KindBytecode], key)
		keys[KindArtifact] = append(keys[KindArtifact], key)
	} else {
		l.logger.Debug("Path has no artifact coordinates", "repository", repo.ID, "path", path, "error", err)
	}

	var errs []error
	for _, kind := range Kinds() {
		idx, err := l.manager.OpenExisting(repo.ID, kind)
		if errors.Is(err, ErrIndexNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := idx.DeleteRecords(keys[kind]...); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to delete %s from %s indexes: %w", path, repo.ID, err)
	}
	l.logger.Info("Deleted artifact from indexes", "repository", repo.ID, "path", path)
	return nil
}
