// Package layout maps repository-relative paths to artifact coordinates and back.
package layout

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sha1n/relic-artifacts/internal/domain"
)

const (
	// DefaultID is the Maven 2 layout.
	DefaultID = "default"
	// LegacyID is the Maven 1 layout.
	LegacyID = "legacy"
)

var (
	// ErrUnknownLayout indicates a repository references a layout that is not registered.
	ErrUnknownLayout = errors.New("unknown repository layout")

	// ErrNotArtifactPath indicates a path does not describe an artifact in the layout.
	ErrNotArtifactPath = errors.New("path is not an artifact path")
)

// Layout converts between artifact references and repository-relative paths.
type Layout interface {
	ID() string
	ArtifactFromPath(path string) (domain.ArtifactRef, error)
	PathOf(ref domain.ArtifactRef) string
}

var layouts = map[string]Layout{
	DefaultID: Default{},
	LegacyID:  Legacy{},
}

// Lookup returns the layout registered under id. An empty id selects the default layout.
func Lookup(id string) (Layout, error) {
	if id == "" {
		id = DefaultID
	}
	l, ok := layouts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLayout, id)
	}
	return l, nil
}

// normalize converts separators to '/' and trims leading slashes.
func normalize(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	return strings.TrimLeft(path, "/")
}

func notArtifact(path, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrNotArtifactPath, path, reason)
}
