package domain

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"slices"
	"strings"
)

// ErrNotFilesystem indicates the repository location cannot be scanned from local disk.
var ErrNotFilesystem = errors.New("repository is not filesystem-backed")

// Repository describes a managed artifact repository as declared in the repository configuration.
// It is read-only for the duration of a scan.
type Repository struct {
	// ID is the stable identifier used for index directories, locks and search filters.
	ID string `yaml:"id" json:"id"`

	// Name is the human-readable repository name.
	Name string `yaml:"name" json:"name"`

	// Location is the repository root, either a file:// URI or a plain filesystem path.
	// Example: "file:///var/relic/repositories/internal"
	Location string `yaml:"location" json:"location"`

	// Layout names the path layout used to map files to artifacts ("default" or "legacy").
	Layout string `yaml:"layout" json:"layout"`

	// Schedule is an optional cron expression for scheduled scans.
	Schedule string `yaml:"schedule" json:"schedule,omitempty"`

	// IncludeSnapshots controls whether snapshot versions are scanned.
	IncludeSnapshots bool `yaml:"include_snapshots" json:"include_snapshots"`

	// Observers lists the principals allowed to search this repository. Empty means everyone.
	Observers []string `yaml:"observers" json:"observers,omitempty"`
}

// IsFilesystem reports whether the repository location resolves to a local directory path.
func (r *Repository) IsFilesystem() bool {
	_, err := r.BaseDir()
	return err == nil
}

// BaseDir resolves the repository location to a local directory path.
func (r *Repository) BaseDir() (string, error) {
	loc := strings.TrimSpace(r.Location)
	if loc == "" {
		return "", fmt.Errorf("%w: empty location", ErrNotFilesystem)
	}

	if !strings.Contains(loc, "://") {
		return filepath.Clean(loc), nil
	}

	u, err := url.Parse(loc)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotFilesystem, err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrNotFilesystem, u.Scheme)
	}
	if u.Path == "" {
		return "", fmt.Errorf("%w: empty path in %q", ErrNotFilesystem, loc)
	}
	return filepath.Clean(filepath.FromSlash(u.Path)), nil
}

// DisplayName returns the name, falling back to the ID.
func (r *Repository) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}

// CanBeObservedBy reports whether the principal may search this repository.
func (r *Repository) CanBeObservedBy(principal string) bool {
	if len(r.Observers) == 0 {
		return true
	}
	return slices.Contains(r.Observers, principal) || slices.Contains(r.Observers, "*")
}
