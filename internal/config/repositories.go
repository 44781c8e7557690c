package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"sort"
	"sync"

	"github.com/sha1n/relic-artifacts/internal/domain"
	"gopkg.in/yaml.v3"
)

// Property names reported to change listeners.
const (
	PropertyRepositories     = "repositories"
	PropertyFileTypesPrefix  = "fileTypes."
	PropertyKnownConsumers   = "consumers.known"
	PropertyInvalidConsumers = "consumers.invalid"
)

// ErrInvalidRepositoryConfig indicates the repository configuration file failed validation.
var ErrInvalidRepositoryConfig = errors.New("invalid repository configuration")

// RepositoryConfig is the YAML repository configuration document.
//
//	repositories:
//	  - id: internal
//	    name: Internal Releases
//	    location: file:///var/relic/repositories/internal
//	    layout: default
//	    schedule: "0 */6 * * *"
//	file_types:
//	  artifacts: ["**/*.jar", "**/*.pom"]
//	consumers:
//	  known: [create-missing-checksums, index-artifact, index-content]
//	  invalid: [report-invalid-content]
type RepositoryConfig struct {
	Repositories []domain.Repository `yaml:"repositories"`
	FileTypes    map[string][]string `yaml:"file_types"`
	Consumers    ConsumersConfig     `yaml:"consumers"`
}

// ConsumersConfig names the enabled consumers. A nil list selects the defaults.
type ConsumersConfig struct {
	Known   []string `yaml:"known"`
	Invalid []string `yaml:"invalid"`
}

// ParseRepositoryConfig decodes and validates a repository configuration document.
// Unknown keys are rejected.
func ParseRepositoryConfig(r io.Reader) (*RepositoryConfig, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var cfg RepositoryConfig
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRepositoryConfig, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *RepositoryConfig) validate() error {
	seen := make(map[string]bool, len(c.Repositories))
	for i, repo := range c.Repositories {
		if repo.ID == "" {
			return fmt.Errorf("%w: repository #%d has no id", ErrInvalidRepositoryConfig, i+1)
		}
		if seen[repo.ID] {
			return fmt.Errorf("%w: duplicate repository id %q", ErrInvalidRepositoryConfig, repo.ID)
		}
		seen[repo.ID] = true
		if repo.Location == "" {
			return fmt.Errorf("%w: repository %q has no location", ErrInvalidRepositoryConfig, repo.ID)
		}
	}
	return nil
}

// Repositories holds the current repository configuration and its version.
// The version increases on every reload that changes the configuration.
type Repositories struct {
	mu      sync.RWMutex
	path    string
	cfg     RepositoryConfig
	version uint64
}

// NewRepositories wraps an in-memory configuration. path may be empty, in which
// case Reload is a no-op.
func NewRepositories(path string, cfg *RepositoryConfig) *Repositories {
	r := &Repositories{path: path, version: 1}
	if cfg != nil {
		r.cfg = *cfg
	}
	return r
}

// LoadRepositories reads the configuration file at path.
func LoadRepositories(path string) (*Repositories, error) {
	cfg, err := readRepositoryConfig(path)
	if err != nil {
		return nil, err
	}
	return NewRepositories(path, cfg), nil
}

func readRepositoryConfig(path string) (*RepositoryConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read repository configuration: %w", err)
	}
	return ParseRepositoryConfig(bytes.NewReader(data))
}

// Path returns the configuration file path.
func (r *Repositories) Path() string {
	return r.path
}

// Reload re-reads the configuration file and returns the names of the properties
// that changed. On error the previous configuration is kept.
func (r *Repositories) Reload() ([]string, error) {
	if r.path == "" {
		return nil, nil
	}
	cfg, err := readRepositoryConfig(r.path)
	if err != nil {
		return nil, err
	}
	return r.Replace(cfg), nil
}

// Replace swaps in cfg and returns the names of the properties that changed.
func (r *Repositories) Replace(cfg *RepositoryConfig) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := diff(&r.cfg, cfg)
	if len(changed) > 0 {
		r.cfg = *cfg
		r.version++
	}
	return changed
}

// Version returns the configuration version token.
func (r *Repositories) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// FileTypePatterns returns the configured patterns of file type id, or nil when
// the configuration does not name it.
func (r *Repositories) FileTypePatterns(id string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.cfg.FileTypes[id])
}

// List returns the configured repositories in declaration order.
func (r *Repositories) List() []domain.Repository {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.cfg.Repositories)
}

// Get returns the repository with the given id.
func (r *Repositories) Get(id string) (domain.Repository, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, repo := range r.cfg.Repositories {
		if repo.ID == id {
			return repo, true
		}
	}
	return domain.Repository{}, false
}

// KnownConsumers returns the configured known consumer ids, or nil for the defaults.
func (r *Repositories) KnownConsumers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.cfg.Consumers.Known)
}

// InvalidConsumers returns the configured invalid-content consumer ids, or nil for the defaults.
func (r *Repositories) InvalidConsumers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.cfg.Consumers.Invalid)
}

// diff returns the sorted names of the properties that differ between two configurations.
func diff(old, cur *RepositoryConfig) []string {
	var changed []string
	if !slices.EqualFunc(old.Repositories, cur.Repositories, repositoryEqual) {
		changed = append(changed, PropertyRepositories)
	}

	ids := slices.Collect(maps.Keys(old.FileTypes))
	for id := range cur.FileTypes {
		if _, ok := old.FileTypes[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		if !slices.Equal(old.FileTypes[id], cur.FileTypes[id]) {
			changed = append(changed, PropertyFileTypesPrefix+id)
		}
	}

	if !slices.Equal(old.Consumers.Known, cur.Consumers.Known) {
		changed = append(changed, PropertyKnownConsumers)
	}
	if !slices.Equal(old.Consumers.Invalid, cur.Consumers.Invalid) {
		changed = append(changed, PropertyInvalidConsumers)
	}
	return changed
}

func repositoryEqual(a, b domain.Repository) bool {
	return a.ID == b.ID &&
		a.Name == b.Name &&
		a.Location == b.Location &&
		a.Layout == b.Layout &&
		a.Schedule == b.Schedule &&
		a.IncludeSnapshots == b.IncludeSnapshots &&
		slices.Equal(a.Observers, b.Observers)
}
