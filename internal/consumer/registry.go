package consumer

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/sha1n/relic-artifacts/internal/filetypes"
	"github.com/sha1n/relic-artifacts/internal/index"
)

// Built-in consumer ids.
const (
	IDCreateMissingChecksums = "create-missing-checksums"
	IDValidateChecksums      = "validate-checksums"
	IDAutoRename             = "auto-rename"
	IDAutoRemove             = "auto-remove"
	IDMetadataUpdater        = "metadata-updater"
	IDIndexArtifact          = "index-artifact"
	IDIndexContent           = "index-content"
	IDReportInvalidContent   = "report-invalid-content"
)

// DefaultKnownConsumers are enabled when the configuration names none.
var DefaultKnownConsumers = []string{
	IDCreateMissingChecksums,
	IDValidateChecksums,
	IDAutoRename,
	IDMetadataUpdater,
	IDIndexArtifact,
	IDIndexContent,
}

// DefaultInvalidConsumers are enabled when the configuration names none.
var DefaultInvalidConsumers = []string{
	IDReportInvalidContent,
}

// IndexOpener opens the content index of a repository and kind.
type IndexOpener interface {
	OpenContentIndex(repoID string, kind index.Kind) (index.ContentIndex, error)
}

// Env is what consumer factories may depend on.
type Env struct {
	FileTypes   *filetypes.FileTypes
	Indexes     IndexOpener
	Deleter     ArtifactDeleter
	Logger      *slog.Logger
	MaxFileSize int64
	Now         func() time.Time
}

// patterns returns a pattern source for file type id, resolved on every call so
// configuration changes apply to the next scan.
func (e Env) patterns(id string) func() []string {
	ft := e.FileTypes
	if ft == nil {
		ft = filetypes.New(nil, e.Logger)
	}
	return func() []string { return ft.Patterns(id) }
}

func (e Env) now() func() time.Time {
	if e.Now != nil {
		return e.Now
	}
	return time.Now
}

// Factory creates a fresh consumer instance.
type Factory func(env Env) Consumer

// Registry maps consumer ids to factories.
type Registry struct {
	env       Env
	logger    *slog.Logger
	factories map[string]Factory
	order     []string
}

// NewRegistry creates a Registry holding the built-in consumers.
func NewRegistry(env Env) *Registry {
	logger := env.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		env:       env,
		logger:    logger,
		factories: make(map[string]Factory),
	}
	r.Register(IDCreateMissingChecksums, func(env Env) Consumer { return NewMissingChecksums(env) })
	r.Register(IDValidateChecksums, func(env Env) Consumer { return NewValidateChecksums(env) })
	r.Register(IDAutoRename, func(env Env) Consumer { return NewAutoRename(env) })
	r.Register(IDAutoRemove, func(env Env) Consumer { return NewAutoRemove(env) })
	r.Register(IDMetadataUpdater, func(env Env) Consumer { return NewMetadataUpdater(env) })
	r.Register(IDIndexArtifact, func(env Env) Consumer { return NewIndexArtifact(env) })
	r.Register(IDIndexContent, func(env Env) Consumer { return NewIndexContent(env) })
	r.Register(IDReportInvalidContent, func(env Env) Consumer { return NewReportInvalidContent(env) })
	return r
}

// Register adds or replaces the factory for id.
func (r *Registry) Register(id string, factory Factory) {
	if _, ok := r.factories[id]; !ok {
		r.order = append(r.order, id)
	}
	r.factories[id] = factory
}

// IDs returns the registered ids in registration order.
func (r *Registry) IDs() []string {
	return slices.Clone(r.order)
}

// Create returns a new instance of the consumer registered under id.
func (r *Registry) Create(id string) (Consumer, error) {
	factory, ok := r.factories[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownConsumer, id)
	}
	return factory(r.env), nil
}

// Resolve creates the known and invalid-content consumers named by the configuration.
// Unknown ids are dropped with a warning and duplicates are ignored.
func (r *Registry) Resolve(known, invalid []string) (knownConsumers, invalidConsumers []Consumer) {
	return r.resolve(known, "known"), r.resolve(invalid, "invalid")
}

func (r *Registry) resolve(ids []string, group string) []Consumer {
	out := make([]Consumer, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		c, err := r.Create(id)
		if err != nil {
			r.logger.Warn("Dropping unknown consumer", "consumer", id, "group", group)
			continue
		}
		out = append(out, c)
	}
	return out
}
