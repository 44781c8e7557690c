package consumer

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/sha1n/relic-artifacts/internal/domain"
	"github.com/sha1n/relic-artifacts/internal/filetypes"
	"github.com/sha1n/relic-artifacts/internal/index"
)

// pending buffers records per index and flushes them in batches. It remembers the
// key of every staged record so a full scan can drop the documents it did not see.
type pending struct {
	indexes map[index.Kind]index.ContentIndex
	records map[index.Kind][]index.Record
	seen    map[index.Kind]map[string]bool
}

func newPending() *pending {
	return &pending{
		indexes: make(map[index.Kind]index.ContentIndex),
		records: make(map[index.Kind][]index.Record),
		seen:    make(map[index.Kind]map[string]bool),
	}
}

func (p *pending) open(opener IndexOpener, repoID string, kinds ...index.Kind) error {
	for _, kind := range kinds {
		idx, err := opener.OpenContentIndex(repoID, kind)
		if err != nil {
			return fmt.Errorf("failed to open %s index: %w", kind, err)
		}
		p.indexes[kind] = idx
	}
	return nil
}

// add stages r and flushes its kind once a full batch is pending.
func (p *pending) add(r index.Record) error {
	kind := r.Kind()
	if p.seen[kind] == nil {
		p.seen[kind] = make(map[string]bool)
	}
	p.seen[kind][r.PrimaryKey()] = true
	p.records[kind] = append(p.records[kind], r)
	if len(p.records[kind]) >= index.MaxBatchSize {
		return p.flushKind(kind)
	}
	return nil
}

func (p *pending) flushKind(kind index.Kind) error {
	records := p.records[kind]
	if len(records) == 0 {
		return nil
	}
	p.records[kind] = nil
	idx, ok := p.indexes[kind]
	if !ok {
		return fmt.Errorf("no %s index open", kind)
	}
	return idx.IndexRecords(records...)
}

func (p *pending) flush() error {
	var errs []error
	for _, kind := range index.Kinds() {
		errs = append(errs, p.flushKind(kind))
	}
	return errors.Join(errs...)
}

// prune deletes the documents of every open index whose key was not staged, and
// returns how many were deleted.
func (p *pending) prune() (int, error) {
	deleted := 0
	var errs []error
	for _, kind := range index.Kinds() {
		idx, ok := p.indexes[kind]
		if !ok {
			continue
		}
		keys, err := idx.AllRecordKeys()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		var stale []string
		for _, key := range keys {
			if !p.seen[kind][key] {
				stale = append(stale, key)
			}
		}
		if err := idx.DeleteRecords(stale...); err != nil {
			errs = append(errs, err)
			continue
		}
		deleted += len(stale)
	}
	return deleted, errors.Join(errs...)
}

// complete flushes the staged records and, after a full scan, prunes the rest.
func (p *pending) complete(full bool) (pruned int, err error) {
	if err := p.flush(); err != nil {
		return 0, fmt.Errorf("failed to flush records: %w", err)
	}
	if !full {
		return 0, nil
	}
	pruned, err = p.prune()
	if err != nil {
		return pruned, fmt.Errorf("failed to remove stale records: %w", err)
	}
	return pruned, nil
}

// IndexArtifact indexes checksums, archive listings and coordinates of artifacts.
type IndexArtifact struct {
	base
	opener  IndexOpener
	pending *pending
	indexed int
	full    bool
}

// NewIndexArtifact creates the index-artifact consumer.
func NewIndexArtifact(env Env) *IndexArtifact {
	return &IndexArtifact{
		base: newBase(IDIndexArtifact, "Index the checksums, classes and coordinates of artifacts.", env.Logger,
			env.patterns(filetypes.Artifacts), fixed(filetypes.DefaultExclusions...)),
		opener: env.Indexes,
	}
}

func (c *IndexArtifact) BeginScan(repo *domain.Repository) error {
	c.pending = nil
	if err := c.begin(repo); err != nil {
		return err
	}
	if c.opener == nil {
		return errors.New("no index manager configured")
	}
	c.indexed = 0
	p := newPending()
	if err := p.open(c.opener, repo.ID, index.KindHashcodes, index.KindBytecode, index.KindArtifact); err != nil {
		return err
	}
	c.pending = p
	return nil
}

func (c *IndexArtifact) SetFullScan(full bool) {
	c.full = full
}

func (c *IndexArtifact) ProcessFile(relPath string) error {
	abs := c.abs(relPath)
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", relPath, err)
	}
	digests, err := ComputeDigests(abs)
	if err != nil {
		return err
	}

	filename := path.Base(relPath)
	ref, refErr := c.layout.ArtifactFromPath(relPath)
	typ := ref.Type
	if refErr != nil {
		typ = strings.TrimPrefix(path.Ext(filename), ".")
	}

	var listing ArchiveListing
	var listErr error
	if IsArchive(typ) {
		listing, listErr = ListArchive(abs)
	}

	if refErr != nil {
		c.logger.Debug("Indexing artifact without coordinates", "path", relPath, "error", refErr)
		if err := c.pending.add(index.MinimalArtifactRecord{
			Repository:   c.repo.ID,
			Path:         relPath,
			Filename:     filename,
			LastModified: info.ModTime(),
			Size:         info.Size(),
			SHA1:         digests["sha1"],
			MD5:          digests["md5"],
			Classes:      listing.Classes,
		}); err != nil {
			return err
		}
		c.indexed++
		return listErr
	}

	fields := index.ArtifactFields{
		Repository:   c.repo.ID,
		Path:         relPath,
		Filename:     filename,
		Ref:          ref,
		Packaging:    packaging(ref),
		LastModified: info.ModTime(),
		Size:         info.Size(),
	}
	records := []index.Record{
		index.HashcodesRecord{ArtifactFields: fields, SHA1: digests["sha1"], MD5: digests["md5"]},
		index.StandardArtifactRecord{
			ArtifactFields: fields,
			SHA1:           digests["sha1"],
			MD5:            digests["md5"],
			Classes:        listing.Classes,
			Files:          listing.Files,
			PluginPrefix:   pluginPrefix(ref.ArtifactID),
		},
	}
	if IsArchive(typ) && listErr == nil {
		records = append(records, index.BytecodeRecord{
			ArtifactFields: fields,
			SHA1:           digests["sha1"],
			Classes:        listing.Classes,
			Files:          listing.Files,
		})
	}
	for _, r := range records {
		if err := c.pending.add(r); err != nil {
			return err
		}
	}
	c.indexed++
	return listErr
}

func (c *IndexArtifact) CompleteScan() error {
	if c.pending == nil {
		return nil
	}
	pruned, err := c.pending.complete(c.full)
	c.pending = nil
	c.logger.Info("Indexed artifacts", "count", c.indexed, "removed", pruned)
	return err
}

// packaging derives the project packaging from the artifact type.
func packaging(ref domain.ArtifactRef) string {
	switch ref.Type {
	case "java-source", "javadoc":
		return "jar"
	case "tar.gz", "tar.bz2":
		return ""
	default:
		return ref.Type
	}
}

// pluginPrefix derives the goal prefix of a Maven plugin from its artifact id.
func pluginPrefix(artifactID string) string {
	if p, ok := strings.CutSuffix(artifactID, "-maven-plugin"); ok && p != "" {
		return p
	}
	if p, ok := strings.CutPrefix(artifactID, "maven-"); ok {
		if p, ok = strings.CutSuffix(p, "-plugin"); ok && p != "" {
			return p
		}
	}
	return ""
}
