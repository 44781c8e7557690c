package index

import (
	"errors"
	"fmt"
	"sync"

	"github.com/blevesearch/bleve/v2"
)

var (
	// ErrInvalidIndex is returned when an index directory holds data that cannot be opened.
	ErrInvalidIndex = errors.New("not a valid index")

	// ErrIndexNotFound is returned when no index exists for a repository and kind.
	ErrIndexNotFound = errors.New("index not found")
)

const (
	// MaxBatchSize is the maximum number of records per batch.
	MaxBatchSize = 100

	// keyPageSize is the page size used when enumerating keys.
	keyPageSize = 1000
)

// ContentIndex is a searchable record store for one repository and one record kind.
type ContentIndex interface {
	// ID is "<repository>/<kind>".
	ID() string
	Kind() Kind
	Exists() bool
	// IndexRecords replaces any document sharing a record's primary key.
	IndexRecords(records ...Record) error
	DeleteRecords(keys ...string) error
	AllRecordKeys() ([]string, error)
	Count() (uint64, error)
	// Searchable returns the query entry point.
	Searchable() bleve.Index
}

// BleveIndex is a ContentIndex stored in a bleve index directory.
type BleveIndex struct {
	repoID string
	kind   Kind
	path   string

	// mu serialises writers within the process.
	mu    sync.Mutex
	index bleve.Index
}

func (b *BleveIndex) ID() string {
	return b.repoID + "/" + string(b.kind)
}

func (b *BleveIndex) Kind() Kind {
	return b.kind
}

// Repository returns the owning repository id.
func (b *BleveIndex) Repository() string {
	return b.repoID
}

// Path returns the index directory.
func (b *BleveIndex) Path() string {
	return b.path
}

func (b *BleveIndex) Exists() bool {
	return pathExists(b.path)
}

func (b *BleveIndex) Searchable() bleve.Index {
	return b.index
}

// IndexRecords upserts records in batches of MaxBatchSize. Each record is staged as
// delete-then-add within its batch.
func (b *BleveIndex) IndexRecords(records ...Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	batch := b.index.NewBatch()
	for _, r := range records {
		if r.Kind() != b.kind {
			return fmt.Errorf("%s: cannot index %s record %q", b.ID(), r.Kind(), r.PrimaryKey())
		}
		doc, err := Document(r)
		if err != nil {
			return fmt.Errorf("%s: %w", b.ID(), err)
		}

		key := r.PrimaryKey()
		batch.Delete(key)
		if err := batch.Index(key, doc); err != nil {
			return fmt.Errorf("%s: failed to stage %q: %w", b.ID(), key, err)
		}

		if batch.Size() >= MaxBatchSize {
			if err := b.index.Batch(batch); err != nil {
				return fmt.Errorf("%s: batch index failed: %w", b.ID(), err)
			}
			batch = b.index.NewBatch()
		}
	}

	if batch.Size() > 0 {
		if err := b.index.Batch(batch); err != nil {
			return fmt.Errorf("%s: final batch index failed: %w", b.ID(), err)
		}
	}
	return nil
}

// DeleteRecords removes the documents with the given primary keys. Unknown keys are ignored.
func (b *BleveIndex) DeleteRecords(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	batch := b.index.NewBatch()
	for _, key := range keys {
		batch.Delete(key)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("%s: batch delete failed: %w", b.ID(), err)
	}
	return nil
}

// AllRecordKeys returns the primary key of every document, sorted.
func (b *BleveIndex) AllRecordKeys() ([]string, error) {
	var keys []string
	for from := 0; ; from += keyPageSize {
		req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), keyPageSize, from, false)
		req.SortBy([]string{"_id"})

		res, err := b.index.Search(req)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to list keys: %w", b.ID(), err)
		}
		for _, hit := range res.Hits {
			keys = append(keys, hit.ID)
		}
		if len(res.Hits) < keyPageSize {
			return keys, nil
		}
	}
}

func (b *BleveIndex) Count() (uint64, error) {
	return b.index.DocCount()
}

func (b *BleveIndex) close() error {
	return b.index.Close()
}
