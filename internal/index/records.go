package index

import (
	"time"

	"github.com/sha1n/relic-artifacts/internal/domain"
)

// Kind names the record collection an index holds.
type Kind string

const (
	KindHashcodes   Kind = "hashcodes"
	KindBytecode    Kind = "bytecode"
	KindFileContent Kind = "filecontent"
	KindArtifact    Kind = "artifact"
)

// Kinds returns every record kind.
func Kinds() []Kind {
	return []Kind{KindHashcodes, KindBytecode, KindFileContent, KindArtifact}
}

// Record is one indexable entry. PrimaryKey identifies at most one live document
// within an index.
type Record interface {
	PrimaryKey() string
	Kind() Kind
}

// ArtifactFields are the coordinates and file attributes shared by artifact-backed records.
type ArtifactFields struct {
	Repository   string
	Path         string
	Filename     string
	Ref          domain.ArtifactRef
	Packaging    string
	LastModified time.Time
	Size         int64
}

// HashcodesRecord holds the checksums of an artifact.
type HashcodesRecord struct {
	ArtifactFields
	SHA1 string
	MD5  string
}

func (r HashcodesRecord) PrimaryKey() string { return r.Ref.Key() }
func (r HashcodesRecord) Kind() Kind         { return KindHashcodes }

// BytecodeRecord holds the class and file listing of an archive artifact.
type BytecodeRecord struct {
	ArtifactFields
	SHA1    string
	Classes []string
	Files   []string
}

func (r BytecodeRecord) PrimaryKey() string { return r.Ref.Key() }
func (r BytecodeRecord) Kind() Kind         { return KindBytecode }

// FileContentRecord holds the text of a repository file.
type FileContentRecord struct {
	Repository   string
	Path         string
	Filename     string
	Content      string
	LastModified time.Time
	Size         int64
}

// PrimaryKey is the repository-relative path.
func (r FileContentRecord) PrimaryKey() string { return r.Path }
func (r FileContentRecord) Kind() Kind         { return KindFileContent }

// MinimalArtifactRecord describes a file that matches an artifact pattern but has
// no coordinates in the repository layout.
type MinimalArtifactRecord struct {
	Repository   string
	Path         string
	Filename     string
	LastModified time.Time
	Size         int64
	SHA1         string
	MD5          string
	Classes      []string
}

// PrimaryKey is the repository-relative path.
func (r MinimalArtifactRecord) PrimaryKey() string { return r.Path }
func (r MinimalArtifactRecord) Kind() Kind         { return KindArtifact }

// StandardArtifactRecord describes an artifact with full coordinates.
type StandardArtifactRecord struct {
	ArtifactFields
	SHA1         string
	MD5          string
	Classes      []string
	Files        []string
	PluginPrefix string
}

func (r StandardArtifactRecord) PrimaryKey() string { return r.Ref.Key() }
func (r StandardArtifactRecord) Kind() Kind         { return KindArtifact }
