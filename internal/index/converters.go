package index

import (
	"fmt"
	"time"

	"github.com/sha1n/relic-artifacts/internal/domain"
)

// document is the field map handed to the search engine. Absent values are
// never present as keys.
type document map[string]any

func (d document) putString(field, value string) {
	if value != "" {
		d[field] = value
	}
}

func (d document) putStrings(field string, values []string) {
	if len(values) > 0 {
		d[field] = values
	}
}

func (d document) putTime(field string, value time.Time) {
	if !value.IsZero() {
		d[field] = value
	}
}

func (d document) putSize(field string, value int64) {
	if value > 0 {
		d[field] = value
	}
}

func (d document) putArtifact(f ArtifactFields) {
	d.putString(domain.FieldRepository, f.Repository)
	d.putString(domain.FieldPath, f.Path)
	d.putString(domain.FieldFilename, f.Filename)
	d.putString(domain.FieldGroupID, f.Ref.GroupID)
	d.putString(domain.FieldArtifactID, f.Ref.ArtifactID)
	d.putString(domain.FieldVersion, f.Ref.Version)
	d.putString(domain.FieldClassifier, f.Ref.Classifier)
	d.putString(domain.FieldType, f.Ref.Type)
	d.putString(domain.FieldPackaging, f.Packaging)
	d.putTime(domain.FieldLastModified, f.LastModified)
	d.putSize(domain.FieldSize, f.Size)
}

// Document converts a record into its indexed field map.
func Document(r Record) (map[string]any, error) {
	d := document{domain.FieldKey: r.PrimaryKey()}

	switch rec := r.(type) {
	case HashcodesRecord:
		d.putArtifact(rec.ArtifactFields)
		d.putString(domain.FieldSHA1, rec.SHA1)
		d.putString(domain.FieldMD5, rec.MD5)
	case BytecodeRecord:
		d.putArtifact(rec.ArtifactFields)
		d.putString(domain.FieldSHA1, rec.SHA1)
		d.putStrings(domain.FieldClasses, rec.Classes)
		d.putStrings(domain.FieldFiles, rec.Files)
	case FileContentRecord:
		d.putString(domain.FieldRepository, rec.Repository)
		d.putString(domain.FieldPath, rec.Path)
		d.putString(domain.FieldFilename, rec.Filename)
		d.putString(domain.FieldContent, rec.Content)
		d.putTime(domain.FieldLastModified, rec.LastModified)
		d.putSize(domain.FieldSize, rec.Size)
	case MinimalArtifactRecord:
		d.putString(domain.FieldRepository, rec.Repository)
		d.putString(domain.FieldPath, rec.Path)
		d.putString(domain.FieldFilename, rec.Filename)
		d.putTime(domain.FieldLastModified, rec.LastModified)
		d.putSize(domain.FieldSize, rec.Size)
		d.putString(domain.FieldSHA1, rec.SHA1)
		d.putString(domain.FieldMD5, rec.MD5)
		d.putStrings(domain.FieldClasses, rec.Classes)
	case StandardArtifactRecord:
		d.putArtifact(rec.ArtifactFields)
		d.putString(domain.FieldSHA1, rec.SHA1)
		d.putString(domain.FieldMD5, rec.MD5)
		d.putStrings(domain.FieldClasses, rec.Classes)
		d.putStrings(domain.FieldFiles, rec.Files)
		d.putString(domain.FieldPluginPrefix, rec.PluginPrefix)
	default:
		return nil, fmt.Errorf("unsupported record type %T", r)
	}

	if d[domain.FieldKey] == "" {
		return nil, fmt.Errorf("%T has an empty primary key", r)
	}
	return d, nil
}
