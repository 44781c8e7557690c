package index

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/regexp"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/sha1n/relic-artifacts/internal/domain"
)

const (
	// ClassNameAnalyzer splits qualified class names and archive paths into identifiers.
	ClassNameAnalyzer = "classname"

	classNameTokenizer = "classname_tokenizer"
)

// CreateIndexMapping creates the mapping shared by every record kind.
func CreateIndexMapping() (mapping.IndexMapping, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomTokenizer(classNameTokenizer, map[string]any{
		"type":   regexp.Name,
		"regexp": `[\p{L}\p{N}_]+`,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register class name tokenizer: %w", err)
	}
	err = indexMapping.AddCustomAnalyzer(ClassNameAnalyzer, map[string]any{
		"type":          custom.Name,
		"tokenizer":     classNameTokenizer,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register class name analyzer: %w", err)
	}

	docMapping := bleve.NewDocumentMapping()

	// Coordinates and paths - keyword, stored, part of the composite field
	for _, name := range []string{
		domain.FieldKey,
		domain.FieldRepository,
		domain.FieldPath,
		domain.FieldFilename,
		domain.FieldGroupID,
		domain.FieldArtifactID,
		domain.FieldVersion,
		domain.FieldClassifier,
		domain.FieldType,
		domain.FieldPackaging,
		domain.FieldPluginPrefix,
	} {
		field := bleve.NewTextFieldMapping()
		field.Analyzer = keyword.Name
		field.Store = true
		docMapping.AddFieldMappingsAt(name, field)
	}

	// Checksums - keyword, stored, only found by explicit field queries
	for _, name := range []string{domain.FieldSHA1, domain.FieldMD5} {
		field := bleve.NewTextFieldMapping()
		field.Analyzer = keyword.Name
		field.Store = true
		field.IncludeInAll = false
		docMapping.AddFieldMappingsAt(name, field)
	}

	// Content - analyzed for full-text search
	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = standard.Name
	contentField.Store = true
	contentField.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt(domain.FieldContent, contentField)

	// Classes and archive entries - split into identifiers
	for _, name := range []string{domain.FieldClasses, domain.FieldFiles} {
		field := bleve.NewTextFieldMapping()
		field.Analyzer = ClassNameAnalyzer
		field.Store = true
		docMapping.AddFieldMappingsAt(name, field)
	}

	lastModified := bleve.NewDateTimeFieldMapping()
	lastModified.Store = true
	lastModified.IncludeInAll = false
	docMapping.AddFieldMappingsAt(domain.FieldLastModified, lastModified)

	size := bleve.NewNumericFieldMapping()
	size.Store = true
	size.IncludeInAll = false
	docMapping.AddFieldMappingsAt(domain.FieldSize, size)

	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name

	return indexMapping, nil
}
