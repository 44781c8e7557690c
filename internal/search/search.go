// Package search runs queries across the indexes of several repositories and merges
// the hits into one paginated result.
package search

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/blevesearch/bleve/v2"
	blevesearch "github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/sha1n/relic-artifacts/internal/domain"
	"github.com/sha1n/relic-artifacts/internal/index"
)

var (
	// ErrPrincipalRequired is returned when a search names no principal.
	ErrPrincipalRequired = errors.New("principal is required")

	// ErrEmptyQuery is returned when a search has nothing to match.
	ErrEmptyQuery = errors.New("query cannot be empty")
)

const (
	// AllPages selects every merged hit.
	AllPages = -1

	// DefaultPageSize is used when Limits.PageSize is not positive.
	DefaultPageSize = 30

	// DefaultMaxHits bounds the hits fetched from the indexes per search.
	DefaultMaxHits = 1000

	allField = "_all"
)

// Limits selects a page of the merged hits. Pages are zero-based.
type Limits struct {
	PageSize     int `json:"page_size"`
	SelectedPage int `json:"selected_page"`
}

// IndexProvider combines the indexes of a record kind across repositories.
type IndexProvider interface {
	Alias(repoIDs []string, kind index.Kind) (bleve.IndexAlias, error)
}

// Hit is one merged search result. Hits for the same groupId:artifactId are merged
// across versions and repositories; other hits are keyed by path.
type Hit struct {
	Key          string   `json:"key"`
	GroupID      string   `json:"group_id,omitempty"`
	ArtifactID   string   `json:"artifact_id,omitempty"`
	Versions     []string `json:"versions,omitempty"`
	Repositories []string `json:"repositories"`
	Paths        []string `json:"paths,omitempty"`
	Classes      []string `json:"classes,omitempty"`
	Score        float64  `json:"score"`
}

// Results is one page of merged hits.
type Results struct {
	Hits          []Hit    `json:"hits"`
	TotalHits     int      `json:"total_hits"`
	Limits        Limits   `json:"limits"`
	RepositoryIDs []string `json:"repository_ids"`
	Terms         []string `json:"terms,omitempty"`
}

// Searcher executes cross-repository searches. Callers pass the repositories the
// principal may see; the Searcher does not authorize.
type Searcher struct {
	provider IndexProvider
	maxHits  int
	logger   *slog.Logger
}

// NewSearcher creates a Searcher. maxHits <= 0 uses DefaultMaxHits.
func NewSearcher(provider IndexProvider, maxHits int, logger *slog.Logger) *Searcher {
	if maxHits <= 0 {
		maxHits = DefaultMaxHits
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{provider: provider, maxHits: maxHits, logger: logger}
}

// SearchForTerm searches file content for term. Previous terms narrow the search to
// the documents they matched.
func (s *Searcher) SearchForTerm(ctx context.Context, principal string, repoIDs []string, term string, limits Limits, previousTerms ...string) (*Results, error) {
	if err := requirePrincipal(principal); err != nil {
		return nil, err
	}
	terms := make([]string, 0, len(previousTerms)+1)
	for _, t := range append(slices.Clone(previousTerms), term) {
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, t)
		}
	}
	if strings.TrimSpace(term) == "" {
		return nil, ErrEmptyQuery
	}

	clauses := make([]query.Query, len(terms))
	for i, t := range terms {
		clauses[i] = termQuery(t, allField)
	}
	return s.run(ctx, principal, repoIDs, index.KindFileContent, bleve.NewConjunctionQuery(clauses...), limits, terms)
}

// SearchForBytecode searches the class and archive entry listings for term.
func (s *Searcher) SearchForBytecode(ctx context.Context, principal string, repoIDs []string, term string, limits Limits) (*Results, error) {
	if err := requirePrincipal(principal); err != nil {
		return nil, err
	}
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, ErrEmptyQuery
	}
	q := bleve.NewDisjunctionQuery(
		termQuery(term, domain.FieldClasses),
		termQuery(term, domain.FieldFiles),
	)
	return s.run(ctx, principal, repoIDs, index.KindBytecode, q, limits, []string{term})
}

// SearchForChecksum finds artifacts by SHA-1 or MD5 checksum.
func (s *Searcher) SearchForChecksum(ctx context.Context, principal string, repoIDs []string, checksum string, limits Limits) (*Results, error) {
	if err := requirePrincipal(principal); err != nil {
		return nil, err
	}
	checksum = strings.ToLower(strings.TrimSpace(checksum))
	if checksum == "" {
		return nil, ErrEmptyQuery
	}
	sha1 := bleve.NewTermQuery(checksum)
	sha1.SetField(domain.FieldSHA1)
	md5 := bleve.NewTermQuery(checksum)
	md5.SetField(domain.FieldMD5)
	return s.run(ctx, principal, repoIDs, index.KindHashcodes, bleve.NewDisjunctionQuery(sha1, md5), limits, []string{checksum})
}

// ExecuteFilteredSearch finds artifacts matching every non-empty coordinate and class name.
func (s *Searcher) ExecuteFilteredSearch(ctx context.Context, principal string, repoIDs []string, groupID, artifactID, version, className string, limits Limits) (*Results, error) {
	if err := requirePrincipal(principal); err != nil {
		return nil, err
	}
	var must []query.Query
	var terms []string
	for _, f := range []struct{ field, value string }{
		{domain.FieldGroupID, groupID},
		{domain.FieldArtifactID, artifactID},
		{domain.FieldVersion, version},
	} {
		if v := strings.TrimSpace(f.value); v != "" {
			q := bleve.NewTermQuery(v)
			q.SetField(f.field)
			must = append(must, q)
			terms = append(terms, f.field+":"+v)
		}
	}
	if className = strings.TrimSpace(className); className != "" {
		q := bleve.NewMatchQuery(className)
		q.SetField(domain.FieldClasses)
		q.SetOperator(query.MatchQueryOperatorAnd)
		must = append(must, q)
		terms = append(terms, domain.FieldClasses+":"+className)
	}
	if len(must) == 0 {
		return nil, ErrEmptyQuery
	}
	return s.run(ctx, principal, repoIDs, index.KindArtifact, bleve.NewConjunctionQuery(must...), limits, terms)
}

// termQuery matches term analyzed or as a lower-cased prefix of field.
func termQuery(term, field string) query.Query {
	match := bleve.NewMatchQuery(term)
	match.SetField(field)
	prefix := bleve.NewPrefixQuery(strings.ToLower(term))
	prefix.SetField(field)
	return bleve.NewDisjunctionQuery(match, prefix)
}

func (s *Searcher) run(ctx context.Context, principal string, repoIDs []string, kind index.Kind, q query.Query, limits Limits, terms []string) (*Results, error) {
	limits = normalize(limits)
	results := &Results{
		Hits:          []Hit{},
		Limits:        limits,
		RepositoryIDs: slices.Clone(repoIDs),
		Terms:         terms,
	}
	if len(repoIDs) == 0 {
		return results, nil
	}

	alias, err := s.provider.Alias(repoIDs, kind)
	if errors.Is(err, index.ErrIndexNotFound) {
		s.logger.Debug("No indexes to search", "kind", kind, "repositories", repoIDs)
		return results, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to access %s indexes: %w", kind, err)
	}
	defer func() { _ = alias.Close() }()

	req := bleve.NewSearchRequestOptions(q, s.maxHits, 0, false)
	req.Fields = []string{
		domain.FieldRepository, domain.FieldPath, domain.FieldGroupID,
		domain.FieldArtifactID, domain.FieldVersion, domain.FieldClasses,
	}
	req.SortBy([]string{"-_score", "_id"})

	res, err := alias.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	merged := Merge(res.Hits)
	results.TotalHits = len(merged)
	results.Hits = Page(merged, limits)

	s.logger.Debug("Search completed",
		"principal", principal, "kind", kind, "terms", terms,
		"raw_hits", len(res.Hits), "merged_hits", len(merged))
	return results, nil
}

func requirePrincipal(principal string) error {
	if strings.TrimSpace(principal) == "" {
		return ErrPrincipalRequired
	}
	return nil
}

func normalize(l Limits) Limits {
	if l.PageSize <= 0 {
		l.PageSize = DefaultPageSize
	}
	if l.SelectedPage < 0 {
		l.SelectedPage = AllPages
	}
	return l
}

// Merge folds raw hits by groupId:artifactId, falling back to path and document id,
// and orders the result by descending score then key.
func Merge(docs blevesearch.DocumentMatchCollection) []Hit {
	byKey := make(map[string]*Hit)
	var order []string

	for _, doc := range docs {
		groupID := fieldString(doc.Fields[domain.FieldGroupID])
		artifactID := fieldString(doc.Fields[domain.FieldArtifactID])
		path := fieldString(doc.Fields[domain.FieldPath])

		key := doc.ID
		switch {
		case groupID != "" && artifactID != "":
			key = groupID + ":" + artifactID
		case path != "":
			key = path
		}

		hit, ok := byKey[key]
		if !ok {
			hit = &Hit{Key: key, GroupID: groupID, ArtifactID: artifactID}
			byKey[key] = hit
			order = append(order, key)
		}
		hit.Score = max(hit.Score, doc.Score)
		hit.Versions = appendUnique(hit.Versions, fieldString(doc.Fields[domain.FieldVersion]))
		hit.Repositories = appendUnique(hit.Repositories, fieldString(doc.Fields[domain.FieldRepository]))
		hit.Paths = appendUnique(hit.Paths, path)
		hit.Classes = appendUnique(hit.Classes, fieldStrings(doc.Fields[domain.FieldClasses])...)
	}

	out := make([]Hit, 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}
	slices.SortStableFunc(out, func(a, b Hit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return strings.Compare(a.Key, b.Key)
	})
	return out
}

// Page returns the hits selected by limits.
func Page(hits []Hit, limits Limits) []Hit {
	limits = normalize(limits)
	if limits.SelectedPage == AllPages {
		return hits
	}
	start := limits.SelectedPage * limits.PageSize
	if start >= len(hits) {
		return []Hit{}
	}
	end := min(start+limits.PageSize, len(hits))
	return hits[start:end]
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		if v != "" && !slices.Contains(dst, v) {
			dst = append(dst, v)
		}
	}
	return dst
}

func fieldString(v any) string {
	if values := fieldStrings(v); len(values) > 0 {
		return values[0]
	}
	return ""
}

// fieldStrings normalizes a stored field, which is a string for single values and
// a slice for repeated ones.
func fieldStrings(v any) []string {
	switch val := v.(type) {
	case string:
		return []string{val}
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
