package repos

import (
	"context"
	"time"

	"github.com/sha1n/relic-artifacts/internal/search"
)

// Search kinds, used as metric labels.
const (
	SearchKindTerm     = "term"
	SearchKindBytecode = "bytecode"
	SearchKindChecksum = "checksum"
	SearchKindFiltered = "filtered"
)

// SearchForTerm searches file content across the repositories principal may see.
// An empty repoIDs searches all of them; naming a repository the principal cannot
// see is an error.
func (s *Service) SearchForTerm(ctx context.Context, principal string, repoIDs []string, term string, limits search.Limits, previousTerms ...string) (*search.Results, error) {
	return s.observe(SearchKindTerm, principal, repoIDs, func(ids []string) (*search.Results, error) {
		return s.searcher.SearchForTerm(ctx, principal, ids, term, s.limits(limits), previousTerms...)
	})
}

// SearchForBytecode searches class names and archive entries.
func (s *Service) SearchForBytecode(ctx context.Context, principal string, repoIDs []string, term string, limits search.Limits) (*search.Results, error) {
	return s.observe(SearchKindBytecode, principal, repoIDs, func(ids []string) (*search.Results, error) {
		return s.searcher.SearchForBytecode(ctx, principal, ids, term, s.limits(limits))
	})
}

// SearchForChecksum finds artifacts by SHA-1 or MD5.
func (s *Service) SearchForChecksum(ctx context.Context, principal string, repoIDs []string, checksum string, limits search.Limits) (*search.Results, error) {
	return s.observe(SearchKindChecksum, principal, repoIDs, func(ids []string) (*search.Results, error) {
		return s.searcher.SearchForChecksum(ctx, principal, ids, checksum, s.limits(limits))
	})
}

// FilteredSearch finds artifacts by coordinates and class name.
func (s *Service) FilteredSearch(ctx context.Context, principal string, repoIDs []string, groupID, artifactID, version, className string, limits search.Limits) (*search.Results, error) {
	return s.observe(SearchKindFiltered, principal, repoIDs, func(ids []string) (*search.Results, error) {
		return s.searcher.ExecuteFilteredSearch(ctx, principal, ids, groupID, artifactID, version, className, s.limits(limits))
	})
}

func (s *Service) observe(kind, principal string, repoIDs []string, run func(ids []string) (*search.Results, error)) (*search.Results, error) {
	start := time.Now()
	ids, err := s.searchable(principal, repoIDs)
	var results *search.Results
	if err == nil {
		results, err = run(ids)
	}
	s.metrics.ObserveSearch(kind, time.Since(start), err)
	return results, err
}

// searchable narrows repoIDs to the repositories principal observes.
func (s *Service) searchable(principal string, repoIDs []string) ([]string, error) {
	if len(repoIDs) == 0 {
		return s.VisibleRepositories(principal), nil
	}
	ids := make([]string, 0, len(repoIDs))
	for _, id := range repoIDs {
		if _, err := s.Repository(principal, id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Service) limits(l search.Limits) search.Limits {
	if l.PageSize <= 0 {
		l.PageSize = s.settings.PageSize
	}
	return l
}
