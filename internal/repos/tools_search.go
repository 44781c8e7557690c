package repos

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/relic-artifacts/internal/auth"
	"github.com/sha1n/relic-artifacts/internal/search"
)

// maxListed bounds the paths and classes printed per hit.
const maxListed = 5

// SearchArgument defines search_artifacts parameters.
type SearchArgument struct {
	Query         string   `json:"query" jsonschema_description:"Term to search for in indexed file content, or a SHA-1/MD5 checksum when checksum is set"`
	Checksum      bool     `json:"checksum,omitempty" jsonschema_description:"Treat the query as an artifact checksum"`
	PreviousTerms []string `json:"previous_terms,omitempty" jsonschema_description:"Terms of earlier searches to narrow the results"`
	Repositories  []string `json:"repositories,omitempty" jsonschema_description:"Repository ids to search (default: all visible repositories)"`
	Page          int      `json:"page,omitempty" jsonschema_description:"Zero-based result page"`
	PageSize      int      `json:"page_size,omitempty" jsonschema_description:"Hits per page"`
}

// BytecodeArgument defines search_bytecode parameters.
type BytecodeArgument struct {
	Query        string   `json:"query" jsonschema_description:"Class name or archive entry to search for (e.g., org.acme.Widget)"`
	Repositories []string `json:"repositories,omitempty" jsonschema_description:"Repository ids to search (default: all visible repositories)"`
	Page         int      `json:"page,omitempty" jsonschema_description:"Zero-based result page"`
	PageSize     int      `json:"page_size,omitempty" jsonschema_description:"Hits per page"`
}

// FilteredArgument defines filtered_search parameters.
type FilteredArgument struct {
	GroupID      string   `json:"group_id,omitempty" jsonschema_description:"Exact groupId (e.g., org.apache.commons)"`
	ArtifactID   string   `json:"artifact_id,omitempty" jsonschema_description:"Exact artifactId"`
	Version      string   `json:"version,omitempty" jsonschema_description:"Exact version"`
	ClassName    string   `json:"class_name,omitempty" jsonschema_description:"Class name contained in the artifact"`
	Repositories []string `json:"repositories,omitempty" jsonschema_description:"Repository ids to search (default: all visible repositories)"`
	Page         int      `json:"page,omitempty" jsonschema_description:"Zero-based result page"`
	PageSize     int      `json:"page_size,omitempty" jsonschema_description:"Hits per page"`
}

// SearchHandler handles the search MCP tools.
type SearchHandler struct {
	service *Service
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(service *Service) *SearchHandler {
	return &SearchHandler{
		service: service,
	}
}

// HandleSearch runs search_artifacts.
func (h *SearchHandler) HandleSearch(ctx context.Context, req *mcp.CallToolRequest, args SearchArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Query) == "" {
		return errorResult("Query cannot be empty"), nil, nil
	}

	principal := auth.PrincipalFromContext(ctx)
	limits := search.Limits{PageSize: args.PageSize, SelectedPage: args.Page}

	var results *search.Results
	var err error
	if args.Checksum {
		results, err = h.service.SearchForChecksum(ctx, principal, args.Repositories, args.Query, limits)
	} else {
		results, err = h.service.SearchForTerm(ctx, principal, args.Repositories, args.Query, limits, args.PreviousTerms...)
	}
	if err != nil {
		return searchError(err), nil, nil
	}
	return formatResults(results, args.Query), nil, nil
}

// HandleBytecode runs search_bytecode.
func (h *SearchHandler) HandleBytecode(ctx context.Context, req *mcp.CallToolRequest, args BytecodeArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Query) == "" {
		return errorResult("Query cannot be empty"), nil, nil
	}

	principal := auth.PrincipalFromContext(ctx)
	limits := search.Limits{PageSize: args.PageSize, SelectedPage: args.Page}
	results, err := h.service.SearchForBytecode(ctx, principal, args.Repositories, args.Query, limits)
	if err != nil {
		return searchError(err), nil, nil
	}
	return formatResults(results, args.Query), nil, nil
}

// HandleFiltered runs filtered_search.
func (h *SearchHandler) HandleFiltered(ctx context.Context, req *mcp.CallToolRequest, args FilteredArgument) (*mcp.CallToolResult, any, error) {
	principal := auth.PrincipalFromContext(ctx)
	limits := search.Limits{PageSize: args.PageSize, SelectedPage: args.Page}
	results, err := h.service.FilteredSearch(ctx, principal, args.Repositories,
		args.GroupID, args.ArtifactID, args.Version, args.ClassName, limits)
	if err != nil {
		if errors.Is(err, search.ErrEmptyQuery) {
			return errorResult("At least one of group_id, artifact_id, version or class_name is required"), nil, nil
		}
		return searchError(err), nil, nil
	}
	return formatResults(results, strings.Join(results.Terms, " ")), nil, nil
}

func searchError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, search.ErrEmptyQuery):
		return errorResult("Query cannot be empty")
	case errors.Is(err, ErrRepositoryNotFound), errors.Is(err, ErrAccessDenied):
		return errorResult(fmt.Sprintf("Repository not available: %s", err))
	default:
		return errorResult(fmt.Sprintf("Search failed: %s", err))
	}
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
		IsError: true,
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// formatResults renders one page of merged hits as markdown.
func formatResults(results *search.Results, queryStr string) *mcp.CallToolResult {
	if results.TotalHits == 0 {
		return textResult(fmt.Sprintf("No results found for query: %s", queryStr))
	}

	var sb strings.Builder
	if results.Limits.SelectedPage == search.AllPages {
		fmt.Fprintf(&sb, "Found %d results for '%s':\n\n", results.TotalHits, queryStr)
	} else {
		pages := (results.TotalHits + results.Limits.PageSize - 1) / results.Limits.PageSize
		fmt.Fprintf(&sb, "Found %d results for '%s' (page %d of %d):\n\n",
			results.TotalHits, queryStr, results.Limits.SelectedPage+1, pages)
	}
	if len(results.Hits) == 0 {
		sb.WriteString("The selected page is empty.\n")
	}

	offset := 0
	if results.Limits.SelectedPage > 0 {
		offset = results.Limits.SelectedPage * results.Limits.PageSize
	}
	for i, hit := range results.Hits {
		fmt.Fprintf(&sb, "### %d. %s\n", offset+i+1, hit.Key)
		if len(hit.Versions) > 0 {
			fmt.Fprintf(&sb, "**Versions**: %s\n", strings.Join(hit.Versions, ", "))
		}
		fmt.Fprintf(&sb, "**Repositories**: %s\n", strings.Join(hit.Repositories, ", "))
		if len(hit.Paths) > 0 {
			fmt.Fprintf(&sb, "**Paths**: %s\n", listed(hit.Paths))
		}
		if len(hit.Classes) > 0 {
			fmt.Fprintf(&sb, "**Classes**: %s\n", listed(hit.Classes))
		}
		fmt.Fprintf(&sb, "**Score**: %.4f\n\n", hit.Score)
	}

	return textResult(sb.String())
}

func listed(values []string) string {
	if len(values) <= maxListed {
		return strings.Join(values, ", ")
	}
	return fmt.Sprintf("%s (and %d more)", strings.Join(values[:maxListed], ", "), len(values)-maxListed)
}

// RegisterSearchTools registers search_artifacts, search_bytecode and filtered_search.
func RegisterSearchTools(server *mcp.Server, service *Service) {
	handler := NewSearchHandler(service)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_artifacts",
		Description: "Search indexed artifact content across the repositories visible to the caller, or find artifacts by checksum",
	}, handler.HandleSearch)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_bytecode",
		Description: "Search class names and archive entries of indexed Java artifacts",
	}, handler.HandleBytecode)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "filtered_search",
		Description: "Find artifacts by groupId, artifactId, version and contained class name",
	}, handler.HandleFiltered)
}
