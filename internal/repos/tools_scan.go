package repos

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/relic-artifacts/internal/auth"
	"github.com/sha1n/relic-artifacts/internal/history"
	"github.com/sha1n/relic-artifacts/internal/index"
)

// maxReportedProblems bounds the problems listed in a scan report.
const maxReportedProblems = 20

// ScanArgument defines scan_repository parameters.
type ScanArgument struct {
	Repository  string `json:"repository" jsonschema_description:"Repository id to scan"`
	Incremental bool   `json:"incremental,omitempty" jsonschema_description:"Only process files modified since the previous scan started"`
}

// StatusArgument defines scan_status parameters.
type StatusArgument struct {
	Repository string `json:"repository,omitempty" jsonschema_description:"Repository id (default: all visible repositories)"`
	History    int    `json:"history,omitempty" jsonschema_description:"Number of recent scans to list"`
}

// ScanHandler handles the scan MCP tools.
type ScanHandler struct {
	service *Service
}

// NewScanHandler creates a new scan handler.
func NewScanHandler(service *Service) *ScanHandler {
	return &ScanHandler{
		service: service,
	}
}

// HandleScan runs scan_repository.
func (h *ScanHandler) HandleScan(ctx context.Context, req *mcp.CallToolRequest, args ScanArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Repository) == "" {
		return errorResult("Repository cannot be empty"), nil, nil
	}
	if _, err := h.service.Repository(auth.PrincipalFromContext(ctx), args.Repository); err != nil {
		return errorResult(fmt.Sprintf("Repository not available: %s", err)), nil, nil
	}

	report, err := h.service.Scan(ctx, args.Repository, ScanRequest{
		Incremental: args.Incremental,
		Trigger:     history.TriggerManual,
	})
	if err != nil {
		if errors.Is(err, ErrScanInProgress) {
			return errorResult(fmt.Sprintf("Repository %s is already being scanned. Please try again later.", args.Repository)), nil, nil
		}
		return errorResult(fmt.Sprintf("Scan failed: %s", err)), nil, nil
	}
	return textResult(formatReport(report)), nil, nil
}

// HandleStatus runs scan_status.
func (h *ScanHandler) HandleStatus(ctx context.Context, req *mcp.CallToolRequest, args StatusArgument) (*mcp.CallToolResult, any, error) {
	principal := auth.PrincipalFromContext(ctx)

	ids := h.service.VisibleRepositories(principal)
	if args.Repository != "" {
		if _, err := h.service.Repository(principal, args.Repository); err != nil {
			return errorResult(fmt.Sprintf("Repository not available: %s", err)), nil, nil
		}
		ids = []string{args.Repository}
	}
	if len(ids) == 0 {
		return textResult("No repositories are configured."), nil, nil
	}

	var sb strings.Builder
	for _, id := range ids {
		st, err := h.service.Status(ctx, id)
		if err != nil {
			return errorResult(fmt.Sprintf("Failed to read status of %s: %s", id, err)), nil, nil
		}
		sb.WriteString(formatStatus(st))

		if args.History > 0 {
			scans, err := h.service.History(ctx, id, args.History)
			if err != nil {
				return errorResult(fmt.Sprintf("Failed to read history of %s: %s", id, err)), nil, nil
			}
			sb.WriteString("**Recent scans**:\n")
			for _, scan := range scans {
				fmt.Fprintf(&sb, "- %s %s (%s, %d consumed, %d problems)\n",
					scan.StartedAt.Format(time.RFC3339), scan.State, scan.TriggeredBy, scan.FilesConsumed, scan.ProblemCount)
			}
		}
		sb.WriteString("\n")
	}
	return textResult(sb.String()), nil, nil
}

func formatReport(r *ScanReport) string {
	var sb strings.Builder
	mode := "full"
	if r.Incremental {
		mode = "incremental"
	}
	fmt.Fprintf(&sb, "## Scan of %s %s\n", r.Repository, r.State)
	fmt.Fprintf(&sb, "**Mode**: %s\n", mode)
	fmt.Fprintf(&sb, "**Duration**: %s\n", r.Finished.Sub(r.Started).Round(time.Millisecond))
	fmt.Fprintf(&sb, "**Files**: %d included, %d consumed, %d skipped\n", r.FilesIncluded, r.FilesConsumed, r.FilesSkipped)
	if len(r.RepairedIndexes) > 0 {
		kinds := make([]string, len(r.RepairedIndexes))
		for i, k := range r.RepairedIndexes {
			kinds[i] = string(k)
		}
		fmt.Fprintf(&sb, "**Rebuilt indexes**: %s\n", strings.Join(kinds, ", "))
	}
	if len(r.Problems) == 0 {
		return sb.String()
	}

	fmt.Fprintf(&sb, "\n### %d problems\n", len(r.Problems))
	for i, p := range r.Problems {
		if i == maxReportedProblems {
			fmt.Fprintf(&sb, "... and %d more\n", len(r.Problems)-maxReportedProblems)
			break
		}
		if p.Consumer != "" {
			fmt.Fprintf(&sb, "- `%s` [%s]: %s\n", p.Path, p.Consumer, p.Message)
		} else {
			fmt.Fprintf(&sb, "- `%s`: %s\n", p.Path, p.Message)
		}
	}
	return sb.String()
}

func formatStatus(st *Status) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n", st.Repository.DisplayName())
	fmt.Fprintf(&sb, "**Id**: %s\n", st.Repository.ID)
	fmt.Fprintf(&sb, "**Location**: %s\n", st.Repository.Location)
	if st.Scanning {
		sb.WriteString("**State**: scanning\n")
	} else {
		sb.WriteString("**State**: idle\n")
	}
	if !st.NextScan.IsZero() {
		fmt.Fprintf(&sb, "**Next scan**: %s\n", st.NextScan.Format(time.RFC3339))
	}
	if st.LastScan != nil {
		fmt.Fprintf(&sb, "**Last scan**: %s %s, %d consumed, %d problems\n",
			st.LastScan.StartedAt.Format(time.RFC3339), st.LastScan.State, st.LastScan.FilesConsumed, st.LastScan.ProblemCount)
	} else {
		sb.WriteString("**Last scan**: never\n")
	}
	if len(st.Documents) > 0 {
		sb.WriteString("**Indexed documents**:")
		for _, kind := range index.Kinds() {
			if n, ok := st.Documents[kind]; ok {
				fmt.Fprintf(&sb, " %s=%d", kind, n)
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// RegisterScanTools registers scan_repository and scan_status.
func RegisterScanTools(server *mcp.Server, service *Service) {
	handler := NewScanHandler(service)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "scan_repository",
		Description: "Scan an artifact repository: maintain checksums and metadata and update its search indexes",
	}, handler.HandleScan)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "scan_status",
		Description: "Show scan state, schedule, last scan and index sizes of artifact repositories",
	}, handler.HandleStatus)
}
