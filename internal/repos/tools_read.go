package repos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/relic-artifacts/internal/auth"
	"github.com/sha1n/relic-artifacts/internal/consumer"
)

var (
	// ErrInvalidPath indicates an absolute or escaping repository path.
	ErrInvalidPath = errors.New("invalid path")

	// ErrNotAFile indicates the path names a directory.
	ErrNotAFile = errors.New("not a regular file")

	// ErrFileTooLarge indicates the file exceeds the maximum readable size.
	ErrFileTooLarge = errors.New("file too large")
)

// ReadArgument defines read_artifact_file parameters.
type ReadArgument struct {
	Repository string `json:"repository" jsonschema_description:"Repository id"`
	Path       string `json:"path" jsonschema_description:"File path relative to the repository root (e.g., org/acme/lib/1.0/lib-1.0.pom)"`
}

// ReadFile returns the content of a file of a repository visible to principal.
// Paths are resolved inside the repository base directory; symlinks may not escape it.
func (s *Service) ReadFile(principal, repoID, relPath string) ([]byte, error) {
	repo, err := s.Repository(principal, repoID)
	if err != nil {
		return nil, err
	}
	cleaned, err := validatePath(relPath)
	if err != nil {
		return nil, err
	}
	base, err := repo.BaseDir()
	if err != nil {
		return nil, fmt.Errorf("repository %s: %w", repoID, err)
	}

	root, err := os.OpenRoot(base)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository %s: %w", repoID, err)
	}
	defer func() { _ = root.Close() }()

	f, err := root.Open(cleaned)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotAFile, relPath)
	}
	if limit := s.settings.MaxFileSize; limit > 0 && info.Size() > limit {
		return nil, fmt.Errorf("%w: %s is %d bytes, maximum is %d", ErrFileTooLarge, relPath, info.Size(), limit)
	}
	return io.ReadAll(f)
}

// validatePath rejects absolute and escaping paths and returns the cleaned slash path.
func validatePath(p string) (string, error) {
	p = strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	if p == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	if strings.HasPrefix(p, "/") || (len(p) > 1 && p[1] == ':') {
		return "", fmt.Errorf("%w: absolute paths are not allowed", ErrInvalidPath)
	}
	cleaned := path.Clean(p)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: path traversal is not allowed", ErrInvalidPath)
	}
	return cleaned, nil
}

// ReadHandler handles the read MCP tool.
type ReadHandler struct {
	service *Service
}

// NewReadHandler creates a new read handler.
func NewReadHandler(service *Service) *ReadHandler {
	return &ReadHandler{
		service: service,
	}
}

// Handle reads a repository file and returns formatted content.
func (h *ReadHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args ReadArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Repository) == "" {
		return errorResult("Repository cannot be empty"), nil, nil
	}
	if strings.TrimSpace(args.Path) == "" {
		return errorResult("Path cannot be empty"), nil, nil
	}

	content, err := h.service.ReadFile(auth.PrincipalFromContext(ctx), args.Repository, args.Path)
	switch {
	case err == nil:
	case errors.Is(err, ErrRepositoryNotFound), errors.Is(err, ErrAccessDenied):
		return errorResult(fmt.Sprintf("Repository not available: %s", err)), nil, nil
	case errors.Is(err, ErrInvalidPath):
		return errorResult(err.Error()), nil, nil
	case errors.Is(err, fs.ErrNotExist):
		return errorResult(fmt.Sprintf("File not found: %s", args.Path)), nil, nil
	case errors.Is(err, ErrNotAFile):
		return errorResult("Cannot read directory, please specify a file path"), nil, nil
	case errors.Is(err, ErrFileTooLarge):
		return errorResult(fmt.Sprintf("File too large (%s)", err)), nil, nil
	default:
		return errorResult(fmt.Sprintf("Error reading file: %s", err)), nil, nil
	}

	if consumer.IsBinary(content) {
		return errorResult("Cannot display binary file content"), nil, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "**File**: `%s`\n", args.Path)
	fmt.Fprintf(&sb, "**Repository**: %s\n", args.Repository)
	fmt.Fprintf(&sb, "**Size**: %d bytes\n\n", len(content))
	fmt.Fprintf(&sb, "```%s\n%s\n```", languageHint(args.Path), string(content))
	return textResult(sb.String()), nil, nil
}

// languageHint maps repository file extensions to a code block language.
func languageHint(p string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
	switch ext {
	case "pom", "xml", "xsd", "wsdl", "tld":
		return "xml"
	case "properties", "mf":
		return "properties"
	case "java":
		return "java"
	case "gradle", "groovy":
		return "groovy"
	case "kt", "kts":
		return "kotlin"
	case "json", "module":
		return "json"
	case "yaml", "yml":
		return "yaml"
	case "md":
		return "markdown"
	case "html", "htm":
		return "html"
	case "sha1", "md5", "asc", "txt", "":
		return "text"
	default:
		return ext
	}
}

// RegisterReadTool registers read_artifact_file.
func RegisterReadTool(server *mcp.Server, service *Service) {
	handler := NewReadHandler(service)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "read_artifact_file",
		Description: "Read a text file (POM, metadata, checksum, properties) from an artifact repository",
	}, handler.Handle)
}
