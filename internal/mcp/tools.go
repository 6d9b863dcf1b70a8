package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/rpmrepo/internal/repodata"
)

// MCP error codes
const (
	ErrorCodeInvalidParams       = -32602 // Invalid method parameters
	ErrorCodeInternalError       = -32603 // Internal JSON-RPC error
	ErrorCodeRepositoryNotFound  = -32001 // Path is not a usable repository root
	ErrorCodeOperationInProgress = -32002 // Another repository operation is already running
	ErrorCodeNotPublished        = -32003 // Repository has no published metadata
	ErrorCodeCorruptIndex        = -32004 // Published metadata does not match repomd.xml
)

// handleRebuildRepository handles the rebuild_repository tool invocation
func (s *Server) handleRebuildRepository(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, path, err := pathArgument(request)
	if err != nil {
		return nil, err
	}

	repo, err := s.openRepository(path)
	if err != nil {
		return nil, err
	}
	if !s.lock.TryAcquire() {
		return nil, errInProgress()
	}
	defer s.lock.Release()

	stats, err := repo.Rebuild(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "rebuild failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return mcp.NewToolResultText(formatJSON(statisticsResponse(stats))), nil
}

// handleAddPackages handles the add_packages tool invocation
func (s *Server) handleAddPackages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, path, err := pathArgument(request)
	if err != nil {
		return nil, err
	}

	packages, err := stringSlice(args, "packages")
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "packages parameter is required", map[string]interface{}{
			"param":  "packages",
			"reason": err.Error(),
		})
	}

	repo, err := s.openRepository(path)
	if err != nil {
		return nil, err
	}
	if !s.lock.TryAcquire() {
		return nil, errInProgress()
	}
	defer s.lock.Release()

	stats, err := repo.Add(ctx, packages)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "add failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return mcp.NewToolResultText(formatJSON(statisticsResponse(stats))), nil
}

// handleValidateRepository handles the validate_repository tool invocation
func (s *Server) handleValidateRepository(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, path, err := pathArgument(request)
	if err != nil {
		return nil, err
	}

	repo, err := s.openRepository(path)
	if err != nil {
		return nil, err
	}
	if !s.lock.TryAcquire() {
		return nil, errInProgress()
	}
	defer s.lock.Release()

	report, err := repo.Validate(ctx)
	switch {
	case errors.Is(err, repodata.ErrNotPublished):
		return nil, errNotPublished(path)
	case errors.Is(err, repodata.ErrCorruptIndex):
		return nil, newMCPError(ErrorCodeCorruptIndex, "repository metadata is corrupt", map[string]interface{}{
			"problems": report.Problems(),
			"checks":   report.Checks,
		})
	case err != nil:
		return nil, newMCPError(ErrorCodeInternalError, "validation failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"valid":     true,
		"revision":  report.Revision,
		"packages":  report.Packages,
		"filelists": report.Filelists,
		"checks":    report.Checks,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, path, err := pathArgument(request)
	if err != nil {
		return nil, err
	}

	repo, err := s.openRepository(path)
	if err != nil {
		return nil, err
	}

	repomd, err := repo.Status()
	if errors.Is(err, repodata.ErrNotPublished) {
		response := map[string]interface{}{
			"published": false,
			"path":      repo.Root(),
			"message":   "Repository has no metadata yet. Use rebuild_repository to generate it.",
		}
		return mcp.NewToolResultText(formatJSON(response)), nil
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to read repomd.xml", map[string]interface{}{
			"error": err.Error(),
		})
	}

	documents := make([]map[string]interface{}, 0, len(repomd.Data))
	for _, d := range repomd.Data {
		doc := map[string]interface{}{
			"type":      d.Type,
			"location":  d.Location.Href,
			"checksum":  d.Checksum.Type + ":" + d.Checksum.Value,
			"size":      d.Size,
			"open_size": d.OpenSize,
			"timestamp": d.Timestamp,
		}
		if d.DatabaseVersion != 0 {
			doc["database_version"] = d.DatabaseVersion
		}
		documents = append(documents, doc)
	}

	response := map[string]interface{}{
		"published": true,
		"path":      repo.Root(),
		"revision":  repomd.Revision,
		"documents": documents,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

func (s *Server) openRepository(path string) (*repodata.Repository, error) {
	repo, err := s.repository(path)
	if err != nil {
		return nil, newMCPError(ErrorCodeRepositoryNotFound, "cannot open repository", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
	}
	return repo, nil
}

// pathArgument extracts and validates the path every tool takes.
func pathArgument(request mcp.CallToolRequest) (map[string]interface{}, string, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, "", newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, "", newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	if err := validatePath(path); err != nil {
		return nil, "", newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}
	return args, path, nil
}

func statisticsResponse(stats *repodata.Statistics) map[string]interface{} {
	response := map[string]interface{}{
		"run_id":      stats.RunID,
		"operation":   stats.Operation,
		"revision":    stats.Revision,
		"packages":    stats.Packages,
		"reused":      stats.Reused,
		"rebuilt":     stats.Rebuilt,
		"restored":    stats.Restored,
		"removed":     stats.Removed,
		"failed":      stats.Failed,
		"duration_ms": stats.Duration.Milliseconds(),
	}

	if len(stats.Failures) > 0 {
		// Include first few failures
		if len(stats.Failures) > 5 {
			response["failures"] = stats.Failures[:5]
		} else {
			response["failures"] = stats.Failures
		}
	}
	return response
}

func errInProgress() error {
	return newMCPError(ErrorCodeOperationInProgress, "another repository operation is in progress", nil)
}

func errNotPublished(path string) error {
	return newMCPError(ErrorCodeNotPublished, "repository has no published metadata", map[string]interface{}{
		"path": path,
	})
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validatePath checks that path is an existing, readable directory
func validatePath(path string) error {
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()
	return nil
}

// stringSlice extracts a non-empty array of strings.
func stringSlice(args map[string]interface{}, key string) ([]string, error) {
	raw, ok := args[key].([]interface{})
	if !ok {
		if values, ok := args[key].([]string); ok && len(values) > 0 {
			return values, nil
		}
		return nil, errors.New("missing or not an array")
	}
	if len(raw) == 0 {
		return nil, errors.New("empty array")
	}
	values := make([]string, 0, len(raw))
	for i, v := range raw {
		s, ok := v.(string)
		if !ok || s == "" {
			return nil, fmt.Errorf("element %d is not a non-empty string", i)
		}
		values = append(values, s)
	}
	return values, nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// Validation helpers

var (
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
