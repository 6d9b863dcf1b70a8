package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

func pathProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the repository root (the directory that holds or will hold repodata/)",
	}
}

// rebuildRepositoryTool returns the tool definition for rebuild_repository
func rebuildRepositoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "rebuild_repository",
		Description: "Scan a repository for RPM packages and regenerate its yum metadata, reusing records of unchanged packages",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty(),
			},
			Required: []string{"path"},
		},
	}
}

// addPackagesTool returns the tool definition for add_packages
func addPackagesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "add_packages",
		Description: "Add, update or remove specific packages in the repository metadata without rescanning the tree",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty(),
				"packages": map[string]interface{}{
					"type":        "array",
					"description": "Package files, absolute or relative to the repository root. Files that no longer exist are removed from the index.",
					"items": map[string]interface{}{
						"type": "string",
					},
					"minItems": 1,
				},
			},
			Required: []string{"path", "packages"},
		},
	}
}

// validateRepositoryTool returns the tool definition for validate_repository
func validateRepositoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "validate_repository",
		Description: "Check that every document listed in repomd.xml exists with the recorded size and checksum",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty(),
			},
			Required: []string{"path"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report the published metadata revision and documents of a repository",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty(),
			},
			Required: []string{"path"},
		},
	}
}
