// Package mcp implements the Model Context Protocol (MCP) server for rpmrepo.
//
// The MCP server exposes four tools to AI assistants and automation:
//   - rebuild_repository: Scan a repository and regenerate its metadata
//   - add_packages: Update the metadata for a list of package files
//   - validate_repository: Verify published documents against repomd.xml
//   - get_status: Report the published revision and documents
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server is started by the mcp command:
//
//	rpmrepo mcp
//
// It then listens on stdin for MCP protocol messages and writes responses
// to stdout. Logs go to stderr.
//
// # Tool: rebuild_repository
//
//	Request:
//	{
//	  "name": "rebuild_repository",
//	  "arguments": {"path": "/srv/repos/el9/x86_64"}
//	}
//
//	Response:
//	{
//	  "run_id": "5f0c2d9e-...",
//	  "operation": "rebuild",
//	  "revision": 1700000000,
//	  "packages": 1204,
//	  "reused": 1198,
//	  "rebuilt": 6,
//	  "removed": 2,
//	  "failed": 0,
//	  "duration_ms": 842
//	}
//
// # Tool: add_packages
//
//	Request:
//	{
//	  "name": "add_packages",
//	  "arguments": {
//	    "path": "/srv/repos/el9/x86_64",
//	    "packages": ["Packages/attr-2.4.46-13.el9.x86_64.rpm"]
//	  }
//	}
//
// Packages that no longer exist on disk are removed from the index. The
// response has the same shape as rebuild_repository with "restored"
// counting the records carried over untouched.
//
// # Tool: validate_repository
//
// Loads the published index and checks the size and checksum of every
// document listed in repomd.xml.
//
// # Tool: get_status
//
//	Response:
//	{
//	  "published": true,
//	  "revision": 1700000000,
//	  "documents": [
//	    {"type": "primary", "location": "repodata/primary.xml.gz", ...}
//	  ]
//	}
//
// # Error Handling
//
// Error codes:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error (generation failed)
//   - -32001: Path cannot be opened as a repository
//   - -32002: Another repository operation is in progress
//   - -32003: Repository has no published metadata
//   - -32004: Published metadata does not match repomd.xml
//
// One repository operation runs at a time per server; get_status does not
// take part in that exclusion.
package mcp
