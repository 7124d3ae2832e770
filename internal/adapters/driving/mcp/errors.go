// Package mcp provides an MCP (Model Context Protocol) server adapter for caseflow.
// It lets AI assistants list hub modules and invoke their actions on behalf
// of one configured user.
package mcp

import "errors"

// ErrMissingHub is returned when the hub is not provided.
var ErrMissingHub = errors.New("mcp: hub is required")

// ErrMissingUser is returned when no user is configured for the server.
var ErrMissingUser = errors.New("mcp: user id is required")
