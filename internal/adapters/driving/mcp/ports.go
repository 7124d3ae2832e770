package mcp

import (
	"github.com/custodia-labs/caseflow/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Hub dispatches module actions.
	Hub driving.Hub

	// Pipeline serves document resources. Optional.
	Pipeline driving.Pipeline

	// UserID is the user every invocation runs as.
	UserID string
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Hub == nil {
		return ErrMissingHub
	}
	if p.UserID == "" {
		return ErrMissingUser
	}
	return nil
}
