package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/modules/documents"
)

const (
	// uriScheme is the custom URI scheme for caseflow resources.
	uriScheme = "caseflow://"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "modules",
		Name:        "modules",
		Description: "Registered modules and their action contracts",
		MIMEType:    "application/json",
	}, s.handleModulesResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "modules/{name}",
		Name:        "module",
		Description: "One module's descriptor and action contracts",
		MIMEType:    "application/json",
	}, s.handleModuleResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "documents/{documentId}",
		Name:        "document",
		Description: "Processing status of one of your documents",
		MIMEType:    "application/json",
	}, s.handleDocumentResource)
}

// handleModulesResource returns every registered module.
func (s *Server) handleModulesResource(
	_ context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	descs := s.ports.Hub.Modules()
	out := make([]ModuleOutput, 0, len(descs))
	for _, desc := range descs {
		_, actions, err := s.ports.Hub.Describe(desc.Name)
		if err != nil {
			return nil, fmt.Errorf("describing module %s: %w", desc.Name, err)
		}
		out = append(out, moduleOutput(desc, actions))
	}
	return jsonResource(req.Params.URI, out)
}

// handleModuleResource returns one module.
func (s *Server) handleModuleResource(
	_ context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	name := extractModuleName(req.Params.URI)
	if name == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	desc, actions, err := s.ports.Hub.Describe(name)
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			return nil, mcp.ResourceNotFoundError(req.Params.URI)
		}
		return nil, fmt.Errorf("describing module %s: %w", name, err)
	}
	return jsonResource(req.Params.URI, moduleOutput(desc, actions))
}

// handleDocumentResource returns the status view of a document owned by
// the server's user. Other users' documents are reported as not found.
func (s *Server) handleDocumentResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Pipeline == nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	docID := extractDocumentID(req.Params.URI)
	if docID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	rec, err := s.ports.Pipeline.Get(ctx, docID)
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			return nil, mcp.ResourceNotFoundError(req.Params.URI)
		}
		return nil, fmt.Errorf("getting document: %w", err)
	}
	if rec.OwnerID != s.ports.UserID {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	return jsonResource(req.Params.URI, documents.View(rec))
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling resource: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractModuleName extracts the name from a URI like caseflow://modules/{name}.
func extractModuleName(uri string) string {
	return trimPrefixed(uri, uriScheme+"modules/")
}

// extractDocumentID extracts the document ID from a URI like caseflow://documents/{documentId}.
func extractDocumentID(uri string) string {
	return trimPrefixed(uri, uriScheme+"documents/")
}

func trimPrefixed(uri, prefix string) string {
	if !strings.HasPrefix(uri, prefix) {
		return ""
	}
	rest := strings.TrimPrefix(uri, prefix)
	if strings.Contains(rest, "/") {
		return ""
	}
	return rest
}
