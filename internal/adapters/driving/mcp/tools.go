package mcp

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/core/ports/driving"
)

// InvokeInput is the input schema for the invoke tool.
type InvokeInput struct {
	Module string         `json:"module" jsonschema:"the module to call, as listed by list_modules"`
	Action string         `json:"action" jsonschema:"the action within the module"`
	Params map[string]any `json:"params,omitempty" jsonschema:"action parameters"`
}

// InvokeOutput is the output schema for the invoke tool. Failures are
// reported in Error rather than as protocol errors.
type InvokeOutput struct {
	OK    bool                   `json:"ok"`
	Data  map[string]any         `json:"data,omitempty"`
	Error *driving.ErrorEnvelope `json:"error,omitempty"`
}

// ListModulesInput is the input schema for the list_modules tool.
type ListModulesInput struct {
	Category string `json:"category,omitempty" jsonschema:"only list modules in this category"`
}

// ListModulesOutput is the output schema for the list_modules tool.
type ListModulesOutput struct {
	Modules []ModuleOutput `json:"modules"`
	Count   int            `json:"count"`
}

// ModuleOutput describes one module and its actions.
type ModuleOutput struct {
	Name      string         `json:"name"`
	Category  string         `json:"category,omitempty"`
	DependsOn []string       `json:"depends_on,omitempty"`
	Actions   []ActionOutput `json:"actions"`
}

// ActionOutput describes one action contract.
type ActionOutput struct {
	Name           string   `json:"name"`
	RequiredParams []string `json:"required_params,omitempty"`
	OptionalParams []string `json:"optional_params,omitempty"`
	Produces       []string `json:"produces,omitempty"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "invoke",
		Description: "Invoke a module action, such as documents.upload or timeline.upcoming",
	}, s.handleInvoke)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_modules",
		Description: "List registered modules and the actions they accept",
	}, s.handleListModules)
}

// handleInvoke handles the invoke tool invocation.
func (s *Server) handleInvoke(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input InvokeInput,
) (*mcp.CallToolResult, InvokeOutput, error) {
	res := s.ports.Hub.Invoke(ctx, strings.TrimSpace(input.Module), strings.TrimSpace(input.Action), s.ports.UserID, input.Params)
	return nil, InvokeOutput{OK: res.OK, Data: res.Data, Error: res.Error}, nil
}

// handleListModules handles the list_modules tool invocation.
func (s *Server) handleListModules(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input ListModulesInput,
) (*mcp.CallToolResult, ListModulesOutput, error) {
	output := ListModulesOutput{Modules: []ModuleOutput{}}
	for _, desc := range s.ports.Hub.Modules() {
		if input.Category != "" && desc.Category != input.Category {
			continue
		}
		_, actions, err := s.ports.Hub.Describe(desc.Name)
		if err != nil {
			return nil, ListModulesOutput{}, err
		}
		output.Modules = append(output.Modules, moduleOutput(desc, actions))
	}
	output.Count = len(output.Modules)
	return nil, output, nil
}

func moduleOutput(desc domain.ModuleDescriptor, actions []domain.ActionDescriptor) ModuleOutput {
	m := ModuleOutput{
		Name:      desc.Name,
		Category:  desc.Category,
		DependsOn: desc.DependsOn,
		Actions:   make([]ActionOutput, len(actions)),
	}
	for i, a := range actions {
		m.Actions[i] = ActionOutput{
			Name:           a.Name,
			RequiredParams: a.RequiredParams,
			OptionalParams: a.OptionalParams,
			Produces:       a.Produces,
		}
	}
	return m
}
