package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/caseflow/internal/core/domain"
)

// ActionContext carries the context values an action declared in
// RequiresContext, and nothing else.
type ActionContext map[string]any

// UserID returns the invoking user, if the action asked for it.
func (c ActionContext) UserID() string {
	s, _ := c[domain.ContextUserID].(string)
	return s
}

// Now returns the invocation time, if the action asked for it.
func (c ActionContext) Now() time.Time {
	t, _ := c[domain.ContextNow].(time.Time)
	return t
}

// Credential returns the invoking user's access token, if the action asked for it.
func (c ActionContext) Credential() string {
	s, _ := c[domain.ContextCredential].(string)
	return s
}

// ActionHandler executes one action. It must return exactly the keys the
// action declares in Produces. ctx is cancelled when the action's timeout
// elapses.
type ActionHandler func(ctx context.Context, actx ActionContext, params map[string]any) (map[string]any, error)

// Action pairs a contract with its handler.
type Action struct {
	Descriptor domain.ActionDescriptor
	Handler    ActionHandler
}

// ContextProvider resolves one context key for an invocation.
type ContextProvider func(ctx context.Context, userID string) (any, error)

// ErrorEnvelope is the failure half of Result.
type ErrorEnvelope struct {
	Kind    domain.ErrorKind `json:"kind"`
	Message string           `json:"message"`
}

// Result is the single outcome shape of Hub.Invoke.
type Result struct {
	OK    bool           `json:"ok"`
	Data  map[string]any `json:"data,omitempty"`
	Error *ErrorEnvelope `json:"error,omitempty"`
}

// Failure builds a failed Result from any error.
func Failure(err error) Result {
	classified := domain.Classify(err)
	return Result{Error: &ErrorEnvelope{Kind: classified.Kind, Message: classified.Message}}
}

// Hub is the module registry and action dispatcher.
type Hub interface {
	// Register adds or replaces a module and its action set.
	Register(desc domain.ModuleDescriptor, actions []Action) error

	// Invoke runs module.action for userID. It never panics and never
	// returns a bare error: every outcome is a Result.
	Invoke(ctx context.Context, module, action, userID string, params map[string]any) Result

	// Modules lists registered module descriptors sorted by name.
	Modules() []domain.ModuleDescriptor

	// Describe returns a module's descriptor and action contracts.
	Describe(module string) (domain.ModuleDescriptor, []domain.ActionDescriptor, error)

	// StartupOrder returns module names ordered so dependencies come first.
	StartupOrder() ([]string, error)
}
