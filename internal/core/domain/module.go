package domain

import (
	"fmt"
	"time"
)

// Context keys an action may declare in RequiresContext.
const (
	ContextUserID     = "user_id"
	ContextProvider   = "provider"
	ContextRole       = "role"
	ContextNow        = "now"
	ContextRequestID  = "request_id"
	ContextCredential = "credential"
)

// ModuleDescriptor declares a module to the hub.
// It is registered once at start-up and treated as immutable afterwards.
type ModuleDescriptor struct {
	// Name is the unique module name used for invocation.
	Name string `json:"name"`

	// Category groups modules for listing (intake, analysis, auth, ops).
	Category string `json:"category"`

	// DocumentTypes are the document classifications the module handles.
	DocumentTypes []string `json:"document_types,omitempty"`

	// Accepts and Produces list the pack types consumed and emitted.
	Accepts  []PackType `json:"accepts,omitempty"`
	Produces []PackType `json:"produces,omitempty"`

	// DependsOn names modules that must start before this one.
	DependsOn []string `json:"depends_on,omitempty"`

	// RequiresAuth marks modules that act on a user's provider credentials.
	RequiresAuth bool `json:"requires_auth"`
}

// Validate checks the descriptor is well formed.
func (d ModuleDescriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: module name is required", ErrValidation)
	}
	for _, t := range append(append([]PackType(nil), d.Accepts...), d.Produces...) {
		if !t.Valid() {
			return fmt.Errorf("%w: module %s declares unknown pack type %q", ErrValidation, d.Name, t)
		}
	}
	for _, dep := range d.DependsOn {
		if dep == d.Name {
			return fmt.Errorf("%w: module %s depends on itself", ErrValidation, d.Name)
		}
	}
	return nil
}

// Clone returns a deep copy so the caller's slices cannot alter a registered descriptor.
func (d ModuleDescriptor) Clone() ModuleDescriptor {
	c := d
	c.DocumentTypes = append([]string(nil), d.DocumentTypes...)
	c.Accepts = append([]PackType(nil), d.Accepts...)
	c.Produces = append([]PackType(nil), d.Produces...)
	c.DependsOn = append([]string(nil), d.DependsOn...)
	return c
}

// ActionDescriptor declares the contract of one module action.
type ActionDescriptor struct {
	Name           string   `json:"name"`
	RequiredParams []string `json:"required_params,omitempty"`
	OptionalParams []string `json:"optional_params,omitempty"`

	// Produces lists the result keys a successful execution returns, exactly.
	Produces []string `json:"produces,omitempty"`

	// RequiresContext lists the context keys injected into the handler.
	RequiresContext []string `json:"requires_context,omitempty"`

	// MayBlock routes the action onto the hub's bounded worker pool.
	MayBlock bool `json:"may_block"`

	// Timeout bounds a single execution.
	Timeout time.Duration `json:"timeout"`
}

// Validate checks the descriptor is well formed.
func (a ActionDescriptor) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("%w: action name is required", ErrValidation)
	}
	if a.Timeout <= 0 {
		return fmt.Errorf("%w: action %s must declare a positive timeout", ErrValidation, a.Name)
	}
	seen := make(map[string]bool, len(a.RequiredParams)+len(a.OptionalParams))
	for _, p := range append(append([]string(nil), a.RequiredParams...), a.OptionalParams...) {
		if p == "" {
			return fmt.Errorf("%w: action %s declares an empty parameter name", ErrValidation, a.Name)
		}
		if seen[p] {
			return fmt.Errorf("%w: action %s declares parameter %q twice", ErrValidation, a.Name, p)
		}
		seen[p] = true
	}
	produced := make(map[string]bool, len(a.Produces))
	for _, k := range a.Produces {
		if k == "" || produced[k] {
			return fmt.Errorf("%w: action %s has an empty or duplicate produces key", ErrValidation, a.Name)
		}
		produced[k] = true
	}
	return nil
}

// Declares reports whether name is a declared parameter.
func (a ActionDescriptor) Declares(name string) bool {
	for _, p := range a.RequiredParams {
		if p == name {
			return true
		}
	}
	for _, p := range a.OptionalParams {
		if p == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (a ActionDescriptor) Clone() ActionDescriptor {
	c := a
	c.RequiredParams = append([]string(nil), a.RequiredParams...)
	c.OptionalParams = append([]string(nil), a.OptionalParams...)
	c.Produces = append([]string(nil), a.Produces...)
	c.RequiresContext = append([]string(nil), a.RequiresContext...)
	return c
}
