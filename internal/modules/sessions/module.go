// Package sessions exposes the invoking user's provider session to the hub.
// Credential material never leaves the session manager through it.
package sessions

import (
	"context"
	"time"

	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/core/ports/driving"
)

// Name is the module name.
const Name = "sessions"

// Module is the sessions hub module.
type Module struct {
	sessions driving.SessionManager
}

// New creates the sessions module.
func New(sessions driving.SessionManager) *Module {
	return &Module{sessions: sessions}
}

// Descriptor declares the module.
func (m *Module) Descriptor() domain.ModuleDescriptor {
	return domain.ModuleDescriptor{
		Name:         Name,
		Category:     "auth",
		RequiresAuth: true,
	}
}

// Actions returns the module's action set.
func (m *Module) Actions() []driving.Action {
	return []driving.Action{
		{
			Descriptor: domain.ActionDescriptor{
				Name:            "status",
				Produces:        []string{"session"},
				RequiresContext: []string{domain.ContextUserID},
				Timeout:         5 * time.Second,
			},
			Handler: m.status,
		},
		{
			Descriptor: domain.ActionDescriptor{
				Name:            "revoke",
				Produces:        []string{"revoked"},
				RequiresContext: []string{domain.ContextUserID},
				Timeout:         5 * time.Second,
			},
			Handler: m.revoke,
		},
	}
}

func (m *Module) status(ctx context.Context, actx driving.ActionContext, _ map[string]any) (map[string]any, error) {
	st, err := m.sessions.Status(ctx, actx.UserID())
	if err != nil {
		return nil, err
	}
	return map[string]any{"session": map[string]any{
		"user_id":  st.UserID,
		"provider": st.Provider,
		"expiry":   st.Expiry.Format(time.RFC3339),
		"expired":  st.Expired,
	}}, nil
}

func (m *Module) revoke(ctx context.Context, actx driving.ActionContext, _ map[string]any) (map[string]any, error) {
	if err := m.sessions.Revoke(ctx, actx.UserID()); err != nil {
		return nil, err
	}
	return map[string]any{"revoked": true}, nil
}
