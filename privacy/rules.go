package privacy

import (
	"context"
	"slices"
)

// Viewer is the caller of a request.
type Viewer interface {
	GetID() string
	GetRoles() []string
}

type viewerCtxKey struct{}

// WithViewer returns a new context with the viewer attached.
func WithViewer(ctx context.Context, viewer Viewer) context.Context {
	return context.WithValue(ctx, viewerCtxKey{}, viewer)
}

// ViewerFromContext returns the viewer of the context, or nil.
func ViewerFromContext(ctx context.Context) Viewer {
	v, _ := ctx.Value(viewerCtxKey{}).(Viewer)
	return v
}

// SimpleViewer is a Viewer with fixed values.
type SimpleViewer struct {
	UserID string
	Roles  []string
}

// GetID returns the user id.
func (v *SimpleViewer) GetID() string { return v.UserID }

// GetRoles returns the roles.
func (v *SimpleViewer) GetRoles() []string { return v.Roles }

// DenyIfNoViewer returns a rule denying requests without a viewer. It is
// typically the first rule of a policy.
func DenyIfNoViewer() Rule {
	return ContextRule(func(ctx context.Context) error {
		if ViewerFromContext(ctx) == nil {
			return Denyf("linkql/privacy: viewer required")
		}
		return Skip
	})
}

// HasRole returns a rule allowing viewers with the role.
func HasRole(role string) Rule {
	return HasAnyRole(role)
}

// HasAnyRole returns a rule allowing viewers with any of the roles. Other
// requests skip.
func HasAnyRole(roles ...string) Rule {
	return ContextRule(func(ctx context.Context) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		for _, role := range roles {
			if slices.Contains(viewer.GetRoles(), role) {
				return Allow
			}
		}
		return Skip
	})
}
