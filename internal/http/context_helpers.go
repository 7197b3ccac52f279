package httpx

import (
	"context"

	"github.com/conveyorhq/conveyor/internal/domain/model"
)

// principalKey is an unexported context key type for the authenticated principal.
type principalKey struct{}

// Principal is the authenticated caller attached to the request context. Key
// is non-nil only for API-key authenticated requests.
type Principal struct {
	User *model.User
	Key  *model.APIKey
}

// UserID returns the owning user id of the principal.
func (p *Principal) UserID() uint64 {
	if p.Key != nil {
		return p.Key.UserID
	}
	if p.User != nil {
		return p.User.ID
	}
	return 0
}

// SetPrincipalInContext attaches the principal to the context.
func SetPrincipalInContext(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext retrieves the principal, or nil when unauthenticated.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}

// callerID is a handler-side shortcut; routes behind RequireAuth always have
// a principal.
func callerID(ctx context.Context) uint64 {
	if p := PrincipalFromContext(ctx); p != nil {
		return p.UserID()
	}
	return 0
}
