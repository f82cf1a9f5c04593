// Package identity carries the authenticated buyer through a request.
// It is a leaf package: both the auth middleware (which writes the
// principal) and the HTTP handlers (which read it) depend on it.
package identity

import (
	"context"
	"errors"
)

// Principal is the authenticated entity behind a request.
type Principal struct {
	BuyerID string   `json:"buyer_id"`
	Email   string   `json:"email"`
	Roles   []string `json:"roles"`
}

// HasRole reports whether the principal carries the given role.
func (p *Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal attaches a Principal to the context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipal retrieves the Principal from the context.
func GetPrincipal(ctx context.Context) (*Principal, error) {
	p, ok := ctx.Value(principalKey).(*Principal)
	if !ok || p == nil {
		return nil, errors.New("no principal in context")
	}
	return p, nil
}

// BuyerID returns the authenticated buyer id from the context's Principal.
func BuyerID(ctx context.Context) (string, error) {
	p, err := GetPrincipal(ctx)
	if err != nil {
		return "", err
	}
	return p.BuyerID, nil
}
