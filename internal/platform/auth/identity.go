package auth

import (
	"context"
	"strings"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/voltmart/storefront/internal/domain"
	"github.com/voltmart/storefront/internal/platform/requestctx"
)

// Identity is the authenticated storefront principal extracted from a Firebase ID token.
type Identity struct {
	UID   string
	Email string
	Name  string
	Role  domain.Role

	token *firebaseauth.Token
}

// Token exposes the decoded Firebase ID token.
func (i *Identity) Token() *firebaseauth.Token {
	if i == nil {
		return nil
	}
	return i.token
}

// Actor converts the identity into the principal passed to services.
func (i *Identity) Actor() domain.Actor {
	if i == nil {
		return domain.Actor{}
	}
	return domain.Actor{ID: i.UID, Role: i.Role}
}

// HasRole reports whether the identity holds any of the roles.
func (i *Identity) HasRole(roles ...domain.Role) bool {
	if i == nil {
		return false
	}
	for _, role := range roles {
		if i.Role == role {
			return true
		}
	}
	return false
}

type identityContextKey struct{}

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	if identity != nil {
		requestctx.SetPrincipal(ctx, requestctx.Principal{ID: identity.UID, Role: string(identity.Role)})
	}
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

// ParseRole maps a claim value onto a storefront role. Unknown values yield "".
func ParseRole(value string) domain.Role {
	switch domain.Role(strings.ToLower(strings.TrimSpace(value))) {
	case domain.RoleCustomer:
		return domain.RoleCustomer
	case domain.RoleSeller:
		return domain.RoleSeller
	case domain.RoleAdmin:
		return domain.RoleAdmin
	default:
		return ""
	}
}

func rolePriority(role domain.Role) int {
	switch role {
	case domain.RoleAdmin:
		return 3
	case domain.RoleSeller:
		return 2
	case domain.RoleCustomer:
		return 1
	default:
		return 0
	}
}
