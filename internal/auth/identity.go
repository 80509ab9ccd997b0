// Package auth extracts and gates the caller's identity as forwarded by the
// edge authenticator (spec §6.2): every request on the gateway and CA
// surfaces carries X-Authentik-{UID,Username,Email,Groups} headers set by a
// trusted reverse proxy, never validated by this process itself.
package auth

import (
	"context"

	"github.com/wisbric/wopr/pkg/types"
)

// Group names the edge authenticator uses, cumulative by tier (§4.6): a
// member of GroupBreakglass is assumed to also carry GroupRemediate and
// GroupDiag, but group membership itself is still checked in full — the
// cumulative behavior lives in Tier.Level(), not in string matching here.
const (
	GroupDiag       = "wopr-diag"
	GroupRemediate  = "wopr-remediate"
	GroupBreakglass = "wopr-breakglass"
)

// Identity is the authenticated caller for the current request, built
// entirely from forwarded headers.
type Identity struct {
	UID      string
	Username string
	Email    string
	Groups   []string
	Tier     types.Tier
}

// HasGroup reports whether the identity belongs to the named group.
func (id *Identity) HasGroup(group string) bool {
	for _, g := range id.Groups {
		if g == group {
			return true
		}
	}
	return false
}

type ctxKey string

const identityKey ctxKey = "auth_identity"

// NewContext stores the identity in the context.
func NewContext(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext extracts the identity from the context. Returns nil if no
// identity is set.
func FromContext(ctx context.Context) *Identity {
	v, _ := ctx.Value(identityKey).(*Identity)
	return v
}

// tierForGroups derives the caller's highest tier from their group
// membership. Breakglass implies remediate implies diag.
func tierForGroups(groups []string) (types.Tier, bool) {
	has := func(g string) bool {
		for _, x := range groups {
			if x == g {
				return true
			}
		}
		return false
	}

	switch {
	case has(GroupBreakglass):
		return types.TierBreakglass, true
	case has(GroupRemediate):
		return types.TierRemediate, true
	case has(GroupDiag):
		return types.TierDiag, true
	default:
		return "", false
	}
}
