// Package uma implements the User-Managed Access flows: resource
// registration, permission tickets and the exchange of tickets for
// requesting party tokens.
//
// Resource servers call the protection API with a protection API token
// (PAT), i.e. an access token granted the scope uma_protection.
package uma

import (
	"github.com/luikyv/go-authority/internal/oidc"
	"github.com/luikyv/go-authority/internal/strutil"
	"github.com/luikyv/go-authority/internal/token"
	"github.com/luikyv/go-authority/pkg/goidc"
)

// protectionClient returns the id of the resource server the PAT was issued
// to.
func protectionClient(ctx oidc.Context, pat string) (string, error) {
	if pat == "" {
		return "", goidc.NewError(goidc.ErrorCodeInvalidToken, "the protection api token is required")
	}

	info, err := token.IntrospectToken(ctx, pat, goidc.TokenHintAccess)
	if err != nil {
		return "", err
	}

	if !info.IsActive || info.Type != goidc.TokenHintAccess {
		return "", goidc.NewError(goidc.ErrorCodeInvalidToken, "invalid protection api token")
	}

	if !strutil.IsSubset(goidc.ScopeUMAProtection, info.Scopes) {
		return "", goidc.NewError(goidc.ErrorCodeInvalidScope, "the token was not granted the scope "+goidc.ScopeUMAProtection)
	}

	return info.ClientID, nil
}
