package token

import (
	"github.com/luikyv/go-authority/internal/oidc"
	"github.com/luikyv/go-authority/internal/strutil"
	"github.com/luikyv/go-authority/pkg/goidc"
)

func generateClientCredentialsGrant(ctx oidc.Context, req Request) (goidc.TokenResponse, error) {
	c, err := authenticatedClient(ctx, req.Credentials, goidc.GrantClientCredentials)
	if err != nil {
		return goidc.TokenResponse{}, err
	}

	if c.IsPublic() {
		return goidc.TokenResponse{}, goidc.NewError(goidc.ErrorCodeUnauthorizedClient,
			"public clients cannot use the client credentials grant")
	}

	scopes := req.Scopes
	if scopes == "" {
		scopes = c.Scopes
	}

	if strutil.ContainsOpenID(scopes) {
		return goidc.TokenResponse{}, goidc.NewError(goidc.ErrorCodeInvalidScope,
			"scope openid is not allowed for the client credentials grant")
	}

	if err := validateScopes(ctx, c, scopes); err != nil {
		return goidc.TokenResponse{}, err
	}

	return issue(ctx, c, goidc.GrantInfo{
		GrantID:   newGrantID(),
		GrantType: goidc.GrantClientCredentials,
		ClientID:  c.ID,
		Scopes:    scopes,
	}, tokenOptions{})
}
