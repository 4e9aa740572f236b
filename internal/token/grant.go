package token

import (
	"github.com/luikyv/go-authority/internal/clientutil"
	"github.com/luikyv/go-authority/internal/oidc"
	"github.com/luikyv/go-authority/pkg/goidc"
)

// Generate runs the grant of a token request. The UMA ticket grant is not
// handled here.
func Generate(ctx oidc.Context, req Request) (goidc.TokenResponse, error) {
	if !ctx.IsGrantTypeEnabled(req.GrantType) || req.GrantType == goidc.GrantImplicit {
		return goidc.TokenResponse{}, goidc.NewError(goidc.ErrorCodeUnsupportedGrantType, "unsupported grant type")
	}

	switch req.GrantType {
	case goidc.GrantAuthorizationCode:
		return generateAuthorizationCodeGrant(ctx, req)
	case goidc.GrantClientCredentials:
		return generateClientCredentialsGrant(ctx, req)
	case goidc.GrantRefreshToken:
		return generateRefreshTokenGrant(ctx, req)
	case goidc.GrantDeviceCode:
		return generateDeviceCodeGrant(ctx, req)
	case goidc.GrantCIBA:
		return generateCIBAGrant(ctx, req)
	default:
		return goidc.TokenResponse{}, goidc.NewError(goidc.ErrorCodeUnsupportedGrantType, "unsupported grant type")
	}
}

// authenticatedClient authenticates the client and checks it may use the
// grant type.
func authenticatedClient(
	ctx oidc.Context,
	creds clientutil.Credentials,
	gt goidc.GrantType,
) (
	*goidc.Client,
	error,
) {
	c, err := clientutil.Authenticated(ctx, creds)
	if err != nil {
		return nil, err
	}

	if !c.IsGrantTypeAllowed(gt) {
		return nil, goidc.NewError(goidc.ErrorCodeUnauthorizedClient, "grant type not allowed")
	}

	return c, nil
}
