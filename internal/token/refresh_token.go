package token

import (
	"github.com/luikyv/go-authority/internal/oidc"
	"github.com/luikyv/go-authority/internal/strutil"
	"github.com/luikyv/go-authority/pkg/goidc"
)

func generateRefreshTokenGrant(ctx oidc.Context, req Request) (goidc.TokenResponse, error) {
	if req.RefreshToken == "" {
		return goidc.TokenResponse{}, goidc.NewError(goidc.ErrorCodeInvalidRequest, "invalid refresh token")
	}

	c, err := authenticatedClient(ctx, req.Credentials, goidc.GrantRefreshToken)
	if err != nil {
		return goidc.TokenResponse{}, err
	}

	refreshToken, err := ctx.Token(req.RefreshToken)
	if err != nil {
		return goidc.TokenResponse{}, invalidGrantOrStoreError("invalid refresh token", err)
	}

	if err := validateRefreshTokenGrantRequest(ctx, req, c, refreshToken); err != nil {
		return goidc.TokenResponse{}, err
	}

	if ctx.RefreshTokenRotationIsEnabled {
		// Consuming is what makes the refresh token single use. A concurrent
		// request that consumed it first wins.
		if _, err := ctx.ConsumeToken(refreshToken.Code); err != nil {
			return goidc.TokenResponse{}, invalidGrantOrStoreError("invalid refresh token", err)
		}
	}

	grant := refreshToken.GrantInfo
	grant.GrantType = goidc.GrantRefreshToken
	// A narrowed scope applies to the tokens issued now, the refresh token
	// keeps the scope originally granted.
	refreshGrant := grant
	if req.Scopes != "" {
		grant.Scopes = req.Scopes
	}

	resp, err := issue(ctx, c, grant, tokenOptions{
		idToken: strutil.ContainsOpenID(grant.Scopes),
	})
	if err != nil {
		return goidc.TokenResponse{}, err
	}

	if !ctx.RefreshTokenRotationIsEnabled {
		resp.RefreshToken = refreshToken.Code
		return resp, nil
	}

	rotated, err := makeRefreshToken(ctx, refreshGrant)
	if err != nil {
		return goidc.TokenResponse{}, err
	}
	resp.RefreshToken = rotated.Code
	return resp, nil
}

func validateRefreshTokenGrantRequest(
	ctx oidc.Context,
	req Request,
	c *goidc.Client,
	refreshToken *goidc.Token,
) error {
	if refreshToken.Kind != goidc.TokenKindRefreshToken {
		return goidc.NewError(goidc.ErrorCodeInvalidGrant, "invalid refresh token")
	}

	if refreshToken.ClientID != c.ID {
		return goidc.NewError(goidc.ErrorCodeInvalidGrant, "the refresh token was not issued to the client")
	}

	if refreshToken.IsExpired(ctx.TimestampNow()) {
		return goidc.NewError(goidc.ErrorCodeInvalidGrant, "the refresh token is expired")
	}

	if !strutil.IsSubset(req.Scopes, refreshToken.Scopes) {
		return goidc.NewError(goidc.ErrorCodeInvalidScope, "scopes cannot be extended on refresh")
	}

	return nil
}
