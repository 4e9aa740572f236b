package token

import (
	"testing"
	"time"

	"github.com/luikyv/go-authority/internal/oidc"
	"github.com/luikyv/go-authority/internal/oidctest"
	"github.com/luikyv/go-authority/pkg/goidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_RefreshTokenGrant_Rotation(t *testing.T) {
	// Given.
	ctx, clock := oidctest.NewContext(t)
	first := exchangeCode(t, ctx, goidc.ScopeOpenID+" "+goidc.ScopeOfflineAccess+" "+oidctest.Scope1)
	clock.Advance(10 * time.Second)

	// When.
	resp, err := Generate(ctx, Request{
		GrantType:    goidc.GrantRefreshToken,
		Credentials:  credentials(),
		RefreshToken: first.RefreshToken,
	})

	// Then.
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.IDToken, "openid was granted so an id token is issued")
	assert.NotEqual(t, first.RefreshToken, resp.RefreshToken)

	_, err = ctx.Token(first.RefreshToken)
	assert.ErrorIs(t, err, goidc.ErrNotFound, "the old refresh token must be consumed")

	newRefreshToken, err := ctx.Token(resp.RefreshToken)
	require.NoError(t, err)
	oldAccessToken, err := ctx.Token(first.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, oldAccessToken.GrantID, newRefreshToken.GrantID, "the grant id must be kept across refreshes")
	assert.Equal(t, oidctest.Timestamp+10+ctx.RefreshTokenLifetimeSecs, newRefreshToken.ExpiresAtTimestamp)

	_, err = Generate(ctx, Request{
		GrantType:    goidc.GrantRefreshToken,
		Credentials:  credentials(),
		RefreshToken: first.RefreshToken,
	})
	assertErrorCode(t, err, goidc.ErrorCodeInvalidGrant)
}

func TestGenerate_RefreshTokenGrant_WithoutRotation(t *testing.T) {
	// Given.
	ctx, _ := oidctest.NewContext(t)
	ctx.RefreshTokenRotationIsEnabled = false
	first := exchangeCode(t, ctx, goidc.ScopeOfflineAccess+" "+oidctest.Scope1)

	// When.
	resp, err := Generate(ctx, Request{
		GrantType:    goidc.GrantRefreshToken,
		Credentials:  credentials(),
		RefreshToken: first.RefreshToken,
	})

	// Then.
	require.NoError(t, err)
	assert.Equal(t, first.RefreshToken, resp.RefreshToken)
	assert.Empty(t, resp.IDToken)

	_, err = ctx.Token(first.RefreshToken)
	assert.NoError(t, err)
}

func TestGenerate_RefreshTokenGrant_ScopeDown(t *testing.T) {
	// Given.
	ctx, _ := oidctest.NewContext(t)
	first := exchangeCode(t, ctx, goidc.ScopeOfflineAccess+" "+oidctest.Scope1+" "+oidctest.Scope2)
	original, err := ctx.Token(first.RefreshToken)
	require.NoError(t, err)

	// When.
	resp, err := Generate(ctx, Request{
		GrantType:    goidc.GrantRefreshToken,
		Credentials:  credentials(),
		RefreshToken: first.RefreshToken,
		Scopes:       oidctest.Scope1,
	})

	// Then.
	require.NoError(t, err)
	assert.Equal(t, oidctest.Scope1, resp.Scopes)

	accessToken, err := ctx.Token(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, oidctest.Scope1, accessToken.Scopes)

	rotated, err := ctx.Token(resp.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, original.Scopes, rotated.Scopes,
		"the rotated refresh token must keep the scope originally granted")

	// When the client asks for the scope it dropped on the last refresh.
	resp, err = Generate(ctx, Request{
		GrantType:    goidc.GrantRefreshToken,
		Credentials:  credentials(),
		RefreshToken: resp.RefreshToken,
		Scopes:       oidctest.Scope1 + " " + oidctest.Scope2,
	})

	// Then the full scope can be requested again.
	require.NoError(t, err)
	assert.Equal(t, oidctest.Scope1+" "+oidctest.Scope2, resp.Scopes)
}

func TestGenerate_RefreshTokenGrant_InvalidRequests(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(*Request, oidc.Context, *oidctest.Clock)
		code   goidc.ErrorCode
	}{
		{
			name: "scope cannot be extended",
			modify: func(req *Request, _ oidc.Context, _ *oidctest.Clock) {
				req.Scopes = oidctest.Scope2
			},
			code: goidc.ErrorCodeInvalidScope,
		},
		{
			name: "expired refresh token",
			modify: func(_ *Request, ctx oidc.Context, clock *oidctest.Clock) {
				clock.Advance(time.Duration(ctx.RefreshTokenLifetimeSecs+1) * time.Second)
			},
			code: goidc.ErrorCodeInvalidGrant,
		},
		{
			name: "unknown refresh token",
			modify: func(req *Request, _ oidc.Context, _ *oidctest.Clock) {
				req.RefreshToken = "unknown"
			},
			code: goidc.ErrorCodeInvalidGrant,
		},
		{
			name: "another client",
			modify: func(req *Request, ctx oidc.Context, _ *oidctest.Clock) {
				c := oidctest.NewClient(t)
				c.ID = "other_client"
				c.AuthnMethod = goidc.ClientAuthnNone
				c.SealedSecret = ""
				if err := ctx.SaveClient(c); err != nil {
					t.Fatal(err)
				}
				req.Credentials.ID = c.ID
				req.Credentials.Secret = ""
			},
			code: goidc.ErrorCodeInvalidGrant,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Given.
			ctx, clock := oidctest.NewContext(t)
			first := exchangeCode(t, ctx, goidc.ScopeOfflineAccess+" "+oidctest.Scope1)
			req := Request{
				GrantType:    goidc.GrantRefreshToken,
				Credentials:  credentials(),
				RefreshToken: first.RefreshToken,
			}
			tc.modify(&req, ctx, clock)

			// When.
			_, err := Generate(ctx, req)

			// Then.
			assertErrorCode(t, err, tc.code)
		})
	}
}

func TestGenerate_RefreshTokenGrant_AccessTokenIsNotARefreshToken(t *testing.T) {
	// Given.
	ctx, _ := oidctest.NewContext(t)
	first := exchangeCode(t, ctx, goidc.ScopeOfflineAccess)

	// When.
	_, err := Generate(ctx, Request{
		GrantType:    goidc.GrantRefreshToken,
		Credentials:  credentials(),
		RefreshToken: first.AccessToken,
	})

	// Then.
	assertErrorCode(t, err, goidc.ErrorCodeInvalidGrant)
}

func TestShouldIssueRefreshToken(t *testing.T) {
	ctx, _ := oidctest.NewContext(t)
	c := oidctest.NewClient(t)

	assert.True(t, shouldIssueRefreshToken(ctx, c, goidc.GrantInfo{Scopes: goidc.ScopeOfflineAccess}))
	assert.False(t, shouldIssueRefreshToken(ctx, c, goidc.GrantInfo{Scopes: oidctest.Scope1}))

	ctx.Scopes = []string{oidctest.Scope1}
	assert.True(t, shouldIssueRefreshToken(ctx, c, goidc.GrantInfo{Scopes: oidctest.Scope1}))

	c.GrantTypes = []goidc.GrantType{goidc.GrantAuthorizationCode}
	assert.False(t, shouldIssueRefreshToken(ctx, c, goidc.GrantInfo{Scopes: oidctest.Scope1}))
}

// exchangeCode runs the authorization code grant and returns its tokens.
func exchangeCode(t *testing.T, ctx oidc.Context, scopes string) goidc.TokenResponse {
	t.Helper()

	resp, err := Generate(ctx, Request{
		GrantType:         goidc.GrantAuthorizationCode,
		Credentials:       credentials(),
		AuthorizationCode: authorizeCode(t, ctx, scopes),
		RedirectURI:       oidctest.ClientRedirectURI,
		CodeVerifier:      codeVerifier,
	})
	require.NoError(t, err)
	return resp
}
