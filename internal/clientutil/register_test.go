package clientutil_test

import (
	"testing"

	"github.com/luikyv/go-authority/internal/clientutil"
	"github.com/luikyv/go-authority/internal/oidctest"
	"github.com/luikyv/go-authority/pkg/goidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	// Given.
	ctx, _ := oidctest.NewContext(t)
	ctx.ClientLifetimeSecs = 3600
	ctx.ClientSecretLifetimeSecs = 600

	// When.
	c, secret, err := clientutil.Register(ctx, goidc.ClientMetaInfo{
		GrantTypes:   []goidc.GrantType{goidc.GrantAuthorizationCode},
		RedirectURIs: []string{oidctest.ClientRedirectURI},
		Scopes:       oidctest.Scope1,
	})

	// Then.
	require.NoError(t, err)
	assert.NotEmpty(t, secret)
	assert.Equal(t, goidc.ClientAuthnSecretBasic, c.AuthnMethod)
	assert.True(t, c.Deletable)
	assert.Equal(t, oidctest.Timestamp+3600, c.ExpiresAtTimestamp)
	assert.Equal(t, oidctest.Timestamp+600, c.SecretExpiresAtTimestamp)
	assert.NotContains(t, c.SealedSecret, secret)

	stored, err := ctx.Client(c.ID)
	require.NoError(t, err)
	opened, err := clientutil.Secret(ctx, stored)
	require.NoError(t, err)
	assert.Equal(t, secret, string(opened))
}

func TestRegister_PublicClientHasNoSecret(t *testing.T) {
	ctx, _ := oidctest.NewContext(t)

	c, secret, err := clientutil.Register(ctx, goidc.ClientMetaInfo{
		AuthnMethod:  goidc.ClientAuthnNone,
		GrantTypes:   []goidc.GrantType{goidc.GrantAuthorizationCode},
		RedirectURIs: []string{oidctest.ClientRedirectURI},
	})

	require.NoError(t, err)
	assert.Empty(t, secret)
	assert.Empty(t, c.SealedSecret)
	assert.True(t, c.IsPublic())
}

func TestRegister_InvalidMetadata(t *testing.T) {
	testCases := []struct {
		name string
		meta goidc.ClientMetaInfo
	}{
		{
			name: "no grant types",
			meta: goidc.ClientMetaInfo{},
		},
		{
			name: "grant type not enabled",
			meta: goidc.ClientMetaInfo{GrantTypes: []goidc.GrantType{"password"}},
		},
		{
			name: "scope not allowed",
			meta: goidc.ClientMetaInfo{
				GrantTypes: []goidc.GrantType{goidc.GrantClientCredentials},
				Scopes:     "admin",
			},
		},
		{
			name: "missing redirect uris",
			meta: goidc.ClientMetaInfo{GrantTypes: []goidc.GrantType{goidc.GrantAuthorizationCode}},
		},
		{
			name: "private_key_jwt without jwks",
			meta: goidc.ClientMetaInfo{
				AuthnMethod: goidc.ClientAuthnPrivateKeyJWT,
				GrantTypes:  []goidc.GrantType{goidc.GrantClientCredentials},
			},
		},
		{
			name: "content encryption without key encryption",
			meta: goidc.ClientMetaInfo{
				GrantTypes:           []goidc.GrantType{goidc.GrantClientCredentials},
				IDTokenContentEncAlg: "A128GCM",
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, _ := oidctest.NewContext(t)

			_, _, err := clientutil.Register(ctx, tc.meta)

			assertErrorCode(t, err, goidc.ErrorCodeInvalidRequest)
		})
	}
}

func TestRegister_MethodNotAllowed(t *testing.T) {
	ctx, _ := oidctest.NewContext(t)
	ctx.ClientAuthnMethods = []goidc.ClientAuthnType{goidc.ClientAuthnPrivateKeyJWT}

	_, _, err := clientutil.Register(ctx, goidc.ClientMetaInfo{
		GrantTypes: []goidc.GrantType{goidc.GrantClientCredentials},
	})

	assertErrorCode(t, err, goidc.ErrorCodeInvalidRequest)
}

func TestRotateSecret(t *testing.T) {
	// Given.
	ctx, _ := oidctest.NewContext(t)

	// When.
	secret, err := clientutil.RotateSecret(ctx, oidctest.ClientID)

	// Then.
	require.NoError(t, err)
	assert.NotEqual(t, oidctest.ClientSecret, secret)

	_, err = clientutil.Authenticated(ctx, clientutil.Credentials{
		ID:     oidctest.ClientID,
		Secret: oidctest.ClientSecret,
	})
	assert.Error(t, err, "the old secret must no longer work")

	_, err = clientutil.Authenticated(ctx, clientutil.Credentials{
		ID:     oidctest.ClientID,
		Secret: secret,
	})
	assert.NoError(t, err)
}

func TestUpdate(t *testing.T) {
	// Given.
	ctx, _ := oidctest.NewContext(t)
	meta := oidctest.NewClient(t).ClientMetaInfo
	meta.Name = "renamed"

	// When.
	c, err := clientutil.Update(ctx, oidctest.ClientID, meta)

	// Then.
	require.NoError(t, err)
	assert.Equal(t, "renamed", c.Name)

	_, err = clientutil.Authenticated(ctx, clientutil.Credentials{
		ID:     oidctest.ClientID,
		Secret: oidctest.ClientSecret,
	})
	assert.NoError(t, err, "updating the metadata must keep the secret")
}

func TestUpdate_CannotDropTheSecret(t *testing.T) {
	ctx, _ := oidctest.NewContext(t)
	meta := oidctest.NewClient(t).ClientMetaInfo
	meta.AuthnMethod = goidc.ClientAuthnNone

	_, err := clientutil.Update(ctx, oidctest.ClientID, meta)

	assertErrorCode(t, err, goidc.ErrorCodeInvalidRequest)
}
