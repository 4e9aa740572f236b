package jwtutil_test

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"testing"

	"github.com/go-jose/go-jose/v4"
	golangjwt "github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/luikyv/go-authority/internal/joseutil"
	"github.com/luikyv/go-authority/internal/jwtutil"
	"github.com/luikyv/go-authority/pkg/goidc"
	"github.com/stretchr/testify/require"
)

// The tokens produced here must be accepted by independent JOSE libraries
// and the other way around.

func TestInterop_SignedTokenIsVerifiedByOtherLibraries(t *testing.T) {
	// Given.
	codec, p, keyID := newCodec(t, jose.RS256)
	token, err := codec.Sign(jwtutil.Claims{
		goidc.ClaimSubject: "random_subject",
		goidc.ClaimIssuer:  "https://server.com",
	}, jwtutil.SignOptions{Algorithm: jose.RS256, KeyID: keyID})
	require.NoError(t, err)

	jwksJSON, err := json.Marshal(p.PublicJWKS())
	require.NoError(t, err)

	// When.
	set, err := jwk.Parse(jwksJSON)
	require.NoError(t, err)
	key, found := set.LookupKeyID(keyID)
	require.True(t, found)
	var rawKey any
	require.NoError(t, jwk.Export(key, &rawKey))

	parsed, err := golangjwt.Parse(token, func(token *golangjwt.Token) (any, error) {
		require.Equal(t, keyID, token.Header["kid"])
		return rawKey, nil
	}, golangjwt.WithValidMethods([]string{"RS256"}))

	// Then.
	require.NoError(t, err)
	require.True(t, parsed.Valid)

	claims, ok := parsed.Claims.(golangjwt.MapClaims)
	require.True(t, ok)
	require.Equal(t, "random_subject", claims["sub"])
	require.Equal(t, "https://server.com", claims["iss"])
}

func TestInterop_TokenSignedByOtherLibraryIsVerified(t *testing.T) {
	// Given.
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	token := golangjwt.NewWithClaims(golangjwt.SigningMethodRS256, golangjwt.MapClaims{
		"sub": "random_subject",
		"aud": "random_client",
	})
	token.Header["kid"] = "interop_key"
	signed, err := token.SignedString(privateKey)
	require.NoError(t, err)

	key, err := jwk.Import(&privateKey.PublicKey)
	require.NoError(t, err)
	require.NoError(t, key.Set(jwk.KeyIDKey, "interop_key"))
	require.NoError(t, key.Set(jwk.KeyUsageKey, "sig"))
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(key))
	setJSON, err := json.Marshal(set)
	require.NoError(t, err)

	var jwks jose.JSONWebKeySet
	require.NoError(t, json.Unmarshal(setJSON, &jwks))

	codec := jwtutil.NewCodec(joseutil.NewProvider(nil, nil))

	// When.
	claims, header, err := codec.ParseSigned(signed, jwtutil.VerifyOptions{
		Algorithms: []jose.SignatureAlgorithm{jose.RS256},
		JWKS:       &jwks,
	})

	// Then.
	require.NoError(t, err)
	require.Equal(t, "interop_key", header.KeyID)
	require.Equal(t, "random_subject", claims.String(goidc.ClaimSubject))
	require.Equal(t, []string{"random_client"}, claims.Audience())
}

func TestInterop_RawSignatureIsVerifiedByOtherLibrary(t *testing.T) {
	// Given.
	p := joseutil.NewProvider(nil, nil)
	key, err := p.GenerateKey(string(jose.RS256), 0)
	require.NoError(t, err)
	signingInput := "eyJhbGciOiJSUzI1NiJ9.eyJzdWIiOiJyYW5kb21fc3ViamVjdCJ9"

	// When.
	sig, err := p.Sign([]byte(signingInput), key.KeyID, nil, jose.RS256)

	// Then.
	require.NoError(t, err)

	jwks := p.PublicJWKS()
	pub := jwks.Key(key.KeyID)[0].Key
	require.NoError(t, golangjwt.SigningMethodRS256.Verify(signingInput, sig, pub))
}
