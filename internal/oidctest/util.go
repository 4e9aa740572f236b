// Package oidctest holds the fixtures shared by the tests of the lifecycle
// managers.
package oidctest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/luikyv/go-authority/internal/clientutil"
	"github.com/luikyv/go-authority/internal/joseutil"
	"github.com/luikyv/go-authority/internal/jwtutil"
	"github.com/luikyv/go-authority/internal/oidc"
	"github.com/luikyv/go-authority/internal/storage"
	"github.com/luikyv/go-authority/pkg/goidc"
	"github.com/stretchr/testify/require"
)

const (
	Host              string = "https://example.com"
	ClientID          string = "test_client_id"
	ClientSecret      string = "test_client_secret"
	ClientRedirectURI string = "https://example.com/callback"
	Scope1            string = "scope1"
	Scope2            string = "scope2"
	// Timestamp is the time every fixture clock starts at.
	Timestamp int = 1_700_000_000
)

var SecretKey = []byte("test_client_secret_master_key")

// Clock is a manually advanced clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Unix(int64(Timestamp), 0).UTC()}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// NewClient returns a confidential client authenticating with
// client_secret_post and the secret [ClientSecret].
func NewClient(t *testing.T) *goidc.Client {
	t.Helper()

	sealed, err := clientutil.Seal(SecretKey, ClientID, ClientSecret)
	require.NoError(t, err, "could not seal the test client secret")

	return &goidc.Client{
		ID:                 ClientID,
		SealedSecret:       sealed,
		CreatedAtTimestamp: Timestamp,
		ClientMetaInfo: goidc.ClientMetaInfo{
			AuthnMethod:  goidc.ClientAuthnSecretPost,
			RedirectURIs: []string{ClientRedirectURI},
			Scopes:       Scope1 + " " + Scope2 + " " + goidc.ScopeOpenID + " " + goidc.ScopeOfflineAccess + " " + goidc.ScopeUMAProtection,
			GrantTypes: []goidc.GrantType{
				goidc.GrantAuthorizationCode,
				goidc.GrantImplicit,
				goidc.GrantRefreshToken,
				goidc.GrantClientCredentials,
				goidc.GrantDeviceCode,
				goidc.GrantCIBA,
				goidc.GrantUMATicket,
			},
			ResponseTypes: []goidc.ResponseType{
				goidc.ResponseTypeCode,
				goidc.ResponseTypeIDToken,
				goidc.ResponseTypeToken,
				goidc.ResponseTypeCodeAndIDToken,
				goidc.ResponseTypeCodeAndToken,
				goidc.ResponseTypeIDTokenAndToken,
				goidc.ResponseTypeCodeAndIDTokenAndToken,
			},
		},
	}
}

// NewContext returns a context backed by in memory managers, a crypto
// provider holding one RS256 key and a manual clock. The client returned by
// [NewClient] is already registered.
func NewContext(t *testing.T) (oidc.Context, *Clock) {
	t.Helper()

	clock := NewClock()
	crypto := joseutil.NewProvider(joseutil.NewMemoryKeyStore(), clock.Now)
	_, err := crypto.GenerateKey(string(jose.RS256), 0)
	require.NoError(t, err, "could not generate the server key")

	config := &oidc.Configuration{
		ClientManager:               storage.NewClientManager(),
		TokenManager:                storage.NewTokenManager(),
		SessionManager:              storage.NewSessionManager(),
		PendingAuthorizationManager: storage.NewPendingAuthorizationManager(),
		UMAResourceManager:          storage.NewUMAResourceManager(),
		UMATicketManager:            storage.NewUMATicketManager(),
		UMARPTManager:               storage.NewUMARPTManager(),
		UMAPCTManager:               storage.NewUMAPCTManager(),

		Host:   Host,
		Crypto: crypto,
		Codec:  jwtutil.NewCodec(crypto),
		Clock:  clock.Now,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),

		ClientSecretKey:             SecretKey,
		ClientAssertionLifetimeSecs: 600,
		GrantTypes: []goidc.GrantType{
			goidc.GrantAuthorizationCode,
			goidc.GrantImplicit,
			goidc.GrantClientCredentials,
			goidc.GrantRefreshToken,
			goidc.GrantDeviceCode,
			goidc.GrantCIBA,
			goidc.GrantUMATicket,
		},
		ResponseTypes: []goidc.ResponseType{
			goidc.ResponseTypeCode,
			goidc.ResponseTypeIDToken,
			goidc.ResponseTypeToken,
			goidc.ResponseTypeCodeAndIDToken,
			goidc.ResponseTypeCodeAndToken,
			goidc.ResponseTypeIDTokenAndToken,
			goidc.ResponseTypeCodeAndIDTokenAndToken,
		},
		Scopes: []string{goidc.ScopeOpenID, goidc.ScopeOfflineAccess, goidc.ScopeUMAProtection, Scope1, Scope2},

		DefaultSigAlg: jose.RS256,
		SigAlgs:       []jose.SignatureAlgorithm{jose.RS256},

		IDTokenEncIsEnabled:         true,
		IDTokenKeyEncAlgs:           []jose.KeyAlgorithm{jose.RSA_OAEP_256},
		IDTokenDefaultContentEncAlg: jose.A128CBC_HS256,
		IDTokenContentEncAlgs:       []jose.ContentEncryption{jose.A128CBC_HS256},

		AuthorizationCodeLifetimeSecs: 60,
		AccessTokenLifetimeSecs:       300,
		IDTokenLifetimeSecs:           300,
		AccessTokenFormat:             goidc.TokenFormatOpaque,
		RefreshTokenLifetimeSecs:      3600,
		RefreshTokenRotationIsEnabled: true,
		PKCEChallengeMethods:          []goidc.CodeChallengeMethod{goidc.CodeChallengeMethodSHA256},

		DeviceCodeLifetimeSecs:     600,
		DevicePollIntervalSecs:     5,
		DeviceVerificationURI:      Host + "/device",
		CIBALifetimeSecs:           600,
		CIBAPollIntervalSecs:       5,
		SessionIdleLifetimeSecs:    1800,
		SessionMaxLifetimeSecs:     86400,
		UnauthenticatedSessionSecs: 300,

		UMATicketLifetimeSecs: 300,
		UMARPTLifetimeSecs:    300,
		UMAPCTLifetimeSecs:    86400,
		UMARPTFormat:          goidc.TokenFormatOpaque,

		EndpointToken: "/token",
	}

	ctx := oidc.NewContext(t.Context(), config)
	require.NoError(t, ctx.SaveClient(NewClient(t)), "could not create the test client")
	return ctx, clock
}

// Tokens returns every token record the in memory manager holds.
func Tokens(t *testing.T, ctx oidc.Context) int {
	t.Helper()

	manager, ok := ctx.TokenManager.(*storage.TokenManager)
	require.True(t, ok, "the token manager is not the in memory one")
	return manager.Len()
}

func RawJWKS(jwk jose.JSONWebKey) []byte {
	jwks, _ := json.Marshal(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{jwk}})
	return jwks
}

func PrivateRS256JWK(t *testing.T, keyID string) jose.JSONWebKey {
	return PrivateRS256JWKWithUsage(t, keyID, goidc.KeyUsageSignature)
}

func PrivateRS256JWKWithUsage(
	t *testing.T,
	keyID string,
	usage goidc.KeyUsage,
) jose.JSONWebKey {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return jose.JSONWebKey{
		Key:       privateKey,
		KeyID:     keyID,
		Algorithm: string(jose.RS256),
		Use:       string(usage),
	}
}

// PrivateRSAOAEPJWK returns a key the server can encrypt ID tokens to.
func PrivateRSAOAEPJWK(t *testing.T, keyID string) jose.JSONWebKey {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return jose.JSONWebKey{
		Key:       privateKey,
		KeyID:     keyID,
		Algorithm: string(jose.RSA_OAEP_256),
		Use:       string(goidc.KeyUsageEncryption),
	}
}

// Sign signs claims with the private jwk, as a client would.
func Sign(t *testing.T, claims map[string]any, jwk jose.JSONWebKey) string {
	t.Helper()

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.SignatureAlgorithm(jwk.Algorithm), Key: jwk},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(t, err)

	token, err := jwt.Signed(signer).Claims(claims).Serialize()
	require.NoError(t, err)
	return token
}

// SafeClaims verifies jws with the server keys and returns its claims.
func SafeClaims(t *testing.T, ctx oidc.Context, jws string) map[string]any {
	t.Helper()

	jwks := ctx.Crypto.PublicJWKS()
	claims, _, err := ctx.Codec.ParseSigned(jws, jwtutil.VerifyOptions{JWKS: &jwks})
	require.NoError(t, err, "invalid JWT")
	return claims
}

func UnsafeClaims(t *testing.T, jws string, algorithms []jose.SignatureAlgorithm) map[string]any {
	t.Helper()

	parsedToken, err := jwt.ParseSigned(jws, algorithms)
	require.NoError(t, err, "invalid JWT")

	var claims map[string]any
	err = parsedToken.UnsafeClaimsWithoutVerification(&claims)
	require.NoError(t, err, "could not read claims")

	return claims
}
