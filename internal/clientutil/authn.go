package clientutil

import (
	"crypto/subtle"
	"errors"
	"slices"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/luikyv/go-authority/internal/joseutil"
	"github.com/luikyv/go-authority/internal/jwtutil"
	"github.com/luikyv/go-authority/internal/oidc"
	"github.com/luikyv/go-authority/pkg/goidc"
)

// assertionLeeway is the clock skew tolerated when validating assertions.
const assertionLeeway = 5 * time.Second

var hmacAlgorithms = []jose.SignatureAlgorithm{jose.HS256, jose.HS384, jose.HS512}

// Credentials are the client credentials extracted from a request.
type Credentials struct {
	ID     string
	Secret string
	// Method is how the secret was presented, i.e. client_secret_basic or
	// client_secret_post. It is empty when the caller can't tell.
	Method        goidc.ClientAuthnType
	AssertionType string
	Assertion     string
}

// Authenticated fetches the client identified by the credentials and checks
// that they are valid for the authentication method it registered.
func Authenticated(ctx oidc.Context, creds Credentials) (*goidc.Client, error) {
	id, err := clientID(creds)
	if err != nil {
		return nil, err
	}

	c, err := ctx.Client(id)
	if err != nil {
		if errors.Is(err, goidc.ErrNotFound) {
			return nil, goidc.WrapError(goidc.ErrorCodeInvalidClient, "invalid client", err)
		}
		return nil, goidc.StoreError("could not load the client", err)
	}

	if c.IsExpired(ctx.TimestampNow()) {
		return nil, goidc.NewError(goidc.ErrorCodeInvalidClient, "the client expired")
	}

	if err := authenticate(ctx, c, creds); err != nil {
		return nil, err
	}

	return c, nil
}

func authenticate(ctx oidc.Context, c *goidc.Client, creds Credentials) error {
	switch c.AuthnMethod {
	case goidc.ClientAuthnNone:
		return nil
	case goidc.ClientAuthnSecretBasic, goidc.ClientAuthnSecretPost:
		return authenticateSecret(ctx, c, creds)
	case goidc.ClientAuthnSecretJWT:
		return authenticateSecretJWT(ctx, c, creds)
	case goidc.ClientAuthnPrivateKeyJWT:
		return authenticatePrivateKeyJWT(ctx, c, creds)
	default:
		return goidc.NewError(goidc.ErrorCodeInvalidClient, "invalid authentication method")
	}
}

func authenticateSecret(ctx oidc.Context, c *goidc.Client, creds Credentials) error {
	if creds.Secret == "" {
		return goidc.NewError(goidc.ErrorCodeInvalidClient, "client_secret is required")
	}

	if creds.Method != "" && creds.Method != c.AuthnMethod {
		return goidc.NewError(goidc.ErrorCodeInvalidClient, "invalid authentication method")
	}

	if c.IsSecretExpired(ctx.TimestampNow()) {
		return goidc.NewError(goidc.ErrorCodeInvalidClient, "the client secret expired")
	}

	secret, err := Secret(ctx, c)
	if err != nil {
		return goidc.WrapError(goidc.ErrorCodeInternalError, "could not read the client secret", err)
	}

	if subtle.ConstantTimeCompare(secret, []byte(creds.Secret)) != 1 {
		return goidc.NewError(goidc.ErrorCodeInvalidClient, "invalid secret")
	}

	return nil
}

func authenticateSecretJWT(ctx oidc.Context, c *goidc.Client, creds Credentials) error {
	if c.IsSecretExpired(ctx.TimestampNow()) {
		return goidc.NewError(goidc.ErrorCodeInvalidClient, "the client secret expired")
	}

	secret, err := Secret(ctx, c)
	if err != nil {
		return goidc.WrapError(goidc.ErrorCodeInternalError, "could not read the client secret", err)
	}

	return validateAssertion(ctx, c, creds, jwtutil.VerifyOptions{
		Algorithms: assertionAlgorithms(c, hmacAlgorithms),
		Secret:     secret,
	})
}

func authenticatePrivateKeyJWT(ctx oidc.Context, c *goidc.Client, creds Credentials) error {
	jwks, err := ctx.ClientJWKS(c)
	if err != nil {
		return goidc.WrapError(goidc.ErrorCodeInvalidClient, "could not load the client jwks", err)
	}

	opts := jwtutil.VerifyOptions{
		Algorithms: assertionAlgorithms(c, joseutil.AsymmetricSignatureAlgorithms),
		JWKS:       jwks,
	}
	err = validateAssertion(ctx, c, creds, opts)
	if !errors.Is(err, goidc.ErrKeyNotFound) || c.PublicJWKSURI == "" || ctx.JWKSCache == nil {
		return err
	}

	// The client may have rotated its keys since the set was cached.
	ctx.JWKSCache.Invalidate(c.PublicJWKSURI)
	if opts.JWKS, err = ctx.ClientJWKS(c); err != nil {
		return goidc.WrapError(goidc.ErrorCodeInvalidClient, "could not load the client jwks", err)
	}
	return validateAssertion(ctx, c, creds, opts)
}

func assertionAlgorithms(c *goidc.Client, algs []jose.SignatureAlgorithm) []jose.SignatureAlgorithm {
	if c.AuthnSigAlg != "" && slices.Contains(algs, c.AuthnSigAlg) {
		return []jose.SignatureAlgorithm{c.AuthnSigAlg}
	}
	return algs
}

func validateAssertion(ctx oidc.Context, c *goidc.Client, creds Credentials, opts jwtutil.VerifyOptions) error {
	if creds.Assertion == "" {
		return goidc.NewError(goidc.ErrorCodeInvalidClient, "client_assertion is required")
	}

	if creds.AssertionType != goidc.AssertionTypeJWTBearer {
		return goidc.NewError(goidc.ErrorCodeInvalidClient, "invalid client_assertion_type")
	}

	claims, _, err := ctx.Codec.ParseSigned(creds.Assertion, opts)
	if err != nil {
		if errors.Is(err, goidc.ErrKeyNotFound) {
			return err
		}
		return goidc.WrapError(goidc.ErrorCodeInvalidClient, "invalid client assertion", err)
	}

	exp, iat := claims.Int(goidc.ClaimExpiry), claims.Int(goidc.ClaimIssuedAt)
	if exp == 0 || iat == 0 {
		return goidc.NewError(goidc.ErrorCodeInvalidClient, "claims 'exp' and 'iat' are required in the client assertion")
	}

	if ctx.ClientAssertionLifetimeSecs != 0 && exp-iat > ctx.ClientAssertionLifetimeSecs {
		return goidc.NewError(goidc.ErrorCodeInvalidClient, "the client assertion lifetime is too long")
	}

	if err := jwtutil.Validate(claims, jwtutil.Expected{
		Issuer:  c.ID,
		Subject: c.ID,
		Now:     ctx.Now(),
		Leeway:  assertionLeeway,
	}); err != nil {
		return goidc.WrapError(goidc.ErrorCodeInvalidClient, "invalid client assertion claims", err)
	}

	auds := claims.Audience()
	if !slices.Contains(auds, ctx.Issuer()) && !slices.Contains(auds, ctx.BaseURL()+ctx.EndpointToken) {
		return goidc.NewError(goidc.ErrorCodeInvalidClient, "invalid audience in the client assertion")
	}

	return nil
}

// clientID returns the id the credentials refer to. When an assertion is
// informed, its issuer must match the informed client id.
func clientID(creds Credentials) (string, error) {
	ids := []string{}
	if creds.ID != "" {
		ids = append(ids, creds.ID)
	}

	if creds.Assertion != "" {
		claims, err := jwtutil.ParseUnverified(creds.Assertion)
		if err != nil {
			return "", goidc.WrapError(goidc.ErrorCodeInvalidClient, "invalid client assertion", err)
		}
		if iss := claims.String(goidc.ClaimIssuer); iss != "" {
			ids = append(ids, iss)
		}
	}

	if len(ids) == 0 {
		return "", ErrClientNotIdentified
	}

	for _, id := range ids[1:] {
		if id != ids[0] {
			return "", ErrClientNotIdentified
		}
	}
	return ids[0], nil
}
