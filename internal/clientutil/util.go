package clientutil

import (
	"errors"
	"fmt"

	"github.com/go-jose/go-jose/v4"
	"github.com/luikyv/go-authority/internal/oidc"
	"github.com/luikyv/go-authority/pkg/goidc"
)

// Secret returns the plain secret of the client.
func Secret(ctx oidc.Context, c *goidc.Client) ([]byte, error) {
	if c.SealedSecret == "" {
		return nil, errors.New("the client has no secret")
	}

	secret, err := Open(ctx.ClientSecretKey, c.ID, c.SealedSecret)
	if err != nil {
		return nil, err
	}
	return []byte(secret), nil
}

// IDTokenSigAlg returns the algorithm ID tokens for the client are signed
// with.
func IDTokenSigAlg(ctx oidc.Context, c *goidc.Client) jose.SignatureAlgorithm {
	if c.IDTokenSigAlg != "" {
		return c.IDTokenSigAlg
	}
	return ctx.DefaultSigAlg
}

// IDTokenEncryptionJWK returns the client key ID tokens are encrypted with.
func IDTokenEncryptionJWK(ctx oidc.Context, c *goidc.Client) (jose.JSONWebKey, error) {
	return encJWK(ctx, c, c.IDTokenKeyEncAlg)
}

// encJWK returns the encryption JWK based on the algorithm.
func encJWK(
	ctx oidc.Context,
	c *goidc.Client,
	alg jose.KeyAlgorithm,
) (
	jose.JSONWebKey,
	error,
) {
	jwk, err := jwkMatchingAlg(ctx, c, string(alg))
	if err != nil {
		return jose.JSONWebKey{}, err
	}

	if jwk.Use != "" && jwk.Use != string(goidc.KeyUsageEncryption) {
		return jose.JSONWebKey{}, errors.New("invalid key usage")
	}

	return jwk, nil
}

// jwkMatchingAlg returns a client JWK based on the algorithm.
func jwkMatchingAlg(ctx oidc.Context, c *goidc.Client, alg string) (jose.JSONWebKey, error) {
	jwks, err := ctx.ClientJWKS(c)
	if err != nil {
		return jose.JSONWebKey{}, err
	}

	for _, jwk := range jwks.Keys {
		if jwk.Algorithm == alg {
			return jwk, nil
		}
	}

	return jose.JSONWebKey{}, fmt.Errorf("%w: no client key for %s", goidc.ErrKeyNotFound, alg)
}

func usesSecret(method goidc.ClientAuthnType) bool {
	return method == goidc.ClientAuthnSecretBasic ||
		method == goidc.ClientAuthnSecretPost ||
		method == goidc.ClientAuthnSecretJWT
}
