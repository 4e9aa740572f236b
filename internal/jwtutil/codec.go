package jwtutil

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/luikyv/go-authority/internal/joseutil"
	"github.com/luikyv/go-authority/pkg/goidc"
)

// Codec builds and parses compact tokens with the keys held by a crypto
// provider.
type Codec struct {
	provider *joseutil.Provider
}

func NewCodec(provider *joseutil.Provider) Codec {
	return Codec{provider: provider}
}

// SignOptions selects the signing key. Secret is used by HMAC algorithms,
// KeyID by all the others.
type SignOptions struct {
	Algorithm jose.SignatureAlgorithm
	KeyID     string
	Secret    []byte
	// Type is the "typ" header, it defaults to "JWT".
	Type string
}

// VerifyOptions tells how to resolve the verification key. When JWKS is nil
// asymmetric keys are looked up in the provider key store.
type VerifyOptions struct {
	Algorithms []jose.SignatureAlgorithm
	JWKS       *jose.JSONWebKeySet
	Secret     []byte
}

// EncryptOptions describes the recipient of an encrypted token. Recipient is
// used by asymmetric key management algorithms, Secret by "dir" and the AES
// key wrap ones.
type EncryptOptions struct {
	KeyAlgorithm      jose.KeyAlgorithm
	ContentEncryption jose.ContentEncryption
	Recipient         *jose.JSONWebKey
	Secret            []byte
}

func (c Codec) Sign(claims Claims, opts SignOptions) (string, error) {
	typ := opts.Type
	if typ == "" {
		typ = TypeJWT
	}

	signer, err := jose.NewSigner(
		jose.SigningKey{
			Algorithm: opts.Algorithm,
			Key:       c.provider.Signer(opts.KeyID, opts.Secret, opts.Algorithm),
		},
		(&jose.SignerOptions{}).WithType(jose.ContentType(typ)),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", goidc.ErrUnsupportedAlgorithm, err)
	}

	token, err := jwt.Signed(signer).Claims(map[string]any(claims)).Serialize()
	if err != nil {
		return "", fmt.Errorf("could not sign the token: %w", err)
	}

	return token, nil
}

// ParseSigned verifies a signed token and returns its claims. Only the
// signature is checked, callers validate the claims with [Validate].
func (c Codec) ParseSigned(token string, opts VerifyOptions) (Claims, Header, error) {
	if strings.Count(token, ".") != 2 {
		return nil, Header{}, fmt.Errorf("%w: a signed token must have three segments", goidc.ErrMalformedToken)
	}

	header, err := PeekHeader(token)
	if err != nil {
		return nil, Header{}, err
	}

	algs := opts.Algorithms
	if len(algs) == 0 {
		algs = joseutil.SignatureAlgorithms
	}
	if !slices.Contains(algs, jose.SignatureAlgorithm(header.Algorithm)) {
		return nil, Header{}, fmt.Errorf("%w: %s", goidc.ErrUnsupportedAlgorithm, header.Algorithm)
	}

	parsed, err := jwt.ParseSigned(token, algs)
	if err != nil {
		return nil, Header{}, fmt.Errorf("%w: %w", goidc.ErrMalformedToken, err)
	}

	verifier := c.provider.Verifier(header.KeyID, opts.JWKS, opts.Secret)
	var claims Claims
	if err := parsed.Claims(verifier, &claims); err != nil {
		if verifier.Err() != nil {
			return nil, Header{}, verifier.Err()
		}
		if errors.Is(err, jose.ErrCryptoFailure) {
			return nil, Header{}, goidc.ErrInvalidSignature
		}
		return nil, Header{}, fmt.Errorf("%w: %w", goidc.ErrMalformedToken, err)
	}

	return claims, header, nil
}

// Encrypt encrypts payload. cty must be "JWT" when payload is a token.
func (c Codec) Encrypt(payload []byte, cty string, opts EncryptOptions) (string, error) {
	return c.provider.Encrypt(payload, opts.Recipient, opts.Secret, opts.KeyAlgorithm, opts.ContentEncryption, cty)
}

// Decrypt decrypts a compact JWE. secret is only needed when the token was
// encrypted with a symmetric key management algorithm.
func (c Codec) Decrypt(token string, secret []byte) ([]byte, Header, error) {
	if strings.Count(token, ".") != 4 {
		return nil, Header{}, fmt.Errorf("%w: an encrypted token must have five segments", goidc.ErrMalformedToken)
	}

	header, err := PeekHeader(token)
	if err != nil {
		return nil, Header{}, err
	}

	payload, err := c.provider.Decrypt(token, secret)
	if err != nil {
		return nil, Header{}, err
	}

	return payload, header, nil
}

// SignAndEncrypt builds a nested token.
func (c Codec) SignAndEncrypt(claims Claims, sigOpts SignOptions, encOpts EncryptOptions) (string, error) {
	jws, err := c.Sign(claims, sigOpts)
	if err != nil {
		return "", err
	}

	return c.Encrypt([]byte(jws), TypeJWT, encOpts)
}

// DecryptAndParse reverses [Codec.SignAndEncrypt].
func (c Codec) DecryptAndParse(token string, secret []byte, opts VerifyOptions) (Claims, error) {
	payload, header, err := c.Decrypt(token, secret)
	if err != nil {
		return nil, err
	}

	if !header.IsNested() {
		return nil, fmt.Errorf("%w: the encrypted payload is not a token", goidc.ErrMalformedToken)
	}

	claims, _, err := c.ParseSigned(string(payload), opts)
	return claims, err
}

// Parse accepts both signed and nested tokens.
func (c Codec) Parse(token string, secret []byte, opts VerifyOptions) (Claims, error) {
	if IsJWE(token) {
		return c.DecryptAndParse(token, secret, opts)
	}

	claims, _, err := c.ParseSigned(token, opts)
	return claims, err
}
