// Package jwtutil implements the token codec. It builds and parses unsecured,
// signed, encrypted and nested (signed then encrypted) compact tokens.
// Keys are never handled here, every cryptographic operation is delegated
// to the crypto provider.
package jwtutil

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/luikyv/go-authority/internal/joseutil"
	"github.com/luikyv/go-authority/pkg/goidc"
)

const (
	NoneAlgorithm = "none"
	TypeJWT       = "JWT"
)

var (
	unsignedPattern = regexp.MustCompile(`^[\w-]+\.[\w-]+\.$`)
	jwsPattern      = regexp.MustCompile(`^[\w-]+\.[\w-]+\.[\w-]+$`)
	jwePattern      = regexp.MustCompile(`^[\w-]+\.[\w-]*\.[\w-]+\.[\w-]+\.[\w-]+$`)
)

func IsUnsignedJWT(token string) bool {
	return unsignedPattern.MatchString(token)
}

func IsJWS(token string) bool {
	return jwsPattern.MatchString(token)
}

// IsJWE reports whether token looks like a compact JWE. The encrypted key
// segment is empty for direct encryption.
func IsJWE(token string) bool {
	return jwePattern.MatchString(token)
}

// Header is the JOSE header of a compact token.
type Header struct {
	Algorithm   string `json:"alg"`
	KeyID       string `json:"kid,omitempty"`
	Type        string `json:"typ,omitempty"`
	ContentType string `json:"cty,omitempty"`
	Encryption  string `json:"enc,omitempty"`
}

// IsNested reports whether the token payload is itself a token.
func (h Header) IsNested() bool {
	return strings.EqualFold(h.ContentType, TypeJWT)
}

// PeekHeader decodes the header of a signed, unsecured or encrypted token
// without verifying anything.
func PeekHeader(token string) (Header, error) {
	segments := strings.Split(token, ".")
	if len(segments) != 3 && len(segments) != 5 {
		return Header{}, fmt.Errorf("%w: unexpected number of segments %d", goidc.ErrMalformedToken, len(segments))
	}

	rawHeader, err := base64.RawURLEncoding.DecodeString(segments[0])
	if err != nil {
		return Header{}, fmt.Errorf("%w: invalid header encoding: %w", goidc.ErrMalformedToken, err)
	}

	var header Header
	if err := json.Unmarshal(rawHeader, &header); err != nil {
		return Header{}, fmt.Errorf("%w: invalid header: %w", goidc.ErrMalformedToken, err)
	}

	if header.Algorithm == "" {
		return Header{}, fmt.Errorf("%w: the header has no alg", goidc.ErrMalformedToken)
	}

	return header, nil
}

// Unsigned builds an unsecured token, i.e. with "alg" set to "none" and an
// empty signature.
func Unsigned(claims Claims) (string, error) {
	headerJSON, err := json.Marshal(Header{Algorithm: NoneAlgorithm, Type: TypeJWT})
	if err != nil {
		return "", err
	}
	encodedHeader := base64.RawURLEncoding.EncodeToString(headerJSON)

	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	encodedClaims := base64.RawURLEncoding.EncodeToString(claimsJSON)

	return fmt.Sprintf("%s.%s.", encodedHeader, encodedClaims), nil
}

// ParseUnsigned returns the claims of an unsecured token. Tokens carrying
// a signature or an algorithm other than "none" are rejected.
func ParseUnsigned(token string) (Claims, error) {
	if strings.Count(token, ".") != 2 {
		return nil, fmt.Errorf("%w: an unsecured token must have three segments", goidc.ErrMalformedToken)
	}

	if !IsUnsignedJWT(token) {
		return nil, fmt.Errorf("%w: an unsecured token must have an empty signature", goidc.ErrMalformedToken)
	}

	header, err := PeekHeader(token)
	if err != nil {
		return nil, err
	}

	if header.Algorithm != NoneAlgorithm {
		return nil, fmt.Errorf("%w: unexpected alg %s for an unsecured token", goidc.ErrUnsupportedAlgorithm, header.Algorithm)
	}

	rawClaims, err := base64.RawURLEncoding.DecodeString(strings.Split(token, ".")[1])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid claims encoding: %w", goidc.ErrMalformedToken, err)
	}

	var claims Claims
	if err := json.Unmarshal(rawClaims, &claims); err != nil {
		return nil, fmt.Errorf("%w: invalid claims: %w", goidc.ErrMalformedToken, err)
	}

	return claims, nil
}

// ParseUnverified returns the claims of a signed token without verifying
// its signature. It must only be used to find out which key verifies the
// token.
func ParseUnverified(token string) (Claims, error) {
	parsed, err := jwt.ParseSigned(token, joseutil.SignatureAlgorithms)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", goidc.ErrMalformedToken, err)
	}

	var claims Claims
	if err := parsed.UnsafeClaimsWithoutVerification(&claims); err != nil {
		return nil, fmt.Errorf("%w: %w", goidc.ErrMalformedToken, err)
	}
	return claims, nil
}
