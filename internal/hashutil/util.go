package hashutil

import (
	"crypto"
	"crypto/sha256"
	"encoding/base64"

	"github.com/go-jose/go-jose/v4"
)

// Thumbprint generates a base64 URL-encoded SHA-256 hash (thumbprint) of a
// given string.
func Thumbprint(s string) string {
	hash := sha256.New()
	hash.Write([]byte(s))
	return base64.RawURLEncoding.EncodeToString(hash.Sum(nil))
}

// HashAlg returns the digest matching the size of the signature algorithm.
// Unknown or empty algorithms fall back to SHA-256.
// TODO: EdDSA falls into the SHA-256 branch; OpenID Connect errata ask for
// SHA-512 with Ed25519. Review before relying on it for EdDSA ID tokens.
func HashAlg(alg jose.SignatureAlgorithm) crypto.Hash {
	switch alg {
	case jose.RS384, jose.ES384, jose.PS384, jose.HS384:
		return crypto.SHA384
	case jose.RS512, jose.ES512, jose.PS512, jose.HS512:
		return crypto.SHA512
	default:
		return crypto.SHA256
	}
}

// HalfHash computes claims such as "at_hash" and "c_hash": the base64url
// encoding of the left-most half of the hash of claim.
func HalfHash(claim string, alg jose.SignatureAlgorithm) string {
	hash := HashAlg(alg).New()
	hash.Write([]byte(claim))
	halfHashedClaim := hash.Sum(nil)[:hash.Size()/2]
	return base64.RawURLEncoding.EncodeToString(halfHashedClaim)
}
