package joseutil

import (
	"crypto/elliptic"

	"github.com/go-jose/go-jose/v4"
)

// family is the closed set of signature algorithm families the provider
// implements. Every signing and verification goes through a single switch
// over it.
type family int

const (
	familyUnknown family = iota
	familyHMAC
	familyRSA
	familyRSAPSS
	familyECDSA
	familyEdDSA
)

func familyOf(alg jose.SignatureAlgorithm) family {
	switch alg {
	case jose.HS256, jose.HS384, jose.HS512:
		return familyHMAC
	case jose.RS256, jose.RS384, jose.RS512:
		return familyRSA
	case jose.PS256, jose.PS384, jose.PS512:
		return familyRSAPSS
	case jose.ES256, jose.ES384, jose.ES512:
		return familyECDSA
	case jose.EdDSA:
		return familyEdDSA
	default:
		return familyUnknown
	}
}

// curveOf returns the curve an ECDSA algorithm requires.
func curveOf(alg jose.SignatureAlgorithm) elliptic.Curve {
	switch alg {
	case jose.ES384:
		return elliptic.P384()
	case jose.ES512:
		return elliptic.P521()
	default:
		return elliptic.P256()
	}
}

// SignatureAlgorithms lists every signature algorithm the provider supports.
var SignatureAlgorithms = []jose.SignatureAlgorithm{
	jose.HS256, jose.HS384, jose.HS512,
	jose.RS256, jose.RS384, jose.RS512,
	jose.PS256, jose.PS384, jose.PS512,
	jose.ES256, jose.ES384, jose.ES512,
	jose.EdDSA,
}

// AsymmetricSignatureAlgorithms lists the algorithms backed by server keys.
var AsymmetricSignatureAlgorithms = []jose.SignatureAlgorithm{
	jose.RS256, jose.RS384, jose.RS512,
	jose.PS256, jose.PS384, jose.PS512,
	jose.ES256, jose.ES384, jose.ES512,
	jose.EdDSA,
}

// KeyAlgorithms lists the supported key management algorithms.
var KeyAlgorithms = []jose.KeyAlgorithm{
	jose.RSA_OAEP, jose.RSA_OAEP_256,
	jose.ECDH_ES, jose.ECDH_ES_A128KW, jose.ECDH_ES_A192KW, jose.ECDH_ES_A256KW,
	jose.DIRECT, jose.A128KW, jose.A192KW, jose.A256KW,
}

// ContentEncryptionAlgorithms lists the supported content encryption
// algorithms.
var ContentEncryptionAlgorithms = []jose.ContentEncryption{
	jose.A128GCM, jose.A192GCM, jose.A256GCM,
	jose.A128CBC_HS256, jose.A192CBC_HS384, jose.A256CBC_HS512,
}

// IsSymmetricKeyAlg reports whether the key management algorithm derives
// its key from a shared secret.
func IsSymmetricKeyAlg(alg jose.KeyAlgorithm) bool {
	switch alg {
	case jose.DIRECT, jose.A128KW, jose.A192KW, jose.A256KW:
		return true
	default:
		return false
	}
}

// symmetricKeySize returns the key size in bytes required by a symmetric
// key management algorithm. For "dir" the key size is the one of the
// content encryption algorithm.
func symmetricKeySize(keyAlg jose.KeyAlgorithm, enc jose.ContentEncryption) int {
	switch keyAlg {
	case jose.A128KW:
		return 16
	case jose.A192KW:
		return 24
	case jose.A256KW:
		return 32
	}

	switch enc {
	case jose.A128GCM:
		return 16
	case jose.A192GCM:
		return 24
	case jose.A256GCM, jose.A128CBC_HS256:
		return 32
	case jose.A192CBC_HS384:
		return 48
	case jose.A256CBC_HS512:
		return 64
	default:
		return 0
	}
}
