// Package joseutil implements the crypto provider: raw signing and
// verification for every supported algorithm family, the server key
// registry and JWE encryption.
//
// The provider is stateless apart from the key store it is given, so it is
// safe for any number of concurrent callers.
package joseutil

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"

	"github.com/go-jose/go-jose/v4"
	"github.com/luikyv/go-authority/internal/hashutil"
	"github.com/luikyv/go-authority/internal/timeutil"
	"github.com/luikyv/go-authority/pkg/goidc"
)

const rsaKeySize = 2048

type Provider struct {
	keys  KeyStore
	clock timeutil.Clock
}

func NewProvider(keys KeyStore, clock timeutil.Clock) *Provider {
	if keys == nil {
		keys = NewMemoryKeyStore()
	}
	if clock == nil {
		clock = timeutil.Now
	}
	return &Provider{
		keys:  keys,
		clock: clock,
	}
}

// Sign signs the signing input. HMAC algorithms use sharedSecret, all the
// others use the private key registered under keyID.
func (p *Provider) Sign(
	signingInput []byte,
	keyID string,
	sharedSecret []byte,
	alg jose.SignatureAlgorithm,
) (
	[]byte,
	error,
) {
	f := familyOf(alg)
	if f == familyUnknown {
		return nil, fmt.Errorf("%w: %s", goidc.ErrUnsupportedAlgorithm, alg)
	}

	if f == familyHMAC {
		if len(sharedSecret) == 0 {
			return nil, fmt.Errorf("%w: a shared secret is required for %s", goidc.ErrKeyNotFound, alg)
		}
		return hmacSum(signingInput, sharedSecret, alg), nil
	}

	key, err := p.privateKey(keyID, alg)
	if err != nil {
		return nil, err
	}

	switch f {
	case familyRSA, familyRSAPSS:
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, keyMismatch(keyID, alg)
		}
		h := hashutil.HashAlg(alg)
		digest := sum(h, signingInput)
		if f == familyRSAPSS {
			return rsa.SignPSS(rand.Reader, rsaKey, h, digest, &rsa.PSSOptions{
				SaltLength: rsa.PSSSaltLengthEqualsHash,
				Hash:       h,
			})
		}
		return rsa.SignPKCS1v15(rand.Reader, rsaKey, h, digest)
	case familyECDSA:
		ecKey, ok := key.(*ecdsa.PrivateKey)
		if !ok || ecKey.Curve.Params().Name != curveOf(alg).Params().Name {
			return nil, keyMismatch(keyID, alg)
		}
		return ecdsaSign(ecKey, sum(hashutil.HashAlg(alg), signingInput))
	case familyEdDSA:
		edKey, ok := key.(ed25519.PrivateKey)
		if !ok {
			return nil, keyMismatch(keyID, alg)
		}
		return ed25519.Sign(edKey, signingInput), nil
	default:
		return nil, fmt.Errorf("%w: %s", goidc.ErrUnsupportedAlgorithm, alg)
	}
}

// VerifySignature checks signature over signingInput. Asymmetric keys are
// resolved from jwks when it is informed, otherwise from the key store.
// A signature that doesn't match returns false and no error; errors are
// reserved for unsupported algorithms and unresolvable keys.
func (p *Provider) VerifySignature(
	signingInput []byte,
	signature []byte,
	keyID string,
	jwks *jose.JSONWebKeySet,
	sharedSecret []byte,
	alg jose.SignatureAlgorithm,
) (
	bool,
	error,
) {
	f := familyOf(alg)
	if f == familyUnknown {
		return false, fmt.Errorf("%w: %s", goidc.ErrUnsupportedAlgorithm, alg)
	}

	if f == familyHMAC {
		if len(sharedSecret) == 0 {
			return false, fmt.Errorf("%w: a shared secret is required for %s", goidc.ErrKeyNotFound, alg)
		}
		return hmac.Equal(hmacSum(signingInput, sharedSecret, alg), signature), nil
	}

	key, err := p.publicKey(keyID, jwks, alg)
	if err != nil {
		return false, err
	}

	switch f {
	case familyRSA, familyRSAPSS:
		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return false, keyMismatch(keyID, alg)
		}
		h := hashutil.HashAlg(alg)
		digest := sum(h, signingInput)
		if f == familyRSAPSS {
			return rsa.VerifyPSS(rsaKey, h, digest, signature, &rsa.PSSOptions{
				SaltLength: rsa.PSSSaltLengthAuto,
				Hash:       h,
			}) == nil, nil
		}
		return rsa.VerifyPKCS1v15(rsaKey, h, digest, signature) == nil, nil
	case familyECDSA:
		ecKey, ok := key.(*ecdsa.PublicKey)
		if !ok || ecKey.Curve.Params().Name != curveOf(alg).Params().Name {
			return false, keyMismatch(keyID, alg)
		}
		return ecdsaVerify(ecKey, sum(hashutil.HashAlg(alg), signingInput), signature), nil
	case familyEdDSA:
		edKey, ok := key.(ed25519.PublicKey)
		if !ok {
			return false, keyMismatch(keyID, alg)
		}
		return ed25519.Verify(edKey, signingInput, signature), nil
	default:
		return false, fmt.Errorf("%w: %s", goidc.ErrUnsupportedAlgorithm, alg)
	}
}

// GenerateKey creates a key pair for alg and registers it. alg is either a
// signature or a key management algorithm. expiresAt lets rotation retire
// the key once every token signed with it has expired.
func (p *Provider) GenerateKey(alg string, expiresAt int) (goidc.CryptoKey, error) {
	var (
		key any
		use goidc.KeyUsage
		err error
	)

	switch f := familyOf(jose.SignatureAlgorithm(alg)); f {
	case familyRSA, familyRSAPSS:
		use = goidc.KeyUsageSignature
		key, err = rsa.GenerateKey(rand.Reader, rsaKeySize)
	case familyECDSA:
		use = goidc.KeyUsageSignature
		key, err = ecdsa.GenerateKey(curveOf(jose.SignatureAlgorithm(alg)), rand.Reader)
	case familyEdDSA:
		use = goidc.KeyUsageSignature
		_, key, err = ed25519.GenerateKey(rand.Reader)
	default:
		switch jose.KeyAlgorithm(alg) {
		case jose.RSA_OAEP, jose.RSA_OAEP_256:
			use = goidc.KeyUsageEncryption
			key, err = rsa.GenerateKey(rand.Reader, rsaKeySize)
		case jose.ECDH_ES, jose.ECDH_ES_A128KW, jose.ECDH_ES_A192KW, jose.ECDH_ES_A256KW:
			use = goidc.KeyUsageEncryption
			key, err = ecdsa.GenerateKey(curveOf(jose.ES256), rand.Reader)
		default:
			return goidc.CryptoKey{}, fmt.Errorf("%w: cannot generate keys for %s", goidc.ErrUnsupportedAlgorithm, alg)
		}
	}
	if err != nil {
		return goidc.CryptoKey{}, fmt.Errorf("could not generate the key: %w", err)
	}

	return p.ImportKey(jose.JSONWebKey{
		Key:       key,
		Algorithm: alg,
		Use:       string(use),
	}, expiresAt)
}

// ImportKey registers a private JWK. When the JWK has no key id, the
// SHA-256 thumbprint is used.
func (p *Provider) ImportKey(jwk jose.JSONWebKey, expiresAt int) (goidc.CryptoKey, error) {
	if jwk.IsPublic() {
		return goidc.CryptoKey{}, errors.New("only private keys can be imported")
	}

	if jwk.KeyID == "" {
		thumbprint, err := jwk.Thumbprint(crypto.SHA256)
		if err != nil {
			return goidc.CryptoKey{}, fmt.Errorf("could not compute the key thumbprint: %w", err)
		}
		jwk.KeyID = base64.RawURLEncoding.EncodeToString(thumbprint)
	}

	use := goidc.KeyUsage(jwk.Use)
	if use == "" {
		use = goidc.KeyUsageSignature
	}

	meta := goidc.CryptoKey{
		KeyID:              jwk.KeyID,
		Algorithm:          jwk.Algorithm,
		Use:                use,
		CreatedAtTimestamp: timeutil.Timestamp(p.clock()),
		ExpiresAtTimestamp: expiresAt,
	}
	p.keys.Put(StoredKey{JWK: jwk, Meta: meta})
	return meta, nil
}

func (p *Provider) DeleteKey(keyID string) bool {
	return p.keys.Remove(keyID)
}

// Keys returns the descriptors of all registered keys, newest first.
func (p *Provider) Keys() []goidc.CryptoKey {
	stored := p.keys.Keys()
	keys := make([]goidc.CryptoKey, 0, len(stored))
	for _, k := range stored {
		keys = append(keys, k.Meta)
	}
	return keys
}

// SigningKey returns the newest non expired signature key for alg.
func (p *Provider) SigningKey(alg jose.SignatureAlgorithm) (goidc.CryptoKey, error) {
	now := timeutil.Timestamp(p.clock())
	for _, k := range p.keys.Keys() {
		if k.Meta.Use == goidc.KeyUsageSignature && k.Meta.Algorithm == string(alg) && !k.Meta.IsExpired(now) {
			return k.Meta, nil
		}
	}
	return goidc.CryptoKey{}, fmt.Errorf("%w: no signing key for %s", goidc.ErrKeyNotFound, alg)
}

// SigningAlgorithms returns the asymmetric algorithms for which a valid key
// is registered.
func (p *Provider) SigningAlgorithms() []jose.SignatureAlgorithm {
	var algs []jose.SignatureAlgorithm
	for _, alg := range AsymmetricSignatureAlgorithms {
		if _, err := p.SigningKey(alg); err == nil {
			algs = append(algs, alg)
		}
	}
	return algs
}

// PublicJWKS returns the public part of every registered key.
func (p *Provider) PublicJWKS() jose.JSONWebKeySet {
	jwks := jose.JSONWebKeySet{}
	for _, k := range p.keys.Keys() {
		jwks.Keys = append(jwks.Keys, k.JWK.Public())
	}
	return jwks
}

func (p *Provider) privateKey(keyID string, alg jose.SignatureAlgorithm) (any, error) {
	if keyID == "" {
		return nil, fmt.Errorf("%w: a key id is required for %s", goidc.ErrKeyNotFound, alg)
	}

	stored, ok := p.keys.Key(keyID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", goidc.ErrKeyNotFound, keyID)
	}

	if stored.Meta.IsExpired(timeutil.Timestamp(p.clock())) {
		return nil, fmt.Errorf("%w: key %s is expired", goidc.ErrKeyNotFound, keyID)
	}

	if stored.JWK.Algorithm != "" && stored.JWK.Algorithm != string(alg) {
		return nil, keyMismatch(keyID, alg)
	}

	return stored.JWK.Key, nil
}

func (p *Provider) publicKey(keyID string, jwks *jose.JSONWebKeySet, alg jose.SignatureAlgorithm) (any, error) {
	if jwks != nil {
		return publicKeyFromJWKS(jwks, keyID, alg)
	}

	stored, ok := p.keys.Key(keyID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", goidc.ErrKeyNotFound, keyID)
	}

	if stored.JWK.Algorithm != "" && stored.JWK.Algorithm != string(alg) {
		return nil, keyMismatch(keyID, alg)
	}

	return stored.JWK.Public().Key, nil
}

func publicKeyFromJWKS(jwks *jose.JSONWebKeySet, keyID string, alg jose.SignatureAlgorithm) (any, error) {
	candidates := jwks.Keys
	if keyID != "" {
		candidates = jwks.Key(keyID)
	}

	for _, k := range candidates {
		if k.Use != "" && k.Use != string(goidc.KeyUsageSignature) {
			continue
		}
		if k.Algorithm != "" && k.Algorithm != string(alg) {
			continue
		}
		pub := k.Public()
		if pub.Key != nil && keyFitsFamily(pub.Key, alg) {
			return pub.Key, nil
		}
	}

	return nil, fmt.Errorf("%w: no key in the JWKS matches kid %q and alg %s", goidc.ErrKeyNotFound, keyID, alg)
}

func keyFitsFamily(key any, alg jose.SignatureAlgorithm) bool {
	switch familyOf(alg) {
	case familyRSA, familyRSAPSS:
		_, ok := key.(*rsa.PublicKey)
		return ok
	case familyECDSA:
		k, ok := key.(*ecdsa.PublicKey)
		return ok && k.Curve.Params().Name == curveOf(alg).Params().Name
	case familyEdDSA:
		_, ok := key.(ed25519.PublicKey)
		return ok
	default:
		return false
	}
}

func keyMismatch(keyID string, alg jose.SignatureAlgorithm) error {
	return fmt.Errorf("%w: key %s cannot be used with %s", goidc.ErrUnsupportedAlgorithm, keyID, alg)
}

func hmacSum(input, secret []byte, alg jose.SignatureAlgorithm) []byte {
	mac := hmac.New(hashutil.HashAlg(alg).New, secret)
	mac.Write(input)
	return mac.Sum(nil)
}

func sum(h crypto.Hash, input []byte) []byte {
	hasher := h.New()
	hasher.Write(input)
	return hasher.Sum(nil)
}

// ecdsaSign returns the JWS encoding of the signature, i.e. the fixed size
// concatenation of r and s.
func ecdsaSign(key *ecdsa.PrivateKey, digest []byte) ([]byte, error) {
	r, s, err := ecdsa.Sign(rand.Reader, key, digest)
	if err != nil {
		return nil, err
	}

	size := (key.Curve.Params().BitSize + 7) / 8
	out := make([]byte, 2*size)
	r.FillBytes(out[:size])
	s.FillBytes(out[size:])
	return out, nil
}

func ecdsaVerify(key *ecdsa.PublicKey, digest, signature []byte) bool {
	size := (key.Curve.Params().BitSize + 7) / 8
	if len(signature) != 2*size {
		return false
	}

	r := new(big.Int).SetBytes(signature[:size])
	s := new(big.Int).SetBytes(signature[size:])
	return ecdsa.Verify(key, digest, r, s)
}
