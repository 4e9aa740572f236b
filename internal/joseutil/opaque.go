package joseutil

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-jose/go-jose/v4"
	"github.com/luikyv/go-authority/internal/timeutil"
	"github.com/luikyv/go-authority/pkg/goidc"
)

// Signer returns a go-jose signer backed by the provider, so JWS and JWT
// builders never touch the private key.
func (p *Provider) Signer(keyID string, sharedSecret []byte, alg jose.SignatureAlgorithm) jose.OpaqueSigner {
	return opaqueSigner{
		provider: p,
		keyID:    keyID,
		secret:   sharedSecret,
		alg:      alg,
	}
}

// Verifier returns a go-jose verifier backed by the provider. When jwks is
// not nil, public keys are resolved from it instead of the key store.
// A Verifier must not be shared between verifications.
func (p *Provider) Verifier(keyID string, jwks *jose.JSONWebKeySet, sharedSecret []byte) *Verifier {
	return &Verifier{
		provider: p,
		keyID:    keyID,
		jwks:     jwks,
		secret:   sharedSecret,
	}
}

type opaqueSigner struct {
	provider *Provider
	keyID    string
	secret   []byte
	alg      jose.SignatureAlgorithm
}

func (s opaqueSigner) Public() *jose.JSONWebKey {
	if s.keyID == "" {
		return nil
	}
	return &jose.JSONWebKey{KeyID: s.keyID, Algorithm: string(s.alg)}
}

func (s opaqueSigner) Algs() []jose.SignatureAlgorithm {
	return []jose.SignatureAlgorithm{s.alg}
}

func (s opaqueSigner) SignPayload(payload []byte, alg jose.SignatureAlgorithm) ([]byte, error) {
	return s.provider.Sign(payload, s.keyID, s.secret, alg)
}

// Verifier implements [jose.OpaqueVerifier]. go-jose reports every
// verification failure as [jose.ErrCryptoFailure], so the precise cause is
// kept and exposed by Err.
type Verifier struct {
	provider *Provider
	keyID    string
	jwks     *jose.JSONWebKeySet
	secret   []byte
	err      error
}

func (v *Verifier) VerifyPayload(payload []byte, signature []byte, alg jose.SignatureAlgorithm) error {
	ok, err := v.provider.VerifySignature(payload, signature, v.keyID, v.jwks, v.secret, alg)
	if err != nil {
		v.err = err
		return err
	}
	if !ok {
		v.err = goidc.ErrInvalidSignature
		return v.err
	}
	v.err = nil
	return nil
}

// Err returns the cause of the last failed verification.
func (v *Verifier) Err() error {
	return v.err
}

// KeyIndex exposes the key store to the expiration sweeper. Keys are always
// deletable since their expiration already outlives the tokens they signed.
func (p *Provider) KeyIndex() goidc.ExpirationIndex {
	return keyIndex{p}
}

type keyIndex struct {
	provider *Provider
}

func (i keyIndex) Expired(ctx context.Context, before, offset, limit int) ([]goidc.ExpiredEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries := make([]goidc.ExpiredEntry, 0)
	for _, k := range i.provider.keys.Keys() {
		if k.Meta.ExpiresAtTimestamp == 0 || k.Meta.ExpiresAtTimestamp >= before {
			continue
		}
		entries = append(entries, goidc.ExpiredEntry{
			ID:                 k.Meta.KeyID,
			ExpiresAtTimestamp: k.Meta.ExpiresAtTimestamp,
			Deletable:          true,
		})
	}

	slices.SortFunc(entries, func(a, b goidc.ExpiredEntry) int {
		return cmp.Or(cmp.Compare(a.ExpiresAtTimestamp, b.ExpiresAtTimestamp), strings.Compare(a.ID, b.ID))
	})
	entries = entries[min(offset, len(entries)):]
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (i keyIndex) Delete(_ context.Context, id string) error {
	i.provider.DeleteKey(id)
	return nil
}

// DeleteExpired leaves keys that were imported again with a later
// expiration since they were listed.
func (i keyIndex) DeleteExpired(_ context.Context, id string, before int) (bool, error) {
	return i.provider.keys.RemoveIf(id, func(k StoredKey) bool {
		return k.Meta.ExpiresAtTimestamp != 0 && k.Meta.ExpiresAtTimestamp < before
	}), nil
}

// RotateSigningKey generates a new key for alg when the newest key for it
// expires within minRemainingSecs. It returns the key that should be used
// for signing from now on.
func (p *Provider) RotateSigningKey(alg jose.SignatureAlgorithm, lifetimeSecs, minRemainingSecs int) (goidc.CryptoKey, error) {
	now := timeutil.Timestamp(p.clock())

	key, err := p.SigningKey(alg)
	if err == nil && (key.ExpiresAtTimestamp == 0 || key.ExpiresAtTimestamp-now > minRemainingSecs) {
		return key, nil
	}
	if err != nil && !errors.Is(err, goidc.ErrKeyNotFound) {
		return goidc.CryptoKey{}, err
	}

	key, err = p.GenerateKey(string(alg), now+lifetimeSecs)
	if err != nil {
		return goidc.CryptoKey{}, fmt.Errorf("could not rotate the %s signing key: %w", alg, err)
	}
	return key, nil
}
