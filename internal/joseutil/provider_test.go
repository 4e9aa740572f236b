package joseutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/google/go-cmp/cmp"
	"github.com/luikyv/go-authority/internal/timeutil"
	"github.com/luikyv/go-authority/pkg/goidc"
)

var testSecret = []byte("a_secret_long_enough_for_every_hmac_variant_0123456789_abcdefghijkl")

func TestSignAndVerify(t *testing.T) {
	for _, alg := range SignatureAlgorithms {
		t.Run(string(alg), func(t *testing.T) {
			// Given.
			p := NewProvider(nil, nil)
			keyID := ""
			if familyOf(alg) != familyHMAC {
				key, err := p.GenerateKey(string(alg), 0)
				if err != nil {
					t.Fatalf("unexpected error generating the key: %v", err)
				}
				keyID = key.KeyID
			}
			input := []byte("eyJhbGciOiJub25lIn0.eyJzdWIiOiJyYW5kb21fc3ViIn0")

			// When.
			sig, err := p.Sign(input, keyID, testSecret, alg)

			// Then.
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			ok, err := p.VerifySignature(input, sig, keyID, nil, testSecret, alg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !ok {
				t.Fatal("the signature should be valid")
			}

			sig[len(sig)/2] ^= 0x01
			ok, err = p.VerifySignature(input, sig, keyID, nil, testSecret, alg)
			if err != nil {
				t.Fatalf("a tampered signature must not cause an error: %v", err)
			}
			if ok {
				t.Error("a tampered signature must not be valid")
			}
		})
	}
}

func TestVerifySignature_ExternalJWKS(t *testing.T) {
	// Given.
	signer := NewProvider(nil, nil)
	key, err := signer.GenerateKey(string(jose.ES384), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	input := []byte("header.claims")
	sig, err := signer.Sign(input, key.KeyID, nil, jose.ES384)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	jwks := signer.PublicJWKS()

	// The verifier doesn't hold the key.
	verifier := NewProvider(nil, nil)

	// When.
	ok, err := verifier.VerifySignature(input, sig, key.KeyID, &jwks, nil, jose.ES384)

	// Then.
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("the signature should be valid")
	}
}

func TestVerifySignature_ExternalJWKSWithoutMatchingKey(t *testing.T) {
	// Given.
	p := NewProvider(nil, nil)
	key, err := p.GenerateKey(string(jose.RS256), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	jwks := p.PublicJWKS()

	// When.
	_, err = p.VerifySignature([]byte("input"), []byte("sig"), key.KeyID, &jwks, nil, jose.ES256)

	// Then.
	if !errors.Is(err, goidc.ErrKeyNotFound) {
		t.Errorf("got %v, want %v", err, goidc.ErrKeyNotFound)
	}
}

func TestSign_KeyNotFound(t *testing.T) {
	testCases := []struct {
		name   string
		keyID  string
		secret []byte
		alg    jose.SignatureAlgorithm
	}{
		{"unknown key id", "unknown", nil, jose.RS256},
		{"missing key id", "", nil, jose.PS256},
		{"missing secret", "", nil, jose.HS256},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			// Given.
			p := NewProvider(nil, nil)

			// When.
			_, err := p.Sign([]byte("input"), testCase.keyID, testCase.secret, testCase.alg)

			// Then.
			if !errors.Is(err, goidc.ErrKeyNotFound) {
				t.Errorf("got %v, want %v", err, goidc.ErrKeyNotFound)
			}
		})
	}
}

func TestSign_UnsupportedAlgorithm(t *testing.T) {
	// Given.
	p := NewProvider(nil, nil)
	key, err := p.GenerateKey(string(jose.ES256), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	testCases := []struct {
		name string
		alg  jose.SignatureAlgorithm
	}{
		{"none", "none"},
		{"unknown", "XX256"},
		{"family mismatch", jose.RS256},
		{"curve mismatch", jose.ES384},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			// When.
			_, err := p.Sign([]byte("input"), key.KeyID, nil, testCase.alg)

			// Then.
			if !errors.Is(err, goidc.ErrUnsupportedAlgorithm) {
				t.Errorf("got %v, want %v", err, goidc.ErrUnsupportedAlgorithm)
			}
		})
	}
}

func TestSign_ExpiredKey(t *testing.T) {
	// Given.
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewProvider(nil, func() time.Time { return now })
	key, err := p.GenerateKey(string(jose.EdDSA), timeutil.Timestamp(now)+60)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// When.
	now = now.Add(61 * time.Second)
	_, err = p.Sign([]byte("input"), key.KeyID, nil, jose.EdDSA)

	// Then.
	if !errors.Is(err, goidc.ErrKeyNotFound) {
		t.Errorf("got %v, want %v", err, goidc.ErrKeyNotFound)
	}
}

func TestGenerateKey(t *testing.T) {
	testCases := []struct {
		alg     string
		wantUse goidc.KeyUsage
	}{
		{string(jose.RS256), goidc.KeyUsageSignature},
		{string(jose.PS512), goidc.KeyUsageSignature},
		{string(jose.ES512), goidc.KeyUsageSignature},
		{string(jose.EdDSA), goidc.KeyUsageSignature},
		{string(jose.RSA_OAEP_256), goidc.KeyUsageEncryption},
		{string(jose.ECDH_ES_A128KW), goidc.KeyUsageEncryption},
	}

	for _, testCase := range testCases {
		t.Run(testCase.alg, func(t *testing.T) {
			// Given.
			now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			p := NewProvider(nil, func() time.Time { return now })

			// When.
			key, err := p.GenerateKey(testCase.alg, 100)

			// Then.
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if key.KeyID == "" {
				t.Error("the key id must be set")
			}

			want := goidc.CryptoKey{
				KeyID:              key.KeyID,
				Algorithm:          testCase.alg,
				Use:                testCase.wantUse,
				CreatedAtTimestamp: timeutil.Timestamp(now),
				ExpiresAtTimestamp: 100,
			}
			if diff := cmp.Diff(key, want); diff != "" {
				t.Error(diff)
			}

			jwks := p.PublicJWKS()
			if len(jwks.Keys) != 1 || !jwks.Keys[0].IsPublic() {
				t.Errorf("the jwks must contain only the public key, got %v", jwks)
			}
		})
	}
}

func TestGenerateKey_HMACIsNotSupported(t *testing.T) {
	// Given.
	p := NewProvider(nil, nil)

	// When.
	_, err := p.GenerateKey(string(jose.HS256), 0)

	// Then.
	if !errors.Is(err, goidc.ErrUnsupportedAlgorithm) {
		t.Errorf("got %v, want %v", err, goidc.ErrUnsupportedAlgorithm)
	}
}

func TestDeleteKey(t *testing.T) {
	// Given.
	p := NewProvider(nil, nil)
	key, err := p.GenerateKey(string(jose.RS256), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// When.
	deleted := p.DeleteKey(key.KeyID)

	// Then.
	if !deleted {
		t.Error("the key should have been deleted")
	}

	if p.DeleteKey(key.KeyID) {
		t.Error("deleting twice should report false")
	}

	if _, err := p.Sign([]byte("input"), key.KeyID, nil, jose.RS256); !errors.Is(err, goidc.ErrKeyNotFound) {
		t.Errorf("got %v, want %v", err, goidc.ErrKeyNotFound)
	}
}

func TestSigningKey_ReturnsNewestValidKey(t *testing.T) {
	// Given.
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewProvider(nil, func() time.Time { return now })
	if _, err := p.GenerateKey(string(jose.RS256), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	now = now.Add(time.Minute)
	newest, err := p.GenerateKey(string(jose.RS256), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// When.
	key, err := p.SigningKey(jose.RS256)

	// Then.
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if key.KeyID != newest.KeyID {
		t.Errorf("KeyID = %s, want %s", key.KeyID, newest.KeyID)
	}

	if _, err := p.SigningKey(jose.ES256); !errors.Is(err, goidc.ErrKeyNotFound) {
		t.Errorf("got %v, want %v", err, goidc.ErrKeyNotFound)
	}
}

func TestRotateSigningKey(t *testing.T) {
	// Given.
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewProvider(nil, func() time.Time { return now })
	first, err := p.RotateSigningKey(jose.PS256, 3600, 600)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// When.
	same, err := p.RotateSigningKey(jose.PS256, 3600, 600)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	now = now.Add(3001 * time.Second)
	rotated, err := p.RotateSigningKey(jose.PS256, 3600, 600)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Then.
	if same.KeyID != first.KeyID {
		t.Error("the key should not be rotated while it is far from expiring")
	}

	if rotated.KeyID == first.KeyID {
		t.Error("the key should be rotated when close to expiring")
	}

	if len(p.Keys()) != 2 {
		t.Errorf("the previous key must be kept until it expires, got %d keys", len(p.Keys()))
	}
}

func TestKeyIndex(t *testing.T) {
	// Given.
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewProvider(nil, func() time.Time { return now })
	expired, err := p.GenerateKey(string(jose.ES256), timeutil.Timestamp(now)-10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.GenerateKey(string(jose.ES256), timeutil.Timestamp(now)+10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.GenerateKey(string(jose.ES256), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	idx := p.KeyIndex()

	// When.
	entries, err := idx.Expired(context.Background(), timeutil.Timestamp(now), 0, 10)

	// Then.
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []goidc.ExpiredEntry{{ID: expired.KeyID, ExpiresAtTimestamp: expired.ExpiresAtTimestamp, Deletable: true}}
	if diff := cmp.Diff(entries, want); diff != "" {
		t.Error(diff)
	}

	if deleted, err := idx.DeleteExpired(context.Background(), expired.KeyID, timeutil.Timestamp(now)); err != nil || !deleted {
		t.Fatalf("the expired key should be deleted: %t, %v", deleted, err)
	}
	if err := idx.Delete(context.Background(), expired.KeyID); err != nil {
		t.Fatalf("deleting a missing key must not fail: %v", err)
	}
	if len(p.Keys()) != 2 {
		t.Errorf("got %d keys, want 2", len(p.Keys()))
	}
}

func TestKeyIndex_DeleteExpiredKeepsValidKeys(t *testing.T) {
	// Given.
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewProvider(nil, func() time.Time { return now })
	valid, err := p.GenerateKey(string(jose.ES256), timeutil.Timestamp(now)+10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	permanent, err := p.GenerateKey(string(jose.ES256), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	idx := p.KeyIndex()

	// When.
	for _, id := range []string{valid.KeyID, permanent.KeyID} {
		deleted, err := idx.DeleteExpired(context.Background(), id, timeutil.Timestamp(now))

		// Then.
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if deleted {
			t.Errorf("the key %s should be kept", id)
		}
	}

	if len(p.Keys()) != 2 {
		t.Errorf("got %d keys, want 2", len(p.Keys()))
	}
}
