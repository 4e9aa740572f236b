package joseutil

import (
	"errors"
	"testing"

	"github.com/go-jose/go-jose/v4"
	"github.com/luikyv/go-authority/pkg/goidc"
)

func TestEncryptAndDecrypt_ServerKey(t *testing.T) {
	testCases := []struct {
		keyAlg jose.KeyAlgorithm
		enc    jose.ContentEncryption
	}{
		{jose.RSA_OAEP, jose.A128GCM},
		{jose.RSA_OAEP_256, jose.A256GCM},
		{jose.ECDH_ES, jose.A128CBC_HS256},
		{jose.ECDH_ES_A256KW, jose.A256CBC_HS512},
	}

	for _, testCase := range testCases {
		t.Run(string(testCase.keyAlg)+"/"+string(testCase.enc), func(t *testing.T) {
			// Given.
			p := NewProvider(nil, nil)
			key, err := p.GenerateKey(string(testCase.keyAlg), 0)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			jwks := p.PublicJWKS()
			recipient := jwks.Key(key.KeyID)[0]

			// When.
			jwe, err := p.Encrypt([]byte("random_payload"), &recipient, nil, testCase.keyAlg, testCase.enc, "")

			// Then.
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			payload, err := p.Decrypt(jwe, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if string(payload) != "random_payload" {
				t.Errorf("payload = %s, want random_payload", payload)
			}
		})
	}
}

func TestEncryptAndDecrypt_SharedSecret(t *testing.T) {
	testCases := []struct {
		keyAlg jose.KeyAlgorithm
		enc    jose.ContentEncryption
	}{
		{jose.DIRECT, jose.A128GCM},
		{jose.DIRECT, jose.A256CBC_HS512},
		{jose.A128KW, jose.A192GCM},
		{jose.A256KW, jose.A128CBC_HS256},
	}

	for _, testCase := range testCases {
		t.Run(string(testCase.keyAlg)+"/"+string(testCase.enc), func(t *testing.T) {
			// Given.
			p := NewProvider(nil, nil)

			// When.
			jwe, err := p.Encrypt([]byte("random_payload"), nil, testSecret, testCase.keyAlg, testCase.enc, "JWT")

			// Then.
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			payload, err := p.Decrypt(jwe, testSecret)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if string(payload) != "random_payload" {
				t.Errorf("payload = %s, want random_payload", payload)
			}

			if _, err := p.Decrypt(jwe, []byte("another_secret")); !errors.Is(err, goidc.ErrDecryption) {
				t.Errorf("got %v, want %v", err, goidc.ErrDecryption)
			}
		})
	}
}

func TestDecrypt_UnknownKey(t *testing.T) {
	// Given.
	sender := NewProvider(nil, nil)
	key, err := sender.GenerateKey(string(jose.RSA_OAEP_256), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	jwks := sender.PublicJWKS()
	recipient := jwks.Key(key.KeyID)[0]
	jwe, err := sender.Encrypt([]byte("random_payload"), &recipient, nil, jose.RSA_OAEP_256, jose.A128GCM, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// When.
	_, err = NewProvider(nil, nil).Decrypt(jwe, nil)

	// Then.
	if !errors.Is(err, goidc.ErrDecryption) {
		t.Errorf("got %v, want %v", err, goidc.ErrDecryption)
	}
}

func TestDecrypt_Malformed(t *testing.T) {
	// Given.
	p := NewProvider(nil, nil)

	// When.
	_, err := p.Decrypt("not.a.jwe", nil)

	// Then.
	if !errors.Is(err, goidc.ErrMalformedToken) {
		t.Errorf("got %v, want %v", err, goidc.ErrMalformedToken)
	}
}

func TestEncrypt_MissingRecipient(t *testing.T) {
	// Given.
	p := NewProvider(nil, nil)

	// When.
	_, err := p.Encrypt([]byte("payload"), nil, nil, jose.RSA_OAEP, jose.A128GCM, "")

	// Then.
	if !errors.Is(err, goidc.ErrKeyNotFound) {
		t.Errorf("got %v, want %v", err, goidc.ErrKeyNotFound)
	}
}
