package joseutil

import (
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"

	"github.com/go-jose/go-jose/v4"
	"github.com/luikyv/go-authority/internal/timeutil"
	"github.com/luikyv/go-authority/pkg/goidc"
)

// Encrypt encrypts payload as a compact JWE. Asymmetric key management
// algorithms use the recipient public key, symmetric ones derive the key
// from sharedSecret. cty is set to "JWT" by callers building nested tokens.
func (p *Provider) Encrypt(
	payload []byte,
	recipient *jose.JSONWebKey,
	sharedSecret []byte,
	keyAlg jose.KeyAlgorithm,
	enc jose.ContentEncryption,
	cty string,
) (
	string,
	error,
) {
	rcpt := jose.Recipient{Algorithm: keyAlg}
	if IsSymmetricKeyAlg(keyAlg) {
		key, err := symmetricKey(sharedSecret, keyAlg, enc)
		if err != nil {
			return "", err
		}
		rcpt.Key = key
	} else {
		if recipient == nil {
			return "", fmt.Errorf("%w: a recipient key is required for %s", goidc.ErrKeyNotFound, keyAlg)
		}
		pub := recipient.Public()
		if pub.Key == nil {
			return "", fmt.Errorf("%w: invalid recipient key", goidc.ErrKeyNotFound)
		}
		rcpt.Key = pub.Key
		rcpt.KeyID = recipient.KeyID
	}

	opts := &jose.EncrypterOptions{}
	if cty != "" {
		opts = opts.WithContentType(jose.ContentType(cty))
	}

	encrypter, err := jose.NewEncrypter(enc, rcpt, opts)
	if err != nil {
		return "", fmt.Errorf("%w: %w", goidc.ErrUnsupportedAlgorithm, err)
	}

	jwe, err := encrypter.Encrypt(payload)
	if err != nil {
		return "", fmt.Errorf("could not encrypt the payload: %w", err)
	}

	return jwe.CompactSerialize()
}

// Decrypt decrypts a compact JWE. Symmetric key management algorithms use
// sharedSecret, asymmetric ones the server encryption key referenced by the
// "kid" header, or every server encryption key for the algorithm when the
// header has no "kid".
func (p *Provider) Decrypt(jwe string, sharedSecret []byte) ([]byte, error) {
	obj, err := jose.ParseEncrypted(jwe, KeyAlgorithms, ContentEncryptionAlgorithms)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", goidc.ErrMalformedToken, err)
	}

	keyAlg := jose.KeyAlgorithm(obj.Header.Algorithm)
	if IsSymmetricKeyAlg(keyAlg) {
		enc, _ := obj.Header.ExtraHeaders["enc"].(string)
		key, err := symmetricKey(sharedSecret, keyAlg, jose.ContentEncryption(enc))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", goidc.ErrDecryption, err)
		}
		return decrypt(obj, key)
	}

	if obj.Header.KeyID != "" {
		stored, ok := p.keys.Key(obj.Header.KeyID)
		if !ok || stored.Meta.Use != goidc.KeyUsageEncryption {
			return nil, fmt.Errorf("%w: %w: %s", goidc.ErrDecryption, goidc.ErrKeyNotFound, obj.Header.KeyID)
		}
		return decrypt(obj, stored.JWK.Key)
	}

	now := timeutil.Timestamp(p.clock())
	for _, k := range p.keys.Keys() {
		if k.Meta.Use != goidc.KeyUsageEncryption || k.Meta.Algorithm != string(keyAlg) || k.Meta.IsExpired(now) {
			continue
		}
		if payload, err := decrypt(obj, k.JWK.Key); err == nil {
			return payload, nil
		}
	}
	return nil, fmt.Errorf("%w: no encryption key could decrypt the token", goidc.ErrDecryption)
}

// EncryptionKey returns the newest non expired encryption key for alg.
func (p *Provider) EncryptionKey(alg jose.KeyAlgorithm) (goidc.CryptoKey, error) {
	now := timeutil.Timestamp(p.clock())
	for _, k := range p.keys.Keys() {
		if k.Meta.Use == goidc.KeyUsageEncryption && k.Meta.Algorithm == string(alg) && !k.Meta.IsExpired(now) {
			return k.Meta, nil
		}
	}
	return goidc.CryptoKey{}, fmt.Errorf("%w: no encryption key for %s", goidc.ErrKeyNotFound, alg)
}

func decrypt(obj *jose.JSONWebEncryption, key any) ([]byte, error) {
	payload, err := obj.Decrypt(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", goidc.ErrDecryption, err)
	}
	return payload, nil
}

// symmetricKey derives the key used by "dir" and the AES key wrap
// algorithms from a client secret. The secret is hashed with SHA-256, or
// SHA-512 when more than 32 bytes are needed, and truncated to the key size.
func symmetricKey(secret []byte, keyAlg jose.KeyAlgorithm, enc jose.ContentEncryption) ([]byte, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: a shared secret is required for %s", goidc.ErrKeyNotFound, keyAlg)
	}

	size := symmetricKeySize(keyAlg, enc)
	if size == 0 {
		return nil, errors.Join(goidc.ErrUnsupportedAlgorithm, fmt.Errorf("cannot derive a key for %s and %s", keyAlg, enc))
	}

	if size <= sha256.Size {
		sum := sha256.Sum256(secret)
		return sum[:size], nil
	}
	sum := sha512.Sum512(secret)
	return sum[:size], nil
}
