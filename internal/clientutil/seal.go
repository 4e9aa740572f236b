package clientutil

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const sealInfo = "client-secret-seal-v1"

var errNoSealKey = errors.New("no key to seal client secrets was configured")

// Seal encrypts the secret of the client with a key derived from masterKey.
// The client id is bound as additional data so a sealed secret cannot be
// moved to another client.
func Seal(masterKey []byte, clientID, secret string) (string, error) {
	aead, err := sealAEAD(masterKey)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(secret)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("could not generate the nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(secret), []byte(clientID))
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open reverses [Seal].
func Open(masterKey []byte, clientID, sealed string) (string, error) {
	aead, err := sealAEAD(masterKey)
	if err != nil {
		return "", err
	}

	data, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("invalid sealed secret encoding: %w", err)
	}
	if len(data) < aead.NonceSize() {
		return "", errors.New("the sealed secret is too short")
	}

	nonce, ciphertext := data[:aead.NonceSize()], data[aead.NonceSize():]
	secret, err := aead.Open(nil, nonce, ciphertext, []byte(clientID))
	if err != nil {
		return "", fmt.Errorf("could not open the sealed secret: %w", err)
	}
	return string(secret), nil
}

func sealAEAD(masterKey []byte) (cipher.AEAD, error) {
	if len(masterKey) == 0 {
		return nil, errNoSealKey
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, nil, []byte(sealInfo)), key); err != nil {
		return nil, fmt.Errorf("could not derive the seal key: %w", err)
	}

	return chacha20poly1305.NewX(key)
}
