package goidc

// CryptoKey describes a key held by the crypto provider. The key material
// never leaves the provider.
type CryptoKey struct {
	KeyID              string   `json:"kid"`
	Algorithm          string   `json:"alg"`
	Use                KeyUsage `json:"use"`
	CreatedAtTimestamp int      `json:"created_at"`
	// ExpiresAtTimestamp is zero for keys that never expire.
	ExpiresAtTimestamp int `json:"exp,omitempty"`
}

func (k CryptoKey) IsExpired(now int) bool {
	return IsExpired(k.ExpiresAtTimestamp, now)
}
