package goidc

import (
	"context"
	"encoding/json"
	"slices"
	"strings"

	"github.com/go-jose/go-jose/v4"
)

// ClientManager contains all the logic needed to manage clients.
type ClientManager interface {
	Save(ctx context.Context, client *Client) error
	Client(ctx context.Context, id string) (*Client, error)
	ExpirationIndex
}

type Client struct {
	ID string `json:"client_id" bson:"_id"`
	// SealedSecret is the client secret encrypted at rest. The plain secret
	// is needed to verify HMAC signatures, so it cannot be hashed.
	SealedSecret             string `json:"sealed_secret,omitempty" bson:"sealed_secret,omitempty"`
	SecretExpiresAtTimestamp int    `json:"client_secret_expires_at,omitempty" bson:"client_secret_expires_at,omitempty"`
	CreatedAtTimestamp       int    `json:"client_id_issued_at" bson:"created_at"`
	ExpiresAtTimestamp       int    `json:"expires_at,omitempty" bson:"expires_at"`
	Deletable                bool   `json:"deletable" bson:"deletable"`
	ClientMetaInfo           `bson:"inline"`
}

type ClientMetaInfo struct {
	Name          string         `json:"client_name,omitempty" bson:"client_name,omitempty"`
	RedirectURIs  []string       `json:"redirect_uris,omitempty" bson:"redirect_uris,omitempty"`
	GrantTypes    []GrantType    `json:"grant_types" bson:"grant_types"`
	ResponseTypes []ResponseType `json:"response_types,omitempty" bson:"response_types,omitempty"`
	// Scopes contains the space separated scopes the client may request.
	Scopes string `json:"scope,omitempty" bson:"scope,omitempty"`
	// PublicJWKS is the raw JSON of the client's JWK Set when passed by value.
	PublicJWKS    json.RawMessage `json:"jwks,omitempty" bson:"jwks,omitempty"`
	PublicJWKSURI string          `json:"jwks_uri,omitempty" bson:"jwks_uri,omitempty"`

	AuthnMethod ClientAuthnType `json:"token_endpoint_auth_method" bson:"token_endpoint_auth_method"`
	// AuthnSigAlg restricts the algorithm of client assertions.
	AuthnSigAlg jose.SignatureAlgorithm `json:"token_endpoint_auth_signing_alg,omitempty" bson:"token_endpoint_auth_signing_alg,omitempty"`

	IDTokenSigAlg        jose.SignatureAlgorithm `json:"id_token_signed_response_alg,omitempty" bson:"id_token_signed_response_alg,omitempty"`
	IDTokenKeyEncAlg     jose.KeyAlgorithm       `json:"id_token_encrypted_response_alg,omitempty" bson:"id_token_encrypted_response_alg,omitempty"`
	IDTokenContentEncAlg jose.ContentEncryption  `json:"id_token_encrypted_response_enc,omitempty" bson:"id_token_encrypted_response_enc,omitempty"`
	// AccessTokenFormat overrides the server default format for access tokens
	// issued to this client.
	AccessTokenFormat TokenFormat `json:"access_token_format,omitempty" bson:"access_token_format,omitempty"`
}

func (c *Client) IsGrantTypeAllowed(gt GrantType) bool {
	return slices.Contains(c.GrantTypes, gt)
}

func (c *Client) IsResponseTypeAllowed(rt ResponseType) bool {
	return slices.Contains(c.ResponseTypes, rt)
}

func (c *Client) IsRedirectURIAllowed(uri string) bool {
	return slices.Contains(c.RedirectURIs, uri)
}

// AreScopesAllowed reports whether every space separated scope in requested
// was registered for the client.
func (c *Client) AreScopesAllowed(requested string) bool {
	allowed := strings.Fields(c.Scopes)
	for _, s := range strings.Fields(requested) {
		if !slices.Contains(allowed, s) {
			return false
		}
	}
	return true
}

func (c *Client) IsExpired(now int) bool {
	return IsExpired(c.ExpiresAtTimestamp, now)
}

// IsSecretExpired reports whether the client secret can no longer be used.
func (c *Client) IsSecretExpired(now int) bool {
	return IsExpired(c.SecretExpiresAtTimestamp, now)
}

// IsPublic reports whether the client cannot keep a secret.
func (c *Client) IsPublic() bool {
	return c.AuthnMethod == ClientAuthnNone
}
