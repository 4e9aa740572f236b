package discovery

import (
	"github.com/go-jose/go-jose/v4"
	"github.com/luikyv/go-authority/pkg/goidc"
)

// Document is the authorization server metadata published at the well known
// endpoint.
type Document struct {
	Issuer                                   string                        `json:"issuer"`
	AuthorizationEndpoint                    string                        `json:"authorization_endpoint,omitempty"`
	TokenEndpoint                            string                        `json:"token_endpoint"`
	JWKSEndpoint                             string                        `json:"jwks_uri"`
	IntrospectionEndpoint                    string                        `json:"introspection_endpoint,omitempty"`
	TokenRevocationEndpoint                  string                        `json:"revocation_endpoint,omitempty"`
	DeviceAuthorizationEndpoint              string                        `json:"device_authorization_endpoint,omitempty"`
	CIBAEndpoint                             string                        `json:"backchannel_authentication_endpoint,omitempty"`
	CIBATokenDeliveryModes                   []string                      `json:"backchannel_token_delivery_modes_supported,omitempty"`
	UMAResourceEndpoint                      string                        `json:"resource_registration_endpoint,omitempty"`
	UMAPermissionEndpoint                    string                        `json:"permission_endpoint,omitempty"`
	UMAClaimsInteractionEndpoint             string                        `json:"claims_interaction_endpoint,omitempty"`
	ResponseTypes                            []goidc.ResponseType          `json:"response_types_supported"`
	GrantTypes                               []goidc.GrantType             `json:"grant_types_supported"`
	Scopes                                   []string                      `json:"scopes_supported"`
	SubjectIdentifierTypes                   []goidc.SubjectIdentifierType `json:"subject_types_supported"`
	IDTokenSignatureAlgorithms               []jose.SignatureAlgorithm     `json:"id_token_signing_alg_values_supported"`
	IDTokenKeyEncryptionAlgorithms           []jose.KeyAlgorithm           `json:"id_token_encryption_alg_values_supported,omitempty"`
	IDTokenContentEncryptionAlgorithms       []jose.ContentEncryption      `json:"id_token_encryption_enc_values_supported,omitempty"`
	ClientAuthnMethods                       []goidc.ClientAuthnType       `json:"token_endpoint_auth_methods_supported"`
	TokenEndpointClientSigningAlgorithms     []jose.SignatureAlgorithm     `json:"token_endpoint_auth_signing_alg_values_supported,omitempty"`
	IntrospectionEndpointClientAuthnMethods  []goidc.ClientAuthnType       `json:"introspection_endpoint_auth_methods_supported,omitempty"`
	TokenRevocationEndpointClientAuthnMethod []goidc.ClientAuthnType       `json:"revocation_endpoint_auth_methods_supported,omitempty"`
	CodeChallengeMethods                     []goidc.CodeChallengeMethod   `json:"code_challenge_methods_supported,omitempty"`
}
