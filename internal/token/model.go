package token

import (
	"github.com/luikyv/go-authority/internal/clientutil"
	"github.com/luikyv/go-authority/pkg/goidc"
)

// Request is a token request. Only the fields of the grant type are read.
type Request struct {
	GrantType   goidc.GrantType
	Credentials clientutil.Credentials
	Scopes      string

	AuthorizationCode string
	RedirectURI       string
	CodeVerifier      string

	RefreshToken string
	DeviceCode   string
	AuthReqID    string
}

// AuthorizationRequest is an authorization request the user already
// consented to. The subject comes from the session when SessionID is set.
type AuthorizationRequest struct {
	ClientID            string
	ResponseType        goidc.ResponseType
	RedirectURI         string
	Scopes              string
	State               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod goidc.CodeChallengeMethod

	SessionID     string
	Subject       string
	AuthTimestamp int
	// AdditionalIDTokenClaims are copied as is into the ID tokens minted
	// for the grant.
	AdditionalIDTokenClaims map[string]any
}

// AuthorizationResponse carries the artifacts the response type asked for.
type AuthorizationResponse struct {
	Code        string          `json:"code,omitempty"`
	AccessToken string          `json:"access_token,omitempty"`
	TokenType   goidc.TokenType `json:"token_type,omitempty"`
	ExpiresIn   int             `json:"expires_in,omitempty"`
	IDToken     string          `json:"id_token,omitempty"`
	Scopes      string          `json:"scope,omitempty"`
	State       string          `json:"state,omitempty"`
}

// CIBARequest is a backchannel authentication request.
type CIBARequest struct {
	Credentials    clientutil.Credentials
	Scopes         string
	LoginHint      string
	BindingMessage string
}

// tokenOptions tells what must be minted for a grant.
type tokenOptions struct {
	refreshToken bool
	idToken      bool
	// The hashes of the artifacts below are added to the ID token.
	code        string
	accessToken string
	state       string
}
