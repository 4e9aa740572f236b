package goidc

import (
	"context"
	"encoding/json"
)

// TokenManager contains all the logic needed to manage the records backing
// authorization codes, access tokens, refresh tokens and ID tokens.
type TokenManager interface {
	Save(ctx context.Context, token *Token) error
	Token(ctx context.Context, code string) (*Token, error)
	// Consume atomically loads and removes the token. Only one of any number
	// of concurrent callers receives the token, the others get [ErrNotFound].
	Consume(ctx context.Context, code string) (*Token, error)
	// DeleteByLinkedCode removes all tokens linked to code, e.g. the access
	// tokens issued with a refresh token.
	DeleteByLinkedCode(ctx context.Context, code string) error
	ExpirationIndex
}

type TokenKind string

const (
	TokenKindAuthorizationCode TokenKind = "authorization_code"
	TokenKindAccessToken       TokenKind = "access_token"
	TokenKindRefreshToken      TokenKind = "refresh_token"
	TokenKindIDToken           TokenKind = "id_token"
)

// GrantInfo is the authorization transaction a token was minted for.
type GrantInfo struct {
	GrantID   string    `json:"grant_id" bson:"grant_id"`
	GrantType GrantType `json:"grant_type" bson:"grant_type"`
	ClientID  string    `json:"client_id" bson:"client_id"`
	// Subject is empty for the client credentials grant.
	Subject             string              `json:"sub,omitempty" bson:"sub,omitempty"`
	Scopes              string              `json:"scope,omitempty" bson:"scope,omitempty"`
	Nonce               string              `json:"nonce,omitempty" bson:"nonce,omitempty"`
	RedirectURI         string              `json:"redirect_uri,omitempty" bson:"redirect_uri,omitempty"`
	CodeChallenge       string              `json:"code_challenge,omitempty" bson:"code_challenge,omitempty"`
	CodeChallengeMethod CodeChallengeMethod `json:"code_challenge_method,omitempty" bson:"code_challenge_method,omitempty"`
	SessionID           string              `json:"sid,omitempty" bson:"sid,omitempty"`
	AuthTimestamp       int                 `json:"auth_time,omitempty" bson:"auth_time,omitempty"`
	// AdditionalIDTokenClaims are copied as is into ID tokens minted for
	// the grant.
	AdditionalIDTokenClaims map[string]any `json:"additional_id_token_claims,omitempty" bson:"additional_id_token_claims,omitempty"`
}

type Token struct {
	// Code is the opaque handle. For JWT access tokens it is the "jti".
	Code               string      `json:"code" bson:"_id"`
	Kind               TokenKind   `json:"kind" bson:"kind"`
	Format             TokenFormat `json:"format,omitempty" bson:"format,omitempty"`
	CreatedAtTimestamp int         `json:"created_at" bson:"created_at"`
	ExpiresAtTimestamp int         `json:"expires_at" bson:"expires_at"`
	Deletable          bool        `json:"deletable" bson:"deletable"`
	// LinkedCode points to the token this one derives from, e.g. the refresh
	// token an access token was issued with.
	LinkedCode string `json:"linked_code,omitempty" bson:"linked_code,omitempty"`
	GrantInfo  `bson:"inline"`
}

func (t *Token) IsExpired(now int) bool {
	return IsExpired(t.ExpiresAtTimestamp, now)
}

// LifetimeSecs returns the configured lifetime the token was created with.
func (t *Token) LifetimeSecs() int {
	return t.ExpiresAtTimestamp - t.CreatedAtTimestamp
}

// TokenResponse is the token endpoint success response.
type TokenResponse struct {
	AccessToken  string    `json:"access_token"`
	TokenType    TokenType `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	Scopes       string    `json:"scope,omitempty"`
	// PCT is only set for the UMA ticket grant.
	PCT      string `json:"pct,omitempty"`
	Upgraded bool   `json:"upgraded,omitempty"`
}

// TokenInfo is the result of introspecting a token.
type TokenInfo struct {
	IsActive           bool          `json:"active"`
	Type               TokenTypeHint `json:"token_type,omitempty"`
	Scopes             string        `json:"scope,omitempty"`
	ClientID           string        `json:"client_id,omitempty"`
	Username           string        `json:"username,omitempty"`
	Subject            string        `json:"sub,omitempty"`
	Audience           []string      `json:"aud,omitempty"`
	TokenID            string        `json:"jti,omitempty"`
	IssuedAtTimestamp  int           `json:"iat,omitempty"`
	ExpiresAtTimestamp int           `json:"exp,omitempty"`
	// Permissions is only set for RPTs.
	Permissions []UMAPermission `json:"permissions,omitempty"`
}

// MarshalJSON renders inactive tokens as {"active":false} so no other claim
// leaks for unknown or expired tokens.
func (i TokenInfo) MarshalJSON() ([]byte, error) {
	if !i.IsActive {
		return []byte(`{"active":false}`), nil
	}
	type tokenInfo TokenInfo
	return json.Marshal(tokenInfo(i))
}
