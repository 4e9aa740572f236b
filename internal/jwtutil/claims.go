package jwtutil

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/luikyv/go-authority/pkg/goidc"
)

// Claims is the payload of a token.
type Claims map[string]any

func (c Claims) String(name string) string {
	s, _ := c[name].(string)
	return s
}

// Int returns a numeric claim. JSON numbers are decoded as float64, so both
// representations are accepted.
func (c Claims) Int(name string) int {
	switch v := c[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return 0
	}
}

// Audience returns the "aud" claim which can be either a string or an array
// of strings.
func (c Claims) Audience() []string {
	switch aud := c[goidc.ClaimAudience].(type) {
	case string:
		return []string{aud}
	case []string:
		return aud
	case []any:
		var auds []string
		for _, a := range aud {
			if s, ok := a.(string); ok {
				auds = append(auds, s)
			}
		}
		return auds
	default:
		return nil
	}
}

// Expected holds the values the registered claims are checked against.
// Empty fields are not checked.
type Expected struct {
	Issuer   string
	Subject  string
	Audience string
	Now      time.Time
	Leeway   time.Duration
}

// Validate checks "iss", "sub", "aud", "exp", "nbf" and "iat".
func Validate(claims Claims, expected Expected) error {
	raw, err := json.Marshal(claims)
	if err != nil {
		return fmt.Errorf("%w: %w", goidc.ErrMalformedToken, err)
	}

	var registered jwt.Claims
	if err := json.Unmarshal(raw, &registered); err != nil {
		return fmt.Errorf("%w: %w", goidc.ErrMalformedToken, err)
	}

	e := jwt.Expected{
		Issuer:  expected.Issuer,
		Subject: expected.Subject,
		Time:    expected.Now,
	}
	if expected.Audience != "" {
		e.AnyAudience = jwt.Audience{expected.Audience}
	}

	return registered.ValidateWithLeeway(e, expected.Leeway)
}
