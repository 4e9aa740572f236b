package token

import (
	"errors"
	"slices"

	"github.com/luikyv/go-authority/internal/clientutil"
	"github.com/luikyv/go-authority/internal/jwtutil"
	"github.com/luikyv/go-authority/internal/oidc"
	"github.com/luikyv/go-authority/pkg/goidc"
)

// Introspect reports whether the token is active. Unknown, expired and
// revoked tokens are inactive, that's not an error.
func Introspect(
	ctx oidc.Context,
	creds clientutil.Credentials,
	token string,
	hint goidc.TokenTypeHint,
) (
	goidc.TokenInfo,
	error,
) {
	if _, err := clientutil.Authenticated(ctx, creds); err != nil {
		return goidc.TokenInfo{}, err
	}

	if token == "" {
		return goidc.TokenInfo{}, goidc.NewError(goidc.ErrorCodeInvalidRequest, "token is required")
	}

	return IntrospectToken(ctx, token, hint)
}

// IntrospectToken is [Introspect] for callers that already authenticated
// the client.
func IntrospectToken(ctx oidc.Context, token string, hint goidc.TokenTypeHint) (goidc.TokenInfo, error) {
	code, ok := handle(ctx, token)
	if !ok {
		return goidc.TokenInfo{IsActive: false}, nil
	}

	lookups := []func(oidc.Context, string) (goidc.TokenInfo, error){tokenInfo, rptInfo}
	if hint == goidc.TokenHintRPT {
		slices.Reverse(lookups)
	}

	for _, lookup := range lookups {
		info, err := lookup(ctx, code)
		if err == nil {
			return info, nil
		}
		if !errors.Is(err, goidc.ErrNotFound) {
			return goidc.TokenInfo{}, goidc.StoreError("could not load the token", err)
		}
	}

	return goidc.TokenInfo{IsActive: false}, nil
}

func tokenInfo(ctx oidc.Context, code string) (goidc.TokenInfo, error) {
	t, err := ctx.Token(code)
	if err != nil {
		return goidc.TokenInfo{}, err
	}

	if t.Kind == goidc.TokenKindAuthorizationCode || t.IsExpired(ctx.TimestampNow()) {
		return goidc.TokenInfo{IsActive: false}, nil
	}

	info := goidc.TokenInfo{
		IsActive:           true,
		Type:               goidc.TokenTypeHint(t.Kind),
		Scopes:             t.Scopes,
		ClientID:           t.ClientID,
		Username:           t.Subject,
		Subject:            subject(t.GrantInfo),
		TokenID:            t.Code,
		IssuedAtTimestamp:  t.CreatedAtTimestamp,
		ExpiresAtTimestamp: t.ExpiresAtTimestamp,
	}
	if t.Kind == goidc.TokenKindIDToken {
		info.Audience = []string{t.ClientID}
	}
	return info, nil
}

func rptInfo(ctx oidc.Context, code string) (goidc.TokenInfo, error) {
	rpt, err := ctx.UMARPT(code)
	if err != nil {
		return goidc.TokenInfo{}, err
	}

	now := ctx.TimestampNow()
	if rpt.IsExpired(now) {
		return goidc.TokenInfo{IsActive: false}, nil
	}

	var permissions []goidc.UMAPermission
	for _, p := range rpt.Permissions {
		if !goidc.IsExpired(p.ExpiresAtTimestamp, now) {
			permissions = append(permissions, p)
		}
	}

	return goidc.TokenInfo{
		IsActive:           true,
		Type:               goidc.TokenHintRPT,
		ClientID:           rpt.ClientID,
		TokenID:            rpt.Code,
		IssuedAtTimestamp:  rpt.CreatedAtTimestamp,
		ExpiresAtTimestamp: rpt.ExpiresAtTimestamp,
		Permissions:        permissions,
	}, nil
}

// handle returns the key the token is persisted under. JWTs issued by the
// server are persisted under their "jti". A JWT whose signature doesn't
// verify is never looked up.
func handle(ctx oidc.Context, token string) (string, bool) {
	if jwtutil.IsJWE(token) {
		// Encrypted ID tokens can only be read by the client.
		return "", false
	}

	if !jwtutil.IsJWS(token) {
		return token, true
	}

	claims, err := ctx.ParseSigned(token)
	if err != nil {
		return "", false
	}

	jti := claims.String(goidc.ClaimTokenID)
	return jti, jti != ""
}
