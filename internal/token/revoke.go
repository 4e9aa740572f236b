package token

import (
	"errors"
	"log/slog"

	"github.com/luikyv/go-authority/internal/clientutil"
	"github.com/luikyv/go-authority/internal/oidc"
	"github.com/luikyv/go-authority/pkg/goidc"
)

// Revoke removes the token immediately. Revoking a token that doesn't exist
// succeeds. When cascading is enabled, revoking a refresh token also
// revokes every token issued for the same grant.
func Revoke(
	ctx oidc.Context,
	creds clientutil.Credentials,
	token string,
	hint goidc.TokenTypeHint,
) error {
	c, err := clientutil.Authenticated(ctx, creds)
	if err != nil {
		return err
	}

	if token == "" {
		return goidc.NewError(goidc.ErrorCodeInvalidRequest, "token is required")
	}

	code, ok := handle(ctx, token)
	if !ok {
		return nil
	}

	if hint == goidc.TokenHintRPT {
		if err := revokeRPT(ctx, c, code); !errors.Is(err, goidc.ErrNotFound) {
			return err
		}
		return ignoreNotFound(revokeToken(ctx, c, code))
	}

	if err := revokeToken(ctx, c, code); !errors.Is(err, goidc.ErrNotFound) {
		return err
	}
	return ignoreNotFound(revokeRPT(ctx, c, code))
}

func revokeToken(ctx oidc.Context, c *goidc.Client, code string) error {
	t, err := ctx.Token(code)
	if err != nil {
		if errors.Is(err, goidc.ErrNotFound) {
			return err
		}
		return goidc.StoreError("could not load the token", err)
	}

	if t.ClientID != c.ID {
		return goidc.NewError(goidc.ErrorCodeUnauthorizedClient, "the token was not issued to the client")
	}

	if err := ctx.DeleteToken(t.Code); err != nil {
		return goidc.StoreError("could not revoke the token", err)
	}
	ctx.Metrics.TokenRevoked(string(t.Kind))

	if t.Kind == goidc.TokenKindRefreshToken && ctx.RefreshTokenRevocationCascadeIsEnabled && t.LinkedCode != "" {
		if err := ctx.DeleteTokensByLinkedCode(t.LinkedCode); err != nil {
			return goidc.StoreError("could not revoke the tokens of the grant", err)
		}
	}

	ctx.Logger.Debug("token revoked", slog.String("client_id", c.ID), slog.String("kind", string(t.Kind)))
	return nil
}

func revokeRPT(ctx oidc.Context, c *goidc.Client, code string) error {
	rpt, err := ctx.UMARPT(code)
	if err != nil {
		if errors.Is(err, goidc.ErrNotFound) {
			return err
		}
		return goidc.StoreError("could not load the rpt", err)
	}

	if rpt.ClientID != c.ID {
		return goidc.NewError(goidc.ErrorCodeUnauthorizedClient, "the token was not issued to the client")
	}

	if err := ctx.DeleteUMARPT(rpt.Code); err != nil {
		return goidc.StoreError("could not revoke the rpt", err)
	}
	ctx.Metrics.TokenRevoked(string(goidc.TokenHintRPT))
	return nil
}

func ignoreNotFound(err error) error {
	if errors.Is(err, goidc.ErrNotFound) {
		return nil
	}
	return err
}
