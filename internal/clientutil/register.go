package clientutil

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/luikyv/go-authority/internal/oidc"
	"github.com/luikyv/go-authority/internal/strutil"
	"github.com/luikyv/go-authority/pkg/goidc"
)

const secretLength = 50

// Register creates a client for the metadata. Dynamically registered clients
// are deletable, so the sweeper removes them once they expire. The plain
// secret is only returned here, it's never stored.
func Register(ctx oidc.Context, meta goidc.ClientMetaInfo) (*goidc.Client, string, error) {
	if meta.AuthnMethod == "" {
		meta.AuthnMethod = goidc.ClientAuthnSecretBasic
	}
	if err := validate(ctx, meta); err != nil {
		return nil, "", err
	}

	now := ctx.TimestampNow()
	c := &goidc.Client{
		ID:                 uuid.NewString(),
		CreatedAtTimestamp: now,
		Deletable:          true,
		ClientMetaInfo:     meta,
	}
	if ctx.ClientLifetimeSecs != 0 {
		c.ExpiresAtTimestamp = now + ctx.ClientLifetimeSecs
	}

	var secret string
	if usesSecret(meta.AuthnMethod) {
		var err error
		if secret, err = setSecret(ctx, c); err != nil {
			return nil, "", err
		}
	}

	if err := ctx.SaveClient(c); err != nil {
		return nil, "", err
	}

	ctx.Logger.Info("client registered", slog.String("client_id", c.ID))
	return c, secret, nil
}

// Update replaces the metadata of the client. The identity, the secret and
// the lifecycle attributes are kept.
func Update(ctx oidc.Context, id string, meta goidc.ClientMetaInfo) (*goidc.Client, error) {
	c, err := ctx.Client(id)
	if err != nil {
		return nil, goidc.WrapError(goidc.ErrorCodeInvalidClient, "client not found", err)
	}

	if meta.AuthnMethod == "" {
		meta.AuthnMethod = c.AuthnMethod
	}
	if usesSecret(meta.AuthnMethod) != usesSecret(c.AuthnMethod) {
		return nil, goidc.NewError(goidc.ErrorCodeInvalidRequest,
			"the authentication method cannot switch between secret and non secret based")
	}
	if err := validate(ctx, meta); err != nil {
		return nil, err
	}

	c.ClientMetaInfo = meta
	if err := ctx.SaveClient(c); err != nil {
		return nil, err
	}
	return c, nil
}

// RotateSecret replaces the secret of the client and returns the new one.
func RotateSecret(ctx oidc.Context, id string) (string, error) {
	c, err := ctx.Client(id)
	if err != nil {
		return "", goidc.WrapError(goidc.ErrorCodeInvalidClient, "client not found", err)
	}

	if !usesSecret(c.AuthnMethod) {
		return "", goidc.NewError(goidc.ErrorCodeInvalidRequest,
			"the client does not authenticate with a secret")
	}

	secret, err := setSecret(ctx, c)
	if err != nil {
		return "", err
	}

	if err := ctx.SaveClient(c); err != nil {
		return "", err
	}

	ctx.Logger.Info("client secret rotated", slog.String("client_id", c.ID))
	return secret, nil
}

func setSecret(ctx oidc.Context, c *goidc.Client) (string, error) {
	secret := strutil.Random(secretLength)
	sealed, err := Seal(ctx.ClientSecretKey, c.ID, secret)
	if err != nil {
		return "", goidc.WrapError(goidc.ErrorCodeInternalError, "could not seal the client secret", err)
	}

	c.SealedSecret = sealed
	c.SecretExpiresAtTimestamp = 0
	if ctx.ClientSecretLifetimeSecs != 0 {
		c.SecretExpiresAtTimestamp = ctx.TimestampNow() + ctx.ClientSecretLifetimeSecs
	}
	return secret, nil
}

func validate(ctx oidc.Context, meta goidc.ClientMetaInfo) error {
	if len(ctx.ClientAuthnMethods) != 0 && !slices.Contains(ctx.ClientAuthnMethods, meta.AuthnMethod) {
		return goidc.NewError(goidc.ErrorCodeInvalidRequest, "authentication method not allowed")
	}

	if len(meta.GrantTypes) == 0 {
		return goidc.NewError(goidc.ErrorCodeInvalidRequest, "at least one grant type is required")
	}

	for _, gt := range meta.GrantTypes {
		if !ctx.IsGrantTypeEnabled(gt) {
			return goidc.NewError(goidc.ErrorCodeInvalidRequest, "grant type "+string(gt)+" not allowed")
		}
	}

	for _, rt := range meta.ResponseTypes {
		if !slices.Contains(ctx.ResponseTypes, rt) {
			return goidc.NewError(goidc.ErrorCodeInvalidRequest, "response type "+string(rt)+" not allowed")
		}
	}

	if !strutil.IsSubset(meta.Scopes, strings.Join(ctx.Scopes, " ")) {
		return goidc.NewError(goidc.ErrorCodeInvalidRequest, "scope not allowed")
	}

	if (slices.Contains(meta.GrantTypes, goidc.GrantAuthorizationCode) ||
		slices.Contains(meta.GrantTypes, goidc.GrantImplicit)) && len(meta.RedirectURIs) == 0 {
		return goidc.NewError(goidc.ErrorCodeInvalidRequest, "redirect_uris is required")
	}

	if meta.AuthnMethod == goidc.ClientAuthnPrivateKeyJWT && len(meta.PublicJWKS) == 0 && meta.PublicJWKSURI == "" {
		return goidc.NewError(goidc.ErrorCodeInvalidRequest, "jwks or jwks_uri is required")
	}

	if len(meta.PublicJWKS) != 0 && meta.PublicJWKSURI != "" {
		return goidc.NewError(goidc.ErrorCodeInvalidRequest, "jwks and jwks_uri cannot be informed together")
	}

	if meta.IDTokenKeyEncAlg != "" && !ctx.IDTokenEncIsEnabled {
		return goidc.NewError(goidc.ErrorCodeInvalidRequest, "id token encryption is not enabled")
	}

	if meta.IDTokenContentEncAlg != "" && meta.IDTokenKeyEncAlg == "" {
		return goidc.NewError(goidc.ErrorCodeInvalidRequest,
			"id_token_encrypted_response_enc requires id_token_encrypted_response_alg")
	}

	if meta.IDTokenSigAlg != "" && !slices.Contains(ctx.SigAlgs, meta.IDTokenSigAlg) {
		return goidc.NewError(goidc.ErrorCodeInvalidRequest, "id token signing algorithm not allowed")
	}

	if meta.AccessTokenFormat != "" && meta.AccessTokenFormat != goidc.TokenFormatJWT &&
		meta.AccessTokenFormat != goidc.TokenFormatOpaque {
		return goidc.NewError(goidc.ErrorCodeInvalidRequest, "invalid access token format")
	}

	return nil
}
