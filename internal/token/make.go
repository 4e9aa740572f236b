package token

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/go-jose/go-jose/v4"
	"github.com/google/uuid"
	"github.com/luikyv/go-authority/internal/clientutil"
	"github.com/luikyv/go-authority/internal/hashutil"
	"github.com/luikyv/go-authority/internal/joseutil"
	"github.com/luikyv/go-authority/internal/jwtutil"
	"github.com/luikyv/go-authority/internal/oidc"
	"github.com/luikyv/go-authority/internal/strutil"
	"github.com/luikyv/go-authority/pkg/goidc"
)

// typeAccessToken is the "typ" header of JWT access tokens.
const typeAccessToken = "at+jwt"

// issue mints the tokens of a grant. Every token is linked to the grant so
// they can be revoked together.
func issue(
	ctx oidc.Context,
	c *goidc.Client,
	grant goidc.GrantInfo,
	opts tokenOptions,
) (
	goidc.TokenResponse,
	error,
) {
	accessToken, err := makeAccessToken(ctx, c, grant)
	if err != nil {
		return goidc.TokenResponse{}, err
	}

	resp := goidc.TokenResponse{
		AccessToken: accessToken,
		TokenType:   goidc.TokenTypeBearer,
		ExpiresIn:   ctx.AccessTokenLifetimeSecs,
		Scopes:      grant.Scopes,
	}

	if opts.refreshToken {
		refreshToken, err := makeRefreshToken(ctx, grant)
		if err != nil {
			return goidc.TokenResponse{}, err
		}
		resp.RefreshToken = refreshToken.Code
	}

	if opts.idToken {
		opts.accessToken = accessToken
		idToken, err := makeIDToken(ctx, c, grant, opts)
		if err != nil {
			return goidc.TokenResponse{}, err
		}
		resp.IDToken = idToken
	}

	ctx.Logger.Debug("tokens issued", slog.String("client_id", c.ID),
		slog.String("grant_type", string(grant.GrantType)), slog.String("grant_id", grant.GrantID))
	return resp, nil
}

func makeAccessToken(ctx oidc.Context, c *goidc.Client, grant goidc.GrantInfo) (string, error) {
	now := ctx.TimestampNow()
	t := &goidc.Token{
		Kind:               goidc.TokenKindAccessToken,
		Format:             accessTokenFormat(ctx, c),
		CreatedAtTimestamp: now,
		ExpiresAtTimestamp: now + ctx.AccessTokenLifetimeSecs,
		Deletable:          true,
		LinkedCode:         grant.GrantID,
		GrantInfo:          grant,
	}

	value := ""
	if t.Format == goidc.TokenFormatJWT {
		t.Code = uuid.NewString()
		jwt, err := ctx.Sign(accessTokenClaims(ctx, t), typeAccessToken)
		if err != nil {
			return "", internalError("could not sign the access token", err)
		}
		value = jwt
	} else {
		t.Code = strutil.Random(accessTokenLength)
		value = t.Code
	}

	if err := save(ctx, t); err != nil {
		return "", err
	}
	return value, nil
}

func accessTokenClaims(ctx oidc.Context, t *goidc.Token) jwtutil.Claims {
	claims := jwtutil.Claims{
		goidc.ClaimTokenID:  t.Code,
		goidc.ClaimIssuer:   ctx.Issuer(),
		goidc.ClaimSubject:  subject(t.GrantInfo),
		goidc.ClaimClientID: t.ClientID,
		goidc.ClaimIssuedAt: t.CreatedAtTimestamp,
		goidc.ClaimExpiry:   t.ExpiresAtTimestamp,
	}

	if t.Scopes != "" {
		claims[goidc.ClaimScope] = t.Scopes
	}

	return claims
}

func makeRefreshToken(ctx oidc.Context, grant goidc.GrantInfo) (*goidc.Token, error) {
	now := ctx.TimestampNow()
	t := &goidc.Token{
		Code:               strutil.Random(refreshTokenLength),
		Kind:               goidc.TokenKindRefreshToken,
		Format:             goidc.TokenFormatOpaque,
		CreatedAtTimestamp: now,
		ExpiresAtTimestamp: now + ctx.RefreshTokenLifetimeSecs,
		Deletable:          true,
		LinkedCode:         grant.GrantID,
		GrantInfo:          grant,
	}

	if err := save(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func makeIDToken(
	ctx oidc.Context,
	c *goidc.Client,
	grant goidc.GrantInfo,
	opts tokenOptions,
) (
	string,
	error,
) {
	alg := clientutil.IDTokenSigAlg(ctx, c)
	now := ctx.TimestampNow()
	t := &goidc.Token{
		Code:               uuid.NewString(),
		Kind:               goidc.TokenKindIDToken,
		Format:             goidc.TokenFormatJWT,
		CreatedAtTimestamp: now,
		ExpiresAtTimestamp: now + ctx.IDTokenLifetimeSecs,
		Deletable:          true,
		LinkedCode:         grant.GrantID,
		GrantInfo:          grant,
	}

	claims := jwtutil.Claims{}
	for k, v := range grant.AdditionalIDTokenClaims {
		claims[k] = v
	}
	claims[goidc.ClaimTokenID] = t.Code
	claims[goidc.ClaimIssuer] = ctx.Issuer()
	claims[goidc.ClaimSubject] = grant.Subject
	claims[goidc.ClaimAudience] = c.ID
	claims[goidc.ClaimIssuedAt] = t.CreatedAtTimestamp
	claims[goidc.ClaimExpiry] = t.ExpiresAtTimestamp

	if grant.Nonce != "" {
		claims[goidc.ClaimNonce] = grant.Nonce
	}

	if grant.AuthTimestamp != 0 {
		claims[goidc.ClaimAuthTime] = grant.AuthTimestamp
	}

	if grant.SessionID != "" {
		claims[goidc.ClaimSessionID] = grant.SessionID
	}

	if opts.accessToken != "" {
		claims[goidc.ClaimAccessTokenHash] = hashutil.HalfHash(opts.accessToken, alg)
	}

	if opts.code != "" {
		claims[goidc.ClaimAuthorizationCodeHash] = hashutil.HalfHash(opts.code, alg)
	}

	if opts.state != "" {
		claims[goidc.ClaimStateHash] = hashutil.HalfHash(opts.state, alg)
	}

	idToken, err := signIDToken(ctx, c, claims, alg)
	if err != nil {
		return "", err
	}

	if c.IDTokenKeyEncAlg != "" {
		if idToken, err = encryptIDToken(ctx, c, idToken); err != nil {
			return "", err
		}
	}

	if err := save(ctx, t); err != nil {
		return "", err
	}
	return idToken, nil
}

func signIDToken(ctx oidc.Context, c *goidc.Client, claims jwtutil.Claims, alg jose.SignatureAlgorithm) (string, error) {
	opts := jwtutil.SignOptions{Algorithm: alg}
	if isHMAC(alg) {
		secret, err := clientutil.Secret(ctx, c)
		if err != nil {
			return "", internalError("could not read the client secret", err)
		}
		opts.Secret = secret
	} else {
		keyID, err := ctx.SigningKeyID(alg)
		if err != nil {
			return "", err
		}
		opts.KeyID = keyID
	}

	idToken, err := ctx.Codec.Sign(claims, opts)
	if err != nil {
		return "", internalError("could not sign the id token", err)
	}
	return idToken, nil
}

func encryptIDToken(ctx oidc.Context, c *goidc.Client, idToken string) (string, error) {
	opts := jwtutil.EncryptOptions{
		KeyAlgorithm:      c.IDTokenKeyEncAlg,
		ContentEncryption: c.IDTokenContentEncAlg,
	}
	if opts.ContentEncryption == "" {
		opts.ContentEncryption = ctx.IDTokenDefaultContentEncAlg
	}

	if joseutil.IsSymmetricKeyAlg(opts.KeyAlgorithm) {
		secret, err := clientutil.Secret(ctx, c)
		if err != nil {
			return "", internalError("could not read the client secret", err)
		}
		opts.Secret = secret
	} else {
		jwk, err := clientutil.IDTokenEncryptionJWK(ctx, c)
		if err != nil {
			return "", goidc.WrapError(goidc.ErrorCodeInvalidRequest,
				"could not find a client key to encrypt the id token with", err)
		}
		opts.Recipient = &jwk
	}

	jwe, err := ctx.Codec.Encrypt([]byte(idToken), jwtutil.TypeJWT, opts)
	if err != nil {
		return "", internalError("could not encrypt the id token", err)
	}
	return jwe, nil
}

func save(ctx oidc.Context, t *goidc.Token) error {
	if err := ctx.SaveToken(t); err != nil {
		return err
	}

	ctx.Metrics.TokenIssued(string(t.Kind), string(t.GrantType))
	return nil
}

func accessTokenFormat(ctx oidc.Context, c *goidc.Client) goidc.TokenFormat {
	if c.AccessTokenFormat != "" {
		return c.AccessTokenFormat
	}
	if ctx.AccessTokenFormat != "" {
		return ctx.AccessTokenFormat
	}
	return goidc.TokenFormatOpaque
}

// subject returns the subject of the tokens of a grant. Grants without a
// user, e.g. client credentials, are issued to the client itself.
func subject(grant goidc.GrantInfo) string {
	if grant.Subject != "" {
		return grant.Subject
	}
	return grant.ClientID
}

func isHMAC(alg jose.SignatureAlgorithm) bool {
	return strings.HasPrefix(string(alg), "HS")
}

// internalError reports err as is when it already carries a protocol error
// code and as an internal error otherwise.
func internalError(desc string, err error) error {
	var oidcErr goidc.Error
	if errors.As(err, &oidcErr) {
		return err
	}
	return goidc.WrapError(goidc.ErrorCodeInternalError, desc, err)
}

func newGrantID() string {
	return uuid.NewString()
}
