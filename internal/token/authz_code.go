package token

import (
	"errors"
	"log/slog"
	"slices"
	"strings"

	"github.com/luikyv/go-authority/internal/oidc"
	"github.com/luikyv/go-authority/internal/strutil"
	"github.com/luikyv/go-authority/pkg/goidc"
)

// Authorize issues the artifacts of an authorization request the user
// consented to: an authorization code, an access token, an ID token or any
// combination of them as asked by the response type.
func Authorize(ctx oidc.Context, req AuthorizationRequest) (AuthorizationResponse, error) {
	c, err := ctx.Client(req.ClientID)
	if err != nil {
		if errors.Is(err, goidc.ErrNotFound) {
			return AuthorizationResponse{}, goidc.WrapError(goidc.ErrorCodeInvalidClient, "invalid client", err)
		}
		return AuthorizationResponse{}, goidc.StoreError("could not load the client", err)
	}

	if err := resolveSubject(ctx, &req); err != nil {
		return AuthorizationResponse{}, err
	}

	if err := validateAuthorizationRequest(ctx, c, req); err != nil {
		return AuthorizationResponse{}, err
	}

	grant := goidc.GrantInfo{
		GrantID:                 newGrantID(),
		GrantType:               goidc.GrantAuthorizationCode,
		ClientID:                c.ID,
		Subject:                 req.Subject,
		Scopes:                  req.Scopes,
		Nonce:                   req.Nonce,
		RedirectURI:             req.RedirectURI,
		CodeChallenge:           req.CodeChallenge,
		CodeChallengeMethod:     req.CodeChallengeMethod,
		SessionID:               req.SessionID,
		AuthTimestamp:           req.AuthTimestamp,
		AdditionalIDTokenClaims: req.AdditionalIDTokenClaims,
	}
	if grant.CodeChallenge != "" && grant.CodeChallengeMethod == "" {
		grant.CodeChallengeMethod = goidc.CodeChallengeMethodPlain
	}

	resp := AuthorizationResponse{State: req.State}
	rt := string(req.ResponseType)

	if containsResponseType(rt, goidc.ResponseTypeCode) {
		code, err := makeAuthorizationCode(ctx, grant)
		if err != nil {
			return AuthorizationResponse{}, err
		}
		resp.Code = code
	}

	// The tokens issued directly from the authorization endpoint belong to
	// the implicit part of the grant.
	implicitGrant := grant
	implicitGrant.GrantType = goidc.GrantImplicit

	if containsResponseType(rt, goidc.ResponseTypeToken) {
		accessToken, err := makeAccessToken(ctx, c, implicitGrant)
		if err != nil {
			return AuthorizationResponse{}, err
		}
		resp.AccessToken = accessToken
		resp.TokenType = goidc.TokenTypeBearer
		resp.ExpiresIn = ctx.AccessTokenLifetimeSecs
		resp.Scopes = grant.Scopes
	}

	if containsResponseType(rt, goidc.ResponseTypeIDToken) {
		idToken, err := makeIDToken(ctx, c, implicitGrant, tokenOptions{
			code:        resp.Code,
			accessToken: resp.AccessToken,
			state:       req.State,
		})
		if err != nil {
			return AuthorizationResponse{}, err
		}
		resp.IDToken = idToken
	}

	ctx.Logger.Debug("authorization granted", slog.String("client_id", c.ID),
		slog.String("response_type", rt), slog.String("grant_id", grant.GrantID))
	return resp, nil
}

// resolveSubject fills the subject and the authentication time from the
// session when one is informed.
func resolveSubject(ctx oidc.Context, req *AuthorizationRequest) error {
	if req.SessionID == "" {
		if req.Subject == "" {
			return goidc.NewError(goidc.ErrorCodeAccessDenied, "the user is not authenticated")
		}
		return nil
	}

	session, err := ctx.Session(req.SessionID)
	if err != nil {
		if errors.Is(err, goidc.ErrNotFound) {
			return goidc.WrapError(goidc.ErrorCodeAccessDenied, "the session was not found", err)
		}
		return goidc.StoreError("could not load the session", err)
	}

	if !session.IsAuthenticated() || session.IsExpired(ctx.TimestampNow()) {
		return goidc.NewError(goidc.ErrorCodeAccessDenied, "the session is not authenticated")
	}

	if !session.HasPermission(req.ClientID) {
		return goidc.NewError(goidc.ErrorCodeAccessDenied, "the user did not consent to the client")
	}

	req.Subject = session.UserDN
	req.AuthTimestamp = session.AuthTimestamp
	if req.Subject == "" {
		return goidc.NewError(goidc.ErrorCodeAccessDenied, "the session has no user")
	}
	return nil
}

func makeAuthorizationCode(ctx oidc.Context, grant goidc.GrantInfo) (string, error) {
	now := ctx.TimestampNow()
	t := &goidc.Token{
		Code:               strutil.Random(authorizationCodeLength),
		Kind:               goidc.TokenKindAuthorizationCode,
		Format:             goidc.TokenFormatOpaque,
		CreatedAtTimestamp: now,
		ExpiresAtTimestamp: now + ctx.AuthorizationCodeLifetimeSecs,
		Deletable:          true,
		GrantInfo:          grant,
	}

	if err := save(ctx, t); err != nil {
		return "", err
	}
	return t.Code, nil
}

func generateAuthorizationCodeGrant(ctx oidc.Context, req Request) (goidc.TokenResponse, error) {
	if req.AuthorizationCode == "" {
		return goidc.TokenResponse{}, goidc.NewError(goidc.ErrorCodeInvalidRequest, "invalid authorization code")
	}

	c, err := authenticatedClient(ctx, req.Credentials, goidc.GrantAuthorizationCode)
	if err != nil {
		return goidc.TokenResponse{}, err
	}

	code, err := consumeAuthorizationCode(ctx, req.AuthorizationCode)
	if err != nil {
		return goidc.TokenResponse{}, err
	}

	if err := validateAuthorizationCodeGrantRequest(ctx, req, c, code); err != nil {
		return goidc.TokenResponse{}, err
	}

	return issue(ctx, c, code.GrantInfo, tokenOptions{
		refreshToken: shouldIssueRefreshToken(ctx, c, code.GrantInfo),
		idToken:      strutil.ContainsOpenID(code.Scopes),
	})
}

// consumeAuthorizationCode atomically removes the code, so only one of any
// concurrent exchanges gets it.
func consumeAuthorizationCode(ctx oidc.Context, code string) (*goidc.Token, error) {
	// The kind is checked before consuming so other tokens informed as a code
	// are not removed.
	t, err := ctx.Token(code)
	if err != nil {
		return nil, invalidGrantOrStoreError("invalid authorization code", err)
	}

	if t.Kind != goidc.TokenKindAuthorizationCode {
		return nil, goidc.NewError(goidc.ErrorCodeInvalidGrant, "invalid authorization code")
	}

	t, err = ctx.ConsumeToken(code)
	if err != nil {
		return nil, invalidGrantOrStoreError("invalid authorization code", err)
	}

	return t, nil
}

func shouldIssueRefreshToken(ctx oidc.Context, c *goidc.Client, grant goidc.GrantInfo) bool {
	if !ctx.IsGrantTypeEnabled(goidc.GrantRefreshToken) || !c.IsGrantTypeAllowed(goidc.GrantRefreshToken) {
		return false
	}

	// When the server supports offline access, refresh tokens are only issued
	// if the client asked for it.
	if slices.Contains(ctx.Scopes, goidc.ScopeOfflineAccess) {
		return strutil.ContainsOfflineAccess(grant.Scopes)
	}
	return true
}

func invalidGrantOrStoreError(desc string, err error) error {
	if errors.Is(err, goidc.ErrNotFound) {
		return goidc.WrapError(goidc.ErrorCodeInvalidGrant, desc, err)
	}
	return goidc.StoreError(desc, err)
}

func containsResponseType(rt string, part goidc.ResponseType) bool {
	for _, p := range strings.Fields(rt) {
		if p == string(part) {
			return true
		}
	}
	return false
}
