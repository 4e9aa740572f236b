package token

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"slices"

	"github.com/luikyv/go-authority/internal/oidc"
	"github.com/luikyv/go-authority/internal/strutil"
	"github.com/luikyv/go-authority/pkg/goidc"
)

func validateAuthorizationRequest(ctx oidc.Context, c *goidc.Client, req AuthorizationRequest) error {
	if c.IsExpired(ctx.TimestampNow()) {
		return goidc.NewError(goidc.ErrorCodeInvalidClient, "the client expired")
	}

	if !slices.Contains(ctx.ResponseTypes, req.ResponseType) || !c.IsResponseTypeAllowed(req.ResponseType) {
		return goidc.NewError(goidc.ErrorCodeUnauthorizedClient, "response type not allowed")
	}

	rt := string(req.ResponseType)
	if containsResponseType(rt, goidc.ResponseTypeCode) && !c.IsGrantTypeAllowed(goidc.GrantAuthorizationCode) {
		return goidc.NewError(goidc.ErrorCodeUnauthorizedClient, "authorization code grant not allowed")
	}

	isImplicit := containsResponseType(rt, goidc.ResponseTypeToken) || containsResponseType(rt, goidc.ResponseTypeIDToken)
	if isImplicit && (!ctx.IsGrantTypeEnabled(goidc.GrantImplicit) || !c.IsGrantTypeAllowed(goidc.GrantImplicit)) {
		return goidc.NewError(goidc.ErrorCodeUnauthorizedClient, "implicit grant not allowed")
	}

	if !c.IsRedirectURIAllowed(req.RedirectURI) {
		return goidc.NewError(goidc.ErrorCodeInvalidRequest, "invalid redirect_uri")
	}

	if err := validateScopes(ctx, c, req.Scopes); err != nil {
		return err
	}

	if containsResponseType(rt, goidc.ResponseTypeIDToken) {
		if !strutil.ContainsOpenID(req.Scopes) {
			return goidc.NewError(goidc.ErrorCodeInvalidScope, "scope openid is required to issue id tokens")
		}
		if req.Nonce == "" {
			return goidc.NewError(goidc.ErrorCodeInvalidRequest, "nonce is required when an id token is issued from the authorization endpoint")
		}
	}

	if containsResponseType(rt, goidc.ResponseTypeCode) {
		return validatePKCERequest(ctx, c, req)
	}

	return nil
}

func validatePKCERequest(ctx oidc.Context, c *goidc.Client, req AuthorizationRequest) error {
	if req.CodeChallenge == "" {
		if ctx.PKCEIsRequired || c.IsPublic() {
			return goidc.NewError(goidc.ErrorCodeInvalidRequest, "code_challenge is required")
		}
		return nil
	}

	method := req.CodeChallengeMethod
	if method == "" {
		method = goidc.CodeChallengeMethodPlain
	}

	if !slices.Contains(ctx.PKCEChallengeMethods, method) {
		return goidc.NewError(goidc.ErrorCodeInvalidRequest, "invalid code_challenge_method")
	}

	return nil
}

func validateAuthorizationCodeGrantRequest(
	ctx oidc.Context,
	req Request,
	c *goidc.Client,
	code *goidc.Token,
) error {
	if code.ClientID != c.ID {
		return goidc.NewError(goidc.ErrorCodeInvalidGrant, "the authorization code was not issued to the client")
	}

	if code.IsExpired(ctx.TimestampNow()) {
		return goidc.NewError(goidc.ErrorCodeInvalidGrant, "the authorization code is expired")
	}

	if code.RedirectURI != req.RedirectURI {
		return goidc.NewError(goidc.ErrorCodeInvalidGrant, "invalid redirect_uri")
	}

	if code.CodeChallenge == "" {
		if req.CodeVerifier != "" {
			return goidc.NewError(goidc.ErrorCodeInvalidGrant, "code_verifier was informed but no code_challenge was")
		}
		return nil
	}

	if req.CodeVerifier == "" {
		return goidc.NewError(goidc.ErrorCodeInvalidGrant, "code_verifier is required")
	}

	if !isPKCEValid(req.CodeVerifier, code.CodeChallenge, code.CodeChallengeMethod) {
		return goidc.NewError(goidc.ErrorCodeInvalidGrant, "invalid code_verifier")
	}

	return nil
}

// validateScopes checks the requested scopes are enabled and allowed for
// the client.
func validateScopes(ctx oidc.Context, c *goidc.Client, scopes string) error {
	for _, s := range strutil.SplitWithSpaces(scopes) {
		if !slices.Contains(ctx.Scopes, s) {
			return goidc.NewError(goidc.ErrorCodeInvalidScope, "invalid scope "+s)
		}
	}

	if !c.AreScopesAllowed(scopes) {
		return goidc.NewError(goidc.ErrorCodeInvalidScope, "scope not allowed for the client")
	}

	return nil
}

func isPKCEValid(codeVerifier, codeChallenge string, method goidc.CodeChallengeMethod) bool {
	switch method {
	case goidc.CodeChallengeMethodPlain:
		return subtle.ConstantTimeCompare([]byte(codeVerifier), []byte(codeChallenge)) == 1
	case goidc.CodeChallengeMethodSHA256:
		hash := sha256.Sum256([]byte(codeVerifier))
		expected := base64.RawURLEncoding.EncodeToString(hash[:])
		return subtle.ConstantTimeCompare([]byte(expected), []byte(codeChallenge)) == 1
	default:
		return false
	}
}
