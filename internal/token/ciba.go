package token

import (
	"errors"
	"log/slog"

	"github.com/luikyv/go-authority/internal/oidc"
	"github.com/luikyv/go-authority/internal/strutil"
	"github.com/luikyv/go-authority/pkg/goidc"
)

// InitCIBA starts a backchannel authentication request in poll mode. The
// user identified by the login hint is asked out of band to approve it.
func InitCIBA(ctx oidc.Context, req CIBARequest) (goidc.CIBAResponse, error) {
	if !ctx.IsGrantTypeEnabled(goidc.GrantCIBA) {
		return goidc.CIBAResponse{}, goidc.NewError(goidc.ErrorCodeUnsupportedGrantType,
			"the ciba grant is not enabled")
	}

	c, err := authenticatedClient(ctx, req.Credentials, goidc.GrantCIBA)
	if err != nil {
		return goidc.CIBAResponse{}, err
	}

	if !strutil.ContainsOpenID(req.Scopes) {
		return goidc.CIBAResponse{}, goidc.NewError(goidc.ErrorCodeInvalidScope, "scope openid is required")
	}

	if err := validateScopes(ctx, c, req.Scopes); err != nil {
		return goidc.CIBAResponse{}, err
	}

	if req.LoginHint == "" {
		return goidc.CIBAResponse{}, goidc.NewError(goidc.ErrorCodeInvalidRequest, "login_hint is required")
	}

	now := ctx.TimestampNow()
	auth := &goidc.PendingAuthorization{
		ID:                 strutil.Random(authReqIDLength),
		GrantType:          goidc.GrantCIBA,
		ClientID:           c.ID,
		Scopes:             req.Scopes,
		Status:             goidc.PendingStatusPending,
		Subject:            req.LoginHint,
		BindingMessage:     req.BindingMessage,
		IntervalSecs:       ctx.CIBAPollIntervalSecs,
		CreatedAtTimestamp: now,
		ExpiresAtTimestamp: now + ctx.CIBALifetimeSecs,
		Deletable:          true,
	}
	if err := ctx.SavePendingAuthorization(auth); err != nil {
		return goidc.CIBAResponse{}, err
	}

	ctx.Logger.Debug("ciba request started", slog.String("client_id", c.ID))
	return goidc.CIBAResponse{
		AuthReqID: auth.ID,
		ExpiresIn: ctx.CIBALifetimeSecs,
		Interval:  auth.IntervalSecs,
	}, nil
}

// ApproveCIBA records that the user approved the backchannel request.
func ApproveCIBA(ctx oidc.Context, authReqID string) error {
	auth, err := pendingCIBA(ctx, authReqID)
	if err != nil {
		return err
	}

	return decide(ctx, auth, goidc.PendingStatusApproved, auth.Subject)
}

// DenyCIBA records that the user denied the backchannel request.
func DenyCIBA(ctx oidc.Context, authReqID string) error {
	auth, err := pendingCIBA(ctx, authReqID)
	if err != nil {
		return err
	}

	return decide(ctx, auth, goidc.PendingStatusDenied, auth.Subject)
}

func pendingCIBA(ctx oidc.Context, authReqID string) (*goidc.PendingAuthorization, error) {
	auth, err := ctx.PendingAuthorization(authReqID)
	if err != nil {
		if errors.Is(err, goidc.ErrNotFound) {
			return nil, goidc.WrapError(goidc.ErrorCodeInvalidRequest, "invalid auth_req_id", err)
		}
		return nil, goidc.StoreError("could not load the ciba request", err)
	}

	if auth.GrantType != goidc.GrantCIBA {
		return nil, goidc.NewError(goidc.ErrorCodeInvalidRequest, "invalid auth_req_id")
	}

	if auth.IsExpired(ctx.TimestampNow()) {
		return nil, goidc.NewError(goidc.ErrorCodeExpiredToken, "the ciba request is expired")
	}

	return auth, nil
}

func generateCIBAGrant(ctx oidc.Context, req Request) (goidc.TokenResponse, error) {
	if req.AuthReqID == "" {
		return goidc.TokenResponse{}, goidc.NewError(goidc.ErrorCodeInvalidRequest, "invalid auth_req_id")
	}

	c, err := authenticatedClient(ctx, req.Credentials, goidc.GrantCIBA)
	if err != nil {
		return goidc.TokenResponse{}, err
	}

	return poll(ctx, c, req.AuthReqID, goidc.GrantCIBA)
}
