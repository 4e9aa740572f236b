package token

import (
	"errors"
	"log/slog"
	"net/url"

	"github.com/luikyv/go-authority/internal/clientutil"
	"github.com/luikyv/go-authority/internal/oidc"
	"github.com/luikyv/go-authority/internal/strutil"
	"github.com/luikyv/go-authority/pkg/goidc"
)

// InitDeviceAuthorization starts a device authorization request. The user
// approves it by entering the user code at the verification uri.
func InitDeviceAuthorization(
	ctx oidc.Context,
	creds clientutil.Credentials,
	scopes string,
) (
	goidc.DeviceAuthorizationResponse,
	error,
) {
	if !ctx.IsGrantTypeEnabled(goidc.GrantDeviceCode) {
		return goidc.DeviceAuthorizationResponse{}, goidc.NewError(goidc.ErrorCodeUnsupportedGrantType,
			"the device authorization grant is not enabled")
	}

	c, err := authenticatedClient(ctx, creds, goidc.GrantDeviceCode)
	if err != nil {
		return goidc.DeviceAuthorizationResponse{}, err
	}

	if err := validateScopes(ctx, c, scopes); err != nil {
		return goidc.DeviceAuthorizationResponse{}, err
	}

	now := ctx.TimestampNow()
	auth := &goidc.PendingAuthorization{
		ID:                 strutil.Random(deviceCodeLength),
		GrantType:          goidc.GrantDeviceCode,
		UserCode:           strutil.UserCode(),
		ClientID:           c.ID,
		Scopes:             scopes,
		Status:             goidc.PendingStatusPending,
		IntervalSecs:       ctx.DevicePollIntervalSecs,
		CreatedAtTimestamp: now,
		ExpiresAtTimestamp: now + ctx.DeviceCodeLifetimeSecs,
		Deletable:          true,
	}
	if err := ctx.SavePendingAuthorization(auth); err != nil {
		return goidc.DeviceAuthorizationResponse{}, err
	}

	resp := goidc.DeviceAuthorizationResponse{
		DeviceCode:      auth.ID,
		UserCode:        auth.UserCode,
		VerificationURI: ctx.DeviceVerificationURI,
		ExpiresIn:       ctx.DeviceCodeLifetimeSecs,
		Interval:        auth.IntervalSecs,
	}
	if ctx.DeviceVerificationURI != "" {
		resp.VerificationURIComplete = ctx.DeviceVerificationURI + "?user_code=" + url.QueryEscape(auth.UserCode)
	}

	ctx.Logger.Debug("device authorization started", slog.String("client_id", c.ID))
	return resp, nil
}

// ApproveDevice records that the user identified by subject approved the
// device request with the user code.
func ApproveDevice(ctx oidc.Context, userCode, subject string) error {
	if subject == "" {
		return goidc.NewError(goidc.ErrorCodeInvalidRequest, "the subject is required")
	}

	auth, err := pendingDeviceAuthorization(ctx, userCode)
	if err != nil {
		return err
	}

	return decide(ctx, auth, goidc.PendingStatusApproved, subject)
}

// DenyDevice records that the user denied the device request.
func DenyDevice(ctx oidc.Context, userCode string) error {
	auth, err := pendingDeviceAuthorization(ctx, userCode)
	if err != nil {
		return err
	}

	return decide(ctx, auth, goidc.PendingStatusDenied, "")
}

func pendingDeviceAuthorization(ctx oidc.Context, userCode string) (*goidc.PendingAuthorization, error) {
	auth, err := ctx.PendingAuthorizationByUserCode(userCode)
	if err != nil {
		if errors.Is(err, goidc.ErrNotFound) {
			return nil, goidc.WrapError(goidc.ErrorCodeInvalidUserCode, "invalid user code", err)
		}
		return nil, goidc.StoreError("could not load the device authorization", err)
	}

	if auth.IsExpired(ctx.TimestampNow()) {
		return nil, goidc.NewError(goidc.ErrorCodeExpiredToken, "the user code is expired")
	}

	return auth, nil
}

func generateDeviceCodeGrant(ctx oidc.Context, req Request) (goidc.TokenResponse, error) {
	if req.DeviceCode == "" {
		return goidc.TokenResponse{}, goidc.NewError(goidc.ErrorCodeInvalidRequest, "invalid device code")
	}

	c, err := authenticatedClient(ctx, req.Credentials, goidc.GrantDeviceCode)
	if err != nil {
		return goidc.TokenResponse{}, err
	}

	return poll(ctx, c, req.DeviceCode, goidc.GrantDeviceCode)
}
