package token

import (
	"errors"

	"github.com/luikyv/go-authority/internal/oidc"
	"github.com/luikyv/go-authority/internal/strutil"
	"github.com/luikyv/go-authority/pkg/goidc"
)

// decide records the decision of the user. Only pending requests can be
// decided, the save fails if another decision landed since auth was read.
func decide(ctx oidc.Context, auth *goidc.PendingAuthorization, status goidc.PendingStatus, subject string) error {
	if auth.Status != goidc.PendingStatusPending {
		return goidc.NewError(goidc.ErrorCodeInvalidRequest, "the request was already decided")
	}

	auth.Status = status
	auth.Subject = subject
	if status == goidc.PendingStatusApproved {
		auth.AuthTimestamp = ctx.TimestampNow()
	}

	err := ctx.SavePendingAuthorizationIfStatus(auth, goidc.PendingStatusPending)
	if errors.Is(err, goidc.ErrPendingStatusChanged) {
		return goidc.WrapError(goidc.ErrorCodeInvalidRequest, "the request was already decided", err)
	}
	return err
}

// poll answers a client polling for the outcome of a device or CIBA
// request. The request is consumed once it was decided.
func poll(ctx oidc.Context, c *goidc.Client, id string, gt goidc.GrantType) (goidc.TokenResponse, error) {
	auth, err := ctx.PendingAuthorization(id)
	if err != nil {
		return goidc.TokenResponse{}, invalidGrantOrStoreError("invalid "+pendingName(gt), err)
	}

	if auth.GrantType != gt || auth.ClientID != c.ID {
		return goidc.TokenResponse{}, goidc.NewError(goidc.ErrorCodeInvalidGrant, "invalid "+pendingName(gt))
	}

	now := ctx.TimestampNow()
	if auth.IsExpired(now) {
		return goidc.TokenResponse{}, goidc.NewError(goidc.ErrorCodeExpiredToken, "the "+pendingName(gt)+" is expired")
	}

	if auth.Status == goidc.PendingStatusPending {
		err := pending(ctx, auth, now)
		if !errors.Is(err, goidc.ErrPendingStatusChanged) {
			return goidc.TokenResponse{}, err
		}
		// The user decided after the request was read, the consumed request
		// carries the decision.
	}

	// Consuming makes sure the tokens are issued once.
	auth, err = ctx.ConsumePendingAuthorization(id)
	if err != nil {
		return goidc.TokenResponse{}, invalidGrantOrStoreError("invalid "+pendingName(gt), err)
	}

	if auth.Status != goidc.PendingStatusApproved {
		return goidc.TokenResponse{}, goidc.NewError(goidc.ErrorCodeAccessDenied, "the user denied the request")
	}

	grant := goidc.GrantInfo{
		GrantID:       newGrantID(),
		GrantType:     gt,
		ClientID:      c.ID,
		Subject:       auth.Subject,
		Scopes:        auth.Scopes,
		AuthTimestamp: auth.AuthTimestamp,
	}
	return issue(ctx, c, grant, tokenOptions{
		refreshToken: shouldIssueRefreshToken(ctx, c, grant),
		idToken:      strutil.ContainsOpenID(grant.Scopes),
	})
}

// pending records the poll and tells the client to keep waiting. Polling
// faster than the interval increases it.
func pending(ctx oidc.Context, auth *goidc.PendingAuthorization, now int) error {
	tooFast := auth.LastPolledTimestamp != 0 && now-auth.LastPolledTimestamp < auth.IntervalSecs
	auth.LastPolledTimestamp = now
	if tooFast {
		auth.IntervalSecs += slowDownIncrementSecs
	}

	// A plain save would overwrite a decision made since auth was read.
	if err := ctx.SavePendingAuthorizationIfStatus(auth, goidc.PendingStatusPending); err != nil {
		return err
	}

	if tooFast {
		return goidc.NewError(goidc.ErrorCodeSlowDown, "the client is polling too fast")
	}
	return goidc.NewError(goidc.ErrorCodeAuthPending, "the user has not decided yet")
}

func pendingName(gt goidc.GrantType) string {
	if gt == goidc.GrantCIBA {
		return "auth_req_id"
	}
	return "device code"
}
