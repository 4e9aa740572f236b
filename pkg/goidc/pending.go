package goidc

import "context"

// PendingAuthorizationManager stores device and CIBA requests while the
// user has not decided yet.
type PendingAuthorizationManager interface {
	Save(ctx context.Context, auth *PendingAuthorization) error
	// SaveIfStatus replaces the request only if the stored one still has the
	// expected status, otherwise it returns [ErrPendingStatusChanged].
	SaveIfStatus(ctx context.Context, auth *PendingAuthorization, expected PendingStatus) error
	PendingAuthorization(ctx context.Context, id string) (*PendingAuthorization, error)
	PendingAuthorizationByUserCode(ctx context.Context, userCode string) (*PendingAuthorization, error)
	// Consume atomically loads and removes the request.
	Consume(ctx context.Context, id string) (*PendingAuthorization, error)
	ExpirationIndex
}

type PendingStatus string

const (
	PendingStatusPending  PendingStatus = "pending"
	PendingStatusApproved PendingStatus = "approved"
	PendingStatusDenied   PendingStatus = "denied"
)

// PendingAuthorization is a device authorization or a CIBA request.
type PendingAuthorization struct {
	// ID is the device code or the CIBA auth_req_id.
	ID        string        `json:"id" bson:"_id"`
	GrantType GrantType     `json:"grant_type" bson:"grant_type"`
	UserCode  string        `json:"user_code,omitempty" bson:"user_code,omitempty"`
	ClientID  string        `json:"client_id" bson:"client_id"`
	Scopes    string        `json:"scope,omitempty" bson:"scope,omitempty"`
	Status    PendingStatus `json:"status" bson:"status"`
	// Subject is set once the request is approved. For CIBA it holds the
	// login hint until then.
	Subject             string `json:"sub,omitempty" bson:"sub,omitempty"`
	BindingMessage      string `json:"binding_message,omitempty" bson:"binding_message,omitempty"`
	IntervalSecs        int    `json:"interval" bson:"interval"`
	LastPolledTimestamp int    `json:"last_polled_at,omitempty" bson:"last_polled_at,omitempty"`
	AuthTimestamp       int    `json:"auth_time,omitempty" bson:"auth_time,omitempty"`
	CreatedAtTimestamp  int    `json:"created_at" bson:"created_at"`
	ExpiresAtTimestamp  int    `json:"expires_at" bson:"expires_at"`
	Deletable           bool   `json:"deletable" bson:"deletable"`
}

func (a *PendingAuthorization) IsExpired(now int) bool {
	return IsExpired(a.ExpiresAtTimestamp, now)
}

// DeviceAuthorizationResponse is the device authorization endpoint response.
type DeviceAuthorizationResponse struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete,omitempty"`
	ExpiresIn               int    `json:"expires_in"`
	Interval                int    `json:"interval"`
}

// CIBAResponse is the backchannel authentication endpoint response.
type CIBAResponse struct {
	AuthReqID string `json:"auth_req_id"`
	ExpiresIn int    `json:"expires_in"`
	Interval  int    `json:"interval"`
}
