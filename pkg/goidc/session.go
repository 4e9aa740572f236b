package goidc

import "context"

// SessionManager contains all the logic needed to manage browser sessions.
type SessionManager interface {
	// Save creates or replaces the session. Implementations must reject, with
	// [ErrSessionStateRegression], replacing an authenticated session with an
	// unauthenticated one.
	Save(ctx context.Context, session *Session) error
	Session(ctx context.Context, id string) (*Session, error)
	ExpirationIndex
}

type SessionState string

const (
	SessionStateUnauthenticated SessionState = "unauthenticated"
	SessionStateAuthenticated   SessionState = "authenticated"
)

// Session represents one browser session.
type Session struct {
	ID    string       `json:"id" bson:"_id"`
	State SessionState `json:"state" bson:"state"`
	// UserDN references the owning user. It is optional for anonymous
	// visits.
	UserDN              string `json:"user_dn,omitempty" bson:"user_dn,omitempty"`
	CreatedAtTimestamp  int    `json:"created_at" bson:"created_at"`
	LastUsedAtTimestamp int    `json:"last_used_at" bson:"last_used_at"`
	// AuthTimestamp is only set once the session is authenticated.
	AuthTimestamp      int               `json:"auth_time,omitempty" bson:"auth_time,omitempty"`
	ExpiresAtTimestamp int               `json:"expires_at" bson:"expires_at"`
	Deletable          bool              `json:"deletable" bson:"deletable"`
	Attributes         map[string]string `json:"attributes,omitempty" bson:"attributes,omitempty"`
	// Permissions records the consent decision per client id.
	Permissions map[string]bool `json:"permissions,omitempty" bson:"permissions,omitempty"`
}

func (s *Session) IsAuthenticated() bool {
	return s.State == SessionStateAuthenticated
}

func (s *Session) IsExpired(now int) bool {
	return IsExpired(s.ExpiresAtTimestamp, now)
}

// HasPermission reports whether consent was granted to the client.
func (s *Session) HasPermission(clientID string) bool {
	return s.Permissions[clientID]
}
