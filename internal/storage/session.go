package storage

import (
	"context"
	"maps"

	"github.com/luikyv/go-authority/pkg/goidc"
)

type SessionManager struct {
	sessions *store[goidc.Session]
}

func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: newStore(func(s goidc.Session) goidc.ExpiredEntry {
			return goidc.ExpiredEntry{ID: s.ID, ExpiresAtTimestamp: s.ExpiresAtTimestamp, Deletable: s.Deletable}
		}),
	}
}

func (m *SessionManager) Save(_ context.Context, session *goidc.Session) error {
	return m.sessions.saveIf(session.ID, cloneSession(*session), func(current goidc.Session, exists bool) error {
		if exists && current.IsAuthenticated() && !session.IsAuthenticated() {
			return goidc.ErrSessionStateRegression
		}
		return nil
	})
}

func (m *SessionManager) Session(_ context.Context, id string) (*goidc.Session, error) {
	session, err := m.sessions.get(id)
	if err != nil {
		return nil, err
	}
	session = cloneSession(session)
	return &session, nil
}

func (m *SessionManager) Expired(_ context.Context, before, offset, limit int) ([]goidc.ExpiredEntry, error) {
	return m.sessions.expired(before, offset, limit), nil
}

func (m *SessionManager) Delete(_ context.Context, id string) error {
	m.sessions.delete(id)
	return nil
}

func (m *SessionManager) DeleteExpired(_ context.Context, id string, before int) (bool, error) {
	return m.sessions.deleteExpired(id, before), nil
}

// cloneSession copies the maps of the session so the stored copy is never
// changed through the caller's pointer.
func cloneSession(s goidc.Session) goidc.Session {
	s.Attributes = maps.Clone(s.Attributes)
	s.Permissions = maps.Clone(s.Permissions)
	return s
}

var _ goidc.SessionManager = NewSessionManager()
