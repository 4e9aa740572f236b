package storage

import (
	"context"

	"github.com/luikyv/go-authority/pkg/goidc"
)

type PendingAuthorizationManager struct {
	requests *store[goidc.PendingAuthorization]
}

func NewPendingAuthorizationManager() *PendingAuthorizationManager {
	return &PendingAuthorizationManager{
		requests: newStore(func(a goidc.PendingAuthorization) goidc.ExpiredEntry {
			return goidc.ExpiredEntry{ID: a.ID, ExpiresAtTimestamp: a.ExpiresAtTimestamp, Deletable: a.Deletable}
		}),
	}
}

func (m *PendingAuthorizationManager) Save(_ context.Context, auth *goidc.PendingAuthorization) error {
	m.requests.save(auth.ID, *auth)
	return nil
}

func (m *PendingAuthorizationManager) SaveIfStatus(
	_ context.Context,
	auth *goidc.PendingAuthorization,
	expected goidc.PendingStatus,
) error {
	return m.requests.saveIf(auth.ID, *auth, func(current goidc.PendingAuthorization, exists bool) error {
		if !exists || current.Status != expected {
			return goidc.ErrPendingStatusChanged
		}
		return nil
	})
}

func (m *PendingAuthorizationManager) PendingAuthorization(_ context.Context, id string) (*goidc.PendingAuthorization, error) {
	auth, err := m.requests.get(id)
	if err != nil {
		return nil, err
	}
	return &auth, nil
}

func (m *PendingAuthorizationManager) PendingAuthorizationByUserCode(
	_ context.Context,
	userCode string,
) (
	*goidc.PendingAuthorization,
	error,
) {
	auth, exists := m.requests.first(func(a goidc.PendingAuthorization) bool {
		return a.UserCode != "" && a.UserCode == userCode
	})
	if !exists {
		return nil, goidc.ErrNotFound
	}
	return &auth, nil
}

func (m *PendingAuthorizationManager) Consume(_ context.Context, id string) (*goidc.PendingAuthorization, error) {
	auth, err := m.requests.consume(id)
	if err != nil {
		return nil, err
	}
	return &auth, nil
}

func (m *PendingAuthorizationManager) Expired(_ context.Context, before, offset, limit int) ([]goidc.ExpiredEntry, error) {
	return m.requests.expired(before, offset, limit), nil
}

func (m *PendingAuthorizationManager) Delete(_ context.Context, id string) error {
	m.requests.delete(id)
	return nil
}

func (m *PendingAuthorizationManager) DeleteExpired(_ context.Context, id string, before int) (bool, error) {
	return m.requests.deleteExpired(id, before), nil
}

var _ goidc.PendingAuthorizationManager = NewPendingAuthorizationManager()
