package storage

import (
	"context"

	"github.com/luikyv/go-authority/pkg/goidc"
)

type ClientManager struct {
	clients *store[goidc.Client]
}

func NewClientManager() *ClientManager {
	return &ClientManager{
		clients: newStore(func(c goidc.Client) goidc.ExpiredEntry {
			return goidc.ExpiredEntry{ID: c.ID, ExpiresAtTimestamp: c.ExpiresAtTimestamp, Deletable: c.Deletable}
		}),
	}
}

func (m *ClientManager) Save(_ context.Context, client *goidc.Client) error {
	m.clients.save(client.ID, *client)
	return nil
}

func (m *ClientManager) Client(_ context.Context, id string) (*goidc.Client, error) {
	client, err := m.clients.get(id)
	if err != nil {
		return nil, err
	}
	return &client, nil
}

func (m *ClientManager) Expired(_ context.Context, before, offset, limit int) ([]goidc.ExpiredEntry, error) {
	return m.clients.expired(before, offset, limit), nil
}

func (m *ClientManager) Delete(_ context.Context, id string) error {
	m.clients.delete(id)
	return nil
}

func (m *ClientManager) DeleteExpired(_ context.Context, id string, before int) (bool, error) {
	return m.clients.deleteExpired(id, before), nil
}

var _ goidc.ClientManager = NewClientManager()
