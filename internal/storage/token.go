package storage

import (
	"context"

	"github.com/luikyv/go-authority/pkg/goidc"
)

type TokenManager struct {
	tokens *store[goidc.Token]
}

func NewTokenManager() *TokenManager {
	return &TokenManager{
		tokens: newStore(func(t goidc.Token) goidc.ExpiredEntry {
			return goidc.ExpiredEntry{ID: t.Code, ExpiresAtTimestamp: t.ExpiresAtTimestamp, Deletable: t.Deletable}
		}),
	}
}

func (m *TokenManager) Save(_ context.Context, token *goidc.Token) error {
	m.tokens.save(token.Code, *token)
	return nil
}

func (m *TokenManager) Token(_ context.Context, code string) (*goidc.Token, error) {
	token, err := m.tokens.get(code)
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (m *TokenManager) Consume(_ context.Context, code string) (*goidc.Token, error) {
	token, err := m.tokens.consume(code)
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (m *TokenManager) DeleteByLinkedCode(_ context.Context, code string) error {
	m.tokens.deleteWhere(func(t goidc.Token) bool {
		return t.LinkedCode == code
	})
	return nil
}

func (m *TokenManager) Expired(_ context.Context, before, offset, limit int) ([]goidc.ExpiredEntry, error) {
	return m.tokens.expired(before, offset, limit), nil
}

func (m *TokenManager) Delete(_ context.Context, code string) error {
	m.tokens.delete(code)
	return nil
}

func (m *TokenManager) DeleteExpired(_ context.Context, id string, before int) (bool, error) {
	return m.tokens.deleteExpired(id, before), nil
}

// Len returns the number of stored tokens.
func (m *TokenManager) Len() int {
	return m.tokens.len()
}

var _ goidc.TokenManager = NewTokenManager()
