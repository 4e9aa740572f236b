package storage_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/luikyv/go-authority/internal/storage"
	"github.com/luikyv/go-authority/pkg/goidc"
)

func TestConsumeToken_OnlyOneConcurrentCallerWins(t *testing.T) {
	// Given.
	manager := storage.NewTokenManager()
	_ = manager.Save(context.Background(), &goidc.Token{
		Code: "random_code",
		Kind: goidc.TokenKindAuthorizationCode,
	})

	// When.
	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := manager.Consume(context.Background(), "random_code"); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	// Then.
	if wins.Load() != 1 {
		t.Errorf("wins = %d, want 1", wins.Load())
	}

	if manager.Len() != 0 {
		t.Errorf("Len() = %d, want 0", manager.Len())
	}
}

func TestToken(t *testing.T) {
	// Given.
	manager := storage.NewTokenManager()
	_ = manager.Save(context.Background(), &goidc.Token{Code: "random_code"})

	// When.
	token, err := manager.Token(context.Background(), "random_code")

	// Then.
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if token.Code != "random_code" {
		t.Errorf("Code = %s, want random_code", token.Code)
	}

	if _, err := manager.Token(context.Background(), "unknown"); !errors.Is(err, goidc.ErrNotFound) {
		t.Errorf("got %v, want %v", err, goidc.ErrNotFound)
	}
}

func TestDeleteTokensByLinkedCode(t *testing.T) {
	// Given.
	manager := storage.NewTokenManager()
	_ = manager.Save(context.Background(), &goidc.Token{Code: "refresh_token"})
	_ = manager.Save(context.Background(), &goidc.Token{Code: "access_token_1", LinkedCode: "refresh_token"})
	_ = manager.Save(context.Background(), &goidc.Token{Code: "access_token_2", LinkedCode: "refresh_token"})
	_ = manager.Save(context.Background(), &goidc.Token{Code: "access_token_3", LinkedCode: "another_refresh_token"})

	// When.
	err := manager.DeleteByLinkedCode(context.Background(), "refresh_token")

	// Then.
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if manager.Len() != 2 {
		t.Errorf("Len() = %d, want 2", manager.Len())
	}

	if _, err := manager.Token(context.Background(), "access_token_3"); err != nil {
		t.Errorf("tokens linked to other codes should be kept: %v", err)
	}
}
