package storage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/luikyv/go-authority/internal/storage"
	"github.com/luikyv/go-authority/pkg/goidc"
)

func TestSaveClient(t *testing.T) {
	// Given.
	manager := storage.NewClientManager()
	client := &goidc.Client{
		ID: "random_client_id",
	}

	// When.
	err := manager.Save(context.Background(), client)

	// Then.
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := manager.Client(context.Background(), client.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if diff := cmp.Diff(got, client); diff != "" {
		t.Error(diff)
	}
}

func TestClient_ChangesAreNotShared(t *testing.T) {
	// Given.
	manager := storage.NewClientManager()
	client := &goidc.Client{ID: "random_client_id"}
	_ = manager.Save(context.Background(), client)

	// When.
	client.ExpiresAtTimestamp = 10

	// Then.
	got, _ := manager.Client(context.Background(), client.ID)
	if got.ExpiresAtTimestamp != 0 {
		t.Error("the stored client should not change through the caller's pointer")
	}
}

func TestClient_ClientDoesNotExist(t *testing.T) {
	// Given.
	manager := storage.NewClientManager()

	// When.
	_, err := manager.Client(context.Background(), "random_client_id")

	// Then.
	if !errors.Is(err, goidc.ErrNotFound) {
		t.Errorf("got %v, want %v", err, goidc.ErrNotFound)
	}
}

func TestDeleteClient(t *testing.T) {
	// Given.
	manager := storage.NewClientManager()
	clientID := "random_client_id"
	_ = manager.Save(context.Background(), &goidc.Client{ID: clientID})

	// When.
	err := manager.Delete(context.Background(), clientID)

	// Then.
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := manager.Client(context.Background(), clientID); !errors.Is(err, goidc.ErrNotFound) {
		t.Errorf("the client should be deleted")
	}
}

func TestDeleteClient_ClientDoesNotExist(t *testing.T) {
	// Given.
	manager := storage.NewClientManager()

	// When.
	err := manager.Delete(context.Background(), "random_client_id")

	// Then.
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestExpiredClients(t *testing.T) {
	// Given.
	manager := storage.NewClientManager()
	_ = manager.Save(context.Background(), &goidc.Client{ID: "expired", ExpiresAtTimestamp: 10, Deletable: true})
	_ = manager.Save(context.Background(), &goidc.Client{ID: "static", ExpiresAtTimestamp: 10})
	_ = manager.Save(context.Background(), &goidc.Client{ID: "forever"})
	_ = manager.Save(context.Background(), &goidc.Client{ID: "valid", ExpiresAtTimestamp: 100, Deletable: true})

	// When.
	entries, err := manager.Expired(context.Background(), 50, 0, 10)

	// Then.
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []goidc.ExpiredEntry{
		{ID: "expired", ExpiresAtTimestamp: 10, Deletable: true},
		{ID: "static", ExpiresAtTimestamp: 10},
	}
	if diff := cmp.Diff(entries, want); diff != "" {
		t.Error(diff)
	}
}

func TestDeleteExpiredClient(t *testing.T) {
	testCases := []struct {
		name        string
		client      *goidc.Client
		wantDeleted bool
	}{
		{
			name:        "expired and deletable",
			client:      &goidc.Client{ID: "random_client_id", ExpiresAtTimestamp: 10, Deletable: true},
			wantDeleted: true,
		},
		{
			name:   "not deletable",
			client: &goidc.Client{ID: "random_client_id", ExpiresAtTimestamp: 10},
		},
		{
			name:   "renewed",
			client: &goidc.Client{ID: "random_client_id", ExpiresAtTimestamp: 200, Deletable: true},
		},
		{
			name:   "never expires",
			client: &goidc.Client{ID: "random_client_id", Deletable: true},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			// Given.
			manager := storage.NewClientManager()
			_ = manager.Save(context.Background(), testCase.client)

			// When.
			deleted, err := manager.DeleteExpired(context.Background(), "random_client_id", 100)

			// Then.
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if deleted != testCase.wantDeleted {
				t.Errorf("deleted = %t, want %t", deleted, testCase.wantDeleted)
			}

			_, err = manager.Client(context.Background(), "random_client_id")
			if testCase.wantDeleted != errors.Is(err, goidc.ErrNotFound) {
				t.Errorf("the client should be deleted only when it can be swept, got %v", err)
			}
		})
	}
}

func TestDeleteExpiredClient_ClientDoesNotExist(t *testing.T) {
	// Given.
	manager := storage.NewClientManager()

	// When.
	deleted, err := manager.DeleteExpired(context.Background(), "random_client_id", 100)

	// Then.
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if deleted {
		t.Error("nothing should be deleted")
	}
}
