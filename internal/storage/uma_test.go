package storage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/luikyv/go-authority/internal/storage"
	"github.com/luikyv/go-authority/pkg/goidc"
)

func TestResourcesByClient(t *testing.T) {
	// Given.
	manager := storage.NewUMAResourceManager()
	_ = manager.Save(context.Background(), &goidc.UMAResource{ID: "r2", ClientID: "rs", CreatedAtTimestamp: 20})
	_ = manager.Save(context.Background(), &goidc.UMAResource{ID: "r1", ClientID: "rs", CreatedAtTimestamp: 10})
	_ = manager.Save(context.Background(), &goidc.UMAResource{ID: "r3", ClientID: "another_rs", CreatedAtTimestamp: 5})

	// When.
	resources, err := manager.ResourcesByClient(context.Background(), "rs")

	// Then.
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var ids []string
	for _, r := range resources {
		ids = append(ids, r.ID)
	}
	if diff := cmp.Diff(ids, []string{"r1", "r2"}); diff != "" {
		t.Error(diff)
	}
}

func TestConsumeUMATicket(t *testing.T) {
	// Given.
	manager := storage.NewUMATicketManager()
	_ = manager.Save(context.Background(), &goidc.UMAPermissionTicket{Ticket: "random_ticket", ResourceID: "r1"})

	// When.
	ticket, err := manager.Consume(context.Background(), "random_ticket")

	// Then.
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ticket.ResourceID != "r1" {
		t.Errorf("ResourceID = %s, want r1", ticket.ResourceID)
	}

	if _, err := manager.Consume(context.Background(), "random_ticket"); !errors.Is(err, goidc.ErrNotFound) {
		t.Errorf("a ticket should be consumed only once, got %v", err)
	}
}

func TestUMARPT_PermissionsAreNotShared(t *testing.T) {
	// Given.
	manager := storage.NewUMARPTManager()
	rpt := &goidc.UMARPT{
		Code:        "random_rpt",
		Permissions: []goidc.UMAPermission{{ResourceID: "r1"}},
	}
	_ = manager.Save(context.Background(), rpt)

	// When.
	rpt.Permissions[0].ResourceID = "r2"

	// Then.
	stored, err := manager.RPT(context.Background(), "random_rpt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stored.Permissions[0].ResourceID != "r1" {
		t.Errorf("ResourceID = %s, want r1", stored.Permissions[0].ResourceID)
	}
}

func TestExpiredPCTs(t *testing.T) {
	// Given.
	manager := storage.NewUMAPCTManager()
	_ = manager.Save(context.Background(), &goidc.UMAPCT{Code: "p1", ExpiresAtTimestamp: 10, Deletable: true})
	_ = manager.Save(context.Background(), &goidc.UMAPCT{Code: "p2", ExpiresAtTimestamp: 20, Deletable: true})
	_ = manager.Save(context.Background(), &goidc.UMAPCT{Code: "p3", ExpiresAtTimestamp: 30, Deletable: true})

	// When.
	entries, err := manager.Expired(context.Background(), 100, 0, 2)

	// Then.
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(entries) != 2 || entries[0].ID != "p1" || entries[1].ID != "p2" {
		t.Errorf("entries = %v, want the two oldest pcts", entries)
	}
}
