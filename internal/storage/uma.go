package storage

import (
	"cmp"
	"context"
	"slices"

	"github.com/luikyv/go-authority/pkg/goidc"
)

type UMAResourceManager struct {
	resources *store[goidc.UMAResource]
}

func NewUMAResourceManager() *UMAResourceManager {
	return &UMAResourceManager{
		resources: newStore(func(r goidc.UMAResource) goidc.ExpiredEntry {
			return goidc.ExpiredEntry{ID: r.ID, ExpiresAtTimestamp: r.ExpiresAtTimestamp, Deletable: r.Deletable}
		}),
	}
}

func (m *UMAResourceManager) Save(_ context.Context, resource *goidc.UMAResource) error {
	r := *resource
	r.Scopes = slices.Clone(resource.Scopes)
	m.resources.save(r.ID, r)
	return nil
}

func (m *UMAResourceManager) Resource(_ context.Context, id string) (*goidc.UMAResource, error) {
	resource, err := m.resources.get(id)
	if err != nil {
		return nil, err
	}
	return &resource, nil
}

// ResourcesByClient returns the resources registered by the client, oldest
// first.
func (m *UMAResourceManager) ResourcesByClient(_ context.Context, clientID string) ([]*goidc.UMAResource, error) {
	resources := m.resources.filter(func(r goidc.UMAResource) bool {
		return r.ClientID == clientID
	})
	slices.SortFunc(resources, func(a, b goidc.UMAResource) int {
		return cmp.Or(cmp.Compare(a.CreatedAtTimestamp, b.CreatedAtTimestamp), cmp.Compare(a.ID, b.ID))
	})

	result := make([]*goidc.UMAResource, len(resources))
	for i := range resources {
		result[i] = &resources[i]
	}
	return result, nil
}

func (m *UMAResourceManager) Expired(_ context.Context, before, offset, limit int) ([]goidc.ExpiredEntry, error) {
	return m.resources.expired(before, offset, limit), nil
}

func (m *UMAResourceManager) Delete(_ context.Context, id string) error {
	m.resources.delete(id)
	return nil
}

func (m *UMAResourceManager) DeleteExpired(_ context.Context, id string, before int) (bool, error) {
	return m.resources.deleteExpired(id, before), nil
}

type UMATicketManager struct {
	tickets *store[goidc.UMAPermissionTicket]
}

func NewUMATicketManager() *UMATicketManager {
	return &UMATicketManager{
		tickets: newStore(func(t goidc.UMAPermissionTicket) goidc.ExpiredEntry {
			return goidc.ExpiredEntry{ID: t.Ticket, ExpiresAtTimestamp: t.ExpiresAtTimestamp, Deletable: t.Deletable}
		}),
	}
}

func (m *UMATicketManager) Save(_ context.Context, ticket *goidc.UMAPermissionTicket) error {
	m.tickets.save(ticket.Ticket, *ticket)
	return nil
}

func (m *UMATicketManager) Ticket(_ context.Context, ticket string) (*goidc.UMAPermissionTicket, error) {
	t, err := m.tickets.get(ticket)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (m *UMATicketManager) Consume(_ context.Context, ticket string) (*goidc.UMAPermissionTicket, error) {
	t, err := m.tickets.consume(ticket)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (m *UMATicketManager) Expired(_ context.Context, before, offset, limit int) ([]goidc.ExpiredEntry, error) {
	return m.tickets.expired(before, offset, limit), nil
}

func (m *UMATicketManager) Delete(_ context.Context, ticket string) error {
	m.tickets.delete(ticket)
	return nil
}

func (m *UMATicketManager) DeleteExpired(_ context.Context, id string, before int) (bool, error) {
	return m.tickets.deleteExpired(id, before), nil
}

type UMARPTManager struct {
	rpts *store[goidc.UMARPT]
}

func NewUMARPTManager() *UMARPTManager {
	return &UMARPTManager{
		rpts: newStore(func(r goidc.UMARPT) goidc.ExpiredEntry {
			return goidc.ExpiredEntry{ID: r.Code, ExpiresAtTimestamp: r.ExpiresAtTimestamp, Deletable: r.Deletable}
		}),
	}
}

func (m *UMARPTManager) Save(_ context.Context, rpt *goidc.UMARPT) error {
	r := *rpt
	r.Permissions = slices.Clone(rpt.Permissions)
	m.rpts.save(r.Code, r)
	return nil
}

func (m *UMARPTManager) RPT(_ context.Context, code string) (*goidc.UMARPT, error) {
	rpt, err := m.rpts.get(code)
	if err != nil {
		return nil, err
	}
	rpt.Permissions = slices.Clone(rpt.Permissions)
	return &rpt, nil
}

func (m *UMARPTManager) Expired(_ context.Context, before, offset, limit int) ([]goidc.ExpiredEntry, error) {
	return m.rpts.expired(before, offset, limit), nil
}

func (m *UMARPTManager) Delete(_ context.Context, code string) error {
	m.rpts.delete(code)
	return nil
}

func (m *UMARPTManager) DeleteExpired(_ context.Context, id string, before int) (bool, error) {
	return m.rpts.deleteExpired(id, before), nil
}

type UMAPCTManager struct {
	pcts *store[goidc.UMAPCT]
}

func NewUMAPCTManager() *UMAPCTManager {
	return &UMAPCTManager{
		pcts: newStore(func(p goidc.UMAPCT) goidc.ExpiredEntry {
			return goidc.ExpiredEntry{ID: p.Code, ExpiresAtTimestamp: p.ExpiresAtTimestamp, Deletable: p.Deletable}
		}),
	}
}

func (m *UMAPCTManager) Save(_ context.Context, pct *goidc.UMAPCT) error {
	m.pcts.save(pct.Code, *pct)
	return nil
}

func (m *UMAPCTManager) PCT(_ context.Context, code string) (*goidc.UMAPCT, error) {
	pct, err := m.pcts.get(code)
	if err != nil {
		return nil, err
	}
	return &pct, nil
}

func (m *UMAPCTManager) Expired(_ context.Context, before, offset, limit int) ([]goidc.ExpiredEntry, error) {
	return m.pcts.expired(before, offset, limit), nil
}

func (m *UMAPCTManager) Delete(_ context.Context, code string) error {
	m.pcts.delete(code)
	return nil
}

func (m *UMAPCTManager) DeleteExpired(_ context.Context, id string, before int) (bool, error) {
	return m.pcts.deleteExpired(id, before), nil
}

var (
	_ goidc.UMAResourceManager = NewUMAResourceManager()
	_ goidc.UMATicketManager   = NewUMATicketManager()
	_ goidc.UMARPTManager      = NewUMARPTManager()
	_ goidc.UMAPCTManager      = NewUMAPCTManager()
)
