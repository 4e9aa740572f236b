package redis

import (
	"cmp"
	"context"
	"slices"

	"github.com/luikyv/go-authority/pkg/goidc"
	goredis "github.com/redis/go-redis/v9"
)

type ClientManager struct {
	clients collection[goidc.Client]
}

func NewClientManager(client goredis.UniversalClient, keyPrefix string) *ClientManager {
	return &ClientManager{
		clients: collection[goidc.Client]{
			client: client,
			prefix: keyPrefix,
			family: familyClient,
			id:     func(c *goidc.Client) string { return c.ID },
			entry: func(c *goidc.Client) goidc.ExpiredEntry {
				return goidc.ExpiredEntry{ID: c.ID, ExpiresAtTimestamp: c.ExpiresAtTimestamp, Deletable: c.Deletable}
			},
		},
	}
}

func (m *ClientManager) Save(ctx context.Context, client *goidc.Client) error {
	return m.clients.save(ctx, client)
}

func (m *ClientManager) Client(ctx context.Context, id string) (*goidc.Client, error) {
	return m.clients.get(ctx, id)
}

func (m *ClientManager) Expired(ctx context.Context, before, offset, limit int) ([]goidc.ExpiredEntry, error) {
	return m.clients.expired(ctx, before, offset, limit)
}

func (m *ClientManager) Delete(ctx context.Context, id string) error {
	return m.clients.delete(ctx, id)
}

func (m *ClientManager) DeleteExpired(ctx context.Context, id string, before int) (bool, error) {
	return m.clients.deleteExpired(ctx, id, before)
}

type TokenManager struct {
	tokens collection[goidc.Token]
}

func NewTokenManager(client goredis.UniversalClient, keyPrefix string) *TokenManager {
	m := &TokenManager{}
	m.tokens = collection[goidc.Token]{
		client: client,
		prefix: keyPrefix,
		family: familyToken,
		id:     func(t *goidc.Token) string { return t.Code },
		entry: func(t *goidc.Token) goidc.ExpiredEntry {
			return goidc.ExpiredEntry{ID: t.Code, ExpiresAtTimestamp: t.ExpiresAtTimestamp, Deletable: t.Deletable}
		},
		indexes: func(t *goidc.Token) []string {
			if t.LinkedCode == "" {
				return nil
			}
			return []string{m.linkedKey(t.LinkedCode)}
		},
	}
	return m
}

func (m *TokenManager) linkedKey(code string) string {
	return m.tokens.indexKey("linked", code)
}

func (m *TokenManager) Save(ctx context.Context, token *goidc.Token) error {
	return m.tokens.save(ctx, token)
}

func (m *TokenManager) Token(ctx context.Context, code string) (*goidc.Token, error) {
	return m.tokens.get(ctx, code)
}

func (m *TokenManager) Consume(ctx context.Context, code string) (*goidc.Token, error) {
	return m.tokens.consume(ctx, code)
}

func (m *TokenManager) DeleteByLinkedCode(ctx context.Context, code string) error {
	tokens, err := m.tokens.members(ctx, m.linkedKey(code), func(t *goidc.Token) bool {
		return t.LinkedCode == code
	})
	if err != nil {
		return err
	}

	for _, t := range tokens {
		if err := m.tokens.delete(ctx, t.Code); err != nil {
			return err
		}
	}
	return m.tokens.client.Del(ctx, m.linkedKey(code)).Err()
}

func (m *TokenManager) Expired(ctx context.Context, before, offset, limit int) ([]goidc.ExpiredEntry, error) {
	return m.tokens.expired(ctx, before, offset, limit)
}

func (m *TokenManager) Delete(ctx context.Context, code string) error {
	return m.tokens.delete(ctx, code)
}

func (m *TokenManager) DeleteExpired(ctx context.Context, id string, before int) (bool, error) {
	return m.tokens.deleteExpired(ctx, id, before)
}

type SessionManager struct {
	sessions collection[goidc.Session]
}

func NewSessionManager(client goredis.UniversalClient, keyPrefix string) *SessionManager {
	return &SessionManager{
		sessions: collection[goidc.Session]{
			client: client,
			prefix: keyPrefix,
			family: familySession,
			id:     func(s *goidc.Session) string { return s.ID },
			entry: func(s *goidc.Session) goidc.ExpiredEntry {
				return goidc.ExpiredEntry{ID: s.ID, ExpiresAtTimestamp: s.ExpiresAtTimestamp, Deletable: s.Deletable}
			},
		},
	}
}

// Save replaces the session inside a WATCH transaction, so the check against
// the stored state and the write happen atomically.
func (m *SessionManager) Save(ctx context.Context, session *goidc.Session) error {
	return m.sessions.saveIf(ctx, session, func(current *goidc.Session) error {
		if current != nil && current.IsAuthenticated() && !session.IsAuthenticated() {
			return goidc.ErrSessionStateRegression
		}
		return nil
	})
}

func (m *SessionManager) Session(ctx context.Context, id string) (*goidc.Session, error) {
	return m.sessions.get(ctx, id)
}

func (m *SessionManager) Expired(ctx context.Context, before, offset, limit int) ([]goidc.ExpiredEntry, error) {
	return m.sessions.expired(ctx, before, offset, limit)
}

func (m *SessionManager) Delete(ctx context.Context, id string) error {
	return m.sessions.delete(ctx, id)
}

func (m *SessionManager) DeleteExpired(ctx context.Context, id string, before int) (bool, error) {
	return m.sessions.deleteExpired(ctx, id, before)
}

type PendingAuthorizationManager struct {
	requests collection[goidc.PendingAuthorization]
}

func NewPendingAuthorizationManager(client goredis.UniversalClient, keyPrefix string) *PendingAuthorizationManager {
	m := &PendingAuthorizationManager{}
	m.requests = collection[goidc.PendingAuthorization]{
		client: client,
		prefix: keyPrefix,
		family: familyPending,
		id:     func(a *goidc.PendingAuthorization) string { return a.ID },
		entry: func(a *goidc.PendingAuthorization) goidc.ExpiredEntry {
			return goidc.ExpiredEntry{ID: a.ID, ExpiresAtTimestamp: a.ExpiresAtTimestamp, Deletable: a.Deletable}
		},
		indexes: func(a *goidc.PendingAuthorization) []string {
			if a.UserCode == "" {
				return nil
			}
			return []string{m.userCodeKey(a.UserCode)}
		},
	}
	return m
}

func (m *PendingAuthorizationManager) userCodeKey(userCode string) string {
	return m.requests.indexKey("user_code", userCode)
}

func (m *PendingAuthorizationManager) Save(ctx context.Context, auth *goidc.PendingAuthorization) error {
	return m.requests.save(ctx, auth)
}

func (m *PendingAuthorizationManager) SaveIfStatus(
	ctx context.Context,
	auth *goidc.PendingAuthorization,
	expected goidc.PendingStatus,
) error {
	return m.requests.saveIf(ctx, auth, func(current *goidc.PendingAuthorization) error {
		if current == nil || current.Status != expected {
			return goidc.ErrPendingStatusChanged
		}
		return nil
	})
}

func (m *PendingAuthorizationManager) PendingAuthorization(ctx context.Context, id string) (*goidc.PendingAuthorization, error) {
	return m.requests.get(ctx, id)
}

func (m *PendingAuthorizationManager) PendingAuthorizationByUserCode(
	ctx context.Context,
	userCode string,
) (
	*goidc.PendingAuthorization,
	error,
) {
	if userCode == "" {
		return nil, goidc.ErrNotFound
	}

	requests, err := m.requests.members(ctx, m.userCodeKey(userCode), func(a *goidc.PendingAuthorization) bool {
		return a.UserCode == userCode
	})
	if err != nil {
		return nil, err
	}
	if len(requests) == 0 {
		return nil, goidc.ErrNotFound
	}
	return requests[0], nil
}

func (m *PendingAuthorizationManager) Consume(ctx context.Context, id string) (*goidc.PendingAuthorization, error) {
	return m.requests.consume(ctx, id)
}

func (m *PendingAuthorizationManager) Expired(ctx context.Context, before, offset, limit int) ([]goidc.ExpiredEntry, error) {
	return m.requests.expired(ctx, before, offset, limit)
}

func (m *PendingAuthorizationManager) Delete(ctx context.Context, id string) error {
	return m.requests.delete(ctx, id)
}

func (m *PendingAuthorizationManager) DeleteExpired(ctx context.Context, id string, before int) (bool, error) {
	return m.requests.deleteExpired(ctx, id, before)
}

type UMAResourceManager struct {
	resources collection[goidc.UMAResource]
}

func NewUMAResourceManager(client goredis.UniversalClient, keyPrefix string) *UMAResourceManager {
	m := &UMAResourceManager{}
	m.resources = collection[goidc.UMAResource]{
		client: client,
		prefix: keyPrefix,
		family: familyUMAResource,
		id:     func(r *goidc.UMAResource) string { return r.ID },
		entry: func(r *goidc.UMAResource) goidc.ExpiredEntry {
			return goidc.ExpiredEntry{ID: r.ID, ExpiresAtTimestamp: r.ExpiresAtTimestamp, Deletable: r.Deletable}
		},
		indexes: func(r *goidc.UMAResource) []string {
			return []string{m.clientKey(r.ClientID)}
		},
	}
	return m
}

func (m *UMAResourceManager) clientKey(clientID string) string {
	return m.resources.indexKey("client", clientID)
}

func (m *UMAResourceManager) Save(ctx context.Context, resource *goidc.UMAResource) error {
	return m.resources.save(ctx, resource)
}

func (m *UMAResourceManager) Resource(ctx context.Context, id string) (*goidc.UMAResource, error) {
	return m.resources.get(ctx, id)
}

func (m *UMAResourceManager) ResourcesByClient(ctx context.Context, clientID string) ([]*goidc.UMAResource, error) {
	resources, err := m.resources.members(ctx, m.clientKey(clientID), func(r *goidc.UMAResource) bool {
		return r.ClientID == clientID
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(resources, func(a, b *goidc.UMAResource) int {
		return cmp.Or(cmp.Compare(a.CreatedAtTimestamp, b.CreatedAtTimestamp), cmp.Compare(a.ID, b.ID))
	})
	return resources, nil
}

func (m *UMAResourceManager) Expired(ctx context.Context, before, offset, limit int) ([]goidc.ExpiredEntry, error) {
	return m.resources.expired(ctx, before, offset, limit)
}

func (m *UMAResourceManager) Delete(ctx context.Context, id string) error {
	return m.resources.delete(ctx, id)
}

func (m *UMAResourceManager) DeleteExpired(ctx context.Context, id string, before int) (bool, error) {
	return m.resources.deleteExpired(ctx, id, before)
}

type UMATicketManager struct {
	tickets collection[goidc.UMAPermissionTicket]
}

func NewUMATicketManager(client goredis.UniversalClient, keyPrefix string) *UMATicketManager {
	return &UMATicketManager{
		tickets: collection[goidc.UMAPermissionTicket]{
			client: client,
			prefix: keyPrefix,
			family: familyUMATicket,
			id:     func(t *goidc.UMAPermissionTicket) string { return t.Ticket },
			entry: func(t *goidc.UMAPermissionTicket) goidc.ExpiredEntry {
				return goidc.ExpiredEntry{ID: t.Ticket, ExpiresAtTimestamp: t.ExpiresAtTimestamp, Deletable: t.Deletable}
			},
		},
	}
}

func (m *UMATicketManager) Save(ctx context.Context, ticket *goidc.UMAPermissionTicket) error {
	return m.tickets.save(ctx, ticket)
}

func (m *UMATicketManager) Ticket(ctx context.Context, ticket string) (*goidc.UMAPermissionTicket, error) {
	return m.tickets.get(ctx, ticket)
}

func (m *UMATicketManager) Consume(ctx context.Context, ticket string) (*goidc.UMAPermissionTicket, error) {
	return m.tickets.consume(ctx, ticket)
}

func (m *UMATicketManager) Expired(ctx context.Context, before, offset, limit int) ([]goidc.ExpiredEntry, error) {
	return m.tickets.expired(ctx, before, offset, limit)
}

func (m *UMATicketManager) Delete(ctx context.Context, ticket string) error {
	return m.tickets.delete(ctx, ticket)
}

func (m *UMATicketManager) DeleteExpired(ctx context.Context, id string, before int) (bool, error) {
	return m.tickets.deleteExpired(ctx, id, before)
}

type UMARPTManager struct {
	rpts collection[goidc.UMARPT]
}

func NewUMARPTManager(client goredis.UniversalClient, keyPrefix string) *UMARPTManager {
	return &UMARPTManager{
		rpts: collection[goidc.UMARPT]{
			client: client,
			prefix: keyPrefix,
			family: familyUMARPT,
			id:     func(r *goidc.UMARPT) string { return r.Code },
			entry: func(r *goidc.UMARPT) goidc.ExpiredEntry {
				return goidc.ExpiredEntry{ID: r.Code, ExpiresAtTimestamp: r.ExpiresAtTimestamp, Deletable: r.Deletable}
			},
		},
	}
}

func (m *UMARPTManager) Save(ctx context.Context, rpt *goidc.UMARPT) error {
	return m.rpts.save(ctx, rpt)
}

func (m *UMARPTManager) RPT(ctx context.Context, code string) (*goidc.UMARPT, error) {
	return m.rpts.get(ctx, code)
}

func (m *UMARPTManager) Expired(ctx context.Context, before, offset, limit int) ([]goidc.ExpiredEntry, error) {
	return m.rpts.expired(ctx, before, offset, limit)
}

func (m *UMARPTManager) Delete(ctx context.Context, code string) error {
	return m.rpts.delete(ctx, code)
}

func (m *UMARPTManager) DeleteExpired(ctx context.Context, id string, before int) (bool, error) {
	return m.rpts.deleteExpired(ctx, id, before)
}

type UMAPCTManager struct {
	pcts collection[goidc.UMAPCT]
}

func NewUMAPCTManager(client goredis.UniversalClient, keyPrefix string) *UMAPCTManager {
	return &UMAPCTManager{
		pcts: collection[goidc.UMAPCT]{
			client: client,
			prefix: keyPrefix,
			family: familyUMAPCT,
			id:     func(p *goidc.UMAPCT) string { return p.Code },
			entry: func(p *goidc.UMAPCT) goidc.ExpiredEntry {
				return goidc.ExpiredEntry{ID: p.Code, ExpiresAtTimestamp: p.ExpiresAtTimestamp, Deletable: p.Deletable}
			},
		},
	}
}

func (m *UMAPCTManager) Save(ctx context.Context, pct *goidc.UMAPCT) error {
	return m.pcts.save(ctx, pct)
}

func (m *UMAPCTManager) PCT(ctx context.Context, code string) (*goidc.UMAPCT, error) {
	return m.pcts.get(ctx, code)
}

func (m *UMAPCTManager) Expired(ctx context.Context, before, offset, limit int) ([]goidc.ExpiredEntry, error) {
	return m.pcts.expired(ctx, before, offset, limit)
}

func (m *UMAPCTManager) Delete(ctx context.Context, code string) error {
	return m.pcts.delete(ctx, code)
}

func (m *UMAPCTManager) DeleteExpired(ctx context.Context, id string, before int) (bool, error) {
	return m.pcts.deleteExpired(ctx, id, before)
}

var (
	_ goidc.ClientManager               = (*ClientManager)(nil)
	_ goidc.TokenManager                = (*TokenManager)(nil)
	_ goidc.SessionManager              = (*SessionManager)(nil)
	_ goidc.PendingAuthorizationManager = (*PendingAuthorizationManager)(nil)
	_ goidc.UMAResourceManager          = (*UMAResourceManager)(nil)
	_ goidc.UMATicketManager            = (*UMATicketManager)(nil)
	_ goidc.UMARPTManager               = (*UMARPTManager)(nil)
	_ goidc.UMAPCTManager               = (*UMAPCTManager)(nil)
)
