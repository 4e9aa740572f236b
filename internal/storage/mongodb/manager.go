package mongodb

import (
	"context"
	"fmt"

	"github.com/luikyv/go-authority/pkg/goidc"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ClientManager struct {
	clients collection[goidc.Client]
}

func NewClientManager(database *mongo.Database) *ClientManager {
	return &ClientManager{
		clients: collection[goidc.Client]{
			coll: database.Collection(collectionClients),
			id:   func(c *goidc.Client) string { return c.ID },
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

func NewTokenManager(database *mongo.Database) *TokenManager {
	return &TokenManager{
		tokens: collection[goidc.Token]{
			coll: database.Collection(collectionTokens),
			id:   func(t *goidc.Token) string { return t.Code },
		},
	}
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
	return m.tokens.deleteMany(ctx, bson.D{{Key: "linked_code", Value: code}})
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

func NewSessionManager(database *mongo.Database) *SessionManager {
	return &SessionManager{
		sessions: collection[goidc.Session]{
			coll: database.Collection(collectionSessions),
			id:   func(s *goidc.Session) string { return s.ID },
		},
	}
}

// Save upserts the session. An unauthenticated session only replaces
// documents that are not authenticated, when the stored one is, the filter
// misses and the upsert collides with the existing "_id".
func (m *SessionManager) Save(ctx context.Context, session *goidc.Session) error {
	if session.IsAuthenticated() {
		return m.sessions.save(ctx, session)
	}

	filter := bson.D{
		{Key: "_id", Value: session.ID},
		{Key: "state", Value: bson.D{{Key: "$ne", Value: goidc.SessionStateAuthenticated}}},
	}
	_, err := m.sessions.coll.ReplaceOne(ctx, filter, session, options.Replace().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return goidc.ErrSessionStateRegression
	}
	if err != nil {
		return fmt.Errorf("failed to save the session: %w", err)
	}
	return nil
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

func NewPendingAuthorizationManager(database *mongo.Database) *PendingAuthorizationManager {
	return &PendingAuthorizationManager{
		requests: collection[goidc.PendingAuthorization]{
			coll: database.Collection(collectionPending),
			id:   func(a *goidc.PendingAuthorization) string { return a.ID },
		},
	}
}

func (m *PendingAuthorizationManager) Save(ctx context.Context, auth *goidc.PendingAuthorization) error {
	return m.requests.save(ctx, auth)
}

// SaveIfStatus replaces the request only while its stored status is
// expected.
func (m *PendingAuthorizationManager) SaveIfStatus(
	ctx context.Context,
	auth *goidc.PendingAuthorization,
	expected goidc.PendingStatus,
) error {
	filter := bson.D{
		{Key: "_id", Value: auth.ID},
		{Key: "status", Value: expected},
	}
	res, err := m.requests.coll.ReplaceOne(ctx, filter, auth)
	if err != nil {
		return fmt.Errorf("failed to save the authorization request: %w", err)
	}
	if res.MatchedCount == 0 {
		return goidc.ErrPendingStatusChanged
	}
	return nil
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
	return m.requests.findOne(ctx, bson.D{{Key: "user_code", Value: userCode}})
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

func NewUMAResourceManager(database *mongo.Database) *UMAResourceManager {
	return &UMAResourceManager{
		resources: collection[goidc.UMAResource]{
			coll: database.Collection(collectionUMAResource),
			id:   func(r *goidc.UMAResource) string { return r.ID },
		},
	}
}

func (m *UMAResourceManager) Save(ctx context.Context, resource *goidc.UMAResource) error {
	return m.resources.save(ctx, resource)
}

func (m *UMAResourceManager) Resource(ctx context.Context, id string) (*goidc.UMAResource, error) {
	return m.resources.get(ctx, id)
}

func (m *UMAResourceManager) ResourcesByClient(ctx context.Context, clientID string) ([]*goidc.UMAResource, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	return m.resources.find(ctx, bson.D{{Key: "client_id", Value: clientID}}, opts)
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

func NewUMATicketManager(database *mongo.Database) *UMATicketManager {
	return &UMATicketManager{
		tickets: collection[goidc.UMAPermissionTicket]{
			coll: database.Collection(collectionUMATicket),
			id:   func(t *goidc.UMAPermissionTicket) string { return t.Ticket },
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

func NewUMARPTManager(database *mongo.Database) *UMARPTManager {
	return &UMARPTManager{
		rpts: collection[goidc.UMARPT]{
			coll: database.Collection(collectionUMARPT),
			id:   func(r *goidc.UMARPT) string { return r.Code },
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

func NewUMAPCTManager(database *mongo.Database) *UMAPCTManager {
	return &UMAPCTManager{
		pcts: collection[goidc.UMAPCT]{
			coll: database.Collection(collectionUMAPCT),
			id:   func(p *goidc.UMAPCT) string { return p.Code },
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
