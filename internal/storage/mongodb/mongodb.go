package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collectionClients     = "clients"
	collectionTokens      = "tokens"
	collectionSessions    = "sessions"
	collectionPending     = "pending_authorizations"
	collectionUMAResource = "uma_resources"
	collectionUMATicket   = "uma_tickets"
	collectionUMARPT      = "uma_rpts"
	collectionUMAPCT      = "uma_pcts"
)

// Connect opens a client for uri and checks the deployment is reachable.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	return client, nil
}

// EnsureIndexes creates the indexes the managers query by.
func EnsureIndexes(ctx context.Context, database *mongo.Database) error {
	indexes := map[string][]string{
		collectionClients:     {fieldExpiresAt},
		collectionTokens:      {fieldExpiresAt, "linked_code"},
		collectionSessions:    {fieldExpiresAt},
		collectionPending:     {fieldExpiresAt, "user_code"},
		collectionUMAResource: {fieldExpiresAt, "client_id"},
		collectionUMATicket:   {fieldExpiresAt},
		collectionUMARPT:      {fieldExpiresAt},
		collectionUMAPCT:      {fieldExpiresAt},
	}

	for name, fields := range indexes {
		models := make([]mongo.IndexModel, len(fields))
		for i, field := range fields {
			models[i] = mongo.IndexModel{Keys: bson.D{{Key: field, Value: 1}}}
		}
		if _, err := database.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create the indexes of %s: %w", name, err)
		}
	}
	return nil
}

// Managers groups the managers of every entity family sharing one database.
type Managers struct {
	Client               *ClientManager
	Token                *TokenManager
	Session              *SessionManager
	PendingAuthorization *PendingAuthorizationManager
	UMAResource          *UMAResourceManager
	UMATicket            *UMATicketManager
	UMARPT               *UMARPTManager
	UMAPCT               *UMAPCTManager
}

func NewManagers(database *mongo.Database) Managers {
	return Managers{
		Client:               NewClientManager(database),
		Token:                NewTokenManager(database),
		Session:              NewSessionManager(database),
		PendingAuthorization: NewPendingAuthorizationManager(database),
		UMAResource:          NewUMAResourceManager(database),
		UMATicket:            NewUMATicketManager(database),
		UMARPT:               NewUMARPTManager(database),
		UMAPCT:               NewUMAPCTManager(database),
	}
}
