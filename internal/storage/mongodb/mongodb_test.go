package mongodb

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/luikyv/go-authority/pkg/goidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestClientManager(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("found", func(mt *mtest.T) {
		// Given.
		manager := NewClientManager(mt.DB)
		ns := mt.DB.Name() + "." + collectionClients
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "random_client_id"},
			{Key: "expires_at", Value: 10},
			{Key: "deletable", Value: true},
			{Key: "grant_types", Value: bson.A{"client_credentials"}},
		}))

		// When.
		client, err := manager.Client(context.Background(), "random_client_id")

		// Then.
		require.NoError(mt, err)
		want := &goidc.Client{
			ID:                 "random_client_id",
			ExpiresAtTimestamp: 10,
			Deletable:          true,
			ClientMetaInfo: goidc.ClientMetaInfo{
				GrantTypes: []goidc.GrantType{goidc.GrantClientCredentials},
			},
		}
		if diff := cmp.Diff(client, want); diff != "" {
			mt.Error(diff)
		}
	})

	mt.Run("not found", func(mt *mtest.T) {
		// Given.
		manager := NewClientManager(mt.DB)
		ns := mt.DB.Name() + "." + collectionClients
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		// When.
		_, err := manager.Client(context.Background(), "random_client_id")

		// Then.
		assert.ErrorIs(mt, err, goidc.ErrNotFound)
	})

	mt.Run("save", func(mt *mtest.T) {
		// Given.
		manager := NewClientManager(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))

		// When.
		err := manager.Save(context.Background(), &goidc.Client{ID: "random_client_id"})

		// Then.
		require.NoError(mt, err)
	})
}

func TestExpired(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("projection", func(mt *mtest.T) {
		// Given.
		manager := NewTokenManager(mt.DB)
		ns := mt.DB.Name() + "." + collectionTokens
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "t1"}, {Key: "expires_at", Value: 10}, {Key: "deletable", Value: true}},
			bson.D{{Key: "_id", Value: "t2"}, {Key: "expires_at", Value: 20}, {Key: "deletable", Value: false}},
		))

		// When.
		entries, err := manager.Expired(context.Background(), 100, 0, 10)

		// Then.
		require.NoError(mt, err)
		want := []goidc.ExpiredEntry{
			{ID: "t1", ExpiresAtTimestamp: 10, Deletable: true},
			{ID: "t2", ExpiresAtTimestamp: 20},
		}
		if diff := cmp.Diff(entries, want); diff != "" {
			mt.Error(diff)
		}
	})
}

func TestDeleteExpired(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("deleted", func(mt *mtest.T) {
		// Given.
		manager := NewClientManager(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))

		// When.
		deleted, err := manager.DeleteExpired(context.Background(), "random_client_id", 100)

		// Then.
		require.NoError(mt, err)
		assert.True(mt, deleted)
	})

	mt.Run("renewed or not deletable", func(mt *mtest.T) {
		// Given.
		manager := NewClientManager(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))

		// When.
		deleted, err := manager.DeleteExpired(context.Background(), "random_client_id", 100)

		// Then.
		require.NoError(mt, err)
		assert.False(mt, deleted)
	})
}

func TestPendingAuthorizationManager_SaveIfStatus(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("status matches", func(mt *mtest.T) {
		// Given.
		manager := NewPendingAuthorizationManager(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))
		auth := &goidc.PendingAuthorization{ID: "device_code", Status: goidc.PendingStatusApproved}

		// When.
		err := manager.SaveIfStatus(context.Background(), auth, goidc.PendingStatusPending)

		// Then.
		require.NoError(mt, err)
	})

	mt.Run("status changed", func(mt *mtest.T) {
		// Given.
		manager := NewPendingAuthorizationManager(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))
		auth := &goidc.PendingAuthorization{ID: "device_code", Status: goidc.PendingStatusPending}

		// When.
		err := manager.SaveIfStatus(context.Background(), auth, goidc.PendingStatusPending)

		// Then.
		assert.ErrorIs(mt, err, goidc.ErrPendingStatusChanged)
	})
}

func TestTokenManager_Consume(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("consumed", func(mt *mtest.T) {
		// Given.
		manager := NewTokenManager(mt.DB)
		mt.AddMockResponses(bson.D{
			{Key: "ok", Value: 1},
			{Key: "value", Value: bson.D{{Key: "_id", Value: "random_code"}, {Key: "kind", Value: "authorization_code"}}},
		})

		// When.
		token, err := manager.Consume(context.Background(), "random_code")

		// Then.
		require.NoError(mt, err)
		assert.Equal(mt, goidc.TokenKindAuthorizationCode, token.Kind)
	})

	mt.Run("already consumed", func(mt *mtest.T) {
		// Given.
		manager := NewTokenManager(mt.DB)
		mt.AddMockResponses(bson.D{{Key: "ok", Value: 1}, {Key: "value", Value: nil}})

		// When.
		_, err := manager.Consume(context.Background(), "random_code")

		// Then.
		assert.ErrorIs(mt, err, goidc.ErrNotFound)
	})
}

func TestSessionManager_Save(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("state regression", func(mt *mtest.T) {
		// Given.
		manager := NewSessionManager(mt.DB)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "duplicate key error",
		}))

		// When.
		err := manager.Save(context.Background(), &goidc.Session{ID: "s1", State: goidc.SessionStateUnauthenticated})

		// Then.
		assert.ErrorIs(mt, err, goidc.ErrSessionStateRegression)
	})

	mt.Run("authenticate", func(mt *mtest.T) {
		// Given.
		manager := NewSessionManager(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))

		// When.
		err := manager.Save(context.Background(), &goidc.Session{ID: "s1", State: goidc.SessionStateAuthenticated})

		// Then.
		require.NoError(mt, err)
	})
}
