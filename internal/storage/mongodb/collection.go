package mongodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/luikyv/go-authority/pkg/goidc"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const fieldExpiresAt = "expires_at"

type collection[T any] struct {
	coll *mongo.Collection
	id   func(*T) string
}

func (c collection[T]) save(ctx context.Context, entity *T) error {
	filter := bson.D{{Key: "_id", Value: c.id(entity)}}
	if _, err := c.coll.ReplaceOne(ctx, filter, entity, options.Replace().SetUpsert(true)); err != nil {
		return fmt.Errorf("failed to save into %s: %w", c.coll.Name(), err)
	}
	return nil
}

func (c collection[T]) get(ctx context.Context, id string) (*T, error) {
	return c.findOne(ctx, bson.D{{Key: "_id", Value: id}})
}

func (c collection[T]) findOne(ctx context.Context, filter any) (*T, error) {
	var entity T
	if err := c.coll.FindOne(ctx, filter).Decode(&entity); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, goidc.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find in %s: %w", c.coll.Name(), err)
	}
	return &entity, nil
}

func (c collection[T]) find(ctx context.Context, filter any, opts ...*options.FindOptions) ([]*T, error) {
	cursor, err := c.coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", c.coll.Name(), err)
	}

	var entities []*T
	if err := cursor.All(ctx, &entities); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", c.coll.Name(), err)
	}
	return entities, nil
}

// consume finds and deletes the document in a single command, so only one
// caller gets it.
func (c collection[T]) consume(ctx context.Context, id string) (*T, error) {
	var entity T
	err := c.coll.FindOneAndDelete(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&entity)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, goidc.ErrNotFound
		}
		return nil, fmt.Errorf("failed to consume from %s: %w", c.coll.Name(), err)
	}
	return &entity, nil
}

func (c collection[T]) delete(ctx context.Context, id string) error {
	if _, err := c.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}}); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", c.coll.Name(), err)
	}
	return nil
}

// deleteExpired removes the document only if the filter still finds it
// deletable and expired, so a document renewed after it was listed stays.
func (c collection[T]) deleteExpired(ctx context.Context, id string, before int) (bool, error) {
	filter := bson.D{
		{Key: "_id", Value: id},
		{Key: "deletable", Value: true},
		{Key: fieldExpiresAt, Value: bson.D{
			{Key: "$gt", Value: 0},
			{Key: "$lt", Value: before},
		}},
	}
	res, err := c.coll.DeleteOne(ctx, filter)
	if err != nil {
		return false, fmt.Errorf("failed to delete expired from %s: %w", c.coll.Name(), err)
	}
	return res.DeletedCount == 1, nil
}

func (c collection[T]) deleteMany(ctx context.Context, filter any) error {
	if _, err := c.coll.DeleteMany(ctx, filter); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", c.coll.Name(), err)
	}
	return nil
}

// expiredDocument is the projection the expiration queries read.
type expiredDocument struct {
	ID        string `bson:"_id"`
	ExpiresAt int    `bson:"expires_at"`
	Deletable bool   `bson:"deletable"`
}

func (c collection[T]) expired(ctx context.Context, before, offset, limit int) ([]goidc.ExpiredEntry, error) {
	filter := bson.D{{Key: fieldExpiresAt, Value: bson.D{
		{Key: "$gt", Value: 0},
		{Key: "$lt", Value: before},
	}}}
	opts := options.Find().
		SetSort(bson.D{{Key: fieldExpiresAt, Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(offset)).
		SetProjection(bson.D{{Key: "_id", Value: 1}, {Key: fieldExpiresAt, Value: 1}, {Key: "deletable", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := c.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired %s: %w", c.coll.Name(), err)
	}

	var docs []expiredDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode expired %s: %w", c.coll.Name(), err)
	}

	entries := make([]goidc.ExpiredEntry, len(docs))
	for i, d := range docs {
		entries[i] = goidc.ExpiredEntry{ID: d.ID, ExpiresAtTimestamp: d.ExpiresAt, Deletable: d.Deletable}
	}
	return entries, nil
}
