package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/luikyv/go-authority/pkg/goidc"
	goredis "github.com/redis/go-redis/v9"
)

// collection stores one entity family. Every entity is a JSON record under
// prefix:family:id. Entities that expire are also members of the sorted set
// prefix:family:exp scored by their expiration timestamp. Lookups by other
// attributes go through sets named prefix:family:index:value.
type collection[T any] struct {
	client goredis.UniversalClient
	prefix string
	family string
	id     func(*T) string
	entry  func(*T) goidc.ExpiredEntry
	// indexes returns the index sets the entity is a member of.
	indexes func(*T) []string
}

func (c collection[T]) key(id string) string {
	return c.prefix + c.family + ":" + id
}

func (c collection[T]) expKey() string {
	return c.prefix + c.family + ":exp"
}

func (c collection[T]) indexKey(index, value string) string {
	return c.prefix + c.family + ":" + index + ":" + value
}

func (c collection[T]) save(ctx context.Context, entity *T) error {
	_, err := c.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		return c.write(ctx, pipe, entity)
	})
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", c.family, err)
	}
	return nil
}

// write queues the commands that persist the entity.
func (c collection[T]) write(ctx context.Context, pipe goredis.Pipeliner, entity *T) error {
	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", c.family, err)
	}

	id := c.id(entity)
	pipe.Set(ctx, c.key(id), data, 0)
	if exp := c.entry(entity).ExpiresAtTimestamp; exp != 0 {
		pipe.ZAdd(ctx, c.expKey(), goredis.Z{Score: float64(exp), Member: id})
	} else {
		pipe.ZRem(ctx, c.expKey(), id)
	}
	if c.indexes != nil {
		for _, index := range c.indexes(entity) {
			pipe.SAdd(ctx, index, id)
		}
	}
	return nil
}

func (c collection[T]) get(ctx context.Context, id string) (*T, error) {
	data, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, goidc.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s: %w", c.family, err)
	}

	return c.decode(data)
}

// consume removes the record with GETDEL, so only one caller gets it.
func (c collection[T]) consume(ctx context.Context, id string) (*T, error) {
	data, err := c.client.GetDel(ctx, c.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, goidc.ErrNotFound
		}
		return nil, fmt.Errorf("failed to consume %s: %w", c.family, err)
	}

	entity, err := c.decode(data)
	if err != nil {
		return nil, err
	}
	c.cleanUp(ctx, id, entity)
	return entity, nil
}

// delete is delete-if-exists.
func (c collection[T]) delete(ctx context.Context, id string) error {
	_, err := c.consume(ctx, id)
	if err == nil {
		return nil
	}
	if errors.Is(err, goidc.ErrNotFound) {
		// The record may be gone while the expiration entry is not.
		return c.client.ZRem(ctx, c.expKey(), id).Err()
	}
	return err
}

// watch runs fn in an optimistic transaction on the record of id. current is
// nil when the record doesn't exist. fn is retried when a concurrent write
// touched the record before its transaction executed.
func (c collection[T]) watch(ctx context.Context, id string, fn func(tx *goredis.Tx, current *T) error) error {
	key := c.key(id)
	txf := func(tx *goredis.Tx) error {
		var current *T
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, goredis.Nil):
		case err != nil:
			return fmt.Errorf("failed to get %s: %w", c.family, err)
		default:
			if current, err = c.decode(data); err != nil {
				return err
			}
		}
		return fn(tx, current)
	}

	for range watchRetries {
		err := c.client.Watch(ctx, txf, key)
		if !errors.Is(err, goredis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("failed to update %s %s: too many concurrent updates", c.family, id)
}

// saveIf writes the entity after check accepted the stored one.
func (c collection[T]) saveIf(ctx context.Context, entity *T, check func(current *T) error) error {
	return c.watch(ctx, c.id(entity), func(tx *goredis.Tx, current *T) error {
		if err := check(current); err != nil {
			return err
		}
		_, err := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			return c.write(ctx, pipe, entity)
		})
		return err
	})
}

// deleteExpired removes the record only if, inside the transaction, it is
// still deletable and expired before the timestamp.
func (c collection[T]) deleteExpired(ctx context.Context, id string, before int) (bool, error) {
	var deleted bool
	err := c.watch(ctx, id, func(tx *goredis.Tx, current *T) error {
		deleted = false
		if current == nil {
			// Dangling expiration entry.
			return tx.ZRem(ctx, c.expKey(), id).Err()
		}
		if !goidc.IsSweepable(c.entry(current), before) {
			return nil
		}

		_, err := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Del(ctx, c.key(id))
			pipe.ZRem(ctx, c.expKey(), id)
			if c.indexes != nil {
				for _, index := range c.indexes(current) {
					pipe.SRem(ctx, index, id)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete expired %s: %w", c.family, err)
	}
	return deleted, nil
}

// cleanUp removes the secondary entries of a deleted record. It is best
// effort, index readers skip members whose record is gone.
func (c collection[T]) cleanUp(ctx context.Context, id string, entity *T) {
	_, _ = c.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZRem(ctx, c.expKey(), id)
		if c.indexes != nil && entity != nil {
			for _, index := range c.indexes(entity) {
				pipe.SRem(ctx, index, id)
			}
		}
		return nil
	})
}

// members returns the entities indexed under the set key that still match
// the condition.
func (c collection[T]) members(ctx context.Context, index string, condition func(*T) bool) ([]*T, error) {
	ids, err := c.client.SMembers(ctx, index).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read the %s index: %w", c.family, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	records, err := c.records(ctx, ids)
	if err != nil {
		return nil, err
	}

	entities := make([]*T, 0, len(records))
	for _, entity := range records {
		if entity != nil && condition(entity) {
			entities = append(entities, entity)
		}
	}
	return entities, nil
}

// records loads the records of ids. Missing records are nil.
func (c collection[T]) records(ctx context.Context, ids []string) ([]*T, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.key(id)
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get %s records: %w", c.family, err)
	}

	entities := make([]*T, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		entity, err := c.decode([]byte(s))
		if err != nil {
			return nil, err
		}
		entities[i] = entity
	}
	return entities, nil
}

func (c collection[T]) expired(ctx context.Context, before, offset, limit int) ([]goidc.ExpiredEntry, error) {
	count := int64(limit)
	if limit <= 0 {
		count = -1
	}
	members, err := c.client.ZRangeByScoreWithScores(ctx, c.expKey(), &goredis.ZRangeBy{
		Min:    "-inf",
		Max:    "(" + strconv.Itoa(before),
		Offset: int64(offset),
		Count:  count,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query expired %s: %w", c.family, err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.Member.(string)
	}
	records, err := c.records(ctx, ids)
	if err != nil {
		return nil, err
	}

	entries := make([]goidc.ExpiredEntry, len(members))
	for i, m := range members {
		if records[i] == nil {
			// Dangling expiration entry, deleting it only cleans the index.
			entries[i] = goidc.ExpiredEntry{ID: ids[i], ExpiresAtTimestamp: int(m.Score), Deletable: true}
			continue
		}
		entries[i] = c.entry(records[i])
	}
	return entries, nil
}

func (c collection[T]) decode(data []byte) (*T, error) {
	var entity T
	if err := json.Unmarshal(data, &entity); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", c.family, err)
	}
	return &entity, nil
}
