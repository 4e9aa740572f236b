package goidc

import "context"

// ExpiredEntry is the projection of a persisted entity the sweeper works on.
type ExpiredEntry struct {
	ID                 string
	ExpiresAtTimestamp int
	Deletable          bool
}

// ExpirationIndex is implemented by every manager whose entities expire.
type ExpirationIndex interface {
	// Expired returns up to limit entities whose expiration timestamp is set
	// and strictly lower than before, ordered by expiration timestamp and
	// then by id. The first offset matches are skipped, which lets callers
	// page past entities they decided to keep. Entities that never expire,
	// i.e. with a zero expiration timestamp, are never returned.
	Expired(ctx context.Context, before, offset, limit int) ([]ExpiredEntry, error)
	// Delete removes the entity if it exists. Deleting an entity that is
	// already gone is not an error.
	Delete(ctx context.Context, id string) error
	// DeleteExpired removes the entity only if, at the moment of the delete,
	// it is deletable and its expiration timestamp is set and strictly lower
	// than before. It reports whether the entity was removed. An entity that
	// is gone, was renewed or was made non deletable is left as is, which is
	// not an error.
	DeleteExpired(ctx context.Context, id string, before int) (bool, error)
}

// IsSweepable reports whether an entity described by e may be removed by a
// sweep that started at before.
func IsSweepable(e ExpiredEntry, before int) bool {
	return e.Deletable && e.ExpiresAtTimestamp != 0 && e.ExpiresAtTimestamp < before
}

// IsExpired reports whether an entity expiring at exp is expired at now.
// A zero exp means the entity never expires.
func IsExpired(exp, now int) bool {
	return exp != 0 && now > exp
}
