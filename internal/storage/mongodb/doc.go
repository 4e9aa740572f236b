// Package mongodb implements the manager interfaces of [goidc] on top of
// MongoDB. Each entity family lives in its own collection keyed by "_id" and
// the sweeper queries the "expires_at" field, which [EnsureIndexes] indexes.
package mongodb
