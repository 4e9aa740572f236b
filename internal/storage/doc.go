// Package storage provides the default implementations of the manager
// interfaces declared in [goidc], e.g. [goidc.TokenManager] and
// [goidc.SessionManager].
//
// The implementations in this package keep entities in memory so when the
// server restarts all of them are lost. Entities are copied on the way in and
// on the way out, so callers never share state with the store.
//
// The subpackages redis and mongodb persist the same entities remotely.
package storage
