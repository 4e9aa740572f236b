// Package provider implements a token and credential authority covering
// OAuth 2.0 grants, OpenID Connect ID tokens, browser sessions and user
// managed access.
//
// A new provider is configured with [Option]s and instantiated with [New].
// By default every entity is stored in memory, see [WithStorage] to replace
// it. Expired entities are removed by a sweeper the caller owns through
// [Provider.StartSweeper] and [Provider.StopSweeper].
package provider
