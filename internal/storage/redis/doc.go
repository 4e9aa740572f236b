// Package redis implements the manager interfaces of [goidc] on top of Redis.
//
// Every instance of the server can share the same Redis deployment. Records
// are plain JSON so they can be inspected with redis-cli, and the sweeper
// finds expired records through one sorted set per entity family instead of
// scanning the key space.
package redis
