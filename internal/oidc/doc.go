// Package oidc is a complement of the package goidc containing private structs
// and functions that are not meant to be accessible for users of goidc.
// It holds the server configuration and the context every operation runs
// with.
package oidc
