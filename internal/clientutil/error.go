package clientutil

import "github.com/luikyv/go-authority/pkg/goidc"

var ErrClientNotIdentified = goidc.NewError(goidc.ErrorCodeInvalidClient,
	"could not identify the client")
