// Package discovery publishes the authorization server metadata and the
// public JWK Set.
package discovery

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/luikyv/go-authority/internal/oidc"
)

func HandlerWellKnown(config *oidc.Configuration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := oidc.NewContext(r.Context(), config)
		write(ctx, w, NewDocument(ctx))
	}
}

func HandlerJWKS(config *oidc.Configuration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := oidc.NewContext(r.Context(), config)
		write(ctx, w, JWKS(ctx))
	}
}

func write(ctx oidc.Context, w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		ctx.Logger.Error("could not write the response", slog.String("error", err.Error()))
	}
}
