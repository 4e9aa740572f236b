package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/luikyv/go-authority/internal/jwtutil"
	"github.com/luikyv/go-authority/internal/timeutil"
	"github.com/luikyv/go-authority/pkg/goidc"
)

// Context is the context every operation of the authority runs with. The
// embedded context.Context is the one supplied by the caller, its deadline
// bounds the calls to the managers and to remote JWK Sets.
type Context struct {
	context.Context
	*Configuration
}

func NewContext(ctx context.Context, config *Configuration) Context {
	return Context{
		Context:       ctx,
		Configuration: config,
	}
}

// Now returns the current UTC time of the configured clock.
func (ctx Context) Now() time.Time {
	if ctx.Clock == nil {
		return timeutil.Now()
	}
	return ctx.Clock().UTC()
}

func (ctx Context) TimestampNow() int {
	return timeutil.Timestamp(ctx.Now())
}

func (ctx Context) Issuer() string {
	return ctx.Host
}

func (ctx Context) BaseURL() string {
	return ctx.Host + ctx.EndpointPrefix
}

func (ctx Context) IsGrantTypeEnabled(gt goidc.GrantType) bool {
	return slices.Contains(ctx.GrantTypes, gt)
}

func (ctx Context) UMAPolicy(pc goidc.UMAPolicyContext) ([]string, error) {
	if ctx.UMAPolicyFunc == nil {
		return pc.RequestedScopes, nil
	}
	return ctx.UMAPolicyFunc(ctx, pc)
}

// storeContext returns the context manager calls run with.
func (ctx Context) storeContext() (context.Context, context.CancelFunc) {
	if ctx.StoreTimeout <= 0 {
		return ctx.Context, func() {}
	}
	return context.WithTimeout(ctx.Context, ctx.StoreTimeout)
}

//---------------------------------------- CRUD ----------------------------------------//

func (ctx Context) SaveClient(client *goidc.Client) error {
	storeCtx, cancel := ctx.storeContext()
	defer cancel()

	if err := ctx.ClientManager.Save(storeCtx, client); err != nil {
		return goidc.StoreError("could not save the client", err)
	}
	return nil
}

func (ctx Context) Client(id string) (*goidc.Client, error) {
	for _, staticClient := range ctx.StaticClients {
		if staticClient.ID == id {
			return staticClient, nil
		}
	}

	storeCtx, cancel := ctx.storeContext()
	defer cancel()

	return ctx.ClientManager.Client(storeCtx, id)
}

func (ctx Context) SaveToken(token *goidc.Token) error {
	storeCtx, cancel := ctx.storeContext()
	defer cancel()

	if err := ctx.TokenManager.Save(storeCtx, token); err != nil {
		return goidc.StoreError("could not save the token", err)
	}
	return nil
}

func (ctx Context) Token(code string) (*goidc.Token, error) {
	storeCtx, cancel := ctx.storeContext()
	defer cancel()

	return ctx.TokenManager.Token(storeCtx, code)
}

func (ctx Context) ConsumeToken(code string) (*goidc.Token, error) {
	storeCtx, cancel := ctx.storeContext()
	defer cancel()

	return ctx.TokenManager.Consume(storeCtx, code)
}

func (ctx Context) DeleteToken(code string) error {
	storeCtx, cancel := ctx.storeContext()
	defer cancel()

	return ctx.TokenManager.Delete(storeCtx, code)
}

func (ctx Context) DeleteTokensByLinkedCode(code string) error {
	storeCtx, cancel := ctx.storeContext()
	defer cancel()

	return ctx.TokenManager.DeleteByLinkedCode(storeCtx, code)
}

func (ctx Context) SaveSession(session *goidc.Session) error {
	storeCtx, cancel := ctx.storeContext()
	defer cancel()

	return ctx.SessionManager.Save(storeCtx, session)
}

func (ctx Context) Session(id string) (*goidc.Session, error) {
	storeCtx, cancel := ctx.storeContext()
	defer cancel()

	return ctx.SessionManager.Session(storeCtx, id)
}

func (ctx Context) DeleteSession(id string) error {
	storeCtx, cancel := ctx.storeContext()
	defer cancel()

	return ctx.SessionManager.Delete(storeCtx, id)
}

func (ctx Context) SavePendingAuthorization(auth *goidc.PendingAuthorization) error {
	storeCtx, cancel := ctx.storeContext()
	defer cancel()

	if err := ctx.PendingAuthorizationManager.Save(storeCtx, auth); err != nil {
		return goidc.StoreError("could not save the authorization request", err)
	}
	return nil
}

// SavePendingAuthorizationIfStatus saves the request only if the stored one
// still has the expected status. [goidc.ErrPendingStatusChanged] is returned
// as is so callers can tell a lost race from a store failure.
func (ctx Context) SavePendingAuthorizationIfStatus(
	auth *goidc.PendingAuthorization,
	expected goidc.PendingStatus,
) error {
	storeCtx, cancel := ctx.storeContext()
	defer cancel()

	err := ctx.PendingAuthorizationManager.SaveIfStatus(storeCtx, auth, expected)
	if err != nil && !errors.Is(err, goidc.ErrPendingStatusChanged) {
		return goidc.StoreError("could not save the authorization request", err)
	}
	return err
}

func (ctx Context) PendingAuthorization(id string) (*goidc.PendingAuthorization, error) {
	storeCtx, cancel := ctx.storeContext()
	defer cancel()

	return ctx.PendingAuthorizationManager.PendingAuthorization(storeCtx, id)
}

func (ctx Context) PendingAuthorizationByUserCode(userCode string) (*goidc.PendingAuthorization, error) {
	storeCtx, cancel := ctx.storeContext()
	defer cancel()

	return ctx.PendingAuthorizationManager.PendingAuthorizationByUserCode(storeCtx, userCode)
}

func (ctx Context) ConsumePendingAuthorization(id string) (*goidc.PendingAuthorization, error) {
	storeCtx, cancel := ctx.storeContext()
	defer cancel()

	return ctx.PendingAuthorizationManager.Consume(storeCtx, id)
}

func (ctx Context) SaveUMAResource(resource *goidc.UMAResource) error {
	storeCtx, cancel := ctx.storeContext()
	defer cancel()

	if err := ctx.UMAResourceManager.Save(storeCtx, resource); err != nil {
		return goidc.StoreError("could not save the resource", err)
	}
	return nil
}

func (ctx Context) UMAResource(id string) (*goidc.UMAResource, error) {
	storeCtx, cancel := ctx.storeContext()
	defer cancel()

	return ctx.UMAResourceManager.Resource(storeCtx, id)
}

func (ctx Context) UMAResourcesByClient(clientID string) ([]*goidc.UMAResource, error) {
	storeCtx, cancel := ctx.storeContext()
	defer cancel()

	return ctx.UMAResourceManager.ResourcesByClient(storeCtx, clientID)
}

func (ctx Context) DeleteUMAResource(id string) error {
	storeCtx, cancel := ctx.storeContext()
	defer cancel()

	return ctx.UMAResourceManager.Delete(storeCtx, id)
}

func (ctx Context) SaveUMATicket(ticket *goidc.UMAPermissionTicket) error {
	storeCtx, cancel := ctx.storeContext()
	defer cancel()

	if err := ctx.UMATicketManager.Save(storeCtx, ticket); err != nil {
		return goidc.StoreError("could not save the permission ticket", err)
	}
	return nil
}

func (ctx Context) UMATicket(ticket string) (*goidc.UMAPermissionTicket, error) {
	storeCtx, cancel := ctx.storeContext()
	defer cancel()

	return ctx.UMATicketManager.Ticket(storeCtx, ticket)
}

func (ctx Context) ConsumeUMATicket(ticket string) (*goidc.UMAPermissionTicket, error) {
	storeCtx, cancel := ctx.storeContext()
	defer cancel()

	return ctx.UMATicketManager.Consume(storeCtx, ticket)
}

func (ctx Context) SaveUMARPT(rpt *goidc.UMARPT) error {
	storeCtx, cancel := ctx.storeContext()
	defer cancel()

	if err := ctx.UMARPTManager.Save(storeCtx, rpt); err != nil {
		return goidc.StoreError("could not save the rpt", err)
	}
	return nil
}

func (ctx Context) UMARPT(code string) (*goidc.UMARPT, error) {
	storeCtx, cancel := ctx.storeContext()
	defer cancel()

	return ctx.UMARPTManager.RPT(storeCtx, code)
}

func (ctx Context) DeleteUMARPT(code string) error {
	storeCtx, cancel := ctx.storeContext()
	defer cancel()

	return ctx.UMARPTManager.Delete(storeCtx, code)
}

func (ctx Context) SaveUMAPCT(pct *goidc.UMAPCT) error {
	storeCtx, cancel := ctx.storeContext()
	defer cancel()

	if err := ctx.UMAPCTManager.Save(storeCtx, pct); err != nil {
		return goidc.StoreError("could not save the pct", err)
	}
	return nil
}

func (ctx Context) UMAPCT(code string) (*goidc.UMAPCT, error) {
	storeCtx, cancel := ctx.storeContext()
	defer cancel()

	return ctx.UMAPCTManager.PCT(storeCtx, code)
}

//---------------------------------------- Key Management ----------------------------------------//

// SigningKeyID returns the id of the key to sign with alg. Keys are rotated
// when they get close to expiring.
func (ctx Context) SigningKeyID(alg jose.SignatureAlgorithm) (string, error) {
	if ctx.KeyLifetimeSecs == 0 {
		key, err := ctx.Crypto.SigningKey(alg)
		if err != nil {
			return "", goidc.WrapError(goidc.ErrorCodeInternalError, "no signing key available", err)
		}
		return key.KeyID, nil
	}

	// A key must stay valid for as long as the longest lived token it signs.
	minRemaining := max(ctx.IDTokenLifetimeSecs, ctx.AccessTokenLifetimeSecs, ctx.UMARPTLifetimeSecs)
	key, err := ctx.Crypto.RotateSigningKey(alg, ctx.KeyLifetimeSecs, minRemaining)
	if err != nil {
		return "", goidc.WrapError(goidc.ErrorCodeInternalError, "no signing key available", err)
	}
	return key.KeyID, nil
}

// Sign signs claims with a server key for the default algorithm.
func (ctx Context) Sign(claims jwtutil.Claims, typ string) (string, error) {
	keyID, err := ctx.SigningKeyID(ctx.DefaultSigAlg)
	if err != nil {
		return "", err
	}

	return ctx.Codec.Sign(claims, jwtutil.SignOptions{
		Algorithm: ctx.DefaultSigAlg,
		KeyID:     keyID,
		Type:      typ,
	})
}

// ParseSigned verifies a token signed by a server key and returns its claims.
func (ctx Context) ParseSigned(token string) (jwtutil.Claims, error) {
	claims, _, err := ctx.Codec.ParseSigned(token, jwtutil.VerifyOptions{Algorithms: ctx.SigAlgs})
	return claims, err
}

// ClientJWKS returns the client public keys, either registered by value or
// fetched from the client jwks_uri.
func (ctx Context) ClientJWKS(c *goidc.Client) (*jose.JSONWebKeySet, error) {
	if len(c.PublicJWKS) != 0 {
		var jwks jose.JSONWebKeySet
		if err := json.Unmarshal(c.PublicJWKS, &jwks); err != nil {
			return nil, fmt.Errorf("could not parse the client jwks: %w", err)
		}
		return &jwks, nil
	}

	if c.PublicJWKSURI == "" {
		return nil, errors.New("the client jwks was informed neither by value nor by reference")
	}

	if ctx.JWKSCache == nil {
		return nil, errors.New("fetching client jwks is not enabled")
	}

	return ctx.JWKSCache.Get(ctx, c.PublicJWKSURI)
}
