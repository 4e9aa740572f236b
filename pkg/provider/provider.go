package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"slices"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/luikyv/go-authority/internal/clientutil"
	"github.com/luikyv/go-authority/internal/discovery"
	"github.com/luikyv/go-authority/internal/joseutil"
	"github.com/luikyv/go-authority/internal/jwkscache"
	"github.com/luikyv/go-authority/internal/jwtutil"
	"github.com/luikyv/go-authority/internal/oidc"
	"github.com/luikyv/go-authority/internal/session"
	"github.com/luikyv/go-authority/internal/storage"
	"github.com/luikyv/go-authority/internal/sweeper"
	"github.com/luikyv/go-authority/internal/timeutil"
	"github.com/luikyv/go-authority/internal/token"
	"github.com/luikyv/go-authority/internal/uma"
	"github.com/luikyv/go-authority/pkg/goidc"
)

type (
	Credentials           = clientutil.Credentials
	TokenRequest          = token.Request
	AuthorizationRequest  = token.AuthorizationRequest
	AuthorizationResponse = token.AuthorizationResponse
	CIBARequest           = token.CIBARequest
	UMATicketRequest      = uma.TicketRequest
	UMAResource           = uma.Resource
	UMAPermissionRequest  = uma.PermissionRequest
	SweepReport           = sweeper.Report
	DiscoveryDocument     = discovery.Document
)

type Provider struct {
	config  *oidc.Configuration
	sweeper *sweeper.Sweeper

	keys              joseutil.KeyStore
	importedKeys      []jose.JSONWebKey
	httpClient        *http.Client
	jwksCacheTTL      time.Duration
	implicitIsEnabled bool
	keyLifetimeIsSet  bool
	storeTimeoutIsSet bool
}

// New creates a token authority for issuer.
// By default every entity is kept in memory and an RS256 key is generated
// on start up. A client secret key must always be informed, see
// [WithClientSecretKey].
func New(issuer string, opts ...Option) (*Provider, error) {
	p := &Provider{
		config: &oidc.Configuration{
			Host: issuer,
		},
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	if err := p.setDefaults(); err != nil {
		return nil, err
	}

	if err := validate(p.config); err != nil {
		return nil, err
	}

	p.sweeper = sweeper.New(
		p.families(),
		sweeper.WithInterval(time.Duration(p.config.SweeperIntervalSecs)*time.Second),
		sweeper.WithBatchSize(p.config.SweeperBatchSize),
		sweeper.WithClock(p.config.Clock),
		sweeper.WithLogger(p.config.Logger),
		sweeper.WithMetrics(p.config.Metrics),
	)
	return p, nil
}

func (p *Provider) setDefaults() error {
	c := p.config

	c.Clock = nonNilOrDefault(c.Clock, timeutil.Clock(timeutil.Now))
	c.Logger = nonNilOrDefault(c.Logger, slog.Default())
	if !p.storeTimeoutIsSet {
		c.StoreTimeout = defaultStoreTimeout
	}

	c.ClientManager = nonNilOrDefault(c.ClientManager, goidc.ClientManager(storage.NewClientManager()))
	c.TokenManager = nonNilOrDefault(c.TokenManager, goidc.TokenManager(storage.NewTokenManager()))
	c.SessionManager = nonNilOrDefault(c.SessionManager, goidc.SessionManager(storage.NewSessionManager()))
	c.PendingAuthorizationManager = nonNilOrDefault(
		c.PendingAuthorizationManager,
		goidc.PendingAuthorizationManager(storage.NewPendingAuthorizationManager()),
	)
	c.UMAResourceManager = nonNilOrDefault(c.UMAResourceManager, goidc.UMAResourceManager(storage.NewUMAResourceManager()))
	c.UMATicketManager = nonNilOrDefault(c.UMATicketManager, goidc.UMATicketManager(storage.NewUMATicketManager()))
	c.UMARPTManager = nonNilOrDefault(c.UMARPTManager, goidc.UMARPTManager(storage.NewUMARPTManager()))
	c.UMAPCTManager = nonNilOrDefault(c.UMAPCTManager, goidc.UMAPCTManager(storage.NewUMAPCTManager()))

	c.Scopes = nonNilOrDefault(c.Scopes, defaultScopes)
	c.GrantTypes = nonNilOrDefault(c.GrantTypes, defaultGrantTypes)
	if slices.Contains(c.GrantTypes, goidc.GrantUMATicket) {
		c.Scopes = appendIfNotIn(slices.Clone(c.Scopes), goidc.ScopeUMAProtection)
	}
	c.ResponseTypes = nonNilOrDefault(c.ResponseTypes, defaultResponseTypes)
	if p.implicitIsEnabled {
		c.ResponseTypes = []goidc.ResponseType{
			goidc.ResponseTypeCode,
			goidc.ResponseTypeIDToken,
			goidc.ResponseTypeToken,
			goidc.ResponseTypeCodeAndIDToken,
			goidc.ResponseTypeCodeAndToken,
			goidc.ResponseTypeIDTokenAndToken,
			goidc.ResponseTypeCodeAndIDTokenAndToken,
		}
	}
	c.SubIdentifierTypes = nonNilOrDefault(
		c.SubIdentifierTypes,
		[]goidc.SubjectIdentifierType{goidc.SubjectIdentifierPublic},
	)
	c.ClientAuthnMethods = nonNilOrDefault(c.ClientAuthnMethods, defaultAuthnMethods)
	c.PKCEChallengeMethods = nonNilOrDefault(
		c.PKCEChallengeMethods,
		[]goidc.CodeChallengeMethod{goidc.CodeChallengeMethodSHA256},
	)
	c.AccessTokenFormat = nonZeroOrDefault(c.AccessTokenFormat, goidc.TokenFormatOpaque)
	c.UMARPTFormat = nonZeroOrDefault(c.UMARPTFormat, goidc.TokenFormatOpaque)
	if c.IDTokenEncIsEnabled {
		c.IDTokenContentEncAlgs = nonNilOrDefault(
			c.IDTokenContentEncAlgs,
			[]jose.ContentEncryption{defaultIDTokenContentEncAlg},
		)
		c.IDTokenDefaultContentEncAlg = nonZeroOrDefault(c.IDTokenDefaultContentEncAlg, defaultIDTokenContentEncAlg)
	}

	c.AuthorizationCodeLifetimeSecs = nonZeroOrDefault(c.AuthorizationCodeLifetimeSecs, defaultAuthorizationCodeLifetimeSecs)
	c.AccessTokenLifetimeSecs = nonZeroOrDefault(c.AccessTokenLifetimeSecs, defaultAccessTokenLifetimeSecs)
	c.RefreshTokenLifetimeSecs = nonZeroOrDefault(c.RefreshTokenLifetimeSecs, defaultRefreshTokenLifetimeSecs)
	c.IDTokenLifetimeSecs = nonZeroOrDefault(c.IDTokenLifetimeSecs, defaultIDTokenLifetimeSecs)
	c.ClientAssertionLifetimeSecs = nonZeroOrDefault(c.ClientAssertionLifetimeSecs, defaultClientAssertionLifetimeSecs)
	c.DeviceCodeLifetimeSecs = nonZeroOrDefault(c.DeviceCodeLifetimeSecs, defaultDeviceCodeLifetimeSecs)
	c.DevicePollIntervalSecs = nonZeroOrDefault(c.DevicePollIntervalSecs, defaultDevicePollIntervalSecs)
	c.CIBALifetimeSecs = nonZeroOrDefault(c.CIBALifetimeSecs, defaultCIBALifetimeSecs)
	c.CIBAPollIntervalSecs = nonZeroOrDefault(c.CIBAPollIntervalSecs, defaultCIBAPollIntervalSecs)
	c.SessionIdleLifetimeSecs = nonZeroOrDefault(c.SessionIdleLifetimeSecs, defaultSessionIdleLifetimeSecs)
	c.SessionMaxLifetimeSecs = nonZeroOrDefault(c.SessionMaxLifetimeSecs, defaultSessionMaxLifetimeSecs)
	c.UnauthenticatedSessionSecs = nonZeroOrDefault(c.UnauthenticatedSessionSecs, defaultUnauthenticatedSessionSecs)
	c.UMATicketLifetimeSecs = nonZeroOrDefault(c.UMATicketLifetimeSecs, defaultUMATicketLifetimeSecs)
	c.UMARPTLifetimeSecs = nonZeroOrDefault(c.UMARPTLifetimeSecs, defaultUMARPTLifetimeSecs)
	c.UMAPCTLifetimeSecs = nonZeroOrDefault(c.UMAPCTLifetimeSecs, defaultUMAPCTLifetimeSecs)
	if !p.keyLifetimeIsSet {
		c.KeyLifetimeSecs = defaultKeyLifetimeSecs
	}

	c.SweeperIntervalSecs = nonZeroOrDefault(c.SweeperIntervalSecs, defaultSweeperIntervalSecs)
	c.SweeperBatchSize = nonZeroOrDefault(c.SweeperBatchSize, defaultSweeperBatchSize)

	c.EndpointWellKnown = nonZeroOrDefault(c.EndpointWellKnown, defaultEndpointWellKnown)
	c.EndpointJWKS = nonZeroOrDefault(c.EndpointJWKS, defaultEndpointJSONWebKeySet)
	c.EndpointAuthorize = nonZeroOrDefault(c.EndpointAuthorize, defaultEndpointAuthorize)
	c.EndpointToken = nonZeroOrDefault(c.EndpointToken, defaultEndpointToken)
	c.EndpointIntrospection = nonZeroOrDefault(c.EndpointIntrospection, defaultEndpointTokenIntrospection)
	c.EndpointTokenRevocation = nonZeroOrDefault(c.EndpointTokenRevocation, defaultEndpointTokenRevocation)
	c.EndpointDeviceAuthorization = nonZeroOrDefault(c.EndpointDeviceAuthorization, defaultEndpointDeviceAuthorization)
	c.EndpointCIBA = nonZeroOrDefault(c.EndpointCIBA, defaultEndpointCIBA)
	c.EndpointUMAResource = nonZeroOrDefault(c.EndpointUMAResource, defaultEndpointUMAResource)
	c.EndpointUMAPermission = nonZeroOrDefault(c.EndpointUMAPermission, defaultEndpointUMAPermission)
	c.DeviceVerificationURI = nonZeroOrDefault(
		c.DeviceVerificationURI,
		c.Host+c.EndpointPrefix+defaultEndpointDeviceVerification,
	)

	var fetchOpts []jwkscache.Option
	if p.jwksCacheTTL != 0 {
		fetchOpts = append(fetchOpts, jwkscache.WithTTL(p.jwksCacheTTL))
	}
	fetchOpts = append(fetchOpts,
		jwkscache.WithClock(c.Clock),
		jwkscache.WithLogger(c.Logger),
		jwkscache.WithMetrics(c.Metrics),
	)
	c.JWKSCache = jwkscache.New(jwkscache.HTTPFetcher(p.httpClient), fetchOpts...)

	return p.setKeys()
}

// setKeys builds the crypto provider and makes sure there's a key for the
// default signature algorithm.
func (p *Provider) setKeys() error {
	c := p.config
	c.DefaultSigAlg = nonZeroOrDefault(c.DefaultSigAlg, defaultSigAlg)
	c.SigAlgs = nonNilOrDefault(c.SigAlgs, []jose.SignatureAlgorithm{c.DefaultSigAlg})

	c.Crypto = joseutil.NewProvider(p.keys, c.Clock)
	c.Codec = jwtutil.NewCodec(c.Crypto)
	for _, jwk := range p.importedKeys {
		if _, err := c.Crypto.ImportKey(jwk, 0); err != nil {
			return fmt.Errorf("could not import the key %s: %w", jwk.KeyID, err)
		}
	}

	if _, err := c.Crypto.SigningKey(c.DefaultSigAlg); err == nil {
		return nil
	}

	expiresAt := 0
	if c.KeyLifetimeSecs != 0 {
		expiresAt = timeutil.Timestamp(c.Clock()) + c.KeyLifetimeSecs
	}
	key, err := c.Crypto.GenerateKey(string(c.DefaultSigAlg), expiresAt)
	if err != nil {
		return fmt.Errorf("could not generate the default signing key: %w", err)
	}
	c.Logger.Info("generated a signing key", slog.String("kid", key.KeyID), slog.String("alg", key.Algorithm))
	return nil
}

func (p *Provider) families() []sweeper.Family {
	c := p.config
	return []sweeper.Family{
		{Name: "client", Index: c.ClientManager},
		{Name: "token", Index: c.TokenManager},
		{Name: "session", Index: c.SessionManager},
		{Name: "pending_authorization", Index: c.PendingAuthorizationManager},
		{Name: "uma_resource", Index: c.UMAResourceManager},
		{Name: "uma_ticket", Index: c.UMATicketManager},
		{Name: "uma_rpt", Index: c.UMARPTManager},
		{Name: "uma_pct", Index: c.UMAPCTManager},
		{Name: "key", Index: c.Crypto.KeyIndex()},
	}
}

func (p *Provider) context(ctx context.Context) oidc.Context {
	return oidc.NewContext(ctx, p.config)
}

// Handler serves the metadata document and the public JWK Set.
//
//	server := http.NewServeMux()
//	server.Handle("/", op.Handler())
func (p *Provider) Handler() http.Handler {
	mux := http.NewServeMux()
	prefix := p.config.EndpointPrefix
	mux.HandleFunc("GET "+prefix+p.config.EndpointWellKnown, discovery.HandlerWellKnown(p.config))
	mux.HandleFunc("GET "+prefix+p.config.EndpointJWKS, discovery.HandlerJWKS(p.config))
	return newLoggingMiddleware(mux, p.config.Logger)
}

//---------------------------------------- Tokens ----------------------------------------//

// Token handles a token request for every grant type but the UMA one, see
// [Provider.UMAToken].
func (p *Provider) Token(ctx context.Context, req TokenRequest) (goidc.TokenResponse, error) {
	return token.Generate(p.context(ctx), req)
}

// Authorize issues the artifacts of an authorization request the user
// already consented to.
func (p *Provider) Authorize(ctx context.Context, req AuthorizationRequest) (AuthorizationResponse, error) {
	return token.Authorize(p.context(ctx), req)
}

func (p *Provider) InitDeviceAuthorization(
	ctx context.Context,
	creds Credentials,
	scopes string,
) (
	goidc.DeviceAuthorizationResponse,
	error,
) {
	return token.InitDeviceAuthorization(p.context(ctx), creds, scopes)
}

func (p *Provider) ApproveDevice(ctx context.Context, userCode, subject string) error {
	return token.ApproveDevice(p.context(ctx), userCode, subject)
}

func (p *Provider) DenyDevice(ctx context.Context, userCode string) error {
	return token.DenyDevice(p.context(ctx), userCode)
}

func (p *Provider) InitCIBA(ctx context.Context, req CIBARequest) (goidc.CIBAResponse, error) {
	return token.InitCIBA(p.context(ctx), req)
}

func (p *Provider) ApproveCIBA(ctx context.Context, authReqID string) error {
	return token.ApproveCIBA(p.context(ctx), authReqID)
}

func (p *Provider) DenyCIBA(ctx context.Context, authReqID string) error {
	return token.DenyCIBA(p.context(ctx), authReqID)
}

func (p *Provider) Introspect(
	ctx context.Context,
	creds Credentials,
	tkn string,
	hint goidc.TokenTypeHint,
) (
	goidc.TokenInfo,
	error,
) {
	return token.Introspect(p.context(ctx), creds, tkn, hint)
}

func (p *Provider) Revoke(ctx context.Context, creds Credentials, tkn string, hint goidc.TokenTypeHint) error {
	return token.Revoke(p.context(ctx), creds, tkn, hint)
}

// TokenInfo reports whether a bearer token presented to a resource server
// is active. The caller is trusted, no client authentication happens.
func (p *Provider) TokenInfo(ctx context.Context, tkn string) (goidc.TokenInfo, error) {
	return token.IntrospectToken(p.context(ctx), tkn, "")
}

//---------------------------------------- Clients ----------------------------------------//

// RegisterClient creates a client and returns it together with its plain
// secret. Public clients get no secret.
func (p *Provider) RegisterClient(ctx context.Context, meta goidc.ClientMetaInfo) (*goidc.Client, string, error) {
	return clientutil.Register(p.context(ctx), meta)
}

func (p *Provider) UpdateClient(ctx context.Context, id string, meta goidc.ClientMetaInfo) (*goidc.Client, error) {
	return clientutil.Update(p.context(ctx), id, meta)
}

func (p *Provider) RotateClientSecret(ctx context.Context, id string) (string, error) {
	return clientutil.RotateSecret(p.context(ctx), id)
}

// Client is a shortcut to fetch clients, static ones included.
func (p *Provider) Client(ctx context.Context, id string) (*goidc.Client, error) {
	return p.context(ctx).Client(id)
}

//---------------------------------------- Sessions ----------------------------------------//

func (p *Provider) StartSession(ctx context.Context, userDN string, attrs map[string]string) (*goidc.Session, error) {
	return session.Start(p.context(ctx), userDN, attrs)
}

// AuthenticateSession authenticates userDN. The previous session, if any,
// is replaced by a new one with a new id.
func (p *Provider) AuthenticateSession(ctx context.Context, previousID, userDN string) (*goidc.Session, error) {
	return session.Authenticate(p.context(ctx), previousID, userDN)
}

func (p *Provider) Session(ctx context.Context, id string) (*goidc.Session, error) {
	return session.Session(p.context(ctx), id)
}

func (p *Provider) TouchSession(ctx context.Context, id string) (*goidc.Session, error) {
	return session.Touch(p.context(ctx), id)
}

func (p *Provider) SetSessionAttribute(ctx context.Context, id, key, value string) (*goidc.Session, error) {
	return session.SetAttribute(p.context(ctx), id, key, value)
}

func (p *Provider) AddSessionPermission(ctx context.Context, id, clientID string, granted bool) (*goidc.Session, error) {
	return session.AddPermission(p.context(ctx), id, clientID, granted)
}

func (p *Provider) HasSessionPermission(ctx context.Context, id, clientID string) (bool, error) {
	return session.HasPermission(p.context(ctx), id, clientID)
}

// Logout removes the session.
func (p *Provider) Logout(ctx context.Context, id string) error {
	return session.Remove(p.context(ctx), id)
}

//---------------------------------------- UMA ----------------------------------------//

func (p *Provider) UMAToken(ctx context.Context, req UMATicketRequest) (goidc.TokenResponse, error) {
	return uma.Generate(p.context(ctx), req)
}

func (p *Provider) CreateUMAResource(ctx context.Context, pat string, res UMAResource) (*goidc.UMAResource, error) {
	return uma.CreateResource(p.context(ctx), pat, res)
}

func (p *Provider) UMAResource(ctx context.Context, pat, id string) (*goidc.UMAResource, error) {
	return uma.GetResource(p.context(ctx), pat, id)
}

func (p *Provider) UpdateUMAResource(ctx context.Context, pat, id string, res UMAResource) (*goidc.UMAResource, error) {
	return uma.UpdateResource(p.context(ctx), pat, id, res)
}

func (p *Provider) DeleteUMAResource(ctx context.Context, pat, id string) error {
	return uma.DeleteResource(p.context(ctx), pat, id)
}

// UMAResources lists the ids of the resources registered by the owner of
// pat.
func (p *Provider) UMAResources(ctx context.Context, pat string) ([]string, error) {
	return uma.ListResources(p.context(ctx), pat)
}

func (p *Provider) CreateUMATicket(ctx context.Context, pat string, req UMAPermissionRequest) (string, error) {
	return uma.CreateTicket(p.context(ctx), pat, req)
}

func (p *Provider) IntrospectRPT(ctx context.Context, pat, rpt string) (goidc.TokenInfo, error) {
	return uma.IntrospectRPT(p.context(ctx), pat, rpt)
}

//---------------------------------------- Discovery ----------------------------------------//

func (p *Provider) Discovery(ctx context.Context) DiscoveryDocument {
	return discovery.NewDocument(p.context(ctx))
}

func (p *Provider) JWKS(ctx context.Context) jose.JSONWebKeySet {
	return discovery.JWKS(p.context(ctx))
}

// ImportKey registers a private key the server may sign or decrypt with.
// Zero expiresAt means the key never expires.
func (p *Provider) ImportKey(jwk jose.JSONWebKey, expiresAt int) (goidc.CryptoKey, error) {
	return p.config.Crypto.ImportKey(jwk, expiresAt)
}

//---------------------------------------- Sweeper ----------------------------------------//

// StartSweeper removes expired entities periodically until
// [Provider.StopSweeper] is called or ctx is done.
func (p *Provider) StartSweeper(ctx context.Context) error {
	return p.sweeper.Start(ctx)
}

// StopSweeper stops the sweeper and waits for the running pass to finish.
func (p *Provider) StopSweeper() {
	p.sweeper.Stop()
}

// Sweep runs a single pass over every entity family.
func (p *Provider) Sweep(ctx context.Context) ([]SweepReport, error) {
	return p.sweeper.SweepOnce(ctx)
}

func nonZeroOrDefault[T comparable](s1 T, s2 T) T {
	var zero T
	if s1 == zero {
		return s2
	}
	return s1
}

func nonNilOrDefault[T any](s1 T, s2 T) T {
	v := reflect.ValueOf(s1)
	if !v.IsValid() || v.IsNil() {
		return s2
	}
	return s1
}
