package provider

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/luikyv/go-authority/internal/joseutil"
	"github.com/luikyv/go-authority/internal/metrics"
	"github.com/luikyv/go-authority/internal/timeutil"
	"github.com/luikyv/go-authority/pkg/goidc"
	"github.com/prometheus/client_golang/prometheus"
)

type Option func(p *Provider) error

// Storage groups the managers of every entity family. Nil managers are
// replaced by in memory ones.
type Storage struct {
	Client               goidc.ClientManager
	Token                goidc.TokenManager
	Session              goidc.SessionManager
	PendingAuthorization goidc.PendingAuthorizationManager
	UMAResource          goidc.UMAResourceManager
	UMATicket            goidc.UMATicketManager
	UMARPT               goidc.UMARPTManager
	UMAPCT               goidc.UMAPCTManager
}

// WithStorage replaces the default storage which keeps every entity in
// memory.
func WithStorage(s Storage) Option {
	return func(p *Provider) error {
		p.config.ClientManager = s.Client
		p.config.TokenManager = s.Token
		p.config.SessionManager = s.Session
		p.config.PendingAuthorizationManager = s.PendingAuthorization
		p.config.UMAResourceManager = s.UMAResource
		p.config.UMATicketManager = s.UMATicket
		p.config.UMARPTManager = s.UMARPT
		p.config.UMAPCTManager = s.UMAPCT
		return nil
	}
}

// WithStoreTimeout bounds every call to the managers. Zero disables the
// bound and only the caller's deadline applies.
func WithStoreTimeout(timeout time.Duration) Option {
	return func(p *Provider) error {
		p.config.StoreTimeout = timeout
		p.storeTimeoutIsSet = true
		return nil
	}
}

// WithKeyStore replaces the in memory registry of server keys.
func WithKeyStore(keys joseutil.KeyStore) Option {
	return func(p *Provider) error {
		p.keys = keys
		return nil
	}
}

// WithSigningKey registers a private key the server signs with. Keys
// registered this way never expire.
func WithSigningKey(jwk jose.JSONWebKey) Option {
	return func(p *Provider) error {
		if jwk.IsPublic() {
			return errors.New("the signing key must be private")
		}
		p.importedKeys = append(p.importedKeys, jwk)
		return nil
	}
}

// WithSignatureAlgs sets the algorithms the server signs with. The first
// one is the default used for ID tokens, JWT access tokens and JWT RPTs.
// A key is generated on start up for the default algorithm if none was
// registered.
func WithSignatureAlgs(defaultAlg jose.SignatureAlgorithm, algs ...jose.SignatureAlgorithm) Option {
	return func(p *Provider) error {
		p.config.DefaultSigAlg = defaultAlg
		p.config.SigAlgs = appendIfNotIn(algs, defaultAlg)
		return nil
	}
}

// WithKeyRotation makes generated keys expire after lifetimeSecs. A new key
// is generated when the current one doesn't outlive the tokens it would
// sign. Zero disables the rotation.
func WithKeyRotation(lifetimeSecs int) Option {
	return func(p *Provider) error {
		p.config.KeyLifetimeSecs = lifetimeSecs
		p.keyLifetimeIsSet = true
		return nil
	}
}

// WithClientSecretKey sets the master key client secrets are sealed with.
// It must be at least 32 bytes long.
func WithClientSecretKey(key []byte) Option {
	return func(p *Provider) error {
		p.config.ClientSecretKey = key
		return nil
	}
}

// WithClientSecretLifetime makes client secrets expire after secs.
func WithClientSecretLifetime(secs int) Option {
	return func(p *Provider) error {
		p.config.ClientSecretLifetimeSecs = secs
		return nil
	}
}

// WithClientLifetime makes registered clients expire after secs. Expired
// clients are removed by the sweeper.
func WithClientLifetime(secs int) Option {
	return func(p *Provider) error {
		p.config.ClientLifetimeSecs = secs
		return nil
	}
}

// WithStaticClient adds a client that is not kept in the client storage.
func WithStaticClient(c *goidc.Client) Option {
	return func(p *Provider) error {
		p.config.StaticClients = append(p.config.StaticClients, c)
		return nil
	}
}

// WithClientAuthnMethods overrides the default client authentication
// methods.
func WithClientAuthnMethods(methods ...goidc.ClientAuthnType) Option {
	return func(p *Provider) error {
		p.config.ClientAuthnMethods = methods
		return nil
	}
}

// WithScopes sets the scopes the server supports. openid is always added.
func WithScopes(scopes ...string) Option {
	return func(p *Provider) error {
		p.config.Scopes = appendIfNotIn(scopes, goidc.ScopeOpenID)
		return nil
	}
}

// WithGrantTypes overrides the default grant types.
func WithGrantTypes(grants ...goidc.GrantType) Option {
	return func(p *Provider) error {
		p.config.GrantTypes = grants
		return nil
	}
}

// WithImplicitGrant enables the implicit grant together with every response
// type it makes available.
func WithImplicitGrant() Option {
	return func(p *Provider) error {
		p.addGrantType(goidc.GrantImplicit)
		p.implicitIsEnabled = true
		return nil
	}
}

// WithDeviceAuthorizationGrant enables the device authorization grant.
// verificationURI is where users enter the user code, it defaults to
// [defaultEndpointDeviceVerification] under the issuer.
func WithDeviceAuthorizationGrant(verificationURI string) Option {
	return func(p *Provider) error {
		p.addGrantType(goidc.GrantDeviceCode)
		p.config.DeviceVerificationURI = verificationURI
		return nil
	}
}

// WithCIBAGrant enables client initiated backchannel authentication in poll
// mode.
func WithCIBAGrant() Option {
	return func(p *Provider) error {
		p.addGrantType(goidc.GrantCIBA)
		return nil
	}
}

// WithUMA enables user managed access and the uma_protection scope. policy
// decides which of the requested scopes are granted. A nil policy grants all
// of them.
func WithUMA(policy goidc.UMAPolicyFunc) Option {
	return func(p *Provider) error {
		p.addGrantType(goidc.GrantUMATicket)
		p.config.UMAPolicyFunc = policy
		return nil
	}
}

// WithJWTRPT issues requesting party tokens as signed JWTs.
func WithJWTRPT() Option {
	return func(p *Provider) error {
		p.config.UMARPTFormat = goidc.TokenFormatJWT
		return nil
	}
}

// WithJWTAccessTokens issues access tokens as signed JWTs unless the client
// asks otherwise.
func WithJWTAccessTokens() Option {
	return func(p *Provider) error {
		p.config.AccessTokenFormat = goidc.TokenFormatJWT
		return nil
	}
}

// WithRefreshTokenRotation makes refresh tokens single use. Each refresh
// returns a new refresh token.
func WithRefreshTokenRotation() Option {
	return func(p *Provider) error {
		p.config.RefreshTokenRotationIsEnabled = true
		return nil
	}
}

// WithRefreshTokenRevocationCascade makes revoking a refresh token also
// revoke every token issued for the same grant.
func WithRefreshTokenRevocationCascade() Option {
	return func(p *Provider) error {
		p.config.RefreshTokenRevocationCascadeIsEnabled = true
		return nil
	}
}

// WithPKCE sets the accepted code challenge methods. When required is true,
// authorization requests without a code challenge are rejected.
func WithPKCE(required bool, methods ...goidc.CodeChallengeMethod) Option {
	return func(p *Provider) error {
		p.config.PKCEIsRequired = required
		p.config.PKCEChallengeMethods = methods
		return nil
	}
}

// WithIDTokenEncryption allows clients to ask for encrypted ID tokens. The
// first content encryption algorithm is used when the client doesn't
// inform one.
func WithIDTokenEncryption(
	keyAlgs []jose.KeyAlgorithm,
	contentAlgs ...jose.ContentEncryption,
) Option {
	return func(p *Provider) error {
		p.config.IDTokenEncIsEnabled = true
		p.config.IDTokenKeyEncAlgs = keyAlgs
		p.config.IDTokenContentEncAlgs = contentAlgs
		if len(contentAlgs) != 0 {
			p.config.IDTokenDefaultContentEncAlg = contentAlgs[0]
		}
		return nil
	}
}

// Lifetimes overrides the default lifetimes. Zero fields keep the default.
type Lifetimes struct {
	AuthorizationCodeSecs      int
	AccessTokenSecs            int
	RefreshTokenSecs           int
	IDTokenSecs                int
	ClientAssertionSecs        int
	DeviceCodeSecs             int
	DevicePollIntervalSecs     int
	CIBASecs                   int
	CIBAPollIntervalSecs       int
	SessionIdleSecs            int
	SessionMaxSecs             int
	UnauthenticatedSessionSecs int
	UMATicketSecs              int
	UMARPTSecs                 int
	UMAPCTSecs                 int
	// UMAResourceSecs makes registered resources expire. By default they
	// never do.
	UMAResourceSecs int
}

func WithLifetimes(l Lifetimes) Option {
	return func(p *Provider) error {
		c := p.config
		c.AuthorizationCodeLifetimeSecs = l.AuthorizationCodeSecs
		c.AccessTokenLifetimeSecs = l.AccessTokenSecs
		c.RefreshTokenLifetimeSecs = l.RefreshTokenSecs
		c.IDTokenLifetimeSecs = l.IDTokenSecs
		c.ClientAssertionLifetimeSecs = l.ClientAssertionSecs
		c.DeviceCodeLifetimeSecs = l.DeviceCodeSecs
		c.DevicePollIntervalSecs = l.DevicePollIntervalSecs
		c.CIBALifetimeSecs = l.CIBASecs
		c.CIBAPollIntervalSecs = l.CIBAPollIntervalSecs
		c.SessionIdleLifetimeSecs = l.SessionIdleSecs
		c.SessionMaxLifetimeSecs = l.SessionMaxSecs
		c.UnauthenticatedSessionSecs = l.UnauthenticatedSessionSecs
		c.UMATicketLifetimeSecs = l.UMATicketSecs
		c.UMARPTLifetimeSecs = l.UMARPTSecs
		c.UMAPCTLifetimeSecs = l.UMAPCTSecs
		c.UMAResourceLifetimeSecs = l.UMAResourceSecs
		return nil
	}
}

// WithSweeper overrides how often expired entities are removed and how many
// are listed per batch.
func WithSweeper(intervalSecs, batchSize int) Option {
	return func(p *Provider) error {
		p.config.SweeperIntervalSecs = intervalSecs
		p.config.SweeperBatchSize = batchSize
		return nil
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) error {
		p.config.Logger = logger
		return nil
	}
}

// WithMetrics registers the Prometheus collectors of the provider in reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(p *Provider) error {
		m, err := metrics.New(reg)
		if err != nil {
			return err
		}
		p.config.Metrics = m
		return nil
	}
}

// WithClock replaces the system clock. It's meant for tests.
func WithClock(clock timeutil.Clock) Option {
	return func(p *Provider) error {
		p.config.Clock = clock
		return nil
	}
}

// WithHTTPClient sets the client used to fetch client JWK Sets.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) error {
		p.httpClient = client
		return nil
	}
}

// WithJWKSCacheTTL sets for how long fetched client JWK Sets are cached.
func WithJWKSCacheTTL(ttl time.Duration) Option {
	return func(p *Provider) error {
		p.jwksCacheTTL = ttl
		return nil
	}
}

// WithPathPrefix defines a shared prefix for all endpoints.
//
//	op, err := provider.New(
//		"https://example.com",
//		provider.WithPathPrefix("/auth"),
//	)
//	server := http.NewServeMux()
//	server.Handle("/auth/", op.Handler())
func WithPathPrefix(prefix string) Option {
	return func(p *Provider) error {
		p.config.EndpointPrefix = prefix
		return nil
	}
}

// Endpoints overrides the default endpoint paths. Empty fields keep the
// default.
type Endpoints struct {
	WellKnown           string
	JWKS                string
	Authorize           string
	Token               string
	Introspection       string
	TokenRevocation     string
	DeviceAuthorization string
	CIBA                string
	UMAResource         string
	UMAPermission       string
}

func WithEndpoints(e Endpoints) Option {
	return func(p *Provider) error {
		c := p.config
		c.EndpointWellKnown = e.WellKnown
		c.EndpointJWKS = e.JWKS
		c.EndpointAuthorize = e.Authorize
		c.EndpointToken = e.Token
		c.EndpointIntrospection = e.Introspection
		c.EndpointTokenRevocation = e.TokenRevocation
		c.EndpointDeviceAuthorization = e.DeviceAuthorization
		c.EndpointCIBA = e.CIBA
		c.EndpointUMAResource = e.UMAResource
		c.EndpointUMAPermission = e.UMAPermission
		return nil
	}
}

func appendIfNotIn[T comparable](values []T, v T) []T {
	if slices.Contains(values, v) {
		return values
	}
	return append(values, v)
}

// addGrantType enables gt on top of the grant types already set, or of the
// default ones when none were.
func (p *Provider) addGrantType(gt goidc.GrantType) {
	if p.config.GrantTypes == nil {
		p.config.GrantTypes = slices.Clone(defaultGrantTypes)
	}
	p.config.GrantTypes = appendIfNotIn(p.config.GrantTypes, gt)
}
