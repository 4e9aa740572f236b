package oidc

import (
	"log/slog"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/luikyv/go-authority/internal/joseutil"
	"github.com/luikyv/go-authority/internal/jwkscache"
	"github.com/luikyv/go-authority/internal/jwtutil"
	"github.com/luikyv/go-authority/internal/metrics"
	"github.com/luikyv/go-authority/internal/timeutil"
	"github.com/luikyv/go-authority/pkg/goidc"
)

type Configuration struct {
	ClientManager               goidc.ClientManager
	TokenManager                goidc.TokenManager
	SessionManager              goidc.SessionManager
	PendingAuthorizationManager goidc.PendingAuthorizationManager
	UMAResourceManager          goidc.UMAResourceManager
	UMATicketManager            goidc.UMATicketManager
	UMARPTManager               goidc.UMARPTManager
	UMAPCTManager               goidc.UMAPCTManager

	// Host is the domain where the server runs. This value will be used as the
	// authorization server issuer.
	Host           string
	EndpointPrefix string

	Crypto    *joseutil.Provider
	Codec     jwtutil.Codec
	JWKSCache *jwkscache.Cache
	Clock     timeutil.Clock
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	// StoreTimeout bounds every call to the managers.
	StoreTimeout time.Duration
	// ClientSecretKey is the master key client secrets are sealed with.
	ClientSecretKey []byte
	// ClientSecretLifetimeSecs is zero for secrets that never expire.
	ClientSecretLifetimeSecs int
	// ClientLifetimeSecs is the lifetime of dynamically registered clients.
	// Zero means they never expire.
	ClientLifetimeSecs          int
	ClientAssertionLifetimeSecs int
	ClientAuthnMethods          []goidc.ClientAuthnType
	StaticClients               []*goidc.Client

	GrantTypes         []goidc.GrantType
	ResponseTypes      []goidc.ResponseType
	Scopes             []string
	SubIdentifierTypes []goidc.SubjectIdentifierType

	// DefaultSigAlg signs ID tokens, JWT access tokens and JWT RPTs unless
	// the client asks for another algorithm.
	DefaultSigAlg jose.SignatureAlgorithm
	SigAlgs       []jose.SignatureAlgorithm
	// KeyLifetimeSecs is the lifetime of keys generated on rotation.
	KeyLifetimeSecs int

	IDTokenEncIsEnabled         bool
	IDTokenKeyEncAlgs           []jose.KeyAlgorithm
	IDTokenDefaultContentEncAlg jose.ContentEncryption
	IDTokenContentEncAlgs       []jose.ContentEncryption

	AuthorizationCodeLifetimeSecs int
	AccessTokenLifetimeSecs       int
	IDTokenLifetimeSecs           int
	// AccessTokenFormat is the default format of access tokens. Clients may
	// override it.
	AccessTokenFormat goidc.TokenFormat

	RefreshTokenLifetimeSecs      int
	RefreshTokenRotationIsEnabled bool
	// RefreshTokenRevocationCascadeIsEnabled makes revoking a refresh token
	// also revoke the access tokens issued with it.
	RefreshTokenRevocationCascadeIsEnabled bool

	PKCEIsRequired       bool
	PKCEChallengeMethods []goidc.CodeChallengeMethod

	DeviceCodeLifetimeSecs     int
	DevicePollIntervalSecs     int
	DeviceVerificationURI      string
	CIBALifetimeSecs           int
	CIBAPollIntervalSecs       int
	SessionIdleLifetimeSecs    int
	SessionMaxLifetimeSecs     int
	UnauthenticatedSessionSecs int

	UMATicketLifetimeSecs   int
	UMARPTLifetimeSecs      int
	UMAPCTLifetimeSecs      int
	UMAResourceLifetimeSecs int
	UMARPTFormat            goidc.TokenFormat
	UMAPolicyFunc           goidc.UMAPolicyFunc

	SweeperIntervalSecs int
	SweeperBatchSize    int

	EndpointWellKnown           string
	EndpointJWKS                string
	EndpointAuthorize           string
	EndpointToken               string
	EndpointIntrospection       string
	EndpointTokenRevocation     string
	EndpointDeviceAuthorization string
	EndpointCIBA                string
	EndpointUMAResource         string
	EndpointUMAPermission       string
}
