package provider

import (
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/luikyv/go-authority/pkg/goidc"
)

const (
	defaultAuthorizationCodeLifetimeSecs = 60
	defaultAccessTokenLifetimeSecs       = 600
	defaultRefreshTokenLifetimeSecs      = 14 * 24 * 60 * 60
	defaultIDTokenLifetimeSecs           = 600
	defaultClientAssertionLifetimeSecs   = 600
	defaultDeviceCodeLifetimeSecs        = 600
	defaultDevicePollIntervalSecs        = 5
	defaultCIBALifetimeSecs              = 300
	defaultCIBAPollIntervalSecs          = 5
	defaultSessionIdleLifetimeSecs       = 24 * 60 * 60
	defaultSessionMaxLifetimeSecs        = 7 * 24 * 60 * 60
	defaultUnauthenticatedSessionSecs    = 120
	defaultUMATicketLifetimeSecs         = 300
	defaultUMARPTLifetimeSecs            = 3600
	defaultUMAPCTLifetimeSecs            = 90 * 24 * 60 * 60
	defaultKeyLifetimeSecs               = 2 * 24 * 60 * 60

	defaultSweeperIntervalSecs = 60
	defaultSweeperBatchSize    = 100
	defaultStoreTimeout        = 5 * time.Second

	defaultSigAlg = jose.RS256

	defaultEndpointWellKnown           = "/.well-known/openid-configuration"
	defaultEndpointJSONWebKeySet       = "/jwks"
	defaultEndpointAuthorize           = "/authorize"
	defaultEndpointToken               = "/token"
	defaultEndpointTokenIntrospection  = "/introspect"
	defaultEndpointTokenRevocation     = "/revoke"
	defaultEndpointDeviceAuthorization = "/device_authorization"
	defaultEndpointDeviceVerification  = "/device"
	defaultEndpointCIBA                = "/bc-authorize"
	defaultEndpointUMAResource         = "/uma/resource_set"
	defaultEndpointUMAPermission       = "/uma/permission"
)

var (
	defaultGrantTypes = []goidc.GrantType{
		goidc.GrantAuthorizationCode,
		goidc.GrantClientCredentials,
		goidc.GrantRefreshToken,
	}
	defaultResponseTypes = []goidc.ResponseType{goidc.ResponseTypeCode}
	defaultScopes        = []string{goidc.ScopeOpenID}
	defaultAuthnMethods  = []goidc.ClientAuthnType{
		goidc.ClientAuthnSecretBasic,
		goidc.ClientAuthnSecretPost,
	}
	defaultIDTokenContentEncAlg = jose.A128CBC_HS256
)
