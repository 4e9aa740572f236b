package goidc

type GrantType string

const (
	GrantAuthorizationCode GrantType = "authorization_code"
	GrantImplicit          GrantType = "implicit"
	GrantClientCredentials GrantType = "client_credentials"
	GrantRefreshToken      GrantType = "refresh_token"
	GrantDeviceCode        GrantType = "urn:ietf:params:oauth:grant-type:device_code"
	GrantCIBA              GrantType = "urn:openid:params:grant-type:ciba"
	GrantUMATicket         GrantType = "urn:ietf:params:oauth:grant-type:uma-ticket"
)

type ResponseType string

const (
	ResponseTypeCode                   ResponseType = "code"
	ResponseTypeIDToken                ResponseType = "id_token"
	ResponseTypeToken                  ResponseType = "token"
	ResponseTypeCodeAndIDToken         ResponseType = "code id_token"
	ResponseTypeCodeAndToken           ResponseType = "code token"
	ResponseTypeIDTokenAndToken        ResponseType = "id_token token"
	ResponseTypeCodeAndIDTokenAndToken ResponseType = "code id_token token"
)

type SubjectIdentifierType string

const (
	SubjectIdentifierPublic SubjectIdentifierType = "public"
)

type TokenType string

const (
	TokenTypeBearer TokenType = "Bearer"
)

type TokenTypeHint string

const (
	TokenHintAccess  TokenTypeHint = "access_token"
	TokenHintRefresh TokenTypeHint = "refresh_token"
	TokenHintIDToken TokenTypeHint = "id_token"
	TokenHintRPT     TokenTypeHint = "rpt"
)

type TokenFormat string

const (
	TokenFormatOpaque TokenFormat = "opaque"
	TokenFormatJWT    TokenFormat = "jwt"
)

type CodeChallengeMethod string

const (
	CodeChallengeMethodSHA256 CodeChallengeMethod = "S256"
	CodeChallengeMethodPlain  CodeChallengeMethod = "plain"
)

type ClientAuthnType string

const (
	ClientAuthnNone          ClientAuthnType = "none"
	ClientAuthnSecretBasic   ClientAuthnType = "client_secret_basic"
	ClientAuthnSecretPost    ClientAuthnType = "client_secret_post"
	ClientAuthnSecretJWT     ClientAuthnType = "client_secret_jwt"
	ClientAuthnPrivateKeyJWT ClientAuthnType = "private_key_jwt"
)

const AssertionTypeJWTBearer = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

type KeyUsage string

const (
	KeyUsageSignature  KeyUsage = "sig"
	KeyUsageEncryption KeyUsage = "enc"
)

const (
	ScopeOpenID        = "openid"
	ScopeOfflineAccess = "offline_access"
	ScopeUMAProtection = "uma_protection"
)

const (
	ClaimTokenID               string = "jti"
	ClaimIssuer                string = "iss"
	ClaimSubject               string = "sub"
	ClaimAudience              string = "aud"
	ClaimClientID              string = "client_id"
	ClaimScope                 string = "scope"
	ClaimExpiry                string = "exp"
	ClaimIssuedAt              string = "iat"
	ClaimNotBefore             string = "nbf"
	ClaimNonce                 string = "nonce"
	ClaimAuthTime              string = "auth_time"
	ClaimSessionID             string = "sid"
	ClaimAccessTokenHash       string = "at_hash"
	ClaimAuthorizationCodeHash string = "c_hash"
	ClaimStateHash             string = "s_hash"
	ClaimPermissions           string = "permissions"
)
