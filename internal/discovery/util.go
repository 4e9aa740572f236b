package discovery

import (
	"slices"

	"github.com/go-jose/go-jose/v4"
	"github.com/luikyv/go-authority/internal/joseutil"
	"github.com/luikyv/go-authority/internal/oidc"
	"github.com/luikyv/go-authority/pkg/goidc"
)

// NewDocument builds the metadata document for the current configuration.
// The algorithms advertised for server signatures are restricted to the ones
// the crypto provider holds a valid key for.
func NewDocument(ctx oidc.Context) Document {
	doc := Document{
		Issuer:                 ctx.Issuer(),
		TokenEndpoint:          ctx.BaseURL() + ctx.EndpointToken,
		JWKSEndpoint:           ctx.BaseURL() + ctx.EndpointJWKS,
		ResponseTypes:          ctx.ResponseTypes,
		GrantTypes:             ctx.GrantTypes,
		Scopes:                 ctx.Scopes,
		SubjectIdentifierTypes: ctx.SubIdentifierTypes,
		ClientAuthnMethods:     ctx.ClientAuthnMethods,

		IDTokenSignatureAlgorithms:           signatureAlgorithms(ctx),
		TokenEndpointClientSigningAlgorithms: clientSignatureAlgorithms(ctx),
	}

	if len(ctx.ResponseTypes) != 0 {
		doc.AuthorizationEndpoint = ctx.BaseURL() + ctx.EndpointAuthorize
	}

	if ctx.EndpointIntrospection != "" {
		doc.IntrospectionEndpoint = ctx.BaseURL() + ctx.EndpointIntrospection
		doc.IntrospectionEndpointClientAuthnMethods = ctx.ClientAuthnMethods
	}

	if ctx.EndpointTokenRevocation != "" {
		doc.TokenRevocationEndpoint = ctx.BaseURL() + ctx.EndpointTokenRevocation
		doc.TokenRevocationEndpointClientAuthnMethod = ctx.ClientAuthnMethods
	}

	if ctx.IsGrantTypeEnabled(goidc.GrantDeviceCode) {
		doc.DeviceAuthorizationEndpoint = ctx.BaseURL() + ctx.EndpointDeviceAuthorization
	}

	if ctx.IsGrantTypeEnabled(goidc.GrantCIBA) {
		doc.CIBAEndpoint = ctx.BaseURL() + ctx.EndpointCIBA
		doc.CIBATokenDeliveryModes = []string{"poll"}
	}

	if ctx.IsGrantTypeEnabled(goidc.GrantUMATicket) {
		doc.UMAResourceEndpoint = ctx.BaseURL() + ctx.EndpointUMAResource
		doc.UMAPermissionEndpoint = ctx.BaseURL() + ctx.EndpointUMAPermission
	}

	if ctx.IDTokenEncIsEnabled {
		doc.IDTokenKeyEncryptionAlgorithms = ctx.IDTokenKeyEncAlgs
		doc.IDTokenContentEncryptionAlgorithms = ctx.IDTokenContentEncAlgs
	}

	if ctx.IsGrantTypeEnabled(goidc.GrantAuthorizationCode) {
		doc.CodeChallengeMethods = ctx.PKCEChallengeMethods
	}

	return doc
}

// JWKS returns the public part of the server keys.
func JWKS(ctx oidc.Context) jose.JSONWebKeySet {
	return ctx.Crypto.PublicJWKS()
}

func signatureAlgorithms(ctx oidc.Context) []jose.SignatureAlgorithm {
	available := ctx.Crypto.SigningAlgorithms()
	var algs []jose.SignatureAlgorithm
	for _, alg := range ctx.SigAlgs {
		if slices.Contains(available, alg) {
			algs = append(algs, alg)
		}
	}
	return algs
}

func clientSignatureAlgorithms(ctx oidc.Context) []jose.SignatureAlgorithm {
	var algs []jose.SignatureAlgorithm
	if slices.Contains(ctx.ClientAuthnMethods, goidc.ClientAuthnPrivateKeyJWT) {
		algs = append(algs, joseutil.AsymmetricSignatureAlgorithms...)
	}
	if slices.Contains(ctx.ClientAuthnMethods, goidc.ClientAuthnSecretJWT) {
		algs = append(algs, jose.HS256, jose.HS384, jose.HS512)
	}
	return algs
}
