package provider

import (
	"errors"
	"fmt"
	"net/url"
	"slices"

	"github.com/luikyv/go-authority/internal/joseutil"
	"github.com/luikyv/go-authority/internal/oidc"
	"github.com/luikyv/go-authority/pkg/goidc"
)

const minClientSecretKeySize = 32

var supportedGrantTypes = []goidc.GrantType{
	goidc.GrantAuthorizationCode,
	goidc.GrantImplicit,
	goidc.GrantClientCredentials,
	goidc.GrantRefreshToken,
	goidc.GrantDeviceCode,
	goidc.GrantCIBA,
	goidc.GrantUMATicket,
}

func validate(config *oidc.Configuration) error {
	return runValidations(
		*config,
		validateIssuer,
		validateClientSecretKey,
		validateSigAlgs,
		validateKeyLifetime,
		validateGrantTypes,
		validateIDTokenEnc,
		validateLifetimes,
		validateSessionLifetimes,
		validatePKCE,
	)
}

func validateIssuer(config oidc.Configuration) error {
	if config.Host == "" {
		return errors.New("the issuer is required")
	}

	u, err := url.Parse(config.Host)
	if err != nil {
		return fmt.Errorf("invalid issuer: %w", err)
	}

	if u.Scheme != "https" && u.Scheme != "http" {
		return errors.New("the issuer must be an http url")
	}

	if u.RawQuery != "" || u.Fragment != "" {
		return errors.New("the issuer must not contain a query or a fragment")
	}

	return nil
}

func validateClientSecretKey(config oidc.Configuration) error {
	if len(config.ClientSecretKey) < minClientSecretKeySize {
		return fmt.Errorf("the client secret key must have at least %d bytes", minClientSecretKeySize)
	}

	return nil
}

func validateSigAlgs(config oidc.Configuration) error {
	if !slices.Contains(config.SigAlgs, config.DefaultSigAlg) {
		return errors.New("the default signature algorithm must be one of the signature algorithms")
	}

	for _, alg := range config.SigAlgs {
		if !slices.Contains(joseutil.AsymmetricSignatureAlgorithms, alg) {
			return fmt.Errorf("%s is not allowed for server signatures", alg)
		}
	}

	return nil
}

// validateKeyLifetime makes sure a rotated key outlives the tokens it signs,
// otherwise every signature would generate a new key.
func validateKeyLifetime(config oidc.Configuration) error {
	if config.KeyLifetimeSecs == 0 {
		return nil
	}

	longest := max(config.IDTokenLifetimeSecs, config.AccessTokenLifetimeSecs, config.UMARPTLifetimeSecs)
	if config.KeyLifetimeSecs <= longest {
		return fmt.Errorf("the key lifetime must be longer than %d seconds", longest)
	}

	return nil
}

func validateGrantTypes(config oidc.Configuration) error {
	for _, gt := range config.GrantTypes {
		if !slices.Contains(supportedGrantTypes, gt) {
			return fmt.Errorf("the grant type %s is not supported", gt)
		}
	}

	if slices.Contains(config.GrantTypes, goidc.GrantImplicit) &&
		!slices.Contains(config.GrantTypes, goidc.GrantAuthorizationCode) {
		return errors.New("the implicit grant requires the authorization code grant")
	}

	return nil
}

func validateIDTokenEnc(config oidc.Configuration) error {
	if !config.IDTokenEncIsEnabled {
		return nil
	}

	if len(config.IDTokenKeyEncAlgs) == 0 {
		return errors.New("at least one key encryption algorithm is required for ID token encryption")
	}

	for _, alg := range config.IDTokenKeyEncAlgs {
		if !slices.Contains(joseutil.KeyAlgorithms, alg) {
			return fmt.Errorf("the key encryption algorithm %s is not supported", alg)
		}
	}

	for _, enc := range config.IDTokenContentEncAlgs {
		if !slices.Contains(joseutil.ContentEncryptionAlgorithms, enc) {
			return fmt.Errorf("the content encryption algorithm %s is not supported", enc)
		}
	}

	return nil
}

func validateLifetimes(config oidc.Configuration) error {
	for name, secs := range map[string]int{
		"authorization code": config.AuthorizationCodeLifetimeSecs,
		"access token":       config.AccessTokenLifetimeSecs,
		"refresh token":      config.RefreshTokenLifetimeSecs,
		"id token":           config.IDTokenLifetimeSecs,
		"device code":        config.DeviceCodeLifetimeSecs,
		"ciba request":       config.CIBALifetimeSecs,
		"uma ticket":         config.UMATicketLifetimeSecs,
		"uma rpt":            config.UMARPTLifetimeSecs,
		"uma pct":            config.UMAPCTLifetimeSecs,
		"sweeper interval":   config.SweeperIntervalSecs,
	} {
		if secs < 0 {
			return fmt.Errorf("the %s lifetime must not be negative", name)
		}
	}

	if config.UMAResourceLifetimeSecs < 0 || config.ClientLifetimeSecs < 0 || config.ClientSecretLifetimeSecs < 0 {
		return errors.New("lifetimes must not be negative")
	}

	if config.SweeperBatchSize < 0 {
		return errors.New("the sweeper batch size must not be negative")
	}

	return nil
}

func validateSessionLifetimes(config oidc.Configuration) error {
	if config.SessionIdleLifetimeSecs > config.SessionMaxLifetimeSecs {
		return errors.New("the session idle lifetime must not exceed the max lifetime")
	}

	return nil
}

func validatePKCE(config oidc.Configuration) error {
	if config.PKCEIsRequired && len(config.PKCEChallengeMethods) == 0 {
		return errors.New("at least one code challenge method is required when pkce is required")
	}

	return nil
}

func runValidations(
	config oidc.Configuration,
	validators ...func(oidc.Configuration) error,
) error {
	for _, validator := range validators {
		if err := validator(config); err != nil {
			return err
		}
	}
	return nil
}
