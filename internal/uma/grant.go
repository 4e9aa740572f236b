package uma

import (
	"errors"
	"log/slog"
	"maps"
	"slices"

	"github.com/google/uuid"
	"github.com/luikyv/go-authority/internal/clientutil"
	"github.com/luikyv/go-authority/internal/jwtutil"
	"github.com/luikyv/go-authority/internal/oidc"
	"github.com/luikyv/go-authority/internal/strutil"
	"github.com/luikyv/go-authority/internal/token"
	"github.com/luikyv/go-authority/pkg/goidc"
)

// TicketRequest is a token request with the UMA ticket grant.
type TicketRequest struct {
	Credentials clientutil.Credentials
	Ticket      string
	// RPT is an RPT held by the requesting party. The permissions it carries
	// are added to the new one.
	RPT string
	// PCT is a persisted claims token returned by a previous exchange.
	PCT string
	// Claims are the claims pushed by the client.
	Claims map[string]any
	// Scopes are requested in addition to the ones of the ticket.
	Scopes string
}

// Generate exchanges a permission ticket for an RPT. The ticket can only be
// exchanged once. A policy asking for more claims leaves it usable.
func Generate(ctx oidc.Context, req TicketRequest) (goidc.TokenResponse, error) {
	if !ctx.IsGrantTypeEnabled(goidc.GrantUMATicket) {
		return goidc.TokenResponse{}, goidc.NewError(goidc.ErrorCodeUnsupportedGrantType, "unsupported grant type")
	}

	c, err := clientutil.Authenticated(ctx, req.Credentials)
	if err != nil {
		return goidc.TokenResponse{}, err
	}

	if !c.IsGrantTypeAllowed(goidc.GrantUMATicket) {
		return goidc.TokenResponse{}, goidc.NewError(goidc.ErrorCodeUnauthorizedClient, "grant type not allowed")
	}

	ticket, err := validTicket(ctx, req.Ticket)
	if err != nil {
		return goidc.TokenResponse{}, err
	}

	r, err := ctx.UMAResource(ticket.ResourceID)
	if err != nil {
		return goidc.TokenResponse{}, invalidGrantOrStoreError("the resource of the ticket no longer exists", err)
	}

	requested, err := requestedScopes(r, ticket, req.Scopes)
	if err != nil {
		return goidc.TokenResponse{}, err
	}

	pct, err := validPCT(ctx, c, req.PCT)
	if err != nil {
		return goidc.TokenResponse{}, err
	}

	var previous *goidc.UMARPT
	if req.RPT != "" {
		if previous, err = validRPT(ctx, c, req.RPT); err != nil {
			return goidc.TokenResponse{}, err
		}
	}

	claims := map[string]any{}
	if pct != nil {
		maps.Copy(claims, pct.Claims)
	}
	maps.Copy(claims, req.Claims)

	granted, err := ctx.UMAPolicy(goidc.UMAPolicyContext{
		ClientID:        c.ID,
		Resource:        r,
		RequestedScopes: requested,
		Claims:          claims,
	})
	if err != nil {
		var oidcErr goidc.Error
		if errors.As(err, &oidcErr) {
			return goidc.TokenResponse{}, err
		}
		return goidc.TokenResponse{}, goidc.WrapError(goidc.ErrorCodeInternalError, "could not evaluate the policy", err)
	}

	granted = slices.DeleteFunc(slices.Clone(granted), func(s string) bool {
		return !slices.Contains(requested, s)
	})
	if len(granted) == 0 {
		return goidc.TokenResponse{}, goidc.NewError(goidc.ErrorCodeAccessDenied, "no scope was granted")
	}

	// Consuming is what makes the ticket single use. A concurrent exchange
	// that consumed it first wins.
	if _, err := ctx.ConsumeUMATicket(ticket.Ticket); err != nil {
		return goidc.TokenResponse{}, invalidGrantOrStoreError("invalid ticket", err)
	}

	pctCode, err := persistClaims(ctx, c, pct, claims)
	if err != nil {
		return goidc.TokenResponse{}, err
	}

	now := ctx.TimestampNow()
	permissions := []goidc.UMAPermission{{
		ResourceID:         r.ID,
		Scopes:             granted,
		ExpiresAtTimestamp: now + ctx.UMARPTLifetimeSecs,
	}}
	if previous != nil {
		permissions = mergePermissions(activePermissions(previous, now), permissions)
	}

	rpt, err := issueRPT(ctx, c, permissions, pctCode)
	if err != nil {
		return goidc.TokenResponse{}, err
	}

	if previous != nil {
		// The upgraded RPT replaces the one informed.
		if err := ctx.DeleteUMARPT(previous.Code); err != nil && !errors.Is(err, goidc.ErrNotFound) {
			ctx.Logger.Warn("could not remove the upgraded rpt", slog.String("error", err.Error()))
		}
	}

	ctx.Logger.Debug("rpt issued", slog.String("client_id", c.ID), slog.String("resource_id", r.ID),
		slog.Bool("upgraded", previous != nil))
	return goidc.TokenResponse{
		AccessToken: rpt,
		TokenType:   goidc.TokenTypeBearer,
		ExpiresIn:   ctx.UMARPTLifetimeSecs,
		PCT:         pctCode,
		Upgraded:    previous != nil,
	}, nil
}

func validTicket(ctx oidc.Context, ticket string) (*goidc.UMAPermissionTicket, error) {
	if ticket == "" {
		return nil, goidc.NewError(goidc.ErrorCodeInvalidRequest, "ticket is required")
	}

	t, err := ctx.UMATicket(ticket)
	if err != nil {
		return nil, invalidGrantOrStoreError("invalid ticket", err)
	}

	if t.IsExpired(ctx.TimestampNow()) {
		return nil, goidc.NewError(goidc.ErrorCodeInvalidGrant, "the ticket is expired")
	}

	return t, nil
}

// requestedScopes returns the scopes of the ticket plus the ones requested
// by the client. All of them must be registered for the resource.
func requestedScopes(r *goidc.UMAResource, t *goidc.UMAPermissionTicket, scopes string) ([]string, error) {
	requested := slices.Clone(t.Scopes)
	for _, s := range strutil.SplitWithSpaces(scopes) {
		if !slices.Contains(requested, s) {
			requested = append(requested, s)
		}
	}

	if !r.HasScopes(requested) {
		return nil, goidc.NewError(goidc.ErrorCodeInvalidScope, "the scopes were not registered for the resource")
	}

	return requested, nil
}

func validPCT(ctx oidc.Context, c *goidc.Client, code string) (*goidc.UMAPCT, error) {
	if code == "" {
		return nil, nil
	}

	pct, err := ctx.UMAPCT(code)
	if err != nil {
		return nil, invalidGrantOrStoreError("invalid pct", err)
	}

	if pct.ClientID != c.ID || pct.IsExpired(ctx.TimestampNow()) {
		return nil, goidc.NewError(goidc.ErrorCodeInvalidGrant, "invalid pct")
	}

	return pct, nil
}

func validRPT(ctx oidc.Context, c *goidc.Client, value string) (*goidc.UMARPT, error) {
	code := value
	if jwtutil.IsJWS(value) {
		claims, err := ctx.ParseSigned(value)
		if err != nil {
			return nil, goidc.WrapError(goidc.ErrorCodeInvalidGrant, "invalid rpt", err)
		}
		code = claims.String(goidc.ClaimTokenID)
	}

	rpt, err := ctx.UMARPT(code)
	if err != nil {
		return nil, invalidGrantOrStoreError("invalid rpt", err)
	}

	if rpt.ClientID != c.ID || rpt.IsExpired(ctx.TimestampNow()) {
		return nil, goidc.NewError(goidc.ErrorCodeInvalidGrant, "invalid rpt")
	}

	return rpt, nil
}

// persistClaims stores the claims gathered so far in a PCT and returns its
// code. A PCT informed in the request is updated instead of replaced.
func persistClaims(ctx oidc.Context, c *goidc.Client, pct *goidc.UMAPCT, claims map[string]any) (string, error) {
	if len(claims) == 0 {
		if pct != nil {
			return pct.Code, nil
		}
		return "", nil
	}

	now := ctx.TimestampNow()
	if pct == nil {
		pct = &goidc.UMAPCT{
			Code:               strutil.Random(pctLength),
			ClientID:           c.ID,
			CreatedAtTimestamp: now,
			Deletable:          true,
		}
	}
	pct.Claims = claims
	pct.ExpiresAtTimestamp = now + ctx.UMAPCTLifetimeSecs

	if err := ctx.SaveUMAPCT(pct); err != nil {
		return "", err
	}
	return pct.Code, nil
}

func issueRPT(ctx oidc.Context, c *goidc.Client, permissions []goidc.UMAPermission, pctCode string) (string, error) {
	now := ctx.TimestampNow()
	rpt := &goidc.UMARPT{
		Format:             ctx.UMARPTFormat,
		ClientID:           c.ID,
		Permissions:        permissions,
		PCTCode:            pctCode,
		CreatedAtTimestamp: now,
		ExpiresAtTimestamp: now + ctx.UMARPTLifetimeSecs,
		Deletable:          true,
	}

	value := ""
	if rpt.Format == goidc.TokenFormatJWT {
		rpt.Code = uuid.NewString()
		jwt, err := ctx.Sign(jwtutil.Claims{
			goidc.ClaimTokenID:     rpt.Code,
			goidc.ClaimIssuer:      ctx.Issuer(),
			goidc.ClaimClientID:    rpt.ClientID,
			goidc.ClaimIssuedAt:    rpt.CreatedAtTimestamp,
			goidc.ClaimExpiry:      rpt.ExpiresAtTimestamp,
			goidc.ClaimPermissions: rpt.Permissions,
		}, typeRPT)
		if err != nil {
			return "", goidc.WrapError(goidc.ErrorCodeInternalError, "could not sign the rpt", err)
		}
		value = jwt
	} else {
		rpt.Format = goidc.TokenFormatOpaque
		rpt.Code = strutil.Random(rptLength)
		value = rpt.Code
	}

	if err := ctx.SaveUMARPT(rpt); err != nil {
		return "", err
	}
	ctx.Metrics.TokenIssued(string(goidc.TokenHintRPT), string(goidc.GrantUMATicket))
	return value, nil
}

// IntrospectRPT lets a resource server check an RPT and read the
// permissions it carries.
func IntrospectRPT(ctx oidc.Context, pat, rpt string) (goidc.TokenInfo, error) {
	if _, err := protectionClient(ctx, pat); err != nil {
		return goidc.TokenInfo{}, err
	}

	info, err := token.IntrospectToken(ctx, rpt, goidc.TokenHintRPT)
	if err != nil {
		return goidc.TokenInfo{}, err
	}

	if info.IsActive && info.Type != goidc.TokenHintRPT {
		return goidc.TokenInfo{IsActive: false}, nil
	}
	return info, nil
}

func activePermissions(rpt *goidc.UMARPT, now int) []goidc.UMAPermission {
	var permissions []goidc.UMAPermission
	for _, p := range rpt.Permissions {
		if !goidc.IsExpired(p.ExpiresAtTimestamp, now) {
			permissions = append(permissions, p)
		}
	}
	return permissions
}

// mergePermissions adds the new permissions to the existing ones. Scopes of
// the same resource are joined and the latest expiration is kept.
func mergePermissions(existing, added []goidc.UMAPermission) []goidc.UMAPermission {
	merged := slices.Clone(existing)
	for _, p := range added {
		i := slices.IndexFunc(merged, func(m goidc.UMAPermission) bool {
			return m.ResourceID == p.ResourceID
		})
		if i == -1 {
			merged = append(merged, p)
			continue
		}

		scopes := slices.Clone(merged[i].Scopes)
		for _, s := range p.Scopes {
			if !slices.Contains(scopes, s) {
				scopes = append(scopes, s)
			}
		}
		merged[i] = goidc.UMAPermission{
			ResourceID:         p.ResourceID,
			Scopes:             scopes,
			ExpiresAtTimestamp: max(merged[i].ExpiresAtTimestamp, p.ExpiresAtTimestamp),
		}
	}
	return merged
}

func invalidGrantOrStoreError(desc string, err error) error {
	if errors.Is(err, goidc.ErrNotFound) {
		return goidc.WrapError(goidc.ErrorCodeInvalidGrant, desc, err)
	}
	return goidc.StoreError(desc, err)
}
