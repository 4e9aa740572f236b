package uma

import (
	"log/slog"
	"slices"

	"github.com/luikyv/go-authority/internal/oidc"
	"github.com/luikyv/go-authority/internal/strutil"
	"github.com/luikyv/go-authority/pkg/goidc"
)

// PermissionRequest asks for a ticket to access the resource with the
// scopes. When no scopes are informed, every scope of the resource is
// requested.
type PermissionRequest struct {
	ResourceID        string
	Scopes            []string
	ConfigurationCode string
}

// CreateTicket issues a permission ticket the resource server hands to the
// requesting party that tried to access the resource without a valid RPT.
func CreateTicket(ctx oidc.Context, pat string, req PermissionRequest) (string, error) {
	clientID, err := protectionClient(ctx, pat)
	if err != nil {
		return "", err
	}

	r, err := ownedResource(ctx, clientID, req.ResourceID)
	if err != nil {
		return "", err
	}

	scopes := req.Scopes
	if len(scopes) == 0 {
		scopes = r.Scopes
	}

	if !r.HasScopes(scopes) {
		return "", goidc.NewError(goidc.ErrorCodeInvalidScope, "the scopes were not registered for the resource")
	}

	now := ctx.TimestampNow()
	t := &goidc.UMAPermissionTicket{
		Ticket:             strutil.Random(ticketLength),
		ResourceID:         r.ID,
		Scopes:             slices.Clone(scopes),
		ConfigurationCode:  req.ConfigurationCode,
		ClientID:           clientID,
		CreatedAtTimestamp: now,
		ExpiresAtTimestamp: now + ctx.UMATicketLifetimeSecs,
		Deletable:          true,
	}
	if err := ctx.SaveUMATicket(t); err != nil {
		return "", err
	}

	ctx.Logger.Debug("uma permission ticket issued", slog.String("client_id", clientID),
		slog.String("resource_id", r.ID))
	return t.Ticket, nil
}
