package goidc

import (
	"context"
	"slices"
)

type UMAResourceManager interface {
	Save(ctx context.Context, resource *UMAResource) error
	Resource(ctx context.Context, id string) (*UMAResource, error)
	ResourcesByClient(ctx context.Context, clientID string) ([]*UMAResource, error)
	ExpirationIndex
}

type UMATicketManager interface {
	Save(ctx context.Context, ticket *UMAPermissionTicket) error
	Ticket(ctx context.Context, ticket string) (*UMAPermissionTicket, error)
	// Consume atomically loads and removes the ticket.
	Consume(ctx context.Context, ticket string) (*UMAPermissionTicket, error)
	ExpirationIndex
}

type UMARPTManager interface {
	Save(ctx context.Context, rpt *UMARPT) error
	RPT(ctx context.Context, code string) (*UMARPT, error)
	ExpirationIndex
}

type UMAPCTManager interface {
	Save(ctx context.Context, pct *UMAPCT) error
	PCT(ctx context.Context, code string) (*UMAPCT, error)
	ExpirationIndex
}

// UMAResource is a protected resource description registered by a resource
// server on behalf of a resource owner.
type UMAResource struct {
	ID          string   `json:"_id" bson:"_id"`
	Name        string   `json:"name" bson:"name"`
	Description string   `json:"description,omitempty" bson:"description,omitempty"`
	Type        string   `json:"type,omitempty" bson:"type,omitempty"`
	IconURI     string   `json:"icon_uri,omitempty" bson:"icon_uri,omitempty"`
	Scopes      []string `json:"resource_scopes" bson:"resource_scopes"`
	// ClientID is the resource server that registered the resource.
	ClientID           string `json:"client_id" bson:"client_id"`
	CreatedAtTimestamp int    `json:"created_at" bson:"created_at"`
	// ExpiresAtTimestamp is zero for resources that never expire.
	ExpiresAtTimestamp int  `json:"expires_at,omitempty" bson:"expires_at"`
	Deletable          bool `json:"deletable" bson:"deletable"`
}

func (r *UMAResource) IsExpired(now int) bool {
	return IsExpired(r.ExpiresAtTimestamp, now)
}

// HasScopes reports whether all scopes were registered for the resource.
func (r *UMAResource) HasScopes(scopes []string) bool {
	for _, s := range scopes {
		if !slices.Contains(r.Scopes, s) {
			return false
		}
	}
	return true
}

// UMAPermissionTicket binds a resource and the scopes required to access it.
type UMAPermissionTicket struct {
	Ticket            string   `json:"ticket" bson:"_id"`
	ResourceID        string   `json:"resource_id" bson:"resource_id"`
	Scopes            []string `json:"scopes" bson:"scopes"`
	ConfigurationCode string   `json:"configuration_code,omitempty" bson:"configuration_code,omitempty"`
	// ClientID is the resource server that requested the ticket.
	ClientID           string `json:"client_id" bson:"client_id"`
	CreatedAtTimestamp int    `json:"created_at" bson:"created_at"`
	ExpiresAtTimestamp int    `json:"expires_at" bson:"expires_at"`
	Deletable          bool   `json:"deletable" bson:"deletable"`
}

func (t *UMAPermissionTicket) IsExpired(now int) bool {
	return IsExpired(t.ExpiresAtTimestamp, now)
}

// UMAPermission is one permission granted inside an RPT.
type UMAPermission struct {
	ResourceID         string   `json:"resource_id" bson:"resource_id"`
	Scopes             []string `json:"resource_scopes" bson:"resource_scopes"`
	ExpiresAtTimestamp int      `json:"exp,omitempty" bson:"exp,omitempty"`
}

// UMARPT is the requesting party token.
type UMARPT struct {
	Code               string          `json:"code" bson:"_id"`
	Format             TokenFormat     `json:"format,omitempty" bson:"format,omitempty"`
	ClientID           string          `json:"client_id" bson:"client_id"`
	Permissions        []UMAPermission `json:"permissions" bson:"permissions"`
	PCTCode            string          `json:"pct,omitempty" bson:"pct,omitempty"`
	CreatedAtTimestamp int             `json:"created_at" bson:"created_at"`
	ExpiresAtTimestamp int             `json:"expires_at" bson:"expires_at"`
	Deletable          bool            `json:"deletable" bson:"deletable"`
}

func (r *UMARPT) IsExpired(now int) bool {
	return IsExpired(r.ExpiresAtTimestamp, now)
}

// UMAPCT is the persisted claims token. It caches claims gathered for a
// requesting party so they don't need to be gathered again.
type UMAPCT struct {
	Code               string         `json:"code" bson:"_id"`
	ClientID           string         `json:"client_id" bson:"client_id"`
	Claims             map[string]any `json:"claims,omitempty" bson:"claims,omitempty"`
	CreatedAtTimestamp int            `json:"created_at" bson:"created_at"`
	ExpiresAtTimestamp int            `json:"expires_at" bson:"expires_at"`
	Deletable          bool           `json:"deletable" bson:"deletable"`
}

func (p *UMAPCT) IsExpired(now int) bool {
	return IsExpired(p.ExpiresAtTimestamp, now)
}

// UMAPolicyContext is the input of a policy decision.
type UMAPolicyContext struct {
	ClientID        string
	Resource        *UMAResource
	RequestedScopes []string
	// Claims are the claims pushed with the request merged with the ones
	// persisted in the PCT.
	Claims map[string]any
}

// UMAPolicyFunc decides which of the requested scopes are granted. Returning
// an [Error] with code [ErrorCodeNeedInfo] asks the requesting party for more
// claims.
type UMAPolicyFunc func(ctx context.Context, pc UMAPolicyContext) ([]string, error)
