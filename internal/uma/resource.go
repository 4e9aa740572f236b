package uma

import (
	"errors"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"github.com/luikyv/go-authority/internal/oidc"
	"github.com/luikyv/go-authority/pkg/goidc"
)

// Resource is the description of a protected resource as informed by the
// resource server.
type Resource struct {
	Name        string
	Description string
	Type        string
	IconURI     string
	Scopes      []string
}

func CreateResource(ctx oidc.Context, pat string, res Resource) (*goidc.UMAResource, error) {
	clientID, err := protectionClient(ctx, pat)
	if err != nil {
		return nil, err
	}

	if err := validateResource(res); err != nil {
		return nil, err
	}

	now := ctx.TimestampNow()
	r := &goidc.UMAResource{
		ID:                 uuid.NewString(),
		ClientID:           clientID,
		CreatedAtTimestamp: now,
		Deletable:          true,
	}
	if ctx.UMAResourceLifetimeSecs != 0 {
		r.ExpiresAtTimestamp = now + ctx.UMAResourceLifetimeSecs
	}
	setDescription(r, res)

	if err := ctx.SaveUMAResource(r); err != nil {
		return nil, err
	}

	ctx.Logger.Debug("uma resource registered", slog.String("client_id", clientID), slog.String("resource_id", r.ID))
	return r, nil
}

func GetResource(ctx oidc.Context, pat, id string) (*goidc.UMAResource, error) {
	clientID, err := protectionClient(ctx, pat)
	if err != nil {
		return nil, err
	}

	return ownedResource(ctx, clientID, id)
}

// UpdateResource replaces the description of the resource. Its id, owner
// and lifetime are kept.
func UpdateResource(ctx oidc.Context, pat, id string, res Resource) (*goidc.UMAResource, error) {
	clientID, err := protectionClient(ctx, pat)
	if err != nil {
		return nil, err
	}

	if err := validateResource(res); err != nil {
		return nil, err
	}

	r, err := ownedResource(ctx, clientID, id)
	if err != nil {
		return nil, err
	}

	setDescription(r, res)
	if err := ctx.SaveUMAResource(r); err != nil {
		return nil, err
	}
	return r, nil
}

func DeleteResource(ctx oidc.Context, pat, id string) error {
	clientID, err := protectionClient(ctx, pat)
	if err != nil {
		return err
	}

	if _, err := ownedResource(ctx, clientID, id); err != nil {
		return err
	}

	if err := ctx.DeleteUMAResource(id); err != nil {
		return goidc.StoreError("could not delete the resource", err)
	}

	ctx.Logger.Debug("uma resource deleted", slog.String("client_id", clientID), slog.String("resource_id", id))
	return nil
}

// ListResources returns the ids of the resources the resource server
// registered.
func ListResources(ctx oidc.Context, pat string) ([]string, error) {
	clientID, err := protectionClient(ctx, pat)
	if err != nil {
		return nil, err
	}

	resources, err := ctx.UMAResourcesByClient(clientID)
	if err != nil {
		return nil, goidc.StoreError("could not list the resources", err)
	}

	now := ctx.TimestampNow()
	ids := []string{}
	for _, r := range resources {
		if !r.IsExpired(now) {
			ids = append(ids, r.ID)
		}
	}
	return ids, nil
}

// ownedResource loads the resource if it was registered by the client.
// Resources of other clients are reported as not existing.
func ownedResource(ctx oidc.Context, clientID, id string) (*goidc.UMAResource, error) {
	r, err := ctx.UMAResource(id)
	if err != nil {
		if errors.Is(err, goidc.ErrNotFound) {
			return nil, goidc.WrapError(goidc.ErrorCodeInvalidResourceID, "invalid resource id", err)
		}
		return nil, goidc.StoreError("could not load the resource", err)
	}

	if r.ClientID != clientID || r.IsExpired(ctx.TimestampNow()) {
		return nil, goidc.NewError(goidc.ErrorCodeInvalidResourceID, "invalid resource id")
	}

	return r, nil
}

func validateResource(res Resource) error {
	if len(res.Scopes) == 0 {
		return goidc.NewError(goidc.ErrorCodeInvalidRequest, "resource_scopes is required")
	}

	if slices.Contains(res.Scopes, "") {
		return goidc.NewError(goidc.ErrorCodeInvalidRequest, "resource scopes cannot be empty")
	}

	return nil
}

func setDescription(r *goidc.UMAResource, res Resource) {
	r.Name = res.Name
	r.Description = res.Description
	r.Type = res.Type
	r.IconURI = res.IconURI
	r.Scopes = slices.Clone(res.Scopes)
}
