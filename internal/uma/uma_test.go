package uma_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/luikyv/go-authority/internal/clientutil"
	"github.com/luikyv/go-authority/internal/oidc"
	"github.com/luikyv/go-authority/internal/oidctest"
	"github.com/luikyv/go-authority/internal/token"
	"github.com/luikyv/go-authority/internal/uma"
	"github.com/luikyv/go-authority/pkg/goidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTicketExchange(t *testing.T) {
	// Given.
	ctx, _ := oidctest.NewContext(t)
	pat := protectionToken(t, ctx)
	r := createResource(t, ctx, pat, "read", "write")
	ticket, err := uma.CreateTicket(ctx, pat, uma.PermissionRequest{ResourceID: r.ID})
	require.NoError(t, err)

	// When.
	resp, err := uma.Generate(ctx, uma.TicketRequest{
		Credentials: credentials(),
		Ticket:      ticket,
	})

	// Then.
	require.NoError(t, err)
	assert.Equal(t, goidc.TokenTypeBearer, resp.TokenType)
	assert.Equal(t, ctx.UMARPTLifetimeSecs, resp.ExpiresIn)
	assert.False(t, resp.Upgraded)

	info, err := uma.IntrospectRPT(ctx, pat, resp.AccessToken)
	require.NoError(t, err)
	assert.True(t, info.IsActive)
	assert.Equal(t, []goidc.UMAPermission{{
		ResourceID:         r.ID,
		Scopes:             []string{"read", "write"},
		ExpiresAtTimestamp: oidctest.Timestamp + ctx.UMARPTLifetimeSecs,
	}}, info.Permissions)

	_, err = uma.Generate(ctx, uma.TicketRequest{Credentials: credentials(), Ticket: ticket})
	assertErrorCode(t, err, goidc.ErrorCodeInvalidGrant)
}

func TestTicketExchange_ExpiredTicket(t *testing.T) {
	// Given.
	ctx, clock := oidctest.NewContext(t)
	pat := protectionToken(t, ctx)
	r := createResource(t, ctx, pat, "read")
	ticket, err := uma.CreateTicket(ctx, pat, uma.PermissionRequest{ResourceID: r.ID})
	require.NoError(t, err)
	clock.Advance(time.Duration(ctx.UMATicketLifetimeSecs+1) * time.Second)

	// When.
	_, err = uma.Generate(ctx, uma.TicketRequest{Credentials: credentials(), Ticket: ticket})

	// Then.
	assertErrorCode(t, err, goidc.ErrorCodeInvalidGrant)
}

func TestTicketExchange_SingleUseUnderConcurrency(t *testing.T) {
	// Given.
	ctx, _ := oidctest.NewContext(t)
	pat := protectionToken(t, ctx)
	r := createResource(t, ctx, pat, "read")
	ticket, err := uma.CreateTicket(ctx, pat, uma.PermissionRequest{ResourceID: r.ID})
	require.NoError(t, err)

	// When.
	var successes atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := uma.Generate(ctx, uma.TicketRequest{Credentials: credentials(), Ticket: ticket}); err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	// Then.
	assert.Equal(t, int32(1), successes.Load())
}

func TestTicketExchange_PolicyNeedsInfo(t *testing.T) {
	// Given.
	ctx, _ := oidctest.NewContext(t)
	ctx.UMAPolicyFunc = func(_ context.Context, pc goidc.UMAPolicyContext) ([]string, error) {
		if pc.Claims["email"] == nil {
			return nil, goidc.NewError(goidc.ErrorCodeNeedInfo, "the email is required")
		}
		return pc.RequestedScopes, nil
	}
	pat := protectionToken(t, ctx)
	r := createResource(t, ctx, pat, "read")
	ticket, err := uma.CreateTicket(ctx, pat, uma.PermissionRequest{ResourceID: r.ID})
	require.NoError(t, err)

	// When.
	_, err = uma.Generate(ctx, uma.TicketRequest{Credentials: credentials(), Ticket: ticket})

	// Then.
	assertErrorCode(t, err, goidc.ErrorCodeNeedInfo)

	// When the claims are pushed.
	resp, err := uma.Generate(ctx, uma.TicketRequest{
		Credentials: credentials(),
		Ticket:      ticket,
		Claims:      map[string]any{"email": "user@example.com"},
	})

	// Then.
	require.NoError(t, err, "the ticket must remain usable after need_info")
	require.NotEmpty(t, resp.PCT)

	// When the PCT is reused with a new ticket.
	ticket, err = uma.CreateTicket(ctx, pat, uma.PermissionRequest{ResourceID: r.ID})
	require.NoError(t, err)
	resp, err = uma.Generate(ctx, uma.TicketRequest{
		Credentials: credentials(),
		Ticket:      ticket,
		PCT:         resp.PCT,
	})

	// Then.
	require.NoError(t, err, "the persisted claims must be used")
}

func TestTicketExchange_PolicyGrantsPartially(t *testing.T) {
	// Given.
	ctx, _ := oidctest.NewContext(t)
	ctx.UMAPolicyFunc = func(_ context.Context, _ goidc.UMAPolicyContext) ([]string, error) {
		return []string{"read", "admin"}, nil
	}
	pat := protectionToken(t, ctx)
	r := createResource(t, ctx, pat, "read", "write")
	ticket, err := uma.CreateTicket(ctx, pat, uma.PermissionRequest{ResourceID: r.ID})
	require.NoError(t, err)

	// When.
	resp, err := uma.Generate(ctx, uma.TicketRequest{Credentials: credentials(), Ticket: ticket})

	// Then.
	require.NoError(t, err)
	rpt, err := ctx.UMARPT(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, []string{"read"}, rpt.Permissions[0].Scopes, "scopes not requested must not be granted")
}

func TestTicketExchange_RPTUpgrade(t *testing.T) {
	// Given.
	ctx, clock := oidctest.NewContext(t)
	pat := protectionToken(t, ctx)
	r1 := createResource(t, ctx, pat, "read")
	r2 := createResource(t, ctx, pat, "write")
	ticket, err := uma.CreateTicket(ctx, pat, uma.PermissionRequest{ResourceID: r1.ID})
	require.NoError(t, err)
	first, err := uma.Generate(ctx, uma.TicketRequest{Credentials: credentials(), Ticket: ticket})
	require.NoError(t, err)
	clock.Advance(10 * time.Second)

	// When.
	ticket, err = uma.CreateTicket(ctx, pat, uma.PermissionRequest{ResourceID: r2.ID})
	require.NoError(t, err)
	resp, err := uma.Generate(ctx, uma.TicketRequest{
		Credentials: credentials(),
		Ticket:      ticket,
		RPT:         first.AccessToken,
	})

	// Then.
	require.NoError(t, err)
	assert.True(t, resp.Upgraded)

	info, err := uma.IntrospectRPT(ctx, pat, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, []goidc.UMAPermission{
		{ResourceID: r1.ID, Scopes: []string{"read"}, ExpiresAtTimestamp: oidctest.Timestamp + ctx.UMARPTLifetimeSecs},
		{ResourceID: r2.ID, Scopes: []string{"write"}, ExpiresAtTimestamp: oidctest.Timestamp + 10 + ctx.UMARPTLifetimeSecs},
	}, info.Permissions)

	info, err = uma.IntrospectRPT(ctx, pat, first.AccessToken)
	require.NoError(t, err)
	assert.False(t, info.IsActive, "the upgraded rpt must be replaced")
}

func TestTicketExchange_JWTRPT(t *testing.T) {
	// Given.
	ctx, _ := oidctest.NewContext(t)
	ctx.UMARPTFormat = goidc.TokenFormatJWT
	pat := protectionToken(t, ctx)
	r := createResource(t, ctx, pat, "read")
	ticket, err := uma.CreateTicket(ctx, pat, uma.PermissionRequest{ResourceID: r.ID})
	require.NoError(t, err)

	// When.
	resp, err := uma.Generate(ctx, uma.TicketRequest{Credentials: credentials(), Ticket: ticket})

	// Then.
	require.NoError(t, err)
	claims := oidctest.SafeClaims(t, ctx, resp.AccessToken)
	assert.Equal(t, oidctest.ClientID, claims[goidc.ClaimClientID])
	assert.NotNil(t, claims[goidc.ClaimPermissions])

	info, err := uma.IntrospectRPT(ctx, pat, resp.AccessToken)
	require.NoError(t, err)
	assert.True(t, info.IsActive)
	assert.Equal(t, claims[goidc.ClaimTokenID], info.TokenID)
}

func TestTicketExchange_InvalidScope(t *testing.T) {
	// Given.
	ctx, _ := oidctest.NewContext(t)
	pat := protectionToken(t, ctx)
	r := createResource(t, ctx, pat, "read")
	ticket, err := uma.CreateTicket(ctx, pat, uma.PermissionRequest{ResourceID: r.ID})
	require.NoError(t, err)

	// When.
	_, err = uma.Generate(ctx, uma.TicketRequest{Credentials: credentials(), Ticket: ticket, Scopes: "delete"})

	// Then.
	assertErrorCode(t, err, goidc.ErrorCodeInvalidScope)
}

func TestCreateTicket(t *testing.T) {
	// Given.
	ctx, _ := oidctest.NewContext(t)
	pat := protectionToken(t, ctx)
	r := createResource(t, ctx, pat, "read")

	// When.
	first, err := uma.CreateTicket(ctx, pat, uma.PermissionRequest{ResourceID: r.ID})
	require.NoError(t, err)
	second, err := uma.CreateTicket(ctx, pat, uma.PermissionRequest{ResourceID: r.ID})
	require.NoError(t, err)

	// Then.
	assert.Len(t, first, 60)
	assert.NotEqual(t, first, second)
	ticket, err := ctx.UMATicket(first)
	require.NoError(t, err)
	assert.Equal(t, r.ID, ticket.ResourceID)
	assert.Equal(t, []string{"read"}, ticket.Scopes)
}

func TestCreateTicket_InvalidRequests(t *testing.T) {
	// Given.
	ctx, _ := oidctest.NewContext(t)
	pat := protectionToken(t, ctx)
	r := createResource(t, ctx, pat, "read")

	// Then.
	_, err := uma.CreateTicket(ctx, pat, uma.PermissionRequest{ResourceID: "unknown"})
	assertErrorCode(t, err, goidc.ErrorCodeInvalidResourceID)

	_, err = uma.CreateTicket(ctx, pat, uma.PermissionRequest{ResourceID: r.ID, Scopes: []string{"write"}})
	assertErrorCode(t, err, goidc.ErrorCodeInvalidScope)

	_, err = uma.CreateTicket(ctx, "invalid_pat", uma.PermissionRequest{ResourceID: r.ID})
	assertErrorCode(t, err, goidc.ErrorCodeInvalidToken)
}

func TestResourceCRUD(t *testing.T) {
	// Given.
	ctx, _ := oidctest.NewContext(t)
	pat := protectionToken(t, ctx)
	r := createResource(t, ctx, pat, "read")
	assert.Equal(t, oidctest.ClientID, r.ClientID)
	assert.Zero(t, r.ExpiresAtTimestamp, "resources never expire by default")

	// When.
	updated, err := uma.UpdateResource(ctx, pat, r.ID, uma.Resource{Name: "photos", Scopes: []string{"read", "write"}})

	// Then.
	require.NoError(t, err)
	assert.Equal(t, r.ID, updated.ID)
	assert.Equal(t, []string{"read", "write"}, updated.Scopes)

	got, err := uma.GetResource(ctx, pat, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "photos", got.Name)

	ids, err := uma.ListResources(ctx, pat)
	require.NoError(t, err)
	assert.Equal(t, []string{r.ID}, ids)

	require.NoError(t, uma.DeleteResource(ctx, pat, r.ID))
	_, err = uma.GetResource(ctx, pat, r.ID)
	assertErrorCode(t, err, goidc.ErrorCodeInvalidResourceID)
}

func TestResource_OtherClientsCannotSeeIt(t *testing.T) {
	// Given.
	ctx, _ := oidctest.NewContext(t)
	r := createResource(t, ctx, protectionToken(t, ctx), "read")

	c := oidctest.NewClient(t)
	c.ID = "other_client"
	sealed, err := clientutil.Seal(oidctest.SecretKey, c.ID, oidctest.ClientSecret)
	require.NoError(t, err)
	c.SealedSecret = sealed
	require.NoError(t, ctx.SaveClient(c))
	resp, err := token.Generate(ctx, token.Request{
		GrantType:   goidc.GrantClientCredentials,
		Credentials: clientutil.Credentials{ID: c.ID, Secret: oidctest.ClientSecret},
		Scopes:      goidc.ScopeUMAProtection,
	})
	require.NoError(t, err)

	// When.
	_, err = uma.GetResource(ctx, resp.AccessToken, r.ID)

	// Then.
	assertErrorCode(t, err, goidc.ErrorCodeInvalidResourceID)
}

func TestCreateResource_PATWithoutProtectionScope(t *testing.T) {
	// Given.
	ctx, _ := oidctest.NewContext(t)
	resp, err := token.Generate(ctx, token.Request{
		GrantType:   goidc.GrantClientCredentials,
		Credentials: credentials(),
		Scopes:      oidctest.Scope1,
	})
	require.NoError(t, err)

	// When.
	_, err = uma.CreateResource(ctx, resp.AccessToken, uma.Resource{Scopes: []string{"read"}})

	// Then.
	assertErrorCode(t, err, goidc.ErrorCodeInvalidScope)
}

func TestCreateResource_ScopesAreRequired(t *testing.T) {
	ctx, _ := oidctest.NewContext(t)

	_, err := uma.CreateResource(ctx, protectionToken(t, ctx), uma.Resource{Name: "photos"})

	assertErrorCode(t, err, goidc.ErrorCodeInvalidRequest)
}

func credentials() clientutil.Credentials {
	return clientutil.Credentials{ID: oidctest.ClientID, Secret: oidctest.ClientSecret}
}

func protectionToken(t *testing.T, ctx oidc.Context) string {
	t.Helper()

	resp, err := token.Generate(ctx, token.Request{
		GrantType:   goidc.GrantClientCredentials,
		Credentials: credentials(),
		Scopes:      goidc.ScopeUMAProtection,
	})
	require.NoError(t, err)
	return resp.AccessToken
}

func createResource(t *testing.T, ctx oidc.Context, pat string, scopes ...string) *goidc.UMAResource {
	t.Helper()

	r, err := uma.CreateResource(ctx, pat, uma.Resource{Name: "resource", Scopes: scopes})
	require.NoError(t, err)
	return r
}

func assertErrorCode(t *testing.T, err error, code goidc.ErrorCode) {
	t.Helper()

	var oidcErr goidc.Error
	require.ErrorAs(t, err, &oidcErr)
	assert.Equal(t, code, oidcErr.Code)
}
