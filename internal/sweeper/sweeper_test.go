package sweeper_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/luikyv/go-authority/internal/storage"
	"github.com/luikyv/go-authority/internal/sweeper"
	"github.com/luikyv/go-authority/pkg/goidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Unix(1_700_000_000, 0).UTC()

func TestSweepOnce_ExpiredDeletableClientIsRemoved(t *testing.T) {
	// Given.
	clients := storage.NewClientManager()
	saveClient(t, clients, "expired_client", now.Add(-time.Hour), true)
	s := newSweeper(clients)

	// When.
	reports, err := s.SweepOnce(context.Background())

	// Then.
	require.NoError(t, err)
	_, err = clients.Client(context.Background(), "expired_client")
	assert.ErrorIs(t, err, goidc.ErrNotFound)

	want := []sweeper.Report{{Family: "client", Scanned: 1, Deleted: 1}}
	if diff := cmp.Diff(reports, want); diff != "" {
		t.Error(diff)
	}
}

func TestSweepOnce_NonDeletableClientIsKept(t *testing.T) {
	// Given.
	clients := storage.NewClientManager()
	saveClient(t, clients, "audit_client", now.Add(-time.Hour), false)
	s := newSweeper(clients)

	// When.
	for range 3 {
		_, err := s.SweepOnce(context.Background())
		require.NoError(t, err)
	}

	// Then.
	_, err := clients.Client(context.Background(), "audit_client")
	assert.NoError(t, err)
}

func TestSweepOnce_ClientRenewedAfterListingIsKept(t *testing.T) {
	// Given.
	clients := storage.NewClientManager()
	saveClient(t, clients, "renewed_client", now.Add(-time.Hour), true)
	saveClient(t, clients, "audit_client", now.Add(-time.Hour), true)
	index := renewingIndex{
		ClientManager: clients,
		renew: func() {
			saveClient(t, clients, "renewed_client", now.Add(24*time.Hour), false)
			saveClient(t, clients, "audit_client", now.Add(-time.Hour), false)
		},
	}
	s := sweeper.New([]sweeper.Family{{Name: "client", Index: index}},
		sweeper.WithClock(fixedClock), sweeper.WithLogger(discardLogger()))

	// When.
	reports, err := s.SweepOnce(context.Background())

	// Then.
	require.NoError(t, err)
	for _, id := range []string{"renewed_client", "audit_client"} {
		_, err := clients.Client(context.Background(), id)
		assert.NoError(t, err, id)
	}
	for _, r := range reports {
		assert.Zero(t, r.Deleted)
		assert.Zero(t, r.Failed)
	}
}

func TestSweepOnce_IsIdempotent(t *testing.T) {
	// Given.
	clients := storage.NewClientManager()
	saveClient(t, clients, "expired_client", now.Add(-time.Hour), true)
	saveClient(t, clients, "audit_client", now.Add(-time.Hour), false)
	saveClient(t, clients, "active_client", now.Add(time.Hour), true)
	saveClient(t, clients, "permanent_client", time.Time{}, true)
	s := newSweeper(clients)
	_, err := s.SweepOnce(context.Background())
	require.NoError(t, err)

	// When.
	reports, err := s.SweepOnce(context.Background())

	// Then.
	require.NoError(t, err)
	assert.Equal(t, []sweeper.Report{{Family: "client", Scanned: 1, Skipped: 1}}, reports)
	for _, id := range []string{"audit_client", "active_client", "permanent_client"} {
		_, err := clients.Client(context.Background(), id)
		assert.NoError(t, err, id)
	}
}

func TestSweepOnce_KeptEntitiesDoNotStarveDeletableOnes(t *testing.T) {
	// Given.
	clients := storage.NewClientManager()
	for i := range 5 {
		saveClient(t, clients, fmt.Sprintf("audit_%d", i), now.Add(-2*time.Hour), false)
	}
	for i := range 5 {
		saveClient(t, clients, fmt.Sprintf("expired_%d", i), now.Add(-time.Hour), true)
	}
	s := newSweeper(clients, sweeper.WithBatchSize(2))

	// When.
	reports, err := s.SweepOnce(context.Background())

	// Then.
	require.NoError(t, err)
	assert.Equal(t, []sweeper.Report{{Family: "client", Scanned: 10, Deleted: 5, Skipped: 5}}, reports)
}

func TestSweepOnce_FailuresDoNotAbortThePass(t *testing.T) {
	// Given.
	failing := &failingIndex{
		entries: []goidc.ExpiredEntry{
			{ID: "1", ExpiresAtTimestamp: 1, Deletable: true},
			{ID: "2", ExpiresAtTimestamp: 2, Deletable: true},
		},
		failDelete: map[string]bool{"1": true},
	}
	broken := &failingIndex{listErr: errors.New("connection refused")}
	clients := storage.NewClientManager()
	saveClient(t, clients, "expired_client", now.Add(-time.Hour), true)
	s := sweeper.New([]sweeper.Family{
		{Name: "failing", Index: failing},
		{Name: "broken", Index: broken},
		{Name: "client", Index: clients},
	}, sweeper.WithClock(fixedClock), sweeper.WithLogger(discardLogger()))

	// When.
	reports, err := s.SweepOnce(context.Background())

	// Then.
	assert.Error(t, err, "the listing failure must be reported")
	want := []sweeper.Report{
		{Family: "failing", Scanned: 2, Deleted: 1, Failed: 1},
		{Family: "broken"},
		{Family: "client", Scanned: 1, Deleted: 1},
	}
	if diff := cmp.Diff(reports, want); diff != "" {
		t.Error(diff)
	}
}

func TestSweepOnce_StopsWhenTheContextIsDone(t *testing.T) {
	// Given.
	clients := storage.NewClientManager()
	saveClient(t, clients, "expired_client", now.Add(-time.Hour), true)
	s := newSweeper(clients)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// When.
	reports, err := s.SweepOnce(ctx)

	// Then.
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, reports)
	_, err = clients.Client(context.Background(), "expired_client")
	assert.NoError(t, err)
}

func TestSweepOnce_EveryFamily(t *testing.T) {
	// Given.
	expired := int(now.Add(-time.Minute).Unix())
	ctx := context.Background()
	tokens := storage.NewTokenManager()
	require.NoError(t, tokens.Save(ctx, &goidc.Token{Code: "token", ExpiresAtTimestamp: expired, Deletable: true}))
	sessions := storage.NewSessionManager()
	require.NoError(t, sessions.Save(ctx, &goidc.Session{ID: "session", ExpiresAtTimestamp: expired, Deletable: true}))
	pending := storage.NewPendingAuthorizationManager()
	require.NoError(t, pending.Save(ctx, &goidc.PendingAuthorization{ID: "device", ExpiresAtTimestamp: expired, Deletable: true}))
	tickets := storage.NewUMATicketManager()
	require.NoError(t, tickets.Save(ctx, &goidc.UMAPermissionTicket{Ticket: "ticket", ExpiresAtTimestamp: expired, Deletable: true}))
	rpts := storage.NewUMARPTManager()
	require.NoError(t, rpts.Save(ctx, &goidc.UMARPT{Code: "rpt", ExpiresAtTimestamp: expired, Deletable: true}))
	pcts := storage.NewUMAPCTManager()
	require.NoError(t, pcts.Save(ctx, &goidc.UMAPCT{Code: "pct", ExpiresAtTimestamp: expired, Deletable: false}))

	s := sweeper.New([]sweeper.Family{
		{Name: "token", Index: tokens},
		{Name: "session", Index: sessions},
		{Name: "pending_authorization", Index: pending},
		{Name: "uma_ticket", Index: tickets},
		{Name: "uma_rpt", Index: rpts},
		{Name: "uma_pct", Index: pcts},
	}, sweeper.WithClock(fixedClock), sweeper.WithLogger(discardLogger()))

	// When.
	reports, err := s.SweepOnce(ctx)

	// Then.
	require.NoError(t, err)
	deleted := 0
	for _, r := range reports {
		deleted += r.Deleted
	}
	assert.Equal(t, 5, deleted)
	_, err = pcts.PCT(ctx, "pct")
	assert.NoError(t, err)
	_, err = tokens.Token(ctx, "token")
	assert.ErrorIs(t, err, goidc.ErrNotFound)
}

func TestStartStop(t *testing.T) {
	// Given.
	clients := storage.NewClientManager()
	saveClient(t, clients, "expired_client", now.Add(-time.Hour), true)
	s := newSweeper(clients, sweeper.WithInterval(10*time.Millisecond))

	// When.
	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()), "starting twice must fail")

	// Then.
	assert.Eventually(t, func() bool {
		_, err := clients.Client(context.Background(), "expired_client")
		return errors.Is(err, goidc.ErrNotFound)
	}, time.Second, 10*time.Millisecond)

	s.Stop()
	s.Stop()
	require.NoError(t, s.Start(context.Background()), "a stopped sweeper can be started again")
	s.Stop()
}

func newSweeper(clients *storage.ClientManager, opts ...sweeper.Option) *sweeper.Sweeper {
	opts = append([]sweeper.Option{sweeper.WithClock(fixedClock), sweeper.WithLogger(discardLogger())}, opts...)
	return sweeper.New([]sweeper.Family{{Name: "client", Index: clients}}, opts...)
}

func saveClient(t *testing.T, clients *storage.ClientManager, id string, expiresAt time.Time, deletable bool) {
	t.Helper()

	c := &goidc.Client{ID: id, Deletable: deletable}
	if !expiresAt.IsZero() {
		c.ExpiresAtTimestamp = int(expiresAt.Unix())
	}
	require.NoError(t, clients.Save(context.Background(), c))
}

func fixedClock() time.Time {
	return now
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type failingIndex struct {
	entries    []goidc.ExpiredEntry
	failDelete map[string]bool
	listErr    error
}

func (i *failingIndex) Expired(_ context.Context, _, offset, limit int) ([]goidc.ExpiredEntry, error) {
	if i.listErr != nil {
		return nil, i.listErr
	}
	if offset >= len(i.entries) {
		return nil, nil
	}
	return i.entries[offset:min(offset+limit, len(i.entries))], nil
}

func (i *failingIndex) Delete(_ context.Context, id string) error {
	i.entries = slicesDelete(i.entries, id)
	return nil
}

func (i *failingIndex) DeleteExpired(_ context.Context, id string, _ int) (bool, error) {
	if i.failDelete[id] {
		return false, errors.New("delete failed")
	}
	i.entries = slicesDelete(i.entries, id)
	return true, nil
}

// renewingIndex renews a client right after it is listed, like a concurrent
// update landing between the query and the delete.
type renewingIndex struct {
	*storage.ClientManager
	renew func()
}

func (i renewingIndex) Expired(ctx context.Context, before, offset, limit int) ([]goidc.ExpiredEntry, error) {
	entries, err := i.ClientManager.Expired(ctx, before, offset, limit)
	if err == nil && len(entries) != 0 {
		i.renew()
	}
	return entries, err
}

func slicesDelete(entries []goidc.ExpiredEntry, id string) []goidc.ExpiredEntry {
	var kept []goidc.ExpiredEntry
	for _, e := range entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	return kept
}
