package clients

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mcdev12/tourney-auction/go/internal/auction/auctiontest"
	"github.com/mcdev12/tourney-auction/go/internal/auction/coordinator"
	"github.com/mcdev12/tourney-auction/go/internal/auction/gateway"
	"github.com/mcdev12/tourney-auction/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatewayClient(t *testing.T) {
	ctx := context.Background()
	f := auctiontest.New(t)
	co := coordinator.New(f.Store, coordinator.DefaultConfig(), coordinator.WithClock(f.Clock))
	f.AddTeam(1000, 5)
	ps := f.AddPlayers(2, 100)
	_, err := co.Enqueue(ctx, f.Key, auctiontest.IDs(ps), nil)
	require.NoError(t, err)

	r := chi.NewRouter()
	gateway.NewHandler(gateway.NewBroker(gateway.DefaultBrokerConfig(), f.Clock), co, gateway.DefaultConnectionConfig()).Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	c := NewGatewayClient(srv.URL)

	snap, err := c.State(ctx, f.Key)
	require.NoError(t, err)
	assert.Equal(t, f.Key.TournamentID, snap.TournamentID)
	assert.Len(t, snap.Queue, 2)
	assert.Len(t, snap.Budgets, 1)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Connections.TotalConnections)
}

func TestStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"nope"}`, http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	_, err := NewGatewayClient(srv.URL).State(context.Background(), models.PartitionKey{TournamentID: uuid.New(), Category: "chess"})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Contains(t, se.Body, "nope")
}
