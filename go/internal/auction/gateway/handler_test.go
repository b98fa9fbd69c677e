package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/tourney-auction/go/internal/auction/auctiontest"
	"github.com/mcdev12/tourney-auction/go/internal/auction/coordinator"
	"github.com/mcdev12/tourney-auction/go/internal/auction/events"
	"github.com/mcdev12/tourney-auction/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gatewayHarness struct {
	*auctiontest.Fixture
	co     *coordinator.Coordinator
	broker *Broker
	srv    *httptest.Server
}

func newGatewayHarness(t *testing.T) *gatewayHarness {
	t.Helper()
	f := auctiontest.New(t)
	co := coordinator.New(f.Store, coordinator.DefaultConfig(), coordinator.WithClock(f.Clock))
	broker := NewBroker(DefaultBrokerConfig(), f.Clock)

	r := chi.NewRouter()
	NewHandler(broker, co, DefaultConnectionConfig()).Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &gatewayHarness{Fixture: f, co: co, broker: broker, srv: srv}
}

func (h *gatewayHarness) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws/auction?" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (h *gatewayHarness) keyQuery() string {
	return fmt.Sprintf("tournament_id=%s&category=%s", h.Key.TournamentID, h.Key.Category)
}

func readEnvelope(t *testing.T, conn *websocket.Conn) events.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env events.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func (h *gatewayHarness) committed(seq int64) events.Envelope {
	env := committed(seq)
	env.TournamentID = h.Key.TournamentID
	env.Category = h.Key.Category
	return env
}

func TestStateEndpoint(t *testing.T) {
	h := newGatewayHarness(t)
	h.AddTeam(1000, 5)
	ps := h.AddPlayers(2, 100)
	_, err := h.co.Enqueue(context.Background(), h.Key, auctiontest.IDs(ps), nil)
	require.NoError(t, err)

	resp, err := http.Get(fmt.Sprintf("%s/api/auctions/%s/%s/state", h.srv.URL, h.Key.TournamentID, h.Key.Category))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap coordinator.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, h.Key.TournamentID, snap.TournamentID)
	assert.Len(t, snap.Queue, 2)
	assert.Len(t, snap.Budgets, 1)
	assert.Positive(t, snap.Seq)
	assert.Nil(t, snap.Round)
}

func TestStateEndpointRejectsBadTournament(t *testing.T) {
	h := newGatewayHarness(t)

	resp, err := http.Get(h.srv.URL + "/api/auctions/not-a-uuid/football/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebsocketRequiresPartition(t *testing.T) {
	h := newGatewayHarness(t)

	for _, q := range []string{"", "category=football", h.keyQuery() + "&after_seq=-1"} {
		resp, err := http.Get(h.srv.URL + "/ws/auction?" + q)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestWebsocketSendsSnapshotThenLiveEvents(t *testing.T) {
	h := newGatewayHarness(t)
	h.AddTeam(1000, 5)
	ps := h.AddPlayers(1, 100)
	_, err := h.co.Enqueue(context.Background(), h.Key, auctiontest.IDs(ps), nil)
	require.NoError(t, err)

	conn := h.dial(t, h.keyQuery())

	first := readEnvelope(t, conn)
	require.Equal(t, TypeSnapshot, first.EventType)
	var snap coordinator.Snapshot
	require.NoError(t, json.Unmarshal(first.Payload, &snap))
	require.Len(t, snap.Queue, 1)

	// an event already folded into the snapshot is not sent again
	require.NoError(t, h.broker.Publish(context.Background(), h.committed(snap.Seq)))
	require.NoError(t, h.broker.Publish(context.Background(), h.committed(snap.Seq+1)))

	next := readEnvelope(t, conn)
	assert.Equal(t, snap.Seq+1, next.Seq)
	assert.Equal(t, events.TypeBidRecorded, next.EventType)
}

func TestWebsocketReplaysAfterSeq(t *testing.T) {
	h := newGatewayHarness(t)
	for s := int64(1); s <= 3; s++ {
		require.NoError(t, h.broker.Publish(context.Background(), h.committed(s)))
	}

	conn := h.dial(t, h.keyQuery()+"&after_seq=1")
	assert.EqualValues(t, 2, readEnvelope(t, conn).Seq)
	assert.EqualValues(t, 3, readEnvelope(t, conn).Seq)
}

func TestWebsocketResyncRequest(t *testing.T) {
	h := newGatewayHarness(t)
	conn := h.dial(t, h.keyQuery()+"&after_seq=0")

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "resync"}))
	env := readEnvelope(t, conn)
	assert.Equal(t, TypeSnapshot, env.EventType)
	assert.Equal(t, models.PartitionKey{TournamentID: h.Key.TournamentID, Category: h.Key.Category}, env.Key())
}

func TestStatsEndpoint(t *testing.T) {
	h := newGatewayHarness(t)
	h.dial(t, h.keyQuery()+"&after_seq=0")

	require.Eventually(t, func() bool {
		resp, err := http.Get(h.srv.URL + "/ws/stats")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var stats StatsResponse
		if json.NewDecoder(resp.Body).Decode(&stats) != nil {
			return false
		}
		return stats.Connections.TotalConnections == 1 && stats.Broker.Subscribers == 1
	}, 2*time.Second, 20*time.Millisecond)
}
