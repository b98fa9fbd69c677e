package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mcdev12/tourney-auction/go/internal/auction/store"
	"github.com/nats-io/nats.go"
)

type HealthStatus struct {
	Healthy         bool      `json:"healthy"`
	RelayRunning    bool      `json:"relay_running"`
	EventsPublished uint64    `json:"events_published"`
	LastSentTime    time.Time `json:"last_sent_time"`
	PendingEvents   int       `json:"pending_events"`
	StoreReachable  bool      `json:"store_reachable"`
	NATSConnected   *bool     `json:"nats_connected,omitempty"`
	Errors          []string  `json:"errors"`
}

// HealthChecker reports relay health. A backlog above PendingThreshold is unhealthy.
type HealthChecker struct {
	relay            *Relay
	store            store.Store
	nc               *nats.Conn
	PendingThreshold int
}

func NewHealthChecker(relay *Relay, st store.Store, nc *nats.Conn) *HealthChecker {
	return &HealthChecker{relay: relay, store: st, nc: nc, PendingThreshold: 1000}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{Healthy: true, Errors: []string{}}

	published, lastSent, lastErr := h.relay.Stats()
	status.EventsPublished = published
	status.LastSentTime = lastSent
	status.RelayRunning = h.relay.Running()
	if !status.RelayRunning {
		status.Healthy = false
		status.Errors = append(status.Errors, "outbox relay not running")
	}
	if lastErr != nil {
		status.Healthy = false
		status.Errors = append(status.Errors, lastErr.Error())
	}

	err := h.store.Run(ctx, func(tx store.Tx) error {
		pending, err := tx.FetchUnsent(ctx, h.PendingThreshold+1)
		status.PendingEvents = len(pending)
		return err
	})
	status.StoreReachable = err == nil
	if err != nil {
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf("store check failed: %v", err))
	} else if status.PendingEvents > h.PendingThreshold {
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf("outbox backlog above %d", h.PendingThreshold))
	}

	if h.nc != nil {
		connected := h.nc.IsConnected()
		status.NATSConnected = &connected
		if !connected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	return status
}

// ServeHTTP writes the status as JSON, with 503 when unhealthy.
func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)
	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}
