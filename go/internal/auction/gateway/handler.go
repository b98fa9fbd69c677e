package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mcdev12/tourney-auction/go/internal/auction/auctionerr"
	"github.com/mcdev12/tourney-auction/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Handler serves the websocket event stream, the HTTP snapshot, and connection stats.
type Handler struct {
	broker    *Broker
	cm        *ConnectionManager
	snapshots SnapshotProvider
}

func NewHandler(broker *Broker, snapshots SnapshotProvider, config ConnectionConfig) *Handler {
	return &Handler{
		broker:    broker,
		cm:        NewConnectionManager(broker, snapshots, config),
		snapshots: snapshots,
	}
}

// Routes registers the gateway endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/ws/auction", h.HandleAuctionConnection)
	r.Get("/ws/stats", h.HandleStats)
	r.Get("/api/auctions/{tournamentID}/{category}/state", h.HandleState)
}

// HandleAuctionConnection upgrades /ws/auction?tournament_id=&category=&after_seq=.
func (h *Handler) HandleAuctionConnection(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key, err := parseKey(q.Get("tournament_id"), q.Get("category"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var afterSeq *int64
	if raw := q.Get("after_seq"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			http.Error(w, "invalid after_seq", http.StatusBadRequest)
			return
		}
		afterSeq = &n
	}

	// The upgrader has already written an HTTP error on failure.
	if err := h.cm.UpgradeConnection(w, r, key, afterSeq); err != nil {
		log.Error().Err(err).Str("partition", key.String()).Msg("failed to upgrade WebSocket connection")
	}
}

// HandleState serves GET /api/auctions/{tournamentID}/{category}/state.
func (h *Handler) HandleState(w http.ResponseWriter, r *http.Request) {
	key, err := parseKey(chi.URLParam(r, "tournamentID"), chi.URLParam(r, "category"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := h.snapshots.Snapshot(r.Context(), key)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, auctionerr.ErrNotFound) {
			status = http.StatusNotFound
		}
		log.Error().Err(err).Str("partition", key.String()).Msg("failed to load snapshot")
		writeJSONError(w, status, "failed to load auction state")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		log.Error().Err(err).Msg("failed to encode snapshot")
	}
}

// StatsResponse is the body of GET /ws/stats.
type StatsResponse struct {
	Connections ConnectionStats `json:"connections"`
	Broker      BrokerStats     `json:"broker"`
}

func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(StatsResponse{
		Connections: h.cm.Stats(),
		Broker:      h.broker.Stats(),
	})
}

func parseKey(tournament, category string) (models.PartitionKey, error) {
	if tournament == "" || category == "" {
		return models.PartitionKey{}, errors.New("tournament_id and category are required")
	}
	id, err := uuid.Parse(tournament)
	if err != nil {
		return models.PartitionKey{}, errors.New("invalid tournament_id format")
	}
	return models.PartitionKey{TournamentID: id, Category: category}, nil
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
