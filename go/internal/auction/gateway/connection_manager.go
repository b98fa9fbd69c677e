package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/tourney-auction/go/internal/auction/coordinator"
	"github.com/mcdev12/tourney-auction/go/internal/auction/events"
	"github.com/mcdev12/tourney-auction/go/internal/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// TypeSnapshot is sent to a websocket client on connect without after_seq and on a resync
// request. Its payload is a coordinator.Snapshot.
const TypeSnapshot = "Snapshot"

// SnapshotProvider loads the full state of a partition.
type SnapshotProvider interface {
	Snapshot(ctx context.Context, key models.PartitionKey) (*coordinator.Snapshot, error)
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	PingInterval    time.Duration `yaml:"ping_interval"`
	MaxMessageSize  int64         `yaml:"max_message_size"`
	ReadBufferSize  int           `yaml:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size"`
	ResyncRate      float64       `yaml:"resync_rate"` // client resync requests per second
	ResyncBurst     int           `yaml:"resync_burst"`

	CheckOrigin func(r *http.Request) bool `yaml:"-"`
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		ResyncRate:      0.2,
		ResyncBurst:     2,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// ConnectionManager manages WebSocket connections subscribed to the Broker
type ConnectionManager struct {
	broker    *Broker
	snapshots SnapshotProvider
	upgrader  websocket.Upgrader
	config    ConnectionConfig

	mu          sync.RWMutex
	connections map[models.PartitionKey]map[*Connection]bool
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID          string
	Key         models.PartitionKey
	Conn        *websocket.Conn
	ConnectedAt time.Time

	manager  *ConnectionManager
	sub      *Subscription
	direct   chan []byte   // errors addressed to this client only
	resyncCh chan struct{} // snapshot requests, served by the write pump
	limiter  *rate.Limiter

	// committed events at or below minSeq were folded into a snapshot already sent; only the
	// write pump touches it
	minSeq int64
}

// ClientMessage is what a client may send over the socket.
type ClientMessage struct {
	Type string `json:"type"`
}

func NewConnectionManager(broker *Broker, snapshots SnapshotProvider, config ConnectionConfig) *ConnectionManager {
	def := DefaultConnectionConfig()
	if config.CheckOrigin == nil {
		config.CheckOrigin = def.CheckOrigin
	}
	if config.PingInterval <= 0 {
		config.PingInterval = def.PingInterval
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = def.WriteTimeout
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = def.ReadTimeout
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = def.MaxMessageSize
	}
	return &ConnectionManager{
		broker:    broker,
		snapshots: snapshots,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		connections: make(map[models.PartitionKey]map[*Connection]bool),
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and subscribes it to the
// partition. With afterSeq the broker replays what the client missed; without it the client
// first receives a snapshot.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, key models.PartitionKey, afterSeq *int64) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	c := &Connection{
		ID:          uuid.New().String(),
		Key:         key,
		Conn:        conn,
		ConnectedAt: time.Now(),
		manager:     cm,
		direct:      make(chan []byte, 4),
		resyncCh:    make(chan struct{}, 1),
		limiter:     rate.NewLimiter(rate.Limit(cm.config.ResyncRate), cm.config.ResyncBurst),
	}

	// Subscribe before reading the snapshot so nothing committed after it is missed.
	c.sub = cm.broker.Subscribe(key, afterSeq)
	cm.register(c)

	go c.writePump(afterSeq == nil)
	go c.readPump()

	log.Info().
		Str("connection_id", c.ID).
		Str("partition", key.String()).
		Bool("replay", afterSeq != nil).
		Msg("WebSocket connection established")
	return nil
}

func (cm *ConnectionManager) register(c *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.connections[c.Key] == nil {
		cm.connections[c.Key] = make(map[*Connection]bool)
	}
	cm.connections[c.Key][c] = true
}

func (cm *ConnectionManager) unregister(c *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	conns, ok := cm.connections[c.Key]
	if !ok || !conns[c] {
		return
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(cm.connections, c.Key)
	}
	cm.broker.Unsubscribe(c.sub)

	log.Info().
		Str("connection_id", c.ID).
		Str("partition", c.Key.String()).
		Msg("connection unregistered")
}

type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveAuctions   int            `json:"active_auctions"`
	PerAuction       map[string]int `json:"auction_connections"`
}

// Stats returns statistics about active connections
func (cm *ConnectionManager) Stats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{PerAuction: make(map[string]int)}
	for key, conns := range cm.connections {
		stats.TotalConnections += len(conns)
		stats.PerAuction[key.String()] = len(conns)
	}
	stats.ActiveAuctions = len(cm.connections)
	return stats
}

// writeSnapshot loads the partition state and writes it. Called from the write pump only, so
// every event still queued for this client is written after it.
func (c *Connection) writeSnapshot() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.manager.config.WriteTimeout)
	defer cancel()

	snap, err := c.manager.snapshots.Snapshot(ctx, c.Key)
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to load snapshot")
		c.sendError("snapshot unavailable")
		return nil
	}

	env, err := events.NewTransient(c.Key, TypeSnapshot, snap, snap.ServerTime)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	c.minSeq = snap.Seq
	return c.write(websocket.TextMessage, data)
}

func (c *Connection) requestSnapshot() {
	select {
	case c.resyncCh <- struct{}{}:
	default:
	}
}

func (c *Connection) sendError(msg string) {
	data, _ := json.Marshal(map[string]string{"eventType": "Error", "error": msg})
	select {
	case c.direct <- data:
	default:
	}
}

func (c *Connection) write(messageType int, data []byte) error {
	_ = c.Conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
	return c.Conn.WriteMessage(messageType, data)
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump(snapshotFirst bool) {
	ticker := time.NewTicker(c.manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.manager.unregister(c)
	}()

	if snapshotFirst {
		if err := c.writeSnapshot(); err != nil {
			log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to write snapshot")
			return
		}
	}

	for {
		var err error
		select {
		case <-c.resyncCh:
			err = c.writeSnapshot()

		case env, ok := <-c.sub.C:
			if !ok {
				// Dropped by the broker; the client reconnects with its last seq.
				_ = c.write(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, ResyncSlow))
				return
			}
			if !env.Transient() && env.Seq <= c.minSeq {
				continue
			}
			data, mErr := json.Marshal(env)
			if mErr != nil {
				log.Error().Err(mErr).Msg("failed to marshal event for broadcast")
				continue
			}
			err = c.write(websocket.TextMessage, data)

		case data := <-c.direct:
			err = c.write(websocket.TextMessage, data)

		case <-ticker.C:
			err = c.write(websocket.PingMessage, nil)
		}
		if err != nil {
			log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to write to WebSocket")
			return
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.manager.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.manager.config.MaxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("unexpected WebSocket close error")
			}
			return
		}
		c.handleClientMessage(message)
		_ = c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	}
}

func (c *Connection) handleClientMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.sendError("bad json")
		return
	}

	switch msg.Type {
	case "resync":
		if !c.limiter.Allow() {
			c.sendError("resync rate limited")
			return
		}
		c.requestSnapshot()
	default:
		log.Debug().
			Str("connection_id", c.ID).
			Str("type", msg.Type).
			Msg("ignoring client message")
	}
}
