package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/livequiz/go/internal/game/gameerr"
	"github.com/mcdev12/livequiz/go/internal/game/view"
	"github.com/rs/zerolog/log"
)

// Message types sent to clients.
const (
	MessageTypeView  = "view"
	MessageTypeError = "error"
)

// Message is one frame pushed to a websocket client.
type Message struct {
	Type  string         `json:"type"`
	View  *view.GameView `json:"view,omitempty"`
	Error string         `json:"error,omitempty"`
}

// Observer streams snapshots of a game.
type Observer interface {
	Observe(ctx context.Context, gameID uuid.UUID) (<-chan view.GameView, error)
	Snapshot(ctx context.Context, gameID uuid.UUID) (*view.GameView, error)
}

// ConnectionManager manages WebSocket connections, one game observer each
type ConnectionManager struct {
	gameConnections map[uuid.UUID]map[*Connection]struct{}
	mu              sync.RWMutex

	upgrader websocket.Upgrader
	observer Observer
	config   ConnectionConfig
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID       string
	PlayerID string
	GameID   uuid.UUID
	Conn     *websocket.Conn
	Send     chan []byte
	Manager  *ConnectionManager

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// ConnectionStats is the /ws/stats payload.
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveGames      int            `json:"active_games"`
	GameConnections  map[string]int `json:"game_connections"`
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		SendBufferSize:  16,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(observer Observer, config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		gameConnections: make(map[uuid.UUID]map[*Connection]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		observer: observer,
		config:   config,
	}
}

// UpgradeConnection starts observing gameID and upgrades the request. The
// observer is started first so an unknown game is answered with a plain
// HTTP error instead of an empty socket.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, playerID string, gameID uuid.UUID) error {
	// The request context ends when the handler returns, so the connection
	// gets its own.
	ctx, cancel := context.WithCancel(context.Background())
	views, err := cm.observer.Observe(ctx, gameID)
	if err != nil {
		cancel()
		if errors.Is(err, gameerr.ErrGameNotFound) {
			http.Error(w, "game not found", http.StatusNotFound)
		} else {
			http.Error(w, "failed to observe game", http.StatusInternalServerError)
		}
		return err
	}

	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		cancel()
		// The upgrader has already replied.
		return err
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		PlayerID:    playerID,
		GameID:      gameID,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ctx:         ctx,
		cancel:      cancel,
		ConnectedAt: time.Now(),
	}

	cm.registerConnection(connection)

	go connection.forward(views)
	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("player_id", playerID).
		Str("game_id", gameID.String()).
		Msg("WebSocket connection established")
	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.gameConnections[conn.GameID] == nil {
		cm.gameConnections[conn.GameID] = make(map[*Connection]struct{})
	}
	cm.gameConnections[conn.GameID][conn] = struct{}{}

	log.Debug().
		Str("connection_id", conn.ID).
		Str("game_id", conn.GameID.String()).
		Int("total_connections", len(cm.gameConnections[conn.GameID])).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	connections, ok := cm.gameConnections[conn.GameID]
	if !ok {
		return
	}
	if _, ok := connections[conn]; !ok {
		return
	}
	delete(connections, conn)
	if len(connections) == 0 {
		delete(cm.gameConnections, conn.GameID)
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("player_id", conn.PlayerID).
		Str("game_id", conn.GameID.String()).
		Msg("connection unregistered")
}

// CloseAll closes every open connection.
func (cm *ConnectionManager) CloseAll() {
	cm.mu.RLock()
	var all []*Connection
	for _, connections := range cm.gameConnections {
		for conn := range connections {
			all = append(all, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range all {
		conn.close()
	}
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{
		ActiveGames:     len(cm.gameConnections),
		GameConnections: make(map[string]int, len(cm.gameConnections)),
	}
	for gameID, connections := range cm.gameConnections {
		stats.TotalConnections += len(connections)
		stats.GameConnections[gameID.String()] = len(connections)
	}
	return stats
}

// close tears the connection down once: stops its observer, closes the
// socket and unregisters it.
func (c *Connection) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	})
}

// forward turns observed views into frames. A client that cannot keep up
// is disconnected; it will get a fresh snapshot when it reconnects.
func (c *Connection) forward(views <-chan view.GameView) {
	defer c.close()

	for v := range views {
		data, err := json.Marshal(Message{Type: MessageTypeView, View: &v})
		if err != nil {
			log.Error().Err(err).Msg("failed to marshal game view")
			continue
		}
		select {
		case c.Send <- data:
		default:
			log.Warn().
				Str("connection_id", c.ID).
				Str("player_id", c.PlayerID).
				Msg("connection send buffer full, closing connection")
			return
		}
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer c.close()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			return
		}

		// Commands go through the RPC API; anything sent here is only logged.
		log.Debug().
			Str("connection_id", c.ID).
			Str("player_id", c.PlayerID).
			Int("bytes", len(message)).
			Msg("ignoring client message")
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
