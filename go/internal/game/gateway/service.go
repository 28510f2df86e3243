// Package gateway delivers live game views to websocket clients and serves
// one-off state snapshots.
package gateway

import (
	"context"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Service wires the connection manager, the HTTP handlers and, when changes
// arrive over NATS, the JetStream consumer.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	eventConsumer     *EventConsumer
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	JetStreamConfig  JetStreamConsumerConfig
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		JetStreamConfig:  DefaultJetStreamConsumerConfig(),
	}
}

// NewService creates the gateway. js may be nil when the hub is fed in
// process; then no consumer runs.
func NewService(config Config, observer Observer, clock clockwork.Clock, js jetstream.JetStream, hub LocalHub) *Service {
	cm := NewConnectionManager(observer, config.ConnectionConfig)
	s := &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm),
		stateHandler:      NewStateHandler(observer, clock),
	}
	if js != nil {
		s.eventConsumer = NewEventConsumer(js, hub, config.JetStreamConfig)
	}
	return s
}

// Start runs until ctx is done, then closes all connections.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Bool("jetstream", s.eventConsumer != nil).Msg("starting game gateway")

	var err error
	if s.eventConsumer != nil {
		err = s.eventConsumer.Start(ctx)
	} else {
		<-ctx.Done()
	}

	s.connectionManager.CloseAll()
	log.Info().Msg("game gateway stopped")
	return err
}

// RegisterRoutes registers the WebSocket and state HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
}

// Stats returns statistics about open connections.
func (s *Service) Stats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}
