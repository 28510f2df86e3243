package gateway

import (
	"context"
	"fmt"

	"github.com/mcdev12/livequiz/go/internal/game/events"
	"github.com/mcdev12/livequiz/go/internal/models"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// JetStreamConsumerConfig holds configuration for the JetStream consumer
type JetStreamConsumerConfig struct {
	StreamName    string
	SubjectPrefix string
}

// DefaultJetStreamConsumerConfig returns default JetStream consumer configuration
func DefaultJetStreamConsumerConfig() JetStreamConsumerConfig {
	return JetStreamConsumerConfig{
		StreamName:    "QUIZ_CHANGES",
		SubjectPrefix: events.DefaultSubjectPrefix,
	}
}

// LocalHub receives changes for in-process observers.
type LocalHub interface {
	Publish(evt models.ChangeEvent)
}

// EventConsumer feeds changes relayed through JetStream into the local hub.
// Every gateway instance runs its own ordered, ephemeral consumer that
// starts at new messages; observers re-snapshot on connect, so history is
// not needed.
type EventConsumer struct {
	js     jetstream.JetStream
	hub    LocalHub
	config JetStreamConsumerConfig
}

// NewEventConsumer creates a new JetStream event consumer
func NewEventConsumer(js jetstream.JetStream, hub LocalHub, config JetStreamConsumerConfig) *EventConsumer {
	return &EventConsumer{
		js:     js,
		hub:    hub,
		config: config,
	}
}

// Start consumes until ctx is done.
func (ec *EventConsumer) Start(ctx context.Context) error {
	consumer, err := ec.js.OrderedConsumer(ctx, ec.config.StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{events.Wildcard(ec.config.SubjectPrefix)},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create ordered consumer: %w", err)
	}

	log.Info().
		Str("stream", ec.config.StreamName).
		Msg("starting JetStream event consumer")

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		if err := ec.processMessage(msg.Subject(), msg.Data()); err != nil {
			log.Error().
				Err(err).
				Str("subject", msg.Subject()).
				Msg("failed to process message")
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	<-ctx.Done()
	log.Info().Msg("event consumer shutting down")
	return nil
}

// processMessage decodes one envelope and hands it to the hub.
func (ec *EventConsumer) processMessage(subject string, data []byte) error {
	env, err := events.Decode(data)
	if err != nil {
		return err
	}
	gameID, err := events.GameFromSubject(ec.config.SubjectPrefix, subject)
	if err != nil {
		return err
	}
	if gameID != env.GameID {
		return fmt.Errorf("subject game %s does not match envelope game %s", gameID, env.GameID)
	}

	ec.hub.Publish(env.Change())

	log.Debug().
		Str("event_id", env.EventID.String()).
		Str("game_id", env.GameID.String()).
		Str("entity", string(env.Entity)).
		Msg("change delivered to local hub")
	return nil
}
