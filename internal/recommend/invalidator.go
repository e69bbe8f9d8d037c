package recommend

import (
	"context"
	"encoding/json"

	"fitbook/internal/events"

	"github.com/rs/zerolog"
)

// Invalidator drops cached recommendation lists when the facts behind them
// change: a training's lifecycle moves, or a client edits their profile.
type Invalidator struct {
	engine *Engine
	logger *zerolog.Logger
}

func NewInvalidator(engine *Engine, logger *zerolog.Logger) *Invalidator {
	return &Invalidator{engine: engine, logger: logger}
}

// Bind subscribes the invalidator to every event that can stale a list.
func (i *Invalidator) Bind(bus *events.EventBus) {
	for _, eventType := range []string{
		events.EventTrainingCreated,
		events.EventTrainingBooked,
		events.EventTrainingUpdated,
		events.EventTrainingCancelled,
		events.EventTrainingCompleted,
	} {
		bus.Subscribe(eventType, i.onTrainingEvent)
	}
	bus.Subscribe(events.EventClientLocationChanged, i.onClientEvent)
	bus.Subscribe(events.EventClientPreferencesChanged, i.onClientEvent)
}

func (i *Invalidator) onTrainingEvent(event *events.Event) error {
	var payload events.TrainingEventPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		i.logger.Warn().Err(err).Str("event", event.Type).Msg("bad event payload")
		return err
	}

	for _, clientID := range payload.ClientIDs {
		i.invalidate(clientID, event.Type)
	}
	return nil
}

func (i *Invalidator) onClientEvent(event *events.Event) error {
	var payload events.ClientEventPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		i.logger.Warn().Err(err).Str("event", event.Type).Msg("bad event payload")
		return err
	}

	i.invalidate(payload.ClientID, event.Type)
	return nil
}

func (i *Invalidator) invalidate(clientID int64, eventType string) {
	if err := i.engine.Invalidate(context.Background(), clientID); err != nil {
		i.logger.Warn().Err(err).
			Int64("client_id", clientID).
			Str("event", eventType).
			Msg("cache invalidation failed")
	}
}
