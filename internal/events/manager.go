package events

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

// EventType represents different event types
type EventType string

const (
	ErrorOccurred EventType = "ERROR_OCCURRED"

	// Backtest lifecycle events
	RunStarted   EventType = "RUN_STARTED"
	RunCompleted EventType = "RUN_COMPLETED"
	RunTruncated EventType = "RUN_TRUNCATED"

	// Trade events
	TradeOpened      EventType = "TRADE_OPENED"
	TradeClosed      EventType = "TRADE_CLOSED"
	StopLossHit      EventType = "STOP_LOSS_HIT"
	PositionForced   EventType = "POSITION_FORCED_CLOSED"

	// Data events
	DatasetLoaded    EventType = "DATASET_LOADED"
	DatasetRefreshed EventType = "DATASET_REFRESHED"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}

// Manager handles event emission and logging
type Manager struct {
	log zerolog.Logger
}

// NewManager creates a new event manager
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		log: log.With().Str("service", "events").Logger(),
	}
}

// Emit emits an event. A nil manager is a no-op, so callers that run without
// auditing skip the wiring entirely.
func (m *Manager) Emit(eventType EventType, module string, data map[string]interface{}) {
	if m == nil {
		return
	}

	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
		Module:    module,
	}

	eventJSON, _ := json.Marshal(event)
	m.log.Info().
		Str("event_type", string(eventType)).
		Str("module", module).
		RawJSON("event", eventJSON).
		Msg("Event emitted")
}

// EmitError emits an error event
func (m *Manager) EmitError(module string, err error, context map[string]interface{}) {
	if m == nil {
		return
	}
	data := map[string]interface{}{
		"error":   err.Error(),
		"context": context,
	}
	m.Emit(ErrorOccurred, module, data)
}
