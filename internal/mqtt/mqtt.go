// Package mqtt publishes tier transitions to an MQTT broker, with a fake
// publisher for tests.
package mqtt

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/bnema/wayidle/internal/logger"
	"github.com/bnema/wayidle/internal/transition"
)

// Publisher publishes tier transitions.
type Publisher interface {
	// Publish sends a transition to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event transition.Event) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Payload is the JSON body published for a transition.
type Payload struct {
	Tier      string `json:"tier"`
	State     string `json:"state"`
	TimeoutMs int64  `json:"timeout_ms"`
	Timestamp string `json:"timestamp"`
}

// FormatPayload creates the JSON payload for a transition.
func FormatPayload(event transition.Event) ([]byte, error) {
	return json.Marshal(Payload{
		Tier:      event.Tier,
		State:     string(event.State),
		TimeoutMs: event.Timeout.Milliseconds(),
		Timestamp: event.At.UTC().Format(time.RFC3339),
	})
}

// TopicFor returns the topic a tier's transitions are published on.
func TopicFor(base, tier string) string {
	return strings.TrimSuffix(base, "/") + "/" + tier
}

// Handler publishes every event through p, logging failures.
func Handler(p Publisher) transition.Handler {
	return func(event transition.Event) {
		if err := p.Publish(event); err != nil {
			logger.Warnf("MQTT publish for tier %s failed: %v", event.Tier, err)
		}
	}
}
