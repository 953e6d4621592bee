package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/bnema/wayidle/internal/idle"
	"github.com/bnema/wayidle/internal/timer"
	"github.com/bnema/wayidle/internal/transition"
)

func TestFormatPayload(t *testing.T) {
	event := transition.Event{
		Tier:    "lock",
		Timeout: 5 * time.Minute,
		State:   transition.StateIdle,
		At:      time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
	}

	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Tier != "lock" {
		t.Errorf("unexpected tier: %s", parsed.Tier)
	}
	if parsed.State != "idle" {
		t.Errorf("unexpected state: %s", parsed.State)
	}
	if parsed.TimeoutMs != 300000 {
		t.Errorf("unexpected timeout: %d", parsed.TimeoutMs)
	}
	if parsed.Timestamp != "2026-02-02T22:18:12Z" {
		t.Errorf("unexpected timestamp: %s", parsed.Timestamp)
	}
}

func TestFormatPayloadConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	event := transition.Event{
		Tier:  "dim",
		State: transition.StateActive,
		At:    time.Date(2026, 2, 2, 23, 0, 0, 0, loc),
	}

	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Timestamp != "2026-02-02T22:00:00Z" {
		t.Errorf("unexpected timestamp: %s", parsed.Timestamp)
	}
}

func TestTopicFor(t *testing.T) {
	tests := []struct {
		base, tier, want string
	}{
		{"wayidle", "lock", "wayidle/lock"},
		{"home/desk/", "dim", "home/desk/dim"},
		{"wayidle", "status", "wayidle/status"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := TopicFor(tt.base, tt.tier); got != tt.want {
				t.Errorf("TopicFor(%q, %q) = %q, want %q", tt.base, tt.tier, got, tt.want)
			}
		})
	}
}

func TestHandlerPublishesHubTransitions(t *testing.T) {
	clock := timer.NewFakeClock(time.Unix(1_700_000_000, 0))
	hub := idle.NewHub(clock, timer.NewFakeAlarmFactory(clock))
	defer hub.Close()

	fake := NewFakePublisher()
	obs := transition.Observer("dim", time.Minute, clock, Handler(fake))
	hub.RegisterInterest(idle.Strong(obs), time.Minute)

	clock.Advance(time.Minute)
	hub.Poke()

	events := fake.Published()
	if len(events) != 3 {
		t.Fatalf("expected 3 published events, got %d", len(events))
	}
	want := []transition.State{transition.StateActive, transition.StateIdle, transition.StateActive}
	for i, event := range events {
		if event.State != want[i] {
			t.Errorf("event %d: state %s, want %s", i, event.State, want[i])
		}
		if event.Tier != "dim" {
			t.Errorf("event %d: tier %s", i, event.Tier)
		}
	}
	if len(fake.Payloads) != 3 {
		t.Errorf("expected 3 payloads, got %d", len(fake.Payloads))
	}
}

func TestHandlerSwallowsPublishError(t *testing.T) {
	fake := NewFakePublisher()
	fake.PublishError = errors.New("broker down")

	handle := Handler(fake)
	handle(transition.Event{Tier: "lock", State: transition.StateIdle})

	if len(fake.Published()) != 0 {
		t.Error("failed publish should not be recorded")
	}
}

func TestFakePublisherReset(t *testing.T) {
	fake := NewFakePublisher()
	fake.Connected = true
	_ = fake.Publish(transition.Event{Tier: "lock", State: transition.StateIdle})
	_ = fake.Close()

	if !fake.Closed || !fake.IsConnected() {
		t.Fatal("expected closed and connected")
	}

	fake.Reset()
	if fake.Closed || fake.IsConnected() || len(fake.Published()) != 0 {
		t.Error("Reset should clear all recorded state")
	}
}

var _ Publisher = (*RealPublisher)(nil)
var _ Publisher = (*FakePublisher)(nil)
var _ ConnectionStatus = (*RealPublisher)(nil)
