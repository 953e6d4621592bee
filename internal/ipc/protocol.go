package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Message types carried in the "type" field of every frame
const (
	TypePoke   = "poke"
	TypeStatus = "status"
	TypeError  = "error"
)

// MaxFrameSize bounds a single message on the wire.
const MaxFrameSize = 1 << 20

// ErrNotRunning is returned by the client when no daemon listens on the socket.
var ErrNotRunning = errors.New("wayidle daemon is not running")

// TierInfo describes one tier in a status response
type TierInfo struct {
	Name      string
	Timeout   time.Duration
	Observers int
	Idle      bool
}

// StatusInfo is the decoded body of a status response
type StatusInfo struct {
	PokeTime    time.Time
	IdleFor     time.Duration
	NextTier    time.Duration
	HasNextTier bool
	Tiers       []TierInfo
}

// NewPokeMessage creates a poke request
func NewPokeMessage() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{"type": TypePoke})
}

// NewStatusMessage creates a status query
func NewStatusMessage() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{"type": TypeStatus})
}

// NewStatusResponseMessage creates a status response
func NewStatusResponseMessage(status StatusInfo) (*structpb.Struct, error) {
	tiers := make([]interface{}, 0, len(status.Tiers))
	for _, tier := range status.Tiers {
		tiers = append(tiers, map[string]interface{}{
			"name":       tier.Name,
			"timeout_ms": tier.Timeout.Milliseconds(),
			"observers":  tier.Observers,
			"idle":       tier.Idle,
		})
	}

	fields := map[string]interface{}{
		"type":        TypeStatus,
		"idle_for_ms": status.IdleFor.Milliseconds(),
		"poke_time":   status.PokeTime.Format(time.RFC3339Nano),
		"tiers":       tiers,
	}
	if status.HasNextTier {
		fields["next_tier_ms"] = status.NextTier.Milliseconds()
	}
	return structpb.NewStruct(fields)
}

// NewErrorMessage creates an error response
func NewErrorMessage(errMsg string) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"type":  TypeError,
		"error": errMsg,
	})
}

// MessageType returns the type of a message, or "" if it has none
func MessageType(msg *structpb.Struct) string {
	return msg.GetFields()["type"].GetStringValue()
}

// GetStatusResponse decodes a status response
func GetStatusResponse(msg *structpb.Struct) (*StatusInfo, error) {
	if t := MessageType(msg); t != TypeStatus {
		return nil, fmt.Errorf("message is not a status response: %q", t)
	}
	fields := msg.GetFields()

	status := &StatusInfo{
		IdleFor: millis(fields["idle_for_ms"]),
	}
	if raw := fields["poke_time"].GetStringValue(); raw != "" {
		pokeTime, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("invalid poke_time: %w", err)
		}
		status.PokeTime = pokeTime
	}
	if next, ok := fields["next_tier_ms"]; ok {
		status.NextTier = millis(next)
		status.HasNextTier = true
	}

	for _, v := range fields["tiers"].GetListValue().GetValues() {
		tier := v.GetStructValue().GetFields()
		if tier == nil {
			return nil, fmt.Errorf("invalid tier entry")
		}
		status.Tiers = append(status.Tiers, TierInfo{
			Name:      tier["name"].GetStringValue(),
			Timeout:   millis(tier["timeout_ms"]),
			Observers: int(tier["observers"].GetNumberValue()),
			Idle:      tier["idle"].GetBoolValue(),
		})
	}
	return status, nil
}

// GetErrorResponse returns the error text of an error response
func GetErrorResponse(msg *structpb.Struct) string {
	return msg.GetFields()["error"].GetStringValue()
}

func millis(v *structpb.Value) time.Duration {
	return time.Duration(v.GetNumberValue()) * time.Millisecond
}

// writeMessage writes a length-prefixed protobuf message
func writeMessage(w io.Writer, msg proto.Message) error {
	data, err := proto.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if len(data) > MaxFrameSize {
		return fmt.Errorf("message too large: %d bytes", len(data))
	}

	// Length and body go out in one write so a frame is never split by a
	// concurrent writer.
	frame := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(frame, uint32(len(data)))
	copy(frame[4:], data)
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// readMessage reads a length-prefixed protobuf message
func readMessage(r io.Reader) (*structpb.Struct, error) {
	// Read message length (4 bytes, big endian)
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, fmt.Errorf("failed to read message length: %w", err)
	}
	if length > MaxFrameSize {
		return nil, fmt.Errorf("message too large: %d bytes", length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("failed to read message data: %w", err)
	}

	msg := &structpb.Struct{}
	if err := proto.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return msg, nil
}
