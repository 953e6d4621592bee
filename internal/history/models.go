package history

import (
	"time"

	"github.com/bnema/wayidle/internal/transition"
)

// Transition is one stored tier transition.
type Transition struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Tier      string    `gorm:"not null;index" json:"tier"`
	State     string    `gorm:"not null" json:"state"`
	Timeout   int64     `gorm:"not null" json:"timeout_ms"`
	At        time.Time `gorm:"not null;index" json:"at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// FromEvent converts a transition event into a row.
func FromEvent(event transition.Event) *Transition {
	return &Transition{
		Tier:    event.Tier,
		State:   string(event.State),
		Timeout: event.Timeout.Milliseconds(),
		At:      event.At.UTC(),
	}
}

// TimeoutDuration returns the tier timeout as a duration.
func (t *Transition) TimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Millisecond
}
