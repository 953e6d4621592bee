package history

import (
	"github.com/bnema/wayidle/internal/logger"
	"github.com/bnema/wayidle/internal/transition"
)

// Recorder returns a handler writing every transition to repo.
func Recorder(repo *Repository) transition.Handler {
	return func(event transition.Event) {
		if err := repo.Create(FromEvent(event)); err != nil {
			logger.Warnf("Failed to record %s transition of tier %s: %v", event.State, event.Tier, err)
		}
	}
}
