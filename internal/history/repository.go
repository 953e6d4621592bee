package history

import (
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// ErrNoRecords is returned when the history is empty.
var ErrNoRecords = errors.New("no transitions recorded")

// Repository handles all database operations for transitions
type Repository struct {
	db *DB
}

// NewRepository creates a new repository instance
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new transition
func (r *Repository) Create(t *Transition) error {
	if result := r.db.Create(t); result.Error != nil {
		return errors.Wrap(result.Error, "failed to insert transition")
	}
	return nil
}

// Recent returns up to limit transitions, newest first
func (r *Repository) Recent(limit int) ([]*Transition, error) {
	var rows []*Transition
	result := r.db.Order("at DESC").Order("id DESC").Limit(limit).Find(&rows)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query recent transitions")
	}
	return rows, nil
}

// Since returns the transitions at or after since, oldest first
func (r *Repository) Since(since time.Time) ([]*Transition, error) {
	var rows []*Transition
	result := r.db.Where("at >= ?", since).Order("at ASC").Order("id ASC").Find(&rows)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query transitions")
	}
	return rows, nil
}

// Latest returns the most recent transition, or ErrNoRecords
func (r *Repository) Latest() (*Transition, error) {
	var row Transition
	result := r.db.Order("at DESC").Order("id DESC").First(&row)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNoRecords
		}
		return nil, errors.Wrap(result.Error, "failed to get latest transition")
	}
	return &row, nil
}

// Clear deletes every transition and returns how many were removed
func (r *Repository) Clear() (int64, error) {
	result := r.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Transition{})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "failed to clear transitions")
	}
	return result.RowsAffected, nil
}
