package flags

import (
	"time"

	"github.com/google/uuid"
)

// Flag is a named boolean switch with a global default.
type Flag struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description *string   `json:"description,omitempty" db:"description"`
	IsEnabled   bool      `json:"is_enabled" db:"is_enabled"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Override pins a flag's state for a single user. It exists only when a user
// has been explicitly configured; without one the flag default applies.
type Override struct {
	ID        uuid.UUID `json:"id" db:"id"`
	FlagID    uuid.UUID `json:"flag_id" db:"flag_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	IsEnabled bool      `json:"is_enabled" db:"is_enabled"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Evaluation sources.
const (
	SourceOverride = "override"
	SourceDefault  = "default"
)

// Evaluation is the resolved answer to "is this flag on for this user",
// with provenance.
type Evaluation struct {
	Enabled  bool      `json:"enabled"`
	FlagID   uuid.UUID `json:"flag_id"`
	FlagName string    `json:"flag_name"`
	UserID   string    `json:"user_id"`
	Source   string    `json:"source"`
}
