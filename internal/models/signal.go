package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SignalType identifies which detector produced a signal
type SignalType string

const (
	SignalDislocation SignalType = "DISLOCATION"
	SignalSteam       SignalType = "STEAM"
	SignalMovement    SignalType = "MOVEMENT"
)

// Signal direction constants
const (
	DirectionUp   = "UP"
	DirectionDown = "DOWN"
)

// JSONMap stores signal metadata as a JSON text column
type JSONMap map[string]interface{}

// Value implements driver.Valuer
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported metadata column type %T", value)
	}

	if len(data) == 0 {
		*m = JSONMap{}
		return nil
	}
	return json.Unmarshal(data, m)
}

// Float returns a numeric metadata value if present
func (m JSONMap) Float(key string) *float64 {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	switch n := v.(type) {
	case float64:
		return &n
	case int:
		f := float64(n)
		return &f
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return &f
		}
	}
	return nil
}

// Int returns an integer metadata value if present
func (m JSONMap) Int(key string) *int {
	f := m.Float(key)
	if f == nil {
		return nil
	}
	i := int(*f)
	return &i
}

// String returns a string metadata value if present
func (m JSONMap) String(key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// Signal is the shared record emitted by all detectors. Movement/steam signals
// are created by an external detector; this service creates dislocation
// signals and enriches metadata for all types.
type Signal struct {
	ID              uuid.UUID  `gorm:"type:text;primaryKey" json:"id"`
	EventID         string     `gorm:"index" json:"event_id"`
	Market          string     `json:"market"`
	SignalType      SignalType `gorm:"index" json:"signal_type"`
	Direction       string     `json:"direction"`
	FromValue       float64    `json:"from_value"`
	ToValue         float64    `json:"to_value"`
	FromPrice       *int       `json:"from_price,omitempty"`
	ToPrice         *int       `json:"to_price,omitempty"`
	WindowMinutes   int        `json:"window_minutes"`
	BooksAffected   int        `json:"books_affected"`
	VelocityMinutes float64    `json:"velocity_minutes"`
	TimeBucket      *string    `json:"time_bucket,omitempty"`
	StrengthScore   int        `json:"strength_score"`
	Metadata        JSONMap    `gorm:"type:text" json:"metadata"`
	CreatedAt       time.Time  `gorm:"index" json:"created_at"`
}

// ClvRecord is the closing-line-value settlement for one signal. Written
// exactly once per signal.
type ClvRecord struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	SignalID    uuid.UUID `gorm:"type:text;uniqueIndex" json:"signal_id"`
	EventID     string    `gorm:"index" json:"event_id"`
	Market      string    `json:"market"`
	OutcomeName string    `json:"outcome_name"`
	EntryLine   *float64  `json:"entry_line,omitempty"`
	EntryPrice  *int      `json:"entry_price,omitempty"`
	CloseLine   *float64  `json:"close_line,omitempty"`
	ClosePrice  *int      `json:"close_price,omitempty"`
	ClvLine     *float64  `json:"clv_line,omitempty"`
	ClvProb     *float64  `json:"clv_prob,omitempty"`
	SettledAt   time.Time `json:"settled_at"`
}
