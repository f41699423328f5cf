package domain

import (
	"time"

	"github.com/google/uuid"
)

// Tick is the journal record of one poll.
type Tick struct {
	ID        uuid.UUID     `json:"id"`
	Seq       uint64        `json:"seq"`
	Epoch     uint64        `json:"epoch"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	Appended  bool          `json:"appended"`
	Error     string        `json:"error,omitempty"`
}
