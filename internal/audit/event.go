package audit

import (
	"time"
)

type Action string

const (
	ActionCommand Action = "command"
	ActionQuery   Action = "query"
)

type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeBlocked   Outcome = "blocked"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimedOut  Outcome = "timed_out"
)

// Event is an append-only record of one privileged execution attempt.
type Event struct {
	ID         uint      `gorm:"primarykey"`
	AccountID  uint      `gorm:"index;not null"`
	Identifier string    `gorm:"not null"`
	Action     Action    `gorm:"type:varchar(16);index;not null"`
	Input      string    `gorm:"type:text;not null"`
	Outcome    Outcome   `gorm:"type:varchar(16);not null"`
	Detail     string    `gorm:"type:text"`
	DurationMS int64     `gorm:"not null"`
	CreatedAt  time.Time `gorm:"index"`
}

func (Event) TableName() string {
	return "audit_events"
}
