package denylist

import (
	"strings"
	"time"
)

type Kind string

const (
	KindCommand Kind = "command"
	KindQuery   Kind = "query"
)

const (
	MAX_COMMAND_LENGTH = 200
	MAX_QUERY_LENGTH   = 1000
)

func (k Kind) Valid() bool {
	return k == KindCommand || k == KindQuery
}

// MaxLength is the longest text, in characters, accepted for the kind.
func (k Kind) MaxLength() int {
	if k == KindCommand {
		return MAX_COMMAND_LENGTH
	}
	return MAX_QUERY_LENGTH
}

// Normalize produces the form entries are matched and de-duplicated on.
// Commands compare case-insensitively, queries exactly.
func (k Kind) Normalize(text string) string {
	text = strings.TrimSpace(text)
	if k == KindCommand {
		return strings.ToLower(text)
	}
	return text
}

// Entry is one denied command or query.
type Entry struct {
	ID         uint      `json:"id" gorm:"primarykey"`
	Kind       Kind      `json:"kind" gorm:"type:varchar(16);not null;uniqueIndex:idx_denylist_kind_normalized,priority:1"`
	Text       string    `json:"text" gorm:"type:text;not null"`
	Normalized string    `json:"-" gorm:"type:text;not null;uniqueIndex:idx_denylist_kind_normalized,priority:2"`
	CreatedBy  uint      `json:"createdBy" gorm:"index;not null"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (Entry) TableName() string {
	return "denylist_entries"
}

func NewEntry(kind Kind, text string, createdBy uint) *Entry {
	text = strings.TrimSpace(text)
	return &Entry{
		Kind:       kind,
		Text:       text,
		Normalized: kind.Normalize(text),
		CreatedBy:  createdBy,
	}
}
