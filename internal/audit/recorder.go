package audit

import (
	"context"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// maxDetailLength caps stored diagnostics; full command output is never audited.
const maxDetailLength = 2048

type Recorder interface {
	Record(ctx context.Context, event *Event)
}

type recorder struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewRecorder writes every event to the log and to the audit_events table.
func NewRecorder(db *gorm.DB, logger *zap.Logger) Recorder {
	return &recorder{db: db, logger: logger.Named("audit")}
}

// Record never fails the caller. A failed insert is logged and the event
// survives in the log stream.
func (r *recorder) Record(ctx context.Context, event *Event) {
	event.Detail = truncate(event.Detail, maxDetailLength)

	fields := []zap.Field{
		zap.Uint("account_id", event.AccountID),
		zap.String("identifier", event.Identifier),
		zap.String("action", string(event.Action)),
		zap.String("input", event.Input),
		zap.String("outcome", string(event.Outcome)),
		zap.Duration("duration", time.Duration(event.DurationMS)*time.Millisecond),
	}
	if event.Detail != "" {
		fields = append(fields, zap.String("detail", event.Detail))
	}
	if event.Outcome == OutcomeSucceeded {
		r.logger.Info("privileged action", fields...)
	} else {
		r.logger.Warn("privileged action", fields...)
	}

	// The request may already be cancelled; the audit row must still land.
	if err := r.db.WithContext(context.WithoutCancel(ctx)).Create(event).Error; err != nil {
		r.logger.Error("failed to persist audit event", append(fields, zap.Error(err))...)
	}
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
