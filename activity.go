package bookbuddy

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ActivityLevel mirrors log severities for audit entries.
type ActivityLevel string

const (
	ActivityInfo  ActivityLevel = "info"
	ActivityWarn  ActivityLevel = "warn"
	ActivityError ActivityLevel = "error"
)

// ActivityEvent captures audit-friendly information about an auth action.
type ActivityEvent struct {
	Action     AuthEventAction
	Level      ActivityLevel
	UserID     *uuid.UUID
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// MultiActivitySink fans one event out to several sinks. Sink failures are
// independent, one failing sink does not stop the others.
type MultiActivitySink []ActivitySink

// Record implements ActivitySink.
func (m MultiActivitySink) Record(ctx context.Context, event ActivityEvent) error {
	var firstErr error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// LoggerActivitySink mirrors audit events onto the structured log.
func LoggerActivitySink(logger Logger) ActivitySink {
	return ActivitySinkFunc(func(_ context.Context, event ActivityEvent) error {
		userID := ""
		if event.UserID != nil {
			userID = event.UserID.String()
		}
		switch event.Level {
		case ActivityError:
			logger.Error("audit action=%s user=%s meta=%v", event.Action, userID, event.Metadata)
		case ActivityWarn:
			logger.Warn("audit action=%s user=%s meta=%v", event.Action, userID, event.Metadata)
		default:
			logger.Info("audit action=%s user=%s meta=%v", event.Action, userID, event.Metadata)
		}
		return nil
	})
}

// AuthEvents persists the audit trail.
type AuthEvents interface {
	ActivitySink
	ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]*AuthEvent, error)
}

type authEvents struct {
	db *bun.DB
}

var _ AuthEvents = (*authEvents)(nil)

// NewAuthEventsRepository builds the bun backed audit store.
func NewAuthEventsRepository(db *bun.DB) AuthEvents {
	return &authEvents{db: db}
}

func (r *authEvents) Record(ctx context.Context, event ActivityEvent) error {
	level := event.Level
	if level == "" {
		level = ActivityInfo
	}
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	record := &AuthEvent{
		ID:        uuid.New(),
		UserID:    event.UserID,
		Action:    event.Action,
		Level:     string(level),
		Metadata:  event.Metadata,
		CreatedAt: &occurred,
	}
	_, err := r.db.NewInsert().Model(record).Exec(ctx)
	return err
}

func (r *authEvents) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]*AuthEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []*AuthEvent
	err := r.db.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}
