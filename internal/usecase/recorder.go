package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/paincake00/geopromo/internal/clock"
	"github.com/paincake00/geopromo/internal/entity"
)

const (
	defaultRecentWindow = 24 * time.Hour
	defaultQueryLimit   = 100
	maxQueryLimit       = 1000
)

// EventRecorder превращает переходы в сохраненные события и отвечает на запросы по истории.
// Запись только добавляет строки; ошибки хранилища возвращаются вызывающему без повторов.
type EventRecorder struct {
	repo         EventRepository
	clock        clock.Clock
	recentWindow time.Duration
}

type EventRecorderOption func(*EventRecorder)

// WithRecentWindow задает окно для запроса «последних» событий (по умолчанию 24 часа).
func WithRecentWindow(d time.Duration) EventRecorderOption {
	return func(r *EventRecorder) {
		if d > 0 {
			r.recentWindow = d
		}
	}
}

func NewEventRecorder(repo EventRepository, clk clock.Clock, opts ...EventRecorderOption) *EventRecorder {
	r := &EventRecorder{
		repo:         repo,
		clock:        clk,
		recentWindow: defaultRecentWindow,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RecentWindow текущее окно запроса Recent.
func (r *EventRecorder) RecentWindow() time.Duration {
	return r.recentWindow
}

// Record сохраняет событие перехода устройства.
func (r *EventRecorder) Record(ctx context.Context, deviceID string, tr entity.Transition, p entity.Point) (entity.Event, error) {
	if !tr.Kind.Valid() {
		return entity.Event{}, fmt.Errorf("record transition: unknown kind %q", tr.Kind)
	}
	e := entity.Event{
		ID:         uuid.NewString(),
		DeviceID:   deviceID,
		ZoneID:     tr.ZoneID,
		Kind:       tr.Kind,
		OccurredAt: tr.Timestamp,
		Latitude:   p.Lat,
		Longitude:  p.Lon,
		RecordedAt: r.clock.Now(),
	}
	if err := r.repo.InsertEvent(ctx, e); err != nil {
		return entity.Event{}, fmt.Errorf("%w: insert event: %w", entity.ErrStorageFailure, err)
	}
	return e, nil
}

func (r *EventRecorder) ByZone(ctx context.Context, zoneID string, limit int) ([]entity.Event, error) {
	return r.repo.EventsByZone(ctx, zoneID, normalizeLimit(limit))
}

func (r *EventRecorder) ByDevice(ctx context.Context, deviceID string, limit int) ([]entity.Event, error) {
	return r.repo.EventsByDevice(ctx, deviceID, normalizeLimit(limit))
}

// ByZoneKindWindow события зоны заданного типа в полуинтервале [from, to).
func (r *EventRecorder) ByZoneKindWindow(ctx context.Context, zoneID string, kind entity.EventKind, from, to time.Time) ([]entity.Event, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown event kind %q", entity.ErrInvalidQuery, kind)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: window end %s precedes start %s", entity.ErrInvalidQuery, to, from)
	}
	return r.repo.EventsByZoneKindWindow(ctx, zoneID, kind, from, to)
}

// Recent события за последнее окно RecentWindow.
func (r *EventRecorder) Recent(ctx context.Context, limit int) ([]entity.Event, error) {
	since := r.clock.Now().Add(-r.recentWindow)
	return r.repo.EventsSince(ctx, since, normalizeLimit(limit))
}

// CountByZoneAndKind количество событий по зонам и типам начиная с since.
func (r *EventRecorder) CountByZoneAndKind(ctx context.Context, since time.Time) ([]entity.ZoneKindCount, error) {
	return r.repo.CountEventsByZoneKind(ctx, since)
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultQueryLimit
	}
	if limit > maxQueryLimit {
		return maxQueryLimit
	}
	return limit
}
