package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/paincake00/geopromo/internal/entity"
)

const eventColumns = `id, device_id, zone_id, kind, occurred_at, latitude, longitude, recorded_at`

// InsertEvent добавляет событие перехода. События никогда не изменяются.
func (r *PostgresRepo) InsertEvent(ctx context.Context, e entity.Event) error {
	sql := `INSERT INTO events (` + eventColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.Pool.Exec(ctx, sql, e.ID, e.DeviceID, e.ZoneID, string(e.Kind), e.OccurredAt, e.Latitude, e.Longitude, e.RecordedAt)
	return err
}

// EventsByZone последние события зоны, новые первыми.
func (r *PostgresRepo) EventsByZone(ctx context.Context, zoneID string, limit int) ([]entity.Event, error) {
	sql := `SELECT ` + eventColumns + ` FROM events WHERE zone_id = $1 ORDER BY occurred_at DESC, recorded_at DESC LIMIT $2`
	return r.queryEvents(ctx, sql, zoneID, limit)
}

// EventsByDevice последние события устройства, новые первыми.
func (r *PostgresRepo) EventsByDevice(ctx context.Context, deviceID string, limit int) ([]entity.Event, error) {
	sql := `SELECT ` + eventColumns + ` FROM events WHERE device_id = $1 ORDER BY occurred_at DESC, recorded_at DESC LIMIT $2`
	return r.queryEvents(ctx, sql, deviceID, limit)
}

// EventsByZoneKindWindow события зоны заданного типа в [from, to), в хронологическом порядке.
func (r *PostgresRepo) EventsByZoneKindWindow(ctx context.Context, zoneID string, kind entity.EventKind, from, to time.Time) ([]entity.Event, error) {
	sql := `SELECT ` + eventColumns + ` FROM events
			WHERE zone_id = $1 AND kind = $2 AND occurred_at >= $3 AND occurred_at < $4
			ORDER BY occurred_at`
	return r.queryEvents(ctx, sql, zoneID, string(kind), from, to)
}

// EventsSince события начиная с since, новые первыми.
func (r *PostgresRepo) EventsSince(ctx context.Context, since time.Time, limit int) ([]entity.Event, error) {
	sql := `SELECT ` + eventColumns + ` FROM events WHERE occurred_at >= $1 ORDER BY occurred_at DESC, recorded_at DESC LIMIT $2`
	return r.queryEvents(ctx, sql, since, limit)
}

// CountEventsByZoneKind количество событий по зонам и типам начиная с since.
func (r *PostgresRepo) CountEventsByZoneKind(ctx context.Context, since time.Time) ([]entity.ZoneKindCount, error) {
	sql := `SELECT zone_id, kind, COUNT(*) FROM events WHERE occurred_at >= $1
			GROUP BY zone_id, kind ORDER BY zone_id, kind`
	rows, err := r.Pool.Query(ctx, sql, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := []entity.ZoneKindCount{}
	for rows.Next() {
		var (
			c    entity.ZoneKindCount
			kind string
		)
		if err := rows.Scan(&c.ZoneID, &kind, &c.Count); err != nil {
			return nil, err
		}
		c.Kind = entity.EventKind(kind)
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func (r *PostgresRepo) queryEvents(ctx context.Context, sql string, args ...any) ([]entity.Event, error) {
	rows, err := r.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (entity.Event, error) {
		var (
			e    entity.Event
			kind string
		)
		err := row.Scan(&e.ID, &e.DeviceID, &e.ZoneID, &kind, &e.OccurredAt, &e.Latitude, &e.Longitude, &e.RecordedAt)
		e.Kind = entity.EventKind(kind)
		e.OccurredAt = e.OccurredAt.UTC()
		e.RecordedAt = e.RecordedAt.UTC()
		return e, err
	})
}
