package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/paincake00/geopromo/internal/entity"
)

const zoneColumns = `id, company_id, name, kind, params, active, created_at`

// ListActiveZones возвращает активные зоны компании.
func (r *PostgresRepo) ListActiveZones(ctx context.Context, companyID string) ([]entity.Zone, error) {
	sql := `SELECT ` + zoneColumns + ` FROM zones WHERE company_id = $1 AND active ORDER BY id`
	rows, err := r.Pool.Query(ctx, sql, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	zones := []entity.Zone{}
	for rows.Next() {
		z, err := scanZone(rows)
		if err != nil {
			return nil, err
		}
		zones = append(zones, z)
	}
	return zones, rows.Err()
}

// GetZone получает зону по ID (в том числе неактивную).
func (r *PostgresRepo) GetZone(ctx context.Context, zoneID string) (entity.Zone, error) {
	sql := `SELECT ` + zoneColumns + ` FROM zones WHERE id = $1`
	z, err := scanZone(r.Pool.QueryRow(ctx, sql, zoneID))
	if errors.Is(err, pgx.ErrNoRows) {
		return entity.Zone{}, fmt.Errorf("%w: %s", entity.ErrZoneNotFound, zoneID)
	}
	return z, err
}

// CountActiveZones количество активных зон компании.
func (r *PostgresRepo) CountActiveZones(ctx context.Context, companyID string) (int, error) {
	var n int
	err := r.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM zones WHERE company_id = $1 AND active`, companyID).Scan(&n)
	return n, err
}

// scanZone разбирает строку зоны. Некорректные параметры формы дают зону без Shape:
// такая зона не содержит ни одной точки, но остается видимой для запросов.
func scanZone(row pgx.Row) (entity.Zone, error) {
	var (
		z      entity.Zone
		kind   string
		params []byte
	)
	if err := row.Scan(&z.ID, &z.CompanyID, &z.Name, &kind, &params, &z.Active, &z.CreatedAt); err != nil {
		return entity.Zone{}, err
	}
	z.Kind = entity.ShapeKind(kind)
	if shape, err := entity.DecodeShape(z.Kind, params); err == nil {
		z.Shape = shape
	}
	return z, nil
}
