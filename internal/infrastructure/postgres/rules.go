package postgres

import (
	"context"

	"github.com/paincake00/geopromo/internal/entity"
)

// ListRulesByZone возвращает все правила зоны в порядке создания.
func (r *PostgresRepo) ListRulesByZone(ctx context.Context, zoneID string) ([]entity.Rule, error) {
	sql := `SELECT id, seq, zone_id, promotion_id, priority, active, created_at
			FROM rules WHERE zone_id = $1 ORDER BY seq`
	rows, err := r.Pool.Query(ctx, sql, zoneID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []entity.Rule
	for rows.Next() {
		var rule entity.Rule
		if err := rows.Scan(&rule.ID, &rule.Seq, &rule.ZoneID, &rule.PromotionID, &rule.Priority, &rule.Active, &rule.CreatedAt); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// ExistingPromotions возвращает подмножество ids, для которых промоакция существует.
func (r *PostgresRepo) ExistingPromotions(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.Pool.Query(ctx, `SELECT id FROM promotions WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

// CountActiveRules количество активных правил на активных зонах компании.
func (r *PostgresRepo) CountActiveRules(ctx context.Context, companyID string) (int, error) {
	sql := `SELECT COUNT(*) FROM rules r JOIN zones z ON z.id = r.zone_id
			WHERE z.company_id = $1 AND z.active AND r.active`
	var n int
	err := r.Pool.QueryRow(ctx, sql, companyID).Scan(&n)
	return n, err
}
