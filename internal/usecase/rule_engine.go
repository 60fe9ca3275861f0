package usecase

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/paincake00/geopromo/internal/entity"
)

// RuleEngine определяет, какие промоакции становятся доступны при входе в зону.
type RuleEngine struct {
	zones ZoneRepository
	rules RuleRepository
}

func NewRuleEngine(zones ZoneRepository, rules RuleRepository) *RuleEngine {
	return &RuleEngine{zones: zones, rules: rules}
}

// ApplicableRules возвращает активные правила активной зоны, чьи промоакции существуют,
// по убыванию приоритета; при равном приоритете раньше созданное правило идет первым.
func (e *RuleEngine) ApplicableRules(ctx context.Context, zoneID string) ([]entity.Rule, error) {
	zone, err := e.zones.GetZone(ctx, zoneID)
	if err != nil {
		if errors.Is(err, entity.ErrZoneNotFound) {
			return []entity.Rule{}, nil
		}
		return nil, fmt.Errorf("get zone: %w", err)
	}
	if !zone.Active {
		return []entity.Rule{}, nil
	}

	all, err := e.rules.ListRulesByZone(ctx, zoneID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}

	active := make([]entity.Rule, 0, len(all))
	promoIDs := make([]string, 0, len(all))
	for _, r := range all {
		if !r.Active || r.ZoneID != zoneID {
			continue
		}
		active = append(active, r)
		promoIDs = append(promoIDs, r.PromotionID)
	}
	if len(active) == 0 {
		return []entity.Rule{}, nil
	}

	existing, err := e.rules.ExistingPromotions(ctx, promoIDs)
	if err != nil {
		return nil, fmt.Errorf("check promotions: %w", err)
	}
	applicable := active[:0]
	for _, r := range active {
		if existing[r.PromotionID] {
			applicable = append(applicable, r)
		}
	}

	slices.SortStableFunc(applicable, compareRules)
	return applicable, nil
}

// PromotionsFor возвращает промоакции для перехода. Выход из зоны промоакций не порождает.
func (e *RuleEngine) PromotionsFor(ctx context.Context, tr entity.Transition) ([]string, error) {
	if tr.Kind != entity.EventEnter {
		return nil, nil
	}
	rules, err := e.ApplicableRules(ctx, tr.ZoneID)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		out = append(out, r.PromotionID)
	}
	return out, nil
}

func compareRules(a, b entity.Rule) int {
	if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Seq, b.Seq); c != 0 {
		return c
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
