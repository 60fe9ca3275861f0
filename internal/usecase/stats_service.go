package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/paincake00/geopromo/internal/clock"
	"github.com/paincake00/geopromo/internal/entity"
)

// CompanyStats количество активных зон и правил компании.
type CompanyStats struct {
	CompanyID   string `json:"company_id"`
	ActiveZones int    `json:"active_zones"`
	ActiveRules int    `json:"active_rules"`
}

// StatsService отвечает за агрегированные счетчики по событиям, зонам и правилам.
type StatsService struct {
	Events *EventRecorder
	Zones  ZoneRepository
	Rules  RuleRepository
	Clock  clock.Clock
}

// NewStatsService создает новый экземпляр сервиса статистики.
func NewStatsService(events *EventRecorder, zones ZoneRepository, rules RuleRepository, clk clock.Clock) *StatsService {
	return &StatsService{Events: events, Zones: zones, Rules: rules, Clock: clk}
}

// EventCounts возвращает количество событий по зонам и типам за последнее окно.
func (s *StatsService) EventCounts(ctx context.Context, window time.Duration) ([]entity.ZoneKindCount, error) {
	if window <= 0 {
		return nil, fmt.Errorf("%w: window must be positive", entity.ErrInvalidQuery)
	}
	return s.Events.CountByZoneAndKind(ctx, s.Clock.Now().Add(-window))
}

// Company возвращает количество активных зон и правил компании.
func (s *StatsService) Company(ctx context.Context, companyID string) (CompanyStats, error) {
	zones, err := s.Zones.CountActiveZones(ctx, companyID)
	if err != nil {
		return CompanyStats{}, fmt.Errorf("count active zones: %w", err)
	}
	rules, err := s.Rules.CountActiveRules(ctx, companyID)
	if err != nil {
		return CompanyStats{}, fmt.Errorf("count active rules: %w", err)
	}
	return CompanyStats{CompanyID: companyID, ActiveZones: zones, ActiveRules: rules}, nil
}
