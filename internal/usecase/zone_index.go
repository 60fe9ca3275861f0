package usecase

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/paincake00/geopromo/internal/clock"
	"github.com/paincake00/geopromo/internal/entity"
	"github.com/paincake00/geopromo/internal/geo"
	"github.com/paincake00/geopromo/internal/metrics"
)

const defaultZoneCacheTTL = 60 * time.Second

// ZoneIndex отвечает за поиск активных зон компании, содержащих точку.
// Зоны кешируются по компаниям в памяти процесса (с заранее посчитанными рамками) и в общем кеше Redis.
type ZoneIndex struct {
	repo    ZoneRepository
	cache   ZoneCache
	clock   clock.Clock
	ttl     time.Duration
	log     *zap.Logger
	metrics *metrics.Collector

	mu          sync.RWMutex
	companies   map[string]*companyZones
	generations map[string]uint64
	loads       singleflight.Group
}

type indexedZone struct {
	zone   entity.Zone
	bounds geo.Bounds
}

type companyZones struct {
	zones    []indexedZone
	loadedAt time.Time
}

type ZoneIndexOption func(*ZoneIndex)

// WithZoneCacheTTL задает время жизни снимка зон компании в памяти.
func WithZoneCacheTTL(d time.Duration) ZoneIndexOption {
	return func(z *ZoneIndex) {
		if d > 0 {
			z.ttl = d
		}
	}
}

func WithZoneIndexClock(c clock.Clock) ZoneIndexOption {
	return func(z *ZoneIndex) { z.clock = c }
}

func WithZoneIndexLogger(l *zap.Logger) ZoneIndexOption {
	return func(z *ZoneIndex) { z.log = l }
}

func WithZoneIndexMetrics(m *metrics.Collector) ZoneIndexOption {
	return func(z *ZoneIndex) { z.metrics = m }
}

// NewZoneIndex создает индекс зон. cache может быть nil.
func NewZoneIndex(repo ZoneRepository, cache ZoneCache, opts ...ZoneIndexOption) *ZoneIndex {
	z := &ZoneIndex{
		repo:        repo,
		cache:       cache,
		clock:       clock.NewSystem(),
		ttl:         defaultZoneCacheTTL,
		log:         zap.NewNop(),
		companies:   make(map[string]*companyZones),
		generations: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(z)
	}
	return z
}

// FindContaining возвращает множество активных зон компании, содержащих точку.
// Отсев по рамке не меняет результат по сравнению с полным перебором.
func (z *ZoneIndex) FindContaining(ctx context.Context, companyID string, lat, lon float64) (entity.ZoneSet, error) {
	snap, err := z.snapshot(ctx, companyID)
	if err != nil {
		return nil, err
	}

	found := entity.ZoneSet{}
	for _, iz := range snap.zones {
		if !iz.bounds.Contains(lat, lon) {
			continue
		}
		if geo.Contains(iz.zone, lat, lon) {
			found[iz.zone.ID] = struct{}{}
		}
	}
	return found, nil
}

// Invalidate сбрасывает кеш зон компании (вызывается при изменении зон).
func (z *ZoneIndex) Invalidate(ctx context.Context, companyID string) error {
	z.mu.Lock()
	delete(z.companies, companyID)
	z.generations[companyID]++
	z.mu.Unlock()

	if z.cache == nil {
		return nil
	}
	if err := z.cache.InvalidateZones(ctx, companyID); err != nil {
		return fmt.Errorf("invalidate zone cache: %w", err)
	}
	return nil
}

func (z *ZoneIndex) snapshot(ctx context.Context, companyID string) (*companyZones, error) {
	now := z.clock.Now()

	z.mu.RLock()
	snap, ok := z.companies[companyID]
	gen := z.generations[companyID]
	z.mu.RUnlock()

	if ok && now.Sub(snap.loadedAt) < z.ttl {
		z.metrics.ZoneCache("local", "hit")
		return snap, nil
	}
	z.metrics.ZoneCache("local", "miss")

	key := companyID + "#" + strconv.FormatUint(gen, 10)
	v, err, _ := z.loads.Do(key, func() (interface{}, error) {
		zones, err := z.loadZones(ctx, companyID)
		if err != nil {
			return nil, err
		}
		built := buildCompanyZones(companyID, zones, now)

		z.mu.Lock()
		if z.generations[companyID] == gen {
			z.companies[companyID] = built
		}
		z.mu.Unlock()
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*companyZones), nil
}

// loadZones: сначала общий кеш, потом БД.
func (z *ZoneIndex) loadZones(ctx context.Context, companyID string) ([]entity.Zone, error) {
	if z.cache != nil {
		zones, err := z.cache.GetZones(ctx, companyID)
		switch {
		case err != nil:
			z.metrics.ZoneCache("redis", "error")
			z.log.Warn("zone cache read failed", zap.String("company_id", companyID), zap.Error(err))
		case zones != nil:
			z.metrics.ZoneCache("redis", "hit")
			return zones, nil
		default:
			z.metrics.ZoneCache("redis", "miss")
		}
	}

	zones, err := z.repo.ListActiveZones(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("list active zones: %w", err)
	}
	if zones == nil {
		zones = []entity.Zone{}
	}

	if z.cache != nil {
		if err := z.cache.SetZones(ctx, companyID, zones); err != nil {
			z.log.Warn("zone cache write failed", zap.String("company_id", companyID), zap.Error(err))
		}
	}
	return zones, nil
}

// buildCompanyZones оставляет только активные зоны компании с корректной геометрией.
func buildCompanyZones(companyID string, zones []entity.Zone, now time.Time) *companyZones {
	out := &companyZones{loadedAt: now, zones: make([]indexedZone, 0, len(zones))}
	for _, zn := range zones {
		if !zn.Active || zn.CompanyID != companyID {
			continue
		}
		if zn.Shape == nil || zn.Shape.Kind() != zn.Kind {
			continue
		}
		b, ok := geo.BoundsOf(zn.Shape)
		if !ok {
			continue
		}
		out.zones = append(out.zones, indexedZone{zone: zn, bounds: b})
	}
	return out
}
