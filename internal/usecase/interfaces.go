package usecase

import (
	"context"
	"time"

	"github.com/paincake00/geopromo/internal/entity"
)

type ZoneRepository interface {
	ListActiveZones(ctx context.Context, companyID string) ([]entity.Zone, error)
	GetZone(ctx context.Context, zoneID string) (entity.Zone, error) // entity.ErrZoneNotFound если зоны нет
	CountActiveZones(ctx context.Context, companyID string) (int, error)
}

type RuleRepository interface {
	ListRulesByZone(ctx context.Context, zoneID string) ([]entity.Rule, error)
	ExistingPromotions(ctx context.Context, promotionIDs []string) (map[string]bool, error)
	CountActiveRules(ctx context.Context, companyID string) (int, error)
}

type EventRepository interface {
	InsertEvent(ctx context.Context, e entity.Event) error
	EventsByZone(ctx context.Context, zoneID string, limit int) ([]entity.Event, error)
	EventsByDevice(ctx context.Context, deviceID string, limit int) ([]entity.Event, error)
	EventsByZoneKindWindow(ctx context.Context, zoneID string, kind entity.EventKind, from, to time.Time) ([]entity.Event, error)
	EventsSince(ctx context.Context, since time.Time, limit int) ([]entity.Event, error)
	CountEventsByZoneKind(ctx context.Context, since time.Time) ([]entity.ZoneKindCount, error)
}

// DirectoryRepository проверка существования компаний и устройств.
type DirectoryRepository interface {
	CompanyExists(ctx context.Context, companyID string) (bool, error)
	DeviceBelongsTo(ctx context.Context, deviceID, companyID string) (bool, error)
}

type ZoneCache interface {
	SetZones(ctx context.Context, companyID string, zones []entity.Zone) error
	GetZones(ctx context.Context, companyID string) ([]entity.Zone, error) // nil, nil при промахе
	InvalidateZones(ctx context.Context, companyID string) error
}

// MembershipSnapshot сохраненное состояние устройства.
type MembershipSnapshot struct {
	LastSeen time.Time
	Open     map[string]time.Time // zoneID -> момент входа
}

// MembershipStore хранилище снимков членства для восстановления после перезапуска.
type MembershipStore interface {
	LoadMembership(ctx context.Context, deviceID string) (*MembershipSnapshot, error) // nil, nil если снимка нет
	SaveMembership(ctx context.Context, deviceID string, snap MembershipSnapshot) error
}

type QueueRepository interface {
	Enqueue(ctx context.Context, queue string, payload interface{}) error
	Dequeue(ctx context.Context, queue string) (string, error) // Returns payload JSON
}
