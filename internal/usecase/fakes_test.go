package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/paincake00/geopromo/internal/entity"
)

// --- Моки ---

type fakeZoneRepo struct {
	mu    sync.Mutex
	zones map[string]entity.Zone
	lists int
	err   error
}

func newFakeZoneRepo(zones ...entity.Zone) *fakeZoneRepo {
	r := &fakeZoneRepo{zones: make(map[string]entity.Zone)}
	for _, z := range zones {
		r.zones[z.ID] = z
	}
	return r
}

func (r *fakeZoneRepo) put(z entity.Zone) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.zones[z.ID] = z
}

func (r *fakeZoneRepo) listCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lists
}

func (r *fakeZoneRepo) ListActiveZones(ctx context.Context, companyID string) ([]entity.Zone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lists++
	if r.err != nil {
		return nil, r.err
	}
	var out []entity.Zone
	for _, z := range r.zones {
		if z.CompanyID == companyID && z.Active {
			out = append(out, z)
		}
	}
	return out, nil
}

func (r *fakeZoneRepo) GetZone(ctx context.Context, zoneID string) (entity.Zone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return entity.Zone{}, r.err
	}
	z, ok := r.zones[zoneID]
	if !ok {
		return entity.Zone{}, entity.ErrZoneNotFound
	}
	return z, nil
}

func (r *fakeZoneRepo) CountActiveZones(ctx context.Context, companyID string) (int, error) {
	zones, err := r.ListActiveZones(ctx, companyID)
	return len(zones), err
}

var _ ZoneRepository = (*fakeZoneRepo)(nil)

type fakeZoneCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	getErr  error
	setErr  error
	gets    int
	invalid []string
}

func newFakeZoneCache() *fakeZoneCache {
	return &fakeZoneCache{data: make(map[string][]byte)}
}

func (c *fakeZoneCache) SetZones(ctx context.Context, companyID string, zones []entity.Zone) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	data, err := json.Marshal(zones)
	if err != nil {
		return err
	}
	c.data[companyID] = data
	return nil
}

func (c *fakeZoneCache) GetZones(ctx context.Context, companyID string) ([]entity.Zone, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.getErr != nil {
		return nil, c.getErr
	}
	data, ok := c.data[companyID]
	if !ok {
		return nil, nil
	}
	var zones []entity.Zone
	if err := json.Unmarshal(data, &zones); err != nil {
		return nil, err
	}
	return zones, nil
}

func (c *fakeZoneCache) InvalidateZones(ctx context.Context, companyID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, companyID)
	c.invalid = append(c.invalid, companyID)
	return nil
}

var _ ZoneCache = (*fakeZoneCache)(nil)

type fakeDirectory struct {
	companies map[string]bool
	devices   map[string]string // deviceID -> companyID
	err       error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{companies: make(map[string]bool), devices: make(map[string]string)}
}

func (d *fakeDirectory) withDevice(companyID string, deviceIDs ...string) *fakeDirectory {
	d.companies[companyID] = true
	for _, id := range deviceIDs {
		d.devices[id] = companyID
	}
	return d
}

func (d *fakeDirectory) CompanyExists(ctx context.Context, companyID string) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	return d.companies[companyID], nil
}

func (d *fakeDirectory) DeviceBelongsTo(ctx context.Context, deviceID, companyID string) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	return d.devices[deviceID] == companyID, nil
}

var _ DirectoryRepository = (*fakeDirectory)(nil)

type fakeEventRepo struct {
	mu     sync.Mutex
	events []entity.Event
	failOn func(e entity.Event) error
}

func (r *fakeEventRepo) InsertEvent(ctx context.Context, e entity.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn != nil {
		if err := r.failOn(e); err != nil {
			return err
		}
	}
	r.events = append(r.events, e)
	return nil
}

func (r *fakeEventRepo) snapshot() []entity.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]entity.Event(nil), r.events...)
}

func (r *fakeEventRepo) filter(keep func(entity.Event) bool, limit int) []entity.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.Event
	for i := len(r.events) - 1; i >= 0; i-- {
		if keep(r.events[i]) {
			out = append(out, r.events[i])
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out
}

func (r *fakeEventRepo) EventsByZone(ctx context.Context, zoneID string, limit int) ([]entity.Event, error) {
	return r.filter(func(e entity.Event) bool { return e.ZoneID == zoneID }, limit), nil
}

func (r *fakeEventRepo) EventsByDevice(ctx context.Context, deviceID string, limit int) ([]entity.Event, error) {
	return r.filter(func(e entity.Event) bool { return e.DeviceID == deviceID }, limit), nil
}

func (r *fakeEventRepo) EventsByZoneKindWindow(ctx context.Context, zoneID string, kind entity.EventKind, from, to time.Time) ([]entity.Event, error) {
	return r.filter(func(e entity.Event) bool {
		return e.ZoneID == zoneID && e.Kind == kind && !e.OccurredAt.Before(from) && e.OccurredAt.Before(to)
	}, 0), nil
}

func (r *fakeEventRepo) EventsSince(ctx context.Context, since time.Time, limit int) ([]entity.Event, error) {
	return r.filter(func(e entity.Event) bool { return !e.OccurredAt.Before(since) }, limit), nil
}

func (r *fakeEventRepo) CountEventsByZoneKind(ctx context.Context, since time.Time) ([]entity.ZoneKindCount, error) {
	counts := make(map[[2]string]int)
	for _, e := range r.filter(func(e entity.Event) bool { return !e.OccurredAt.Before(since) }, 0) {
		counts[[2]string{e.ZoneID, string(e.Kind)}]++
	}
	out := make([]entity.ZoneKindCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, entity.ZoneKindCount{ZoneID: k[0], Kind: entity.EventKind(k[1]), Count: n})
	}
	return out, nil
}

var _ EventRepository = (*fakeEventRepo)(nil)

type fakeRuleRepo struct {
	rules      []entity.Rule
	promotions map[string]bool
	err        error
}

func (r *fakeRuleRepo) ListRulesByZone(ctx context.Context, zoneID string) ([]entity.Rule, error) {
	if r.err != nil {
		return nil, r.err
	}
	var out []entity.Rule
	for _, rule := range r.rules {
		if rule.ZoneID == zoneID {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (r *fakeRuleRepo) ExistingPromotions(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		if r.promotions[id] {
			out[id] = true
		}
	}
	return out, nil
}

func (r *fakeRuleRepo) CountActiveRules(ctx context.Context, companyID string) (int, error) {
	n := 0
	for _, rule := range r.rules {
		if rule.Active {
			n++
		}
	}
	return n, nil
}

var _ RuleRepository = (*fakeRuleRepo)(nil)

type fakeQueue struct {
	mu       sync.Mutex
	payloads []interface{}
	err      error
}

func (q *fakeQueue) Enqueue(ctx context.Context, queue string, payload interface{}) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.payloads = append(q.payloads, payload)
	return nil
}

func (q *fakeQueue) Dequeue(ctx context.Context, queue string) (string, error) {
	return "", errors.New("not implemented")
}

var _ QueueRepository = (*fakeQueue)(nil)

type fakeMembershipStore struct {
	snaps   map[string]MembershipSnapshot
	saves   int
	saveErr error
}

func newFakeMembershipStore() *fakeMembershipStore {
	return &fakeMembershipStore{snaps: make(map[string]MembershipSnapshot)}
}

func (s *fakeMembershipStore) LoadMembership(ctx context.Context, deviceID string) (*MembershipSnapshot, error) {
	snap, ok := s.snaps[deviceID]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (s *fakeMembershipStore) SaveMembership(ctx context.Context, deviceID string, snap MembershipSnapshot) error {
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.snaps[deviceID] = snap
	return nil
}

var _ MembershipStore = (*fakeMembershipStore)(nil)

// --- Вспомогательные функции ---

func circle(id, companyID string, lat, lon, radius float64) entity.Zone {
	return entity.Zone{
		ID: id, CompanyID: companyID, Name: id, Active: true,
		Kind:  entity.ShapeCircle,
		Shape: entity.Circle{Center: &entity.Point{Lat: lat, Lon: lon}, RadiusMeters: radius},
	}
}

func rectangle(id, companyID string, swLat, swLon, neLat, neLon float64) entity.Zone {
	return entity.Zone{
		ID: id, CompanyID: companyID, Name: id, Active: true,
		Kind:  entity.ShapeRectangle,
		Shape: entity.Rectangle{SW: &entity.Point{Lat: swLat, Lon: swLon}, NE: &entity.Point{Lat: neLat, Lon: neLon}},
	}
}

func polygon(id, companyID string, vs ...entity.Point) entity.Zone {
	return entity.Zone{
		ID: id, CompanyID: companyID, Name: id, Active: true,
		Kind:  entity.ShapePolygon,
		Shape: entity.Polygon{Vertices: vs},
	}
}
