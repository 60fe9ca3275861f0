package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/paincake00/geopromo/internal/clock"
	"github.com/paincake00/geopromo/internal/entity"
	"github.com/paincake00/geopromo/internal/geo"
)

// ZoneFinder источник множества зон, содержащих точку.
type ZoneFinder interface {
	FindContaining(ctx context.Context, companyID string, lat, lon float64) (entity.ZoneSet, error)
}

// TransitionRecorder сохраняет событие перехода.
type TransitionRecorder interface {
	Record(ctx context.Context, deviceID string, tr entity.Transition, p entity.Point) (entity.Event, error)
}

// TrackResult переходы одного обновления, для которых события сохранены, и переходы, которые сохранить не удалось.
type TrackResult struct {
	Events []entity.Event
	Failed []entity.TransitionFailure
}

type deviceState struct {
	companyID string
	lastSeen  time.Time
	touched   time.Time
	open      map[string]time.Time // zoneID -> момент входа
	dirty     bool                 // последний снимок не сохранен
}

// Tracker хранит состояние членства устройств в зонах и выводит из координат переходы ENTER/EXIT.
// Tracker не потокобезопасен: каждым экземпляром владеет ровно один воркер диспетчера,
// поэтому обновления одного устройства применяются строго последовательно.
type Tracker struct {
	zones     ZoneFinder
	recorder  TransitionRecorder
	directory DirectoryRepository
	store     MembershipStore
	clock     clock.Clock
	log       *zap.Logger

	devices map[string]*deviceState
	// lastSeen выгруженных устройств, чтобы после выгрузки не принять устаревшее обновление
	evicted map[string]time.Time
}

type TrackerOption func(*Tracker)

// WithMembershipStore подключает хранилище снимков; без него состояние живет только в памяти.
func WithMembershipStore(s MembershipStore) TrackerOption {
	return func(t *Tracker) { t.store = s }
}

func WithTrackerClock(c clock.Clock) TrackerOption {
	return func(t *Tracker) { t.clock = c }
}

func WithTrackerLogger(l *zap.Logger) TrackerOption {
	return func(t *Tracker) { t.log = l }
}

func NewTracker(zones ZoneFinder, recorder TransitionRecorder, directory DirectoryRepository, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		zones:     zones,
		recorder:  recorder,
		directory: directory,
		clock:     clock.NewSystem(),
		log:       zap.NewNop(),
		devices:   make(map[string]*deviceState),
		evicted:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Process применяет обновление координат устройства и возвращает переходы.
// Если часть переходов не удалось сохранить, возвращается частичный результат и *entity.PartialError;
// членство по таким зонам не меняется, поэтому состояние и журнал событий не расходятся.
func (t *Tracker) Process(ctx context.Context, upd entity.LocationUpdate) (TrackResult, error) {
	if !geo.ValidCoordinates(upd.Latitude, upd.Longitude) {
		return TrackResult{}, fmt.Errorf("%w: (%v, %v)", entity.ErrInvalidCoordinates, upd.Latitude, upd.Longitude)
	}
	if err := t.resolve(ctx, upd); err != nil {
		return TrackResult{}, err
	}

	st, err := t.state(ctx, upd.DeviceID, upd.CompanyID)
	if err != nil {
		return TrackResult{}, err
	}
	if upd.Timestamp.Before(st.lastSeen) {
		return TrackResult{}, &entity.OutOfOrderError{
			DeviceID:  upd.DeviceID,
			Timestamp: upd.Timestamp,
			LastSeen:  st.lastSeen,
		}
	}

	current, err := t.zones.FindContaining(ctx, upd.CompanyID, upd.Latitude, upd.Longitude)
	if err != nil {
		return TrackResult{}, fmt.Errorf("find containing zones: %w", err)
	}

	var entered, exited []string
	for zoneID := range current {
		if _, ok := st.open[zoneID]; !ok {
			entered = append(entered, zoneID)
		}
	}
	for zoneID := range st.open {
		if !current.Has(zoneID) {
			exited = append(exited, zoneID)
		}
	}

	var res TrackResult
	point := upd.Point()
	apply := func(zoneID string, kind entity.EventKind) {
		tr := entity.Transition{ZoneID: zoneID, Kind: kind, Timestamp: upd.Timestamp}
		ev, err := t.recorder.Record(ctx, upd.DeviceID, tr, point)
		if err != nil {
			res.Failed = append(res.Failed, entity.NewTransitionFailure(tr, entity.StageRecord, err))
			return
		}
		if kind == entity.EventEnter {
			st.open[zoneID] = upd.Timestamp
		} else {
			delete(st.open, zoneID)
		}
		res.Events = append(res.Events, ev)
	}
	for _, zoneID := range entity.NewZoneSet(exited...).Sorted() {
		apply(zoneID, entity.EventExit)
	}
	for _, zoneID := range entity.NewZoneSet(entered...).Sorted() {
		apply(zoneID, entity.EventEnter)
	}

	st.lastSeen = upd.Timestamp
	st.touched = t.clock.Now()
	st.companyID = upd.CompanyID
	t.persist(ctx, upd.DeviceID, st)

	if len(res.Failed) > 0 {
		return res, &entity.PartialError{Failed: res.Failed}
	}
	return res, nil
}

// OpenMemberships текущие открытые членства устройства.
func (t *Tracker) OpenMemberships(deviceID string) []entity.Membership {
	st, ok := t.devices[deviceID]
	if !ok {
		return nil
	}
	out := make([]entity.Membership, 0, len(st.open))
	for _, zoneID := range zoneIDs(st.open) {
		out = append(out, entity.Membership{DeviceID: deviceID, ZoneID: zoneID, EnteredAt: st.open[zoneID]})
	}
	return out
}

// Devices количество устройств с состоянием в памяти.
func (t *Tracker) Devices() int {
	return len(t.devices)
}

// EvictIdle удаляет состояние устройств, не присылавших координаты дольше ttl.
// Устройство остается в памяти, пока его нельзя восстановить: без хранилища снимков при открытых
// членствах, с хранилищем - пока снимок не сохранен. Несохраненный снимок перед выгрузкой
// сохраняется повторно. Момент последнего обновления выгруженного устройства запоминается.
func (t *Tracker) EvictIdle(ctx context.Context, now time.Time, ttl time.Duration) int {
	evicted := 0
	for id, st := range t.devices {
		if now.Sub(st.touched) < ttl {
			continue
		}
		if t.store == nil && len(st.open) > 0 {
			continue
		}
		if st.dirty {
			t.persist(ctx, id, st)
			if st.dirty {
				continue
			}
		}
		delete(t.devices, id)
		t.evicted[id] = st.lastSeen
		evicted++
	}
	return evicted
}

func (t *Tracker) resolve(ctx context.Context, upd entity.LocationUpdate) error {
	if upd.CompanyID == "" {
		return fmt.Errorf("%w: empty company id", entity.ErrUnknownCompany)
	}
	if upd.DeviceID == "" {
		return fmt.Errorf("%w: empty device id", entity.ErrUnknownDevice)
	}
	if st, ok := t.devices[upd.DeviceID]; ok && st.companyID == upd.CompanyID {
		return nil
	}

	ok, err := t.directory.CompanyExists(ctx, upd.CompanyID)
	if err != nil {
		return fmt.Errorf("check company: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", entity.ErrUnknownCompany, upd.CompanyID)
	}
	ok, err = t.directory.DeviceBelongsTo(ctx, upd.DeviceID, upd.CompanyID)
	if err != nil {
		return fmt.Errorf("check device: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s (company %s)", entity.ErrUnknownDevice, upd.DeviceID, upd.CompanyID)
	}
	return nil
}

func (t *Tracker) state(ctx context.Context, deviceID, companyID string) (*deviceState, error) {
	if st, ok := t.devices[deviceID]; ok {
		return st, nil
	}
	st := &deviceState{companyID: companyID, open: make(map[string]time.Time)}
	if t.store != nil {
		snap, err := t.store.LoadMembership(ctx, deviceID)
		if err != nil {
			return nil, fmt.Errorf("load membership snapshot: %w", err)
		}
		if snap != nil {
			st.lastSeen = snap.LastSeen
			for zoneID, at := range snap.Open {
				st.open[zoneID] = at
			}
		}
	}
	if last, ok := t.evicted[deviceID]; ok {
		if last.After(st.lastSeen) {
			st.lastSeen = last
		}
		delete(t.evicted, deviceID)
	}
	t.devices[deviceID] = st
	return st, nil
}

func (t *Tracker) persist(ctx context.Context, deviceID string, st *deviceState) {
	if t.store == nil {
		return
	}
	snap := MembershipSnapshot{LastSeen: st.lastSeen, Open: make(map[string]time.Time, len(st.open))}
	for zoneID, at := range st.open {
		snap.Open[zoneID] = at
	}
	if err := t.store.SaveMembership(ctx, deviceID, snap); err != nil {
		st.dirty = true
		t.log.Warn("failed to save membership snapshot", zap.String("device_id", deviceID), zap.Error(err))
		return
	}
	st.dirty = false
}

func zoneIDs(m map[string]time.Time) []string {
	s := make(entity.ZoneSet, len(m))
	for id := range m {
		s[id] = struct{}{}
	}
	return s.Sorted()
}
