package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paincake00/geopromo/internal/clock"
	"github.com/paincake00/geopromo/internal/entity"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type trackerFixture struct {
	zones     *fakeZoneRepo
	events    *fakeEventRepo
	directory *fakeDirectory
	tracker   *Tracker
}

func newTrackerFixture(opts []TrackerOption, zones ...entity.Zone) *trackerFixture {
	f := &trackerFixture{
		zones:     newFakeZoneRepo(zones...),
		events:    &fakeEventRepo{},
		directory: newFakeDirectory().withDevice("c1", "d1", "d2"),
	}
	index := NewZoneIndex(f.zones, nil)
	recorder := NewEventRecorder(f.events, clock.NewFixed(t0))
	f.tracker = NewTracker(index, recorder, f.directory, opts...)
	return f
}

func update(device string, lat, lon float64, at time.Time) entity.LocationUpdate {
	return entity.LocationUpdate{DeviceID: device, CompanyID: "c1", Latitude: lat, Longitude: lon, Timestamp: at}
}

func kinds(events []entity.Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.ZoneID+":"+string(e.Kind))
	}
	return out
}

func TestTracker_EnterThenExit(t *testing.T) {
	f := newTrackerFixture(nil, circle("madrid", "c1", 40.4168, -3.7038, 1000))
	ctx := context.Background()

	res, err := f.tracker.Process(ctx, update("d1", 40.4168, -3.7038, t0))
	require.NoError(t, err)
	assert.Equal(t, []string{"madrid:ENTER"}, kinds(res.Events))
	assert.Equal(t, 40.4168, res.Events[0].Latitude)

	open := f.tracker.OpenMemberships("d1")
	require.Len(t, open, 1)
	assert.Equal(t, "madrid", open[0].ZoneID)
	assert.Equal(t, t0, open[0].EnteredAt)

	res, err = f.tracker.Process(ctx, update("d1", 41.3851, 2.1734, t0.Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, []string{"madrid:EXIT"}, kinds(res.Events))
	assert.Empty(t, f.tracker.OpenMemberships("d1"))

	assert.Len(t, f.events.snapshot(), 2)
}

func TestTracker_RepeatedUpdateIsIdempotent(t *testing.T) {
	f := newTrackerFixture(nil, circle("madrid", "c1", 40.4168, -3.7038, 1000))
	ctx := context.Background()

	_, err := f.tracker.Process(ctx, update("d1", 40.4168, -3.7038, t0))
	require.NoError(t, err)

	res, err := f.tracker.Process(ctx, update("d1", 40.4168, -3.7038, t0.Add(time.Minute)))
	require.NoError(t, err)
	assert.Empty(t, res.Events)

	// тот же момент времени допускается
	res, err = f.tracker.Process(ctx, update("d1", 40.4169, -3.7038, t0.Add(time.Minute)))
	require.NoError(t, err)
	assert.Empty(t, res.Events)
	assert.Len(t, f.events.snapshot(), 1)
}

func TestTracker_OverlappingZonesExitsBeforeEnters(t *testing.T) {
	f := newTrackerFixture(nil,
		rectangle("a", "c1", 0, 0, 2, 2),
		rectangle("b", "c1", 1, 1, 3, 3),
		rectangle("c", "c1", 0, 0, 1.5, 1.5),
	)
	ctx := context.Background()

	res, err := f.tracker.Process(ctx, update("d1", 1.2, 1.2, t0))
	require.NoError(t, err)
	assert.Equal(t, []string{"a:ENTER", "b:ENTER", "c:ENTER"}, kinds(res.Events))

	res, err = f.tracker.Process(ctx, update("d1", 2.5, 2.5, t0.Add(time.Second)))
	require.NoError(t, err)
	assert.Equal(t, []string{"a:EXIT", "c:EXIT"}, kinds(res.Events))

	res, err = f.tracker.Process(ctx, update("d1", 0.5, 0.5, t0.Add(2*time.Second)))
	require.NoError(t, err)
	assert.Equal(t, []string{"b:EXIT", "a:ENTER", "c:ENTER"}, kinds(res.Events))
}

func TestTracker_EnterExitSymmetry(t *testing.T) {
	f := newTrackerFixture(nil,
		circle("z1", "c1", 10, 10, 5000),
		circle("z2", "c1", 10.05, 10, 5000),
	)
	ctx := context.Background()

	path := [][2]float64{{10, 10}, {10.03, 10}, {10.05, 10}, {10.2, 10}, {10.02, 10}, {50, 50}}
	for i, p := range path {
		_, err := f.tracker.Process(ctx, update("d1", p[0], p[1], t0.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
	}

	balance := map[string]int{}
	for _, e := range f.events.snapshot() {
		if e.Kind == entity.EventEnter {
			balance[e.ZoneID]++
		} else {
			balance[e.ZoneID]--
		}
		assert.GreaterOrEqual(t, balance[e.ZoneID], 0)
		assert.LessOrEqual(t, balance[e.ZoneID], 1)
	}
	assert.Equal(t, 0, balance["z1"])
	assert.Equal(t, 0, balance["z2"])
}

func TestTracker_DevicesAreIndependent(t *testing.T) {
	f := newTrackerFixture(nil, circle("z", "c1", 0, 0, 1000))
	ctx := context.Background()

	_, err := f.tracker.Process(ctx, update("d1", 0, 0, t0))
	require.NoError(t, err)
	res, err := f.tracker.Process(ctx, update("d2", 0, 0, t0))
	require.NoError(t, err)
	assert.Equal(t, []string{"z:ENTER"}, kinds(res.Events))
	assert.Equal(t, 2, f.tracker.Devices())
}

func TestTracker_RejectsOutOfOrder(t *testing.T) {
	f := newTrackerFixture(nil, circle("z", "c1", 0, 0, 1000))
	ctx := context.Background()

	_, err := f.tracker.Process(ctx, update("d1", 0, 0, t0))
	require.NoError(t, err)

	_, err = f.tracker.Process(ctx, update("d1", 5, 5, t0.Add(-time.Second)))
	require.ErrorIs(t, err, entity.ErrOutOfOrderUpdate)

	var ooo *entity.OutOfOrderError
	require.True(t, errors.As(err, &ooo))
	assert.Equal(t, t0, ooo.LastSeen)

	// состояние не изменилось
	require.Len(t, f.tracker.OpenMemberships("d1"), 1)
	assert.Len(t, f.events.snapshot(), 1)
}

func TestTracker_ValidationErrors(t *testing.T) {
	f := newTrackerFixture(nil, circle("z", "c1", 0, 0, 1000))
	f.directory.companies["c2"] = true
	ctx := context.Background()

	tests := []struct {
		name string
		upd  entity.LocationUpdate
		want error
	}{
		{"latitude out of range", update("d1", 91, 0, t0), entity.ErrInvalidCoordinates},
		{"longitude out of range", update("d1", 0, -181, t0), entity.ErrInvalidCoordinates},
		{"unknown company", entity.LocationUpdate{DeviceID: "d1", CompanyID: "nope", Timestamp: t0}, entity.ErrUnknownCompany},
		{"empty company", entity.LocationUpdate{DeviceID: "d1", Timestamp: t0}, entity.ErrUnknownCompany},
		{"unknown device", update("ghost", 0, 0, t0), entity.ErrUnknownDevice},
		{"device of another company", entity.LocationUpdate{DeviceID: "d1", CompanyID: "c2", Timestamp: t0}, entity.ErrUnknownDevice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.tracker.Process(ctx, tt.upd)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, f.events.snapshot())
	assert.Empty(t, f.tracker.OpenMemberships("d1"))
}

func TestTracker_RecordFailureKeepsMembership(t *testing.T) {
	f := newTrackerFixture(nil,
		circle("a", "c1", 0, 0, 1000),
		circle("b", "c1", 0, 0, 2000),
	)
	boom := errors.New("disk full")
	f.events.failOn = func(e entity.Event) error {
		if e.ZoneID == "b" {
			return boom
		}
		return nil
	}
	ctx := context.Background()

	res, err := f.tracker.Process(ctx, update("d1", 0, 0, t0))
	require.ErrorIs(t, err, entity.ErrStorageFailure)
	assert.ErrorIs(t, err, boom)

	var partial *entity.PartialError
	require.True(t, errors.As(err, &partial))
	require.Len(t, partial.Failed, 1)
	assert.Equal(t, "b", partial.Failed[0].Transition.ZoneID)
	assert.Equal(t, entity.StageRecord, partial.Failed[0].Stage)

	assert.Equal(t, []string{"a:ENTER"}, kinds(res.Events))
	open := f.tracker.OpenMemberships("d1")
	require.Len(t, open, 1)
	assert.Equal(t, "a", open[0].ZoneID)

	// после восстановления хранилища вход в b фиксируется повторно
	f.events.failOn = nil
	res, err = f.tracker.Process(ctx, update("d1", 0, 0, t0.Add(time.Second)))
	require.NoError(t, err)
	assert.Equal(t, []string{"b:ENTER"}, kinds(res.Events))
}

func TestTracker_HydratesFromSnapshot(t *testing.T) {
	store := newFakeMembershipStore()
	store.snaps["d1"] = MembershipSnapshot{
		LastSeen: t0,
		Open:     map[string]time.Time{"z": t0.Add(-time.Hour)},
	}
	f := newTrackerFixture([]TrackerOption{WithMembershipStore(store)}, circle("z", "c1", 0, 0, 1000))
	ctx := context.Background()

	_, err := f.tracker.Process(ctx, update("d1", 0, 0, t0.Add(-time.Minute)))
	require.ErrorIs(t, err, entity.ErrOutOfOrderUpdate)

	res, err := f.tracker.Process(ctx, update("d1", 0, 0, t0.Add(time.Minute)))
	require.NoError(t, err)
	assert.Empty(t, res.Events)

	res, err = f.tracker.Process(ctx, update("d1", 10, 10, t0.Add(2*time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, []string{"z:EXIT"}, kinds(res.Events))

	saved := store.snaps["d1"]
	assert.Equal(t, t0.Add(2*time.Minute), saved.LastSeen)
	assert.Empty(t, saved.Open)
}

func TestTracker_EvictIdle(t *testing.T) {
	now := t0
	f := newTrackerFixture([]TrackerOption{WithTrackerClock(clock.NewFixed(now))}, circle("z", "c1", 0, 0, 1000))
	ctx := context.Background()

	_, err := f.tracker.Process(ctx, update("d1", 0, 0, t0))
	require.NoError(t, err)
	_, err = f.tracker.Process(ctx, update("d2", 10, 10, t0))
	require.NoError(t, err)

	assert.Equal(t, 0, f.tracker.EvictIdle(ctx, now.Add(time.Minute), time.Hour))

	// d1 с открытым членством без хранилища снимков остается в памяти
	assert.Equal(t, 1, f.tracker.EvictIdle(ctx, now.Add(2*time.Hour), time.Hour))
	assert.Equal(t, 1, f.tracker.Devices())
	assert.Len(t, f.tracker.OpenMemberships("d1"), 1)
}

func TestTracker_EvictIdleWithStoreRestoresState(t *testing.T) {
	store := newFakeMembershipStore()
	f := newTrackerFixture([]TrackerOption{
		WithMembershipStore(store),
		WithTrackerClock(clock.NewFixed(t0)),
	}, circle("z", "c1", 0, 0, 1000))
	ctx := context.Background()

	_, err := f.tracker.Process(ctx, update("d1", 0, 0, t0))
	require.NoError(t, err)
	assert.Equal(t, 1, f.tracker.EvictIdle(ctx, t0.Add(2*time.Hour), time.Hour))
	assert.Equal(t, 0, f.tracker.Devices())

	res, err := f.tracker.Process(ctx, update("d1", 0, 0, t0.Add(time.Hour)))
	require.NoError(t, err)
	assert.Empty(t, res.Events)
	assert.Len(t, f.tracker.OpenMemberships("d1"), 1)
}

func TestTracker_EvictIdleKeepsUnsavedSnapshot(t *testing.T) {
	store := newFakeMembershipStore()
	store.saveErr = errors.New("redis down")
	f := newTrackerFixture([]TrackerOption{
		WithMembershipStore(store),
		WithTrackerClock(clock.NewFixed(t0)),
	}, circle("z", "c1", 0, 0, 1000))
	ctx := context.Background()

	res, err := f.tracker.Process(ctx, update("d1", 0, 0, t0))
	require.NoError(t, err)
	assert.Equal(t, []string{"z:ENTER"}, kinds(res.Events))

	// снимок не сохранен: выгружать состояние нельзя
	assert.Equal(t, 0, f.tracker.EvictIdle(ctx, t0.Add(2*time.Hour), time.Hour))
	assert.Equal(t, 1, f.tracker.Devices())

	res, err = f.tracker.Process(ctx, update("d1", 0, 0, t0.Add(time.Hour)))
	require.NoError(t, err)
	assert.Empty(t, res.Events)

	// после восстановления хранилища снимок сохраняется повторно и устройство выгружается
	store.saveErr = nil
	assert.Equal(t, 1, f.tracker.EvictIdle(ctx, t0.Add(3*time.Hour), time.Hour))
	assert.Equal(t, 0, f.tracker.Devices())
	require.Contains(t, store.snaps, "d1")
	assert.Contains(t, store.snaps["d1"].Open, "z")

	res, err = f.tracker.Process(ctx, update("d1", 0, 0, t0.Add(2*time.Hour)))
	require.NoError(t, err)
	assert.Empty(t, res.Events)
	assert.Equal(t, []string{"z:ENTER"}, kinds(f.events.snapshot()))
}

func TestTracker_EvictedDeviceRejectsStaleUpdate(t *testing.T) {
	f := newTrackerFixture([]TrackerOption{WithTrackerClock(clock.NewFixed(t0))}, circle("z", "c1", 0, 0, 1000))
	ctx := context.Background()

	_, err := f.tracker.Process(ctx, update("d1", 10, 10, t0))
	require.NoError(t, err)
	assert.Equal(t, 1, f.tracker.EvictIdle(ctx, t0.Add(2*time.Hour), time.Hour))
	assert.Equal(t, 0, f.tracker.Devices())

	res, err := f.tracker.Process(ctx, update("d1", 0, 0, t0.Add(-time.Hour)))
	require.ErrorIs(t, err, entity.ErrOutOfOrderUpdate)
	assert.Empty(t, res.Events)
	assert.Empty(t, f.events.snapshot())

	res, err = f.tracker.Process(ctx, update("d1", 0, 0, t0))
	require.NoError(t, err)
	assert.Equal(t, []string{"z:ENTER"}, kinds(res.Events))
}
