package entity

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZoneJSON(t *testing.T) {
	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("circle keeps its parameters", func(t *testing.T) {
		z := Zone{
			ID:        "z1",
			CompanyID: "c1",
			Name:      "Sol",
			Kind:      ShapeCircle,
			Shape:     Circle{Center: &Point{Lat: 40.4168, Lon: -3.7038}, RadiusMeters: 1000},
			Active:    true,
			CreatedAt: created,
		}
		data, err := json.Marshal(z)
		require.NoError(t, err)

		var got Zone
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, z, got)
	})

	t.Run("polygon keeps vertex order", func(t *testing.T) {
		z := Zone{
			ID:   "z2",
			Kind: ShapePolygon,
			Shape: Polygon{Vertices: []Point{
				{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}, {Lat: 1, Lon: 1},
			}},
		}
		data, err := json.Marshal(z)
		require.NoError(t, err)

		var got Zone
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, z.Shape, got.Shape)
	})

	t.Run("unknown kind decodes without shape", func(t *testing.T) {
		var got Zone
		err := json.Unmarshal([]byte(`{"id":"z3","kind":"hexagon","params":{"side":3},"active":true}`), &got)
		require.NoError(t, err)
		assert.Nil(t, got.Shape)
		assert.True(t, got.Active)
	})

	t.Run("malformed params decode without shape", func(t *testing.T) {
		var got Zone
		err := json.Unmarshal([]byte(`{"id":"z4","kind":"circle","params":{"center":"nowhere"}}`), &got)
		require.NoError(t, err)
		assert.Nil(t, got.Shape)
	})
}

func TestDecodeShape(t *testing.T) {
	_, err := DecodeShape(ShapeRectangle, nil)
	assert.ErrorIs(t, err, ErrInvalidShape)

	shape, err := DecodeShape(ShapeRectangle, []byte(`{"sw":{"lat":40.40,"lon":-3.75},"ne":{"lat":40.45,"lon":-3.65}}`))
	require.NoError(t, err)
	rect, ok := shape.(Rectangle)
	require.True(t, ok)
	assert.Equal(t, 40.45, rect.NE.Lat)
}

func TestZoneSetSorted(t *testing.T) {
	s := NewZoneSet("b", "a", "c")
	assert.Equal(t, []string{"a", "b", "c"}, s.Sorted())
	assert.True(t, s.Has("a"))
	assert.False(t, s.Has("d"))
}

func TestPartialErrorMatching(t *testing.T) {
	cause := errors.New("connection reset")
	perr := &PartialError{Failed: []TransitionFailure{
		NewTransitionFailure(Transition{ZoneID: "z1", Kind: EventEnter}, StageRecord, cause),
	}}

	assert.ErrorIs(t, perr, ErrStorageFailure)
	assert.ErrorIs(t, perr, cause)
	assert.Contains(t, perr.Error(), "ENTER z1")

	rulesOnly := &PartialError{Failed: []TransitionFailure{
		NewTransitionFailure(Transition{ZoneID: "z1", Kind: EventEnter}, StageRules, cause),
	}}
	assert.NotErrorIs(t, rulesOnly, ErrStorageFailure)
	assert.ErrorIs(t, rulesOnly, cause)

	ooo := &OutOfOrderError{DeviceID: "d1"}
	assert.ErrorIs(t, ooo, ErrOutOfOrderUpdate)
}
