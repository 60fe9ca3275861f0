package entity

import (
	"encoding/json"
	"sort"
	"time"
)

// ShapeKind тип геометрии зоны.
type ShapeKind string

const (
	ShapeCircle    ShapeKind = "circle"
	ShapeRectangle ShapeKind = "rectangle"
	ShapePolygon   ShapeKind = "polygon"
)

// Point географическая точка (WGS84, градусы).
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Shape параметры геометрии зоны. Каждый вариант несет только свои параметры.
type Shape interface {
	Kind() ShapeKind
}

// Circle круг: центр и радиус в метрах.
type Circle struct {
	Center       *Point  `json:"center"`
	RadiusMeters float64 `json:"radius_meters"`
}

func (Circle) Kind() ShapeKind { return ShapeCircle }

// Rectangle прямоугольник по юго-западному и северо-восточному углам.
type Rectangle struct {
	SW *Point `json:"sw"`
	NE *Point `json:"ne"`
}

func (Rectangle) Kind() ShapeKind { return ShapeRectangle }

// Polygon многоугольник; последняя вершина неявно соединяется с первой.
type Polygon struct {
	Vertices []Point `json:"vertices"`
}

func (Polygon) Kind() ShapeKind { return ShapePolygon }

// Zone географическая зона, принадлежащая ровно одной компании.
// Зона с пустыми или некорректными параметрами никогда не содержит точек.
type Zone struct {
	ID        string
	CompanyID string
	Name      string
	Kind      ShapeKind
	Shape     Shape
	Active    bool
	CreatedAt time.Time
}

type zoneJSON struct {
	ID        string          `json:"id"`
	CompanyID string          `json:"company_id"`
	Name      string          `json:"name"`
	Kind      ShapeKind       `json:"kind"`
	Params    json.RawMessage `json:"params,omitempty"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
}

// MarshalJSON сериализует зону вместе с параметрами формы.
func (z Zone) MarshalJSON() ([]byte, error) {
	out := zoneJSON{
		ID:        z.ID,
		CompanyID: z.CompanyID,
		Name:      z.Name,
		Kind:      z.Kind,
		Active:    z.Active,
		CreatedAt: z.CreatedAt,
	}
	if z.Shape != nil {
		params, err := json.Marshal(z.Shape)
		if err != nil {
			return nil, err
		}
		out.Params = params
	}
	return json.Marshal(out)
}

// UnmarshalJSON восстанавливает зону. Нераспознанные параметры дают Shape == nil.
func (z *Zone) UnmarshalJSON(data []byte) error {
	var in zoneJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*z = Zone{
		ID:        in.ID,
		CompanyID: in.CompanyID,
		Name:      in.Name,
		Kind:      in.Kind,
		Active:    in.Active,
		CreatedAt: in.CreatedAt,
	}
	if shape, err := DecodeShape(in.Kind, in.Params); err == nil {
		z.Shape = shape
	}
	return nil
}

// DecodeShape разбирает параметры формы заданного типа.
func DecodeShape(kind ShapeKind, params []byte) (Shape, error) {
	if len(params) == 0 || string(params) == "null" {
		return nil, ErrInvalidShape
	}
	switch kind {
	case ShapeCircle:
		var c Circle
		if err := json.Unmarshal(params, &c); err != nil {
			return nil, err
		}
		return c, nil
	case ShapeRectangle:
		var r Rectangle
		if err := json.Unmarshal(params, &r); err != nil {
			return nil, err
		}
		return r, nil
	case ShapePolygon:
		var p Polygon
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, ErrInvalidShape
	}
}

// ZoneSet множество идентификаторов зон. Порядок обхода не определен.
type ZoneSet map[string]struct{}

// NewZoneSet создает множество из перечисленных зон.
func NewZoneSet(ids ...string) ZoneSet {
	s := make(ZoneSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s ZoneSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted возвращает идентификаторы в лексикографическом порядке.
func (s ZoneSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
