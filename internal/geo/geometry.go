// Package geo содержит чистые проверки вхождения точки в зоны разных форм.
package geo

import (
	"math"

	"github.com/paincake00/geopromo/internal/entity"
)

// EarthRadiusMeters средний радиус Земли, используемый в формуле Хаверсина.
const EarthRadiusMeters = 6371000

// DistanceMeters вычисляет расстояние между двумя точками в метрах, используя формулу Хаверсина (Haversine).
func DistanceMeters(a, b entity.Point) float64 {
	phi1 := a.Lat * math.Pi / 180
	phi2 := b.Lat * math.Pi / 180
	deltaPhi := (b.Lat - a.Lat) * math.Pi / 180
	deltaLambda := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(deltaPhi/2)*math.Sin(deltaPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*
			math.Sin(deltaLambda/2)*math.Sin(deltaLambda/2)
	h = math.Min(1, math.Max(0, h))
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c
}

// Contains проверяет, лежит ли точка внутри зоны.
// Зона без параметров, с параметрами чужого типа или с некорректными параметрами не содержит ни одной точки.
func Contains(z entity.Zone, lat, lon float64) bool {
	if z.Shape == nil || z.Shape.Kind() != z.Kind {
		return false
	}
	return ContainsPoint(z.Shape, entity.Point{Lat: lat, Lon: lon})
}

// ContainsPoint проверяет вхождение точки в форму. Границы включаются.
func ContainsPoint(shape entity.Shape, p entity.Point) bool {
	if !finitePoint(p) || !Valid(shape) {
		return false
	}
	switch s := shape.(type) {
	case entity.Circle:
		return DistanceMeters(*s.Center, p) <= s.RadiusMeters
	case entity.Rectangle:
		return s.SW.Lat <= p.Lat && p.Lat <= s.NE.Lat &&
			s.SW.Lon <= p.Lon && p.Lon <= s.NE.Lon
	case entity.Polygon:
		return pointInPolygon(p, s.Vertices)
	default:
		return false
	}
}

// Valid сообщает, заданы ли у формы все параметры и соблюдены ли ее инварианты.
func Valid(shape entity.Shape) bool {
	switch s := shape.(type) {
	case entity.Circle:
		return s.Center != nil && finitePoint(*s.Center) &&
			s.RadiusMeters > 0 && !math.IsInf(s.RadiusMeters, 0)
	case entity.Rectangle:
		return s.SW != nil && s.NE != nil &&
			finitePoint(*s.SW) && finitePoint(*s.NE) &&
			s.SW.Lat <= s.NE.Lat && s.SW.Lon <= s.NE.Lon
	case entity.Polygon:
		return distinctVertices(s.Vertices) >= 3
	default:
		return false
	}
}

func finitePoint(p entity.Point) bool {
	return !math.IsNaN(p.Lat) && !math.IsNaN(p.Lon) &&
		!math.IsInf(p.Lat, 0) && !math.IsInf(p.Lon, 0)
}

// ValidCoordinates проверяет, что координаты конечны и лежат в допустимых диапазонах.
func ValidCoordinates(lat, lon float64) bool {
	p := entity.Point{Lat: lat, Lon: lon}
	return finitePoint(p) && lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
