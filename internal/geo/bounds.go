package geo

import (
	"math"

	"github.com/paincake00/geopromo/internal/entity"
)

// boundsMargin запас на погрешность вычислений, чтобы отсев по рамке никогда не отбрасывал точку,
// которую принимает точная проверка.
const boundsMargin = 1e-7

// Bounds ограничивающий прямоугольник в градусах. Границы включаются.
type Bounds struct {
	MinLat, MinLon float64
	MaxLat, MaxLon float64
}

// World рамка, покрывающая всю поверхность.
var World = Bounds{MinLat: -90, MinLon: -180, MaxLat: 90, MaxLon: 180}

func (b Bounds) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// BoundsOf возвращает консервативную рамку формы; false для некорректной формы.
func BoundsOf(shape entity.Shape) (Bounds, bool) {
	if !Valid(shape) {
		return Bounds{}, false
	}
	switch s := shape.(type) {
	case entity.Circle:
		return circleBounds(*s.Center, s.RadiusMeters), true
	case entity.Rectangle:
		return Bounds{MinLat: s.SW.Lat, MinLon: s.SW.Lon, MaxLat: s.NE.Lat, MaxLon: s.NE.Lon}, true
	case entity.Polygon:
		b := Bounds{MinLat: math.Inf(1), MinLon: math.Inf(1), MaxLat: math.Inf(-1), MaxLon: math.Inf(-1)}
		for _, v := range s.Vertices {
			b.MinLat = math.Min(b.MinLat, v.Lat)
			b.MaxLat = math.Max(b.MaxLat, v.Lat)
			b.MinLon = math.Min(b.MinLon, v.Lon)
			b.MaxLon = math.Max(b.MaxLon, v.Lon)
		}
		b.MinLat -= boundsMargin
		b.MinLon -= boundsMargin
		b.MaxLat += boundsMargin
		b.MaxLon += boundsMargin
		return b, true
	default:
		return Bounds{}, false
	}
}

// circleBounds рамка сферической шапки: по широте отклонение равно угловому радиусу,
// по долготе sin(dLon) = sin(r) / cos(lat). Если шапка накрывает полюс или пересекает ±180°,
// долгота не ограничивается.
func circleBounds(c entity.Point, radius float64) Bounds {
	angular := radius / EarthRadiusMeters
	if angular >= math.Pi {
		return World
	}
	dLat := angular * 180 / math.Pi

	b := Bounds{
		MinLat: c.Lat - dLat - boundsMargin,
		MaxLat: c.Lat + dLat + boundsMargin,
		MinLon: -180,
		MaxLon: 180,
	}
	if b.MinLat <= -90 || b.MaxLat >= 90 {
		b.MinLat = math.Max(b.MinLat, -90)
		b.MaxLat = math.Min(b.MaxLat, 90)
		return b
	}

	ratio := math.Sin(angular) / math.Cos(c.Lat*math.Pi/180)
	if ratio >= 1 {
		return b
	}
	dLon := math.Asin(ratio) * 180 / math.Pi
	if c.Lon-dLon-boundsMargin < -180 || c.Lon+dLon+boundsMargin > 180 {
		return b
	}
	b.MinLon = c.Lon - dLon - boundsMargin
	b.MaxLon = c.Lon + dLon + boundsMargin
	return b
}
