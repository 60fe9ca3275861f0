package geo

import (
	"math"

	"github.com/paincake00/geopromo/internal/entity"
)

// edgeEpsilon допуск для проверки попадания точки на ребро (в градусах).
const edgeEpsilon = 1e-12

// pointInPolygon плоская проверка (x = lon, y = lat): точка на ребре или в вершине считается внутри,
// иначе применяется правило чет-нечет (ray casting).
// Для самопересекающихся многоугольников результат не определен: правило чет-нечет применяется как есть.
func pointInPolygon(p entity.Point, ring []entity.Point) bool {
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		if onSegment(p, ring[j], ring[i]) {
			return true
		}
	}

	inside := false
	x, y := p.Lon, p.Lat
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i].Lon, ring[i].Lat
		xj, yj := ring[j].Lon, ring[j].Lat
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

func onSegment(p, a, b entity.Point) bool {
	cross := (b.Lon-a.Lon)*(p.Lat-a.Lat) - (b.Lat-a.Lat)*(p.Lon-a.Lon)
	if math.Abs(cross) > edgeEpsilon {
		return false
	}
	return p.Lon >= math.Min(a.Lon, b.Lon)-edgeEpsilon && p.Lon <= math.Max(a.Lon, b.Lon)+edgeEpsilon &&
		p.Lat >= math.Min(a.Lat, b.Lat)-edgeEpsilon && p.Lat <= math.Max(a.Lat, b.Lat)+edgeEpsilon
}

func distinctVertices(vs []entity.Point) int {
	seen := make(map[entity.Point]struct{}, len(vs))
	for _, v := range vs {
		if !finitePoint(v) {
			return 0
		}
		seen[v] = struct{}{}
	}
	return len(seen)
}
