package gatedata

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Rorqualx/gatecap/internal/types"
)

// Point is a lon/lat coordinate pair (WKT order: X=lon, Y=lat).
type Point struct {
	Lon float64
	Lat float64
}

// Ring is a closed linear ring. The first and last vertex may or may not
// repeat; Contains treats the ring as implicitly closed.
type Ring []Point

// Polygon is an outer ring plus optional holes.
type Polygon struct {
	Outer Ring
	Holes []Ring
}

// MultiPolygon is a set of polygons; country shapes with islands or
// exclaves use this form.
type MultiPolygon []Polygon

// ParseWKT parses a WKT POLYGON or MULTIPOLYGON into a MultiPolygon.
// Only the geometry subset present in country_geo.csv is supported.
func ParseWKT(wkt string) (MultiPolygon, error) {
	s := strings.TrimSpace(wkt)
	upper := strings.ToUpper(s)
	switch {
	case strings.HasPrefix(upper, "MULTIPOLYGON"):
		body, err := parenBody(s[len("MULTIPOLYGON"):])
		if err != nil {
			return nil, err
		}
		groups, err := splitGroups(body)
		if err != nil {
			return nil, err
		}
		mp := make(MultiPolygon, 0, len(groups))
		for _, g := range groups {
			poly, err := parsePolygonBody(g)
			if err != nil {
				return nil, err
			}
			mp = append(mp, poly)
		}
		return mp, nil
	case strings.HasPrefix(upper, "POLYGON"):
		body, err := parenBody(s[len("POLYGON"):])
		if err != nil {
			return nil, err
		}
		poly, err := parsePolygonBody(body)
		if err != nil {
			return nil, err
		}
		return MultiPolygon{poly}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported WKT %q", types.ErrBadPolygon, head(s))
	}
}

func head(s string) string {
	if len(s) > 24 {
		return s[:24] + "…"
	}
	return s
}

// parenBody strips one outer level of parentheses.
func parenBody(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "(") || !strings.HasSuffix(s, ")") {
		return "", fmt.Errorf("%w: missing parentheses", types.ErrBadPolygon)
	}
	return s[1 : len(s)-1], nil
}

// splitGroups splits "(..),(..)" into top-level parenthesized chunks.
func splitGroups(s string) ([]string, error) {
	var groups []string
	depth, start := 0, -1
	for i, r := range s {
		switch r {
		case '(':
			if depth == 0 {
				start = i + 1
			}
			depth++
		case ')':
			depth--
			if depth == 0 {
				groups = append(groups, s[start:i])
			}
			if depth < 0 {
				return nil, fmt.Errorf("%w: unbalanced parentheses", types.ErrBadPolygon)
			}
		}
	}
	if depth != 0 || len(groups) == 0 {
		return nil, fmt.Errorf("%w: unbalanced parentheses", types.ErrBadPolygon)
	}
	return groups, nil
}

// parsePolygonBody parses "(ring),(hole)..." — the content inside a
// POLYGON's outer parentheses.
func parsePolygonBody(s string) (Polygon, error) {
	var chunks []string
	if strings.Contains(s, "(") {
		groups, err := splitGroups(s)
		if err != nil {
			return Polygon{}, err
		}
		chunks = groups
	} else {
		// bare ring with no inner parentheses
		chunks = []string{s}
	}
	var parsed []Ring
	for _, rc := range chunks {
		ring, err := parseRing(rc)
		if err != nil {
			return Polygon{}, err
		}
		parsed = append(parsed, ring)
	}
	poly := Polygon{Outer: parsed[0]}
	if len(parsed) > 1 {
		poly.Holes = parsed[1:]
	}
	if len(poly.Outer) < 3 {
		return Polygon{}, fmt.Errorf("%w: ring has fewer than 3 vertices", types.ErrBadPolygon)
	}
	return poly, nil
}

func parseRing(s string) (Ring, error) {
	s = strings.Trim(strings.TrimSpace(s), "()")
	pairs := strings.Split(s, ",")
	ring := make(Ring, 0, len(pairs))
	for _, pair := range pairs {
		fields := strings.Fields(strings.TrimSpace(pair))
		if len(fields) != 2 {
			return nil, fmt.Errorf("%w: bad coordinate %q", types.ErrBadPolygon, pair)
		}
		lon, err1 := strconv.ParseFloat(fields[0], 64)
		lat, err2 := strconv.ParseFloat(fields[1], 64)
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("%w: bad coordinate %q", types.ErrBadPolygon, pair)
		}
		ring = append(ring, Point{Lon: lon, Lat: lat})
	}
	return ring, nil
}

// Contains reports whether p lies inside the ring (even-odd rule).
func (r Ring) Contains(p Point) bool {
	inside := false
	n := len(r)
	j := n - 1
	for i := 0; i < n; i++ {
		a, b := r[i], r[j]
		if (a.Lat > p.Lat) != (b.Lat > p.Lat) {
			x := (b.Lon-a.Lon)*(p.Lat-a.Lat)/(b.Lat-a.Lat) + a.Lon
			if p.Lon < x {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// Area returns the planar shoelace area of the ring (absolute value).
// Planar area is good enough for weighting sub-polygon selection.
func (r Ring) Area() float64 {
	var sum float64
	n := len(r)
	j := n - 1
	for i := 0; i < n; i++ {
		sum += (r[j].Lon + r[i].Lon) * (r[j].Lat - r[i].Lat)
		j = i
	}
	return math.Abs(sum) / 2
}

// Bounds returns the bounding box (minLon, minLat, maxLon, maxLat).
func (r Ring) Bounds() (minLon, minLat, maxLon, maxLat float64) {
	minLon, minLat = math.Inf(1), math.Inf(1)
	maxLon, maxLat = math.Inf(-1), math.Inf(-1)
	for _, p := range r {
		minLon = math.Min(minLon, p.Lon)
		minLat = math.Min(minLat, p.Lat)
		maxLon = math.Max(maxLon, p.Lon)
		maxLat = math.Max(maxLat, p.Lat)
	}
	return
}

// Contains reports whether p lies inside the polygon's outer ring and
// outside all holes.
func (poly Polygon) Contains(p Point) bool {
	if !poly.Outer.Contains(p) {
		return false
	}
	for _, h := range poly.Holes {
		if h.Contains(p) {
			return false
		}
	}
	return true
}

// Area returns the polygon area: outer minus holes.
func (poly Polygon) Area() float64 {
	a := poly.Outer.Area()
	for _, h := range poly.Holes {
		a -= h.Area()
	}
	if a < 0 {
		return 0
	}
	return a
}

// Contains reports whether p lies in any component polygon.
func (mp MultiPolygon) Contains(p Point) bool {
	for _, poly := range mp {
		if poly.Contains(p) {
			return true
		}
	}
	return false
}
