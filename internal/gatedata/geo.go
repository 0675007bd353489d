// Package gatedata loads and serves the static catalogs the gate pipeline
// draws from: country polygons, IANA timezones, the user-agent catalog and
// the hardware base profiles. Data is embedded for single-binary deployment
// and loaded lazily behind sync.Once; all tables are read-only after load.
package gatedata

import (
	"embed"
	"encoding/csv"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/gatecap/internal/types"
)

//go:embed data/*
var dataFS embed.FS

const (
	pointTries    = 100
	subPolyTries  = 10
	minAccuracyM  = 100
	maxAccuracyM  = 200
)

// CountryGeo holds the centroid, default accuracy and boundary polygon of
// one country.
type CountryGeo struct {
	Code      string
	Latitude  float64
	Longitude float64
	Accuracy  int
	Shape     MultiPolygon
}

// Geolocation is the resolved coordinate handed to the geolocation gate.
type Geolocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
}

var (
	countryOnce sync.Once
	countryGeo  map[string]*CountryGeo
	countryErr  error
)

func loadCountries() (map[string]*CountryGeo, error) {
	countryOnce.Do(func() {
		f, err := dataFS.Open("data/country_geo.csv")
		if err != nil {
			countryErr = err
			return
		}
		defer f.Close()

		r := csv.NewReader(f)
		r.FieldsPerRecord = 5
		rows, err := r.ReadAll()
		if err != nil {
			countryErr = err
			return
		}

		table := make(map[string]*CountryGeo, len(rows))
		for _, row := range rows[1:] { // skip header
			lat, err1 := strconv.ParseFloat(row[1], 64)
			lon, err2 := strconv.ParseFloat(row[2], 64)
			acc, err3 := strconv.Atoi(row[3])
			shape, err4 := ParseWKT(row[4])
			if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
				countryErr = fmt.Errorf("country_geo.csv row %s: %v%v%v%v", row[0], err1, err2, err3, err4)
				return
			}
			code := strings.ToUpper(row[0])
			table[code] = &CountryGeo{
				Code:      code,
				Latitude:  lat,
				Longitude: lon,
				Accuracy:  acc,
				Shape:     shape,
			}
		}
		countryGeo = table
		log.Debug().Int("countries", len(table)).Msg("Country geometry table loaded")
	})
	return countryGeo, countryErr
}

// Country returns the geometry record for an ISO 3166-1 alpha-2 code.
func Country(cc string) (*CountryGeo, error) {
	table, err := loadCountries()
	if err != nil {
		return nil, err
	}
	cg, ok := table[strings.ToUpper(cc)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownCountry, cc)
	}
	return cg, nil
}

// KnownCountry reports whether cc appears in the geometry table. Used for
// fail-fast validation at the CLI boundary.
func KnownCountry(cc string) bool {
	_, err := Country(cc)
	return err == nil
}

// RandomPointInCountry draws a uniform point inside the country boundary,
// area-weighted across multi-polygon components, with accuracy jittered in
// [100, 200] meters.
func RandomPointInCountry(cc string) (Geolocation, error) {
	cg, err := Country(cc)
	if err != nil {
		return Geolocation{}, err
	}
	p, err := randomPoint(cg.Shape)
	if err != nil {
		return Geolocation{}, err
	}
	return Geolocation{
		Latitude:  p.Lat,
		Longitude: p.Lon,
		Accuracy:  float64(minAccuracyM + rand.Intn(maxAccuracyM-minAccuracyM+1)),
	}, nil
}

func randomPoint(mp MultiPolygon) (Point, error) {
	if len(mp) == 1 {
		return randomPointInPolygon(mp[0], pointTries)
	}

	areas := make([]float64, len(mp))
	var total float64
	for i, poly := range mp {
		areas[i] = poly.Area()
		total += areas[i]
	}
	if total <= 0 {
		return Point{}, types.ErrBadPolygon
	}

	for try := 0; try < pointTries; try++ {
		pick := rand.Float64() * total
		idx := 0
		for i, a := range areas {
			if pick < a {
				idx = i
				break
			}
			pick -= a
			idx = i
		}
		if p, err := randomPointInPolygon(mp[idx], subPolyTries); err == nil {
			return p, nil
		}
	}
	return Point{}, types.ErrNoPointInPolygon
}

// randomPointInPolygon rejection-samples the polygon's bounding box.
func randomPointInPolygon(poly Polygon, tries int) (Point, error) {
	minLon, minLat, maxLon, maxLat := poly.Outer.Bounds()
	for i := 0; i < tries; i++ {
		p := Point{
			Lon: minLon + rand.Float64()*(maxLon-minLon),
			Lat: minLat + rand.Float64()*(maxLat-minLat),
		}
		if poly.Contains(p) {
			return p, nil
		}
	}
	return Point{}, types.ErrNoPointInPolygon
}
