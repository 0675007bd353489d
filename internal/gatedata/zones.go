package gatedata

import (
	"bufio"
	"math/rand"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

var (
	zonesOnce sync.Once
	zonesByCC map[string][]string
	zonesErr  error
)

func loadZones() (map[string][]string, error) {
	zonesOnce.Do(func() {
		f, err := dataFS.Open("data/zone.tab")
		if err != nil {
			zonesErr = err
			return
		}
		defer f.Close()

		table := make(map[string][]string)
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			parts := strings.SplitN(line, "\t", 4)
			if len(parts) < 3 {
				continue
			}
			cc := strings.ToUpper(parts[0])
			table[cc] = append(table[cc], parts[2])
		}
		if err := sc.Err(); err != nil {
			zonesErr = err
			return
		}
		zonesByCC = table
		log.Debug().Int("countries", len(table)).Msg("Timezone table loaded from zone.tab")
	})
	return zonesByCC, zonesErr
}

// ZonesForCountry returns the IANA zones mapped to a country code, or nil
// when the country has no mapping.
func ZonesForCountry(cc string) []string {
	table, err := loadZones()
	if err != nil {
		return nil
	}
	return table[strings.ToUpper(cc)]
}

// SelectZone picks a uniform-random IANA zone for the country, falling back
// to UTC when the country is empty or unmapped.
func SelectZone(cc string) string {
	if cc == "" {
		return "UTC"
	}
	zones := ZonesForCountry(cc)
	if len(zones) == 0 {
		log.Debug().Str("country", cc).Msg("No timezone mapping, using UTC")
		return "UTC"
	}
	return zones[rand.Intn(len(zones))]
}
