package gatedata

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/ysmood/gson"

	"github.com/Rorqualx/gatecap/internal/types"
)

// uaCatalog maps a "<OS>;;<Browser>" selector to the candidate UA strings
// for that category.
type uaCatalog map[string][]string

var (
	catalogOnce sync.Once
	catalog     uaCatalog
	catalogErr  error
)

func loadCatalog() (uaCatalog, error) {
	catalogOnce.Do(func() {
		raw, err := dataFS.ReadFile("data/user-agents.json")
		if err != nil {
			catalogErr = err
			return
		}
		catalog, catalogErr = parseCatalog(raw)
		if catalogErr == nil {
			log.Debug().Int("categories", len(catalog)).Msg("User-agent catalog loaded")
		}
	})
	return catalog, catalogErr
}

// parseCatalog decodes the user-agents.json shape:
// { "<OS>;;<Browser>": [ { "userAgent": "..." }, ... ], ... }
func parseCatalog(raw []byte) (uaCatalog, error) {
	doc := gson.New(raw)
	obj, ok := doc.Val().(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("user-agents.json: top level is not an object")
	}
	out := make(uaCatalog, len(obj))
	for key := range obj {
		for _, entry := range doc.Get(key).Arr() {
			ua := entry.Get("userAgent").Str()
			if ua != "" {
				out[key] = append(out[key], ua)
			}
		}
	}
	return out, nil
}

// ChooseUA resolves a "<OS>;;<Browser>" selector to one concrete UA string,
// uniform-random among the category's candidates. Selector matching is
// case-insensitive.
func ChooseUA(selector string) (string, error) {
	cat, err := loadCatalog()
	if err != nil {
		return "", err
	}
	if uas, ok := cat[selector]; ok && len(uas) > 0 {
		return uas[rand.Intn(len(uas))], nil
	}
	for key, uas := range cat {
		if strings.EqualFold(key, selector) && len(uas) > 0 {
			return uas[rand.Intn(len(uas))], nil
		}
	}
	return "", fmt.Errorf("%w: %q", types.ErrUnknownSelector, selector)
}

// Selectors returns the catalog's category keys, for CLI help and
// validation messages.
func Selectors() []string {
	cat, err := loadCatalog()
	if err != nil {
		return nil
	}
	keys := make([]string, 0, len(cat))
	for k := range cat {
		keys = append(keys, k)
	}
	return keys
}
