package gatedata

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/gatecap/internal/types"
)

// BaseProfile is a coherent hardware class. One is selected per session by
// OS family, then one value is drawn from each pool so every JS-visible
// device facet stays mutually consistent.
type BaseProfile struct {
	ID     string      `json:"id"`
	OS     []string    `json:"os"`
	Mem    []int       `json:"mem"`
	Cores  []int       `json:"cores"`
	Screen [][2]int    `json:"screen"`
	WebGL  [][2]string `json:"webgl"`
}

// Hardware is one concrete draw from a base profile's pools.
type Hardware struct {
	ProfileID     string
	MemoryGiB     int
	Cores         int
	ScreenW       int
	ScreenH       int
	WebGLVendor   string
	WebGLRenderer string
}

var (
	profilesOnce sync.Once
	profiles     []BaseProfile
	profilesErr  error
)

func loadProfiles() ([]BaseProfile, error) {
	profilesOnce.Do(func() {
		raw, err := dataFS.ReadFile("data/base_profiles.json")
		if err != nil {
			profilesErr = err
			return
		}
		if err := json.Unmarshal(raw, &profiles); err != nil {
			profilesErr = fmt.Errorf("base_profiles.json: %w", err)
			return
		}
		log.Debug().Int("profiles", len(profiles)).Msg("Base profile catalog loaded")
	})
	return profiles, profilesErr
}

// SelectBaseProfile picks a uniform-random base profile whose OS list
// contains the given family. With no match the whole catalog is the
// candidate pool so a session never runs without a hardware identity.
func SelectBaseProfile(osFamily string) (*BaseProfile, error) {
	all, err := loadProfiles()
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, types.ErrNoBaseProfile
	}
	var candidates []BaseProfile
	for _, p := range all {
		for _, os := range p.OS {
			if os == osFamily {
				candidates = append(candidates, p)
				break
			}
		}
	}
	if len(candidates) == 0 {
		candidates = all
	}
	pick := candidates[rand.Intn(len(candidates))]
	return &pick, nil
}

// Draw samples one value from each of the profile's pools.
func (p *BaseProfile) Draw() Hardware {
	hw := Hardware{ProfileID: p.ID}
	if len(p.Mem) > 0 {
		hw.MemoryGiB = p.Mem[rand.Intn(len(p.Mem))]
	}
	if len(p.Cores) > 0 {
		hw.Cores = p.Cores[rand.Intn(len(p.Cores))]
	}
	if len(p.Screen) > 0 {
		s := p.Screen[rand.Intn(len(p.Screen))]
		hw.ScreenW, hw.ScreenH = s[0], s[1]
	}
	if len(p.WebGL) > 0 {
		g := p.WebGL[rand.Intn(len(p.WebGL))]
		hw.WebGLVendor, hw.WebGLRenderer = g[0], g[1]
	}
	return hw
}

// webglByOS is the fallback GPU pool used when a session has a UA but no
// base profile draw (explicit vendor/renderer absent).
var webglByOS = map[string][][2]string{
	"windows": {
		{"NVIDIA Corporation", "NVIDIA GeForce RTX 3060/PCIe/SSE2"},
		{"NVIDIA Corporation", "NVIDIA GeForce GTX 1060/PCIe/SSE2"},
		{"NVIDIA Corporation", "NVIDIA GeForce GTX 1650/PCIe/SSE2"},
		{"Intel", "Intel(R) HD Graphics 530"},
		{"Intel", "Intel(R) Iris(R) Xe Graphics"},
		{"AMD", "AMD Radeon RX 580"},
		{"AMD", "AMD Radeon RX 6700 XT"},
	},
	"mac": {
		{"Apple Inc.", "Apple M1"},
		{"Apple Inc.", "Apple M2"},
		{"Apple Inc.", "AMD Radeon Pro 560X"},
	},
	"linux": {
		{"Intel", "Mesa Intel(R) UHD Graphics 620 (KBL GT2)"},
		{"AMD", "AMD Radeon RX 570 Series (POLARIS10, DRM 3.35.0, 5.4.0-42-generic, LLVM 10.0.0)"},
		{"NVIDIA Corporation", "NVIDIA GeForce RTX 3060/PCIe/SSE2"},
	},
	"android": {
		{"Qualcomm", "Adreno (TM) 640"},
		{"ARM", "Mali-G76 MP16"},
		{"Qualcomm", "Adreno (TM) 730"},
	},
	"ios": {
		{"Apple Inc.", "Apple A15 GPU"},
		{"Apple Inc.", "Apple A14 GPU"},
		{"Apple Inc.", "Apple A16 GPU"},
	},
}

// RandomWebGLPair picks a plausible vendor/renderer pair for the OS family,
// defaulting to the Windows pool for unknown families.
func RandomWebGLPair(osFamily string) (vendor, renderer string) {
	pool, ok := webglByOS[osFamily]
	if !ok {
		pool = webglByOS["windows"]
	}
	pair := pool[rand.Intn(len(pool))]
	return pair[0], pair[1]
}
