package chess

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/park285/cheese-uci/internal/chess/uci"
)

// StrengthPreset is a named set of engine options.
type StrengthPreset struct {
	Name       string
	SkillLevel int
	Threads    int
	HashMB     int
	Elo        int
}

var presetMu sync.RWMutex

const defaultThreads = 2
const forlv8 = 6

var DefaultPresets = map[string]StrengthPreset{
	"level1": {Name: "level1", SkillLevel: 0, Threads: defaultThreads, HashMB: 16, Elo: 1320},
	"level2": {Name: "level2", SkillLevel: 2, Threads: defaultThreads, HashMB: 16, Elo: 1400},
	"level3": {Name: "level3", SkillLevel: 4, Threads: defaultThreads, HashMB: 24, Elo: 1500},
	"level4": {Name: "level4", SkillLevel: 6, Threads: defaultThreads, HashMB: 32, Elo: 1650},
	"level5": {Name: "level5", SkillLevel: 9, Threads: defaultThreads, HashMB: 48, Elo: 1800},
	"level6": {Name: "level6", SkillLevel: 12, Threads: defaultThreads, HashMB: 64, Elo: 2000},
	"level7": {Name: "level7", SkillLevel: 16, Threads: defaultThreads, HashMB: 96, Elo: 2300},
	// full strength: no Elo limit
	"level8": {Name: "level8", SkillLevel: 20, Threads: forlv8, HashMB: 128},
}

func GetPreset(name string) (StrengthPreset, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "beginner":
		name = "level1"
	case "intermediate":
		name = "level5"
	case "advanced":
		name = "level7"
	case "master":
		name = "level8"
	}
	presetMu.RLock()
	p, ok := DefaultPresets[name]
	presetMu.RUnlock()
	if ok {
		return p, nil
	}
	return StrengthPreset{}, fmt.Errorf("unknown engine preset: %s", name)
}

// RegisterPreset adds or replaces a preset after validating it.
func RegisterPreset(p StrengthPreset) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("preset name required")
	}
	if err := ValidatePreset(p); err != nil {
		return err
	}
	presetMu.Lock()
	DefaultPresets[strings.ToLower(p.Name)] = p
	presetMu.Unlock()
	return nil
}

func PresetNames() []string {
	presetMu.RLock()
	names := make([]string, 0, len(DefaultPresets))
	for name := range DefaultPresets {
		names = append(names, name)
	}
	presetMu.RUnlock()
	sort.Strings(names)
	return names
}

// Apply writes the preset into an adapter config. Options already set in
// cfg.ExtraOptions win over the preset.
func (p StrengthPreset) Apply(cfg *uci.Config) {
	cfg.Threads = p.Threads
	cfg.HashMB = p.HashMB
	opts := map[string]string{"Skill Level": strconv.Itoa(p.SkillLevel)}
	if p.Elo > 0 {
		opts["UCI_LimitStrength"] = "true"
		opts["UCI_Elo"] = strconv.Itoa(p.Elo)
	}
	for k, v := range cfg.ExtraOptions {
		opts[k] = v
	}
	cfg.ExtraOptions = opts
}

func ValidatePreset(p StrengthPreset) error {
	switch {
	case p.SkillLevel < 0 || p.SkillLevel > 20:
		return fmt.Errorf("skill level %d out of range 0-20", p.SkillLevel)
	case p.Threads <= 0:
		return fmt.Errorf("threads must be > 0: %d", p.Threads)
	case p.HashMB <= 0:
		return fmt.Errorf("hash size must be > 0: %d", p.HashMB)
	case p.Elo < 0:
		return fmt.Errorf("elo must be >= 0: %d", p.Elo)
	}
	return nil
}
