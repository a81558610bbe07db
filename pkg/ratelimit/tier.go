package ratelimit

import (
	"sort"

	"github.com/james-langridge/mars-vista-api-sub000/pkg/config"
)

// Unlimited disables a window's cap.
const Unlimited = -1

// Tier is a named quota profile.
type Tier struct {
	Name        string
	HourlyLimit int
	DailyLimit  int
}

// Tiers is the static tier table, with a fallback for unknown or empty names.
type Tiers struct {
	byName   map[string]Tier
	fallback Tier
}

// NewTiers builds the tier table from config. defaultTier must be present in tiers.
func NewTiers(tiers map[string]config.TierConfig, defaultTier string) *Tiers {
	t := &Tiers{byName: make(map[string]Tier, len(tiers))}
	for name, tc := range tiers {
		t.byName[name] = Tier{Name: name, HourlyLimit: tc.HourlyLimit, DailyLimit: tc.DailyLimit}
	}
	if fb, ok := t.byName[defaultTier]; ok {
		t.fallback = fb
	} else {
		// deny everything rather than silently run unlimited
		t.fallback = Tier{Name: defaultTier}
	}
	return t
}

// Resolve returns the named tier, or the default tier when the name is unknown.
func (t *Tiers) Resolve(name string) Tier {
	if tier, ok := t.byName[name]; ok {
		return tier
	}
	return t.fallback
}

// Names lists configured tiers in sorted order.
func (t *Tiers) Names() []string {
	names := make([]string, 0, len(t.byName))
	for name := range t.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
