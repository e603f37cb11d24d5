// Package catalog holds the read-mostly item-type pricing table and the
// discount tier ladder. Both are loaded from a YAML file into an
// immutable snapshot that is swapped atomically on reload, so readers
// never observe a partially updated table.
package catalog

import (
	"fmt"
	"os"
	"sort"
	"sync/atomic"

	"gopkg.in/yaml.v2"
)

// Pool backends.
const (
	BackendFast    = "fast"    // hot store set
	BackendDurable = "durable" // relational rows with sold markers
)

// ItemType is the configuration of one sellable item type.
type ItemType struct {
	Code    string  `yaml:"code"`
	Name    string  `yaml:"name"`
	Price   float64 `yaml:"price"`
	Backend string  `yaml:"backend"`
}

// Tier is one discount bracket. WeeklyDeposit is the inclusive 7-day
// deposit threshold for the bracket.
type Tier struct {
	Code          string  `yaml:"code"`
	Name          string  `yaml:"name"`
	Discount      float64 `yaml:"discount"`
	WeeklyDeposit float64 `yaml:"weekly_deposit"`
}

type snapshot struct {
	types map[string]ItemType
	order []string
	tiers []Tier // sorted by WeeklyDeposit ascending
}

type fileFormat struct {
	Types []ItemType `yaml:"types"`
	Tiers []Tier     `yaml:"tiers"`
}

// Catalog is an atomically swapped view over the catalog file.
type Catalog struct {
	current atomic.Pointer[snapshot]
}

// Load reads and validates the catalog file.
func Load(path string) (*Catalog, error) {
	c := &Catalog{}
	if err := c.Reload(path); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload parses the file into a fresh snapshot and swaps it in. The
// previous snapshot stays visible until the swap, and on any error it
// is kept untouched.
func (c *Catalog) Reload(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read catalog file: %w", err)
	}

	var f fileFormat
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("failed to parse catalog file: %w", err)
	}

	snap, err := build(f)
	if err != nil {
		return err
	}

	c.current.Store(snap)
	return nil
}

func build(f fileFormat) (*snapshot, error) {
	if len(f.Types) == 0 {
		return nil, fmt.Errorf("catalog defines no item types")
	}
	if len(f.Tiers) == 0 {
		return nil, fmt.Errorf("catalog defines no tiers")
	}

	snap := &snapshot{types: make(map[string]ItemType, len(f.Types))}
	for _, t := range f.Types {
		if t.Code == "" {
			return nil, fmt.Errorf("item type with empty code")
		}
		if t.Price <= 0 {
			return nil, fmt.Errorf("item type %q has non-positive price", t.Code)
		}
		if t.Backend != BackendFast && t.Backend != BackendDurable {
			return nil, fmt.Errorf("item type %q has unknown backend %q", t.Code, t.Backend)
		}
		if _, dup := snap.types[t.Code]; dup {
			return nil, fmt.Errorf("duplicate item type %q", t.Code)
		}
		snap.types[t.Code] = t
		snap.order = append(snap.order, t.Code)
	}

	snap.tiers = append(snap.tiers, f.Tiers...)
	sort.Slice(snap.tiers, func(i, j int) bool {
		return snap.tiers[i].WeeklyDeposit < snap.tiers[j].WeeklyDeposit
	})
	for _, tier := range snap.tiers {
		if tier.Discount < 0 || tier.Discount >= 1 {
			return nil, fmt.Errorf("tier %q has discount outside [0,1)", tier.Code)
		}
	}
	if snap.tiers[0].WeeklyDeposit != 0 {
		return nil, fmt.Errorf("lowest tier must have a zero deposit threshold")
	}

	return snap, nil
}

// Type returns the configuration for one item type code.
func (c *Catalog) Type(code string) (ItemType, bool) {
	snap := c.current.Load()
	t, ok := snap.types[code]
	return t, ok
}

// Types returns all item types in file order.
func (c *Catalog) Types() []ItemType {
	snap := c.current.Load()
	out := make([]ItemType, 0, len(snap.order))
	for _, code := range snap.order {
		out = append(out, snap.types[code])
	}
	return out
}

// Tiers returns the tier ladder sorted by threshold ascending.
func (c *Catalog) Tiers() []Tier {
	snap := c.current.Load()
	out := make([]Tier, len(snap.tiers))
	copy(out, snap.tiers)
	return out
}

// TierFor returns the highest tier whose threshold the deposit total
// meets or exceeds. The boundary is inclusive.
func (c *Catalog) TierFor(deposit float64) Tier {
	snap := c.current.Load()
	tier := snap.tiers[0]
	for _, t := range snap.tiers {
		if deposit >= t.WeeklyDeposit {
			tier = t
		}
	}
	return tier
}

// NextTier returns the tier immediately above the given one, if any.
func (c *Catalog) NextTier(code string) (Tier, bool) {
	snap := c.current.Load()
	for i, t := range snap.tiers {
		if t.Code == code && i+1 < len(snap.tiers) {
			return snap.tiers[i+1], true
		}
	}
	return Tier{}, false
}

// HasDurablePools reports whether any item type uses the durable
// backend. Used at startup to decide whether the pool database is a
// required dependency.
func (c *Catalog) HasDurablePools() bool {
	snap := c.current.Load()
	for _, t := range snap.types {
		if t.Backend == BackendDurable {
			return true
		}
	}
	return false
}
