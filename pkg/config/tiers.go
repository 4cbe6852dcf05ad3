package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/AtRiskMedia/reportcache-go/internal/domain/entities/research"
)

// TierCatalog maps tier names to their allowance.
type TierCatalog map[string]research.Tier

// ParseTierCatalog reads "name:limit:policy" entries separated by commas.
func ParseTierCatalog(raw string) (TierCatalog, error) {
	catalog := make(TierCatalog)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid tier entry %q, want name:limit:policy", entry)
		}
		name := strings.ToLower(strings.TrimSpace(parts[0]))
		limit, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || limit < 0 {
			return nil, fmt.Errorf("invalid limit in tier entry %q", entry)
		}
		policy, err := research.ParseResetPolicy(parts[2])
		if err != nil {
			return nil, fmt.Errorf("tier %s: %w", name, err)
		}
		catalog[name] = research.Tier{Name: name, Limit: limit, ResetPolicy: policy}
	}
	if len(catalog) == 0 {
		return nil, fmt.Errorf("tier catalog is empty")
	}
	return catalog, nil
}

// Lookup finds a tier by case-insensitive name.
func (c TierCatalog) Lookup(name string) (*research.Tier, bool) {
	tier, ok := c[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, false
	}
	return &tier, true
}

// Sorted returns the tiers ordered by limit, for display.
func (c TierCatalog) Sorted() []research.Tier {
	tiers := make([]research.Tier, 0, len(c))
	for _, tier := range c {
		tiers = append(tiers, tier)
	}
	sort.Slice(tiers, func(i, j int) bool {
		if tiers[i].Limit == tiers[j].Limit {
			return tiers[i].Name < tiers[j].Name
		}
		return tiers[i].Limit < tiers[j].Limit
	})
	return tiers
}
