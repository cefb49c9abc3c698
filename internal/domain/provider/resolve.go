package provider

import (
	"slices"
	"sort"
)

// ResolveProviderTypes derives the preferred and the effective ("using")
// provider type. Precedence for preferred:
//
//  1. an explicit preference record
//  2. Custom when any custom provider or model credentials exist
//  3. System when hosting is enabled
//  4. Custom
//
// The using type then falls back when the preference cannot be served:
// System without hosting or a valid current quota falls back to Custom, and
// Custom without any custom credentials falls back to a usable System.
func ResolveProviderTypes(preferred *PreferredTypeRecord, custom CustomConfiguration, system SystemConfiguration) (pref, using ProviderType) {
	switch {
	case preferred != nil && preferred.PreferredProviderType.Valid():
		pref = preferred.PreferredProviderType
	case !custom.empty():
		pref = ProviderTypeCustom
	case system.Enabled:
		pref = ProviderTypeSystem
	default:
		pref = ProviderTypeCustom
	}

	using = pref
	switch pref {
	case ProviderTypeSystem:
		if !system.usable() {
			using = ProviderTypeCustom
		}
	case ProviderTypeCustom:
		if custom.empty() && system.usable() {
			using = ProviderTypeSystem
		}
	}
	return pref, using
}

// ChooseCurrentQuotaType picks the first valid quota in declaration order, or
// the last declared one when none is valid. ok is false for an empty list.
func ChooseCurrentQuotaType(quotas []QuotaConfiguration) (QuotaType, bool) {
	if len(quotas) == 0 {
		return "", false
	}
	for _, q := range quotas {
		if q.IsValid {
			return q.QuotaType, true
		}
	}
	return quotas[len(quotas)-1].QuotaType, true
}

// Filter selects providers by name. An empty Include admits every provider;
// Exclude always wins.
type Filter struct {
	Include []string `yaml:"include" json:"include,omitempty"`
	Exclude []string `yaml:"exclude" json:"exclude,omitempty"`
}

// Allows reports whether provider passes the filter.
func (f Filter) Allows(provider string) bool {
	if slices.Contains(f.Exclude, provider) {
		return false
	}
	return len(f.Include) == 0 || slices.Contains(f.Include, provider)
}

// Configurations is the set of provider configurations of one tenant.
type Configurations struct {
	TenantID string
	items    map[string]*Configuration
}

// NewConfigurations indexes cfgs by provider name.
func NewConfigurations(tenantID string, cfgs ...*Configuration) *Configurations {
	c := &Configurations{TenantID: tenantID, items: make(map[string]*Configuration, len(cfgs))}
	for _, cfg := range cfgs {
		c.items[cfg.Provider] = cfg
	}
	return c
}

// Get returns the configuration of provider.
func (c *Configurations) Get(provider string) (*Configuration, bool) {
	cfg, ok := c.items[provider]
	return cfg, ok
}

// Len returns the number of configurations.
func (c *Configurations) Len() int {
	return len(c.items)
}

// Values returns configurations sorted by provider name.
func (c *Configurations) Values() []*Configuration {
	out := make([]*Configuration, 0, len(c.items))
	for _, cfg := range c.items {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// Filter returns the subset admitted by f.
func (c *Configurations) Filter(f Filter) *Configurations {
	out := NewConfigurations(c.TenantID)
	for name, cfg := range c.items {
		if f.Allows(name) {
			out.items[name] = cfg
		}
	}
	return out
}
