package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// tierFile is the YAML layout of a tier override file:
//
//	tiers:
//	  STARTER:
//	    storage_limit_bytes: 2147483648
//	    max_concurrent_jobs: 5
type tierFile struct {
	Tiers map[string]models.TierLimits `yaml:"tiers"`
}

// LoadTiers returns the default tier table with any tiers named in path
// replaced. An empty path yields the defaults.
func LoadTiers(path string) (map[models.QuotaTier]models.TierLimits, error) {
	tiers := models.DefaultTierLimits()
	if path == "" {
		return tiers, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tier file: %w", err)
	}
	return mergeTiers(tiers, raw)
}

func mergeTiers(tiers map[models.QuotaTier]models.TierLimits, raw []byte) (map[models.QuotaTier]models.TierLimits, error) {
	var f tierFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse tier file: %w", err)
	}
	for name, override := range f.Tiers {
		tier, ok := models.ParseTier(name)
		if !ok {
			return nil, fmt.Errorf("tier file: unknown tier %q", name)
		}
		base := tiers[tier]
		if override.StorageLimitBytes > 0 {
			base.StorageLimitBytes = override.StorageLimitBytes
		}
		if override.MaxConcurrentJobs > 0 {
			base.MaxConcurrentJobs = override.MaxConcurrentJobs
		}
		if override.MaxFileSizeBytes > 0 {
			base.MaxFileSizeBytes = override.MaxFileSizeBytes
		}
		if override.MonthlyJobLimit > 0 {
			base.MonthlyJobLimit = override.MonthlyJobLimit
		}
		if override.Priority > 0 {
			base.Priority = override.Priority
		}
		tiers[tier] = base
	}
	return tiers, nil
}
