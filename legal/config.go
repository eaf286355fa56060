package legal

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// limitsFile is the on-disk shape of a jurisdiction config:
//
//	default:
//	  max_deduction_percent: 50
//	  max_single_penalty_days: 3
//	jurisdictions:
//	  IN:
//	    max_deduction_percent: 50
//	  AE:
//	    max_deduction_percent: 25
//	    max_single_penalty_days: 5
type limitsFile struct {
	Default       *Limits           `yaml:"default"`
	Jurisdictions map[string]Limits `yaml:"jurisdictions"`
}

// LimitsConfig resolves Limits per jurisdiction code, falling back to
// the file's default and then to DefaultLimits.
type LimitsConfig struct {
	fallback      Limits
	jurisdictions map[string]Limits
}

// LoadLimits reads a YAML jurisdiction config from path.
func LoadLimits(path string) (*LimitsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read limits config: %w", err)
	}
	return ParseLimits(data)
}

// ParseLimits parses YAML jurisdiction config bytes.
func ParseLimits(data []byte) (*LimitsConfig, error) {
	var lf limitsFile
	if err := yaml.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("failed to parse limits config: %w", err)
	}

	cfg := &LimitsConfig{
		fallback:      DefaultLimits(),
		jurisdictions: make(map[string]Limits, len(lf.Jurisdictions)),
	}
	if lf.Default != nil {
		cfg.fallback = *lf.Default
	}
	for code, limits := range lf.Jurisdictions {
		cfg.jurisdictions[code] = limits
	}
	return cfg, nil
}

// For returns the Limits for a jurisdiction code, falling back to the
// default when the code is unknown or empty.
func (c *LimitsConfig) For(jurisdiction string) Limits {
	if l, ok := c.jurisdictions[jurisdiction]; ok {
		return l
	}
	return c.fallback
}
