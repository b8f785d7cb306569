package advisory

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"rig-vibration/vibration"
)

// StatusThreshold drives the status colour of one metric.
type StatusThreshold struct {
	Metric       string  `yaml:"metric" json:"metric"`
	SafeBelow    float64 `yaml:"safe_below" json:"safeBelow"`
	WarningBelow float64 `yaml:"warning_below" json:"warningBelow"`
}

// Rule emits Message when the metric rises above Above. Rules are
// evaluated independently of the status table.
type Rule struct {
	Metric   string  `yaml:"metric" json:"metric"`
	Above    float64 `yaml:"above" json:"above"`
	Message  string  `yaml:"message" json:"message"`
	Critical bool    `yaml:"critical" json:"critical"`
}

// RiskBands splits the aggregate risk score into LOW, MODERATE and CRITICAL.
type RiskBands struct {
	LowBelow      float64 `yaml:"low_below" json:"lowBelow"`
	ModerateBelow float64 `yaml:"moderate_below" json:"moderateBelow"`
}

// Config holds the two threshold tables and the risk bands.
type Config struct {
	Status       []StatusThreshold `yaml:"status" json:"status"`
	Advisories   []Rule            `yaml:"advisories" json:"advisories"`
	Risk         RiskBands         `yaml:"risk" json:"risk"`
	IdealMessage string            `yaml:"ideal_message" json:"idealMessage"`
}

// DefaultConfig returns the thresholds the dashboard ships with.
func DefaultConfig() Config {
	return Config{
		Status: []StatusThreshold{
			{Metric: vibration.StickSlip.Key, SafeBelow: 8, WarningBelow: 12},
			{Metric: vibration.LateralVibration.Key, SafeBelow: 12, WarningBelow: 18},
			{Metric: vibration.AxialShock.Key, SafeBelow: 6, WarningBelow: 9},
		},
		Advisories: []Rule{
			{
				Metric:  vibration.StickSlip.Key,
				Above:   80,
				Message: "High stick-slip: increase RPM or reduce weight on bit.",
			},
			{
				Metric:   vibration.LateralVibration.Key,
				Above:    3,
				Message:  "Critical lateral vibration: reduce RPM.",
				Critical: true,
			},
			{
				Metric:  vibration.AxialShock.Key,
				Above:   1,
				Message: "Axial shock detected: reduce weight on bit or increase pump pressure.",
			},
		},
		Risk:         RiskBands{LowBelow: 0.8, ModerateBelow: 1.2},
		IdealMessage: "Drilling conditions are ideal. No action required.",
	}
}

// LoadConfig reads a YAML threshold file. Sections absent from the file
// keep their defaults; an empty path returns DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("read advisory config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse advisory config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("advisory config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every threshold names a known metric and is ordered.
func (c Config) Validate() error {
	seen := make(map[string]bool, len(c.Status))
	for _, s := range c.Status {
		if _, ok := vibration.MetricByKey(s.Metric); !ok {
			return fmt.Errorf("status threshold for unknown metric %q", s.Metric)
		}
		if seen[s.Metric] {
			return fmt.Errorf("duplicate status threshold for %q", s.Metric)
		}
		seen[s.Metric] = true
		// safe_below is also the risk denominator.
		if s.SafeBelow <= 0 {
			return fmt.Errorf("%s: safe_below must be positive", s.Metric)
		}
		if s.WarningBelow < s.SafeBelow {
			return fmt.Errorf("%s: warning_below %g is below safe_below %g", s.Metric, s.WarningBelow, s.SafeBelow)
		}
	}
	for _, r := range c.Advisories {
		if _, ok := vibration.MetricByKey(r.Metric); !ok {
			return fmt.Errorf("advisory for unknown metric %q", r.Metric)
		}
		if r.Message == "" {
			return fmt.Errorf("advisory for %q has no message", r.Metric)
		}
	}
	if c.Risk.LowBelow <= 0 || c.Risk.ModerateBelow < c.Risk.LowBelow {
		return errors.New("risk bands must satisfy 0 < low_below <= moderate_below")
	}
	return nil
}

func (c Config) status(metric string) (StatusThreshold, bool) {
	for _, s := range c.Status {
		if s.Metric == metric {
			return s, true
		}
	}
	return StatusThreshold{}, false
}
