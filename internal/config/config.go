package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models permitline.yml: the reference tables the tracker derives
// everything from. Fees and statutory periods are configuration, not code,
// so tests and councils outside the default area can substitute fixtures.
type Config struct {
	Authority struct {
		Name string `yaml:"name"`
		Area string `yaml:"area"`
	} `yaml:"authority"`
	Fees struct {
		Table map[string]int `yaml:"table"`
	} `yaml:"fees"`
	Decision struct {
		HouseholderDays int `yaml:"householder_days"`
		DefaultDays     int `yaml:"default_days"`
	} `yaml:"decision"`
	Deadlines struct {
		WindowDays  int `yaml:"window_days"`
		MaxUpcoming int `yaml:"max_upcoming"`
	} `yaml:"deadlines"`
	Stages struct {
		EstimatedDays  map[string]int `yaml:"estimated_days"`
		CommitteeTypes []string       `yaml:"committee_types"`
	} `yaml:"stages"`
	Areas struct {
		Default AreaRow            `yaml:"default"`
		Table   map[string]AreaRow `yaml:"table"`
	} `yaml:"areas"`
}

// AreaRow is one canned borough-benchmark row.
type AreaRow struct {
	AvgProcessingDays  int      `yaml:"avg_processing_days"`
	SuccessRate        int      `yaml:"success_rate"`
	CommonConditions   []string `yaml:"common_conditions"`
	MostActiveOfficers []string `yaml:"most_active_officers"`
}

var applicationTypes = []string{
	"full_planning", "householder", "listed_building", "conservation_area",
	"prior_approval", "lawful_development", "advertisement", "tree_works",
	"discharge_conditions",
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Fees.Table == nil {
		return fmt.Errorf("config.fees.table is required")
	}
	for _, t := range applicationTypes {
		fee, ok := c.Fees.Table[t]
		if !ok {
			return fmt.Errorf("config.fees.table missing application type %s", t)
		}
		if fee < 0 {
			return fmt.Errorf("config.fees.table has negative fee for %s", t)
		}
	}
	if c.Decision.HouseholderDays <= 0 || c.Decision.DefaultDays <= 0 {
		return fmt.Errorf("config.decision periods must be positive")
	}
	if c.Deadlines.WindowDays <= 0 {
		return fmt.Errorf("config.deadlines.window_days must be positive")
	}
	if c.Deadlines.MaxUpcoming <= 0 {
		return fmt.Errorf("config.deadlines.max_upcoming must be positive")
	}
	for _, t := range c.Stages.CommitteeTypes {
		if !knownType(t) {
			return fmt.Errorf("config.stages.committee_types has unknown type %s", t)
		}
	}
	return nil
}

func knownType(t string) bool {
	for _, k := range applicationTypes {
		if k == t {
			return true
		}
	}
	return false
}

// FeeFor returns the statutory fee for an application type. Unknown types are
// a configuration error, not a zero-fee application.
func (c *Config) FeeFor(appType string) (int, error) {
	fee, ok := c.Fees.Table[appType]
	if !ok {
		return 0, fmt.Errorf("no fee configured for application type %s", appType)
	}
	return fee, nil
}

// DecisionDays returns the statutory decision period in days for a type.
func (c *Config) DecisionDays(appType string) int {
	if appType == "householder" {
		return c.Decision.HouseholderDays
	}
	return c.Decision.DefaultDays
}

// RequiresCommittee reports whether the type gets a committee stage.
func (c *Config) RequiresCommittee(appType string) bool {
	for _, t := range c.Stages.CommitteeTypes {
		if t == appType {
			return true
		}
	}
	return false
}

// EstimatedDays returns the configured estimated duration for a stage.
func (c *Config) EstimatedDays(stage string) int {
	return c.Stages.EstimatedDays[stage]
}

// AreaFor returns the benchmark row for a postcode prefix, falling back to
// the default row when the prefix is not in the table.
func (c *Config) AreaFor(prefix string) AreaRow {
	if row, ok := c.Areas.Table[prefix]; ok {
		return row
	}
	return c.Areas.Default
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "permitline.yml")
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the workspace config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Fees are 2024/25 English application fees, flat per type. Committee
// referral applies to full and listed-building applications only.
const defaultTemplate = `authority:
  name: Camden Borough Council
  area: North West London

fees:
  table:
    full_planning: 578
    householder: 258
    listed_building: 0
    conservation_area: 0
    prior_approval: 120
    lawful_development: 129
    advertisement: 165
    tree_works: 0
    discharge_conditions: 43

decision:
  householder_days: 56
  default_days: 91

deadlines:
  window_days: 14
  max_upcoming: 10

stages:
  estimated_days:
    preparation: 14
    submission: 1
    validation: 5
    consultation: 21
    assessment: 28
    committee: 14
    decision: 7
    conditions_discharge: 28
    completed: 0
  committee_types: [full_planning, listed_building]

areas:
  default:
    avg_processing_days: 62
    success_rate: 71
    common_conditions:
      - Materials to match existing
      - Construction management plan
      - Hours of construction working
    most_active_officers:
      - S. Patel
      - J. Whitfield
  table:
    NW3:
      avg_processing_days: 74
      success_rate: 64
      common_conditions:
        - Materials to match existing
        - Tree protection during construction
        - Basement impact assessment compliance
      most_active_officers:
        - M. Okafor
        - R. Llewellyn
        - A. Christodoulou
    NW6:
      avg_processing_days: 58
      success_rate: 73
      common_conditions:
        - Materials to match existing
        - Obscure glazing to side windows
        - Green roof maintenance
      most_active_officers:
        - S. Patel
        - D. Hughes
    NW8:
      avg_processing_days: 69
      success_rate: 67
      common_conditions:
        - Hours of construction working
        - Cycle storage provision
      most_active_officers:
        - J. Whitfield
        - M. Okafor
    N6:
      avg_processing_days: 77
      success_rate: 61
      common_conditions:
        - Conservation area character preservation
        - Tree protection during construction
      most_active_officers:
        - R. Llewellyn
    NW11:
      avg_processing_days: 55
      success_rate: 76
      common_conditions:
        - Materials to match existing
        - Permitted development rights removal
      most_active_officers:
        - D. Hughes
        - A. Christodoulou
`
