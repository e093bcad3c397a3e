package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"herdline/internal/roles"
)

// Operations gated by unit policy.
const (
	OpTransfer      = "transfer"
	OpReceive       = "receive"
	OpReject        = "reject"
	OpResolveAppeal = "resolve_appeal"
	OpCreateProduct = "create_product"
)

// Config models herdline.yml.
type Config struct {
	Deployment struct {
		Name string `yaml:"name"`
	} `yaml:"deployment"`
	Rejections struct {
		Catalog map[string]RejectionCategory `yaml:"catalog"`
	} `yaml:"rejections"`
	Policy struct {
		// Operations maps an operation to the membership roles allowed
		// to perform it inside their unit.
		Operations map[string][]string `yaml:"operations"`
	} `yaml:"policy"`
}

type RejectionCategory struct {
	Description string   `yaml:"description"`
	Reasons     []string `yaml:"reasons"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with hl config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Deployment.Name == "" {
		return fmt.Errorf("config.deployment.name is required")
	}
	if len(c.Rejections.Catalog) == 0 {
		return fmt.Errorf("config.rejections.catalog is required")
	}
	for category, entry := range c.Rejections.Catalog {
		if category == "" {
			return fmt.Errorf("config.rejections.catalog contains empty category")
		}
		if len(entry.Reasons) == 0 {
			return fmt.Errorf("rejection category %s has no reasons", category)
		}
		for _, reason := range entry.Reasons {
			if reason == "" {
				return fmt.Errorf("rejection category %s has empty reason", category)
			}
		}
	}
	if len(c.Policy.Operations) == 0 {
		return fmt.Errorf("config.policy.operations is required")
	}
	for _, op := range []string{OpTransfer, OpReceive, OpReject, OpResolveAppeal} {
		if len(c.Policy.Operations[op]) == 0 {
			return fmt.Errorf("config.policy.operations.%s is required", op)
		}
	}
	for op, allowed := range c.Policy.Operations {
		for _, role := range allowed {
			if _, err := roles.ParseMember(role); err != nil {
				return fmt.Errorf("policy operation %s: %w", op, err)
			}
		}
	}
	return nil
}

// ValidRejection reports whether the category/reason pair is in the catalog.
func (c *Config) ValidRejection(category, reason string) bool {
	entry, ok := c.Rejections.Catalog[category]
	if !ok {
		return false
	}
	for _, r := range entry.Reasons {
		if r == reason {
			return true
		}
	}
	return false
}

// OperationAllowed reports whether a membership role may perform the operation.
func (c *Config) OperationAllowed(op string, role roles.MemberRole) bool {
	for _, allowed := range c.Policy.Operations[op] {
		if parsed, err := roles.ParseMember(allowed); err == nil && parsed == role {
			return true
		}
	}
	return false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "herdline.yml")
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a deployment.
func Default(name string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, name))).Decode(&cfg)
	cfg.Deployment.Name = name
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

const defaultTemplate = `deployment:
  name: %s

rejections:
  catalog:
    quality:
      description: "Condition of the meat on arrival"
      reasons: [bruising, contamination, spoilage, abnormal_color]
    documentation:
      description: "Paperwork and identification"
      reasons: [missing_tag, mismatched_tag, missing_health_certificate]
    transport:
      description: "Problems introduced in transit"
      reasons: [temperature_breach, damaged_in_transit, delayed_delivery]
    weight:
      description: "Measured weight out of tolerance"
      reasons: [underweight, overweight]

policy:
  operations:
    transfer: [owner, manager, worker, supervisor]
    receive: [owner, manager, worker, supervisor]
    reject: [owner, manager, supervisor, quality_control]
    resolve_appeal: [owner, manager]
    create_product: [owner, manager, worker]
`
