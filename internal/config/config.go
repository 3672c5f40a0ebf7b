package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"qualityline/internal/coverage"
	"qualityline/internal/defects"
	"qualityline/internal/sampling"
)

// ProjectKind is the only project kind understood by qualityline.
const ProjectKind = "quality-line"

// Config models qualityline.yml.
type Config struct {
	Project struct {
		ID   string `yaml:"id" json:"id"`
		Kind string `yaml:"kind" json:"kind"`
	} `yaml:"project" json:"project"`
	Sampling   SamplingConfig       `yaml:"sampling" json:"sampling"`
	Photos     PhotosConfig         `yaml:"photos" json:"photos"`
	Checklists map[string]Checklist `yaml:"checklists" json:"checklists,omitempty"`
	RBAC       struct {
		Roles map[string]RBACRole `yaml:"roles" json:"roles,omitempty"`
	} `yaml:"rbac" json:"rbac"`
	Webhooks []WebhookConfig `yaml:"webhooks" json:"webhooks,omitempty"`
	Log      LogConfig       `yaml:"log" json:"log"`
}

type SamplingConfig struct {
	DefaultLevel string    `yaml:"default_level" json:"default_level"`
	AQL          AQLConfig `yaml:"aql" json:"aql"`
	Workers      int       `yaml:"workers" json:"workers,omitempty"`
}

// AQLConfig holds the default acceptable quality level per severity, in percent.
type AQLConfig struct {
	Critical float64 `yaml:"critical" json:"critical"`
	Major    float64 `yaml:"major" json:"major"`
	Minor    float64 `yaml:"minor" json:"minor"`
}

type PhotosConfig struct {
	DefaultCategory string `yaml:"default_category" json:"default_category"`
	DefaultKind     string `yaml:"default_kind" json:"default_kind"`
}

// Checklist is a named, reusable set of inspection questions.
type Checklist struct {
	Description string             `yaml:"description" json:"description,omitempty"`
	Questions   []defects.Question `yaml:"questions" json:"questions"`
}

type RBACRole struct {
	Description string   `yaml:"description" json:"description,omitempty"`
	Permissions []string `yaml:"permissions" json:"permissions"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Events         []string `yaml:"events" json:"events,omitempty"`
	Secret         string   `yaml:"secret" json:"secret,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds" json:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled" json:"enabled,omitempty"`
}

// IsEnabled reports whether the webhook should receive deliveries.
func (w WebhookConfig) IsEnabled() bool {
	return w.Enabled == nil || *w.Enabled
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level,omitempty"`
	Format string `yaml:"format" json:"format,omitempty"`
}

// Permissions known to the engine and the HTTP API.
const (
	PermInspectionCreate   = "inspection.create"
	PermInspectionRead     = "inspection.read"
	PermInspectionEvaluate = "inspection.evaluate"
	PermApprovalRequest    = "approval.request"
	PermApprovalDecide     = "approval.decide"
	PermApprovalRead       = "approval.read"
	PermEventsRead         = "events.read"
	PermProjectRead        = "project.read"
	PermRBACManage         = "rbac.manage"
	PermAPIKeyManage       = "apikey.manage"
)

// KnownPermissions lists every permission id in a stable order.
var KnownPermissions = []string{
	PermInspectionCreate,
	PermInspectionRead,
	PermInspectionEvaluate,
	PermApprovalRequest,
	PermApprovalDecide,
	PermApprovalRead,
	PermEventsRead,
	PermProjectRead,
	PermRBACManage,
	PermAPIKeyManage,
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with ql project config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Project.ID == "" {
		return fmt.Errorf("config.project.id is required")
	}
	if c.Project.Kind != ProjectKind {
		return fmt.Errorf("config.project.kind must be '%s'", ProjectKind)
	}
	if _, err := c.DefaultLevel(); err != nil {
		return fmt.Errorf("config.sampling.default_level: %w", err)
	}
	if _, err := c.AQLs(); err != nil {
		return fmt.Errorf("config.sampling.aql: %w", err)
	}
	if c.Sampling.Workers < 0 {
		return fmt.Errorf("config.sampling.workers must be >= 0")
	}
	if c.Photos.DefaultCategory != "" {
		if _, err := coverage.ParseCategory(c.Photos.DefaultCategory); err != nil {
			return fmt.Errorf("config.photos.default_category: %w", err)
		}
	}
	if _, err := coverage.ParseKind(c.Photos.DefaultKind); err != nil {
		return fmt.Errorf("config.photos.default_kind: %w", err)
	}
	for name, cl := range c.Checklists {
		if name == "" {
			return fmt.Errorf("config.checklists contains empty name")
		}
		if len(cl.Questions) == 0 {
			return fmt.Errorf("checklist %s has no questions", name)
		}
		if _, err := defects.NewIndex(cl.Questions); err != nil {
			return fmt.Errorf("checklist %s: %w", name, err)
		}
	}
	if len(c.RBAC.Roles) > 0 {
		if _, ok := c.RBAC.Roles["owner"]; !ok {
			return fmt.Errorf("config.rbac.roles must include owner")
		}
		for roleID, role := range c.RBAC.Roles {
			if roleID == "" {
				return fmt.Errorf("config.rbac.roles contains empty role id")
			}
			for _, perm := range role.Permissions {
				if perm == "" {
					return fmt.Errorf("role %s has empty permission id", roleID)
				}
			}
		}
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must be >= 0", i)
		}
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("config.log.format must be text or json")
	}
	return nil
}

// DefaultLevel returns the configured inspection level, II when unset.
func (c *Config) DefaultLevel() (sampling.Level, error) {
	if strings.TrimSpace(c.Sampling.DefaultLevel) == "" {
		return sampling.LevelII, nil
	}
	return sampling.ParseLevel(c.Sampling.DefaultLevel)
}

// AQLs returns the configured default AQL per severity.
func (c *Config) AQLs() (sampling.SeverityAQLs, error) {
	crit, err := sampling.ParseAQL(c.Sampling.AQL.Critical)
	if err != nil {
		return sampling.SeverityAQLs{}, fmt.Errorf("critical: %w", err)
	}
	major, err := sampling.ParseAQL(c.Sampling.AQL.Major)
	if err != nil {
		return sampling.SeverityAQLs{}, fmt.Errorf("major: %w", err)
	}
	minor, err := sampling.ParseAQL(c.Sampling.AQL.Minor)
	if err != nil {
		return sampling.SeverityAQLs{}, fmt.Errorf("minor: %w", err)
	}
	return sampling.SeverityAQLs{Critical: crit, Major: major, Minor: minor}, nil
}

// DefaultCategory returns the configured photo category, graphic material when unset.
func (c *Config) DefaultCategory() coverage.Category {
	cat, err := coverage.ParseCategory(c.Photos.DefaultCategory)
	if err != nil {
		return coverage.CategoryGraphic
	}
	return cat
}

// Checklist returns the questions of a named checklist.
func (c *Config) Checklist(name string) ([]defects.Question, error) {
	cl, ok := c.Checklists[name]
	if !ok {
		return nil, fmt.Errorf("checklist %s not defined", name)
	}
	out := make([]defects.Question, len(cl.Questions))
	copy(out, cl.Questions)
	return out, nil
}

// ChecklistNames returns checklist names sorted.
func (c *Config) ChecklistNames() []string {
	names := make([]string, 0, len(c.Checklists))
	for name := range c.Checklists {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RolePermissions returns the permissions granted by the given roles.
func (c *Config) RolePermissions(roles []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, roleID := range roles {
		role, ok := c.RBAC.Roles[roleID]
		if !ok {
			continue
		}
		for _, perm := range role.Permissions {
			if _, dup := seen[perm]; dup {
				continue
			}
			seen[perm] = struct{}{}
			out = append(out, perm)
		}
	}
	sort.Strings(out)
	return out
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "qualityline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(projectID string) string {
	return fmt.Sprintf(defaultTemplate, projectID)
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

// Default returns the default Config struct for a project.
func Default(projectID string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(projectID))).Decode(&cfg)
	cfg.Project.ID = projectID
	cfg.Project.Kind = ProjectKind
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

// ToYAML renders the config back to YAML.
func (c *Config) ToYAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

const defaultTemplate = `project:
  id: %s
  kind: quality-line

sampling:
  default_level: II
  aql:
    critical: 0
    major: 2.5
    minor: 4.0
  workers: 4

photos:
  default_category: graphic_material
  default_kind: container

checklists:
  packaging.standard:
    description: "Incoming packaging material"
    questions:
      - id: print.legible
        text: "Print is legible"
        type: boolean
        severity: MAJOR
        required: true
      - id: barcode.reads
        text: "Barcode scans"
        type: boolean
        severity: CRITICAL
        required: true
      - id: dimension.width
        text: "Width (mm)"
        type: numericRange
        severity: MAJOR
        required: true
        requirement:
          min: 99.5
          max: 100.5
      - id: color.match
        text: "Colour match against standard (1-5)"
        type: scale
        severity: MINOR
        required: false
      - id: front.photo
        text: "Front photo"
        type: photoPresence
        severity: MINOR
        required: false

rbac:
  roles:
    owner:
      description: "Full access"
      permissions: [inspection.create, inspection.read, inspection.evaluate, approval.request, approval.decide, approval.read, events.read, project.read, rbac.manage, apikey.manage]
    inspector:
      description: "Runs inspections and asks for conditional approval"
      permissions: [inspection.create, inspection.read, inspection.evaluate, approval.request, approval.read, events.read, project.read]
    engineering:
      description: "Decides conditional approvals"
      permissions: [inspection.read, approval.read, approval.decide, events.read, project.read]
    viewer:
      description: "Read only"
      permissions: [inspection.read, approval.read, events.read, project.read]

log:
  level: info
  format: text
`
