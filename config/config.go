// Package config provides YAML configuration parsing for pollpool.
//
// This package enables running pollpool as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	port: 8080
//	interval: 10s
//
//	pool:
//	  min: 1
//	  max: 16
//	  initial: 4
//
//	storage:
//	  driver: sqlite
//	  path: pollpool.db
//
//	tasks:
//	  - name: GitHub API
//	    url: https://api.github.com
//	    timeout: 5s
//	    check: json:status
//
//	grids:
//	  - name: Platform
//	    url_template: "https://{{.env}}.example.com/health"
//	    dimensions:
//	      env: [prod, staging]
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/pollpool"
)

// minInterval is the shortest cycle interval a config file may ask for.
const minInterval = 100 * time.Millisecond

const (
	defaultPort        = 8080
	defaultInterval    = 10 * time.Second
	defaultInitialSize = 4
	defaultHistory     = 256
	defaultServiceName = "pollpool"
)

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Trace exporters.
const (
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// Config is the root configuration structure for pollpool.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// Interval is the time between cycle starts and each cycle's deadline.
	// Accepts duration strings like "10s", "1m", "500ms". Defaults to 10s.
	Interval Duration `yaml:"interval"`

	Pool      PoolConfig      `yaml:"pool"`
	Storage   StorageConfig   `yaml:"storage"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Tasks defines individual HTTP probes.
	Tasks []TaskConfig `yaml:"tasks"`

	// Grids defines probe grids that expand via cartesian product.
	Grids []GridConfig `yaml:"grids"`
}

// PoolConfig bounds and tunes the adaptive worker pool.
// Zero fields take the SDK defaults.
type PoolConfig struct {
	Min         int     `yaml:"min"`
	Max         int     `yaml:"max"`
	Initial     int     `yaml:"initial"`
	Step        int     `yaml:"step"`
	ShrinkSlack float64 `yaml:"shrink_slack"`
	Tolerance   float64 `yaml:"tolerance"`
}

// Sizer returns the pool bounds as a [pollpool.SizerConfig].
func (p PoolConfig) Sizer() pollpool.SizerConfig {
	return pollpool.SizerConfig{
		Min:         p.Min,
		Max:         p.Max,
		Step:        p.Step,
		ShrinkSlack: p.ShrinkSlack,
		Tolerance:   p.Tolerance,
	}
}

// StorageConfig selects where cycle records are kept.
type StorageConfig struct {
	// Driver is "memory" (default) or "sqlite".
	Driver string `yaml:"driver"`

	// Path is the SQLite database file. Required for the sqlite driver.
	Path string `yaml:"path"`

	// History is how many cycle records are retained. Defaults to 256.
	History int `yaml:"history"`
}

// MetricsConfig configures the Prometheus exporter.
type MetricsConfig struct {
	// Namespace prefixes every metric name. Defaults to "pollpool".
	Namespace string `yaml:"namespace"`
}

// TelemetryConfig configures OpenTelemetry tracing of cycles.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled"`

	// Exporter is "stdout" (default) or "otlp".
	Exporter string `yaml:"exporter"`

	// Endpoint is the OTLP/HTTP collector address, e.g. "localhost:4318".
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS for the OTLP exporter.
	Insecure bool `yaml:"insecure"`

	// ServiceName is the service.name resource attribute. Defaults to "pollpool".
	ServiceName string `yaml:"service_name"`
}

// TaskConfig defines a single HTTP probe.
type TaskConfig struct {
	// Name identifies the task in logs, cycle reports and the API.
	Name string `yaml:"name"`

	// URL is the probe URL.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	URL string `yaml:"url"`

	// Method is the HTTP method (GET, HEAD, POST). Defaults to GET.
	Method string `yaml:"method"`

	// Timeout is the request timeout. Defaults to 10s.
	Timeout Duration `yaml:"timeout"`

	// Headers are custom HTTP headers sent with each request.
	// Values support environment variable substitution.
	Headers map[string]string `yaml:"headers"`

	// Check decides which responses count as success.
	// Can be shorthand ("json:status", "contains:ok") or structured.
	Check CheckConfig `yaml:"check"`
}

// GridConfig defines a probe grid that expands via cartesian product.
//
// For example, with dimensions {env: [prod, staging], svc: [api, web]},
// the grid expands to 4 tasks: prod/api, prod/web, staging/api, staging/web.
type GridConfig struct {
	// Name is the base name for generated tasks.
	Name string `yaml:"name"`

	// URLTemplate is a Go template for generating task URLs.
	// Dimension keys are available as template variables: {{.env}}, {{.svc}}
	// Supports environment variable substitution in the template.
	URLTemplate string `yaml:"url_template"`

	// Dimensions maps dimension names to their possible values.
	Dimensions map[string][]string `yaml:"dimensions"`

	// Method is the HTTP method for all generated tasks.
	Method string `yaml:"method"`

	// Timeout is the request timeout for all generated tasks.
	Timeout Duration `yaml:"timeout"`

	// Headers are custom HTTP headers for all generated tasks.
	Headers map[string]string `yaml:"headers"`

	// Check applies to every generated task.
	Check CheckConfig `yaml:"check"`
}

// CheckConfig specifies how a successful response is further checked.
//
// It supports two formats in YAML:
//
// Shorthand string:
//
//	check: json:status
//	check: json:data.health.status
//	check: contains:ok
//	check: status:200,204
//	check: default
//
// Structured object:
//
//	check:
//	  type: json
//	  path: data.health.status
//	  accept: [serving]
//
//	check:
//	  type: match
//	  pattern: 'version=(\d+)'
//	  want: "2"
type CheckConfig struct {
	// Type is the check type: "default", "json", "contains", "status", "match".
	Type string

	// Path is the JSON field path (for type: json).
	Path string

	// Accept overrides the healthy values (for type: json).
	Accept []string

	// Text is the substring to search for (for type: contains).
	Text string

	// Codes are the accepted status codes (for type: status).
	Codes []int

	// Pattern and Want configure a regular expression check (for type: match).
	Pattern string
	Want    string
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler for CheckConfig.
func (c *CheckConfig) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		return c.parseShorthand(s)
	case yaml.MappingNode:
		// temporary struct to avoid infinite recursion
		var raw struct {
			Type    string   `yaml:"type"`
			Path    string   `yaml:"path"`
			Accept  []string `yaml:"accept"`
			Text    string   `yaml:"text"`
			Codes   []int    `yaml:"codes"`
			Pattern string   `yaml:"pattern"`
			Want    string   `yaml:"want"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		*c = CheckConfig(raw)
		return nil
	default:
		return fmt.Errorf("check must be a string or object, got %v", node.Kind)
	}
}

// parseShorthand parses check shorthand syntax.
//
// Supported formats:
//   - "default" → no check, 2xx/3xx is success
//   - "json:path" → JSON field must hold a healthy value
//   - "contains:text" → body must contain text
//   - "status:200,204" → status must be one of the codes
func (c *CheckConfig) parseShorthand(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	kind, value, found := strings.Cut(s, ":")
	if !found {
		if s == "default" {
			c.Type = s
			return nil
		}
		return fmt.Errorf("unknown check %q (expected 'default', 'json:path', 'contains:text', or 'status:codes')", s)
	}

	c.Type = kind
	switch kind {
	case "json":
		c.Path = value
	case "contains":
		c.Text = value
	case "status":
		for _, part := range strings.Split(value, ",") {
			code, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return fmt.Errorf("invalid status code %q", part)
			}
			c.Codes = append(c.Codes, code)
		}
	default:
		return fmt.Errorf("unknown check type %q", kind)
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		varName := submatches[1]
		hasDefault := submatches[2] != ""

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return submatches[3]
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in URL, URLTemplate, Header values and
// the storage path. Defaults are applied before validation.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.Interval == 0 {
		c.Interval = Duration(defaultInterval)
	}

	d := pollpool.DefaultSizerConfig()
	if c.Pool.Min == 0 {
		c.Pool.Min = d.Min
	}
	if c.Pool.Max == 0 {
		c.Pool.Max = max(d.Max, c.Pool.Min)
	}
	if c.Pool.Initial == 0 {
		c.Pool.Initial = defaultInitialSize
	}
	if c.Pool.Step == 0 {
		c.Pool.Step = d.Step
	}
	if c.Pool.ShrinkSlack == 0 {
		c.Pool.ShrinkSlack = d.ShrinkSlack
	}
	if c.Pool.Tolerance == 0 {
		c.Pool.Tolerance = d.Tolerance
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverMemory
	}
	if c.Storage.History == 0 {
		c.Storage.History = defaultHistory
	}

	if c.Telemetry.Exporter == "" {
		c.Telemetry.Exporter = ExporterStdout
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = defaultServiceName
	}
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.Interval.Duration() < minInterval {
		return fmt.Errorf("interval must be at least %s, got %s", minInterval, c.Interval.Duration())
	}
	if c.Interval.Duration()%time.Millisecond != 0 {
		return fmt.Errorf("interval must be a whole number of milliseconds, got %s", c.Interval.Duration())
	}
	if err := c.Pool.Sizer().Validate(); err != nil {
		return fmt.Errorf("pool: %w", err)
	}
	if c.Pool.Initial < 0 {
		return fmt.Errorf("pool: initial cannot be negative, got %d", c.Pool.Initial)
	}

	if err := c.Storage.expandAndValidate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Telemetry.validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	names := make(map[string]string)
	for i := range c.Tasks {
		tc := &c.Tasks[i]
		path := fmt.Sprintf("tasks[%d]", i)

		if tc.Name == "" {
			return fmt.Errorf("%s: name is required", path)
		}
		path = fmt.Sprintf("%s (%s)", path, tc.Name)
		if prev, dup := names[tc.Name]; dup {
			return fmt.Errorf("%s: duplicate name, first defined at %s", path, prev)
		}
		names[tc.Name] = fmt.Sprintf("tasks[%d]", i)

		if tc.URL == "" {
			return fmt.Errorf("%s: url is required", path)
		}
		expanded, err := expandEnvVars(tc.URL)
		if err != nil {
			return fmt.Errorf("%s: url: %w", path, err)
		}
		tc.URL = expanded

		if err := validateURL(tc.URL); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := expandHeaders(tc.Headers); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := validateMethod(tc.Method); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if tc.Timeout < 0 {
			return fmt.Errorf("%s: timeout cannot be negative, got %s", path, tc.Timeout.Duration())
		}
		if err := validateCheck(tc.Check); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}

	gridNames := make(map[string]bool)
	for i := range c.Grids {
		g := &c.Grids[i]
		path := fmt.Sprintf("grids[%d]", i)

		if g.Name == "" {
			return fmt.Errorf("%s: name is required", path)
		}
		path = fmt.Sprintf("%s (%s)", path, g.Name)
		if gridNames[g.Name] {
			return fmt.Errorf("%s: duplicate grid name", path)
		}
		gridNames[g.Name] = true

		if g.URLTemplate == "" {
			return fmt.Errorf("%s: url_template is required", path)
		}
		expanded, err := expandEnvVars(g.URLTemplate)
		if err != nil {
			return fmt.Errorf("%s: url_template: %w", path, err)
		}
		g.URLTemplate = expanded

		// fail fast before the SDK renders it
		if _, err := template.New("").Parse(g.URLTemplate); err != nil {
			return fmt.Errorf("%s: invalid url_template: %w", path, err)
		}

		if len(g.Dimensions) == 0 {
			return fmt.Errorf("%s: at least one dimension is required", path)
		}
		for dimName, dimValues := range g.Dimensions {
			if len(dimValues) == 0 {
				return fmt.Errorf("%s: dimension %q has no values", path, dimName)
			}
			seen := make(map[string]struct{}, len(dimValues))
			for _, v := range dimValues {
				if _, exists := seen[v]; exists {
					return fmt.Errorf("%s: dimension %q has duplicate value %q", path, dimName, v)
				}
				seen[v] = struct{}{}
			}
		}

		if err := expandHeaders(g.Headers); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := validateMethod(g.Method); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if g.Timeout < 0 {
			return fmt.Errorf("%s: timeout cannot be negative, got %s", path, g.Timeout.Duration())
		}
		if err := validateCheck(g.Check); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}

	if len(c.Tasks) == 0 && len(c.Grids) == 0 {
		return errors.New("at least one task or grid must be defined")
	}

	return nil
}

func (s *StorageConfig) expandAndValidate() error {
	if s.History < 1 {
		return fmt.Errorf("history must be positive, got %d", s.History)
	}
	switch s.Driver {
	case DriverMemory:
		return nil
	case DriverSQLite:
		if s.Path == "" {
			return errors.New("path is required for the sqlite driver")
		}
		expanded, err := expandEnvVars(s.Path)
		if err != nil {
			return fmt.Errorf("path: %w", err)
		}
		s.Path = expanded
		return nil
	default:
		return fmt.Errorf("unknown driver %q (expected %q or %q)", s.Driver, DriverMemory, DriverSQLite)
	}
}

func (t TelemetryConfig) validate() error {
	switch t.Exporter {
	case ExporterStdout:
		return nil
	case ExporterOTLP:
		if t.Enabled && t.Endpoint == "" {
			return errors.New("endpoint is required for the otlp exporter")
		}
		return nil
	default:
		return fmt.Errorf("unknown exporter %q (expected %q or %q)", t.Exporter, ExporterStdout, ExporterOTLP)
	}
}

func validateURL(raw string) error {
	parsedURL, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if parsedURL.Scheme == "" {
		return errors.New("url must have a scheme (http:// or https://)")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", parsedURL.Scheme)
	}
	return nil
}

func validateMethod(method string) error {
	switch method {
	case "", "GET", "HEAD", "POST":
		return nil
	default:
		return errors.New("method must be GET, HEAD, or POST")
	}
}

func expandHeaders(headers map[string]string) error {
	for k, v := range headers {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("headers[%s]: %w", k, err)
		}
		headers[k] = expanded
	}
	return nil
}

// validateCheck validates a check configuration.
func validateCheck(c CheckConfig) error {
	switch c.Type {
	case "", "default":
		return nil
	case "json":
		if c.Path == "" {
			return errors.New("check type 'json' requires a path")
		}
	case "contains":
		if c.Text == "" {
			return errors.New("check type 'contains' requires text")
		}
	case "status":
		if len(c.Codes) == 0 {
			return errors.New("check type 'status' requires at least one code")
		}
		for _, code := range c.Codes {
			if code < 100 || code > 599 {
				return fmt.Errorf("check status code %d out of range", code)
			}
		}
	case "match":
		if _, err := pollpool.ExpectBodyMatch(c.Pattern, c.Want); err != nil {
			return fmt.Errorf("check type 'match': %w", err)
		}
	default:
		return fmt.Errorf("unknown check type %q", c.Type)
	}
	return nil
}
