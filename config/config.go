package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"

	errs "github.com/c360/callbridge/errors"
	"github.com/c360/callbridge/pkg/retry"
)

// Transport kinds.
const (
	TransportMemory    = "memory"
	TransportNATS      = "nats"
	TransportWebSocket = "websocket"
)

// Config is the complete application configuration.
type Config struct {
	Version    string           `json:"version" yaml:"version"`
	Connection ConnectionConfig `json:"connection" yaml:"connection"`
	Command    CommandConfig    `json:"command" yaml:"command"`
	Dispatch   DispatchConfig   `json:"dispatch" yaml:"dispatch"`
	Pacing     PacingConfig     `json:"pacing" yaml:"pacing"`
	Metrics    MetricsConfig    `json:"metrics" yaml:"metrics"`
	Log        LogConfig        `json:"log" yaml:"log"`
}

// ConnectionConfig selects the transport and codec of the logical connection.
type ConnectionConfig struct {
	Transport string          `json:"transport" yaml:"transport"`
	Codec     string          `json:"codec" yaml:"codec"`
	IDBase    int64           `json:"id_base,omitempty" yaml:"id_base,omitempty"`
	NATS      NATSConfig      `json:"nats" yaml:"nats"`
	WebSocket WebSocketConfig `json:"websocket" yaml:"websocket"`
}

// NATSConfig defines NATS connection settings
type NATSConfig struct {
	URLs          []string `json:"urls,omitempty" yaml:"urls,omitempty"`
	MaxReconnects int      `json:"max_reconnects,omitempty" yaml:"max_reconnects,omitempty"`
	ReconnectWait Duration `json:"reconnect_wait,omitempty" yaml:"reconnect_wait,omitempty"`
	Username      string   `json:"username,omitempty" yaml:"username,omitempty"`
	Password      string   `json:"password,omitempty" yaml:"password,omitempty"`
	Token         string   `json:"token,omitempty" yaml:"token,omitempty"`
	PingInterval  Duration `json:"ping_interval,omitempty" yaml:"ping_interval,omitempty"`
	DrainTimeout  Duration `json:"drain_timeout,omitempty" yaml:"drain_timeout,omitempty"`
	// CircuitThreshold consecutive failures open the client's circuit breaker;
	// MaxBackoff caps how long it stays open.
	CircuitThreshold int32    `json:"circuit_threshold,omitempty" yaml:"circuit_threshold,omitempty"`
	MaxBackoff       Duration `json:"max_backoff,omitempty" yaml:"max_backoff,omitempty"`
	// Prefix and ConnectionID name the subjects frames travel on.
	Prefix       string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	ConnectionID string `json:"connection_id,omitempty" yaml:"connection_id,omitempty"`
	// Journal records every frame to a JetStream stream.
	Journal bool `json:"journal,omitempty" yaml:"journal,omitempty"`
}

// WebSocketConfig defines the WebSocket endpoint.
type WebSocketConfig struct {
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
}

// CommandConfig bounds synchronous calls.
type CommandConfig struct {
	// DefaultTimeout applies to calls without their own timeout. Zero waits
	// indefinitely.
	DefaultTimeout Duration    `json:"default_timeout" yaml:"default_timeout"`
	Retry          RetryConfig `json:"retry" yaml:"retry"`
}

// RetryConfig controls re-issuing calls that timed out.
type RetryConfig struct {
	MaxAttempts  int      `json:"max_attempts" yaml:"max_attempts"`
	InitialDelay Duration `json:"initial_delay" yaml:"initial_delay"`
	MaxDelay     Duration `json:"max_delay" yaml:"max_delay"`
}

// DispatchConfig sizes the inbound side.
type DispatchConfig struct {
	BroadcastWorkers int `json:"broadcast_workers" yaml:"broadcast_workers"`
	BroadcastQueue   int `json:"broadcast_queue" yaml:"broadcast_queue"`
	ReadBuffer       int `json:"read_buffer" yaml:"read_buffer"`
}

// PacingConfig limits the outbound message rate.
type PacingConfig struct {
	Enabled bool    `json:"enabled" yaml:"enabled"`
	Rate    float64 `json:"rate" yaml:"rate"`
	Burst   int     `json:"burst" yaml:"burst"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr,omitempty" yaml:"addr,omitempty"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
}

// LogConfig selects level and output format.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Version: "1.0.0",
		Connection: ConnectionConfig{
			Transport: TransportMemory,
			Codec:     "json",
			IDBase:    1,
			NATS: NATSConfig{
				URLs:          []string{"nats://localhost:4222"},
				MaxReconnects: -1,
				ReconnectWait: Duration(2 * time.Second),
				Prefix:        "callbridge",
				ConnectionID:  "default",
			},
		},
		Command: CommandConfig{
			DefaultTimeout: Duration(10 * time.Second),
			Retry: RetryConfig{
				MaxAttempts:  3,
				InitialDelay: Duration(100 * time.Millisecond),
				MaxDelay:     Duration(5 * time.Second),
			},
		},
		Dispatch: DispatchConfig{
			BroadcastWorkers: 1,
			BroadcastQueue:   256,
			ReadBuffer:       256,
		},
		Pacing: PacingConfig{
			Enabled: true,
			Rate:    50,
			Burst:   10,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9090",
			Path:    "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a single JSON or YAML file over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	l := NewLoader()
	l.AddLayer(path)
	l.EnableValidation(true)
	return l.Load()
}

// Retry converts the retry settings. Only timeouts are retried.
func (c *Config) Retry() retry.Config {
	return retry.Config{
		MaxAttempts:  c.Command.Retry.MaxAttempts,
		InitialDelay: c.Command.Retry.InitialDelay.Std(),
		MaxDelay:     c.Command.Retry.MaxDelay.Std(),
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

// Validate checks the configuration and normalizes case-insensitive fields.
func (c *Config) Validate() error {
	if c.Version != "" {
		if _, _, _, err := parseSemVer(c.Version); err != nil {
			return invalid("version: %v", err)
		}
	}

	c.Connection.Transport = strings.ToLower(c.Connection.Transport)
	switch c.Connection.Transport {
	case TransportMemory:
	case TransportNATS:
		if len(c.Connection.NATS.URLs) == 0 {
			return invalid("connection.nats.urls is required for the nats transport")
		}
		if !isValidNATSSubjectPart(c.Connection.NATS.Prefix) {
			return invalid("connection.nats.prefix %q is not valid for NATS subjects", c.Connection.NATS.Prefix)
		}
		if c.Connection.NATS.ConnectionID == "" {
			return invalid("connection.nats.connection_id is required for the nats transport")
		}
		nc := c.Connection.NATS
		if nc.PingInterval < 0 || nc.DrainTimeout < 0 || nc.MaxBackoff < 0 || nc.CircuitThreshold < 0 {
			return invalid("connection.nats intervals and circuit_threshold cannot be negative")
		}
	case TransportWebSocket:
		if c.Connection.WebSocket.URL == "" {
			return invalid("connection.websocket.url is required for the websocket transport")
		}
	default:
		return invalid("connection.transport %q must be memory, nats or websocket", c.Connection.Transport)
	}

	c.Connection.Codec = strings.ToLower(c.Connection.Codec)
	switch c.Connection.Codec {
	case "json", "cbor":
	default:
		return invalid("connection.codec %q must be json or cbor", c.Connection.Codec)
	}

	if c.Command.DefaultTimeout < 0 {
		return invalid("command.default_timeout cannot be negative")
	}
	if c.Command.Retry.MaxAttempts < 0 {
		return invalid("command.retry.max_attempts cannot be negative")
	}
	if c.Command.Retry.MaxDelay > 0 && c.Command.Retry.MaxDelay < c.Command.Retry.InitialDelay {
		return invalid("command.retry.max_delay must be >= initial_delay")
	}

	if c.Dispatch.BroadcastWorkers < 0 || c.Dispatch.BroadcastQueue < 0 || c.Dispatch.ReadBuffer < 0 {
		return invalid("dispatch sizes cannot be negative")
	}

	if c.Pacing.Enabled && (c.Pacing.Rate <= 0 || c.Pacing.Burst <= 0) {
		return invalid("pacing.rate and pacing.burst must be positive when pacing is enabled")
	}

	c.Log.Level = strings.ToLower(c.Log.Level)
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level %q must be debug, info, warn or error", c.Log.Level)
	}
	c.Log.Format = strings.ToLower(c.Log.Format)
	switch c.Log.Format {
	case "json", "text":
	default:
		return invalid("log.format %q must be json or text", c.Log.Format)
	}

	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errs.ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// isValidNATSSubjectPart checks if a string is valid for use in NATS subjects.
// Valid characters are alphanumeric, dots, dashes, and underscores.
func isValidNATSSubjectPart(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) &&
			r != '-' && r != '_' && r != '.' {
			return false
		}
	}
	return true
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}
	clone := *c
	clone.Connection.NATS.URLs = append([]string(nil), c.Connection.NATS.URLs...)
	return &clone
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a loader reading CALLBRIDGE_* environment overrides.
func NewLoader() *Loader {
	return &Loader{envPrefix: "CALLBRIDGE"}
}

// AddLayer adds a configuration file layer. Later layers override earlier ones.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// Load merges the defaults, every layer and the environment.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	for _, path := range l.layers {
		raw, err := loadRaw(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		cfg, err = mergeFromMap(cfg, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to merge %s: %w", path, err)
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// loadRaw reads a file as a generic map. YAML documents are normalized to the
// same shape JSON produces.
func loadRaw(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrParsingFailed, err)
		}
	default:
		if err := validateJSONDepth(data); err != nil {
			return nil, fmt.Errorf("invalid JSON structure: %w", err)
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrParsingFailed, err)
		}
	}
	return raw, nil
}

// mergeFromMap overrides only the fields present in override.
func mergeFromMap(base *Config, override map[string]any) (*Config, error) {
	if override == nil {
		return base, nil
	}

	baseJSON, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return nil, err
	}

	mergedJSON, err := json.Marshal(deepMergeMaps(baseMap, override))
	if err != nil {
		return nil, err
	}
	var merged Config
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrParsingFailed, err)
	}
	return &merged, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	get := func(name string) (string, bool, error) {
		key := l.envPrefix + "_" + name
		val := os.Getenv(key)
		if val == "" {
			return "", false, nil
		}
		if err := validateEnvVar(key, val); err != nil {
			return "", false, fmt.Errorf("%w: %v", errs.ErrInvalidConfig, err)
		}
		return val, true, nil
	}

	strs := []struct {
		name string
		dst  *string
	}{
		{"TRANSPORT", &cfg.Connection.Transport},
		{"CODEC", &cfg.Connection.Codec},
		{"NATS_USERNAME", &cfg.Connection.NATS.Username},
		{"NATS_PASSWORD", &cfg.Connection.NATS.Password},
		{"NATS_TOKEN", &cfg.Connection.NATS.Token},
		{"NATS_PREFIX", &cfg.Connection.NATS.Prefix},
		{"CONNECTION_ID", &cfg.Connection.NATS.ConnectionID},
		{"WEBSOCKET_URL", &cfg.Connection.WebSocket.URL},
		{"METRICS_ADDR", &cfg.Metrics.Addr},
		{"LOG_LEVEL", &cfg.Log.Level},
		{"LOG_FORMAT", &cfg.Log.Format},
	}
	for _, s := range strs {
		val, ok, err := get(s.name)
		if err != nil {
			return err
		}
		if ok {
			*s.dst = val
		}
	}

	if val, ok, err := get("NATS_URLS"); err != nil {
		return err
	} else if ok {
		cfg.Connection.NATS.URLs = strings.Split(val, ",")
	}

	if val, ok, err := get("COMMAND_TIMEOUT"); err != nil {
		return err
	} else if ok {
		d, perr := parseDurationWithDays(val)
		if perr != nil {
			return fmt.Errorf("%w: %s_COMMAND_TIMEOUT: %v", errs.ErrInvalidConfig, l.envPrefix, perr)
		}
		cfg.Command.DefaultTimeout = Duration(d)
	}

	if val, ok, err := get("METRICS_ENABLED"); err != nil {
		return err
	} else if ok {
		enabled, perr := strconv.ParseBool(val)
		if perr != nil {
			return fmt.Errorf("%w: %s_METRICS_ENABLED: %v", errs.ErrInvalidConfig, l.envPrefix, perr)
		}
		cfg.Metrics.Enabled = enabled
	}
	return nil
}

// SaveToFile writes the configuration as JSON or YAML, by extension.
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}
	return safeWriteFile(path, data)
}

// String returns a JSON representation with secrets masked.
func (c *Config) String() string {
	masked := c.Clone()
	if masked.Connection.NATS.Password != "" {
		masked.Connection.NATS.Password = "***"
	}
	if masked.Connection.NATS.Token != "" {
		masked.Connection.NATS.Token = "***"
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

// CompareVersions compares two semver version strings
// Returns:
//
//	-1 if v1 < v2
//	 0 if v1 == v2
//	 1 if v1 > v2
//	error if either version is invalid
func CompareVersions(v1, v2 string) (int, error) {
	a1, b1, c1, err := parseSemVer(v1)
	if err != nil {
		return 0, fmt.Errorf("invalid version '%s': %w", v1, err)
	}
	a2, b2, c2, err := parseSemVer(v2)
	if err != nil {
		return 0, fmt.Errorf("invalid version '%s': %w", v2, err)
	}
	for _, pair := range [][2]int{{a1, a2}, {b1, b2}, {c1, c2}} {
		switch {
		case pair[0] > pair[1]:
			return 1, nil
		case pair[0] < pair[1]:
			return -1, nil
		}
	}
	return 0, nil
}

// parseSemVer parses a semantic version string (e.g., "1.2.3")
func parseSemVer(version string) (int, int, int, error) {
	if version == "" {
		return 0, 0, 0, errors.New("version cannot be empty")
	}
	version = strings.TrimPrefix(version, "v")

	parts := strings.Split(version, ".")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("version must be in format 'major.minor.patch', got '%s'", version)
	}
	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid version component '%s': %w", p, err)
		}
		nums[i] = n
	}
	return nums[0], nums[1], nums[2], nil
}
