// Package config manages rangingd daemon configuration using koanf/v2.
//
// Supports YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/multirange/core/internal/ranging/engine"
	"github.com/multirange/core/internal/ranging/model"
	"github.com/multirange/core/internal/ranging/tech"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete rangingd configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
	Ranging RangingConfig `koanf:"ranging"`
	Peers   []PeerConfig  `koanf:"peers"`
}

// ServerConfig holds the introspection HTTP (h2c) server configuration.
type ServerConfig struct {
	// Addr is the introspection API listen address (e.g., ":7001").
	Addr string `koanf:"addr"`

	// OOBAddr is the WebSocket OOB transport listen address (e.g.,
	// ":7002"), used to accept ranging sessions from remote initiators.
	OOBAddr string `koanf:"oob_addr"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
	// File is an optional rotating log file path (lumberjack). Empty means
	// stdout.
	File string `koanf:"file"`
}

// RangingConfig holds the ranging session parameters applied to every
// declarative peer; peer entries carry no per-peer overrides.
type RangingConfig struct {
	// Mode selects the ranging mode policy: "uwb_only", "best_available",
	// or "fallback:<primary>,<secondary>" (technology names from
	// SupportedTechnologies, e.g. "fallback:UWB,CS").
	Mode string `koanf:"mode"`

	// SupportedTechnologies lists the technologies this device's
	// capabilities provider reports as available ("UWB", "CS", "RTT",
	// "RSSI").
	SupportedTechnologies []string `koanf:"supported_technologies"`

	// Notification configures the default data-notification gate.
	Notification NotificationConfig `koanf:"notification"`

	// AngleOfArrivalNeeded requests azimuth/elevation when a technology
	// supports it.
	AngleOfArrivalNeeded bool `koanf:"angle_of_arrival_needed"`

	// SensorFusionEnabled enables the multi-technology data fuser.
	SensorFusionEnabled bool `koanf:"sensor_fusion_enabled"`

	// OOBCapabilityTimeout is the OOB initiator's per-step timeout (each
	// send, the capability request/response exchange, and stop).
	OOBCapabilityTimeout time.Duration `koanf:"oob_capability_timeout"`

	// OOBSetConfigTimeout is the OOB responder's per-step timeout (waiting
	// for the capability request, sending the response, and waiting for
	// the SetConfiguration message).
	OOBSetConfigTimeout time.Duration `koanf:"oob_set_config_timeout"`
}

// NotificationConfig mirrors model.NotificationConfig in a koanf-friendly,
// string-keyed form.
type NotificationConfig struct {
	// Kind is one of "disable", "enable", "proximity_level",
	// "proximity_edge".
	Kind   string `koanf:"kind"`
	NearCm uint32 `koanf:"near_cm"`
	FarCm  uint32 `koanf:"far_cm"`
}

// PeerConfig describes a declarative ranging peer from the configuration
// file. Entries are read at daemon startup only; a SIGHUP reload changes
// the log level and does not re-read peers.
type PeerConfig struct {
	// Device is the peer's RangingDevice identity, a UUID string.
	Device string `koanf:"device"`

	// Address is the OOB transport dial address (host:port) used to reach
	// the peer's responder.
	Address string `koanf:"address"`

	// Role is this side's role in the exchange: "initiator" or
	// "responder".
	Role string `koanf:"role"`
}

// PeerKey returns a unique identifier for the peer entry, used to detect
// duplicate peer entries during validation.
func (pc PeerConfig) PeerKey() string {
	return pc.Device + "|" + pc.Address + "|" + pc.Role
}

// DeviceID parses Device as a model.RangingDevice.
func (pc PeerConfig) DeviceID() (model.RangingDevice, error) {
	if pc.Device == "" {
		return model.RangingDevice{}, fmt.Errorf("peer device: %w", ErrInvalidPeerDevice)
	}
	id, err := model.ParseRangingDevice(pc.Device)
	if err != nil {
		return model.RangingDevice{}, fmt.Errorf("peer device %q: %w: %w", pc.Device, ErrInvalidPeerDevice, err)
	}
	return id, nil
}

// DeviceRole parses Role as a model.DeviceRole.
func (pc PeerConfig) DeviceRole() (model.DeviceRole, error) {
	switch strings.ToLower(pc.Role) {
	case "initiator":
		return model.RoleInitiator, nil
	case "responder":
		return model.RoleResponder, nil
	default:
		return 0, fmt.Errorf("peer role %q: %w", pc.Role, ErrInvalidPeerRole)
	}
}

// -------------------------------------------------------------------------
// Translating config into ranging-core values
// -------------------------------------------------------------------------

// techNames maps the recognized configuration names to tech.Technology
// values.
var techNames = map[string]tech.Technology{
	"UWB":  tech.UWB,
	"CS":   tech.CS,
	"RTT":  tech.RTT,
	"RSSI": tech.RSSI,
}

// ParseTechnology maps a configuration technology name to a tech.Technology.
func ParseTechnology(name string) (tech.Technology, error) {
	t, ok := techNames[strings.ToUpper(name)]
	if !ok {
		return 0, fmt.Errorf("technology %q: %w", name, ErrUnknownTechnology)
	}
	return t, nil
}

// SupportedSet builds the tech.Set named by SupportedTechnologies.
func (rc RangingConfig) SupportedSet() (tech.Set, error) {
	var s tech.Set
	for _, name := range rc.SupportedTechnologies {
		t, err := ParseTechnology(name)
		if err != nil {
			return 0, err
		}
		s = s.Add(t)
	}
	return s, nil
}

// LocalCapabilities builds the model.LocalCapabilities this configuration
// describes. Per-technology detailed records (UWB/RTT) are left nil; a real
// device deployment supplies those from hardware, not from the daemon
// config file.
func (rc RangingConfig) LocalCapabilities() (model.LocalCapabilities, error) {
	set, err := rc.SupportedSet()
	if err != nil {
		return model.LocalCapabilities{}, err
	}
	return model.LocalCapabilities{Supported: set}, nil
}

// EngineMode builds the engine.Mode this configuration names.
func (rc RangingConfig) EngineMode() (engine.Mode, error) {
	spec := rc.Mode
	if spec == "" {
		spec = "best_available"
	}

	if name, rest, ok := strings.Cut(spec, ":"); ok && strings.EqualFold(name, "fallback") {
		parts := strings.Split(rest, ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("ranging.mode %q: %w", spec, ErrInvalidRangingMode)
		}
		primary, err := ParseTechnology(parts[0])
		if err != nil {
			return nil, fmt.Errorf("ranging.mode %q: %w", spec, err)
		}
		secondary, err := ParseTechnology(parts[1])
		if err != nil {
			return nil, fmt.Errorf("ranging.mode %q: %w", spec, err)
		}
		return engine.Fallback(primary, secondary), nil
	}

	switch strings.ToLower(spec) {
	case "uwb_only":
		return engine.UWBOnly(), nil
	case "best_available":
		return engine.BestAvailable(), nil
	default:
		return nil, fmt.Errorf("ranging.mode %q: %w", spec, ErrInvalidRangingMode)
	}
}

// notificationKinds maps the recognized configuration names to
// model.NotificationKind values.
var notificationKinds = map[string]model.NotificationKind{
	"disable":          model.NotificationDisable,
	"enable":           model.NotificationEnable,
	"proximity_level":  model.NotificationProximityLevel,
	"proximity_edge":   model.NotificationProximityEdge,
}

// SessionConfig builds the model.SessionConfig this configuration
// describes, applied to every declarative peer.
func (rc RangingConfig) SessionConfig() (model.SessionConfig, error) {
	kind, ok := notificationKinds[strings.ToLower(rc.Notification.Kind)]
	if !ok {
		return model.SessionConfig{}, fmt.Errorf("ranging.notification.kind %q: %w", rc.Notification.Kind, ErrInvalidNotificationKind)
	}

	notif := model.NotificationConfig{
		Kind:   kind,
		NearCm: rc.Notification.NearCm,
		FarCm:  rc.Notification.FarCm,
	}
	if err := notif.Validate(); err != nil {
		return model.SessionConfig{}, fmt.Errorf("ranging.notification: %w", err)
	}

	return model.SessionConfig{
		DataNotification:        notif,
		AngleOfArrivalNeeded:    rc.AngleOfArrivalNeeded,
		SensorFusionEnabled:     rc.SensorFusionEnabled,
		RangingMeasurementsLimit: 0,
	}, nil
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:    ":7001",
			OOBAddr: ":7002",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Ranging: RangingConfig{
			Mode: "best_available",
			// CS/RSSI need no detailed per-technology capability record
			// (spec section 4.2); UWB/RTT do and must come from a
			// hardware-backed CapabilitiesProvider, not this default.
			SupportedTechnologies: []string{"CS"},
			Notification: NotificationConfig{
				Kind: "enable",
			},
			OOBCapabilityTimeout: 4 * time.Second,
			OOBSetConfigTimeout:  4 * time.Second,
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for rangingd configuration.
// Variables are named RANGINGD_<section>_<key>, e.g., RANGINGD_SERVER_ADDR.
const envPrefix = "RANGINGD_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (RANGINGD_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	RANGINGD_SERVER_ADDR   -> server.addr
//	RANGINGD_METRICS_ADDR  -> metrics.addr
//	RANGINGD_METRICS_PATH  -> metrics.path
//	RANGINGD_LOG_LEVEL     -> log.level
//	RANGINGD_LOG_FORMAT    -> log.format
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Load defaults first.
	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	// Load YAML file on top of defaults.
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	// Load environment variable overrides on top of YAML.
	// RANGINGD_SERVER_ADDR -> server.addr (strip prefix, lowercase, _ -> .).
	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms RANGINGD_SERVER_ADDR -> server.addr.
// Strips the RANGINGD_ prefix, lowercases, and replaces _ with .
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"server.addr":                     defaults.Server.Addr,
		"server.oob_addr":                 defaults.Server.OOBAddr,
		"metrics.addr":                    defaults.Metrics.Addr,
		"metrics.path":                    defaults.Metrics.Path,
		"log.level":                       defaults.Log.Level,
		"log.format":                      defaults.Log.Format,
		"ranging.mode":                    defaults.Ranging.Mode,
		"ranging.supported_technologies":  defaults.Ranging.SupportedTechnologies,
		"ranging.notification.kind":       defaults.Ranging.Notification.Kind,
		"ranging.notification.near_cm":    defaults.Ranging.Notification.NearCm,
		"ranging.notification.far_cm":     defaults.Ranging.Notification.FarCm,
		"ranging.oob_capability_timeout":  defaults.Ranging.OOBCapabilityTimeout.String(),
		"ranging.oob_set_config_timeout": defaults.Ranging.OOBSetConfigTimeout.String(),
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyServerAddr indicates the introspection server listen address
	// is empty.
	ErrEmptyServerAddr = errors.New("server.addr must not be empty")

	// ErrEmptyOOBAddr indicates the OOB transport listen address is empty.
	ErrEmptyOOBAddr = errors.New("server.oob_addr must not be empty")

	// ErrInvalidRangingMode indicates ranging.mode does not name a
	// recognized policy.
	ErrInvalidRangingMode = errors.New("ranging.mode is not a recognized policy")

	// ErrUnknownTechnology indicates a technology name does not match any
	// defined tech.Technology.
	ErrUnknownTechnology = errors.New("unknown technology name")

	// ErrInvalidNotificationKind indicates ranging.notification.kind does
	// not name a recognized kind.
	ErrInvalidNotificationKind = errors.New("ranging.notification.kind is not a recognized kind")

	// ErrInvalidPeerDevice indicates a peer entry has an invalid device
	// UUID.
	ErrInvalidPeerDevice = errors.New("peer device is invalid")

	// ErrInvalidPeerRole indicates a peer entry has an unrecognized role.
	ErrInvalidPeerRole = errors.New("peer role must be initiator or responder")

	// ErrDuplicatePeerKey indicates two peer entries share the same
	// (device, address, role) key.
	ErrDuplicatePeerKey = errors.New("duplicate peer key")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Server.Addr == "" {
		return ErrEmptyServerAddr
	}

	if cfg.Server.OOBAddr == "" {
		return ErrEmptyOOBAddr
	}

	if _, err := cfg.Ranging.SupportedSet(); err != nil {
		return err
	}

	if _, err := cfg.Ranging.EngineMode(); err != nil {
		return err
	}

	if _, err := cfg.Ranging.SessionConfig(); err != nil {
		return err
	}

	if err := validatePeers(cfg.Peers); err != nil {
		return err
	}

	return nil
}

// validatePeers checks each declarative peer entry for correctness.
func validatePeers(peers []PeerConfig) error {
	seen := make(map[string]struct{}, len(peers))

	for i, pc := range peers {
		if _, err := pc.DeviceID(); err != nil {
			return fmt.Errorf("peers[%d]: %w", i, err)
		}

		if _, err := pc.DeviceRole(); err != nil {
			return fmt.Errorf("peers[%d]: %w", i, err)
		}

		key := pc.PeerKey()
		if _, dup := seen[key]; dup {
			return fmt.Errorf("peers[%d] key %q: %w", i, key, ErrDuplicatePeerKey)
		}
		seen[key] = struct{}{}
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
