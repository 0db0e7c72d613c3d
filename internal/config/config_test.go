package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/multirange/core/internal/config"
	"github.com/multirange/core/internal/ranging/engine"
	"github.com/multirange/core/internal/ranging/model"
	"github.com/multirange/core/internal/ranging/tech"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if cfg.Server.Addr != ":7001" {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, ":7001")
	}

	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}

	if cfg.Ranging.Mode != "best_available" {
		t.Errorf("Ranging.Mode = %q, want %q", cfg.Ranging.Mode, "best_available")
	}

	if cfg.Ranging.OOBCapabilityTimeout != 4*time.Second {
		t.Errorf("Ranging.OOBCapabilityTimeout = %v, want %v", cfg.Ranging.OOBCapabilityTimeout, 4*time.Second)
	}

	// Defaults must pass validation.
	if err := config.Validate(cfg); err != nil {
		t.Errorf("DefaultConfig() failed validation: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	yamlContent := `
server:
  addr: ":60000"
metrics:
  addr: ":9200"
  path: "/custom-metrics"
log:
  level: "debug"
  format: "text"
ranging:
  mode: "uwb_only"
  supported_technologies: ["UWB"]
  notification:
    kind: "enable"
  oob_capability_timeout: "2s"
  oob_set_config_timeout: "2s"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Server.Addr != ":60000" {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, ":60000")
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Metrics.Path != "/custom-metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/custom-metrics")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}

	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}

	if cfg.Ranging.Mode != "uwb_only" {
		t.Errorf("Ranging.Mode = %q, want %q", cfg.Ranging.Mode, "uwb_only")
	}

	if cfg.Ranging.OOBCapabilityTimeout != 2*time.Second {
		t.Errorf("Ranging.OOBCapabilityTimeout = %v, want %v", cfg.Ranging.OOBCapabilityTimeout, 2*time.Second)
	}

	mode, err := cfg.Ranging.EngineMode()
	if err != nil {
		t.Fatalf("EngineMode() error: %v", err)
	}
	if mode.String() != engine.UWBOnly().String() {
		t.Errorf("EngineMode() = %v, want UWBOnly", mode)
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	t.Parallel()

	// Partial YAML: only override server.addr and log.level.
	// Everything else should inherit from defaults.
	yamlContent := `
server:
  addr: ":55555"
log:
  level: "warn"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	// Overridden values.
	if cfg.Server.Addr != ":55555" {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, ":55555")
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}

	// Default values should be preserved.
	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want default %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want default %q", cfg.Metrics.Path, "/metrics")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want default %q", cfg.Log.Format, "json")
	}

	if cfg.Ranging.Mode != "best_available" {
		t.Errorf("Ranging.Mode = %q, want default %q", cfg.Ranging.Mode, "best_available")
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr error
	}{
		{
			name: "empty server addr",
			modify: func(cfg *config.Config) {
				cfg.Server.Addr = ""
			},
			wantErr: config.ErrEmptyServerAddr,
		},
		{
			name: "empty oob addr",
			modify: func(cfg *config.Config) {
				cfg.Server.OOBAddr = ""
			},
			wantErr: config.ErrEmptyOOBAddr,
		},
		{
			name: "unknown supported technology",
			modify: func(cfg *config.Config) {
				cfg.Ranging.SupportedTechnologies = []string{"LORA"}
			},
			wantErr: config.ErrUnknownTechnology,
		},
		{
			name: "invalid ranging mode",
			modify: func(cfg *config.Config) {
				cfg.Ranging.Mode = "bogus"
			},
			wantErr: config.ErrInvalidRangingMode,
		},
		{
			name: "invalid fallback mode technology",
			modify: func(cfg *config.Config) {
				cfg.Ranging.Mode = "fallback:UWB,LORA"
			},
			wantErr: config.ErrUnknownTechnology,
		},
		{
			name: "invalid notification kind",
			modify: func(cfg *config.Config) {
				cfg.Ranging.Notification.Kind = "bogus"
			},
			wantErr: config.ErrInvalidNotificationKind,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			tt.modify(cfg)

			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRangingConfigEngineModeFallback(t *testing.T) {
	t.Parallel()

	rc := config.RangingConfig{Mode: "fallback:UWB,CS"}
	mode, err := rc.EngineMode()
	if err != nil {
		t.Fatalf("EngineMode() error: %v", err)
	}

	want := engine.Fallback(tech.UWB, tech.CS)
	if mode.String() != want.String() {
		t.Errorf("EngineMode() = %v, want %v", mode, want)
	}
}

func TestRangingConfigLocalCapabilities(t *testing.T) {
	t.Parallel()

	rc := config.RangingConfig{SupportedTechnologies: []string{"UWB", "CS"}}
	caps, err := rc.LocalCapabilities()
	if err != nil {
		t.Fatalf("LocalCapabilities() error: %v", err)
	}

	if !caps.Supported.Has(tech.UWB) || !caps.Supported.Has(tech.CS) {
		t.Errorf("LocalCapabilities().Supported = %v, want UWB and CS", caps.Supported)
	}
	if caps.Supported.Has(tech.RTT) {
		t.Error("LocalCapabilities().Supported should not include RTT")
	}
}

func TestRangingConfigSessionConfig(t *testing.T) {
	t.Parallel()

	rc := config.RangingConfig{
		Notification: config.NotificationConfig{
			Kind:   "proximity_edge",
			NearCm: 10,
			FarCm:  100,
		},
		AngleOfArrivalNeeded: true,
		SensorFusionEnabled:  true,
	}

	sc, err := rc.SessionConfig()
	if err != nil {
		t.Fatalf("SessionConfig() error: %v", err)
	}

	if sc.DataNotification.Kind != model.NotificationProximityEdge {
		t.Errorf("DataNotification.Kind = %v, want %v", sc.DataNotification.Kind, model.NotificationProximityEdge)
	}
	if !sc.AngleOfArrivalNeeded {
		t.Error("AngleOfArrivalNeeded = false, want true")
	}
	if !sc.SensorFusionEnabled {
		t.Error("SensorFusionEnabled = false, want true")
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "DEBUG", want: slog.LevelDebug},
		{input: "info", want: slog.LevelInfo},
		{input: "INFO", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "WARN", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "Error", want: slog.LevelError},
		{input: "unknown", want: slog.LevelInfo},
		{input: "", want: slog.LevelInfo},
		{input: "trace", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got := config.ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadNonexistentFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load("/nonexistent/path/config.yml")
	if err == nil {
		t.Fatal("Load() returned nil error for nonexistent file")
	}
}

// -------------------------------------------------------------------------
// Declarative peer tests
// -------------------------------------------------------------------------

func TestLoadWithPeers(t *testing.T) {
	t.Parallel()

	yamlContent := `
server:
  addr: ":7001"
peers:
  - device: "11111111-1111-1111-1111-111111111111"
    address: "10.0.0.2:9400"
    role: "initiator"
  - device: "22222222-2222-2222-2222-222222222222"
    address: "10.0.1.2:9400"
    role: "responder"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if len(cfg.Peers) != 2 {
		t.Fatalf("Peers count = %d, want 2", len(cfg.Peers))
	}

	p1 := cfg.Peers[0]
	if p1.Address != "10.0.0.2:9400" {
		t.Errorf("Peers[0].Address = %q, want %q", p1.Address, "10.0.0.2:9400")
	}

	role, err := p1.DeviceRole()
	if err != nil {
		t.Fatalf("DeviceRole() error: %v", err)
	}
	if role != model.RoleInitiator {
		t.Errorf("Peers[0].DeviceRole() = %v, want %v", role, model.RoleInitiator)
	}

	if cfg.Peers[0].PeerKey() == cfg.Peers[1].PeerKey() {
		t.Error("Peers[0] and Peers[1] have the same key, expected different")
	}
}

func TestValidatePeerErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr error
	}{
		{
			name: "empty peer device",
			modify: func(cfg *config.Config) {
				cfg.Peers = []config.PeerConfig{
					{Device: "", Address: "10.0.0.2:9400", Role: "initiator"},
				}
			},
			wantErr: config.ErrInvalidPeerDevice,
		},
		{
			name: "invalid peer device",
			modify: func(cfg *config.Config) {
				cfg.Peers = []config.PeerConfig{
					{Device: "not-a-uuid", Address: "10.0.0.2:9400", Role: "initiator"},
				}
			},
			wantErr: config.ErrInvalidPeerDevice,
		},
		{
			name: "invalid peer role",
			modify: func(cfg *config.Config) {
				cfg.Peers = []config.PeerConfig{
					{Device: "11111111-1111-1111-1111-111111111111", Address: "10.0.0.2:9400", Role: "bogus"},
				}
			},
			wantErr: config.ErrInvalidPeerRole,
		},
		{
			name: "duplicate peer keys",
			modify: func(cfg *config.Config) {
				p := config.PeerConfig{Device: "11111111-1111-1111-1111-111111111111", Address: "10.0.0.2:9400", Role: "initiator"}
				cfg.Peers = []config.PeerConfig{p, p}
			},
			wantErr: config.ErrDuplicatePeerKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			tt.modify(cfg)

			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPeerConfigKey(t *testing.T) {
	t.Parallel()

	pc := config.PeerConfig{
		Device:  "11111111-1111-1111-1111-111111111111",
		Address: "10.0.0.2:9400",
		Role:    "initiator",
	}

	want := "11111111-1111-1111-1111-111111111111|10.0.0.2:9400|initiator"
	if got := pc.PeerKey(); got != want {
		t.Errorf("PeerKey() = %q, want %q", got, want)
	}
}

func TestPeerConfigDeviceID(t *testing.T) {
	t.Parallel()

	pc := config.PeerConfig{Device: "11111111-1111-1111-1111-111111111111"}
	dev, err := pc.DeviceID()
	if err != nil {
		t.Fatalf("DeviceID() error: %v", err)
	}
	if dev.String() != "11111111-1111-1111-1111-111111111111" {
		t.Errorf("DeviceID() = %s, want 11111111-1111-1111-1111-111111111111", dev)
	}
}

// -------------------------------------------------------------------------
// Environment variable override tests
// -------------------------------------------------------------------------

func TestLoadEnvOverrides(t *testing.T) {
	// Environment variable tests cannot be parallel because they modify
	// process-wide state (os.Setenv).

	yamlContent := `
server:
  addr: ":7001"
log:
  level: "info"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("RANGINGD_SERVER_ADDR", ":60000")
	t.Setenv("RANGINGD_LOG_LEVEL", "debug")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Server.Addr != ":60000" {
		t.Errorf("Server.Addr = %q, want %q (from env)", cfg.Server.Addr, ":60000")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (from env)", cfg.Log.Level, "debug")
	}
}

func TestLoadEnvOverridesMetrics(t *testing.T) {
	yamlContent := `
server:
  addr: ":7001"
metrics:
  addr: ":9100"
  path: "/metrics"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("RANGINGD_METRICS_ADDR", ":9200")
	t.Setenv("RANGINGD_METRICS_PATH", "/custom")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q (from env)", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Metrics.Path != "/custom" {
		t.Errorf("Metrics.Path = %q, want %q (from env)", cfg.Metrics.Path, "/custom")
	}
}

// writeTemp creates a temporary YAML file and returns its path.
// The file is automatically cleaned up when the test finishes.
func writeTemp(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "rangingd.yml")

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	return path
}
