// Package config loads and validates the TOML configuration surface
// described in SPEC_FULL.md §4.7 / spec.md §6, using
// github.com/BurntSushi/toml the way other_examples/rakusan-eibs7-controller
// does for its own config.toml.
package config

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

//go:embed default.toml
var defaultConfigFS embed.FS

const defaultConfigAsset = "default.toml"

// ConfigError is a fatal startup error: missing interface, zero total
// capacity, duplicate CAN interface names, etc. (spec.md §7).
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string { return e.msg }

func configErrorf(format string, args ...any) *ConfigError {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

// MQTTConfig is the `[mqtt]` table.
type MQTTConfig struct {
	Activated bool    `toml:"ACTIVATED"`
	Topic     string  `toml:"TOPIC"`
	Broker    string  `toml:"BROKER"`
	Port      int     `toml:"PORT"`
	Interval  float64 `toml:"INTERVAL"`
}

// BatteryConfig is the `[battery]` table.
type BatteryConfig struct {
	ILimCharge    float64 `toml:"I-LIM-CHARGE"`
	ILimDischarge float64 `toml:"I-LIM-DISCHARGE"`
	ITotScaling   float64 `toml:"I-TOT-SCALING"`
	ITotOffset    float64 `toml:"I-TOT-OFFSET"`
}

// BMSOutConfig is one `[[bmses-out]]` entry.
type BMSOutConfig struct {
	CANIf              string  `toml:"CAN-IF"`
	Description        string  `toml:"DESCRIPTION"`
	ILimCharge         float64 `toml:"I-LIM-CHARGE"`
	ILimDischarge      float64 `toml:"I-LIM-DISCHARGE"`
	IScaling           float64 `toml:"I-SCALING"`
	IOffset            float64 `toml:"I-OFFSET"`
	PushMinDelay       float64 `toml:"PUSH-MIN-DELAY"`
	SendSyncActivated  bool    `toml:"SEND-SYNC-ACTIVATED"`
	SyncInterval       float64 `toml:"SYNC-INTERVAL"`
}

// BMSInConfig is one `[[bmses-in]]` entry.
type BMSInConfig struct {
	CANIf        string   `toml:"CAN-IF"`
	Description  string   `toml:"DESCRIPTION"`
	CapacityAh   float64  `toml:"CAPACITY-AH"`
	PollInterval *float64 `toml:"POLL-INTERVAL"`
}

// AppConfig is the full parsed configuration.
type AppConfig struct {
	GatewayActivated bool           `toml:"GATEWAY-ACTIVATED"`
	MQTT             MQTTConfig     `toml:"mqtt"`
	Battery          BatteryConfig  `toml:"battery"`
	BMSesIn          []BMSInConfig  `toml:"bmses-in"`
	BMSesOut         []BMSOutConfig `toml:"bmses-out"`
}

// defaults mirrors original_source/app_config.py's dataclass defaults.
func defaults() AppConfig {
	return AppConfig{
		GatewayActivated: false,
		MQTT: MQTTConfig{
			Activated: true,
			Topic:     "tele/bms/state",
			Broker:    "localhost",
			Port:      1883,
			Interval:  10.0,
		},
		Battery: BatteryConfig{
			ILimCharge:    300.0,
			ILimDischarge: 300.0,
			ITotScaling:   1.0,
			ITotOffset:    0.0,
		},
	}
}

// Load reads and validates the configuration file at path. Missing
// fields fall back to the same defaults as original_source/app_config.py.
func Load(path string) (*AppConfig, error) {
	cfg := defaults()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, configErrorf("reading configuration file %s: %v", path, err)
	}
	for i := range cfg.BMSesOut {
		if cfg.BMSesOut[i].IScaling == 0 && cfg.BMSesOut[i].ILimCharge == 0 && cfg.BMSesOut[i].ILimDischarge == 0 {
			// A [[bmses-out]] entry with no per-inverter scaling/limits at
			// all was very likely left at TOML's zero value rather than
			// intentionally configured; BurntSushi/toml has no notion of
			// "unset" for scalar fields, so this is the closest faithful
			// approximation of dataclass_binder's per-field defaulting.
			cfg.BMSesOut[i].IScaling = 1.0
		}
		if cfg.BMSesOut[i].SyncInterval == 0 {
			cfg.BMSesOut[i].SyncInterval = 5.0
		}
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the invariants named in spec.md §7: missing
// interfaces, zero total capacity, duplicate CAN interface names.
func Validate(cfg *AppConfig) error {
	if len(cfg.BMSesIn) == 0 {
		return configErrorf("no [[bmses-in]] entries configured")
	}
	if len(cfg.BMSesOut) == 0 {
		return configErrorf("no [[bmses-out]] entries configured")
	}

	seen := make(map[string]bool)
	total := 0.0
	for _, in := range cfg.BMSesIn {
		if in.CANIf == "" {
			return configErrorf("bmses-in entry %q missing CAN-IF", in.Description)
		}
		if seen[in.CANIf] {
			return configErrorf("duplicate CAN-IF %q across bmses-in entries", in.CANIf)
		}
		seen[in.CANIf] = true
		if in.CapacityAh < 0 {
			return configErrorf("bmses-in %q has negative CAPACITY-AH", in.Description)
		}
		total += in.CapacityAh
	}
	if total <= 0 {
		return configErrorf("total configured battery capacity is zero")
	}

	outSeen := make(map[string]bool)
	for _, out := range cfg.BMSesOut {
		if out.CANIf == "" {
			return configErrorf("bmses-out entry %q missing CAN-IF", out.Description)
		}
		if outSeen[out.CANIf] {
			return configErrorf("duplicate CAN-IF %q across bmses-out entries", out.CANIf)
		}
		outSeen[out.CANIf] = true
	}
	return nil
}

// InitTemplate copies the embedded default configuration template to
// path, creating parent directories as needed, matching the `--init`
// behavior of original_source/app_config.py's init_or_read_from_config_file.
func InitTemplate(path string) error {
	data, err := defaultConfigFS.ReadFile(defaultConfigAsset)
	if err != nil {
		return fmt.Errorf("reading embedded default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config template to %s: %w", path, err)
	}
	return nil
}

// DefaultPath returns the user config path, mirroring
// ~/.bms_gateway/bms_config.toml from original_source.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".bms_gateway", "bms_config.toml"), nil
}
