package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bms_config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeTemp(t, `
GATEWAY-ACTIVATED = true

[mqtt]
ACTIVATED = true
TOPIC = "tele/bms/state"
BROKER = "localhost"
PORT = 1883
INTERVAL = 5.0

[battery]
I-LIM-CHARGE = 700.0
I-LIM-DISCHARGE = 700.0
I-TOT-SCALING = 1.0
I-TOT-OFFSET = 0.0

[[bmses-in]]
CAN-IF = "can_in_1"
DESCRIPTION = "Rack A"
CAPACITY-AH = 100.0

[[bmses-out]]
CAN-IF = "can_out_1"
DESCRIPTION = "Inverter 1"
I-LIM-CHARGE = 400.0
I-LIM-DISCHARGE = 400.0
I-SCALING = 1.0
I-OFFSET = 0.0
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.GatewayActivated)
	assert.Equal(t, 700.0, cfg.Battery.ILimCharge)
	assert.Len(t, cfg.BMSesIn, 1)
	assert.Equal(t, 5.0, cfg.MQTT.Interval)
}

func TestLoadZeroCapacityIsConfigError(t *testing.T) {
	path := writeTemp(t, `
GATEWAY-ACTIVATED = true

[[bmses-in]]
CAN-IF = "can_in_1"
DESCRIPTION = "Rack A"
CAPACITY-AH = 0.0

[[bmses-out]]
CAN-IF = "can_out_1"
DESCRIPTION = "Inverter 1"
`)
	_, err := Load(path)
	require.Error(t, err)
	var cerr *ConfigError
	assert.ErrorAs(t, err, &cerr)
}

func TestLoadDuplicateInterfaceIsConfigError(t *testing.T) {
	path := writeTemp(t, `
[[bmses-in]]
CAN-IF = "can_in_1"
DESCRIPTION = "Rack A"
CAPACITY-AH = 100.0

[[bmses-in]]
CAN-IF = "can_in_1"
DESCRIPTION = "Rack B"
CAPACITY-AH = 100.0

[[bmses-out]]
CAN-IF = "can_out_1"
DESCRIPTION = "Inverter 1"
`)
	_, err := Load(path)
	require.Error(t, err)
	var cerr *ConfigError
	assert.ErrorAs(t, err, &cerr)
}

func TestInitTemplateWritesFile(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "nested", "bms_config.toml")
	require.NoError(t, InitTemplate(dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Contains(t, string(data), "GATEWAY-ACTIVATED")
}
