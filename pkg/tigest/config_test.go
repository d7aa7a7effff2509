package tigest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	t.Setenv("TIGEST_API_KEY", "test-key")

	c := NewConfig()

	assert.Equal(t, DefaultModel, c.Model)
	assert.Equal(t, DefaultVoice, c.Voice)
	assert.Equal(t, 300*time.Second, c.MaxCallDuration)
	assert.Equal(t, 15*time.Second, c.SilenceTimeout)
	assert.Equal(t, 16000, c.InputSampleRate)
	assert.Equal(t, 24000, c.OutputSampleRate)
	assert.Equal(t, 2048, c.BlockSize)
	assert.Equal(t, 0.005, c.NoiseFloor)
	assert.Equal(t, 0.003, c.MinRMSThreshold)
	assert.Equal(t, 1.15, c.VADSensitivity)
	assert.Equal(t, 15, c.HangoverBlocks)
	assert.NotEmpty(t, c.SystemInstruction)
	assert.NotEmpty(t, c.Greeting)
}

func TestNewConfig_EnvOverrides(t *testing.T) {
	t.Setenv("TIGEST_MODEL", "models/custom-model")
	t.Setenv("TIGEST_VOICE", "Puck")
	t.Setenv("TIGEST_API_KEY_URL", "https://broker.example.com/key")
	t.Setenv("TIGEST_MAX_CALL_SECONDS", "120")
	t.Setenv("TIGEST_SILENCE_TIMEOUT_MS", "5000")
	t.Setenv("TIGEST_AUDIO_DEVICE_ID", "3")
	t.Setenv("TIGEST_VAD_SENSITIVITY", "1.30")
	t.Setenv("TIGEST_DEBUG_WEBSOCKET", "true")

	c := NewConfig()

	assert.Equal(t, "models/custom-model", c.Model)
	assert.Equal(t, "Puck", c.Voice)
	assert.Equal(t, "https://broker.example.com/key", c.BrokerURL)
	assert.Equal(t, 120*time.Second, c.MaxCallDuration)
	assert.Equal(t, 5*time.Second, c.SilenceTimeout)
	require.NotNil(t, c.AudioDeviceID)
	assert.Equal(t, 3, *c.AudioDeviceID)
	assert.Equal(t, 1.30, c.VADSensitivity)
	assert.True(t, c.DebugWebsocket)
}

func TestNewConfig_IgnoresBadNumericEnv(t *testing.T) {
	t.Setenv("TIGEST_MAX_CALL_SECONDS", "not-a-number")
	t.Setenv("TIGEST_SILENCE_TIMEOUT_MS", "-50")

	c := NewConfig()

	assert.Equal(t, DefaultMaxCallDuration, c.MaxCallDuration)
	assert.Equal(t, DefaultSilenceTimeout, c.SilenceTimeout)
}

func TestConfig_ValidateRequiresCredentialSource(t *testing.T) {
	t.Setenv("TIGEST_API_KEY", "")
	t.Setenv("TIGEST_API_KEY_URL", "")

	c := NewConfig()
	issues := c.Validate()
	require.NotEmpty(t, issues)
	assert.Contains(t, issues[0], "credential source")

	c.APIKey = "some-key"
	assert.Empty(t, c.Validate())
}

func TestConfig_ValidateRejectsBadValues(t *testing.T) {
	c := NewConfig()
	c.APIKey = "key"
	c.BrokerURL = "not-a-url"
	c.Model = ""
	c.BlockSize = 0
	c.VADSensitivity = 0.5

	issues := c.Validate()
	assert.Len(t, issues, 4)
}

func TestConfig_BlockDuration(t *testing.T) {
	c := &Config{BlockSize: 2048, InputSampleRate: 16000}
	assert.Equal(t, 128*time.Millisecond, c.BlockDuration())
}
