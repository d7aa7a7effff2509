package tigest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockWithRMS builds a block whose RMS is exactly the given level.
func blockWithRMS(level float64, size int) []float32 {
	block := make([]float32, size)
	for i := range block {
		block[i] = float32(level)
	}
	return block
}

func vadConfig() *Config {
	return &Config{
		NoiseFloor:      DefaultNoiseFloor,
		MinRMSThreshold: DefaultMinRMSThreshold,
		VADSensitivity:  DefaultVADSensitivity,
		HangoverBlocks:  DefaultHangoverBlocks,
	}
}

func TestVADGate_DetectsSpeechAboveThreshold(t *testing.T) {
	gate := NewVADGate(vadConfig(), nil)

	// Floor 0.005, sensitivity 1.15 => threshold 0.00575.
	decision := gate.Process(blockWithRMS(0.01, DefaultBlockSize))

	assert.True(t, decision.Speaking)
	assert.True(t, decision.Forward)
	assert.InDelta(t, 0.01, decision.RMS, 1e-6)
}

func TestVADGate_QuietBlockIsNotSpeech(t *testing.T) {
	gate := NewVADGate(vadConfig(), nil)

	decision := gate.Process(blockWithRMS(0.001, DefaultBlockSize))

	assert.False(t, decision.Speaking)
	assert.False(t, decision.Forward)
}

func TestVADGate_MinThresholdClampsLowFloor(t *testing.T) {
	cfg := vadConfig()
	cfg.NoiseFloor = 0.0001
	gate := NewVADGate(cfg, nil)

	// Floor*sensitivity is far below the minimum, so the minimum rules:
	// 0.002 < 0.003 must not trip the gate.
	decision := gate.Process(blockWithRMS(0.002, DefaultBlockSize))

	assert.False(t, decision.Speaking)
}

func TestVADGate_HangoverKeepsForwarding(t *testing.T) {
	cfg := vadConfig()
	cfg.HangoverBlocks = 3
	gate := NewVADGate(cfg, nil)

	require.True(t, gate.Process(blockWithRMS(0.02, DefaultBlockSize)).Speaking)

	// Silence for hangover blocks: still forwarded.
	for i := 0; i < 3; i++ {
		decision := gate.Process(blockWithRMS(0, DefaultBlockSize))
		assert.True(t, decision.Forward, "block %d within hangover should forward", i)
	}

	// Hangover exhausted: silence is gated again.
	decision := gate.Process(blockWithRMS(0, DefaultBlockSize))
	assert.False(t, decision.Forward)
	assert.False(t, decision.Speaking)
}

func TestVADGate_SpeakingFlagHoldsThroughHangover(t *testing.T) {
	cfg := vadConfig()
	cfg.HangoverBlocks = 2
	gate := NewVADGate(cfg, nil)

	require.True(t, gate.Process(blockWithRMS(0.02, DefaultBlockSize)).Speaking)

	// Every forwarded hangover block still counts as speech, the last
	// one included.
	first := gate.Process(blockWithRMS(0, DefaultBlockSize))
	assert.True(t, first.Forward)
	assert.True(t, first.Speaking)
	last := gate.Process(blockWithRMS(0, DefaultBlockSize))
	assert.True(t, last.Forward)
	assert.True(t, last.Speaking)

	// The flag drops with the first block that is gated again.
	after := gate.Process(blockWithRMS(0, DefaultBlockSize))
	assert.False(t, after.Forward)
	assert.False(t, after.Speaking)
}

func TestVADGate_SpeechMidHangoverRestartsWindow(t *testing.T) {
	cfg := vadConfig()
	cfg.HangoverBlocks = 2
	gate := NewVADGate(cfg, nil)

	require.True(t, gate.Process(blockWithRMS(0.02, DefaultBlockSize)).Speaking)
	require.True(t, gate.Process(blockWithRMS(0, DefaultBlockSize)).Forward)

	// Speech again before the window runs out.
	require.True(t, gate.Process(blockWithRMS(0.02, DefaultBlockSize)).Speaking)

	// Full window available again.
	assert.True(t, gate.Process(blockWithRMS(0, DefaultBlockSize)).Forward)
	assert.True(t, gate.Process(blockWithRMS(0, DefaultBlockSize)).Forward)
	assert.False(t, gate.Process(blockWithRMS(0, DefaultBlockSize)).Forward)
}

func TestVADGate_FloorAdaptsOnlyWhileQuiet(t *testing.T) {
	gate := NewVADGate(vadConfig(), nil)

	before := gate.NoiseFloor()
	gate.Process(blockWithRMS(0.004, DefaultBlockSize))
	adapted := gate.NoiseFloor()
	assert.NotEqual(t, before, adapted, "floor should drift toward ambient level while quiet")

	// Trip the gate; the floor must freeze while speaking.
	gate.Process(blockWithRMS(0.05, DefaultBlockSize))
	frozen := gate.NoiseFloor()
	gate.Process(blockWithRMS(0.05, DefaultBlockSize))
	assert.Equal(t, frozen, gate.NoiseFloor())
}

func TestVADGate_FloorFrozenWhileAgentSpeaks(t *testing.T) {
	agentSpeaking := true
	gate := NewVADGate(vadConfig(), func() bool { return agentSpeaking })

	before := gate.NoiseFloor()
	gate.Process(blockWithRMS(0.004, DefaultBlockSize))
	assert.Equal(t, before, gate.NoiseFloor(), "agent playback must not raise the floor")

	agentSpeaking = false
	gate.Process(blockWithRMS(0.004, DefaultBlockSize))
	assert.NotEqual(t, before, gate.NoiseFloor())
}

func TestVADGate_Reset(t *testing.T) {
	gate := NewVADGate(vadConfig(), nil)
	require.True(t, gate.Process(blockWithRMS(0.05, DefaultBlockSize)).Speaking)

	gate.Reset(DefaultNoiseFloor)

	assert.False(t, gate.Speaking())
	assert.Equal(t, DefaultNoiseFloor, gate.NoiseFloor())
	assert.False(t, gate.Process(blockWithRMS(0, DefaultBlockSize)).Forward)
}
