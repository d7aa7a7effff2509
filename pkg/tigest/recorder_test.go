package tigest

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_DurationTracksBothSides(t *testing.T) {
	r := NewRecorder(16000)

	r.AppendMic(make([]float32, 16000))          // 1s of mic
	r.AppendAgent(make([]float32, 24000), 24000) // 1s of agent, resampled

	assert.InDelta(t, 2.0, r.Duration(), 0.01)
}

func TestRecorder_EmptyRecordingEncodesToNothing(t *testing.T) {
	r := NewRecorder(16000)
	encoded, agentErr := r.EncodeBase64()
	require.Nil(t, agentErr)
	assert.Empty(t, encoded)
}

func TestRecorder_EncodesValidWAV(t *testing.T) {
	r := NewRecorder(16000)
	r.AppendMic(blockWithRMS(0.25, 4096))

	encoded, agentErr := r.EncodeBase64()
	require.Nil(t, agentErr)
	require.NotEmpty(t, encoded)

	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	require.Greater(t, len(raw), 44, "must be larger than a bare WAV header")
	assert.Equal(t, "RIFF", string(raw[0:4]))
	assert.Equal(t, "WAVE", string(raw[8:12]))
}

func TestRecorder_Reset(t *testing.T) {
	r := NewRecorder(16000)
	r.AppendMic(make([]float32, 1600))
	r.Reset()
	assert.Equal(t, 0.0, r.Duration())
}
