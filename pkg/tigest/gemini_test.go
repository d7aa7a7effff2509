package tigest

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeMsg(t *testing.T, raw string) map[string]interface{} {
	t.Helper()
	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	return msg
}

func newTestLive() *GeminiLive {
	return NewGeminiLive(sessionConfig())
}

func TestGeminiLive_ParsesModelTurnAudio(t *testing.T) {
	g := newTestLive()

	pcm := FloatToPCM16([]float32{0.1, -0.1, 0.2})
	var got []byte
	g.OnAudio(func(b []byte) { got = b })

	g.handleMessage(decodeMsg(t, `{
		"serverContent": {
			"modelTurn": {
				"parts": [
					{"inlineData": {"mimeType": "audio/pcm;rate=24000", "data": "`+base64.StdEncoding.EncodeToString(pcm)+`"}}
				]
			}
		}
	}`))

	assert.Equal(t, pcm, got)
}

func TestGeminiLive_ParsesTranscriptions(t *testing.T) {
	g := newTestLive()

	var user, agent string
	g.OnInputTranscription(func(text string) { user = text })
	g.OnOutputTranscription(func(text string) { agent = text })

	g.handleMessage(decodeMsg(t, `{"serverContent": {"inputTranscription": {"text": "hello "}}}`))
	g.handleMessage(decodeMsg(t, `{"serverContent": {"outputTranscription": {"text": "hi there"}}}`))

	assert.Equal(t, "hello ", user)
	assert.Equal(t, "hi there", agent)
}

func TestGeminiLive_InterruptedBeforeTrailingContent(t *testing.T) {
	g := newTestLive()

	var order []string
	g.OnInterrupted(func() { order = append(order, "interrupted") })
	g.OnOutputTranscription(func(string) { order = append(order, "text") })

	g.handleMessage(decodeMsg(t, `{
		"serverContent": {
			"interrupted": true,
			"outputTranscription": {"text": "cut off"}
		}
	}`))

	assert.Equal(t, []string{"interrupted", "text"}, order)
}

func TestGeminiLive_TurnCompleteFiresLast(t *testing.T) {
	g := newTestLive()

	var order []string
	g.OnOutputTranscription(func(string) { order = append(order, "text") })
	g.OnTurnComplete(func() { order = append(order, "turn_complete") })

	g.handleMessage(decodeMsg(t, `{
		"serverContent": {
			"outputTranscription": {"text": "bye"},
			"turnComplete": true
		}
	}`))

	assert.Equal(t, []string{"text", "turn_complete"}, order)
}

func TestGeminiLive_ParsesToolCalls(t *testing.T) {
	g := newTestLive()

	var calls []FunctionCall
	g.OnToolCall(func(fc []FunctionCall) { calls = fc })

	g.handleMessage(decodeMsg(t, `{
		"toolCall": {
			"functionCalls": [
				{"id": "c1", "name": "capture_lead_info", "args": {"name": "Ada"}},
				{"id": "c2", "name": "terminate_call"}
			]
		}
	}`))

	require.Len(t, calls, 2)
	assert.Equal(t, "c1", calls[0].ID)
	assert.Equal(t, ToolCaptureLeadInfo, calls[0].Name)
	assert.Equal(t, "Ada", calls[0].Args["name"])
	assert.Equal(t, ToolTerminateCall, calls[1].Name)
	assert.NotNil(t, calls[1].Args, "missing args decode to an empty map")
}

func TestGeminiLive_SetupCompleteIsQuiet(t *testing.T) {
	g := newTestLive()
	var toolCalls int
	g.OnToolCall(func([]FunctionCall) { toolCalls++ })

	g.handleMessage(decodeMsg(t, `{"setupComplete": {}}`))
	assert.Equal(t, 0, toolCalls)
}

func TestGeminiLive_SendBeforeOpenFails(t *testing.T) {
	g := newTestLive()

	agentErr := g.SendAudio([]byte{0, 0})
	require.NotNil(t, agentErr)
	assert.Equal(t, ErrCodeTransportClosed, agentErr.Code)

	agentErr = g.SendText("hello")
	require.NotNil(t, agentErr)
	assert.Equal(t, ErrCodeTransportClosed, agentErr.Code)
}

func TestGeminiLive_CloseBeforeOpenIsSafe(t *testing.T) {
	g := newTestLive()
	assert.NoError(t, g.Close())
	assert.NoError(t, g.Close())
}
