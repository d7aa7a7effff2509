package tigest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const geminiLiveURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

// Transport is the duplex connection to the conversational backend.
// Callbacks fire from a single reader goroutine, so within one
// connection they are delivered in wire order.
type Transport interface {
	Open(ctx context.Context, apiKey string) *AgentError
	SendAudio(pcm16 []byte) *AgentError
	SendText(text string) *AgentError
	SendToolResponse(callID, name string, response map[string]interface{}) *AgentError
	Close() error

	OnAudio(fn func(pcm []byte))
	OnInputTranscription(fn func(text string))
	OnOutputTranscription(fn func(text string))
	OnInterrupted(fn func())
	OnTurnComplete(fn func())
	OnToolCall(fn func(calls []FunctionCall))
	OnError(fn func(err *AgentError))
	OnClose(fn func())
}

// GeminiLive speaks the BidiGenerateContent websocket protocol.
type GeminiLive struct {
	config *Config
	logger *Logger

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	closed    bool

	onAudio               func(pcm []byte)
	onInputTranscription  func(text string)
	onOutputTranscription func(text string)
	onInterrupted         func()
	onTurnComplete        func()
	onToolCall            func(calls []FunctionCall)
	onError               func(err *AgentError)
	onClose               func()
}

func NewGeminiLive(config *Config) *GeminiLive {
	return &GeminiLive{
		config: config,
		logger: GetGlobalLogger().WithComponent("transport"),
	}
}

func (g *GeminiLive) OnAudio(fn func(pcm []byte))           { g.onAudio = fn }
func (g *GeminiLive) OnInputTranscription(fn func(string))  { g.onInputTranscription = fn }
func (g *GeminiLive) OnOutputTranscription(fn func(string)) { g.onOutputTranscription = fn }
func (g *GeminiLive) OnInterrupted(fn func())               { g.onInterrupted = fn }
func (g *GeminiLive) OnTurnComplete(fn func())              { g.onTurnComplete = fn }
func (g *GeminiLive) OnToolCall(fn func([]FunctionCall))    { g.onToolCall = fn }
func (g *GeminiLive) OnError(fn func(err *AgentError))      { g.onError = fn }
func (g *GeminiLive) OnClose(fn func())                     { g.onClose = fn }

// Open dials the backend, sends the session setup, and starts the
// reader goroutine.
func (g *GeminiLive) Open(ctx context.Context, apiKey string) *AgentError {
	g.mu.Lock()
	if g.connected {
		g.mu.Unlock()
		return NewTransportError("transport already open")
	}
	g.mu.Unlock()

	url := fmt.Sprintf("%s?key=%s", geminiLiveURL, apiKey)

	header := make(http.Header)
	header.Set("Content-Type", "application/json")

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return WrapError(err, ErrCodeTransport).AddDetail("op", "dial")
	}

	g.mu.Lock()
	g.conn = conn
	g.connected = true
	g.closed = false
	g.mu.Unlock()

	if agentErr := g.sendSetup(); agentErr != nil {
		g.Close()
		return agentErr
	}

	go g.readLoop()

	g.logger.Info("Live transport connected")
	return nil
}

func (g *GeminiLive) sendSetup() *AgentError {
	var declarations []map[string]interface{}
	for _, tool := range ToolDeclarations() {
		declarations = append(declarations, map[string]interface{}{
			"name":        tool.Name,
			"description": tool.Description,
			"parameters":  tool.Parameters,
		})
	}

	setup := map[string]interface{}{
		"setup": map[string]interface{}{
			"model": g.config.Model,
			"generation_config": map[string]interface{}{
				"response_modalities": []string{"AUDIO"},
				"speech_config": map[string]interface{}{
					"voice_config": map[string]interface{}{
						"prebuilt_voice_config": map[string]interface{}{
							"voice_name": g.config.Voice,
						},
					},
				},
			},
			"system_instruction": map[string]interface{}{
				"parts": []map[string]interface{}{
					{"text": g.config.SystemInstruction},
				},
			},
			"input_audio_transcription":  map[string]interface{}{},
			"output_audio_transcription": map[string]interface{}{},
			"tools": []map[string]interface{}{
				{"function_declarations": declarations},
			},
		},
	}

	return g.sendJSON(setup)
}

// IsConnected reports whether the transport is open and usable.
func (g *GeminiLive) IsConnected() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.connected && !g.closed
}

// SendAudio streams one block of 16kHz mono PCM16 to the backend.
func (g *GeminiLive) SendAudio(pcm16 []byte) *AgentError {
	msg := map[string]interface{}{
		"realtime_input": map[string]interface{}{
			"media_chunks": []map[string]interface{}{
				{
					"data":      base64.StdEncoding.EncodeToString(pcm16),
					"mime_type": "audio/pcm",
				},
			},
		},
	}
	return g.sendJSON(msg)
}

// SendText sends a user text turn, used to prompt the opening
// greeting right after setup.
func (g *GeminiLive) SendText(text string) *AgentError {
	msg := map[string]interface{}{
		"client_content": map[string]interface{}{
			"turns": []map[string]interface{}{
				{
					"role":  "user",
					"parts": []map[string]interface{}{{"text": text}},
				},
			},
			"turn_complete": true,
		},
	}
	return g.sendJSON(msg)
}

// SendToolResponse answers one backend function call by id.
func (g *GeminiLive) SendToolResponse(callID, name string, response map[string]interface{}) *AgentError {
	msg := map[string]interface{}{
		"tool_response": map[string]interface{}{
			"function_responses": []map[string]interface{}{
				{
					"id":       callID,
					"name":     name,
					"response": response,
				},
			},
		},
	}
	return g.sendJSON(msg)
}

func (g *GeminiLive) sendJSON(msg map[string]interface{}) *AgentError {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.connected || g.closed || g.conn == nil {
		return &AgentError{
			Message:   "transport is not connected",
			Code:      ErrCodeTransportClosed,
			Timestamp: time.Now(),
		}
	}

	if g.config.DebugWebsocket {
		if raw, err := json.Marshal(msg); err == nil {
			g.logger.WithField("bytes", len(raw)).Debug("Sending transport message")
		}
	}

	if err := g.conn.WriteJSON(msg); err != nil {
		return WrapError(err, ErrCodeTransport).AddDetail("op", "write")
	}
	return nil
}

// Close tears the connection down. Safe to call more than once.
func (g *GeminiLive) Close() error {
	g.mu.Lock()
	alreadyClosed := g.closed
	g.closed = true
	g.connected = false
	conn := g.conn
	g.mu.Unlock()

	if alreadyClosed || conn == nil {
		return nil
	}
	return conn.Close()
}

// readLoop is the single consumer of the websocket. Keeping one reader
// preserves the backend's ordering of audio, transcription, and
// control events.
func (g *GeminiLive) readLoop() {
	defer func() {
		if g.onClose != nil {
			g.onClose()
		}
	}()

	for {
		g.mu.RLock()
		conn := g.conn
		closed := g.closed
		g.mu.RUnlock()
		if closed || conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			g.mu.RLock()
			closed := g.closed
			g.mu.RUnlock()
			if !closed && g.onError != nil {
				g.onError(WrapError(err, ErrCodeTransport).AddDetail("op", "read"))
			}
			return
		}

		var msg map[string]interface{}
		if err := json.Unmarshal(raw, &msg); err != nil {
			g.logger.WithError(err).Warn("Dropping unparseable transport message")
			continue
		}

		g.handleMessage(msg)
	}
}

func (g *GeminiLive) handleMessage(msg map[string]interface{}) {
	if _, ok := msg["setupComplete"]; ok {
		g.logger.Info("Live session ready")
		return
	}

	if content, ok := msg["serverContent"].(map[string]interface{}); ok {
		g.handleServerContent(content)
		return
	}

	if toolCall, ok := msg["toolCall"].(map[string]interface{}); ok {
		g.handleToolCall(toolCall)
		return
	}

	if _, ok := msg["toolCallCancellation"]; ok {
		g.logger.Debug("Tool call cancelled by backend")
		return
	}

	if g.config.DebugWebsocket {
		g.logger.WithField("message", msg).Debug("Unhandled transport message")
	}
}

func (g *GeminiLive) handleServerContent(content map[string]interface{}) {
	// Interruption comes before any trailing content; flush first so
	// stale agent audio never lands after the user broke in.
	if interrupted, ok := content["interrupted"].(bool); ok && interrupted {
		if g.onInterrupted != nil {
			g.onInterrupted()
		}
	}

	if modelTurn, ok := content["modelTurn"].(map[string]interface{}); ok {
		g.handleModelTurn(modelTurn)
	}

	if in, ok := content["inputTranscription"].(map[string]interface{}); ok {
		if text, ok := in["text"].(string); ok && text != "" && g.onInputTranscription != nil {
			g.onInputTranscription(text)
		}
	}

	if out, ok := content["outputTranscription"].(map[string]interface{}); ok {
		if text, ok := out["text"].(string); ok && text != "" && g.onOutputTranscription != nil {
			g.onOutputTranscription(text)
		}
	}

	if turnComplete, ok := content["turnComplete"].(bool); ok && turnComplete {
		if g.onTurnComplete != nil {
			g.onTurnComplete()
		}
	}
}

func (g *GeminiLive) handleModelTurn(modelTurn map[string]interface{}) {
	parts, ok := modelTurn["parts"].([]interface{})
	if !ok {
		return
	}

	for _, part := range parts {
		partMap, ok := part.(map[string]interface{})
		if !ok {
			continue
		}
		inlineData, ok := partMap["inlineData"].(map[string]interface{})
		if !ok {
			continue
		}
		data, ok := inlineData["data"].(string)
		if !ok {
			continue
		}
		pcm, err := base64.StdEncoding.DecodeString(data)
		if err != nil || len(pcm) == 0 {
			continue
		}
		if g.config.DebugAudio {
			g.logger.LogAudioEvent("agent_audio", map[string]interface{}{"bytes": len(pcm)})
		}
		if g.onAudio != nil {
			g.onAudio(pcm)
		}
	}
}

func (g *GeminiLive) handleToolCall(toolCall map[string]interface{}) {
	rawCalls, ok := toolCall["functionCalls"].([]interface{})
	if !ok {
		return
	}

	calls := make([]FunctionCall, 0, len(rawCalls))
	for _, raw := range rawCalls {
		fcMap, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		fc := FunctionCall{}
		fc.ID, _ = fcMap["id"].(string)
		fc.Name, _ = fcMap["name"].(string)
		fc.Args, _ = fcMap["args"].(map[string]interface{})
		if fc.Args == nil {
			fc.Args = map[string]interface{}{}
		}
		calls = append(calls, fc)
	}

	if len(calls) > 0 && g.onToolCall != nil {
		g.onToolCall(calls)
	}
}
