package tigest

import (
	"fmt"
	"strings"
	"time"
)

// Error codes as constants
const (
	ErrCodeTransport        = "TRANSPORT_FAILED"
	ErrCodeTransportClosed  = "TRANSPORT_CLOSED"
	ErrCodeMediaAcquisition = "MEDIA_ACQUISITION_FAILED"
	ErrCodePlayback         = "PLAYBACK_ERROR"
	ErrCodeToolInvocation   = "TOOL_INVOCATION_FAILED"
	ErrCodeConfigMissing    = "CONFIG_MISSING"
	ErrCodeConfigInvalid    = "CONFIG_INVALID"
	ErrCodeCredential       = "CREDENTIAL_UNAVAILABLE"
	ErrCodeSessionState     = "SESSION_STATE_INVALID"
	ErrCodeDelivery         = "DELIVERY_FAILED"
	ErrCodeRecording        = "RECORDING_FAILED"
	ErrCodeJSONParse        = "JSON_PARSE_ERROR"
	ErrCodeUnknown          = "UNKNOWN_ERROR"
)

// AgentError carries a message, a stable code, and optional detail
// fields for structured logging.
type AgentError struct {
	Message   string
	Code      string
	Timestamp time.Time
	Details   map[string]interface{}
	err       error
}

func (e *AgentError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s (%s)", e.Message, e.Code))
	if len(e.Details) > 0 {
		sb.WriteString(":")
		for k, v := range e.Details {
			sb.WriteString(fmt.Sprintf(" %s=%v", k, v))
		}
	}
	return sb.String()
}

func (e *AgentError) Unwrap() error { return e.err }

func NewAgentError(message, code string) *AgentError {
	return &AgentError{
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

// AddDetail attaches a key/value pair and returns the error for chaining.
func (e *AgentError) AddDetail(key string, value interface{}) *AgentError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func (e *AgentError) GetDetail(key string) (interface{}, bool) {
	if e.Details == nil {
		return nil, false
	}
	v, ok := e.Details[key]
	return v, ok
}

// Taxonomy constructors

// NewTransportError marks a connection setup or mid-session transport
// failure. The session fails fast into Error and is not retried.
func NewTransportError(message string) *AgentError {
	return NewAgentError(message, ErrCodeTransport)
}

// NewToolInvocationError marks a collaborator failure answered with a
// structured payload; the conversation continues degraded.
func NewToolInvocationError(message string) *AgentError {
	return NewAgentError(message, ErrCodeToolInvocation)
}

// NewMediaAcquisitionError marks a capture device that could not be
// acquired; no session is created.
func NewMediaAcquisitionError(message string) *AgentError {
	return NewAgentError(message, ErrCodeMediaAcquisition)
}

func NewConfigurationError(message string) *AgentError {
	return NewAgentError(message, ErrCodeConfigMissing)
}

func NewCredentialError(message string) *AgentError {
	return NewAgentError(message, ErrCodeCredential)
}

func NewPlaybackError(message string) *AgentError {
	return NewAgentError(message, ErrCodePlayback)
}

// WrapError converts any error into an AgentError with the given code.
func WrapError(err error, code string) *AgentError {
	if err == nil {
		return nil
	}
	wrapped := NewAgentError(err.Error(), code)
	wrapped.err = err
	return wrapped
}

// IsErrorCode reports whether err carries the given code.
func IsErrorCode(err *AgentError, code string) bool {
	return err != nil && err.Code == code
}

// IsSessionFatal reports whether the error forces the session into the
// Error state. Tool and delivery failures are conversational and keep
// the session alive.
func IsSessionFatal(err *AgentError) bool {
	if err == nil {
		return false
	}
	switch err.Code {
	case ErrCodeTransport, ErrCodeTransportClosed, ErrCodeMediaAcquisition, ErrCodeCredential:
		return true
	}
	return false
}
