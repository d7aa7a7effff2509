package tigest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentError_WrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	wrapped := WrapError(cause, ErrCodeTransport)

	require.NotNil(t, wrapped)
	assert.Equal(t, ErrCodeTransport, wrapped.Code)
	assert.ErrorIs(t, wrapped, cause)
}

func TestWrapError_NilIsNil(t *testing.T) {
	assert.Nil(t, WrapError(nil, ErrCodeTransport))
}

func TestAgentError_Details(t *testing.T) {
	agentErr := NewTransportError("read failed").
		AddDetail("op", "read").
		AddDetail("attempt", 2)

	v, ok := agentErr.GetDetail("op")
	require.True(t, ok)
	assert.Equal(t, "read", v)

	_, ok = agentErr.GetDetail("missing")
	assert.False(t, ok)
}

func TestIsErrorCode(t *testing.T) {
	agentErr := NewCredentialError("no key")
	assert.True(t, IsErrorCode(agentErr, ErrCodeCredential))
	assert.False(t, IsErrorCode(agentErr, ErrCodeTransport))
	assert.False(t, IsErrorCode(nil, ErrCodeTransport))
}

func TestIsSessionFatal(t *testing.T) {
	assert.True(t, IsSessionFatal(NewTransportError("gone")))
	assert.True(t, IsSessionFatal(NewCredentialError("no key")))
	assert.False(t, IsSessionFatal(NewToolInvocationError("calendar down")))
	assert.False(t, IsSessionFatal(nil))
}
