package tigest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssembler_TurnCompleteOrdersUserBeforeAgent(t *testing.T) {
	a := NewAssembler()
	a.AppendAgent("I can help ")
	a.AppendAgent("with that.")
	a.AppendUser("What do ")
	a.AppendUser("you offer?")

	a.TurnComplete()

	turns := a.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, Turn{Role: RoleUser, Text: "What do you offer?"}, turns[0])
	assert.Equal(t, Turn{Role: RoleAgent, Text: "I can help with that."}, turns[1])
}

func TestAssembler_AgentOnlyTurn(t *testing.T) {
	a := NewAssembler()
	a.AppendAgent("Welcome to Tigest.")

	a.TurnComplete()

	turns := a.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, RoleAgent, turns[0].Role)
}

func TestAssembler_EmptyAccumulatorsProduceNoTurns(t *testing.T) {
	a := NewAssembler()
	a.TurnComplete()
	assert.Empty(t, a.Turns())

	a.AppendUser("   ")
	a.TurnComplete()
	assert.Empty(t, a.Turns(), "whitespace-only text must not become a turn")
}

func TestAssembler_InterruptTruncatesAgentPartial(t *testing.T) {
	a := NewAssembler()
	a.AppendAgent("As I was saying, our plans start")
	a.AppendUser("wait")

	a.Interrupt()

	turns := a.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, RoleAgent, turns[0].Role)
	assert.Equal(t, "As I was saying, our plans start...", turns[0].Text)

	// The user accumulator survives the interruption; that user turn
	// is still in flight.
	assert.Equal(t, "wait", a.Live().User)
	assert.Empty(t, a.Live().Agent)
}

func TestAssembler_InterruptWithNoAgentTextIsNoop(t *testing.T) {
	a := NewAssembler()
	a.AppendUser("hello")

	a.Interrupt()

	assert.Empty(t, a.Turns())
	assert.Equal(t, "hello", a.Live().User)
}

func TestAssembler_InterruptThenTurnCompleteKeepsOrder(t *testing.T) {
	a := NewAssembler()
	a.AppendAgent("Let me tell you about")
	a.Interrupt()

	a.AppendUser("actually, just book me in")
	a.AppendAgent("Of course.")
	a.TurnComplete()

	turns := a.Turns()
	require.Len(t, turns, 3)
	assert.Equal(t, "Let me tell you about...", turns[0].Text)
	assert.Equal(t, RoleUser, turns[1].Role)
	assert.Equal(t, RoleAgent, turns[2].Role)
}

func TestAssembler_CallbacksFire(t *testing.T) {
	a := NewAssembler()

	var liveCount int
	var lastTurns []Turn
	a.OnLive(func(LiveTranscript) { liveCount++ })
	a.OnTurns(func(turns []Turn) { lastTurns = turns })

	a.AppendUser("hi")
	a.AppendAgent("hello")
	a.TurnComplete()

	assert.GreaterOrEqual(t, liveCount, 2)
	require.Len(t, lastTurns, 2)
}

func TestAssembler_TurnsReturnsCopy(t *testing.T) {
	a := NewAssembler()
	a.AppendUser("hi")
	a.TurnComplete()

	turns := a.Turns()
	turns[0].Text = "mutated"

	assert.Equal(t, "hi", a.Turns()[0].Text)
}

func TestAssembler_Reset(t *testing.T) {
	a := NewAssembler()
	a.AppendUser("hi")
	a.TurnComplete()
	a.AppendAgent("partial")

	a.Reset()

	assert.Empty(t, a.Turns())
	assert.Equal(t, LiveTranscript{}, a.Live())
}
