package tigest

import (
	"strings"
	"sync"
)

// Assembler accumulates incremental transcription fragments and
// finalizes them into turns. The transcript is append-only; a turn is
// immutable once appended, and at a turn boundary user text is
// finalized before agent text.
type Assembler struct {
	mu sync.Mutex

	userBuf  strings.Builder
	agentBuf strings.Builder
	turns    []Turn

	onTurns TranscriptHandler
	onLive  LiveHandler
}

func NewAssembler() *Assembler {
	return &Assembler{}
}

// OnTurns registers the callback fired whenever turns are appended.
func (a *Assembler) OnTurns(fn TranscriptHandler) { a.onTurns = fn }

// OnLive registers the callback fired whenever an accumulator changes.
func (a *Assembler) OnLive(fn LiveHandler) { a.onLive = fn }

// AppendUser adds an inbound transcription fragment.
func (a *Assembler) AppendUser(text string) {
	a.mu.Lock()
	a.userBuf.WriteString(text)
	live, fn := a.liveLocked()
	a.mu.Unlock()
	if fn != nil {
		fn(live)
	}
}

// AppendAgent adds an outbound transcription fragment.
func (a *Assembler) AppendAgent(text string) {
	a.mu.Lock()
	a.agentBuf.WriteString(text)
	live, fn := a.liveLocked()
	a.mu.Unlock()
	if fn != nil {
		fn(live)
	}
}

func (a *Assembler) liveLocked() (LiveTranscript, LiveHandler) {
	return LiveTranscript{User: a.userBuf.String(), Agent: a.agentBuf.String()}, a.onLive
}

// Interrupt finalizes the agent's partial utterance as a truncated
// turn. The agent was cut off mid-sentence and the partial words are
// still meaningful context. The user accumulator is left alone; the
// backend continues that same user turn.
func (a *Assembler) Interrupt() {
	a.mu.Lock()
	var appended bool
	if partial := strings.TrimSpace(a.agentBuf.String()); partial != "" {
		a.turns = append(a.turns, Turn{Role: RoleAgent, Text: partial + "..."})
		appended = true
	}
	a.agentBuf.Reset()
	turns := a.turnsLocked()
	live, liveFn := a.liveLocked()
	turnsFn := a.onTurns
	a.mu.Unlock()

	if appended && turnsFn != nil {
		turnsFn(turns)
	}
	if liveFn != nil {
		liveFn(live)
	}
}

// TurnComplete finalizes both accumulators, user before agent, and
// clears them. Empty accumulators produce no turn.
func (a *Assembler) TurnComplete() {
	a.mu.Lock()
	user := strings.TrimSpace(a.userBuf.String())
	agent := strings.TrimSpace(a.agentBuf.String())

	var appended bool
	if user != "" {
		a.turns = append(a.turns, Turn{Role: RoleUser, Text: user})
		appended = true
	}
	if agent != "" {
		a.turns = append(a.turns, Turn{Role: RoleAgent, Text: agent})
		appended = true
	}
	a.userBuf.Reset()
	a.agentBuf.Reset()

	turns := a.turnsLocked()
	live, liveFn := a.liveLocked()
	turnsFn := a.onTurns
	a.mu.Unlock()

	if appended && turnsFn != nil {
		turnsFn(turns)
	}
	if liveFn != nil {
		liveFn(live)
	}
}

func (a *Assembler) turnsLocked() []Turn {
	out := make([]Turn, len(a.turns))
	copy(out, a.turns)
	return out
}

// Turns returns a copy of the finalized transcript.
func (a *Assembler) Turns() []Turn {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.turnsLocked()
}

// Live returns the current accumulator preview.
func (a *Assembler) Live() LiveTranscript {
	a.mu.Lock()
	defer a.mu.Unlock()
	return LiveTranscript{User: a.userBuf.String(), Agent: a.agentBuf.String()}
}

// Reset clears the transcript and both accumulators.
func (a *Assembler) Reset() {
	a.mu.Lock()
	a.userBuf.Reset()
	a.agentBuf.Reset()
	a.turns = nil
	a.mu.Unlock()
}
