package tigest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// voiceFrameBuffer bounds the queue between the capture callback and
// the transport sender. The capture callback must never block, so a
// full queue drops the oldest-pending frame instead of stalling.
const voiceFrameBuffer = 64

// SessionOption customizes a Session, mainly for swapping the audio
// and transport layers in tests.
type SessionOption func(*Session)

func WithTransport(t Transport) SessionOption {
	return func(s *Session) { s.transport = t }
}

func WithCapture(c CaptureDevice) SessionOption {
	return func(s *Session) { s.capture = c }
}

func WithSink(sink AudioSink) SessionOption {
	return func(s *Session) { s.sink = sink }
}

func WithClock(clock Clock) SessionOption {
	return func(s *Session) { s.clock = clock }
}

// Session runs one full voice call: mic capture through the VAD gate,
// live transport both ways, scheduled playback, transcript assembly,
// tool dispatch, and idle/duration supervision.
type Session struct {
	ID     string
	config *Config
	logger *Logger
	clock  Clock

	credentials *CredentialProvider
	transport   Transport
	capture     CaptureDevice
	sink        AudioSink
	scheduler   *Scheduler
	vad         *VADGate
	assembler   *Assembler
	dispatcher  *Dispatcher
	supervisor  *Supervisor
	recorder    *Recorder
	delivery    *DeliveryClient
	calendar    *CalendarClient

	onState    []StateHandler
	onTurns    []TranscriptHandler
	onLive     []LiveHandler
	onSpeaking []SpeakingHandler
	onError    []ErrorHandler
	onTimeLeft []func(remaining time.Duration)

	mu            sync.Mutex
	state         SessionState
	agentSpeaking bool
	userSpeaking  bool
	pendingHangup bool
	frames        chan []byte
	senderStop    chan struct{}
	teardownOnce  *sync.Once
	graceTimer    *time.Timer
}

// NewSession wires a session from config. The returned session is in
// StateIdle until Start is called.
func NewSession(config *Config, opts ...SessionOption) (*Session, *AgentError) {
	if config == nil {
		config = NewConfig()
	}
	if issues := config.Validate(); len(issues) > 0 {
		return nil, NewConfigurationError("invalid session configuration: " + strings.Join(issues, "; "))
	}

	id := uuid.New().String()

	s := &Session{
		ID:           id,
		config:       config,
		clock:        SystemClock(),
		logger:       GetGlobalLogger().WithComponent("session").WithSession(id),
		state:        StateIdle,
		teardownOnce: &sync.Once{},
	}

	for _, opt := range opts {
		opt(s)
	}

	s.credentials = NewCredentialProvider(config)
	s.calendar = NewCalendarClient(config.CalendarURL)
	s.delivery = NewDeliveryClient(config.WebhookURL)
	s.recorder = NewRecorder(config.InputSampleRate)
	s.assembler = NewAssembler()
	s.dispatcher = NewDispatcher(id, s.calendar, s.requestHangup)
	s.vad = NewVADGate(config, s.isAgentSpeaking)

	if s.transport == nil {
		s.transport = NewGeminiLive(config)
	}
	if s.capture == nil {
		s.capture = NewPortAudioCapture(config)
	}
	if s.sink == nil {
		s.sink = NewPortAudioSink()
	}

	s.scheduler = NewScheduler(s.sink, s.clock)
	s.scheduler.OnAgentSpeaking(s.setAgentSpeaking)
	s.scheduler.OnDrained(s.playbackDrained)

	s.supervisor = NewSupervisor(config, s.clock, s.anySpeaking, s.expire)
	s.supervisor.OnTimeLeft(s.emitTimeLeft)

	s.assembler.OnTurns(s.emitTurns)
	s.assembler.OnLive(s.emitLive)

	s.wireTransport()

	return s, nil
}

// OnStateChange registers a handler for session state transitions.
func (s *Session) OnStateChange(fn StateHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onState = append(s.onState, fn)
}

// OnTranscript registers a handler fired whenever a turn is finalized.
func (s *Session) OnTranscript(fn TranscriptHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTurns = append(s.onTurns, fn)
}

// OnLiveTranscript registers a handler for in-flight partial text.
func (s *Session) OnLiveTranscript(fn LiveHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLive = append(s.onLive, fn)
}

// OnSpeaking registers a handler for speaking-indicator changes.
func (s *Session) OnSpeaking(fn SpeakingHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSpeaking = append(s.onSpeaking, fn)
}

// OnError registers a handler for fatal session errors.
func (s *Session) OnError(fn ErrorHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = append(s.onError, fn)
}

// OnTimeLeft registers a once-per-second countdown handler.
func (s *Session) OnTimeLeft(fn func(remaining time.Duration)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTimeLeft = append(s.onTimeLeft, fn)
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transcript returns the finalized turns so far.
func (s *Session) Transcript() []Turn {
	return s.assembler.Turns()
}

// Lead returns the lead record collected by tool calls so far.
func (s *Session) Lead() LeadRecord {
	return s.dispatcher.Lead()
}

// Start brings the session from Idle through Connecting to Active:
// credentials, transport, mic capture, greeting, supervision. On any
// failure the session lands in StateError and auto-resets to Idle
// after the grace delay.
func (s *Session) Start(ctx context.Context) *AgentError {
	if err := s.setState(StateConnecting); err != nil {
		return err
	}

	// Per-call state starts clean; nothing survives a previous call.
	s.vad.Reset(s.config.NoiseFloor)
	s.assembler.Reset()
	s.recorder.Reset()
	s.dispatcher.Reset()

	apiKey, agentErr := s.credentials.APIKey(ctx)
	if agentErr != nil {
		s.fail(agentErr)
		return agentErr
	}

	if agentErr := s.transport.Open(ctx, apiKey); agentErr != nil {
		s.fail(agentErr)
		return agentErr
	}

	// Stop or fail may have run while Open was blocked; their teardown
	// sweep is already spent, so anything acquired from here on must be
	// released by hand.
	s.mu.Lock()
	if s.state != StateConnecting {
		s.mu.Unlock()
		s.unwind()
		return &AgentError{
			Message:   "session stopped while connecting",
			Code:      ErrCodeSessionState,
			Timestamp: time.Now(),
		}
	}
	s.frames = make(chan []byte, voiceFrameBuffer)
	s.senderStop = make(chan struct{})
	frames := s.frames
	senderStop := s.senderStop
	s.mu.Unlock()
	go s.sendLoop(frames, senderStop)

	if err := s.capture.Start(s.handleMicBlock); err != nil {
		agentErr := WrapError(err, ErrCodeMediaAcquisition)
		s.fail(agentErr)
		return agentErr
	}

	if err := s.setState(StateActive); err != nil {
		s.unwind()
		return err
	}

	if s.config.Greeting != "" {
		if agentErr := s.transport.SendText(s.config.Greeting); agentErr != nil {
			s.logger.LogError(agentErr)
		}
	}

	s.supervisor.Start()
	s.logger.Info("Session active")
	return nil
}

// Stop ends the call deliberately: Terminating, teardown, delivery of
// the call artifacts, then back to Idle. Safe to call more than once.
func (s *Session) Stop(reason string) {
	s.mu.Lock()
	if s.state == StateIdle || s.state == StateTerminating {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err := s.setState(StateTerminating); err != nil {
		return
	}

	s.teardown()
	s.deliver()
	s.setState(StateIdle)
	s.logger.WithField("reason", reason).Info("Session ended")
}

// Wait blocks until the session returns to Idle or the context ends.
func (s *Session) Wait(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if s.State() == StateIdle {
				return nil
			}
		}
	}
}

func (s *Session) wireTransport() {
	s.transport.OnAudio(s.handleAgentAudio)
	s.transport.OnInputTranscription(s.handleUserText)
	s.transport.OnOutputTranscription(s.handleAgentText)
	s.transport.OnInterrupted(s.handleInterruption)
	s.transport.OnTurnComplete(s.handleTurnComplete)
	s.transport.OnToolCall(s.handleToolCalls)
	s.transport.OnError(s.fail)
	s.transport.OnClose(s.handleTransportClose)
}

// handleMicBlock runs on the capture thread; it must stay cheap and
// never block.
func (s *Session) handleMicBlock(block []float32) {
	s.recorder.AppendMic(block)

	decision := s.vad.Process(block)

	s.mu.Lock()
	wasSpeaking := s.userSpeaking
	s.userSpeaking = decision.Speaking
	frames := s.frames
	s.mu.Unlock()

	if decision.Speaking != wasSpeaking {
		s.emitSpeaking(RoleUser, decision.Speaking)
	}
	if decision.Speaking {
		s.supervisor.Touch()
	}

	if !decision.Forward || frames == nil {
		return
	}

	select {
	case frames <- FloatToPCM16(block):
	default:
		// Transport is behind; dropping beats stalling the mic.
		if s.config.DebugAudio {
			s.logger.LogAudioEvent("frame_dropped", nil)
		}
	}
}

// sendLoop is the only writer of mic audio to the transport.
func (s *Session) sendLoop(frames chan []byte, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case frame := <-frames:
			if agentErr := s.transport.SendAudio(frame); agentErr != nil {
				if agentErr.Code == ErrCodeTransportClosed {
					return
				}
				s.fail(agentErr)
				return
			}
		}
	}
}

func (s *Session) handleAgentAudio(pcm []byte) {
	samples := PCM16ToFloat(pcm)
	if len(samples) == 0 {
		return
	}
	s.recorder.AppendAgent(samples, s.config.OutputSampleRate)
	s.supervisor.Touch()
	s.scheduler.Schedule(samples, s.config.OutputSampleRate)
}

func (s *Session) handleUserText(text string) {
	s.supervisor.Touch()
	s.assembler.AppendUser(text)
}

func (s *Session) handleAgentText(text string) {
	s.supervisor.Touch()
	s.assembler.AppendAgent(text)
}

// handleInterruption fires when the user barges in mid-utterance: all
// queued agent audio is flushed and the agent's partial text is
// finalized as a truncated turn.
func (s *Session) handleInterruption() {
	s.logger.Debug("Agent interrupted by user")
	s.supervisor.Touch()
	s.scheduler.Interrupt()
	s.assembler.Interrupt()
}

func (s *Session) handleTurnComplete() {
	s.supervisor.Touch()
	s.assembler.TurnComplete()

	s.mu.Lock()
	pending := s.pendingHangup
	s.mu.Unlock()
	if pending && s.scheduler.Idle() {
		s.settleAndStop()
	}
}

// handleToolCalls runs dispatch off the transport read loop so slow
// collaborators never stall audio delivery.
func (s *Session) handleToolCalls(calls []FunctionCall) {
	s.supervisor.Touch()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.dispatcher.Dispatch(ctx, calls, func(callID, name string, response map[string]interface{}) {
			if agentErr := s.transport.SendToolResponse(callID, name, response); agentErr != nil {
				s.logger.LogError(agentErr)
			}
		})
	}()
}

// requestHangup marks the agent's terminate request. Shutdown waits
// until queued playback drains so the closing line is heard in full.
func (s *Session) requestHangup() {
	s.mu.Lock()
	s.pendingHangup = true
	s.mu.Unlock()
	s.logger.Info("Hangup requested, waiting for playback to drain")

	if s.scheduler.Idle() {
		s.settleAndStop()
	}
}

// playbackDrained fires when the last scheduled buffer finishes
// naturally.
func (s *Session) playbackDrained() {
	s.mu.Lock()
	pending := s.pendingHangup
	s.mu.Unlock()
	if pending {
		s.settleAndStop()
	}
}

func (s *Session) settleAndStop() {
	time.AfterFunc(s.config.SettleDelay, func() {
		s.Stop("agent_hangup")
	})
}

func (s *Session) expire(reason ExpiryReason) {
	go s.Stop(string(reason))
}

func (s *Session) handleTransportClose() {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if state != StateActive && state != StateConnecting {
		return
	}
	s.fail(&AgentError{
		Message:   "transport closed unexpectedly",
		Code:      ErrCodeTransportClosed,
		Timestamp: time.Now(),
	})
}

// fail moves the session to StateError, tears everything down, and
// schedules the automatic reset back to Idle.
func (s *Session) fail(agentErr *AgentError) {
	s.mu.Lock()
	state := s.state
	if state != StateConnecting && state != StateActive {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.logger.LogError(agentErr)
	s.setState(StateError)
	s.emitError(agentErr)
	s.teardown()

	s.mu.Lock()
	s.graceTimer = time.AfterFunc(s.config.ErrorGraceDelay, func() {
		s.setState(StateIdle)
	})
	s.mu.Unlock()
}

// teardown releases every live resource exactly once. Each step is
// independent; one failing never skips the rest.
func (s *Session) teardown() {
	s.teardownOnce.Do(func() {
		s.supervisor.Stop()

		if err := s.capture.Stop(); err != nil {
			s.logger.WithError(err).Warn("Capture stop failed")
		}

		s.scheduler.Interrupt()

		s.mu.Lock()
		if s.senderStop != nil {
			close(s.senderStop)
			s.senderStop = nil
		}
		s.frames = nil
		s.mu.Unlock()

		if err := s.transport.Close(); err != nil {
			s.logger.WithError(err).Warn("Transport close failed")
		}

		if err := s.sink.Close(); err != nil {
			s.logger.WithError(err).Warn("Sink close failed")
		}
	})
}

// unwind releases resources Start acquired after losing the race with
// a concurrent Stop or fail, whose one-shot teardown sweep has already
// run.
func (s *Session) unwind() {
	if err := s.capture.Stop(); err != nil {
		s.logger.WithError(err).Warn("Capture stop failed")
	}

	s.mu.Lock()
	if s.senderStop != nil {
		close(s.senderStop)
		s.senderStop = nil
	}
	s.frames = nil
	s.mu.Unlock()

	if err := s.transport.Close(); err != nil {
		s.logger.WithError(err).Warn("Transport close failed")
	}
}

// deliver posts the call artifacts to the configured webhook.
func (s *Session) deliver() {
	audio, agentErr := s.recorder.EncodeBase64()
	if agentErr != nil {
		s.logger.LogError(agentErr)
	}

	s.delivery.Deliver(DeliveryPayload{
		SessionID:       s.ID,
		LeadData:        s.dispatcher.Lead(),
		FullTranscript:  s.assembler.Turns(),
		DurationSeconds: int(s.supervisor.Elapsed().Seconds()),
		AudioFile:       audio,
	})
}

func (s *Session) isAgentSpeaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agentSpeaking
}

func (s *Session) setAgentSpeaking(speaking bool) {
	s.mu.Lock()
	changed := s.agentSpeaking != speaking
	s.agentSpeaking = speaking
	s.mu.Unlock()
	if changed {
		s.emitSpeaking(RoleAgent, speaking)
	}
	if speaking {
		s.supervisor.Touch()
	}
}

func (s *Session) anySpeaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agentSpeaking || s.userSpeaking
}

// setState enforces the legal transition table and notifies handlers.
func (s *Session) setState(to SessionState) *AgentError {
	s.mu.Lock()
	from := s.state
	if !validTransition(from, to) {
		s.mu.Unlock()
		return &AgentError{
			Message:   "invalid state transition from " + string(from) + " to " + string(to),
			Code:      ErrCodeSessionState,
			Timestamp: time.Now(),
		}
	}
	s.state = to
	if to == StateConnecting {
		// Fresh call: new teardown guard and cleared hangup flag.
		s.teardownOnce = &sync.Once{}
		s.pendingHangup = false
		if s.graceTimer != nil {
			s.graceTimer.Stop()
			s.graceTimer = nil
		}
	}
	handlers := make([]StateHandler, len(s.onState))
	copy(handlers, s.onState)
	s.mu.Unlock()

	s.logger.LogStateChange(from, to)
	for _, fn := range handlers {
		fn(from, to)
	}
	return nil
}

func validTransition(from, to SessionState) bool {
	switch from {
	case StateIdle:
		return to == StateConnecting
	case StateConnecting:
		return to == StateActive || to == StateError || to == StateTerminating
	case StateActive:
		return to == StateTerminating || to == StateError
	case StateTerminating:
		return to == StateIdle
	case StateError:
		return to == StateIdle
	}
	return false
}

func (s *Session) emitTurns(turns []Turn) {
	s.mu.Lock()
	handlers := make([]TranscriptHandler, len(s.onTurns))
	copy(handlers, s.onTurns)
	s.mu.Unlock()
	for _, fn := range handlers {
		fn(turns)
	}
}

func (s *Session) emitLive(live LiveTranscript) {
	s.mu.Lock()
	handlers := make([]LiveHandler, len(s.onLive))
	copy(handlers, s.onLive)
	s.mu.Unlock()
	for _, fn := range handlers {
		fn(live)
	}
}

func (s *Session) emitSpeaking(role Role, speaking bool) {
	s.mu.Lock()
	handlers := make([]SpeakingHandler, len(s.onSpeaking))
	copy(handlers, s.onSpeaking)
	s.mu.Unlock()
	for _, fn := range handlers {
		fn(role, speaking)
	}
}

func (s *Session) emitError(agentErr *AgentError) {
	s.mu.Lock()
	handlers := make([]ErrorHandler, len(s.onError))
	copy(handlers, s.onError)
	s.mu.Unlock()
	for _, fn := range handlers {
		fn(agentErr)
	}
}

func (s *Session) emitTimeLeft(remaining time.Duration) {
	s.mu.Lock()
	handlers := make([]func(time.Duration), len(s.onTimeLeft))
	copy(handlers, s.onTimeLeft)
	s.mu.Unlock()
	for _, fn := range handlers {
		fn(remaining)
	}
}
