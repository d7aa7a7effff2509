package tigest

import (
	"sync"
	"time"
)

// PlaybackItem is one decoded buffer owned by the scheduler until it
// finishes playing or is flushed.
type PlaybackItem struct {
	samples    []float32
	sampleRate int

	// StartOffset is seconds from the scheduler epoch at which the
	// buffer begins playing.
	StartOffset float64
	Duration    float64

	timer     *time.Timer
	handle    SinkHandle
	cancelled bool
}

// Scheduler lines incoming audio buffers up back to back so playback
// is gapless, and tears the whole queue down on interruption.
//
// Start offsets are non-decreasing within an uninterrupted stream; an
// interruption resets the next start offset to zero and subsequent
// audio plays fresh relative to real time.
type Scheduler struct {
	mu sync.Mutex

	sink  AudioSink
	clock Clock

	epoch     time.Time
	nextStart float64
	active    map[*PlaybackItem]struct{}

	onAgentSpeaking func(bool)
	onDrained       func()

	logger *Logger
}

func NewScheduler(sink AudioSink, clock Clock) *Scheduler {
	if clock == nil {
		clock = SystemClock()
	}
	return &Scheduler{
		sink:   sink,
		clock:  clock,
		epoch:  clock.Now(),
		active: make(map[*PlaybackItem]struct{}),
		logger: GetGlobalLogger().WithComponent("playback"),
	}
}

// OnAgentSpeaking registers the agent-speaking indicator callback. It
// fires with true when a buffer is scheduled and false when the last
// active buffer finishes or the queue is flushed.
func (s *Scheduler) OnAgentSpeaking(fn func(bool)) { s.onAgentSpeaking = fn }

// OnDrained registers the callback fired when the last active buffer
// completes naturally. Deferred termination hangs off this.
func (s *Scheduler) OnDrained(fn func()) { s.onDrained = fn }

func (s *Scheduler) offsetNow() float64 {
	return s.clock.Now().Sub(s.epoch).Seconds()
}

// Schedule queues one decoded buffer to begin at
// max(nextStartTime, now) and advances nextStartTime by the buffer's
// duration.
func (s *Scheduler) Schedule(samples []float32, sampleRate int) *PlaybackItem {
	s.mu.Lock()

	now := s.offsetNow()
	start := s.nextStart
	if now > start {
		start = now
	}
	dur := SampleDuration(len(samples), sampleRate)

	item := &PlaybackItem{
		samples:     samples,
		sampleRate:  sampleRate,
		StartOffset: start,
		Duration:    dur,
	}
	s.nextStart = start + dur
	s.active[item] = struct{}{}

	delay := time.Duration((start - now) * float64(time.Second))
	speakingFn := s.onAgentSpeaking
	s.mu.Unlock()

	if speakingFn != nil {
		speakingFn(true)
	}

	if delay <= 0 {
		s.playItem(item)
	} else {
		s.mu.Lock()
		if !item.cancelled {
			item.timer = time.AfterFunc(delay, func() { s.playItem(item) })
		}
		s.mu.Unlock()
	}

	return item
}

func (s *Scheduler) playItem(item *PlaybackItem) {
	s.mu.Lock()
	if item.cancelled {
		s.mu.Unlock()
		return
	}
	sink := s.sink
	s.mu.Unlock()

	handle, err := sink.Play(item.samples, item.sampleRate, func() { s.completeItem(item) })
	if err != nil {
		s.logger.LogError(WrapError(err, ErrCodePlayback))
		s.completeItem(item)
		return
	}

	s.mu.Lock()
	if item.cancelled {
		s.mu.Unlock()
		handle.Stop()
		return
	}
	item.handle = handle
	s.mu.Unlock()
}

func (s *Scheduler) completeItem(item *PlaybackItem) {
	s.mu.Lock()
	if _, ok := s.active[item]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.active, item)
	empty := len(s.active) == 0
	speakingFn := s.onAgentSpeaking
	drainedFn := s.onDrained
	s.mu.Unlock()

	if empty {
		if speakingFn != nil {
			speakingFn(false)
		}
		if drainedFn != nil {
			drainedFn()
		}
	}
}

// Interrupt stops every active buffer, clears the set, and resets the
// next start offset to zero. No overlap with aborted speech: the next
// buffer starts fresh relative to real time.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	items := make([]*PlaybackItem, 0, len(s.active))
	for item := range s.active {
		items = append(items, item)
		item.cancelled = true
		if item.timer != nil {
			item.timer.Stop()
		}
	}
	s.active = make(map[*PlaybackItem]struct{})
	s.nextStart = 0
	s.epoch = s.clock.Now()
	speakingFn := s.onAgentSpeaking
	s.mu.Unlock()

	for _, item := range items {
		if item.handle != nil {
			item.handle.Stop()
		}
	}

	if speakingFn != nil {
		speakingFn(false)
	}

	if len(items) > 0 {
		s.logger.LogAudioEvent("playback_flushed", map[string]interface{}{
			"flushed": len(items),
		})
	}
}

// ActiveCount returns the number of not-yet-finished buffers.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// NextStart returns the next scheduled start offset in seconds.
func (s *Scheduler) NextStart() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}

// Idle reports whether there is no active playback.
func (s *Scheduler) Idle() bool {
	return s.ActiveCount() == 0
}
