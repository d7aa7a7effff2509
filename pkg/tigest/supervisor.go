package tigest

import (
	"sync"
	"time"
)

// Supervisor watches the call for inactivity and for the hard duration
// cap. It ticks once a second and fires onExpire at most once.
type Supervisor struct {
	silenceTimeout time.Duration
	maxDuration    time.Duration
	clock          Clock
	logger         *Logger

	// anySpeaking reports whether either party is currently audible;
	// the silence window only counts when both are quiet.
	anySpeaking func() bool
	onExpire    func(reason ExpiryReason)
	onTimeLeft  func(remaining time.Duration)

	mu           sync.Mutex
	startedAt    time.Time
	lastActivity time.Time
	running      bool
	expired      bool
	stop         chan struct{}
}

func NewSupervisor(config *Config, clock Clock, anySpeaking func() bool, onExpire func(ExpiryReason)) *Supervisor {
	return &Supervisor{
		silenceTimeout: config.SilenceTimeout,
		maxDuration:    config.MaxCallDuration,
		clock:          clock,
		anySpeaking:    anySpeaking,
		onExpire:       onExpire,
		logger:         GetGlobalLogger().WithComponent("supervisor"),
	}
}

// OnTimeLeft registers a countdown callback fired every tick with the
// time remaining before the duration cap.
func (s *Supervisor) OnTimeLeft(fn func(remaining time.Duration)) {
	s.onTimeLeft = fn
}

// Start begins supervision. The activity clock starts fresh.
func (s *Supervisor) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	now := s.clock.Now()
	s.startedAt = now
	s.lastActivity = now
	s.running = true
	s.expired = false
	s.stop = make(chan struct{})
	stop := s.stop
	s.mu.Unlock()

	go s.run(stop)
}

// Touch marks activity, resetting the inactivity window.
func (s *Supervisor) Touch() {
	s.mu.Lock()
	s.lastActivity = s.clock.Now()
	s.mu.Unlock()
}

// Stop halts supervision. Safe to call more than once.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.stop)
}

// Elapsed reports how long the call has been running.
func (s *Supervisor) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startedAt.IsZero() {
		return 0
	}
	return s.clock.Now().Sub(s.startedAt)
}

func (s *Supervisor) run(stop chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if s.check() {
				return
			}
		}
	}
}

// check evaluates both expiry conditions; returns true once expired.
// Duration cap wins when both trip on the same tick.
func (s *Supervisor) check() bool {
	s.mu.Lock()
	now := s.clock.Now()
	elapsed := now.Sub(s.startedAt)
	idle := now.Sub(s.lastActivity)
	expired := s.expired
	s.mu.Unlock()

	if expired {
		return true
	}

	if s.onTimeLeft != nil {
		remaining := s.maxDuration - elapsed
		if remaining < 0 {
			remaining = 0
		}
		s.onTimeLeft(remaining)
	}

	if elapsed >= s.maxDuration {
		s.expire(ExpiryMaxDuration)
		return true
	}

	if s.anySpeaking != nil && s.anySpeaking() {
		s.Touch()
		return false
	}

	if idle >= s.silenceTimeout {
		s.expire(ExpiryInactivity)
		return true
	}

	return false
}

func (s *Supervisor) expire(reason ExpiryReason) {
	s.mu.Lock()
	if s.expired {
		s.mu.Unlock()
		return
	}
	s.expired = true
	s.mu.Unlock()

	s.logger.WithField("reason", string(reason)).Info("Call expired")
	if s.onExpire != nil {
		s.onExpire(reason)
	}
}
