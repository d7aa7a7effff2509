package tigest

import "sync"

// VADDecision is the per-block classification result.
type VADDecision struct {
	RMS      float64
	Speaking bool
	Forward  bool // forward the block to the transport
}

// VADGate is an RMS energy gate with an adaptive noise floor and a
// hangover window that keeps forwarding briefly after speech ends so
// trailing syllables are not clipped.
//
// The gate itself never blocks: Process is pure arithmetic on the
// block, and forwarding is the caller's concern.
type VADGate struct {
	mu sync.Mutex

	floor       float64
	minRMS      float64
	sensitivity float64
	hangBlocks  int

	hangover int
	speaking bool

	// agentSpeaking reports whether the far end is talking; the noise
	// floor must not adapt to the agent's own playback bleeding into
	// the microphone.
	agentSpeaking func() bool
}

// NewVADGate builds a gate from config. agentSpeaking may be nil.
func NewVADGate(cfg *Config, agentSpeaking func() bool) *VADGate {
	if agentSpeaking == nil {
		agentSpeaking = func() bool { return false }
	}
	return &VADGate{
		floor:         cfg.NoiseFloor,
		minRMS:        cfg.MinRMSThreshold,
		sensitivity:   cfg.VADSensitivity,
		hangBlocks:    cfg.HangoverBlocks,
		agentSpeaking: agentSpeaking,
	}
}

// Process classifies one capture block. The noise floor only adapts
// while neither party is speaking.
func (v *VADGate) Process(block []float32) VADDecision {
	v.mu.Lock()
	defer v.mu.Unlock()

	rms := CalculateRMS(block)

	if !v.speaking && !v.agentSpeaking() {
		v.floor = v.floor*0.99 + rms*0.01
	}

	threshold := v.floor * v.sensitivity
	if threshold < v.minRMS {
		threshold = v.minRMS
	}

	if rms > threshold {
		v.speaking = true
		v.hangover = v.hangBlocks
		return VADDecision{RMS: rms, Speaking: true, Forward: true}
	}

	if v.hangover > 0 {
		v.hangover--
		// The flag holds through every forwarded hangover block; it
		// clears on the first block that is not forwarded.
		return VADDecision{RMS: rms, Speaking: true, Forward: true}
	}

	v.speaking = false
	return VADDecision{RMS: rms, Speaking: false, Forward: false}
}

// Speaking reports the current speaking flag.
func (v *VADGate) Speaking() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.speaking
}

// NoiseFloor returns the current floor estimate.
func (v *VADGate) NoiseFloor() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.floor
}

// Reset restores the gate to its start-of-session state.
func (v *VADGate) Reset(floor float64) {
	v.mu.Lock()
	v.floor = floor
	v.hangover = 0
	v.speaking = false
	v.mu.Unlock()
}
