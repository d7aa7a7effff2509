package tigest

import (
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// SinkHandle controls one buffer that the sink is playing.
type SinkHandle interface {
	// Stop aborts playback immediately. Idempotent. A stopped buffer
	// does not invoke its completion callback.
	Stop()
}

// AudioSink is the capability contract for an audio output. Play
// begins playback of the buffer immediately and invokes onDone exactly
// once when the buffer has fully played, unless the handle is stopped
// first.
type AudioSink interface {
	Play(samples []float32, sampleRate int, onDone func()) (SinkHandle, error)
	Close() error
}

// PortAudioSink plays buffers on the default output device, one stream
// per buffer.
type PortAudioSink struct {
	logger *Logger

	mu     sync.Mutex
	inited bool
}

func NewPortAudioSink() *PortAudioSink {
	return &PortAudioSink{
		logger: GetGlobalLogger().WithComponent("sink"),
	}
}

type portAudioHandle struct {
	mu      sync.Mutex
	stream  *portaudio.Stream
	stopped bool
	done    chan struct{}
}

func (h *portAudioHandle) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	stream := h.stream
	h.mu.Unlock()

	if stream != nil {
		stream.Abort()
	}
	close(h.done)
}

func (s *PortAudioSink) Play(samples []float32, sampleRate int, onDone func()) (SinkHandle, error) {
	s.mu.Lock()
	if !s.inited {
		if err := portaudio.Initialize(); err != nil {
			s.mu.Unlock()
			return nil, NewPlaybackError(err.Error())
		}
		s.inited = true
	}
	s.mu.Unlock()

	handle := &portAudioHandle{done: make(chan struct{})}
	played := make(chan struct{}, 1)
	idx := 0
	var cbMu sync.Mutex

	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), 1024, func(out []float32) {
		cbMu.Lock()
		defer cbMu.Unlock()
		for i := range out {
			if idx < len(samples) {
				out[i] = samples[idx]
				idx++
			} else {
				out[i] = 0
			}
		}
		if idx >= len(samples) {
			select {
			case played <- struct{}{}:
			default:
			}
		}
	})
	if err != nil {
		return nil, NewPlaybackError(err.Error())
	}

	handle.mu.Lock()
	handle.stream = stream
	handle.mu.Unlock()

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, NewPlaybackError(err.Error())
	}

	go func() {
		defer stream.Close()

		// Timeout guards against a wedged device.
		limit := time.Duration(1.5*SampleDuration(len(samples), sampleRate)*float64(time.Second)) + time.Second
		select {
		case <-played:
			stream.Stop()
		case <-handle.done:
			return
		case <-time.After(limit):
			s.logger.Warn("Playback timeout, abandoning buffer")
			stream.Stop()
		}

		handle.mu.Lock()
		stopped := handle.stopped
		handle.mu.Unlock()
		if !stopped && onDone != nil {
			onDone()
		}
	}()

	return handle, nil
}

func (s *PortAudioSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inited {
		s.inited = false
		return portaudio.Terminate()
	}
	return nil
}
