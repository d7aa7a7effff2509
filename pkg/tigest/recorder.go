package tigest

import (
	"encoding/base64"
	"os"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Recorder captures the full call as a single mono PCM track. Mic
// blocks arrive at the native capture rate; agent audio is resampled
// down to the same rate before being appended so the finished file
// plays back as one continuous conversation.
type Recorder struct {
	sampleRate int
	logger     *Logger

	mu      sync.Mutex
	samples []float32
	enabled bool
}

func NewRecorder(sampleRate int) *Recorder {
	return &Recorder{
		sampleRate: sampleRate,
		enabled:    true,
		logger:     GetGlobalLogger().WithComponent("recorder"),
	}
}

// AppendMic appends a capture block recorded at the recorder's rate.
func (r *Recorder) AppendMic(block []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled {
		return
	}
	r.samples = append(r.samples, block...)
}

// AppendAgent appends agent audio, resampling from its source rate.
func (r *Recorder) AppendAgent(samples []float32, sourceRate int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled {
		return
	}
	r.samples = append(r.samples, Resample(samples, sourceRate, r.sampleRate)...)
}

// Duration reports the recorded length in seconds.
func (r *Recorder) Duration() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return SampleDuration(len(r.samples), r.sampleRate)
}

// EncodeBase64 renders the recording as a base64 WAV file suitable for
// embedding in a delivery payload. Returns empty string when nothing
// was recorded.
func (r *Recorder) EncodeBase64() (string, *AgentError) {
	r.mu.Lock()
	samples := make([]float32, len(r.samples))
	copy(samples, r.samples)
	r.mu.Unlock()

	if len(samples) == 0 {
		return "", nil
	}

	// The wav encoder needs an io.WriteSeeker to patch the RIFF header
	// after the data chunk is written, so go through a temp file.
	tmp, err := os.CreateTemp("", "tigest-call-*.wav")
	if err != nil {
		return "", WrapError(err, ErrCodeRecording)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	enc := wav.NewEncoder(tmp, r.sampleRate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: r.sampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, len(samples)),
	}
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		buf.Data[i] = int(s * 32767)
	}
	if err := enc.Write(buf); err != nil {
		return "", WrapError(err, ErrCodeRecording)
	}
	if err := enc.Close(); err != nil {
		return "", WrapError(err, ErrCodeRecording)
	}

	raw, err := os.ReadFile(tmp.Name())
	if err != nil {
		return "", WrapError(err, ErrCodeRecording)
	}

	r.logger.WithField("bytes", len(raw)).Debug("Encoded call recording")
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Reset drops all recorded audio.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = nil
}
