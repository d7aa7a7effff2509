package tigest

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// BlockFunc receives one fixed-size capture block. It must return
// within the block's own duration; the capture device drops nothing
// and buffers nothing.
type BlockFunc func(block []float32)

// CaptureDevice is the capability contract for a microphone source.
type CaptureDevice interface {
	// Start acquires the device and begins delivering blocks.
	Start(fn BlockFunc) error
	// Stop releases the device. Safe to call repeatedly and in any
	// state.
	Stop() error
}

// PortAudioCapture captures 16kHz mono float32 blocks from the default
// (or configured) input device.
type PortAudioCapture struct {
	sampleRate int
	blockSize  int
	deviceID   *int
	logger     *Logger

	mu      sync.Mutex
	stream  *portaudio.Stream
	running bool
}

func NewPortAudioCapture(cfg *Config) *PortAudioCapture {
	return &PortAudioCapture{
		sampleRate: cfg.InputSampleRate,
		blockSize:  cfg.BlockSize,
		deviceID:   cfg.AudioDeviceID,
		logger:     GetGlobalLogger().WithComponent("capture"),
	}
}

func (pc *PortAudioCapture) Start(fn BlockFunc) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if pc.running {
		return fmt.Errorf("already capturing")
	}

	if err := portaudio.Initialize(); err != nil {
		return NewMediaAcquisitionError(err.Error())
	}

	stream, err := pc.openStream(fn)
	if err != nil {
		portaudio.Terminate()
		return NewMediaAcquisitionError(err.Error())
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return NewMediaAcquisitionError(err.Error())
	}

	pc.stream = stream
	pc.running = true
	pc.logger.LogAudioEvent("capture_started", map[string]interface{}{
		"sample_rate": pc.sampleRate,
		"block_size":  pc.blockSize,
	})
	return nil
}

func (pc *PortAudioCapture) openStream(fn BlockFunc) (*portaudio.Stream, error) {
	cb := func(in []float32) {
		fn(in)
	}

	if pc.deviceID == nil {
		return portaudio.OpenDefaultStream(1, 0, float64(pc.sampleRate), pc.blockSize, cb)
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	if *pc.deviceID < 0 || *pc.deviceID >= len(devices) {
		return nil, fmt.Errorf("audio device id %d out of range", *pc.deviceID)
	}

	params := portaudio.LowLatencyParameters(devices[*pc.deviceID], nil)
	params.Input.Channels = 1
	params.SampleRate = float64(pc.sampleRate)
	params.FramesPerBuffer = pc.blockSize
	return portaudio.OpenStream(params, cb)
}

func (pc *PortAudioCapture) Stop() error {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if !pc.running {
		return nil
	}
	pc.running = false

	if pc.stream != nil {
		if err := pc.stream.Stop(); err != nil {
			pc.logger.WithError(err).Warn("Failed to stop capture stream")
		}
		if err := pc.stream.Close(); err != nil {
			pc.logger.WithError(err).Warn("Failed to close capture stream")
		}
		pc.stream = nil
	}
	portaudio.Terminate()

	pc.logger.LogAudioEvent("capture_stopped", nil)
	return nil
}
