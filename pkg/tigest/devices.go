package tigest

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// AudioDevice describes one host audio device.
type AudioDevice struct {
	ID                int
	Name              string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
	IsDefaultInput    bool
	IsDefaultOutput   bool
	HostAPI           string
}

// DeviceManager enumerates host audio devices. It owns its own
// PortAudio init/terminate pair so it can run standalone, e.g. from
// the device-listing CLI command.
type DeviceManager struct {
	mu      sync.RWMutex
	devices []AudioDevice
	logger  *Logger
}

func NewDeviceManager() *DeviceManager {
	return &DeviceManager{
		logger: GetGlobalLogger().WithComponent("devices"),
	}
}

// Initialize starts PortAudio and scans the device list.
func (dm *DeviceManager) Initialize() *AgentError {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if err := portaudio.Initialize(); err != nil {
		return WrapError(err, ErrCodeMediaAcquisition)
	}
	if err := dm.refresh(); err != nil {
		return WrapError(err, ErrCodeMediaAcquisition)
	}

	dm.logger.WithField("device_count", len(dm.devices)).Info("Audio devices enumerated")
	return nil
}

// Cleanup releases the audio subsystem.
func (dm *DeviceManager) Cleanup() {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if err := portaudio.Terminate(); err != nil {
		dm.logger.WithError(err).Warn("Audio subsystem terminate failed")
	}
}

func (dm *DeviceManager) refresh() error {
	dm.devices = dm.devices[:0]

	defaultInput, err := portaudio.DefaultInputDevice()
	if err != nil {
		dm.logger.WithError(err).Warn("No default input device")
	}
	defaultOutput, err := portaudio.DefaultOutputDevice()
	if err != nil {
		dm.logger.WithError(err).Warn("No default output device")
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return err
	}

	for i, dev := range devices {
		hostAPI := "Unknown"
		if dev.HostApi != nil {
			hostAPI = dev.HostApi.Name
		}
		dm.devices = append(dm.devices, AudioDevice{
			ID:                i,
			Name:              dev.Name,
			MaxInputChannels:  dev.MaxInputChannels,
			MaxOutputChannels: dev.MaxOutputChannels,
			DefaultSampleRate: dev.DefaultSampleRate,
			IsDefaultInput:    defaultInput != nil && dev == defaultInput,
			IsDefaultOutput:   defaultOutput != nil && dev == defaultOutput,
			HostAPI:           hostAPI,
		})
	}
	return nil
}

// Devices returns a copy of the enumerated devices.
func (dm *DeviceManager) Devices() []AudioDevice {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	devices := make([]AudioDevice, len(dm.devices))
	copy(devices, dm.devices)
	return devices
}

// InputDevices returns only devices that can capture.
func (dm *DeviceManager) InputDevices() []AudioDevice {
	var inputs []AudioDevice
	for _, device := range dm.Devices() {
		if device.MaxInputChannels > 0 {
			inputs = append(inputs, device)
		}
	}
	return inputs
}

// DeviceByID returns the device at the given enumeration index.
func (dm *DeviceManager) DeviceByID(id int) (*AudioDevice, error) {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	for _, device := range dm.devices {
		if device.ID == id {
			d := device
			return &d, nil
		}
	}
	return nil, fmt.Errorf("device with ID %d not found", id)
}

// ValidateCaptureDevice checks that the device can serve mono capture
// at the session's input rate.
func (dm *DeviceManager) ValidateCaptureDevice(id int, sampleRate int) error {
	device, err := dm.DeviceByID(id)
	if err != nil {
		return err
	}
	if device.MaxInputChannels < 1 {
		return fmt.Errorf("device '%s' is not an input device", device.Name)
	}
	if device.DefaultSampleRate > 0 {
		ratio := float64(sampleRate) / device.DefaultSampleRate
		if ratio < 0.5 || ratio > 2.0 {
			dm.logger.WithField("device_name", device.Name).
				WithField("device_sample_rate", device.DefaultSampleRate).
				WithField("requested_sample_rate", sampleRate).
				Warn("Sample rate significantly different from device default")
		}
	}
	return nil
}
