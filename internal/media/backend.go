// Package media implements the platform audio capabilities the recorder
// controller orchestrates: microphone capture, frequency analysis, clip
// encoding and playback.
package media

import (
	"fmt"
	"strings"
)

// BackendType identifies an audio host API implementation.
type BackendType string

const (
	BackendTypeMalgo     BackendType = "malgo"
	BackendTypePortAudio BackendType = "portaudio"
	BackendTypeAuto      BackendType = "auto"
)

// StreamConfig describes the wire format of a capture or playback stream.
type StreamConfig struct {
	SampleRate int
	Channels   int
	// Device selects the capture device by name (exact or substring,
	// case-insensitive). Empty means the system default. Playback always
	// uses the default output device.
	Device string
}

// Stream is a running capture or playback stream on a backend device.
type Stream interface {
	Start() error
	Stop() error
	// Close releases the device. The stream is unusable afterwards.
	Close() error
}

// Backend opens capture and playback streams on an audio host API.
type Backend interface {
	Type() BackendType

	// CaptureDevices lists the names of the capture devices the backend
	// can open, for selection via StreamConfig.Device.
	CaptureDevices() ([]string, error)

	// OpenCapture opens a capture stream. Captured frames are delivered to
	// sink as interleaved float32 samples from the device's own goroutine.
	OpenCapture(cfg StreamConfig, sink func(samples []float32)) (Stream, error)

	// OpenPlayback opens a playback stream. The source callback fills out
	// with interleaved samples and returns how many it wrote; returning 0
	// means the track is drained and silence is emitted.
	OpenPlayback(cfg StreamConfig, source func(out []float32) int) (Stream, error)

	// Close releases the backend context. All streams must be closed first.
	Close() error
}

// NewBackend creates the backend selected by name.
func NewBackend(name string) (Backend, error) {
	switch determineBackend(name) {
	case BackendTypePortAudio:
		return newPortAudioBackend()
	default:
		return newMalgoBackend()
	}
}

// determineBackend resolves a configured backend name to a concrete type.
func determineBackend(name string) BackendType {
	switch strings.ToLower(name) {
	case "portaudio":
		return BackendTypePortAudio
	case "malgo":
		return BackendTypeMalgo
	case "auto", "":
		// miniaudio runs everywhere without an external library
		return BackendTypeMalgo
	}
	return BackendTypeMalgo
}

// GetAvailableBackends returns the backends compiled into this binary.
func GetAvailableBackends() []BackendType {
	return []BackendType{BackendTypeMalgo, BackendTypePortAudio}
}

// matchDevice finds the device whose name matches want, case-insensitively.
// An exact match wins over the first substring match.
func matchDevice(names []string, want string) (int, error) {
	needle := strings.ToLower(strings.TrimSpace(want))
	sub := -1
	for i, name := range names {
		n := strings.ToLower(name)
		if n == needle {
			return i, nil
		}
		if sub < 0 && strings.Contains(n, needle) {
			sub = i
		}
	}
	if sub < 0 {
		return 0, fmt.Errorf("audio device %q not found (available: %s)", want, strings.Join(names, ", "))
	}
	return sub, nil
}

func validateStreamConfig(cfg StreamConfig) error {
	if cfg.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", cfg.SampleRate)
	}
	if cfg.Channels < 1 || cfg.Channels > 2 {
		return fmt.Errorf("invalid channel count %d", cfg.Channels)
	}
	return nil
}
