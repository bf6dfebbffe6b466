package media

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

const portAudioFramesPerBuffer = 1024

// portAudioBackend drives capture and playback through the PortAudio host
// library. Selected with audio.backend: portaudio.
type portAudioBackend struct{}

func newPortAudioBackend() (*portAudioBackend, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initializing portaudio: %w", err)
	}
	return &portAudioBackend{}, nil
}

func (b *portAudioBackend) Type() BackendType { return BackendTypePortAudio }

func (b *portAudioBackend) CaptureDevices() ([]string, error) {
	devices, err := captureDeviceInfos()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(devices))
	for i, dev := range devices {
		names[i] = dev.Name
	}
	return names, nil
}

func captureDeviceInfos() ([]*portaudio.DeviceInfo, error) {
	all, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating capture devices: %w", err)
	}
	var devices []*portaudio.DeviceInfo
	for _, dev := range all {
		if dev.MaxInputChannels > 0 {
			devices = append(devices, dev)
		}
	}
	return devices, nil
}

func (b *portAudioBackend) OpenCapture(cfg StreamConfig, sink func(samples []float32)) (Stream, error) {
	if err := validateStreamConfig(cfg); err != nil {
		return nil, err
	}

	callback := func(in []float32) {
		samples := make([]float32, len(in))
		copy(samples, in)
		sink(samples)
	}

	var stream *portaudio.Stream
	var err error
	if cfg.Device == "" {
		stream, err = portaudio.OpenDefaultStream(
			cfg.Channels, // input channels
			0,            // no output
			float64(cfg.SampleRate),
			portAudioFramesPerBuffer,
			callback,
		)
	} else {
		devices, derr := captureDeviceInfos()
		if derr != nil {
			return nil, derr
		}
		names := make([]string, len(devices))
		for i, dev := range devices {
			names[i] = dev.Name
		}
		idx, derr := matchDevice(names, cfg.Device)
		if derr != nil {
			return nil, derr
		}
		params := portaudio.LowLatencyParameters(devices[idx], nil)
		params.Input.Channels = cfg.Channels
		params.SampleRate = float64(cfg.SampleRate)
		params.FramesPerBuffer = portAudioFramesPerBuffer
		stream, err = portaudio.OpenStream(params, callback)
	}
	if err != nil {
		return nil, fmt.Errorf("opening capture stream: %w", err)
	}
	return &portAudioStream{stream: stream}, nil
}

func (b *portAudioBackend) OpenPlayback(cfg StreamConfig, source func(out []float32) int) (Stream, error) {
	if err := validateStreamConfig(cfg); err != nil {
		return nil, err
	}

	stream, err := portaudio.OpenDefaultStream(
		0, // no input
		cfg.Channels,
		float64(cfg.SampleRate),
		portAudioFramesPerBuffer,
		func(out []float32) {
			n := source(out)
			for i := n; i < len(out); i++ {
				out[i] = 0
			}
		},
	)
	if err != nil {
		return nil, fmt.Errorf("opening playback stream: %w", err)
	}
	return &portAudioStream{stream: stream}, nil
}

func (b *portAudioBackend) Close() error {
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("terminating portaudio: %w", err)
	}
	return nil
}

type portAudioStream struct {
	mu      sync.Mutex
	stream  *portaudio.Stream
	started bool
}

func (s *portAudioStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return fmt.Errorf("stream is closed")
	}
	if s.started {
		return nil
	}
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("starting stream: %w", err)
	}
	s.started = true
	return nil
}

func (s *portAudioStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil || !s.started {
		return nil
	}
	if err := s.stream.Stop(); err != nil {
		return fmt.Errorf("stopping stream: %w", err)
	}
	s.started = false
	return nil
}

func (s *portAudioStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return nil
	}
	if err := s.stream.Close(); err != nil {
		return fmt.Errorf("closing stream: %w", err)
	}
	s.stream = nil
	return nil
}
