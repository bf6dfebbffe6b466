package media

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

// malgoBackend drives capture and playback through miniaudio. It is the
// default backend because it needs no external audio library at runtime.
type malgoBackend struct {
	ctx *malgo.AllocatedContext
}

func newMalgoBackend() (*malgoBackend, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing audio context: %w", err)
	}
	return &malgoBackend{ctx: ctx}, nil
}

func (b *malgoBackend) Type() BackendType { return BackendTypeMalgo }

func (b *malgoBackend) CaptureDevices() ([]string, error) {
	infos, err := b.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("enumerating capture devices: %w", err)
	}
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name()
	}
	return names, nil
}

// deviceID resolves a configured device name to a miniaudio device ID.
// An empty name selects the system default (nil ID).
func (b *malgoBackend) deviceID(kind malgo.DeviceType, name string) (*malgo.DeviceID, error) {
	if name == "" {
		return nil, nil
	}
	infos, err := b.ctx.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("enumerating audio devices: %w", err)
	}
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name()
	}
	idx, err := matchDevice(names, name)
	if err != nil {
		return nil, err
	}
	id := infos[idx].ID
	return &id, nil
}

func (b *malgoBackend) OpenCapture(cfg StreamConfig, sink func(samples []float32)) (Stream, error) {
	if err := validateStreamConfig(cfg); err != nil {
		return nil, err
	}
	id, err := b.deviceID(malgo.Capture, cfg.Device)
	if err != nil {
		return nil, err
	}

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatF32
	deviceCfg.Capture.Channels = uint32(cfg.Channels)
	deviceCfg.SampleRate = uint32(cfg.SampleRate)
	if id != nil {
		deviceCfg.Capture.DeviceID = id.Pointer()
	}

	channels := uint32(cfg.Channels)
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pSample []byte, frameCount uint32) {
			sink(bytesToFloat32(pSample, frameCount*channels))
		},
	}

	device, err := malgo.InitDevice(b.ctx.Context, deviceCfg, callbacks)
	if err != nil {
		return nil, fmt.Errorf("initializing capture device: %w", err)
	}
	return &malgoStream{device: device}, nil
}

func (b *malgoBackend) OpenPlayback(cfg StreamConfig, source func(out []float32) int) (Stream, error) {
	if err := validateStreamConfig(cfg); err != nil {
		return nil, err
	}

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceCfg.Playback.Format = malgo.FormatF32
	deviceCfg.Playback.Channels = uint32(cfg.Channels)
	deviceCfg.SampleRate = uint32(cfg.SampleRate)

	channels := uint32(cfg.Channels)
	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, frameCount uint32) {
			out := make([]float32, frameCount*channels)
			n := source(out)
			for i := n; i < len(out); i++ {
				out[i] = 0
			}
			float32ToBytes(out, pOutput)
		},
	}

	device, err := malgo.InitDevice(b.ctx.Context, deviceCfg, callbacks)
	if err != nil {
		return nil, fmt.Errorf("initializing playback device: %w", err)
	}
	return &malgoStream{device: device}, nil
}

func (b *malgoBackend) Close() error {
	if b.ctx == nil {
		return nil
	}
	if err := b.ctx.Uninit(); err != nil {
		return fmt.Errorf("uninitializing audio context: %w", err)
	}
	b.ctx.Free()
	b.ctx = nil
	return nil
}

type malgoStream struct {
	mu     sync.Mutex
	device *malgo.Device
}

func (s *malgoStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil {
		return fmt.Errorf("stream is closed")
	}
	if err := s.device.Start(); err != nil {
		return fmt.Errorf("starting device: %w", err)
	}
	return nil
}

func (s *malgoStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil || !s.device.IsStarted() {
		return nil
	}
	if err := s.device.Stop(); err != nil {
		return fmt.Errorf("stopping device: %w", err)
	}
	return nil
}

func (s *malgoStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device != nil {
		s.device.Uninit()
		s.device = nil
	}
	return nil
}

// bytesToFloat32 converts raw little-endian float32 bytes to a sample slice.
func bytesToFloat32(data []byte, sampleCount uint32) []float32 {
	samples := make([]float32, 0, sampleCount)
	for i := uint32(0); i < sampleCount; i++ {
		offset := i * 4
		if offset+4 > uint32(len(data)) {
			break
		}
		bits := binary.LittleEndian.Uint32(data[offset : offset+4])
		samples = append(samples, math.Float32frombits(bits))
	}
	return samples
}

// float32ToBytes writes samples into dst as little-endian float32 bytes.
func float32ToBytes(samples []float32, dst []byte) {
	for i, sample := range samples {
		offset := i * 4
		if offset+4 > len(dst) {
			break
		}
		binary.LittleEndian.PutUint32(dst[offset:offset+4], math.Float32bits(sample))
	}
}
