package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/chuikoffru/voicerec/internal/blob"
	"github.com/chuikoffru/voicerec/recorder"
)

const fetchTimeout = 30 * time.Second

// Provider implements recorder.CapabilityProvider on top of a real audio
// backend. Clips are held in an in-process blob registry and playback URLs
// may also name local files or http(s) resources.
type Provider struct {
	backend Backend
	cfg     StreamConfig
	blobs   *blob.Registry
	http    *resty.Client
}

func NewProvider(backend Backend, cfg StreamConfig) *Provider {
	return &Provider{
		backend: backend,
		cfg:     cfg,
		blobs:   blob.NewRegistry(),
		http:    resty.New().SetTimeout(fetchTimeout),
	}
}

// Blobs exposes the clip registry so callers can read a clip by its URL.
func (p *Provider) Blobs() *blob.Registry { return p.blobs }

func (p *Provider) AcquireMicrophone(ctx context.Context) (recorder.MediaStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ms := &microphoneStream{sinks: make(map[int]func([]float32))}
	stream, err := p.backend.OpenCapture(p.cfg, ms.fanout)
	if err != nil {
		return nil, fmt.Errorf("acquiring microphone: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("acquiring microphone: %w", err)
	}
	ms.stream = stream

	slog.Debug("Microphone acquired", "backend", p.backend.Type(), "sample_rate", p.cfg.SampleRate, "channels", p.cfg.Channels)
	return ms, nil
}

func (p *Provider) CreateAudioGraph(stream recorder.MediaStream) (recorder.AudioGraph, error) {
	ms, ok := stream.(*microphoneStream)
	if !ok {
		return nil, fmt.Errorf("unexpected stream type %T", stream)
	}

	analyser := NewAnalyser(defaultFFTSize)
	src := &sourceNode{stream: ms, sinkID: ms.AddSink(analyser.Feed)}
	return &audioGraph{src: src, analyser: analyser}, nil
}

func (p *Provider) CreateCaptureSession(stream recorder.MediaStream) (recorder.CaptureSession, error) {
	ms, ok := stream.(*microphoneStream)
	if !ok {
		return nil, fmt.Errorf("unexpected stream type %T", stream)
	}
	return newCaptureSession(ms, p.cfg), nil
}

func (p *Provider) CreatePlaybackElement(url string) (recorder.PlaybackElement, error) {
	if url == "" {
		return nil, fmt.Errorf("playback url is empty")
	}
	return newPlaybackElement(url, p.backend, p.fetchClip), nil
}

func (p *Provider) CreateObjectURL(data []byte) string {
	return p.blobs.Create(data)
}

func (p *Provider) RevokeObjectURL(url string) {
	p.blobs.Revoke(url)
}

// fetchClip resolves a clip URL to its raw bytes.
func (p *Provider) fetchClip(url string) ([]byte, error) {
	switch {
	case blob.Is(url):
		return p.blobs.Get(url)
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"):
		resp, err := p.http.R().Get(url)
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", url, err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("fetching %s: status %s", url, resp.Status())
		}
		return resp.Body(), nil
	default:
		data, err := os.ReadFile(url)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", url, err)
		}
		return data, nil
	}
}

// microphoneStream is a running capture stream that fans incoming samples out
// to any number of sinks (analyser, capture session).
type microphoneStream struct {
	mu      sync.Mutex
	stream  Stream
	sinks   map[int]func(samples []float32)
	nextID  int
	stopped bool
}

func (m *microphoneStream) AddSink(fn func(samples []float32)) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.sinks[m.nextID] = fn
	return m.nextID
}

func (m *microphoneStream) RemoveSink(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sinks, id)
}

func (m *microphoneStream) StopTracks() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	stream := m.stream
	m.stream = nil
	m.mu.Unlock()

	if stream != nil {
		_ = stream.Stop()
		_ = stream.Close()
	}
}

func (m *microphoneStream) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// fanout runs on the device goroutine; sinks are copied out so a sink cannot
// hold the stream lock while it does its own locking.
func (m *microphoneStream) fanout(samples []float32) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	sinks := make([]func([]float32), 0, len(m.sinks))
	for _, fn := range m.sinks {
		sinks = append(sinks, fn)
	}
	m.mu.Unlock()

	for _, fn := range sinks {
		fn(samples)
	}
}

type sourceNode struct {
	stream *microphoneStream
	once   sync.Once
	sinkID int
}

func (s *sourceNode) Disconnect() {
	s.once.Do(func() {
		s.stream.RemoveSink(s.sinkID)
	})
}

type audioGraph struct {
	src      *sourceNode
	analyser *Analyser
}

func (g *audioGraph) Source() recorder.SourceNode     { return g.src }
func (g *audioGraph) Analyser() recorder.AnalyserNode { return g.analyser }

func (g *audioGraph) Close() error {
	g.src.Disconnect()
	return nil
}
