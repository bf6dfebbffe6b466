package media

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const clipBitDepth = 16

// sampleSource is a live stream that fans captured samples out to sinks.
type sampleSource interface {
	AddSink(fn func(samples []float32)) int
	RemoveSink(id int)
}

// captureSession accumulates microphone samples and encodes them into a WAV
// clip. The data handler fires exactly once, after Stop, with the full clip;
// with a non-zero timeslice the chunk handler additionally receives the
// samples accumulated since the previous chunk.
type captureSession struct {
	source sampleSource
	cfg    StreamConfig

	mu         sync.Mutex
	active     bool
	sinkID     int
	pcm        []float32
	chunkStart int // first sample not yet delivered as a chunk
	onData     func(data []byte)
	onChunk    func(chunk []byte)
	stopTick   chan struct{}
}

func newCaptureSession(source sampleSource, cfg StreamConfig) *captureSession {
	return &captureSession{source: source, cfg: cfg}
}

func (s *captureSession) Start(timeslice time.Duration) error {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return fmt.Errorf("capture session already started")
	}
	s.active = true
	s.pcm = s.pcm[:0]
	s.chunkStart = 0
	if timeslice > 0 {
		s.stopTick = make(chan struct{})
	}
	s.mu.Unlock()

	s.sinkID = s.source.AddSink(s.ingest)

	if timeslice > 0 {
		go s.chunkLoop(timeslice, s.stopTick)
	}
	return nil
}

func (s *captureSession) Stop() error {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return nil
	}
	s.active = false
	if s.stopTick != nil {
		close(s.stopTick)
		s.stopTick = nil
	}
	sinkID := s.sinkID
	pcm := make([]float32, len(s.pcm))
	copy(pcm, s.pcm)
	onData := s.onData
	s.mu.Unlock()

	s.source.RemoveSink(sinkID)

	clip, err := encodeWAV(pcm, s.cfg.SampleRate, s.cfg.Channels)
	if err != nil {
		return fmt.Errorf("encoding clip: %w", err)
	}
	if onData != nil {
		onData(clip)
	}
	return nil
}

func (s *captureSession) SetOnData(fn func(data []byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onData = fn
}

func (s *captureSession) ClearOnData() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onData = nil
}

func (s *captureSession) SetOnChunk(fn func(chunk []byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChunk = fn
}

func (s *captureSession) ClearOnChunk() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChunk = nil
}

func (s *captureSession) ingest(samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	s.pcm = append(s.pcm, samples...)
}

func (s *captureSession) chunkLoop(timeslice time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(timeslice)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.deliverChunk()
		}
	}
}

func (s *captureSession) deliverChunk() {
	s.mu.Lock()
	if !s.active || s.onChunk == nil || s.chunkStart >= len(s.pcm) {
		s.mu.Unlock()
		return
	}
	part := make([]float32, len(s.pcm)-s.chunkStart)
	copy(part, s.pcm[s.chunkStart:])
	s.chunkStart = len(s.pcm)
	onChunk := s.onChunk
	cfg := s.cfg
	s.mu.Unlock()

	chunk, err := encodeWAV(part, cfg.SampleRate, cfg.Channels)
	if err != nil {
		return
	}
	onChunk(chunk)
}

// wavBuffer is an in-memory io.WriteSeeker for the WAV encoder, which needs
// to rewind and patch the RIFF header on Close.
type wavBuffer struct {
	buf []byte
	pos int
}

func (w *wavBuffer) Write(p []byte) (int, error) {
	if need := w.pos + len(p); need > len(w.buf) {
		w.buf = append(w.buf, make([]byte, need-len(w.buf))...)
	}
	copy(w.buf[w.pos:], p)
	w.pos += len(p)
	return len(p), nil
}

func (w *wavBuffer) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = int64(w.pos) + offset
	case io.SeekEnd:
		pos = int64(len(w.buf)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if pos < 0 {
		return 0, fmt.Errorf("negative seek position %d", pos)
	}
	w.pos = int(pos)
	return pos, nil
}

func (w *wavBuffer) Bytes() []byte { return w.buf }

// encodeWAV renders float32 samples as a 16-bit PCM WAV file.
func encodeWAV(samples []float32, sampleRate, channels int) ([]byte, error) {
	data := make([]int, len(samples))
	for i, sample := range samples {
		v := int(sample * 32767)
		if v > 32767 {
			v = 32767
		}
		if v < -32768 {
			v = -32768
		}
		data[i] = v
	}

	buf := &wavBuffer{}
	enc := wav.NewEncoder(buf, sampleRate, clipBitDepth, channels, 1)
	err := enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: clipBitDepth,
	})
	if err != nil {
		return nil, fmt.Errorf("writing samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalizing encoder: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeWAV parses a WAV file into normalized float32 samples.
func decodeWAV(data []byte) (samples []float32, sampleRate, channels int, err error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decoding wav: %w", err)
	}
	if buf.Format == nil {
		return nil, 0, 0, fmt.Errorf("wav data has no format chunk")
	}

	samples = make([]float32, len(buf.Data))
	for i, s := range buf.Data {
		samples[i] = float32(s) / 32768.0
	}
	return samples, buf.Format.SampleRate, buf.Format.NumChannels, nil
}
