package media

import (
	"fmt"
	"sync"
)

// playbackElement renders a clip URL through a backend playback stream. The
// clip is resolved and decoded lazily on first Play; Pause keeps the playhead
// so a later Play resumes where it stopped.
type playbackElement struct {
	url     string
	resolve func(url string) ([]byte, error)
	backend Backend

	mu      sync.Mutex
	samples []float32
	rate    int
	chans   int
	pos     int
	stream  Stream
	playing bool
	ended   bool // drained flag, cleared on restart
	onEnded func()
	closed  bool
}

func newPlaybackElement(url string, backend Backend, resolve func(string) ([]byte, error)) *playbackElement {
	return &playbackElement{url: url, backend: backend, resolve: resolve}
}

func (e *playbackElement) Play() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return fmt.Errorf("playback element is closed")
	}
	if e.playing {
		e.mu.Unlock()
		return nil
	}
	if e.samples == nil {
		url := e.url
		e.mu.Unlock()
		data, err := e.resolve(url)
		if err != nil {
			return fmt.Errorf("resolving clip %s: %w", url, err)
		}
		samples, rate, chans, err := decodeWAV(data)
		if err != nil {
			return fmt.Errorf("decoding clip %s: %w", url, err)
		}
		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			return fmt.Errorf("playback element is closed")
		}
		e.samples = samples
		e.rate = rate
		e.chans = chans
	}
	if e.ended || e.pos >= len(e.samples) {
		e.pos = 0
		e.ended = false
	}

	if e.stream == nil {
		cfg := StreamConfig{SampleRate: e.rate, Channels: e.chans}
		stream, err := e.backend.OpenPlayback(cfg, e.feed)
		if err != nil {
			e.mu.Unlock()
			return fmt.Errorf("opening playback stream: %w", err)
		}
		e.stream = stream
	}
	stream := e.stream
	e.playing = true
	e.mu.Unlock()

	if err := stream.Start(); err != nil {
		e.mu.Lock()
		e.playing = false
		e.mu.Unlock()
		return fmt.Errorf("starting playback: %w", err)
	}
	return nil
}

func (e *playbackElement) Pause() error {
	e.mu.Lock()
	if e.closed || !e.playing {
		e.mu.Unlock()
		return nil
	}
	e.playing = false
	stream := e.stream
	e.mu.Unlock()

	if stream != nil {
		if err := stream.Stop(); err != nil {
			return fmt.Errorf("pausing playback: %w", err)
		}
	}
	return nil
}

func (e *playbackElement) SetOnEnded(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onEnded = fn
}

func (e *playbackElement) ClearOnEnded() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onEnded = nil
}

func (e *playbackElement) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.playing = false
	e.onEnded = nil
	stream := e.stream
	e.stream = nil
	e.mu.Unlock()

	if stream != nil {
		_ = stream.Stop()
		if err := stream.Close(); err != nil {
			return fmt.Errorf("closing playback stream: %w", err)
		}
	}
	return nil
}

// feed is the playback stream's source callback. It runs on the device
// goroutine, so end-of-track teardown is deferred to a fresh goroutine.
func (e *playbackElement) feed(out []float32) int {
	e.mu.Lock()
	if !e.playing || e.pos >= len(e.samples) {
		drained := e.playing && e.pos >= len(e.samples) && !e.ended
		if drained {
			e.ended = true
			e.playing = false
			stream := e.stream
			onEnded := e.onEnded
			e.mu.Unlock()
			go func() {
				if stream != nil {
					_ = stream.Stop()
				}
				if onEnded != nil {
					onEnded()
				}
			}()
			return 0
		}
		e.mu.Unlock()
		return 0
	}
	n := copy(out, e.samples[e.pos:])
	e.pos += n
	e.mu.Unlock()
	return n
}
