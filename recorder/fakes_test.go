package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

type fakeStream struct {
	mu      sync.Mutex
	stopped bool
}

func (s *fakeStream) StopTracks() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

func (s *fakeStream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type fakeAnalyser struct {
	bins []byte
}

func (a *fakeAnalyser) FrequencyBinCount() int { return len(a.bins) }

func (a *fakeAnalyser) ByteFrequencyData(dst []byte) { copy(dst, a.bins) }

type fakeSource struct {
	mu           sync.Mutex
	disconnected bool
}

func (s *fakeSource) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnected = true
}

func (s *fakeSource) isDisconnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnected
}

type fakeGraph struct {
	mu       sync.Mutex
	analyser *fakeAnalyser
	source   *fakeSource
	closed   bool
}

func (g *fakeGraph) Source() SourceNode     { return g.source }
func (g *fakeGraph) Analyser() AnalyserNode { return g.analyser }

func (g *fakeGraph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}

func (g *fakeGraph) isClosed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

type fakeSession struct {
	mu        sync.Mutex
	started   bool
	stopped   bool
	timeslice time.Duration
	onData    func([]byte)
	onChunk   func([]byte)
	data      []byte
	startErr  error
}

func (s *fakeSession) Start(timeslice time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	s.timeslice = timeslice
	return nil
}

func (s *fakeSession) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	fn := s.onData
	data := s.data
	s.mu.Unlock()

	if fn != nil && data != nil {
		fn(data)
	}
	return nil
}

func (s *fakeSession) SetOnData(fn func([]byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onData = fn
}

func (s *fakeSession) ClearOnData() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onData = nil
}

func (s *fakeSession) SetOnChunk(fn func([]byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChunk = fn
}

func (s *fakeSession) ClearOnChunk() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChunk = nil
}

func (s *fakeSession) fireChunk(chunk []byte) {
	s.mu.Lock()
	fn := s.onChunk
	s.mu.Unlock()
	if fn != nil {
		fn(chunk)
	}
}

func (s *fakeSession) sliceInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeslice
}

func (s *fakeSession) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type fakeElement struct {
	mu      sync.Mutex
	url     string
	playing bool
	closed  bool
	onEnded func()
	playErr error

	// playGate, when non-nil, blocks Play until closed; playEntered is
	// closed once the call is in flight.
	playGate    chan struct{}
	playEntered chan struct{}
}

func (e *fakeElement) Play() error {
	e.mu.Lock()
	gate := e.playGate
	entered := e.playEntered
	e.mu.Unlock()

	if entered != nil {
		close(entered)
	}
	if gate != nil {
		<-gate
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.playErr != nil {
		return e.playErr
	}
	e.playing = true
	return nil
}

func (e *fakeElement) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playing = false
	return nil
}

func (e *fakeElement) SetOnEnded(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onEnded = fn
}

func (e *fakeElement) ClearOnEnded() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onEnded = nil
}

func (e *fakeElement) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playing = false
	e.closed = true
	return nil
}

func (e *fakeElement) fireEnded() {
	e.mu.Lock()
	e.playing = false
	fn := e.onEnded
	e.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (e *fakeElement) isPlaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

func (e *fakeElement) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *fakeElement) hasEndedHandler() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.onEnded != nil
}

type fakeProvider struct {
	mu          sync.Mutex
	acquireErr  error
	graphErr    error
	sessionErr  error
	elementErr  error
	clipData    []byte
	monitorBins []byte

	// acquireGate, when non-nil, blocks AcquireMicrophone until closed;
	// acquireEntered is closed once the call is in flight.
	acquireGate    chan struct{}
	acquireEntered chan struct{}

	streams  []*fakeStream
	graphs   []*fakeGraph
	sessions []*fakeSession
	elements []*fakeElement
	revoked  []string
	seq      int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		clipData:    []byte("clip-data"),
		monitorBins: []byte{1, 2, 3, 4},
	}
}

func (p *fakeProvider) AcquireMicrophone(ctx context.Context) (MediaStream, error) {
	p.mu.Lock()
	gate := p.acquireGate
	entered := p.acquireEntered
	p.mu.Unlock()

	if entered != nil {
		close(entered)
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.acquireErr != nil {
		return nil, p.acquireErr
	}
	s := &fakeStream{}
	p.streams = append(p.streams, s)
	return s, nil
}

func (p *fakeProvider) CreateAudioGraph(stream MediaStream) (AudioGraph, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.graphErr != nil {
		return nil, p.graphErr
	}
	g := &fakeGraph{analyser: &fakeAnalyser{bins: p.monitorBins}, source: &fakeSource{}}
	p.graphs = append(p.graphs, g)
	return g, nil
}

func (p *fakeProvider) CreateCaptureSession(stream MediaStream) (CaptureSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sessionErr != nil {
		return nil, p.sessionErr
	}
	s := &fakeSession{data: p.clipData}
	p.sessions = append(p.sessions, s)
	return s, nil
}

func (p *fakeProvider) CreatePlaybackElement(url string) (PlaybackElement, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.elementErr != nil {
		return nil, p.elementErr
	}
	e := &fakeElement{url: url}
	p.elements = append(p.elements, e)
	return e, nil
}

func (p *fakeProvider) CreateObjectURL(data []byte) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	return fmt.Sprintf("blob:fake-%d", p.seq)
}

func (p *fakeProvider) RevokeObjectURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revoked = append(p.revoked, url)
}

func (p *fakeProvider) streamCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.streams)
}

func (p *fakeProvider) lastStream() *fakeStream {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.streams) == 0 {
		return nil
	}
	return p.streams[len(p.streams)-1]
}

func (p *fakeProvider) lastSession() *fakeSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sessions) == 0 {
		return nil
	}
	return p.sessions[len(p.sessions)-1]
}

func (p *fakeProvider) lastGraph() *fakeGraph {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.graphs) == 0 {
		return nil
	}
	return p.graphs[len(p.graphs)-1]
}

func (p *fakeProvider) elementCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.elements)
}

func (p *fakeProvider) lastElement() *fakeElement {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.elements) == 0 {
		return nil
	}
	return p.elements[len(p.elements)-1]
}

func (p *fakeProvider) revokedURLs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.revoked))
	copy(out, p.revoked)
	return out
}

var errFakeDenied = errors.New("permission denied by fake")

// recordedCalls collects OnRecorded invocations.
type recordedCalls struct {
	mu    sync.Mutex
	calls []recordedCall
}

type recordedCall struct {
	data []byte
	url  string
}

func (r *recordedCalls) callback() OnRecorded {
	return func(data []byte, url string) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.calls = append(r.calls, recordedCall{data: data, url: url})
	}
}

func (r *recordedCalls) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *recordedCalls) first() recordedCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[0]
}
