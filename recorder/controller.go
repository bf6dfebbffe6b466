// Package recorder implements a state controller for voice recording and
// playback. The controller owns a single reducer-managed snapshot and
// coordinates the host capabilities (microphone stream, capture session,
// audio graph, playback element) supplied by an injected CapabilityProvider.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrClosed is returned by operations invoked after Close.
	ErrClosed = errors.New("recorder: controller closed")
	// ErrPermissionDenied wraps any microphone acquisition failure.
	ErrPermissionDenied = errors.New("recorder: microphone permission denied")
)

// OnRecorded is invoked exactly once per completed capture session with the
// raw clip and its object URL, after the status has transitioned to stopped.
// It is the extension point for persistence or upload; the controller keeps
// only the most recent clip.
type OnRecorded func(data []byte, url string)

// Options configures a Controller.
type Options struct {
	// TimeLimit is the maximum recording duration in seconds. When elapsed
	// duration reaches it the capture is stopped automatically, overshooting
	// by at most one tick. Zero means unlimited.
	TimeLimit int

	// TimeSlice enables chunked capture: while recording, partial PCM data
	// is delivered to OnChunk at this interval. Zero disables chunking; the
	// clip is then delivered only once, at stop.
	TimeSlice time.Duration

	// OnChunk receives partial capture data when TimeSlice is set.
	OnChunk func(chunk []byte)

	// ByteMonitor enables periodic polling of the analyser's frequency data
	// into the snapshot while a capture is open.
	ByteMonitor bool

	// MonitorInterval is the byte monitor cadence. Defaults to 100ms.
	MonitorInterval time.Duration

	// TickInterval is the duration counter resolution. Defaults to one
	// second; each tick advances Duration by one.
	TickInterval time.Duration
}

// Controller is the recorder/player state controller. All operations are
// serialized on an internal mutex; asynchronous host events (capture
// completion, end of track, ticks) are folded into the same serialization.
type Controller struct {
	provider   CapabilityProvider
	onRecorded OnRecorded
	opts       Options

	mu          sync.Mutex
	snap        Snapshot
	gen         uint64 // capture session generation; bumped on start and clear
	delivered   bool   // clip delivered for the current generation
	clip        []byte
	ownedURL    string // object URL allocated by us, revoked on clear
	watchStop   chan struct{}
	monitorStop chan struct{}
	closed      bool
}

// New creates a controller around the given capability provider. onRecorded
// may be nil when the caller has no use for completed clips.
func New(provider CapabilityProvider, onRecorded OnRecorded, opts Options) *Controller {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.MonitorInterval <= 0 {
		opts.MonitorInterval = 100 * time.Millisecond
	}
	return &Controller{
		provider:   provider,
		onRecorded: onRecorded,
		opts:       opts,
		snap:       Snapshot{Status: StatusReady},
	}
}

// dispatch applies a transition to the snapshot. Callers hold c.mu.
func (c *Controller) dispatch(a action) {
	c.snap = reduce(c.snap, a)
}

// StartRecording begins a capture session: acquires the microphone, builds
// the processing graph, starts the capture session and the duration
// watchdog. A capture already open is force-stopped first and its in-flight
// clip discarded. Acquisition failure of any kind sets the status to denied
// and leaves no resources allocated.
func (c *Controller) StartRecording(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	var stale releasedResources
	if c.snap.Recorder != nil || c.snap.Stream != nil {
		slog.Debug("restarting capture, discarding open session")
		stale = c.detachCaptureLocked()
	}
	c.gen++
	gen := c.gen
	c.delivered = false
	c.dispatch(action{kind: actionSetStatus, status: StatusReady})
	c.dispatch(action{kind: actionSetDuration, seconds: 0})
	c.mu.Unlock()

	stale.release(nil)

	stream, acqErr := c.provider.AcquireMicrophone(ctx)

	c.mu.Lock()
	if c.closed || c.gen != gen {
		// A stop, clear or restart happened while the permission request
		// was in flight; a late grant must not resurrect the session.
		wasClosed := c.closed
		c.mu.Unlock()
		if acqErr == nil && stream != nil {
			stream.StopTracks()
		}
		if wasClosed {
			return ErrClosed
		}
		return nil
	}
	if acqErr != nil {
		c.dispatch(action{kind: actionSetStatus, status: StatusDenied})
		c.mu.Unlock()
		slog.Warn("microphone acquisition failed", "error", acqErr)
		return fmt.Errorf("%w: %v", ErrPermissionDenied, acqErr)
	}

	graph, err := c.provider.CreateAudioGraph(stream)
	if err != nil {
		stream.StopTracks()
		c.dispatch(action{kind: actionSetStatus, status: StatusDenied})
		c.mu.Unlock()
		return fmt.Errorf("create audio graph: %w", err)
	}

	session, err := c.provider.CreateCaptureSession(stream)
	if err != nil {
		_ = graph.Close()
		stream.StopTracks()
		c.dispatch(action{kind: actionSetStatus, status: StatusDenied})
		c.mu.Unlock()
		return fmt.Errorf("create capture session: %w", err)
	}

	session.SetOnData(func(data []byte) {
		c.handleCaptureData(gen, data)
	})
	if c.opts.OnChunk != nil && c.opts.TimeSlice > 0 {
		session.SetOnChunk(c.opts.OnChunk)
	}

	if err := session.Start(c.opts.TimeSlice); err != nil {
		session.ClearOnData()
		session.ClearOnChunk()
		_ = graph.Close()
		stream.StopTracks()
		c.dispatch(action{kind: actionSetStatus, status: StatusDenied})
		c.mu.Unlock()
		return fmt.Errorf("start capture: %w", err)
	}

	c.dispatch(action{
		kind:     actionSetCaptureGraph,
		stream:   stream,
		graph:    graph,
		source:   graph.Source(),
		analyser: graph.Analyser(),
	})
	c.dispatch(action{kind: actionSetRecorder, recorder: session})
	c.dispatch(action{kind: actionStartRecording})

	c.watchStop = make(chan struct{})
	go c.watch(gen, c.watchStop)
	if c.opts.ByteMonitor {
		c.monitorStop = make(chan struct{})
		go c.monitor(gen, graph.Analyser(), c.monitorStop)
	}
	c.mu.Unlock()

	slog.Debug("recording started", "time_limit_s", c.opts.TimeLimit)
	return nil
}

// handleCaptureData folds a completed clip into the controller state. Data
// arriving for a superseded session generation is dropped, which also
// enforces exactly-once delivery semantics.
func (c *Controller) handleCaptureData(gen uint64, data []byte) {
	c.mu.Lock()
	if c.closed || c.gen != gen || c.delivered {
		c.mu.Unlock()
		return
	}
	c.delivered = true

	url := c.provider.CreateObjectURL(data)
	if c.ownedURL != "" {
		c.provider.RevokeObjectURL(c.ownedURL)
	}
	c.ownedURL = url
	c.clip = data

	c.dispatch(action{kind: actionStopRecording})
	c.dispatch(action{kind: actionSetClipURL, url: url})

	// Preload a playback element for the clip without starting playback.
	if elem, err := c.provider.CreatePlaybackElement(url); err == nil {
		c.replacePlayerLocked(elem)
	} else {
		slog.Warn("failed to preload playback element", "url", url, "error", err)
	}

	cb := c.onRecorded
	c.mu.Unlock()

	slog.Debug("capture completed", "bytes", len(data), "url", url)
	if cb != nil {
		cb(data, url)
	}
}

// StopRecording ends the current capture session. It finalizes the capture
// (triggering the completion handler), stops every track in the live stream
// and releases the whole audio graph. A call with no open session is a
// silent no-op.
func (c *Controller) StopRecording() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	session := c.snap.Recorder
	if session == nil {
		c.mu.Unlock()
		return nil
	}
	c.stopTimersLocked()
	c.dispatch(action{kind: actionStopRecording})
	stream := c.snap.Stream
	graph := c.snap.Graph
	source := c.snap.Source
	c.dispatch(action{kind: actionClearCaptureGraph})
	c.dispatch(action{kind: actionClearRecorder})
	c.mu.Unlock()

	// Finalize outside the lock; the completion handler may fire
	// synchronously from Stop. The data handler stays registered until it
	// fires once; the generation guard drops anything later.
	err := session.Stop()
	if source != nil {
		source.Disconnect()
	}
	if graph != nil {
		_ = graph.Close()
	}
	if stream != nil {
		stream.StopTracks()
	}
	if err != nil {
		return fmt.Errorf("stop capture: %w", err)
	}
	slog.Debug("recording stopped")
	return nil
}

// SetRecordingStatus overrides the recording status directly. Escape hatch
// for UI-driven correction; it does not touch any resource. Ignored after
// Close.
func (c *Controller) SetRecordingStatus(st Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.dispatch(action{kind: actionSetStatus, status: st})
}

// ClearRecording resets the controller to its initial state and releases
// every acquired host resource, including the clip's object URL and any
// preloaded playback element.
func (c *Controller) ClearRecording() {
	c.mu.Lock()
	res := c.detachAllLocked()
	provider := c.provider
	c.mu.Unlock()
	res.release(provider)
}

// Close disposes the controller. It performs the same reset as
// ClearRecording and rejects all further operations. Close is idempotent.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	res := c.detachAllLocked()
	provider := c.provider
	c.mu.Unlock()
	res.release(provider)
	return nil
}

// StartPlaying begins playback. With a URL it constructs a fresh playback
// element for it, replacing (and silencing) any current one. Without a URL
// it resumes the stored element, or does nothing when none exists.
func (c *Controller) StartPlaying(url string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}

	elem := c.snap.Player
	if url != "" {
		fresh, err := c.provider.CreatePlaybackElement(url)
		if err != nil {
			c.mu.Unlock()
			return fmt.Errorf("create playback element: %w", err)
		}
		c.replacePlayerLocked(fresh)
		c.dispatch(action{kind: actionSetClipURL, url: url})
		elem = fresh
	}
	if elem == nil {
		c.mu.Unlock()
		return nil
	}
	elem.SetOnEnded(c.endedHandler(elem))
	c.mu.Unlock()

	// Play may resolve and decode the clip, which can be slow for remote
	// URLs. The lock stays released so status reads and the duration
	// watchdog keep running while the element starts.
	if err := elem.Play(); err != nil {
		elem.ClearOnEnded()
		return fmt.Errorf("start playback: %w", err)
	}

	c.mu.Lock()
	if c.closed || c.snap.Player != elem {
		// Replaced, cleared or closed while the element was starting; the
		// orphaned element must not keep producing audio.
		wasClosed := c.closed
		c.mu.Unlock()
		elem.ClearOnEnded()
		_ = elem.Pause()
		if wasClosed {
			return ErrClosed
		}
		return nil
	}
	c.dispatch(action{kind: actionStartPlaying})
	c.mu.Unlock()
	return nil
}

// StopPlaying pauses the current playback element and deregisters its
// end-of-track handler. No-op without an element.
func (c *Controller) StopPlaying() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	elem := c.snap.Player
	if elem == nil {
		c.mu.Unlock()
		return nil
	}
	c.dispatch(action{kind: actionStopPlaying})
	c.mu.Unlock()

	elem.ClearOnEnded()
	if err := elem.Pause(); err != nil {
		return fmt.Errorf("pause playback: %w", err)
	}
	return nil
}

// endedHandler returns the end-of-track handler for elem. The handler only
// marks playback stopped while elem is still the current element.
func (c *Controller) endedHandler(elem PlaybackElement) func() {
	return func() {
		c.mu.Lock()
		if !c.closed && c.snap.Player == elem {
			c.dispatch(action{kind: actionStopPlaying})
		}
		c.mu.Unlock()
	}
}

// replacePlayerLocked installs elem as the current playback element, tearing
// the previous one down so it cannot keep producing audio.
func (c *Controller) replacePlayerLocked(elem PlaybackElement) {
	if old := c.snap.Player; old != nil && old != elem {
		old.ClearOnEnded()
		_ = old.Pause()
		_ = old.Close()
		if c.snap.Playing {
			c.dispatch(action{kind: actionStopPlaying})
		}
	}
	c.dispatch(action{kind: actionSetPlayer, player: elem})
}

// Status returns the current recording status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.Status
}

// IsPlaying reports whether a playback session is active.
func (c *Controller) IsPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.Playing
}

// Duration returns the elapsed whole seconds of the current or most recent
// recording.
func (c *Controller) Duration() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.Duration
}

// ClipURL returns the object URL of the most recent clip, or "".
func (c *Controller) ClipURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.ClipURL
}

// Clip returns a copy of the most recent captured clip, or nil.
func (c *Controller) Clip() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.clip == nil {
		return nil
	}
	out := make([]byte, len(c.clip))
	copy(out, c.clip)
	return out
}

// FrequencyData returns the latest byte-monitor poll, or nil when the
// monitor is disabled or no capture is open.
func (c *Controller) FrequencyData() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.FrequencyBins
}

// Analyser returns the live analyser node for external visualization, or
// nil when no capture is open.
func (c *Controller) Analyser() AnalyserNode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.Analyser
}

// Snapshot returns a copy of the full state record.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// releasedResources is the transactional unit of capture/playback teardown:
// everything detached from the snapshot under the lock, released together
// outside it.
type releasedResources struct {
	session CaptureSession
	stream  MediaStream
	graph   AudioGraph
	source  SourceNode
	player  PlaybackElement
	url     string
}

func (r releasedResources) release(provider CapabilityProvider) {
	if r.session != nil {
		r.session.ClearOnData()
		r.session.ClearOnChunk()
		_ = r.session.Stop()
	}
	if r.source != nil {
		r.source.Disconnect()
	}
	if r.graph != nil {
		_ = r.graph.Close()
	}
	if r.stream != nil {
		r.stream.StopTracks()
	}
	if r.player != nil {
		r.player.ClearOnEnded()
		_ = r.player.Pause()
		_ = r.player.Close()
	}
	if r.url != "" && provider != nil {
		provider.RevokeObjectURL(r.url)
	}
}

// detachCaptureLocked strips the open capture's resources from the snapshot
// without touching status, duration or playback state. Callers hold c.mu.
func (c *Controller) detachCaptureLocked() releasedResources {
	c.stopTimersLocked()
	res := releasedResources{
		session: c.snap.Recorder,
		stream:  c.snap.Stream,
		graph:   c.snap.Graph,
		source:  c.snap.Source,
	}
	c.dispatch(action{kind: actionClearCaptureGraph})
	c.dispatch(action{kind: actionClearRecorder})
	return res
}

// detachAllLocked resets the snapshot to its initial value and returns every
// held resource for release. Callers hold c.mu.
func (c *Controller) detachAllLocked() releasedResources {
	c.gen++
	c.delivered = false
	c.stopTimersLocked()
	res := releasedResources{
		session: c.snap.Recorder,
		stream:  c.snap.Stream,
		graph:   c.snap.Graph,
		source:  c.snap.Source,
		player:  c.snap.Player,
		url:     c.ownedURL,
	}
	c.ownedURL = ""
	c.clip = nil
	c.dispatch(action{kind: actionReset})
	return res
}

func (c *Controller) stopTimersLocked() {
	if c.watchStop != nil {
		close(c.watchStop)
		c.watchStop = nil
	}
	if c.monitorStop != nil {
		close(c.monitorStop)
		c.monitorStop = nil
	}
}
