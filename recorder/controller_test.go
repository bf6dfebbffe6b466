package recorder

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStartStopLifecycle(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider()
	recorded := &recordedCalls{}
	c := New(provider, recorded.callback(), Options{TickInterval: 10 * time.Millisecond})
	defer c.Close()

	if err := c.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}
	if got := c.Status(); got != StatusRecording {
		t.Fatalf("status = %s, want %s", got, StatusRecording)
	}

	snap := c.Snapshot()
	if snap.Recorder == nil || snap.Stream == nil || snap.Graph == nil || snap.Analyser == nil {
		t.Fatalf("recording snapshot is missing capture handles: %+v", snap)
	}

	waitFor(t, "three ticks", func() bool { return c.Duration() >= 3 })

	if err := c.StopRecording(); err != nil {
		t.Fatalf("StopRecording failed: %v", err)
	}

	if got := c.Status(); got != StatusStopped {
		t.Fatalf("status after stop = %s, want %s", got, StatusStopped)
	}
	if !provider.lastStream().Stopped() {
		t.Fatal("stream tracks were not stopped")
	}
	if !provider.lastGraph().isClosed() {
		t.Fatal("audio graph was not closed on stop")
	}
	if !provider.lastGraph().source.isDisconnected() {
		t.Fatal("source node was not disconnected on stop")
	}

	if recorded.count() != 1 {
		t.Fatalf("callback invoked %d times, want 1", recorded.count())
	}
	call := recorded.first()
	if len(call.data) == 0 || call.url == "" {
		t.Fatalf("callback received empty data or URL: %+v", call)
	}
	if c.ClipURL() != call.url {
		t.Fatalf("ClipURL = %q, want %q", c.ClipURL(), call.url)
	}
	if !bytes.Equal(c.Clip(), provider.clipData) {
		t.Fatal("Clip() does not match captured data")
	}

	// Playback element is preloaded but not started.
	if c.Snapshot().Player == nil {
		t.Fatal("expected preloaded playback element after capture")
	}
	if c.IsPlaying() {
		t.Fatal("playback must not start on capture completion")
	}

	// Duration is frozen once status leaves recording.
	frozen := c.Duration()
	time.Sleep(40 * time.Millisecond)
	if c.Duration() != frozen {
		t.Fatalf("duration advanced after stop: %d -> %d", frozen, c.Duration())
	}
}

func TestAutoStopAtTimeLimit(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider()
	recorded := &recordedCalls{}
	c := New(provider, recorded.callback(), Options{
		TimeLimit:    5,
		TickInterval: 5 * time.Millisecond,
	})
	defer c.Close()

	if err := c.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}

	waitFor(t, "automatic stop", func() bool { return c.Status() == StatusStopped })

	if d := c.Duration(); d < 5 || d > 6 {
		t.Fatalf("duration = %d, want 5 or 6", d)
	}
	waitFor(t, "completion callback", func() bool { return recorded.count() == 1 })

	// The watchdog must not fire a second stop.
	time.Sleep(30 * time.Millisecond)
	if recorded.count() != 1 {
		t.Fatalf("callback invoked %d times, want exactly 1", recorded.count())
	}
}

func TestDeniedPermissionLeavesNothingAllocated(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider()
	provider.acquireErr = errFakeDenied
	c := New(provider, nil, Options{TickInterval: 5 * time.Millisecond})
	defer c.Close()

	err := c.StartRecording(context.Background())
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if got := c.Status(); got != StatusDenied {
		t.Fatalf("status = %s, want %s", got, StatusDenied)
	}
	if provider.streamCount() != 0 {
		t.Fatal("denied acquisition must not leave streams allocated")
	}
	snap := c.Snapshot()
	if snap.Stream != nil || snap.Graph != nil || snap.Recorder != nil {
		t.Fatalf("denied snapshot still holds handles: %+v", snap)
	}

	// A later grant fully recovers.
	provider.mu.Lock()
	provider.acquireErr = nil
	provider.mu.Unlock()
	if err := c.StartRecording(context.Background()); err != nil {
		t.Fatalf("retry after denial failed: %v", err)
	}
	if got := c.Status(); got != StatusRecording {
		t.Fatalf("status after retry = %s, want %s", got, StatusRecording)
	}
}

func TestGraphFailureReleasesStream(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider()
	provider.graphErr = errors.New("no graph")
	c := New(provider, nil, Options{})
	defer c.Close()

	if err := c.StartRecording(context.Background()); err == nil {
		t.Fatal("expected error from graph failure")
	}
	if got := c.Status(); got != StatusDenied {
		t.Fatalf("status = %s, want %s", got, StatusDenied)
	}
	if !provider.lastStream().Stopped() {
		t.Fatal("stream must be released when graph construction fails")
	}
}

func TestClearRecordingResetsEverything(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider()
	recorded := &recordedCalls{}
	c := New(provider, recorded.callback(), Options{TickInterval: 5 * time.Millisecond})
	defer c.Close()

	if err := c.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}
	if err := c.StopRecording(); err != nil {
		t.Fatalf("StopRecording failed: %v", err)
	}
	waitFor(t, "completion callback", func() bool { return recorded.count() == 1 })
	url := recorded.first().url
	player := provider.lastElement()

	c.ClearRecording()

	if got := c.Status(); got != StatusReady {
		t.Fatalf("status = %s, want %s", got, StatusReady)
	}
	if c.Duration() != 0 {
		t.Fatalf("duration = %d, want 0", c.Duration())
	}
	if c.ClipURL() != "" {
		t.Fatalf("clip URL = %q, want empty", c.ClipURL())
	}
	if c.Clip() != nil {
		t.Fatal("clip data must be dropped on clear")
	}
	if !player.isClosed() {
		t.Fatal("preloaded playback element must be closed on clear")
	}

	found := false
	for _, revoked := range provider.revokedURLs() {
		if revoked == url {
			found = true
		}
	}
	if !found {
		t.Fatalf("object URL %q was not revoked on clear", url)
	}
}

func TestClearDuringActiveRecordingReleasesResources(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider()
	recorded := &recordedCalls{}
	c := New(provider, recorded.callback(), Options{TickInterval: 5 * time.Millisecond})
	defer c.Close()

	if err := c.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}
	c.ClearRecording()

	if got := c.Status(); got != StatusReady {
		t.Fatalf("status = %s, want %s", got, StatusReady)
	}
	if !provider.lastStream().Stopped() {
		t.Fatal("stream must be stopped by clear")
	}
	if !provider.lastGraph().isClosed() {
		t.Fatal("graph must be closed by clear")
	}
	// The discarded session's data must not reach the callback.
	time.Sleep(20 * time.Millisecond)
	if recorded.count() != 0 {
		t.Fatalf("callback invoked %d times for a cleared session", recorded.count())
	}
}

func TestStopWithoutActiveSessionIsNoop(t *testing.T) {
	t.Parallel()

	c := New(newFakeProvider(), nil, Options{})
	defer c.Close()

	if err := c.StopRecording(); err != nil {
		t.Fatalf("StopRecording on idle controller: %v", err)
	}
	if got := c.Status(); got != StatusReady {
		t.Fatalf("status = %s, want %s", got, StatusReady)
	}
}

func TestRestartForcesStopOfOpenSession(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider()
	recorded := &recordedCalls{}
	c := New(provider, recorded.callback(), Options{TickInterval: 5 * time.Millisecond})
	defer c.Close()

	if err := c.StartRecording(context.Background()); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	firstSession := provider.lastSession()
	firstStream := provider.lastStream()

	if err := c.StartRecording(context.Background()); err != nil {
		t.Fatalf("restart failed: %v", err)
	}

	if !firstSession.isStopped() {
		t.Fatal("previous capture session must be force-stopped")
	}
	if !firstStream.Stopped() {
		t.Fatal("previous stream must be released")
	}
	if got := c.Status(); got != StatusRecording {
		t.Fatalf("status = %s, want %s", got, StatusRecording)
	}
	if provider.streamCount() != 2 {
		t.Fatalf("stream count = %d, want 2", provider.streamCount())
	}
	// The discarded session delivers no clip.
	time.Sleep(20 * time.Millisecond)
	if recorded.count() != 0 {
		t.Fatalf("discarded session delivered a clip: %d calls", recorded.count())
	}
}

func TestLateGrantAfterClearDoesNotResurrect(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider()
	provider.acquireGate = make(chan struct{})
	provider.acquireEntered = make(chan struct{})
	c := New(provider, nil, Options{})
	defer c.Close()

	startDone := make(chan error, 1)
	go func() {
		startDone <- c.StartRecording(context.Background())
	}()

	<-provider.acquireEntered
	c.ClearRecording()
	close(provider.acquireGate)

	if err := <-startDone; err != nil {
		t.Fatalf("superseded start returned error: %v", err)
	}
	if got := c.Status(); got != StatusReady {
		t.Fatalf("status = %s, want %s", got, StatusReady)
	}
	if stream := provider.lastStream(); stream != nil && !stream.Stopped() {
		t.Fatal("late-granted stream must be stopped immediately")
	}
	if snap := c.Snapshot(); snap.Stream != nil || snap.Recorder != nil {
		t.Fatal("late grant must not install capture handles")
	}
}

func TestPlayWithoutClipIsNoop(t *testing.T) {
	t.Parallel()

	c := New(newFakeProvider(), nil, Options{})
	defer c.Close()

	if err := c.StartPlaying(""); err != nil {
		t.Fatalf("StartPlaying on empty controller: %v", err)
	}
	if c.IsPlaying() {
		t.Fatal("isPlaying must stay false without a clip or URL")
	}
}

func TestPlayExplicitURLThenResume(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider()
	c := New(provider, nil, Options{})
	defer c.Close()

	if err := c.StartPlaying("https://example.com/clip.wav"); err != nil {
		t.Fatalf("StartPlaying failed: %v", err)
	}
	if !c.IsPlaying() {
		t.Fatal("expected playing state")
	}
	if c.ClipURL() != "https://example.com/clip.wav" {
		t.Fatalf("clip URL = %q", c.ClipURL())
	}

	if err := c.StopPlaying(); err != nil {
		t.Fatalf("StopPlaying failed: %v", err)
	}
	if c.IsPlaying() {
		t.Fatal("expected stopped state")
	}

	// Resume without a URL reuses the stored element.
	if err := c.StartPlaying(""); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if !c.IsPlaying() {
		t.Fatal("expected playing state after resume")
	}
	if got := provider.elementCount(); got != 1 {
		t.Fatalf("element count = %d, want 1 (resume must not allocate)", got)
	}
}

func TestPlayReplacementSilencesPreviousElement(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider()
	c := New(provider, nil, Options{})
	defer c.Close()

	if err := c.StartPlaying("https://example.com/a.wav"); err != nil {
		t.Fatalf("first StartPlaying failed: %v", err)
	}
	first := provider.lastElement()

	if err := c.StartPlaying("https://example.com/b.wav"); err != nil {
		t.Fatalf("second StartPlaying failed: %v", err)
	}
	second := provider.lastElement()

	if first == second {
		t.Fatal("expected a fresh element for the new URL")
	}
	if first.isPlaying() || !first.isClosed() {
		t.Fatal("previous element must be silenced and closed on replacement")
	}
	if !second.isPlaying() || !c.IsPlaying() {
		t.Fatal("new element must be playing")
	}
}

func TestSlowPlaybackStartDoesNotStallController(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider()
	c := New(provider, nil, Options{TickInterval: 10 * time.Millisecond})
	defer c.Close()

	// Produce a clip so a playback element is preloaded.
	if err := c.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}
	if err := c.StopRecording(); err != nil {
		t.Fatalf("StopRecording failed: %v", err)
	}
	elem := provider.lastElement()
	if elem == nil {
		t.Fatal("expected preloaded playback element")
	}
	elem.playGate = make(chan struct{})
	elem.playEntered = make(chan struct{})

	// Start a new capture so the duration counter is live, then begin
	// playback of the previous clip while its element starts slowly.
	if err := c.StartRecording(context.Background()); err != nil {
		t.Fatalf("second StartRecording failed: %v", err)
	}
	playDone := make(chan error, 1)
	go func() {
		playDone <- c.StartPlaying("")
	}()
	<-elem.playEntered

	// With the element stuck in Play, status reads must not block and
	// the duration counter must keep advancing.
	base := c.Duration()
	waitFor(t, "ticks while playback starts", func() bool { return c.Duration() >= base+2 })
	if got := c.Status(); got != StatusRecording {
		t.Fatalf("status = %s, want %s", got, StatusRecording)
	}

	close(elem.playGate)
	if err := <-playDone; err != nil {
		t.Fatalf("StartPlaying failed: %v", err)
	}
	if !c.IsPlaying() {
		t.Fatal("expected playing state once the element started")
	}
}

func TestCloseDuringSlowPlaybackStartSilencesElement(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider()
	c := New(provider, nil, Options{})

	if err := c.StartPlaying("https://example.com/a.wav"); err != nil {
		t.Fatalf("StartPlaying failed: %v", err)
	}
	if err := c.StopPlaying(); err != nil {
		t.Fatalf("StopPlaying failed: %v", err)
	}
	elem := provider.lastElement()
	elem.playGate = make(chan struct{})
	elem.playEntered = make(chan struct{})

	playDone := make(chan error, 1)
	go func() {
		playDone <- c.StartPlaying("")
	}()
	<-elem.playEntered

	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	close(elem.playGate)

	if err := <-playDone; !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from superseded start, got %v", err)
	}
	if elem.isPlaying() {
		t.Fatal("element must not keep playing after Close")
	}
	if elem.hasEndedHandler() {
		t.Fatal("ended handler must be deregistered on the orphaned element")
	}
}

func TestEndOfTrackMarksStopped(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider()
	c := New(provider, nil, Options{})
	defer c.Close()

	if err := c.StartPlaying("https://example.com/a.wav"); err != nil {
		t.Fatalf("StartPlaying failed: %v", err)
	}
	provider.lastElement().fireEnded()

	if c.IsPlaying() {
		t.Fatal("natural end of track must clear the playing flag")
	}
}

func TestStopPlayingDeregistersEndedHandler(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider()
	c := New(provider, nil, Options{})
	defer c.Close()

	if err := c.StartPlaying("https://example.com/a.wav"); err != nil {
		t.Fatalf("StartPlaying failed: %v", err)
	}
	elem := provider.lastElement()
	if !elem.hasEndedHandler() {
		t.Fatal("expected registered ended handler while playing")
	}

	if err := c.StopPlaying(); err != nil {
		t.Fatalf("StopPlaying failed: %v", err)
	}
	if elem.hasEndedHandler() {
		t.Fatal("ended handler must be removed by the exact registered instance")
	}
	if elem.isPlaying() {
		t.Fatal("element must be paused")
	}
}

func TestByteMonitorPublishesFrequencyData(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider()
	c := New(provider, nil, Options{
		ByteMonitor:     true,
		MonitorInterval: 5 * time.Millisecond,
		TickInterval:    time.Hour,
	})
	defer c.Close()

	if err := c.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}

	waitFor(t, "frequency poll", func() bool {
		return bytes.Equal(c.FrequencyData(), provider.monitorBins)
	})
	if c.Analyser() == nil {
		t.Fatal("analyser handle must be exposed while capture is open")
	}
}

func TestTimeSliceWiresChunkHandler(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider()
	var chunks [][]byte
	done := make(chan struct{}, 1)
	c := New(provider, nil, Options{
		TimeSlice: 10 * time.Millisecond,
		OnChunk: func(chunk []byte) {
			chunks = append(chunks, chunk)
			done <- struct{}{}
		},
	})
	defer c.Close()

	if err := c.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}
	session := provider.lastSession()
	if session.sliceInterval() != 10*time.Millisecond {
		t.Fatalf("session timeslice = %v, want 10ms", session.sliceInterval())
	}

	session.fireChunk([]byte("part"))
	<-done
	if len(chunks) != 1 || string(chunks[0]) != "part" {
		t.Fatalf("chunks = %v", chunks)
	}
}

func TestSetRecordingStatusOverride(t *testing.T) {
	t.Parallel()

	c := New(newFakeProvider(), nil, Options{})
	defer c.Close()

	c.SetRecordingStatus(StatusStopped)
	if got := c.Status(); got != StatusStopped {
		t.Fatalf("status = %s, want %s", got, StatusStopped)
	}
}

func TestCloseRejectsFurtherOperations(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider()
	c := New(provider, nil, Options{TickInterval: 5 * time.Millisecond})

	if err := c.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !provider.lastStream().Stopped() {
		t.Fatal("close must release the open capture")
	}
	if err := c.StartRecording(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := c.StopPlaying(); !errors.Is(err, ErrClosed) {
		t.Fatalf("StopPlaying after close: expected ErrClosed, got %v", err)
	}
	c.SetRecordingStatus(StatusRecording)
	if got := c.Status(); got != StatusReady {
		t.Fatalf("closed controller accepted status override: %s", got)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close must be a no-op, got %v", err)
	}
}
