package recorder

// Status represents the current state of the recording side of the controller.
type Status string

const (
	StatusReady     Status = "ready"
	StatusRecording Status = "recording"
	StatusStopped   Status = "stopped"
	StatusDenied    Status = "denied"
)

// Snapshot is the controller's state record. It is replaced wholesale on
// every transition; callers receive copies and must not mutate handle fields.
type Snapshot struct {
	Status  Status
	Playing bool

	// Host-capability handles. Stream, Graph, Source and Analyser are
	// acquired together and released together while a capture is open.
	Recorder CaptureSession
	Player   PlaybackElement
	Stream   MediaStream
	Graph    AudioGraph
	Source   SourceNode
	Analyser AnalyserNode

	// ClipURL is the object URL of the most recent capture, or the URL of
	// an externally supplied clip. Empty means none.
	ClipURL string

	// Duration is the elapsed whole seconds of the current or most recent
	// recording.
	Duration int

	// FrequencyBins holds the latest frequency-domain poll when the byte
	// monitor is enabled.
	FrequencyBins []byte
}

type actionKind int

const (
	actionSetStatus actionKind = iota
	actionStartRecording
	actionStopRecording
	actionSetRecorder
	actionClearRecorder
	actionSetPlayer
	actionClearPlayer
	actionStartPlaying
	actionStopPlaying
	actionSetCaptureGraph
	actionClearCaptureGraph
	actionSetClipURL
	actionSetDuration
	actionSetFrequencyBins
	actionReset
)

// action is a named transition with an optional payload. Only the fields
// relevant to the kind are set.
type action struct {
	kind     actionKind
	status   Status
	recorder CaptureSession
	player   PlaybackElement
	stream   MediaStream
	graph    AudioGraph
	source   SourceNode
	analyser AnalyserNode
	url      string
	seconds  int
	bins     []byte
}

// reduce maps (snapshot, action) to a new snapshot. It performs no side
// effects and no validation; invariant enforcement belongs to the callers.
// Unrecognized actions leave the snapshot unchanged.
func reduce(s Snapshot, a action) Snapshot {
	switch a.kind {
	case actionSetStatus:
		s.Status = a.status
	case actionStartRecording:
		s.Status = StatusRecording
	case actionStopRecording:
		s.Status = StatusStopped
	case actionSetRecorder:
		s.Recorder = a.recorder
	case actionClearRecorder:
		s.Recorder = nil
	case actionSetPlayer:
		s.Player = a.player
	case actionClearPlayer:
		s.Player = nil
	case actionStartPlaying:
		s.Playing = true
	case actionStopPlaying:
		s.Playing = false
	case actionSetCaptureGraph:
		s.Stream = a.stream
		s.Graph = a.graph
		s.Source = a.source
		s.Analyser = a.analyser
	case actionClearCaptureGraph:
		s.Stream = nil
		s.Graph = nil
		s.Source = nil
		s.Analyser = nil
	case actionSetClipURL:
		s.ClipURL = a.url
	case actionSetDuration:
		s.Duration = a.seconds
	case actionSetFrequencyBins:
		s.FrequencyBins = a.bins
	case actionReset:
		s = Snapshot{Status: StatusReady}
	default:
		// Unknown actions leave the snapshot unchanged.
	}
	return s
}
