package recorder

import (
	"context"
	"time"
)

// MediaStream is a live microphone stream owned by the controller while a
// capture is open.
type MediaStream interface {
	// StopTracks stops every track in the stream, releasing the device.
	StopTracks()
	// Stopped reports whether the stream's tracks have been stopped.
	Stopped() bool
}

// AnalyserNode exposes frequency-domain data for the live stream. Consumers
// may poll it at any cadence while the capture is open.
type AnalyserNode interface {
	// FrequencyBinCount is the number of bins ByteFrequencyData fills.
	FrequencyBinCount() int
	// ByteFrequencyData writes the current frequency magnitudes, scaled to
	// 0..255, into dst. Extra capacity is left untouched.
	ByteFrequencyData(dst []byte)
}

// SourceNode feeds the live stream into the analyser.
type SourceNode interface {
	Disconnect()
}

// AudioGraph is the processing chain (source -> analyser) built over a live
// stream.
type AudioGraph interface {
	Source() SourceNode
	Analyser() AnalyserNode
	// Close tears the graph down. Safe to call after the stream stopped.
	Close() error
}

// CaptureSession coordinates encoding of microphone input into a clip.
//
// The data handler fires exactly once per session, after Stop, with the
// complete clip. When a capture is started with a non-zero timeslice the
// chunk handler additionally receives periodic partial data.
type CaptureSession interface {
	Start(timeslice time.Duration) error
	Stop() error
	SetOnData(fn func(data []byte))
	ClearOnData()
	SetOnChunk(fn func(chunk []byte))
	ClearOnChunk()
}

// PlaybackElement renders an audio URL to the listener.
type PlaybackElement interface {
	Play() error
	Pause() error
	// SetOnEnded registers the handler fired on natural end of track. A
	// subsequent SetOnEnded replaces it; ClearOnEnded removes it without
	// needing the original closure.
	SetOnEnded(fn func())
	ClearOnEnded()
	Close() error
}

// CapabilityProvider supplies the host platform primitives the controller
// orchestrates. Implementations must be safe for use from multiple
// goroutines.
type CapabilityProvider interface {
	// AcquireMicrophone requests microphone access. Any failure (user
	// denial, no device, platform restriction) is reported as an error and
	// leaves nothing allocated.
	AcquireMicrophone(ctx context.Context) (MediaStream, error)
	CreateAudioGraph(stream MediaStream) (AudioGraph, error)
	CreateCaptureSession(stream MediaStream) (CaptureSession, error)
	CreatePlaybackElement(url string) (PlaybackElement, error)
	// CreateObjectURL registers data and returns a transient URL for it.
	CreateObjectURL(data []byte) string
	RevokeObjectURL(url string)
}
