// Package server exposes the recorder over HTTP for a browser UI: record and
// playback control, clip download, saved clip listings and a websocket feed
// of live frequency data.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chuikoffru/voicerec/internal/clipstore"
	"github.com/chuikoffru/voicerec/recorder"
)

// Server is the web front end over a recorder controller.
type Server struct {
	ctrl            *recorder.Controller
	store           *clipstore.Store
	port            string
	monitorInterval time.Duration
	upgrader        websocket.Upgrader
}

// StatusResponse is the JSON body of the status endpoint.
type StatusResponse struct {
	Status   string `json:"status"`
	Playing  bool   `json:"playing"`
	Duration int    `json:"duration"`
	ClipURL  string `json:"clip_url,omitempty"`
}

// ClipsResponse is the JSON body of the saved clips endpoint.
type ClipsResponse struct {
	Clips      []clipstore.ClipInfo `json:"clips"`
	TotalCount int                  `json:"total_count"`
}

// MonitorFrame is one websocket message of live frequency data.
type MonitorFrame struct {
	Bins []int `json:"bins"`
}

// New creates a web server over the given controller and clip store.
func New(ctrl *recorder.Controller, store *clipstore.Store, port string, monitorInterval time.Duration) *Server {
	if monitorInterval <= 0 {
		monitorInterval = 100 * time.Millisecond
	}
	return &Server{
		ctrl:            ctrl,
		store:           store,
		port:            port,
		monitorInterval: monitorInterval,
		upgrader:        websocket.Upgrader{},
	}
}

// Start runs the HTTP server until it fails.
func (s *Server) Start() error {
	localIP := getLocalIP()
	slog.Info("Starting voicerec web server",
		"port", s.port,
		"local_url", fmt.Sprintf("http://%s:%s", localIP, s.port),
		"localhost_url", fmt.Sprintf("http://localhost:%s", s.port))

	return http.ListenAndServe(":"+s.port, s.routes())
}

// routes builds the request mux. Split out so tests can drive handlers
// without a listening socket.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/record/start", s.handleRecordStart)
	mux.HandleFunc("/api/record/stop", s.handleRecordStop)
	mux.HandleFunc("/api/record/clear", s.handleRecordClear)
	mux.HandleFunc("/api/play", s.handlePlay)
	mux.HandleFunc("/api/pause", s.handlePause)
	mux.HandleFunc("/api/clip", s.handleClip)
	mux.HandleFunc("/api/clips", s.handleClips)
	mux.HandleFunc("/api/clips/save", s.handleClipSave)
	mux.HandleFunc("/api/clips/stream/", s.handleClipStream)
	mux.HandleFunc("/api/monitor", s.handleMonitor)
	return mux
}

// handleIndex serves the built-in web UI.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write([]byte(indexHTML))
}

// handleStatus returns the current recorder state.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(StatusResponse{
		Status:   string(s.ctrl.Status()),
		Playing:  s.ctrl.IsPlaying(),
		Duration: s.ctrl.Duration(),
		ClipURL:  s.ctrl.ClipURL(),
	})
}

// handleRecordStart begins a capture session.
func (s *Server) handleRecordStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := s.ctrl.StartRecording(r.Context()); err != nil {
		slog.Error("Record start failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to start recording: %v", err))
		return
	}

	slog.Info("Recording started")
	s.sendSuccess(w, "Recording started")
}

// handleRecordStop ends the capture session and finalizes the clip.
func (s *Server) handleRecordStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := s.ctrl.StopRecording(); err != nil {
		slog.Error("Record stop failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to stop recording: %v", err))
		return
	}

	slog.Info("Recording stopped")
	s.sendSuccess(w, "Recording stopped")
}

// handleRecordClear discards the recorded clip and resets the recorder.
func (s *Server) handleRecordClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.ctrl.ClearRecording()
	slog.Info("Recording cleared")
	s.sendSuccess(w, "Recording cleared")
}

// handlePlay starts playback of the recorded clip, or of an explicit url
// from the form body.
func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if err := r.ParseForm(); err != nil {
		s.sendError(w, http.StatusBadRequest, "Failed to parse form")
		return
	}

	url := r.FormValue("url")
	if url == "" {
		url = s.ctrl.ClipURL()
	}
	if err := s.ctrl.StartPlaying(url); err != nil {
		slog.Error("Playback failed", "url", url, "error", err)
		s.sendError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to start playback: %v", err))
		return
	}

	s.sendSuccess(w, "Playback started")
}

// handlePause pauses playback, keeping the playhead.
func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := s.ctrl.StopPlaying(); err != nil {
		s.sendError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to pause playback: %v", err))
		return
	}
	s.sendSuccess(w, "Playback paused")
}

// handleClip serves the current recorded clip as WAV data.
func (s *Server) handleClip(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clip := s.ctrl.Clip()
	if clip == nil {
		http.Error(w, "No clip recorded", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(clip)))
	w.Write(clip)
}

// handleClips lists the saved clips.
func (s *Server) handleClips(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	clips, err := s.store.List()
	if err != nil {
		slog.Error("Failed to list clips", "error", err)
		s.sendError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list clips: %v", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ClipsResponse{Clips: clips, TotalCount: len(clips)})
}

// handleClipSave persists the current clip under an optional name.
func (s *Server) handleClipSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if err := r.ParseForm(); err != nil {
		s.sendError(w, http.StatusBadRequest, "Failed to parse form")
		return
	}

	clip := s.ctrl.Clip()
	if clip == nil {
		s.sendError(w, http.StatusNotFound, "No clip recorded")
		return
	}

	path, err := s.store.Save(r.FormValue("name"), clip, clipstore.Metadata{
		RecordedAt:      time.Now(),
		DurationSeconds: s.ctrl.Duration(),
	})
	if err != nil {
		slog.Error("Failed to save clip", "error", err)
		s.sendError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to save clip: %v", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"message": "Clip saved",
		"path":    path,
	})
}

// handleClipStream serves a saved clip by name.
func (s *Server) handleClipStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/api/clips/stream/")
	if name == "" {
		http.Error(w, "Clip name required", http.StatusBadRequest)
		return
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, "/\\") {
		http.Error(w, "Invalid clip name", http.StatusBadRequest)
		return
	}

	data, err := s.store.Load(name)
	if err != nil {
		http.Error(w, "Clip not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
	w.Write(data)
}

// handleMonitor streams live frequency data over a websocket while a capture
// is open. Bins are sent as integers 0..255.
func (s *Server) handleMonitor(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	slog.Debug("Monitor client connected", "remote", conn.RemoteAddr())

	ticker := time.NewTicker(s.monitorInterval)
	defer ticker.Stop()

	for range ticker.C {
		bins := s.ctrl.FrequencyData()
		frame := MonitorFrame{Bins: make([]int, len(bins))}
		for i, b := range bins {
			frame.Bins[i] = int(b)
		}
		if err := conn.WriteJSON(frame); err != nil {
			slog.Debug("Monitor client disconnected", "error", err)
			return
		}
	}
}

func (s *Server) sendSuccess(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"message": message,
	})
}

func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

func getLocalIP() string {
	// Try to connect to a remote address to determine local IP
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>VoiceRec</title>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/@picocss/pico@2/css/pico.min.css">
</head>
<body>
    <main class="container">
        <h1>&#127908; VoiceRec</h1>
        <p id="status">ready</p>
        <canvas id="bars" width="320" height="60"></canvas>
        <div role="group">
            <button onclick="post('/api/record/start')">Record</button>
            <button onclick="post('/api/record/stop')">Stop</button>
            <button onclick="post('/api/play')">Play</button>
            <button onclick="post('/api/pause')">Pause</button>
            <button onclick="post('/api/record/clear')" class="secondary">Clear</button>
            <button onclick="post('/api/clips/save')" class="secondary">Save</button>
        </div>
    </main>
    <script>
        async function post(url) { await fetch(url, {method: 'POST'}); refresh(); }
        async function refresh() {
            const res = await fetch('/api/status');
            const st = await res.json();
            document.getElementById('status').textContent =
                st.status + (st.playing ? ' (playing)' : '') + ' · ' + st.duration + 's';
        }
        setInterval(refresh, 1000);
        refresh();

        const canvas = document.getElementById('bars');
        const ctx = canvas.getContext('2d');
        const ws = new WebSocket('ws://' + location.host + '/api/monitor');
        ws.onmessage = (ev) => {
            const bins = JSON.parse(ev.data).bins;
            ctx.clearRect(0, 0, canvas.width, canvas.height);
            const w = canvas.width / Math.max(bins.length, 1);
            bins.forEach((b, i) => {
                const h = b / 255 * canvas.height;
                ctx.fillRect(i * w, canvas.height - h, w - 1, h);
            });
        };
    </script>
</body>
</html>`
