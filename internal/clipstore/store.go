// Package clipstore persists recorded clips as WAV files with a YAML
// metadata sidecar, and lists what has been saved.
package clipstore

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Metadata is the sidecar written next to every saved clip.
type Metadata struct {
	Name            string    `yaml:"name" json:"name"`
	RecordedAt      time.Time `yaml:"recorded_at" json:"recorded_at"`
	DurationSeconds int       `yaml:"duration_seconds" json:"duration_seconds"`
	SampleRate      int       `yaml:"sample_rate" json:"sample_rate"`
	Channels        int       `yaml:"channels" json:"channels"`
}

// ClipInfo describes a saved clip for listings.
type ClipInfo struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	SizeHuman    string    `json:"size_human"`
	ModTime      time.Time `json:"mod_time"`
	ModTimeHuman string    `json:"mod_time_human"`
	Metadata     *Metadata `json:"metadata,omitempty"`
}

// Store manages the clip directory.
type Store struct {
	dir string
}

func New(dir string) *Store {
	return &Store{dir: dir}
}

// Save writes clip data and its metadata sidecar into the store directory.
// The clip name is derived from the recording time when name is empty.
func (s *Store) Save(name string, data []byte, meta Metadata) (string, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create clip directory: %w", err)
	}

	if name == "" {
		name = meta.RecordedAt.Format("2006-01-02_15-04-05")
	}
	name = sanitizeName(name)
	meta.Name = name

	clipPath := filepath.Join(s.dir, name+".wav")
	if err := os.WriteFile(clipPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write clip %s: %w", clipPath, err)
	}

	metaBytes, err := yaml.Marshal(&meta)
	if err != nil {
		return "", fmt.Errorf("failed to marshal clip metadata: %w", err)
	}
	metaPath := filepath.Join(s.dir, name+".yaml")
	if err := os.WriteFile(metaPath, metaBytes, 0644); err != nil {
		return "", fmt.Errorf("failed to write clip metadata %s: %w", metaPath, err)
	}

	slog.Info("Clip saved", "name", name, "path", clipPath, "bytes", len(data))
	return clipPath, nil
}

// Load reads a saved clip by name.
func (s *Store) Load(name string) ([]byte, error) {
	path := filepath.Join(s.dir, sanitizeName(name)+".wav")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read clip %s: %w", path, err)
	}
	return data, nil
}

// List returns all saved clips, newest first.
func (s *Store) List() ([]ClipInfo, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create clip directory: %w", err)
	}

	files, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read clip directory: %w", err)
	}

	var clips []ClipInfo
	for _, file := range files {
		if file.IsDir() || strings.ToLower(filepath.Ext(file.Name())) != ".wav" {
			continue
		}

		info, err := file.Info()
		if err != nil {
			slog.Warn("Failed to get file info", "file", file.Name(), "error", err)
			continue
		}

		name := strings.TrimSuffix(file.Name(), filepath.Ext(file.Name()))
		clips = append(clips, ClipInfo{
			Name:         name,
			Path:         filepath.Join(s.dir, file.Name()),
			Size:         info.Size(),
			SizeHuman:    formatBytes(info.Size()),
			ModTime:      info.ModTime(),
			ModTimeHuman: info.ModTime().Format("2006-01-02 15:04:05"),
			Metadata:     s.readMetadata(name),
		})
	}

	sort.Slice(clips, func(i, j int) bool {
		return clips[i].ModTime.After(clips[j].ModTime)
	})
	return clips, nil
}

// Delete removes a saved clip and its metadata sidecar.
func (s *Store) Delete(name string) error {
	name = sanitizeName(name)
	clipPath := filepath.Join(s.dir, name+".wav")
	if err := os.Remove(clipPath); err != nil {
		return fmt.Errorf("failed to delete clip %s: %w", clipPath, err)
	}
	// The sidecar is best effort; a clip without one is still valid.
	_ = os.Remove(filepath.Join(s.dir, name+".yaml"))
	return nil
}

func (s *Store) readMetadata(name string) *Metadata {
	data, err := os.ReadFile(filepath.Join(s.dir, name+".yaml"))
	if err != nil {
		return nil
	}
	var meta Metadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		slog.Warn("Failed to parse clip metadata", "name", name, "error", err)
		return nil
	}
	return &meta
}

// sanitizeName strips path separators so a clip name cannot escape the
// store directory.
func sanitizeName(name string) string {
	name = filepath.Base(name)
	return strings.TrimSuffix(name, ".wav")
}

// formatBytes formats bytes in human readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
