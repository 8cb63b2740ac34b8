package auth

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
)

// FileRepository keeps the allow-list as a JSON array on disk.
type FileRepository struct {
	path string
	mu   sync.Mutex
}

func NewFileRepository(path string) (*FileRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("touch file: %w", err)
	}
	_ = f.Close()
	return &FileRepository{path: path}, nil
}

func (r *FileRepository) LoadAll() ([]Viewer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadUnlocked()
}

func (r *FileRepository) Upsert(v Viewer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	viewers, err := r.loadUnlocked()
	if err != nil {
		return err
	}
	updated := false
	for i, x := range viewers {
		if x.ID == v.ID {
			viewers[i] = v
			updated = true
			break
		}
	}
	if !updated {
		viewers = append(viewers, v)
	}
	return r.saveUnlocked(viewers)
}

func (r *FileRepository) Remove(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	viewers, err := r.loadUnlocked()
	if err != nil {
		return err
	}
	out := make([]Viewer, 0, len(viewers))
	for _, v := range viewers {
		if v.ID != id {
			out = append(out, v)
		}
	}
	return r.saveUnlocked(out)
}

// loadUnlocked treats an empty or malformed file as an empty list.
func (r *FileRepository) loadUnlocked() ([]Viewer, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("read allow-list: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []Viewer{}, nil
	}
	var viewers []Viewer
	if err := json.Unmarshal(data, &viewers); err != nil {
		log.Printf("⚠️ allow-list %s is malformed, starting empty: %v", r.path, err)
		return []Viewer{}, nil
	}
	return viewers, nil
}

func (r *FileRepository) saveUnlocked(viewers []Viewer) error {
	data, err := json.MarshalIndent(viewers, "", "  ")
	if err != nil {
		return fmt.Errorf("encode allow-list: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write allow-list: %w", err)
	}
	return os.Rename(tmp, r.path)
}
