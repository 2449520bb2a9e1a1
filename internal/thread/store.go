package thread

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// fileDoc is the on-disk shape of the thread store: a single JSON object
// keyed by threadId.
type fileDoc struct {
	Threads map[string]*Record `json:"threads"`
}

// Store persists {threadId -> Record} as a single pretty-printed JSON file.
// Writers are expected to serialize through the Gateway Engine's per-thread
// queue; Store itself only guards the in-process map and the write path.
type Store struct {
	mu   sync.RWMutex
	path string
	recs map[string]*Record
}

// NewStore opens (and if absent, creates) the JSON file at path.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path, recs: make(map[string]*Record)}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("thread store: create dir: %w", err)
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return s.writeLocked()
		}
		return fmt.Errorf("thread store: read %s: %w", s.path, err)
	}
	var doc fileDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		slog.Warn("thread store: corrupt file, resetting", "path", s.path, "error", err)
		s.recs = make(map[string]*Record)
		return s.writeLocked()
	}
	if doc.Threads == nil {
		doc.Threads = make(map[string]*Record)
	}
	s.recs = doc.Threads
	return nil
}

// Get returns the record for threadID, if any.
func (s *Store) Get(threadID string) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.recs[threadID]
	if !ok {
		return nil, false
	}
	cp := *r
	return &cp, true
}

// List returns every record, ordered by UpdatedAt descending.
func (s *Store) List() []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Record, 0, len(s.recs))
	for _, r := range s.recs {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// Upsert writes r, overwriting any prior record with the same ThreadID.
func (s *Store) Upsert(r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.recs[r.ThreadID] = &cp
	return s.writeLocked()
}

// writeLocked must be called with mu held for writing. It persists the
// full map atomically: marshal, write to a temp file in the same
// directory, fsync, then rename over the target path.
func (s *Store) writeLocked() error {
	doc := fileDoc{Threads: s.recs}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("thread store: marshal: %w", err)
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".threads-*.json.tmp")
	if err != nil {
		return fmt.Errorf("thread store: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("thread store: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("thread store: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("thread store: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("thread store: rename temp file: %w", err)
	}
	return nil
}
