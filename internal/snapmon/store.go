package snapmon

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Store keeps the snapshot history as one YAML document stream per day
// under its directory, plus a merged in-memory copy for queries.
type Store struct {
	mu      sync.RWMutex
	dir     string
	samples []Sample
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func DefaultPath(dataDir string) string {
	return filepath.Join(dataDir, "snapshots")
}

func (s *Store) Ensure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return os.MkdirAll(s.dir, 0755)
}

// Load reads every day file into memory, oldest first.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return err
	}
	files, err := s.listDayFilesLocked()
	if err != nil {
		return err
	}

	merged := make([]Sample, 0)
	for _, name := range files {
		f, err := os.Open(filepath.Join(s.dir, name))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return err
		}
		d := yaml.NewDecoder(f)
		for {
			var sm Sample
			if err := d.Decode(&sm); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				_ = f.Close()
				return err
			}
			merged = append(merged, sm)
		}
		_ = f.Close()
	}

	sort.Slice(merged, func(i, j int) bool {
		ti, tj := merged[i].Timestamp, merged[j].Timestamp
		if ti.Equal(tj) {
			return i < j
		}
		return ti.Before(tj)
	})
	s.samples = merged
	return nil
}

// Append records a sample into today's day file and prunes files older
// than retentionDays.
func (s *Store) Append(sample Sample, retentionDays int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now().UTC()
	} else {
		sample.Timestamp = sample.Timestamp.UTC()
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return err
	}
	path := filepath.Join(s.dir, sample.Timestamp.Format("2006-01-02")+".yaml")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	b, err := yaml.Marshal(sample)
	if err != nil {
		_ = f.Close()
		return err
	}
	if _, err := f.Write(append([]byte("---\n"), b...)); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	s.samples = append(s.samples, sample)
	return s.pruneLocked(retentionDays)
}

// Since returns the in-memory samples taken at or after t.
func (s *Store) Since(t time.Time) []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Sample
	for _, sm := range s.samples {
		if !sm.Timestamp.Before(t) {
			out = append(out, sm)
		}
	}
	return out
}

// Latest returns the most recent sample, or false when none exist.
func (s *Store) Latest() (Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.samples) == 0 {
		return Sample{}, false
	}
	return s.samples[len(s.samples)-1], true
}

func (s *Store) pruneLocked(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	cutoffDay := cutoff.Format("2006-01-02")

	files, err := s.listDayFilesLocked()
	if err != nil {
		return err
	}
	for _, name := range files {
		base := strings.TrimSuffix(name, ".yaml")
		if base < cutoffDay {
			if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
		}
	}

	var kept []Sample
	for _, sm := range s.samples {
		if !sm.Timestamp.Before(cutoff) {
			kept = append(kept, sm)
		}
	}
	s.samples = kept
	return nil
}

func (s *Store) listDayFilesLocked() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
