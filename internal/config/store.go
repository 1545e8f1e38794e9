package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hnrobert/macusers/internal/fsutil"
	"github.com/hnrobert/macusers/internal/macusers"
	"github.com/hnrobert/macusers/internal/snapmon"
)

type Config struct {
	UpdatedAt time.Time `json:"updated_at"`

	// MinUserID is the system-account UID threshold for listings.
	MinUserID int `json:"min_user_id"`
	// IncludeRoot admits root into default listings.
	IncludeRoot bool `json:"include_root"`

	// Operator is a provisioned daemon account that can log in even when
	// directory services are down. The credential is a crypt(3) hash.
	OperatorName string `json:"operator_name,omitempty"`
	OperatorHash string `json:"operator_hash,omitempty"`

	// Notice is the markdown shown on the daemon's /docs page.
	Notice string `json:"notice,omitempty"`

	Snapshots snapmon.Config `json:"snapshots"`
}

type Store struct {
	mu   sync.Mutex
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func DefaultDataDir() string {
	return filepath.Join("/Library", "Application Support", "macusersd")
}

func DefaultPath(dataDir string) string {
	return filepath.Join(dataDir, "config.json")
}

func (s *Store) Ensure() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fsutil.EnsureDir(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	if _, err := os.Stat(s.path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s.saveLocked(Config{
				UpdatedAt: time.Now().UTC(),
				MinUserID: macusers.DefaultMinUserID,
				Snapshots: snapmon.DefaultConfig(),
			})
		}
		return err
	}
	return nil
}

func (s *Store) Get() (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked()
}

func (s *Store) SetSnapshots(sc snapmon.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, _ := s.getLocked()
	cfg.Snapshots = sc.WithDefaults()
	cfg.UpdatedAt = time.Now().UTC()
	return s.saveLocked(cfg)
}

func (s *Store) SetListing(minUserID int, includeRoot bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if minUserID < 0 {
		return errors.New("minUserID must be >= 0")
	}
	cfg, _ := s.getLocked()
	cfg.MinUserID = minUserID
	cfg.IncludeRoot = includeRoot
	cfg.UpdatedAt = time.Now().UTC()
	return s.saveLocked(cfg)
}

func (s *Store) SetOperator(name, cryptHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, _ := s.getLocked()
	cfg.OperatorName = name
	cfg.OperatorHash = cryptHash
	cfg.UpdatedAt = time.Now().UTC()
	return s.saveLocked(cfg)
}

func (s *Store) SetNotice(md string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, _ := s.getLocked()
	cfg.Notice = md
	cfg.UpdatedAt = time.Now().UTC()
	return s.saveLocked(cfg)
}

func (s *Store) getLocked() (Config, error) {
	b, err := fsutil.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaults(), nil
		}
		return Config{}, err
	}
	if len(b) == 0 {
		return defaults(), nil
	}
	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if cfg.MinUserID <= 0 {
		cfg.MinUserID = macusers.DefaultMinUserID
	}
	if cfg.Snapshots.IsZero() {
		cfg.Snapshots = snapmon.DefaultConfig()
	} else {
		cfg.Snapshots = cfg.Snapshots.WithDefaults()
	}
	return cfg, nil
}

func (s *Store) saveLocked(cfg Config) error {
	if err := fsutil.EnsureDir(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	// The config can hold an operator credential hash; keep it 0600.
	return fsutil.WriteFileAtomic(s.path, b, 0600)
}

func defaults() Config {
	return Config{
		MinUserID: macusers.DefaultMinUserID,
		Snapshots: snapmon.DefaultConfig(),
	}
}
