package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hnrobert/macusers/internal/fsutil"
)

var (
	ErrNotFound = errors.New("token not found")
	ErrExpired  = errors.New("token expired")
	ErrRevoked  = errors.New("token revoked")
)

// Token is a bearer credential for non-interactive API clients, such as
// fleet inventory jobs. The Value is the secret presented in the
// Authorization header.
type Token struct {
	ID        string    `json:"id"`
	Value     string    `json:"value"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by"`
	ExpiresAt time.Time `json:"expires_at,omitempty"` // zero means no expiry
	RevokedAt time.Time `json:"revoked_at,omitempty"`

	UseCount   int       `json:"use_count"`
	LastUsedAt time.Time `json:"last_used_at,omitempty"`
	LastUsedIP string    `json:"last_used_ip,omitempty"`
}

func (t Token) Revoked() bool { return !t.RevokedAt.IsZero() }

type Store struct {
	mu   sync.Mutex
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func DefaultPath(dataDir string) string {
	return filepath.Join(dataDir, "tokens.json")
}

func (s *Store) Ensure() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fsutil.EnsureDir(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	if _, err := os.Stat(s.path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s.saveLocked(state{})
		}
		return err
	}
	return nil
}

func (s *Store) List() ([]Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	return st.Tokens, nil
}

func (s *Store) Create(createdBy, label string, expiresAt time.Time) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if label == "" {
		return Token{}, fmt.Errorf("label must not be empty")
	}
	tok := Token{
		ID:        uuid.NewString(),
		Value:     uuid.NewString(),
		Label:     label,
		CreatedAt: time.Now().UTC(),
		CreatedBy: createdBy,
	}
	if !expiresAt.IsZero() {
		tok.ExpiresAt = expiresAt.UTC()
	}

	st, err := s.loadLocked()
	if err != nil {
		return Token{}, err
	}
	st.Tokens = append([]Token{tok}, st.Tokens...)
	if err := s.saveLocked(st); err != nil {
		return Token{}, err
	}
	return tok, nil
}

// Validate looks up a presented bearer value and records the use.
func (s *Store) Validate(value, remoteIP string) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.loadLocked()
	if err != nil {
		return Token{}, err
	}
	idx := -1
	for i := range st.Tokens {
		if st.Tokens[i].Value == value {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Token{}, ErrNotFound
	}
	tok := st.Tokens[idx]
	if tok.Revoked() {
		return Token{}, ErrRevoked
	}
	if !tok.ExpiresAt.IsZero() && time.Now().UTC().After(tok.ExpiresAt) {
		return Token{}, ErrExpired
	}

	tok.UseCount++
	tok.LastUsedAt = time.Now().UTC()
	tok.LastUsedIP = remoteIP
	st.Tokens[idx] = tok
	if err := s.saveLocked(st); err != nil {
		return Token{}, err
	}
	return tok, nil
}

// Revoke marks a token unusable by ID. Revoked tokens stay listed for
// auditability.
func (s *Store) Revoke(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.loadLocked()
	if err != nil {
		return err
	}
	for i := range st.Tokens {
		if st.Tokens[i].ID == id {
			if st.Tokens[i].Revoked() {
				return nil
			}
			st.Tokens[i].RevokedAt = time.Now().UTC()
			return s.saveLocked(st)
		}
	}
	return ErrNotFound
}

// Delete removes a token record entirely.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.loadLocked()
	if err != nil {
		return err
	}
	for i := range st.Tokens {
		if st.Tokens[i].ID == id {
			st.Tokens = append(st.Tokens[:i], st.Tokens[i+1:]...)
			return s.saveLocked(st)
		}
	}
	return ErrNotFound
}

type state struct {
	Tokens []Token `json:"tokens"`
}

func (s *Store) loadLocked() (state, error) {
	b, err := fsutil.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return state{}, nil
		}
		return state{}, err
	}
	if len(b) == 0 {
		return state{}, nil
	}
	var st state
	if err := json.Unmarshal(b, &st); err != nil {
		return state{}, err
	}
	return st, nil
}

func (s *Store) saveLocked(st state) error {
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	// Token values are secrets; keep the state file 0600.
	return fsutil.WriteFileAtomic(s.path, b, 0600)
}
