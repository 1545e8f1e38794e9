package token

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(filepath.Join(t.TempDir(), "tokens.json"))
	require.NoError(t, s.Ensure())
	return s
}

func TestCreateAndValidate(t *testing.T) {
	s := newTestStore(t)

	tok, err := s.Create("jane", "inventory-job", time.Time{})
	require.NoError(t, err)
	assert.NotEmpty(t, tok.ID)
	assert.NotEmpty(t, tok.Value)
	assert.NotEqual(t, tok.ID, tok.Value)

	got, err := s.Validate(tok.Value, "10.0.0.5")
	require.NoError(t, err)
	assert.Equal(t, tok.ID, got.ID)
	assert.Equal(t, 1, got.UseCount)
	assert.Equal(t, "10.0.0.5", got.LastUsedIP)

	_, err = s.Validate("no-such-value", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateRequiresLabel(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create("jane", "", time.Time{})
	assert.Error(t, err)
}

func TestValidateExpired(t *testing.T) {
	s := newTestStore(t)
	tok, err := s.Create("jane", "short-lived", time.Now().Add(-time.Minute))
	require.NoError(t, err)

	_, err = s.Validate(tok.Value, "")
	assert.ErrorIs(t, err, ErrExpired)
}

func TestRevoke(t *testing.T) {
	s := newTestStore(t)
	tok, err := s.Create("jane", "to-revoke", time.Time{})
	require.NoError(t, err)

	require.NoError(t, s.Revoke(tok.ID))
	_, err = s.Validate(tok.Value, "")
	assert.ErrorIs(t, err, ErrRevoked)

	// Revoked tokens stay listed.
	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Revoked())

	assert.ErrorIs(t, s.Revoke("missing"), ErrNotFound)
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	tok, err := s.Create("jane", "to-delete", time.Time{})
	require.NoError(t, err)

	require.NoError(t, s.Delete(tok.ID))
	list, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.ErrorIs(t, s.Delete(tok.ID), ErrNotFound)
}

func TestPersistsAcrossStores(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	s := NewStore(path)
	require.NoError(t, s.Ensure())
	tok, err := s.Create("jane", "persisted", time.Time{})
	require.NoError(t, err)

	reloaded := NewStore(path)
	got, err := reloaded.Validate(tok.Value, "")
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.Label)
}
