package status

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	r := NewRecord("abc123", "/tmp/file.bin", 42)
	require.NoError(t, s.Save(r))

	loaded, err := s.Load("abc123")
	require.NoError(t, err)
	assert.Equal(t, r.ID, loaded.ID)
	assert.Equal(t, StateSubmitted, loaded.State)
	assert.Equal(t, int64(42), loaded.Size)
}

func TestSaveNoTmpFileLeftBehind(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, s.Save(NewRecord("id1", "", 0)))

	_, err = os.Stat(filepath.Join(dir, "id1.json.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestListReturnsAllRecords(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, s.Save(NewRecord("id1", "", 10)))
	require.NoError(t, s.Save(NewRecord("id2", "", 20)))

	records, err := s.List()
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestListByState(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	pending := NewRecord("id1", "", 10)
	confirmed := NewRecord("id2", "", 20)
	confirmed.State = StateConfirmed
	require.NoError(t, s.Save(pending))
	require.NoError(t, s.Save(confirmed))

	records, err := s.ListByState(StateConfirmed)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "id2", records[0].ID)
}

func TestLoadMissingReturnsError(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	_, err = s.Load("nope")
	assert.Error(t, err)
}

func TestSaveOverwritesExistingRecord(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	r := NewRecord("id1", "", 10)
	require.NoError(t, s.Save(r))

	r.State = StateNotFound
	r.LastError = "gateway rejected"
	require.NoError(t, s.Save(r))

	loaded, err := s.Load("id1")
	require.NoError(t, err)
	assert.Equal(t, StateNotFound, loaded.State)
	assert.Equal(t, "gateway rejected", loaded.LastError)
}
