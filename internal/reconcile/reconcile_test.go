package reconcile

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liteseed/arloader/internal/gateway"
	"github.com/liteseed/arloader/internal/status"
)

func newStore(t *testing.T) *status.Store {
	t.Helper()
	st, err := status.New(t.TempDir())
	require.NoError(t, err)
	return st
}

func TestRunMarksNotFoundOn404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	st := newStore(t)
	require.NoError(t, st.Save(status.NewRecord("tx1", "", 10)))

	r := New(gateway.New(srv.URL), st)
	results, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, status.StateNotFound, results[0].After)
	assert.True(t, results[0].Changed)

	loaded, err := st.Load("tx1")
	require.NoError(t, err)
	assert.Equal(t, status.StateNotFound, loaded.State)
}

func TestRunMarksPendingOn202(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	st := newStore(t)
	require.NoError(t, st.Save(status.NewRecord("tx1", "", 10)))

	r := New(gateway.New(srv.URL), st)
	results, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, status.StatePending, results[0].After)
}

func TestRunMarksConfirmedAndStoresBlockInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"number_of_confirmations": 12, "block_height": 500, "block_indep_hash": "zyx"}`))
	}))
	defer srv.Close()

	st := newStore(t)
	require.NoError(t, st.Save(status.NewRecord("tx1", "", 10)))

	r := New(gateway.New(srv.URL), st)
	_, err := r.Run(context.Background())
	require.NoError(t, err)

	loaded, err := st.Load("tx1")
	require.NoError(t, err)
	assert.Equal(t, status.StateConfirmed, loaded.State)
	assert.Equal(t, int64(12), loaded.Confirmations)
	assert.Equal(t, int64(500), loaded.BlockHeight)
	assert.Equal(t, "zyx", loaded.BlockIndepHash)
}

func TestRunNeverDecreasesConfirmations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"number_of_confirmations": 3, "block_height": 500, "block_indep_hash": "zyx"}`))
	}))
	defer srv.Close()

	st := newStore(t)
	rec := status.NewRecord("tx1", "", 10)
	rec.State = status.StateConfirmed
	rec.Confirmations = 30
	require.NoError(t, st.Save(rec))

	r := New(gateway.New(srv.URL), st)
	_, err := r.Run(context.Background())
	require.NoError(t, err)

	loaded, err := st.Load("tx1")
	require.NoError(t, err)
	assert.Equal(t, int64(30), loaded.Confirmations)
}

func TestSelectForReuploadUnionRule(t *testing.T) {
	st := newStore(t)

	a := status.NewRecord("A", "", 1)
	a.State = status.StateConfirmed
	a.Confirmations = 30
	a.FilePaths = map[string]string{"a.bin": "A"}

	b := status.NewRecord("B", "", 1)
	b.State = status.StateConfirmed
	b.Confirmations = 10
	b.FilePaths = map[string]string{"b.bin": "B"}

	c := status.NewRecord("C", "", 1)
	c.State = status.StateNotFound
	c.FilePaths = map[string]string{"c.bin": "C"}

	d := status.NewRecord("D", "", 1)
	d.State = status.StatePending
	d.Confirmations = 0
	d.FilePaths = map[string]string{"d.bin": "D"}

	for _, rec := range []*status.Record{a, b, c, d} {
		require.NoError(t, st.Save(rec))
	}

	r := New(gateway.New("http://unused.invalid"), st)
	sel, err := r.SelectForReupload(
		[]string{"a.bin", "b.bin", "c.bin", "d.bin", "e.bin"},
		[]status.State{status.StateNotFound, status.StatePending},
		25,
	)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b.bin", "c.bin", "d.bin", "e.bin"}, sel.Paths)
}
