package wallet

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liteseed/arloader/internal/signer"
)

func TestNewWiresPipelineAndReconciler(t *testing.T) {
	s, err := signer.Generate()
	require.NoError(t, err)

	w, err := New(s, "http://example.invalid", t.TempDir())
	require.NoError(t, err)
	assert.NotNil(t, w.Pipeline)
	assert.NotNil(t, w.Reconcile)
	assert.Same(t, s, w.Signer)
}

func TestBalanceDelegatesToGateway(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("123"))
	}))
	defer srv.Close()

	s, err := signer.Generate()
	require.NoError(t, err)
	w, err := New(s, srv.URL, t.TempDir())
	require.NoError(t, err)

	balance, err := w.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "123", balance)
}

func TestListStatusesEmptyDirectory(t *testing.T) {
	s, err := signer.Generate()
	require.NoError(t, err)
	w, err := New(s, "http://example.invalid", t.TempDir())
	require.NoError(t, err)

	records, err := w.ListStatuses()
	require.NoError(t, err)
	assert.Empty(t, records)
}
