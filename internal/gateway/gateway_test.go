package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/price/1024", r.URL.Path)
		w.Write([]byte("123456"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	price, err := c.Price(context.Background(), 1024, "")
	require.NoError(t, err)
	assert.Equal(t, "123456", price)
}

func TestStatusParsesConfirmations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"number_of_confirmations": 5, "block_height": 100, "block_indep_hash": "abc"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	status, err := c.Status(context.Background(), "sometxid")
	require.NoError(t, err)
	assert.Equal(t, int64(5), status.NumberOfConfs)
	assert.Equal(t, int64(100), status.BlockHeight)
	assert.Equal(t, "abc", status.BlockHash)
}

func withFastBackoff(c *Client) *Client {
	c.baseDelay = time.Millisecond
	c.capDelay = 5 * time.Millisecond
	return c
}

func TestRetriesOnServerError(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := withFastBackoff(New(srv.URL))
	body, err := c.Anchor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", body)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&attempts), int32(3))
}

func TestGivesUpAfterMaxAttemptsOnPersistentError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := withFastBackoff(New(srv.URL))
	_, err := c.Anchor(context.Background())
	assert.Error(t, err)
}

func TestNonRetryableClientErrorReturnsImmediately(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Anchor(context.Background())
	assert.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&attempts))
}

func TestFatalChunkError(t *testing.T) {
	assert.True(t, FatalChunkError("chunk_too_big"))
	assert.False(t, FatalChunkError("not_a_real_code"))
}
