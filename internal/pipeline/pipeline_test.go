package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liteseed/arloader/internal/codec"
	"github.com/liteseed/arloader/internal/gateway"
	"github.com/liteseed/arloader/internal/signer"
	"github.com/liteseed/arloader/internal/status"
)

func testSigner(t *testing.T) *signer.Signer {
	t.Helper()
	s, err := signer.Generate()
	require.NoError(t, err)
	return s
}

func writeTempFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

// gatewayStub serves the handful of endpoints processGroup needs: a
// fixed anchor, a fixed price, and a configurable /tx response to POSTs
// that carry inline data (header-only POSTs are accepted with 200).
func gatewayStub(t *testing.T, txStatus int) *httptest.Server {
	t.Helper()
	anchor := codec.Encode(make([]byte, 32))
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/tx_anchor":
			w.Write([]byte(anchor))
		case r.URL.Path == "/price" || (len(r.URL.Path) > 7 && r.URL.Path[:7] == "/price/"):
			w.Write([]byte("1000"))
		case r.URL.Path == "/tx" && r.Method == http.MethodPost:
			var body struct {
				Data string `json:"data"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body.Data == "" {
				w.WriteHeader(http.StatusOK)
				return
			}
			w.WriteHeader(txStatus)
		case r.URL.Path == "/chunk" && r.Method == http.MethodPost:
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestDiscoverAndGroupRejectsOversizedFile(t *testing.T) {
	dir := t.TempDir()
	small := writeTempFile(t, dir, "small.bin", 10)
	big := writeTempFile(t, dir, "big.bin", 100)

	s, err := signer.Generate()
	require.NoError(t, err)
	p := &Pipeline{Signer: s}

	groups, skipped, err := p.discoverAndGroup([]Input{{Path: small}, {Path: big}}, 50)
	require.NoError(t, err)
	require.Len(t, skipped, 1)
	assert.True(t, skipped[0].Skipped)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0], 1)
}

func TestRunUploadsSingleBundleAndPersistsStatusBeforePost(t *testing.T) {
	srv := gatewayStub(t, http.StatusOK)
	defer srv.Close()

	dir := t.TempDir()
	file := writeTempFile(t, dir, "a.bin", 128)

	st, err := status.New(t.TempDir())
	require.NoError(t, err)

	p := New(testSigner(t), gateway.New(srv.URL), st)
	summary, err := p.Run(context.Background(), []Input{{Path: file}}, Config{BundleSize: DefaultBundleSize})
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	res := summary.Results[0]
	require.NoError(t, res.Err)
	assert.NotEmpty(t, res.TxID)
	assert.Len(t, res.ItemIDs, 1)

	rec, err := st.Load(res.TxID)
	require.NoError(t, err)
	assert.Equal(t, res.ItemIDs, rec.ManifestEntries)
}

func TestRunFallsBackToChunkedUploadOn413(t *testing.T) {
	srv := gatewayStub(t, http.StatusRequestEntityTooLarge)
	defer srv.Close()

	dir := t.TempDir()
	file := writeTempFile(t, dir, "a.bin", 128)

	st, err := status.New(t.TempDir())
	require.NoError(t, err)

	p := New(testSigner(t), gateway.New(srv.URL), st)
	summary, err := p.Run(context.Background(), []Input{{Path: file}}, Config{BundleSize: DefaultBundleSize})
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	// The stub's /tx answers 413 to the inline POST; the pipeline falls
	// back to a header-only POST plus chunked upload, which the stub's
	// /tx and /chunk accept, so the group still completes without error.
	res := summary.Results[0]
	require.NoError(t, res.Err)
	assert.NotEmpty(t, res.TxID)
}

func TestRunCancelledReturnsStructuredSummaryNotError(t *testing.T) {
	srv := gatewayStub(t, http.StatusOK)
	defer srv.Close()

	dir := t.TempDir()
	file := writeTempFile(t, dir, "a.bin", 128)

	st, err := status.New(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(testSigner(t), gateway.New(srv.URL), st)
	summary, err := p.Run(ctx, []Input{{Path: file}}, Config{BundleSize: DefaultBundleSize})
	require.NoError(t, err)
	assert.True(t, summary.Cancelled)
}

func TestRunRawAcceptsFileLargerThanBundleSize(t *testing.T) {
	srv := gatewayStub(t, http.StatusOK)
	defer srv.Close()

	dir := t.TempDir()
	// Larger than the tiny bundle size cap below; --no-bundle must not
	// reject it the way the bundled discoverAndGroup path would.
	file := writeTempFile(t, dir, "big.bin", 1024)

	st, err := status.New(t.TempDir())
	require.NoError(t, err)

	p := New(testSigner(t), gateway.New(srv.URL), st)
	summary, err := p.RunRaw(context.Background(), []Input{{Path: file}}, Config{BundleSize: 128})
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	res := summary.Results[0]
	require.NoError(t, res.Err)
	assert.False(t, res.Skipped)
	assert.NotEmpty(t, res.TxID)
	assert.Equal(t, []string{res.TxID}, res.ItemIDs)

	rec, err := st.Load(res.TxID)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.NumberOfFiles)
	assert.Equal(t, file, rec.SourcePath)
}

func TestApplyRewardMultiplierDefaultsToOne(t *testing.T) {
	reward, err := applyRewardMultiplier("1000", 0)
	require.NoError(t, err)
	assert.Equal(t, "1000", reward.String())
}

func TestApplyRewardMultiplierScales(t *testing.T) {
	reward, err := applyRewardMultiplier("1000", 2.5)
	require.NoError(t, err)
	assert.Equal(t, "2500", reward.String())
}
