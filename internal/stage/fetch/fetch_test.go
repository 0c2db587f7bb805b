package fetch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convoy/internal/errors"
	"convoy/internal/inject"
	"convoy/internal/poll"
	"convoy/internal/testutil"
	"convoy/internal/volume"
)

var fastWait = poll.Config{Interval: time.Millisecond, Deadline: 100 * time.Millisecond}

func newFetchServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>three words here</body></html>"))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/binary", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte{0x00, 0x01, 0x02})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func injectURLs(t *testing.T, vol *volume.Volume, urls ...string) {
	t.Helper()
	require.NoError(t, inject.New(vol).Inject(context.Background(), urls))
}

func readStatus(t *testing.T, vol *volume.Volume) volume.FetchStatus {
	t.Helper()
	data, err := vol.ReadFile("status/fetch_complete.json")
	require.NoError(t, err)
	var status volume.FetchStatus
	require.NoError(t, json.Unmarshal(data, &status))
	return status
}

func TestRunFetchesAndStoresDocuments(t *testing.T) {
	srv := newFetchServer(t)
	vol := testutil.MemVolume(t)
	injectURLs(t, vol, srv.URL+"/ok")

	require.NoError(t, Run(context.Background(), Options{Volume: vol, Client: srv.Client(), Wait: fastWait}))

	data, err := vol.ReadFile("raw/page_001.html")
	require.NoError(t, err)
	assert.Contains(t, string(data), "three words here")

	status := readStatus(t, vol)
	assert.Equal(t, 1, status.TotalURLs)
	assert.Equal(t, 1, status.SuccessfulRequests)
	assert.Equal(t, 0, status.FailedRequests)
	assert.Equal(t, map[string]int{"200": 1}, status.StatusCodeDistribution)
	assert.Equal(t, []string{"page_001.html"}, status.Outputs)

	require.Len(t, status.Results, 1)
	res := status.Results[0]
	assert.Equal(t, 200, res.StatusCode)
	require.NotNil(t, res.WordCount, "text responses carry a word count")
	assert.Nil(t, res.Error)

	assert.NotEmpty(t, status.ProcessingStart)
	assert.NotEmpty(t, status.ProcessingEnd)

	errLog, err := vol.ReadFile(volume.ErrorsLogFile)
	require.NoError(t, err)
	assert.Empty(t, errLog, "no failures means an empty error log")
}

func TestRunRecordsHTTPErrors(t *testing.T) {
	srv := newFetchServer(t)
	vol := testutil.MemVolume(t)
	injectURLs(t, vol, srv.URL+"/missing", srv.URL+"/ok")

	require.NoError(t, Run(context.Background(), Options{Volume: vol, Client: srv.Client(), Wait: fastWait}))

	status := readStatus(t, vol)
	assert.Equal(t, 2, status.TotalURLs)
	assert.Equal(t, 1, status.SuccessfulRequests)
	assert.Equal(t, 1, status.FailedRequests)
	assert.Equal(t, map[string]int{"404": 1, "200": 1}, status.StatusCodeDistribution)

	require.NotNil(t, status.Results[0].Error)
	assert.Contains(t, *status.Results[0].Error, "HTTP 404")

	// Every failure leaves a line in the error log.
	errLog, err := vol.ReadFile(volume.ErrorsLogFile)
	require.NoError(t, err)
	assert.Contains(t, string(errLog), srv.URL+"/missing")
	assert.Contains(t, string(errLog), "HTTP 404")
	assert.NotContains(t, string(errLog), srv.URL+"/ok]")

	// The failed page was not stored; numbering follows the work list.
	ok, err := vol.Exists("raw/page_001.html")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = vol.Exists("raw/page_002.html")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunRecordsTransportErrors(t *testing.T) {
	vol := testutil.MemVolume(t)
	injectURLs(t, vol, "http://127.0.0.1:1/unreachable")

	// Transport failures are recorded, never fatal to the stage.
	require.NoError(t, Run(context.Background(), Options{Volume: vol, Wait: fastWait}))

	status := readStatus(t, vol)
	assert.Equal(t, 1, status.FailedRequests)
	require.NotNil(t, status.Results[0].Error)
}

func TestRunSkipsWordCountForBinary(t *testing.T) {
	srv := newFetchServer(t)
	vol := testutil.MemVolume(t)
	injectURLs(t, vol, srv.URL+"/binary")

	require.NoError(t, Run(context.Background(), Options{Volume: vol, Client: srv.Client(), Wait: fastWait}))

	status := readStatus(t, vol)
	require.Len(t, status.Results, 1)
	assert.Nil(t, status.Results[0].WordCount)
}

func TestRunTimesOutWithoutWorkList(t *testing.T) {
	vol := testutil.MemVolume(t)

	err := Run(context.Background(), Options{Volume: vol, Wait: fastWait})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTimedOut)

	ok, existsErr := vol.Exists("status/fetch_complete.json")
	require.NoError(t, existsErr)
	assert.False(t, ok, "no sentinel may be written on failure")
}

func TestRunPicksUpLateWorkList(t *testing.T) {
	srv := newFetchServer(t)
	vol := testutil.MemVolume(t)

	// Inject after the stage has started waiting, mirroring the
	// coordinator's start-then-inject ordering.
	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = inject.New(vol).Inject(context.Background(), []string{srv.URL + "/ok"})
	}()

	require.NoError(t, Run(context.Background(), Options{Volume: vol, Client: srv.Client(), Wait: fastWait}))
	assert.Equal(t, 1, readStatus(t, vol).SuccessfulRequests)
}

func TestRunCancelledContext(t *testing.T) {
	srv := newFetchServer(t)
	vol := testutil.MemVolume(t)
	injectURLs(t, vol, srv.URL+"/ok")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Run(ctx, Options{Volume: vol, Client: srv.Client(), Wait: fastWait})
	require.Error(t, err)
}

func TestCountWords(t *testing.T) {
	assert.Equal(t, 3, countWords("three words here"))
	assert.Equal(t, 0, countWords(""))
	assert.Equal(t, 3, countWords("hyphen-ated words"), "alphanumeric runs split on punctuation")
}
