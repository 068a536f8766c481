package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceiveAcceptsBatchesFromSender(t *testing.T) {
	srv := httptest.NewServer(newReceiveHandler())
	defer srv.Close()
	before := testutil.ToFloat64(receivedEntries.WithLabelValues("receive-test"))

	for _, compress := range []bool{false, true} {
		s := testSender(srv.URL, 0, &recordedSleeps{})
		s.machine = "receive-test"
		s.gzip = compress
		require.NoError(t, s.deliver(context.Background(), testEntries))
	}

	assert.Equal(t, before+2, testutil.ToFloat64(receivedEntries.WithLabelValues("receive-test")))
}

func TestReceiveRejectsBadRequests(t *testing.T) {
	srv := httptest.NewServer(newReceiveHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	for _, body := range []string{"not json", `{"logs":[]}`} {
		resp, err := http.Post(srv.URL, "application/json", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}

	req, err := http.NewRequest(http.MethodPost, srv.URL, bytes.NewReader([]byte("plain")))
	require.NoError(t, err)
	req.Header.Set("Content-Encoding", "gzip")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReceiveServesMetrics(t *testing.T) {
	srv := httptest.NewServer(newReceiveHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
