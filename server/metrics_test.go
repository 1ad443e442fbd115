package server_test

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/peer-calls/mediaproducer/server"
	"github.com/peer-calls/mediaproducer/server/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandler(t *testing.T) {
	t.Parallel()

	type testCase struct {
		descr       string
		accessToken string
		url         string
		header      string
		wantStatus  int
	}

	testCases := []testCase{
		{"liveness", "", "/probes/liveness", "", http.StatusOK},
		{"metrics disabled", "", "/metrics", "", http.StatusUnauthorized},
		{"no token", "at1", "/metrics", "", http.StatusUnauthorized},
		{"wrong token", "at1", "/metrics?access_token=at2", "", http.StatusUnauthorized},
		{"query token", "at1", "/metrics?access_token=at1", "", http.StatusOK},
		{"bearer token", "at1", "/metrics", "Bearer at1", http.StatusOK},
		{"wrong bearer token", "at1", "/metrics?access_token=at1", "Bearer at2", http.StatusUnauthorized},
		{"not found", "at1", "/", "", http.StatusNotFound},
	}

	for _, tc := range testCases {
		handler := server.NewMetricsHandler(tc.accessToken)

		r := httptest.NewRequest(http.MethodGet, tc.url, nil)
		if tc.header != "" {
			r.Header.Set("Authorization", tc.header)
		}

		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		assert.Equal(t, tc.wantStatus, w.Code, tc.descr)
	}
}

func TestMetricsServer_Start(t *testing.T) {
	t.Parallel()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := server.NewMetricsServer(test.NewLogger(), server.NewMetricsHandler("at1"))

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.Start(ctx, l)
	}()

	client := &http.Client{Timeout: 5 * time.Second}

	res, err := client.Get("http://" + l.Addr().String() + "/probes/liveness")
	require.NoError(t, err)
	res.Body.Close()

	assert.Equal(t, http.StatusOK, res.StatusCode)

	cancel()

	assert.NoError(t, <-errCh)
}
