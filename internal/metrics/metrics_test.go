package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{"http://example.com/path", "example.com"},
		{"https://Data.CommonCrawl.org/crawl-data", "data.commoncrawl.org"},
		{"example.com/path", "example.com"},
		{"example.com:8080", "example.com"},
		{"192.168.1.1", "192.168.1.1"},
		{"http://%", "unknown"},
		{"", "unknown"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, SanitizeSite(tt.input), tt.input)
	}
}

func TestObserveRemoteByKind(t *testing.T) {
	Init()
	Init()

	okBefore := testutil.ToFloat64(remoteRequestsTotal.WithLabelValues(KindArchive, "206"))
	errBefore := testutil.ToFloat64(remoteRequestsTotal.WithLabelValues(KindShard, "error"))
	bytesBefore := testutil.ToFloat64(remoteBytesTotal.WithLabelValues(KindArchive))

	ObserveRemote(KindArchive, http.StatusPartialContent, 2048, 30*time.Millisecond)
	ObserveRemote(KindArchive, http.StatusPartialContent, 0, time.Millisecond)
	ObserveRemote(KindShard, 0, 0, time.Millisecond)

	require.InDelta(t, 2, testutil.ToFloat64(remoteRequestsTotal.WithLabelValues(KindArchive, "206"))-okBefore, 1e-9)
	require.InDelta(t, 1, testutil.ToFloat64(remoteRequestsTotal.WithLabelValues(KindShard, "error"))-errBefore, 1e-9)
	require.InDelta(t, 2048, testutil.ToFloat64(remoteBytesTotal.WithLabelValues(KindArchive))-bytesBefore, 1e-9)
}

func TestActiveWorkersGauge(t *testing.T) {
	Init()

	before := testutil.ToFloat64(activeWorkers)
	IncActiveWorkers()
	IncActiveWorkers()
	DecActiveWorkers()
	require.InDelta(t, 1, testutil.ToFloat64(activeWorkers)-before, 1e-9)
	DecActiveWorkers()
}

func TestHandlerExposesRemoteCounters(t *testing.T) {
	Init()
	ObserveRemote(KindManifest, http.StatusOK, 512, time.Millisecond)
	ObserveRateLimitDelay("data.commoncrawl.org", 5*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `ccslice_remote_requests_total{code="200",kind="manifest"}`)
	require.Contains(t, string(body), "ccslice_remote_bytes_total")
}

func FuzzSanitizeSite(f *testing.F) {
	for _, seed := range []string{"http://example.com", "https://data.commoncrawl.org", "ftp://example.com", ":::"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, raw string) {
		if SanitizeSite(raw) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", raw)
		}
	})
}
