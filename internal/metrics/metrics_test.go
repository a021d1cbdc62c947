package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if tierLookupsTotal == nil || cacheErrorsTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	ObserveTierLookup("organization", TierCache, "miss")
	if val := testutil.ToFloat64(tierLookupsTotal.WithLabelValues("organization", TierCache, "miss")); val != 1 {
		t.Errorf("Expected tier lookups to be 1, got %f", val)
	}
}

func TestObserveCounters(t *testing.T) {
	ObserveCacheError("redis", "get")
	ObserveCacheError("redis", "get")
	if val := testutil.ToFloat64(cacheErrorsTotal.WithLabelValues("redis", "get")); val != 2 {
		t.Errorf("Expected cache errors to be 2, got %f", val)
	}

	ObserveExtraction("post", "ok", 3, 0)
	if val := testutil.ToFloat64(recordsExtractedTotal.WithLabelValues("post")); val != 3 {
		t.Errorf("Expected extracted records to be 3, got %f", val)
	}

	ObserveDroppedRecord("comment", "missing_identity")
	if val := testutil.ToFloat64(recordsDroppedTotal.WithLabelValues("comment", "missing_identity")); val != 1 {
		t.Errorf("Expected dropped records to be 1, got %f", val)
	}

	IncActiveSessions()
	IncActiveSessions()
	DecActiveSessions()
	if val := testutil.ToFloat64(activeSessions); val != 1 {
		t.Errorf("Expected one active session, got %f", val)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
