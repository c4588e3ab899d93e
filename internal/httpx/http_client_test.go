package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestConfigureExternalHTTPClient(t *testing.T) {
	original := externalHTTPClient.Timeout
	t.Cleanup(func() { externalHTTPClient.Timeout = original })

	tests := []struct {
		seconds int
		want    time.Duration
	}{
		{0, defaultExternalHTTPTimeout},
		{-5, defaultExternalHTTPTimeout},
		{30, 30 * time.Second},
		{120, 120 * time.Second},
	}
	for _, tt := range tests {
		if got := ConfigureExternalHTTPClient(tt.seconds); got != tt.want {
			t.Errorf("ConfigureExternalHTTPClient(%d) = %s, want %s", tt.seconds, got, tt.want)
		}
		if ExternalHTTPClient().Timeout != tt.want {
			t.Errorf("client timeout after %d = %s, want %s", tt.seconds, ExternalHTTPClient().Timeout, tt.want)
		}
	}
}

// Integrations capture the client at construction time, so reconfiguring
// must mutate the shared instance rather than replace it.
func TestExternalHTTPClientIsShared(t *testing.T) {
	original := externalHTTPClient.Timeout
	t.Cleanup(func() { externalHTTPClient.Timeout = original })

	captured := ExternalHTTPClient()
	ConfigureExternalHTTPClient(7)
	if captured != ExternalHTTPClient() || captured.Timeout != 7*time.Second {
		t.Fatalf("captured client not updated: timeout=%s", captured.Timeout)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()
	resp, err := captured.Get(server.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
