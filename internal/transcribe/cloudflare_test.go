package transcribe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestCloudflareTranscribeSuccess decodes the Workers AI envelope.
func TestCloudflareTranscribeSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer cf-token" {
			t.Errorf("authorization = %q", got)
		}
		w.Write([]byte(`{"success":true,"errors":[],"result":{"text":"edge transcript"}}`))
	}))
	defer server.Close()

	backend := NewCloudflareBackendForTests("cf-token", server.URL, server.Client())
	result, err := backend.Transcribe(context.Background(), Request{InputPath: writeCloudInput(t)})
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if result.Text != "edge transcript" {
		t.Fatalf("text = %q", result.Text)
	}
}

// TestCloudflareTranscribeUnsuccessfulEnvelope treats success=false as a
// backend error even with HTTP 200.
func TestCloudflareTranscribeUnsuccessfulEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"errors":[{"code":7000}],"result":null}`))
	}))
	defer server.Close()

	backend := NewCloudflareBackendForTests("cf-token", server.URL, server.Client())
	_, err := backend.Transcribe(context.Background(), Request{InputPath: writeCloudInput(t)})

	var backendErr *BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("error = %v, want BackendError", err)
	}
	if backendErr.Stage != "cloud-cloudflare" {
		t.Fatalf("stage = %q", backendErr.Stage)
	}
}

// TestCloudflareTranscribeHTTPError maps transport-level failures to a
// backend error.
func TestCloudflareTranscribeHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	backend := NewCloudflareBackendForTests("cf-token", server.URL, server.Client())
	if _, err := backend.Transcribe(context.Background(), Request{InputPath: writeCloudInput(t)}); err == nil {
		t.Fatal("expected error for http 401")
	}
}
