package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"voicescribe/internal/domain"
)

const defaultOpenAIEndpoint = "https://api.openai.com/v1/audio/transcriptions"

// OpenAIBackend transcribes via the OpenAI audio.transcriptions API.
type OpenAIBackend struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewOpenAIBackend builds the production OpenAI backend.
func NewOpenAIBackend(apiKey, model string) *OpenAIBackend {
	return &OpenAIBackend{
		apiKey:   apiKey,
		model:    model,
		endpoint: defaultOpenAIEndpoint,
		client:   http.DefaultClient,
	}
}

// NewOpenAIBackendForTests builds a backend aimed at a test server.
func NewOpenAIBackendForTests(apiKey, model, endpoint string, client *http.Client) *OpenAIBackend {
	return &OpenAIBackend{
		apiKey:   apiKey,
		model:    model,
		endpoint: endpoint,
		client:   client,
	}
}

type openAIResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads the audio as multipart form data and decodes the
// plain-text transcription response. Cancellation rides on ctx; timeouts
// are the caller's concern.
func (o *OpenAIBackend) Transcribe(ctx context.Context, req Request) (domain.TranscriptionResult, error) {
	f, err := os.Open(req.InputPath)
	if err != nil {
		return domain.TranscriptionResult{}, &InputError{
			Path:    req.InputPath,
			Message: "cannot access input media",
			Err:     err,
		}
	}
	defer f.Close()

	reportProgress(req, 0.1)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("model", o.model); err != nil {
		return domain.TranscriptionResult{}, &BackendError{Stage: "cloud-openai", Message: "build request payload", Err: err}
	}
	if lang := normalizeLanguage(req.Language); lang != "" {
		if err := mw.WriteField("language", lang); err != nil {
			return domain.TranscriptionResult{}, &BackendError{Stage: "cloud-openai", Message: "build request payload", Err: err}
		}
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(req.InputPath))
	if err != nil {
		return domain.TranscriptionResult{}, &BackendError{Stage: "cloud-openai", Message: "build request payload", Err: err}
	}
	if _, err := io.Copy(fw, f); err != nil {
		return domain.TranscriptionResult{}, &BackendError{Stage: "cloud-openai", Message: "read input media", Err: err}
	}
	if err := mw.Close(); err != nil {
		return domain.TranscriptionResult{}, &BackendError{Stage: "cloud-openai", Message: "build request payload", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, &body)
	if err != nil {
		return domain.TranscriptionResult{}, &BackendError{Stage: "cloud-openai", Message: "build request", Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return domain.TranscriptionResult{}, &BackendError{Stage: "cloud-openai", Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.TranscriptionResult{}, &BackendError{
			Stage:   "cloud-openai",
			Message: fmt.Sprintf("http %d: %s", resp.StatusCode, string(b)),
		}
	}

	reportProgress(req, 0.9)

	var decoded openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return domain.TranscriptionResult{}, &BackendError{Stage: "cloud-openai", Message: "decode response", Err: err}
	}

	reportProgress(req, 1.0)

	// The API returns no segment timings; surface the text as one segment.
	return domain.TranscriptionResult{
		Text:     decoded.Text,
		Segments: []domain.Segment{{Text: decoded.Text}},
		Language: normalizeLanguage(req.Language),
	}, nil
}
