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

const cloudflareEndpointFormat = "https://api.cloudflare.com/client/v4/accounts/%s/ai/run/%s"

// CloudflareBackend transcribes via Cloudflare Workers AI.
type CloudflareBackend struct {
	accountID string
	apiToken  string
	model     string
	endpoint  string
	client    *http.Client
}

// NewCloudflareBackend builds the production Cloudflare backend.
func NewCloudflareBackend(accountID, apiToken, model string) *CloudflareBackend {
	return &CloudflareBackend{
		accountID: accountID,
		apiToken:  apiToken,
		model:     model,
		endpoint:  fmt.Sprintf(cloudflareEndpointFormat, accountID, model),
		client:    http.DefaultClient,
	}
}

// NewCloudflareBackendForTests builds a backend aimed at a test server.
func NewCloudflareBackendForTests(apiToken, endpoint string, client *http.Client) *CloudflareBackend {
	return &CloudflareBackend{
		apiToken: apiToken,
		endpoint: endpoint,
		client:   client,
	}
}

type cloudflareResponse struct {
	Success bool            `json:"success"`
	Errors  []any           `json:"errors"`
	Result  json.RawMessage `json:"result"`
}

type cloudflareWhisperResult struct {
	Text string `json:"text"`
}

// Transcribe posts the audio to the account's AI run endpoint and decodes
// the whisper result payload.
func (c *CloudflareBackend) Transcribe(ctx context.Context, req Request) (domain.TranscriptionResult, error) {
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
	fw, err := mw.CreateFormFile("file", filepath.Base(req.InputPath))
	if err != nil {
		return domain.TranscriptionResult{}, &BackendError{Stage: "cloud-cloudflare", Message: "build request payload", Err: err}
	}
	if _, err := io.Copy(fw, f); err != nil {
		return domain.TranscriptionResult{}, &BackendError{Stage: "cloud-cloudflare", Message: "read input media", Err: err}
	}
	if err := mw.Close(); err != nil {
		return domain.TranscriptionResult{}, &BackendError{Stage: "cloud-cloudflare", Message: "build request payload", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return domain.TranscriptionResult{}, &BackendError{Stage: "cloud-cloudflare", Message: "build request", Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiToken)
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return domain.TranscriptionResult{}, &BackendError{Stage: "cloud-cloudflare", Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.TranscriptionResult{}, &BackendError{
			Stage:   "cloud-cloudflare",
			Message: fmt.Sprintf("http %d: %s", resp.StatusCode, string(b)),
		}
	}

	reportProgress(req, 0.9)

	var decoded cloudflareResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return domain.TranscriptionResult{}, &BackendError{Stage: "cloud-cloudflare", Message: "decode response", Err: err}
	}
	if !decoded.Success {
		return domain.TranscriptionResult{}, &BackendError{
			Stage:   "cloud-cloudflare",
			Message: fmt.Sprintf("response not successful: %s", string(decoded.Result)),
		}
	}

	var whisperResult cloudflareWhisperResult
	if err := json.Unmarshal(decoded.Result, &whisperResult); err != nil {
		return domain.TranscriptionResult{}, &BackendError{Stage: "cloud-cloudflare", Message: "unexpected result shape", Err: err}
	}

	reportProgress(req, 1.0)

	return domain.TranscriptionResult{
		Text:     whisperResult.Text,
		Segments: []domain.Segment{{Text: whisperResult.Text}},
		Language: normalizeLanguage(req.Language),
	}, nil
}
