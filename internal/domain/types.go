package domain

import "time"

// JobStatus tracks the lifecycle state of a single transcription job.
type JobStatus string

const (
	JobStatusQueued       JobStatus = "queued"
	JobStatusRecording    JobStatus = "recording"
	JobStatusTranscribing JobStatus = "transcribing"
	JobStatusCompleted    JobStatus = "completed"
	JobStatusFailed       JobStatus = "failed"
	JobStatusCancelled    JobStatus = "cancelled"
)

// Stage labels sub-classify how a status was reached. Backend attempts use
// the strategy name as stage (e.g. "cloud-openai", "fallback").
const (
	StagePreparing = "preparing"
	StageCompleted = "completed"
	StageError     = "error"
	StageCancelled = "cancelled"
)

// Segment is one timed span of transcribed audio.
type Segment struct {
	StartSec float64 `json:"startSec"`
	EndSec   float64 `json:"endSec"`
	Text     string  `json:"text"`
}

// TranscriptionResult is the structured output of a completed job.
type TranscriptionResult struct {
	Text        string    `json:"text"`
	Segments    []Segment `json:"segments,omitempty"`
	Language    string    `json:"language,omitempty"`
	DurationSec float64   `json:"durationSec,omitempty"`
}

// Job stores identity and mutable lifecycle state for one transcription
// request. Identity fields (ID, CreatedAt) never change after creation;
// everything else is written by the orchestrator only.
type Job struct {
	ID          string               `json:"id"`
	CreatedAt   time.Time            `json:"createdAt"`
	SourcePath  string               `json:"sourcePath,omitempty"`
	Filename    string               `json:"filename,omitempty"`
	Status      JobStatus            `json:"status"`
	Stage       string               `json:"stage,omitempty"`
	Progress    float64              `json:"progress"`
	Error       string               `json:"error,omitempty"`
	Result      *TranscriptionResult `json:"result,omitempty"`
	DurationSec float64              `json:"durationSec,omitempty"`
}

// Clone returns a deep copy so ledger snapshots never alias stored records.
func (j Job) Clone() Job {
	out := j
	if j.Result != nil {
		res := *j.Result
		res.Segments = append([]Segment(nil), j.Result.Segments...)
		out.Result = &res
	}
	return out
}

// CloudProvider identifies a remote transcription service.
type CloudProvider string

const (
	CloudProviderOpenAI     CloudProvider = "openai"
	CloudProviderCloudflare CloudProvider = "cloudflare"
)

// Settings contains user-selectable runtime configuration.
type Settings struct {
	ModelID             string        `json:"modelId"`
	ModelPath           string        `json:"modelPath"`
	OutputDir           string        `json:"outputDir"`
	Language            string        `json:"language"`
	OfflineMode         bool          `json:"offlineMode"`
	CloudEnabled        bool          `json:"cloudEnabled"`
	CloudProvider       CloudProvider `json:"cloudProvider,omitempty"`
	EnableCloudFallback bool          `json:"enableCloudFallback"`
}

// Credentials holds cloud API secrets. They are sourced from the
// environment and never written to the settings file.
type Credentials struct {
	OpenAIAPIKey        string
	CloudflareAccountID string
	CloudflareAPIToken  string
}

// ProviderCredential returns the credential string for the given provider,
// empty when the provider is unknown or not fully configured.
func (c Credentials) ProviderCredential(p CloudProvider) string {
	switch p {
	case CloudProviderOpenAI:
		return c.OpenAIAPIKey
	case CloudProviderCloudflare:
		if c.CloudflareAccountID == "" {
			return ""
		}
		return c.CloudflareAPIToken
	default:
		return ""
	}
}
