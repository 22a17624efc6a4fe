package domain

// WhisperModelOption describes one downloadable whisper.cpp model preset
// as surfaced to the UI, including its on-device state.
type WhisperModelOption struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	FileName    string `json:"fileName"`
	URL         string `json:"url"`
	SizeLabel   string `json:"sizeLabel,omitempty"`
	Description string `json:"description,omitempty"`
	Downloaded  bool   `json:"downloaded"`
	LocalPath   string `json:"localPath,omitempty"`

	// SHA256 is the digest recorded when the model was downloaded; empty
	// for manually placed models, which carry no integrity record.
	SHA256 string `json:"sha256,omitempty"`
}
