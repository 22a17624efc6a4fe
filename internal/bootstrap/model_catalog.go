package bootstrap

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"voicescribe/internal/config"
	"voicescribe/internal/domain"
)

const modelDownloadTimeout = 45 * time.Minute

var whisperModelCatalog = []domain.WhisperModelOption{
	{
		ID:          "tiny",
		Name:        "Tiny (Multilingual)",
		FileName:    "ggml-tiny.bin",
		URL:         "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-tiny.bin",
		SizeLabel:   "~75 MB",
		Description: "Fastest multilingual model, used as the last-resort fallback.",
	},
	{
		ID:          "tiny.en",
		Name:        "Tiny (English)",
		FileName:    "ggml-tiny.en.bin",
		URL:         "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-tiny.en.bin",
		SizeLabel:   "~75 MB",
		Description: "Fastest, English-only model.",
	},
	{
		ID:          "base",
		Name:        "Base (Multilingual)",
		FileName:    "ggml-base.bin",
		URL:         "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-base.bin",
		SizeLabel:   "~142 MB",
		Description: "Balanced speed/quality, multilingual.",
	},
	{
		ID:          "base.en",
		Name:        "Base (English)",
		FileName:    "ggml-base.en.bin",
		URL:         "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-base.en.bin",
		SizeLabel:   "~142 MB",
		Description: "Balanced speed/quality, English-only.",
	},
	{
		ID:          "small",
		Name:        "Small (Multilingual)",
		FileName:    "ggml-small.bin",
		URL:         "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-small.bin",
		SizeLabel:   "~466 MB",
		Description: "Higher quality multilingual model.",
	},
	{
		ID:          "medium",
		Name:        "Medium (Multilingual)",
		FileName:    "ggml-medium.bin",
		URL:         "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-medium.bin",
		SizeLabel:   "~1.5 GB",
		Description: "High quality multilingual model.",
	},
	{
		ID:          "large-v3-turbo",
		Name:        "Large v3 Turbo",
		FileName:    "ggml-large-v3-turbo.bin",
		URL:         "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-large-v3-turbo.bin",
		SizeLabel:   "~1.6 GB",
		Description: "Fast large-model variant for capable machines.",
	},
}

// Catalog answers on-device model availability and integrity queries. It
// implements the read-only interface the backend selector consumes.
type Catalog struct {
	loadSettings func() (domain.Settings, error)

	mu      sync.Mutex
	digests map[string]digestEntry
}

// digestEntry caches one file's content hash keyed by size and mtime.
type digestEntry struct {
	size    int64
	modTime time.Time
	sum     string
}

// NewCatalog builds a catalog resolving model locations from settings.
func NewCatalog(loadSettings func() (domain.Settings, error)) *Catalog {
	return &Catalog{
		loadSettings: loadSettings,
		digests:      make(map[string]digestEntry),
	}
}

// IsAvailable reports whether the model file for the given preset id
// exists in any known model directory.
func (c *Catalog) IsAvailable(modelID string) bool {
	_, ok := c.Locate(modelID)
	return ok
}

// Checksum returns the recorded SHA-256 of a downloaded model, read from
// the sidecar file written at download time. Models placed manually have
// no sidecar and report no checksum.
func (c *Catalog) Checksum(modelID string) (string, bool) {
	path, ok := c.Locate(modelID)
	if !ok {
		return "", false
	}

	data, err := os.ReadFile(path + ".sha256")
	if err != nil {
		return "", false
	}
	sum := strings.TrimSpace(string(data))
	if sum == "" {
		return "", false
	}
	return sum, true
}

// Digest returns the current content hash of a model file. The selector
// compares it against the recorded checksum to demote corrupt models.
// Hashes are cached by file size and modification time so repeated
// selection queries never re-hash a multi-gigabyte model.
func (c *Catalog) Digest(modelID string) (string, bool) {
	path, ok := c.Locate(modelID)
	if !ok {
		return "", false
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", false
	}

	c.mu.Lock()
	entry, cached := c.digests[path]
	c.mu.Unlock()
	if cached && entry.size == info.Size() && entry.modTime.Equal(info.ModTime()) {
		return entry.sum, true
	}

	sum, err := hashFile(path)
	if err != nil {
		return "", false
	}

	c.mu.Lock()
	c.digests[path] = digestEntry{size: info.Size(), modTime: info.ModTime(), sum: sum}
	c.mu.Unlock()
	return sum, true
}

// Locate returns the on-disk path of a preset's model file.
func (c *Catalog) Locate(modelID string) (string, bool) {
	model, found := getWhisperModelByID(strings.TrimSpace(modelID))
	if !found {
		return "", false
	}

	for _, dir := range c.knownModelDirs() {
		candidate := filepath.Join(dir, model.FileName)
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		return candidate, true
	}
	return "", false
}

// knownModelDirs collects the default models directory plus whatever the
// configured model path points at.
func (c *Catalog) knownModelDirs() []string {
	seen := map[string]struct{}{}
	add := func(path string) {
		p := strings.TrimSpace(path)
		if p == "" {
			return
		}
		clean := filepath.Clean(p)
		if clean == "." {
			return
		}
		seen[clean] = struct{}{}
	}

	add(filepath.Join(config.AppDir(), "models"))

	if c.loadSettings != nil {
		settings, err := c.loadSettings()
		if err == nil {
			modelPath := strings.TrimSpace(settings.ModelPath)
			if modelPath != "" {
				info, statErr := os.Stat(modelPath)
				switch {
				case statErr == nil && info.IsDir():
					add(modelPath)
				case statErr == nil:
					add(filepath.Dir(modelPath))
				case errors.Is(statErr, os.ErrNotExist):
					ext := strings.ToLower(filepath.Ext(modelPath))
					if ext == ".bin" || ext == ".gguf" {
						add(filepath.Dir(modelPath))
					} else {
						add(modelPath)
					}
				}
			}
		}
	}

	result := make([]string, 0, len(seen))
	for dir := range seen {
		result = append(result, dir)
	}
	return result
}

// GetWhisperModels returns built-in whisper.cpp model presets for one-click downloads.
func (a *App) GetWhisperModels() []domain.WhisperModelOption {
	models := make([]domain.WhisperModelOption, len(whisperModelCatalog))
	copy(models, whisperModelCatalog)

	for i := range models {
		if path, ok := a.Catalog.Locate(models[i].ID); ok {
			models[i].Downloaded = true
			models[i].LocalPath = path
		}
		if sum, ok := a.Catalog.Checksum(models[i].ID); ok {
			models[i].SHA256 = sum
		}
	}
	return models
}

// DownloadWhisperModel downloads the selected whisper.cpp model, records
// its SHA-256 in a sidecar file, and updates settings.ModelPath.
func (a *App) DownloadWhisperModel(modelID string) (domain.Settings, error) {
	id := strings.TrimSpace(modelID)
	if id == "" {
		return domain.Settings{}, fmt.Errorf("model id is required")
	}

	model, found := getWhisperModelByID(id)
	if !found {
		return domain.Settings{}, fmt.Errorf("unknown model id: %s", id)
	}

	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	settings = normalizeSettings(settings)

	downloadDir := filepath.Join(config.AppDir(), "models")
	targetPath := filepath.Join(downloadDir, model.FileName)
	if err := downloadURLToFile(targetPath, model.URL, modelDownloadTimeout); err != nil {
		return domain.Settings{}, fmt.Errorf("download model %s: %w", model.Name, err)
	}
	if err := writeChecksumSidecar(targetPath); err != nil {
		return domain.Settings{}, fmt.Errorf("record model checksum: %w", err)
	}

	settings.ModelID = model.ID
	settings.ModelPath = targetPath
	if err := a.Store.Save(settings); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.refreshDiagnostics(settings)
	return settings, nil
}

func getWhisperModelByID(id string) (domain.WhisperModelOption, bool) {
	for _, model := range whisperModelCatalog {
		if model.ID == id {
			return model, true
		}
	}
	return domain.WhisperModelOption{}, false
}

// writeChecksumSidecar hashes the downloaded model and stores the digest
// next to it, so integrity can be reported without re-hashing gigabytes
// on every catalog query.
func writeChecksumSidecar(modelPath string) error {
	sum, err := hashFile(modelPath)
	if err != nil {
		return err
	}
	return os.WriteFile(modelPath+".sha256", []byte(sum+"\n"), 0o644)
}

// hashFile returns the hex SHA-256 of a file's contents.
func hashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}

// downloadURLToFile fetches a URL into place via a temp file and rename,
// so an interrupted download never leaves a truncated model behind.
func downloadURLToFile(destinationPath string, sourceURL string, timeout time.Duration) error {
	if err := os.MkdirAll(filepath.Dir(destinationPath), 0o755); err != nil {
		return fmt.Errorf("prepare destination directory: %w", err)
	}

	tmpPath := destinationPath + ".download"
	if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale temp file: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "voicescribe")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected HTTP status: %s", resp.Status)
	}

	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create temporary file: %w", err)
	}

	_, copyErr := io.Copy(file, resp.Body)
	closeErr := file.Close()
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write destination file: %w", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close destination file: %w", closeErr)
	}

	if err := os.Remove(destinationPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("remove old destination file: %w", err)
	}
	if err := os.Rename(tmpPath, destinationPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("move downloaded file into place: %w", err)
	}

	return nil
}
