package bootstrap

import (
	"os"
	"path/filepath"
	"testing"

	"voicescribe/internal/domain"
)

func catalogFor(t *testing.T, modelPath string) *Catalog {
	t.Helper()
	return NewCatalog(func() (domain.Settings, error) {
		return domain.Settings{ModelPath: modelPath}, nil
	})
}

// TestCatalogLocateFindsConfiguredModel resolves a preset inside the
// configured model directory.
func TestCatalogLocateFindsConfiguredModel(t *testing.T) {
	modelDir := t.TempDir()
	modelFile := filepath.Join(modelDir, "ggml-tiny.bin")
	if err := os.WriteFile(modelFile, []byte("stub"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}

	catalog := catalogFor(t, modelDir)
	path, ok := catalog.Locate("tiny")
	if !ok || path != modelFile {
		t.Fatalf("locate = (%q, %v), want the model file", path, ok)
	}
	if !catalog.IsAvailable("tiny") {
		t.Fatal("tiny should be available")
	}
	if catalog.IsAvailable("base") {
		t.Fatal("base should be unavailable")
	}
	if catalog.IsAvailable("no-such-preset") {
		t.Fatal("unknown preset id should be unavailable")
	}
}

// TestCatalogLocateFromModelFilePath derives the search directory from a
// settings path pointing at a model file.
func TestCatalogLocateFromModelFilePath(t *testing.T) {
	modelDir := t.TempDir()
	configured := filepath.Join(modelDir, "ggml-base.bin")
	if err := os.WriteFile(configured, []byte("stub"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	if err := os.WriteFile(filepath.Join(modelDir, "ggml-tiny.bin"), []byte("stub"), 0o644); err != nil {
		t.Fatalf("write sibling model: %v", err)
	}

	catalog := catalogFor(t, configured)
	if !catalog.IsAvailable("base") || !catalog.IsAvailable("tiny") {
		t.Fatal("both models in the configured file's directory should resolve")
	}
}

// TestCatalogChecksumReadsSidecar reports the recorded digest only when a
// sidecar exists.
func TestCatalogChecksumReadsSidecar(t *testing.T) {
	modelDir := t.TempDir()
	modelFile := filepath.Join(modelDir, "ggml-tiny.bin")
	if err := os.WriteFile(modelFile, []byte("stub"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}

	catalog := catalogFor(t, modelDir)
	if _, ok := catalog.Checksum("tiny"); ok {
		t.Fatal("no sidecar: checksum should be absent")
	}

	if err := os.WriteFile(modelFile+".sha256", []byte("abc123\n"), 0o644); err != nil {
		t.Fatalf("write sidecar: %v", err)
	}
	sum, ok := catalog.Checksum("tiny")
	if !ok || sum != "abc123" {
		t.Fatalf("checksum = (%q, %v)", sum, ok)
	}
}

// TestCatalogDigestTracksFileContent verifies the current content hash
// matches the download-time record until the file changes on disk.
func TestCatalogDigestTracksFileContent(t *testing.T) {
	modelDir := t.TempDir()
	modelFile := filepath.Join(modelDir, "ggml-tiny.bin")
	if err := os.WriteFile(modelFile, []byte("stub"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	if err := writeChecksumSidecar(modelFile); err != nil {
		t.Fatalf("write sidecar: %v", err)
	}

	catalog := catalogFor(t, modelDir)
	recorded, ok := catalog.Checksum("tiny")
	if !ok {
		t.Fatal("sidecar digest should be recorded")
	}
	current, ok := catalog.Digest("tiny")
	if !ok || current != recorded {
		t.Fatalf("digest = (%q, %v), want the recorded %q", current, ok, recorded)
	}

	// A corrupted file hashes differently; the size change defeats the
	// digest cache.
	if err := os.WriteFile(modelFile, []byte("stub but truncated"), 0o644); err != nil {
		t.Fatalf("rewrite model: %v", err)
	}
	current, ok = catalog.Digest("tiny")
	if !ok || current == recorded {
		t.Fatalf("digest after corruption = (%q, %v), want a different hash", current, ok)
	}

	if _, ok := catalog.Digest("no-such-preset"); ok {
		t.Fatal("unknown preset id should report no digest")
	}
}

// TestGetWhisperModelsReportsDownloadState marks located presets and
// surfaces their recorded digests.
func TestGetWhisperModelsReportsDownloadState(t *testing.T) {
	modelDir := t.TempDir()
	modelFile := filepath.Join(modelDir, "ggml-tiny.bin")
	if err := os.WriteFile(modelFile, []byte("stub"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	if err := writeChecksumSidecar(modelFile); err != nil {
		t.Fatalf("write sidecar: %v", err)
	}

	app := &App{Catalog: catalogFor(t, modelDir)}
	for _, model := range app.GetWhisperModels() {
		if model.ID == "tiny" {
			if !model.Downloaded || model.LocalPath != modelFile {
				t.Fatalf("tiny = %+v, want downloaded at %s", model, modelFile)
			}
			if model.SHA256 == "" {
				t.Fatal("downloaded model must report its recorded digest")
			}
			continue
		}
		if model.Downloaded || model.SHA256 != "" {
			t.Fatalf("model %s should not report download state: %+v", model.ID, model)
		}
	}
}

// TestWriteChecksumSidecar hashes the file and stores the hex digest.
func TestWriteChecksumSidecar(t *testing.T) {
	modelFile := filepath.Join(t.TempDir(), "ggml-tiny.bin")
	if err := os.WriteFile(modelFile, []byte("stub"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}

	if err := writeChecksumSidecar(modelFile); err != nil {
		t.Fatalf("write sidecar: %v", err)
	}

	data, err := os.ReadFile(modelFile + ".sha256")
	if err != nil {
		t.Fatalf("read sidecar: %v", err)
	}
	// sha256("stub")
	want := "725c546b990dd1b41f3d5791b37c3c0edcb1f08cf150bdae32a73dfd166e02d7\n"
	if string(data) != want {
		t.Fatalf("sidecar = %q, want %q", string(data), want)
	}
}

// TestNormalizeSettingsDefaults applies language, output, and provider
// defaults to sparse input.
func TestNormalizeSettingsDefaults(t *testing.T) {
	got := normalizeSettings(domain.Settings{
		ModelID:      "  base  ",
		CloudEnabled: true,
	})

	if got.ModelID != "base" {
		t.Fatalf("model id = %q", got.ModelID)
	}
	if got.Language != "auto" {
		t.Fatalf("language = %q, want auto", got.Language)
	}
	if got.OutputDir == "" {
		t.Fatal("output dir should default")
	}
	if got.CloudProvider != domain.CloudProviderOpenAI {
		t.Fatalf("provider = %q, want openai default", got.CloudProvider)
	}
}
