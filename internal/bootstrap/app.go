// Package bootstrap assembles the application: settings, ledger,
// orchestrator, live session controller, and the Wails desktop shell with
// its bound backend methods.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"voicescribe/internal/audio"
	"voicescribe/internal/config"
	"voicescribe/internal/connectivity"
	"voicescribe/internal/diagnostics"
	"voicescribe/internal/domain"
	"voicescribe/internal/jobs"
	"voicescribe/internal/live"
	"voicescribe/internal/orchestrator"
	"voicescribe/internal/selector"
	"voicescribe/internal/transcribe"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

const (
	openAIWhisperModel     = "whisper-1"
	cloudflareWhisperModel = "@cf/openai/whisper"

	captureSampleRate = 16000
	captureChannels   = 1
)

var mediaDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Audio files",
		Pattern:     "*.mp3;*.wav;*.m4a;*.flac;*.aac;*.ogg;*.mp4;*.mov;*.mkv;*.webm",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

// LiveUpdate is the payload pushed to the UI on live transcript changes.
type LiveUpdate struct {
	Final   string `json:"final"`
	Partial string `json:"partial"`
}

// App wires configuration, the job ledger, the orchestrator, and the live
// session controller behind the Wails runtime.
type App struct {
	Store        config.Store
	Ledger       *jobs.Ledger
	Events       *jobs.EventBus
	Activity     *jobs.Activity
	Orchestrator *orchestrator.Orchestrator
	Live         *live.Controller
	Catalog      *Catalog
	Diagnostics  domain.DiagnosticReport

	checker *diagnostics.Checker
	creds   domain.Credentials

	mu             sync.Mutex
	runtimeCtx     context.Context
	eventCh        chan jobs.Event
	recordingJobID string
	recorder       *audio.Recorder
}

// New builds the application with persisted settings, environment
// credentials, and startup diagnostics.
func New() (*App, error) {
	store := config.NewJSONStore(config.SettingsPath())
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	creds := config.LoadEnv()

	ledger := jobs.NewLedger(config.LedgerPath())
	events := jobs.NewEventBus(1000)
	activity := jobs.NewActivity()
	catalog := NewCatalog(store.Load)

	checker := diagnostics.NewChecker(config.LedgerPath())
	report := checker.Run(settings, creds)

	app := &App{
		Store:       store,
		Ledger:      ledger,
		Events:      events,
		Activity:    activity,
		Catalog:     catalog,
		Diagnostics: report,
		checker:     checker,
		creds:       creds,
	}

	app.Orchestrator = orchestrator.New(orchestrator.Options{
		Ledger:       ledger,
		Events:       events,
		Activity:     activity,
		Config:       app.configSnapshot,
		Connectivity: connectivity.NewChecker(),
		Catalog:      catalog,
		Backends:     app.buildBackends,
		AutoRun:      true,
	})

	app.Live = live.NewController(live.Options{
		Activity: activity,
		OnUpdate: app.pushLiveUpdate,
	})

	// Jobs persisted by a previous process would otherwise sit in the
	// ledger forever; re-queue what was interrupted and drain the queue.
	app.Orchestrator.Recover()

	return app, nil
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	return wails.Run(&options.App{
		Title:  "VoiceScribe",
		Width:  1180,
		Height: 780,
		AssetServer: &assetserver.Options{
			Handler: http.FileServer(http.Dir("./frontend")),
		},
		OnStartup: a.Startup,
		OnShutdown: func(ctx context.Context) {
			a.mu.Lock()
			a.runtimeCtx = nil
			ch := a.eventCh
			a.eventCh = nil
			a.mu.Unlock()
			if ch != nil {
				a.Events.Unsubscribe(ch)
			}
		},
		Bind: []interface{}{a},
	})
}

// Startup stores the Wails runtime context and begins forwarding job
// events to the UI.
func (a *App) Startup(ctx context.Context) {
	ch := a.Events.Subscribe(256)

	a.mu.Lock()
	a.runtimeCtx = ctx
	a.eventCh = ch
	a.mu.Unlock()

	go func() {
		for event := range ch {
			a.mu.Lock()
			rc := a.runtimeCtx
			a.mu.Unlock()
			if rc != nil {
				wailsruntime.EventsEmit(rc, "job:event", event)
			}
		}
	}()
}

// configSnapshot freezes settings and credentials for one job run.
func (a *App) configSnapshot() orchestrator.ConfigSnapshot {
	settings, err := a.Store.Load()
	if err != nil {
		settings = config.DefaultSettings()
	}
	return orchestrator.ConfigSnapshot{
		Settings:    normalizeSettings(settings),
		Credentials: a.creds,
	}
}

// buildBackends maps each selectable strategy to a concrete backend for
// the given configuration snapshot.
func (a *App) buildBackends(cfg orchestrator.ConfigSnapshot) map[selector.Strategy]transcribe.Backend {
	backends := map[selector.Strategy]transcribe.Backend{}

	if modelPath := a.resolveModelPath(cfg.Settings); modelPath != "" {
		backends[selector.StrategyLocalWhisper] = transcribe.NewPipeline(modelPath, cfg.Settings.OutputDir)
	}
	if cfg.Credentials.OpenAIAPIKey != "" {
		backends[selector.StrategyCloudOpenAI] = transcribe.NewOpenAIBackend(cfg.Credentials.OpenAIAPIKey, openAIWhisperModel)
	}
	if cfg.Credentials.CloudflareAccountID != "" && cfg.Credentials.CloudflareAPIToken != "" {
		backends[selector.StrategyCloudCloudflare] = transcribe.NewCloudflareBackend(
			cfg.Credentials.CloudflareAccountID, cfg.Credentials.CloudflareAPIToken, cloudflareWhisperModel)
	}
	if fallbackPath, ok := a.Catalog.Locate(selector.FallbackModelID); ok {
		backends[selector.StrategyFallback] = transcribe.NewFallbackPipeline(fallbackPath, cfg.Settings.OutputDir)
	}

	return backends
}

// resolveModelPath prefers the catalog location for the selected model id
// and falls back to the configured path.
func (a *App) resolveModelPath(settings domain.Settings) string {
	if path, ok := a.Catalog.Locate(settings.ModelID); ok {
		return path
	}
	return strings.TrimSpace(settings.ModelPath)
}

// EnqueueFile queues an existing audio file for transcription.
func (a *App) EnqueueFile(path string) (domain.Job, error) {
	return a.Orchestrator.Enqueue(path, filepath.Base(path))
}

// StartRecording opens the microphone and queues a recording job. The job
// sits in the recording status until StopRecording delivers the file.
func (a *App) StartRecording() (domain.Job, error) {
	a.mu.Lock()
	if a.recorder != nil {
		a.mu.Unlock()
		return domain.Job{}, fmt.Errorf("a recording is already in progress")
	}
	a.mu.Unlock()

	recorder, err := audio.NewRecorder(captureSampleRate, captureChannels)
	if err != nil {
		return domain.Job{}, err
	}
	if err := recorder.Start(); err != nil {
		_ = recorder.Close()
		return domain.Job{}, err
	}

	filename := fmt.Sprintf("recording-%s.wav", time.Now().Format("20060102-150405"))
	job, err := a.Orchestrator.EnqueueRecording(filename)
	if err != nil {
		recorder.Stop()
		_ = recorder.Close()
		return domain.Job{}, err
	}

	a.mu.Lock()
	a.recorder = recorder
	a.recordingJobID = job.ID
	a.mu.Unlock()
	return job, nil
}

// StopRecording ends microphone capture, writes the WAV file, and hands it
// to the pending recording job.
func (a *App) StopRecording() (domain.Job, error) {
	a.mu.Lock()
	recorder := a.recorder
	jobID := a.recordingJobID
	a.recorder = nil
	a.recordingJobID = ""
	a.mu.Unlock()

	if recorder == nil {
		return domain.Job{}, fmt.Errorf("no recording in progress")
	}

	samples := recorder.Stop()
	closeErr := recorder.Close()

	job, ok := a.Ledger.Get(jobID)
	if !ok {
		return domain.Job{}, fmt.Errorf("recording job disappeared: %s", jobID)
	}

	wavPath := filepath.Join(config.AppDir(), "recordings", job.Filename)
	if err := os.MkdirAll(filepath.Dir(wavPath), 0o755); err != nil {
		return domain.Job{}, err
	}
	if err := audio.WriteWAV(wavPath, samples, recorder.SampleRate()); err != nil {
		return domain.Job{}, err
	}
	if err := a.Orchestrator.FinishRecording(jobID, wavPath); err != nil {
		return domain.Job{}, err
	}
	if closeErr != nil {
		return domain.Job{}, closeErr
	}

	job, _ = a.Ledger.Get(jobID)
	return job, nil
}

// ListJobs returns all job records in insertion order.
func (a *App) ListJobs() []domain.Job {
	return a.Ledger.List()
}

// GetJob returns one job record.
func (a *App) GetJob(id string) (domain.Job, error) {
	job, ok := a.Ledger.Get(id)
	if !ok {
		return domain.Job{}, fmt.Errorf("%w: %s", jobs.ErrJobNotFound, id)
	}
	return job, nil
}

// RetryJob re-queues a failed job.
func (a *App) RetryJob(id string) error {
	return a.Orchestrator.Retry(id)
}

// CancelJob cancels a queued or running job.
func (a *App) CancelJob(id string) error {
	return a.Orchestrator.Cancel(id)
}

// RemoveJob deletes a job from the ledger, cancelling it first if needed.
func (a *App) RemoveJob(id string) error {
	return a.Orchestrator.RemoveJob(id)
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.Events.Since(sinceSeq)
}

// IsBusy reports whether any job or live session is currently active.
func (a *App) IsBusy() bool {
	return a.Activity.Get()
}

// StartLiveSession configures a streaming engine from current settings and
// begins a live session.
func (a *App) StartLiveSession() error {
	settings := normalizeSettings(a.loadSettingsOrDefault())

	engine, err := a.buildLiveEngine(settings)
	if err != nil {
		return err
	}
	if err := a.Live.SetEngine(engine); err != nil {
		return err
	}
	return a.Live.Start()
}

// StopLiveSession finalizes the live session and returns the transcript.
func (a *App) StopLiveSession() (string, error) {
	if err := a.Live.Stop(); err != nil {
		return "", err
	}
	final, _, _ := a.Live.Snapshot()
	return final, nil
}

// SaveLiveTranscript writes the current live transcript to a file in the
// configured output directory and returns its path.
func (a *App) SaveLiveTranscript() (string, error) {
	settings := normalizeSettings(a.loadSettingsOrDefault())
	path := filepath.Join(settings.OutputDir, fmt.Sprintf("live-%s.txt", time.Now().Format("20060102-150405")))
	if err := a.Live.Save(path); err != nil {
		return "", err
	}
	return path, nil
}

// LiveSnapshot returns the current live transcript buffers and state.
func (a *App) LiveSnapshot() LiveUpdate {
	final, partial, _ := a.Live.Snapshot()
	return LiveUpdate{Final: final, Partial: partial}
}

// buildLiveEngine picks the first streaming strategy the app can satisfy.
// Only the chunked whisper engine ships with the desktop build; the native
// speech strategy is skipped when it comes up.
func (a *App) buildLiveEngine(settings domain.Settings) (live.Engine, error) {
	for _, strategy := range selector.SelectStreaming(settings, a.Catalog) {
		if strategy != selector.StreamingLocalWhisper {
			continue
		}

		recorder, err := audio.NewRecorder(captureSampleRate, captureChannels)
		if err != nil {
			return nil, err
		}
		return live.NewChunkedWhisperEngine(recorder, a.chunkTranscriber(settings)), nil
	}
	return nil, live.ErrNoEngine
}

// chunkTranscriber adapts the batch exec pipeline to chunked streaming:
// each chunk is written to a temp WAV and transcribed in isolation.
func (a *App) chunkTranscriber(settings domain.Settings) live.ChunkTranscriber {
	modelPath := a.resolveModelPath(settings)
	return func(ctx context.Context, samples []float32, sampleRate uint32) (string, error) {
		tempDir, err := os.MkdirTemp("", "voicescribe-live-*")
		if err != nil {
			return "", err
		}
		defer func() { _ = os.RemoveAll(tempDir) }()

		wavPath := filepath.Join(tempDir, "chunk.wav")
		if err := audio.WriteWAV(wavPath, samples, sampleRate); err != nil {
			return "", err
		}

		pipeline := transcribe.NewPipeline(modelPath, tempDir)
		result, err := pipeline.Transcribe(ctx, transcribe.Request{
			InputPath: wavPath,
			Language:  settings.Language,
		})
		if err != nil {
			return "", err
		}
		return result.Text, nil
	}
}

// ExportTranscript writes a completed job's transcript text to the output
// directory and returns the file path.
func (a *App) ExportTranscript(id string) (string, error) {
	job, ok := a.Ledger.Get(id)
	if !ok {
		return "", fmt.Errorf("%w: %s", jobs.ErrJobNotFound, id)
	}
	if job.Status != domain.JobStatusCompleted || job.Result == nil {
		return "", fmt.Errorf("job %s has no transcript to export", id)
	}

	settings := normalizeSettings(a.loadSettingsOrDefault())
	if err := os.MkdirAll(settings.OutputDir, 0o755); err != nil {
		return "", err
	}

	name := strings.TrimSuffix(job.Filename, filepath.Ext(job.Filename))
	if name == "" {
		name = job.ID
	}
	path := filepath.Join(settings.OutputDir, name+".txt")
	if err := os.WriteFile(path, []byte(job.Result.Text), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return normalizeSettings(settings), nil
}

// SaveSettings normalizes and persists settings, then refreshes diagnostics.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := normalizeSettings(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.refreshDiagnostics(normalized)
	return normalized, nil
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Diagnostics
}

// RefreshDiagnostics reloads settings and reruns dependency checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}

	a.refreshDiagnostics(normalizeSettings(settings))
	return a.GetDiagnostics(), nil
}

// refreshDiagnostics reruns checks against the given settings.
func (a *App) refreshDiagnostics(settings domain.Settings) {
	report := a.checker.Run(settings, a.creds)
	a.mu.Lock()
	a.Diagnostics = report
	a.mu.Unlock()
}

// PickInputFile opens a native file dialog for audio selection.
func (a *App) PickInputFile() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select audio file",
		Filters: mediaDialogFilter,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(path), nil
}

// PickOutputDirectory opens a native directory picker for transcript exports.
func (a *App) PickOutputDirectory() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: "Select output directory",
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(path), nil
}

// pushLiveUpdate forwards live transcript changes to the UI.
func (a *App) pushLiveUpdate(final, partial string) {
	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, "live:event", LiveUpdate{Final: final, Partial: partial})
	}
}

// loadSettingsOrDefault never fails; a broken settings file degrades to
// defaults for read paths.
func (a *App) loadSettingsOrDefault() domain.Settings {
	settings, err := a.Store.Load()
	if err != nil {
		return config.DefaultSettings()
	}
	return settings
}

// runtimeContext returns the current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// normalizeSettings trims user inputs and applies defaults for empty fields.
func normalizeSettings(settings domain.Settings) domain.Settings {
	settings.ModelID = strings.TrimSpace(settings.ModelID)
	settings.ModelPath = strings.TrimSpace(settings.ModelPath)
	settings.OutputDir = strings.TrimSpace(settings.OutputDir)
	settings.Language = strings.TrimSpace(settings.Language)
	if settings.Language == "" {
		settings.Language = "auto"
	}
	if settings.OutputDir == "" {
		settings.OutputDir = config.DefaultSettings().OutputDir
	}
	if (settings.CloudEnabled || settings.EnableCloudFallback) && settings.CloudProvider == "" {
		settings.CloudProvider = domain.CloudProviderOpenAI
	}
	return settings
}
