package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"voicescribe/internal/domain"
)

// commandResult is an internal process execution response.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

// Run executes one command and captures stdout/stderr and exit code.
func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}

	return result, nil
}

// Pipeline is the on-device backend: ffmpeg preprocessing, ffprobe
// duration measurement, and whisper.cpp transcription via external
// commands. It implements Backend.
type Pipeline struct {
	ffmpegPath  string
	ffprobePath string
	whisperPath string
	modelPath   string
	outputDir   string
	runner      commandRunner
	mkdirTemp   func(dir, pattern string) (string, error)
	removeAll   func(path string) error
	stat        func(name string) (os.FileInfo, error)
	mkdirAll    func(path string, perm os.FileMode) error
	readDir     func(name string) ([]os.DirEntry, error)
	readFile    func(name string) ([]byte, error)
}

// NewPipeline constructs the production pipeline with OS dependencies.
// modelPath may be a model file or a directory containing models.
func NewPipeline(modelPath, outputDir string) *Pipeline {
	return &Pipeline{
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
		whisperPath: "whisper.cpp",
		modelPath:   modelPath,
		outputDir:   outputDir,
		runner:      &execRunner{},
		mkdirTemp:   os.MkdirTemp,
		removeAll:   os.RemoveAll,
		stat:        os.Stat,
		mkdirAll:    os.MkdirAll,
		readDir:     os.ReadDir,
		readFile:    os.ReadFile,
	}
}

// Transcribe converts the input to 16k mono WAV, measures its duration,
// runs whisper.cpp, and assembles the structured result. The exported .txt
// transcript lands in the configured output directory.
func (p *Pipeline) Transcribe(ctx context.Context, req Request) (domain.TranscriptionResult, error) {
	if strings.TrimSpace(req.InputPath) == "" {
		return domain.TranscriptionResult{}, &InputError{Message: "input media path is required"}
	}
	if _, err := p.stat(req.InputPath); err != nil {
		return domain.TranscriptionResult{}, &InputError{
			Path:    req.InputPath,
			Message: "cannot access input media",
			Err:     err,
		}
	}

	modelPath, err := p.resolveModelPath()
	if err != nil {
		return domain.TranscriptionResult{}, &BackendError{
			Stage:   "local-whisper",
			Message: err.Error(),
			Err:     err,
		}
	}

	if strings.TrimSpace(p.outputDir) == "" {
		return domain.TranscriptionResult{}, &BackendError{
			Stage:   "local-whisper",
			Message: "output directory is required",
		}
	}
	if err := p.mkdirAll(p.outputDir, 0o755); err != nil {
		return domain.TranscriptionResult{}, &BackendError{
			Stage:   "local-whisper",
			Message: fmt.Sprintf("cannot create output directory: %s", p.outputDir),
			Err:     err,
		}
	}

	reportProgress(req, 0.05)

	tempDir, err := p.mkdirTemp("", "voicescribe-*")
	if err != nil {
		return domain.TranscriptionResult{}, &BackendError{
			Stage:   "local-whisper",
			Message: "failed to create temporary workspace",
			Err:     err,
		}
	}
	defer func() { _ = p.removeAll(tempDir) }()

	wavPath := filepath.Join(tempDir, "preprocessed-16k-mono.wav")
	args := buildFFmpegArgs(req.InputPath, wavPath)
	cmdResult, runErr := p.runner.Run(ctx, p.ffmpegPath, args...)
	if runErr != nil {
		return domain.TranscriptionResult{}, &BackendError{
			Stage:      "local-whisper",
			Message:    "ffmpeg audio conversion failed",
			CommandLog: commandLogFor(p.ffmpegPath, args, cmdResult),
			Err:        runErr,
		}
	}
	if _, err := p.stat(wavPath); err != nil {
		return domain.TranscriptionResult{}, &BackendError{
			Stage:      "local-whisper",
			Message:    "ffmpeg completed but output file is missing",
			CommandLog: commandLogFor(p.ffmpegPath, args, cmdResult),
			Err:        err,
		}
	}

	reportProgress(req, 0.35)

	duration := p.probeDuration(ctx, wavPath)

	textPath := filepath.Join(p.outputDir, transcriptFileName(req.InputPath))
	textBase := strings.TrimSuffix(textPath, filepath.Ext(textPath))
	whisperArgs := buildWhisperArgs(modelPath, wavPath, textBase, req.Language)

	whisperResult, runErr := p.runner.Run(ctx, p.whisperPath, whisperArgs...)
	if runErr != nil {
		return domain.TranscriptionResult{}, &BackendError{
			Stage:      "local-whisper",
			Message:    "whisper.cpp transcription failed",
			CommandLog: commandLogFor(p.whisperPath, whisperArgs, whisperResult),
			Err:        runErr,
		}
	}

	reportProgress(req, 0.9)

	content, err := p.readFile(textPath)
	if err != nil {
		return domain.TranscriptionResult{}, &BackendError{
			Stage:      "local-whisper",
			Message:    fmt.Sprintf("whisper.cpp completed but transcript file is missing: %s", textPath),
			CommandLog: commandLogFor(p.whisperPath, whisperArgs, whisperResult),
			Err:        err,
		}
	}

	reportProgress(req, 1.0)

	return domain.TranscriptionResult{
		Text:        strings.TrimSpace(string(content)),
		Segments:    parseSegments(whisperResult.Stdout),
		Language:    normalizeLanguage(req.Language),
		DurationSec: duration,
	}, nil
}

// probeDuration measures audio length via ffprobe. A probe failure is not
// fatal; duration stays zero and transcription proceeds.
func (p *Pipeline) probeDuration(ctx context.Context, wavPath string) float64 {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		wavPath,
	}
	result, err := p.runner.Run(ctx, p.ffprobePath, args...)
	if err != nil {
		return 0
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(result.Stdout), 64)
	if err != nil || duration < 0 {
		return 0
	}
	return duration
}

// resolveModelPath returns the model file path from file or directory input.
func (p *Pipeline) resolveModelPath() (string, error) {
	modelPath := strings.TrimSpace(p.modelPath)
	if modelPath == "" {
		return "", fmt.Errorf("model path is required")
	}

	info, err := p.stat(modelPath)
	if err != nil {
		return "", fmt.Errorf("cannot access model path: %s", modelPath)
	}
	if !info.IsDir() {
		return modelPath, nil
	}

	entries, err := p.readDir(modelPath)
	if err != nil {
		return "", fmt.Errorf("cannot read model directory: %s", modelPath)
	}

	modelNames := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".bin" || ext == ".gguf" {
			modelNames = append(modelNames, entry.Name())
		}
	}
	if len(modelNames) == 0 {
		return "", fmt.Errorf("no .bin or .gguf model files found in: %s", modelPath)
	}

	sort.Strings(modelNames)
	return filepath.Join(modelPath, modelNames[0]), nil
}

// segmentLine matches whisper.cpp stdout lines of the form
// [00:00:00.000 --> 00:00:02.540]   text
var segmentLine = regexp.MustCompile(`^\[(\d{2}):(\d{2}):(\d{2})\.(\d{3}) --> (\d{2}):(\d{2}):(\d{2})\.(\d{3})\]\s*(.*)$`)

// parseSegments extracts timed segments from whisper.cpp stdout.
func parseSegments(stdout string) []domain.Segment {
	var segments []domain.Segment
	for _, line := range strings.Split(stdout, "\n") {
		m := segmentLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}

		text := strings.TrimSpace(m[9])
		if text == "" {
			continue
		}
		segments = append(segments, domain.Segment{
			StartSec: timestampSeconds(m[1], m[2], m[3], m[4]),
			EndSec:   timestampSeconds(m[5], m[6], m[7], m[8]),
			Text:     text,
		})
	}
	return segments
}

// timestampSeconds converts matched hh/mm/ss/mmm groups to seconds.
func timestampSeconds(hh, mm, ss, mmm string) float64 {
	h, _ := strconv.Atoi(hh)
	m, _ := strconv.Atoi(mm)
	s, _ := strconv.Atoi(ss)
	ms, _ := strconv.Atoi(mmm)
	return float64(h)*3600 + float64(m)*60 + float64(s) + float64(ms)/1000
}

// commandLogFor bundles one invocation for error context.
func commandLogFor(name string, args []string, result commandResult) CommandLog {
	return CommandLog{
		Command:  name,
		Args:     args,
		ExitCode: result.ExitCode,
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
	}
}

// normalizeLanguage maps "auto" and empty language to no override.
func normalizeLanguage(raw string) string {
	lang := strings.TrimSpace(raw)
	if lang == "" || strings.EqualFold(lang, "auto") {
		return ""
	}
	return lang
}

// buildFFmpegArgs builds preprocessing CLI args for mono 16k PCM WAV output.
func buildFFmpegArgs(inputPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outPath,
	}
}

// buildWhisperArgs builds whisper.cpp args for txt transcript export.
func buildWhisperArgs(modelPath, audioPath, textBase, language string) []string {
	args := []string{
		"-m", modelPath,
		"-f", audioPath,
		"-of", textBase,
		"-otxt",
	}

	if lang := normalizeLanguage(language); lang != "" {
		args = append(args, "-l", lang)
	}

	return args
}

// transcriptFileName builds the output text filename from the input name.
func transcriptFileName(inputPath string) string {
	base := filepath.Base(inputPath)
	name := strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "transcript"
	}
	return name + ".txt"
}

// NewPipelineForTests constructs a pipeline with injectable dependencies.
func NewPipelineForTests(
	ffmpegPath string,
	ffprobePath string,
	whisperPath string,
	modelPath string,
	outputDir string,
	runner commandRunner,
) *Pipeline {
	return &Pipeline{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		whisperPath: whisperPath,
		modelPath:   modelPath,
		outputDir:   outputDir,
		runner:      runner,
		mkdirTemp:   os.MkdirTemp,
		removeAll:   os.RemoveAll,
		stat:        os.Stat,
		mkdirAll:    os.MkdirAll,
		readDir:     os.ReadDir,
		readFile:    os.ReadFile,
	}
}
