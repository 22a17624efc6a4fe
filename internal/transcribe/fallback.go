package transcribe

// NewFallbackPipeline builds the last-resort backend: the same exec
// pipeline pinned to a reduced-capability on-device model. Output quality
// drops, but the candidate list stays non-empty whenever the small model
// file exists locally.
func NewFallbackPipeline(fallbackModelPath, outputDir string) *Pipeline {
	return NewPipeline(fallbackModelPath, outputDir)
}
