// Package selector decides, per job, the ordered list of execution
// strategies the orchestrator will attempt. Selection is a pure function of
// its inputs: for identical settings, credentials, connectivity, and model
// catalog state, the returned order is identical.
package selector

import "voicescribe/internal/domain"

// Strategy names one concrete execution path. The orchestrator uses the
// strategy name as the job's stage label while that attempt is running.
type Strategy string

const (
	StrategyLocalWhisper    Strategy = "local-whisper"
	StrategyCloudOpenAI     Strategy = "cloud-openai"
	StrategyCloudCloudflare Strategy = "cloud-cloudflare"
	StrategyFallback        Strategy = "fallback"
)

// FallbackModelID is the reduced-capability on-device model the last-resort
// strategy runs with.
const FallbackModelID = "tiny"

// Connectivity reports whether the device currently has a usable network
// path. Polled synchronously before cloud candidates are considered.
type Connectivity interface {
	HasActiveConnection() bool
}

// ModelCatalog answers read-only availability and integrity queries for
// on-device models. Checksum returns the digest recorded when a model was
// downloaded; Digest returns the current content hash of the file.
type ModelCatalog interface {
	IsAvailable(modelID string) bool
	Checksum(modelID string) (string, bool)
	Digest(modelID string) (string, bool)
}

// Input carries the per-job facts selection depends on.
type Input struct {
	SourcePath string
	Filename   string
}

// Select computes the ordered candidate list for one job attempt. The list
// is ephemeral: computed fresh per run, never persisted, never shared.
//
// Policy, in order: offline mode restricts to on-device strategies; when
// cloud is enabled, credentialed, and reachable, cloud leads only if the
// selected local model is unavailable or unhealthy; EnableCloudFallback
// appends the non-primary of {local, cloud}; the reduced-capability
// fallback strategy closes the list whenever its model is healthy on
// device.
func Select(in Input, st domain.Settings, creds domain.Credentials, conn Connectivity, cat ModelCatalog) []Strategy {
	localOK := st.ModelID != "" && modelHealthy(cat, st.ModelID)
	fallbackOK := modelHealthy(cat, FallbackModelID)

	var candidates []Strategy
	appendUnique := func(s Strategy) {
		for _, existing := range candidates {
			if existing == s {
				return
			}
		}
		candidates = append(candidates, s)
	}

	if st.OfflineMode {
		if localOK {
			appendUnique(StrategyLocalWhisper)
		}
		if fallbackOK {
			appendUnique(StrategyFallback)
		}
		return candidates
	}

	cloudStrategy, cloudOK := cloudCandidate(st, creds, conn)

	if cloudOK && !localOK {
		// Cloud leads; the unavailable local model cannot back it up.
		appendUnique(cloudStrategy)
	} else {
		if localOK {
			appendUnique(StrategyLocalWhisper)
		}
		if st.EnableCloudFallback && cloudOK {
			appendUnique(cloudStrategy)
		}
	}

	if fallbackOK {
		appendUnique(StrategyFallback)
	}
	return candidates
}

// modelHealthy reports whether a model is usable: present on device and,
// when a download-time checksum was recorded, still hashing to it. Models
// placed manually carry no recorded checksum and are trusted as-is.
func modelHealthy(cat ModelCatalog, modelID string) bool {
	if !cat.IsAvailable(modelID) {
		return false
	}
	recorded, ok := cat.Checksum(modelID)
	if !ok {
		return true
	}
	current, ok := cat.Digest(modelID)
	return ok && current == recorded
}

// cloudCandidate maps the configured provider to its strategy and reports
// whether cloud execution is currently eligible.
func cloudCandidate(st domain.Settings, creds domain.Credentials, conn Connectivity) (Strategy, bool) {
	if !st.CloudEnabled {
		return "", false
	}

	var strategy Strategy
	switch st.CloudProvider {
	case domain.CloudProviderOpenAI:
		strategy = StrategyCloudOpenAI
	case domain.CloudProviderCloudflare:
		strategy = StrategyCloudCloudflare
	default:
		return "", false
	}

	if creds.ProviderCredential(st.CloudProvider) == "" {
		return "", false
	}
	if conn == nil || !conn.HasActiveConnection() {
		return "", false
	}
	return strategy, true
}

// StreamingStrategy names a live-session engine choice.
type StreamingStrategy string

const (
	StreamingLocalWhisper StreamingStrategy = "local-stream"
	StreamingNativeSpeech StreamingStrategy = "native-speech"
)

// SelectStreaming returns the ordered streaming-capable engine candidates
// for a live session. Both candidates run on device, so offline mode does
// not restrict them; the model-backed engine leads only when its model is
// present and healthy.
func SelectStreaming(st domain.Settings, cat ModelCatalog) []StreamingStrategy {
	if st.ModelID != "" && modelHealthy(cat, st.ModelID) {
		return []StreamingStrategy{StreamingLocalWhisper, StreamingNativeSpeech}
	}
	return []StreamingStrategy{StreamingNativeSpeech}
}
