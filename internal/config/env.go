package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"voicescribe/internal/domain"
)

// LoadEnv overlays env files and reads cloud credentials from the process
// environment. Files are tried in order: $VOICESCRIBE_ENV, ~/.voicescribe.env,
// ./.env; missing files are skipped and existing variables are never
// overridden. Credentials stay out of the settings file on purpose.
func LoadEnv() domain.Credentials {
	var paths []string
	if custom := strings.TrimSpace(os.Getenv("VOICESCRIBE_ENV")); custom != "" {
		paths = append(paths, custom)
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".voicescribe.env"))
	}
	paths = append(paths, ".env")

	for _, path := range paths {
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			continue
		}
		_ = godotenv.Load(path)
	}

	return domain.Credentials{
		OpenAIAPIKey:        strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		CloudflareAccountID: strings.TrimSpace(os.Getenv("CF_ACCOUNT_ID")),
		CloudflareAPIToken:  strings.TrimSpace(os.Getenv("CF_API_TOKEN")),
	}
}
