package config

import (
	"os"
	"path/filepath"
	"testing"

	"voicescribe/internal/domain"
)

// TestLoadEnvReadsProcessEnvironment maps known variables to credentials.
func TestLoadEnvReadsProcessEnvironment(t *testing.T) {
	t.Setenv("VOICESCRIBE_ENV", "")
	t.Setenv("OPENAI_API_KEY", "  sk-live  ")
	t.Setenv("CF_ACCOUNT_ID", "acct-1")
	t.Setenv("CF_API_TOKEN", "cf-token")

	creds := LoadEnv()
	if creds.OpenAIAPIKey != "sk-live" {
		t.Fatalf("openai key = %q, want trimmed value", creds.OpenAIAPIKey)
	}
	if creds.CloudflareAccountID != "acct-1" || creds.CloudflareAPIToken != "cf-token" {
		t.Fatalf("cloudflare creds = %+v", creds)
	}
}

// TestLoadEnvOverlayFile loads variables from the file named by
// VOICESCRIBE_ENV without overriding the process environment.
func TestLoadEnvOverlayFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "creds.env")
	content := "OPENAI_API_KEY=from-file\nCF_ACCOUNT_ID=file-acct\nCF_API_TOKEN=file-token\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	t.Setenv("VOICESCRIBE_ENV", envFile)
	t.Setenv("OPENAI_API_KEY", "from-process")
	t.Setenv("CF_ACCOUNT_ID", "")
	t.Setenv("CF_API_TOKEN", "")
	os.Unsetenv("CF_ACCOUNT_ID")
	os.Unsetenv("CF_API_TOKEN")

	creds := LoadEnv()
	if creds.OpenAIAPIKey != "from-process" {
		t.Fatalf("openai key = %q, process env must win", creds.OpenAIAPIKey)
	}
	if creds.CloudflareAccountID != "file-acct" || creds.CloudflareAPIToken != "file-token" {
		t.Fatalf("cloudflare creds = %+v, want file values", creds)
	}
}

// TestCredentialsProviderLookup resolves the per-provider secret.
func TestCredentialsProviderLookup(t *testing.T) {
	creds := domain.Credentials{
		OpenAIAPIKey:       "sk",
		CloudflareAPIToken: "cf",
	}

	if got := creds.ProviderCredential(domain.CloudProviderOpenAI); got != "sk" {
		t.Fatalf("openai credential = %q", got)
	}
	// Cloudflare needs both the account id and the token.
	if got := creds.ProviderCredential(domain.CloudProviderCloudflare); got != "" {
		t.Fatalf("cloudflare credential without account = %q, want empty", got)
	}

	creds.CloudflareAccountID = "acct"
	if got := creds.ProviderCredential(domain.CloudProviderCloudflare); got != "cf" {
		t.Fatalf("cloudflare credential = %q", got)
	}
	if got := creds.ProviderCredential("unknown"); got != "" {
		t.Fatalf("unknown provider credential = %q, want empty", got)
	}
}
