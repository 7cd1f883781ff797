// Package config reads the server configuration from the environment,
// optionally preloaded from a .env file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Backend selects which store adapter the server runs against. The variants
// are mutually exclusive; one server process speaks one backend.
type Backend string

const (
	// BackendFirestore is the document-database variant with live push.
	BackendFirestore Backend = "firestore"
	// BackendGitHub is the versioned-file REST variant, poll-based.
	BackendGitHub Backend = "github"
	// BackendMemory is the serverless variant: state lives in share links.
	BackendMemory Backend = "memory"
	// BackendLocal is the no-sync baseline persisting to a local sqlite file.
	BackendLocal Backend = "local"
)

type Config struct {
	Port         string
	Backend      Backend
	PollInterval time.Duration

	// Firestore
	ProjectID string

	// GitHub
	GitHubOwner  string
	GitHubRepo   string
	GitHubBranch string
	GitHubToken  string

	// Local baseline
	SQLitePath string
}

// Load reads configuration from the environment. A .env file is honored when
// present but not required.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:         getenv("PORT", "8080"),
		Backend:      Backend(getenv("SYNC_BACKEND", string(BackendMemory))),
		ProjectID:    os.Getenv("GOOGLE_CLOUD_PROJECT"),
		GitHubOwner:  os.Getenv("GITHUB_OWNER"),
		GitHubRepo:   os.Getenv("GITHUB_REPO"),
		GitHubBranch: os.Getenv("GITHUB_BRANCH"),
		GitHubToken:  os.Getenv("GITHUB_TOKEN"),
		SQLitePath:   getenv("SQLITE_PATH", "todolist.db"),
	}

	interval := getenv("POLL_INTERVAL", "3s")
	d, err := time.ParseDuration(interval)
	if err != nil {
		return Config{}, fmt.Errorf("invalid POLL_INTERVAL %q: %w", interval, err)
	}
	cfg.PollInterval = d

	switch cfg.Backend {
	case BackendFirestore:
		if cfg.ProjectID == "" {
			return Config{}, fmt.Errorf("GOOGLE_CLOUD_PROJECT is required for the firestore backend")
		}
	case BackendGitHub:
		if cfg.GitHubOwner == "" || cfg.GitHubRepo == "" || cfg.GitHubToken == "" {
			return Config{}, fmt.Errorf("GITHUB_OWNER, GITHUB_REPO and GITHUB_TOKEN are required for the github backend")
		}
	case BackendMemory, BackendLocal:
	default:
		return Config{}, fmt.Errorf("unknown SYNC_BACKEND %q", cfg.Backend)
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
