package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "SYNC_BACKEND", "POLL_INTERVAL"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Backend != BackendMemory {
		t.Errorf("default backend should be memory, got %q", cfg.Backend)
	}
	if cfg.Port != "8080" {
		t.Errorf("default port should be 8080, got %q", cfg.Port)
	}
	if cfg.PollInterval != 3*time.Second {
		t.Errorf("default poll interval should be 3s, got %v", cfg.PollInterval)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{
			name:    "unknown backend",
			env:     map[string]string{"SYNC_BACKEND": "carrier-pigeon"},
			wantErr: true,
		},
		{
			name:    "firestore without project",
			env:     map[string]string{"SYNC_BACKEND": "firestore"},
			wantErr: true,
		},
		{
			name: "firestore with project",
			env: map[string]string{
				"SYNC_BACKEND":         "firestore",
				"GOOGLE_CLOUD_PROJECT": "my-project",
			},
		},
		{
			name:    "github missing token",
			env:     map[string]string{"SYNC_BACKEND": "github", "GITHUB_OWNER": "o", "GITHUB_REPO": "r"},
			wantErr: true,
		},
		{
			name: "github complete",
			env: map[string]string{
				"SYNC_BACKEND": "github",
				"GITHUB_OWNER": "o",
				"GITHUB_REPO":  "r",
				"GITHUB_TOKEN": "tok",
			},
		},
		{
			name:    "bad poll interval",
			env:     map[string]string{"POLL_INTERVAL": "sometimes"},
			wantErr: true,
		},
		{
			name: "custom poll interval",
			env:  map[string]string{"POLL_INTERVAL": "500ms"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if tt.wantErr && err == nil {
				t.Error("expected an error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
