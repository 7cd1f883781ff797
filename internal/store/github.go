package store

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JingZHANG-CUHKSZ/todolist/internal/models"
)

const defaultGitHubAPI = "https://api.github.com"

// GitHubStore keeps room documents as JSON files in a repository, written
// through the contents API. The file's blob sha is the version token: a PUT
// without the current sha of an existing file is rejected by the provider,
// which surfaces here as ErrConflict.
type GitHubStore struct {
	client  *http.Client
	apiBase string
	owner   string
	repo    string
	branch  string
	token   string
}

// GitHubConfig carries the repository coordinates and bearer token. The token
// is opaque to this package; it usually arrives via a share-link fragment.
type GitHubConfig struct {
	Owner  string
	Repo   string
	Branch string
	Token  string
	// APIBase overrides the GitHub API endpoint, used by tests.
	APIBase string
}

func NewGitHubStore(cfg GitHubConfig) *GitHubStore {
	base := cfg.APIBase
	if base == "" {
		base = defaultGitHubAPI
	}
	return &GitHubStore{
		client:  &http.Client{Timeout: 15 * time.Second},
		apiBase: strings.TrimSuffix(base, "/"),
		owner:   cfg.Owner,
		repo:    cfg.Repo,
		branch:  cfg.Branch,
		token:   cfg.Token,
	}
}

func (gs *GitHubStore) Close() error { return nil }

func (gs *GitHubStore) contentsURL(key string) string {
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s", gs.apiBase, gs.owner, gs.repo, key)
}

func (gs *GitHubStore) do(ctx context.Context, method, url string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "token "+gs.token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := gs.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github request failed: %w", err)
	}
	return resp, nil
}

// contentsFile is the API's file representation: base64 content plus sha.
type contentsFile struct {
	Content string `json:"content"`
	SHA     string `json:"sha"`
}

func (gs *GitHubStore) Get(ctx context.Context, key string) (*models.Document, Version, error) {
	url := gs.contentsURL(key)
	if gs.branch != "" {
		url += "?ref=" + gs.branch
	}
	resp, err := gs.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, "", err
	}

	var file contentsFile
	if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
		return nil, "", fmt.Errorf("failed to decode contents response: %w", err)
	}

	// The API wraps base64 content at 60 columns.
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(file.Content, "\n", ""))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode file content: %w", err)
	}

	var doc models.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, "", fmt.Errorf("failed to unmarshal document %s: %w", key, err)
	}
	return &doc, Version(file.SHA), nil
}

func (gs *GitHubStore) Put(ctx context.Context, key string, doc *models.Document, ver Version) (Version, error) {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal document %s: %w", key, err)
	}

	payload := map[string]string{
		"message": fmt.Sprintf("Update %s", key),
		"content": base64.StdEncoding.EncodeToString(raw),
	}
	if gs.branch != "" {
		payload["branch"] = gs.branch
	}
	if ver != "" {
		payload["sha"] = string(ver)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	resp, err := gs.do(ctx, http.MethodPut, gs.contentsURL(key), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", err
	}

	var result struct {
		Content contentsFile `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode put response: %w", err)
	}
	return Version(result.Content.SHA), nil
}

// ListKeys lists the JSON files directly under a directory prefix. A missing
// directory fails open with no keys.
func (gs *GitHubStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	dir := strings.TrimSuffix(prefix, "/")
	resp, err := gs.do(ctx, http.MethodGet, gs.contentsURL(dir), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var entries []struct {
		Path string `json:"path"`
		Type string `json:"type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode directory listing: %w", err)
	}

	var keys []string
	for _, e := range entries {
		if e.Type == "file" && strings.HasSuffix(e.Path, ".json") {
			keys = append(keys, e.Path)
		}
	}
	return keys, nil
}

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusUnprocessableEntity:
		return ErrConflict
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("github API error: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
}
