package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/JingZHANG-CUHKSZ/todolist/internal/models"
)

// MemoryStore is a map-backed store. It backs the serverless share-link
// variant, where the "remote" is whatever snapshot the incoming link carried,
// and it is the store fake used throughout the tests.
type MemoryStore struct {
	mu      sync.Mutex
	docs    map[string][]byte
	vers    map[string]int
	nextVer int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string][]byte),
		vers: make(map[string]int),
	}
}

func (ms *MemoryStore) Close() error { return nil }

func (ms *MemoryStore) Get(_ context.Context, key string) (*models.Document, Version, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	raw, ok := ms.docs[key]
	if !ok {
		return nil, "", ErrNotFound
	}
	var doc models.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, "", fmt.Errorf("failed to unmarshal document %s: %w", key, err)
	}
	return &doc, Version(strconv.Itoa(ms.vers[key])), nil
}

func (ms *MemoryStore) Put(_ context.Context, key string, doc *models.Document, ver Version) (Version, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.docs[key]; exists && ver != "" {
		if ver != Version(strconv.Itoa(ms.vers[key])) {
			return "", ErrConflict
		}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal document %s: %w", key, err)
	}
	ms.nextVer++
	ms.docs[key] = raw
	ms.vers[key] = ms.nextVer
	return Version(strconv.Itoa(ms.nextVer)), nil
}

func (ms *MemoryStore) ListKeys(_ context.Context, prefix string) ([]string, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var keys []string
	for k := range ms.docs {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Seed loads a document without version checking, used when a share link
// carries an embedded room snapshot.
func (ms *MemoryStore) Seed(key string, doc *models.Document) error {
	_, err := ms.Put(context.Background(), key, doc, "")
	return err
}
