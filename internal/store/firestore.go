package store

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/JingZHANG-CUHKSZ/todolist/internal/models"
)

// FirestoreStore persists one Firestore document per room. It is the only
// push-capable backend: Watch streams remote snapshots as they land.
//
// Writes are unconditional overwrites; Firestore users get freshness from the
// snapshot stream rather than from version tokens, so Put ignores them.
type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(ctx context.Context, projectID string) (*FirestoreStore, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	return &FirestoreStore{client: client}, nil
}

func (fs *FirestoreStore) Close() error {
	return fs.client.Close()
}

// docRef maps a path-like key ("rooms/room-ABC123.json") onto a collection
// and document id.
func (fs *FirestoreStore) docRef(key string) *firestore.DocumentRef {
	dir := path.Dir(key)
	name := strings.TrimSuffix(path.Base(key), ".json")
	return fs.client.Collection(dir).Doc(name)
}

func (fs *FirestoreStore) Get(ctx context.Context, key string) (*models.Document, Version, error) {
	snap, err := fs.docRef(key).Get(ctx)
	if err != nil {
		switch status.Code(err) {
		case codes.NotFound:
			return nil, "", ErrNotFound
		case codes.Unauthenticated, codes.PermissionDenied:
			return nil, "", ErrUnauthorized
		}
		return nil, "", fmt.Errorf("failed to get document %s: %w", key, err)
	}

	var doc models.Document
	if err := snap.DataTo(&doc); err != nil {
		return nil, "", fmt.Errorf("failed to unmarshal document %s: %w", key, err)
	}
	return &doc, Version(snap.UpdateTime.UTC().Format(time.RFC3339Nano)), nil
}

func (fs *FirestoreStore) Put(ctx context.Context, key string, doc *models.Document, _ Version) (Version, error) {
	res, err := fs.docRef(key).Set(ctx, doc)
	if err != nil {
		switch status.Code(err) {
		case codes.Unauthenticated, codes.PermissionDenied:
			return "", ErrUnauthorized
		}
		return "", fmt.Errorf("failed to put document %s: %w", key, err)
	}
	return Version(res.UpdateTime.UTC().Format(time.RFC3339Nano)), nil
}

func (fs *FirestoreStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	dir := strings.TrimSuffix(prefix, "/")
	iter := fs.client.Collection(dir).Documents(ctx)
	defer iter.Stop()

	var keys []string
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to iterate collection %s: %w", dir, err)
		}
		keys = append(keys, dir+"/"+snap.Ref.ID+".json")
	}
	return keys, nil
}

// Watch streams every remote change of key to onChange until stop is called.
func (fs *FirestoreStore) Watch(ctx context.Context, key string, onChange func(*models.Document)) (func(), error) {
	iter := fs.docRef(key).Snapshots(ctx)
	go func() {
		for {
			snap, err := iter.Next()
			if err != nil {
				return
			}
			if !snap.Exists() {
				continue
			}
			var doc models.Document
			if err := snap.DataTo(&doc); err != nil {
				continue
			}
			onChange(&doc)
		}
	}()
	return iter.Stop, nil
}
