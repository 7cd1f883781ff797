package store

import (
	"context"
	"errors"
	"testing"

	"github.com/JingZHANG-CUHKSZ/todolist/internal/models"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	ss, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}
	t.Cleanup(func() { ss.Close() })
	return ss
}

func TestSQLiteGetMissing(t *testing.T) {
	ss := newTestSQLiteStore(t)
	if _, _, err := ss.Get(context.Background(), "rooms/room-NOPE.json"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLitePutGetRoundTrip(t *testing.T) {
	ss := newTestSQLiteStore(t)
	ctx := context.Background()

	doc := testDoc("买牛奶", "walk dog")
	ver, err := ss.Put(ctx, "rooms/room-ABC123.json", doc, "")
	if err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if ver != "1" {
		t.Errorf("first version should be 1, got %q", ver)
	}

	got, gotVer, err := ss.Get(ctx, "rooms/room-ABC123.json")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if gotVer != ver {
		t.Errorf("version mismatch: %q vs %q", gotVer, ver)
	}
	if got.RoomID != "ABC123" || !models.ItemsEqual(got.Todos, doc.Todos) {
		t.Errorf("document did not survive the round trip: %+v", got)
	}
}

func TestSQLiteVersionConflict(t *testing.T) {
	ss := newTestSQLiteStore(t)
	ctx := context.Background()

	ver, err := ss.Put(ctx, "rooms/room-ABC123.json", testDoc("one"), "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ss.Put(ctx, "rooms/room-ABC123.json", testDoc("two"), "99"); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
	ver2, err := ss.Put(ctx, "rooms/room-ABC123.json", testDoc("two"), ver)
	if err != nil {
		t.Fatalf("put with current version failed: %v", err)
	}
	if ver2 != "2" {
		t.Errorf("version should increment to 2, got %q", ver2)
	}
	// Unversioned put overwrites regardless.
	if _, err := ss.Put(ctx, "rooms/room-ABC123.json", testDoc("three"), ""); err != nil {
		t.Errorf("unversioned put should succeed, got %v", err)
	}
}

func TestSQLiteListKeys(t *testing.T) {
	ss := newTestSQLiteStore(t)
	ctx := context.Background()

	for _, key := range []string{"rooms/room-A.json", "rooms/room-B.json", "data/group-C.json"} {
		if _, err := ss.Put(ctx, key, testDoc("x"), ""); err != nil {
			t.Fatal(err)
		}
	}

	keys, err := ss.ListKeys(ctx, "rooms/")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(keys) != 2 || keys[0] != "rooms/room-A.json" || keys[1] != "rooms/room-B.json" {
		t.Errorf("unexpected keys %v", keys)
	}
}
