// Package collab implements the room synchronization protocol: a
// Synchronizer owning the canonical in-memory list and reconciling it against
// a remote store, and a Session mapping human room identifiers onto store
// keys and driving join/create/leave.
package collab

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/JingZHANG-CUHKSZ/todolist/internal/models"
	"github.com/JingZHANG-CUHKSZ/todolist/internal/store"
)

// State is the synchronizer's connection state.
type State int

const (
	Disconnected State = iota
	Hydrating
	Synced
	Reconciling
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Hydrating:
		return "hydrating"
	case Synced:
		return "synced"
	case Reconciling:
		return "reconciling"
	}
	return "unknown"
}

const defaultPollInterval = 3 * time.Second

// ChangeFunc is called with a copy of the room after every applied change,
// local or remote. It is the hook for the rendering collaborator.
type ChangeFunc func(room *models.Room)

// Synchronizer owns the in-memory list for one room. Local mutations are
// applied optimistically and persisted asynchronously as whole-document
// overwrites; remote state is pulled on a timer, or pushed when the store
// supports watching. A remote pull that differs from the last applied state
// replaces the list wholesale. The model is last-write-wins: an unconfirmed
// local write can be overwritten by the next remote document that lands.
type Synchronizer struct {
	store    store.RemoteStore
	key      string
	interval time.Duration
	logger   *slog.Logger
	onChange ChangeFunc

	mu        sync.Mutex
	state     State
	room      *models.Room
	version   store.Version
	mutations uint64 // bumped on every local mutation, guards stale pulls

	persistMu sync.Mutex // serializes whole-document puts
	persists  sync.WaitGroup

	cancel    context.CancelFunc
	stopWatch func()
	done      chan struct{}
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithPollInterval sets the reconciliation tick for poll-based stores.
func WithPollInterval(d time.Duration) Option {
	return func(s *Synchronizer) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithOnChange registers the change listener.
func WithOnChange(fn ChangeFunc) Option {
	return func(s *Synchronizer) { s.onChange = fn }
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Synchronizer) { s.logger = l }
}

// NewSynchronizer builds a disconnected synchronizer for one store key.
func NewSynchronizer(st store.RemoteStore, key string, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		store:    st,
		key:      key,
		interval: defaultPollInterval,
		logger:   slog.Default(),
		state:    Disconnected,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("key", key)
	return s
}

// Connect hydrates the list from the remote document and starts the
// reconciliation loop. If the remote document does not exist yet, the given
// seed room (or an empty one) is written as the initial document. Watch-capable
// stores get a push subscription instead of a poll timer.
func (s *Synchronizer) Connect(ctx context.Context, seed *models.Room) error {
	s.mu.Lock()
	if s.state != Disconnected {
		s.mu.Unlock()
		return errors.New("synchronizer already connected")
	}
	s.state = Hydrating
	s.mu.Unlock()

	doc, ver, err := s.store.Get(ctx, s.key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if seed == nil {
			seed = &models.Room{Items: []models.Item{}}
		}
		ver, err = s.store.Put(ctx, s.key, models.NewDocument(seed), "")
		if err != nil {
			s.setState(Disconnected)
			return err
		}
		doc = models.NewDocument(seed)
	case err != nil:
		s.setState(Disconnected)
		return err
	}

	s.mu.Lock()
	s.room = doc.Room()
	s.version = ver
	s.state = Synced
	s.mu.Unlock()
	s.notify()

	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	if w, ok := s.store.(store.Watcher); ok {
		stop, err := w.Watch(loopCtx, s.key, s.applyRemote)
		if err != nil {
			cancel()
			s.setState(Disconnected)
			return err
		}
		s.stopWatch = stop
		close(s.done)
		return nil
	}

	go s.pollLoop(loopCtx)
	return nil
}

func (s *Synchronizer) pollLoop(ctx context.Context) {
	defer close(s.done)
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.reconcile(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// reconcile pulls the remote document and replaces the local list if it
// differs. A pull that started before a local mutation landed is discarded so
// a stale poll result cannot roll back a newer local write.
func (s *Synchronizer) reconcile(ctx context.Context) {
	s.mu.Lock()
	if s.state != Synced {
		s.mu.Unlock()
		return
	}
	s.state = Reconciling
	before := s.mutations
	s.mu.Unlock()

	doc, ver, err := s.store.Get(ctx, s.key)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("reconcile pull failed", "err", err)
		}
		s.exitReconcile()
		return
	}

	s.mu.Lock()
	if s.state != Reconciling {
		// Leave won mid-pull.
		s.mu.Unlock()
		return
	}
	if s.mutations != before {
		// A local write landed mid-pull; its persist will push the newer list.
		s.state = Synced
		s.mu.Unlock()
		return
	}
	changed := !models.ItemsEqual(s.room.Items, doc.Todos)
	if changed {
		s.room = doc.Room()
	}
	s.version = ver
	s.state = Synced
	s.mu.Unlock()

	if changed {
		s.notify()
	}
}

// applyRemote handles one push notification from a watch-capable store. Each
// callback is an instantaneous reconciliation.
func (s *Synchronizer) applyRemote(doc *models.Document) {
	s.mu.Lock()
	if s.state == Disconnected {
		s.mu.Unlock()
		return
	}
	if models.ItemsEqual(s.room.Items, doc.Todos) {
		s.mu.Unlock()
		return
	}
	s.room = doc.Room()
	s.mu.Unlock()
	s.notify()
}

func (s *Synchronizer) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// exitReconcile returns to Synced unless Leave already disconnected us.
func (s *Synchronizer) exitReconcile() {
	s.mu.Lock()
	if s.state == Reconciling {
		s.state = Synced
	}
	s.mu.Unlock()
}

// Add validates and prepends a new item, then persists the list.
func (s *Synchronizer) Add(text string) (models.Item, error) {
	s.mu.Lock()
	if s.room == nil {
		s.mu.Unlock()
		return models.Item{}, errors.New("not connected")
	}
	item, err := s.room.Add(text)
	if err != nil {
		s.mu.Unlock()
		return models.Item{}, err
	}
	s.mutations++
	doc := models.NewDocument(s.room)
	s.mu.Unlock()

	s.notify()
	s.persistAsync(doc)
	return item, nil
}

// Toggle flips an item's completion state. Unknown ids are a silent no-op.
func (s *Synchronizer) Toggle(id string) bool {
	s.mu.Lock()
	if s.room == nil || !s.room.Toggle(id) {
		s.mu.Unlock()
		return false
	}
	s.mutations++
	doc := models.NewDocument(s.room)
	s.mu.Unlock()

	s.notify()
	s.persistAsync(doc)
	return true
}

// Delete removes an item. Returns false when there was nothing to delete.
func (s *Synchronizer) Delete(id string) bool {
	s.mu.Lock()
	if s.room == nil || !s.room.Delete(id) {
		s.mu.Unlock()
		return false
	}
	s.mutations++
	doc := models.NewDocument(s.room)
	s.mu.Unlock()

	s.notify()
	s.persistAsync(doc)
	return true
}

// ClearCompleted removes every completed item and reports how many went.
// Zero removals skip the remote write entirely.
func (s *Synchronizer) ClearCompleted() int {
	s.mu.Lock()
	if s.room == nil {
		s.mu.Unlock()
		return 0
	}
	removed := s.room.ClearCompleted()
	if removed == 0 {
		s.mu.Unlock()
		return 0
	}
	s.mutations++
	doc := models.NewDocument(s.room)
	s.mu.Unlock()

	s.notify()
	s.persistAsync(doc)
	return removed
}

// persistAsync pushes the whole document without blocking the mutation.
// Failure is logged and the optimistic local state stays authoritative; the
// next reconciliation decides what survives.
func (s *Synchronizer) persistAsync(doc *models.Document) {
	s.persists.Add(1)
	go func() {
		defer s.persists.Done()
		s.persistMu.Lock()
		defer s.persistMu.Unlock()

		s.mu.Lock()
		ver := s.version
		s.mu.Unlock()

		newVer, err := s.store.Put(context.Background(), s.key, doc, ver)
		if errors.Is(err, store.ErrConflict) {
			// Stale token: refresh it and push the local list once more.
			// Still a whole-document overwrite, so last write wins.
			if _, ver, err = s.store.Get(context.Background(), s.key); err == nil {
				newVer, err = s.store.Put(context.Background(), s.key, doc, ver)
			}
		}
		if err != nil {
			s.logger.Warn("persist failed, local list kept", "err", err)
			return
		}
		s.mu.Lock()
		s.version = newVer
		s.mu.Unlock()
	}()
}

// Flush waits for in-flight persists to settle.
func (s *Synchronizer) Flush() {
	s.persists.Wait()
}

// Leave cancels the poll timer or subscription and disconnects. The change
// listener is never called again afterwards.
func (s *Synchronizer) Leave() {
	s.mu.Lock()
	if s.state == Disconnected {
		s.mu.Unlock()
		return
	}
	s.state = Disconnected
	s.mu.Unlock()

	if s.stopWatch != nil {
		s.stopWatch()
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
	s.persists.Wait()
}

// State returns the current connection state.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Room returns a copy of the current room.
func (s *Synchronizer) Room() *models.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomCopyLocked()
}

func (s *Synchronizer) roomCopyLocked() *models.Room {
	if s.room == nil {
		return nil
	}
	cp := *s.room
	cp.Items = append([]models.Item(nil), s.room.Items...)
	if cp.Items == nil {
		cp.Items = []models.Item{}
	}
	return &cp
}

func (s *Synchronizer) notify() {
	if s.onChange == nil {
		return
	}
	s.mu.Lock()
	room := s.roomCopyLocked()
	disconnected := s.state == Disconnected
	s.mu.Unlock()
	if room == nil || disconnected {
		return
	}
	s.onChange(room)
}
