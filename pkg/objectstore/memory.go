package objectstore

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
)

// Backend names.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

type memoryEntry struct {
	obj     *unstructured.Unstructured
	version int64
}

// MemoryStore implements Store with in-memory maps. Its contents are lost
// on exit.
type MemoryStore struct {
	objects map[objectKey]*memoryEntry
	links   map[types.UID][]LinkRecord
	closed  bool
	mu      sync.RWMutex

	admit    *admitter
	observer Observer
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts Options) *MemoryStore {
	opts = opts.withDefaults()
	return &MemoryStore{
		objects:  make(map[objectKey]*memoryEntry),
		links:    make(map[types.UID][]LinkRecord),
		admit:    newAdmitter(opts, BackendMemory),
		observer: opts.Observer,
		now:      opts.Now,
	}
}

// Create stores a new object.
func (s *MemoryStore) Create(ctx context.Context, obj *unstructured.Unstructured) (_ *unstructured.Unstructured, err error) {
	start := time.Now()
	defer func() { observe(s.observer, BackendMemory, "create", start, err) }()

	key, err := keyOf(obj)
	if err != nil {
		return nil, err
	}

	created := obj.DeepCopy()
	w := s.admit.admit(ctx, "create", nil, created)
	defer func() { w.end(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if _, exists := s.objects[key]; exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, key)
	}

	created.SetUID(types.UID(uuid.NewString()))
	created.SetCreationTimestamp(metav1.NewTime(s.now()))
	created.SetResourceVersion("1")
	s.objects[key] = &memoryEntry{obj: created, version: 1}

	return created.DeepCopy(), nil
}

// Update replaces a stored object.
func (s *MemoryStore) Update(ctx context.Context, obj *unstructured.Unstructured) (_ *unstructured.Unstructured, err error) {
	start := time.Now()
	defer func() { observe(s.observer, BackendMemory, "update", start, err) }()

	key, err := keyOf(obj)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	entry, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err := checkPreconditions(obj, entry.obj.GetUID(), entry.version); err != nil {
		return nil, err
	}

	updated := obj.DeepCopy()
	w := s.admit.admit(ctx, "update", entry.obj, updated)
	defer func() { w.end(err) }()

	version := entry.version + 1
	updated.SetUID(entry.obj.GetUID())
	updated.SetCreationTimestamp(entry.obj.GetCreationTimestamp())
	updated.SetResourceVersion(strconv.FormatInt(version, 10))
	s.objects[key] = &memoryEntry{obj: updated, version: version}

	if l := w.decision.Link; l != nil {
		uid := updated.GetUID()
		s.links[uid] = append(s.links[uid], LinkRecord{
			UID:             uid,
			ResourceVersion: updated.GetResourceVersion(),
			Link:            *l,
			RecordedAt:      s.now(),
		})
	}

	return updated.DeepCopy(), nil
}

// Get returns a copy of the stored object.
func (s *MemoryStore) Get(ctx context.Context, kind, namespace, name string) (_ *unstructured.Unstructured, err error) {
	start := time.Now()
	defer func() { observe(s.observer, BackendMemory, "get", start, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	key := objectKey{kind: kind, namespace: namespace, name: name}
	entry, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return entry.obj.DeepCopy(), nil
}

// Links returns the overwrite history of uid.
func (s *MemoryStore) Links(ctx context.Context, uid types.UID) (_ []LinkRecord, err error) {
	start := time.Now()
	defer func() { observe(s.observer, BackendMemory, "links", start, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	records := s.links[uid]
	out := make([]LinkRecord, len(records))
	copy(out, records)
	return out, nil
}

// Ping reports whether the store is open.
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close releases the stored objects.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.objects = nil
	s.links = nil
	return nil
}

// Size returns the number of stored objects.
func (s *MemoryStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// checkPreconditions compares the identity fields of a submitted update
// with the stored object.
func checkPreconditions(obj *unstructured.Unstructured, uid types.UID, version int64) error {
	if u := obj.GetUID(); u != "" && u != uid {
		return fmt.Errorf("%w: uid %s does not match stored %s", ErrConflict, u, uid)
	}
	rv := obj.GetResourceVersion()
	if rv == "" {
		return nil
	}
	if rv != strconv.FormatInt(version, 10) {
		return fmt.Errorf("%w: resourceVersion %s is stale, current is %d", ErrConflict, rv, version)
	}
	return nil
}
