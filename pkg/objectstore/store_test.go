package objectstore

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"mercator-hq/lineage/pkg/admission"
	"mercator-hq/lineage/pkg/config"
	"mercator-hq/lineage/pkg/tracecontext"

	"go.opentelemetry.io/otel/trace"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

var alphaKey = tracecontext.AnnotationKey(tracecontext.StageAlpha)

// backends opens every store implementation under test.
func backends(t *testing.T) map[string]func(t *testing.T, opts Options) Store {
	t.Helper()
	return map[string]func(t *testing.T, opts Options) Store{
		"memory": func(t *testing.T, opts Options) Store {
			return NewMemoryStore(opts)
		},
		"sqlite": func(t *testing.T, opts Options) Store {
			return openSQLite(t, DriverModernc, opts)
		},
		"sqlite3": func(t *testing.T, opts Options) Store {
			return openSQLite(t, DriverCgo, opts)
		},
	}
}

func openSQLite(t *testing.T, driver string, opts Options) Store {
	t.Helper()
	s, err := NewSQLiteStore(&SQLiteConfig{
		Driver:      driver,
		Path:        filepath.Join(t.TempDir(), "objects.db"),
		BusyTimeout: time.Second,
	}, opts)
	if err != nil {
		if strings.Contains(err.Error(), "CGO_ENABLED") || strings.Contains(err.Error(), "cgo") {
			t.Skipf("driver %s unavailable: %v", driver, err)
		}
		t.Fatalf("NewSQLiteStore(%s) error = %v", driver, err)
	}
	return s
}

// forEachBackend runs fn against a fresh store of every backend.
func forEachBackend(t *testing.T, opts Options, fn func(t *testing.T, s Store)) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t, opts)
			defer s.Close()
			fn(t, s)
		})
	}
}

func spanContext(traceByte, spanByte byte, sampled bool) trace.SpanContext {
	var tid trace.TraceID
	var sid trace.SpanID
	for i := range tid {
		tid[i] = traceByte
	}
	for i := range sid {
		sid[i] = spanByte
	}
	var flags trace.TraceFlags
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    tid,
		SpanID:     sid,
		TraceFlags: flags.WithSampled(sampled),
		Remote:     true,
	})
}

func writer(sc trace.SpanContext) context.Context {
	return trace.ContextWithRemoteSpanContext(context.Background(), sc)
}

func configMap(name string, annotations map[string]string) *unstructured.Unstructured {
	obj := &unstructured.Unstructured{}
	obj.SetAPIVersion("v1")
	obj.SetKind("ConfigMap")
	obj.SetNamespace("default")
	obj.SetName(name)
	obj.SetAnnotations(annotations)
	_ = unstructured.SetNestedField(obj.Object, "v1", "data", "version")
	return obj
}

func annotation(t *testing.T, obj *unstructured.Unstructured) tracecontext.TraceContext {
	t.Helper()
	tc, err := tracecontext.FromObject(obj, alphaKey)
	if err != nil {
		t.Fatalf("FromObject() error = %v", err)
	}
	return tc
}

// TestStoreScenario tests create, overwrite and same-trace update through
// every backend
func TestStoreScenario(t *testing.T) {
	r1 := spanContext(0xaa, 0x01, true)
	r2 := spanContext(0xbb, 0x02, false)
	r3 := spanContext(0xbb, 0x03, false)

	forEachBackend(t, Options{}, func(t *testing.T, s Store) {
		created, err := s.Create(writer(r1), configMap("app", nil))
		if err != nil {
			t.Fatalf("R1 Create() error = %v", err)
		}
		tc := annotation(t, created)
		if tc.TraceID != r1.TraceID() || !tc.Sampled {
			t.Errorf("R1 annotation = %s, want trace %s sampled", tc, r1.TraceID())
		}
		if created.GetUID() == "" {
			t.Error("Create() did not assign a UID")
		}
		if created.GetResourceVersion() != "1" {
			t.Errorf("ResourceVersion = %q, want 1", created.GetResourceVersion())
		}

		updated, err := s.Update(writer(r2), created)
		if err != nil {
			t.Fatalf("R2 Update() error = %v", err)
		}
		tc = annotation(t, updated)
		if tc.TraceID != r2.TraceID() {
			t.Errorf("R2 annotation trace = %s, want %s", tc.TraceID, r2.TraceID())
		}
		if !tc.Sampled {
			t.Error("R2 annotation lost the sampled flag")
		}

		links, err := s.Links(context.Background(), created.GetUID())
		if err != nil {
			t.Fatalf("Links() error = %v", err)
		}
		if len(links) != 1 {
			t.Fatalf("len(Links()) = %d, want 1", len(links))
		}
		l := links[0]
		if l.Link.TraceID != r1.TraceID() || l.Link.SpanID != r1.SpanID() || !l.Link.Sampled {
			t.Errorf("link = %+v, want R1 context", l.Link)
		}
		if l.Link.Reason != admission.LinkReasonOverwrite {
			t.Errorf("link reason = %q, want %q", l.Link.Reason, admission.LinkReasonOverwrite)
		}
		if l.ResourceVersion != "2" {
			t.Errorf("link ResourceVersion = %q, want 2", l.ResourceVersion)
		}

		afterR2, _ := tracecontext.Lookup(updated, alphaKey)
		final, err := s.Update(writer(r3), updated)
		if err != nil {
			t.Fatalf("R3 Update() error = %v", err)
		}
		if got, _ := tracecontext.Lookup(final, alphaKey); got != afterR2 {
			t.Errorf("R3 annotation = %q, want %q", got, afterR2)
		}
		links, _ = s.Links(context.Background(), created.GetUID())
		if len(links) != 1 {
			t.Errorf("R3 added a link, len(Links()) = %d", len(links))
		}

		got, err := s.Get(context.Background(), "ConfigMap", "default", "app")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if v, _ := tracecontext.Lookup(got, alphaKey); v != afterR2 {
			t.Errorf("stored annotation = %q, want %q", v, afterR2)
		}
		if got.GetResourceVersion() != "3" {
			t.Errorf("stored ResourceVersion = %q, want 3", got.GetResourceVersion())
		}
	})
}

// TestStoreRejectsDirectWrites tests that a client cannot set the annotation
func TestStoreRejectsDirectWrites(t *testing.T) {
	incoming := spanContext(0x01, 0x02, true)
	forged := tracecontext.Encode(tracecontext.FromSpanContext(spanContext(0x0f, 0x0f, true)))

	forEachBackend(t, Options{}, func(t *testing.T, s Store) {
		created, err := s.Create(writer(incoming), configMap("app", map[string]string{alphaKey: forged}))
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if tc := annotation(t, created); tc.TraceID != incoming.TraceID() {
			t.Errorf("annotation trace = %s, want writer's %s", tc.TraceID, incoming.TraceID())
		}

		// Untraced update with a forged value keeps the stored one.
		stored, _ := tracecontext.Lookup(created, alphaKey)
		tampered := created.DeepCopy()
		tampered.SetAnnotations(map[string]string{alphaKey: forged})
		updated, err := s.Update(context.Background(), tampered)
		if err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		if got, _ := tracecontext.Lookup(updated, alphaKey); got != stored {
			t.Errorf("annotation = %q, want %q", got, stored)
		}
	})
}

// TestStoreUntracedCreate tests that a write without a context stores no
// annotation
func TestStoreUntracedCreate(t *testing.T) {
	forEachBackend(t, Options{}, func(t *testing.T, s Store) {
		created, err := s.Create(context.Background(), configMap("app", map[string]string{"team": "payments"}))
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if _, ok := tracecontext.Lookup(created, alphaKey); ok {
			t.Error("untraced create stored an annotation")
		}
		if created.GetAnnotations()["team"] != "payments" {
			t.Error("unrelated annotation lost")
		}
	})
}

// TestStoreUntracedKind tests that kinds outside the traced set are stored
// untouched
func TestStoreUntracedKind(t *testing.T) {
	kinds, err := admission.ParseKinds([]string{"apps/v1/Deployment"})
	if err != nil {
		t.Fatalf("ParseKinds() error = %v", err)
	}
	forged := tracecontext.Encode(tracecontext.FromSpanContext(spanContext(0x0f, 0x0f, true)))

	forEachBackend(t, Options{Kinds: kinds}, func(t *testing.T, s Store) {
		created, err := s.Create(writer(spanContext(0x01, 0x02, true)), configMap("app", map[string]string{alphaKey: forged}))
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if got, _ := tracecontext.Lookup(created, alphaKey); got != forged {
			t.Errorf("annotation = %q, want untouched %q", got, forged)
		}
	})
}

// TestStoreErrors tests not found, duplicate, conflict and invalid objects
func TestStoreErrors(t *testing.T) {
	forEachBackend(t, Options{}, func(t *testing.T, s Store) {
		ctx := context.Background()

		if _, err := s.Get(ctx, "ConfigMap", "default", "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
		}
		if _, err := s.Update(ctx, configMap("missing", nil)); !errors.Is(err, ErrNotFound) {
			t.Errorf("Update(missing) error = %v, want ErrNotFound", err)
		}
		if _, err := s.Create(ctx, &unstructured.Unstructured{Object: map[string]interface{}{}}); !errors.Is(err, ErrInvalidObject) {
			t.Errorf("Create(empty) error = %v, want ErrInvalidObject", err)
		}

		created, err := s.Create(ctx, configMap("app", nil))
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if _, err := s.Create(ctx, configMap("app", nil)); !errors.Is(err, ErrAlreadyExists) {
			t.Errorf("Create(duplicate) error = %v, want ErrAlreadyExists", err)
		}

		if _, err := s.Update(ctx, created); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		if _, err := s.Update(ctx, created); !errors.Is(err, ErrConflict) {
			t.Errorf("Update(stale) error = %v, want ErrConflict", err)
		}

		wrongUID := configMap("app", nil)
		wrongUID.SetUID("00000000-0000-0000-0000-000000000000")
		if _, err := s.Update(ctx, wrongUID); !errors.Is(err, ErrConflict) {
			t.Errorf("Update(wrong uid) error = %v, want ErrConflict", err)
		}

		// An empty resourceVersion is an unconditional update.
		if _, err := s.Update(ctx, configMap("app", nil)); err != nil {
			t.Errorf("Update(unconditional) error = %v", err)
		}
	})
}

// TestStoreReturnsCopies tests that callers cannot modify stored objects
func TestStoreReturnsCopies(t *testing.T) {
	forEachBackend(t, Options{}, func(t *testing.T, s Store) {
		ctx := context.Background()
		created, err := s.Create(ctx, configMap("app", nil))
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		created.SetLabels(map[string]string{"mutated": "true"})

		got, err := s.Get(ctx, "ConfigMap", "default", "app")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if len(got.GetLabels()) != 0 {
			t.Errorf("stored labels = %v, want none", got.GetLabels())
		}
	})
}

// TestStoreStageMigration tests that a value under an older key moves to
// the configured key on the next write
func TestStoreStageMigration(t *testing.T) {
	betaKey := tracecontext.AnnotationKey(tracecontext.StageBeta)
	incoming := spanContext(0x01, 0x02, true)
	ctx := context.Background()

	alpha := NewMemoryStore(Options{Stage: tracecontext.StageAlpha})
	created, err := alpha.Create(writer(incoming), configMap("app", nil))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	stored, _ := tracecontext.Lookup(created, alphaKey)

	// Reuse the stored object under a store writing the beta key.
	beta := NewMemoryStore(Options{Stage: tracecontext.StageBeta})
	seed := created.DeepCopy()
	seed.SetUID("")
	seed.SetResourceVersion("")
	beta.objects[objectKey{kind: "ConfigMap", namespace: "default", name: "app"}] = &memoryEntry{obj: seed, version: 1}

	updated, err := beta.Update(ctx, configMap("app", created.GetAnnotations()))
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if _, ok := tracecontext.Lookup(updated, alphaKey); ok {
		t.Error("alpha key still present after migration")
	}
	if got, _ := tracecontext.Lookup(updated, betaKey); got != stored {
		t.Errorf("beta annotation = %q, want %q", got, stored)
	}
}

type recordedOp struct {
	backend, operation, result string
}

type fakeObserver struct {
	mu  sync.Mutex
	ops []recordedOp
}

func (o *fakeObserver) RecordStoreOperation(backend, operation, result string, duration time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ops = append(o.ops, recordedOp{backend, operation, result})
}

// TestStoreObserver tests that every operation is reported with its result
func TestStoreObserver(t *testing.T) {
	obs := &fakeObserver{}
	s := NewMemoryStore(Options{Observer: obs})
	ctx := context.Background()

	created, _ := s.Create(ctx, configMap("app", nil))
	_, _ = s.Get(ctx, "ConfigMap", "default", "missing")
	_, _ = s.Update(ctx, created)
	_, _ = s.Update(ctx, created)
	_, _ = s.Links(ctx, created.GetUID())

	want := []recordedOp{
		{"memory", "create", "ok"},
		{"memory", "get", "not_found"},
		{"memory", "update", "ok"},
		{"memory", "update", "conflict"},
		{"memory", "links", "ok"},
	}
	if len(obs.ops) != len(want) {
		t.Fatalf("recorded %d operations, want %d: %v", len(obs.ops), len(want), obs.ops)
	}
	for i, op := range want {
		if obs.ops[i] != op {
			t.Errorf("op[%d] = %v, want %v", i, obs.ops[i], op)
		}
	}
}

// TestStoreClose tests Ping before and after Close
func TestStoreClose(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t, Options{})
			if err := s.Ping(context.Background()); err != nil {
				t.Errorf("Ping() error = %v", err)
			}
			if err := s.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}
			if err := s.Ping(context.Background()); err == nil {
				t.Error("Ping() after Close() returned nil")
			}
		})
	}
}

// TestOpen tests backend selection from configuration
func TestOpen(t *testing.T) {
	s, err := Open(&config.StoreConfig{Backend: "memory"}, Options{})
	if err != nil {
		t.Fatalf("Open(memory) error = %v", err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("Open(memory) = %T, want *MemoryStore", s)
	}
	s.Close()

	s, err = Open(&config.StoreConfig{
		Backend: "sqlite",
		Driver:  "sqlite",
		Path:    filepath.Join(t.TempDir(), "open.db"),
	}, Options{})
	if err != nil {
		t.Fatalf("Open(sqlite) error = %v", err)
	}
	if _, ok := s.(*SQLiteStore); !ok {
		t.Errorf("Open(sqlite) = %T, want *SQLiteStore", s)
	}
	s.Close()

	if _, err := Open(&config.StoreConfig{Backend: "etcd"}, Options{}); err == nil {
		t.Error("Open(etcd) expected error")
	}
}

// TestSQLiteStore_Persistence tests that objects and links survive a reopen
func TestSQLiteStore_Persistence(t *testing.T) {
	cfg := &SQLiteConfig{Driver: DriverModernc, Path: filepath.Join(t.TempDir(), "objects.db")}

	s, err := NewSQLiteStore(cfg, Options{})
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	created, _ := s.Create(writer(spanContext(0xaa, 0x01, true)), configMap("app", nil))
	if _, err := s.Update(writer(spanContext(0xbb, 0x02, true)), created); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	s.Close()

	s, err = NewSQLiteStore(cfg, Options{})
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()

	got, err := s.Get(context.Background(), "ConfigMap", "default", "app")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.GetUID() != created.GetUID() {
		t.Errorf("UID = %s, want %s", got.GetUID(), created.GetUID())
	}
	links, err := s.Links(context.Background(), created.GetUID())
	if err != nil || len(links) != 1 {
		t.Errorf("Links() = %v, %v; want one link", links, err)
	}
}

// TestMemoryStore_ConcurrentUpdates tests that concurrent writers with the
// same resourceVersion see exactly one success
func TestMemoryStore_ConcurrentUpdates(t *testing.T) {
	s := NewMemoryStore(Options{})
	created, err := s.Create(context.Background(), configMap("app", nil))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx := writer(spanContext(byte(i+1), byte(i+1), false))
			if _, err := s.Update(ctx, created); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if succeeded != 1 {
		t.Errorf("%d concurrent updates succeeded, want 1", succeeded)
	}
}

func BenchmarkMemoryStore_Update(b *testing.B) {
	s := NewMemoryStore(Options{})
	obj, _ := s.Create(context.Background(), configMap("app", nil))
	obj.SetResourceVersion("")
	b.ReportAllocs()
	i := 0
	for b.Loop() {
		i++
		ctx := writer(spanContext(byte(i%250+1), 0x01, false))
		if _, err := s.Update(ctx, obj); err != nil {
			b.Fatalf("Update() error = %v", err)
		}
	}
}
