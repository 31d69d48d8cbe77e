package objectstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/lineage/pkg/admission"
	"mercator-hq/lineage/pkg/config"
	"mercator-hq/lineage/pkg/tracecontext"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
)

// Store persists objects and maintains the trace-context annotation of
// traced kinds. Create and Update take the writer's context from the span
// context in ctx.
//
// Returned objects are copies; callers may modify them freely.
type Store interface {
	// Create stores a new object. The store assigns its UID, creation
	// timestamp and resourceVersion.
	Create(ctx context.Context, obj *unstructured.Unstructured) (*unstructured.Unstructured, error)

	// Update replaces a stored object. A non-empty resourceVersion must
	// match the stored one or ErrConflict is returned.
	Update(ctx context.Context, obj *unstructured.Unstructured) (*unstructured.Unstructured, error)

	// Get returns the object stored under kind, namespace and name.
	Get(ctx context.Context, kind, namespace, name string) (*unstructured.Unstructured, error)

	// Links returns the overwrite history of an object, oldest first.
	Links(ctx context.Context, uid types.UID) ([]LinkRecord, error)

	// Ping checks that the backend is usable.
	Ping(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}

// LinkRecord is one overwrite of an object's trace context.
type LinkRecord struct {
	UID types.UID

	// ResourceVersion is the version written by the overwriting update.
	ResourceVersion string

	// Link references the context that was replaced.
	Link admission.Link

	RecordedAt time.Time
}

// Observer receives per-operation measurements.
type Observer interface {
	RecordStoreOperation(backend, operation, result string, duration time.Duration)
}

// Options configures a store.
type Options struct {
	// Stage selects the annotation key. Empty uses the default stage.
	Stage tracecontext.Stage

	// Kinds selects the traced kinds. Nil traces every kind.
	Kinds *admission.KindSet

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Observer is optional.
	Observer Observer

	// Now defaults to time.Now.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Stage == "" {
		o.Stage = tracecontext.DefaultStage
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Open creates the store selected by cfg.Backend.
func Open(cfg *config.StoreConfig, opts Options) (Store, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryStore(opts), nil
	case BackendSQLite:
		return NewSQLiteStore(&SQLiteConfig{
			Driver:       cfg.Driver,
			Path:         cfg.Path,
			BusyTimeout:  cfg.BusyTimeout,
			MaxOpenConns: cfg.MaxOpenConns,
		}, opts)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

type objectKey struct {
	kind      string
	namespace string
	name      string
}

func keyOf(obj *unstructured.Unstructured) (objectKey, error) {
	k := objectKey{kind: obj.GetKind(), namespace: obj.GetNamespace(), name: obj.GetName()}
	if k.kind == "" || k.name == "" {
		return k, fmt.Errorf("%w: kind and name are required", ErrInvalidObject)
	}
	return k, nil
}

func (k objectKey) String() string {
	if k.namespace == "" {
		return k.kind + "/" + k.name
	}
	return k.kind + "/" + k.namespace + "/" + k.name
}

func observe(o Observer, backend, operation string, start time.Time, err error) {
	if o == nil {
		return
	}
	o.RecordStoreOperation(backend, operation, result(err), time.Since(start))
}
