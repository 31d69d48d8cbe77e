package objectstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"mercator-hq/lineage/pkg/admission"
	"mercator-hq/lineage/pkg/tracecontext"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // registers "sqlite3" (cgo)
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
	_ "modernc.org/sqlite" // registers "sqlite" (pure Go)
)

// SQLite driver names.
const (
	DriverModernc = "sqlite"
	DriverCgo     = "sqlite3"
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Driver is the database/sql driver name.
	// Default: "sqlite"
	Driver string

	// Path is the database file path. ":memory:" keeps the database in
	// memory on a single connection.
	Path string

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 4
	MaxOpenConns int
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Driver:       DriverModernc,
		Path:         "data/lineage.db",
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 4,
	}
}

// dsn builds the connection string. The two drivers spell connection
// pragmas differently.
func (c *SQLiteConfig) dsn() string {
	ms := c.BusyTimeout.Milliseconds()
	if c.Path == ":memory:" {
		return c.Path
	}
	if c.Driver == DriverCgo {
		return fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL", c.Path, ms)
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", c.Path, ms)
}

// SQLiteStore implements Store on a SQLite database. Object bodies are
// stored as JSON; the overwrite history lives in the links table.
type SQLiteStore struct {
	db     *sql.DB
	config *SQLiteConfig

	admit    *admitter
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
}

// NewSQLiteStore opens the database and creates the schema.
func NewSQLiteStore(config *SQLiteConfig, opts Options) (*SQLiteStore, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	cfg := *config
	if cfg.Driver == "" {
		cfg.Driver = DriverModernc
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 4
	}
	if cfg.Path == "" {
		return nil, NewStorageError(BackendSQLite, "open", errors.New("database path is required"))
	}
	if cfg.Driver != DriverModernc && cfg.Driver != DriverCgo {
		return nil, NewStorageError(BackendSQLite, "open", fmt.Errorf("unknown driver %q", cfg.Driver))
	}

	opts = opts.withDefaults()
	logger := opts.Logger.With("component", "objectstore.sqlite")

	db, err := sql.Open(cfg.Driver, cfg.dsn())
	if err != nil {
		return nil, NewStorageError(BackendSQLite, "open", err)
	}
	if cfg.Path == ":memory:" {
		// Every connection to ":memory:" opens a separate database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	s := &SQLiteStore{
		db:       db,
		config:   &cfg,
		admit:    newAdmitter(opts, BackendSQLite),
		observer: opts.Observer,
		logger:   logger,
		now:      opts.Now,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite object store initialized",
		"path", cfg.Path,
		"driver", cfg.Driver,
		"max_open_conns", cfg.MaxOpenConns,
	)

	return s, nil
}

// initialize creates the schema and verifies its version.
func (s *SQLiteStore) initialize() error {
	if _, err := s.db.Exec(Schema); err != nil {
		return NewStorageError(BackendSQLite, "create_schema", err)
	}

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return NewStorageError(BackendSQLite, "insert_schema_version", err)
	}

	var version int
	if err := s.db.QueryRow(GetSchemaVersion).Scan(&version); err != nil {
		return NewStorageError(BackendSQLite, "get_schema_version", err)
	}
	if version != SchemaVersion {
		return NewStorageError(BackendSQLite, "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	s.logger.Debug("schema version verified", "version", version)
	return nil
}

// Create stores a new object.
func (s *SQLiteStore) Create(ctx context.Context, obj *unstructured.Unstructured) (_ *unstructured.Unstructured, err error) {
	start := time.Now()
	defer func() { observe(s.observer, BackendSQLite, "create", start, err) }()

	key, err := keyOf(obj)
	if err != nil {
		return nil, err
	}

	created := obj.DeepCopy()
	w := s.admit.admit(ctx, "create", nil, created)
	defer func() { w.end(err) }()

	now := s.now()
	created.SetUID(types.UID(uuid.NewString()))
	created.SetCreationTimestamp(metav1.NewTime(now))
	created.SetResourceVersion("1")

	body, err := created.MarshalJSON()
	if err != nil {
		return nil, NewStorageError(BackendSQLite, "encode", err)
	}

	_, err = s.db.ExecContext(ctx, insertObjectSQL,
		key.kind, key.namespace, key.name,
		string(created.GetUID()), 1, string(body), now.UnixNano(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, key)
		}
		return nil, NewStorageError(BackendSQLite, "create", err)
	}

	return created, nil
}

// Update replaces a stored object. The row is only written if its version
// is unchanged since it was read.
func (s *SQLiteStore) Update(ctx context.Context, obj *unstructured.Unstructured) (_ *unstructured.Unstructured, err error) {
	start := time.Now()
	defer func() { observe(s.observer, BackendSQLite, "update", start, err) }()

	key, err := keyOf(obj)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, NewStorageError(BackendSQLite, "begin", err)
	}
	defer tx.Rollback()

	stored, version, err := s.selectObject(ctx, tx, key)
	if err != nil {
		return nil, err
	}
	if err := checkPreconditions(obj, stored.GetUID(), version); err != nil {
		return nil, err
	}

	updated := obj.DeepCopy()
	w := s.admit.admit(ctx, "update", stored, updated)
	defer func() { w.end(err) }()

	now := s.now()
	next := version + 1
	updated.SetUID(stored.GetUID())
	updated.SetCreationTimestamp(stored.GetCreationTimestamp())
	updated.SetResourceVersion(strconv.FormatInt(next, 10))

	body, err := updated.MarshalJSON()
	if err != nil {
		return nil, NewStorageError(BackendSQLite, "encode", err)
	}

	res, err := tx.ExecContext(ctx, updateObjectSQL,
		next, string(body), now.UnixNano(),
		key.kind, key.namespace, key.name, version,
	)
	if err != nil {
		return nil, NewStorageError(BackendSQLite, "update", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, NewStorageError(BackendSQLite, "update", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %s changed concurrently", ErrConflict, key)
	}

	if l := w.decision.Link; l != nil {
		encoded := tracecontext.Encode(tracecontext.TraceContext{
			TraceID:    l.TraceID,
			SpanID:     l.SpanID,
			Sampled:    l.Sampled,
			TraceState: l.TraceState,
		})
		_, err = tx.ExecContext(ctx, insertLinkSQL,
			string(updated.GetUID()), next, encoded, l.Reason, now.UnixNano())
		if err != nil {
			return nil, NewStorageError(BackendSQLite, "insert_link", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, NewStorageError(BackendSQLite, "commit", err)
	}
	return updated, nil
}

// Get returns the stored object.
func (s *SQLiteStore) Get(ctx context.Context, kind, namespace, name string) (_ *unstructured.Unstructured, err error) {
	start := time.Now()
	defer func() { observe(s.observer, BackendSQLite, "get", start, err) }()

	obj, _, err := s.selectObject(ctx, s.db, objectKey{kind: kind, namespace: namespace, name: name})
	return obj, err
}

// Links returns the overwrite history of uid.
func (s *SQLiteStore) Links(ctx context.Context, uid types.UID) (_ []LinkRecord, err error) {
	start := time.Now()
	defer func() { observe(s.observer, BackendSQLite, "links", start, err) }()

	rows, err := s.db.QueryContext(ctx, selectLinksSQL, string(uid))
	if err != nil {
		return nil, NewStorageError(BackendSQLite, "links", err)
	}
	defer rows.Close()

	records := []LinkRecord{}
	for rows.Next() {
		var (
			version    int64
			encoded    string
			reason     string
			recordedAt int64
		)
		if err := rows.Scan(&version, &encoded, &reason, &recordedAt); err != nil {
			return nil, NewStorageError(BackendSQLite, "scan", err)
		}
		tc, err := tracecontext.Decode(encoded)
		if err != nil {
			return nil, NewStorageError(BackendSQLite, "decode_link", err)
		}
		records = append(records, LinkRecord{
			UID:             uid,
			ResourceVersion: strconv.FormatInt(version, 10),
			Link: admission.Link{
				TraceID:    tc.TraceID,
				SpanID:     tc.SpanID,
				TraceState: tc.TraceState,
				Sampled:    tc.Sampled,
				Reason:     reason,
			},
			RecordedAt: time.Unix(0, recordedAt),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageError(BackendSQLite, "links", err)
	}
	return records, nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		if errors.Is(err, sql.ErrConnDone) || strings.Contains(err.Error(), "database is closed") {
			return ErrClosed
		}
		return NewStorageError(BackendSQLite, "ping", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return NewStorageError(BackendSQLite, "close", err)
	}
	s.logger.Info("SQLite object store closed")
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) selectObject(ctx context.Context, q querier, key objectKey) (*unstructured.Unstructured, int64, error) {
	var (
		uid     string
		version int64
		body    string
	)
	err := q.QueryRowContext(ctx, selectObjectSQL, key.kind, key.namespace, key.name).Scan(&uid, &version, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, 0, NewStorageError(BackendSQLite, "select", err)
	}

	obj := &unstructured.Unstructured{}
	if err := obj.UnmarshalJSON([]byte(body)); err != nil {
		return nil, 0, NewStorageError(BackendSQLite, "decode", err)
	}
	return obj, version, nil
}

// isUniqueViolation reports a primary key or unique constraint failure.
// Both drivers report it with SQLite's own message.
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}
