// Package sqlite implements the SQLite storage backend for cidian.
// The notes database is owned and migrated by the backend; the dictionary
// database is a prebuilt asset opened read-only.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/cidian/pkg/types"
)

// NotesFileName is the name of the notes database inside DataDir.
const NotesFileName = "notes.db"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Backend implements the Store interface on top of SQLite.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	db       *sql.DB // notes.db
	dict     *sql.DB // dictionary, nil when not configured
	dbPath   string

	// ledgerMu serializes test submissions so each read-merge-write cycle
	// sees the previous one.
	ledgerMu sync.Mutex

	logger *slog.Logger
	now    func() time.Time
	loc    *time.Location

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) { b.logger = logger }
}

// WithClock sets the time source used for creation timestamps and snapshot
// names. Defaults to time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// WithLocation sets the time zone whose calendar days bucket test results.
// Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(b *Backend) { b.loc = loc }
}

// WithRand sets the random source used by the selection policies.
func WithRand(rng *rand.Rand) Option {
	return func(b *Backend) { b.rng = rng }
}

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
func NewBackend(opts ...Option) *Backend {
	b := &Backend{
		logger: slog.Default(),
		now:    time.Now,
		loc:    time.Local,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.rng == nil {
		b.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return b
}

// Attach initializes the backend with the given configuration.
// Creates DataDir if it does not exist, opens and migrates notes.db, and
// opens the dictionary when one is configured.
// Returns ErrAlreadyAttached if already attached and an error wrapping
// ErrStorageUnavailable if either database cannot be opened.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}

	if err := config.Validate(); err != nil {
		return err
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("%w: creating data dir: %w", types.ErrStorageUnavailable, err)
	}

	ctx := context.Background()
	dbPath := filepath.Join(dataDir, NotesFileName)
	db, err := openNotes(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrStorageUnavailable, err)
	}

	if err := migrate(ctx, db, b.logger, config.GetHalfLifeDays()); err != nil {
		db.Close()
		return fmt.Errorf("%w: migrating %s: %w", types.ErrStorageUnavailable, dbPath, err)
	}

	var dict *sql.DB
	if config.DictionaryPath != "" {
		dict, err = openDictionary(ctx, config.DictionaryPath)
		if err != nil {
			db.Close()
			return fmt.Errorf("%w: %w", types.ErrStorageUnavailable, err)
		}
	}

	b.db = db
	b.dict = dict
	b.dbPath = dbPath
	b.config = config
	b.attached = true

	b.logger.Debug("store attached",
		slog.String("notes", dbPath),
		slog.Bool("dictionary", dict != nil))
	return nil
}

// Detach releases all resources held by the backend.
// After Detach, all operations return ErrStoreDetached. Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}

	var firstErr error
	if b.dict != nil {
		if err := b.dict.Close(); err != nil {
			firstErr = fmt.Errorf("closing dictionary: %w", err)
		}
		b.dict = nil
	}
	if b.db != nil {
		if err := b.db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing notes: %w", err)
		}
		b.db = nil
	}

	b.attached = false
	b.logger.Debug("store detached")
	return firstErr
}

// Notes returns the note repository.
func (b *Backend) Notes() types.NoteRepository { return &noteRepository{b: b} }

// Dictionary returns the dictionary store.
func (b *Backend) Dictionary() types.DictionaryStore { return &dictionaryStore{b: b} }

// Ledger returns the test history ledger.
func (b *Backend) Ledger() types.TestLedger { return &testLedger{b: b} }

// Selector returns the study-session selection policy.
func (b *Backend) Selector() types.Selector { return &selector{b: b} }

// Snapshots returns the snapshot writer.
func (b *Backend) Snapshots() types.Snapshotter { return &snapshotter{b: b} }

// notesDB returns the notes connection or ErrStoreDetached.
func (b *Backend) notesDB() (*sql.DB, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return nil, types.ErrStoreDetached
	}
	return b.db, nil
}

// dictionaryDB returns the dictionary connection, ErrStoreDetached, or
// ErrDictionaryNotLoaded when no dictionary was configured.
func (b *Backend) dictionaryDB() (*sql.DB, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return nil, types.ErrStoreDetached
	}
	if b.dict == nil {
		return nil, types.ErrDictionaryNotLoaded
	}
	return b.dict, nil
}

// halfLifeDays returns the configured decay half-life.
func (b *Backend) halfLifeDays() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.config.GetHalfLifeDays()
}

// dayStart truncates t to local midnight in the backend's location and
// returns it in epoch millis.
func (b *Backend) dayStart(t time.Time) int64 {
	t = t.In(b.loc)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, b.loc).UnixMilli()
}

// openNotes opens the notes database. SQLite allows one writer, so the pool
// is limited to a single connection and transactions queue behind it.
func openNotes(ctx context.Context, path string) (*sql.DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return db, nil
}

// openDictionary opens the prebuilt dictionary read-only and checks that it
// holds a dictionary table.
func openDictionary(ctx context.Context, path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("dictionary %s: %w", path, err)
	}

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("opening dictionary %s: %w", path, err)
	}

	var probe int
	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM dictionary").Scan(&probe)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("reading dictionary %s: %w", path, err)
	}
	return db, nil
}

// migrate applies the embedded goose migrations and the Go upgrade migration
// to the notes database.
func migrate(ctx context.Context, db *sql.DB, logger *slog.Logger, halfLife float64) error {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys,
		goose.WithGoMigrations(upgradeMigration(logger, halfLife)))
	if err != nil {
		return fmt.Errorf("goose new provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	for _, r := range results {
		logger.Debug("applied migration",
			slog.Int64("version", r.Source.Version),
			slog.Duration("duration", r.Duration))
	}
	return nil
}
