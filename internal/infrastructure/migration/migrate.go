// Package migration applies the PostgreSQL schema with golang-migrate. The
// schema is embedded in the binary; a directory can be used instead while
// authoring new migrations.
package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"

	"github.com/anticipa/backend/migrations"
)

// DefaultTable is the bookkeeping table golang-migrate writes its version to
const DefaultTable = "schema_migrations"

// Migrator runs schema migrations against one database
type Migrator struct {
	migrate *migrate.Migrate
	source  fs.FS
	logger  *zap.Logger
}

// Status describes where the database stands relative to the available migrations
type Status struct {
	Version uint
	Dirty   bool
	Pending []string
}

// Option configures a Migrator
type Option func(*options)

type options struct {
	source fs.FS
	table  string
}

// WithDirectory reads migrations from a directory instead of the embedded schema
func WithDirectory(path string) Option {
	return func(o *options) {
		o.source = os.DirFS(path)
	}
}

// WithSource reads migrations from fsys
func WithSource(fsys fs.FS) Option {
	return func(o *options) {
		o.source = fsys
	}
}

// WithMigrationsTable overrides the version table name
func WithMigrationsTable(name string) Option {
	return func(o *options) {
		o.table = name
	}
}

// New creates a Migrator over an open PostgreSQL connection
func New(db *sql.DB, logger *zap.Logger, opts ...Option) (*Migrator, error) {
	o := options{source: migrations.FS, table: DefaultTable}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	src, err := iofs.New(o.source, ".")
	if err != nil {
		return nil, fmt.Errorf("open migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: o.table})
	if err != nil {
		return nil, fmt.Errorf("postgres migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("migrate instance: %w", err)
	}

	return &Migrator{
		migrate: m,
		source:  o.source,
		logger:  logger.Named("migration"),
	}, nil
}

// Up runs all pending migrations
func (m *Migrator) Up() error {
	return m.apply("up", m.migrate.Up)
}

// Down rolls back every migration
func (m *Migrator) Down() error {
	return m.apply("down", m.migrate.Down)
}

// Steps applies n migrations; a negative n rolls back
func (m *Migrator) Steps(n int) error {
	return m.apply(fmt.Sprintf("step %+d", n), func() error { return m.migrate.Steps(n) })
}

// GoTo migrates up or down to version
func (m *Migrator) GoTo(version uint) error {
	return m.apply(fmt.Sprintf("goto %d", version), func() error { return m.migrate.Migrate(version) })
}

// apply runs one golang-migrate operation. ErrNoChange is success.
func (m *Migrator) apply(op string, run func() error) error {
	log := m.logger.With(zap.String("op", op))
	log.Info("Applying schema migrations")

	switch err := run(); {
	case errors.Is(err, migrate.ErrNoChange):
		log.Info("Schema already current")
		return nil
	case err != nil:
		return fmt.Errorf("migrate %s: %w", op, err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	log.Info("Schema migrated", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}

// Version returns the applied version; 0 means nothing has been applied
func (m *Migrator) Version() (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return 0, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	return version, dirty, nil
}

// Status reports the applied version and the migrations not yet applied
func (m *Migrator) Status() (Status, error) {
	version, dirty, err := m.Version()
	if err != nil {
		return Status{}, err
	}
	available, err := ListMigrations(m.source)
	if err != nil {
		return Status{}, err
	}
	return Status{Version: version, Dirty: dirty, Pending: PendingAfter(available, version)}, nil
}

// Force records version as applied and clean without running anything. It
// is how a dirty database is recovered after a failed migration.
func (m *Migrator) Force(version int) error {
	m.logger.Warn("Overriding recorded schema version", zap.Int("version", version))
	if err := m.migrate.Force(version); err != nil {
		return fmt.Errorf("migrate force %d: %w", version, err)
	}
	return nil
}

// Close releases the source and the database driver. The driver closes the
// *sql.DB handed to New.
func (m *Migrator) Close() error {
	sourceErr, dbErr := m.migrate.Close()
	return errors.Join(sourceErr, dbErr)
}
