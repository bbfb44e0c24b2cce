// Command migrate applies and inspects the settlement schema. The schema is
// embedded in the binary; -path switches to a directory on disk.
package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/anticipa/backend/internal/infrastructure/config"
	"github.com/anticipa/backend/internal/infrastructure/logger"
	"github.com/anticipa/backend/internal/infrastructure/migration"
	"github.com/anticipa/backend/migrations"
)

var errUsage = errors.New("invalid arguments")

type (
	// offlineCommand works on migration files only
	offlineCommand func(log *zap.Logger, source string, args []string) error
	// dbCommand drives a connected Migrator
	dbCommand func(log *zap.Logger, m *migration.Migrator, args []string) error
)

var offlineCommands = map[string]offlineCommand{
	"create": runCreate,
	"list":   runList,
}

var dbCommands = map[string]dbCommand{
	"up":      func(_ *zap.Logger, m *migration.Migrator, _ []string) error { return m.Up() },
	"down":    runDown,
	"step":    runStep,
	"goto":    runGoto,
	"version": runVersion,
	"status":  runStatus,
	"force":   runForce,
}

func main() {
	source := flag.String("path", "", "Read migrations from a directory instead of the embedded schema")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}
	command, rest := args[0], args[1:]

	log, err := logger.New(&logger.Config{
		Level:      *logLevel,
		Format:     "console",
		Output:     "stderr",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	if err := run(log, command, *source, rest); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "%v\n\n", err)
			printUsage()
			os.Exit(2)
		}
		log.Error("Migration command failed", zap.String("command", command), zap.Error(err))
		os.Exit(1)
	}
}

func run(log *zap.Logger, command, source string, args []string) error {
	if cmd, ok := offlineCommands[command]; ok {
		return cmd(log, source, args)
	}
	cmd, ok := dbCommands[command]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	var opts []migration.Option
	if source != "" {
		opts = append(opts, migration.WithDirectory(source))
	}
	m, err := migration.New(db, log, opts...)
	if err != nil {
		return err
	}
	defer m.Close()

	log.Debug("Running migration command",
		zap.String("command", command),
		zap.String("source", sourceName(source)),
		zap.String("database", cfg.Database.DBName),
	)
	return cmd(log, m, args)
}

func runCreate(log *zap.Logger, source string, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: create needs a name", errUsage)
	}
	dir := source
	if dir == "" {
		dir = "migrations"
	}
	description := ""
	if len(args) > 1 {
		description = args[1]
	}
	mf, err := migration.CreateMigration(dir, args[0], description)
	if err != nil {
		return err
	}
	log.Info("Migration created",
		zap.String("version", mf.Version),
		zap.String("up_file", mf.UpPath),
		zap.String("down_file", mf.DownPath),
	)
	return nil
}

func runList(_ *zap.Logger, source string, _ []string) error {
	var fsys fs.FS = migrations.FS
	if source != "" {
		fsys = os.DirFS(source)
	}
	names, err := migration.ListMigrations(fsys)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

func runDown(_ *zap.Logger, m *migration.Migrator, args []string) error {
	flags := flag.NewFlagSet("down", flag.ContinueOnError)
	confirm := flags.Bool("confirm", false, "required: rolling back every migration drops the ledger")
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if !*confirm {
		return fmt.Errorf("%w: down drops every table, rerun as 'migrate down -confirm'", errUsage)
	}
	return m.Down()
}

func runStep(_ *zap.Logger, m *migration.Migrator, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: step needs a count", errUsage)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n == 0 {
		return fmt.Errorf("%w: step count %q must be a non-zero integer", errUsage, args[0])
	}
	return m.Steps(n)
}

func runGoto(_ *zap.Logger, m *migration.Migrator, args []string) error {
	version, err := versionArg("goto", args)
	if err != nil {
		return err
	}
	return m.GoTo(version)
}

func runForce(_ *zap.Logger, m *migration.Migrator, args []string) error {
	version, err := versionArg("force", args)
	if err != nil {
		return err
	}
	return m.Force(int(version))
}

func versionArg(command string, args []string) (uint, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("%w: %s needs a version", errUsage, command)
	}
	v, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: version %q is not a number", errUsage, args[0])
	}
	return uint(v), nil
}

func runVersion(log *zap.Logger, m *migration.Migrator, _ []string) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	if version == 0 {
		log.Info("No migrations applied")
		return nil
	}
	log.Info("Current migration version", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}

func runStatus(log *zap.Logger, m *migration.Migrator, _ []string) error {
	status, err := m.Status()
	if err != nil {
		return err
	}
	log.Info("Migration status",
		zap.Uint("version", status.Version),
		zap.Bool("dirty", status.Dirty),
		zap.Int("pending", len(status.Pending)),
	)
	for _, name := range status.Pending {
		fmt.Println(name)
	}
	return nil
}

func sourceName(path string) string {
	if path == "" {
		return "embedded"
	}
	return path
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `migrate - settlement schema migrations

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                    Apply all pending migrations
  down -confirm         Roll back all migrations
  step <n>              Apply n migrations (negative rolls back)
  goto <version>        Migrate to a specific version
  version               Show current migration version
  status                Show current version and pending migrations
  force <version>       Set the recorded version after a failed migration
  create <name> [desc]  Create a new migration file pair
  list                  List available migrations

Flags:
  -path string          Read migrations from a directory (default: embedded schema)
  -log-level string     Log level: debug, info, warn, error (default: info)

The database is configured by config.toml or ANTICIPA_DATABASE_HOST, _PORT,
_USER, _PASSWORD, _DBNAME and _SSLMODE. Apply the schema as its owner.`)
}
