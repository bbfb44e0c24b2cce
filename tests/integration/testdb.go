// Package integration runs the settlement core against a real PostgreSQL
// started with testcontainers. The schema comes from the embedded migrations,
// so the storage-layer guards (append-only triggers, the deferred balance
// check and row-level security) are exercised exactly as deployed.
package integration

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/anticipa/backend/internal/infrastructure/config"
	"github.com/anticipa/backend/internal/infrastructure/migration"
	"github.com/anticipa/backend/internal/infrastructure/persistence"
)

const (
	ownerUser     = "postgres"
	ownerPassword = "admin123"
	appUser       = "anticipa_app"
	appPassword   = "app-secret"
	databaseName  = "anticipa_test"
)

// TestDB holds two pools on one container. Owner bypasses row-level
// security and is used for setup and assertions; App connects as a plain
// role the way a deployed service does.
type TestDB struct {
	Owner     *persistence.Database
	App       *persistence.Database
	Container testcontainers.Container
	t         *testing.T
}

// NewTestDB starts a fresh PostgreSQL container, applies the schema and
// creates the application role.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase(databaseName),
		tcpostgres.WithUsername(ownerUser),
		tcpostgres.WithPassword(ownerPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	owner := open(t, host, portNum, ownerUser, ownerPassword)
	migrate(t, owner)
	createAppRole(t, owner.DB)
	app := open(t, host, portNum, appUser, appPassword)

	return &TestDB{Owner: owner, App: app, Container: container, t: t}
}

func open(t *testing.T, host string, port int, user, password string) *persistence.Database {
	t.Helper()

	db, err := persistence.NewDatabase(&config.DatabaseConfig{
		Host:            host,
		Port:            port,
		User:            user,
		Password:        password,
		DBName:          databaseName,
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5,
		ConnMaxIdleTime: 5,
	})
	require.NoError(t, err, "Failed to connect as %s", user)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func migrate(t *testing.T, db *persistence.Database) {
	t.Helper()

	sqlDB, err := db.DB.DB()
	require.NoError(t, err)
	// The migrator's Close would close sqlDB as well; the pool is closed by open's cleanup.
	m, err := migration.New(sqlDB, zap.NewNop())
	require.NoError(t, err, "Failed to create migrator")
	require.NoError(t, m.Up(), "Failed to run migrations")

	status, err := m.Status()
	require.NoError(t, err)
	require.Empty(t, status.Pending)
	require.False(t, status.Dirty)
}

func createAppRole(t *testing.T, db *gorm.DB) {
	t.Helper()

	stmts := []string{
		"CREATE ROLE " + appUser + " LOGIN PASSWORD '" + appPassword + "' NOSUPERUSER NOBYPASSRLS",
		"GRANT USAGE ON SCHEMA public TO " + appUser,
		"GRANT SELECT, INSERT, UPDATE, DELETE ON ALL TABLES IN SCHEMA public TO " + appUser,
	}
	for _, stmt := range stmts {
		require.NoError(t, db.Exec(stmt).Error, stmt)
	}
}

// Count returns the number of rows in table as seen by the owner
func (tdb *TestDB) Count(table string) int64 {
	tdb.t.Helper()

	var n int64
	require.NoError(tdb.t, tdb.Owner.DB.Table(table).Count(&n).Error)
	return n
}
