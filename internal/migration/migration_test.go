package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vilosource/cielo-azure-billing/pkg/db"
	"github.com/vilosource/cielo-azure-billing/pkg/db/dbtest"
)

func TestApplyAutoMigratesNonPostgres(t *testing.T) {
	conn := dbtest.Open(t)

	require.NoError(t, Apply(conn, db.TypeSQLite))
	for _, table := range []string{"blob_sources", "customers", "subscriptions", "resources", "meters", "snapshots", "cost_entries"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
	require.NoError(t, Apply(conn, db.TypeSQLite))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups, downs := 0, 0
	for _, entry := range entries {
		switch {
		case strings.HasSuffix(entry.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(entry.Name(), ".down.sql"):
			downs++
		}
	}
	assert.Equal(t, ups, downs)
}

func TestApplyRequiresHandle(t *testing.T) {
	assert.Error(t, Apply(nil, db.TypeSQLite))
	assert.Error(t, RunMigrations(nil))
}
