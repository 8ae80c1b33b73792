package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	blobsourcedomain "github.com/vilosource/cielo-azure-billing/internal/blobsource/domain"
	costentrydomain "github.com/vilosource/cielo-azure-billing/internal/costentry/domain"
	customerdomain "github.com/vilosource/cielo-azure-billing/internal/customer/domain"
	meterdomain "github.com/vilosource/cielo-azure-billing/internal/meter/domain"
	resourcedomain "github.com/vilosource/cielo-azure-billing/internal/resource/domain"
	snapshotdomain "github.com/vilosource/cielo-azure-billing/internal/snapshot/domain"
	subscriptiondomain "github.com/vilosource/cielo-azure-billing/internal/subscription/domain"
	"github.com/vilosource/cielo-azure-billing/pkg/db"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Models lists every table owned by the service, in dependency order.
func Models() []any {
	return []any{
		&blobsourcedomain.BlobSource{},
		&customerdomain.Customer{},
		&subscriptiondomain.Subscription{},
		&resourcedomain.Resource{},
		&meterdomain.Meter{},
		&snapshotdomain.Snapshot{},
		&costentrydomain.CostEntry{},
	}
}

// Apply brings the schema up to date. Postgres uses the embedded SQL
// migrations; other dialects are created with AutoMigrate.
func Apply(conn *gorm.DB, dbType string) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if !strings.EqualFold(strings.TrimSpace(dbType), db.TypePostgres) {
		if err := conn.AutoMigrate(Models()...); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}

func RunMigrations(sqlDB *sql.DB) error {
	if sqlDB == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}
