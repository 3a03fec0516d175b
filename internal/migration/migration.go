package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/smallbiznis/practicebooks/internal/audit/domain"
	clientdomain "github.com/smallbiznis/practicebooks/internal/client/domain"
	contractordomain "github.com/smallbiznis/practicebooks/internal/contractor/domain"
	invoicedomain "github.com/smallbiznis/practicebooks/internal/invoice/domain"
	orgdomain "github.com/smallbiznis/practicebooks/internal/organization/domain"
	paymentdomain "github.com/smallbiznis/practicebooks/internal/payment/domain"
	servicetypedomain "github.com/smallbiznis/practicebooks/internal/servicetype/domain"
	sessiondomain "github.com/smallbiznis/practicebooks/internal/session/domain"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Models lists every table owned by the application, in dependency order.
func Models() []any {
	return []any{
		&orgdomain.Organization{},
		&clientdomain.Client{},
		&contractordomain.Contractor{},
		&servicetypedomain.ServiceType{},
		&servicetypedomain.ContractorRateOverride{},
		&sessiondomain.Session{},
		&sessiondomain.SessionAttendee{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceLineItem{},
		&paymentdomain.EventRecord{},
		&auditdomain.AuditLog{},
	}
}

// RunMigrations applies the embedded postgres migrations.
func RunMigrations(db *sql.DB) error {
	if db == nil {
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

	driver, err := postgres.WithInstance(db, &postgres.Config{})
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
	// migrator.Close would close the shared *sql.DB.

	return nil
}

// AutoMigrate creates the schema from the models on dialects without SQL migrations.
func AutoMigrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
