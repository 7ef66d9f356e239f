package postgres

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/cory-johannsen/action-initiative/migrations"
)

// SchemaVersion describes the migration state of a database.
type SchemaVersion struct {
	Version uint
	Dirty   bool
	// Changed is false when there was nothing to apply.
	Changed bool
}

// Migrate moves the schema at dsn using the embedded migrations. steps == 0
// applies everything up (or rolls everything back when down is set);
// steps > 0 moves that many versions in the chosen direction.
//
// Postcondition: Returns the resulting version, or an error. Having nothing
// to apply is not an error.
func Migrate(dsn string, down bool, steps int) (SchemaVersion, error) {
	if steps < 0 {
		return SchemaVersion{}, fmt.Errorf("steps must be >= 0, got %d", steps)
	}
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return SchemaVersion{}, fmt.Errorf("opening embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return SchemaVersion{}, fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	switch {
	case steps > 0 && down:
		err = m.Steps(-steps)
	case steps > 0:
		err = m.Steps(steps)
	case down:
		err = m.Down()
	default:
		err = m.Up()
	}
	changed := true
	if errors.Is(err, migrate.ErrNoChange) {
		changed, err = false, nil
	}
	if err != nil {
		return SchemaVersion{}, fmt.Errorf("migrating: %w", err)
	}

	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return SchemaVersion{Changed: changed}, nil
	}
	if err != nil {
		return SchemaVersion{}, fmt.Errorf("reading schema version: %w", err)
	}
	return SchemaVersion{Version: v, Dirty: dirty, Changed: changed}, nil
}
