// Package sqlite implements the preference store over an embedded sqlite
// database. It keeps the same external contract as the jsonfile driver while
// replacing the whole-file rewrite per update with row-level transactions.
package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	// Import the pure-Go sqlite driver.
	_ "modernc.org/sqlite"

	"github.com/itregistry/regrelay/internal/profile"
	"github.com/itregistry/regrelay/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}

	db, err := sql.Open("sqlite", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database: %s", profile.DSN)
	}

	// sqlite serializes writers; a single connection avoids SQLITE_BUSY
	// under concurrent upserts.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping database")
	}

	driver := &DB{db: db, profile: profile}
	if err := driver.migrate(context.Background()); err != nil {
		return nil, err
	}
	return driver, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) migrate(ctx context.Context) error {
	stmt := `
	CREATE TABLE IF NOT EXISTS subscription (
		id INTEGER PRIMARY KEY,
		department TEXT NOT NULL DEFAULT '',
		filters TEXT NOT NULL DEFAULT '{}'
	);
	CREATE TABLE IF NOT EXISTS login_link (
		id INTEGER PRIMARY KEY,
		login TEXT NOT NULL
	);`
	if _, err := d.db.ExecContext(ctx, stmt); err != nil {
		return errors.Wrap(err, "failed to migrate schema")
	}
	return nil
}
