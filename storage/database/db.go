// Package database provisions the Postgres database of the app and runs its migrations.
package database

import (
	"context"
	"database/sql"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"github.com/trezcool/cohort/core"
	appfs "github.com/trezcool/cohort/fs"
)

const (
	migrationsDir = "migrations"
	maintenanceDB = "postgres"

	pingAttempts = 30
)

// dsn builds the connection URL of dbName. admin connects with the admin role when one is configured.
func dsn(dbName string, admin bool, conf *core.Config) string {
	cred := url.UserPassword(conf.Database.User, conf.Database.Password)
	if admin && conf.Database.AdminUser != "" {
		cred = url.UserPassword(conf.Database.AdminUser, conf.Database.AdminPassword)
	}

	q := url.Values{}
	q.Set("sslmode", "require")
	if conf.Database.DisableTLS {
		q.Set("sslmode", "disable")
	}
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   conf.Database.Engine,
		User:     cred,
		Host:     conf.Database.Address(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

func connect(ctx context.Context, dbName string, admin bool, conf *core.Config) (*sql.DB, error) {
	db, err := sql.Open(conf.Database.Engine, dsn(dbName, admin, conf))
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", dbName)
	}
	if err = ping(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// ping waits for the database to answer, backing off a little longer after each failed attempt.
func ping(ctx context.Context, db *sql.DB) error {
	var err error
	for attempt := 1; attempt <= pingAttempts; attempt++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "waiting for database")
		case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
		}
	}
	return errors.Wrap(err, "DB ping timeout")
}

// Open connects to the app database.
func Open(ctx context.Context, conf *core.Config) (*sqlx.DB, error) {
	db, err := connect(ctx, conf.Database.Name, false, conf)
	if err != nil {
		return nil, err
	}
	return sqlx.NewDb(db, conf.Database.Engine), nil
}

func exists(ctx context.Context, db *sql.DB, query string, args ...interface{}) (bool, error) {
	var found bool
	err := db.QueryRowContext(ctx, query, args...).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return found, err
}

// CreateIfNotExist provisions the app role (as admin) then the app database (as the app role).
func CreateIfNotExist(ctx context.Context, conf *core.Config) error {
	if conf.Database.User != "" {
		admin, err := connect(ctx, maintenanceDB, true, conf)
		if err != nil {
			return err
		}
		err = createRole(ctx, admin, conf.Database.User, conf.Database.Password)
		_ = admin.Close()
		if err != nil {
			return err
		}
	}

	db, err := connect(ctx, maintenanceDB, false, conf)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return createDB(ctx, db, conf.Database.Name)
}

func createRole(ctx context.Context, db *sql.DB, name, password string) error {
	found, err := exists(ctx, db, "SELECT true FROM pg_roles WHERE rolname = $1", name)
	if err != nil {
		return errors.Wrap(err, "checking app role")
	}
	if found {
		return nil
	}
	q := "CREATE ROLE " + pq.QuoteIdentifier(name) + " LOGIN CREATEDB ENCRYPTED PASSWORD " + pq.QuoteLiteral(password)
	_, err = db.ExecContext(ctx, q)
	return errors.Wrap(err, "creating app role")
}

func createDB(ctx context.Context, db *sql.DB, name string) error {
	found, err := exists(ctx, db, "SELECT true FROM pg_database WHERE datname = $1", name)
	if err != nil {
		return errors.Wrap(err, "checking database")
	}
	if found {
		return nil
	}
	_, err = db.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(name))
	return errors.Wrap(err, "creating database")
}

// Migrate runs a goose command (up, down, status, redo, version...) with the embedded migrations.
func Migrate(db *sql.DB, command string, args ...string) error {
	goose.SetBaseFS(appfs.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "setting goose dialect")
	}
	if err := goose.Run(command, db, migrationsDir, args...); err != nil {
		return errors.Wrapf(err, "running migrations %s", command)
	}
	return nil
}
