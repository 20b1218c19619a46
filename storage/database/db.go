package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/trezcool/goose"

	"github.com/trezcool/minierp/core"
	"github.com/trezcool/minierp/fs"
)

// ChangesChannel is the channel the documents table notifies its changes on.
const ChangesChannel = "docstore_changes"

var gooseUpFunc = goose.Up // mockable

func dataSourceName(dbName string, admin bool, conf *core.Config) string {
	user := url.UserPassword(conf.Database.User, conf.Database.Password)
	if admin && conf.Database.AdminUser != "" {
		user = url.UserPassword(conf.Database.AdminUser, conf.Database.AdminPassword)
	}

	sslMode := "require"
	if conf.Database.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   conf.Database.Engine,
		User:     user,
		Host:     conf.Database.Address(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

func open(dbName string, admin bool, conf *core.Config) (*sql.DB, error) {
	return sql.Open(conf.Database.Engine, dataSourceName(dbName, admin, conf))
}

func Open(conf *core.Config) (*sql.DB, error) {
	return open(conf.Database.Name, false, conf)
}

// DataSourceName is the connection string of the application database, as the app user.
func DataSourceName(conf *core.Config) string {
	return dataSourceName(conf.Database.Name, false, conf)
}

// pingTimeout bounds how long Connect and CreateIfNotExist wait for the server.
var pingTimeout = 30 * time.Second

// ping waits for the database to be ready, backing off between attempts.
func ping(ctx context.Context, db *sql.DB) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 100 * time.Millisecond
	eb.MaxElapsedTime = pingTimeout

	if err := backoff.Retry(func() error { return db.PingContext(ctx) }, backoff.WithContext(eb, ctx)); err != nil {
		return errors.Wrap(err, "DB ping timeout")
	}
	return nil
}

// ensure runs create unless exists (a single boolean row) reports the object is already there.
func ensure(ctx context.Context, db *sql.DB, exists string, arg interface{}, create string) error {
	var found bool
	if err := db.QueryRowContext(ctx, exists, arg).Scan(&found); err != nil {
		return errors.Wrap(err, "checking")
	}
	if found {
		return nil
	}
	_, err := db.ExecContext(ctx, create)
	return err
}

func createUserStmt(conf *core.Config) string {
	return fmt.Sprintf("CREATE USER %s CREATEDB ENCRYPTED PASSWORD %s",
		pq.QuoteIdentifier(conf.Database.User), pq.QuoteLiteral(conf.Database.Password))
}

func createDBStmt(conf *core.Config) string {
	return "CREATE DATABASE " + pq.QuoteIdentifier(conf.Database.Name)
}

// CreateIfNotExist creates the app role (as admin) and the application database (as the app user)
// when they are missing.
func CreateIfNotExist(ctx context.Context, conf *core.Config) error {
	admin, err := open("postgres", true, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = admin.Close() }()
	if err = ping(ctx, admin); err != nil {
		return errors.Wrap(err, "pinging database")
	}
	if conf.Database.User != "" {
		const q = "SELECT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = $1)"
		if err = ensure(ctx, admin, q, conf.Database.User, createUserStmt(conf)); err != nil {
			return errors.Wrap(err, "creating app user")
		}
	}

	app, err := open("postgres", false, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = app.Close() }()
	const q = "SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)"
	if err = ensure(ctx, app, q, conf.Database.Name, createDBStmt(conf)); err != nil {
		return errors.Wrap(err, "creating database")
	}
	return nil
}

// Migrate applies the pending migrations embedded in appfs.
func Migrate(db *sql.DB) error {
	if err := gooseUpFunc(db, appfs.FS, "migrations"); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	return nil
}

// Connect opens the application database and waits for it to be ready.
func Connect(ctx context.Context, conf *core.Config) (*sql.DB, error) {
	db, err := Open(conf)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err = ping(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
