// Package sqlxdb is a document store kept in a PostgreSQL JSONB table.
package sqlxdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/minierp/core"
	"github.com/trezcool/minierp/core/docstore"
	"github.com/trezcool/minierp/storage/database"
)

type (
	DB struct {
		db     *sqlx.DB
		dsn    string
		logger core.Logger
	}

	row struct {
		ID   string         `db:"id"`
		Data types.JSONText `db:"data"`
	}
)

var _ docstore.Store = (*DB)(nil) // interface compliance check

// Open connects to the application database. Its schema is created by database.Migrate.
func Open(ctx context.Context, conf *core.Config, logger core.Logger) (*DB, error) {
	db, err := database.Connect(ctx, conf)
	if err != nil {
		return nil, err
	}
	return New(sqlx.NewDb(db, "postgres"), database.DataSourceName(conf), logger), nil
}

// Migrate applies the pending schema migrations.
func (db *DB) Migrate() error {
	return database.Migrate(db.db.DB)
}

// New wraps an open connection. dsn is used by watches to listen for changes.
func New(db *sqlx.DB, dsn string, logger core.Logger) *DB {
	return &DB{db: db, dsn: dsn, logger: logger}
}

func (r row) document() (docstore.Document, error) {
	data := make(map[string]interface{})
	if err := r.Data.Unmarshal(&data); err != nil {
		return docstore.Document{}, errors.Wrapf(err, "decoding document %s", r.ID)
	}
	return docstore.Document{ID: r.ID, Data: data}, nil
}

func documents(rows []row) ([]docstore.Document, error) {
	docs := make([]docstore.Document, 0, len(rows))
	for _, r := range rows {
		doc, err := r.document()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (db *DB) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	var r row
	q := `SELECT id, data FROM documents WHERE collection = $1 AND id = $2`
	if err := db.db.GetContext(ctx, &r, q, collection, id); err != nil {
		if err == sql.ErrNoRows {
			return docstore.Document{}, docstore.ErrNotFound
		}
		return docstore.Document{}, errors.Wrap(err, "selecting document")
	}
	return r.document()
}

func (db *DB) List(ctx context.Context, collection string) ([]docstore.Document, error) {
	var rows []row
	q := `SELECT id, data FROM documents WHERE collection = $1 ORDER BY created_at, id`
	if err := db.db.SelectContext(ctx, &rows, q, collection); err != nil {
		return nil, errors.Wrap(err, "selecting documents")
	}
	return documents(rows)
}

func (db *DB) Query(ctx context.Context, collection string, filter docstore.Filter) ([]docstore.Document, error) {
	where, args, err := whereClause(filter, collection)
	if err != nil {
		return nil, err
	}
	var rows []row
	q := `SELECT id, data FROM documents WHERE collection = $1 AND ` + where + ` ORDER BY created_at, id`
	if err = db.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying documents")
	}
	return documents(rows)
}

var sqlOperators = map[docstore.Operator]string{
	docstore.OpEqual:        "=",
	docstore.OpNotEqual:     "<>",
	docstore.OpLess:         "<",
	docstore.OpLessEqual:    "<=",
	docstore.OpGreater:      ">",
	docstore.OpGreaterEqual: ">=",
}

// whereClause compiles a filter to a jsonb comparison. The collection is always $1.
// jsonb orders numbers numerically and strings lexicographically.
func whereClause(f docstore.Filter, collection string) (string, []interface{}, error) {
	if !f.Op.Valid() {
		return "", nil, errors.Errorf("invalid operator %q", f.Op)
	}
	value, err := json.Marshal(f.Value)
	if err != nil {
		return "", nil, errors.Wrapf(err, "encoding filter value of %s", f.Field)
	}

	args := []interface{}{collection}
	field := "data -> $2::text"
	if f.Field == "id" {
		field = "to_jsonb(id)"
	} else {
		args = append(args, f.Field)
	}
	args = append(args, types.JSONText(value))
	param := len(args)

	switch f.Op {
	case docstore.OpIn, docstore.OpNotIn:
		if len(value) == 0 || value[0] != '[' {
			return "", nil, errors.Errorf("filter %s expects a list", f)
		}
		clause := fmt.Sprintf("%s IN (SELECT jsonb_array_elements($%d::jsonb))", field, param)
		if f.Op == docstore.OpNotIn {
			clause = "NOT (" + clause + ")"
		}
		return clause, args, nil
	}
	return fmt.Sprintf("%s %s $%d::jsonb", field, sqlOperators[f.Op], param), args, nil
}

func (db *DB) Add(ctx context.Context, collection string, data map[string]interface{}, id string) (string, error) {
	if id == "" {
		id = uuid.New().String()
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return "", errors.Wrap(err, "encoding document")
	}
	q := `INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3)
		ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`
	if _, err = db.db.ExecContext(ctx, q, collection, id, types.JSONText(payload)); err != nil {
		return "", errors.Wrap(err, "inserting document")
	}
	return id, nil
}

func (db *DB) Update(ctx context.Context, collection, id string, partial map[string]interface{}) error {
	payload, err := json.Marshal(partial)
	if err != nil {
		return errors.Wrap(err, "encoding document")
	}
	q := `UPDATE documents SET data = data || $3::jsonb, updated_at = now() WHERE collection = $1 AND id = $2`
	res, err := db.db.ExecContext(ctx, q, collection, id, types.JSONText(payload))
	if err != nil {
		return errors.Wrap(err, "updating document")
	}
	return expectOneRow(res)
}

func (db *DB) Delete(ctx context.Context, collection, id string) error {
	res, err := db.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	if err != nil {
		return errors.Wrap(err, "deleting document")
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "counting affected rows")
	}
	if n == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

// Watch listens to the change notifications of the documents table (see the migrations).
// A reconnection is reported as a change, since notifications may have been missed meanwhile.
func (db *DB) Watch(ctx context.Context, collection string) (<-chan struct{}, error) {
	l := pq.NewListener(db.dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			db.logger.Warn(fmt.Sprintf("sqlxdb: listener for %s: %v", collection, err))
		}
	})
	if err := l.Listen(database.ChangesChannel); err != nil {
		_ = l.Close()
		return nil, errors.Wrap(err, "listening to document changes")
	}

	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		defer func() { _ = l.Close() }()

		for {
			select {
			case <-ctx.Done():
				return
			case n := <-l.Notify:
				if n != nil && n.Extra != collection {
					continue
				}
				select {
				case ch <- struct{}{}:
				default:
				}
			case <-time.After(90 * time.Second):
				go func() { _ = l.Ping() }()
			}
		}
	}()
	return ch, nil
}

func (db *DB) Close(context.Context) error {
	return db.db.Close()
}
