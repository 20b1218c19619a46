// Package dummydb is an in-memory document store, used in development and tests.
package dummydb

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/trezcool/minierp/core/docstore"
)

type (
	DB struct {
		mu     sync.RWMutex
		tables map[string]*table

		watchMu  sync.Mutex
		watchers map[string][]chan struct{}
	}

	table struct {
		rows  map[string]map[string]interface{}
		order []string // insertion order, to list deterministically
	}
)

var _ docstore.Store = (*DB)(nil) // interface compliance check

func Open() (*DB, error) {
	db := &DB{
		tables:   make(map[string]*table),
		watchers: make(map[string][]chan struct{}),
	}
	return db, nil
}

func (db *DB) table(collection string) *table {
	tbl, ok := db.tables[collection]
	if !ok {
		tbl = &table{rows: make(map[string]map[string]interface{})}
		db.tables[collection] = tbl
	}
	return tbl
}

func copyData(data map[string]interface{}) map[string]interface{} {
	cp := make(map[string]interface{}, len(data))
	for k, v := range data {
		cp[k] = v
	}
	return cp
}

func (db *DB) Get(_ context.Context, collection, id string) (docstore.Document, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	tbl, ok := db.tables[collection]
	if !ok {
		return docstore.Document{}, docstore.ErrNotFound
	}
	row, ok := tbl.rows[id]
	if !ok {
		return docstore.Document{}, docstore.ErrNotFound
	}
	return docstore.Document{ID: id, Data: copyData(row)}, nil
}

func (db *DB) List(ctx context.Context, collection string) ([]docstore.Document, error) {
	return db.filter(ctx, collection, nil)
}

func (db *DB) Query(ctx context.Context, collection string, filter docstore.Filter) ([]docstore.Document, error) {
	return db.filter(ctx, collection, &filter)
}

func (db *DB) filter(ctx context.Context, collection string, filter *docstore.Filter) ([]docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	docs := make([]docstore.Document, 0)
	tbl, ok := db.tables[collection]
	if !ok {
		return docs, nil
	}
	for _, id := range tbl.order {
		doc := docstore.Document{ID: id, Data: copyData(tbl.rows[id])}
		if filter == nil || docstore.Match(doc, *filter) {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func (db *DB) Add(_ context.Context, collection string, data map[string]interface{}, id string) (string, error) {
	db.mu.Lock()
	if id == "" {
		id = uuid.New().String()
	}
	tbl := db.table(collection)
	if _, exists := tbl.rows[id]; !exists {
		tbl.order = append(tbl.order, id)
	}
	tbl.rows[id] = copyData(data)
	db.mu.Unlock()

	db.notify(collection)
	return id, nil
}

func (db *DB) Update(_ context.Context, collection, id string, partial map[string]interface{}) error {
	db.mu.Lock()
	tbl, ok := db.tables[collection]
	if !ok {
		db.mu.Unlock()
		return docstore.ErrNotFound
	}
	row, ok := tbl.rows[id]
	if !ok {
		db.mu.Unlock()
		return docstore.ErrNotFound
	}
	for k, v := range partial {
		row[k] = v
	}
	db.mu.Unlock()

	db.notify(collection)
	return nil
}

func (db *DB) Delete(_ context.Context, collection, id string) error {
	db.mu.Lock()
	tbl, ok := db.tables[collection]
	if !ok {
		db.mu.Unlock()
		return docstore.ErrNotFound
	}
	if _, ok = tbl.rows[id]; !ok {
		db.mu.Unlock()
		return docstore.ErrNotFound
	}
	delete(tbl.rows, id)
	for i, oid := range tbl.order {
		if oid == id {
			tbl.order = append(tbl.order[:i], tbl.order[i+1:]...)
			break
		}
	}
	db.mu.Unlock()

	db.notify(collection)
	return nil
}

// Watch notifies on every write to the collection. Notifications are coalesced:
// a watcher that has not consumed the previous one does not get a second.
func (db *DB) Watch(ctx context.Context, collection string) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)

	db.watchMu.Lock()
	db.watchers[collection] = append(db.watchers[collection], ch)
	db.watchMu.Unlock()

	go func() {
		<-ctx.Done()
		db.watchMu.Lock()
		defer db.watchMu.Unlock()
		chans := db.watchers[collection]
		for i, c := range chans {
			if c == ch {
				db.watchers[collection] = append(chans[:i], chans[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}

func (db *DB) notify(collection string) {
	db.watchMu.Lock()
	defer db.watchMu.Unlock()
	for _, ch := range db.watchers[collection] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Collections returns the names of the non empty collections, sorted.
func (db *DB) Collections() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	names := make([]string, 0, len(db.tables))
	for name, tbl := range db.tables {
		if len(tbl.rows) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (db *DB) Close(context.Context) error {
	return nil
}
