// Package testutil holds helpers shared by the package tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/minierp/core"
	"github.com/trezcool/minierp/core/docstore"
	"github.com/trezcool/minierp/storage/database/dummy"
)

// NewConfig returns a configuration suited for tests, without reading the environment.
func NewConfig() *core.Config {
	return &core.Config{
		Env:       "TEST",
		Build:     "test",
		TestMode:  true,
		AppName:   "MiniERP",
		SecretKey: "test-secret",
		Server: core.ServerConfig{
			ShutdownTimeout:    time.Second,
			JWTExpirationDelta: time.Hour,
		},
		DocStore: core.DocStoreConfig{Backend: "memory", Timeout: time.Second},
		Cache: core.CacheConfig{
			SignalsTTL:       15 * time.Second,
			NotificationsTTL: 10 * time.Second,
			AnalyticsTTL:     15 * time.Second,
		},
		Stream: core.StreamConfig{Interval: 20 * time.Millisecond, MaxEvents: 2},
		Alert:  core.AlertConfig{Workers: 1, QueueSize: 10, MaxRetries: 1},
	}
}

// NewValidator returns a validator with the custom validations and an english translator.
func NewValidator() (*validator.Validate, ut.Translator) {
	enLocale := en.New()
	translator, _ := ut.New(enLocale, enLocale).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	return validate, translator
}

// LogEntry is a message recorded by Logger.
type LogEntry struct {
	Level string
	Msg   string
}

// Logger records log messages instead of printing them.
type Logger struct {
	mu      sync.Mutex
	entries []LogEntry
}

var _ core.Logger = (*Logger)(nil)

func NewLogger() *Logger {
	return &Logger{}
}

func (l *Logger) log(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Level: level, Msg: msg})
}

func (l *Logger) Debug(msg string, _ ...interface{}) { l.log("debug", msg) }
func (l *Logger) Info(msg string, _ ...interface{})  { l.log("info", msg) }
func (l *Logger) Warn(msg string, _ ...interface{})  { l.log("warn", msg) }
func (l *Logger) Error(msg string, _ ...interface{}) { l.log("error", msg) }
func (l *Logger) Fatal(msg string, _ ...interface{}) { l.log("fatal", msg) }

// Entries returns the recorded messages of the given level (all when empty).
func (l *Logger) Entries(level string) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LogEntry, 0, len(l.entries))
	for _, e := range l.entries {
		if level == "" || e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// OpenDB opens an empty in-memory document store.
func OpenDB(t *testing.T) *dummydb.DB {
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	return db
}

// CountingStore wraps a Store and counts the calls made to List.
type CountingStore struct {
	docstore.Store

	mu    sync.Mutex
	lists map[string]int
}

func NewCountingStore(store docstore.Store) *CountingStore {
	return &CountingStore{Store: store, lists: make(map[string]int)}
}

func (s *CountingStore) List(ctx context.Context, collection string) ([]docstore.Document, error) {
	s.mu.Lock()
	s.lists[collection]++
	s.mu.Unlock()
	return s.Store.List(ctx, collection)
}

func (s *CountingStore) ListCalls(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lists[collection]
}

// FailingStore fails every call.
type FailingStore struct{}

var _ docstore.Store = FailingStore{}

var ErrStoreDown = fmt.Errorf("store unreachable")

func (FailingStore) Get(context.Context, string, string) (docstore.Document, error) {
	return docstore.Document{}, ErrStoreDown
}
func (FailingStore) List(context.Context, string) ([]docstore.Document, error) {
	return nil, ErrStoreDown
}
func (FailingStore) Query(context.Context, string, docstore.Filter) ([]docstore.Document, error) {
	return nil, ErrStoreDown
}
func (FailingStore) Add(context.Context, string, map[string]interface{}, string) (string, error) {
	return "", ErrStoreDown
}
func (FailingStore) Update(context.Context, string, string, map[string]interface{}) error {
	return ErrStoreDown
}
func (FailingStore) Delete(context.Context, string, string) error { return ErrStoreDown }
func (FailingStore) Watch(context.Context, string) (<-chan struct{}, error) {
	return nil, ErrStoreDown
}
func (FailingStore) Close(context.Context) error { return nil }

// AddDoc stores data in collection and returns its id.
func AddDoc(t *testing.T, store docstore.Store, collection string, data map[string]interface{}, id ...string) string {
	var docID string
	if len(id) > 0 {
		docID = id[0]
	}
	docID, err := store.Add(context.Background(), collection, data, docID)
	if err != nil {
		t.Fatalf("AddDoc(%s) failed: %v", collection, err)
	}
	return docID
}

// Date returns today's date shifted by the given number of days, as YYYY-MM-DD.
func Date(days int) string {
	return time.Now().AddDate(0, 0, days).Format(core.ISODate)
}

func Attendance(sid, date string, present bool) map[string]interface{} {
	return map[string]interface{}{"student_id": sid, "date": date, "present": present}
}

func Fee(sid string, amount float64, status, dueDate string) map[string]interface{} {
	return map[string]interface{}{
		"student_id": sid, "amount": amount, "status": status, "fee_type": "Tuition", "due_date": dueDate,
	}
}

func Exam(sid string, score, total float64, examDate string) map[string]interface{} {
	return map[string]interface{}{
		"student_id": sid, "subject": "Math", "score": score, "total": total, "exam_date": examDate,
	}
}

// SeedAttendance adds `total` attendance records for sid, the first `present` of them present.
func SeedAttendance(t *testing.T, store docstore.Store, sid string, total, present int) {
	for i := 0; i < total; i++ {
		AddDoc(t, store, docstore.Attendance, Attendance(sid, Date(-i), i < present))
	}
}
