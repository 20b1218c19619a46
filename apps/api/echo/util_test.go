package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/trezcool/minierp/apps/api/echo"
	"github.com/trezcool/minierp/core"
	"github.com/trezcool/minierp/core/alert"
	"github.com/trezcool/minierp/core/analytics"
	"github.com/trezcool/minierp/core/cache"
	"github.com/trezcool/minierp/core/docstore"
	"github.com/trezcool/minierp/core/records"
	"github.com/trezcool/minierp/core/risk"
	"github.com/trezcool/minierp/services/email"
	"github.com/trezcool/minierp/storage/database/dummy"
	"github.com/trezcool/minierp/testutil"
)

type testEnv struct {
	app    echoapi.Server
	db     *dummydb.DB
	conf   *core.Config
	mailer *emailsvc.ConsoleServiceMock
}

func setup(t *testing.T, configure ...func(*core.Config)) *testEnv {
	db := testutil.OpenDB(t)
	env := setupStore(t, db, configure...)
	env.db = db
	return env
}

// setupStore serves the API over store; env.db stays nil.
func setupStore(t *testing.T, store docstore.Store, configure ...func(*core.Config)) *testEnv {
	conf := testutil.NewConfig()
	for _, f := range configure {
		f(conf)
	}
	logger := testutil.NewLogger()

	gw := docstore.NewGateway(store, conf.DocStore.Timeout, logger, nil)
	c := cache.New(gw, cache.Options{Logger: logger})
	ev := risk.NewEvaluator(c, gw, conf.Cache.SignalsTTL)
	mailer := emailsvc.NewConsoleServiceMock(conf)
	em := alert.NewEmitter(gw, mailer, alert.Options{Logger: logger, InitialInterval: time.Millisecond})
	validate, translator := testutil.NewValidator()

	app := echoapi.NewServer(echoapi.ServerDeps{
		Conf:       conf,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
		Cache:      c,
		Evaluator:  ev,
		Aggregator: analytics.NewAggregator(c, conf.Cache.AnalyticsTTL),
		Records:    records.NewService(gw, c, ev, em, conf.Cache.NotificationsTTL),
	})

	t.Cleanup(func() {
		_ = app.Close()
		_ = em.Close(context.Background())
		c.Close()
	})
	return &testEnv{app: app, conf: conf, mailer: mailer}
}

func (env *testEnv) token(t *testing.T, p core.Principal) string {
	token, err := echoapi.GenerateToken(env.conf, echoapi.NewClaims(env.conf, p))
	if err != nil {
		t.Fatalf("token() failed: %v", err)
	}
	return token
}

func (env *testEnv) roleToken(t *testing.T, role string) string {
	return env.token(t, core.Principal{ID: "u-" + role, Email: role + "@school.test", Roles: []string{role}})
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

var (
	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
	errNotFound     = httpErr{Error: "not found"}
)

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func (env *testEnv) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	env.app.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) run(t *testing.T, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			checkCodeAndData(t, tt, env.do(method, tt.path, tt.token, tt.body))
		})
	}
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func unmarshall(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshall() failed: %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
