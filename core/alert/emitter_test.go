package alert_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/minierp/core"
	"github.com/trezcool/minierp/core/alert"
	"github.com/trezcool/minierp/core/docstore"
	"github.com/trezcool/minierp/core/risk"
	"github.com/trezcool/minierp/testutil"
)

var errSMTPDown = errors.New("smtp down")

// flakyMailer fails the first `failures` sends (all of them when negative).
type flakyMailer struct {
	mu       sync.Mutex
	failures int
	calls    int
	sent     []core.EmailMessage
	block    chan struct{}
}

func (m *flakyMailer) Send(_ context.Context, msg *core.EmailMessage) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failures < 0 || m.calls <= m.failures {
		return errSMTPDown
	}
	m.sent = append(m.sent, *msg)
	return nil
}

func (m *flakyMailer) Sent() []core.EmailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.EmailMessage(nil), m.sent...)
}

type emitterEnv struct {
	store   docstore.Store
	emitter *alert.Emitter
	logger  *testutil.Logger
	reg     *prometheus.Registry
}

func newEmitterEnv(t *testing.T, mailer core.EmailService, opts alert.Options) *emitterEnv {
	store := testutil.OpenDB(t)
	logger := testutil.NewLogger()
	reg := prometheus.NewRegistry()
	gw := docstore.NewGateway(store, time.Second, logger, nil)

	opts.Logger = logger
	opts.Registerer = reg
	if opts.InitialInterval == 0 {
		opts.InitialInterval = time.Millisecond
	}
	em := alert.NewEmitter(gw, mailer, opts)
	em.Now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 890000000, time.UTC) }
	return &emitterEnv{store: store, emitter: em, logger: logger, reg: reg}
}

func (env *emitterEnv) close(t *testing.T) {
	require.NoError(t, env.emitter.Close(context.Background()))
}

func (env *emitterEnv) emails(result string) float64 {
	mfs, err := env.reg.Gather()
	if err != nil {
		return 0
	}
	for _, mf := range mfs {
		if mf.GetName() != "alert_emails_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "result" && l.GetValue() == result {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func atRisk(sid string) risk.Assessment {
	return risk.Assessment{
		StudentID:         sid,
		AttendancePercent: 40,
		Reasons:           []string{"Low attendance (40.0%)", "Overdue fees"},
		RiskScore:         3,
		RiskLevel:         risk.High,
		AtRisk:            true,
	}
}

func TestMessageAndSubject(t *testing.T) {
	assert.Equal(t, "Student S1 flagged: Low attendance (40.0%), Overdue fees", alert.Message(atRisk("S1")))
	assert.Equal(t, "Student S1 at-risk alert", alert.Subject("S1"))
}

func TestEmitter_Emit(t *testing.T) {
	mailer := &flakyMailer{}
	env := newEmitterEnv(t, mailer, alert.Options{MaxRetries: 2})
	testutil.AddDoc(t, env.store, docstore.Students, map[string]interface{}{
		"student_id": "S1", "first_name": "Ada", "last_name": "Lovelace", "email": "ada@school.test",
	}, "S1")
	ctx := context.Background()

	n, ok := env.emitter.Emit(ctx, atRisk("S1"))
	require.True(t, ok)
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, "Ada Lovelace", n.StudentName)
	assert.Equal(t, "risk_alert", n.Type)
	assert.Equal(t, "2026-03-04T05:06:07.890000Z", n.CreatedAt)
	assert.False(t, n.Read)

	// no dedup
	_, ok = env.emitter.Emit(ctx, atRisk("S1"))
	require.True(t, ok)

	env.close(t)

	docs, err := env.store.Query(ctx, docstore.Notifications, docstore.Filter{Field: "student_id", Op: docstore.OpEqual, Value: "S1"})
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	sent := mailer.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "Student S1 at-risk alert", sent[0].Subject)
	assert.Equal(t, n.Message, sent[0].Body)
	assert.Equal(t, "ada@school.test", sent[0].To[0].Address)
	assert.Equal(t, float64(2), env.emails("sent"))
}

func TestEmitter_retries(t *testing.T) {
	mailer := &flakyMailer{failures: 2}
	env := newEmitterEnv(t, mailer, alert.Options{MaxRetries: 3})
	testutil.AddDoc(t, env.store, docstore.Students, map[string]interface{}{"email": "s2@school.test"}, "S2")

	_, ok := env.emitter.Emit(context.Background(), atRisk("S2"))
	require.True(t, ok)
	env.close(t)

	assert.Len(t, mailer.Sent(), 1)
	assert.Equal(t, 3, mailer.calls)
	assert.Equal(t, float64(1), env.emails("sent"))
	assert.Equal(t, float64(0), env.emails("failed"))
}

func TestEmitter_deadLetter(t *testing.T) {
	mailer := &flakyMailer{failures: -1}
	env := newEmitterEnv(t, mailer, alert.Options{MaxRetries: 2})
	testutil.AddDoc(t, env.store, docstore.Students, map[string]interface{}{"email": "s3@school.test"}, "S3")

	// the caller is not affected by email failures
	_, ok := env.emitter.Emit(context.Background(), atRisk("S3"))
	require.True(t, ok)
	env.close(t)

	assert.Equal(t, 3, mailer.calls)
	assert.Empty(t, mailer.Sent())
	assert.Equal(t, float64(1), env.emails("failed"))

	errs := env.logger.Entries("error")
	require.Len(t, errs, 1)
	assert.True(t, strings.Contains(errs[0].Msg, "dead letter"))
	assert.True(t, strings.Contains(errs[0].Msg, "after 3 attempts"))
}

func TestEmitter_noEmail(t *testing.T) {
	mailer := &flakyMailer{}
	env := newEmitterEnv(t, mailer, alert.Options{})

	// no student profile: name falls back to the id
	n, ok := env.emitter.Emit(context.Background(), atRisk("S4"))
	require.True(t, ok)
	assert.Equal(t, "S4", n.StudentName)
	env.close(t)

	assert.Equal(t, 0, mailer.calls)
	assert.Equal(t, float64(1), env.emails("skipped"))
}

func TestEmitter_storeDown(t *testing.T) {
	logger := testutil.NewLogger()
	gw := docstore.NewGateway(testutil.FailingStore{}, time.Second, logger, nil)
	em := alert.NewEmitter(gw, &flakyMailer{}, alert.Options{Logger: logger})

	n, ok := em.Emit(context.Background(), atRisk("S5"))
	assert.False(t, ok)
	assert.Empty(t, n.ID)
	assert.Equal(t, "Student S5 flagged: Low attendance (40.0%), Overdue fees", n.Message)
	require.NoError(t, em.Close(context.Background()))
}

func TestEmitter_dropped(t *testing.T) {
	mailer := &flakyMailer{block: make(chan struct{})}
	env := newEmitterEnv(t, mailer, alert.Options{QueueSize: 1})
	testutil.AddDoc(t, env.store, docstore.Students, map[string]interface{}{"email": "s6@school.test"}, "S6")
	ctx := context.Background()

	// the worker holds the first email, the queue holds the second, the third is dropped.
	env.emitter.Emit(ctx, atRisk("S6"))
	require.Eventually(t, func() bool {
		env.emitter.Emit(ctx, atRisk("S6"))
		return env.emails("dropped") >= 1
	}, time.Second, 5*time.Millisecond)

	close(mailer.block)
	env.close(t)

	// closed emitter
	_, ok := env.emitter.Emit(ctx, atRisk("S6"))
	assert.True(t, ok)
	assert.Equal(t, float64(len(mailer.Sent())), env.emails("sent"))
	assert.GreaterOrEqual(t, env.emails("dropped"), float64(2))
}

func TestEmitter_Close_timeout(t *testing.T) {
	mailer := &flakyMailer{block: make(chan struct{})}
	env := newEmitterEnv(t, mailer, alert.Options{})
	testutil.AddDoc(t, env.store, docstore.Students, map[string]interface{}{"email": "s7@school.test"}, "S7")
	env.emitter.Emit(context.Background(), atRisk("S7"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, env.emitter.Close(ctx))

	close(mailer.block)
	env.close(t)
	assert.Len(t, mailer.Sent(), 1)
}
