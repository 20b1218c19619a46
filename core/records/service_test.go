package records_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/trezcool/minierp/core"
	"github.com/trezcool/minierp/core/alert"
	"github.com/trezcool/minierp/core/cache"
	"github.com/trezcool/minierp/core/docstore"
	"github.com/trezcool/minierp/core/records"
	"github.com/trezcool/minierp/core/risk"
	"github.com/trezcool/minierp/core/school"
	"github.com/trezcool/minierp/services/email"
	"github.com/trezcool/minierp/storage/database/dummy"
	"github.com/trezcool/minierp/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var now = time.Date(2026, 5, 10, 9, 30, 0, 0, time.UTC)

type env struct {
	db     *dummydb.DB
	svc    *records.Service
	mailer *emailsvc.ConsoleServiceMock
	em     *alert.Emitter
}

func setup(t *testing.T) *env {
	conf := testutil.NewConfig()
	db := testutil.OpenDB(t)
	logger := testutil.NewLogger()
	gw := docstore.NewGateway(db, time.Second, logger, nil)
	c := cache.New(gw, cache.Options{Logger: logger})
	ev := risk.NewEvaluator(c, gw, conf.Cache.SignalsTTL)
	ev.Today = func() string { return now.Format(core.ISODate) }
	mailer := emailsvc.NewConsoleServiceMock(conf)
	em := alert.NewEmitter(gw, mailer, alert.Options{Logger: logger, InitialInterval: time.Millisecond})

	svc := records.NewService(gw, c, ev, em, conf.Cache.NotificationsTTL)
	svc.Now = func() time.Time { return now }

	t.Cleanup(func() {
		_ = em.Close(context.Background())
		c.Close()
	})
	return &env{db: db, svc: svc, mailer: mailer, em: em}
}

func boolPtr(b bool) *bool        { return &b }
func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }

func TestService_CreateAttendance(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	w, err := e.svc.CreateAttendance(ctx, records.NewAttendance{StudentID: "S1"})
	require.NoError(t, err)
	rec := w.Record.(school.Attendance)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "2026-05-10", rec.Date)
	assert.True(t, rec.Present)
	assert.Equal(t, "2026-05-10T09:30:00.000000Z", rec.CreatedAt)
	assert.False(t, w.Assessment.AtRisk)
	assert.Nil(t, w.Notification)

	// the new record is evaluated at once
	w, err = e.svc.CreateAttendance(ctx, records.NewAttendance{StudentID: "S1", Present: boolPtr(false)})
	require.NoError(t, err)
	assert.Equal(t, 50.0, w.Assessment.AttendancePercent)

	_, err = e.svc.CreateAttendance(ctx, records.NewAttendance{})
	assert.True(t, isValidationError(err))
}

func isValidationError(err error) bool {
	_, ok := err.(*core.ValidationError)
	return ok
}

func TestService_atRiskWriteAlerts(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	testutil.AddDoc(t, e.db, docstore.Students, map[string]interface{}{
		"student_id": "S2", "first_name": "Bo", "email": "bo@school.test",
	}, "S2")

	w, err := e.svc.CreateExam(ctx, records.NewExam{StudentID: "S2", Score: floatPtr(20)})
	require.NoError(t, err)
	exam := w.Record.(school.Exam)
	assert.Equal(t, "General", exam.Subject)
	assert.Equal(t, 100.0, exam.Total)
	assert.Equal(t, "2026-05-10", exam.ExamDate)

	assert.True(t, w.Assessment.AtRisk)
	assert.True(t, w.Assessment.FailingGrades)
	require.NotNil(t, w.Notification)
	assert.Equal(t, "Student S2 flagged: Failing grades", w.Notification.Message)
	assert.Equal(t, "Bo", w.Notification.StudentName)

	require.NoError(t, e.em.Close(ctx))
	sent := e.mailer.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "Student S2 at-risk alert", sent[0].Subject)

	notifs := e.svc.ListNotifications(ctx, false)
	require.Len(t, notifs, 1)
	assert.Equal(t, w.Notification.ID, notifs[0].ID)
}

func TestService_UpdateFee(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	w, err := e.svc.CreateFee(ctx, records.NewFee{StudentID: "S3", Amount: 250, DueDate: "2026-05-01"})
	require.NoError(t, err)
	fee := w.Record.(school.Fee)
	assert.Equal(t, "pending", fee.Status)
	assert.Equal(t, "Tuition", fee.FeeType)
	assert.False(t, fee.PaidAt.Valid)
	assert.True(t, w.Assessment.OverdueFees)
	assert.Equal(t, risk.Medium, w.Assessment.RiskLevel)

	w, err = e.svc.UpdateFee(ctx, fee.ID, records.UpdateFee{Status: strPtr("completed")})
	require.NoError(t, err)
	updated := w.Record.(school.Fee)
	assert.Equal(t, "completed", updated.Status)
	assert.True(t, updated.PaidAt.Valid)
	assert.True(t, updated.PaidAt.Time.Equal(now))
	assert.False(t, w.Assessment.OverdueFees)
	assert.False(t, w.Assessment.AtRisk)

	_, err = e.svc.UpdateFee(ctx, "missing", records.UpdateFee{Amount: floatPtr(1)})
	assert.True(t, core.IsNotFound(err))
}

func TestService_ListAndDelete(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	for _, na := range []records.NewAttendance{
		{StudentID: "S4", Date: "2026-05-01"},
		{StudentID: "S4", Date: "2026-05-03", Present: boolPtr(false)},
		{StudentID: "S5", Date: "2026-05-02"},
	} {
		_, err := e.svc.CreateAttendance(ctx, na)
		require.NoError(t, err)
	}

	all := e.svc.ListAttendance(ctx, records.RecordFilter{})
	require.Len(t, all, 3)
	assert.Equal(t, []string{"2026-05-03", "2026-05-02", "2026-05-01"}, []string{all[0].Date, all[1].Date, all[2].Date})

	s4 := e.svc.ListAttendance(ctx, records.RecordFilter{StudentID: "S4", From: "2026-05-02"})
	require.Len(t, s4, 1)
	assert.False(t, s4[0].Present)

	require.NoError(t, e.svc.DeleteAttendance(ctx, s4[0].ID))
	assert.True(t, core.IsNotFound(e.svc.DeleteAttendance(ctx, s4[0].ID)))
	assert.Len(t, e.svc.ListAttendance(ctx, records.RecordFilter{StudentID: "S4"}), 1)
}

func TestService_storeOutageIsNotNotFound(t *testing.T) {
	conf := testutil.NewConfig()
	logger := testutil.NewLogger()
	gw := docstore.NewGateway(testutil.FailingStore{}, time.Second, logger, nil)
	c := cache.New(gw, cache.Options{Logger: logger})
	ev := risk.NewEvaluator(c, gw, conf.Cache.SignalsTTL)
	em := alert.NewEmitter(gw, emailsvc.NewConsoleServiceMock(conf), alert.Options{Logger: logger})
	t.Cleanup(func() {
		_ = em.Close(context.Background())
		c.Close()
	})
	svc := records.NewService(gw, c, ev, em, conf.Cache.NotificationsTTL)
	ctx := context.Background()

	_, err := svc.UpdateAttendance(ctx, "a1", records.UpdateAttendance{Present: boolPtr(false)})
	require.Error(t, err)
	assert.False(t, core.IsNotFound(err))

	err = svc.DeleteExam(ctx, "e1")
	require.Error(t, err)
	assert.False(t, core.IsNotFound(err))

	_, err = svc.MarkNotificationRead(ctx, "n1")
	require.Error(t, err)
	assert.False(t, core.IsNotFound(err))

	_, err = svc.GetStudent(ctx, "S1")
	require.Error(t, err)
	assert.False(t, core.IsNotFound(err))
}

func TestService_exams(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	w, err := e.svc.CreateExam(ctx, records.NewExam{StudentID: "S6", Subject: "Math", Score: floatPtr(90), Total: floatPtr(100)})
	require.NoError(t, err)
	_, err = e.svc.CreateExam(ctx, records.NewExam{StudentID: "S6", Subject: "Physics", Score: floatPtr(80)})
	require.NoError(t, err)

	math := e.svc.ListExams(ctx, records.RecordFilter{Subject: "math"})
	require.Len(t, math, 1)

	w, err = e.svc.UpdateExam(ctx, math[0].ID, records.UpdateExam{Score: floatPtr(10)})
	require.NoError(t, err)
	assert.Equal(t, 10.0, w.Record.(school.Exam).Score)
	assert.True(t, w.Assessment.FailingGrades)

	require.NoError(t, e.svc.DeleteExam(ctx, math[0].ID))
	assert.Len(t, e.svc.ListExams(ctx, records.RecordFilter{StudentID: "S6"}), 1)
}

func TestService_notifications(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	for i, created := range []string{"2026-05-01T10:00:00.000000Z", "2026-05-03T10:00:00.000000Z", "2026-05-02T10:00:00.000000Z"} {
		testutil.AddDoc(t, e.db, docstore.Notifications, map[string]interface{}{
			"student_id": "S7", "type": "risk_alert", "created_at": created, "read": i == 0,
		})
	}

	all := e.svc.ListNotifications(ctx, false)
	require.Len(t, all, 3)
	assert.Equal(t, "2026-05-03T10:00:00.000000Z", all[0].CreatedAt)

	unread := e.svc.ListNotifications(ctx, true)
	require.Len(t, unread, 2)

	n, err := e.svc.MarkNotificationRead(ctx, unread[0].ID)
	require.NoError(t, err)
	assert.True(t, n.Read)
	assert.Len(t, e.svc.ListNotifications(ctx, true), 1)

	_, err = e.svc.MarkNotificationRead(ctx, "missing")
	assert.True(t, core.IsNotFound(err))
}

func TestService_notificationsLimit(t *testing.T) {
	e := setup(t)
	for i := 0; i < records.NotificationsLimit+5; i++ {
		testutil.AddDoc(t, e.db, docstore.Notifications, map[string]interface{}{
			"student_id": "S8", "created_at": now.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
		})
	}
	assert.Len(t, e.svc.ListNotifications(context.Background(), false), records.NotificationsLimit)
}

func TestService_students(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	_, err := e.svc.GetStudent(ctx, "S9")
	assert.True(t, core.IsNotFound(err))

	st, err := e.svc.UpsertStudent(ctx, "S9", records.NewStudent{FirstName: "Cy", Email: "CY@school.test"})
	require.NoError(t, err)
	assert.Equal(t, "cy@school.test", st.Email)

	_, err = e.svc.UpsertStudent(ctx, "S9", records.NewStudent{FirstName: "Cy", LastName: "Young", Email: "cy@school.test"})
	require.NoError(t, err)

	got, err := e.svc.GetStudent(ctx, "S9")
	require.NoError(t, err)
	assert.Equal(t, "Cy Young", got.FullName())
	assert.Equal(t, "S9", got.StudentID)

	_, err = e.svc.UpsertStudent(ctx, " ", records.NewStudent{})
	assert.True(t, isValidationError(err))
}
