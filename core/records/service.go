// Package records writes attendance, fee and exam records, re-evaluating the student
// concerned after every write.
package records

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/minierp/core"
	"github.com/trezcool/minierp/core/alert"
	"github.com/trezcool/minierp/core/cache"
	"github.com/trezcool/minierp/core/docstore"
	"github.com/trezcool/minierp/core/risk"
	"github.com/trezcool/minierp/core/school"
)

// NotificationsLimit is the number of notifications listed, newest first.
const NotificationsLimit = 50

var (
	ErrNotFound     = core.ErrNotFound
	errWriteFailed  = errors.New("document store write failed")
	errStoreDown    = errors.New("document store unavailable")
	errMissingStuID = core.NewValidationError(nil, core.FieldError{Field: "student_id", Error: "this field is required"})
)

type Service struct {
	gw        *docstore.Gateway
	cache     *cache.Cache
	evaluator *risk.Evaluator
	emitter   *alert.Emitter
	notifTTL  time.Duration

	// Now is replaceable in tests.
	Now func() time.Time
}

// NewService returns the records service. emitter may be nil, nothing is then alerted.
func NewService(
	gw *docstore.Gateway,
	c *cache.Cache,
	evaluator *risk.Evaluator,
	emitter *alert.Emitter,
	notificationsTTL time.Duration,
) *Service {
	return &Service{
		gw:        gw,
		cache:     c,
		evaluator: evaluator,
		emitter:   emitter,
		notifTTL:  notificationsTTL,
		Now:       time.Now,
	}
}

func (svc *Service) createdAt() string {
	return svc.Now().UTC().Format("2006-01-02T15:04:05.000000") + "Z"
}

func (svc *Service) today() string {
	return svc.Now().Format(core.ISODate)
}

// assess re-evaluates a student after a write and alerts when at risk.
func (svc *Service) assess(ctx context.Context, collection string, record interface{}, studentID string) Written {
	// reflect the write before evaluating
	svc.cache.Refresh(ctx, collection)

	w := Written{Record: record, Assessment: svc.evaluator.Evaluate(ctx, studentID)}
	if w.Assessment.AtRisk && svc.emitter != nil {
		if n, ok := svc.emitter.Emit(ctx, w.Assessment); ok {
			w.Notification = &n
		}
	}
	return w
}

func (svc *Service) add(ctx context.Context, collection string, data map[string]interface{}) (docstore.Document, error) {
	id := svc.gw.Add(ctx, collection, data, "")
	if id == "" {
		return docstore.Document{}, errors.Wrapf(errWriteFailed, "adding to %s", collection)
	}
	return docstore.Document{ID: id, Data: data}, nil
}

// lookupErr keeps not-found as is; any other lookup failure is a store outage.
func lookupErr(err error) error {
	if core.IsNotFound(err) {
		return ErrNotFound
	}
	return errors.Wrap(errStoreDown, err.Error())
}

// update merges partial into an existing document and returns the merged document.
func (svc *Service) update(ctx context.Context, collection, id string, partial map[string]interface{}) (docstore.Document, error) {
	doc, err := svc.gw.Lookup(ctx, collection, id)
	if err != nil {
		return docstore.Document{}, lookupErr(err)
	}
	if len(partial) > 0 && !svc.gw.Update(ctx, collection, id, partial) {
		return docstore.Document{}, errors.Wrapf(errWriteFailed, "updating %s/%s", collection, id)
	}
	merged := make(map[string]interface{}, len(doc.Data)+len(partial))
	for k, v := range doc.Data {
		merged[k] = v
	}
	for k, v := range partial {
		merged[k] = v
	}
	return docstore.Document{ID: id, Data: merged}, nil
}

func (svc *Service) delete(ctx context.Context, collection, id string) error {
	if _, err := svc.gw.Lookup(ctx, collection, id); err != nil {
		return lookupErr(err)
	}
	if !svc.gw.Delete(ctx, collection, id) {
		return errors.Wrapf(errWriteFailed, "deleting %s/%s", collection, id)
	}
	svc.cache.Refresh(ctx, collection)
	return nil
}

func (svc *Service) list(ctx context.Context, collection string, f RecordFilter) []docstore.Document {
	if f.StudentID != "" {
		return svc.gw.Query(ctx, collection, docstore.Filter{Field: "student_id", Op: docstore.OpEqual, Value: f.StudentID})
	}
	return svc.gw.List(ctx, collection)
}

// Attendance

func (svc *Service) CreateAttendance(ctx context.Context, na NewAttendance) (Written, error) {
	if na.StudentID == "" {
		return Written{}, errMissingStuID
	}
	rec := school.Attendance{
		StudentID: na.StudentID,
		Date:      na.Date,
		Present:   true,
		Subject:   na.Subject,
		Period:    na.Period,
		CreatedAt: svc.createdAt(),
	}
	if rec.Date == "" {
		rec.Date = svc.today()
	}
	if na.Present != nil {
		rec.Present = *na.Present
	}

	doc, err := svc.add(ctx, docstore.Attendance, rec.Data())
	if err != nil {
		return Written{}, err
	}
	rec = school.AttendanceFromDoc(doc)
	return svc.assess(ctx, docstore.Attendance, rec, rec.StudentID), nil
}

func (svc *Service) UpdateAttendance(ctx context.Context, id string, ua UpdateAttendance) (Written, error) {
	doc, err := svc.update(ctx, docstore.Attendance, id, ua.data())
	if err != nil {
		return Written{}, err
	}
	rec := school.AttendanceFromDoc(doc)
	return svc.assess(ctx, docstore.Attendance, rec, rec.StudentID), nil
}

func (svc *Service) DeleteAttendance(ctx context.Context, id string) error {
	return svc.delete(ctx, docstore.Attendance, id)
}

// ListAttendance returns the matching records, latest first.
func (svc *Service) ListAttendance(ctx context.Context, f RecordFilter) []school.Attendance {
	out := make([]school.Attendance, 0)
	for _, rec := range school.Attendances(svc.list(ctx, docstore.Attendance, f)) {
		if f.inRange(rec.Date) {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out
}

// Fees

func (svc *Service) CreateFee(ctx context.Context, nf NewFee) (Written, error) {
	if nf.StudentID == "" {
		return Written{}, errMissingStuID
	}
	data := map[string]interface{}{
		"student_id": nf.StudentID,
		"amount":     nf.Amount,
		"status":     nf.Status,
		"fee_type":   nf.FeeType,
		"due_date":   nf.DueDate,
		"created_at": svc.createdAt(),
		"paid_at":    nil,
	}
	if nf.Status == "" {
		data["status"] = school.StatusPending
	}
	if nf.FeeType == "" {
		data["fee_type"] = school.DefaultFeeType
	}
	if nf.DueDate == "" {
		data["due_date"] = svc.today()
	}
	if data["status"] == school.StatusCompleted {
		data["paid_at"] = svc.Now().UTC().Format(time.RFC3339)
	}

	doc, err := svc.add(ctx, docstore.Fees, data)
	if err != nil {
		return Written{}, err
	}
	fee := school.FeeFromDoc(doc)
	return svc.assess(ctx, docstore.Fees, fee, fee.StudentID), nil
}

// UpdateFee applies uf. Completing a fee stamps its payment time unless it has one.
func (svc *Service) UpdateFee(ctx context.Context, id string, uf UpdateFee) (Written, error) {
	partial := uf.data()
	if uf.Status != nil && *uf.Status == school.StatusCompleted && uf.PaidAt == nil {
		if current, ok := svc.gw.Get(ctx, docstore.Fees, id); ok && !school.FeeFromDoc(current).PaidAt.Valid {
			partial["paid_at"] = svc.Now().UTC().Format(time.RFC3339)
		}
	}

	doc, err := svc.update(ctx, docstore.Fees, id, partial)
	if err != nil {
		return Written{}, err
	}
	fee := school.FeeFromDoc(doc)
	return svc.assess(ctx, docstore.Fees, fee, fee.StudentID), nil
}

func (svc *Service) DeleteFee(ctx context.Context, id string) error {
	return svc.delete(ctx, docstore.Fees, id)
}

// ListFees returns the matching fees, latest due date first.
func (svc *Service) ListFees(ctx context.Context, f RecordFilter) []school.Fee {
	out := make([]school.Fee, 0)
	for _, fee := range school.Fees(svc.list(ctx, docstore.Fees, f)) {
		if f.inRange(fee.DueDate) && (f.Status == "" || fee.Status == f.Status) {
			out = append(out, fee)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DueDate > out[j].DueDate })
	return out
}

// Exams

func (svc *Service) CreateExam(ctx context.Context, ne NewExam) (Written, error) {
	if ne.StudentID == "" {
		return Written{}, errMissingStuID
	}
	exam := school.Exam{
		StudentID: ne.StudentID,
		Subject:   ne.Subject,
		Total:     school.DefaultExamTotal,
		ExamDate:  ne.ExamDate,
		CreatedAt: svc.createdAt(),
	}
	if exam.Subject == "" {
		exam.Subject = school.DefaultExamSubject
	}
	if ne.Score != nil {
		exam.Score = *ne.Score
	}
	if ne.Total != nil {
		exam.Total = *ne.Total
	}
	if exam.ExamDate == "" {
		exam.ExamDate = svc.today()
	}

	doc, err := svc.add(ctx, docstore.Exams, exam.Data())
	if err != nil {
		return Written{}, err
	}
	exam = school.ExamFromDoc(doc)
	return svc.assess(ctx, docstore.Exams, exam, exam.StudentID), nil
}

func (svc *Service) UpdateExam(ctx context.Context, id string, ue UpdateExam) (Written, error) {
	doc, err := svc.update(ctx, docstore.Exams, id, ue.data())
	if err != nil {
		return Written{}, err
	}
	exam := school.ExamFromDoc(doc)
	return svc.assess(ctx, docstore.Exams, exam, exam.StudentID), nil
}

func (svc *Service) DeleteExam(ctx context.Context, id string) error {
	return svc.delete(ctx, docstore.Exams, id)
}

// ListExams returns the matching exam results, latest first. The subject match ignores case.
func (svc *Service) ListExams(ctx context.Context, f RecordFilter) []school.Exam {
	out := make([]school.Exam, 0)
	for _, exam := range school.Exams(svc.list(ctx, docstore.Exams, f)) {
		if f.inRange(exam.ExamDate) && (f.Subject == "" || strings.EqualFold(exam.Subject, f.Subject)) {
			out = append(out, exam)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExamDate > out[j].ExamDate })
	return out
}

// Notifications

// ListNotifications returns the latest notifications, newest first.
func (svc *Service) ListNotifications(ctx context.Context, unreadOnly bool) []school.Notification {
	svc.cache.StartWatch(docstore.Notifications)

	out := make([]school.Notification, 0)
	for _, n := range school.Notifications(svc.cache.GetCached(ctx, docstore.Notifications, svc.notifTTL)) {
		if !unreadOnly || !n.Read {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	if len(out) > NotificationsLimit {
		out = out[:NotificationsLimit]
	}
	return out
}

func (svc *Service) MarkNotificationRead(ctx context.Context, id string) (school.Notification, error) {
	doc, err := svc.update(ctx, docstore.Notifications, id, map[string]interface{}{"read": true})
	if err != nil {
		return school.Notification{}, err
	}
	svc.cache.Refresh(ctx, docstore.Notifications)
	return school.NotificationFromDoc(doc), nil
}

// Students

// UpsertStudent creates or replaces the profile of a student.
func (svc *Service) UpsertStudent(ctx context.Context, studentID string, ns NewStudent) (school.Student, error) {
	studentID = core.CleanString(studentID)
	if studentID == "" {
		return school.Student{}, errMissingStuID
	}
	st := school.Student{
		StudentID: studentID,
		FirstName: ns.FirstName,
		LastName:  ns.LastName,
		Email:     core.CleanString(ns.Email, true /* lower */),
		Phone:     ns.Phone,
		Course:    ns.Course,
	}

	if _, ok := svc.gw.Get(ctx, docstore.Students, studentID); ok {
		if !svc.gw.Update(ctx, docstore.Students, studentID, st.Data()) {
			return school.Student{}, errors.Wrapf(errWriteFailed, "updating student %s", studentID)
		}
		return st, nil
	}
	if svc.gw.Add(ctx, docstore.Students, st.Data(), studentID) == "" {
		return school.Student{}, errors.Wrapf(errWriteFailed, "adding student %s", studentID)
	}
	return st, nil
}

func (svc *Service) GetStudent(ctx context.Context, studentID string) (school.Student, error) {
	doc, err := svc.gw.Lookup(ctx, docstore.Students, studentID)
	if err != nil {
		return school.Student{}, lookupErr(err)
	}
	return school.StudentFromDoc(doc), nil
}
