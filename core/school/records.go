// Package school defines the typed records stored in the document collections.
package school

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/minierp/core/docstore"
)

// Fee, leave and hostel request statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

const (
	DefaultFeeType     = "Tuition"
	DefaultExamSubject = "General"
	DefaultExamTotal   = 100.0

	NotificationRiskAlert = "risk_alert"
)

type Attendance struct {
	ID        string `json:"id"`
	StudentID string `json:"student_id"`
	Date      string `json:"date"`
	Present   bool   `json:"present"`
	Subject   string `json:"subject,omitempty"`
	Period    string `json:"period,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

func AttendanceFromDoc(doc docstore.Document) Attendance {
	present, _ := boolean(doc, "present")
	return Attendance{
		ID:        doc.ID,
		StudentID: str(doc, "student_id"),
		Date:      date(doc, "date"),
		Present:   present,
		Subject:   str(doc, "subject"),
		Period:    str(doc, "period"),
		CreatedAt: str(doc, "created_at"),
	}
}

func (a Attendance) Data() map[string]interface{} {
	return map[string]interface{}{
		"student_id": a.StudentID,
		"date":       a.Date,
		"present":    a.Present,
		"subject":    a.Subject,
		"period":     a.Period,
		"created_at": a.CreatedAt,
	}
}

type Fee struct {
	ID        string          `json:"id"`
	StudentID string          `json:"student_id"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
	FeeType   string          `json:"fee_type"`
	DueDate   string          `json:"due_date"`
	CreatedAt string          `json:"created_at,omitempty"`
	PaidAt    null.Time       `json:"paid_at"`
}

func FeeFromDoc(doc docstore.Document) Fee {
	fee := Fee{
		ID:        doc.ID,
		StudentID: str(doc, "student_id"),
		Status:    status(doc),
		FeeType:   str(doc, "fee_type"),
		DueDate:   date(doc, "due_date"),
		CreatedAt: str(doc, "created_at"),
	}
	if amount, ok := number(doc, "amount"); ok {
		fee.Amount = decimal.NewFromFloat(amount)
	}
	if fee.FeeType == "" {
		fee.FeeType = DefaultFeeType
	}
	if paid := str(doc, "paid_at"); paid != "" {
		if t, err := time.Parse(time.RFC3339, paid); err == nil {
			fee.PaidAt = null.TimeFrom(t)
		}
	}
	return fee
}

func (f Fee) Data() map[string]interface{} {
	amount, _ := f.Amount.Float64()
	data := map[string]interface{}{
		"student_id": f.StudentID,
		"amount":     amount,
		"status":     f.Status,
		"fee_type":   f.FeeType,
		"due_date":   f.DueDate,
		"created_at": f.CreatedAt,
		"paid_at":    nil,
	}
	if f.PaidAt.Valid {
		data["paid_at"] = f.PaidAt.Time.UTC().Format(time.RFC3339)
	}
	return data
}

func (f Fee) Completed() bool {
	return f.Status == StatusCompleted
}

// Overdue reports whether the fee is past due (ISO dates compare as strings) and not completed.
func (f Fee) Overdue(today string) bool {
	return f.DueDate != "" && f.DueDate < today && !f.Completed()
}

type Exam struct {
	ID        string  `json:"id"`
	StudentID string  `json:"student_id"`
	Subject   string  `json:"subject"`
	Score     float64 `json:"score"`
	Total     float64 `json:"total"`
	ExamDate  string  `json:"exam_date"`
	CreatedAt string  `json:"created_at,omitempty"`

	// Evaluable is false when the score is missing or not numeric, or the total is zero or not numeric.
	Evaluable bool `json:"-"`
}

func ExamFromDoc(doc docstore.Document) Exam {
	exam := Exam{
		ID:        doc.ID,
		StudentID: str(doc, "student_id"),
		Subject:   str(doc, "subject"),
		ExamDate:  date(doc, "exam_date"),
		CreatedAt: str(doc, "created_at"),
		Total:     DefaultExamTotal,
	}
	if exam.Subject == "" {
		exam.Subject = DefaultExamSubject
	}

	score, scoreOK := number(doc, "score")
	totalOK := true
	if v, present := doc.Get("total"); present && v != nil {
		exam.Total, totalOK = number(doc, "total")
	}
	exam.Score = score
	exam.Evaluable = scoreOK && totalOK && exam.Total != 0
	return exam
}

func (e Exam) Data() map[string]interface{} {
	return map[string]interface{}{
		"student_id": e.StudentID,
		"subject":    e.Subject,
		"score":      e.Score,
		"total":      e.Total,
		"exam_date":  e.ExamDate,
		"created_at": e.CreatedAt,
	}
}

// Percentage is score/total*100; only meaningful for evaluable exams.
func (e Exam) Percentage() float64 {
	if !e.Evaluable {
		return 0
	}
	return e.Score / e.Total * 100
}

type Leave struct {
	ID        string `json:"id"`
	StudentID string `json:"student_id"`
	Status    string `json:"status"`
	StartDate string `json:"start_date"`
	CreatedAt string `json:"created_at"`
}

func LeaveFromDoc(doc docstore.Document) Leave {
	return Leave{
		ID:        doc.ID,
		StudentID: str(doc, "student_id"),
		Status:    status(doc),
		StartDate: date(doc, "start_date"),
		CreatedAt: date(doc, "created_at"),
	}
}

// WindowDate is the date the leave is filtered on: its creation, else its start.
func (l Leave) WindowDate() string {
	if l.CreatedAt != "" {
		return l.CreatedAt
	}
	return l.StartDate
}

type HostelRequest struct {
	ID        string `json:"id"`
	StudentID string `json:"student_id"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

func HostelRequestFromDoc(doc docstore.Document) HostelRequest {
	return HostelRequest{
		ID:        doc.ID,
		StudentID: str(doc, "student_id"),
		Status:    status(doc),
		CreatedAt: date(doc, "created_at"),
	}
}

type Notification struct {
	ID          string   `json:"id"`
	StudentID   string   `json:"student_id"`
	StudentName string   `json:"student_name"`
	Type        string   `json:"type"`
	Message     string   `json:"message"`
	Reasons     []string `json:"reasons"`
	CreatedAt   string   `json:"created_at"`
	Read        bool     `json:"read"`
}

func NotificationFromDoc(doc docstore.Document) Notification {
	read, _ := boolean(doc, "read")
	n := Notification{
		ID:          doc.ID,
		StudentID:   str(doc, "student_id"),
		StudentName: str(doc, "student_name"),
		Type:        str(doc, "type"),
		Message:     str(doc, "message"),
		Reasons:     stringList(doc, "reasons"),
		CreatedAt:   str(doc, "created_at"),
		Read:        read,
	}
	if n.Reasons == nil {
		n.Reasons = []string{}
	}
	return n
}

func (n Notification) Data() map[string]interface{} {
	return map[string]interface{}{
		"student_id":   n.StudentID,
		"student_name": n.StudentName,
		"type":         n.Type,
		"message":      n.Message,
		"reasons":      n.Reasons,
		"created_at":   n.CreatedAt,
		"read":         n.Read,
	}
}

// Student is a profile of the students collection, keyed by student id.
type Student struct {
	StudentID string `json:"student_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Course    string `json:"course"`
}

func StudentFromDoc(doc docstore.Document) Student {
	s := Student{
		StudentID: str(doc, "student_id"),
		FirstName: str(doc, "first_name"),
		LastName:  str(doc, "last_name"),
		Email:     str(doc, "email"),
		Phone:     str(doc, "phone"),
		Course:    str(doc, "course"),
	}
	if s.StudentID == "" {
		s.StudentID = doc.ID
	}
	return s
}

func (s Student) Data() map[string]interface{} {
	return map[string]interface{}{
		"student_id": s.StudentID,
		"first_name": s.FirstName,
		"last_name":  s.LastName,
		"email":      s.Email,
		"phone":      s.Phone,
		"course":     s.Course,
	}
}

// FullName joins the first and last names, falling back to the student id.
func (s Student) FullName() string {
	name := s.FirstName
	if s.LastName != "" {
		if name != "" {
			name += " "
		}
		name += s.LastName
	}
	if name == "" {
		return s.StudentID
	}
	return name
}
