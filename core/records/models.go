package records

import (
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/minierp/core"
	"github.com/trezcool/minierp/core/risk"
	"github.com/trezcool/minierp/core/school"
)

// NewAttendance contains information needed to record an attendance.
type NewAttendance struct {
	StudentID string `json:"student_id" validate:"required"`
	Date      string `json:"date" validate:"omitempty,isodate"` // default today
	Present   *bool  `json:"present"`                           // default true
	Subject   string `json:"subject"`
	Period    string `json:"period"`
}

func (na *NewAttendance) Validate(validate *validator.Validate) error {
	na.StudentID = core.CleanString(na.StudentID)
	na.Date = core.CleanString(na.Date)
	na.Subject = core.CleanString(na.Subject)
	na.Period = core.CleanString(na.Period)
	return validate.Struct(na)
}

// UpdateAttendance defines what may be changed on an attendance record; nil fields are kept.
type UpdateAttendance struct {
	Date    *string `json:"date" validate:"omitempty,isodate"`
	Present *bool   `json:"present"`
	Subject *string `json:"subject"`
	Period  *string `json:"period"`
}

func (ua *UpdateAttendance) Validate(validate *validator.Validate) error {
	return validate.Struct(ua)
}

func (ua UpdateAttendance) data() map[string]interface{} {
	data := make(map[string]interface{})
	if ua.Date != nil {
		data["date"] = core.CleanString(*ua.Date)
	}
	if ua.Present != nil {
		data["present"] = *ua.Present
	}
	if ua.Subject != nil {
		data["subject"] = core.CleanString(*ua.Subject)
	}
	if ua.Period != nil {
		data["period"] = core.CleanString(*ua.Period)
	}
	return data
}

// NewFee contains information needed to record a fee.
type NewFee struct {
	StudentID string  `json:"student_id" validate:"required"`
	Amount    float64 `json:"amount" validate:"gte=0"`
	Status    string  `json:"status" validate:"omitempty,oneof=pending completed failed"` // default pending
	FeeType   string  `json:"fee_type"`                                                   // default Tuition
	DueDate   string  `json:"due_date" validate:"omitempty,isodate"`                      // default today
}

func (nf *NewFee) Validate(validate *validator.Validate) error {
	nf.StudentID = core.CleanString(nf.StudentID)
	nf.Status = core.CleanString(nf.Status, true /* lower */)
	nf.FeeType = core.CleanString(nf.FeeType)
	nf.DueDate = core.CleanString(nf.DueDate)
	return validate.Struct(nf)
}

// UpdateFee defines what may be changed on a fee; nil fields are kept.
type UpdateFee struct {
	Amount  *float64 `json:"amount" validate:"omitempty,gte=0"`
	Status  *string  `json:"status" validate:"omitempty,oneof=pending completed failed"`
	FeeType *string  `json:"fee_type"`
	DueDate *string  `json:"due_date" validate:"omitempty,isodate"`
	PaidAt  *string  `json:"paid_at" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

func (uf *UpdateFee) Validate(validate *validator.Validate) error {
	if uf.Status != nil {
		s := core.CleanString(*uf.Status, true /* lower */)
		uf.Status = &s
	}
	return validate.Struct(uf)
}

func (uf UpdateFee) data() map[string]interface{} {
	data := make(map[string]interface{})
	if uf.Amount != nil {
		data["amount"] = *uf.Amount
	}
	if uf.Status != nil {
		data["status"] = *uf.Status
	}
	if uf.FeeType != nil {
		data["fee_type"] = core.CleanString(*uf.FeeType)
	}
	if uf.DueDate != nil {
		data["due_date"] = core.CleanString(*uf.DueDate)
	}
	if uf.PaidAt != nil {
		data["paid_at"] = *uf.PaidAt
	}
	return data
}

// NewExam contains information needed to record an exam result.
type NewExam struct {
	StudentID string   `json:"student_id" validate:"required"`
	Subject   string   `json:"subject"` // default General
	Score     *float64 `json:"score" validate:"required,gte=0"`
	Total     *float64 `json:"total" validate:"omitempty,gt=0"` // default 100
	ExamDate  string   `json:"exam_date" validate:"omitempty,isodate"`
}

func (ne *NewExam) Validate(validate *validator.Validate) error {
	ne.StudentID = core.CleanString(ne.StudentID)
	ne.Subject = core.CleanString(ne.Subject)
	ne.ExamDate = core.CleanString(ne.ExamDate)
	return validate.Struct(ne)
}

// UpdateExam defines what may be changed on an exam result; nil fields are kept.
type UpdateExam struct {
	Subject  *string  `json:"subject"`
	Score    *float64 `json:"score" validate:"omitempty,gte=0"`
	Total    *float64 `json:"total" validate:"omitempty,gt=0"`
	ExamDate *string  `json:"exam_date" validate:"omitempty,isodate"`
}

func (ue *UpdateExam) Validate(validate *validator.Validate) error {
	return validate.Struct(ue)
}

func (ue UpdateExam) data() map[string]interface{} {
	data := make(map[string]interface{})
	if ue.Subject != nil {
		data["subject"] = core.CleanString(*ue.Subject)
	}
	if ue.Score != nil {
		data["score"] = *ue.Score
	}
	if ue.Total != nil {
		data["total"] = *ue.Total
	}
	if ue.ExamDate != nil {
		data["exam_date"] = core.CleanString(*ue.ExamDate)
	}
	return data
}

// RecordFilter narrows record listings. Dates are inclusive bounds.
type RecordFilter struct {
	StudentID string `query:"student_id" json:"student_id"`
	From      string `query:"from" json:"from" validate:"omitempty,isodate"`
	To        string `query:"to" json:"to" validate:"omitempty,isodate"`
	Status    string `query:"status" json:"status"`   // fees only
	Subject   string `query:"subject" json:"subject"` // exams only
}

func (rf *RecordFilter) Validate(validate *validator.Validate) error {
	rf.StudentID = core.CleanString(rf.StudentID)
	rf.From = core.CleanString(rf.From)
	rf.To = core.CleanString(rf.To)
	rf.Status = core.CleanString(rf.Status, true /* lower */)
	rf.Subject = core.CleanString(rf.Subject)
	return validate.Struct(rf)
}

// inRange reports whether date is within the bounds. Undated records only match unbounded filters.
func (rf RecordFilter) inRange(date string) bool {
	if date == "" {
		return rf.From == "" && rf.To == ""
	}
	if rf.From != "" && date < rf.From {
		return false
	}
	if rf.To != "" && date > rf.To {
		return false
	}
	return true
}

// NewStudent is the profile of a student, keyed by its student id.
type NewStudent struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email" validate:"omitempty,email"`
	Phone     string `json:"phone"`
	Course    string `json:"course"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.FirstName = core.CleanString(ns.FirstName)
	ns.LastName = core.CleanString(ns.LastName)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	ns.Phone = core.CleanString(ns.Phone)
	ns.Course = core.CleanString(ns.Course)
	return validate.Struct(ns)
}

// Written is the outcome of a record write: the stored record and the new assessment of its
// student. Notification is set when the write flagged the student.
type Written struct {
	Record       interface{}          `json:"record"`
	Assessment   risk.Assessment      `json:"assessment"`
	Notification *school.Notification `json:"notification,omitempty"`
}
