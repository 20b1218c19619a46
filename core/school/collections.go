package school

import "github.com/trezcool/minierp/core/docstore"

// Decoders of whole snapshots. Documents without a student id are kept: callers filter.

func Attendances(docs []docstore.Document) []Attendance {
	out := make([]Attendance, 0, len(docs))
	for _, d := range docs {
		out = append(out, AttendanceFromDoc(d))
	}
	return out
}

func Fees(docs []docstore.Document) []Fee {
	out := make([]Fee, 0, len(docs))
	for _, d := range docs {
		out = append(out, FeeFromDoc(d))
	}
	return out
}

func Exams(docs []docstore.Document) []Exam {
	out := make([]Exam, 0, len(docs))
	for _, d := range docs {
		out = append(out, ExamFromDoc(d))
	}
	return out
}

func Leaves(docs []docstore.Document) []Leave {
	out := make([]Leave, 0, len(docs))
	for _, d := range docs {
		out = append(out, LeaveFromDoc(d))
	}
	return out
}

func HostelRequests(docs []docstore.Document) []HostelRequest {
	out := make([]HostelRequest, 0, len(docs))
	for _, d := range docs {
		out = append(out, HostelRequestFromDoc(d))
	}
	return out
}

func Notifications(docs []docstore.Document) []Notification {
	out := make([]Notification, 0, len(docs))
	for _, d := range docs {
		out = append(out, NotificationFromDoc(d))
	}
	return out
}

// Signals are the records the risk of a student is assessed on.
type Signals struct {
	Attendance []Attendance
	Fees       []Fee
	Exams      []Exam
}

// ForStudent keeps the records of a single student.
func (s Signals) ForStudent(sid string) Signals {
	var out Signals
	for _, a := range s.Attendance {
		if a.StudentID == sid {
			out.Attendance = append(out.Attendance, a)
		}
	}
	for _, f := range s.Fees {
		if f.StudentID == sid {
			out.Fees = append(out.Fees, f)
		}
	}
	for _, e := range s.Exams {
		if e.StudentID == sid {
			out.Exams = append(out.Exams, e)
		}
	}
	return out
}

// StudentIDs returns the distinct non-empty student ids of the records, in first-seen order.
func (s Signals) StudentIDs() []string {
	seen := make(map[string]bool)
	ids := make([]string, 0)
	add := func(sid string) {
		if sid != "" && !seen[sid] {
			seen[sid] = true
			ids = append(ids, sid)
		}
	}
	for _, a := range s.Attendance {
		add(a.StudentID)
	}
	for _, f := range s.Fees {
		add(f.StudentID)
	}
	for _, e := range s.Exams {
		add(e.StudentID)
	}
	return ids
}

// ByStudent groups the records by student id; records without one are dropped.
func (s Signals) ByStudent() map[string]Signals {
	groups := make(map[string]Signals)
	for _, a := range s.Attendance {
		if a.StudentID != "" {
			g := groups[a.StudentID]
			g.Attendance = append(g.Attendance, a)
			groups[a.StudentID] = g
		}
	}
	for _, f := range s.Fees {
		if f.StudentID != "" {
			g := groups[f.StudentID]
			g.Fees = append(g.Fees, f)
			groups[f.StudentID] = g
		}
	}
	for _, e := range s.Exams {
		if e.StudentID != "" {
			g := groups[e.StudentID]
			g.Exams = append(g.Exams, e)
			groups[e.StudentID] = g
		}
	}
	return groups
}
