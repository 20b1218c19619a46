package risk

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/minierp/core"
	"github.com/trezcool/minierp/core/cache"
	"github.com/trezcool/minierp/core/docstore"
	"github.com/trezcool/minierp/core/school"
)

// Evaluator assesses students from the cached signal collections.
type Evaluator struct {
	cache *cache.Cache
	gw    *docstore.Gateway
	ttl   time.Duration

	// Today returns the current date as YYYY-MM-DD; replaceable in tests.
	Today func() string
}

func NewEvaluator(c *cache.Cache, gw *docstore.Gateway, ttl time.Duration) *Evaluator {
	return &Evaluator{
		cache: c,
		gw:    gw,
		ttl:   ttl,
		Today: core.Today,
	}
}

// Signals returns the attendance, fee and exam records of every student.
func (ev *Evaluator) Signals(ctx context.Context) school.Signals {
	for _, col := range []string{docstore.Attendance, docstore.Fees, docstore.Exams} {
		ev.cache.StartWatch(col)
	}
	return school.Signals{
		Attendance: school.Attendances(ev.cache.GetCached(ctx, docstore.Attendance, ev.ttl)),
		Fees:       school.Fees(ev.cache.GetCached(ctx, docstore.Fees, ev.ttl)),
		Exams:      school.Exams(ev.cache.GetCached(ctx, docstore.Exams, ev.ttl)),
	}
}

func (ev *Evaluator) Evaluate(ctx context.Context, studentID string) Assessment {
	return AssessSignals(studentID, ev.Signals(ctx).ForStudent(studentID), ev.Today())
}

// EvaluateAll assesses every student having any signal record and keeps those at risk,
// most reasons first, then lowest attendance.
func (ev *Evaluator) EvaluateAll(ctx context.Context) []Assessment {
	today := ev.Today()
	out := make([]Assessment, 0)
	for sid, s := range ev.Signals(ctx).ByStudent() {
		a := AssessSignals(sid, s, today)
		if a.AtRisk {
			out = append(out, a)
		}
	}
	SortAssessments(out)
	return out
}

// SortAssessments orders by number of reasons desc, attendance asc, then student id.
func SortAssessments(items []Assessment) {
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if len(a.Reasons) != len(b.Reasons) {
			return len(a.Reasons) > len(b.Reasons)
		}
		if a.AttendancePercent != b.AttendancePercent {
			return a.AttendancePercent < b.AttendancePercent
		}
		return a.StudentID < b.StudentID
	})
}

// ResolveStudentID maps a caller to its student id: the one carried by its token,
// else the student profile registered with its email.
func (ev *Evaluator) ResolveStudentID(ctx context.Context, p core.Principal) (string, bool) {
	if p.StudentID != "" {
		return p.StudentID, true
	}
	email := core.CleanString(p.Email, true)
	if email == "" {
		return "", false
	}
	docs := ev.gw.Query(ctx, docstore.Students, docstore.Filter{Field: "email", Op: docstore.OpEqual, Value: email})
	for _, doc := range docs {
		if st := school.StudentFromDoc(doc); st.StudentID != "" {
			return st.StudentID, true
		}
	}
	return "", false
}
