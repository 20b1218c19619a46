package risk

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/minierp/core/school"
)

func TestScoreAndLevel(t *testing.T) {
	tests := []struct {
		attendance float64
		overdue    bool
		failing    bool
		wantScore  int
		wantLevel  Level
	}{
		{49, false, false, 2, Medium},
		{74, true, false, 2, Medium},
		{30, true, true, 5, High},
		{90, false, false, 0, Low},
		{50, false, false, 1, Medium},
		{75, false, false, 0, Low},
		{100, true, false, 1, Medium},
		{100, false, true, 2, Medium},
		{80, true, true, 3, High},
		{74.99, false, true, 3, High},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v/%v/%v", tt.attendance, tt.overdue, tt.failing), func(t *testing.T) {
			score, level := ScoreAndLevel(tt.attendance, tt.overdue, tt.failing)
			assert.Equal(t, tt.wantScore, score)
			assert.Equal(t, tt.wantLevel, level)
		})
	}
}

func TestAttendancePercent(t *testing.T) {
	assert.Equal(t, 100.0, AttendancePercent(nil))
	assert.Equal(t, 100.0, AttendancePercent([]school.Attendance{}))

	records := func(total, present int) []school.Attendance {
		out := make([]school.Attendance, total)
		for i := 0; i < present; i++ {
			out[i].Present = true
		}
		return out
	}
	assert.Equal(t, 80.0, AttendancePercent(records(10, 8)))
	assert.Equal(t, 66.67, AttendancePercent(records(3, 2)))
	assert.Equal(t, 0.0, AttendancePercent(records(4, 0)))
}

func TestIsFailing(t *testing.T) {
	exam := func(score, total float64) school.Exam {
		return school.Exam{Score: score, Total: total, Evaluable: total != 0}
	}
	for total := 1.0; total <= 200; total += 7 {
		for score := 0.0; score <= total; score++ {
			want := score/total*100 < 40.0
			if got := IsFailing([]school.Exam{exam(score, total)}); got != want {
				t.Fatalf("IsFailing(%v/%v) = %v; want %v", score, total, got, want)
			}
		}
	}
	assert.False(t, IsFailing([]school.Exam{exam(40, 100)}), "40% is not failing")
	assert.True(t, IsFailing([]school.Exam{exam(39.99, 100)}))
	assert.False(t, IsFailing([]school.Exam{{Score: 0, Total: 0}}), "not evaluable exams are skipped")
	assert.True(t, IsFailing([]school.Exam{{Score: 1, Total: 0}, exam(10, 100)}))
}

func TestHasOverdueFees(t *testing.T) {
	today := "2024-05-10"
	assert.False(t, HasOverdueFees(nil, today))
	assert.True(t, HasOverdueFees([]school.Fee{
		{DueDate: "2024-05-20", Status: school.StatusPending},
		{DueDate: "2024-05-09", Status: school.StatusPending},
	}, today))
	assert.False(t, HasOverdueFees([]school.Fee{{DueDate: "2024-05-09", Status: school.StatusCompleted}}, today))
}

func TestAssess(t *testing.T) {
	tests := []struct {
		name        string
		attendance  float64
		overdue     bool
		failing     bool
		wantReasons []string
	}{
		{"not at risk", 100, false, false, []string{}},
		{"every reason", 66.67, true, true, []string{"Attendance 66.67% < 75.0%", "Overdue fee(s)", "Failing grades"}},
		{"whole percent keeps a decimal", 50, false, false, []string{"Attendance 50.0% < 75.0%"}},
		{"fees and grades", 80, true, true, []string{"Overdue fee(s)", "Failing grades"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Assess("S1", tt.attendance, tt.overdue, tt.failing)
			assert.Equal(t, tt.wantReasons, a.Reasons)
			assert.Equal(t, len(tt.wantReasons) > 0, a.AtRisk)

			score, level := ScoreAndLevel(tt.attendance, tt.overdue, tt.failing)
			assert.Equal(t, score, a.RiskScore)
			assert.Equal(t, level, a.RiskLevel)
		})
	}
}

func TestSortAssessments(t *testing.T) {
	items := []Assessment{
		{StudentID: "A", AttendancePercent: 90, Reasons: []string{"x"}},
		{StudentID: "B", AttendancePercent: 40, Reasons: []string{"x", "y"}},
		{StudentID: "C", AttendancePercent: 60, Reasons: []string{"x"}},
		{StudentID: "D", AttendancePercent: 60, Reasons: []string{"x"}},
	}
	SortAssessments(items)
	ids := make([]string, 0, len(items))
	for _, a := range items {
		ids = append(ids, a.StudentID)
	}
	assert.Equal(t, []string{"B", "C", "D", "A"}, ids)
}
