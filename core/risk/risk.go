// Package risk assesses whether a student is at risk, from attendance, fees and exam results.
package risk

import (
	"math"
	"strconv"
	"strings"

	"github.com/trezcool/minierp/core/school"
)

type Level string

const (
	Low    Level = "Low"
	Medium Level = "Medium"
	High   Level = "High"
)

// Thresholds of the scoring heuristic.
const (
	AttendanceCritical = 50.0 // below: +2
	AttendanceWarning  = 75.0 // below: +1, and an attendance reason
	FailingPercent     = 40.0 // exam percentage below: failing
)

const (
	ReasonOverdueFees   = "Overdue fee(s)"
	ReasonFailingGrades = "Failing grades"
)

// Assessment is the risk of one student. It is recomputed on every request.
type Assessment struct {
	StudentID         string   `json:"student_id"`
	AttendancePercent float64  `json:"attendance_percent"`
	OverdueFees       bool     `json:"overdue_fees"`
	FailingGrades     bool     `json:"failing_grades"`
	Reasons           []string `json:"reasons"`
	RiskScore         int      `json:"risk_score"`
	RiskLevel         Level    `json:"risk_level"`
	AtRisk            bool     `json:"at_risk"`
}

// AttendancePercent is the share of present records, in percent rounded to 2 decimals.
// A student without records is at 100.
func AttendancePercent(records []school.Attendance) float64 {
	if len(records) == 0 {
		return 100.0
	}
	var present int
	for _, r := range records {
		if r.Present {
			present++
		}
	}
	return round2(float64(present) / float64(len(records)) * 100)
}

// HasOverdueFees reports whether any fee is past due as of today (YYYY-MM-DD) and not completed.
func HasOverdueFees(fees []school.Fee, today string) bool {
	for _, f := range fees {
		if f.Overdue(today) {
			return true
		}
	}
	return false
}

// IsFailing reports whether any evaluable exam is strictly below 40%.
func IsFailing(exams []school.Exam) bool {
	for _, e := range exams {
		if e.Evaluable && e.Percentage() < FailingPercent {
			return true
		}
	}
	return false
}

// ScoreAndLevel is the risk heuristic: +2 when attendance < 50 (else +1 when < 75),
// +1 for overdue fees, +2 for failing grades. 3 and more is High, 1 and 2 Medium, 0 Low.
func ScoreAndLevel(attendance float64, overdue, failing bool) (int, Level) {
	var score int
	if attendance < AttendanceCritical {
		score += 2
	} else if attendance < AttendanceWarning {
		score++
	}
	if overdue {
		score++
	}
	if failing {
		score += 2
	}

	switch {
	case score >= 3:
		return score, High
	case score >= 1:
		return score, Medium
	}
	return score, Low
}

// Assess builds the assessment of a student from its already computed signals.
func Assess(studentID string, attendance float64, overdue, failing bool) Assessment {
	reasons := make([]string, 0, 3)
	if attendance < AttendanceWarning {
		reasons = append(reasons, AttendanceReason(attendance))
	}
	if overdue {
		reasons = append(reasons, ReasonOverdueFees)
	}
	if failing {
		reasons = append(reasons, ReasonFailingGrades)
	}

	score, level := ScoreAndLevel(attendance, overdue, failing)
	return Assessment{
		StudentID:         studentID,
		AttendancePercent: attendance,
		OverdueFees:       overdue,
		FailingGrades:     failing,
		Reasons:           reasons,
		RiskScore:         score,
		RiskLevel:         level,
		AtRisk:            len(reasons) > 0,
	}
}

// AssessSignals assesses a student from its records.
func AssessSignals(studentID string, s school.Signals, today string) Assessment {
	return Assess(studentID, AttendancePercent(s.Attendance), HasOverdueFees(s.Fees, today), IsFailing(s.Exams))
}

// AttendanceReason formats the low attendance reason, e.g. "Attendance 66.67% < 75.0%".
func AttendanceReason(attendance float64) string {
	return "Attendance " + formatPercent(attendance) + "% < " + formatPercent(AttendanceWarning) + "%"
}

// formatPercent prints the shortest representation, keeping one decimal for whole numbers.
func formatPercent(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
