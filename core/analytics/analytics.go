// Package analytics builds the dashboard aggregates from the cached collections.
package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trezcool/minierp/core/risk"
	"github.com/trezcool/minierp/core/school"
)

// Bucket labels.
const (
	AttendanceBelow50 = "<50%"
	Attendance50To75  = "50-75%"
	Attendance75To90  = "75-90%"
	Attendance90To100 = "90-100%"

	ExamFail    = "0-40% (Fail)"
	Exam40To60  = "40-60%"
	Exam60To80  = "60-80%"
	Exam80To100 = "80-100%"

	ReasonAttendance = "Attendance <75%"
	ReasonOverdue    = "Overdue fees"
	ReasonFailing    = "Failing grades"
)

// TrendMonths is the number of months of the risk trend, the current one included.
const TrendMonths = 6

type (
	// Params scopes the aggregates. Empty values do not filter.
	Params struct {
		From      string // YYYY-MM-DD, inclusive
		To        string // YYYY-MM-DD, inclusive
		StudentID string
	}

	Buckets map[string]int

	TimePoint struct {
		Date   string  `json:"date"`
		Amount float64 `json:"amount"`
	}

	FeeMetrics struct {
		StatusCounts        map[string]int `json:"status_counts"`
		TotalCollected      float64        `json:"total_collected"`
		TotalPending        float64        `json:"total_pending"`
		OverdueCount        int            `json:"overdue_count"`
		CollectedTimeseries []TimePoint    `json:"collected_timeseries"`
	}

	RiskReasons struct {
		ReasonsCount map[string]int `json:"reasons_count"`
		AtRiskCount  int            `json:"at_risk_count"`
	}

	TrendPoint struct {
		Month  string `json:"month"`
		High   int    `json:"high"`
		Medium int    `json:"medium"`
		Low    int    `json:"low"`
	}

	Analytics struct {
		AttendanceDistribution Buckets        `json:"attendance_distribution"`
		Fees                   FeeMetrics     `json:"fees"`
		ExamsDistribution      Buckets        `json:"exams_distribution"`
		LeavesStatus           map[string]int `json:"leaves_status"`
		HostelStatus           map[string]int `json:"hostel_status"`
		Risk                   RiskReasons    `json:"risk"`
		RiskTrend              []TrendPoint   `json:"risk_trend"`
	}
)

// InRange reports whether an ISO date is within the window. Records without a date are in.
func (p Params) InRange(date string) bool {
	if date == "" {
		return true
	}
	return (p.From == "" || date >= p.From) && (p.To == "" || date <= p.To)
}

type tally struct {
	total, present int
}

func (t tally) percent() float64 {
	return float64(t.present) * 100 / float64(t.total)
}

// presentPercent is the unrounded attendance percent of non-empty records.
func presentPercent(records []school.Attendance) float64 {
	var present int
	for _, a := range records {
		if a.Present {
			present++
		}
	}
	return float64(present) * 100 / float64(len(records))
}

func attendanceTallies(records []school.Attendance, keep func(school.Attendance) bool) map[string]tally {
	tallies := make(map[string]tally)
	for _, a := range records {
		if a.StudentID == "" || !keep(a) {
			continue
		}
		t := tallies[a.StudentID]
		t.total++
		if a.Present {
			t.present++
		}
		tallies[a.StudentID] = t
	}
	return tallies
}

// AttendanceDistribution buckets the in-window attendance percent of every student having
// in-window records.
func AttendanceDistribution(records []school.Attendance, p Params) Buckets {
	buckets := Buckets{AttendanceBelow50: 0, Attendance50To75: 0, Attendance75To90: 0, Attendance90To100: 0}
	tallies := attendanceTallies(records, func(a school.Attendance) bool { return p.InRange(a.Date) })
	for _, t := range tallies {
		buckets[attendanceBucket(t.percent())]++
	}
	return buckets
}

func attendanceBucket(pct float64) string {
	switch {
	case pct < 50:
		return AttendanceBelow50
	case pct < 75:
		return Attendance50To75
	case pct < 90:
		return Attendance75To90
	}
	return Attendance90To100
}

// ComputeFeeMetrics sums in-window fees (by due date). The collected series is keyed by due date,
// fees without one are counted today.
func ComputeFeeMetrics(fees []school.Fee, p Params, today string) FeeMetrics {
	m := FeeMetrics{StatusCounts: make(map[string]int)}
	collected, pending := decimal.Zero, decimal.Zero
	byDate := make(map[string]decimal.Decimal)

	for _, f := range fees {
		if !p.InRange(f.DueDate) {
			continue
		}
		m.StatusCounts[f.Status]++
		if f.Completed() {
			collected = collected.Add(f.Amount)
			key := f.DueDate
			if key == "" {
				key = today
			}
			byDate[key] = byDate[key].Add(f.Amount)
		} else {
			pending = pending.Add(f.Amount)
			if f.Overdue(today) {
				m.OverdueCount++
			}
		}
	}

	m.TotalCollected = collected.Round(2).InexactFloat64()
	m.TotalPending = pending.Round(2).InexactFloat64()

	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	m.CollectedTimeseries = make([]TimePoint, 0, len(dates))
	for _, d := range dates {
		m.CollectedTimeseries = append(m.CollectedTimeseries, TimePoint{Date: d, Amount: byDate[d].InexactFloat64()})
	}
	return m
}

// ExamDistribution buckets the in-window evaluable exam percentages.
func ExamDistribution(exams []school.Exam, p Params) Buckets {
	buckets := Buckets{ExamFail: 0, Exam40To60: 0, Exam60To80: 0, Exam80To100: 0}
	for _, e := range exams {
		if !e.Evaluable || !p.InRange(e.ExamDate) {
			continue
		}
		switch pct := e.Percentage(); {
		case pct < 40:
			buckets[ExamFail]++
		case pct < 60:
			buckets[Exam40To60]++
		case pct < 80:
			buckets[Exam60To80]++
		default:
			buckets[Exam80To100]++
		}
	}
	return buckets
}

func LeavesStatus(leaves []school.Leave, p Params) map[string]int {
	counts := make(map[string]int)
	for _, l := range leaves {
		if p.InRange(l.WindowDate()) {
			counts[l.Status]++
		}
	}
	return counts
}

func HostelStatus(requests []school.HostelRequest, p Params) map[string]int {
	counts := make(map[string]int)
	for _, r := range requests {
		if p.InRange(r.CreatedAt) {
			counts[r.Status]++
		}
	}
	return counts
}

// inWindow keeps the signal records within the window.
func inWindow(s school.Signals, p Params) school.Signals {
	var out school.Signals
	for _, a := range s.Attendance {
		if p.InRange(a.Date) {
			out.Attendance = append(out.Attendance, a)
		}
	}
	for _, f := range s.Fees {
		if p.InRange(f.DueDate) {
			out.Fees = append(out.Fees, f)
		}
	}
	for _, e := range s.Exams {
		if p.InRange(e.ExamDate) {
			out.Exams = append(out.Exams, e)
		}
	}
	return out
}

// ComputeRiskReasons tallies, over the students with in-window records, how many trigger
// each reason. A student counts once towards AtRiskCount whatever its number of reasons.
func ComputeRiskReasons(s school.Signals, p Params, today string) RiskReasons {
	rr := RiskReasons{
		ReasonsCount: map[string]int{ReasonAttendance: 0, ReasonOverdue: 0, ReasonFailing: 0},
	}
	for _, st := range inWindow(s, p).ByStudent() {
		lowAttendance := len(st.Attendance) > 0 && presentPercent(st.Attendance) < risk.AttendanceWarning
		overdue := risk.HasOverdueFees(st.Fees, today)
		failing := risk.IsFailing(st.Exams)

		if lowAttendance {
			rr.ReasonsCount[ReasonAttendance]++
		}
		if overdue {
			rr.ReasonsCount[ReasonOverdue]++
		}
		if failing {
			rr.ReasonsCount[ReasonFailing]++
		}
		if lowAttendance || overdue || failing {
			rr.AtRiskCount++
		}
	}
	return rr
}

// TrendKeys returns the YYYY-MM keys of the last n months, oldest first, the month of now included.
func TrendKeys(now time.Time, n int) []string {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	keys := make([]string, n)
	for i := 0; i < n; i++ {
		keys[n-1-i] = first.AddDate(0, -i, 0).Format("2006-01")
	}
	return keys
}

func monthOf(date string) string {
	if len(date) < 7 {
		return ""
	}
	return date[:7]
}

// RiskTrend classifies, for each of the last months, every student having records that month
// using only that month's records. Fees due that month count as overdue unless completed.
func RiskTrend(s school.Signals, now time.Time, months int) []TrendPoint {
	keys := TrendKeys(now, months)
	byMonth := make(map[string]school.Signals, len(keys))
	for _, k := range keys {
		byMonth[k] = school.Signals{}
	}
	for _, a := range s.Attendance {
		if m, ok := byMonth[monthOf(a.Date)]; ok {
			m.Attendance = append(m.Attendance, a)
			byMonth[monthOf(a.Date)] = m
		}
	}
	for _, f := range s.Fees {
		if m, ok := byMonth[monthOf(f.DueDate)]; ok {
			m.Fees = append(m.Fees, f)
			byMonth[monthOf(f.DueDate)] = m
		}
	}
	for _, e := range s.Exams {
		if m, ok := byMonth[monthOf(e.ExamDate)]; ok {
			m.Exams = append(m.Exams, e)
			byMonth[monthOf(e.ExamDate)] = m
		}
	}

	trend := make([]TrendPoint, 0, len(keys))
	for _, k := range keys {
		point := TrendPoint{Month: k}
		for _, st := range byMonth[k].ByStudent() {
			attendance := 100.0
			if len(st.Attendance) > 0 {
				attendance = presentPercent(st.Attendance)
			}
			overdue := false
			for _, f := range st.Fees {
				if !f.Completed() {
					overdue = true
					break
				}
			}
			_, level := risk.ScoreAndLevel(attendance, overdue, risk.IsFailing(st.Exams))
			switch level {
			case risk.High:
				point.High++
			case risk.Medium:
				point.Medium++
			default:
				point.Low++
			}
		}
		trend = append(trend, point)
	}
	return trend
}
