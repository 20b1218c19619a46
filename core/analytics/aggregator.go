package analytics

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/trezcool/minierp/core"
	"github.com/trezcool/minierp/core/cache"
	"github.com/trezcool/minierp/core/docstore"
	"github.com/trezcool/minierp/core/school"
)

var collections = []string{
	docstore.Attendance,
	docstore.Fees,
	docstore.Exams,
	docstore.Leaves,
	docstore.HostelRequests,
}

// Aggregator computes the analytics of the cached collections, fresh on every call.
type Aggregator struct {
	cache *cache.Cache
	ttl   time.Duration

	// Now is replaceable in tests.
	Now func() time.Time
}

func NewAggregator(c *cache.Cache, ttl time.Duration) *Aggregator {
	return &Aggregator{cache: c, ttl: ttl, Now: time.Now}
}

// snapshots reads the collections concurrently, keeping only the student's documents when asked.
func (ag *Aggregator) snapshots(ctx context.Context, studentID string) map[string][]docstore.Document {
	docs := make([][]docstore.Document, len(collections))
	g, gctx := errgroup.WithContext(ctx)
	for i, col := range collections {
		ag.cache.StartWatch(col)
		g.Go(func() error {
			docs[i] = ag.cache.GetCached(gctx, col, ag.ttl)
			return nil
		})
	}
	_ = g.Wait() // reads degrade to empty snapshots, they never fail

	out := make(map[string][]docstore.Document, len(collections))
	for i, col := range collections {
		if studentID == "" {
			out[col] = docs[i]
			continue
		}
		kept := make([]docstore.Document, 0)
		for _, d := range docs[i] {
			if d.String("student_id") == studentID {
				kept = append(kept, d)
			}
		}
		out[col] = kept
	}
	return out
}

func (ag *Aggregator) Build(ctx context.Context, p Params) Analytics {
	snaps := ag.snapshots(ctx, p.StudentID)
	now := ag.Now()
	today := now.Format(core.ISODate)

	signals := school.Signals{
		Attendance: school.Attendances(snaps[docstore.Attendance]),
		Fees:       school.Fees(snaps[docstore.Fees]),
		Exams:      school.Exams(snaps[docstore.Exams]),
	}
	return Analytics{
		AttendanceDistribution: AttendanceDistribution(signals.Attendance, p),
		Fees:                   ComputeFeeMetrics(signals.Fees, p, today),
		ExamsDistribution:      ExamDistribution(signals.Exams, p),
		LeavesStatus:           LeavesStatus(school.Leaves(snaps[docstore.Leaves]), p),
		HostelStatus:           HostelStatus(school.HostelRequests(snaps[docstore.HostelRequests]), p),
		Risk:                   ComputeRiskReasons(signals, p, today),
		RiskTrend:              RiskTrend(signals, now, TrendMonths),
	}
}
