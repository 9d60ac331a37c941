package analytics

import (
	"math"
	"sort"

	"medilens.app/analysis-server/internal/report"
)

// HealthTrend compares the two newest safety scores.
type HealthTrend string

const (
	TrendImproving      HealthTrend = "improving"
	TrendStable         HealthTrend = "stable"
	TrendNeedsAttention HealthTrend = "needs_attention"
)

// DefaultTrendThreshold is the noise filter on score deltas: movements of
// this many points or fewer read as stable.
const DefaultTrendThreshold = 2

type Options struct {
	// TrendThreshold overrides DefaultTrendThreshold when positive.
	TrendThreshold int
}

// Snapshot is the derived dashboard view over the stored record collection.
// It owns no state; recompute it whenever the collection changes.
type Snapshot struct {
	// HasData is false for an empty history; the score fields are
	// meaningless in that state and the UI should render its empty view.
	HasData            bool        `json:"has_data"`
	OverallHealthScore int         `json:"overall_health_score"`
	HealthTrend        HealthTrend `json:"health_trend"`
	TotalReports       int         `json:"total_reports"`
	CriticalAlerts     int         `json:"critical_alerts"`
	UniqueMedications  int         `json:"unique_medications"`
	// CriticalBanner is a pure function of the single newest record.
	CriticalBanner bool `json:"critical_banner"`
}

// SortNewestFirst orders records for Summarize: newest CreatedAt first, id
// as a deterministic tiebreak.
func SortNewestFirst(records []report.AnalysisRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return records[i].ID > records[j].ID
	})
}

// Summarize derives the dashboard snapshot from a newest-first record list.
// Pure function: same input, same output.
func Summarize(records []report.AnalysisRecord, opts Options) Snapshot {
	threshold := opts.TrendThreshold
	if threshold <= 0 {
		threshold = DefaultTrendThreshold
	}

	snap := Snapshot{
		HealthTrend:  TrendStable,
		TotalReports: len(records),
	}
	if len(records) == 0 {
		return snap
	}
	snap.HasData = true

	var scoreSum int
	medications := make(map[string]struct{})
	for _, rec := range records {
		scoreSum += rec.SafetyScore
		if rec.RiskLevel == report.RiskCritical {
			snap.CriticalAlerts++
		}
		if rec.Kind == report.KindPrescription {
			for _, m := range rec.Medications {
				medications[m.Name] = struct{}{}
			}
		}
	}
	snap.OverallHealthScore = int(math.Round(float64(scoreSum) / float64(len(records))))
	snap.UniqueMedications = len(medications)
	snap.CriticalBanner = records[0].RiskLevel == report.RiskCritical

	if len(records) >= 2 {
		newest, previous := records[0].SafetyScore, records[1].SafetyScore
		switch {
		case newest > previous+threshold:
			snap.HealthTrend = TrendImproving
		case newest < previous-threshold:
			snap.HealthTrend = TrendNeedsAttention
		}
	}
	return snap
}
