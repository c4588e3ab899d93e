package incident

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"tokasu/internal/domain"
)

// Summarize aggregates severity statistics for the admin dashboard.
func Summarize(records []domain.IncidentRecord) domain.IncidentStats {
	stats := domain.IncidentStats{
		ByTier:     make(map[domain.TierLevel]int),
		ByCategory: make(map[string]int),
	}
	if len(records) == 0 {
		return stats
	}

	severities := make([]float64, 0, len(records))
	for _, rec := range records {
		stats.Total++
		if rec.Result.IsHarassment {
			stats.Harassment++
		}
		if rec.Result.Source == domain.SourceFallback {
			stats.Fallback++
		}
		if rec.Severity >= 60 {
			stats.HighOrAbove++
		}
		stats.ByTier[domain.Classify(rec.Severity).Level]++
		stats.ByCategory[rec.Category]++
		severities = append(severities, float64(rec.Severity))
	}

	sort.Float64s(severities)
	stats.MeanSeverity = stat.Mean(severities, nil)
	stats.MedianSeverity = stat.Quantile(0.5, stat.Empirical, severities, nil)
	stats.P90Severity = stat.Quantile(0.9, stat.Empirical, severities, nil)
	return stats
}
