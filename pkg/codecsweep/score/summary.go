package score

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/himanishpuri/CodecSweep/pkg/models"
)

// Latest keeps the last record per (degraded file, metric), in first-seen order.
func Latest(records []models.ScoreRecord) []models.ScoreRecord {
	idx := make(map[string]int)
	var out []models.ScoreRecord
	for _, r := range records {
		key := r.DegradedPath + "|" + r.Metric
		if i, ok := idx[key]; ok {
			out[i] = r
			continue
		}
		idx[key] = len(out)
		out = append(out, r)
	}
	return out
}

// Summarize aggregates the latest record of each pair per codec, bitrate and metric.
// StdDev is the population standard deviation.
func Summarize(records []models.ScoreRecord) []models.ScoreSummary {
	type acc struct {
		sum   models.ScoreSummary
		total float64
		sq    float64
	}
	groups := make(map[string]*acc)
	for _, r := range Latest(records) {
		key := fmt.Sprintf("%s|%d|%s", r.Codec, r.Bitrate, r.Metric)
		a, ok := groups[key]
		if !ok {
			a = &acc{sum: models.ScoreSummary{Codec: r.Codec, Bitrate: r.Bitrate, Metric: r.Metric}}
			groups[key] = a
		}
		if !r.Success {
			a.sum.Failed++
			continue
		}
		if a.sum.Count == 0 || r.Score < a.sum.Min {
			a.sum.Min = r.Score
		}
		if a.sum.Count == 0 || r.Score > a.sum.Max {
			a.sum.Max = r.Score
		}
		a.sum.Count++
		a.total += r.Score
		a.sq += r.Score * r.Score
	}

	out := make([]models.ScoreSummary, 0, len(groups))
	for _, a := range groups {
		s := a.sum
		if s.Count > 0 {
			n := float64(s.Count)
			s.Mean = a.total / n
			s.StdDev = math.Sqrt(math.Max(0, a.sq/n-s.Mean*s.Mean))
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Codec != out[j].Codec {
			return out[i].Codec < out[j].Codec
		}
		if out[i].Bitrate != out[j].Bitrate {
			return out[i].Bitrate < out[j].Bitrate
		}
		return out[i].Metric < out[j].Metric
	})
	return out
}

// FormatSummary renders summaries as an aligned table.
func FormatSummary(sums []models.ScoreSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-16s %10s %-8s %6s %6s %7s %7s %7s %7s\n",
		"codec", "bitrate", "metric", "n", "failed", "mean", "min", "max", "stddev")
	for _, s := range sums {
		fmt.Fprintf(&b, "%-16s %10s %-8s %6d %6d %7.3f %7.3f %7.3f %7.3f\n",
			s.Codec, humanize.SI(float64(s.Bitrate), "bps"), s.Metric, s.Count, s.Failed, s.Mean, s.Min, s.Max, s.StdDev)
	}
	return b.String()
}
