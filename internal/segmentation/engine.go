package segmentation

import (
	"sort"
	"time"

	"github.com/ignite/playerpulse/internal/config"
	"github.com/ignite/playerpulse/internal/pkg/logger"
	"github.com/ignite/playerpulse/internal/profile"
)

// Engine clusters user profiles into revenue-ranked behavioral segments.
type Engine struct {
	cfg config.SegmentationConfig
}

// NewEngine creates a segmentation engine.
func NewEngine(cfg config.SegmentationConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Run clusters every eligible user in the table and labels clusters by mean
// lifetime revenue, highest first. Users below the minimum session threshold
// are labeled insufficient_data and excluded from clustering. When fewer
// eligible users exist than clusters, every user is labeled insufficient_data
// and ErrInsufficientData is returned alongside the assignment.
func (e *Engine) Run(table *profile.Table) (*Assignment, error) {
	a := &Assignment{
		StoreID:  table.StoreID,
		Seed:     e.cfg.Seed,
		Clusters: e.cfg.Clusters,
		BuiltAt:  time.Now().UTC(),
		Labels:   make(map[string]Label, table.Len()),
	}

	var eligible []*profile.UserProfile
	for i := range table.Profiles {
		p := &table.Profiles[i]
		if p.SessionCount < e.cfg.MinSessions {
			a.Labels[p.UserID] = LabelInsufficientData
			continue
		}
		eligible = append(eligible, p)
	}

	if len(eligible) < e.cfg.Clusters {
		for _, p := range eligible {
			a.Labels[p.UserID] = LabelInsufficientData
		}
		logger.Warn("Not enough users to cluster",
			"eligible", len(eligible),
			"clusters", e.cfg.Clusters)
		return a, ErrInsufficientData
	}

	features := make([][]float64, len(eligible))
	for i, p := range eligible {
		features[i] = featureVector(p)
	}
	zscore(features)

	res := runKMeans(features, e.cfg.Clusters, e.cfg.Seed, e.cfg.MaxIterations)
	a.Converged = res.converged

	order := rankByRevenue(eligible, res.assignments, e.cfg.Clusters)
	labels := rankedLabels(e.cfg.Clusters)

	labelOf := make([]Label, e.cfg.Clusters)
	for rank, cluster := range order {
		labelOf[cluster] = labels[rank]
	}
	for i, p := range eligible {
		a.Labels[p.UserID] = labelOf[res.assignments[i]]
	}

	a.Summaries = summarize(eligible, res.assignments, order, labels)

	logger.Info("Segmentation complete",
		"store_id", table.StoreID.String(),
		"users", table.Len(),
		"clustered", len(eligible),
		"converged", res.converged)
	return a, nil
}

// featureVector extracts the clustering features for one user: lifetime
// revenue, session frequency, recency, and purchase count.
func featureVector(p *profile.UserProfile) []float64 {
	freq := float64(p.SessionCount)
	if p.LifetimeDays > 0 {
		freq = float64(p.SessionCount) / float64(p.LifetimeDays)
	}
	return []float64{
		p.TotalRevenue,
		freq,
		float64(p.RecencyDays),
		float64(p.PurchaseCount),
	}
}

// rankByRevenue orders cluster indices by descending mean lifetime revenue.
// Ties break on cluster index so the ordering is total.
func rankByRevenue(eligible []*profile.UserProfile, assignments []int, k int) []int {
	sums := make([]float64, k)
	counts := make([]int, k)
	for i, p := range eligible {
		sums[assignments[i]] += p.TotalRevenue
		counts[assignments[i]]++
	}

	order := make([]int, k)
	for c := range order {
		order[c] = c
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		var ma, mb float64
		if counts[a] > 0 {
			ma = sums[a] / float64(counts[a])
		}
		if counts[b] > 0 {
			mb = sums[b] / float64(counts[b])
		}
		if ma != mb {
			return ma > mb
		}
		return a < b
	})
	return order
}

func summarize(eligible []*profile.UserProfile, assignments, order []int, labels []Label) []SegmentSummary {
	type acc struct {
		users     int
		revenue   float64
		sessions  float64
		recency   float64
		purchases float64
	}
	byCluster := make([]acc, len(order))
	for i, p := range eligible {
		c := assignments[i]
		byCluster[c].users++
		byCluster[c].revenue += p.TotalRevenue
		byCluster[c].sessions += float64(p.SessionCount)
		byCluster[c].recency += float64(p.RecencyDays)
		byCluster[c].purchases += float64(p.PurchaseCount)
	}

	out := make([]SegmentSummary, 0, len(order))
	for rank, cluster := range order {
		s := SegmentSummary{Label: labels[rank], Users: byCluster[cluster].users}
		if n := float64(s.Users); n > 0 {
			s.MeanRevenue = byCluster[cluster].revenue / n
			s.MeanSessions = byCluster[cluster].sessions / n
			s.MeanRecencyDays = byCluster[cluster].recency / n
			s.MeanPurchases = byCluster[cluster].purchases / n
		}
		out = append(out, s)
	}
	return out
}
