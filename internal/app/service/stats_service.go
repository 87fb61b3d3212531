package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sifan077/clicktrail/internal/app/metrics"
	"github.com/sifan077/clicktrail/internal/app/model"
	"github.com/sifan077/clicktrail/internal/app/repository"
)

const (
	MinWindowDays     = 1
	MaxWindowDays     = 30
	DefaultWindowDays = 7
)

// Stats is a snapshot of click and rating activity over a lookback window.
// Per-item maps are keyed by item index 1..N.
type Stats struct {
	Days             int                       `json:"days"`
	Posts            int                       `json:"posts"`
	ClicksTotal      int64                     `json:"clicks_total"`
	AvgClicksPerItem map[int]float64           `json:"avg_clicks_per_item"`
	AvgSharePerItem  map[int]float64           `json:"avg_share_per_item"`
	Sentiments       map[model.Sentiment]int64 `json:"sentiments"`
}

// StatsService computes window summaries straight from the store.
type StatsService struct {
	posts        repository.PostRepository
	hits         repository.HitRepository
	ratings      repository.RatingRepository
	itemsPerPost int
	nowFunc      func() time.Time
}

// NewStatsService wires a stats service. now may be nil.
func NewStatsService(posts repository.PostRepository, hits repository.HitRepository, ratings repository.RatingRepository, itemsPerPost int, now func() time.Time) *StatsService {
	if now == nil {
		now = time.Now
	}
	return &StatsService{
		posts:        posts,
		hits:         hits,
		ratings:      ratings,
		itemsPerPost: itemsPerPost,
		nowFunc:      now,
	}
}

// Summarize computes the metrics for the last days days.
func (s *StatsService) Summarize(ctx context.Context, days int) (*Stats, error) {
	if days < MinWindowDays || days > MaxWindowDays {
		return nil, fmt.Errorf("%w: days must be in %d..%d, got %d", ErrInvalidRange, MinWindowDays, MaxWindowDays, days)
	}
	since := s.nowFunc().Add(-time.Duration(days) * 24 * time.Hour).Unix()

	posts, err := s.posts.ListCreatedSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	ids := make([]int64, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID)
	}

	rows, err := s.hits.CountByPostItemSince(ctx, ids, since)
	if err != nil {
		return nil, fmt.Errorf("count hits: %w", err)
	}

	stats := s.aggregate(rows)
	stats.Days = days
	stats.Posts = len(posts)

	bySentiment, err := s.ratings.CountBySentimentSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("count ratings: %w", err)
	}
	stats.Sentiments = map[model.Sentiment]int64{
		model.SentimentPositive: bySentiment[model.SentimentPositive],
		model.SentimentNeutral:  bySentiment[model.SentimentNeutral],
		model.SentimentNegative: bySentiment[model.SentimentNegative],
	}

	metrics.Summaries.Inc()
	return stats, nil
}

// aggregate folds per (post, item) counts into totals and averages. Posts are
// visited in id order so float sums are reproducible.
func (s *StatsService) aggregate(rows []repository.ItemClicks) *Stats {
	n := s.itemsPerPost
	perPost := make(map[int64][]int64)
	stats := &Stats{
		AvgClicksPerItem: make(map[int]float64, n),
		AvgSharePerItem:  make(map[int]float64, n),
	}

	for _, row := range rows {
		counts, ok := perPost[row.PostID]
		if !ok {
			counts = make([]int64, n+1)
			perPost[row.PostID] = counts
		}
		if row.ItemIndex >= 1 && row.ItemIndex <= n {
			counts[row.ItemIndex] += row.Clicks
		}
		stats.ClicksTotal += row.Clicks
	}

	postIDs := make([]int64, 0, len(perPost))
	for id := range perPost {
		postIDs = append(postIDs, id)
	}
	sort.Slice(postIDs, func(i, j int) bool { return postIDs[i] < postIDs[j] })

	sums := make([]int64, n+1)
	shares := make([]float64, n+1)
	sharePosts := 0
	for _, id := range postIDs {
		counts := perPost[id]
		var total int64
		for i := 1; i <= n; i++ {
			total += counts[i]
			sums[i] += counts[i]
		}
		if total == 0 {
			continue
		}
		sharePosts++
		for i := 1; i <= n; i++ {
			shares[i] += float64(counts[i]) / float64(total)
		}
	}

	for i := 1; i <= n; i++ {
		if len(postIDs) > 0 {
			stats.AvgClicksPerItem[i] = float64(sums[i]) / float64(len(postIDs))
		} else {
			stats.AvgClicksPerItem[i] = 0
		}
		if sharePosts > 0 {
			stats.AvgSharePerItem[i] = shares[i] / float64(sharePosts)
		} else {
			stats.AvgSharePerItem[i] = 0
		}
	}
	return stats
}

// FormatSummary renders stats as the plain-text report sent to the channel.
func FormatSummary(stats *Stats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Last %d days\n", stats.Days)
	fmt.Fprintf(&b, "Posts: %d\n", stats.Posts)
	fmt.Fprintf(&b, "\"Open\" clicks total: %d\n", stats.ClicksTotal)
	b.WriteString("Average clicks per post by item:\n")

	items := make([]int, 0, len(stats.AvgClicksPerItem))
	for i := range stats.AvgClicksPerItem {
		items = append(items, i)
	}
	sort.Ints(items)
	for _, i := range items {
		fmt.Fprintf(&b, "  #%d: %.2f  | share in post ≈ %.1f%%\n", i, stats.AvgClicksPerItem[i], stats.AvgSharePerItem[i]*100)
	}

	fmt.Fprintf(&b, "Ratings: ✅ %d | 😐 %d | ❌ %d\n",
		stats.Sentiments[model.SentimentPositive],
		stats.Sentiments[model.SentimentNeutral],
		stats.Sentiments[model.SentimentNegative],
	)
	b.WriteString("Note: \"share in post\" is the item's percentage of all \"Open\" clicks in its post.")
	return b.String()
}
