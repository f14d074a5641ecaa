package usecase

import (
	"sort"
	"strings"
	"time"

	"NewsDigest/internal/domain"
)

// DefaultLimit caps a batch when no positive limit is configured.
const DefaultLimit = 10

// WeekStart returns Monday 00:00 of the ISO week containing now, in now's location.
func WeekStart(now time.Time) time.Time {
	offset := (int(now.Weekday()) + 6) % 7
	y, m, d := now.Date()
	return time.Date(y, m, d-offset, 0, 0, 0, 0, now.Location())
}

// FilterThisWeek keeps candidates published on or after weekStart.
// Candidates without a parsed date are dropped.
func FilterThisWeek(cands []domain.Candidate, weekStart time.Time) []domain.Candidate {
	out := make([]domain.Candidate, 0, len(cands))
	for _, c := range cands {
		if !c.HasPublished() || c.Published.Before(weekStart) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// FilterByKeywords keeps candidates whose lowercase title+summary contains any keyword.
func FilterByKeywords(cands []domain.Candidate, keywords []string) []domain.Candidate {
	needles := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw = strings.ToLower(kw); kw != "" {
			needles = append(needles, kw)
		}
	}

	out := make([]domain.Candidate, 0, len(cands))
	for _, c := range cands {
		text := strings.ToLower(c.Title + " " + c.Summary)
		for _, kw := range needles {
			if strings.Contains(text, kw) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// RankAndLimit orders candidates newest first and truncates the result.
// Undated candidates sort last; ties keep fetch order.
func RankAndLimit(cands []domain.Candidate, limit int) []domain.Candidate {
	if limit <= 0 {
		limit = DefaultLimit
	}

	ranked := make([]domain.Candidate, len(cands))
	copy(ranked, cands)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.HasPublished() != b.HasPublished() {
			return a.HasPublished()
		}
		return a.Published.After(b.Published)
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// Select applies the temporal filter, the topic filter and ranking in that order.
func Select(cands []domain.Candidate, weekStart time.Time, keywords []string, limit int) []domain.Candidate {
	return RankAndLimit(FilterByKeywords(FilterThisWeek(cands, weekStart), keywords), limit)
}
