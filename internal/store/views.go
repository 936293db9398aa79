package store

import (
	"sort"
	"strings"
	"time"

	"contenthub/internal/domain"
)

const day = 24 * time.Hour

// Stats is the dashboard summary computed over a snapshot.
type Stats struct {
	TotalActive        int            `json:"totalActive"`
	OverdueCount       int            `json:"overdueCount"`
	DueThisWeek        int            `json:"dueThisWeek"`
	PublishedThisMonth int            `json:"publishedThisMonth"`
	ByType             map[string]int `json:"byType"`
	Workload           map[string]int `json:"workload"`
}

// ComputeStats derives Stats from items. Type and workload counts only
// include active items; unassigned active items land in domain.Unassigned.
func ComputeStats(items []domain.ContentItem, now time.Time, loc *time.Location) Stats {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	monthStart := domain.FromTime(time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc))
	nowMs := domain.FromTime(now)
	weekEnd := domain.FromTime(now.Add(7 * day))

	st := Stats{ByType: map[string]int{}, Workload: map[string]int{}}
	for _, it := range items {
		if !it.Active() {
			if it.UpdatedAt >= monthStart {
				st.PublishedThisMonth++
			}
			continue
		}
		st.TotalActive++
		st.ByType[string(it.Type)]++
		st.Workload[it.AssigneeOrUnassigned()]++
		if it.DueDate == nil {
			continue
		}
		if *it.DueDate < nowMs {
			st.OverdueCount++
		} else if *it.DueDate <= weekEnd {
			st.DueThisWeek++
		}
	}
	return st
}

func (s *Store) Stats() Stats {
	return ComputeStats(s.AllItems(), s.now(), s.loc)
}

// Overdue returns active items past their due date, oldest deadline first.
func (s *Store) Overdue() []domain.ContentItem {
	now := s.now()
	res := filter(s.AllItems(), func(it domain.ContentItem) bool { return it.Overdue(now) })
	sortByDue(res)
	return res
}

// Upcoming returns active items due within the next days days.
func (s *Store) Upcoming(days int) []domain.ContentItem {
	now := s.now()
	from := domain.FromTime(now)
	to := domain.FromTime(now.Add(time.Duration(days) * day))
	res := filter(s.AllItems(), func(it domain.ContentItem) bool {
		return it.Active() && it.DueDate != nil && *it.DueDate >= from && *it.DueDate <= to
	})
	sortByDue(res)
	return res
}

// Stale returns active items whose last update is more than days days old,
// longest idle first.
func (s *Store) Stale(days int) []domain.ContentItem {
	cutoff := domain.FromTime(s.now().Add(-time.Duration(days) * day))
	res := filter(s.AllItems(), func(it domain.ContentItem) bool {
		return it.Active() && it.UpdatedAt < cutoff
	})
	sort.SliceStable(res, func(i, j int) bool { return res[i].UpdatedAt < res[j].UpdatedAt })
	return res
}

// Filter narrows ListItems. Empty fields match everything; Assignee matches
// case-insensitively and accepts domain.Unassigned.
type Filter struct {
	Type          domain.ItemType
	Status        string
	Assignee      string
	ArtStatus     string
	PaymentStatus string
	ActiveOnly    bool
}

func (f Filter) match(it domain.ContentItem) bool {
	if f.Type != "" && it.Type != f.Type {
		return false
	}
	if f.Status != "" && it.Status != f.Status {
		return false
	}
	if f.Assignee != "" && !strings.EqualFold(it.AssigneeOrUnassigned(), f.Assignee) {
		return false
	}
	if f.ArtStatus != "" && it.ArtStatus != f.ArtStatus {
		return false
	}
	if f.PaymentStatus != "" && it.PaymentStatus != f.PaymentStatus {
		return false
	}
	if f.ActiveOnly && !it.Active() {
		return false
	}
	return true
}

// ListItems returns the items matching f in insertion order.
func (s *Store) ListItems(f Filter) []domain.ContentItem {
	return filter(s.Items(f.Type), f.match)
}

// CheckinsByDate returns the checkins recorded for date (YYYY-MM-DD), by hour.
func (s *Store) CheckinsByDate(date string) []domain.Checkin {
	res := []domain.Checkin{}
	for _, c := range s.Checkins() {
		if c.Date == date {
			res = append(res, c)
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].Hour < res[j].Hour })
	return res
}

// CheckinDates lists distinct checkin dates, newest first.
func (s *Store) CheckinDates() []string {
	seen := map[string]bool{}
	res := []string{}
	for _, c := range s.Checkins() {
		if !seen[c.Date] {
			seen[c.Date] = true
			res = append(res, c.Date)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(res)))
	return res
}

func filter(items []domain.ContentItem, keep func(domain.ContentItem) bool) []domain.ContentItem {
	res := []domain.ContentItem{}
	for _, it := range items {
		if keep(it) {
			res = append(res, it)
		}
	}
	return res
}

func sortByDue(items []domain.ContentItem) {
	sort.SliceStable(items, func(i, j int) bool { return *items[i].DueDate < *items[j].DueDate })
}
