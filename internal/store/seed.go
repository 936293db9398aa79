package store

import (
	"context"
	"time"

	"contenthub/internal/domain"
	"contenthub/internal/logging"
)

func starterMembers() []domain.TeamMember {
	return []domain.TeamMember{
		{Name: "Alex", Role: "Editor-in-Chief", AvatarColor: "#4f46e5"},
		{Name: "Priya", Role: "Lead Researcher", AvatarColor: "#db2777"},
		{Name: "Marco", Role: "Staff Writer", AvatarColor: "#d97706"},
		{Name: "Lena", Role: "Staff Writer", AvatarColor: "#059669"},
		{Name: "Tomas", Role: "Operations", AvatarColor: "#0891b2"},
		{Name: "Yuki", Role: "Design", AvatarColor: "#ea580c"},
		{Name: "Sam", Role: "Growth", AvatarColor: "#0d9488"},
		{Name: "Noor", Role: "Finance", AvatarColor: "#e11d48"},
	}
}

func starterItems(now time.Time) []domain.ContentItem {
	at := func(days int) *domain.Millis { return domain.FromTime(now.Add(time.Duration(days) * day)).Ptr() }
	week := func(n int) *int { return &n }
	return []domain.ContentItem{
		{Type: domain.TypeTwitter, Title: "Ecosystem map thread", Status: "pitch", Format: "thread"},
		{Type: domain.TypeTwitter, Title: "Weekly market recap", Status: "drafting", Assignee: "Marco", Format: "single"},
		{Type: domain.TypeTwitter, Title: "Quote on the funding report", Status: "review", Assignee: "Lena", Format: "quote_tweet"},

		{Type: domain.TypeEditorial, Title: "Lending protocols deep dive", Status: "drafting", Assignee: "Priya", DueDate: at(-6), Category: "organic"},
		{Type: domain.TypeEditorial, Title: "Bridge security survey", Status: "review", Assignee: "Priya", DueDate: at(-2), Category: "sponsored", ArtStatus: "needs_art"},
		{Type: domain.TypeEditorial, Title: "Governance design essay", Status: "assigned", Assignee: "Alex", DueDate: at(3), Category: "organic"},
		{Type: domain.TypeEditorial, Title: "Partner research note", Status: "pitch", Category: "collaboration"},
		{Type: domain.TypeEditorial, Title: "Revenue dashboard write-up", Status: "copy_edit", Assignee: "Marco", DueDate: at(5), Category: "internal_research", ArtStatus: "art_in_progress", ArtAssignee: "Yuki"},

		{Type: domain.TypeTTD, Title: "Onchain commodities primer", Status: "published", Assignee: "Lena", DueDate: at(-8), WeekNumber: week(1)},
		{Type: domain.TypeTTD, Title: "Stablecoin policy update", Status: "drafting", Assignee: "Marco", DueDate: at(1), WeekNumber: week(2)},
		{Type: domain.TypeTTD, Title: "Mining economics explainer", Status: "planned", Assignee: "Priya", DueDate: at(2), WeekNumber: week(2)},

		{Type: domain.TypePodcast, Title: "Founder interview", Status: "booked", Assignee: "Alex", DueDate: at(-1), Guest: "TBD"},
		{Type: domain.TypePodcast, Title: "Researcher roundtable", Status: "planned", Assignee: "Priya", DueDate: at(4), Guest: "TBD"},

		{Type: domain.TypePortfolio, Title: "Portfolio company article", Status: "in_progress", Assignee: "Lena", Company: "Acme Labs", RequestType: "Article"},
		{Type: domain.TypePortfolio, Title: "Launch announcement", Status: "accepted", Assignee: "Alex", Company: "Northwind", RequestType: "Article"},
		{Type: domain.TypePortfolio, Title: "Paid engagement", Status: "requested", Company: "Globex", RequestType: "Paid Engagement", PaymentStatus: "unpaid"},
	}
}

// SeedIfEmpty fills a starter roster when there are no members and a starter
// dataset when there are no items. The version is left untouched so any
// remote snapshot still wins over seeded data.
func (s *Store) SeedIfEmpty(ctx context.Context) bool {
	s.mu.Lock()
	now := s.now()
	seededMembers := false
	seededItems := 0
	if len(s.members) == 0 {
		s.members = s.withMemberIDs(starterMembers())
		seededMembers = true
	}
	if len(s.items) == 0 {
		ts := domain.FromTime(now)
		items := starterItems(now)
		for i := range items {
			items[i].ID = s.newID()
			items[i].CreatedAt = ts
			items[i].UpdatedAt = ts
		}
		s.items = items
		seededItems = len(items)
	}
	if !seededMembers && seededItems == 0 {
		s.mu.Unlock()
		return false
	}
	ch := s.finishLocked(ctx, Change{
		Op:         "dataset.seeded",
		EntityKind: "dataset",
		Payload:    map[string]any{"members": seededMembers, "items": seededItems},
	})
	s.mu.Unlock()
	s.log.WithFields(logging.Fields{"members": seededMembers, "items": seededItems}).Info("seeded starter data")
	s.publish(ch)
	return true
}

// SeedMembers installs the starter roster when no members exist.
func (s *Store) SeedMembers(ctx context.Context) bool {
	s.mu.Lock()
	if len(s.members) > 0 {
		s.mu.Unlock()
		return false
	}
	s.members = s.withMemberIDs(starterMembers())
	ch := s.commitLocked(ctx, Change{
		Op:         "members.seeded",
		EntityKind: "member",
		Payload:    map[string]any{"members": len(s.members)},
	})
	s.mu.Unlock()
	s.publish(ch)
	return true
}

func (s *Store) withMemberIDs(ms []domain.TeamMember) []domain.TeamMember {
	for i := range ms {
		ms[i].ID = s.newID()
	}
	return ms
}
