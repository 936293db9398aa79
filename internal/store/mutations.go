package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"contenthub/internal/domain"
)

// NewItem is the input of CreateItem. ID, CreatedAt and UpdatedAt are
// assigned by the store and ignored when set.
type NewItem = domain.ContentItem

// NewMember is the input of CreateMember; ID is assigned by the store.
type NewMember = domain.TeamMember

// ItemPatch lists the patchable attributes. A nil field is left unchanged; a
// pointer to the zero value clears the attribute. DealValue is the exception:
// zero is a real amount, so clearing it takes ClearDealValue.
type ItemPatch struct {
	Title         *string
	Description   *string
	Status        *string
	Assignee      *string
	DueDate       *domain.Millis
	Category      *string
	Format        *string
	Guest         *string
	Company       *string
	RequestType   *string
	WeekNumber    *int
	Priority      *string
	Notes         *string
	DraftURL      *string
	ArtStatus     *string
	ArtAssignee   *string
	ArtNotes      *string
	ArtDueDate    *domain.Millis
	WaitingOn     *string
	HandoffNote   *string
	HandoffAt     *domain.Millis
	PaymentStatus *string
	DealValue     *float64
	Client        *string

	ClearDealValue bool
}

// Empty reports whether the patch changes nothing.
func (p ItemPatch) Empty() bool {
	return p == ItemPatch{}
}

func (s *Store) CreateItem(ctx context.Context, in NewItem) (domain.ContentItem, error) {
	item := in
	item.Title = strings.TrimSpace(item.Title)
	if item.Title == "" {
		return domain.ContentItem{}, invalid("title", "required")
	}
	if !item.Type.Valid() {
		return domain.ContentItem{}, invalid("type", "unknown type %q", item.Type)
	}
	if item.Status == "" {
		item.Status = domain.InitialStatus(item.Type)
	}
	if !domain.ValidStatus(item.Type, item.Status) {
		return domain.ContentItem{}, invalid("status", "%q is not a %s status", item.Status, item.Type)
	}
	if err := validateEnums(item); err != nil {
		return domain.ContentItem{}, err
	}

	now := domain.FromTime(s.now())
	activity := make([]domain.ActivityEntry, 0, len(in.Activity)+1)
	for i, e := range in.Activity {
		e.Text = strings.TrimSpace(e.Text)
		if e.Text == "" {
			return domain.ContentItem{}, invalid(fmt.Sprintf("activity[%d].text", i), "required")
		}
		if e.TS == 0 {
			e.TS = now
		}
		activity = append(activity, e)
	}
	item.ID = s.newID()
	item.CreatedAt = now
	item.UpdatedAt = now
	item.Activity = append(activity, domain.ActivityEntry{TS: now, Text: "Created", By: item.CreatedBy})

	s.mu.Lock()
	next := make([]domain.ContentItem, len(s.items), len(s.items)+1)
	copy(next, s.items)
	s.items = append(next, item)
	ch := s.commitLocked(ctx, Change{
		Op:         "item.created",
		EntityKind: "item",
		EntityID:   item.ID,
		Actor:      item.CreatedBy,
		Payload:    map[string]any{"type": item.Type, "title": item.Title, "status": item.Status},
	})
	s.mu.Unlock()
	s.publish(ch)
	return item, nil
}

func (s *Store) UpdateItem(ctx context.Context, id string, patch ItemPatch) (domain.ContentItem, error) {
	return s.mutateItem(ctx, id, Change{Op: "item.updated"}, func(it *domain.ContentItem, _ domain.Millis) error {
		return applyPatch(it, patch)
	})
}

// UpdateStatus moves an item to status, which must belong to the item type's
// vocabulary.
func (s *Store) UpdateStatus(ctx context.Context, id, status, actor string) (domain.ContentItem, error) {
	status = strings.TrimSpace(status)
	ch := Change{Op: "item.status", Actor: actor, Payload: map[string]any{"status": status}}
	return s.mutateItem(ctx, id, ch, func(it *domain.ContentItem, now domain.Millis) error {
		if !domain.ValidStatus(it.Type, status) {
			return invalid("status", "%q is not a %s status", status, it.Type)
		}
		from := it.Status
		it.Status = status
		it.Activity = appendActivity(it.Activity, domain.ActivityEntry{TS: now, Text: "Status → " + status, By: actor})
		ch.Payload["from"] = from
		return nil
	})
}

// AdvanceStatus moves an item to the next stage of its pipeline.
func (s *Store) AdvanceStatus(ctx context.Context, id, actor string) (domain.ContentItem, error) {
	item, err := s.GetItem(id)
	if err != nil {
		return domain.ContentItem{}, err
	}
	next, ok := domain.NextStatus(item.Type, item.Status)
	if !ok {
		return domain.ContentItem{}, invalid("status", "%q is the last %s stage", item.Status, item.Type)
	}
	return s.UpdateStatus(ctx, id, next, actor)
}

// SetHandoff records who the item is waiting on. A blank waitingOn clears the
// handoff fields together.
func (s *Store) SetHandoff(ctx context.Context, id, waitingOn, note, actor string) (domain.ContentItem, error) {
	waitingOn = strings.TrimSpace(waitingOn)
	note = strings.TrimSpace(note)
	ch := Change{Op: "item.handoff", Actor: actor, Payload: map[string]any{"waitingOn": waitingOn}}
	return s.mutateItem(ctx, id, ch, func(it *domain.ContentItem, now domain.Millis) error {
		if waitingOn == "" {
			it.WaitingOn = ""
			it.HandoffNote = ""
			it.HandoffAt = nil
			it.Activity = appendActivity(it.Activity, domain.ActivityEntry{TS: now, Text: "Handoff cleared", By: actor})
			return nil
		}
		it.WaitingOn = waitingOn
		it.HandoffNote = note
		it.HandoffAt = now.Ptr()
		text := "Handed off → waiting on " + waitingOn
		if note != "" {
			text += ": " + note
		}
		it.Activity = appendActivity(it.Activity, domain.ActivityEntry{TS: now, Text: text, By: actor})
		return nil
	})
}

func (s *Store) AddActivity(ctx context.Context, id, text, actor string) (domain.ContentItem, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ContentItem{}, invalid("text", "required")
	}
	ch := Change{Op: "item.activity", Actor: actor, Payload: map[string]any{"text": text}}
	return s.mutateItem(ctx, id, ch, func(it *domain.ContentItem, now domain.Millis) error {
		it.Activity = appendActivity(it.Activity, domain.ActivityEntry{TS: now, Text: text, By: actor})
		return nil
	})
}

// RemoveItem permanently deletes an item.
func (s *Store) RemoveItem(ctx context.Context, id string) error {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return notFound("item", id)
	}
	removed := s.items[idx]
	next := make([]domain.ContentItem, 0, len(s.items)-1)
	next = append(next, s.items[:idx]...)
	s.items = append(next, s.items[idx+1:]...)
	ch := s.commitLocked(ctx, Change{
		Op:         "item.removed",
		EntityKind: "item",
		EntityID:   id,
		Payload:    map[string]any{"type": removed.Type, "title": removed.Title},
	})
	s.mu.Unlock()
	s.publish(ch)
	return nil
}

func (s *Store) CreateMember(ctx context.Context, in NewMember) (domain.TeamMember, error) {
	m := in
	m.Name = strings.TrimSpace(m.Name)
	m.Role = strings.TrimSpace(m.Role)
	if m.Name == "" {
		return domain.TeamMember{}, invalid("name", "required")
	}
	if m.Role == "" {
		return domain.TeamMember{}, invalid("role", "required")
	}
	m.ID = s.newID()

	s.mu.Lock()
	for _, existing := range s.members {
		if strings.EqualFold(existing.Name, m.Name) {
			s.mu.Unlock()
			return domain.TeamMember{}, invalid("name", "member %q already exists", m.Name)
		}
	}
	next := make([]domain.TeamMember, len(s.members), len(s.members)+1)
	copy(next, s.members)
	s.members = append(next, m)
	ch := s.commitLocked(ctx, Change{
		Op:         "member.created",
		EntityKind: "member",
		EntityID:   m.ID,
		Payload:    map[string]any{"name": m.Name, "role": m.Role},
	})
	s.mu.Unlock()
	s.publish(ch)
	return m, nil
}

// AddCheckin appends a checkin record. TS defaults to now.
func (s *Store) AddCheckin(ctx context.Context, in domain.Checkin) (domain.Checkin, error) {
	c := in
	if _, err := time.Parse(domain.CheckinDateLayout, c.Date); err != nil {
		return domain.Checkin{}, invalid("date", "%q is not YYYY-MM-DD", c.Date)
	}
	if c.Hour < 0 || c.Hour > 23 {
		return domain.Checkin{}, invalid("hour", "%d is outside 0-23", c.Hour)
	}
	for i, e := range c.Entries {
		if !domain.OneOf(e.Source, domain.CheckinSources) {
			return domain.Checkin{}, invalid(fmt.Sprintf("entries[%d].source", i), "unknown source %q", e.Source)
		}
		if !domain.OneOf(e.Confidence, domain.Confidences) {
			return domain.Checkin{}, invalid(fmt.Sprintf("entries[%d].confidence", i), "unknown confidence %q", e.Confidence)
		}
	}
	c.ID = s.newID()
	if c.TS == 0 {
		c.TS = domain.FromTime(s.now())
	}
	if c.Entries == nil {
		c.Entries = []domain.CheckinEntry{}
	}
	if c.HubUpdates == nil {
		c.HubUpdates = []domain.HubUpdate{}
	}
	if c.PingsSent == nil {
		c.PingsSent = []domain.PingSent{}
	}

	s.mu.Lock()
	next := make([]domain.Checkin, len(s.checkins), len(s.checkins)+1)
	copy(next, s.checkins)
	s.checkins = append(next, c)
	ch := s.commitLocked(ctx, Change{
		Op:         "checkin.added",
		EntityKind: "checkin",
		EntityID:   c.ID,
		Payload:    map[string]any{"date": c.Date, "hour": c.Hour, "entries": len(c.Entries)},
	})
	s.mu.Unlock()
	s.publish(ch)
	return c, nil
}

// mutateItem runs fn against a private copy of the item and swaps it in only
// when fn succeeds.
func (s *Store) mutateItem(ctx context.Context, id string, ch Change, fn func(*domain.ContentItem, domain.Millis) error) (domain.ContentItem, error) {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return domain.ContentItem{}, notFound("item", id)
	}
	now := domain.FromTime(s.now())
	updated := s.items[idx]
	if err := fn(&updated, now); err != nil {
		s.mu.Unlock()
		return domain.ContentItem{}, err
	}
	updated.UpdatedAt = now
	next := make([]domain.ContentItem, len(s.items))
	copy(next, s.items)
	next[idx] = updated
	s.items = next
	ch.EntityKind = "item"
	ch.EntityID = id
	ch = s.commitLocked(ctx, ch)
	s.mu.Unlock()
	s.publish(ch)
	return updated, nil
}

func appendActivity(existing []domain.ActivityEntry, e domain.ActivityEntry) []domain.ActivityEntry {
	out := make([]domain.ActivityEntry, len(existing), len(existing)+1)
	copy(out, existing)
	return append(out, e)
}

func validateEnums(it domain.ContentItem) error {
	checks := []struct {
		field   string
		value   string
		allowed []string
	}{
		{"category", it.Category, domain.Categories},
		{"format", it.Format, domain.Formats},
		{"artStatus", it.ArtStatus, domain.ArtStatuses},
		{"paymentStatus", it.PaymentStatus, domain.PaymentStatuses},
		{"priority", it.Priority, domain.Priorities},
	}
	for _, c := range checks {
		if !domain.OneOf(c.value, c.allowed) {
			return invalid(c.field, "unknown value %q", c.value)
		}
	}
	return nil
}

// applyPatch validates only the attributes the patch touches so legacy
// values elsewhere on the item never block an edit.
func applyPatch(it *domain.ContentItem, p ItemPatch) error {
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return invalid("title", "required")
		}
		it.Title = title
	}
	if p.Status != nil {
		if !domain.ValidStatus(it.Type, *p.Status) {
			return invalid("status", "%q is not a %s status", *p.Status, it.Type)
		}
		it.Status = *p.Status
	}
	enums := []struct {
		field   string
		value   *string
		allowed []string
		dst     *string
	}{
		{"category", p.Category, domain.Categories, &it.Category},
		{"format", p.Format, domain.Formats, &it.Format},
		{"artStatus", p.ArtStatus, domain.ArtStatuses, &it.ArtStatus},
		{"paymentStatus", p.PaymentStatus, domain.PaymentStatuses, &it.PaymentStatus},
		{"priority", p.Priority, domain.Priorities, &it.Priority},
	}
	for _, e := range enums {
		if e.value == nil {
			continue
		}
		if !domain.OneOf(*e.value, e.allowed) {
			return invalid(e.field, "unknown value %q", *e.value)
		}
		*e.dst = *e.value
	}
	strs := []struct {
		value *string
		dst   *string
	}{
		{p.Description, &it.Description},
		{p.Assignee, &it.Assignee},
		{p.Guest, &it.Guest},
		{p.Company, &it.Company},
		{p.RequestType, &it.RequestType},
		{p.Notes, &it.Notes},
		{p.DraftURL, &it.DraftURL},
		{p.ArtAssignee, &it.ArtAssignee},
		{p.ArtNotes, &it.ArtNotes},
		{p.WaitingOn, &it.WaitingOn},
		{p.HandoffNote, &it.HandoffNote},
		{p.Client, &it.Client},
	}
	for _, f := range strs {
		if f.value != nil {
			*f.dst = strings.TrimSpace(*f.value)
		}
	}
	setMillis(&it.DueDate, p.DueDate)
	setMillis(&it.ArtDueDate, p.ArtDueDate)
	setMillis(&it.HandoffAt, p.HandoffAt)
	if p.WeekNumber != nil {
		if *p.WeekNumber == 0 {
			it.WeekNumber = nil
		} else {
			v := *p.WeekNumber
			it.WeekNumber = &v
		}
	}
	switch {
	case p.ClearDealValue:
		it.DealValue = nil
	case p.DealValue != nil:
		v := *p.DealValue
		it.DealValue = &v
	}
	return nil
}

func setMillis(dst **domain.Millis, v *domain.Millis) {
	if v == nil {
		return
	}
	if *v == 0 {
		*dst = nil
		return
	}
	m := *v
	*dst = &m
}
