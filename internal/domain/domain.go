package domain

import (
	"fmt"
	"strings"
	"time"
)

// Millis is an instant expressed as Unix epoch milliseconds, the unit used by
// the snapshot wire format.
type Millis int64

func FromTime(t time.Time) Millis { return Millis(t.UnixMilli()) }

func (m Millis) Time() time.Time { return time.UnixMilli(int64(m)) }

// Ptr returns a pointer to m.
func (m Millis) Ptr() *Millis { return &m }

type ItemType string

const (
	TypeTwitter   ItemType = "twitter"
	TypeEditorial ItemType = "editorial"
	TypeTTD       ItemType = "ttd"
	TypePodcast   ItemType = "podcast"
	TypePortfolio ItemType = "portfolio"
)

// ItemTypes lists the closed set of content types in display order.
var ItemTypes = []ItemType{TypeTwitter, TypeEditorial, TypeTTD, TypePodcast, TypePortfolio}

func (t ItemType) Valid() bool {
	for _, it := range ItemTypes {
		if it == t {
			return true
		}
	}
	return false
}

// ParseItemType accepts only members of the closed set.
func ParseItemType(s string) (ItemType, error) {
	t := ItemType(strings.TrimSpace(strings.ToLower(s)))
	if !t.Valid() {
		return "", fmt.Errorf("invalid item type %q", s)
	}
	return t, nil
}

const (
	StatusPublished = "published"
	StatusDelivered = "delivered"
)

// Each type owns its own vocabulary; shared names such as "review" are a
// naming convention, not a shared enum.
var statusVocab = map[ItemType][]string{
	TypeTwitter:   {"pitch", "drafting", "review", StatusPublished},
	TypeEditorial: {"pitch", "assigned", "drafting", "review", "copy_edit", "ready", StatusPublished},
	TypeTTD:       {"planned", "drafting", "review", StatusPublished},
	TypePodcast:   {"planned", "booked", "recorded", "editing", StatusPublished},
	TypePortfolio: {"requested", "accepted", "in_progress", StatusDelivered},
}

// Statuses returns the ordered pipeline for t.
func Statuses(t ItemType) []string {
	return append([]string(nil), statusVocab[t]...)
}

func ValidStatus(t ItemType, status string) bool {
	for _, s := range statusVocab[t] {
		if s == status {
			return true
		}
	}
	return false
}

// InitialStatus is the first stage of the type's pipeline.
func InitialStatus(t ItemType) string {
	v := statusVocab[t]
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

// NextStatus returns the stage following status, or false at the end of the
// pipeline or for an unknown status.
func NextStatus(t ItemType, status string) (string, bool) {
	v := statusVocab[t]
	for i, s := range v {
		if s == status && i+1 < len(v) {
			return v[i+1], true
		}
	}
	return "", false
}

// IsTerminal reports whether status marks an item as no longer active.
func IsTerminal(status string) bool {
	return status == StatusPublished || status == StatusDelivered
}

var (
	Categories      = []string{"organic", "sponsored", "collaboration", "internal_research"}
	Formats         = []string{"thread", "single", "quote_tweet"}
	ArtStatuses     = []string{"none", "needs_art", "art_requested", "art_in_progress", "art_review", "art_done"}
	PaymentStatuses = []string{"unpaid", "invoiced", "paid"}
	Priorities      = []string{"low", "medium", "high"}
	CheckinSources  = []string{"slack_scan", "direct_ping", "manual"}
	Confidences     = []string{"high", "medium", "low"}
)

// OneOf reports whether v is empty or a member of allowed.
func OneOf(v string, allowed []string) bool {
	if v == "" {
		return true
	}
	for _, a := range allowed {
		if a == v {
			return true
		}
	}
	return false
}

type ActivityEntry struct {
	TS   Millis `json:"ts"`
	Text string `json:"text"`
	By   string `json:"by,omitempty"`
}

type ContentItem struct {
	ID          string   `json:"_id"`
	Type        ItemType `json:"type" enum:"twitter,editorial,ttd,podcast,portfolio"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      string   `json:"status"`
	Assignee    string   `json:"assignee,omitempty"`
	DueDate     *Millis  `json:"dueDate,omitempty"`
	Category    string   `json:"category,omitempty"`
	Format      string   `json:"format,omitempty"`
	Guest       string   `json:"guest,omitempty"`
	Company     string   `json:"company,omitempty"`
	RequestType string   `json:"requestType,omitempty"`
	WeekNumber  *int     `json:"weekNumber,omitempty"`
	Priority    string   `json:"priority,omitempty"`
	Notes       string   `json:"notes,omitempty"`
	CreatedBy   string   `json:"createdBy,omitempty"`
	DraftURL    string   `json:"draftUrl,omitempty"`

	ArtStatus   string  `json:"artStatus,omitempty"`
	ArtAssignee string  `json:"artAssignee,omitempty"`
	ArtNotes    string  `json:"artNotes,omitempty"`
	ArtDueDate  *Millis `json:"artDueDate,omitempty"`

	WaitingOn   string  `json:"waitingOn,omitempty"`
	HandoffNote string  `json:"handoffNote,omitempty"`
	HandoffAt   *Millis `json:"handoffAt,omitempty"`

	PaymentStatus string   `json:"paymentStatus,omitempty"`
	DealValue     *float64 `json:"dealValue,omitempty"`
	Client        string   `json:"client,omitempty"`

	Activity  []ActivityEntry `json:"activity,omitempty"`
	CreatedAt Millis          `json:"createdAt"`
	UpdatedAt Millis          `json:"updatedAt"`
}

// Active is false once the item reached a terminal status.
func (i ContentItem) Active() bool { return !IsTerminal(i.Status) }

func (i ContentItem) Overdue(now time.Time) bool {
	return i.Active() && i.DueDate != nil && *i.DueDate < FromTime(now)
}

// AssigneeOrUnassigned is the workload bucket for the item.
func (i ContentItem) AssigneeOrUnassigned() string {
	if i.Assignee == "" {
		return Unassigned
	}
	return i.Assignee
}

const Unassigned = "Unassigned"

type TeamMember struct {
	ID          string `json:"_id"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	Email       string `json:"email,omitempty"`
	AvatarColor string `json:"avatarColor,omitempty"`
}

type CheckinEntry struct {
	Person       string   `json:"person"`
	Summary      string   `json:"summary"`
	ItemsUpdated []string `json:"items_updated,omitempty"`
	Source       string   `json:"source" enum:"slack_scan,direct_ping,manual"`
	Confidence   string   `json:"confidence" enum:"high,medium,low"`
}

type HubUpdate struct {
	ItemID    string `json:"item_id"`
	ItemTitle string `json:"item_title,omitempty"`
	Field     string `json:"field"`
	OldValue  string `json:"old_value,omitempty"`
	NewValue  string `json:"new_value,omitempty"`
}

type PingSent struct {
	Person  string `json:"person"`
	Reason  string `json:"reason"`
	Channel string `json:"channel,omitempty"`
}

type Checkin struct {
	ID         string         `json:"_id"`
	Date       string         `json:"date"`
	Hour       int            `json:"hour"`
	TS         Millis         `json:"ts"`
	Entries    []CheckinEntry `json:"entries"`
	HubUpdates []HubUpdate    `json:"hub_updates"`
	PingsSent  []PingSent     `json:"pings_sent"`
	Summary    string         `json:"summary,omitempty"`
}

// CheckinDateLayout is the layout of Checkin.Date.
const CheckinDateLayout = "2006-01-02"
