package server

import (
	"encoding/json"

	"contenthub/internal/domain"
	"contenthub/internal/store"
)

// Request payloads

type CreateItemRequest struct {
	Type          string          `json:"type" enum:"twitter,editorial,ttd,podcast,portfolio"`
	Title         string          `json:"title"`
	Description   string          `json:"description,omitempty"`
	Status        string          `json:"status,omitempty"`
	Assignee      string          `json:"assignee,omitempty"`
	DueDate       *domain.Millis  `json:"dueDate,omitempty" doc:"Epoch milliseconds"`
	Category      string          `json:"category,omitempty"`
	Format        string          `json:"format,omitempty"`
	Guest         string          `json:"guest,omitempty"`
	Company       string          `json:"company,omitempty"`
	RequestType   string          `json:"requestType,omitempty"`
	WeekNumber    *int            `json:"weekNumber,omitempty"`
	Priority      string          `json:"priority,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	CreatedBy     string          `json:"createdBy,omitempty"`
	DraftURL      string          `json:"draftUrl,omitempty"`
	ArtStatus     string          `json:"artStatus,omitempty"`
	ArtAssignee   string          `json:"artAssignee,omitempty"`
	ArtNotes      string          `json:"artNotes,omitempty"`
	ArtDueDate    *domain.Millis  `json:"artDueDate,omitempty"`
	PaymentStatus string          `json:"paymentStatus,omitempty"`
	DealValue     *float64        `json:"dealValue,omitempty"`
	Client        string          `json:"client,omitempty"`
	Activity      []ActivityInput `json:"activity,omitempty"`
}

type ActivityInput struct {
	Text string `json:"text"`
	By   string `json:"by,omitempty"`
}

// UpdateItemRequest is a partial update. Absent fields are untouched and a
// JSON null clears the attribute.
type UpdateItemRequest struct {
	Title         *string        `json:"title,omitempty"`
	Description   *string        `json:"description,omitempty"`
	Status        *string        `json:"status,omitempty"`
	Assignee      *string        `json:"assignee,omitempty"`
	DueDate       *domain.Millis `json:"dueDate,omitempty"`
	Category      *string        `json:"category,omitempty"`
	Format        *string        `json:"format,omitempty"`
	Guest         *string        `json:"guest,omitempty"`
	Company       *string        `json:"company,omitempty"`
	RequestType   *string        `json:"requestType,omitempty"`
	WeekNumber    *int           `json:"weekNumber,omitempty"`
	Priority      *string        `json:"priority,omitempty"`
	Notes         *string        `json:"notes,omitempty"`
	DraftURL      *string        `json:"draftUrl,omitempty"`
	ArtStatus     *string        `json:"artStatus,omitempty"`
	ArtAssignee   *string        `json:"artAssignee,omitempty"`
	ArtNotes      *string        `json:"artNotes,omitempty"`
	ArtDueDate    *domain.Millis `json:"artDueDate,omitempty"`
	WaitingOn     *string        `json:"waitingOn,omitempty"`
	HandoffNote   *string        `json:"handoffNote,omitempty"`
	HandoffAt     *domain.Millis `json:"handoffAt,omitempty"`
	PaymentStatus *string        `json:"paymentStatus,omitempty"`
	DealValue     *float64       `json:"dealValue,omitempty"`
	Client        *string        `json:"client,omitempty"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
	By     string `json:"by,omitempty"`
}

type HandoffRequest struct {
	WaitingOn string `json:"waitingOn,omitempty" doc:"Blank clears the handoff"`
	Note      string `json:"note,omitempty"`
	By        string `json:"by,omitempty"`
}

type AddActivityRequest struct {
	Text string `json:"text"`
	By   string `json:"by,omitempty"`
}

type CreateMemberRequest struct {
	Name        string `json:"name"`
	Role        string `json:"role"`
	Email       string `json:"email,omitempty"`
	AvatarColor string `json:"avatarColor,omitempty"`
}

type CreateCheckinRequest struct {
	Date       string                `json:"date" doc:"YYYY-MM-DD"`
	Hour       int                   `json:"hour" minimum:"0" maximum:"23"`
	TS         *domain.Millis        `json:"ts,omitempty"`
	Entries    []domain.CheckinEntry `json:"entries,omitempty"`
	HubUpdates []domain.HubUpdate    `json:"hub_updates,omitempty"`
	PingsSent  []domain.PingSent     `json:"pings_sent,omitempty"`
	Summary    string                `json:"summary,omitempty"`
}

// Response payloads

type ImportResponse struct {
	Version int64 `json:"version"`
	Items   int   `json:"items"`
}

type SeedResponse struct {
	Seeded  bool                `json:"seeded"`
	Members []domain.TeamMember `json:"members"`
}

type BoardColumn struct {
	Column string               `json:"column"`
	Status string               `json:"status,omitempty" doc:"Status an item takes when dropped in this column"`
	Items  []domain.ContentItem `json:"items"`
}

type BoardResponse struct {
	Type    string        `json:"type"`
	Columns []BoardColumn `json:"columns"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Version    int64          `json:"version"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	Actor      string         `json:"actor,omitempty"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// VersionEvent is pushed on the change feed after every commit.
type VersionEvent struct {
	Version int64 `json:"version"`
	Items   int   `json:"items"`
}

// Conversion helpers

func (r CreateItemRequest) newItem() store.NewItem {
	in := store.NewItem{
		Type:          domain.ItemType(r.Type),
		Title:         r.Title,
		Description:   r.Description,
		Status:        r.Status,
		Assignee:      r.Assignee,
		DueDate:       r.DueDate,
		Category:      r.Category,
		Format:        r.Format,
		Guest:         r.Guest,
		Company:       r.Company,
		RequestType:   r.RequestType,
		WeekNumber:    r.WeekNumber,
		Priority:      r.Priority,
		Notes:         r.Notes,
		CreatedBy:     r.CreatedBy,
		DraftURL:      r.DraftURL,
		ArtStatus:     r.ArtStatus,
		ArtAssignee:   r.ArtAssignee,
		ArtNotes:      r.ArtNotes,
		ArtDueDate:    r.ArtDueDate,
		PaymentStatus: r.PaymentStatus,
		DealValue:     r.DealValue,
		Client:        r.Client,
	}
	for _, a := range r.Activity {
		in.Activity = append(in.Activity, domain.ActivityEntry{Text: a.Text, By: a.By})
	}
	return in
}

// patch converts the request, turning JSON nulls found in raw into clears.
func (r UpdateItemRequest) patch(raw map[string]json.RawMessage) store.ItemPatch {
	p := store.ItemPatch{
		Title:         r.Title,
		Description:   r.Description,
		Status:        r.Status,
		Assignee:      r.Assignee,
		DueDate:       r.DueDate,
		Category:      r.Category,
		Format:        r.Format,
		Guest:         r.Guest,
		Company:       r.Company,
		RequestType:   r.RequestType,
		WeekNumber:    r.WeekNumber,
		Priority:      r.Priority,
		Notes:         r.Notes,
		DraftURL:      r.DraftURL,
		ArtStatus:     r.ArtStatus,
		ArtAssignee:   r.ArtAssignee,
		ArtNotes:      r.ArtNotes,
		ArtDueDate:    r.ArtDueDate,
		WaitingOn:     r.WaitingOn,
		HandoffNote:   r.HandoffNote,
		HandoffAt:     r.HandoffAt,
		PaymentStatus: r.PaymentStatus,
		DealValue:     r.DealValue,
		Client:        r.Client,
	}
	empty := ""
	zeroMs := domain.Millis(0)
	zeroInt := 0
	strs := map[string]**string{
		"description":   &p.Description,
		"assignee":      &p.Assignee,
		"category":      &p.Category,
		"format":        &p.Format,
		"guest":         &p.Guest,
		"company":       &p.Company,
		"requestType":   &p.RequestType,
		"priority":      &p.Priority,
		"notes":         &p.Notes,
		"draftUrl":      &p.DraftURL,
		"artStatus":     &p.ArtStatus,
		"artAssignee":   &p.ArtAssignee,
		"artNotes":      &p.ArtNotes,
		"waitingOn":     &p.WaitingOn,
		"handoffNote":   &p.HandoffNote,
		"paymentStatus": &p.PaymentStatus,
		"client":        &p.Client,
	}
	for key, dst := range strs {
		if isNullRaw(raw[key]) {
			*dst = &empty
		}
	}
	millis := map[string]**domain.Millis{
		"dueDate":    &p.DueDate,
		"artDueDate": &p.ArtDueDate,
		"handoffAt":  &p.HandoffAt,
	}
	for key, dst := range millis {
		if isNullRaw(raw[key]) {
			*dst = &zeroMs
		}
	}
	if isNullRaw(raw["weekNumber"]) {
		p.WeekNumber = &zeroInt
	}
	if isNullRaw(raw["dealValue"]) {
		p.DealValue = nil
		p.ClearDealValue = true
	}
	return p
}

func (r CreateCheckinRequest) checkin() domain.Checkin {
	c := domain.Checkin{
		Date:       r.Date,
		Hour:       r.Hour,
		Entries:    r.Entries,
		HubUpdates: r.HubUpdates,
		PingsSent:  r.PingsSent,
		Summary:    r.Summary,
	}
	if r.TS != nil {
		c.TS = *r.TS
	}
	return c
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Version:    e.Version,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		Actor:      e.Actor,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	res := map[string]any{}
	if raw == "" {
		return res
	}
	_ = json.Unmarshal([]byte(raw), &res)
	return res
}

func board(items []domain.ContentItem, t domain.ItemType) BoardResponse {
	cols := make([]BoardColumn, 0, len(domain.BoardColumns))
	idx := map[string]int{}
	for i, c := range domain.BoardColumns {
		status, _ := domain.StatusForColumn(t, c)
		cols = append(cols, BoardColumn{Column: c, Status: status, Items: []domain.ContentItem{}})
		idx[c] = i
	}
	for _, it := range items {
		i := idx[domain.BoardColumn(it.Status)]
		cols[i].Items = append(cols[i].Items, it)
	}
	return BoardResponse{Type: string(t), Columns: cols}
}
