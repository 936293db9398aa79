package domain

// Board columns group every per-type pipeline into one shared lane set.
const (
	ColumnPitch     = "pitch"
	ColumnAssigned  = "assigned"
	ColumnDrafting  = "drafting"
	ColumnReview    = "review"
	ColumnReady     = "ready"
	ColumnPublished = "published"
)

var BoardColumns = []string{ColumnPitch, ColumnAssigned, ColumnDrafting, ColumnReview, ColumnReady, ColumnPublished}

var columnAliases = map[string][]string{
	ColumnPitch:     {"pitch", "planned", "requested"},
	ColumnAssigned:  {"assigned", "accepted", "booked"},
	ColumnDrafting:  {"drafting", "in_progress", "recorded"},
	ColumnReview:    {"review", "copy_edit", "editing"},
	ColumnReady:     {"ready"},
	ColumnPublished: {StatusPublished, StatusDelivered},
}

// BoardColumn places a status on the unified board. Unknown statuses land in
// the pitch column.
func BoardColumn(status string) string {
	for _, col := range BoardColumns {
		for _, alias := range columnAliases[col] {
			if alias == status {
				return col
			}
		}
	}
	return ColumnPitch
}

var columnStatus = map[string]map[ItemType]string{
	ColumnPitch:     {TypeTwitter: "pitch", TypeEditorial: "pitch", TypeTTD: "planned", TypePodcast: "planned", TypePortfolio: "requested"},
	ColumnAssigned:  {TypeTwitter: "drafting", TypeEditorial: "assigned", TypeTTD: "planned", TypePodcast: "booked", TypePortfolio: "accepted"},
	ColumnDrafting:  {TypeTwitter: "drafting", TypeEditorial: "drafting", TypeTTD: "drafting", TypePodcast: "recorded", TypePortfolio: "in_progress"},
	ColumnReview:    {TypeTwitter: "review", TypeEditorial: "review", TypeTTD: "drafting", TypePodcast: "editing", TypePortfolio: "in_progress"},
	ColumnReady:     {TypeTwitter: "review", TypeEditorial: "ready", TypeTTD: "published", TypePodcast: "editing", TypePortfolio: "delivered"},
	ColumnPublished: {TypeTwitter: StatusPublished, TypeEditorial: StatusPublished, TypeTTD: StatusPublished, TypePodcast: StatusPublished, TypePortfolio: StatusDelivered},
}

// StatusForColumn maps a drop onto a board column back to the item type's own
// status vocabulary.
func StatusForColumn(t ItemType, column string) (string, bool) {
	byType, ok := columnStatus[column]
	if !ok {
		return "", false
	}
	s, ok := byType[t]
	return s, ok
}
