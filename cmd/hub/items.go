package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"contenthub/internal/app"
	"contenthub/internal/domain"
	"contenthub/internal/store"
)

const dateLayout = "2006-01-02"

func itemCmd() *cobra.Command {
	item := &cobra.Command{
		Use:   "item",
		Short: "Manage content items",
		Long:  "Items move through the status pipeline of their type:\n" + pipelines(),
	}
	item.AddCommand(itemCreateCmd())
	item.AddCommand(itemListCmd())
	item.AddCommand(itemGetCmd())
	item.AddCommand(itemUpdateCmd())
	item.AddCommand(itemStatusCmd())
	item.AddCommand(itemAdvanceCmd())
	item.AddCommand(itemHandoffCmd())
	item.AddCommand(itemNoteCmd())
	item.AddCommand(itemDeleteCmd())
	return item
}

func pipelines() string {
	var b strings.Builder
	for _, t := range domain.ItemTypes {
		fmt.Fprintf(&b, "- %s: %s\n", t, strings.Join(domain.Statuses(t), " -> "))
	}
	return b.String()
}

func itemCreateCmd() *cobra.Command {
	var in store.NewItem
	var itemType, due string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create item",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Type = domain.ItemType(itemType)
			if due != "" {
				ms, err := parseDate(due)
				if err != nil {
					return err
				}
				in.DueDate = &ms
			}
			if in.CreatedBy == "" {
				in.CreatedBy = viper.GetString("actor")
			}
			return withHub(cmd.Context(), func(ctx context.Context, h *app.Hub) error {
				it, err := h.Store.CreateItem(ctx, in)
				if err != nil {
					return err
				}
				return printItem(it)
			})
		},
	}
	cmd.Flags().StringVar(&itemType, "type", "", "item type (twitter, editorial, ttd, podcast, portfolio)")
	cmd.Flags().StringVar(&in.Title, "title", "", "title")
	cmd.Flags().StringVar(&in.Description, "description", "", "description")
	cmd.Flags().StringVar(&in.Status, "status", "", "initial status (defaults to the first stage)")
	cmd.Flags().StringVar(&in.Assignee, "assignee", "", "assignee name")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&in.Category, "category", "", "category")
	cmd.Flags().StringVar(&in.Format, "format", "", "tweet format")
	cmd.Flags().StringVar(&in.Guest, "guest", "", "podcast guest")
	cmd.Flags().StringVar(&in.Company, "company", "", "portfolio company")
	cmd.Flags().StringVar(&in.Priority, "priority", "", "priority (low, medium, high)")
	cmd.Flags().StringVar(&in.Notes, "notes", "", "notes")
	cmd.Flags().StringVar(&in.CreatedBy, "created-by", "", "creator (defaults to --actor)")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func itemListCmd() *cobra.Command {
	var f store.Filter
	var itemType string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List items",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Type = domain.ItemType(itemType)
			return withHub(cmd.Context(), func(ctx context.Context, h *app.Hub) error {
				return printItems(h.Store.ListItems(f))
			})
		},
	}
	cmd.Flags().StringVar(&itemType, "type", "", "type filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Assignee, "assignee", "", "assignee filter (Unassigned for none)")
	cmd.Flags().StringVar(&f.ArtStatus, "art-status", "", "art status filter")
	cmd.Flags().StringVar(&f.PaymentStatus, "payment-status", "", "payment status filter")
	cmd.Flags().BoolVar(&f.ActiveOnly, "active", false, "hide published and delivered items")
	return cmd
}

func itemGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHub(cmd.Context(), func(ctx context.Context, h *app.Hub) error {
				it, err := h.Store.GetItem(args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(it)
			})
		},
	}
}

func itemUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update item fields",
		Long:  "Only flags that are passed are changed; pass an empty value (--assignee \"\") to clear a field.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := patchFromFlags(cmd.Flags())
			if err != nil {
				return err
			}
			if patch.Empty() {
				return fmt.Errorf("nothing to update")
			}
			return withHub(cmd.Context(), func(ctx context.Context, h *app.Hub) error {
				it, err := h.Store.UpdateItem(ctx, args[0], patch)
				if err != nil {
					return err
				}
				return printItem(it)
			})
		},
	}
	for _, name := range []string{"title", "description", "status", "assignee", "category", "format", "guest", "company",
		"request-type", "priority", "notes", "draft-url", "art-status", "art-assignee", "art-notes", "payment-status", "client"} {
		cmd.Flags().String(name, "", name)
	}
	cmd.Flags().String("due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().String("art-due", "", "art due date (YYYY-MM-DD)")
	cmd.Flags().String("week", "", "TTD week number")
	cmd.Flags().String("deal-value", "", "portfolio deal value")
	return cmd
}

// patchFromFlags builds a patch from the flags the user actually set.
func patchFromFlags(fs *pflag.FlagSet) (store.ItemPatch, error) {
	var p store.ItemPatch
	str := func(name string) *string {
		if !fs.Changed(name) {
			return nil
		}
		v, _ := fs.GetString(name)
		return &v
	}
	p.Title = str("title")
	p.Description = str("description")
	p.Status = str("status")
	p.Assignee = str("assignee")
	p.Category = str("category")
	p.Format = str("format")
	p.Guest = str("guest")
	p.Company = str("company")
	p.RequestType = str("request-type")
	p.Priority = str("priority")
	p.Notes = str("notes")
	p.DraftURL = str("draft-url")
	p.ArtStatus = str("art-status")
	p.ArtAssignee = str("art-assignee")
	p.ArtNotes = str("art-notes")
	p.PaymentStatus = str("payment-status")
	p.Client = str("client")

	var err error
	if p.DueDate, err = dateFlag(str("due")); err != nil {
		return p, err
	}
	if p.ArtDueDate, err = dateFlag(str("art-due")); err != nil {
		return p, err
	}
	if v := str("week"); v != nil {
		n := 0
		if *v != "" {
			if n, err = strconv.Atoi(*v); err != nil {
				return p, fmt.Errorf("--week: %w", err)
			}
		}
		p.WeekNumber = &n
	}
	if v := str("deal-value"); v != nil {
		if *v == "" {
			p.ClearDealValue = true
		} else {
			f, err := strconv.ParseFloat(*v, 64)
			if err != nil {
				return p, fmt.Errorf("--deal-value: %w", err)
			}
			p.DealValue = &f
		}
	}
	return p, nil
}

func dateFlag(v *string) (*domain.Millis, error) {
	if v == nil {
		return nil, nil
	}
	if *v == "" {
		zero := domain.Millis(0)
		return &zero, nil
	}
	ms, err := parseDate(*v)
	if err != nil {
		return nil, err
	}
	return &ms, nil
}

func parseDate(s string) (domain.Millis, error) {
	t, err := time.ParseInLocation(dateLayout, s, time.Local)
	if err != nil {
		return 0, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return domain.FromTime(t), nil
}

func itemStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Move item to a status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHub(cmd.Context(), func(ctx context.Context, h *app.Hub) error {
				it, err := h.Store.UpdateStatus(ctx, args[0], args[1], viper.GetString("actor"))
				if err != nil {
					return err
				}
				return printItem(it)
			})
		},
	}
}

func itemAdvanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "advance <id>",
		Short: "Move item to the next stage of its pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHub(cmd.Context(), func(ctx context.Context, h *app.Hub) error {
				it, err := h.Store.AdvanceStatus(ctx, args[0], viper.GetString("actor"))
				if err != nil {
					return err
				}
				return printItem(it)
			})
		},
	}
}

func itemHandoffCmd() *cobra.Command {
	var note string
	var clear bool
	cmd := &cobra.Command{
		Use:   "handoff <id> [waiting-on]",
		Short: "Record who an item is waiting on",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var waitingOn string
			if len(args) == 2 {
				waitingOn = args[1]
			}
			if waitingOn == "" && !clear {
				return fmt.Errorf("name who the item is waiting on, or pass --clear")
			}
			return withHub(cmd.Context(), func(ctx context.Context, h *app.Hub) error {
				it, err := h.Store.SetHandoff(ctx, args[0], waitingOn, note, viper.GetString("actor"))
				if err != nil {
					return err
				}
				return printItem(it)
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "handoff note")
	cmd.Flags().BoolVar(&clear, "clear", false, "clear the handoff")
	return cmd
}

func itemNoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "note <id> <text>",
		Short: "Append an activity note",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args[1:], " ")
			return withHub(cmd.Context(), func(ctx context.Context, h *app.Hub) error {
				it, err := h.Store.AddActivity(ctx, args[0], text, viper.GetString("actor"))
				if err != nil {
					return err
				}
				return printItem(it)
			})
		},
	}
}

func itemDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHub(cmd.Context(), func(ctx context.Context, h *app.Hub) error {
				if err := h.Store.RemoveItem(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Dashboard counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHub(cmd.Context(), func(ctx context.Context, h *app.Hub) error {
				s := h.Store.Stats()
				if viper.GetBool("json") {
					return printJSON(s)
				}
				tw := newTable()
				tw.AppendRows([]table.Row{
					{"Active", s.TotalActive},
					{"Overdue", s.OverdueCount},
					{"Due this week", s.DueThisWeek},
					{"Published this month", s.PublishedThisMonth},
				})
				tw.AppendSeparator()
				for _, k := range sortedKeys(s.ByType) {
					tw.AppendRow(table.Row{"type: " + k, s.ByType[k]})
				}
				tw.AppendSeparator()
				for _, k := range sortedKeys(s.Workload) {
					tw.AppendRow(table.Row{"workload: " + k, s.Workload[k]})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func overdueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "overdue",
		Short: "Active items past their due date",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHub(cmd.Context(), func(ctx context.Context, h *app.Hub) error {
				return printItems(h.Store.Overdue())
			})
		},
	}
}

func upcomingCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "upcoming",
		Short: "Active items due soon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHub(cmd.Context(), func(ctx context.Context, h *app.Hub) error {
				if days <= 0 {
					days = h.Config.Views.UpcomingDays
				}
				return printItems(h.Store.Upcoming(days))
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "window in days (default from hub.yml)")
	return cmd
}

func staleCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "stale",
		Short: "Active items without recent updates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHub(cmd.Context(), func(ctx context.Context, h *app.Hub) error {
				if days <= 0 {
					days = h.Config.Views.StaleDays
				}
				return printItems(h.Store.Stale(days))
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "idle days (default from hub.yml)")
	return cmd
}

func memberCmd() *cobra.Command {
	m := &cobra.Command{Use: "member", Short: "Manage team members"}
	m.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHub(cmd.Context(), func(ctx context.Context, h *app.Hub) error {
				return printMembers(h.Store.Members())
			})
		},
	})
	var in store.NewMember
	create := &cobra.Command{
		Use:   "create",
		Short: "Create member",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHub(cmd.Context(), func(ctx context.Context, h *app.Hub) error {
				member, err := h.Store.CreateMember(ctx, in)
				if err != nil {
					return err
				}
				return printMembers([]domain.TeamMember{member})
			})
		},
	}
	create.Flags().StringVar(&in.Name, "name", "", "name")
	create.Flags().StringVar(&in.Role, "role", "", "role")
	create.Flags().StringVar(&in.Email, "email", "", "email")
	create.Flags().StringVar(&in.AvatarColor, "color", "", "avatar color")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("role")
	m.AddCommand(create)
	m.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Install the starter roster when no members exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHub(cmd.Context(), func(ctx context.Context, h *app.Hub) error {
				if !h.Store.SeedMembers(ctx) {
					fmt.Println("members already present; nothing seeded")
					return nil
				}
				return printMembers(h.Store.Members())
			})
		},
	})
	return m
}

func checkinCmd() *cobra.Command {
	c := &cobra.Command{Use: "checkin", Short: "Manage hourly checkins"}
	var date string
	list := &cobra.Command{
		Use:   "list",
		Short: "List checkins for a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			if date == "" {
				date = time.Now().Format(dateLayout)
			}
			return withHub(cmd.Context(), func(ctx context.Context, h *app.Hub) error {
				checkins := h.Store.CheckinsByDate(date)
				if viper.GetBool("json") {
					return printJSON(checkins)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Hour", "Entries", "Updates", "Pings", "Summary"})
				for _, ck := range checkins {
					tw.AppendRow(table.Row{fmt.Sprintf("%02d:00", ck.Hour), len(ck.Entries), len(ck.HubUpdates), len(ck.PingsSent), ck.Summary})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&date, "date", "", "date (YYYY-MM-DD, default today)")
	c.AddCommand(list)
	c.AddCommand(&cobra.Command{
		Use:   "dates",
		Short: "List dates with checkins, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHub(cmd.Context(), func(ctx context.Context, h *app.Hub) error {
				dates := h.Store.CheckinDates()
				if viper.GetBool("json") {
					return printJSON(dates)
				}
				for _, d := range dates {
					fmt.Println(d)
				}
				return nil
			})
		},
	})
	var in domain.Checkin
	add := &cobra.Command{
		Use:   "add",
		Short: "Record a checkin",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if in.Date == "" {
				in.Date = now.Format(dateLayout)
			}
			if !cmd.Flags().Changed("hour") {
				in.Hour = now.Hour()
			}
			return withHub(cmd.Context(), func(ctx context.Context, h *app.Hub) error {
				ck, err := h.Store.AddCheckin(ctx, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(ck)
			})
		},
	}
	add.Flags().StringVar(&in.Date, "date", "", "date (YYYY-MM-DD, default today)")
	add.Flags().IntVar(&in.Hour, "hour", 0, "hour 0-23 (default current hour)")
	add.Flags().StringVar(&in.Summary, "summary", "", "summary")
	c.AddCommand(add)
	return c
}

func printItem(it domain.ContentItem) error {
	if viper.GetBool("json") {
		return printJSON(it)
	}
	return printItems([]domain.ContentItem{it})
}

func printItems(items []domain.ContentItem) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "Type", "Title", "Status", "Assignee", "Due", "Waiting On"})
	for _, it := range items {
		due := ""
		if it.DueDate != nil {
			due = it.DueDate.Time().Local().Format(dateLayout)
		}
		tw.AppendRow(table.Row{it.ID, it.Type, it.Title, it.Status, it.AssigneeOrUnassigned(), due, it.WaitingOn})
	}
	tw.Render()
	return nil
}

func printMembers(members []domain.TeamMember) error {
	if viper.GetBool("json") {
		return printJSON(members)
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "Name", "Role", "Email"})
	for _, m := range members {
		tw.AppendRow(table.Row{m.ID, m.Name, m.Role, m.Email})
	}
	tw.Render()
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
