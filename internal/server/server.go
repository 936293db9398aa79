package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"contenthub/internal/domain"
	"contenthub/internal/logging"
	"contenthub/internal/metrics"
	"contenthub/internal/migrate"
	"contenthub/internal/repo"
	"contenthub/internal/store"
)

// Config for the HTTP API handler.
type Config struct {
	Store    *store.Store
	Repo     repo.Repo
	Metrics  *metrics.Collector
	Log      logging.Logger
	BasePath string
	// UpcomingDays and StaleDays are the view defaults when a request omits
	// ?days.
	UpcomingDays int
	StaleDays    int
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"item 42 not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"field\":\"status\"}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the hub API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Store == nil {
		return nil, errors.New("server: store is required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.UpcomingDays <= 0 {
		cfg.UpcomingDays = 7
	}
	if cfg.StaleDays <= 0 {
		cfg.StaleDays = 5
	}
	if cfg.Log == nil {
		cfg.Log = logging.Discard()
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	hcfg := huma.DefaultConfig("Content Hub API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerSnapshot(router, cfg.Store)
	if cfg.Metrics != nil {
		router.Handle("/metrics", promhttp.HandlerFor(cfg.Metrics.Registry, promhttp.HandlerOpts{}))
	}
	registerHealth(group, cfg)
	registerItemViews(group, cfg)
	registerItems(group, cfg.Store)
	registerMembers(group, cfg.Store)
	registerCheckins(group, cfg.Store)
	registerDataset(group, cfg.Store)
	registerEvents(group, cfg.Repo)
	registerChanges(group, cfg.Store)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ve store.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": ve.Field, "reason": ve.Reason})
	}
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Content Hub API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

// registerSnapshot serves the dataset in the remote snapshot format so other
// hubs can sync from this one.
func registerSnapshot(r chi.Router, st *store.Store) {
	r.Get("/data.json", func(w http.ResponseWriter, r *http.Request) {
		exp := st.Export()
		snap := store.RemoteSnapshot{
			Version:  exp.Version,
			Items:    exp.Items,
			Members:  exp.Members,
			Checkins: exp.Checkins,
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		json.NewEncoder(w).Encode(snap)
	})
}

func registerHealth(api huma.API, cfg Config) {
	st := cfg.Store
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		body := map[string]any{"status": "ok", "version": st.Version()}
		if err := st.LastPersistError(); err != nil {
			body["status"] = "degraded"
			body["persist_error"] = err.Error()
		}
		if cfg.Repo.DB != nil {
			schema, err := migrate.Check(ctx, cfg.Repo.DB)
			switch {
			case err != nil:
				body["status"] = "degraded"
				body["schema_error"] = err.Error()
			case !schema.UpToDate():
				body["status"] = "degraded"
				body["schema"] = schema
			default:
				body["schema"] = schema
			}
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: body}, nil
	})
}

type itemsBody struct {
	Body []domain.ContentItem `json:"body"`
}

func registerItemViews(api huma.API, cfg Config) {
	st := cfg.Store
	huma.Register(api, huma.Operation{
		OperationID: "list-items",
		Method:      http.MethodGet,
		Path:        "/items",
		Summary:     "List items",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type          string `query:"type" enum:"twitter,editorial,ttd,podcast,portfolio"`
		Status        string `query:"status"`
		Assignee      string `query:"assignee"`
		ArtStatus     string `query:"art_status"`
		PaymentStatus string `query:"payment_status"`
		Active        bool   `query:"active"`
	}) (*itemsBody, error) {
		items := st.ListItems(store.Filter{
			Type:          domain.ItemType(input.Type),
			Status:        input.Status,
			Assignee:      input.Assignee,
			ArtStatus:     input.ArtStatus,
			PaymentStatus: input.PaymentStatus,
			ActiveOnly:    input.Active,
		})
		return &itemsBody{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-overdue",
		Method:      http.MethodGet,
		Path:        "/items/overdue",
		Summary:     "Active items past their due date",
	}, func(ctx context.Context, _ *struct{}) (*itemsBody, error) {
		return &itemsBody{Body: st.Overdue()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-upcoming",
		Method:      http.MethodGet,
		Path:        "/items/upcoming",
		Summary:     "Active items due soon",
	}, func(ctx context.Context, input *struct {
		Days int `query:"days" minimum:"0"`
	}) (*itemsBody, error) {
		days := input.Days
		if days == 0 {
			days = cfg.UpcomingDays
		}
		return &itemsBody{Body: st.Upcoming(days)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-stale",
		Method:      http.MethodGet,
		Path:        "/items/stale",
		Summary:     "Active items without recent updates",
	}, func(ctx context.Context, input *struct {
		Days int `query:"days" minimum:"0"`
	}) (*itemsBody, error) {
		days := input.Days
		if days == 0 {
			days = cfg.StaleDays
		}
		return &itemsBody{Body: st.Stale(days)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stats",
		Method:      http.MethodGet,
		Path:        "/stats",
		Summary:     "Dashboard counts",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body store.Stats `json:"body"`
	}, error) {
		return &struct {
			Body store.Stats `json:"body"`
		}{Body: st.Stats()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "board",
		Method:      http.MethodGet,
		Path:        "/board",
		Summary:     "Items of one type grouped into board columns",
	}, func(ctx context.Context, input *struct {
		Type string `query:"type" required:"true" enum:"twitter,editorial,ttd,podcast,portfolio"`
	}) (*struct {
		Body BoardResponse `json:"body"`
	}, error) {
		t := domain.ItemType(input.Type)
		return &struct {
			Body BoardResponse `json:"body"`
		}{Body: board(st.Items(t), t)}, nil
	})
}

type itemBody struct {
	Body domain.ContentItem `json:"body"`
}

type itemPath struct {
	ID string `path:"id"`
}

func registerItems(api huma.API, st *store.Store) {
	huma.Register(api, huma.Operation{
		OperationID: "get-item",
		Method:      http.MethodGet,
		Path:        "/items/{id}",
		Summary:     "Get item",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *itemPath) (*itemBody, error) {
		it, err := st.GetItem(input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &itemBody{Body: it}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-item",
		Method:        http.MethodPost,
		Path:          "/items",
		Summary:       "Create item",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateItemRequest `json:"body"`
	}) (*itemBody, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		it, err := st.CreateItem(ctx, input.Body.newItem())
		if err != nil {
			return nil, handleError(err)
		}
		return &itemBody{Body: it}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:      "update-item",
		Method:           http.MethodPatch,
		Path:             "/items/{id}",
		Summary:          "Partially update item",
		Description:      "Absent fields are left unchanged; null clears a field.",
		SkipValidateBody: true,
		Errors:           []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body UpdateItemRequest `json:"body"`
	}) (*itemBody, error) {
		raw := rawBodyMap(ctx)
		if isNullRaw(raw["title"]) {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title cannot be cleared", map[string]any{"field": "title"})
		}
		if isNullRaw(raw["status"]) {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "status cannot be cleared", map[string]any{"field": "status"})
		}
		if _, ok := raw["type"]; ok {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "type is not patchable", map[string]any{"field": "type"})
		}
		it, err := st.UpdateItem(ctx, input.ID, input.Body.patch(raw))
		if err != nil {
			return nil, handleError(err)
		}
		return &itemBody{Body: it}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-item-status",
		Method:      http.MethodPut,
		Path:        "/items/{id}/status",
		Summary:     "Move item to a status of its pipeline",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body UpdateStatusRequest `json:"body"`
	}) (*itemBody, error) {
		it, err := st.UpdateStatus(ctx, input.ID, input.Body.Status, input.Body.By)
		if err != nil {
			return nil, handleError(err)
		}
		return &itemBody{Body: it}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "advance-item",
		Method:      http.MethodPost,
		Path:        "/items/{id}/advance",
		Summary:     "Move item to the next stage of its pipeline",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body *struct {
			By string `json:"by,omitempty"`
		} `json:"body" required:"false"`
	}) (*itemBody, error) {
		var actor string
		if input.Body != nil {
			actor = input.Body.By
		}
		it, err := st.AdvanceStatus(ctx, input.ID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &itemBody{Body: it}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "move-item",
		Method:      http.MethodPut,
		Path:        "/items/{id}/column",
		Summary:     "Drop item onto a board column",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body struct {
			Column string `json:"column" enum:"pitch,assigned,drafting,review,ready,published"`
			By     string `json:"by,omitempty"`
		} `json:"body"`
	}) (*itemBody, error) {
		it, err := st.GetItem(input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		status, ok := domain.StatusForColumn(it.Type, input.Body.Column)
		if !ok {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown column", map[string]any{"column": input.Body.Column})
		}
		if status == it.Status {
			return &itemBody{Body: it}, nil
		}
		it, err = st.UpdateStatus(ctx, input.ID, status, input.Body.By)
		if err != nil {
			return nil, handleError(err)
		}
		return &itemBody{Body: it}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-item-handoff",
		Method:      http.MethodPut,
		Path:        "/items/{id}/handoff",
		Summary:     "Record or clear who the item is waiting on",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body HandoffRequest `json:"body"`
	}) (*itemBody, error) {
		it, err := st.SetHandoff(ctx, input.ID, input.Body.WaitingOn, input.Body.Note, input.Body.By)
		if err != nil {
			return nil, handleError(err)
		}
		return &itemBody{Body: it}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-item-activity",
		Method:        http.MethodPost,
		Path:          "/items/{id}/activity",
		Summary:       "Append an activity note",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body AddActivityRequest `json:"body"`
	}) (*itemBody, error) {
		it, err := st.AddActivity(ctx, input.ID, input.Body.Text, input.Body.By)
		if err != nil {
			return nil, handleError(err)
		}
		return &itemBody{Body: it}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-item",
		Method:        http.MethodDelete,
		Path:          "/items/{id}",
		Summary:       "Delete item",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *itemPath) (*struct{}, error) {
		if err := st.RemoveItem(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerMembers(api huma.API, st *store.Store) {
	huma.Register(api, huma.Operation{
		OperationID: "list-members",
		Method:      http.MethodGet,
		Path:        "/members",
		Summary:     "List team members",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.TeamMember `json:"body"`
	}, error) {
		members := st.Members()
		if members == nil {
			members = []domain.TeamMember{}
		}
		return &struct {
			Body []domain.TeamMember `json:"body"`
		}{Body: members}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-member",
		Method:        http.MethodPost,
		Path:          "/members",
		Summary:       "Create team member",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateMemberRequest `json:"body"`
	}) (*struct {
		Body domain.TeamMember `json:"body"`
	}, error) {
		m, err := st.CreateMember(ctx, store.NewMember{
			Name:        input.Body.Name,
			Role:        input.Body.Role,
			Email:       input.Body.Email,
			AvatarColor: input.Body.AvatarColor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TeamMember `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "seed-members",
		Method:      http.MethodPost,
		Path:        "/members/seed",
		Summary:     "Install the starter roster when no members exist",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body SeedResponse `json:"body"`
	}, error) {
		seeded := st.SeedMembers(ctx)
		return &struct {
			Body SeedResponse `json:"body"`
		}{Body: SeedResponse{Seeded: seeded, Members: st.Members()}}, nil
	})
}

func registerCheckins(api huma.API, st *store.Store) {
	huma.Register(api, huma.Operation{
		OperationID: "list-checkins",
		Method:      http.MethodGet,
		Path:        "/checkins",
		Summary:     "List checkins, optionally for one date",
	}, func(ctx context.Context, input *struct {
		Date string `query:"date" doc:"YYYY-MM-DD"`
	}) (*struct {
		Body []domain.Checkin `json:"body"`
	}, error) {
		var res []domain.Checkin
		if input.Date != "" {
			res = st.CheckinsByDate(input.Date)
		} else {
			res = append([]domain.Checkin{}, st.Checkins()...)
		}
		return &struct {
			Body []domain.Checkin `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-checkin-dates",
		Method:      http.MethodGet,
		Path:        "/checkins/dates",
		Summary:     "Distinct checkin dates, newest first",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []string `json:"body"`
	}, error) {
		return &struct {
			Body []string `json:"body"`
		}{Body: st.CheckinDates()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-checkin",
		Method:        http.MethodPost,
		Path:          "/checkins",
		Summary:       "Record a checkin",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateCheckinRequest `json:"body"`
	}) (*struct {
		Body domain.Checkin `json:"body"`
	}, error) {
		c, err := st.AddCheckin(ctx, input.Body.checkin())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Checkin `json:"body"`
		}{Body: c}, nil
	})
}

func registerDataset(api huma.API, st *store.Store) {
	huma.Register(api, huma.Operation{
		OperationID: "export",
		Method:      http.MethodGet,
		Path:        "/export",
		Summary:     "Export the whole dataset",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body store.Export `json:"body"`
	}, error) {
		return &struct {
			Body store.Export `json:"body"`
		}{Body: st.Export()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "import",
		Method:      http.MethodPost,
		Path:        "/import",
		Summary:     "Replace the dataset unconditionally",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body store.ImportData `json:"body"`
	}) (*struct {
		Body ImportResponse `json:"body"`
	}, error) {
		v, err := st.Import(ctx, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ImportResponse `json:"body"`
		}{Body: ImportResponse{Version: v, Items: len(input.Body.Items)}}, nil
	})
}

func registerEvents(api huma.API, r repo.Repo) {
	if r.DB == nil {
		return
	}
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent journal events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"item,member,checkin,dataset"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := r.LatestEventsFrom(ctx, limit+1, cursorID, repo.EventFilter{
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

// registerChanges streams one "version" event on connect and one after every
// committed change.
func registerChanges(api huma.API, st *store.Store) {
	sse.Register(api, huma.Operation{
		OperationID: "changes",
		Method:      http.MethodGet,
		Path:        "/changes",
		Summary:     "Server-sent change feed",
	}, map[string]any{
		"version": VersionEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		wake := make(chan struct{}, 1)
		unsubscribe := st.Subscribe(func() {
			select {
			case wake <- struct{}{}:
			default:
			}
		})
		defer unsubscribe()
		emit := func() error {
			return send.Data(VersionEvent{Version: st.Version(), Items: len(st.AllItems())})
		}
		if err := emit(); err != nil {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-wake:
				if err := emit(); err != nil {
					return
				}
			}
		}
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func rawBodyMap(ctx context.Context) map[string]json.RawMessage {
	data := bodyBytes(ctx)
	if len(data) == 0 {
		return map[string]json.RawMessage{}
	}
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(data, &outer); err != nil {
		return map[string]json.RawMessage{}
	}
	return outer
}

func isNullRaw(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && bytes.Equal(trimmed, []byte("null"))
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
