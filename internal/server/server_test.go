package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"contenthub/internal/config"
	"contenthub/internal/db"
	"contenthub/internal/domain"
	"contenthub/internal/events"
	"contenthub/internal/metrics"
	"contenthub/internal/migrate"
	"contenthub/internal/repo"
	"contenthub/internal/store"
)

var testNow = time.Date(2026, 3, 18, 12, 0, 0, 0, time.UTC)

type testServer struct {
	URL    string
	Store  *store.Store
	Repo   repo.Repo
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(context.Background(), conn, nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	now := func() time.Time { return testNow }
	r := repo.Repo{DB: conn, Now: now}
	var seq atomic.Int64
	journal := events.Writer{Repo: r, Now: now}
	m := metrics.New()
	st := store.New(r,
		store.WithClock(now),
		store.WithIDGenerator(func() string { return fmt.Sprintf("id-%d", seq.Add(1)) }),
		store.WithMetrics(m),
		store.WithCommitHook(journal.Hook()),
	)
	handler, err := New(Config{Store: st, Repo: r, Metrics: m, BasePath: "/v0"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Store:  st,
		Repo:   r,
		client: &http.Client{},
		close: func() {
			srv.Close()
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func createItem(t *testing.T, srv *testServer, body map[string]any) domain.ContentItem {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/items", body, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create item status %d: %s", res.StatusCode, string(data))
	}
	var it domain.ContentItem
	if err := json.Unmarshal(data, &it); err != nil {
		t.Fatalf("unmarshal item: %v", err)
	}
	return it
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return env.Error.Code
}

func TestItemLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	created := createItem(t, srv, map[string]any{
		"type":      "editorial",
		"title":     "Quarterly essay",
		"assignee":  "Dana",
		"createdBy": "Lee",
	})
	if created.Status != "pitch" {
		t.Fatalf("expected initial status pitch, got %s", created.Status)
	}
	if len(created.Activity) != 1 || created.Activity[0].Text != "Created" {
		t.Fatalf("expected creation activity, got %+v", created.Activity)
	}

	res, data := doJSON(t, client, http.MethodPut, srv.URL+"/v0/items/"+created.ID+"/status", map[string]any{
		"status": "drafting",
		"by":     "Dana",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/items/"+created.ID+"/advance", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("advance %d: %s", res.StatusCode, string(data))
	}
	var advanced domain.ContentItem
	_ = json.Unmarshal(data, &advanced)
	if advanced.Status != "review" {
		t.Fatalf("expected review after advance, got %s", advanced.Status)
	}

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/items/"+created.ID+"/handoff", map[string]any{
		"waitingOn": "Sam",
		"note":      "needs art",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("handoff %d: %s", res.StatusCode, string(data))
	}
	var handed domain.ContentItem
	_ = json.Unmarshal(data, &handed)
	if handed.WaitingOn != "Sam" || handed.HandoffAt == nil {
		t.Fatalf("expected handoff to Sam, got %+v", handed)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/items/"+created.ID+"/activity", map[string]any{
		"text": "Sent to legal",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("activity %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/items/"+created.ID, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get %d: %s", res.StatusCode, string(data))
	}
	var fetched domain.ContentItem
	_ = json.Unmarshal(data, &fetched)
	if len(fetched.Activity) != 5 {
		t.Fatalf("expected 5 activity entries, got %d", len(fetched.Activity))
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/items/"+created.ID, nil, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/items/"+created.ID, nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", res.StatusCode)
	}
	if code := errorCode(t, data); code != "not_found" {
		t.Fatalf("expected not_found code, got %s", code)
	}
	if v := srv.Store.Version(); v != 6 {
		t.Fatalf("expected version 6, got %d", v)
	}
}

func TestPatchNullClears(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	created := createItem(t, srv, map[string]any{
		"type":     "twitter",
		"title":    "Launch thread",
		"assignee": "Dana",
		"dueDate":  testNow.Add(48 * time.Hour).UnixMilli(),
	})

	res, data := doJSON(t, client, http.MethodPatch, srv.URL+"/v0/items/"+created.ID,
		`{"title":"Launch thread v2","assignee":null,"dueDate":null}`, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch %d: %s", res.StatusCode, string(data))
	}
	var patched domain.ContentItem
	_ = json.Unmarshal(data, &patched)
	if patched.Title != "Launch thread v2" {
		t.Fatalf("expected new title, got %s", patched.Title)
	}
	if patched.Assignee != "" || patched.DueDate != nil {
		t.Fatalf("expected cleared assignee and due date, got %+v", patched)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/items/"+created.ID, `{"title":null}`, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 clearing title, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/items/"+created.ID, `{"category":"bogus"}`, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad category, got %d %s", res.StatusCode, string(data))
	}
}

func TestValidationErrors(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/items", map[string]any{
		"type":  "twitter",
		"title": "   ",
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank title, got %d %s", res.StatusCode, string(data))
	}

	created := createItem(t, srv, map[string]any{"type": "podcast", "title": "Episode 12"})
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/items/"+created.ID+"/status", map[string]any{
		"status": "copy_edit",
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for foreign status, got %d %s", res.StatusCode, string(data))
	}
	if srv.Store.Version() != 1 {
		t.Fatalf("rejected mutation must not bump version, got %d", srv.Store.Version())
	}

	res, _ = doJSON(t, client, http.MethodPut, srv.URL+"/v0/items/missing/status", map[string]any{"status": "planned"}, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.StatusCode)
	}
}

func TestViewsAndBoard(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	createItem(t, srv, map[string]any{"type": "twitter", "title": "Late", "dueDate": testNow.Add(-24 * time.Hour).UnixMilli()})
	createItem(t, srv, map[string]any{"type": "twitter", "title": "Soon", "dueDate": testNow.Add(72 * time.Hour).UnixMilli()})
	createItem(t, srv, map[string]any{"type": "twitter", "title": "Done", "status": "published"})

	var items []domain.ContentItem
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/items/overdue", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("overdue %d: %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &items)
	if len(items) != 1 || items[0].Title != "Late" {
		t.Fatalf("expected one overdue item, got %+v", items)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/items/upcoming?days=7", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("upcoming %d: %s", res.StatusCode, string(data))
	}
	items = nil
	_ = json.Unmarshal(data, &items)
	if len(items) != 1 || items[0].Title != "Soon" {
		t.Fatalf("expected one upcoming item, got %+v", items)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/items?active=true", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list %d: %s", res.StatusCode, string(data))
	}
	items = nil
	_ = json.Unmarshal(data, &items)
	if len(items) != 2 {
		t.Fatalf("expected 2 active items, got %d", len(items))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/stats", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("stats %d: %s", res.StatusCode, string(data))
	}
	var stats store.Stats
	_ = json.Unmarshal(data, &stats)
	if stats.TotalActive != 2 || stats.OverdueCount != 1 || stats.PublishedThisMonth != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/board?type=twitter", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("board %d: %s", res.StatusCode, string(data))
	}
	var b BoardResponse
	_ = json.Unmarshal(data, &b)
	if len(b.Columns) != len(domain.BoardColumns) {
		t.Fatalf("expected %d columns, got %d", len(domain.BoardColumns), len(b.Columns))
	}
	if n := len(b.Columns[0].Items); n != 2 {
		t.Fatalf("expected 2 items in pitch column, got %d", n)
	}
	if last := b.Columns[len(b.Columns)-1]; len(last.Items) != 1 {
		t.Fatalf("expected 1 published item, got %d", len(last.Items))
	}
}

func TestMoveToColumn(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	created := createItem(t, srv, map[string]any{"type": "podcast", "title": "Guest slot"})
	res, data := doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/items/"+created.ID+"/column", map[string]any{
		"column": "assigned",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("move %d: %s", res.StatusCode, string(data))
	}
	var moved domain.ContentItem
	_ = json.Unmarshal(data, &moved)
	if moved.Status != "booked" {
		t.Fatalf("expected booked, got %s", moved.Status)
	}

	version := srv.Store.Version()
	res, data = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/items/"+created.ID+"/column", map[string]any{
		"column": "assigned",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("repeat move %d: %s", res.StatusCode, string(data))
	}
	var again domain.ContentItem
	_ = json.Unmarshal(data, &again)
	if again.Status != "booked" || len(again.Activity) != len(moved.Activity) {
		t.Fatalf("dropping on the current column must not log activity, got %+v", again.Activity)
	}
	if srv.Store.Version() != version {
		t.Fatalf("expected version to stay %d, got %d", version, srv.Store.Version())
	}
}

func TestCreateStampsActivity(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	created := createItem(t, srv, map[string]any{
		"type":     "editorial",
		"title":    "x",
		"activity": []map[string]any{{"text": "imported note", "by": "Joel"}},
	})
	if len(created.Activity) != 2 {
		t.Fatalf("expected two activity entries, got %+v", created.Activity)
	}
	if created.Activity[0].TS != domain.FromTime(testNow) || created.Activity[0].Text != "imported note" {
		t.Fatalf("expected supplied entry stamped at creation, got %+v", created.Activity[0])
	}

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/items", map[string]any{
		"type":     "editorial",
		"title":    "y",
		"activity": []map[string]any{{"text": " "}},
	}, nil)
	if res.StatusCode != http.StatusBadRequest || errorCode(t, data) != "bad_request" {
		t.Fatalf("expected 400 for blank activity text, got %d: %s", res.StatusCode, string(data))
	}
}

func TestPatchDealValue(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	created := createItem(t, srv, map[string]any{"type": "portfolio", "title": "Pro bono", "dealValue": 1200})

	res, data := doJSON(t, client, http.MethodPatch, srv.URL+"/v0/items/"+created.ID, `{"dealValue":0}`, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch %d: %s", res.StatusCode, string(data))
	}
	var it domain.ContentItem
	_ = json.Unmarshal(data, &it)
	if it.DealValue == nil || *it.DealValue != 0 {
		t.Fatalf("expected a stored zero deal value, got %v", it.DealValue)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/items/"+created.ID, `{"dealValue":null}`, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch %d: %s", res.StatusCode, string(data))
	}
	it = domain.ContentItem{}
	_ = json.Unmarshal(data, &it)
	if it.DealValue != nil {
		t.Fatalf("expected null to clear the deal value, got %v", *it.DealValue)
	}
}

func TestMembersAndCheckins(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/members/seed", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("seed %d: %s", res.StatusCode, string(data))
	}
	var seeded SeedResponse
	_ = json.Unmarshal(data, &seeded)
	if !seeded.Seeded || len(seeded.Members) == 0 {
		t.Fatalf("expected starter members, got %+v", seeded)
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/members/seed", nil, nil)
	_ = json.Unmarshal(data, &seeded)
	if res.StatusCode != http.StatusOK || seeded.Seeded {
		t.Fatalf("second seed must be a no-op, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/members", map[string]any{
		"name": seeded.Members[0].Name,
		"role": "Writer",
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected duplicate member rejection, got %d %s", res.StatusCode, string(data))
	}

	for _, hour := range []int{15, 9} {
		res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/checkins", map[string]any{
			"date":    "2026-03-18",
			"hour":    hour,
			"summary": fmt.Sprintf("%d o'clock sweep", hour),
		}, nil)
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("checkin %d: %s", res.StatusCode, string(data))
		}
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/checkins?date=2026-03-18", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list checkins %d: %s", res.StatusCode, string(data))
	}
	var checkins []domain.Checkin
	_ = json.Unmarshal(data, &checkins)
	if len(checkins) != 2 || checkins[0].Hour != 9 {
		t.Fatalf("expected checkins sorted by hour, got %+v", checkins)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/checkins/dates", nil, nil)
	var dates []string
	_ = json.Unmarshal(data, &dates)
	if res.StatusCode != http.StatusOK || len(dates) != 1 || dates[0] != "2026-03-18" {
		t.Fatalf("unexpected dates %d %s", res.StatusCode, string(data))
	}
}

func TestExportImportAndSnapshot(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	createItem(t, srv, map[string]any{"type": "ttd", "title": "Weekly digest"})
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/export", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("export %d: %s", res.StatusCode, string(data))
	}
	var exp store.Export
	_ = json.Unmarshal(data, &exp)
	if exp.Version != 1 || len(exp.Items) != 1 {
		t.Fatalf("unexpected export %+v", exp)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/import", map[string]any{
		"version": 40,
		"items":   exp.Items,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("import %d: %s", res.StatusCode, string(data))
	}
	var imp ImportResponse
	_ = json.Unmarshal(data, &imp)
	if imp.Version != 40 || imp.Items != 1 {
		t.Fatalf("unexpected import response %+v", imp)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/data.json", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("snapshot %d: %s", res.StatusCode, string(data))
	}
	if cc := res.Header.Get("Cache-Control"); cc != "no-store" {
		t.Fatalf("expected no-store, got %q", cc)
	}
	var snap store.RemoteSnapshot
	_ = json.Unmarshal(data, &snap)
	if snap.Version != 40 || len(snap.Items) != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestEventsPagination(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	for i := 0; i < 3; i++ {
		createItem(t, srv, map[string]any{"type": "twitter", "title": fmt.Sprintf("Post %d", i)})
	}
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?limit=2", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events %d: %s", res.StatusCode, string(data))
	}
	var page paginatedEvents
	_ = json.Unmarshal(data, &page)
	if len(page.Items) != 2 || page.NextCursor == "" {
		t.Fatalf("expected a full first page, got %+v", page)
	}
	if page.Items[0].Version != 3 || page.Items[0].Type != "item.created" {
		t.Fatalf("expected newest event first, got %+v", page.Items[0])
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?limit=2&cursor="+page.NextCursor, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events page 2 %d: %s", res.StatusCode, string(data))
	}
	page = paginatedEvents{}
	_ = json.Unmarshal(data, &page)
	if len(page.Items) != 1 || page.NextCursor != "" {
		t.Fatalf("expected last page with one event, got %+v", page)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?cursor=abc", nil, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad cursor, got %d", res.StatusCode)
	}
}

func TestChangeFeed(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v0/changes", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("open feed: %v", err)
	}
	defer res.Body.Close()
	if ct := res.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("expected event stream, got %q", ct)
	}

	lines := bufio.NewScanner(res.Body)
	next := func() VersionEvent {
		t.Helper()
		for lines.Scan() {
			line := lines.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			var evt VersionEvent
			if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &evt); err != nil {
				t.Fatalf("decode event: %v", err)
			}
			return evt
		}
		t.Fatalf("feed closed: %v", lines.Err())
		return VersionEvent{}
	}

	if first := next(); first.Version != 0 {
		t.Fatalf("expected initial version 0, got %d", first.Version)
	}
	if _, err := srv.Store.CreateItem(ctx, store.NewItem{Type: domain.TypeTwitter, Title: "Live"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if evt := next(); evt.Version != 1 || evt.Items != 1 {
		t.Fatalf("expected version 1 with one item, got %+v", evt)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), `"ok"`) {
		t.Fatalf("health %d: %s", res.StatusCode, string(data))
	}
	var health struct {
		Status string `json:"status"`
		Schema struct {
			Current int `json:"current"`
			Latest  int `json:"latest"`
		} `json:"schema"`
	}
	if err := json.Unmarshal(data, &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Schema.Latest == 0 || health.Schema.Current != health.Schema.Latest {
		t.Fatalf("expected schema at latest, got %+v", health.Schema)
	}
	createItem(t, srv, map[string]any{"type": "twitter", "title": "Counted"})
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/metrics", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("metrics %d", res.StatusCode)
	}
	if !strings.Contains(string(data), "hub_store_version 1") {
		t.Fatalf("expected version gauge in metrics output")
	}
}

func TestWebhookDelivery(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	received := make(chan http.Header, 4)
	var bodies atomic.Value
	hookLn, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	hookSrv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		bodies.Store(data)
		received <- r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	})}
	go hookSrv.Serve(hookLn)
	defer hookSrv.Close()
	hookURL := "http://" + hookLn.Addr().String() + "/in"

	// Events before the first dispatch are skipped.
	createItem(t, srv, map[string]any{"type": "twitter", "title": "Before"})

	d := newWebhookDispatcher(WebhookOptions{Repo: srv.Repo}, []config.WebhookConfig{{
		URL:    hookURL,
		Events: []string{"item.status"},
		Secret: "s3cret",
	}})
	ctx := context.Background()
	d.dispatchAll(ctx)

	it := createItem(t, srv, map[string]any{"type": "twitter", "title": "After"})
	if _, err := srv.Store.UpdateStatus(ctx, it.ID, "drafting", "Dana"); err != nil {
		t.Fatalf("status: %v", err)
	}
	d.dispatchAll(ctx)

	select {
	case h := <-received:
		if h.Get("X-Hub-Event") != "item.status" || h.Get("X-Hub-Secret") != "s3cret" {
			t.Fatalf("unexpected headers %v", h)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("webhook not delivered")
	}
	var evt webhookEvent
	if err := json.Unmarshal(bodies.Load().([]byte), &evt); err != nil {
		t.Fatalf("decode webhook body: %v", err)
	}
	if evt.EntityID != it.ID || evt.Version != 3 {
		t.Fatalf("unexpected webhook event %+v", evt)
	}
	select {
	case h := <-received:
		t.Fatalf("unexpected extra delivery %v", h)
	default:
	}

	latest, _ := srv.Repo.LatestEventID(ctx)
	cur, err := srv.Repo.WebhookCursor(ctx, hookURL)
	if err != nil || cur != latest {
		t.Fatalf("expected cursor %d, got %d (%v)", latest, cur, err)
	}
}
