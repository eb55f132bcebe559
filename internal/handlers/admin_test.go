package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/tranthanhvu011/DTWH/internal/cleanup"
	"github.com/tranthanhvu011/DTWH/internal/config"
	"github.com/tranthanhvu011/DTWH/internal/control"
	"github.com/tranthanhvu011/DTWH/internal/database"
	"github.com/tranthanhvu011/DTWH/internal/datamart"
	"github.com/tranthanhvu011/DTWH/internal/metrics"
	"github.com/tranthanhvu011/DTWH/internal/models"
	"github.com/tranthanhvu011/DTWH/internal/scheduler"
	"github.com/tranthanhvu011/DTWH/internal/search"
	"github.com/tranthanhvu011/DTWH/internal/testutil"
	"github.com/tranthanhvu011/DTWH/internal/warehouse"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type sliceSource []models.StagedProduct

func (s sliceSource) StagedProducts(ctx context.Context) ([]models.StagedProduct, error) {
	return s, nil
}

type fakeSearch struct {
	params search.FilterParams
}

func (f *fakeSearch) Search(params search.FilterParams) (*search.SearchResult, error) {
	f.params = params
	return &search.SearchResult{Hits: []search.Document{{ID: 1, ProductName: "Laptop A"}}, TotalHits: 1}, nil
}

type fakeQueue struct {
	submitted []string
	err       error
}

func (q *fakeQueue) Submit(stage string) (scheduler.Run, error) {
	if q.err != nil {
		return scheduler.Run{}, q.err
	}
	if !scheduler.ValidStage(stage) {
		return scheduler.Run{}, scheduler.ErrUnknownStage
	}
	q.submitted = append(q.submitted, stage)
	return scheduler.Run{ID: "run-1", Stage: stage, State: scheduler.RunQueued}, nil
}

func (q *fakeQueue) Get(id string) (scheduler.Run, bool) {
	if id != "run-1" {
		return scheduler.Run{}, false
	}
	return scheduler.Run{ID: id, Stage: scheduler.StageAll, State: scheduler.RunSucceeded}, true
}

func (q *fakeQueue) Recent(n int) []scheduler.Run {
	return []scheduler.Run{{ID: "run-1"}}
}

type pingErr struct{ err error }

func (p pingErr) Ping(ctx context.Context) error { return p.err }

type server struct {
	router *gin.Engine
	search *fakeSearch
	queue  *fakeQueue
}

func newServer(t *testing.T) *server {
	t.Helper()
	clock := testutil.FixedClock()
	log := testutil.Logger(t)

	controlDB := testutil.GormDB(t, database.ControlMigrations)
	store := control.NewStore(controlDB.DB(), 2, models.ProcessWarehouse, clock.Now)
	if err := store.Write(context.Background(), models.ActionLoadWarehouse, "ok", models.StatusSuccess); err != nil {
		t.Fatalf("Write: %v", err)
	}

	wh := testutil.GormDB(t, database.WarehouseMigrations)
	loader := warehouse.NewLoader(wh.DB(), log, warehouse.WithClock(clock.Now))
	for _, p := range []string{"999", "1099"} {
		_, err := loader.Load(context.Background(), sliceSource{{
			ProductName:    "Laptop A",
			Price:          decimal.RequireFromString(p),
			Images:         []string{"a.jpg"},
			Specifications: []models.SpecPair{{Name: "CPU", Value: "i7"}},
		}})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
	}

	mart := testutil.GormDB(t, database.DataMartMigrations)
	if _, err := datamart.NewLoader(wh.DB(), mart.DB(), clock.Now, log).Load(context.Background()); err != nil {
		t.Fatalf("datamart Load: %v", err)
	}

	s := &server{router: gin.New(), search: &fakeSearch{}, queue: &fakeQueue{}}
	NewAdminHandler(Deps{
		Control:   store,
		Cleanup:   cleanup.NewService(controlDB.DB(), clock.Now, log),
		Warehouse: loader.Store(),
		DataMart:  mart.DB(),
		Search:    s.search,
		Runs:      s.queue,
		Databases: map[string]Pinger{"control": controlDB, "warehouse": wh},
		Metrics:   metrics.New().Handler(),
		Retention: config.DefaultConfig().Cleanup,
		Log:       log,
	}).Register(s.router)
	return s
}

func (s *server) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]interface{}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return w, out
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	w, body := s.do(t, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health = %d %v", w.Code, body)
	}

	h := NewAdminHandler(Deps{Databases: map[string]Pinger{"warehouse": pingErr{errors.New("down")}}})
	r := gin.New()
	h.Register(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded health = %d", rec.Code)
	}
}

func TestGetLogs(t *testing.T) {
	s := newServer(t)
	w, body := s.do(t, http.MethodGet, "/api/logs?limit=10", "")
	if w.Code != http.StatusOK || body["count"] != float64(1) {
		t.Fatalf("logs = %d %v", w.Code, body)
	}
}

func TestGetProductsListsCurrentVersions(t *testing.T) {
	s := newServer(t)
	w, body := s.do(t, http.MethodGet, "/api/products", "")
	if w.Code != http.StatusOK || body["count"] != float64(1) {
		t.Fatalf("products = %d %v", w.Code, body)
	}
	product := body["products"].([]interface{})[0].(map[string]interface{})
	if product["sk"] != float64(2) || product["is_current"] != true {
		t.Fatalf("product = %v", product)
	}
}

func TestGetProductHistory(t *testing.T) {
	s := newServer(t)

	w, body := s.do(t, http.MethodGet, "/api/products/1/history", "")
	if w.Code != http.StatusOK || body["count"] != float64(2) {
		t.Fatalf("history = %d %v", w.Code, body)
	}
	if imgs := body["images"].([]interface{}); len(imgs) != 1 {
		t.Fatalf("images = %v", imgs)
	}

	if w, _ := s.do(t, http.MethodGet, "/api/products/99/history", ""); w.Code != http.StatusNotFound {
		t.Fatalf("missing product = %d", w.Code)
	}
	if w, _ := s.do(t, http.MethodGet, "/api/products/abc/history", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("bad id = %d", w.Code)
	}
}

func TestSearchProducts(t *testing.T) {
	s := newServer(t)
	w, body := s.do(t, http.MethodGet, "/api/search?q=laptop&min_price=100&sort=price_asc", "")
	if w.Code != http.StatusOK || body["total"] != float64(1) {
		t.Fatalf("search = %d %v", w.Code, body)
	}
	if s.search.params.Query != "laptop" || s.search.params.MinPrice == nil || *s.search.params.MinPrice != 100 {
		t.Fatalf("params = %+v", s.search.params)
	}
	if w, _ := s.do(t, http.MethodGet, "/api/search?max_price=cheap", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("bad filter = %d", w.Code)
	}
}

func TestTriggerRun(t *testing.T) {
	s := newServer(t)

	w, body := s.do(t, http.MethodPost, "/api/runs", "")
	if w.Code != http.StatusAccepted || body["stage"] != scheduler.StageAll {
		t.Fatalf("trigger = %d %v", w.Code, body)
	}
	if w, _ := s.do(t, http.MethodPost, "/api/runs", `{"stage":"warehouse"}`); w.Code != http.StatusAccepted {
		t.Fatalf("warehouse trigger = %d", w.Code)
	}
	if len(s.queue.submitted) != 2 || s.queue.submitted[1] != scheduler.StageWarehouse {
		t.Fatalf("submitted = %v", s.queue.submitted)
	}
	if w, _ := s.do(t, http.MethodPost, "/api/runs", `{"stage":"deploy"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("unknown stage = %d", w.Code)
	}

	s.queue.err = scheduler.ErrQueueFull
	if w, _ := s.do(t, http.MethodPost, "/api/runs", ""); w.Code != http.StatusConflict {
		t.Fatalf("queue full = %d", w.Code)
	}

	if w, _ := s.do(t, http.MethodGet, "/api/runs/run-1", ""); w.Code != http.StatusOK {
		t.Fatalf("get run = %d", w.Code)
	}
	if w, _ := s.do(t, http.MethodGet, "/api/runs/nope", ""); w.Code != http.StatusNotFound {
		t.Fatalf("missing run = %d", w.Code)
	}
}

func TestCleanupDefaultsToDryRun(t *testing.T) {
	s := newServer(t)
	w, body := s.do(t, http.MethodPost, "/api/admin/cleanup/run", `{"retention_days": 30}`)
	if w.Code != http.StatusOK || body["dry_run"] != true {
		t.Fatalf("cleanup = %d %v", w.Code, body)
	}

	w, body = s.do(t, http.MethodGet, "/api/admin/stats", "")
	if w.Code != http.StatusOK || body["total"] != float64(1) {
		t.Fatalf("stats = %d %v", w.Code, body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newServer(t)
	w, _ := s.do(t, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Fatalf("metrics = %d", w.Code)
	}
}

func TestUnavailableWithoutDeps(t *testing.T) {
	r := gin.New()
	NewAdminHandler(Deps{}).Register(r)
	for _, path := range []string{"/api/logs", "/api/products", "/api/search", "/api/runs"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s = %d", path, rec.Code)
		}
	}
}
