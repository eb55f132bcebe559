package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tranthanhvu011/DTWH/internal/cleanup"
	"github.com/tranthanhvu011/DTWH/internal/config"
	"github.com/tranthanhvu011/DTWH/internal/datamart"
	"github.com/tranthanhvu011/DTWH/internal/logger"
	"github.com/tranthanhvu011/DTWH/internal/models"
	"github.com/tranthanhvu011/DTWH/internal/scheduler"
	"github.com/tranthanhvu011/DTWH/internal/search"
	"github.com/tranthanhvu011/DTWH/internal/warehouse"
	"gorm.io/gorm"
)

// LogReader reads the control log
type LogReader interface {
	Recent(ctx context.Context, n int) ([]models.LogEntry, error)
}

// Searcher queries the product index
type Searcher interface {
	Search(params search.FilterParams) (*search.SearchResult, error)
}

// RunQueue accepts pipeline runs
type RunQueue interface {
	Submit(stage string) (scheduler.Run, error)
	Get(id string) (scheduler.Run, bool)
	Recent(n int) []scheduler.Run
}

// Pinger checks a database connection
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of the admin API. Nil members disable the
// endpoints that need them.
type Deps struct {
	Control   LogReader
	Cleanup   *cleanup.Service
	Warehouse *warehouse.Store
	DataMart  *gorm.DB
	Search    Searcher
	Runs      RunQueue
	Databases map[string]Pinger
	Metrics   http.Handler
	Retention config.CleanupConfig
	Log       *logger.Logger
}

// AdminHandler handles admin-related requests
type AdminHandler struct {
	deps Deps
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(deps Deps) *AdminHandler {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	return &AdminHandler{deps: deps}
}

// Register mounts every route on r
func (h *AdminHandler) Register(r gin.IRouter) {
	r.GET("/health", h.Health)
	if h.deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(h.deps.Metrics))
	}

	api := r.Group("/api")
	{
		api.GET("/logs", h.GetLogs)
		api.GET("/products", h.GetProducts)
		api.GET("/products/:id/history", h.GetProductHistory)
		api.GET("/search", h.SearchProducts)
		api.POST("/runs", h.TriggerRun)
		api.GET("/runs", h.ListRuns)
		api.GET("/runs/:id", h.GetRun)
	}

	admin := r.Group("/api/admin")
	{
		admin.GET("/stats", h.GetStats)
		admin.POST("/cleanup/run", h.RunCleanup)
	}
}

func unavailable(c *gin.Context, what string) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": what + " not available"})
}

func queryInt(c *gin.Context, key string, def, max int) int {
	v, err := strconv.Atoi(c.DefaultQuery(key, strconv.Itoa(def)))
	if err != nil || v <= 0 {
		return def
	}
	if max > 0 && v > max {
		return max
	}
	return v
}

// Health pings every configured database
func (h *AdminHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	dbs := make(map[string]string, len(h.deps.Databases))
	for name, db := range h.deps.Databases {
		if err := db.Ping(ctx); err != nil {
			dbs[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		dbs[name] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{
		"status":    state,
		"databases": dbs,
		"time":      time.Now(),
	})
}

// GetLogs returns the latest control log rows
func (h *AdminHandler) GetLogs(c *gin.Context) {
	if h.deps.Control == nil {
		unavailable(c, "control log")
		return
	}
	limit := queryInt(c, "limit", 50, 500)

	entries, err := h.deps.Control.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"logs":  entries,
		"count": len(entries),
	})
}

// GetProducts lists the current datamart products
func (h *AdminHandler) GetProducts(c *gin.Context) {
	if h.deps.DataMart == nil {
		unavailable(c, "datamart")
		return
	}
	limit := queryInt(c, "limit", 20, 100)
	page := queryInt(c, "page", 1, 0)

	rows, err := datamart.CurrentProducts(c.Request.Context(), h.deps.DataMart, limit, (page-1)*limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"products": rows,
		"count":    len(rows),
		"page":     page,
	})
}

// GetProductHistory returns every version of a product with its children
func (h *AdminHandler) GetProductHistory(c *gin.Context) {
	if h.deps.Warehouse == nil {
		unavailable(c, "warehouse")
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}
	ctx := c.Request.Context()
	productID := uint(id)

	versions, err := h.deps.Warehouse.History(ctx, productID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(versions) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}
	images, err := h.deps.Warehouse.Images(ctx, productID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	specs, err := h.deps.Warehouse.Specifications(ctx, productID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"product_id":     productID,
		"versions":       versions,
		"count":          len(versions),
		"images":         images,
		"specifications": specs,
	})
}

// SearchProducts queries the product index
func (h *AdminHandler) SearchProducts(c *gin.Context) {
	if h.deps.Search == nil {
		unavailable(c, "search")
		return
	}
	params := search.FilterParams{
		Query:  c.Query("q"),
		SortBy: c.Query("sort"),
		Limit:  int64(queryInt(c, "limit", 20, 100)),
	}
	for key, dst := range map[string]**float64{
		"min_price":    &params.MinPrice,
		"max_price":    &params.MaxPrice,
		"min_discount": &params.MinDiscount,
	} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + key})
			return
		}
		*dst = &v
	}

	res, err := h.deps.Search.Search(params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"hits":            res.Hits,
		"total":           res.TotalHits,
		"processing_time": res.ProcessingTime,
	})
}

// TriggerRun queues a pipeline run
func (h *AdminHandler) TriggerRun(c *gin.Context) {
	if h.deps.Runs == nil {
		unavailable(c, "run queue")
		return
	}
	var req struct {
		Stage string `json:"stage"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Stage == "" {
		req.Stage = scheduler.StageAll
	}

	run, err := h.deps.Runs.Submit(req.Stage)
	switch {
	case errors.Is(err, scheduler.ErrUnknownStage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "stage": req.Stage})
		return
	case errors.Is(err, scheduler.ErrQueueFull), errors.Is(err, scheduler.ErrInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	h.deps.Log.Info("admin: run requested", "id", run.ID, "stage", run.Stage)
	c.JSON(http.StatusAccepted, run)
}

// ListRuns returns the latest runs
func (h *AdminHandler) ListRuns(c *gin.Context) {
	if h.deps.Runs == nil {
		unavailable(c, "run queue")
		return
	}
	runs := h.deps.Runs.Recent(queryInt(c, "limit", 20, 50))
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

// GetRun returns one run by id
func (h *AdminHandler) GetRun(c *gin.Context) {
	if h.deps.Runs == nil {
		unavailable(c, "run queue")
		return
	}
	run, ok := h.deps.Runs.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
		return
	}
	c.JSON(http.StatusOK, run)
}

// GetStats returns control log statistics
func (h *AdminHandler) GetStats(c *gin.Context) {
	if h.deps.Cleanup == nil {
		unavailable(c, "control log")
		return
	}
	stats, err := h.deps.Cleanup.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	expired, err := h.deps.Cleanup.CountExpired(c.Request.Context(), h.deps.Retention.RetentionDays)
	if err != nil {
		h.deps.Log.Warn("failed to count expired logs", "error", err)
	} else {
		stats["expired"] = expired
	}
	c.JSON(http.StatusOK, stats)
}

// RunCleanup purges expired control log rows
func (h *AdminHandler) RunCleanup(c *gin.Context) {
	if h.deps.Cleanup == nil {
		unavailable(c, "control log")
		return
	}
	var req struct {
		RetentionDays    int   `json:"retention_days"`
		MaxDeletionCount int   `json:"max_deletion_count"`
		DryRun           *bool `json:"dry_run"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg := h.deps.Retention
	if req.RetentionDays > 0 {
		cfg.RetentionDays = req.RetentionDays
	}
	if req.MaxDeletionCount > 0 {
		cfg.MaxDeletionCount = req.MaxDeletionCount
	}
	// dry run unless explicitly disabled
	cfg.DryRun = req.DryRun == nil || *req.DryRun

	h.deps.Log.Info("admin: running cleanup", "retention_days", cfg.RetentionDays, "max", cfg.MaxDeletionCount, "dry_run", cfg.DryRun)
	result, err := h.deps.Cleanup.Purge(c.Request.Context(), cfg)
	if err != nil {
		h.deps.Log.Error("admin: cleanup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}
