// Package api exposes cases over HTTP: create, process, resume, withdraw,
// and the observability reads (record, audit trail, write counts, metrics).
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/caseflow/internal/casefile"
	"github.com/roach88/caseflow/internal/engine"
)

type Handler struct {
	Cases    *engine.Orchestrator
	Gatherer prometheus.Gatherer
}

// NewRouter registers every route on a new gin engine.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLog())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if h.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{})))
	}
	r.GET("/writes", h.Writes)

	cases := r.Group("/cases")
	cases.GET("", h.List)
	cases.POST("", h.Create)
	cases.GET("/:id", h.Get)
	cases.POST("/:id/process", h.Process)
	cases.POST("/:id/resume", h.Resume)
	cases.POST("/:id/withdraw", h.Withdraw)
	cases.GET("/:id/audit", h.Audit)
	cases.GET("/:id/writes", h.CaseWrites)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
	return r
}

func requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch casefile.KindOf(err) {
	case casefile.KindNotFound:
		return http.StatusNotFound
	case casefile.KindPrecondition, casefile.KindTerminalState, casefile.KindInvalidTransition, casefile.KindConflict:
		return http.StatusConflict
	case casefile.KindLockTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, code int, err error) {
	c.JSON(code, gin.H{"error": err.Error(), "kind": casefile.KindOf(err)})
}

type createRequest struct {
	ID       string                     `json:"id"`
	Sections map[string]json.RawMessage `json:"sections" binding:"required"`
}

func (h *Handler) Create(c *gin.Context) {
	var in createRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := h.Cases.Create(c.Request.Context(), in.ID, in.Sections)
	if err != nil {
		code := statusFor(err)
		if casefile.IsKind(err, casefile.KindPrecondition) {
			code = http.StatusBadRequest
		}
		fail(c, code, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *Handler) List(c *gin.Context) {
	cases, err := h.Cases.List(c.Request.Context())
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cases": cases})
}

func (h *Handler) Get(c *gin.Context) {
	rec, err := h.Cases.Record(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) Process(c *gin.Context) {
	out, err := h.Cases.ProcessCase(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) Resume(c *gin.Context) {
	out, err := h.Cases.Resume(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) Withdraw(c *gin.Context) {
	var in struct {
		Reason string `json:"reason"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	out, err := h.Cases.Withdraw(c.Request.Context(), c.Param("id"), in.Reason)
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) Audit(c *gin.Context) {
	id := c.Param("id")
	entries, err := h.Cases.Audit(c.Request.Context(), id)
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"case_id": id, "entries": entries})
}

func (h *Handler) CaseWrites(c *gin.Context) {
	ins, err := h.Cases.Inspect(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, ins)
}

// Writes lists the write counts this process has made, per case.
func (h *Handler) Writes(c *gin.Context) {
	c.JSON(http.StatusOK, h.Cases.Executor().Counter().Snapshot())
}
