package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dkeye/lanhub/internal/app"
	"github.com/dkeye/lanhub/internal/app/orch"
	"github.com/dkeye/lanhub/internal/core"
	"github.com/dkeye/lanhub/internal/domain"
	"github.com/gin-gonic/gin"
)

// Handlers serve the read-mostly admin API.
type Handlers struct {
	Orch      *orch.Orchestrator
	StartedAt time.Time
}

type HealthResponse struct {
	Status   string `json:"status"`
	Uptime   string `json:"uptime"`
	Sessions int    `json:"sessions"`
	Files    int    `json:"files"`
	Bytes    int64  `json:"file_bytes"`
}

type PresenterResponse struct {
	PresenterID core.SessionID `json:"presenter_id,omitempty"`
	Username    string         `json:"username,omitempty"`
	Active      bool           `json:"active"`
}

func (h *Handlers) Health(c *gin.Context) {
	files, bytes := h.Orch.Files.Stats()
	c.JSON(http.StatusOK, HealthResponse{
		Status:   "ok",
		Uptime:   time.Since(h.StartedAt).Round(time.Second).String(),
		Sessions: h.Orch.Registry.Count(),
		Files:    files,
		Bytes:    bytes,
	})
}

func (h *Handlers) ListSessions(c *gin.Context) {
	members := app.Members(h.Orch.Registry.All())
	c.JSON(http.StatusOK, gin.H{"sessions": members, "count": len(members)})
}

// KickSession disconnects a session as if its outbox had overflowed.
func (h *Handlers) KickSession(c *gin.Context) {
	if !h.Orch.Kick(core.SessionID(c.Param("id"))) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) ListFiles(c *gin.Context) {
	files := h.Orch.Files.List()
	c.JSON(http.StatusOK, gin.H{"files": files, "count": len(files)})
}

// DownloadFile streams the raw bytes of a stored file.
func (h *Handlers) DownloadFile(c *gin.Context) {
	rec, err := h.Orch.Files.Get(domain.FileID(c.Param("id")))
	if errors.Is(err, app.ErrFileNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+strconv.Quote(rec.Name))
	c.Data(http.StatusOK, "application/octet-stream", rec.Data)
}

func (h *Handlers) Presenter(c *gin.Context) {
	sid, ok := h.Orch.Presenter.Current()
	resp := PresenterResponse{Active: ok}
	if ok {
		resp.PresenterID = sid
		if s, found := h.Orch.Registry.Lookup(sid); found {
			resp.Username = s.Username
		}
	}
	c.JSON(http.StatusOK, resp)
}
