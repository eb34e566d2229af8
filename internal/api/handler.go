package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/NikkuNoShori/RepoMonitor/internal/dashboard"
	"github.com/NikkuNoShori/RepoMonitor/internal/domain"
	apperrors "github.com/NikkuNoShori/RepoMonitor/internal/errors"
	"github.com/NikkuNoShori/RepoMonitor/internal/notify"
	"github.com/NikkuNoShori/RepoMonitor/internal/storage"
)

// Refresher triggers one aggregation run over the tracked repositories.
type Refresher interface {
	Refresh(ctx context.Context) (domain.AggregateResult, error)
}

// Handler handles API requests
type Handler struct {
	view      *dashboard.Store
	store     storage.Storage
	refresher Refresher
	publisher *notify.Publisher
}

// NewHandler creates a new API handler
func NewHandler(view *dashboard.Store, store storage.Storage, refresher Refresher, publisher *notify.Publisher) *Handler {
	return &Handler{
		view:      view,
		store:     store,
		refresher: refresher,
		publisher: publisher,
	}
}

// GetDashboardStats returns the current dashboard view state
// GET /api/v1/dashboard/stats
func (h *Handler) GetDashboardStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"data": h.view.Snapshot(),
	})
}

// ListRepositories returns the tracked repository list
// GET /api/v1/repositories
func (h *Handler) ListRepositories(c *gin.Context) {
	repos, err := h.store.ListRepositories(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": repos,
	})
}

type trackRequest struct {
	Owner     string `json:"owner" binding:"required"`
	Name      string `json:"name" binding:"required"`
	IsPrivate bool   `json:"is_private"`
}

// TrackRepository adds a repository to the tracked list
// POST /api/v1/repositories
func (h *Handler) TrackRepository(c *gin.Context) {
	var req trackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewBadRequestError("owner and name are required"))
		return
	}

	now := time.Now()
	repo := &domain.Repository{
		Owner:     req.Owner,
		Name:      req.Name,
		FullName:  req.Owner + "/" + req.Name,
		IsPrivate: req.IsPrivate,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.store.SaveRepository(c.Request.Context(), repo); err != nil {
		respondError(c, err)
		return
	}

	h.publisher.Publish(c.Request.Context(), notify.Event{
		Action: notify.ActionInsert,
		Repo:   repo.WorkItem(),
	})

	c.JSON(http.StatusCreated, gin.H{
		"data": repo,
	})
}

// UntrackRepository removes a repository from the tracked list
// DELETE /api/v1/repositories/:owner/:name
func (h *Handler) UntrackRepository(c *gin.Context) {
	owner := c.Param("owner")
	name := c.Param("name")

	if err := h.store.DeleteRepository(c.Request.Context(), owner, name); err != nil {
		respondError(c, err)
		return
	}

	h.publisher.Publish(c.Request.Context(), notify.Event{
		Action: notify.ActionDelete,
		Repo:   domain.WorkItem{Owner: owner, Name: name},
	})

	c.Status(http.StatusNoContent)
}

// TriggerRefresh runs an aggregation over the tracked repositories
// POST /api/v1/refresh
func (h *Handler) TriggerRefresh(c *gin.Context) {
	result, err := h.refresher.Refresh(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": result,
	})
}

// HealthCheck returns the health status of the API
// GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// respondError sends an error response
func respondError(c *gin.Context, err error) {
	code := apperrors.CodeOf(err)

	status := http.StatusInternalServerError
	switch code {
	case apperrors.ErrCodeNotFound:
		status = http.StatusNotFound
	case apperrors.ErrCodeUnauthorized:
		// Distinct re-authentication condition, not a generic failure.
		status = http.StatusUnauthorized
	case apperrors.ErrCodeBadRequest:
		status = http.StatusBadRequest
	case apperrors.ErrCodeRateLimited:
		status = http.StatusTooManyRequests
	case apperrors.ErrCodeCancelled:
		// Client went away; gin still needs a terminal status.
		status = 499
	}

	message := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}

	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}
