package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/panelworks/production-engine/internal/application"
	"github.com/panelworks/production-engine/pkg/middleware"
)

type handlers struct {
	deps Dependencies
}

// startStageRequest is the tablet's start_stage payload
type startStageRequest struct {
	TabletID string `json:"tabletId" binding:"omitempty,tablet_id"`
	WorkerID string `json:"workerId" binding:"omitempty,worker_id"`
}

// completeStageRequest is the tablet's complete_stage payload
type completeStageRequest struct {
	TabletID string `json:"tabletId" binding:"omitempty,tablet_id"`
	Notes    string `json:"notes" binding:"max=500"`
}

type pauseRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

type cancelRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

func (h *handlers) listWorkstations(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.deps.Logger)

	stations, err := h.deps.Stations.List(c.Request.Context(), false)
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workstations": stations})
}

func (h *handlers) getQueue(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.deps.Logger)

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			responder.RespondBadRequest("limit must be an integer")
			return
		}
		limit = parsed
	}

	tasks, err := h.deps.Production.GetQueue(c.Request.Context(), c.Param("stationId"), limit)
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (h *handlers) startStage(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.deps.Logger)

	var req startStageRequest
	if c.Request.ContentLength > 0 {
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
	}

	result, err := h.deps.Production.StartStage(c.Request.Context(), c.Param("taskId"), req.TabletID, req.WorkerID)
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *handlers) completeStage(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.deps.Logger)

	var req completeStageRequest
	if c.Request.ContentLength > 0 {
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
	}

	result, err := h.deps.Production.CompleteStage(c.Request.Context(), c.Param("taskId"), req.TabletID, req.Notes)
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *handlers) pauseTask(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.deps.Logger)

	var req pauseRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	result, err := h.deps.Production.Pause(c.Request.Context(), c.Param("taskId"), req.Reason)
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *handlers) resumeTask(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.deps.Logger)

	if err := h.deps.Production.Resume(c.Request.Context(), c.Param("taskId")); err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"taskId": c.Param("taskId"), "status": "in_progress"})
}

func (h *handlers) cancelTask(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.deps.Logger)

	var req cancelRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	if err := h.deps.Production.Cancel(c.Request.Context(), c.Param("taskId"), req.Reason); err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"taskId": c.Param("taskId"), "status": "cancelled"})
}

func (h *handlers) reorderQueue(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.deps.Logger)

	var items []application.ReorderItem
	if appErr := middleware.BindAndValidate(c, &items); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	result, err := h.deps.Production.Reorder(c.Request.Context(), items)
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *handlers) getOrderSummary(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.deps.Logger)

	summary, err := h.deps.Packaging.GetSummary(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *handlers) listReadyForPackaging(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.deps.Logger)

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	orders, err := h.deps.Packaging.ListReadyForPackaging(c.Request.Context(), limit)
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *handlers) startPackaging(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.deps.Logger)

	if err := h.deps.Packaging.StartPackaging(c.Request.Context(), c.Param("orderId")); err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orderId": c.Param("orderId"), "packagingStatus": "in_progress"})
}

func (h *handlers) completePackaging(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.deps.Logger)

	summary, err := h.deps.Packaging.CompletePackaging(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *handlers) listAlerts(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.deps.Logger)

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	alerts, err := h.deps.Alerting.ListUnread(c.Request.Context(), limit)
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

func (h *handlers) markAlertRead(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.deps.Logger)

	if err := h.deps.Alerting.MarkRead(c.Request.Context(), c.Param("alertId")); err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alertId": c.Param("alertId"), "isRead": true})
}

func (h *handlers) listJobs(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.deps.Logger)

	states, err := h.deps.Runner.ListJobStates(c.Request.Context())
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"jobs":   h.deps.Runner.JobNames(),
		"states": states,
	})
}

// triggerJob runs a job immediately. A run skipped because the previous one
// still holds its lock surfaces as 409 BUSY.
func (h *handlers) triggerJob(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.deps.Logger)

	if err := h.deps.Runner.TriggerJob(c.Request.Context(), c.Param("name")); err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": c.Param("name"), "outcome": "success"})
}
