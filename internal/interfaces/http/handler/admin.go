package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	appbilling "github.com/mockly/billing/internal/application/billing"
	"github.com/mockly/billing/internal/domain/billing"
	"github.com/mockly/billing/internal/infrastructure/scheduler"
	"github.com/mockly/billing/internal/interfaces/http/dto"
)

// OutboxStats reports outbox backlog by status
type OutboxStats interface {
	Stats(ctx context.Context) (map[billing.OutboxStatus]int64, error)
}

// SweepRunner triggers a past-due sweep outside the daily schedule
type SweepRunner interface {
	RunNow(ctx context.Context) (*appbilling.SweepResult, error)
}

// AdminHandler exposes operational endpoints
type AdminHandler struct {
	BaseHandler
	outbox OutboxStats
	sweeps SweepRunner
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(outbox OutboxStats, sweeps SweepRunner) *AdminHandler {
	return &AdminHandler{outbox: outbox, sweeps: sweeps}
}

// OutboxStats godoc
// @Summary      Outbox backlog
// @Description  Count outbox events by status
// @Tags         admin
// @Produce      json
// @Success      200 {object} dto.Response{data=dto.OutboxStatsResponse}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /v1/admin/outbox/stats [get]
func (h *AdminHandler) OutboxStats(c *gin.Context) {
	stats, err := h.outbox.Stats(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.OutboxStatsResponse{
		Pending:   stats[billing.OutboxStatusPending],
		Processed: stats[billing.OutboxStatusProcessed],
		Failed:    stats[billing.OutboxStatusFailed],
	})
}

// RunPastDueSweep godoc
// @Summary      Run the past-due sweep
// @Description  Expire subscriptions past their grace period outside the daily schedule
// @Tags         admin
// @Produce      json
// @Success      200 {object} dto.Response{data=dto.SweepResponse}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /v1/admin/sweeps/past-due [post]
func (h *AdminHandler) RunPastDueSweep(c *gin.Context) {
	result, err := h.sweeps.RunNow(c.Request.Context())
	if err != nil {
		if errors.Is(err, scheduler.ErrRunInProgress) {
			h.Error(c, http.StatusConflict, dto.ErrCodeInvalidState, "A sweep is already running")
			return
		}
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.SweepResponse{
		Candidates: result.Candidates,
		Expired:    result.Expired,
		Skipped:    result.Skipped,
		Failed:     result.Failed,
	})
}
