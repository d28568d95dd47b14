package handler

import (
	"net/http"

	"salescore/internal/middleware"
	"salescore/internal/service"
	"salescore/pkg/pagination"
	"salescore/pkg/response"

	"github.com/gin-gonic/gin"
)

type ApprovalHandler struct {
	approvalService service.ApprovalService
}

func NewApprovalHandler(approvalService service.ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{approvalService: approvalService}
}

func (h *ApprovalHandler) RegisterRoutes(router *gin.RouterGroup) {
	approvals := router.Group("/api/approvals")
	{
		approvals.GET("", middleware.RequirePermission("approvals.read"), h.ListRequests)
		approvals.POST("", middleware.RequirePermission("approvals.write"), h.CreateRequest)
		approvals.POST("/:id/approve", middleware.RequirePermission("approvals.decide"), h.Approve)
		approvals.POST("/:id/reject", middleware.RequirePermission("approvals.decide"), h.Reject)
	}
}

// ListRequests lists approval requests
// @Summary      List approval requests
// @Description  Retrieves paginated approval requests, optionally filtered by status
// @Tags         approvals
// @Security     BearerAuth
// @Produce      json
// @Param        status  query     string  false  "PENDING, APPROVED or REJECTED"
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Number of items per page (default 20)"
// @Success      200     {object}  response.Response{data=object}
// @Failure      500     {object}  response.Response
// @Router       /api/approvals [get]
func (h *ApprovalHandler) ListRequests(c *gin.Context) {
	params := pagination.Parse(c)
	filter := service.ApprovalFilter{
		Status: c.Query("status"),
		Page:   params.Page,
		Limit:  params.Limit,
	}

	decisions, total, err := h.approvalService.ListRequests(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"approvals": decisions,
		"total":     total,
		"page":      params.Page,
		"limit":     params.Limit,
	}))
}

// CreateRequest records a pending approval for an order source
// @Summary      Create approval request
// @Description  Records a pending approval decision gating the source's fulfillment transition
// @Tags         approvals
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateApprovalRequestDTO  true  "Approval Request Payload"
// @Success      201      {object}  response.Response{data=service.ApprovalDecisionResponse}
// @Failure      400      {object}  response.Response
// @Failure      500      {object}  response.Response
// @Router       /api/approvals [post]
func (h *ApprovalHandler) CreateRequest(c *gin.Context) {
	var req service.CreateApprovalRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}
	if req.RequestedBy == "" {
		req.RequestedBy = c.GetString("userID")
	}

	decision, err := h.approvalService.CreateRequest(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, decision))
}

// Approve approves a pending request
// @Summary      Approve request
// @Description  Approves a pending approval request, unblocking the source's fulfillment transition
// @Tags         approvals
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Approval Request ID"
// @Success      200  {object}  response.Response{data=service.ApprovalDecisionResponse}
// @Failure      400  {object}  response.Response
// @Failure      500  {object}  response.Response
// @Router       /api/approvals/{id}/approve [post]
func (h *ApprovalHandler) Approve(c *gin.Context) {
	decision, err := h.approvalService.Approve(c.Request.Context(), c.Param("id"), c.GetString("userID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, decision))
}

// Reject rejects a pending request and releases the source's reservations
// @Summary      Reject request
// @Description  Rejects a pending approval request; the source's active commitments are released in the same transaction
// @Tags         approvals
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                    true   "Approval Request ID"
// @Param        payload  body      service.RejectRequestDTO  false  "Rejection Reason"
// @Success      200      {object}  response.Response{data=service.ApprovalDecisionResponse}
// @Failure      400      {object}  response.Response
// @Failure      500      {object}  response.Response
// @Router       /api/approvals/{id}/reject [post]
func (h *ApprovalHandler) Reject(c *gin.Context) {
	var req service.RejectRequestDTO
	_ = c.ShouldBindJSON(&req)

	decision, err := h.approvalService.Reject(c.Request.Context(), c.Param("id"), c.GetString("userID"), req.Reason)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, decision))
}
