package handler

import (
	"net/http"

	"salescore/internal/middleware"
	"salescore/internal/service"
	"salescore/pkg/pagination"
	"salescore/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	auditService service.AuditService
}

func NewAuditHandler(auditService service.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	audit := router.Group("/api")
	{
		audit.GET("/audit-logs", middleware.RequirePermission("audit.read"), h.GetLogs)
	}
}

// GetLogs lists audit log entries
// @Summary      Get audit logs
// @Description  Retrieves paginated audit log entries, newest first
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Number of items per page (default 20)"
// @Success      200    {object}  response.Response{data=object}
// @Failure      500    {object}  response.Response
// @Router       /api/audit-logs [get]
func (h *AuditHandler) GetLogs(c *gin.Context) {
	params := pagination.Parse(c)

	logs, total, err := h.auditService.GetLogs(c.Request.Context(), params.Page, params.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"logs":  logs,
		"total": total,
		"page":  params.Page,
		"limit": params.Limit,
	}))
}
