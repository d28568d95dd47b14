package handler

import (
	"errors"
	"net/http"

	"salescore/internal/ledger"
	"salescore/internal/middleware"
	"salescore/internal/service"
	"salescore/pkg/response"

	"github.com/gin-gonic/gin"
)

// EventHandler ingests line-item and stage events from the deal and order
// modules and translates them into commitment lifecycle operations.
type EventHandler struct {
	lifecycle service.CommitmentLifecycleService
}

func NewEventHandler(lifecycle service.CommitmentLifecycleService) *EventHandler {
	return &EventHandler{lifecycle: lifecycle}
}

func (h *EventHandler) RegisterRoutes(router *gin.RouterGroup) {
	events := router.Group("/api/events")
	{
		events.POST("/line-items/added", middleware.RequirePermission("commitments.write"), h.LineItemAdded)
		events.POST("/line-items/changed", middleware.RequirePermission("commitments.write"), h.LineItemChanged)
		events.POST("/line-items/removed", middleware.RequirePermission("commitments.write"), h.LineItemRemoved)
		events.POST("/stage-changed", middleware.RequirePermission("commitments.write"), h.StageChanged)
	}
}

// LineItemAdded reserves stock for a new line item
// @Summary      Line item added
// @Description  Reserves stock for a line item added to a deal or draft order. Over-requests are clamped to the available quantity
// @Tags         commitments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.LineItemEvent  true  "Line Item Event"
// @Success      201      {object}  response.Response{data=service.LineItemResult}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/events/line-items/added [post]
func (h *EventHandler) LineItemAdded(c *gin.Context) {
	var ev service.LineItemEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.lifecycle.OnLineItemAdded(c.Request.Context(), c.GetString("userID"), ev)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, result))
}

// LineItemChanged re-validates and adjusts an existing reservation
// @Summary      Line item changed
// @Description  Adjusts the reserved quantity for an edited line item; a zero quantity releases the reservation
// @Tags         commitments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.LineItemEvent  true  "Line Item Event"
// @Success      200      {object}  response.Response{data=service.LineItemResult}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/events/line-items/changed [post]
func (h *EventHandler) LineItemChanged(c *gin.Context) {
	var ev service.LineItemEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.lifecycle.OnLineItemChanged(c.Request.Context(), c.GetString("userID"), ev)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// LineItemRemoved releases the reservation of a deleted line item
// @Summary      Line item removed
// @Description  Releases the reservation held by a removed line item; the quantity becomes available to others immediately
// @Tags         commitments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.LineItemEvent  true  "Line Item Event"
// @Success      200      {object}  response.Response{data=service.LineItemResult}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/events/line-items/removed [post]
func (h *EventHandler) LineItemRemoved(c *gin.Context) {
	var ev service.LineItemEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.lifecycle.OnLineItemRemoved(c.Request.Context(), c.GetString("userID"), ev)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// StageChanged applies a stage/status transition to the source's commitments
// @Summary      Source stage changed
// @Description  Releases or fulfills every commitment of the source depending on the new stage. Fulfillment is all-or-nothing; a rejected transition leaves stock untouched
// @Tags         commitments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.StageChangeEvent  true  "Stage Change Event"
// @Success      200      {object}  response.Response{data=service.StageChangeResult}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/events/stage-changed [post]
func (h *EventHandler) StageChanged(c *gin.Context) {
	var ev service.StageChangeEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.lifecycle.OnSourceStageChanged(c.Request.Context(), c.GetString("userID"), ev)
	if err != nil {
		var rejected *ledger.TransitionRejectedError
		if errors.As(err, &rejected) {
			// The transition was refused; report what happened to the
			// commitments (released on rejection, untouched when pending).
			c.JSON(http.StatusConflict, response.Response{
				Status:     "error",
				StatusCode: http.StatusConflict,
				Data:       result,
				Error:      rejected.Error(),
			})
			return
		}
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

func (h *EventHandler) writeError(c *gin.Context, err error) {
	var insufficient *ledger.InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		c.JSON(http.StatusConflict, response.Error(http.StatusConflict, insufficient.Error()))
	case errors.Is(err, ledger.ErrBusy):
		c.JSON(http.StatusConflict, response.Error(http.StatusConflict, err.Error()))
	case errors.Is(err, ledger.ErrCommitmentNotFound):
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, err.Error()))
	case errors.Is(err, ledger.ErrInvalidInput), errors.Is(err, ledger.ErrCommitmentNotActive):
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
	default:
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
	}
}
