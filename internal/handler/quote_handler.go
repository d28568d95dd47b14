package handler

import (
	"errors"
	"net/http"

	"salescore/internal/middleware"
	"salescore/internal/service"
	"salescore/internal/tax"
	"salescore/pkg/response"

	"github.com/gin-gonic/gin"
)

type QuoteHandler struct {
	quoteService service.QuoteService
}

func NewQuoteHandler(quoteService service.QuoteService) *QuoteHandler {
	return &QuoteHandler{quoteService: quoteService}
}

func (h *QuoteHandler) RegisterRoutes(router *gin.RouterGroup) {
	quotes := router.Group("/api")
	{
		quotes.POST("/quotes", middleware.RequirePermission("pricing.read"), h.ComputeQuote)
	}
}

// ComputeQuote computes the tax-split amounts for one line item
// @Summary      Compute line quote
// @Description  Computes taxable value, CGST/SGST split and total for a line under the requested billing mode
// @Tags         pricing
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.QuoteRequest  true  "Quote Payload"
// @Success      200      {object}  response.Response{data=tax.LineQuote}
// @Failure      400      {object}  response.Response
// @Failure      500      {object}  response.Response
// @Router       /api/quotes [post]
func (h *QuoteHandler) ComputeQuote(c *gin.Context) {
	var req service.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	quote, err := h.quoteService.ComputeQuote(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, tax.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, quote))
}
