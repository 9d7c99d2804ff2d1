package history

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"relay/internal/event"
	"relay/internal/logger"
	"relay/pkg/errors"
)

type Handler struct {
	service Service
	logger  logger.Logger
}

func NewHandler(service Service, log logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  log,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		history := v1.Group("/history")
		{
			history.GET("", h.ListRecords)
			history.GET("/stats", h.GetStats)
			history.GET("/:id", h.GetRecord)
			history.DELETE("/:id", h.DeleteRecord)
			history.POST("/trim", h.Trim)
		}
	}
}

func (h *Handler) handleError(c *gin.Context, err error) {
	h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)

	c.JSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
}

// ListRecords godoc
// @Summary      List history records
// @Tags         history
// @Produce      json
// @Param        limit        query     int     false  "Page size"
// @Param        offset       query     int     false  "Page offset"
// @Param        package      query     string  false  "Filter by source package"
// @Param        search       query     string  false  "Free-text search over sender, app, title and body"
// @Param        matched      query     bool    false  "Filter by matched status"
// @Param        source_type  query     string  false  "Filter by source type (SMS or NOTIFICATION)"
// @Success      200          {array}   Record
// @Router       /history [get]
func (h *Handler) ListRecords(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	records, err := h.service.ListRecords(c.Request.Context(), filter)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, records)
}

// GetStats godoc
// @Summary      Aggregate history counters
// @Tags         history
// @Produce      json
// @Success      200  {object}  Stats
// @Router       /history/stats [get]
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.service.GetStats(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetRecord godoc
// @Summary      Get a history record by ID
// @Tags         history
// @Produce      json
// @Param        id   path      string  true  "Record ID"
// @Success      200  {object}  Record
// @Failure      404  {object}  map[string]interface{}
// @Router       /history/{id} [get]
func (h *Handler) GetRecord(c *gin.Context) {
	record, err := h.service.GetRecord(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

// DeleteRecord godoc
// @Summary      Delete a history record
// @Tags         history
// @Param        id  path  string  true  "Record ID"
// @Success      204
// @Failure      404  {object}  map[string]interface{}
// @Router       /history/{id} [delete]
func (h *Handler) DeleteRecord(c *gin.Context) {
	if err := h.service.DeleteRecord(c.Request.Context(), c.Param("id")); err != nil {
		h.handleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type trimRequest struct {
	Keep int `json:"keep"`
}

type trimResponse struct {
	Removed int64 `json:"removed"`
}

// Trim godoc
// @Summary      Trim history to the most recent N records
// @Tags         history
// @Accept       json
// @Produce      json
// @Param        request  body      trimRequest  true  "Retention size"
// @Success      200      {object}  trimResponse
// @Router       /history/trim [post]
func (h *Handler) Trim(c *gin.Context) {
	var req trimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	removed, err := h.service.Trim(c.Request.Context(), req.Keep)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, trimResponse{Removed: removed})
}

func parseFilter(c *gin.Context) (Filter, error) {
	filter := Filter{
		Package: c.Query("package"),
		Search:  c.Query("search"),
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return filter, err
		}
		filter.Limit = limit
	}
	if raw := c.Query("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil {
			return filter, err
		}
		filter.Offset = offset
	}
	if raw := c.Query("matched"); raw != "" {
		matched, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, err
		}
		filter.Matched = &matched
	}
	if raw := c.Query("source_type"); raw != "" {
		filter.SourceType = event.SourceType(raw)
	}

	return filter, nil
}
