package ingest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"relay/internal/logger"
	"relay/pkg/errors"
)

type Handler struct {
	processor *Processor
	logger    logger.Logger
}

func NewHandler(processor *Processor, log logger.Logger) *Handler {
	return &Handler{
		processor: processor,
		logger:    log,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		events := v1.Group("/events")
		{
			events.POST("/sms", h.IngestSMS)
			events.POST("/notification", h.IngestNotification)
		}
	}
}

type smsRequest struct {
	Body      string    `json:"body"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

type notificationRequest struct {
	PackageName string                 `json:"package_name"`
	AppLabel    string                 `json:"app_label"`
	Title       string                 `json:"title"`
	Text        string                 `json:"text"`
	Extras      map[string]interface{} `json:"extras"`
	Timestamp   time.Time              `json:"timestamp"`
}

// IngestSMS godoc
// @Summary      Ingest one SMS event
// @Tags         events
// @Accept       json
// @Produce      json
// @Param        event  body      smsRequest  true  "SMS event"
// @Success      200    {object}  Summary
// @Failure      400    {object}  Summary
// @Router       /events/sms [post]
func (h *Handler) IngestSMS(c *gin.Context) {
	var req smsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	summary, err := h.processor.ProcessSMS(c.Request.Context(), req.Body, req.Sender, defaultTimestamp(req.Timestamp))
	h.respond(c, summary, err)
}

// IngestNotification godoc
// @Summary      Ingest one app notification event
// @Tags         events
// @Accept       json
// @Produce      json
// @Param        event  body      notificationRequest  true  "Notification event"
// @Success      200    {object}  Summary
// @Failure      400    {object}  Summary
// @Router       /events/notification [post]
func (h *Handler) IngestNotification(c *gin.Context) {
	var req notificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	summary, err := h.processor.ProcessNotification(
		c.Request.Context(),
		req.PackageName, req.AppLabel, req.Title, req.Text,
		defaultTimestamp(req.Timestamp), req.Extras,
	)
	h.respond(c, summary, err)
}

func (h *Handler) respond(c *gin.Context, summary Summary, err error) {
	if err != nil {
		h.logger.ErrorwCtx(c.Request.Context(), "Failed to process inbound event", "error", err)
		c.JSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
		return
	}

	// Rejected events are still recorded to history; the status code just
	// tells the bridge its payload was unusable.
	if !summary.Accepted && !summary.Duplicate {
		c.JSON(http.StatusBadRequest, summary)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func defaultTimestamp(ts time.Time) time.Time {
	if ts.IsZero() {
		return time.Now()
	}
	return ts
}
