// Package api exposes the moderation pipeline over HTTP.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"chatguard/internal/logger"
	"chatguard/internal/notifier"
	"chatguard/internal/pipeline"
	"chatguard/pkg/errors"
	"chatguard/pkg/health"
	"chatguard/pkg/models"
)

type Moderator interface {
	ProcessChatMessage(ctx context.Context, msg models.Message) (models.Outcome, error)
	CheckText(ctx context.Context, text, email string) (models.ModerationResult, error)
	CheckURL(ctx context.Context, url, email string) (pipeline.URLCheck, error)
	Stats(ctx context.Context, kind models.RecordKind, from, to time.Time) ([]models.DailyCount, error)
}

type TestMailer interface {
	SendTest(ctx context.Context, to string) bool
}

type HealthChecker interface {
	Check(ctx context.Context) health.Health
}

// Options carries the optional collaborators of the handler. A nil Chat
// disables /getid replies and debug messages.
type Options struct {
	Mailer      TestMailer
	Health      HealthChecker
	Chat        notifier.ChatSender
	DebugChatID int64
}

type CheckTextRequest struct {
	Text  string `json:"text"`
	Email string `json:"email"`
}

type CheckURLRequest struct {
	URL   string `json:"url"`
	Email string `json:"email"`
}

type StatsResponse struct {
	Stats map[string]int64 `json:"stats"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type Handler struct {
	moderator Moderator
	opts      Options
	logger    logger.Logger
}

func NewHandler(moderator Moderator, opts Options, log logger.Logger) *Handler {
	return &Handler{moderator: moderator, opts: opts, logger: log}
}

func (h *Handler) HandleError(c *gin.Context, err error) {
	h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)

	c.JSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.POST("/telegram-webhook", h.TelegramWebhook)
	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/check", h.CheckText)
		v1.POST("/check-url", h.CheckURL)
		v1.GET("/stats", h.Stats)
		v1.GET("/send-test-email", h.SendTestEmail)
	}
}

// CheckText godoc
// @Summary      Check free text
// @Description  Segments and classifies the text, stores a text check record and returns the result
// @Tags         checks
// @Accept       json
// @Produce      json
// @Param        request  body      CheckTextRequest  true  "Text to check"
// @Success      200      {object}  models.ModerationResult
// @Failure      400      {object}  errors.ErrorResponse
// @Router       /api/v1/check [post]
func (h *Handler) CheckText(c *gin.Context) {
	var req CheckTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	result, err := h.moderator.CheckText(c.Request.Context(), req.Text, req.Email)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// CheckURL godoc
// @Summary      Check a web page
// @Description  Downloads the page, extracts its visible text and classifies it
// @Tags         checks
// @Accept       json
// @Produce      json
// @Param        request  body      CheckURLRequest  true  "Page to check"
// @Success      200      {object}  pipeline.URLCheck
// @Failure      400      {object}  errors.ErrorResponse
// @Failure      502      {object}  errors.ErrorResponse
// @Router       /api/v1/check-url [post]
func (h *Handler) CheckURL(c *gin.Context) {
	var req CheckURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		h.HandleError(c, errors.ErrValidation.WithDetail("message", "url is required"))
		return
	}

	check, err := h.moderator.CheckURL(c.Request.Context(), req.URL, req.Email)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, check)
}

// Stats godoc
// @Summary      Checks per day
// @Description  Counts stored check records per UTC calendar day
// @Tags         stats
// @Produce      json
// @Param        kind  query     string  false  "chat, text or url"
// @Param        from  query     string  false  "Start date, any common format"
// @Param        to    query     string  false  "End date, any common format"
// @Success      200   {object}  StatsResponse
// @Failure      400   {object}  errors.ErrorResponse
// @Router       /api/v1/stats [get]
func (h *Handler) Stats(c *gin.Context) {
	from, err := parseDate(c.Query("from"))
	if err != nil {
		h.HandleError(c, errors.ErrValidation.WithDetail("message", "invalid from date").WithCause(err))
		return
	}
	to, err := parseDate(c.Query("to"))
	if err != nil {
		h.HandleError(c, errors.ErrValidation.WithDetail("message", "invalid to date").WithCause(err))
		return
	}

	counts, err := h.moderator.Stats(c.Request.Context(), models.RecordKind(c.Query("kind")), from, to)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	stats := make(map[string]int64, len(counts))
	for _, dc := range counts {
		stats[dc.Date] += dc.Count
	}
	c.JSON(http.StatusOK, StatsResponse{Stats: stats})
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return dateparse.ParseIn(s, time.UTC)
}

// SendTestEmail godoc
// @Summary      Send a test notification
// @Description  Sends a fixed test message through every notification transport
// @Tags         notifications
// @Produce      json
// @Param        to   query     string  true  "Recipient address"
// @Success      200  {object}  StatusResponse
// @Failure      400  {object}  errors.ErrorResponse
// @Failure      502  {object}  errors.ErrorResponse
// @Router       /api/v1/send-test-email [get]
func (h *Handler) SendTestEmail(c *gin.Context) {
	to := strings.TrimSpace(c.Query("to"))
	if to == "" {
		h.HandleError(c, errors.ErrValidation.WithDetail("message", "query parameter to is required"))
		return
	}
	if h.opts.Mailer == nil || !h.opts.Mailer.SendTest(c.Request.Context(), to) {
		h.HandleError(c, errors.ErrBadGateway.WithDetail("message", "test message was not delivered"))
		return
	}
	c.JSON(http.StatusOK, StatusResponse{Status: "sent to " + to})
}

// Health godoc
// @Summary      Service health
// @Tags         health
// @Produce      json
// @Success      200  {object}  health.Health
// @Failure      503  {object}  health.Health
// @Router       /health [get]
func (h *Handler) Health(c *gin.Context) {
	if h.opts.Health == nil {
		c.JSON(http.StatusOK, health.Health{Status: health.StatusHealthy, Timestamp: time.Now()})
		return
	}

	result := h.opts.Health.Check(c.Request.Context())
	status := http.StatusOK
	if result.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, result)
}

