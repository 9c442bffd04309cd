package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"chatguard/internal/telegram"
	"chatguard/pkg/errors"
	"chatguard/pkg/models"
)

const (
	StatusNoMessage     = "no message"
	StatusSentChatID    = "sent chat id"
	StatusDuplicate     = "duplicate"
	StatusExempt        = "exempt"
	StatusNotRegistered = "group not registered"
	StatusNoAdminEmail  = "no admin email"
	StatusOK            = "ok"
)

var webhookStatuses = map[models.OutcomeStatus]string{
	models.OutcomeOK:           StatusOK,
	models.OutcomeDuplicate:    StatusDuplicate,
	models.OutcomeExempt:       StatusExempt,
	models.OutcomeUnregistered: StatusNotRegistered,
	models.OutcomeNoTarget:     StatusNoAdminEmail,
}

// TelegramWebhook godoc
// @Summary      Telegram webhook
// @Description  Receives bot updates. Every admission outcome is answered with 200 and a status string.
// @Tags         telegram
// @Accept       json
// @Produce      json
// @Param        update  body      object  true  "Telegram Update"
// @Success      200     {object}  StatusResponse
// @Failure      400     {object}  errors.ErrorResponse
// @Failure      500     {object}  errors.ErrorResponse
// @Router       /telegram-webhook [post]
func (h *Handler) TelegramWebhook(c *gin.Context) {
	ctx := c.Request.Context()

	var update tgbotapi.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	msg, ok := telegram.MessageFromUpdate(update)
	if !ok {
		h.debug(ctx, "❌ Нет message в payload!")
		c.JSON(http.StatusOK, StatusResponse{Status: StatusNoMessage})
		return
	}

	if telegram.IsGetIDCommand(msg.Text) {
		h.replyChatID(c, msg)
		return
	}

	outcome, err := h.moderator.ProcessChatMessage(ctx, msg)
	if err != nil {
		h.debug(ctx, fmt.Sprintf("❌ Ошибка в webhook: %v", err))
		h.HandleError(c, err)
		return
	}

	switch outcome.Status {
	case models.OutcomeDuplicate:
		h.debug(ctx, fmt.Sprintf("⚠️ Дубликат message_id: %s", msg.ID))
	case models.OutcomeUnregistered:
		h.debug(ctx, fmt.Sprintf("⚠️ Группа %s не зарегистрирована.", msg.Origin.ChatName))
	case models.OutcomeNoTarget:
		h.debug(ctx, fmt.Sprintf("⚠️ У группы %s нет admin_email.", msg.Origin.ChatName))
	}

	c.JSON(http.StatusOK, StatusResponse{Status: webhookStatuses[outcome.Status]})
}

func (h *Handler) replyChatID(c *gin.Context, msg models.Message) {
	chatID, err := strconv.ParseInt(msg.Origin.ChatID, 10, 64)
	if err != nil {
		h.HandleError(c, errors.ErrValidation.WithDetail("message", "update has no chat"))
		return
	}
	if h.opts.Chat == nil {
		h.HandleError(c, errors.ErrServiceUnavailable.WithDetail("message", "telegram bot is not configured"))
		return
	}

	reply := telegram.GetIDReply(msg.Origin.ChatID, msg.Origin.ChatName)
	if err := h.opts.Chat.SendText(c.Request.Context(), chatID, reply); err != nil {
		h.HandleError(c, errors.ErrBadGateway.WithCause(err))
		return
	}
	c.JSON(http.StatusOK, StatusResponse{Status: StatusSentChatID})
}

// debug mirrors webhook diagnostics into the operators' chat when one is
// configured. Failures are only logged.
func (h *Handler) debug(ctx context.Context, text string) {
	if h.opts.Chat == nil || h.opts.DebugChatID == 0 {
		return
	}
	if err := h.opts.Chat.SendText(ctx, h.opts.DebugChatID, "[DEBUG]\n"+text); err != nil {
		h.logger.WarnwCtx(ctx, "Failed to send debug message", "error", err)
	}
}
