// Package telegram maps bot API updates onto pipeline messages and sends
// plain-text replies back into chats.
package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"chatguard/internal/constants"
	"chatguard/pkg/models"
)

const CmdGetID = "/getid"

// MessageFromUpdate reports false when the update carries no message.
func MessageFromUpdate(update tgbotapi.Update) (models.Message, bool) {
	msg := update.Message
	if msg == nil {
		return models.Message{}, false
	}

	out := models.Message{
		Text:       msg.Text,
		ReceivedAt: time.Now().UTC(),
	}
	if msg.MessageID != 0 {
		out.ID = strconv.Itoa(msg.MessageID)
	}
	if msg.Date != 0 {
		out.ReceivedAt = msg.Time().UTC()
	}
	if msg.Chat != nil {
		out.Origin.ChatID = strconv.FormatInt(msg.Chat.ID, 10)
		out.Origin.ChatName = msg.Chat.Title
	}
	if out.Origin.ChatName == "" {
		out.Origin.ChatName = constants.DefaultChatTitle
	}
	out.Origin.AuthorName = Author(msg.From)

	return out, true
}

// Author renders first_last_id with the outer underscores trimmed, so a user
// without a last name becomes first__id.
func Author(user *tgbotapi.User) string {
	if user == nil {
		return ""
	}
	id := ""
	if user.ID != 0 {
		id = strconv.FormatInt(user.ID, 10)
	}
	return strings.Trim(user.FirstName+"_"+user.LastName+"_"+id, "_")
}

func IsGetIDCommand(text string) bool {
	return strings.TrimSpace(text) == CmdGetID
}

func GetIDReply(chatID, title string) string {
	return fmt.Sprintf("ID группы: %s\nНазвание: %s", chatID, title)
}
