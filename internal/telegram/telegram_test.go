package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatguard/internal/config"
	"chatguard/internal/constants"
)

func TestMessageFromUpdate(t *testing.T) {
	raw := `{
		"update_id": 1,
		"message": {
			"message_id": 42,
			"date": 1709296200,
			"chat": {"id": -1001, "type": "supergroup", "title": "Отзывы"},
			"from": {"id": 17, "is_bot": false, "first_name": "Ivan", "last_name": "Petrov"},
			"text": "Ты идиот."
		}
	}`

	var update tgbotapi.Update
	require.NoError(t, json.Unmarshal([]byte(raw), &update))

	msg, ok := MessageFromUpdate(update)
	require.True(t, ok)

	assert.Equal(t, "42", msg.ID)
	assert.Equal(t, "Ты идиот.", msg.Text)
	assert.Equal(t, "-1001", msg.Origin.ChatID)
	assert.Equal(t, "Отзывы", msg.Origin.ChatName)
	assert.Equal(t, "Ivan_Petrov_17", msg.Origin.AuthorName)
	assert.Equal(t, time.Unix(1709296200, 0).UTC(), msg.ReceivedAt)
}

func TestMessageFromUpdate_NoMessage(t *testing.T) {
	_, ok := MessageFromUpdate(tgbotapi.Update{UpdateID: 1})
	assert.False(t, ok)
}

func TestMessageFromUpdate_UntitledChat(t *testing.T) {
	msg, ok := MessageFromUpdate(tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 7,
		Chat:      &tgbotapi.Chat{ID: 55, Type: "private"},
		Text:      "привет",
	}})
	require.True(t, ok)
	assert.Equal(t, constants.DefaultChatTitle, msg.Origin.ChatName)
	assert.Equal(t, "", msg.Origin.AuthorName)
	assert.False(t, msg.ReceivedAt.IsZero())
}

func TestAuthor(t *testing.T) {
	tests := []struct {
		name string
		user *tgbotapi.User
		want string
	}{
		{name: "full", user: &tgbotapi.User{ID: 17, FirstName: "Ivan", LastName: "Petrov"}, want: "Ivan_Petrov_17"},
		{name: "no last name", user: &tgbotapi.User{ID: 17, FirstName: "Ivan"}, want: "Ivan__17"},
		{name: "only id", user: &tgbotapi.User{ID: 17}, want: "17"},
		{name: "no id", user: &tgbotapi.User{FirstName: "Ivan"}, want: "Ivan"},
		{name: "nil", user: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Author(tt.user))
		})
	}
}

func TestGetID(t *testing.T) {
	assert.True(t, IsGetIDCommand("  /getid \n"))
	assert.False(t, IsGetIDCommand("/getid please"))
	assert.Equal(t, "ID группы: -1001\nНазвание: Отзывы", GetIDReply("-1001", "Отзывы"))
}

func TestSender_SendText(t *testing.T) {
	var mu sync.Mutex
	sent := map[string]string{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"guard","username":"guard_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			require.NoError(t, r.ParseForm())
			mu.Lock()
			sent["chat_id"] = r.FormValue("chat_id")
			sent["text"] = r.FormValue("text")
			mu.Unlock()
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":-1001,"type":"group"}}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	sender, err := NewSender(config.TelegramConfig{BotToken: "token", APIEndpoint: srv.URL + "/bot%s/%s"})
	require.NoError(t, err)

	require.NoError(t, sender.SendText(context.Background(), -1001, GetIDReply("-1001", "Отзывы")))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "-1001", sent["chat_id"])
	assert.Equal(t, "ID группы: -1001\nНазвание: Отзывы", sent["text"])
}

func TestSender_CanceledContext(t *testing.T) {
	s := &Sender{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.SendText(ctx, 1, "x"), context.Canceled)
}
