package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatguard/internal/logger"
	"chatguard/internal/pipeline"
	pkgerrors "chatguard/pkg/errors"
	"chatguard/pkg/health"
	"chatguard/pkg/models"
)

type fakeModerator struct {
	outcome  models.Outcome
	err      error
	messages []models.Message
	filter   models.StatsFilter
}

func (f *fakeModerator) ProcessChatMessage(_ context.Context, msg models.Message) (models.Outcome, error) {
	f.messages = append(f.messages, msg)
	return f.outcome, f.err
}

func (f *fakeModerator) CheckText(_ context.Context, text, _ string) (models.ModerationResult, error) {
	if strings.TrimSpace(text) == "" {
		return models.ModerationResult{}, pkgerrors.ErrValidation.WithDetail("message", "text is required")
	}
	return models.ModerationResult{IsSafe: true, Violations: []models.ViolationKind{}}, nil
}

func (f *fakeModerator) CheckURL(_ context.Context, url, _ string) (pipeline.URLCheck, error) {
	if strings.Contains(url, "down") {
		return pipeline.URLCheck{}, pkgerrors.ErrBadGateway.WithCause(errors.New("HTTP 503"))
	}
	return pipeline.URLCheck{URL: url, Title: "Отзывы"}, nil
}

func (f *fakeModerator) Stats(_ context.Context, kind models.RecordKind, from, to time.Time) ([]models.DailyCount, error) {
	f.filter = models.StatsFilter{Kind: kind, From: from, To: to}
	return []models.DailyCount{{Date: "2024-03-01", Count: 3}, {Date: "2024-03-02", Count: 1}}, nil
}

type fakeChat struct {
	sent map[int64][]string
	err  error
}

func (f *fakeChat) SendText(_ context.Context, chatID int64, text string) error {
	if f.err != nil {
		return f.err
	}
	if f.sent == nil {
		f.sent = map[int64][]string{}
	}
	f.sent[chatID] = append(f.sent[chatID], text)
	return nil
}

type fakeMailer struct {
	ok bool
	to string
}

func (f *fakeMailer) SendTest(_ context.Context, to string) bool {
	f.to = to
	return f.ok
}

type fakeHealth struct {
	status health.Status
}

func (f fakeHealth) Check(context.Context) health.Health {
	return health.Health{Status: f.status}
}

const debugChat = int64(-4661677635)

func newRouter(m *fakeModerator, opts Options) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(m, opts, logger.NopLogger()).RegisterRoutes(r)
	return r
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func statusOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Status
}

const chatUpdate = `{"update_id":1,"message":{"message_id":42,"date":1709296200,
	"chat":{"id":-1001,"type":"supergroup","title":"Отзывы"},
	"from":{"id":17,"is_bot":false,"first_name":"Ivan","last_name":"Petrov"},
	"text":%q}}`

func TestTelegramWebhook_Statuses(t *testing.T) {
	tests := []struct {
		outcome models.OutcomeStatus
		want    string
		debug   bool
	}{
		{outcome: models.OutcomeOK, want: StatusOK},
		{outcome: models.OutcomeDuplicate, want: StatusDuplicate, debug: true},
		{outcome: models.OutcomeExempt, want: StatusExempt},
		{outcome: models.OutcomeUnregistered, want: StatusNotRegistered, debug: true},
		{outcome: models.OutcomeNoTarget, want: StatusNoAdminEmail, debug: true},
	}

	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			m := &fakeModerator{outcome: models.Outcome{Status: tt.outcome}}
			chat := &fakeChat{}
			r := newRouter(m, Options{Chat: chat, DebugChatID: debugChat})

			w := do(r, http.MethodPost, "/telegram-webhook", strings.ReplaceAll(chatUpdate, "%q", `"Ты идиот."`))

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.want, statusOf(t, w))
			require.Len(t, m.messages, 1)
			assert.Equal(t, "Ivan_Petrov_17", m.messages[0].Origin.AuthorName)
			assert.Equal(t, tt.debug, len(chat.sent[debugChat]) == 1)
		})
	}
}

func TestTelegramWebhook_NoMessage(t *testing.T) {
	m := &fakeModerator{}
	chat := &fakeChat{}
	w := do(newRouter(m, Options{Chat: chat, DebugChatID: debugChat}), http.MethodPost, "/telegram-webhook", `{"update_id":5}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, StatusNoMessage, statusOf(t, w))
	assert.Empty(t, m.messages)
	require.Len(t, chat.sent[debugChat], 1)
	assert.True(t, strings.HasPrefix(chat.sent[debugChat][0], "[DEBUG]\n"))
}

func TestTelegramWebhook_GetID(t *testing.T) {
	m := &fakeModerator{}
	chat := &fakeChat{}
	w := do(newRouter(m, Options{Chat: chat}), http.MethodPost, "/telegram-webhook", strings.ReplaceAll(chatUpdate, "%q", `"/getid"`))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, StatusSentChatID, statusOf(t, w))
	assert.Empty(t, m.messages)
	assert.Equal(t, []string{"ID группы: -1001\nНазвание: Отзывы"}, chat.sent[-1001])
}

func TestTelegramWebhook_GetIDSendFailure(t *testing.T) {
	chat := &fakeChat{err: errors.New("forbidden")}
	w := do(newRouter(&fakeModerator{}, Options{Chat: chat}), http.MethodPost, "/telegram-webhook", strings.ReplaceAll(chatUpdate, "%q", `"/getid"`))
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestTelegramWebhook_Errors(t *testing.T) {
	w := do(newRouter(&fakeModerator{}, Options{}), http.MethodPost, "/telegram-webhook", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	m := &fakeModerator{err: errors.New("redis down")}
	w = do(newRouter(m, Options{}), http.MethodPost, "/telegram-webhook", strings.ReplaceAll(chatUpdate, "%q", `"привет"`))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestCheckText(t *testing.T) {
	r := newRouter(&fakeModerator{}, Options{})

	w := do(r, http.MethodPost, "/api/v1/check", `{"text":"Отличный сервис!","email":"a@b.c"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"is_safe":true`)

	w = do(r, http.MethodPost, "/api/v1/check", `{"text":"  "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")

	w = do(r, http.MethodPost, "/api/v1/check", `[]`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckURL(t *testing.T) {
	r := newRouter(&fakeModerator{}, Options{})

	w := do(r, http.MethodPost, "/api/v1/check-url", `{"url":"https://example.com"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"title":"Отзывы"`)

	w = do(r, http.MethodPost, "/api/v1/check-url", `{"email":"a@b.c"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/v1/check-url", `{"url":"https://down.example.com"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "BAD_GATEWAY")
}

func TestStats(t *testing.T) {
	m := &fakeModerator{}
	r := newRouter(m, Options{})

	w := do(r, http.MethodGet, "/api/v1/stats?kind=url&from=2024-03-01&to=2024/03/07", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, map[string]int64{"2024-03-01": 3, "2024-03-02": 1}, resp.Stats)

	assert.Equal(t, models.RecordKindURL, m.filter.Kind)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), m.filter.From)
	assert.Equal(t, time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC), m.filter.To)

	w = do(r, http.MethodGet, "/api/v1/stats?from=not-a-date", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendTestEmail(t *testing.T) {
	mailer := &fakeMailer{ok: true}
	r := newRouter(&fakeModerator{}, Options{Mailer: mailer})

	w := do(r, http.MethodGet, "/api/v1/send-test-email", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/api/v1/send-test-email?to=admin@example.com", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin@example.com", mailer.to)

	mailer.ok = false
	w = do(r, http.MethodGet, "/api/v1/send-test-email?to=admin@example.com", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestHealth(t *testing.T) {
	tests := []struct {
		status health.Status
		code   int
	}{
		{status: health.StatusHealthy, code: http.StatusOK},
		{status: health.StatusDegraded, code: http.StatusOK},
		{status: health.StatusUnhealthy, code: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			w := do(newRouter(&fakeModerator{}, Options{Health: fakeHealth{status: tt.status}}), http.MethodGet, "/health", "")
			assert.Equal(t, tt.code, w.Code)
		})
	}
}

func TestMetricsRoute(t *testing.T) {
	w := do(newRouter(&fakeModerator{}, Options{}), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
