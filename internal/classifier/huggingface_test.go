package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatguard/internal/config"
	"chatguard/internal/logger"
	"chatguard/pkg/models"
)

func toxicityDescriptor(url string) Descriptor {
	d := NewDescriptor(config.ClassifierConfig{
		Name:           "toxicity",
		Kind:           "toxicity",
		Scope:          "segment",
		Backend:        "huggingface",
		URL:            url,
		PositiveLabels: []string{"toxic", "LABEL_1"},
		Threshold:      0.5,
		Timeout:        time.Second,
	})
	d.Token = "hf_test"
	return d
}

func TestHuggingFaceClient_Classify(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		wantStatus   models.VerdictStatus
		wantPositive bool
		wantConf     float64
		wantLabel    string
	}{
		{
			name:         "flat list positive",
			status:       http.StatusOK,
			body:         `[{"label":"non-toxic","score":0.1},{"label":"toxic","score":0.9}]`,
			wantStatus:   models.VerdictOK,
			wantPositive: true,
			wantConf:     0.9,
			wantLabel:    "toxic",
		},
		{
			name:         "nested list negative",
			status:       http.StatusOK,
			body:         `[[{"label":"LABEL_0","score":0.8},{"label":"LABEL_1","score":0.2}]]`,
			wantStatus:   models.VerdictOK,
			wantPositive: false,
			wantConf:     0.2,
			wantLabel:    "LABEL_0",
		},
		{
			name:         "score at threshold is negative",
			status:       http.StatusOK,
			body:         `[{"label":"toxic","score":0.5}]`,
			wantStatus:   models.VerdictOK,
			wantPositive: false,
			wantConf:     0.5,
			wantLabel:    "toxic",
		},
		{
			name:       "model loading",
			status:     http.StatusServiceUnavailable,
			body:       `{"error":"Model is currently loading","estimated_time":20}`,
			wantStatus: models.VerdictDegraded,
		},
		{
			name:       "server error",
			status:     http.StatusInternalServerError,
			body:       `oops`,
			wantStatus: models.VerdictUnavailable,
		},
		{
			name:       "object instead of list",
			status:     http.StatusOK,
			body:       `{"error":"bad input"}`,
			wantStatus: models.VerdictUnavailable,
		},
		{
			name:       "empty list",
			status:     http.StatusOK,
			body:       `[]`,
			wantStatus: models.VerdictUnavailable,
		},
		{
			name:       "entry without score",
			status:     http.StatusOK,
			body:       `[{"label":"toxic"}]`,
			wantStatus: models.VerdictUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "Bearer hf_test", r.Header.Get("Authorization"))

				var req map[string]string
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "Цены ужасные, обман.", req["inputs"])

				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewHuggingFaceClient(toxicityDescriptor(srv.URL), srv.Client(), logger.NopLogger())
			v, err := c.Classify(context.Background(), "Цены ужасные, обман.")
			require.NoError(t, err)

			assert.Equal(t, "toxicity", v.Classifier)
			assert.Equal(t, tt.wantStatus, v.Status)
			assert.Equal(t, tt.wantPositive, v.Positive)
			assert.InDelta(t, tt.wantConf, v.Confidence, 1e-9)
			if tt.wantLabel != "" {
				assert.Equal(t, tt.wantLabel, v.Label)
			}
		})
	}
}

func TestHuggingFaceClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewHuggingFaceClient(toxicityDescriptor(url), nil, logger.NopLogger())
	v, err := c.Classify(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, DefaultVerdict("toxicity", models.VerdictUnavailable), v)
}

func TestHuggingFaceClient_EmptyText(t *testing.T) {
	c := NewHuggingFaceClient(toxicityDescriptor("http://unused"), nil, logger.NopLogger())
	v, err := c.Classify(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyText)
	assert.False(t, v.Positive)
}

func TestHuggingFaceClient_ContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewHuggingFaceClient(toxicityDescriptor(srv.URL), srv.Client(), logger.NopLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	v, err := c.Classify(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, models.VerdictUnavailable, v.Status)
}

func TestNewDescriptor_Defaults(t *testing.T) {
	d := NewDescriptor(config.ClassifierConfig{Name: "spam", Kind: "spam", PositiveLabels: []string{"SPAM"}})
	assert.Equal(t, 0.5, d.Threshold)
	assert.Equal(t, 5*time.Second, d.Timeout)
	assert.True(t, d.IsPositiveLabel("spam"))
	assert.True(t, d.IsPositiveLabel("Spam"))
	assert.False(t, d.IsPositiveLabel("ham"))
}
