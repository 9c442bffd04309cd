package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"chatguard/internal/logger"
	"chatguard/pkg/models"
)

const DefaultModerationModel = "omni-moderation-latest"

type moderator interface {
	Moderations(ctx context.Context, request openai.ModerationRequest) (openai.ModerationResponse, error)
}

// OpenAIModerationClient scores text with the OpenAI moderation endpoint.
// Positive labels name category keys such as "harassment" or "hate"; the
// pseudo label "flagged" maps the endpoint's own decision to a score of 1.
type OpenAIModerationClient struct {
	desc   Descriptor
	api    moderator
	logger logger.Logger
}

func NewOpenAIModerationClient(desc Descriptor, baseURL string, log logger.Logger) *OpenAIModerationClient {
	cfg := openai.DefaultConfig(desc.Token)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return newOpenAIModerationClient(desc, openai.NewClientWithConfig(cfg), log)
}

func newOpenAIModerationClient(desc Descriptor, api moderator, log logger.Logger) *OpenAIModerationClient {
	if desc.Model == "" {
		desc.Model = DefaultModerationModel
	}
	return &OpenAIModerationClient{desc: desc, api: api, logger: log}
}

func (c *OpenAIModerationClient) Descriptor() Descriptor {
	return c.desc
}

func (c *OpenAIModerationClient) Classify(ctx context.Context, text string) (models.ClassifierVerdict, error) {
	if strings.TrimSpace(text) == "" {
		return DefaultVerdict(c.desc.Name, models.VerdictUnavailable), ErrEmptyText
	}

	resp, err := c.api.Moderations(ctx, openai.ModerationRequest{
		Input: text,
		Model: c.desc.Model,
	})
	if err != nil {
		status := statusFromOpenAIError(err)
		c.logger.WarnwCtx(ctx, "Moderation request failed",
			"classifier", c.desc.Name,
			"status", status,
			"error", err,
		)
		return DefaultVerdict(c.desc.Name, status), nil
	}

	if len(resp.Results) == 0 {
		c.logger.WarnwCtx(ctx, "Moderation response has no results", "classifier", c.desc.Name)
		return DefaultVerdict(c.desc.Name, models.VerdictUnavailable), nil
	}

	scores, err := moderationScores(resp.Results[0])
	if err != nil {
		c.logger.WarnwCtx(ctx, "Malformed moderation response", "classifier", c.desc.Name, "error", err)
		return DefaultVerdict(c.desc.Name, models.VerdictUnavailable), nil
	}

	return c.desc.verdictFromScores(scores), nil
}

// moderationScores flattens the category scores through their JSON names so
// new categories need no code change.
func moderationScores(result openai.Result) ([]labelScore, error) {
	raw, err := json.Marshal(result.CategoryScores)
	if err != nil {
		return nil, err
	}
	var byCategory map[string]float64
	if err := json.Unmarshal(raw, &byCategory); err != nil {
		return nil, err
	}

	scores := make([]labelScore, 0, len(byCategory)+1)
	for label, score := range byCategory {
		scores = append(scores, labelScore{Label: label, Score: score})
	}
	flagged := 0.0
	if result.Flagged {
		flagged = 1.0
	}
	scores = append(scores, labelScore{Label: "flagged", Score: flagged})
	return scores, nil
}

func statusFromOpenAIError(err error) models.VerdictStatus {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusServiceUnavailable {
		return models.VerdictDegraded
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusServiceUnavailable {
		return models.VerdictDegraded
	}
	return models.VerdictUnavailable
}
