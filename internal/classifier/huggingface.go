package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"chatguard/internal/constants"
	"chatguard/internal/logger"
	"chatguard/pkg/models"
)

const maxInferenceResponseBytes = 1 << 20

var errMalformed = errors.New("response is not a list of label/score entries")

// HuggingFaceClient calls a text-classification model on the Hugging Face
// inference API.
type HuggingFaceClient struct {
	desc   Descriptor
	client *http.Client
	logger logger.Logger
}

func NewHuggingFaceClient(desc Descriptor, httpClient *http.Client, log logger.Logger) *HuggingFaceClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: constants.DefaultHTTPTimeout}
	}
	return &HuggingFaceClient{desc: desc, client: httpClient, logger: log}
}

func (c *HuggingFaceClient) Descriptor() Descriptor {
	return c.desc
}

func (c *HuggingFaceClient) Classify(ctx context.Context, text string) (models.ClassifierVerdict, error) {
	if strings.TrimSpace(text) == "" {
		return DefaultVerdict(c.desc.Name, models.VerdictUnavailable), ErrEmptyText
	}

	body, err := json.Marshal(map[string]string{"inputs": text})
	if err != nil {
		return DefaultVerdict(c.desc.Name, models.VerdictUnavailable), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.desc.URL, bytes.NewReader(body))
	if err != nil {
		c.logger.WarnwCtx(ctx, "Failed to build inference request", "classifier", c.desc.Name, "error", err)
		return DefaultVerdict(c.desc.Name, models.VerdictUnavailable), nil
	}
	req.Header.Set("Content-Type", "application/json")
	if c.desc.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.desc.Token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.WarnwCtx(ctx, "Inference request failed", "classifier", c.desc.Name, "error", err)
		return DefaultVerdict(c.desc.Name, models.VerdictUnavailable), nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxInferenceResponseBytes))
	if err != nil {
		c.logger.WarnwCtx(ctx, "Failed to read inference response", "classifier", c.desc.Name, "error", err)
		return DefaultVerdict(c.desc.Name, models.VerdictUnavailable), nil
	}

	if resp.StatusCode == http.StatusServiceUnavailable {
		c.logger.WarnwCtx(ctx, "Model is loading", "classifier", c.desc.Name)
		return DefaultVerdict(c.desc.Name, models.VerdictDegraded), nil
	}
	if resp.StatusCode < constants.HTTPStatusOKMin || resp.StatusCode >= constants.HTTPStatusOKMax {
		c.logger.WarnwCtx(ctx, "Inference API returned error status",
			"classifier", c.desc.Name,
			"status", resp.StatusCode,
			"body", truncate(string(raw), 256),
		)
		return DefaultVerdict(c.desc.Name, models.VerdictUnavailable), nil
	}

	scores, err := parseInferenceScores(raw)
	if err != nil {
		c.logger.WarnwCtx(ctx, "Malformed inference response",
			"classifier", c.desc.Name,
			"error", err,
			"body", truncate(string(raw), 256),
		)
		return DefaultVerdict(c.desc.Name, models.VerdictUnavailable), nil
	}

	return c.desc.verdictFromScores(scores), nil
}

type inferenceEntry struct {
	Label *string  `json:"label"`
	Score *float64 `json:"score"`
}

// parseInferenceScores accepts [{label,score}] and the batched
// [[{label,score}]] shape, in which case only the first batch is used.
func parseInferenceScores(raw []byte) ([]labelScore, error) {
	var flat []inferenceEntry
	if err := json.Unmarshal(raw, &flat); err != nil {
		var nested [][]inferenceEntry
		if nestedErr := json.Unmarshal(raw, &nested); nestedErr != nil {
			return nil, fmt.Errorf("%w: %v", errMalformed, err)
		}
		if len(nested) == 0 {
			return nil, errMalformed
		}
		flat = nested[0]
	}

	if len(flat) == 0 {
		return nil, errMalformed
	}

	scores := make([]labelScore, 0, len(flat))
	for _, e := range flat {
		if e.Label == nil || e.Score == nil {
			return nil, errMalformed
		}
		scores = append(scores, labelScore{Label: *e.Label, Score: *e.Score})
	}
	return scores, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
