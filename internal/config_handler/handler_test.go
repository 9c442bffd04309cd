package config_handler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatguard/internal/constants"
	"chatguard/internal/logger"
	"chatguard/pkg/models"
	"chatguard/pkg/retry"
)

type countingReloader struct {
	calls int
	err   error
}

func (r *countingReloader) ReloadRules(context.Context, ...bool) error {
	r.calls++
	return r.err
}

func envelope(t *testing.T, typ string, event models.ConfigUpdateEvent) models.MessageEnvelope {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return models.MessageEnvelope{ID: "evt-1", Type: typ, Payload: payload}
}

func TestHandleConfigUpdateEvent(t *testing.T) {
	tests := []struct {
		name      string
		envType   string
		target    string
		wantCalls int
	}{
		{name: "matching target", envType: models.EnvelopeTypeConfigUpdate, target: constants.ConfigTargetExemption, wantCalls: 1},
		{name: "other target", envType: models.EnvelopeTypeConfigUpdate, target: "classifiers"},
		{name: "missing target", envType: models.EnvelopeTypeConfigUpdate},
		{name: "other envelope type", envType: models.EnvelopeTypeChatMessage, target: constants.ConfigTargetExemption},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reloader := &countingReloader{}
			h := NewHandler(constants.ConfigTargetExemption, reloader, logger.NopLogger())

			err := h.HandleConfigUpdateEvent(context.Background(), envelope(t, tt.envType, models.ConfigUpdateEvent{Target: tt.target, Action: "update"}))

			require.NoError(t, err)
			assert.Equal(t, tt.wantCalls, reloader.calls)
		})
	}
}

func TestHandleConfigUpdateEvent_ReloadError(t *testing.T) {
	reloader := &countingReloader{err: errors.New("table missing")}
	h := NewHandler(constants.ConfigTargetExemption, reloader, logger.NopLogger())

	err := h.HandleConfigUpdateEvent(context.Background(), envelope(t, models.EnvelopeTypeConfigUpdate, models.ConfigUpdateEvent{Target: constants.ConfigTargetExemption}))
	assert.EqualError(t, err, "table missing")
}

func TestHandleConfigUpdateEvent_BadPayloadIsFatal(t *testing.T) {
	h := NewHandler(constants.ConfigTargetExemption, &countingReloader{}, logger.NopLogger())

	err := h.HandleConfigUpdateEvent(context.Background(), models.MessageEnvelope{
		ID:      "evt-2",
		Type:    models.EnvelopeTypeConfigUpdate,
		Payload: json.RawMessage(`[1,2]`),
	})

	var fatal retry.FatalError
	require.True(t, errors.As(err, &fatal))
}
