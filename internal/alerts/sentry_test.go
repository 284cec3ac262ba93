package alerts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSentrySink_EmptyDSNIsDisabledNotError(t *testing.T) {
	sink, err := NewSentrySink("", "chat-pipeline", "test")
	require.NoError(t, err)
	assert.False(t, sink.enabled)
}

func TestAlert_DisabledSinkDoesNotPanic(t *testing.T) {
	sink, err := NewSentrySink("", "chat-pipeline", "test")
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		sink.Alert(context.Background(), "stream_backlog", map[string]interface{}{"stream": "dlq:messages"})
	})
}
