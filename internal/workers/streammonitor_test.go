package workers

import (
	"context"
	"testing"
	"time"

	"github.com/agency-portal/chat-pipeline/internal/streaming"
	"github.com/agency-portal/chat-pipeline/internal/streaming/streamingtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamMonitor_AlertsWhenPendingBacklogCrossesThreshold(t *testing.T) {
	ctx := context.Background()
	streams := streamingtest.New()
	for i := 0; i < 3; i++ {
		_, err := streams.Append(ctx, streaming.StreamEventsMessages, []byte(`{}`))
		require.NoError(t, err)
	}
	_, err := streams.ReadGroup(ctx, streaming.StreamEventsMessages, "g1", "c1", 10, 0, true)
	require.NoError(t, err)

	alerts := &fakeAlertSink{}
	m := NewStreamMonitor(streams, alerts, nil, time.Hour, 2, [2]string{streaming.StreamEventsMessages, "g1"})
	m.checkOnce(ctx)

	assert.Equal(t, []string{"stream_backlog"}, alerts.alerts)
}
