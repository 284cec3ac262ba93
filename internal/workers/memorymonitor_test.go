package workers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryMonitor_SamplesHeapAndSkipsAlertWithoutThreshold(t *testing.T) {
	alerts := &fakeAlertSink{}
	m := NewMemoryMonitor(alerts, nil, time.Hour, 0)
	m.sampleOnce(context.Background())

	assert.Greater(t, m.HeapBytes(), uint64(0))
	assert.Empty(t, alerts.alerts)
}

func TestMemoryMonitor_AlertsAboveThreshold(t *testing.T) {
	alerts := &fakeAlertSink{}
	m := NewMemoryMonitor(alerts, nil, time.Hour, 1)
	m.sampleOnce(context.Background())

	assert.Equal(t, []string{"memory_pressure"}, alerts.alerts)
}
