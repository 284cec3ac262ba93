package streaming

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildMaxLens(t *testing.T) {
	ml := BuildMaxLens(10000, 5000, 50000, 5000)

	assert.Equal(t, int64(10000), ml[StreamWALPre])
	assert.Equal(t, int64(10000), ml[StreamWALPost])
	assert.Equal(t, int64(5000), ml[StreamRetryMessages])
	assert.Equal(t, int64(5000), ml[StreamFallbackMessages])
	assert.Equal(t, int64(50000), ml[StreamDLQMessages])
	assert.Equal(t, int64(5000), ml[StreamEventsMessages])
	assert.Equal(t, int64(5000), ml[StreamEventsUsers])
}

func TestConsumerName(t *testing.T) {
	assert.Equal(t, "proc-1-retry-worker", ConsumerName("proc-1", "retry-worker"))
}

func TestBuildPayload_PassesThroughJSONBytes(t *testing.T) {
	values := map[string]any{"payload": []byte(`{"a":1}`)}
	out := buildPayload(values)
	assert.JSONEq(t, `{"a":1}`, string(out))
}

func TestBuildPayload_EncodesNonJSONString(t *testing.T) {
	values := map[string]any{"payload": "plain text"}
	out := buildPayload(values)
	assert.JSONEq(t, `"plain text"`, string(out))
}

func TestBuildPayload_FallsBackToWholeMap(t *testing.T) {
	values := map[string]any{"foo": "bar"}
	out := buildPayload(values)
	assert.JSONEq(t, `{"foo":"bar"}`, string(out))
}
