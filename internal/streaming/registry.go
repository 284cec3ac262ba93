package streaming

// Fixed stream-name registry (spec §4.1).
const (
	StreamWALPre              = "wal:pre"
	StreamWALPost             = "wal:post"
	StreamRetryMessages       = "retry:messages"
	StreamFallbackMessages    = "fallback:messages"
	StreamDLQMessages         = "dlq:messages"
	StreamEventsMessages      = "events:messages"
	StreamEventsStatus        = "events:status"
	StreamEventsConversations = "events:conversations"
	StreamEventsFiles         = "events:files"
	StreamEventsUsers         = "events:users"
)

// BuildMaxLens derives the MAXLEN policy table for every named stream from
// the four configured magnitudes (wal:*, retry:*/fallback:*, dlq:*,
// events:*).
func BuildMaxLens(walMaxLen, retryMaxLen, dlqMaxLen, eventsMaxLen int64) MaxLens {
	return MaxLens{
		StreamWALPre:              walMaxLen,
		StreamWALPost:             walMaxLen,
		StreamRetryMessages:       retryMaxLen,
		StreamFallbackMessages:    retryMaxLen,
		StreamDLQMessages:         dlqMaxLen,
		StreamEventsMessages:      eventsMaxLen,
		StreamEventsStatus:        eventsMaxLen,
		StreamEventsConversations: eventsMaxLen,
		StreamEventsFiles:         eventsMaxLen,
		StreamEventsUsers:         eventsMaxLen,
	}
}

// ConsumerName builds the "{processId}-{workerName}" consumer identity spec
// §4.1 requires, so a process restart always claims a fresh consumer slot.
func ConsumerName(processID, workerName string) string {
	return processID + "-" + workerName
}
