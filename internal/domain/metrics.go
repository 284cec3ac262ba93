package domain

import "time"

// WorkerStats is the per-worker counters the Supervisor (C9) aggregates, as
// required by spec.md §4.9: {processed, failed, lastError, lastRunAt}.
type WorkerStats struct {
	Name       string
	Processed  uint64
	Failed     uint64
	LastError  string
	LastRunAt  time.Time
	Restarts   uint64
}
