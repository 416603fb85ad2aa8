package service

import "go.uber.org/atomic"

// Metrics счетчики конвейера, общие для всех запросов процесса.
type Metrics struct {
	Requests      atomic.Int64
	Rejected      atomic.Int64
	Duplicates    atomic.Int64
	Failed        atomic.Int64
	Completed     atomic.Int64
	EntriesSent   atomic.Int64
	EntriesFailed atomic.Int64
	InFlight      atomic.Int64
}

type MetricsSnapshot struct {
	Requests      int64 `json:"requests"`
	Rejected      int64 `json:"rejected"`
	Duplicates    int64 `json:"duplicates"`
	Failed        int64 `json:"failed"`
	Completed     int64 `json:"completed"`
	EntriesSent   int64 `json:"entries_sent"`
	EntriesFailed int64 `json:"entries_failed"`
	InFlight      int64 `json:"in_flight"`
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Requests:      m.Requests.Load(),
		Rejected:      m.Rejected.Load(),
		Duplicates:    m.Duplicates.Load(),
		Failed:        m.Failed.Load(),
		Completed:     m.Completed.Load(),
		EntriesSent:   m.EntriesSent.Load(),
		EntriesFailed: m.EntriesFailed.Load(),
		InFlight:      m.InFlight.Load(),
	}
}
