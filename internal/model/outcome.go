package model

type EntryFailure struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

type RelayOutcome struct {
	EntriesSent   int            `json:"entries_sent"`
	EntriesFailed []EntryFailure `json:"entries_failed"`
}

func (o *RelayOutcome) Sent() {
	o.EntriesSent++
}

func (o *RelayOutcome) Failed(path, reason string) {
	o.EntriesFailed = append(o.EntriesFailed, EntryFailure{Path: path, Reason: reason})
}

// Total returns the number of entries the relay loop attempted.
func (o *RelayOutcome) Total() int {
	return o.EntriesSent + len(o.EntriesFailed)
}
