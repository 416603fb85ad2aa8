package model

import (
	"time"

	"gorm.io/gorm"
)

type RelayStatus string

const (
	StatusAdmitted    RelayStatus = "admitted"
	StatusDownloading RelayStatus = "downloading"
	StatusExtracting  RelayStatus = "extracting"
	StatusRelaying    RelayStatus = "relaying"
	StatusFinalized   RelayStatus = "finalized"
	StatusFailed      RelayStatus = "failed"
	StatusRejected    RelayStatus = "rejected"
)

// RelayRecord - запись истории обработки одного архива.
type RelayRecord struct {
	gorm.Model
	ChatID        int64         `gorm:"uniqueIndex:idx_relay_request" json:"chat_id"`
	RequestID     int           `gorm:"uniqueIndex:idx_relay_request" json:"request_id"`
	SenderID      int64         `json:"sender_id"`
	FileName      string        `json:"file_name"`
	Format        string        `json:"format"`
	SizeBytes     int64         `json:"size_bytes"`
	Status        RelayStatus   `json:"status"`
	EntriesSent   int           `json:"entries_sent"`
	EntriesFailed int           `json:"entries_failed"`
	Error         string        `json:"error,omitempty"`
	Duration      time.Duration `json:"duration"`
}
