package model

import "time"

type FileMetadata struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	S3Key       string    `json:"s3_key"`
	S3Bucket    string    `json:"s3_bucket"`
	SenderID    int64     `json:"sender_id"`
	ChatID      int64     `json:"chat_id"`
	RequestID   int       `json:"request_id"`
	CreatedAt   time.Time `json:"created_at"`
}
