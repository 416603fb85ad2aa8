package service

import (
	"context"
	"io"

	"tush00nka/unzipbot/internal/model"
)

// RelayRecorder persists one history row per finished request.
type RelayRecorder interface {
	Save(ctx context.Context, record *model.RelayRecord) error
}

// RequestClaimer guards against processing a redelivered update twice when
// several bot replicas poll the same token. Release gives a request back so
// a redelivery can retry it.
type RequestClaimer interface {
	Claim(ctx context.Context, chatID int64, requestID int) (bool, error)
	Release(ctx context.Context, chatID int64, requestID int) error
}

// ArchiveMirror keeps a copy of every admitted source archive.
type ArchiveMirror interface {
	UploadFile(ctx context.Context, file io.Reader, filename, contentType string, senderID, chatID int64) (*model.FileMetadata, error)
}
