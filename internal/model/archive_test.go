package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name     string
		mime     string
		fileName string
		want     Format
	}{
		{"zip by mime", MimeZip, "archive", FormatZip},
		{"windows zip mime", MimeZipCompressed, "", FormatZip},
		{"7z by mime", MimeSevenZip, "blob.bin", FormatSevenZip},
		{"zip by suffix", "application/octet-stream", "Photos.ZIP", FormatZip},
		{"7z by suffix", "", "backup.7z", FormatSevenZip},
		{"plain document", "text/plain", "notes.txt", FormatUnknown},
		{"tarball", "application/gzip", "src.tar.gz", FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFormat(tt.mime, tt.fileName))
		})
	}
}

func TestNewArchiveRequestDetectsFormat(t *testing.T) {
	req := NewArchiveRequest(42, 7, 1001, "file-id", "photos.zip", "", 1024)

	assert.Equal(t, FormatZip, req.SourceFormat)
	assert.Equal(t, int64(42), req.ChatID)
	assert.Equal(t, 7, req.RequestID)
	assert.Equal(t, int64(1024), req.SourceSizeBytes)
}

func TestMediaKindFor(t *testing.T) {
	assert.Equal(t, MediaPhoto, MediaKindFor("dir/a.JPG"))
	assert.Equal(t, MediaVideo, MediaKindFor("clip.mov"))
	assert.Equal(t, MediaDocument, MediaKindFor("report.pdf"))
	assert.Equal(t, MediaDocument, MediaKindFor("README"))
}

func TestRelayOutcomeTotal(t *testing.T) {
	var outcome RelayOutcome
	outcome.Sent()
	outcome.Sent()
	outcome.Failed("x.bin", "too large")

	assert.Equal(t, 2, outcome.EntriesSent)
	assert.Equal(t, 3, outcome.Total())
	assert.Equal(t, []EntryFailure{{Path: "x.bin", Reason: "too large"}}, outcome.EntriesFailed)
}
