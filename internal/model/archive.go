package model

import (
	"path"
	"strings"
)

type Format int

const (
	FormatUnknown Format = iota
	FormatZip
	FormatSevenZip
)

const (
	MimeZip           = "application/zip"
	MimeZipCompressed = "application/x-zip-compressed"
	MimeSevenZip      = "application/x-7z-compressed"
)

func (f Format) String() string {
	switch f {
	case FormatZip:
		return "zip"
	case FormatSevenZip:
		return "7z"
	default:
		return "unknown"
	}
}

// DetectFormat определяет формат архива по MIME-типу или расширению файла.
// Достаточно совпадения любого из двух признаков.
func DetectFormat(mimeType, fileName string) Format {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case MimeZip, MimeZipCompressed:
		return FormatZip
	case MimeSevenZip:
		return FormatSevenZip
	}

	switch strings.ToLower(path.Ext(fileName)) {
	case ".zip":
		return FormatZip
	case ".7z":
		return FormatSevenZip
	}

	return FormatUnknown
}

// ArchiveRequest is created once per inbound document and never mutated.
type ArchiveRequest struct {
	ChatID          int64
	RequestID       int
	SenderID        int64
	FileID          string
	SourceFileName  string
	MimeType        string
	SourceSizeBytes int64
	SourceFormat    Format
}

func NewArchiveRequest(chatID int64, requestID int, senderID int64, fileID, fileName, mimeType string, size int64) ArchiveRequest {
	return ArchiveRequest{
		ChatID:          chatID,
		RequestID:       requestID,
		SenderID:        senderID,
		FileID:          fileID,
		SourceFileName:  fileName,
		MimeType:        mimeType,
		SourceSizeBytes: size,
		SourceFormat:    DetectFormat(mimeType, fileName),
	}
}

type ExtractedEntry struct {
	Path  string `json:"path"`
	Size  int64  `json:"size"`
	IsDir bool   `json:"is_dir"`
}

type MediaKind string

const (
	MediaPhoto    MediaKind = "photo"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
)

// MediaKindFor выбирает тип отправки по расширению файла.
func MediaKindFor(name string) MediaKind {
	switch strings.ToLower(path.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif":
		return MediaPhoto
	case ".mp4", ".mkv", ".avi", ".mov":
		return MediaVideo
	default:
		return MediaDocument
	}
}
