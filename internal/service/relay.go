package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"runtime/debug"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"tush00nka/unzipbot/internal/archive"
	"tush00nka/unzipbot/internal/model"
	"tush00nka/unzipbot/internal/pkg/tg"
	"tush00nka/unzipbot/internal/workspace"
)

const (
	textReceived    = "Processing your file..."
	textDownloading = "Downloading archive..."
	textExtracting  = "Extracting files..."
	textUploading   = "Uploading extracted files..."

	textUnsupported = "Unsupported file format. Please send a .zip or .7z file."
	textUnexpected  = "An unexpected error occurred while processing your file. Please try again later."

	// Bot API rejects longer messages.
	maxMessageLength = 4096
)

type RelayOptions struct {
	// MaxFileSize of zero disables the admission size check.
	MaxFileSize     int64
	DownloadTimeout time.Duration
	ExtractTimeout  time.Duration
	UploadTimeout   time.Duration
}

type RelayOption func(*RelayService)

func WithRecorder(recorder RelayRecorder) RelayOption {
	return func(s *RelayService) { s.recorder = recorder }
}

func WithClaimer(claimer RequestClaimer) RelayOption {
	return func(s *RelayService) { s.claimer = claimer }
}

func WithMirror(mirror ArchiveMirror) RelayOption {
	return func(s *RelayService) { s.mirror = mirror }
}

// RelayService runs the download, extract, relay pipeline for one archive
// per call. Calls for different requests may run concurrently.
type RelayService struct {
	messenger  tg.Messenger
	workspaces *workspace.Manager
	opts       RelayOptions

	recorder RelayRecorder
	claimer  RequestClaimer
	mirror   ArchiveMirror

	metrics *Metrics
	logger  *slog.Logger
}

func NewRelayService(messenger tg.Messenger, workspaces *workspace.Manager, opts RelayOptions, logger *slog.Logger, options ...RelayOption) *RelayService {
	if logger == nil {
		logger = slog.Default()
	}

	s := &RelayService{
		messenger:  messenger,
		workspaces: workspaces,
		opts:       opts,
		metrics:    &Metrics{},
		logger:     logger.With("module", "relay"),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

func (s *RelayService) Metrics() *Metrics {
	return s.metrics
}

// Process relays every file of the archive described by req back into its
// chat. All user-facing reporting happens here; the returned error is for
// logs only. The request's workspace never outlives the call.
func (s *RelayService) Process(ctx context.Context, req model.ArchiveRequest) (*model.RelayOutcome, error) {
	started := time.Now()
	log := s.logger.With("chat_id", req.ChatID, "request_id", req.RequestID, "file", req.SourceFileName)
	s.metrics.Requests.Inc()

	if err := s.admit(req); err != nil {
		s.metrics.Rejected.Inc()
		log.Info("archive rejected", "error", err)
		s.reply(ctx, req.ChatID, s.admissionText(req, err))
		s.record(ctx, req, model.StatusRejected, nil, err, started)
		return nil, err
	}

	if s.claimer != nil {
		claimed, err := s.claimer.Claim(ctx, req.ChatID, req.RequestID)
		switch {
		case err != nil:
			log.Warn("request claim unavailable, processing anyway", "error", err)
		case !claimed:
			s.metrics.Duplicates.Inc()
			log.Info("request already claimed elsewhere, skipping")
			return nil, ErrDuplicateRequest
		}
	}

	ws, err := s.workspaces.Acquire(workspace.KeyFor(req))
	if err != nil {
		if errors.Is(err, workspace.ErrInUse) {
			s.metrics.Duplicates.Inc()
			log.Info("request already in progress, skipping")
			return nil, ErrDuplicateRequest
		}

		s.metrics.Failed.Inc()
		log.Error("failed to acquire workspace", "error", err)
		s.releaseClaim(ctx, req, log)
		s.reply(ctx, req.ChatID, textUnexpected)
		relayErr := &RelayError{Kind: KindUnexpected, Err: err}
		s.record(ctx, req, model.StatusFailed, nil, relayErr, started)
		return nil, relayErr
	}

	outcome, err := s.runAndRelease(ctx, req, ws, log)
	if err != nil {
		s.metrics.Failed.Inc()
		log.Error("archive relay failed", "kind", KindOf(err), "error", err, "duration", time.Since(started))
		if KindOf(err) == KindTransfer {
			s.releaseClaim(ctx, req, log)
		}
		s.record(ctx, req, model.StatusFailed, outcome, err, started)
		return outcome, err
	}

	s.metrics.Completed.Inc()
	s.metrics.EntriesSent.Add(int64(outcome.EntriesSent))
	s.metrics.EntriesFailed.Add(int64(len(outcome.EntriesFailed)))
	log.Info("archive relayed",
		"sent", outcome.EntriesSent,
		"failed", len(outcome.EntriesFailed),
		"duration", time.Since(started))
	s.record(ctx, req, model.StatusFinalized, outcome, nil, started)
	return outcome, nil
}

// releaseClaim frees the request after a failure that a redelivery may fix.
func (s *RelayService) releaseClaim(ctx context.Context, req model.ArchiveRequest, log *slog.Logger) {
	if s.claimer == nil {
		return
	}
	if err := s.claimer.Release(context.WithoutCancel(ctx), req.ChatID, req.RequestID); err != nil {
		log.Warn("failed to release request claim", "error", err)
	}
}

func (s *RelayService) admit(req model.ArchiveRequest) error {
	if req.SourceFormat != model.FormatZip && req.SourceFormat != model.FormatSevenZip {
		return &RelayError{Kind: KindAdmission, Err: ErrUnsupportedFormat}
	}
	if s.opts.MaxFileSize > 0 && req.SourceSizeBytes > s.opts.MaxFileSize {
		return &RelayError{Kind: KindAdmission, Err: ErrTooLarge}
	}
	return nil
}

func (s *RelayService) admissionText(req model.ArchiveRequest, err error) string {
	if errors.Is(err, ErrTooLarge) {
		return fmt.Sprintf("Sorry, the file is too large (%s). I can only process files up to %s.",
			humanize.IBytes(uint64(req.SourceSizeBytes)), humanize.IBytes(uint64(s.opts.MaxFileSize)))
	}
	return textUnsupported
}

// runAndRelease owns the workspace from acquisition to release. Release runs
// on every path out, panics included.
func (s *RelayService) runAndRelease(ctx context.Context, req model.ArchiveRequest, ws *workspace.Workspace, log *slog.Logger) (outcome *model.RelayOutcome, err error) {
	s.metrics.InFlight.Inc()
	status := &statusMessage{messenger: s.messenger, chatID: req.ChatID, logger: log}

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic during archive relay", "panic", r, "stack", string(debug.Stack()))
			outcome = nil
			err = &RelayError{Kind: KindUnexpected, Err: fmt.Errorf("panic: %v", r)}
		}

		if releaseErr := ws.Release(); releaseErr != nil {
			log.Error("workspace release failed", "error", releaseErr)
		}
		s.metrics.InFlight.Dec()

		if err != nil {
			status.fail(ctx, userErrorText(err))
		}
	}()

	status.set(ctx, textReceived)
	return s.run(ctx, req, ws, status, log)
}

func (s *RelayService) run(ctx context.Context, req model.ArchiveRequest, ws *workspace.Workspace, status *statusMessage, log *slog.Logger) (*model.RelayOutcome, error) {
	status.set(ctx, textDownloading)
	if err := s.download(ctx, req, ws); err != nil {
		return nil, &RelayError{Kind: KindTransfer, Err: err}
	}
	log.Debug("archive downloaded")

	s.mirrorSource(ctx, req, ws, log)

	status.set(ctx, textExtracting)
	entries, skipped, closeDownload, err := s.extract(ctx, req, ws)
	if err != nil {
		return nil, &RelayError{Kind: KindExtraction, Err: err}
	}
	defer closeDownload.Close()

	files := archive.Files(entries)
	log.Debug("archive extracted", "files", len(files), "skipped", len(skipped))

	status.set(ctx, textUploading)
	outcome := &model.RelayOutcome{}
	for _, failure := range skipped {
		log.Warn("archive entry skipped", "entry", failure.Path, "reason", failure.Reason)
		outcome.Failed(failure.Path, failure.Reason)
	}
	for _, entry := range files {
		if err := s.relayEntry(ctx, req, entries, entry); err != nil {
			log.Warn("failed to relay entry", "entry", entry.Path, "error", err)
			outcome.Failed(entry.Path, err.Error())
			continue
		}
		outcome.Sent()
	}

	status.done(ctx, summaryText(outcome))
	return outcome, nil
}

func (s *RelayService) download(ctx context.Context, req model.ArchiveRequest, ws *workspace.Workspace) error {
	ctx, cancel := withTimeout(ctx, s.opts.DownloadTimeout)
	defer cancel()

	_, err := ws.Download(ctx, req.SourceFileName, func(ctx context.Context, dst io.Writer) (int64, error) {
		return s.messenger.Download(ctx, req.FileID, dst)
	})
	if err != nil {
		return fmt.Errorf("download archive: %w", err)
	}
	return nil
}

// extract returns the staged entries, the members the archive reader refused
// and the closer of the downloaded archive, which memory mode keeps reading
// from until the relay loop ends.
func (s *RelayService) extract(ctx context.Context, req model.ArchiveRequest, ws *workspace.Workspace) (archive.Entries, []model.EntryFailure, io.Closer, error) {
	ctx, cancel := withTimeout(ctx, s.opts.ExtractTimeout)
	defer cancel()

	ra, size, closer, err := ws.OpenDownload()
	if err != nil {
		return nil, nil, nil, err
	}

	reader, err := archive.NewReader(req.SourceFormat, ra, size)
	if err != nil {
		closer.Close()
		return nil, nil, nil, err
	}

	entries, err := ws.Stage(ctx, reader)
	if err != nil {
		closer.Close()
		return nil, nil, nil, err
	}
	return entries, reader.Skipped(), closer, nil
}

func (s *RelayService) relayEntry(ctx context.Context, req model.ArchiveRequest, entries archive.Entries, entry model.ExtractedEntry) error {
	ctx, cancel := withTimeout(ctx, s.opts.UploadTimeout)
	defer cancel()

	if err := ctx.Err(); err != nil {
		return err
	}

	rc, err := entries.Open(entry.Path)
	if err != nil {
		return err
	}
	defer rc.Close()

	name := path.Base(entry.Path)
	file := tg.OutboundFile{
		Name:   name,
		Kind:   model.MediaKindFor(name),
		Size:   entry.Size,
		Reader: rc,
	}
	if name != entry.Path {
		file.Caption = entry.Path
	}

	return s.messenger.SendFile(ctx, req.ChatID, file)
}

func (s *RelayService) mirrorSource(ctx context.Context, req model.ArchiveRequest, ws *workspace.Workspace, log *slog.Logger) {
	if s.mirror == nil {
		return
	}

	ra, size, closer, err := ws.OpenDownload()
	if err != nil {
		log.Warn("archive mirror skipped", "error", err)
		return
	}
	defer closer.Close()

	contentType := req.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	meta, err := s.mirror.UploadFile(ctx, io.NewSectionReader(ra, 0, size), req.SourceFileName, contentType, req.SenderID, req.ChatID)
	if err != nil {
		log.Warn("archive mirror failed", "error", err)
		return
	}
	log.Debug("archive mirrored", "key", meta.S3Key)
}

func (s *RelayService) reply(ctx context.Context, chatID int64, text string) {
	if _, err := s.messenger.SendText(ctx, chatID, text); err != nil {
		s.logger.Warn("failed to send reply", "chat_id", chatID, "error", err)
	}
}

func (s *RelayService) record(ctx context.Context, req model.ArchiveRequest, status model.RelayStatus, outcome *model.RelayOutcome, err error, started time.Time) {
	if s.recorder == nil {
		return
	}

	rec := &model.RelayRecord{
		ChatID:    req.ChatID,
		RequestID: req.RequestID,
		SenderID:  req.SenderID,
		FileName:  req.SourceFileName,
		Format:    req.SourceFormat.String(),
		SizeBytes: req.SourceSizeBytes,
		Status:    status,
		Duration:  time.Since(started),
	}
	if outcome != nil {
		rec.EntriesSent = outcome.EntriesSent
		rec.EntriesFailed = len(outcome.EntriesFailed)
	}
	if err != nil {
		rec.Error = err.Error()
	}

	if saveErr := s.recorder.Save(context.WithoutCancel(ctx), rec); saveErr != nil {
		s.logger.Warn("failed to save relay record", "chat_id", req.ChatID, "request_id", req.RequestID, "error", saveErr)
	}
}

func userErrorText(err error) string {
	var relayErr *RelayError
	if errors.As(err, &relayErr) && (relayErr.Kind == KindTransfer || relayErr.Kind == KindExtraction) {
		return "An error occurred during processing: " + relayErr.Err.Error()
	}
	return textUnexpected
}

func summaryText(outcome *model.RelayOutcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Extraction complete! Sent %d file(s).", outcome.EntriesSent)
	if len(outcome.EntriesFailed) == 0 {
		return b.String()
	}

	fmt.Fprintf(&b, "\n\nCould not send %d file(s):", len(outcome.EntriesFailed))
	for i, failure := range outcome.EntriesFailed {
		line := fmt.Sprintf("\n%s: %s", failure.Path, failure.Reason)
		if b.Len()+len(line) > maxMessageLength-64 {
			fmt.Fprintf(&b, "\n...and %d more", len(outcome.EntriesFailed)-i)
			break
		}
		b.WriteString(line)
	}
	return b.String()
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// statusMessage is the single progress message of a request, edited in place
// as the pipeline moves through its stages.
type statusMessage struct {
	messenger tg.Messenger
	chatID    int64
	messageID int
	logger    *slog.Logger
}

func (m *statusMessage) set(ctx context.Context, text string) {
	if m.messageID == 0 {
		id, err := m.messenger.SendText(ctx, m.chatID, text)
		if err != nil {
			m.logger.Warn("failed to send status", "error", err)
			return
		}
		m.messageID = id
		return
	}

	if err := m.messenger.EditText(ctx, m.chatID, m.messageID, text); err != nil {
		m.logger.Warn("failed to update status", "error", err)
	}
}

// done replaces the progress message with a fresh summary message.
func (m *statusMessage) done(ctx context.Context, summary string) {
	if m.messageID != 0 {
		if err := m.messenger.DeleteMessage(ctx, m.chatID, m.messageID); err != nil {
			m.logger.Warn("failed to delete status", "error", err)
		}
		m.messageID = 0
	}
	if _, err := m.messenger.SendText(ctx, m.chatID, summary); err != nil {
		m.logger.Warn("failed to send summary", "error", err)
	}
}

func (m *statusMessage) fail(ctx context.Context, text string) {
	ctx = context.WithoutCancel(ctx)
	m.set(ctx, text)
}
