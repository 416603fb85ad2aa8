package tg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tush00nka/unzipbot/internal/model"
)

// Bot API limits for uploads from bots.
const (
	MaxUploadSize      = 50 * 1024 * 1024
	MaxPhotoUploadSize = 10 * 1024 * 1024
)

var (
	ErrFileTooLarge = errors.New("too large")
	ErrEmptyFile    = errors.New("file is empty")
)

// OutboundFile - файл, который бот отправляет обратно в чат.
type OutboundFile struct {
	Name    string
	Caption string
	Kind    model.MediaKind
	Size    int64
	Reader  io.Reader
}

// Messenger is the part of the Bot API the relay pipeline depends on.
type Messenger interface {
	Download(ctx context.Context, fileID string, dst io.Writer) (int64, error)
	SendText(ctx context.Context, chatID int64, text string) (int, error)
	EditText(ctx context.Context, chatID int64, messageID int, text string) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	SendFile(ctx context.Context, chatID int64, file OutboundFile) error
}

// AdapterOptions point the adapter at a self-hosted Bot API server when the
// endpoints are set. Both templates take the token and the method or path.
// RequestTimeout bounds every Bot API call; zero means no limit.
type AdapterOptions struct {
	Debug          bool
	APIEndpoint    string
	FileEndpoint   string
	RequestTimeout time.Duration
}

const (
	maxLongPoll = 60 * time.Second
	pollMargin  = 5 * time.Second
)

type TelegramAdapter struct {
	bot            *tgbotapi.BotAPI
	requestTimeout time.Duration
	fileClient     *http.Client
	fileEndpoint   string
	logger         *slog.Logger
}

func NewTelegramAdapter(botToken string, opts AdapterOptions, logger *slog.Logger) (*TelegramAdapter, error) {
	apiEndpoint := opts.APIEndpoint
	if apiEndpoint == "" {
		apiEndpoint = tgbotapi.APIEndpoint
	}
	fileEndpoint := opts.FileEndpoint
	if fileEndpoint == "" {
		fileEndpoint = tgbotapi.FileEndpoint
	}

	bot, err := tgbotapi.NewBotAPIWithClient(botToken, apiEndpoint, &http.Client{Timeout: opts.RequestTimeout})
	if err != nil {
		return nil, err
	}
	bot.Debug = opts.Debug

	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("module", "telegram")
	logger.Info("authorized on telegram", "account", bot.Self.UserName)

	return &TelegramAdapter{
		bot:            bot,
		requestTimeout: opts.RequestTimeout,
		fileClient:     &http.Client{},
		fileEndpoint:   fileEndpoint,
		logger:         logger,
	}, nil
}

// Download скачивает файл по его file_id и пишет содержимое в dst. Сама
// загрузка ограничена только контекстом, а не таймаутом запросов к API.
func (t *TelegramAdapter) Download(ctx context.Context, fileID string, dst io.Writer) (int64, error) {
	file, err := withContext(ctx, func() (tgbotapi.File, error) {
		return t.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	})
	if err != nil {
		return 0, fmt.Errorf("resolve file: %w", err)
	}
	url := fmt.Sprintf(t.fileEndpoint, t.bot.Token, file.FilePath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := t.fileClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fetch file: unexpected status %s", resp.Status)
	}

	return io.Copy(dst, resp.Body)
}

// SendText отправляет текстовое сообщение и возвращает его ID.
func (t *TelegramAdapter) SendText(ctx context.Context, chatID int64, text string) (int, error) {
	sent, err := t.send(ctx, tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (t *TelegramAdapter) EditText(ctx context.Context, chatID int64, messageID int, text string) error {
	_, err := t.request(ctx, tgbotapi.NewEditMessageText(chatID, messageID, text))
	return err
}

func (t *TelegramAdapter) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	_, err := t.request(ctx, tgbotapi.NewDeleteMessage(chatID, messageID))
	return err
}

// SendFile uploads one file, as a photo or video when the kind and size
// allow it and as a document otherwise.
func (t *TelegramAdapter) SendFile(ctx context.Context, chatID int64, file OutboundFile) error {
	if file.Size > MaxUploadSize {
		return ErrFileTooLarge
	}
	if file.Size == 0 {
		return ErrEmptyFile
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data := tgbotapi.FileReader{Name: file.Name, Reader: file.Reader}

	var msg tgbotapi.Chattable
	switch {
	case file.Kind == model.MediaPhoto && file.Size <= MaxPhotoUploadSize:
		photo := tgbotapi.NewPhoto(chatID, data)
		photo.Caption = file.Caption
		msg = photo
	case file.Kind == model.MediaVideo:
		video := tgbotapi.NewVideo(chatID, data)
		video.Caption = file.Caption
		msg = video
	default:
		doc := tgbotapi.NewDocument(chatID, data)
		doc.Caption = file.Caption
		msg = doc
	}

	_, err := t.send(ctx, msg)
	return err
}

func (t *TelegramAdapter) send(ctx context.Context, c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return withContext(ctx, func() (tgbotapi.Message, error) { return t.bot.Send(c) })
}

func (t *TelegramAdapter) request(ctx context.Context, c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return withContext(ctx, func() (*tgbotapi.APIResponse, error) { return t.bot.Request(c) })
}

// withContext returns as soon as ctx is done. The library call itself cannot
// be cancelled and keeps running in the background until the client timeout
// ends it.
func withContext[T any](ctx context.Context, call func() (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}

	done := make(chan result, 1)
	go func() {
		value, err := call()
		done <- result{value: value, err: err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-done:
		return r.value, r.err
	}
}

// Listen polls for updates and hands each one to handle until ctx is done.
func (t *TelegramAdapter) Listen(ctx context.Context, handle func(context.Context, tgbotapi.Update)) {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = longPollSeconds(t.requestTimeout)

	updates := t.bot.GetUpdatesChan(updateConfig)
	t.logger.Info("listening for updates")

	for {
		select {
		case <-ctx.Done():
			t.bot.StopReceivingUpdates()
			t.logger.Info("stopped listening for updates")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			handle(ctx, update)
		}
	}
}

// longPollSeconds keeps the getUpdates wait inside the client timeout.
func longPollSeconds(requestTimeout time.Duration) int {
	wait := maxLongPoll
	if requestTimeout > 0 {
		wait = min(wait, requestTimeout-pollMargin)
	}
	return max(int(wait/time.Second), 1)
}
