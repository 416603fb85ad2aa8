package handler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/semaphore"

	"tush00nka/unzipbot/internal/model"
)

const (
	textNotAllowed     = "Sorry, you are not allowed to use this bot."
	textUnknownCommand = "Unknown command. Send /help to see what I can do."
	textSendArchive    = "Please send me a ZIP or 7z file as a document."
)

type RelayProcessor interface {
	Process(ctx context.Context, req model.ArchiveRequest) (*model.RelayOutcome, error)
}

type Replier interface {
	SendText(ctx context.Context, chatID int64, text string) (int, error)
}

type BotOptions struct {
	MaxFileSize      int64
	AllowlistEnabled bool
	AllowedUsers     []int64
	MaxConcurrent    int
}

// BotHandler превращает входящие апдейты в запросы на распаковку и запускает
// их параллельно, не больше MaxConcurrent одновременно.
type BotHandler struct {
	relay   RelayProcessor
	replier Replier
	opts    BotOptions
	allowed map[int64]struct{}

	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	logger *slog.Logger
}

func NewBotHandler(relay RelayProcessor, replier Replier, opts BotOptions, logger *slog.Logger) *BotHandler {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	allowed := make(map[int64]struct{}, len(opts.AllowedUsers))
	for _, id := range opts.AllowedUsers {
		allowed[id] = struct{}{}
	}

	return &BotHandler{
		relay:   relay,
		replier: replier,
		opts:    opts,
		allowed: allowed,
		sem:     semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		logger:  logger.With("module", "bot"),
	}
}

// HandleUpdate blocks only while every relay slot is busy; the relay itself
// runs in its own goroutine and survives cancellation of ctx.
func (h *BotHandler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return
	}

	var senderID int64
	if msg.From != nil {
		senderID = msg.From.ID
	}

	if !h.isAllowed(senderID) {
		h.logger.Info("sender rejected by allow-list", "chat_id", msg.Chat.ID, "sender_id", senderID)
		h.reply(ctx, msg.Chat.ID, textNotAllowed)
		return
	}

	if msg.IsCommand() {
		switch msg.Command() {
		case "start", "help":
			h.reply(ctx, msg.Chat.ID, h.usageText())
		default:
			h.reply(ctx, msg.Chat.ID, textUnknownCommand)
		}
		return
	}

	if msg.Document == nil {
		if msg.Text != "" {
			h.reply(ctx, msg.Chat.ID, textSendArchive)
		}
		return
	}

	doc := msg.Document
	req := model.NewArchiveRequest(msg.Chat.ID, msg.MessageID, senderID,
		doc.FileID, doc.FileName, doc.MimeType, int64(doc.FileSize))

	if err := h.sem.Acquire(ctx, 1); err != nil {
		h.logger.Warn("dropping archive on shutdown", "chat_id", req.ChatID, "request_id", req.RequestID)
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer h.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("panic in relay goroutine", "panic", r, "stack", string(debug.Stack()))
			}
		}()

		if _, err := h.relay.Process(context.WithoutCancel(ctx), req); err != nil {
			h.logger.Debug("relay finished with error", "chat_id", req.ChatID, "request_id", req.RequestID, "error", err)
		}
	}()
}

// Wait blocks until every dispatched relay has returned.
func (h *BotHandler) Wait() {
	h.wg.Wait()
}

func (h *BotHandler) isAllowed(senderID int64) bool {
	if !h.opts.AllowlistEnabled {
		return true
	}
	_, ok := h.allowed[senderID]
	return ok
}

func (h *BotHandler) usageText() string {
	limit := ""
	if h.opts.MaxFileSize > 0 {
		limit = fmt.Sprintf(" (under %s)", humanize.IBytes(uint64(h.opts.MaxFileSize)))
	}
	return "Hello! I am the Unzipper Bot.\n\n" +
		"Send me a ZIP or 7z file" + limit + ", and I will extract its contents for you."
}

func (h *BotHandler) reply(ctx context.Context, chatID int64, text string) {
	if _, err := h.replier.SendText(ctx, chatID, text); err != nil {
		h.logger.Warn("failed to send reply", "chat_id", chatID, "error", err)
	}
}
