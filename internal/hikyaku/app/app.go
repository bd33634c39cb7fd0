// Package app assembles Hikyaku and runs the bot lifecycle.
//
// The flow of a message: authorization first, then command routing, then the
// relay. Admins talk to the assistant directly; restricted users only file
// receipts; everyone else is told the bot is private.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/bdobrica/Hikyaku/common/trace"
	"github.com/bdobrica/Hikyaku/internal/hikyaku/claude"
	"github.com/bdobrica/Hikyaku/internal/hikyaku/commands"
	"github.com/bdobrica/Hikyaku/internal/hikyaku/config"
	"github.com/bdobrica/Hikyaku/internal/hikyaku/store"
	"github.com/bdobrica/Hikyaku/internal/hikyaku/telegram"
)

const unauthorizedReply = "⛔ Unauthorized. This bot is private."

// emptyReply is relayed when the assistant answers with nothing.
const emptyReply = "*(Claude returned an empty response)*"

// staleSessionAge is how long a history session may sit idle before the
// daily sweep marks it inactive.
const staleSessionAge = 30 * 24 * time.Hour

// App wires the Telegram client, the assistant invoker, the history store and
// the command router together.
type App struct {
	config   *config.Config
	store    *store.Store
	client   *telegram.Client
	sessions *claude.Sessions
	invoker  *claude.Invoker
	router   *commands.Router
	health   *HealthServer

	cancel   context.CancelFunc
	stopOnce sync.Once
}

// New assembles the bot from configuration. A component that fails to come up
// closes the ones already opened.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	st, err := store.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}
	slog.Info("history store ready", "path", cfg.DatabasePath)

	client, err := telegram.New(ctx, &telegram.Config{
		Token:       cfg.Token,
		PollTimeout: cfg.PollTimeout,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to connect to Telegram: %w", err)
	}

	sessions := claude.NewSessions()
	invoker := claude.NewInvoker(cfg.ClaudeBin, cfg.InvokeTimeout)

	router := commands.NewRouter(client.BotName())
	handlers := commands.NewHandlers(cfg, st, sessions)
	router.Register("start", handlers.HandleStart)
	router.Register("help", handlers.HandleHelp)
	router.Register("clear", handlers.HandleClear)
	router.Register("status", handlers.HandleStatus)
	router.Register("history", handlers.HandleHistory)
	router.Register("stats", handlers.HandleStats)
	router.Register("version", handlers.HandleVersion)
	router.Register("ping", handlers.HandlePing)

	a := &App{
		config:   cfg,
		store:    st,
		client:   client,
		sessions: sessions,
		invoker:  invoker,
		router:   router,
	}

	if cfg.HTTPAddr != "" {
		a.health = NewHealthServer(cfg.HTTPAddr, st, sessions)
	}
	return a, nil
}

// Run starts the bot and blocks until SIGINT/SIGTERM or ctx cancellation.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	defer cancel()

	if a.health != nil {
		if err := a.health.Start(ctx); err != nil {
			a.Stop()
			return err
		}
	}

	if err := a.client.Start(ctx, a.handleMessage); err != nil {
		a.Stop()
		return fmt.Errorf("failed to start Telegram updates: %w", err)
	}

	go a.sweepStaleSessions(ctx)

	slog.Info("hikyaku started",
		"bot", a.client.BotName(),
		"admins", len(a.config.AdminIDs),
		"restricted_users", len(a.config.RestrictedUsers))
	a.notifyAdmins("✅ Hikyaku is up. Send a message to relay it to Claude, or /help for commands.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("received signal, shutting down", "signal", sig.String())
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	a.Stop()
	return nil
}

// Stop shuts the components down in reverse dependency order. Safe to call
// more than once.
func (a *App) Stop() {
	a.stopOnce.Do(func() {
		if a.cancel != nil {
			a.cancel()
		}
		a.client.Stop()
		if a.health != nil {
			a.health.Stop()
		}
		if err := a.store.Close(); err != nil {
			slog.Warn("failed to close history store", "err", err)
		}
		slog.Info("hikyaku stopped")
	})
}

// notifyAdmins sends a plain message to every admin's private chat. Admins
// who never opened a chat with the bot cannot be reached; that only costs
// the notice.
func (a *App) notifyAdmins(text string) {
	for _, id := range a.config.AdminIDs {
		if err := a.client.SendMessage(id, text); err != nil {
			slog.Warn("failed to notify admin", "admin_id", id, "err", err)
		}
	}
}

// sweepStaleSessions deactivates idle history sessions, once at startup and
// then daily.
func (a *App) sweepStaleSessions(ctx context.Context) {
	sweep := func() {
		n, err := a.store.DeactivateStaleSessions(ctx, staleSessionAge)
		if err != nil {
			slog.Warn("failed to deactivate stale sessions", "err", err)
			return
		}
		if n > 0 {
			slog.Info("deactivated stale sessions", "count", n)
		}
	}

	sweep()

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}

// handleMessage processes one incoming Telegram message. The client calls it
// on its own goroutine per update.
func (a *App) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}

	ctx, traceID := trace.Ensure(ctx)
	userID := msg.From.ID
	isAdmin := a.config.IsAdmin(userID)
	slug, isRestricted := a.config.RestrictedSlug(userID)

	slog.Info("message received",
		"user_id", userID,
		"username", msg.From.UserName,
		"chat_id", msg.Chat.ID,
		"admin", isAdmin,
		"trace_id", traceID)

	if fileID, ok := telegram.LargestPhoto(msg); ok {
		if !isAdmin {
			slog.Warn("unauthorized photo", "user_id", userID, "trace_id", traceID)
			a.reply(msg, unauthorizedReply)
			return
		}
		a.handlePhoto(ctx, msg, fileID)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if cmd, err := a.router.Parse(text); err == nil {
		a.handleCommand(ctx, cmd, msg, isAdmin)
		return
	}

	switch {
	case isAdmin:
		a.handleRelay(ctx, msg, text)
	case isRestricted:
		a.handleReceipt(ctx, msg, text, slug)
	default:
		slog.Warn("unauthorized message",
			"user_id", userID,
			"preview", logPreview(text),
			"trace_id", traceID)
		a.reply(msg, unauthorizedReply)
	}
}

// logPreview returns at most 50 runes of s on a single line. Message content
// never goes to the log whole.
func logPreview(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) > 50 {
		return string(runes[:50]) + "..."
	}
	return s
}

// handleCommand authorizes and dispatches a parsed command. Strangers only
// learn the bot exists through /start; their other commands stay silent.
func (a *App) handleCommand(ctx context.Context, cmd *commands.Command, msg *tgbotapi.Message, isAdmin bool) {
	if !isAdmin {
		if cmd.Name == "start" {
			slog.Warn("unauthorized access attempt",
				"user_id", msg.From.ID,
				"trace_id", trace.FromContext(ctx))
			a.reply(msg, unauthorizedReply)
		}
		return
	}

	response, err := a.router.Dispatch(ctx, cmd, msg)
	if err != nil {
		slog.Warn("command failed",
			"command", cmd.Name,
			"err", err,
			"trace_id", trace.FromContext(ctx))
		a.reply(msg, fmt.Sprintf("❌ Error: %s", err))
		return
	}
	a.replyMarkdown(msg, response)
}

// handleRelay forwards an admin's message to the assistant and sends back the
// reply. The conversation continues unless the chat's session was cleared.
func (a *App) handleRelay(ctx context.Context, msg *tgbotapi.Message, text string) {
	sessionKey := a.config.SessionKey
	a.logUserMessage(ctx, msg, sessionKey, text)

	a.client.SendTyping(msg.Chat.ID)

	sess := a.sessions.Get(claude.KeyForChat(msg.Chat.ID))
	result, err := a.invoker.Send(ctx, sess, claude.Request{Prompt: text, Continue: true})
	if err != nil {
		a.replyInvokeError(ctx, msg, sessionKey, err)
		return
	}

	reply := renderResult(result)
	if err := a.client.SendChunked(msg.Chat.ID, reply); err != nil {
		slog.Error("failed to send assistant reply",
			"chat_id", msg.Chat.ID,
			"err", err,
			"trace_id", trace.FromContext(ctx))
	}
	a.logAssistantMessage(ctx, msg, sessionKey, reply, result)
}

// receiptPrompt is the task template handed to the assistant for purchases
// texted in by restricted users.
const receiptPrompt = `You are a receipt processor for a shared household billing system.

User: %s
Message: %s

Task:
1. Extract the amount and description from the message
2. Create a receipt file in /bills/purchases/%s/ with filename: YYYY-MM-DD_description_AMOUNT.txt
   - Use today's date
   - Replace spaces in description with underscores
   - Amount should be just the number (e.g., 25.50)
   - Example: 2026-02-15_groceries_25.50.txt
3. The file content can be empty (the filename IS the data)
4. Reply to the user confirming what was saved

If the message is unclear, ask for clarification.`

// handleReceipt files a restricted user's purchase message. Each receipt is a
// standalone invocation; the assistant gets no conversation context.
func (a *App) handleReceipt(ctx context.Context, msg *tgbotapi.Message, text, slug string) {
	sessionKey := "receipt_" + slug
	a.logUserMessage(ctx, msg, sessionKey, text)

	a.client.SendTyping(msg.Chat.ID)

	prompt := fmt.Sprintf(receiptPrompt, slug, text, slug)
	sess := a.sessions.Get(sessionKey)
	result, err := a.invoker.Send(ctx, sess, claude.Request{Prompt: prompt, Continue: false})
	if err != nil {
		slog.Error("receipt processing failed",
			"slug", slug,
			"err", err,
			"trace_id", trace.FromContext(ctx))
		reply := fmt.Sprintf("❌ Error processing receipt: %v", err)
		a.reply(msg, reply)
		a.logAssistantError(ctx, msg, sessionKey, reply)
		return
	}

	reply := renderResult(result)
	if err := a.client.SendChunked(msg.Chat.ID, reply); err != nil {
		slog.Error("failed to send receipt reply",
			"chat_id", msg.Chat.ID,
			"err", err,
			"trace_id", trace.FromContext(ctx))
	}
	a.logAssistantMessage(ctx, msg, sessionKey, reply, result)
}

// handlePhoto downloads an admin's photo and points the assistant at it. The
// caption is the question; without one the assistant describes the image.
func (a *App) handlePhoto(ctx context.Context, msg *tgbotapi.Message, fileID string) {
	caption := strings.TrimSpace(msg.Caption)
	if caption == "" {
		caption = "Describe this image"
	}

	sessionKey := a.config.SessionKey
	a.logUserMessage(ctx, msg, sessionKey, "[photo] "+caption)

	a.client.SendTyping(msg.Chat.ID)

	path, err := a.client.DownloadFile(ctx, fileID, os.TempDir())
	if err != nil {
		slog.Error("photo download failed",
			"chat_id", msg.Chat.ID,
			"err", err,
			"trace_id", trace.FromContext(ctx))
		a.reply(msg, fmt.Sprintf("❌ Error processing photo: %v", err))
		return
	}
	defer func() {
		if err := os.Remove(path); err != nil {
			slog.Warn("failed to remove downloaded photo", "path", path, "err", err)
		}
	}()

	sess := a.sessions.Get(claude.KeyForChat(msg.Chat.ID))
	result, err := a.invoker.Send(ctx, sess, claude.Request{
		Prompt:         caption,
		Continue:       true,
		AttachmentPath: path,
	})
	if err != nil {
		a.replyInvokeError(ctx, msg, sessionKey, err)
		return
	}

	reply := renderResult(result)
	if err := a.client.SendChunked(msg.Chat.ID, reply); err != nil {
		slog.Error("failed to send photo reply",
			"chat_id", msg.Chat.ID,
			"err", err,
			"trace_id", trace.FromContext(ctx))
	}
	a.logAssistantMessage(ctx, msg, sessionKey, reply, result)
}

// renderResult turns an invocation result into the text relayed to the user.
func renderResult(result *claude.InvocationResult) string {
	if result.Kind == claude.ResultEmpty {
		return emptyReply
	}
	return result.Text
}

// replyInvokeError reports a failed invocation to the user and the history.
// Process failures carry the CLI's own words; everything else is unexpected.
func (a *App) replyInvokeError(ctx context.Context, msg *tgbotapi.Message, sessionKey string, err error) {
	var reply string
	var perr *claude.ProcessError
	switch {
	case errors.As(err, &perr):
		reply = fmt.Sprintf("❌ Error from Claude: %v", perr)
	case errors.Is(err, context.DeadlineExceeded):
		reply = fmt.Sprintf("⏱️ Claude did not answer within %s.", a.config.InvokeTimeout)
	default:
		reply = fmt.Sprintf("❌ Unexpected error: %v", err)
	}

	slog.Error("assistant invocation failed",
		"chat_id", msg.Chat.ID,
		"err", err,
		"trace_id", trace.FromContext(ctx))
	a.reply(msg, reply)
	a.logAssistantError(ctx, msg, sessionKey, reply)
}

// reply sends plain text; failures are logged, never propagated, so a dead
// chat cannot take the poll loop down with it.
func (a *App) reply(msg *tgbotapi.Message, text string) {
	if err := a.client.SendMessage(msg.Chat.ID, text); err != nil {
		slog.Error("failed to send reply", "chat_id", msg.Chat.ID, "err", err)
	}
}

func (a *App) replyMarkdown(msg *tgbotapi.Message, text string) {
	if err := a.client.SendMarkdown(msg.Chat.ID, text); err != nil {
		slog.Error("failed to send reply", "chat_id", msg.Chat.ID, "err", err)
	}
}

// logUserMessage records an inbound message. History is observability, not
// control flow; failures are logged and the relay continues.
func (a *App) logUserMessage(ctx context.Context, msg *tgbotapi.Message, sessionKey, content string) {
	record := &store.Message{
		SessionKey: sessionKey,
		UserID:     msg.From.ID,
		Username:   nullString(msg.From.UserName),
		Direction:  store.DirectionUser,
		Content:    content,
		TraceID:    nullString(trace.FromContext(ctx)),
	}
	if err := a.store.LogMessage(ctx, record); err != nil {
		slog.Warn("failed to log user message", "err", err)
	}
}

func (a *App) logAssistantMessage(ctx context.Context, msg *tgbotapi.Message, sessionKey, content string, result *claude.InvocationResult) {
	record := &store.Message{
		SessionKey: sessionKey,
		UserID:     msg.From.ID,
		Username:   nullString(msg.From.UserName),
		Direction:  store.DirectionAssistant,
		Content:    content,
		Model:      nullString(result.Model),
		TraceID:    nullString(trace.FromContext(ctx)),
	}
	if err := a.store.LogMessage(ctx, record); err != nil {
		slog.Warn("failed to log assistant message", "err", err)
	}
}

func (a *App) logAssistantError(ctx context.Context, msg *tgbotapi.Message, sessionKey, content string) {
	record := &store.Message{
		SessionKey:    sessionKey,
		UserID:        msg.From.ID,
		Username:      nullString(msg.From.UserName),
		Direction:     store.DirectionAssistant,
		Content:       content,
		ErrorOccurred: true,
		TraceID:       nullString(trace.FromContext(ctx)),
	}
	if err := a.store.LogMessage(ctx, record); err != nil {
		slog.Warn("failed to log assistant error", "err", err)
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
