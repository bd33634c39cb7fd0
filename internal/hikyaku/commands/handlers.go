package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/bdobrica/Hikyaku/common/trace"
	"github.com/bdobrica/Hikyaku/common/version"
	"github.com/bdobrica/Hikyaku/internal/hikyaku/claude"
	"github.com/bdobrica/Hikyaku/internal/hikyaku/config"
	"github.com/bdobrica/Hikyaku/internal/hikyaku/store"
)

// Handlers holds all command handlers and dependencies
type Handlers struct {
	config   *config.Config
	store    *store.Store
	sessions *claude.Sessions
}

// NewHandlers creates a new Handlers instance
func NewHandlers(cfg *config.Config, st *store.Store, sessions *claude.Sessions) *Handlers {
	return &Handlers{config: cfg, store: st, sessions: sessions}
}

// HandleStart greets the user and lists the commands
func (h *Handlers) HandleStart(ctx context.Context, cmd *Command, msg *tgbotapi.Message) (string, error) {
	return `🤖 **Hikyaku**

Send me any message and I'll relay it to Claude Code on the homeserver. The conversation continues across messages until you clear it.

**Commands:**
• /start - Show this message
• /help - Show detailed help
• /clear - Start a fresh conversation
• /status - Show bot status
• /history [n] - Show recent messages
• /stats - Show usage statistics`, nil
}

// HandleHelp shows detailed help
func (h *Handlers) HandleHelp(ctx context.Context, cmd *Command, msg *tgbotapi.Message) (string, error) {
	return `**Hikyaku Help**

Every plain message you send is forwarded to Claude Code and its reply comes back here. Claude keeps the conversation context between messages; /clear drops it.

**Commands:**
• /start - Welcome message
• /help - This help message
• /clear - Clear the Claude session (next message starts fresh)
• /status - Bot configuration and session state
• /history [n] - Last n relayed messages (default 10, max 50)
• /stats - Usage statistics
• /version - Build information
• /ping - Health check

**Photos:** send a photo and Claude will look at it. The caption becomes the question; without one, Claude describes the image.

**Receipts:** household members on the restricted list can text a purchase like "groceries 25.50" and it gets filed under their name in the bills repo.`, nil
}

// HandleVersion shows version information
func (h *Handlers) HandleVersion(ctx context.Context, cmd *Command, msg *tgbotapi.Message) (string, error) {
	return fmt.Sprintf("**Hikyaku**\nVersion: %s\nCommit: %s\nBuild Time: %s",
		version.Version, version.GitCommit, version.BuildTime), nil
}

// HandlePing responds with a health check that touches the database
func (h *Handlers) HandlePing(ctx context.Context, cmd *Command, msg *tgbotapi.Message) (string, error) {
	traceID := trace.GenerateID()

	count, err := h.store.MessageCount(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to reach history database: %w", err)
	}

	return fmt.Sprintf("🏓 Pong! %d messages on record. (trace: %s)", count, traceID), nil
}

// HandleClear drops the conversation's assistant continuity
func (h *Handlers) HandleClear(ctx context.Context, cmd *Command, msg *tgbotapi.Message) (string, error) {
	sess := h.sessions.Get(claude.KeyForChat(msg.Chat.ID))
	if sess.Reset() {
		return "✅ Claude session cleared! Next message will start a fresh conversation.", nil
	}
	return "ℹ️ No active session to clear. Next message will start fresh anyway.", nil
}

// HandleStatus shows the bot's configuration and this conversation's state
func (h *Handlers) HandleStatus(ctx context.Context, cmd *Command, msg *tgbotapi.Message) (string, error) {
	sess := h.sessions.Get(claude.KeyForChat(msg.Chat.ID))

	active := "No"
	if sess.Active() {
		active = "Yes"
	}

	timeout := "None (waits indefinitely)"
	if h.config.InvokeTimeout > 0 {
		timeout = h.config.InvokeTimeout.String()
	}

	var sb strings.Builder
	sb.WriteString("**Bot Status**\n\n")
	sb.WriteString(fmt.Sprintf("Conversation: `%s`\n", sess.Key()))
	sb.WriteString(fmt.Sprintf("Session Active: %s\n", active))
	sb.WriteString(fmt.Sprintf("Tracked Conversations: %d\n", h.sessions.Len()))
	sb.WriteString(fmt.Sprintf("History Session: `%s`\n", h.config.SessionKey))
	sb.WriteString(fmt.Sprintf("Claude Binary: `%s`\n", h.config.ClaudeBin))
	sb.WriteString(fmt.Sprintf("Timeout: %s\n", timeout))
	sb.WriteString(fmt.Sprintf("Database: `%s`\n", h.config.DatabasePath))
	sb.WriteString(fmt.Sprintf("Admins: %d", len(h.config.AdminIDs)))

	return sb.String(), nil
}

// historyDefault and historyMax bound the /history count argument.
const (
	historyDefault = 10
	historyMax     = 50
)

// HandleHistory shows recent relayed messages
func (h *Handlers) HandleHistory(ctx context.Context, cmd *Command, msg *tgbotapi.Message) (string, error) {
	limit := historyDefault
	if arg, ok := cmd.GetArg(0); ok {
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 {
			return "", fmt.Errorf("usage: /history [count], count must be a positive number")
		}
		if n > historyMax {
			n = historyMax
		}
		limit = n
	}

	messages, err := h.store.RecentMessages(ctx, limit)
	if err != nil {
		return "", fmt.Errorf("failed to retrieve history: %w", err)
	}

	if len(messages) == 0 {
		return "No message history yet.", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("**Recent Messages (last %d)**\n\n", limit))
	for _, m := range messages {
		icon := "👤"
		if m.Direction == store.DirectionAssistant {
			icon = "🤖"
		}
		sb.WriteString(fmt.Sprintf("%s `%s` %s\n\n",
			icon, m.CreatedAt.Format("2006-01-02 15:04"), previewLine(m.Content)))
	}

	return strings.TrimRight(sb.String(), "\n"), nil
}

// previewLine flattens a message to a single line of at most 80 runes.
func previewLine(content string) string {
	content = strings.ReplaceAll(content, "\n", " ")
	runes := []rune(content)
	if len(runes) > 80 {
		return string(runes[:80]) + "..."
	}
	return content
}

// HandleStats shows usage statistics
func (h *Handlers) HandleStats(ctx context.Context, cmd *Command, msg *tgbotapi.Message) (string, error) {
	stats, err := h.store.GetStats(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to retrieve stats: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("**Usage Statistics**\n\n")
	sb.WriteString(fmt.Sprintf("📊 Total Messages: %d\n", stats.TotalMessages))
	sb.WriteString(fmt.Sprintf("💬 Total Sessions: %d\n", stats.TotalSessions))
	sb.WriteString(fmt.Sprintf("✅ Active Sessions: %d\n", stats.ActiveSessions))
	sb.WriteString(fmt.Sprintf("🎯 Est. Tokens: %s\n", humanize.Comma(stats.TokenEstimate)))
	if stats.LatestActivity.Valid {
		sb.WriteString(fmt.Sprintf("🕐 Latest Activity: `%s`\n",
			stats.LatestActivity.Time.Format("2006-01-02 15:04")))
	}

	return strings.TrimRight(sb.String(), "\n"), nil
}
