// Package commands provides command parsing and routing for Hikyaku
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Command represents a parsed command
type Command struct {
	Name    string
	Args    []string
	Flags   map[string]string
	RawText string
}

// ErrNotACommand is returned by Parse when the message is not a command for
// this bot: no leading slash, or a group-chat command addressed to a
// different bot. Callers should use errors.Is to distinguish this expected
// case from real errors.
var ErrNotACommand = errors.New("not a command")

// Handler is a function that handles a command. The returned string is the
// Markdown reply to send.
type Handler func(ctx context.Context, cmd *Command, msg *tgbotapi.Message) (string, error)

// Router routes commands to handlers
type Router struct {
	handlers map[string]Handler
	botName  string
}

// NewRouter creates a new command router. botName is the bot's Telegram
// username, used to claim commands of the form /clear@BotName in group chats.
func NewRouter(botName string) *Router {
	return &Router{
		handlers: make(map[string]Handler),
		botName:  botName,
	}
}

// Register registers a command handler
func (r *Router) Register(command string, handler Handler) {
	r.handlers[command] = handler
}

// Parse parses a message into a command
func (r *Router) Parse(text string) (*Command, error) {
	text = strings.TrimSpace(text)

	if !strings.HasPrefix(text, "/") {
		return nil, ErrNotACommand
	}

	rest := strings.TrimPrefix(text, "/")
	// "/ something" is chat text, not a command
	if rest == "" || rest[0] == ' ' || rest[0] == '\t' {
		return nil, ErrNotACommand
	}

	parts := strings.Fields(rest)

	name := strings.ToLower(parts[0])
	// Group chats address commands as /clear@BotName; claim only our own
	if at := strings.Index(name, "@"); at >= 0 {
		mention := name[at+1:]
		name = name[:at]
		if r.botName != "" && !strings.EqualFold(mention, r.botName) {
			return nil, ErrNotACommand
		}
	}
	if name == "" {
		return nil, ErrNotACommand
	}

	cmd := &Command{
		Name:    name,
		Args:    []string{},
		Flags:   make(map[string]string),
		RawText: text,
	}

	// Parse remaining arguments and flags
	rest2 := parts[1:]
	for i := 0; i < len(rest2); i++ {
		part := rest2[i]

		if strings.HasPrefix(part, "--") {
			flagName := strings.TrimPrefix(part, "--")

			// Check if flag has a value
			if i+1 < len(rest2) && !strings.HasPrefix(rest2[i+1], "--") {
				cmd.Flags[flagName] = rest2[i+1]
				i++ // Skip next part
			} else {
				cmd.Flags[flagName] = "true"
			}
		} else {
			cmd.Args = append(cmd.Args, part)
		}
	}

	return cmd, nil
}

// Dispatch routes an already parsed command to its handler. Callers that
// need to authorize between parsing and execution use Parse then Dispatch.
func (r *Router) Dispatch(ctx context.Context, cmd *Command, msg *tgbotapi.Message) (string, error) {
	handler, ok := r.handlers[cmd.Name]
	if !ok {
		return "", fmt.Errorf("unknown command: /%s", cmd.Name)
	}
	return handler(ctx, cmd, msg)
}

// Route parses and routes a command to its handler
func (r *Router) Route(ctx context.Context, text string, msg *tgbotapi.Message) (string, error) {
	cmd, err := r.Parse(text)
	if err != nil {
		return "", err
	}
	return r.Dispatch(ctx, cmd, msg)
}

// GetFlag returns a flag value with a default
func (c *Command) GetFlag(name, defaultValue string) string {
	if val, ok := c.Flags[name]; ok {
		return val
	}
	return defaultValue
}

// HasFlag checks if a flag is present
func (c *Command) HasFlag(name string) bool {
	_, ok := c.Flags[name]
	return ok
}

// GetArg returns an argument by index
func (c *Command) GetArg(index int) (string, bool) {
	if index < 0 || index >= len(c.Args) {
		return "", false
	}
	return c.Args[index], true
}
