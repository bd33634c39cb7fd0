// Package claude bridges in-process text requests to the Claude Code CLI.
//
// Each Send runs one subprocess: the prompt goes in as an argument, the reply
// comes back as JSON on stdout. The CLI keeps conversation state on disk
// itself; the only continuity control Hikyaku has is whether to pass
// --continue, which is what Session tracks.
package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bdobrica/Hikyaku/common/trace"
)

// Request describes one message for the assistant.
type Request struct {
	// Prompt is the user's message. Must not be empty.
	Prompt string

	// Continue asks the assistant to resume its previous conversation
	// context. A pending session reset overrides this once.
	Continue bool

	// AttachmentPath optionally points the assistant at a local file,
	// typically a downloaded photo.
	AttachmentPath string
}

// ProcessError reports an assistant invocation that failed: the process
// exited nonzero, or could not be launched at all.
type ProcessError struct {
	// ExitCode is the process exit status, or -1 when launch failed.
	ExitCode int

	// Stderr is the captured diagnostic text, trimmed.
	Stderr string

	// Err is the underlying launch error, when the process never ran.
	Err error
}

func (e *ProcessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("assistant process failed to launch: %v", e.Err)
	}
	if e.Stderr == "" {
		return fmt.Sprintf("assistant process exited with code %d", e.ExitCode)
	}
	return fmt.Sprintf("assistant process exited with code %d: %s", e.ExitCode, e.Stderr)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// Invoker runs the assistant CLI, one subprocess per Send. There is no retry
// and no queueing; concurrent Sends spawn independent processes.
type Invoker struct {
	binPath string
	timeout time.Duration
}

// NewInvoker creates an Invoker for the CLI at binPath. timeout bounds a
// single invocation; zero means wait indefinitely, which matches the CLI's
// long reasoning latency.
func NewInvoker(binPath string, timeout time.Duration) *Invoker {
	return &Invoker{binPath: binPath, timeout: timeout}
}

// Send relays one request through the assistant CLI and returns its reply.
//
// The session's pending reset, when set, suppresses the continue directive
// for this call only; it is consumed here no matter what req.Continue says.
// Process failures surface as *ProcessError; a cancelled or expired context
// kills the subprocess and surfaces the context error.
func (inv *Invoker) Send(ctx context.Context, session *Session, req Request) (*InvocationResult, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("claude: empty prompt")
	}

	prompt := req.Prompt
	// The CLI has no attachment parameter. Pointing the assistant at the
	// file through the prompt and letting its own Read tool load it is a
	// prompt-level workaround, not a protocol feature.
	if req.AttachmentPath != "" {
		prompt = fmt.Sprintf("Use your Read tool to read the file at this path: %s\n\nThen respond to: %s",
			req.AttachmentPath, prompt)
	}

	// Consume the reset mark before looking at req.Continue so the mark never
	// outlives the send that follows it.
	cleared := session.consumeReset()
	resume := req.Continue && !cleared

	args := []string{"-p", prompt, "--output-format", "json"}
	if resume {
		args = append(args, "--continue")
	}

	if inv.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.timeout)
		defer cancel()
	}

	invocationID := uuid.NewString()
	slog.Debug("invoking assistant",
		"invocation_id", invocationID,
		"session", session.Key(),
		"continue", resume,
		"attachment", req.AttachmentPath != "",
		"trace_id", trace.FromContext(ctx))

	cmd := exec.CommandContext(ctx, inv.binPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if err != nil {
		// CommandContext kills the child when the context ends, and the
		// resulting exit error would masquerade as a process failure.
		if ctxErr := ctx.Err(); ctxErr != nil {
			slog.Warn("assistant invocation aborted",
				"invocation_id", invocationID,
				"duration_ms", duration.Milliseconds(),
				"err", ctxErr)
			return nil, fmt.Errorf("assistant invocation aborted after %s: %w",
				duration.Round(time.Millisecond), ctxErr)
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			perr := &ProcessError{
				ExitCode: exitErr.ExitCode(),
				Stderr:   strings.TrimSpace(stderr.String()),
			}
			slog.Error("assistant invocation failed",
				"invocation_id", invocationID,
				"exit_code", perr.ExitCode,
				"duration_ms", duration.Milliseconds())
			return nil, perr
		}

		slog.Error("assistant process launch failed",
			"invocation_id", invocationID,
			"bin", inv.binPath,
			"err", err)
		return nil, &ProcessError{ExitCode: -1, Err: err}
	}

	result := parseOutput(stdout.Bytes())
	slog.Info("assistant invocation finished",
		"invocation_id", invocationID,
		"session", session.Key(),
		"result", result.Kind,
		"duration_ms", duration.Milliseconds())
	return result, nil
}

// parseOutput turns CLI stdout into an InvocationResult. A reply that is
// present but malformed is still a reply; only the process layer produces
// errors.
func parseOutput(output []byte) *InvocationResult {
	var payload struct {
		Result    string `json:"result"`
		SessionID string `json:"session_id"`
		Model     string `json:"model"`
	}
	if err := json.Unmarshal(output, &payload); err != nil {
		text := strings.TrimSpace(string(output))
		if text == "" {
			return &InvocationResult{Kind: ResultEmpty}
		}
		return &InvocationResult{Kind: ResultRawFallback, Text: text}
	}

	if payload.Result == "" {
		return &InvocationResult{
			Kind:      ResultEmpty,
			SessionID: payload.SessionID,
			Model:     payload.Model,
		}
	}
	return &InvocationResult{
		Kind:      ResultStructured,
		Text:      payload.Result,
		SessionID: payload.SessionID,
		Model:     payload.Model,
	}
}
