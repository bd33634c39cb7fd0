package app

import (
	"fmt"
	"strings"
	"testing"

	"github.com/bdobrica/Hikyaku/internal/hikyaku/claude"
)

func TestRenderResult(t *testing.T) {
	tests := []struct {
		name   string
		result *claude.InvocationResult
		want   string
	}{
		{
			name:   "structured",
			result: &claude.InvocationResult{Kind: claude.ResultStructured, Text: "hello"},
			want:   "hello",
		},
		{
			name:   "raw fallback",
			result: &claude.InvocationResult{Kind: claude.ResultRawFallback, Text: "not json"},
			want:   "not json",
		},
		{
			name:   "empty",
			result: &claude.InvocationResult{Kind: claude.ResultEmpty},
			want:   emptyReply,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := renderResult(tt.result); got != tt.want {
				t.Errorf("renderResult: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReceiptPromptTemplate(t *testing.T) {
	prompt := fmt.Sprintf(receiptPrompt, "alice", "groceries 25.50", "alice")

	for _, want := range []string{
		"User: alice",
		"Message: groceries 25.50",
		"/bills/purchases/alice/",
		"YYYY-MM-DD_description_AMOUNT.txt",
		"ask for clarification",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("receipt prompt missing %q", want)
		}
	}
}

func TestNullString(t *testing.T) {
	if got := nullString(""); got.Valid {
		t.Error("nullString(\"\") is Valid")
	}
	if got := nullString("alice"); !got.Valid || got.String != "alice" {
		t.Errorf("nullString(alice): got %+v", got)
	}
}
