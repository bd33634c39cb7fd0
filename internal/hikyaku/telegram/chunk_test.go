package telegram_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/bdobrica/Hikyaku/internal/hikyaku/telegram"
)

func TestSplitMessage_Short(t *testing.T) {
	chunks := telegram.SplitMessage("hello", telegram.MessageLimit)
	if len(chunks) != 1 || chunks[0] != "hello" {
		t.Errorf("SplitMessage(short): got %q", chunks)
	}
}

func TestSplitMessage_Empty(t *testing.T) {
	if chunks := telegram.SplitMessage("", telegram.MessageLimit); len(chunks) != 0 {
		t.Errorf("SplitMessage(empty): got %q, want none", chunks)
	}
}

func TestSplitMessage_ExactLimit(t *testing.T) {
	text := strings.Repeat("a", telegram.MessageLimit)
	chunks := telegram.SplitMessage(text, telegram.MessageLimit)
	if len(chunks) != 1 {
		t.Errorf("text of exactly limit length split into %d chunks", len(chunks))
	}
}

func TestSplitMessage_LongText(t *testing.T) {
	text := strings.Repeat("a", telegram.MessageLimit*2+10)
	chunks := telegram.SplitMessage(text, telegram.MessageLimit)

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != telegram.MessageLimit || len(chunks[1]) != telegram.MessageLimit {
		t.Errorf("full chunks have lengths %d, %d; want %d",
			len(chunks[0]), len(chunks[1]), telegram.MessageLimit)
	}
	if len(chunks[2]) != 10 {
		t.Errorf("last chunk has length %d, want 10", len(chunks[2]))
	}
	if strings.Join(chunks, "") != text {
		t.Error("chunks do not reassemble into the original text")
	}
}

func TestSplitMessage_DoesNotBreakRunes(t *testing.T) {
	// Multi-byte characters around the boundary must survive intact
	text := strings.Repeat("日本語テキスト", 1000)
	chunks := telegram.SplitMessage(text, telegram.MessageLimit)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if !utf8.ValidString(chunk) {
			t.Errorf("chunk %d is not valid UTF-8", i)
		}
		if n := utf8.RuneCountInString(chunk); n > telegram.MessageLimit {
			t.Errorf("chunk %d has %d characters, over the limit", i, n)
		}
	}
	if strings.Join(chunks, "") != text {
		t.Error("chunks do not reassemble into the original text")
	}
}

func TestLargestPhoto(t *testing.T) {
	msg := &tgbotapi.Message{
		Photo: []tgbotapi.PhotoSize{
			{FileID: "small", Width: 90, Height: 90},
			{FileID: "medium", Width: 320, Height: 320},
			{FileID: "large", Width: 1280, Height: 1280},
		},
	}

	fileID, ok := telegram.LargestPhoto(msg)
	if !ok {
		t.Fatal("LargestPhoto found nothing")
	}
	if fileID != "large" {
		t.Errorf("LargestPhoto: got %q, want %q", fileID, "large")
	}
}

func TestLargestPhoto_NoPhoto(t *testing.T) {
	if _, ok := telegram.LargestPhoto(&tgbotapi.Message{}); ok {
		t.Error("LargestPhoto reported a photo on a text message")
	}
}
