package forward

import (
	"strings"
	"testing"
	"time"

	"tg_forwarder/internal/telegram/models"
)

func TestComposeSyntheticPublicChannel(t *testing.T) {
	msg := &models.SourceMessage{
		ID:           10,
		ChatID:       -1001234567890,
		ChatTitle:    "Daily Digest",
		ChatUsername: "dailydigest",
		ChatType:     "channel",
		Date:         time.Date(2026, time.March, 5, 14, 30, 0, 0, time.UTC),
		Text:         "hello world",
	}

	got := composeSynthetic(msg, "")
	want := "Forwarded from: Daily Digest\n" +
		"Public Channel\n" +
		"@dailydigest\n" +
		"2026-03-05 14:30 UTC\n" +
		attributionSeparator + "\n\n" +
		"hello world"
	if got != want {
		t.Fatalf("unexpected synthetic body:\n%q\nwant:\n%q", got, want)
	}
}

func TestComposeSyntheticPrivateChannelWithInvite(t *testing.T) {
	msg := &models.SourceMessage{
		ID:         11,
		ChatID:     -1009876543210,
		ChatTitle:  "Insiders",
		ChatType:   "channel",
		InviteLink: "https://t.me/+abcdef",
		Date:       time.Date(2026, time.March, 5, 8, 0, 0, 0, time.UTC),
		Text:       "members only",
	}

	got := composeSynthetic(msg, "")
	if !strings.Contains(got, "Private Channel (Invite Link Available)\nhttps://t.me/+abcdef\n") {
		t.Fatalf("expected invite-link source info, got:\n%q", got)
	}
}

func TestComposeSyntheticFallbackLabels(t *testing.T) {
	tests := []struct {
		name     string
		chatType string
		want     string
	}{
		{"group", "group", "Group"},
		{"supergroup", "supergroup", "Supergroup"},
		{"channel without handle", "channel", "Channel"},
		{"unknown type", "", "Private Channel"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &models.SourceMessage{
				ChatTitle: "Somewhere",
				ChatType:  tt.chatType,
				Date:      time.Date(2026, time.March, 5, 8, 0, 0, 0, time.UTC),
				Text:      "x",
			}
			got := composeSynthetic(msg, "")
			if !strings.Contains(got, "Somewhere\n"+tt.want+"\n") {
				t.Fatalf("expected label %q, got:\n%q", tt.want, got)
			}
		})
	}
}

func TestComposeSyntheticMissingTitle(t *testing.T) {
	msg := &models.SourceMessage{
		ChatType: "channel",
		Date:     time.Date(2026, time.March, 5, 8, 0, 0, 0, time.UTC),
		Text:     "x",
	}
	got := composeSynthetic(msg, "")
	if !strings.HasPrefix(got, "Forwarded from: Unknown Channel\n") {
		t.Fatalf("expected unknown-channel fallback, got:\n%q", got)
	}
}

func TestComposeSyntheticWithInlineQuote(t *testing.T) {
	msg := &models.SourceMessage{
		ChatTitle: "Daily Digest",
		ChatType:  "channel",
		Date:      time.Date(2026, time.March, 5, 14, 30, 0, 0, time.UTC),
		Text:      "reply body",
	}

	got := composeSynthetic(msg, composeQuote("quoted line"))
	if !strings.Contains(got, attributionSeparator+"\n\n> quoted line\n\nreply body") {
		t.Fatalf("expected quote block between header and body, got:\n%q", got)
	}
}

func TestComposeQuote(t *testing.T) {
	t.Run("multiline prefix", func(t *testing.T) {
		got := composeQuote("first\nsecond")
		if got != "> first\n> second" {
			t.Fatalf("unexpected quote: %q", got)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		if got := composeQuote("   "); got != "" {
			t.Fatalf("expected empty quote, got %q", got)
		}
	})

	t.Run("rune truncation", func(t *testing.T) {
		long := strings.Repeat("字", maxQuoteRunes+25)
		got := composeQuote(long)
		want := "> " + strings.Repeat("字", maxQuoteRunes) + "…"
		if got != want {
			t.Fatalf("expected truncated quote of %d runes, got %q", maxQuoteRunes, got)
		}
	})
}
