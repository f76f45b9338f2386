package alert

import (
	"context"
	"testing"

	"github.com/iliyamo/festival-registration/internal/config"
)

func TestNewWithoutTelegramConfig(t *testing.T) {
	for _, cfg := range []config.TelegramConfig{{}, {BotToken: "x"}, {ChatID: 42}} {
		n := New(cfg)
		if _, ok := n.(LogNotifier); !ok {
			t.Fatalf("expected LogNotifier for %+v, got %T", cfg, n)
		}
		if err := n.Notify(context.Background(), "test"); err != nil {
			t.Fatalf("notify: %v", err)
		}
	}
}
