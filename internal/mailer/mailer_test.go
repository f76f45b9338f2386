package mailer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/iliyamo/festival-registration/internal/config"
)

func TestNewSelectsBackend(t *testing.T) {
	if _, ok := New(config.SMTPConfig{}).(*FileMailer); !ok {
		t.Fatal("expected FileMailer without SMTP host")
	}
	if _, ok := New(config.SMTPConfig{Host: "smtp.example.org", Port: "587"}).(*SMTPMailer); !ok {
		t.Fatal("expected SMTPMailer with SMTP host")
	}
}

func TestFileMailerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "fulfillment.log")
	m := NewFileMailer(path)
	for _, to := range []string{"a@example.org", "b@example.org"} {
		if err := m.Send(context.Background(), Message{To: to, Subject: "Iscrizione confermata", Body: "ciao"}); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 || !strings.Contains(lines[1], "to=b@example.org") {
		t.Fatalf("unexpected log content %q", data)
	}
}

func TestCompose(t *testing.T) {
	raw := string(Compose("iscrizioni@example.org", Message{To: "p@example.org", Subject: "Ciao", Body: "riga 1\nriga 2"}))
	for _, want := range []string{"From: iscrizioni@example.org\r\n", "To: p@example.org\r\n", "charset=\"utf-8\"", "riga 1\r\nriga 2"} {
		if !strings.Contains(raw, want) {
			t.Errorf("missing %q in %q", want, raw)
		}
	}
}
