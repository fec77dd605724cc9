package mail

import (
	"context"
	"testing"
)

func TestLogMailerAcceptsEverything(t *testing.T) {
	var m Mailer = LogMailer{}
	err := m.Send(context.Background(), Message{To: "owner@example.com", Subject: "March statement"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestSMTPMailerHonoursCancelledContext(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Host: "localhost", Port: 2525, From: "reports@example.com"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := m.Send(ctx, Message{To: "owner@example.com"}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
