package mailer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"toonlab/internal/domain"
)

func TestBuildMessageAttachesVideo(t *testing.T) {
	video := bytes.Repeat([]byte{0x00, 0x01, 0xfe}, 100)
	raw, err := BuildMessage("bot@example.com", Message{
		To:          "friend@example.com",
		Subject:     "Your video",
		Body:        "Enjoy!",
		Attachments: []Attachment{{Filename: "clip.mp4", ContentType: "video/mp4", Data: video}},
	}, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("BuildMessage: %v", err)
	}

	parsed, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if parsed.Header.Get("To") != "friend@example.com" || parsed.Header.Get("Subject") != "Your video" {
		t.Fatalf("headers = %v", parsed.Header)
	}
	mediaType, params, err := mime.ParseMediaType(parsed.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/mixed" {
		t.Fatalf("content type = %q (%v)", mediaType, err)
	}
	mr := multipart.NewReader(parsed.Body, params["boundary"])

	bodyPart, err := mr.NextPart()
	if err != nil {
		t.Fatalf("body part: %v", err)
	}
	text, _ := io.ReadAll(bodyPart)
	if string(text) != "Enjoy!" {
		t.Fatalf("body = %q", text)
	}

	att, err := mr.NextPart()
	if err != nil {
		t.Fatalf("attachment part: %v", err)
	}
	if att.FileName() != "clip.mp4" || att.Header.Get("Content-Type") != "video/mp4" {
		t.Fatalf("attachment headers = %v", att.Header)
	}
	// multipart.Reader decodes quoted-printable only, so base64 is read raw.
	encoded, _ := io.ReadAll(att)
	for _, line := range strings.Split(strings.TrimSpace(string(encoded)), "\r\n") {
		if len(line) > 76 {
			t.Fatalf("base64 line longer than 76 characters")
		}
	}
}

func TestSendRequiresCredentials(t *testing.T) {
	m := New(Config{}, nil)
	if m.Configured() {
		t.Fatalf("expected unconfigured mailer")
	}
	err := m.Send(context.Background(), Message{To: "a@example.com"})
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestSendValidatesRecipient(t *testing.T) {
	m := New(Config{Username: "u@example.com", Password: "app-pass"}, nil)
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatalf("send should not be called")
		return nil
	}
	if err := m.Send(context.Background(), Message{To: "not an address"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestSendUsesRelay(t *testing.T) {
	m := New(Config{Username: "u@example.com", Password: "app-pass"}, nil)
	var gotAddr, gotFrom string
	var gotTo []string
	m.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo = addr, from, to
		return nil
	}
	if err := m.Send(context.Background(), Message{To: "Friend <friend@example.com>", Subject: "hi"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotAddr != "smtp.gmail.com:587" || gotFrom != "u@example.com" || len(gotTo) != 1 || gotTo[0] != "friend@example.com" {
		t.Fatalf("relay call = %s %s %v", gotAddr, gotFrom, gotTo)
	}
}
