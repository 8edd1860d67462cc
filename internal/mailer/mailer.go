// Package mailer relays generated videos to a recipient over SMTP.
package mailer

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"toonlab/internal/domain"
	"toonlab/internal/infra"
)

// Config holds SMTP relay settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// From defaults to Username.
	From string
}

// Attachment is a file attached to an outgoing message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is an outgoing email.
type Message struct {
	To          string
	Subject     string
	Body        string
	Attachments []Attachment
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer sends messages through an authenticated SMTP relay. smtp.SendMail
// upgrades the connection with STARTTLS when the server offers it.
type Mailer struct {
	cfg    Config
	send   sendFunc
	logger *infra.Logger
	now    func() time.Time
}

// New builds a mailer. It does not dial the server.
func New(cfg Config, logger *infra.Logger) *Mailer {
	if cfg.Host == "" {
		cfg.Host = "smtp.gmail.com"
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Mailer{cfg: cfg, send: smtp.SendMail, logger: logger, now: time.Now}
}

// Configured reports whether credentials are present.
func (m *Mailer) Configured() bool {
	return m != nil && m.cfg.Username != "" && m.cfg.Password != ""
}

// ValidateAddress parses a single recipient address.
func ValidateAddress(addr string) (string, error) {
	parsed, err := mail.ParseAddress(strings.TrimSpace(addr))
	if err != nil {
		return "", fmt.Errorf("%w: invalid email address", domain.ErrValidation)
	}
	return parsed.Address, nil
}

// Send delivers msg. It returns domain.ErrUnavailable when the mailer has no
// credentials.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	if !m.Configured() {
		return fmt.Errorf("%w: smtp credentials are not configured", domain.ErrUnavailable)
	}
	to, err := ValidateAddress(msg.To)
	if err != nil {
		return err
	}
	msg.To = to
	raw, err := BuildMessage(m.cfg.From, msg, m.now())
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	if err := m.send(addr, auth, m.cfg.From, []string{to}, raw); err != nil {
		return fmt.Errorf("mailer: send to %s: %w", to, err)
	}
	m.logger.Info().Str("to", to).Int("attachments", len(msg.Attachments)).Msg("mailer: message sent")
	return nil
}

// BuildMessage renders msg as a multipart/mixed MIME message.
func BuildMessage(from string, msg Message, date time.Time) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := textproto.MIMEHeader{}
	header.Set("From", from)
	header.Set("To", msg.To)
	header.Set("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header.Set("Date", date.Format(time.RFC1123Z))
	header.Set("MIME-Version", "1.0")
	header.Set("Content-Type", "multipart/mixed; boundary="+mw.Boundary())

	var head bytes.Buffer
	for _, k := range []string{"From", "To", "Subject", "Date", "MIME-Version", "Content-Type"} {
		fmt.Fprintf(&head, "%s: %s\r\n", k, header.Get(k))
	}
	head.WriteString("\r\n")

	body, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/plain; charset=utf-8"},
		"Content-Transfer-Encoding": {"8bit"},
	})
	if err != nil {
		return nil, fmt.Errorf("mailer: body part: %w", err)
	}
	if _, err := io.WriteString(body, msg.Body); err != nil {
		return nil, fmt.Errorf("mailer: write body: %w", err)
	}

	for _, att := range msg.Attachments {
		ct := att.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		part, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {ct},
			"Content-Transfer-Encoding": {"base64"},
			"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": att.Filename})},
		})
		if err != nil {
			return nil, fmt.Errorf("mailer: attachment part: %w", err)
		}
		if err := writeBase64Lines(part, att.Data); err != nil {
			return nil, fmt.Errorf("mailer: write attachment: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("mailer: close multipart: %w", err)
	}
	return append(head.Bytes(), buf.Bytes()...), nil
}

// writeBase64Lines wraps encoded output at 76 characters per RFC 2045.
func writeBase64Lines(w io.Writer, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 76 {
		if _, err := io.WriteString(w, encoded[:76]+"\r\n"); err != nil {
			return err
		}
		encoded = encoded[76:]
	}
	_, err := io.WriteString(w, encoded+"\r\n")
	return err
}
