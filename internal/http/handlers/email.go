package handlers

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"toonlab/internal/domain"
	"toonlab/internal/mailer"
)

// SendEmail relays an uploaded video to the given address.
func (a *App) SendEmail(w http.ResponseWriter, r *http.Request) {
	if a.Mailer == nil || !a.Mailer.Configured() {
		a.fail(w, r, fmt.Errorf("%w: email delivery is not configured", domain.ErrUnavailable))
		return
	}
	fields, err := a.formFields(w, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	to, err := mailer.ValidateAddress(fields["email"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	data, filename, err := upload(r, "file", true)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	filename = filepath.Base(strings.TrimSpace(filename))
	if filename == "" || filename == "." || filename == "/" {
		filename = "video.mp4"
	}
	subject := strings.TrimSpace(fields["subject"])
	if subject == "" {
		subject = "Your generated video"
	}
	msg := mailer.Message{
		To:          to,
		Subject:     subject,
		Body:        "Your video is attached.",
		Attachments: []mailer.Attachment{{Filename: filename, ContentType: http.DetectContentType(data), Data: data}},
	}
	if err := a.Mailer.Send(r.Context(), msg); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "sent", "email": to})
}
