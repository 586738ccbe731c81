// Package mail delivers the meeting summary email.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strings"

	"go.uber.org/zap"
)

type Message struct {
	From    string
	To      []string
	Subject string
	Text    string
	HTML    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Build renders msg as an RFC 5322 message with a multipart/alternative body.
func Build(msg Message) ([]byte, error) {
	if len(msg.To) == 0 {
		return nil, fmt.Errorf("message has no recipients")
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	parts := []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=UTF-8", msg.Text},
		{"text/html; charset=UTF-8", msg.HTML},
	}
	for _, p := range parts {
		if p.content == "" {
			continue
		}
		pw, err := w.CreatePart(textproto.MIMEHeader{"Content-Type": {p.contentType}})
		if err != nil {
			return nil, err
		}
		if _, err := pw.Write([]byte(p.content)); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	var out bytes.Buffer
	if msg.From != "" {
		fmt.Fprintf(&out, "From: %s\r\n", msg.From)
	}
	fmt.Fprintf(&out, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&out, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	out.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&out, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", w.Boundary())
	out.Write(body.Bytes())
	return out.Bytes(), nil
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	Logger *zap.Logger
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.Logger != nil {
		s.Logger.Info("summary email",
			zap.Strings("to", msg.To),
			zap.String("subject", msg.Subject),
			zap.Int("html_bytes", len(msg.HTML)),
			zap.String("text", msg.Text))
	}
	return nil
}
