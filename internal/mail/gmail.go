package mail

import (
	"context"
	"encoding/base64"
	"fmt"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

type Gmail struct {
	svc    *gmail.Service
	sender string
}

func NewGmail(ctx context.Context, sender string, opts ...option.ClientOption) (*Gmail, error) {
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	if sender == "" {
		sender = "me"
	}
	return &Gmail{svc: svc, sender: sender}, nil
}

func (g *Gmail) Send(ctx context.Context, msg Message) error {
	if msg.From == "" && g.sender != "me" {
		msg.From = g.sender
	}
	raw, err := Build(msg)
	if err != nil {
		return err
	}
	_, err = g.svc.Users.Messages.Send("me", &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(raw),
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
