// Package notify is the notification collaborator: a template-addressed
// dispatch surface over the email and SMS senders. Handlers never talk to
// SMTP or SNS directly.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/storefront-auth-api/internal/infrastructure/smtp"
	"github.com/storefront-auth-api/internal/infrastructure/sns"
)

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"

	TemplateOTPVerification = "otp-verification"
)

// sendTimeout bounds every dispatch so a slow provider cannot hang the
// calling handler indefinitely.
const sendTimeout = 10 * time.Second

// Notification is one outbound message addressed by template name.
type Notification struct {
	To       string
	Channel  string
	Template string
	Data     map[string]string
}

// Dispatcher delivers notifications synchronously; a returned error means the
// message was not handed off to the provider.
type Dispatcher interface {
	Send(ctx context.Context, n Notification) error
}

type dispatcher struct {
	mailer smtp.Mailer
	sms    sns.SMSSender
}

func NewDispatcher(mailer smtp.Mailer, sms sns.SMSSender) Dispatcher {
	return &dispatcher{mailer: mailer, sms: sms}
}

func (d *dispatcher) Send(ctx context.Context, n Notification) error {
	subject, body, err := render(n)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	switch n.Channel {
	case ChannelEmail:
		if d.mailer == nil {
			return fmt.Errorf("email channel not configured")
		}
		errCh := make(chan error, 1)
		go func() { errCh <- d.mailer.SendEmail(n.To, subject, body) }()
		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			return fmt.Errorf("send email to %s: %w", n.To, ctx.Err())
		}
	case ChannelSMS:
		if d.sms == nil {
			return fmt.Errorf("sms channel not configured")
		}
		return d.sms.SendSMS(ctx, n.To, body)
	default:
		return fmt.Errorf("unknown channel %q", n.Channel)
	}
}

func render(n Notification) (subject, body string, err error) {
	switch n.Template {
	case TemplateOTPVerification:
		code := n.Data["otp_code"]
		if code == "" {
			return "", "", fmt.Errorf("template %s: missing otp_code", n.Template)
		}
		subject = "Your verification code"
		body = fmt.Sprintf("Your verification code is %s. It expires in 10 minutes.", code)
		return subject, body, nil
	default:
		return "", "", fmt.Errorf("unknown template %q", n.Template)
	}
}
