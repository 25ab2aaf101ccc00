// Package notify delivers issued certificates to learners.
package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"

	"github.com/resend/resend-go/v2"

	"github.com/msomdec/microlearn/internal/domain"
)

// emailSender is the subset of the Resend client used here.
type emailSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// ResendNotifier emails the certificate as a PDF attachment via Resend.
type ResendNotifier struct {
	emails emailSender
	from   string
	course string
}

// NewResendNotifier creates a ResendNotifier with the given API key and
// sender address.
func NewResendNotifier(apiKey, from, course string) *ResendNotifier {
	client := resend.NewClient(apiKey)
	return &ResendNotifier{emails: client.Emails, from: from, course: course}
}

// Notify sends the certificate to to. Failures are logged and reported as
// false.
func (n *ResendNotifier) Notify(ctx context.Context, to, name string, document []byte) bool {
	params := &resend.SendEmailRequest{
		From:    n.from,
		To:      []string{to},
		Subject: "Your certificate of completion",
		Html: fmt.Sprintf("<p>Dear %s,</p><p>Congratulations on completing the %s. Your certificate is attached.</p>",
			html.EscapeString(name), html.EscapeString(n.course)),
		Attachments: []*resend.Attachment{{
			Content:     document,
			Filename:    "certificate.pdf",
			ContentType: "application/pdf",
		}},
	}

	sent, err := n.emails.SendWithContext(ctx, params)
	if err != nil {
		slog.Warn("certificate email failed", "error", fmt.Errorf("%w: %v", domain.ErrNotificationFailure, err))
		return false
	}
	slog.Info("certificate email sent", "message_id", sent.Id)
	return true
}

// LogNotifier records the delivery it would have made. It is used when no
// mail provider is configured and always reports false, so the progress
// record is not marked notified.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, to, name string, document []byte) bool {
	slog.Info("certificate email skipped: no mail provider configured", "name", name, "bytes", len(document))
	return false
}
