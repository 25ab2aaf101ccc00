package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/resend/resend-go/v2"
)

type fakeSender struct {
	got *resend.SendEmailRequest
	err error
}

func (f *fakeSender) SendWithContext(_ context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error) {
	f.got = params
	if f.err != nil {
		return nil, f.err
	}
	return &resend.SendEmailResponse{Id: "msg_123"}, nil
}

func TestResendNotifier_SendsAttachment(t *testing.T) {
	sender := &fakeSender{}
	n := &ResendNotifier{emails: sender, from: "lms@example.com", course: "safety module"}

	if !n.Notify(context.Background(), "alice@example.com", "Alice <script>", []byte("%PDF-1.3")) {
		t.Fatal("expected success")
	}
	if sender.got == nil {
		t.Fatal("expected a send")
	}
	if sender.got.From != "lms@example.com" || len(sender.got.To) != 1 || sender.got.To[0] != "alice@example.com" {
		t.Fatalf("unexpected envelope: %+v", sender.got)
	}
	if len(sender.got.Attachments) != 1 || string(sender.got.Attachments[0].Content) != "%PDF-1.3" {
		t.Fatalf("expected PDF attachment, got %+v", sender.got.Attachments)
	}
	if want := "Alice &lt;script&gt;"; !strings.Contains(sender.got.Html, want) {
		t.Fatalf("expected escaped name in body, got %s", sender.got.Html)
	}
}

func TestResendNotifier_FailureReturnsFalse(t *testing.T) {
	n := &ResendNotifier{emails: &fakeSender{err: errors.New("rate limited")}, from: "lms@example.com"}
	if n.Notify(context.Background(), "alice@example.com", "Alice", nil) {
		t.Fatal("expected failure to be reported as false")
	}
}

func TestLogNotifier(t *testing.T) {
	if (LogNotifier{}).Notify(context.Background(), "a@example.com", "A", nil) {
		t.Fatal("LogNotifier must not report delivery")
	}
}
