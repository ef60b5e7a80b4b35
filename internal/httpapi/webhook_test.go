package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/ignite/audience-mailer/internal/domain"
	"github.com/ignite/audience-mailer/internal/service/expand"
	"github.com/ignite/audience-mailer/internal/service/merge"
)

type fakeApplier struct {
	events []domain.ProviderEvent
	err    error
}

func (f *fakeApplier) Apply(_ context.Context, ev domain.ProviderEvent) error {
	f.events = append(f.events, ev)
	return f.err
}

type fakeVerifier struct{ ok bool }

func (f *fakeVerifier) VerifyWebhookSignature(_, _, _ string) bool { return f.ok }

type fakeUnsub struct{ err error }

func (f *fakeUnsub) Unsubscribe(context.Context, string, string) error { return f.err }

type fakeOpens struct{ marked []string }

func (f *fakeOpens) MarkOpenedByTaskID(_ context.Context, taskID string, _ time.Time) (int64, error) {
	for _, id := range f.marked {
		if id == taskID {
			return 0, nil
		}
	}
	f.marked = append(f.marked, taskID)
	return 1, nil
}

type fakeExpander struct{ err error }

func (f *fakeExpander) Expand(context.Context, string, string, bool) (*expand.Stats, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &expand.Stats{Queued: 5}, nil
}

type fakeMerger struct{}

func (fakeMerger) Merge(context.Context, []string, string, bool) (*merge.Stats, error) {
	return &merge.Stats{Moved: 1}, nil
}

func testHandlers(applier *fakeApplier, verifier SignatureVerifier) *Handlers {
	return NewHandlers(applier, verifier, &fakeUnsub{}, &fakeOpens{}, &fakeExpander{}, fakeMerger{}, nil, "pixel-key")
}

const nestedPayload = `{
	"signature": {"timestamp": "1767100000", "token": "tok", "signature": "sig"},
	"event-data": {
		"event": "bounced",
		"recipient": "jane@example.org",
		"severity": "permanent",
		"message": {"headers": {"message-id": "<m1@mail.example.com>"}},
		"delivery-status": {"code": 550, "message": "mailbox unavailable"}
	}
}`

func TestWebhookNestedPayload(t *testing.T) {
	applier := &fakeApplier{}
	router := NewRouter(testHandlers(applier, &fakeVerifier{ok: true}))

	req := httptest.NewRequest("POST", "/webhooks/mailgun", strings.NewReader(nestedPayload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"queued"`) {
		t.Errorf("expected queued ack, got %s", rec.Body.String())
	}
	if len(applier.events) != 1 {
		t.Fatalf("expected 1 applied event, got %d", len(applier.events))
	}
	ev := applier.events[0]
	if ev.Event != domain.EventBounced || ev.Severity != domain.SeverityPermanent {
		t.Errorf("unexpected event: %+v", ev)
	}
	if ev.MessageID != "m1@mail.example.com" {
		t.Errorf("message id not trimmed: %q", ev.MessageID)
	}
	if ev.StatusCode != "550" || ev.StatusMessage != "mailbox unavailable" {
		t.Errorf("delivery status lost: %+v", ev)
	}
}

func TestWebhookFlatPayload(t *testing.T) {
	applier := &fakeApplier{}
	router := NewRouter(testHandlers(applier, &fakeVerifier{ok: true}))

	form := url.Values{}
	form.Set("event", "opened")
	form.Set("recipient", "jane@example.org")
	form.Set("Message-Id", "<m2@mail.example.com>")
	form.Set("timestamp", "1767100000")
	form.Set("token", "tok")
	form.Set("signature", "sig")

	req := httptest.NewRequest("POST", "/webhooks/mailgun", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if len(applier.events) != 1 || applier.events[0].Event != domain.EventOpened {
		t.Fatalf("flat payload not applied: %+v", applier.events)
	}
	if applier.events[0].MessageID != "m2@mail.example.com" {
		t.Errorf("message id not parsed: %q", applier.events[0].MessageID)
	}
}

func TestWebhookBadSignature(t *testing.T) {
	applier := &fakeApplier{}
	router := NewRouter(testHandlers(applier, &fakeVerifier{ok: false}))

	req := httptest.NewRequest("POST", "/webhooks/mailgun", strings.NewReader(nestedPayload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if len(applier.events) != 0 {
		t.Error("unverified event must not be applied")
	}
}

func TestWebhookMissingEvent(t *testing.T) {
	router := NewRouter(testHandlers(&fakeApplier{}, &fakeVerifier{ok: true}))

	req := httptest.NewRequest("POST", "/webhooks/mailgun", strings.NewReader(`{"event-data":{}}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestWebhookUnknownEventAcknowledged(t *testing.T) {
	applier := &fakeApplier{}
	router := NewRouter(testHandlers(applier, &fakeVerifier{ok: true}))

	body := `{"event-data":{"event":"accepted","recipient":"a@example.org"}}`
	req := httptest.NewRequest("POST", "/webhooks/mailgun", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unknown events must be acknowledged, got %d", rec.Code)
	}
	if len(applier.events) != 0 {
		t.Error("unknown event must not be applied")
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("expected plain ok ack, got %s", rec.Body.String())
	}
}
