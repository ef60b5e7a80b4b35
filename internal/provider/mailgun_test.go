package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/ignite/audience-mailer/internal/domain"
)

func TestMailgunSend(t *testing.T) {
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/mail.example.com/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		user, pass, _ := r.BasicAuth()
		if user != "api" || pass != "key-test" {
			t.Errorf("unexpected auth %s:%s", user, pass)
		}
		r.ParseForm()
		gotForm = map[string]string{
			"from":    r.PostFormValue("from"),
			"to":      r.PostFormValue("to"),
			"subject": r.PostFormValue("subject"),
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "<20260830.abc@mail.example.com>", "message": "Queued."})
	}))
	defer srv.Close()

	mg := NewMailgun("key-test", "mail.example.com", srv.URL, "")
	res, err := mg.Send(context.Background(), &Envelope{
		TaskID:    "task-1",
		To:        "jane@example.org",
		FromName:  "Newsletter",
		FromEmail: "news@example.com",
		Subject:   "Hello",
		HTMLBody:  "<p>Hi</p>",
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if !res.Accepted {
		t.Fatalf("expected accepted, got rejection: %v", res.Err)
	}
	if res.MessageID != "20260830.abc@mail.example.com" {
		t.Errorf("message id not trimmed: %q", res.MessageID)
	}
	if gotForm["from"] != "Newsletter <news@example.com>" {
		t.Errorf("unexpected from: %q", gotForm["from"])
	}
	if gotForm["to"] != "jane@example.org" {
		t.Errorf("unexpected to: %q", gotForm["to"])
	}
}

func TestMailgunSendRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"message":"'to' parameter is not a valid address"}`)
	}))
	defer srv.Close()

	mg := NewMailgun("key-test", "mail.example.com", srv.URL, "")
	res, err := mg.Send(context.Background(), &Envelope{To: "not-an-address", Subject: "x", HTMLBody: "y"})
	if err != nil {
		t.Fatalf("rejection must not be a transport error: %v", err)
	}
	if res.Accepted || res.Err == nil {
		t.Fatalf("expected rejection, got %+v", res)
	}
}

func TestMailgunSendBatch(t *testing.T) {
	var gotVars map[string]map[string]string
	var gotTo string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotTo = r.PostFormValue("to")
		if err := json.Unmarshal([]byte(r.PostFormValue("recipient-variables")), &gotVars); err != nil {
			t.Errorf("bad recipient-variables: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "<batch.xyz@mail.example.com>"})
	}))
	defer srv.Close()

	mg := NewMailgun("key-test", "mail.example.com", srv.URL, "")
	envs := []*Envelope{
		{TaskID: "t1", To: "a@example.org", Subject: "Hi %recipient.id%", HTMLBody: "b", Vars: map[string]string{"unsubscribe_url": "https://x/u/1"}},
		{TaskID: "t2", To: "b@example.org", Subject: "Hi %recipient.id%", HTMLBody: "b", Vars: map[string]string{"unsubscribe_url": "https://x/u/2"}},
	}
	res, err := mg.SendBatch(context.Background(), envs)
	if err != nil {
		t.Fatalf("SendBatch failed: %v", err)
	}
	if res.Accepted != 2 || res.Rejected != 0 {
		t.Errorf("unexpected counts: %+v", res)
	}
	if res.MessageID != "batch.xyz@mail.example.com" {
		t.Errorf("message id not trimmed: %q", res.MessageID)
	}
	if gotTo != "a@example.org,b@example.org" {
		t.Errorf("unexpected to list: %q", gotTo)
	}
	if gotVars["a@example.org"]["id"] != "t1" {
		t.Errorf("missing task id var: %+v", gotVars["a@example.org"])
	}
	if gotVars["b@example.org"]["unsubscribe_url"] != "https://x/u/2" {
		t.Errorf("missing unsubscribe var: %+v", gotVars["b@example.org"])
	}
}

func TestMailgunSendBatchTooLarge(t *testing.T) {
	mg := NewMailgun("key-test", "mail.example.com", "http://unused", "")
	envs := make([]*Envelope, 1001)
	for i := range envs {
		envs[i] = &Envelope{To: fmt.Sprintf("u%d@example.org", i)}
	}
	if _, err := mg.SendBatch(context.Background(), envs); err == nil {
		t.Fatal("expected error for oversized batch")
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	mg := NewMailgun("key-test", "mail.example.com", "http://unused", "whsec")

	sign := func(ts, token string) string {
		mac := hmac.New(sha256.New, []byte("whsec"))
		mac.Write([]byte(ts + token))
		return hex.EncodeToString(mac.Sum(nil))
	}

	now := strconv.FormatInt(time.Now().Unix(), 10)
	if !mg.VerifyWebhookSignature(now, "tok123", sign(now, "tok123")) {
		t.Error("valid signature rejected")
	}
	if mg.VerifyWebhookSignature(now, "tok123", sign(now, "other-token")) {
		t.Error("forged signature accepted")
	}

	stale := strconv.FormatInt(time.Now().Add(-10*time.Minute).Unix(), 10)
	if mg.VerifyWebhookSignature(stale, "tok123", sign(stale, "tok123")) {
		t.Error("stale timestamp accepted")
	}
	if mg.VerifyWebhookSignature("not-a-number", "tok123", "deadbeef") {
		t.Error("garbage timestamp accepted")
	}

	open := NewMailgun("key-test", "mail.example.com", "http://unused", "")
	if !open.VerifyWebhookSignature(now, "tok123", "whatever") {
		t.Error("verification must be skipped without a signing key")
	}
}

func TestMailgunListBouncesPaging(t *testing.T) {
	var srv *httptest.Server
	page := 0
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page++
		switch page {
		case 1:
			fmt.Fprintf(w, `{"items":[{"address":"a@example.org","error":"550 mailbox unavailable"}],"paging":{"next":"%s/v3/mail.example.com/bounces?page=next"}}`, srv.URL)
		default:
			fmt.Fprint(w, `{"items":[],"paging":{"next":""}}`)
		}
	}))
	defer srv.Close()

	mg := NewMailgun("key-test", "mail.example.com", srv.URL, "")
	var got []string
	err := mg.ListBounces(context.Background(), func(address, reason string) error {
		got = append(got, address+"|"+reason)
		return nil
	})
	if err != nil {
		t.Fatalf("ListBounces failed: %v", err)
	}
	if len(got) != 1 || got[0] != "a@example.org|550 mailbox unavailable" {
		t.Errorf("unexpected bounces: %v", got)
	}
	if page != 2 {
		t.Errorf("expected 2 pages fetched, got %d", page)
	}
}

func TestMailgunDeliveredEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items":[{"event":"delivered","recipient":"a@example.org","message":{"headers":{"message-id":"<m1@mail.example.com>"}}}],"paging":{"next":""}}`)
	}))
	defer srv.Close()

	mg := NewMailgun("key-test", "mail.example.com", srv.URL, "")
	var got []domain.ProviderEvent
	err := mg.DeliveredEvents(context.Background(), time.Now().Add(-time.Hour), func(ev domain.ProviderEvent) error {
		got = append(got, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("DeliveredEvents failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].MessageID != "m1@mail.example.com" || got[0].Recipient != "a@example.org" {
		t.Errorf("unexpected event: %+v", got[0])
	}
}
