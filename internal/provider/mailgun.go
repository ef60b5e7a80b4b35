package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/audience-mailer/internal/domain"
	"github.com/ignite/audience-mailer/internal/pkg/httpretry"
)

// allowed clock drift for webhook signatures, in seconds
const signatureMaxSkew = 300

// Mailgun sends mail through the Mailgun Messages API and exposes its
// events and bounce suppression APIs. Supports batch sends of up to
// 1000 recipients per call using recipient-variables.
type Mailgun struct {
	apiKey     string
	domain     string
	baseURL    string
	signingKey string
	maxBatch   int
	client     httpretry.HTTPDoer
}

// NewMailgun creates a Mailgun adapter targeting the given sending domain.
// baseURL defaults to the EU API endpoint when empty.
func NewMailgun(apiKey, sendingDomain, baseURL, signingKey string) *Mailgun {
	if baseURL == "" {
		baseURL = "https://api.eu.mailgun.net"
	}
	return &Mailgun{
		apiKey:     apiKey,
		domain:     sendingDomain,
		baseURL:    strings.TrimRight(baseURL, "/"),
		signingKey: signingKey,
		maxBatch:   1000,
		client:     httpretry.NewRetryClient(&http.Client{Timeout: 60 * time.Second}, 3),
	}
}

// Name implements Sender.
func (m *Mailgun) Name() string { return "mailgun" }

// MaxBatchSize returns the maximum recipients per batch (1000 for Mailgun).
func (m *Mailgun) MaxBatchSize() int { return m.maxBatch }

// Send delivers a single email through Mailgun.
func (m *Mailgun) Send(ctx context.Context, env *Envelope) (*SendResult, error) {
	if m.apiKey == "" {
		return nil, ErrNotConfigured
	}

	form := url.Values{}
	form.Add("from", FormatFrom(env.FromName, env.FromEmail))
	form.Add("to", env.To)
	form.Add("subject", env.Subject)
	form.Add("html", env.HTMLBody)
	if env.TextBody != "" {
		form.Add("text", env.TextBody)
	}
	if env.ReplyTo != "" {
		form.Add("h:Reply-To", env.ReplyTo)
	}
	form.Add("v:task_id", env.TaskID)

	status, body, err := m.post(ctx, "/v3/"+m.domain+"/messages", form)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if status >= 400 {
		res := &SendResult{Err: fmt.Errorf("mailgun error %d: %s", status, strings.TrimSpace(string(body)))}
		// 5xx means the provider never took a decision on the message
		if status >= 500 {
			return nil, res.Err
		}
		return res, nil
	}

	var out struct {
		ID string `json:"id"`
	}
	json.Unmarshal(body, &out)
	messageID := strings.Trim(out.ID, "<>")
	log.Printf("[Mailgun] Sent to %s (id: %s)", env.To, messageID)

	return &SendResult{Accepted: true, MessageID: messageID, SentAt: time.Now()}, nil
}

// SendBatch sends one rendered template to multiple recipients using
// recipient-variables. Placeholders of the form %recipient.key% in the
// subject or body are substituted server-side per recipient.
func (m *Mailgun) SendBatch(ctx context.Context, envs []*Envelope) (*BatchResult, error) {
	if m.apiKey == "" {
		return nil, ErrNotConfigured
	}
	if len(envs) == 0 {
		return &BatchResult{}, nil
	}
	if len(envs) > m.maxBatch {
		return nil, fmt.Errorf("batch size %d exceeds Mailgun max of %d", len(envs), m.maxBatch)
	}

	recipients := make([]string, len(envs))
	recipientVars := make(map[string]map[string]string, len(envs))
	for i, env := range envs {
		recipients[i] = env.To
		vars := map[string]string{"id": env.TaskID}
		for k, v := range env.Vars {
			vars[k] = v
		}
		recipientVars[env.To] = vars
	}

	varsJSON, err := json.Marshal(recipientVars)
	if err != nil {
		return nil, fmt.Errorf("marshal recipient-variables: %w", err)
	}

	tpl := envs[0]
	form := url.Values{}
	form.Add("from", FormatFrom(tpl.FromName, tpl.FromEmail))
	form.Add("to", strings.Join(recipients, ","))
	form.Add("subject", tpl.Subject)
	form.Add("html", tpl.HTMLBody)
	form.Add("recipient-variables", string(varsJSON))
	if tpl.TextBody != "" {
		form.Add("text", tpl.TextBody)
	}
	if tpl.ReplyTo != "" {
		form.Add("h:Reply-To", tpl.ReplyTo)
	}
	form.Add("o:tracking", "yes")
	form.Add("o:tracking-clicks", "yes")
	form.Add("o:tracking-opens", "yes")

	status, body, err := m.post(ctx, "/v3/"+m.domain+"/messages", form)
	if err != nil {
		return nil, fmt.Errorf("send batch: %w", err)
	}

	var out struct {
		ID string `json:"id"`
	}
	json.Unmarshal(body, &out)
	messageID := strings.Trim(out.ID, "<>")

	if status >= 400 {
		errMsg := fmt.Errorf("mailgun batch error %d: %s", status, strings.TrimSpace(string(body)))
		if status >= 500 {
			return nil, errMsg
		}
		return &BatchResult{MessageID: messageID, Rejected: len(envs), Err: errMsg}, nil
	}

	log.Printf("[Mailgun] Batch sent %d emails (id: %s)", len(envs), messageID)
	return &BatchResult{MessageID: messageID, Accepted: len(envs)}, nil
}

// VerifyWebhookSignature checks a Mailgun webhook signature block:
// hex(HMAC-SHA256(timestamp||token, signingKey)). Timestamps older than
// five minutes are rejected to block replays. When no signing key is
// configured verification is skipped and every payload is accepted.
func (m *Mailgun) VerifyWebhookSignature(timestamp, token, signature string) bool {
	if m.signingKey == "" {
		return true
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	if math.Abs(float64(time.Now().Unix()-ts)) > signatureMaxSkew {
		return false
	}

	mac := hmac.New(sha256.New, []byte(m.signingKey))
	mac.Write([]byte(timestamp + token))
	expected := hex.EncodeToString(mac.Sum(nil))

	sig, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	want, _ := hex.DecodeString(expected)
	return hmac.Equal(sig, want)
}

// DeliveredEvents pages through the Mailgun events API for delivered
// events since the given time and calls fn for each one. Paging follows
// the "next" URL until an empty page.
func (m *Mailgun) DeliveredEvents(ctx context.Context, since time.Time, fn func(ev domain.ProviderEvent) error) error {
	if m.apiKey == "" {
		return ErrNotConfigured
	}

	q := url.Values{}
	q.Set("event", "delivered")
	q.Set("begin", strconv.FormatInt(since.Unix(), 10))
	q.Set("ascending", "yes")
	q.Set("limit", "300")
	next := m.baseURL + "/v3/" + m.domain + "/events?" + q.Encode()

	for next != "" {
		status, body, err := m.get(ctx, next)
		if err != nil {
			return fmt.Errorf("fetch events: %w", err)
		}
		if status >= 400 {
			return fmt.Errorf("mailgun events error %d: %s", status, strings.TrimSpace(string(body)))
		}

		var page struct {
			Items []struct {
				Event     string `json:"event"`
				Recipient string `json:"recipient"`
				Message   struct {
					Headers struct {
						MessageID string `json:"message-id"`
					} `json:"headers"`
				} `json:"message"`
			} `json:"items"`
			Paging struct {
				Next string `json:"next"`
			} `json:"paging"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return fmt.Errorf("decode events page: %w", err)
		}
		if len(page.Items) == 0 {
			return nil
		}
		for _, it := range page.Items {
			ev := domain.ProviderEvent{
				Event:     domain.EventDelivered,
				Recipient: it.Recipient,
				MessageID: strings.Trim(it.Message.Headers.MessageID, "<>"),
			}
			if err := fn(ev); err != nil {
				return err
			}
		}
		next = page.Paging.Next
	}
	return nil
}

// ListBounces pages through the Mailgun bounce suppression list and calls
// fn with each bounced address.
func (m *Mailgun) ListBounces(ctx context.Context, fn func(address, reason string) error) error {
	if m.apiKey == "" {
		return ErrNotConfigured
	}

	next := m.baseURL + "/v3/" + m.domain + "/bounces?limit=1000"
	for next != "" {
		status, body, err := m.get(ctx, next)
		if err != nil {
			return fmt.Errorf("fetch bounces: %w", err)
		}
		if status >= 400 {
			return fmt.Errorf("mailgun bounces error %d: %s", status, strings.TrimSpace(string(body)))
		}

		var page struct {
			Items []struct {
				Address string `json:"address"`
				Error   string `json:"error"`
			} `json:"items"`
			Paging struct {
				Next string `json:"next"`
			} `json:"paging"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return fmt.Errorf("decode bounces page: %w", err)
		}
		if len(page.Items) == 0 {
			return nil
		}
		for _, it := range page.Items {
			if err := fn(it.Address, it.Error); err != nil {
				return err
			}
		}
		next = page.Paging.Next
	}
	return nil
}

func (m *Mailgun) post(ctx context.Context, path string, form url.Values) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", m.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("api", m.apiKey)
	return m.do(req)
}

func (m *Mailgun) get(ctx context.Context, rawurl string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", rawurl, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth("api", m.apiKey)
	return m.do(req)
}

func (m *Mailgun) do(req *http.Request) (int, []byte, error) {
	resp, err := m.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body, nil
}
