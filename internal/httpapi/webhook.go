package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/ignite/audience-mailer/internal/domain"
	"github.com/ignite/audience-mailer/internal/pkg/httputil"
)

// mailgunWebhook covers both payload shapes Mailgun delivers: the
// current JSON form with a nested event-data object, and the legacy
// flat form posted as form fields.
type mailgunWebhook struct {
	Signature struct {
		Timestamp string `json:"timestamp"`
		Token     string `json:"token"`
		Signature string `json:"signature"`
	} `json:"signature"`
	EventData struct {
		Event     string `json:"event"`
		Recipient string `json:"recipient"`
		Severity  string `json:"severity"`
		Message   struct {
			Headers struct {
				MessageID string `json:"message-id"`
			} `json:"headers"`
		} `json:"message"`
		DeliveryStatus struct {
			Code    json.Number `json:"code"`
			Message string      `json:"message"`
		} `json:"delivery-status"`
	} `json:"event-data"`
}

// HandleMailgunWebhook verifies and applies one provider event.
// Unrecognized events are acknowledged without processing so the
// provider does not retry them forever.
func (h *Handlers) HandleMailgunWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 5*1024*1024)

	var payload mailgunWebhook
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			httputil.BadRequest(w, "invalid payload")
			return
		}
	} else {
		r.ParseForm()
		payload.Signature.Timestamp = r.PostFormValue("timestamp")
		payload.Signature.Token = r.PostFormValue("token")
		payload.Signature.Signature = r.PostFormValue("signature")
		payload.EventData.Event = r.PostFormValue("event")
		payload.EventData.Recipient = r.PostFormValue("recipient")
		payload.EventData.Severity = r.PostFormValue("severity")
		payload.EventData.Message.Headers.MessageID = r.PostFormValue("Message-Id")
		payload.EventData.DeliveryStatus.Code = json.Number(r.PostFormValue("code"))
		payload.EventData.DeliveryStatus.Message = r.PostFormValue("error")
	}

	if h.verifier != nil && !h.verifier.VerifyWebhookSignature(
		payload.Signature.Timestamp, payload.Signature.Token, payload.Signature.Signature) {
		log.Printf("[Webhook] Rejected payload with bad signature")
		httputil.Unauthorized(w, "invalid signature")
		return
	}

	if payload.EventData.Event == "" {
		httputil.BadRequest(w, "missing event type")
		return
	}

	ev := domain.ProviderEvent{
		Event:         domain.EventType(payload.EventData.Event),
		Recipient:     payload.EventData.Recipient,
		MessageID:     strings.Trim(payload.EventData.Message.Headers.MessageID, "<>"),
		Severity:      domain.Severity(payload.EventData.Severity),
		StatusCode:    payload.EventData.DeliveryStatus.Code.String(),
		StatusMessage: payload.EventData.DeliveryStatus.Message,
	}

	if !ev.Known() {
		httputil.OK(w, map[string]string{"status": "ok"})
		return
	}

	if err := h.reconciler.Apply(r.Context(), ev); err != nil {
		log.Printf("[Webhook] Failed to apply %s event: %v", ev.Event, err)
		httputil.InternalError(w, err)
		return
	}

	httputil.OK(w, map[string]string{"status": "queued"})
}
