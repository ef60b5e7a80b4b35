package httpapi

import (
	"errors"
	"fmt"
	"html"
	"log"
	"net/http"

	"github.com/ignite/audience-mailer/internal/service/token"
)

const unsubscribePage = `<!DOCTYPE html><html><body style="font-family:Arial,sans-serif;text-align:center;padding:50px;">
	<h1>%s</h1>
	<p>%s</p>
</body></html>`

// HandleUnsubscribe serves the public unsubscribe page. A bad token
// renders a failure message at 200; the page is for humans, not APIs.
func (h *Handlers) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	tok := r.URL.Query().Get("token")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	err := h.tokens.Unsubscribe(r.Context(), email, tok)
	switch {
	case err == nil:
		fmt.Fprintf(w, unsubscribePage,
			"You have been unsubscribed",
			"You will no longer receive emails from us at "+html.EscapeString(email)+".")
	case errors.Is(err, token.ErrInvalidToken):
		fmt.Fprintf(w, unsubscribePage,
			"Unsubscribe link invalid",
			"This unsubscribe link is invalid or has already been used.")
	default:
		log.Printf("[Unsubscribe] Failed for request: %v", err)
		fmt.Fprintf(w, unsubscribePage,
			"Something went wrong",
			"We could not process your request. Please try again later.")
	}
}
