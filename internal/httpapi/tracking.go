package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// 1x1 transparent GIF
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x2c,
	0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02,
	0x02, 0x44, 0x01, 0x00, 0x3b,
}

// OpenPixelURL builds the signed, expiring open-tracking URL for a task.
// The dispatcher does not inject the pixel into outgoing mail: provider-side
// open tracking (the o:tracking-opens flag on Mailgun sends) is the default
// mechanism, and templates that want self-hosted tracking embed this URL in
// an img tag themselves.
func OpenPixelURL(baseURL, signingKey, taskID string, expiry time.Time) string {
	e := strconv.FormatInt(expiry.Unix(), 10)
	return fmt.Sprintf("%s/track/open/%s.gif?e=%s&s=%s",
		strings.TrimRight(baseURL, "/"), taskID, e, pixelSignature(signingKey, taskID, e))
}

func pixelSignature(key, taskID, expiry string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(taskID + ":" + expiry))
	return hex.EncodeToString(mac.Sum(nil))
}

// HandleOpenPixel records an email open. The pixel is always served,
// whatever the URL's validity, so broken links never render as a broken
// image in the mail client.
func (h *Handlers) HandleOpenPixel(w http.ResponseWriter, r *http.Request) {
	taskID := strings.TrimSuffix(chi.URLParam(r, "taskID"), ".gif")
	expiry := r.URL.Query().Get("e")
	sig := r.URL.Query().Get("s")

	defer h.servePixel(w)

	if taskID == "" || expiry == "" || sig == "" {
		return
	}
	want := pixelSignature(h.trackingKey, taskID, expiry)
	if !hmac.Equal([]byte(sig), []byte(want)) {
		return
	}
	exp, err := strconv.ParseInt(expiry, 10, 64)
	if err != nil || h.now().After(time.Unix(exp, 0)) {
		return
	}

	if n, err := h.opens.MarkOpenedByTaskID(r.Context(), taskID, h.now()); err != nil {
		log.Printf("[Pixel] Failed to mark task %s opened: %v", taskID, err)
	} else if n > 0 {
		log.Printf("[Pixel] OPEN task=%s", taskID)
	}
}

func (h *Handlers) servePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Write(pixelGIF)
}
