package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func pixelHandlers(opens *fakeOpens) *Handlers {
	return NewHandlers(&fakeApplier{}, &fakeVerifier{ok: true}, &fakeUnsub{}, opens, &fakeExpander{}, fakeMerger{}, nil, "pixel-key")
}

func TestOpenPixelMarksTask(t *testing.T) {
	opens := &fakeOpens{}
	router := NewRouter(pixelHandlers(opens))

	u := OpenPixelURL("https://news.example.com", "pixel-key", "task-1", time.Now().Add(time.Hour))
	path := strings.TrimPrefix(u, "https://news.example.com")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "image/gif" {
		t.Errorf("unexpected content type %q", rec.Header().Get("Content-Type"))
	}
	if !bytes.Equal(rec.Body.Bytes(), pixelGIF) {
		t.Error("response is not the pixel")
	}
	if len(opens.marked) != 1 || opens.marked[0] != "task-1" {
		t.Errorf("task not marked opened: %v", opens.marked)
	}
}

func TestOpenPixelExpiredURL(t *testing.T) {
	opens := &fakeOpens{}
	router := NewRouter(pixelHandlers(opens))

	u := OpenPixelURL("https://news.example.com", "pixel-key", "task-1", time.Now().Add(-time.Minute))
	path := strings.TrimPrefix(u, "https://news.example.com")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))

	if rec.Code != http.StatusOK || !bytes.Equal(rec.Body.Bytes(), pixelGIF) {
		t.Fatal("pixel must be served even for expired URLs")
	}
	if len(opens.marked) != 0 {
		t.Error("expired URL must not mark the task")
	}
}

func TestOpenPixelForgedSignature(t *testing.T) {
	opens := &fakeOpens{}
	router := NewRouter(pixelHandlers(opens))

	u := OpenPixelURL("https://news.example.com", "other-key", "task-1", time.Now().Add(time.Hour))
	path := strings.TrimPrefix(u, "https://news.example.com")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))

	if rec.Code != http.StatusOK || !bytes.Equal(rec.Body.Bytes(), pixelGIF) {
		t.Fatal("pixel must be served even for forged URLs")
	}
	if len(opens.marked) != 0 {
		t.Error("forged signature must not mark the task")
	}
}

func TestOpenPixelGarbage(t *testing.T) {
	opens := &fakeOpens{}
	router := NewRouter(pixelHandlers(opens))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/track/open/whatever.gif", nil))

	if rec.Code != http.StatusOK || !bytes.Equal(rec.Body.Bytes(), pixelGIF) {
		t.Fatal("pixel must be served unconditionally")
	}
	if len(opens.marked) != 0 {
		t.Error("unsigned URL must not mark anything")
	}
}
