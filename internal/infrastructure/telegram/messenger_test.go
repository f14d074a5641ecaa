package telegram

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"NewsDigest/internal/infrastructure/blob"
)

type recorded struct {
	path    string
	fields  map[string]string
	photo   []byte
	isPhoto bool
}

func newTelegramServer(t *testing.T, status int, body string) (*httptest.Server, *[]recorded, *sync.Mutex) {
	t.Helper()

	var (
		mu    sync.Mutex
		calls []recorded
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{path: r.URL.Path, fields: map[string]string{}}
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
			if err := r.ParseMultipartForm(10 << 20); err != nil {
				t.Errorf("parse multipart: %v", err)
			}
			for k, v := range r.MultipartForm.Value {
				rec.fields[k] = v[0]
			}
			if file, _, err := r.FormFile("photo"); err == nil {
				rec.photo, _ = io.ReadAll(file)
				rec.isPhoto = true
				file.Close()
			}
		} else {
			if err := r.ParseForm(); err != nil {
				t.Errorf("parse form: %v", err)
			}
			for k, v := range r.PostForm {
				rec.fields[k] = v[0]
			}
		}
		mu.Lock()
		calls = append(calls, rec)
		mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, &calls, &mu
}

func TestSendTextUsesHTMLParseMode(t *testing.T) {
	t.Parallel()

	server, calls, _ := newTelegramServer(t, http.StatusOK, `{"ok":true}`)
	m := NewMessenger("TOKEN", "42", server.URL, server.Client(), nil, nil)

	if err := m.SendText(context.Background(), "<b>hello</b>"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if len(*calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(*calls))
	}
	got := (*calls)[0]
	if got.path != "/botTOKEN/sendMessage" {
		t.Fatalf("unexpected path %s", got.path)
	}
	if got.fields["parse_mode"] != "HTML" || got.fields["chat_id"] != "42" || got.fields["text"] != "<b>hello</b>" {
		t.Fatalf("unexpected fields %+v", got.fields)
	}
}

func TestSendTextSplitsLongMessages(t *testing.T) {
	t.Parallel()

	server, calls, _ := newTelegramServer(t, http.StatusOK, `{"ok":true}`)
	m := NewMessenger("T", "1", server.URL, server.Client(), nil, nil)

	line := strings.Repeat("x", 99) + "\n"
	text := strings.Repeat(line, 100) // 10000 runes

	if err := m.SendText(context.Background(), text); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if len(*calls) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(*calls))
	}
	var joined strings.Builder
	for _, c := range *calls {
		if n := utf8.RuneCountInString(c.fields["text"]); n > MaxMessageRunes {
			t.Fatalf("chunk too long: %d", n)
		}
		joined.WriteString(c.fields["text"])
	}
	if joined.String() != text {
		t.Fatalf("chunks do not reassemble the message")
	}
}

func TestSendPhotoUploadsBlobWithCaption(t *testing.T) {
	t.Parallel()

	store, err := blob.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	if err := store.Put(context.Background(), "pic.jpg", strings.NewReader("JPEGDATA"), "image/jpeg"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	server, calls, _ := newTelegramServer(t, http.StatusOK, `{"ok":true}`)
	m := NewMessenger("T", "1", server.URL, server.Client(), store, nil)

	caption := "<b>Q&amp;A</b>\n\n" + strings.Repeat("é", 1000)
	if err := m.SendPhoto(context.Background(), "pic.jpg", caption); err != nil {
		t.Fatalf("SendPhoto: %v", err)
	}
	got := (*calls)[0]
	if !got.isPhoto || string(got.photo) != "JPEGDATA" {
		t.Fatalf("photo not uploaded: %+v", got)
	}
	if got.fields["caption"] != caption || got.fields["parse_mode"] != "HTML" {
		t.Fatalf("caption must be sent unchanged in HTML mode: %q", got.fields["caption"])
	}
}

func TestSendPhotoMissingBlob(t *testing.T) {
	t.Parallel()

	store, err := blob.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	server, calls, _ := newTelegramServer(t, http.StatusOK, `{"ok":true}`)
	m := NewMessenger("T", "1", server.URL, server.Client(), store, nil)

	if err := m.SendPhoto(context.Background(), "missing.jpg", "c"); err == nil {
		t.Fatalf("expected error for missing blob")
	}
	if len(*calls) != 0 {
		t.Fatalf("no request expected, got %d", len(*calls))
	}
}

func TestAPIErrorSurfacesDescription(t *testing.T) {
	t.Parallel()

	server, _, _ := newTelegramServer(t, http.StatusBadRequest, `{"ok":false,"description":"Bad Request: chat not found"}`)
	m := NewMessenger("T", "1", server.URL, server.Client(), nil, nil)

	err := m.SendText(context.Background(), "hi")
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("expected api error with description, got %v", err)
	}
}

func TestMisconfiguredMessenger(t *testing.T) {
	t.Parallel()

	m := NewMessenger("", "", "", nil, nil, nil)
	if err := m.SendText(context.Background(), "hi"); err == nil {
		t.Fatalf("expected misconfiguration error")
	}
}
