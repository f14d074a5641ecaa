package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"
	"unicode/utf8"

	"NewsDigest/internal/ports"
)

const (
	// MaxMessageRunes is the Bot API limit for sendMessage text.
	MaxMessageRunes = 4096

	defaultAPIBase = "https://api.telegram.org"
)

// Messenger posts digest messages to a Telegram chat via the Bot API.
type Messenger struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
	blobs    ports.BlobStore
	logger   *slog.Logger
}

var _ ports.Messenger = (*Messenger)(nil)

// APIError carries the Bot API failure description.
type APIError struct {
	Method      string
	Status      int
	Description string
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("telegram %s: status %d", e.Method, e.Status)
	}
	return fmt.Sprintf("telegram %s: status %d: %s", e.Method, e.Status, e.Description)
}

// NewMessenger registers bot token and chat identifier. Photos are read from blobs.
func NewMessenger(botToken, chatID, apiBase string, client *http.Client, blobs ports.BlobStore, log *slog.Logger) *Messenger {
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Messenger{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  strings.TrimRight(apiBase, "/"),
		client:   client,
		blobs:    blobs,
		logger:   log,
	}
}

// SendText posts an HTML message, splitting it when it exceeds the message limit.
func (m *Messenger) SendText(ctx context.Context, text string) error {
	if err := m.configured(); err != nil {
		return err
	}
	for _, chunk := range SplitMessage(text, MaxMessageRunes) {
		form := url.Values{}
		form.Set("chat_id", m.chatID)
		form.Set("text", chunk)
		form.Set("parse_mode", "HTML")

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint("sendMessage"), strings.NewReader(form.Encode()))
		if err != nil {
			return fmt.Errorf("new request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if err := m.do(req, "sendMessage"); err != nil {
			return err
		}
	}
	return nil
}

// SendPhoto uploads the named blob with an HTML caption. The caption is sent
// as given; callers bound its visible length before escaping.
func (m *Messenger) SendPhoto(ctx context.Context, name, caption string) error {
	if err := m.configured(); err != nil {
		return err
	}
	if m.blobs == nil {
		return fmt.Errorf("telegram sendPhoto: no blob store")
	}

	src, err := m.blobs.Open(ctx, name)
	if err != nil {
		return fmt.Errorf("open photo %s: %w", name, err)
	}
	defer src.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	fields := map[string]string{
		"chat_id":    m.chatID,
		"caption":    caption,
		"parse_mode": "HTML",
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return fmt.Errorf("write field %s: %w", key, err)
		}
	}
	part, err := writer.CreateFormFile("photo", path.Base(name))
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("copy photo: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint("sendPhoto"), &body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return m.do(req, "sendPhoto")
}

func (m *Messenger) configured() error {
	if m.botToken == "" || m.chatID == "" || m.client == nil {
		return fmt.Errorf("telegram messenger misconfigured")
	}
	return nil
}

func (m *Messenger) endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", m.apiBase, m.botToken, method)
}

func (m *Messenger) do(req *http.Request, method string) error {
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	var payload struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(raw, &payload)

	if resp.StatusCode != http.StatusOK || !payload.OK {
		return &APIError{Method: method, Status: resp.StatusCode, Description: payload.Description}
	}
	if m.logger != nil {
		m.logger.Debug("telegram delivered", "method", method)
	}
	return nil
}

// SplitMessage cuts text into chunks of at most limit runes, preferring line breaks.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var chunks []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
