package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"
)

// DefaultAPIBase is the production Telegram Bot API endpoint.
const DefaultAPIBase = "https://api.telegram.org"

// Messages longer than this are truncated before sending; the Bot API caps
// text at 4096 characters and links need headroom.
const maxMessageLength = 3900

// APIError is a rejected Bot API call. MigrateToChatID is set when the
// destination chat was migrated and the send must be repeated against the
// new identifier; that case is a signal, not a failure.
type APIError struct {
	StatusCode      int
	Description     string
	MigrateToChatID int64
	RetryAfter      int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram api error (%d): %s", e.StatusCode, e.Description)
}

// Client talks to the Telegram Bot API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient builds a Bot API client. baseURL is overridable for tests.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIBase
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// SendMessage posts a sendMessage call with HTML parse mode.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	if len(text) > maxMessageLength {
		cut := maxMessageLength
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "\n… (truncated)"
	}

	payload := map[string]interface{}{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	url := c.baseURL + "/bot" + c.token + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
		Parameters  struct {
			MigrateToChatID int64 `json:"migrate_to_chat_id"`
			RetryAfter      int   `json:"retry_after"`
		} `json:"parameters"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		if resp.StatusCode >= 300 {
			return &APIError{StatusCode: resp.StatusCode, Description: "unreadable response"}
		}
		return fmt.Errorf("decode response: %w", err)
	}

	if result.OK {
		return nil
	}
	return &APIError{
		StatusCode:      resp.StatusCode,
		Description:     result.Description,
		MigrateToChatID: result.Parameters.MigrateToChatID,
		RetryAfter:      result.Parameters.RetryAfter,
	}
}
