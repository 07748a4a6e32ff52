package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"

	"curatewatch/internal/model"
)

func testLinks() LinkSet {
	return LinkSet{
		ExplorerTxBase: "https://gnosisscan.io/tx/",
		SeerMarketBase: "https://app.seer.pm/markets/100/",
		CurateBase:     "https://curate.kleros.io/tcr/100/",
		Registry:       common.HexToAddress("0x5aAf9E23a11440f8C1Ad6D2E2e5109C7e52CC672"),
	}
}

type sentCall struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
	Parse  string `json:"parse_mode"`
}

func TestNotifyFollowsChatMigration(t *testing.T) {
	var calls []sentCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var call sentCall
		if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		calls = append(calls, call)

		if call.ChatID == "100" {
			w.Write([]byte(`{"ok": false, "description": "group upgraded", "parameters": {"migrate_to_chat_id": -100200300}}`))
			return
		}
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	n := NewNotifier(NewClient(srv.URL, "token", time.Second), "100", testLinks(), nil)
	occ := model.Occurrence{
		Key:       "0xaaaa",
		Kind:      model.OccurrenceSubmission,
		TxHash:    common.HexToHash("0xaaaa"),
		HasItemID: true,
		ItemID:    common.HexToHash("0x01"),
	}

	record, err := n.Notify(context.Background(), occ, model.ResolvedMarket{})
	if err != nil {
		t.Fatalf("notify failed: %v", err)
	}

	if len(calls) != 2 {
		t.Fatalf("expected 2 sends, got %d", len(calls))
	}
	if calls[0].ChatID != "100" || calls[1].ChatID != "-100200300" {
		t.Fatalf("chat ids = %s, %s", calls[0].ChatID, calls[1].ChatID)
	}
	if calls[0].Text != calls[1].Text {
		t.Fatal("resend must carry the identical message")
	}
	if n.ChatID() != "-100200300" {
		t.Fatalf("chat id not pinned: %s", n.ChatID())
	}
	if record.ChatID != "-100200300" {
		t.Fatalf("record chat id = %s", record.ChatID)
	}

	// Subsequent sends go straight to the migrated chat.
	if _, err := n.Notify(context.Background(), occ, model.ResolvedMarket{}); err != nil {
		t.Fatalf("second notify failed: %v", err)
	}
	if calls[2].ChatID != "-100200300" {
		t.Fatalf("subsequent send used %s", calls[2].ChatID)
	}
}

func TestNotifyHonorsRetryAfter(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"ok": false, "description": "Too Many Requests: retry after 1", "parameters": {"retry_after": 1}}`))
			return
		}
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	n := NewNotifier(NewClient(srv.URL, "token", 5*time.Second), "100", testLinks(), nil)

	start := time.Now()
	_, err := n.Notify(context.Background(), model.Occurrence{Key: "0xcc"}, model.ResolvedMarket{})
	if err != nil {
		t.Fatalf("notify failed: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 sends, got %d", calls)
	}
	if time.Since(start) < time.Second {
		t.Fatal("resend went out before the advertised wait")
	}
}

func TestNotifyRateLimitedTwiceFails(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"ok": false, "description": "Too Many Requests: retry after 1", "parameters": {"retry_after": 1}}`))
	}))
	defer srv.Close()

	n := NewNotifier(NewClient(srv.URL, "token", 5*time.Second), "100", testLinks(), nil)

	_, err := n.Notify(context.Background(), model.Occurrence{Key: "0xdd"}, model.ResolvedMarket{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.RetryAfter != 1 {
		t.Fatalf("retry_after = %d", apiErr.RetryAfter)
	}
	// One bounded retry only.
	if calls != 2 {
		t.Fatalf("expected 2 sends, got %d", calls)
	}
}

func TestNotifyRejectedReturnsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"ok": false, "description": "bot was kicked from the group chat"}`))
	}))
	defer srv.Close()

	n := NewNotifier(NewClient(srv.URL, "token", time.Second), "100", testLinks(), nil)

	_, err := n.Notify(context.Background(), model.Occurrence{Key: "0xbb"}, model.ResolvedMarket{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d", apiErr.StatusCode)
	}
	if n.ChatID() != "100" {
		t.Fatalf("chat id changed on rejection: %s", n.ChatID())
	}
}

func TestSendMessageTruncates(t *testing.T) {
	var got sentCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "token", time.Second)
	long := make([]byte, maxMessageLength+500)
	for i := range long {
		long[i] = 'x'
	}
	if err := c.SendMessage(context.Background(), "100", string(long)); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if len(got.Text) > maxMessageLength+32 {
		t.Fatalf("message not truncated: %d bytes", len(got.Text))
	}
	if got.Text[len(got.Text)-len("… (truncated)"):] != "… (truncated)" {
		t.Fatal("missing truncation marker")
	}
	if got.Parse != "HTML" {
		t.Fatalf("parse mode = %q", got.Parse)
	}
}

func TestSendMessageTruncatesOnRuneBoundary(t *testing.T) {
	var got sentCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "token", time.Second)
	// One leading byte misaligns every following 3-byte rune against the
	// byte limit, so a naive cut would split a rune.
	long := "x" + strings.Repeat("€", maxMessageLength)
	if err := c.SendMessage(context.Background(), "100", long); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if !utf8.ValidString(got.Text) {
		t.Fatal("truncated message is not valid UTF-8")
	}
	if strings.ContainsRune(got.Text, utf8.RuneError) {
		t.Fatalf("replacement rune leaked into message: %q", got.Text[:64])
	}
	if !strings.HasSuffix(got.Text, "… (truncated)") {
		t.Fatal("missing truncation marker")
	}
}
