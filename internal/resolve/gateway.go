package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxDocumentBytes = 1 << 20

// GatewayClient fetches content-addressed JSON documents over an IPFS-style
// HTTP gateway with a bounded timeout.
type GatewayClient struct {
	baseURL string
	client  *http.Client
}

// NewGatewayClient builds a gateway client for the given base URL.
func NewGatewayClient(baseURL string, timeout time.Duration) *GatewayClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GatewayClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// FetchDocument retrieves the document behind a content pointer and parses it
// as loosely typed JSON.
func (g *GatewayClient) FetchDocument(ctx context.Context, pointer string) (map[string]interface{}, error) {
	pointer = strings.TrimSpace(pointer)
	if pointer == "" {
		return nil, fmt.Errorf("empty content pointer")
	}
	url := g.baseURL + "/" + strings.TrimLeft(pointer, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}
