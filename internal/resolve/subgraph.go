package resolve

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const marketByItemQuery = `query MarketByItem($itemID: String!) {
  litems(where: {itemID: $itemID}, first: 1) {
    key0
  }
}`

// SubgraphClient queries a GraphQL index for the market behind an item. The
// registry stores the market address as the item's first column, so the query
// reads key0.
type SubgraphClient struct {
	endpoint string
	client   *http.Client
}

// NewSubgraphClient builds a subgraph client for the given endpoint.
func NewSubgraphClient(endpoint string, timeout time.Duration) *SubgraphClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SubgraphClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// MarketForItem returns the market address recorded for the item id, or nil
// when the index has no entry.
func (s *SubgraphClient) MarketForItem(ctx context.Context, itemID common.Hash) (*common.Address, error) {
	payload := map[string]interface{}{
		"query": marketByItemQuery,
		"variables": map[string]string{
			"itemID": strings.ToLower(itemID.Hex()),
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("index status %d", resp.StatusCode)
	}

	var result struct {
		Data struct {
			LItems []struct {
				Key0 string `json:"key0"`
			} `json:"litems"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode index response: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("index error: %s", result.Errors[0].Message)
	}
	if len(result.Data.LItems) == 0 {
		return nil, nil
	}
	return asAddress(result.Data.LItems[0].Key0), nil
}
