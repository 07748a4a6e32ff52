package resolve

import (
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// MarketAddressFromDocument extracts a market contract address from a loosely
// typed item document. The document shape is not guaranteed: the address is
// looked up in the nested "values" object first, preferring keys that mention
// "market", then in a top-level "marketAddress" field. Returns nil when no
// field holds an address.
func MarketAddressFromDocument(doc map[string]interface{}) *common.Address {
	if doc == nil {
		return nil
	}

	if values, ok := doc["values"].(map[string]interface{}); ok {
		keys := make([]string, 0, len(values))
		for key := range values {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			if !strings.Contains(strings.ToLower(key), "market") {
				continue
			}
			if addr := asAddress(values[key]); addr != nil {
				return addr
			}
		}
		for _, key := range keys {
			if addr := asAddress(values[key]); addr != nil {
				return addr
			}
		}
	}

	return asAddress(doc["marketAddress"])
}

func asAddress(value interface{}) *common.Address {
	raw, ok := value.(string)
	if !ok {
		return nil
	}
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return nil
	}
	addr := common.HexToAddress(raw)
	return &addr
}
