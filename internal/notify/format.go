package notify

import (
	"html"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"curatewatch/internal/model"
)

// LinkSet holds the URL bases used to build deep links. Bases are joined with
// a single slash regardless of trailing slashes in configuration.
type LinkSet struct {
	ExplorerTxBase string
	SeerMarketBase string
	CurateBase     string
	Registry       common.Address
}

// FormatMessage renders the HTML alert for one occurrence. Unresolved
// metadata drops the corresponding line instead of failing.
func FormatMessage(occ model.Occurrence, market model.ResolvedMarket, links LinkSet) string {
	var b strings.Builder

	switch occ.Kind {
	case model.OccurrenceDispute:
		b.WriteString("A market verification has been challenged.")
	default:
		b.WriteString("A new market has been submitted for verification.")
	}

	if market.MarketName != "" {
		b.WriteString("\nMarket: <b>")
		b.WriteString(html.EscapeString(market.MarketName))
		b.WriteString("</b>")
	}

	if market.MarketAddress != nil {
		b.WriteString("\nSeer: <a href=\"")
		b.WriteString(joinURL(links.SeerMarketBase, market.MarketAddress.Hex()))
		b.WriteString("\">check here</a>")
	}

	b.WriteString("\nCurate: <a href=\"")
	if occ.HasItemID {
		b.WriteString(joinURL(links.CurateBase, links.Registry.Hex(), occ.ItemID.Hex()))
	} else {
		b.WriteString(joinURL(links.CurateBase, links.Registry.Hex()))
	}
	b.WriteString("\">check here</a>")

	b.WriteString("\nTransaction: <a href=\"")
	b.WriteString(joinURL(links.ExplorerTxBase, occ.TxHash.Hex()))
	b.WriteString("\">explorer</a>")

	return b.String()
}

func joinURL(base string, parts ...string) string {
	url := strings.TrimRight(base, "/")
	for _, part := range parts {
		url += "/" + strings.Trim(part, "/")
	}
	return url
}
