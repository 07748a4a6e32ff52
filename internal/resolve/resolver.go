package resolve

import (
	"context"

	"go.uber.org/zap"

	"curatewatch/internal/model"
)

// Resolver resolves optional market metadata for an occurrence from three
// independently unreliable sources: the content gateway, a read-only contract
// call, and an optional index query. Every path degrades on failure instead
// of blocking delivery.
type Resolver struct {
	gateway *GatewayClient
	caller  ContractCaller
	index   *SubgraphClient
	logger  *zap.Logger
}

// NewResolver builds a resolver. gateway and index may be nil, disabling the
// corresponding path.
func NewResolver(gateway *GatewayClient, caller ContractCaller, index *SubgraphClient, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		gateway: gateway,
		caller:  caller,
		index:   index,
		logger:  logger,
	}
}

// Resolve fills in as much of the market metadata as the sources allow.
// Unresolved fields stay empty; Resolve never fails.
func (r *Resolver) Resolve(ctx context.Context, occ model.Occurrence) model.ResolvedMarket {
	resolved := model.ResolvedMarket{ItemID: occ.ItemID}

	if occ.ContentPointer != "" && r.gateway != nil {
		doc, err := r.gateway.FetchDocument(ctx, occ.ContentPointer)
		if err != nil {
			r.logger.Warn("item document fetch failed",
				zap.String("pointer", occ.ContentPointer),
				zap.Error(err))
		} else if addr := MarketAddressFromDocument(doc); addr != nil {
			resolved.MarketAddress = addr
		}
	}

	if resolved.MarketAddress == nil && occ.HasItemID && r.index != nil {
		addr, err := r.index.MarketForItem(ctx, occ.ItemID)
		if err != nil {
			r.logger.Warn("index lookup failed",
				zap.String("item_id", occ.ItemID.Hex()),
				zap.Error(err))
		} else if addr != nil {
			resolved.MarketAddress = addr
		}
	}

	if resolved.MarketAddress != nil && r.caller != nil {
		name, err := FetchMarketName(ctx, r.caller, *resolved.MarketAddress)
		if err != nil {
			r.logger.Warn("market name fetch failed",
				zap.String("market", resolved.MarketAddress.Hex()),
				zap.Error(err))
		} else {
			resolved.MarketName = name
		}
	}

	return resolved
}
