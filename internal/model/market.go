package model

import "github.com/ethereum/go-ethereum/common"

// ResolvedMarket carries the optional metadata resolved for an occurrence.
// Either field may stay unresolved; absence degrades the notification and is
// never an error.
type ResolvedMarket struct {
	ItemID        common.Hash
	MarketAddress *common.Address
	MarketName    string
}
