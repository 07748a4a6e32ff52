package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind identifies a decoded registry event type.
type EventKind string

const (
	KindNewItem          EventKind = "NewItem"
	KindRequestSubmitted EventKind = "RequestSubmitted"
	KindDispute          EventKind = "Dispute"
)

// RegistryEvent is a registry log decoded into its typed form.
type RegistryEvent struct {
	Kind        EventKind
	BlockNumber uint64
	TxIndex     uint
	LogIndex    uint
	TxHash      common.Hash

	// ItemID is zero for Dispute events, which do not carry one.
	ItemID common.Hash

	// ContentPointer is the IPFS path carried by NewItem.
	ContentPointer string
	AddedDirectly  bool

	// EvidenceGroupID links a dispute back to the request that opened it.
	// Set for RequestSubmitted and Dispute.
	EvidenceGroupID *big.Int

	DisputeID  *big.Int
	Arbitrator common.Address
}
