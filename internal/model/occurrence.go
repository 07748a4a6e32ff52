package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// OccurrenceKind distinguishes market submissions from disputes.
type OccurrenceKind string

const (
	OccurrenceSubmission OccurrenceKind = "submission"
	OccurrenceDispute    OccurrenceKind = "dispute"
)

// Occurrence groups the registry events that describe one logical happening.
// A transaction carrying both a NewItem and a RequestSubmitted event collapses
// into a single submission occurrence.
type Occurrence struct {
	// Key is the deduplication key: the transaction hash for submissions,
	// the dispute id (or evidence group id) for disputes.
	Key string

	Kind        OccurrenceKind
	BlockNumber uint64
	TxHash      common.Hash

	// HasItemID is false for disputes whose originating item could not be
	// correlated. Such occurrences still produce a degraded notification.
	HasItemID bool
	ItemID    common.Hash

	ContentPointer  string
	DisputeID       *big.Int
	EvidenceGroupID *big.Int

	Events []RegistryEvent
}
