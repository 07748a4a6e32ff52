package registry

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"curatewatch/internal/model"
)

// MalformedEventError reports a log that matched a known signature but could
// not be decoded. Callers log it and skip the single entry.
type MalformedEventError struct {
	Name     string
	TxHash   common.Hash
	LogIndex uint
	Err      error
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed %s log %s:%d: %v", e.Name, e.TxHash.Hex(), e.LogIndex, e.Err)
}

func (e *MalformedEventError) Unwrap() error { return e.Err }

// Decoder classifies raw registry logs by topic0 and decodes the three known
// event signatures into typed events.
type Decoder struct {
	abi              abi.ABI
	newItemID        common.Hash
	requestSubmitted common.Hash
	dispute          common.Hash
}

// NewDecoder builds a decoder from the registry ABI.
func NewDecoder() (*Decoder, error) {
	parsed, err := RegistryABI()
	if err != nil {
		return nil, fmt.Errorf("parse registry abi: %w", err)
	}
	return &Decoder{
		abi:              parsed,
		newItemID:        parsed.Events["NewItem"].ID,
		requestSubmitted: parsed.Events["RequestSubmitted"].ID,
		dispute:          parsed.Events["Dispute"].ID,
	}, nil
}

// Topic0 returns the event signature hashes the decoder recognizes, for use
// in log query filters.
func (d *Decoder) Topic0() []common.Hash {
	return []common.Hash{d.newItemID, d.requestSubmitted, d.dispute}
}

// Decode turns a raw log into a typed event. Logs matching none of the known
// signatures return (nil, nil) and are skipped silently.
func (d *Decoder) Decode(log types.Log) (*model.RegistryEvent, error) {
	if len(log.Topics) == 0 {
		return nil, nil
	}
	switch log.Topics[0] {
	case d.newItemID:
		return d.decodeNewItem(log)
	case d.requestSubmitted:
		return d.decodeRequestSubmitted(log)
	case d.dispute:
		return d.decodeDispute(log)
	}
	return nil, nil
}

func (d *Decoder) decodeNewItem(log types.Log) (*model.RegistryEvent, error) {
	if len(log.Topics) != 2 {
		return nil, d.malformed("NewItem", log, fmt.Errorf("expected 2 topics, got %d", len(log.Topics)))
	}
	values, err := d.abi.Unpack("NewItem", log.Data)
	if err != nil {
		return nil, d.malformed("NewItem", log, err)
	}
	pointer, ok := values[0].(string)
	if !ok {
		return nil, d.malformed("NewItem", log, fmt.Errorf("unexpected _data type %T", values[0]))
	}
	added, ok := values[1].(bool)
	if !ok {
		return nil, d.malformed("NewItem", log, fmt.Errorf("unexpected _addedDirectly type %T", values[1]))
	}

	event := base(model.KindNewItem, log)
	event.ItemID = log.Topics[1]
	event.ContentPointer = pointer
	event.AddedDirectly = added
	return event, nil
}

func (d *Decoder) decodeRequestSubmitted(log types.Log) (*model.RegistryEvent, error) {
	if len(log.Topics) != 2 {
		return nil, d.malformed("RequestSubmitted", log, fmt.Errorf("expected 2 topics, got %d", len(log.Topics)))
	}
	values, err := d.abi.Unpack("RequestSubmitted", log.Data)
	if err != nil {
		return nil, d.malformed("RequestSubmitted", log, err)
	}
	group, ok := values[0].(*big.Int)
	if !ok {
		return nil, d.malformed("RequestSubmitted", log, fmt.Errorf("unexpected _evidenceGroupID type %T", values[0]))
	}

	event := base(model.KindRequestSubmitted, log)
	event.ItemID = log.Topics[1]
	event.EvidenceGroupID = group
	return event, nil
}

func (d *Decoder) decodeDispute(log types.Log) (*model.RegistryEvent, error) {
	if len(log.Topics) != 3 {
		return nil, d.malformed("Dispute", log, fmt.Errorf("expected 3 topics, got %d", len(log.Topics)))
	}
	values, err := d.abi.Unpack("Dispute", log.Data)
	if err != nil {
		return nil, d.malformed("Dispute", log, err)
	}
	group, ok := values[1].(*big.Int)
	if !ok {
		return nil, d.malformed("Dispute", log, fmt.Errorf("unexpected _evidenceGroupID type %T", values[1]))
	}

	event := base(model.KindDispute, log)
	event.Arbitrator = common.BytesToAddress(log.Topics[1].Bytes())
	event.DisputeID = new(big.Int).SetBytes(log.Topics[2].Bytes())
	event.EvidenceGroupID = group
	return event, nil
}

func (d *Decoder) malformed(name string, log types.Log, err error) error {
	return &MalformedEventError{Name: name, TxHash: log.TxHash, LogIndex: log.Index, Err: err}
}

func base(kind model.EventKind, log types.Log) *model.RegistryEvent {
	return &model.RegistryEvent{
		Kind:        kind,
		BlockNumber: log.BlockNumber,
		TxIndex:     log.TxIndex,
		LogIndex:    log.Index,
		TxHash:      log.TxHash,
	}
}
