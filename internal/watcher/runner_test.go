package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"curatewatch/internal/model"
)

var (
	topicNewItem = common.HexToHash("0xaa01")
	topicRequest = common.HexToHash("0xaa02")
)

// fakeDecoder recognizes two fixed topics; anything else is skipped.
type fakeDecoder struct{}

func (fakeDecoder) Topic0() []common.Hash {
	return []common.Hash{topicNewItem, topicRequest}
}

func (fakeDecoder) Decode(log types.Log) (*model.RegistryEvent, error) {
	if len(log.Topics) < 2 {
		return nil, nil
	}
	event := &model.RegistryEvent{
		BlockNumber: log.BlockNumber,
		TxIndex:     log.TxIndex,
		LogIndex:    log.Index,
		TxHash:      log.TxHash,
		ItemID:      log.Topics[1],
	}
	switch log.Topics[0] {
	case topicNewItem:
		event.Kind = model.KindNewItem
	case topicRequest:
		event.Kind = model.KindRequestSubmitted
	default:
		return nil, nil
	}
	return event, nil
}

type fakeChain struct {
	head  uint64
	logs  []types.Log
	calls []BlockRange
}

func (f *fakeChain) LatestBlockNumber(_ context.Context) (uint64, error) {
	return f.head, nil
}

func (f *fakeChain) FilterLogs(_ context.Context, fromBlock, toBlock uint64, _ common.Address, _ []common.Hash) ([]types.Log, error) {
	f.calls = append(f.calls, BlockRange{From: fromBlock, To: toBlock})
	var out []types.Log
	for _, log := range f.logs {
		if log.BlockNumber >= fromBlock && log.BlockNumber <= toBlock {
			out = append(out, log)
		}
	}
	return out, nil
}

type fakeResolver struct{}

func (fakeResolver) Resolve(_ context.Context, occ model.Occurrence) model.ResolvedMarket {
	return model.ResolvedMarket{ItemID: occ.ItemID}
}

type fakeSender struct {
	notified []model.Occurrence
	failKeys map[string]bool
}

func (f *fakeSender) Notify(_ context.Context, occ model.Occurrence, _ model.ResolvedMarket) (model.NotificationRecord, error) {
	if f.failKeys[occ.Key] {
		return model.NotificationRecord{}, fmt.Errorf("delivery rejected")
	}
	f.notified = append(f.notified, occ)
	return model.NotificationRecord{Key: occ.Key, BlockNumber: occ.BlockNumber}, nil
}

func newItemLog(block uint64, txIndex, logIndex uint, tx string) types.Log {
	return types.Log{
		BlockNumber: block,
		TxIndex:     txIndex,
		Index:       logIndex,
		TxHash:      common.HexToHash(tx),
		Topics:      []common.Hash{topicNewItem, common.HexToHash(tx + "01")},
	}
}

func testRunner(t *testing.T, chain *fakeChain, sender *fakeSender, cfg RunConfig) *Runner {
	t.Helper()
	cursor := NewCursorStore(filepath.Join(t.TempDir(), "cursor.json"))
	return NewRunner(cfg, chain, fakeDecoder{}, NewCorrelator(0), fakeResolver{}, sender, cursor, nil, nil, nil)
}

func TestRunCycleRangeComputation(t *testing.T) {
	// last = 100, head = 100 + confirmations + 5: fetch exactly 101..105.
	chain := &fakeChain{head: 108}
	sender := &fakeSender{}
	start := uint64(101)
	r := testRunner(t, chain, sender, RunConfig{
		Confirmations: 3,
		PollInterval:  time.Second,
		BatchSize:     2,
		StartBlock:    &start,
	})

	if err := r.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}

	want := []BlockRange{{101, 102}, {103, 104}, {105, 105}}
	if len(chain.calls) != len(want) {
		t.Fatalf("calls = %+v", chain.calls)
	}
	for i, call := range chain.calls {
		if call != want[i] {
			t.Fatalf("call %d = %+v, want %+v", i, call, want[i])
		}
	}

	cursor, ok, err := r.cursor.Load()
	if err != nil || !ok {
		t.Fatalf("cursor load: ok=%v err=%v", ok, err)
	}
	if cursor.LastBlock != 105 {
		t.Fatalf("cursor = %d", cursor.LastBlock)
	}
}

func TestRunCycleUpToDate(t *testing.T) {
	chain := &fakeChain{head: 103}
	sender := &fakeSender{}
	start := uint64(101)
	r := testRunner(t, chain, sender, RunConfig{
		Confirmations: 3,
		PollInterval:  time.Second,
		BatchSize:     10,
		StartBlock:    &start,
	})

	if err := r.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if len(chain.calls) != 0 {
		t.Fatalf("expected no log queries, got %+v", chain.calls)
	}
}

func TestRunCycleResumesFromCursor(t *testing.T) {
	chain := &fakeChain{head: 110}
	sender := &fakeSender{}
	cursorPath := filepath.Join(t.TempDir(), "cursor.json")
	if err := NewCursorStore(cursorPath).Save(100); err != nil {
		t.Fatalf("seed cursor: %v", err)
	}

	r := NewRunner(RunConfig{
		Confirmations: 3,
		PollInterval:  time.Second,
		BatchSize:     100,
	}, chain, fakeDecoder{}, NewCorrelator(0), fakeResolver{}, sender, NewCursorStore(cursorPath), nil, nil, nil)

	if err := r.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if len(chain.calls) != 1 || chain.calls[0].From != 101 || chain.calls[0].To != 107 {
		t.Fatalf("calls = %+v", chain.calls)
	}
}

func TestRunCycleOrdersEventsAcrossRanges(t *testing.T) {
	// Logs arrive shuffled within each sub-range; notifications must come out
	// in ascending block-then-log-index order regardless of the split.
	chain := &fakeChain{
		head: 110,
		logs: []types.Log{
			newItemLog(103, 0, 1, "0xc3"),
			newItemLog(101, 0, 0, "0xc1"),
			newItemLog(102, 1, 2, "0xc2"),
			newItemLog(105, 0, 0, "0xc5"),
			newItemLog(104, 2, 0, "0xc4"),
		},
	}
	sender := &fakeSender{}
	start := uint64(101)
	r := testRunner(t, chain, sender, RunConfig{
		Confirmations: 3,
		PollInterval:  time.Second,
		BatchSize:     2,
		StartBlock:    &start,
	})

	if err := r.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}

	if len(sender.notified) != 5 {
		t.Fatalf("notified %d occurrences", len(sender.notified))
	}
	for i := 1; i < len(sender.notified); i++ {
		if sender.notified[i].BlockNumber < sender.notified[i-1].BlockNumber {
			t.Fatalf("out of order: %d before %d",
				sender.notified[i-1].BlockNumber, sender.notified[i].BlockNumber)
		}
	}
}

func TestRunCycleDeliveryFailureIsContained(t *testing.T) {
	chain := &fakeChain{
		head: 110,
		logs: []types.Log{
			newItemLog(101, 0, 0, "0xc1"),
			newItemLog(102, 0, 0, "0xc2"),
		},
	}
	sender := &fakeSender{failKeys: map[string]bool{common.HexToHash("0xc1").Hex(): true}}
	start := uint64(101)
	r := testRunner(t, chain, sender, RunConfig{
		Confirmations: 3,
		PollInterval:  time.Second,
		BatchSize:     100,
		StartBlock:    &start,
	})

	if err := r.RunCycle(context.Background()); err != nil {
		t.Fatalf("delivery failure must not fail the cycle: %v", err)
	}
	if len(sender.notified) != 1 {
		t.Fatalf("notified %d occurrences", len(sender.notified))
	}

	cursor, _, _ := r.cursor.Load()
	if cursor.LastBlock != 107 {
		t.Fatalf("cursor = %d", cursor.LastBlock)
	}
}

func TestRunCyclePersistFailureIsFatal(t *testing.T) {
	chain := &fakeChain{head: 110, logs: []types.Log{newItemLog(101, 0, 0, "0xc1")}}
	sender := &fakeSender{}
	start := uint64(101)

	// A cursor path pointing at a directory cannot be renamed over.
	dir := t.TempDir()
	r := NewRunner(RunConfig{
		Confirmations: 3,
		PollInterval:  time.Second,
		BatchSize:     100,
		StartBlock:    &start,
	}, chain, fakeDecoder{}, NewCorrelator(0), fakeResolver{}, sender, NewCursorStore(dir), nil, nil, nil)

	err := r.RunCycle(context.Background())
	if err == nil {
		t.Fatal("expected a persist error")
	}
	if !strings.Contains(err.Error(), "persist cursor") {
		t.Fatalf("unexpected error: %v", err)
	}
}
