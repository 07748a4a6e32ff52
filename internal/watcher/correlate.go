package watcher

import (
	"github.com/ethereum/go-ethereum/common"

	"curatewatch/internal/model"
)

const defaultMaxGroups = 4096

// Correlator groups decoded events into logical occurrences, enforces the
// at-most-one-notification-per-key invariant, and maps disputes back to the
// item they challenge. The seen set lives for the process lifetime; the
// evidence-group index is retained across cycles with bounded FIFO eviction
// so an old dispute degrades instead of growing memory without bound.
type Correlator struct {
	seen map[string]struct{}

	groups     map[string]common.Hash
	groupOrder []string
	maxGroups  int
}

// NewCorrelator builds a correlator retaining at most maxGroups evidence-group
// mappings. maxGroups <= 0 selects the default.
func NewCorrelator(maxGroups int) *Correlator {
	if maxGroups <= 0 {
		maxGroups = defaultMaxGroups
	}
	return &Correlator{
		seen:      make(map[string]struct{}),
		groups:    make(map[string]common.Hash),
		maxGroups: maxGroups,
	}
}

// Collect folds a batch of ordered events into occurrences that have not been
// notified yet. Events sharing a deduplication key collapse into one
// occurrence; keys already in the seen set are dropped. Returned occurrences
// are marked seen immediately: a later delivery failure is not retried.
func (c *Correlator) Collect(events []model.RegistryEvent) []model.Occurrence {
	// Record correlation hints first so a dispute can resolve against a
	// request from the same batch regardless of log order.
	txItems := make(map[common.Hash]common.Hash)
	for _, ev := range events {
		if ev.ItemID == (common.Hash{}) {
			continue
		}
		if _, ok := txItems[ev.TxHash]; !ok {
			txItems[ev.TxHash] = ev.ItemID
		}
		if ev.EvidenceGroupID != nil {
			c.rememberGroup(ev.EvidenceGroupID.String(), ev.ItemID)
		}
	}

	occurrences := make([]model.Occurrence, 0)
	index := make(map[string]int)

	for _, ev := range events {
		key := occurrenceKey(ev)
		if _, dup := c.seen[key]; dup {
			continue
		}
		if i, ok := index[key]; ok {
			mergeEvent(&occurrences[i], ev)
			continue
		}

		occ := model.Occurrence{
			Key:             key,
			Kind:            model.OccurrenceSubmission,
			BlockNumber:     ev.BlockNumber,
			TxHash:          ev.TxHash,
			ContentPointer:  ev.ContentPointer,
			EvidenceGroupID: ev.EvidenceGroupID,
			Events:          []model.RegistryEvent{ev},
		}
		if ev.Kind == model.KindDispute {
			occ.Kind = model.OccurrenceDispute
			occ.DisputeID = ev.DisputeID
			occ.ItemID, occ.HasItemID = c.lookupItem(ev, txItems)
		} else {
			occ.ItemID = ev.ItemID
			occ.HasItemID = true
		}

		index[key] = len(occurrences)
		occurrences = append(occurrences, occ)
	}

	for i := range occurrences {
		c.seen[occurrences[i].Key] = struct{}{}
	}
	return occurrences
}

// SeenCount reports how many keys have been notified this run.
func (c *Correlator) SeenCount() int {
	return len(c.seen)
}

func (c *Correlator) lookupItem(ev model.RegistryEvent, txItems map[common.Hash]common.Hash) (common.Hash, bool) {
	if ev.EvidenceGroupID != nil {
		if itemID, ok := c.groups[ev.EvidenceGroupID.String()]; ok {
			return itemID, true
		}
	}
	if itemID, ok := txItems[ev.TxHash]; ok {
		return itemID, true
	}
	return common.Hash{}, false
}

func (c *Correlator) rememberGroup(group string, itemID common.Hash) {
	if _, ok := c.groups[group]; ok {
		c.groups[group] = itemID
		return
	}
	c.groups[group] = itemID
	c.groupOrder = append(c.groupOrder, group)
	for len(c.groupOrder) > c.maxGroups {
		oldest := c.groupOrder[0]
		c.groupOrder = c.groupOrder[1:]
		delete(c.groups, oldest)
	}
}

func occurrenceKey(ev model.RegistryEvent) string {
	if ev.Kind == model.KindDispute {
		if ev.DisputeID != nil {
			return "dispute:" + ev.DisputeID.String()
		}
		if ev.EvidenceGroupID != nil {
			return "dispute:group:" + ev.EvidenceGroupID.String()
		}
	}
	return ev.TxHash.Hex()
}

func mergeEvent(occ *model.Occurrence, ev model.RegistryEvent) {
	occ.Events = append(occ.Events, ev)
	// NewItem is the richer event: it carries the content pointer.
	if occ.ContentPointer == "" && ev.ContentPointer != "" {
		occ.ContentPointer = ev.ContentPointer
	}
	if !occ.HasItemID && ev.ItemID != (common.Hash{}) {
		occ.ItemID = ev.ItemID
		occ.HasItemID = true
	}
	if occ.EvidenceGroupID == nil && ev.EvidenceGroupID != nil {
		occ.EvidenceGroupID = ev.EvidenceGroupID
	}
}
