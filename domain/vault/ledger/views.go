package ledger

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/sashabeton/bitcoinvault/domain/staging"
	"github.com/sashabeton/bitcoinvault/domain/vault/model"
)

type chainView struct {
	shard *ledgerStagingShard
}

// ChainView returns the ledger as staged in stagingArea, without the
// mempool layer. It is the view blocks are validated against.
func (l *Ledger) ChainView(stagingArea *staging.Area) model.EntryLookup {
	return &chainView{shard: l.stagingShard(stagingArea)}
}

func (v *chainView) Entry(outpoint wire.OutPoint) fn.Option[*model.Entry] {
	entry, ok := v.shard.entry(outpoint)
	if !ok {
		return fn.None[*model.Entry]()
	}
	return fn.Some(entry.Clone())
}

func (v *chainView) Alert(txID chainhash.Hash) fn.Option[*model.AlertRecord] {
	alert, ok := v.shard.alert(txID)
	if !ok {
		return fn.None[*model.AlertRecord]()
	}
	return fn.Some(alert.Clone())
}

type mempoolView struct {
	ledger *Ledger
}

// MempoolView returns the committed ledger overlaid with the pending layer.
// It is the view mempool admission is checked against.
func (l *Ledger) MempoolView() model.EntryLookup {
	return &mempoolView{ledger: l}
}

func (v *mempoolView) Entry(outpoint wire.OutPoint) fn.Option[*model.Entry] {
	if entry, ok := v.ledger.entries[outpoint]; ok {
		return fn.Some(entry.Clone())
	}
	if entry, ok := v.ledger.pendingEntries[outpoint]; ok {
		return fn.Some(entry.Clone())
	}
	return fn.None[*model.Entry]()
}

func (v *mempoolView) Alert(txID chainhash.Hash) fn.Option[*model.AlertRecord] {
	if alert, ok := v.ledger.alerts[txID]; ok {
		return fn.Some(alert.Clone())
	}
	if alert, ok := v.ledger.pendingAlerts[txID]; ok {
		return fn.Some(alert.Clone())
	}
	return fn.None[*model.AlertRecord]()
}
