package ledger

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/sashabeton/bitcoinvault/domain/staging"
	"github.com/sashabeton/bitcoinvault/domain/vault/model"
	"github.com/sashabeton/bitcoinvault/infrastructure/db/database"
)

// ledgerStagingShard holds the changes one block makes to the ledger. A nil
// value in entries or alerts deletes the record.
type ledgerStagingShard struct {
	ledger *Ledger

	blockHash     *chainhash.Hash
	height        uint32
	disconnecting bool
	undo          *blockUndo

	entries     map[wire.OutPoint]*model.Entry
	alerts      map[chainhash.Hash]*model.AlertRecord
	confirmedAt map[uint32][]chainhash.Hash
}

func (l *Ledger) stagingShard(stagingArea *staging.Area) *ledgerStagingShard {
	return stagingArea.GetOrCreateShard("VaultLedger", func() staging.Shard {
		return &ledgerStagingShard{
			ledger:      l,
			entries:     make(map[wire.OutPoint]*model.Entry),
			alerts:      make(map[chainhash.Hash]*model.AlertRecord),
			confirmedAt: make(map[uint32][]chainhash.Hash),
		}
	}).(*ledgerStagingShard)
}

func (lss *ledgerStagingShard) entry(outpoint wire.OutPoint) (*model.Entry, bool) {
	if entry, ok := lss.entries[outpoint]; ok {
		return entry, entry != nil
	}
	entry, ok := lss.ledger.entries[outpoint]
	return entry, ok
}

func (lss *ledgerStagingShard) alert(txID chainhash.Hash) (*model.AlertRecord, bool) {
	if alert, ok := lss.alerts[txID]; ok {
		return alert, alert != nil
	}
	alert, ok := lss.ledger.alerts[txID]
	return alert, ok
}

func (lss *ledgerStagingShard) confirmedTxIDs(height uint32) []chainhash.Hash {
	if txIDs, ok := lss.confirmedAt[height]; ok {
		return txIDs
	}
	return lss.ledger.confirmedAt[height]
}

func (lss *ledgerStagingShard) stageEntry(outpoint wire.OutPoint, entry *model.Entry) {
	if lss.undo != nil {
		prior, _ := lss.entry(outpoint)
		lss.undo.rememberEntry(outpoint, prior)
	}
	lss.entries[outpoint] = entry
}

func (lss *ledgerStagingShard) stageAlert(txID chainhash.Hash, alert *model.AlertRecord) {
	if lss.undo != nil {
		prior, _ := lss.alert(txID)
		lss.undo.rememberAlert(txID, prior)
	}
	lss.alerts[txID] = alert
}

func (lss *ledgerStagingShard) Commit(dbTx database.Transaction) error {
	for outpoint, entry := range lss.entries {
		key := entriesBucket.Key(outpointKey(outpoint))
		if entry == nil {
			err := dbTx.Delete(key)
			if err != nil {
				return err
			}
			continue
		}
		entryBytes, err := serializeEntry(entry)
		if err != nil {
			return err
		}
		err = dbTx.Put(key, entryBytes)
		if err != nil {
			return err
		}
	}

	for txID, alert := range lss.alerts {
		key := alertsBucket.Key(txID[:])
		if alert == nil {
			err := dbTx.Delete(key)
			if err != nil {
				return err
			}
			continue
		}
		alertBytes, err := serializeAlert(alert)
		if err != nil {
			return err
		}
		err = dbTx.Put(key, alertBytes)
		if err != nil {
			return err
		}
	}

	for height, txIDs := range lss.confirmedAt {
		key := maturityBucket.Key(heightKey(height))
		if txIDs == nil {
			err := dbTx.Delete(key)
			if err != nil {
				return err
			}
			continue
		}
		err := dbTx.Put(key, serializeTxIDs(txIDs))
		if err != nil {
			return err
		}
	}

	if lss.blockHash == nil {
		return nil
	}
	undoKey := undoBucket.Key(lss.blockHash[:])
	if lss.disconnecting {
		return dbTx.Delete(undoKey)
	}
	undoBytes, err := serializeBlockUndo(lss.undo)
	if err != nil {
		return err
	}
	return dbTx.Put(undoKey, undoBytes)
}

func (lss *ledgerStagingShard) OnCommitted() {
	for outpoint, entry := range lss.entries {
		if entry == nil {
			delete(lss.ledger.entries, outpoint)
			continue
		}
		lss.ledger.entries[outpoint] = entry
	}
	for txID, alert := range lss.alerts {
		if alert == nil {
			delete(lss.ledger.alerts, txID)
			continue
		}
		lss.ledger.alerts[txID] = alert
	}
	for height, txIDs := range lss.confirmedAt {
		if txIDs == nil {
			delete(lss.ledger.confirmedAt, height)
			continue
		}
		lss.ledger.confirmedAt[height] = txIDs
	}
}
