package feeattribution

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/sashabeton/bitcoinvault/domain/staging"
	"github.com/sashabeton/bitcoinvault/infrastructure/db/database"
)

type feeStagingShard struct {
	ledger *Ledger

	blockHash     *chainhash.Hash
	height        uint32
	disconnecting bool
	undo          *blockUndo

	records map[chainhash.Hash]*Record
}

func (l *Ledger) stagingShard(stagingArea *staging.Area) *feeStagingShard {
	return stagingArea.GetOrCreateShard("FeeAttribution", func() staging.Shard {
		return &feeStagingShard{
			ledger:  l,
			records: make(map[chainhash.Hash]*Record),
		}
	}).(*feeStagingShard)
}

func (fss *feeStagingShard) record(txID chainhash.Hash) (*Record, bool) {
	if record, ok := fss.records[txID]; ok {
		return record, record != nil
	}
	record, ok := fss.ledger.records[txID]
	return record, ok
}

func (fss *feeStagingShard) stage(txID chainhash.Hash, record *Record) {
	prior, _ := fss.record(txID)
	fss.undo.remember(txID, prior)
	fss.records[txID] = record
}

func (fss *feeStagingShard) Commit(dbTx database.Transaction) error {
	for txID, record := range fss.records {
		key := feesBucket.Key(txID[:])
		if record == nil {
			err := dbTx.Delete(key)
			if err != nil {
				return err
			}
			continue
		}
		recordBytes, err := serializeRecord(record)
		if err != nil {
			return err
		}
		err = dbTx.Put(key, recordBytes)
		if err != nil {
			return err
		}
	}

	if fss.blockHash == nil {
		return nil
	}
	undoKey := undoBucket.Key(fss.blockHash[:])
	if fss.disconnecting {
		return dbTx.Delete(undoKey)
	}
	undoBytes, err := serializeBlockUndo(fss.undo)
	if err != nil {
		return err
	}
	return dbTx.Put(undoKey, undoBytes)
}

func (fss *feeStagingShard) OnCommitted() {
	for txID, record := range fss.records {
		if record == nil {
			delete(fss.ledger.records, txID)
			continue
		}
		fss.ledger.records[txID] = record
	}
}
