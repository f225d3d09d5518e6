package utxo

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/sashabeton/bitcoinvault/domain/staging"
	"github.com/sashabeton/bitcoinvault/infrastructure/db/database"
)

type utxoStagingShard struct {
	set *Set

	blockHash     *chainhash.Hash
	disconnecting bool
	diff          *Diff
}

func (s *Set) stagingShard(stagingArea *staging.Area) *utxoStagingShard {
	return stagingArea.GetOrCreateShard("UTXOSet", func() staging.Shard {
		return &utxoStagingShard{set: s, diff: NewDiff()}
	}).(*utxoStagingShard)
}

func (uss *utxoStagingShard) entry(outpoint wire.OutPoint) (*Entry, bool) {
	if entry, ok := uss.diff.ToAdd[outpoint]; ok {
		return entry, true
	}
	if _, ok := uss.diff.ToRemove[outpoint]; ok {
		return nil, false
	}
	entry, ok := uss.set.entries[outpoint]
	return entry, ok
}

func (uss *utxoStagingShard) add(outpoint wire.OutPoint, entry *Entry) {
	uss.diff.ToAdd[outpoint] = entry
}

// remove drops outpoint from the staged set. An output added by the same
// block leaves no trace in the diff.
func (uss *utxoStagingShard) remove(outpoint wire.OutPoint, entry *Entry) {
	if _, ok := uss.diff.ToAdd[outpoint]; ok {
		delete(uss.diff.ToAdd, outpoint)
		if _, committed := uss.set.entries[outpoint]; !committed {
			return
		}
	}
	uss.diff.ToRemove[outpoint] = entry
}

func (uss *utxoStagingShard) Commit(dbTx database.Transaction) error {
	for outpoint := range uss.diff.ToRemove {
		if _, readded := uss.diff.ToAdd[outpoint]; readded {
			continue
		}
		err := dbTx.Delete(utxoBucket.Key(outpointKey(outpoint)))
		if err != nil {
			return err
		}
	}
	for outpoint, entry := range uss.diff.ToAdd {
		entryBytes, err := serializeUTXOEntryBytes(entry)
		if err != nil {
			return err
		}
		err = dbTx.Put(utxoBucket.Key(outpointKey(outpoint)), entryBytes)
		if err != nil {
			return err
		}
	}

	if uss.blockHash == nil {
		return nil
	}
	diffKey := diffBucket.Key(uss.blockHash[:])
	if uss.disconnecting {
		return dbTx.Delete(diffKey)
	}
	diffBytes, err := serializeUTXODiffBytes(uss.diff)
	if err != nil {
		return err
	}
	return dbTx.Put(diffKey, diffBytes)
}

func (uss *utxoStagingShard) OnCommitted() {
	for outpoint := range uss.diff.ToRemove {
		delete(uss.set.entries, outpoint)
	}
	for outpoint, entry := range uss.diff.ToAdd {
		uss.set.entries[outpoint] = entry
	}
}
