package ledger

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	"github.com/sashabeton/bitcoinvault/domain/ruleerrors"
	"github.com/sashabeton/bitcoinvault/domain/staging"
	"github.com/sashabeton/bitcoinvault/domain/vault/model"
	"github.com/sashabeton/bitcoinvault/infrastructure/db/database"
)

// StartBlock prepares stagingArea to record the changes of the block with
// the given hash at the given height. Its inverse diff is stored with the
// block's changes.
func (l *Ledger) StartBlock(stagingArea *staging.Area, blockHash *chainhash.Hash, height uint32) {
	shard := l.stagingShard(stagingArea)
	shard.blockHash = blockHash
	shard.height = height
	shard.undo = newBlockUndo(height)
}

func (l *Ledger) blockShard(stagingArea *staging.Area) (*ledgerStagingShard, error) {
	shard := l.stagingShard(stagingArea)
	if shard.blockHash == nil || shard.disconnecting {
		return nil, errors.New("ledger transition staged outside of a connecting block")
	}
	return shard, nil
}

// ConfirmAlert records alert as confirmed in the current block. prevOuts
// are the outputs its inputs spend, in input order. minerScript is the
// output script of the confirming block's coinbase reward.
func (l *Ledger) ConfirmAlert(stagingArea *staging.Area, alert *wire.MsgTx, source model.SourceAddress,
	prevOuts []*wire.TxOut, fee int64, minerScript []byte) error {

	shard, err := l.blockShard(stagingArea)
	if err != nil {
		return err
	}
	txID := alert.TxHash()
	if _, exists := shard.alert(txID); exists {
		return ruleerrors.Errorf(ruleerrors.ErrLedgerCorruption, "alert %s is already recorded", txID)
	}
	err = l.stageSpends(shard, alert, model.KindAlert, source, prevOuts, eventConfirm)
	if err != nil {
		return err
	}

	shard.stageAlert(txID, &model.AlertRecord{
		TxID:          txID,
		Tx:            alert.Copy(),
		Source:        source,
		Fee:           fee,
		ConfirmHeight: shard.height,
		MinerScript:   append([]byte(nil), minerScript...),
		State:         model.StateConfirmedAlert,
	})
	txIDs := append([]chainhash.Hash(nil), shard.confirmedTxIDs(shard.height)...)
	shard.confirmedAt[shard.height] = append(txIDs, txID)
	log.Debugf("Alert %s confirmed at height %d with fee %d", txID, shard.height, fee)
	return nil
}

// FinalizeInstant records the inputs of an instant transaction as spent for
// good in the current block.
func (l *Ledger) FinalizeInstant(stagingArea *staging.Area, instant *wire.MsgTx, source model.SourceAddress,
	prevOuts []*wire.TxOut) error {

	shard, err := l.blockShard(stagingArea)
	if err != nil {
		return err
	}
	return l.stageSpends(shard, instant, model.KindInstant, source, prevOuts, eventFinalize)
}

func (l *Ledger) stageSpends(shard *ledgerStagingShard, tx *wire.MsgTx, kind model.TxKind,
	source model.SourceAddress, prevOuts []*wire.TxOut, event string) error {

	if len(prevOuts) != len(tx.TxIn) {
		return errors.Errorf("transaction %s has %d inputs but %d previous outputs",
			tx.TxHash(), len(tx.TxIn), len(prevOuts))
	}
	txID := tx.TxHash()
	for i, txIn := range tx.TxIn {
		outpoint := txIn.PreviousOutPoint
		from := model.StateUnspent
		if current, ok := shard.entry(outpoint); ok {
			from = current.State
		}
		state, err := l.lifecycle.transition(from, event)
		if err != nil {
			return errors.Wrapf(err, "input %s of %s", outpoint, txID)
		}
		shard.stageEntry(outpoint, &model.Entry{
			Outpoint:     outpoint,
			Source:       source,
			SpendingTxID: txID,
			Kind:         kind,
			State:        state,
			Height:       shard.height,
			PrevOut:      wire.TxOut{Value: prevOuts[i].Value, PkScript: append([]byte(nil), prevOuts[i].PkScript...)},
		})
	}
	return nil
}

// Recover records that recovery cancels the given alerts in the current
// block.
func (l *Ledger) Recover(stagingArea *staging.Area, recoveryTxID chainhash.Hash, alertTxIDs []chainhash.Hash) error {
	shard, err := l.blockShard(stagingArea)
	if err != nil {
		return err
	}
	for _, alertTxID := range alertTxIDs {
		err := l.resolveAlert(shard, alertTxID, eventRecover)
		if err != nil {
			return errors.Wrapf(err, "recovery %s", recoveryTxID)
		}
		log.Debugf("Alert %s recovered by %s at height %d", alertTxID, recoveryTxID, shard.height)
	}
	return nil
}

// Mature records that the alert matures in the current block.
func (l *Ledger) Mature(stagingArea *staging.Area, alertTxID chainhash.Hash) error {
	shard, err := l.blockShard(stagingArea)
	if err != nil {
		return err
	}
	err = l.resolveAlert(shard, alertTxID, eventMature)
	if err != nil {
		return err
	}
	log.Debugf("Alert %s matured at height %d", alertTxID, shard.height)
	return nil
}

func (l *Ledger) resolveAlert(shard *ledgerStagingShard, alertTxID chainhash.Hash, event string) error {
	alert, ok := shard.alert(alertTxID)
	if !ok {
		return ruleerrors.Errorf(ruleerrors.ErrLedgerCorruption, "unknown alert %s", alertTxID)
	}
	state, err := l.lifecycle.transition(alert.State, event)
	if err != nil {
		return errors.Wrapf(err, "alert %s", alertTxID)
	}
	for _, outpoint := range alert.Inputs() {
		entry, ok := shard.entry(outpoint)
		if !ok || entry.SpendingTxID != alertTxID {
			return ruleerrors.Errorf(ruleerrors.ErrLedgerCorruption,
				"input %s of alert %s has no matching entry", outpoint, alertTxID)
		}
		entryState, err := l.lifecycle.transition(entry.State, event)
		if err != nil {
			return errors.Wrapf(err, "input %s of alert %s", outpoint, alertTxID)
		}
		resolved := entry.Clone()
		resolved.State = entryState
		resolved.Height = shard.height
		shard.stageEntry(outpoint, resolved)
	}
	resolved := alert.Clone()
	resolved.State = state
	resolved.ResolveHeight = shard.height
	shard.stageAlert(alertTxID, resolved)
	return nil
}

// ConfirmedAlerts returns the alerts confirmed at height as staged in
// stagingArea, in confirmation order.
func (l *Ledger) ConfirmedAlerts(stagingArea *staging.Area, height uint32) []*model.AlertRecord {
	shard := l.stagingShard(stagingArea)
	txIDs := shard.confirmedTxIDs(height)
	alerts := make([]*model.AlertRecord, 0, len(txIDs))
	for _, txID := range txIDs {
		if alert, ok := shard.alert(txID); ok {
			alerts = append(alerts, alert.Clone())
		}
	}
	return alerts
}

// DisconnectBlock stages the exact inverse of the changes the block with
// the given hash made.
func (l *Ledger) DisconnectBlock(stagingArea *staging.Area, blockHash *chainhash.Hash) error {
	undoBytes, err := l.db.Get(undoBucket.Key(blockHash[:]))
	if err != nil {
		if database.IsNotFoundError(err) {
			return ruleerrors.Errorf(ruleerrors.ErrLedgerCorruption, "no undo data for block %s", blockHash)
		}
		return err
	}
	undo, err := deserializeBlockUndo(undoBytes)
	if err != nil {
		return err
	}

	shard := l.stagingShard(stagingArea)
	shard.blockHash = blockHash
	shard.height = undo.height
	shard.disconnecting = true

	for _, outpoint := range undo.entryOrder {
		prior := undo.priorEntries[outpoint]
		current, ok := shard.entry(outpoint)
		if !ok {
			return ruleerrors.Errorf(ruleerrors.ErrLedgerCorruption,
				"entry %s touched by block %s is missing", outpoint, blockHash)
		}
		priorState := model.StateUnspent
		if prior != nil {
			priorState = prior.State
		}
		err := l.lifecycle.revert(current.State, priorState)
		if err != nil {
			return errors.Wrapf(err, "entry %s", outpoint)
		}
		shard.entries[outpoint] = prior
	}

	for _, txID := range undo.alertOrder {
		prior := undo.priorAlerts[txID]
		current, ok := shard.alert(txID)
		if !ok {
			return ruleerrors.Errorf(ruleerrors.ErrLedgerCorruption,
				"alert %s touched by block %s is missing", txID, blockHash)
		}
		priorState := model.StateUnspent
		if prior != nil {
			priorState = prior.State
		}
		err := l.lifecycle.revert(current.State, priorState)
		if err != nil {
			return errors.Wrapf(err, "alert %s", txID)
		}
		shard.alerts[txID] = prior
	}

	if _, ok := l.confirmedAt[undo.height]; ok {
		shard.confirmedAt[undo.height] = nil
	}
	log.Debugf("Staged ledger undo of block %s at height %d", blockHash, undo.height)
	return nil
}
