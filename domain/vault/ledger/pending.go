package ledger

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	"github.com/sashabeton/bitcoinvault/domain/ruleerrors"
	"github.com/sashabeton/bitcoinvault/domain/vault/model"
)

// AddPending records the inputs of a mempool alert or instant transaction
// as PendingAlert. Alerts also get a pending alert record so recoveries can
// target them before they confirm.
func (l *Ledger) AddPending(tx *wire.MsgTx, kind model.TxKind, source model.SourceAddress,
	prevOuts []*wire.TxOut, fee int64) error {

	if kind != model.KindAlert && kind != model.KindInstant {
		return errors.Errorf("cannot record a %s transaction as pending", kind)
	}
	if len(prevOuts) != len(tx.TxIn) {
		return errors.Errorf("transaction %s has %d inputs but %d previous outputs",
			tx.TxHash(), len(tx.TxIn), len(prevOuts))
	}
	txID := tx.TxHash()
	if _, ok := l.pendingAlerts[txID]; ok {
		return ruleerrors.Errorf(ruleerrors.ErrMempoolConflict, "transaction %s is already pending", txID)
	}

	entries := make([]*model.Entry, len(tx.TxIn))
	for i, txIn := range tx.TxIn {
		outpoint := txIn.PreviousOutPoint
		from := model.StateUnspent
		if entry, ok := l.entries[outpoint]; ok {
			from = entry.State
		} else if entry, ok := l.pendingEntries[outpoint]; ok {
			from = entry.State
		}
		state, err := l.lifecycle.transition(from, eventPend)
		if err != nil {
			return ruleerrors.Errorf(ruleerrors.ErrInputsSpent, "input %s of %s is %s", outpoint, txID, from)
		}
		entries[i] = &model.Entry{
			Outpoint:     outpoint,
			Source:       source,
			SpendingTxID: txID,
			Kind:         kind,
			State:        state,
			PrevOut:      wire.TxOut{Value: prevOuts[i].Value, PkScript: append([]byte(nil), prevOuts[i].PkScript...)},
		}
	}
	for _, entry := range entries {
		l.pendingEntries[entry.Outpoint] = entry
	}
	l.pendingAlerts[txID] = &model.AlertRecord{
		TxID:   txID,
		Tx:     tx.Copy(),
		Source: source,
		Fee:    fee,
		State:  model.StatePendingAlert,
	}
	l.pendingOrder = append(l.pendingOrder, txID)
	return nil
}

// RemovePending drops the pending entries of txID, if any.
func (l *Ledger) RemovePending(txID chainhash.Hash) {
	alert, ok := l.pendingAlerts[txID]
	if !ok {
		return
	}
	for _, outpoint := range alert.Inputs() {
		entry, ok := l.pendingEntries[outpoint]
		if !ok || entry.SpendingTxID != txID {
			continue
		}
		_, err := l.lifecycle.transition(entry.State, eventUnpend)
		if err != nil {
			log.Errorf("Pending entry %s of %s: %s", outpoint, txID, err)
		}
		delete(l.pendingEntries, outpoint)
	}
	delete(l.pendingAlerts, txID)
	for i, pendingTxID := range l.pendingOrder {
		if pendingTxID == txID {
			l.pendingOrder = append(l.pendingOrder[:i], l.pendingOrder[i+1:]...)
			break
		}
	}
}

// IsPending returns whether txID has pending entries.
func (l *Ledger) IsPending(txID chainhash.Hash) bool {
	_, ok := l.pendingAlerts[txID]
	return ok
}

// PendingEntries returns copies of the pending entries in the order their
// transactions were added.
func (l *Ledger) PendingEntries() []*model.Entry {
	var entries []*model.Entry
	for _, txID := range l.pendingOrder {
		for _, outpoint := range l.pendingAlerts[txID].Inputs() {
			if entry, ok := l.pendingEntries[outpoint]; ok && entry.SpendingTxID == txID {
				entries = append(entries, entry.Clone())
			}
		}
	}
	return entries
}
