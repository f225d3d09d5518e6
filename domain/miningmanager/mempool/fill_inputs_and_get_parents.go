package mempool

import (
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/sashabeton/bitcoinvault/domain/chain"
	"github.com/sashabeton/bitcoinvault/domain/ruleerrors"
	"github.com/sashabeton/bitcoinvault/domain/vault/classifier"
	vaultmodel "github.com/sashabeton/bitcoinvault/domain/vault/model"
)

// poolOutputs resolves previous outputs from the pool, then the chain UTXO
// set, then the outputs the ledger keeps for recorded vault spends.
type poolOutputs struct {
	mempool *mempool
}

func (o *poolOutputs) prevOut(outpoint wire.OutPoint) (*wire.TxOut, bool) {
	if txOut, ok := o.mempool.mempoolUTXOSet.get(outpoint); ok {
		return txOut, true
	}
	if entry, ok := o.mempool.chain.UTXOSet().Get(outpoint); ok {
		return entry.TxOut(), true
	}
	entry := o.mempool.chain.Ledger().MempoolView().Entry(outpoint)
	if entry.IsNone() {
		return nil, false
	}
	prevOut := entry.UnwrapOr(nil).PrevOut
	return &prevOut, true
}

func (o *poolOutputs) VaultOutput(outpoint wire.OutPoint, txIn *wire.TxIn) fn.Option[vaultmodel.SourceAddress] {
	prevOut, ok := o.prevOut(outpoint)
	if !ok {
		return fn.None[vaultmodel.SourceAddress]()
	}
	return chain.VaultSource(prevOut.PkScript, txIn)
}

// fillInputsAndGetParents resolves the outputs transaction spends, as seen
// by a block mined on top of the current tip, and records the pool
// transactions it depends on.
func (mp *mempool) fillInputsAndGetParents(transaction *mempoolTransaction, result *classifier.Result) error {
	nextHeight := mp.chain.TipHeight() + 1
	if transaction.kind == vaultmodel.KindRecovery {
		return mp.fillRecoveryInputs(transaction, result, nextHeight)
	}

	tx := transaction.transaction
	transaction.prevOuts = make([]*wire.TxOut, len(tx.TxIn))
	for i, txIn := range tx.TxIn {
		outpoint := txIn.PreviousOutPoint
		if txOut, ok := mp.mempoolUTXOSet.get(outpoint); ok {
			transaction.prevOuts[i] = txOut
			transaction.parentsInPool[outpoint.Hash] = mp.transactionsPool.allTransactions[outpoint.Hash]
			continue
		}

		if entry, ok := mp.chain.UTXOSet().Get(outpoint); ok {
			err := chain.CheckCoinbaseMaturity(entry, outpoint, nextHeight, mp.chain.Params().CoinbaseMaturity)
			if err != nil {
				return transactionRuleError(err)
			}
			transaction.prevOuts[i] = entry.TxOut()
			continue
		}

		if transaction.isPendingVaultSpend() {
			if entry, ok := mp.chain.Ledger().Entry(outpoint); ok {
				return transactionRuleError(ruleerrors.Errorf(ruleerrors.ErrInputsSpent,
					"input %s of %s was already spent by %s transaction %s (%s)",
					outpoint, transaction.transactionID(), entry.Kind, entry.SpendingTxID, entry.State))
			}
		}
		return transactionRuleError(ruleerrors.Errorf(ruleerrors.ErrMissingInputs,
			"output %s referenced from transaction %s either does not exist or has already been spent",
			outpoint, transaction.transactionID()))
	}
	return nil
}

// fillRecoveryInputs resolves the outputs a recovery reclaims from the
// ledger and checks that every alert it cancels is still recoverable at
// nextHeight.
func (mp *mempool) fillRecoveryInputs(transaction *mempoolTransaction, result *classifier.Result,
	nextHeight uint32) error {

	scheduler := mp.chain.Scheduler()
	for _, alert := range result.Alerts {
		if alert.State == vaultmodel.StateConfirmedAlert && !scheduler.IsRecoverable(alert.ConfirmHeight, nextHeight) {
			return transactionRuleError(ruleerrors.Errorf(ruleerrors.ErrAlreadyMatured,
				"alert %s confirmed at height %d matures at height %d", alert.TxID, alert.ConfirmHeight,
				scheduler.MaturityHeight(alert.ConfirmHeight)))
		}
		transaction.alerts = append(transaction.alerts, alert.TxID)
		if pendingAlert, ok := mp.transactionsPool.allTransactions[alert.TxID]; ok {
			transaction.parentsInPool[alert.TxID] = pendingAlert
		}
	}

	view := mp.chain.Ledger().MempoolView()
	tx := transaction.transaction
	transaction.prevOuts = make([]*wire.TxOut, len(tx.TxIn))
	for i, txIn := range tx.TxIn {
		entry, err := view.Entry(txIn.PreviousOutPoint).UnwrapOrErr(
			ruleerrors.Errorf(ruleerrors.ErrRecoveryInputsNotSpent, "input %s is not spent by an alert",
				txIn.PreviousOutPoint))
		if err != nil {
			return transactionRuleError(err)
		}
		prevOut := entry.PrevOut
		transaction.prevOuts[i] = &prevOut
	}
	return nil
}
