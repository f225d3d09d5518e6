package mempool

import (
	"fmt"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/sashabeton/bitcoinvault/domain/chain"
	"github.com/sashabeton/bitcoinvault/domain/ruleerrors"
	"github.com/sashabeton/bitcoinvault/domain/vault/classifier"
)

func (mp *mempool) validateTransactionInIsolation(transaction *wire.MsgTx) error {
	transactionID := transaction.TxHash()
	if _, ok := mp.transactionsPool.allTransactions[transactionID]; ok {
		return txRuleError(RejectDuplicate,
			fmt.Sprintf("transaction %s is already in the mempool", transactionID))
	}

	if mp.transactionsPool.transactionCount() >= mp.config.MaximumTransactionCount {
		return txRuleError(RejectInsufficientFee,
			fmt.Sprintf("mempool is full with %d transactions", mp.transactionsPool.transactionCount()))
	}

	err := blockchain.CheckTransactionSanity(btcutil.NewTx(transaction))
	if err != nil {
		return transactionRuleError(ruleerrors.Wrap(ruleerrors.ErrBadTransaction, err))
	}

	// A standalone transaction must not be a coinbase transaction.
	if blockchain.IsCoinBaseTx(transaction) {
		return transactionRuleError(ruleerrors.Errorf(ruleerrors.ErrBadTransaction,
			"transaction %s is an individual coinbase", transactionID))
	}

	if !mp.config.AcceptNonStandard {
		if err := checkTransactionStandard(transaction, mp.policy); err != nil {
			// Attempt to extract a reject code from the error so
			// it can be retained. When not possible, fall back to
			// a non standard error.
			rejectCode, found := ExtractRejectCode(err)
			if !found {
				rejectCode = RejectNonstandard
			}
			str := fmt.Sprintf("transaction %s is not standard: %s", transactionID, err)
			return txRuleError(rejectCode, str)
		}
	}

	return nil
}

// checkDoubleSpends rejects transaction if a pool transaction already spends
// one of its inputs. A recovery may share inputs with the pending alerts it
// cancels, but no two recoveries may cancel the same alert.
func (mp *mempool) checkDoubleSpends(transaction *mempoolTransaction, result *classifier.Result) error {
	targets := make(map[chainhash.Hash]struct{}, len(result.Alerts))
	for _, alert := range result.Alerts {
		targets[alert.TxID] = struct{}{}
	}

	for _, txIn := range transaction.transaction.TxIn {
		spender, ok := mp.transactionsPool.spentOutpoints[txIn.PreviousOutPoint]
		if !ok {
			continue
		}
		if _, isTarget := targets[spender.transactionID()]; isTarget {
			continue
		}
		return transactionRuleError(ruleerrors.Errorf(ruleerrors.ErrMempoolConflict,
			"output %s already spent by transaction %s in the memory pool",
			txIn.PreviousOutPoint, spender.transactionID()))
	}

	for alertTxID := range targets {
		if recovery, ok := mp.transactionsPool.recoveriesByAlert[alertTxID]; ok {
			return transactionRuleError(ruleerrors.Errorf(ruleerrors.ErrMempoolConflict,
				"alert %s is already recovered by transaction %s in the memory pool",
				alertTxID, recovery.transactionID()))
		}
	}
	return nil
}

func (mp *mempool) validateTransactionInContext(transaction *mempoolTransaction) error {
	tx := transaction.transaction
	err := chain.VerifyScripts(tx, transaction.prevOuts, mp.chain.SigCache())
	if err != nil {
		return transactionRuleError(err)
	}

	fee, err := chain.CheckTransactionAmounts(tx, transaction.prevOuts)
	if err != nil {
		return transactionRuleError(err)
	}
	transaction.fee = fee

	if !mp.config.AcceptNonStandard {
		err := checkInputsStandard(tx, transaction.prevOuts)
		if err != nil {
			// Attempt to extract a reject code from the error so
			// it can be retained. When not possible, fall back to
			// a non standard error.
			rejectCode, found := ExtractRejectCode(err)
			if !found {
				rejectCode = RejectNonstandard
			}
			str := fmt.Sprintf("transaction inputs %s are not standard: %s",
				transaction.transactionID(), err)
			return txRuleError(rejectCode, str)
		}
	}

	virtualSize := GetTxVirtualSize(tx)
	minimumFee := calcMinRequiredTxRelayFee(virtualSize, mp.policy.MinRelayTxFee)
	if fee < minimumFee {
		str := fmt.Sprintf("%s transaction %s has %d fees which is under the required amount of %d",
			transaction.kind, transaction.transactionID(), fee, minimumFee)
		return txRuleError(RejectInsufficientFee, str)
	}

	return nil
}
