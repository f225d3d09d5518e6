package mempool

import (
	"fmt"

	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	"github.com/sashabeton/bitcoinvault/infrastructure/logger"
)

func (mp *mempool) validateAndInsertTransaction(transaction *wire.MsgTx) (*mempoolTransaction, error) {
	onEnd := logger.LogAndMeasureExecutionTime(log,
		fmt.Sprintf("validateAndInsertTransaction %s", transaction.TxHash()))
	defer onEnd()

	err := mp.validateTransactionInIsolation(transaction)
	if err != nil {
		return nil, err
	}

	poolTransaction := newMempoolTransaction(transaction)
	result, err := mp.Classify(transaction)
	if err != nil {
		return nil, transactionRuleError(err)
	}
	poolTransaction.kind = result.Kind
	poolTransaction.source = result.Source

	err = mp.checkDoubleSpends(poolTransaction, result)
	if err != nil {
		return nil, err
	}

	err = mp.fillInputsAndGetParents(poolTransaction, result)
	if err != nil {
		return nil, err
	}

	err = mp.validateTransactionInContext(poolTransaction)
	if err != nil {
		return nil, err
	}

	err = mp.insertTransaction(poolTransaction)
	if err != nil {
		return nil, err
	}

	log.Debugf("Accepted %s transaction %s (pool size: %d)", poolTransaction.kind,
		poolTransaction.transactionID(), mp.transactionsPool.transactionCount())
	return poolTransaction, nil
}

// insertTransaction records the pending vault spend of transaction in the
// ledger, if any, and adds it to the pool.
func (mp *mempool) insertTransaction(transaction *mempoolTransaction) error {
	if transaction.isPendingVaultSpend() {
		source, err := transaction.source.UnwrapOrErr(
			errors.Errorf("%s transaction %s has no source address", transaction.kind, transaction.transactionID()))
		if err != nil {
			return err
		}
		err = mp.chain.Ledger().AddPending(transaction.transaction, transaction.kind, source,
			transaction.prevOuts, transaction.fee)
		if err != nil {
			return transactionRuleError(err)
		}
	}
	mp.transactionsPool.addTransaction(transaction)
	return nil
}
