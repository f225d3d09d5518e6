package mempool

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

func (mp *mempool) removeTransaction(transactionID chainhash.Hash, removeRedeemers bool) {
	transaction, ok := mp.transactionsPool.allTransactions[transactionID]
	if !ok {
		return
	}

	transactionsToRemove := []*mempoolTransaction{transaction}
	if removeRedeemers {
		transactionsToRemove = append(transactionsToRemove, mp.transactionsPool.getRedeemers(transaction)...)
	} else {
		for _, redeemer := range mp.transactionsPool.getRedeemers(transaction) {
			delete(redeemer.parentsInPool, transactionID)
		}
	}

	for _, transactionToRemove := range transactionsToRemove {
		mp.removeTransactionFromSets(transactionToRemove)
	}
}

func (mp *mempool) removeTransactionFromSets(transaction *mempoolTransaction) {
	mp.transactionsPool.removeTransaction(transaction)
	if transaction.isPendingVaultSpend() {
		mp.chain.Ledger().RemovePending(transaction.transactionID())
	}
	log.Debugf("Removed %s transaction %s", transaction.kind, transaction.transactionID())
}
