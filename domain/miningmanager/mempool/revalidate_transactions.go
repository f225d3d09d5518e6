package mempool

import (
	"github.com/btcsuite/btcd/wire"
	"github.com/sashabeton/bitcoinvault/infrastructure/logger"
)

// revalidateTransactions rebuilds the pool against the current chain tip.
// candidates, typically the transactions of disconnected blocks, are
// admitted first, followed by the previous pool content in arrival order.
// Transactions that no longer validate are dropped.
func (mp *mempool) revalidateTransactions(candidates []*wire.MsgTx) {
	onEnd := logger.LogAndMeasureExecutionTime(log, "revalidateTransactions")
	defer onEnd()

	for _, transaction := range mp.transactionsPool.orderedTransactions() {
		candidates = append(candidates, transaction.transaction)
	}
	mp.clear()

	for _, transaction := range candidates {
		_, err := mp.validateAndInsertTransaction(transaction)
		if err != nil {
			log.Debugf("Removing transaction %s, it failed revalidation: %s", transaction.TxHash(), err)
		}
	}
}

// clear empties the pool and drops its pending ledger entries.
func (mp *mempool) clear() {
	for _, transaction := range mp.transactionsPool.orderedTransactions() {
		if transaction.isPendingVaultSpend() {
			mp.chain.Ledger().RemovePending(transaction.transactionID())
		}
	}
	mp.mempoolUTXOSet = newMempoolUTXOSet(mp)
	mp.transactionsPool = newTransactionsPool(mp)
}
