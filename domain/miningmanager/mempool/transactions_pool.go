package mempool

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	vaultmodel "github.com/sashabeton/bitcoinvault/domain/vault/model"
)

type transactionsPool struct {
	mempool         *mempool
	allTransactions idToTransaction

	// order holds the IDs of allTransactions in arrival order. Parents
	// always precede the transactions that depend on them.
	order []chainhash.Hash

	// spentOutpoints maps every outpoint spent by a pool transaction other
	// than a recovery to its spender. Recoveries claim whole alerts through
	// recoveriesByAlert instead.
	spentOutpoints    map[wire.OutPoint]*mempoolTransaction
	recoveriesByAlert map[chainhash.Hash]*mempoolTransaction

	chainedTransactionsByParentID map[chainhash.Hash]idToTransaction
}

func newTransactionsPool(mp *mempool) *transactionsPool {
	return &transactionsPool{
		mempool:                       mp,
		allTransactions:               idToTransaction{},
		spentOutpoints:                map[wire.OutPoint]*mempoolTransaction{},
		recoveriesByAlert:             map[chainhash.Hash]*mempoolTransaction{},
		chainedTransactionsByParentID: map[chainhash.Hash]idToTransaction{},
	}
}

func (tp *transactionsPool) addTransaction(transaction *mempoolTransaction) {
	id := transaction.transactionID()
	tp.allTransactions[id] = transaction
	tp.order = append(tp.order, id)

	if transaction.kind == vaultmodel.KindRecovery {
		for _, alertTxID := range transaction.alerts {
			tp.recoveriesByAlert[alertTxID] = transaction
		}
	} else {
		for _, txIn := range transaction.transaction.TxIn {
			tp.spentOutpoints[txIn.PreviousOutPoint] = transaction
		}
	}

	for parentID := range transaction.parentsInPool {
		children, ok := tp.chainedTransactionsByParentID[parentID]
		if !ok {
			children = idToTransaction{}
			tp.chainedTransactionsByParentID[parentID] = children
		}
		children[id] = transaction
	}

	tp.mempool.mempoolUTXOSet.addTransaction(transaction)
}

func (tp *transactionsPool) removeTransaction(transaction *mempoolTransaction) {
	id := transaction.transactionID()
	delete(tp.allTransactions, id)
	for i, orderedID := range tp.order {
		if orderedID == id {
			tp.order = append(tp.order[:i], tp.order[i+1:]...)
			break
		}
	}

	if transaction.kind == vaultmodel.KindRecovery {
		for _, alertTxID := range transaction.alerts {
			if tp.recoveriesByAlert[alertTxID] == transaction {
				delete(tp.recoveriesByAlert, alertTxID)
			}
		}
	} else {
		for _, txIn := range transaction.transaction.TxIn {
			if tp.spentOutpoints[txIn.PreviousOutPoint] == transaction {
				delete(tp.spentOutpoints, txIn.PreviousOutPoint)
			}
		}
	}

	for parentID := range transaction.parentsInPool {
		children := tp.chainedTransactionsByParentID[parentID]
		delete(children, id)
		if len(children) == 0 {
			delete(tp.chainedTransactionsByParentID, parentID)
		}
	}

	tp.mempool.mempoolUTXOSet.removeTransaction(transaction)
}

// getRedeemers returns every pool transaction that depends on transaction,
// directly or through other pool transactions.
func (tp *transactionsPool) getRedeemers(transaction *mempoolTransaction) []*mempoolTransaction {
	queue := []*mempoolTransaction{transaction}
	visited := map[chainhash.Hash]struct{}{transaction.transactionID(): {}}
	var redeemers []*mempoolTransaction
	for len(queue) > 0 {
		var current *mempoolTransaction
		current, queue = queue[0], queue[1:]

		for id, child := range tp.chainedTransactionsByParentID[current.transactionID()] {
			if _, ok := visited[id]; ok {
				continue
			}
			visited[id] = struct{}{}
			redeemers = append(redeemers, child)
			queue = append(queue, child)
		}
	}
	return redeemers
}

// orderedTransactions returns the pool transactions in arrival order.
func (tp *transactionsPool) orderedTransactions() []*mempoolTransaction {
	transactions := make([]*mempoolTransaction, len(tp.order))
	for i, id := range tp.order {
		transactions[i] = tp.allTransactions[id]
	}
	return transactions
}

func (tp *transactionsPool) transactionCount() int {
	return len(tp.allTransactions)
}
